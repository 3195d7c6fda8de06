package models

import (
	"fmt"
	"strings"
	"time"

	"ticket-ledger/internal/status"

	"github.com/shopspring/decimal"
)

type TicketType struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
	Capacity int             `json:"capacity"`
	Sold     int             `json:"sold"`
}

type TicketTypeDraft struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
	Capacity int             `json:"capacity"`
}

// NewTicketType returns a ticket type with nothing sold.
func NewTicketType(id, name string, price decimal.Decimal, currency string, capacity int) (TicketType, error) {
	tt := TicketType{
		ID:       id,
		Name:     strings.TrimSpace(name),
		Price:    price,
		Currency: strings.ToUpper(strings.TrimSpace(currency)),
		Capacity: capacity,
	}
	if err := tt.Validate(); err != nil {
		return TicketType{}, err
	}
	return tt, nil
}

func (t TicketType) Validate() error {
	switch {
	case t.ID == "":
		return fmt.Errorf("%w: id is required", status.ErrInvalidTicketType)
	case t.Name == "":
		return fmt.Errorf("%w: name is required", status.ErrInvalidTicketType)
	case t.Price.IsNegative():
		return fmt.Errorf("%w: price must not be negative", status.ErrInvalidTicketType)
	case t.Currency == "":
		return fmt.Errorf("%w: currency is required", status.ErrInvalidTicketType)
	case t.Capacity <= 0:
		return fmt.Errorf("%w: capacity must be positive", status.ErrInvalidTicketType)
	case t.Sold < 0 || t.Sold > t.Capacity:
		return fmt.Errorf("%w: sold %d outside [0, %d]", status.ErrInvalidTicketType, t.Sold, t.Capacity)
	}
	return nil
}

func (t TicketType) Available() int {
	return t.Capacity - t.Sold
}

func (t TicketType) SoldOut() bool {
	return t.Available() <= 0
}

// WithSale returns t with quantity more tickets sold.
func (t TicketType) WithSale(quantity int) (TicketType, error) {
	if quantity < 1 {
		return TicketType{}, status.ErrInvalidQuantity
	}
	if t.Available() < quantity {
		return TicketType{}, status.ErrInsufficientInventory
	}
	t.Sold += quantity
	return t, nil
}

// Edit applies organizer-editable fields, keeping the sold count.
func (t TicketType) Edit(name string, price decimal.Decimal, currency string, capacity int) (TicketType, error) {
	edited := TicketType{
		ID:       t.ID,
		Name:     strings.TrimSpace(name),
		Price:    price,
		Currency: strings.ToUpper(strings.TrimSpace(currency)),
		Capacity: capacity,
		Sold:     t.Sold,
	}
	if capacity < t.Sold {
		return TicketType{}, fmt.Errorf("%w: capacity %d below sold %d", status.ErrInvalidTicketType, capacity, t.Sold)
	}
	if err := edited.Validate(); err != nil {
		return TicketType{}, err
	}
	return edited, nil
}

// Ticket is an immutable proof of purchase.
type Ticket struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	EventID        string          `json:"event_id"`
	TicketTypeID   string          `json:"ticket_type_id"`
	EventTitle     string          `json:"event_title"`
	TicketTypeName string          `json:"ticket_type_name"`
	Price          decimal.Decimal `json:"price"`
	Currency       string          `json:"currency"`
	IssuedAt       time.Time       `json:"issued_at"`
	ScanToken      string          `json:"scan_token"`
}

// Sale is a request to move quantity tickets of one ticket type to a buyer.
type Sale struct {
	EventID      string
	TicketTypeID string
	UserID       string
	Quantity     int
}

// MintFunc produces the tickets for a sale from the ticket type as it stands
// inside the store's critical section. An error aborts the sale.
type MintFunc func(current TicketType) ([]Ticket, error)
