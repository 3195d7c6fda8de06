package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ticket-ledger/internal/status"
	"ticket-ledger/models"
	"ticket-ledger/monitoring"
	"ticket-ledger/utils"
)

type PurchaseResult struct {
	Reference  string            `json:"reference"`
	Tickets    []models.Ticket   `json:"tickets"`
	Message    string            `json:"message"`
	TicketType models.TicketType `json:"ticket_type"`
}

// BookingService is the booking coordinator: every ticket sale goes through
// Purchase.
type BookingService struct {
	store    InventoryStore
	issuer   *TicketIssuer
	notifier Notifier
	monitor  *monitoring.Monitor
}

func NewBookingService(store InventoryStore, issuer *TicketIssuer, notifier Notifier, monitor *monitoring.Monitor) *BookingService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if monitor == nil {
		monitor = monitoring.NewMonitor()
	}
	return &BookingService{
		store:    store,
		issuer:   issuer,
		notifier: notifier,
		monitor:  monitor,
	}
}

// Purchase sells quantity tickets of one ticket type to user. A rejected
// purchase leaves inventory and the user's tickets untouched. Purchase is not
// idempotent: repeating a call buys another batch.
func (s *BookingService) Purchase(ctx context.Context, user *models.User, eventID, ticketTypeID string, quantity int) (*PurchaseResult, error) {
	start := time.Now()
	result, err := s.purchase(ctx, user, eventID, ticketTypeID, quantity)

	outcome := "success"
	if err != nil {
		outcome = string(status.KindOf(err))
	}
	s.monitor.TrackPurchase(outcome, time.Since(start))

	if err != nil {
		slog.Info("Purchase rejected",
			"event_id", eventID,
			"ticket_type_id", ticketTypeID,
			"quantity", quantity,
			"reason", outcome,
		)
		return nil, err
	}

	s.monitor.TrackTicketsIssued(eventID, ticketTypeID, len(result.Tickets), result.TicketType.Available())
	slog.Info("Purchase completed",
		"event_id", eventID,
		"ticket_type_id", ticketTypeID,
		"user_id", user.ID,
		"quantity", quantity,
		"remaining", result.TicketType.Available(),
	)

	if err := s.notifier.PurchaseCompleted(ctx, user.ID, result); err != nil {
		s.monitor.TrackNotificationFailure("purchase_success")
		slog.Error("Failed to publish purchase notification", "user_id", user.ID, "error", err)
	}
	return result, nil
}

func (s *BookingService) purchase(ctx context.Context, user *models.User, eventID, ticketTypeID string, quantity int) (*PurchaseResult, error) {
	if user == nil || user.ID == "" {
		return nil, status.ErrUnauthenticated
	}

	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	tt, ok := event.TicketType(ticketTypeID)
	if !ok {
		return nil, status.ErrTicketTypeNotFound
	}
	if quantity < 1 {
		return nil, status.ErrInvalidQuantity
	}
	if tt.Available() < quantity {
		return nil, status.ErrInsufficientInventory
	}

	buyer := *user
	updated, tickets, err := s.store.CommitSale(ctx, models.Sale{
		EventID:      eventID,
		TicketTypeID: ticketTypeID,
		UserID:       buyer.ID,
		Quantity:     quantity,
	}, func(current models.TicketType) ([]models.Ticket, error) {
		// Price and currency come from the ticket type as committed, not as
		// first read, so an organizer edit in between is honoured.
		return s.issuer.Issue(buyer, event, current, quantity, current.Price)
	})
	if err != nil {
		if isRejection(err) {
			return nil, err
		}
		return nil, fmt.Errorf("commit sale: %w", err)
	}

	reference, err := utils.GenerateCode(4)
	if err != nil {
		reference = tickets[0].ID
	} else {
		reference = "BK-" + reference
	}

	return &PurchaseResult{
		Reference:  reference,
		Tickets:    tickets,
		Message:    fmt.Sprintf("Successfully purchased %d %s ticket(s)!", quantity, updated.Name),
		TicketType: updated,
	}, nil
}

func isRejection(err error) bool {
	return errors.Is(err, status.ErrInsufficientInventory) ||
		errors.Is(err, status.ErrEventNotFound) ||
		errors.Is(err, status.ErrTicketTypeNotFound) ||
		errors.Is(err, status.ErrInvalidQuantity)
}

// MyTickets returns the tickets owned by user in purchase order.
func (s *BookingService) MyTickets(ctx context.Context, user *models.User) ([]models.Ticket, error) {
	if user == nil || user.ID == "" {
		return nil, status.ErrUnauthenticated
	}
	return s.store.TicketsByUser(ctx, user.ID)
}

// GetTicket returns one of user's tickets. Other users' tickets read as not
// found.
func (s *BookingService) GetTicket(ctx context.Context, user *models.User, ticketID string) (models.Ticket, error) {
	if user == nil || user.ID == "" {
		return models.Ticket{}, status.ErrUnauthenticated
	}
	ticket, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		return models.Ticket{}, err
	}
	if ticket.UserID != user.ID {
		return models.Ticket{}, status.ErrTicketNotFound
	}
	return ticket, nil
}

// VerifyTicket checks a scanned token at the venue.
func (s *BookingService) VerifyTicket(ctx context.Context, ticketID, token string) (models.Ticket, error) {
	ticket, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		return models.Ticket{}, err
	}
	if !s.issuer.Verify(ticket, token) {
		return models.Ticket{}, status.ErrInvalidScanToken
	}
	return ticket, nil
}
