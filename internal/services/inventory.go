package services

import (
	"context"

	"ticket-ledger/models"
)

// InventoryStore owns events, ticket types and issued tickets.
//
// CommitSale is the only operation that changes a ticket type's sold count.
// Implementations run the availability check, mint, sold increment and
// ticket append for one (event, ticket type) as a single unit: no other sale
// of the same ticket type may interleave, and when mint fails or the stock is
// gone nothing is applied.
type InventoryStore interface {
	GetEvent(ctx context.Context, eventID string) (models.Event, error)
	GetTicketType(ctx context.Context, eventID, ticketTypeID string) (models.TicketType, error)
	ListEvents(ctx context.Context, filter models.EventFilter) ([]models.Event, error)

	CreateEvent(ctx context.Context, event models.Event) error
	// UpdateEvent applies fn to the current event, live sold counts included,
	// and stores the result. Sales of the event's ticket types are excluded
	// while fn runs.
	UpdateEvent(ctx context.Context, eventID string, fn func(current models.Event) (models.Event, error)) (models.Event, error)
	DeleteEvent(ctx context.Context, eventID string) error

	CommitSale(ctx context.Context, sale models.Sale, mint models.MintFunc) (models.TicketType, []models.Ticket, error)

	GetTicket(ctx context.Context, ticketID string) (models.Ticket, error)
	TicketsByUser(ctx context.Context, userID string) ([]models.Ticket, error)
}
