// Package memory is an in-process inventory store.
//
// Lock order is store, event, ticket type, tickets. Sales hold the store and
// event locks shared and their ticket type's lock exclusively, so sales of
// different ticket types run in parallel while an organizer edit (exclusive
// event lock) or a create/delete (exclusive store lock) waits for them.
package memory

import (
	"context"
	"fmt"
	"sync"

	"ticket-ledger/internal/status"
	"ticket-ledger/models"
)

type Store struct {
	mu     sync.RWMutex
	events map[string]*eventEntry

	ticketsMu sync.RWMutex
	tickets   map[string]models.Ticket
	byUser    map[string][]string
}

type eventEntry struct {
	mu    sync.RWMutex
	event models.Event
	cells map[string]*ticketCell
}

type ticketCell struct {
	mu sync.Mutex
	tt models.TicketType
}

func New() *Store {
	return &Store{
		events:  make(map[string]*eventEntry),
		tickets: make(map[string]models.Ticket),
		byUser:  make(map[string][]string),
	}
}

func newEntry(event models.Event) *eventEntry {
	entry := &eventEntry{event: event.Clone(), cells: make(map[string]*ticketCell, len(event.TicketTypes))}
	for _, tt := range event.TicketTypes {
		entry.cells[tt.ID] = &ticketCell{tt: tt}
	}
	return entry
}

// snapshot must be called with entry.mu held.
func (e *eventEntry) snapshot() models.Event {
	out := e.event.Clone()
	for i, tt := range out.TicketTypes {
		c := e.cells[tt.ID]
		c.mu.Lock()
		out.TicketTypes[i] = c.tt
		c.mu.Unlock()
	}
	return out
}

func (s *Store) GetEvent(ctx context.Context, eventID string) (models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.events[eventID]
	if !ok {
		return models.Event{}, status.ErrEventNotFound
	}
	entry.mu.RLock()
	defer entry.mu.RUnlock()
	return entry.snapshot(), nil
}

func (s *Store) GetTicketType(ctx context.Context, eventID, ticketTypeID string) (models.TicketType, error) {
	event, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return models.TicketType{}, err
	}
	tt, ok := event.TicketType(ticketTypeID)
	if !ok {
		return models.TicketType{}, status.ErrTicketTypeNotFound
	}
	return tt, nil
}

func (s *Store) ListEvents(ctx context.Context, filter models.EventFilter) ([]models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Event, 0, len(s.events))
	for _, entry := range s.events {
		entry.mu.RLock()
		event := entry.snapshot()
		entry.mu.RUnlock()
		if filter.Matches(event) {
			out = append(out, event)
		}
	}
	models.SortEvents(out)
	return out, nil
}

func (s *Store) CreateEvent(ctx context.Context, event models.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[event.ID]; exists {
		return fmt.Errorf("%w: event %s already exists", status.ErrInvalidEvent, event.ID)
	}
	s.events[event.ID] = newEntry(event)
	return nil
}

func (s *Store) UpdateEvent(ctx context.Context, eventID string, fn func(current models.Event) (models.Event, error)) (models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.events[eventID]
	if !ok {
		return models.Event{}, status.ErrEventNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	current := entry.snapshot()
	next, err := fn(current.Clone())
	if err != nil {
		return models.Event{}, err
	}
	next.ID = current.ID
	next, err = models.CarrySold(next, current)
	if err != nil {
		return models.Event{}, err
	}
	if err := next.Validate(); err != nil {
		return models.Event{}, err
	}

	cells := make(map[string]*ticketCell, len(next.TicketTypes))
	for _, tt := range next.TicketTypes {
		if c, ok := entry.cells[tt.ID]; ok {
			c.tt = tt
			cells[tt.ID] = c
			continue
		}
		cells[tt.ID] = &ticketCell{tt: tt}
	}
	entry.event = next.Clone()
	entry.cells = cells
	return next, nil
}

func (s *Store) DeleteEvent(ctx context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[eventID]; !ok {
		return status.ErrEventNotFound
	}
	delete(s.events, eventID)
	return nil
}

func (s *Store) CommitSale(ctx context.Context, sale models.Sale, mint models.MintFunc) (models.TicketType, []models.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.events[sale.EventID]
	if !ok {
		return models.TicketType{}, nil, status.ErrEventNotFound
	}
	entry.mu.RLock()
	defer entry.mu.RUnlock()

	cell, ok := entry.cells[sale.TicketTypeID]
	if !ok {
		return models.TicketType{}, nil, status.ErrTicketTypeNotFound
	}
	cell.mu.Lock()
	defer cell.mu.Unlock()

	updated, err := cell.tt.WithSale(sale.Quantity)
	if err != nil {
		return models.TicketType{}, nil, err
	}
	tickets, err := mint(cell.tt)
	if err != nil {
		return models.TicketType{}, nil, err
	}
	if len(tickets) != sale.Quantity {
		return models.TicketType{}, nil, fmt.Errorf("%w: minted %d of %d tickets", status.ErrTicketIssueFailed, len(tickets), sale.Quantity)
	}

	s.ticketsMu.Lock()
	defer s.ticketsMu.Unlock()
	for _, t := range tickets {
		if _, dup := s.tickets[t.ID]; dup {
			return models.TicketType{}, nil, fmt.Errorf("%w: duplicate ticket id %s", status.ErrTicketIssueFailed, t.ID)
		}
	}

	cell.tt = updated
	for _, t := range tickets {
		s.tickets[t.ID] = t
		s.byUser[t.UserID] = append(s.byUser[t.UserID], t.ID)
	}
	return updated, append([]models.Ticket(nil), tickets...), nil
}

func (s *Store) GetTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	s.ticketsMu.RLock()
	defer s.ticketsMu.RUnlock()

	t, ok := s.tickets[ticketID]
	if !ok {
		return models.Ticket{}, status.ErrTicketNotFound
	}
	return t, nil
}

func (s *Store) TicketsByUser(ctx context.Context, userID string) ([]models.Ticket, error) {
	s.ticketsMu.RLock()
	defer s.ticketsMu.RUnlock()

	ids := s.byUser[userID]
	out := make([]models.Ticket, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.tickets[id])
	}
	return out, nil
}
