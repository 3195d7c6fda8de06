package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"ticket-ledger/internal/status"
	"ticket-ledger/models"
	"ticket-ledger/monitoring"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventService covers the organizer side of the catalog. Sold counts are never
// written here; edits go through the store's UpdateEvent so live sales are
// carried over.
type EventService struct {
	store    InventoryStore
	notifier Notifier
	monitor  *monitoring.Monitor
	newID    func() string
	now      func() time.Time
}

func NewEventService(store InventoryStore, notifier Notifier, monitor *monitoring.Monitor) *EventService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if monitor == nil {
		monitor = monitoring.NewMonitor()
	}
	return &EventService{
		store:    store,
		notifier: notifier,
		monitor:  monitor,
		newID:    uuid.NewString,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *EventService) GetEvent(ctx context.Context, eventID string) (models.Event, error) {
	return s.store.GetEvent(ctx, eventID)
}

func (s *EventService) ListEvents(ctx context.Context, filter models.EventFilter) ([]models.Event, error) {
	return s.store.ListEvents(ctx, filter)
}

// Categories returns the distinct categories in the catalog, sorted, led by
// AllCategories.
func (s *EventService) Categories(ctx context.Context) ([]string, error) {
	events, err := s.store.ListEvents(ctx, models.EventFilter{})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var categories []string
	for _, e := range events {
		if _, ok := seen[e.Category]; ok {
			continue
		}
		seen[e.Category] = struct{}{}
		categories = append(categories, e.Category)
	}
	sort.Strings(categories)
	return append([]string{models.AllCategories}, categories...), nil
}

func (s *EventService) CreateEvent(ctx context.Context, user *models.User, draft models.EventDraft) (models.Event, error) {
	if err := requireOrganizer(user); err != nil {
		s.monitor.TrackEventOperation("create", string(status.KindOf(err)))
		return models.Event{}, err
	}
	event, err := models.NewEvent(*user, draft, s.newID, s.now())
	if err != nil {
		s.monitor.TrackEventOperation("create", string(status.KindOf(err)))
		return models.Event{}, err
	}
	if err := s.store.CreateEvent(ctx, event); err != nil {
		s.monitor.TrackEventOperation("create", string(status.KindOf(err)))
		return models.Event{}, fmt.Errorf("create event: %w", err)
	}

	s.monitor.TrackEventOperation("create", "success")
	slog.Info("Event created", "event_id", event.ID, "organizer_id", user.ID, "ticket_types", len(event.TicketTypes))
	s.notify(ctx, user.ID, "created", event)
	return event, nil
}

// UpdateEvent applies patch to an event owned by user.
func (s *EventService) UpdateEvent(ctx context.Context, user *models.User, eventID string, patch models.EventPatch) (models.Event, error) {
	if user == nil || user.ID == "" {
		return models.Event{}, status.ErrUnauthenticated
	}
	updated, err := s.store.UpdateEvent(ctx, eventID, func(current models.Event) (models.Event, error) {
		if current.OrganizerID != user.ID {
			return models.Event{}, status.ErrForbidden
		}
		return current.Apply(patch, s.newID, s.now())
	})
	if err != nil {
		s.monitor.TrackEventOperation("update", string(status.KindOf(err)))
		return models.Event{}, err
	}

	s.monitor.TrackEventOperation("update", "success")
	slog.Info("Event updated", "event_id", eventID, "organizer_id", user.ID)
	s.notify(ctx, user.ID, "updated", updated)
	return updated, nil
}

// DeleteEvent removes an event owned by user. Tickets already issued stay with
// their owners.
func (s *EventService) DeleteEvent(ctx context.Context, user *models.User, eventID string) error {
	if user == nil || user.ID == "" {
		return status.ErrUnauthenticated
	}
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		s.monitor.TrackEventOperation("delete", string(status.KindOf(err)))
		return err
	}
	if event.OrganizerID != user.ID {
		s.monitor.TrackEventOperation("delete", string(status.KindForbidden))
		return status.ErrForbidden
	}
	if err := s.store.DeleteEvent(ctx, eventID); err != nil {
		s.monitor.TrackEventOperation("delete", string(status.KindOf(err)))
		return err
	}

	s.monitor.TrackEventOperation("delete", "success")
	slog.Info("Event deleted", "event_id", eventID, "organizer_id", user.ID, "tickets_sold", event.TotalSold())
	s.notify(ctx, user.ID, "deleted", event)
	return nil
}

type EventStats struct {
	EventID       string          `json:"event_id"`
	Title         string          `json:"title"`
	StartTime     time.Time       `json:"start_time"`
	TicketsSold   int             `json:"tickets_sold"`
	TotalCapacity int             `json:"total_capacity"`
	Revenue       decimal.Decimal `json:"revenue"`
	Currency      string          `json:"currency"`
}

type Dashboard struct {
	TotalEvents      int             `json:"total_events"`
	TotalTicketsSold int             `json:"total_tickets_sold"`
	TotalRevenue     decimal.Decimal `json:"total_revenue"`
	Events           []EventStats    `json:"events"`
}

// Dashboard summarises sales across the organizer's own events.
func (s *EventService) Dashboard(ctx context.Context, user *models.User) (*Dashboard, error) {
	if err := requireOrganizer(user); err != nil {
		return nil, err
	}
	events, err := s.store.ListEvents(ctx, models.EventFilter{OrganizerID: user.ID})
	if err != nil {
		return nil, err
	}

	d := &Dashboard{
		TotalEvents:  len(events),
		TotalRevenue: decimal.Zero,
		Events:       make([]EventStats, 0, len(events)),
	}
	for _, e := range events {
		revenue := e.Revenue()
		d.TotalTicketsSold += e.TotalSold()
		d.TotalRevenue = d.TotalRevenue.Add(revenue)
		d.Events = append(d.Events, EventStats{
			EventID:       e.ID,
			Title:         e.Title,
			StartTime:     e.StartTime,
			TicketsSold:   e.TotalSold(),
			TotalCapacity: e.TotalCapacity(),
			Revenue:       revenue,
			Currency:      e.Currency(),
		})
	}
	return d, nil
}

func (s *EventService) notify(ctx context.Context, organizerID, change string, event models.Event) {
	if err := s.notifier.EventChanged(ctx, organizerID, change, event); err != nil {
		s.monitor.TrackNotificationFailure("event_" + change)
		slog.Error("Failed to publish event notification", "event_id", event.ID, "change", change, "error", err)
	}
}

func requireOrganizer(user *models.User) error {
	if user == nil || user.ID == "" {
		return status.ErrUnauthenticated
	}
	if !user.IsOrganizer() {
		return status.ErrForbidden
	}
	return nil
}
