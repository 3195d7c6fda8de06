package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ticket-ledger/internal/storage/memory"
	"ticket-ledger/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var (
	organizer1 = &models.User{ID: "O1", Name: "Ama Mensah", Email: "ama@example.com", Role: models.RoleOrganizer}
	organizer2 = &models.User{ID: "O2", Name: "Kofi Boateng", Email: "kofi@example.com", Role: models.RoleOrganizer}
	userA      = &models.User{ID: "userA", Name: "Esi Owusu", Email: "esi@example.com", Role: models.RoleAttendee}
	userB      = &models.User{ID: "userB", Name: "Yaw Asante", Email: "yaw@example.com", Role: models.RoleAttendee}
)

var testStart = time.Date(2025, time.July, 5, 10, 0, 0, 0, time.UTC)

// countingStore records how often a sale reached the store.
type countingStore struct {
	InventoryStore
	commits atomic.Int64
}

func (s *countingStore) CommitSale(ctx context.Context, sale models.Sale, mint models.MintFunc) (models.TicketType, []models.Ticket, error) {
	s.commits.Add(1)
	return s.InventoryStore.CommitSale(ctx, sale, mint)
}

type recordingNotifier struct {
	mu        sync.Mutex
	purchases []string
	changes   []string
	err       error
}

func (n *recordingNotifier) PurchaseCompleted(_ context.Context, userID string, result *PurchaseResult) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.purchases = append(n.purchases, fmt.Sprintf("%s:%d", userID, len(result.Tickets)))
	return n.err
}

func (n *recordingNotifier) EventChanged(_ context.Context, organizerID, change string, event models.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, fmt.Sprintf("%s:%s:%s", organizerID, change, event.ID))
	return n.err
}

type fixture struct {
	store    *countingStore
	issuer   *TicketIssuer
	notifier *recordingNotifier
	booking  *BookingService
	events   *EventService
}

func sequence(prefix string) func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%s-%d", prefix, n.Add(1))
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := &countingStore{InventoryStore: memory.New()}
	issuer := NewTicketIssuer("test-secret")
	issuer.newID = sequence("tkt")
	issuer.now = func() time.Time { return testStart }
	notifier := &recordingNotifier{}

	events := NewEventService(store, notifier, nil)
	events.newID = sequence("id")
	events.now = func() time.Time { return testStart }

	return &fixture{
		store:    store,
		issuer:   issuer,
		notifier: notifier,
		booking:  NewBookingService(store, issuer, notifier, nil),
		events:   events,
	}
}

// seed stores event E1 owned by O1 with ticket type T1.
func (f *fixture) seed(t *testing.T, capacity, sold int, price int64) {
	t.Helper()
	event := models.Event{
		ID:            "E1",
		Title:         "Accra Jazz Festival",
		Description:   "An evening of jazz by the sea",
		StartTime:     testStart.Add(72 * time.Hour),
		EndTime:       testStart.Add(78 * time.Hour),
		Location:      models.Location{Address: "Labadi Beach, Accra"},
		Category:      "Music",
		OrganizerID:   organizer1.ID,
		OrganizerName: organizer1.Name,
		TicketTypes: []models.TicketType{{
			ID:       "T1",
			Name:     "Regular",
			Price:    decimal.NewFromInt(price),
			Currency: "GHS",
			Capacity: capacity,
			Sold:     sold,
		}},
		CreatedAt: testStart,
		UpdatedAt: testStart,
	}
	require.NoError(t, f.store.CreateEvent(context.Background(), event))
}

func (f *fixture) sold(t *testing.T) int {
	t.Helper()
	tt, err := f.store.GetTicketType(context.Background(), "E1", "T1")
	require.NoError(t, err)
	return tt.Sold
}

func draft() models.EventDraft {
	return models.EventDraft{
		Title:       "Ghana Tech Summit",
		Description: "Startups, cloud and AI",
		StartTime:   testStart.Add(24 * time.Hour),
		EndTime:     testStart.Add(32 * time.Hour),
		Location:    models.Location{VirtualLink: "https://meet.example.com/summit"},
		Category:    "Technology",
		Tags:        []string{"AI", "Cloud"},
		Featured:    true,
		TicketTypes: []models.TicketTypeDraft{
			{Name: "Standard", Price: decimal.RequireFromString("50.50"), Currency: "ghs", Capacity: 100},
			{Name: "VIP", Price: decimal.NewFromInt(100), Currency: "GHS", Capacity: 10},
		},
	}
}
