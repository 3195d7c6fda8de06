package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"

	"ticket-ledger/internal/status"
	"ticket-ledger/internal/storage/storetest"
	"ticket-ledger/models"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generalFields(price string, sold string) map[string]string {
	return map[string]string{
		"name":     "Ticket general",
		"price":    price,
		"currency": "GHS",
		"capacity": "100",
		"sold":     sold,
	}
}

func expectedTickets(t *testing.T, price decimal.Decimal, quantity int) ([]models.Ticket, []any) {
	t.Helper()
	var seq atomic.Int64
	tickets, err := storetest.Mint(&seq, "user-a", "e1", "general", quantity)(models.TicketType{
		ID: "general", Name: "Ticket general", Price: price, Currency: "GHS", Capacity: 100,
	})
	require.NoError(t, err)

	ids := make([]any, 0, quantity)
	payloads := make([]any, 0, quantity)
	for _, tk := range tickets {
		b, err := json.Marshal(tk)
		require.NoError(t, err)
		ids = append(ids, tk.ID)
		payloads = append(payloads, string(b))
	}
	return tickets, append(ids, payloads...)
}

func saleKeys(tickets []models.Ticket) []string {
	keys := []string{"ticket_type:e1:general", "user:tickets:user-a"}
	for _, tk := range tickets {
		keys = append(keys, "ticket:"+tk.ID)
	}
	return keys
}

func TestGetEvent(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := New(db)
	ctx := context.Background()

	event := storetest.Event("e1", "org-1", map[string]int{"general": 100}, "general")
	encoded, err := encodeEvent(event)
	require.NoError(t, err)

	mock.ExpectGet("event:e1").SetVal(encoded)
	mock.ExpectHGetAll("ticket_type:e1:general").SetVal(generalFields("50", "7"))

	got, err := store.GetEvent(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, event.Title, got.Title)
	require.Len(t, got.TicketTypes, 1)
	assert.Equal(t, 7, got.TicketTypes[0].Sold)
	assert.True(t, decimal.NewFromInt(50).Equal(got.TicketTypes[0].Price))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEventNotFound(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := New(db)

	mock.ExpectGet("event:nope").RedisNil()

	_, err := store.GetEvent(context.Background(), "nope")
	assert.ErrorIs(t, err, status.ErrEventNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTicketTypeNotFound(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := New(db)
	ctx := context.Background()

	mock.ExpectHGetAll("ticket_type:e1:nope").SetVal(map[string]string{})
	mock.ExpectExists("event:e1").SetVal(1)
	mock.ExpectHGetAll("ticket_type:e2:general").SetVal(map[string]string{})
	mock.ExpectExists("event:e2").SetVal(0)

	_, err := store.GetTicketType(ctx, "e1", "nope")
	assert.ErrorIs(t, err, status.ErrTicketTypeNotFound)
	_, err = store.GetTicketType(ctx, "e2", "general")
	assert.ErrorIs(t, err, status.ErrEventNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitSale(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := New(db)

	want, args := expectedTickets(t, decimal.NewFromInt(50), 2)
	mock.ExpectHGetAll("ticket_type:e1:general").SetVal(generalFields("50", "0"))
	mock.ExpectEval(commitSaleScript, saleKeys(want), append([]any{2, "50", "GHS"}, args...)...).SetVal([]any{int64(2), int64(100)})

	var seq atomic.Int64
	updated, tickets, err := store.CommitSale(context.Background(),
		models.Sale{EventID: "e1", TicketTypeID: "general", UserID: "user-a", Quantity: 2},
		storetest.Mint(&seq, "user-a", "e1", "general", 2))
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Sold)
	assert.Equal(t, 98, updated.Available())
	require.Len(t, tickets, 2)
	assert.Equal(t, want[0].ID, tickets[0].ID)
	assert.Equal(t, want[1].ScanToken, tickets[1].ScanToken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitSaleInsufficientInventory(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := New(db)

	want, args := expectedTickets(t, decimal.NewFromInt(50), 1)
	mock.ExpectHGetAll("ticket_type:e1:general").SetVal(generalFields("50", "99"))
	mock.ExpectEval(commitSaleScript, saleKeys(want), append([]any{1, "50", "GHS"}, args...)...).SetVal([]any{int64(0), int64(100)})

	var seq atomic.Int64
	_, _, err := store.CommitSale(context.Background(),
		models.Sale{EventID: "e1", TicketTypeID: "general", UserID: "user-a", Quantity: 1},
		storetest.Mint(&seq, "user-a", "e1", "general", 1))
	assert.ErrorIs(t, err, status.ErrInsufficientInventory)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitSaleSoldOutSkipsScript(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := New(db)

	fields := generalFields("50", "100")
	mock.ExpectHGetAll("ticket_type:e1:general").SetVal(fields)

	_, _, err := store.CommitSale(context.Background(),
		models.Sale{EventID: "e1", TicketTypeID: "general", UserID: "user-a", Quantity: 1},
		func(models.TicketType) ([]models.Ticket, error) {
			t.Fatal("mint must not run when sold out")
			return nil, nil
		})
	assert.ErrorIs(t, err, status.ErrInsufficientInventory)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitSaleRemintsAfterPriceChange(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := New(db)

	stale, staleArgs := expectedTickets(t, decimal.NewFromInt(50), 1)
	mock.ExpectHGetAll("ticket_type:e1:general").SetVal(generalFields("50", "0"))
	mock.ExpectEval(commitSaleScript, saleKeys(stale), append([]any{1, "50", "GHS"}, staleArgs...)...).SetVal([]any{int64(-2), int64(0)})

	// The retry mints again, continuing the id sequence.
	var seq atomic.Int64
	seq.Store(1)
	fresh, err := storetest.Mint(&seq, "user-a", "e1", "general", 1)(models.TicketType{
		ID: "general", Name: "Ticket general", Price: decimal.NewFromInt(60), Currency: "GHS", Capacity: 100,
	})
	require.NoError(t, err)
	payload, err := json.Marshal(fresh[0])
	require.NoError(t, err)
	mock.ExpectHGetAll("ticket_type:e1:general").SetVal(generalFields("60", "0"))
	mock.ExpectEval(commitSaleScript, saleKeys(fresh), 1, "60", "GHS", fresh[0].ID, string(payload)).SetVal([]any{int64(1), int64(100)})

	var mintSeq atomic.Int64
	_, tickets, err := store.CommitSale(context.Background(),
		models.Sale{EventID: "e1", TicketTypeID: "general", UserID: "user-a", Quantity: 1},
		storetest.Mint(&mintSeq, "user-a", "e1", "general", 1))
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.True(t, decimal.NewFromInt(60).Equal(tickets[0].Price))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitSaleMintFailure(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := New(db)
	boom := errors.New("mint failed")

	mock.ExpectHGetAll("ticket_type:e1:general").SetVal(generalFields("50", "0"))

	_, _, err := store.CommitSale(context.Background(),
		models.Sale{EventID: "e1", TicketTypeID: "general", UserID: "user-a", Quantity: 1},
		func(models.TicketType) ([]models.Ticket, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTicketsByUser(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := New(db)
	ctx := context.Background()

	want, _ := expectedTickets(t, decimal.NewFromInt(50), 2)
	first, err := json.Marshal(want[0])
	require.NoError(t, err)
	second, err := json.Marshal(want[1])
	require.NoError(t, err)

	mock.ExpectLRange("user:tickets:user-a", 0, -1).SetVal([]string{"tkt-1", "tkt-2"})
	mock.ExpectMGet("ticket:tkt-1", "ticket:tkt-2").SetVal([]any{string(first), string(second)})
	mock.ExpectLRange("user:tickets:user-b", 0, -1).SetVal([]string{})

	got, err := store.TicketsByUser(ctx, "user-a")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "tkt-1", got[0].ID)
	assert.Equal(t, "tkt-2", got[1].ID)

	none, err := store.TicketsByUser(ctx, "user-b")
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTicketNotFound(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := New(db)

	mock.ExpectGet("ticket:tkt-404").RedisNil()

	_, err := store.GetTicket(context.Background(), "tkt-404")
	assert.ErrorIs(t, err, status.ErrTicketNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListEventsFilters(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := New(db)

	tech := storetest.Event("e1", "org-1", map[string]int{"general": 100}, "general")
	music := storetest.Event("e2", "org-2", map[string]int{"general": 100}, "general")
	music.Category = "Music"
	techJSON, err := encodeEvent(tech)
	require.NoError(t, err)
	musicJSON, err := encodeEvent(music)
	require.NoError(t, err)

	mock.ExpectSMembers("events").SetVal([]string{"e1", "e2"})
	mock.ExpectGet("event:e1").SetVal(techJSON)
	mock.ExpectHGetAll("ticket_type:e1:general").SetVal(generalFields("50", "0"))
	mock.ExpectGet("event:e2").SetVal(musicJSON)
	mock.ExpectHGetAll("ticket_type:e2:general").SetVal(generalFields("50", "0"))

	got, err := store.ListEvents(context.Background(), models.EventFilter{Category: "Music"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "e2", got[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
