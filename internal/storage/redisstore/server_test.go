package redisstore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"ticket-ledger/internal/services"
	"ticket-ledger/internal/status"
	"ticket-ledger/internal/storage/storetest"
	"ticket-ledger/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newServerStore runs the store against an in-process Redis so the sale
// script and the WATCH transactions really execute.
func newServerStore(t *testing.T) (*Store, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client), client
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) services.InventoryStore {
		store, _ := newServerStore(t)
		return store
	})
}

func TestCreateEventDuplicate(t *testing.T) {
	store, _ := newServerStore(t)
	ctx := context.Background()
	event := storetest.Event("e1", "org-1", map[string]int{"general": 100}, "general")

	var wg sync.WaitGroup
	var created, rejected atomic.Int64
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.CreateEvent(ctx, event)
			switch {
			case err == nil:
				created.Add(1)
			case assert.ErrorIs(t, err, status.ErrInvalidEvent):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, created.Load())
	assert.EqualValues(t, 9, rejected.Load())
}

func TestListEventsDuringCreate(t *testing.T) {
	store, _ := newServerStore(t)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			event := storetest.Event(fmt.Sprintf("e%d", i), "org-1", map[string]int{"general": 10, "vip": 5}, "general", "vip")
			assert.NoError(t, store.CreateEvent(ctx, event))
		}
	}()

	for {
		select {
		case <-done:
			events, err := store.ListEvents(ctx, models.EventFilter{})
			require.NoError(t, err)
			assert.Len(t, events, 50)
			return
		default:
			events, err := store.ListEvents(ctx, models.EventFilter{})
			require.NoError(t, err)
			for _, e := range events {
				require.Len(t, e.TicketTypes, 2)
			}
		}
	}
}

func TestCommitSaleReturnsLiveCapacity(t *testing.T) {
	store, client := newServerStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateEvent(ctx, storetest.Event("e1", "org-1", map[string]int{"general": 10}, "general")))

	var seq atomic.Int64
	mint := storetest.Mint(&seq, "user-a", "e1", "general", 2)
	updated, tickets, err := store.CommitSale(ctx,
		models.Sale{EventID: "e1", TicketTypeID: "general", UserID: "user-a", Quantity: 2},
		func(current models.TicketType) ([]models.Ticket, error) {
			// An organizer raises capacity while the tickets are minted.
			require.NoError(t, client.HSet(ctx, ticketTypeKey("e1", "general"), "capacity", 25).Err())
			return mint(current)
		})
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.Equal(t, 2, updated.Sold)
	assert.Equal(t, 25, updated.Capacity)
	assert.Equal(t, 23, updated.Available())

	stored, err := store.GetTicketType(ctx, "e1", "general")
	require.NoError(t, err)
	assert.Equal(t, updated, stored)
}

func TestCommitSaleScriptRejectsOversell(t *testing.T) {
	store, client := newServerStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateEvent(ctx, storetest.Event("e1", "org-1", map[string]int{"general": 3}, "general")))

	var seq atomic.Int64
	mint := storetest.Mint(&seq, "user-a", "e1", "general", 2)
	_, _, err := store.CommitSale(ctx,
		models.Sale{EventID: "e1", TicketTypeID: "general", UserID: "user-a", Quantity: 2},
		func(current models.TicketType) ([]models.Ticket, error) {
			// Another buyer takes two seats between the read and the script.
			require.NoError(t, client.HIncrBy(ctx, ticketTypeKey("e1", "general"), "sold", 2).Err())
			return mint(current)
		})
	assert.ErrorIs(t, err, status.ErrInsufficientInventory)

	tt, err := store.GetTicketType(ctx, "e1", "general")
	require.NoError(t, err)
	assert.Equal(t, 2, tt.Sold)
	owned, err := store.TicketsByUser(ctx, "user-a")
	require.NoError(t, err)
	assert.Empty(t, owned)
}
