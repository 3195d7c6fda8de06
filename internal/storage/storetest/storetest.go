// Package storetest holds the behaviour every inventory store must share.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ticket-ledger/internal/services"
	"ticket-ledger/internal/status"
	"ticket-ledger/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store.
type Factory func(t *testing.T) services.InventoryStore

var base = time.Date(2025, time.June, 14, 18, 0, 0, 0, time.UTC)

// Event returns a valid event with one ticket type per (id, capacity) pair,
// each priced 50 GHS.
func Event(id, organizerID string, capacities map[string]int, order ...string) models.Event {
	e := models.Event{
		ID:            id,
		Title:         "Accra Tech Summit " + id,
		Description:   "Talks and workshops",
		StartTime:     base,
		EndTime:       base.Add(8 * time.Hour),
		Location:      models.Location{Address: "Accra International Conference Centre"},
		Category:      "Technology",
		Tags:          []string{"tech", "technology"},
		OrganizerID:   organizerID,
		OrganizerName: "Organizer " + organizerID,
		CreatedAt:     base.Add(-24 * time.Hour),
		UpdatedAt:     base.Add(-24 * time.Hour),
	}
	for _, ttID := range order {
		e.TicketTypes = append(e.TicketTypes, models.TicketType{
			ID:       ttID,
			Name:     "Ticket " + ttID,
			Price:    decimal.NewFromInt(50),
			Currency: "GHS",
			Capacity: capacities[ttID],
		})
	}
	return e
}

// Mint returns a MintFunc producing quantity tickets with ids drawn from seq.
func Mint(seq *atomic.Int64, userID, eventID, ticketTypeID string, quantity int) models.MintFunc {
	return func(current models.TicketType) ([]models.Ticket, error) {
		out := make([]models.Ticket, 0, quantity)
		for i := 0; i < quantity; i++ {
			id := fmt.Sprintf("tkt-%d", seq.Add(1))
			out = append(out, models.Ticket{
				ID:             id,
				UserID:         userID,
				EventID:        eventID,
				TicketTypeID:   ticketTypeID,
				EventTitle:     "event " + eventID,
				TicketTypeName: current.Name,
				Price:          current.Price,
				Currency:       current.Currency,
				IssuedAt:       base,
				ScanToken:      "token-" + id,
			})
		}
		return out, nil
	}
}

func sale(eventID, ttID, userID string, q int) models.Sale {
	return models.Sale{EventID: eventID, TicketTypeID: ttID, UserID: userID, Quantity: q}
}

// Run exercises newStore against the inventory contract.
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("create and get event", func(t *testing.T) {
		store := newStore(t)
		want := Event("e1", "org-1", map[string]int{"general": 100, "vip": 10}, "general", "vip")
		require.NoError(t, store.CreateEvent(ctx, want))

		got, err := store.GetEvent(ctx, "e1")
		require.NoError(t, err)
		assert.Equal(t, want.Title, got.Title)
		assert.Equal(t, want.Location, got.Location)
		assert.Equal(t, want.Tags, got.Tags)
		assert.True(t, want.StartTime.Equal(got.StartTime))
		require.Len(t, got.TicketTypes, 2)
		assert.Equal(t, "general", got.TicketTypes[0].ID)
		assert.Equal(t, "vip", got.TicketTypes[1].ID)
		assert.True(t, decimal.NewFromInt(50).Equal(got.TicketTypes[0].Price))
		assert.Equal(t, 100, got.TicketTypes[0].Capacity)
		assert.Zero(t, got.TicketTypes[0].Sold)

		tt, err := store.GetTicketType(ctx, "e1", "vip")
		require.NoError(t, err)
		assert.Equal(t, 10, tt.Capacity)
	})

	t.Run("missing event and ticket type", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.CreateEvent(ctx, Event("e1", "org-1", map[string]int{"general": 1}, "general")))

		_, err := store.GetEvent(ctx, "nope")
		assert.ErrorIs(t, err, status.ErrEventNotFound)
		_, err = store.GetTicketType(ctx, "nope", "general")
		assert.ErrorIs(t, err, status.ErrEventNotFound)
		_, err = store.GetTicketType(ctx, "e1", "nope")
		assert.ErrorIs(t, err, status.ErrTicketTypeNotFound)
	})

	t.Run("duplicate event id", func(t *testing.T) {
		store := newStore(t)
		e := Event("e1", "org-1", map[string]int{"general": 1}, "general")
		require.NoError(t, store.CreateEvent(ctx, e))
		assert.ErrorIs(t, store.CreateEvent(ctx, e), status.ErrInvalidEvent)
	})

	t.Run("invalid event is rejected", func(t *testing.T) {
		store := newStore(t)
		e := Event("e1", "org-1", nil)
		assert.ErrorIs(t, store.CreateEvent(ctx, e), status.ErrInvalidEvent)
		_, err := store.GetEvent(ctx, "e1")
		assert.ErrorIs(t, err, status.ErrEventNotFound)
	})

	t.Run("list events filters and orders", func(t *testing.T) {
		store := newStore(t)
		music := Event("e2", "org-2", map[string]int{"general": 5}, "general")
		music.Title = "Highlife Night"
		music.Description = "Live band"
		music.Category = "Music"
		music.Featured = true
		music.StartTime = base.Add(-48 * time.Hour)
		music.EndTime = music.StartTime.Add(4 * time.Hour)
		require.NoError(t, store.CreateEvent(ctx, Event("e1", "org-1", map[string]int{"general": 5}, "general")))
		require.NoError(t, store.CreateEvent(ctx, music))
		require.NoError(t, store.CreateEvent(ctx, Event("e3", "org-1", map[string]int{"general": 5}, "general")))

		all, err := store.ListEvents(ctx, models.EventFilter{})
		require.NoError(t, err)
		assert.Equal(t, []string{"e2", "e1", "e3"}, ids(all))

		byCategory, err := store.ListEvents(ctx, models.EventFilter{Category: "Technology"})
		require.NoError(t, err)
		assert.Equal(t, []string{"e1", "e3"}, ids(byCategory))

		allCategory, err := store.ListEvents(ctx, models.EventFilter{Category: models.AllCategories})
		require.NoError(t, err)
		assert.Len(t, allCategory, 3)

		search, err := store.ListEvents(ctx, models.EventFilter{Search: "highlife"})
		require.NoError(t, err)
		assert.Equal(t, []string{"e2"}, ids(search))

		featured, err := store.ListEvents(ctx, models.EventFilter{FeaturedOnly: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"e2"}, ids(featured))

		mine, err := store.ListEvents(ctx, models.EventFilter{OrganizerID: "org-1"})
		require.NoError(t, err)
		assert.Equal(t, []string{"e1", "e3"}, ids(mine))
	})

	t.Run("commit sale", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.CreateEvent(ctx, Event("e1", "org-1", map[string]int{"general": 100}, "general")))
		var seq atomic.Int64

		updated, tickets, err := store.CommitSale(ctx, sale("e1", "general", "user-a", 2), Mint(&seq, "user-a", "e1", "general", 2))
		require.NoError(t, err)
		assert.Equal(t, 2, updated.Sold)
		require.Len(t, tickets, 2)
		for _, tk := range tickets {
			assert.True(t, decimal.NewFromInt(50).Equal(tk.Price))
			assert.Equal(t, "GHS", tk.Currency)
		}

		tt, err := store.GetTicketType(ctx, "e1", "general")
		require.NoError(t, err)
		assert.Equal(t, 2, tt.Sold)

		_, _, err = store.CommitSale(ctx, sale("e1", "general", "user-a", 1), Mint(&seq, "user-a", "e1", "general", 1))
		require.NoError(t, err)

		owned, err := store.TicketsByUser(ctx, "user-a")
		require.NoError(t, err)
		assert.Equal(t, []string{"tkt-1", "tkt-2", "tkt-3"}, ticketIDs(owned))

		got, err := store.GetTicket(ctx, "tkt-2")
		require.NoError(t, err)
		assert.Equal(t, "user-a", got.UserID)
		assert.Equal(t, "token-tkt-2", got.ScanToken)
		assert.True(t, base.Equal(got.IssuedAt))

		_, err = store.GetTicket(ctx, "tkt-404")
		assert.ErrorIs(t, err, status.ErrTicketNotFound)

		none, err := store.TicketsByUser(ctx, "user-b")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("commit sale rejects", func(t *testing.T) {
		store := newStore(t)
		e := Event("e1", "org-1", map[string]int{"general": 5}, "general")
		e.TicketTypes[0].Sold = 5
		require.NoError(t, store.CreateEvent(ctx, e))
		var seq atomic.Int64
		minted := false
		mint := func(models.TicketType) ([]models.Ticket, error) {
			minted = true
			return nil, nil
		}

		_, _, err := store.CommitSale(ctx, sale("e1", "general", "user-a", 1), mint)
		assert.ErrorIs(t, err, status.ErrInsufficientInventory)
		_, _, err = store.CommitSale(ctx, sale("nope", "general", "user-a", 1), mint)
		assert.ErrorIs(t, err, status.ErrEventNotFound)
		_, _, err = store.CommitSale(ctx, sale("e1", "nope", "user-a", 1), mint)
		assert.ErrorIs(t, err, status.ErrTicketTypeNotFound)
		_, _, err = store.CommitSale(ctx, sale("e1", "general", "user-a", 0), Mint(&seq, "user-a", "e1", "general", 0))
		assert.ErrorIs(t, err, status.ErrInvalidQuantity)
		assert.False(t, minted)

		tt, err := store.GetTicketType(ctx, "e1", "general")
		require.NoError(t, err)
		assert.Equal(t, 5, tt.Sold)
		owned, err := store.TicketsByUser(ctx, "user-a")
		require.NoError(t, err)
		assert.Empty(t, owned)
	})

	t.Run("failed mint applies nothing", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.CreateEvent(ctx, Event("e1", "org-1", map[string]int{"general": 5}, "general")))
		boom := errors.New("mint failed")

		_, _, err := store.CommitSale(ctx, sale("e1", "general", "user-a", 2), func(models.TicketType) ([]models.Ticket, error) {
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)

		tt, err := store.GetTicketType(ctx, "e1", "general")
		require.NoError(t, err)
		assert.Zero(t, tt.Sold)
		owned, err := store.TicketsByUser(ctx, "user-a")
		require.NoError(t, err)
		assert.Empty(t, owned)
	})

	t.Run("concurrent sales never oversell", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.CreateEvent(ctx, Event("e1", "org-1", map[string]int{"general": 10, "vip": 3}, "general", "vip")))
		var seq atomic.Int64
		var wins atomic.Int64

		var wg sync.WaitGroup
		for i := 0; i < 40; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				tt := "general"
				if i%2 == 1 {
					tt = "vip"
				}
				user := fmt.Sprintf("user-%d", i)
				_, _, err := store.CommitSale(ctx, sale("e1", tt, user, 1), Mint(&seq, user, "e1", tt, 1))
				if err == nil {
					wins.Add(1)
					return
				}
				assert.ErrorIs(t, err, status.ErrInsufficientInventory)
			}(i)
		}
		wg.Wait()

		event, err := store.GetEvent(ctx, "e1")
		require.NoError(t, err)
		assert.Equal(t, 10, event.TicketTypes[0].Sold)
		assert.Equal(t, 3, event.TicketTypes[1].Sold)
		assert.Equal(t, int64(13), wins.Load())
	})

	t.Run("last seat goes to exactly one buyer", func(t *testing.T) {
		store := newStore(t)
		e := Event("e1", "org-1", map[string]int{"general": 5}, "general")
		e.TicketTypes[0].Sold = 4
		require.NoError(t, store.CreateEvent(ctx, e))
		var seq atomic.Int64

		errs := make([]error, 2)
		var wg sync.WaitGroup
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				user := fmt.Sprintf("user-%d", i)
				_, _, errs[i] = store.CommitSale(ctx, sale("e1", "general", user, 1), Mint(&seq, user, "e1", "general", 1))
			}(i)
		}
		wg.Wait()

		var ok, rejected int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, status.ErrInsufficientInventory):
				rejected++
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, 1, rejected)

		tt, err := store.GetTicketType(ctx, "e1", "general")
		require.NoError(t, err)
		assert.Equal(t, 5, tt.Sold)
	})

	t.Run("update event keeps sold", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.CreateEvent(ctx, Event("e1", "org-1", map[string]int{"general": 10, "vip": 5}, "general", "vip")))
		var seq atomic.Int64
		_, _, err := store.CommitSale(ctx, sale("e1", "general", "user-a", 3), Mint(&seq, "user-a", "e1", "general", 3))
		require.NoError(t, err)

		updated, err := store.UpdateEvent(ctx, "e1", func(current models.Event) (models.Event, error) {
			assert.Equal(t, 3, current.TicketTypes[0].Sold)
			current.Title = "Renamed"
			current.TicketTypes[0].Price = decimal.NewFromInt(75)
			current.TicketTypes[0].Sold = 0
			current.TicketTypes = append(current.TicketTypes[:1], models.TicketType{
				ID: "early", Name: "Early bird", Price: decimal.NewFromInt(30), Currency: "GHS", Capacity: 20, Sold: 7,
			})
			return current, nil
		})
		require.NoError(t, err)
		assert.Equal(t, "Renamed", updated.Title)
		assert.Equal(t, 3, updated.TicketTypes[0].Sold)
		assert.Zero(t, updated.TicketTypes[1].Sold)

		got, err := store.GetEvent(ctx, "e1")
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Title)
		assert.Equal(t, []string{"general", "early"}, typeIDs(got))
		assert.Equal(t, 3, got.TicketTypes[0].Sold)
		assert.True(t, decimal.NewFromInt(75).Equal(got.TicketTypes[0].Price))
		assert.Zero(t, got.TicketTypes[1].Sold)

		_, err = store.GetTicketType(ctx, "e1", "vip")
		assert.ErrorIs(t, err, status.ErrTicketTypeNotFound)

		// Sales after the edit use the new price.
		_, tickets, err := store.CommitSale(ctx, sale("e1", "general", "user-a", 1), Mint(&seq, "user-a", "e1", "general", 1))
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(75).Equal(tickets[0].Price))
	})

	t.Run("update event rejections leave it unchanged", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.CreateEvent(ctx, Event("e1", "org-1", map[string]int{"general": 10}, "general")))
		var seq atomic.Int64
		_, _, err := store.CommitSale(ctx, sale("e1", "general", "user-a", 4), Mint(&seq, "user-a", "e1", "general", 4))
		require.NoError(t, err)

		_, err = store.UpdateEvent(ctx, "e1", func(current models.Event) (models.Event, error) {
			return models.Event{}, status.ErrForbidden
		})
		assert.ErrorIs(t, err, status.ErrForbidden)

		_, err = store.UpdateEvent(ctx, "e1", func(current models.Event) (models.Event, error) {
			current.TicketTypes[0].Capacity = 3
			return current, nil
		})
		assert.ErrorIs(t, err, status.ErrInvalidTicketType)

		_, err = store.UpdateEvent(ctx, "e1", func(current models.Event) (models.Event, error) {
			current.TicketTypes[0].ID = "replacement"
			return current, nil
		})
		assert.ErrorIs(t, err, status.ErrInvalidTicketType)

		_, err = store.UpdateEvent(ctx, "nope", func(current models.Event) (models.Event, error) {
			return current, nil
		})
		assert.ErrorIs(t, err, status.ErrEventNotFound)

		got, err := store.GetEvent(ctx, "e1")
		require.NoError(t, err)
		assert.Equal(t, "Accra Tech Summit e1", got.Title)
		assert.Equal(t, 10, got.TicketTypes[0].Capacity)
		assert.Equal(t, 4, got.TicketTypes[0].Sold)
	})

	t.Run("delete event keeps issued tickets", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.CreateEvent(ctx, Event("e1", "org-1", map[string]int{"general": 10}, "general")))
		var seq atomic.Int64
		_, _, err := store.CommitSale(ctx, sale("e1", "general", "user-a", 1), Mint(&seq, "user-a", "e1", "general", 1))
		require.NoError(t, err)

		require.NoError(t, store.DeleteEvent(ctx, "e1"))
		assert.ErrorIs(t, store.DeleteEvent(ctx, "e1"), status.ErrEventNotFound)

		_, err = store.GetEvent(ctx, "e1")
		assert.ErrorIs(t, err, status.ErrEventNotFound)
		_, _, err = store.CommitSale(ctx, sale("e1", "general", "user-a", 1), Mint(&seq, "user-a", "e1", "general", 1))
		assert.ErrorIs(t, err, status.ErrEventNotFound)

		owned, err := store.TicketsByUser(ctx, "user-a")
		require.NoError(t, err)
		assert.Len(t, owned, 1)
	})
}

func ids(events []models.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func typeIDs(e models.Event) []string {
	out := make([]string, len(e.TicketTypes))
	for i, tt := range e.TicketTypes {
		out[i] = tt.ID
	}
	return out
}

func ticketIDs(tickets []models.Ticket) []string {
	out := make([]string, len(tickets))
	for i, t := range tickets {
		out[i] = t.ID
	}
	return out
}
