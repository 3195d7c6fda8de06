package cmd

import (
	"context"
	"log/slog"
	"time"

	"ticket-ledger/internal/services"
	"ticket-ledger/models"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// sampleOrganizer owns the seeded catalog.
var sampleOrganizer = &models.User{
	ID:    "organizer-demo",
	Name:  "Accra Events Co.",
	Email: "events@example.com",
	Role:  models.RoleOrganizer,
}

func newSeedCommand(eventService *services.EventService) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the sample event catalog into the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			return seedCatalog(cmd.Context(), eventService)
		},
	}
}

// seedCatalog creates the sample events unless the ledger already has events.
func seedCatalog(ctx context.Context, eventService *services.EventService) error {
	existing, err := eventService.ListEvents(ctx, models.EventFilter{})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		slog.Info("Catalog already populated, skipping seed", "events", len(existing))
		return nil
	}

	for _, draft := range sampleCatalog(time.Now().UTC()) {
		event, err := eventService.CreateEvent(ctx, sampleOrganizer, draft)
		if err != nil {
			return err
		}
		slog.Info("Seeded event", "event_id", event.ID, "title", event.Title)
	}
	return nil
}

func sampleCatalog(now time.Time) []models.EventDraft {
	day := now.Truncate(24 * time.Hour)
	at := func(days, hour int) time.Time {
		return day.AddDate(0, 0, days).Add(time.Duration(hour) * time.Hour)
	}
	ghs := func(price int64, name string, capacity int) models.TicketTypeDraft {
		return models.TicketTypeDraft{Name: name, Price: decimal.NewFromInt(price), Currency: "GHS", Capacity: capacity}
	}

	return []models.EventDraft{
		{
			Title:       "Accra Jazz Festival",
			Description: "An evening of live jazz by the sea with local and international artists.",
			StartTime:   at(14, 18),
			EndTime:     at(14, 23),
			Location:    models.Location{Address: "Labadi Beach, Accra"},
			Category:    "Music",
			Tags:        []string{"jazz", "live"},
			Featured:    true,
			TicketTypes: []models.TicketTypeDraft{ghs(150, "Regular", 500), ghs(400, "VIP", 50)},
		},
		{
			Title:       "Ghana Tech Summit",
			Description: "Talks and workshops on startups, cloud and AI.",
			StartTime:   at(21, 9),
			EndTime:     at(21, 17),
			Location:    models.Location{Address: "Accra International Conference Centre"},
			Category:    "Technology",
			Tags:        []string{"ai", "startups"},
			Featured:    true,
			TicketTypes: []models.TicketTypeDraft{ghs(50, "Standard", 300), ghs(200, "Workshop Pass", 40)},
		},
		{
			Title:       "Kumasi Food Fair",
			Description: "Street food, cooking demos and tastings from across the region.",
			StartTime:   at(30, 11),
			EndTime:     at(30, 20),
			Location:    models.Location{Address: "Manhyia Palace Grounds, Kumasi"},
			Category:    "Food & Drink",
			TicketTypes: []models.TicketTypeDraft{ghs(30, "Entry", 1000)},
		},
		{
			Title:       "Remote Product Design Meetup",
			Description: "Monthly online meetup for product designers.",
			StartTime:   at(7, 19),
			EndTime:     at(7, 21),
			Location:    models.Location{VirtualLink: "https://meet.example.com/design"},
			Category:    "Technology",
			Tags:        []string{"design"},
			TicketTypes: []models.TicketTypeDraft{ghs(0, "Free", 200)},
		},
	}
}
