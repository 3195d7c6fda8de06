package services

import (
	"context"
	"fmt"
	"log/slog"

	"ticket-ledger/models"
	"ticket-ledger/utils"

	pubnub "github.com/pubnub/go/v7"
)

// Notifier tells users about completed purchases and organizer changes.
// Delivery is best effort; callers never fail an operation because of it.
type Notifier interface {
	PurchaseCompleted(ctx context.Context, userID string, result *PurchaseResult) error
	EventChanged(ctx context.Context, organizerID, change string, event models.Event) error
}

type NopNotifier struct{}

func (NopNotifier) PurchaseCompleted(context.Context, string, *PurchaseResult) error { return nil }

func (NopNotifier) EventChanged(context.Context, string, string, models.Event) error { return nil }

// Publisher sends a message to a realtime channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, message map[string]any) error
}

// PubNubPublisher publishes through a PubNub client.
type PubNubPublisher struct {
	pn *pubnub.PubNub
}

func NewPubNubPublisher(publishKey, subscribeKey, secretKey, uuid string) *PubNubPublisher {
	cfg := pubnub.NewConfigWithUserId(pubnub.UserId(uuid))
	cfg.PublishKey = publishKey
	cfg.SubscribeKey = subscribeKey
	cfg.SecretKey = secretKey
	return &PubNubPublisher{pn: pubnub.NewPubNub(cfg)}
}

func (p *PubNubPublisher) Publish(ctx context.Context, channel string, message map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, st, err := p.pn.Publish().
		Channel(channel).
		Message(message).
		Execute()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	if st.Error != nil {
		return fmt.Errorf("publish to %s: %w", channel, st.Error)
	}
	return nil
}

// NotificationService fans ledger events out to user and organizer channels.
// A circuit breaker stops publishing while the realtime provider is failing.
type NotificationService struct {
	publisher Publisher
	breaker   *utils.CircuitBreaker
}

func NewNotificationService(publisher Publisher, breaker *utils.CircuitBreaker) *NotificationService {
	if breaker == nil {
		breaker = utils.NewCircuitBreaker("notifications")
	}
	return &NotificationService{publisher: publisher, breaker: breaker}
}

func UserChannel(userID string) string {
	return fmt.Sprintf("user-%s", userID)
}

func OrganizerChannel(organizerID string) string {
	return fmt.Sprintf("organizer-%s", organizerID)
}

func (s *NotificationService) PurchaseCompleted(ctx context.Context, userID string, result *PurchaseResult) error {
	if result == nil || len(result.Tickets) == 0 {
		return nil
	}
	ticketIDs := make([]string, 0, len(result.Tickets))
	for _, t := range result.Tickets {
		ticketIDs = append(ticketIDs, t.ID)
	}
	first := result.Tickets[0]
	return s.publish(ctx, UserChannel(userID), map[string]any{
		"type":           "purchase_success",
		"event_id":       first.EventID,
		"ticket_type_id": first.TicketTypeID,
		"ticket_ids":     ticketIDs,
		"reference":      result.Reference,
		"message":        result.Message,
	})
}

func (s *NotificationService) EventChanged(ctx context.Context, organizerID, change string, event models.Event) error {
	return s.publish(ctx, OrganizerChannel(organizerID), map[string]any{
		"type":       "event_" + change,
		"event_id":   event.ID,
		"title":      event.Title,
		"total_sold": event.TotalSold(),
	})
}

func (s *NotificationService) publish(ctx context.Context, channel string, message map[string]any) error {
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.publisher.Publish(ctx, channel, message)
	})
	if err != nil {
		slog.Warn("Notification not delivered",
			"channel", channel,
			"type", message["type"],
			"breaker", s.breaker.State().String(),
			"error", err,
		)
	}
	return err
}
