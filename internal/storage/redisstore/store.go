// Package redisstore keeps the ledger in Redis.
//
//	events                            set of event ids
//	event:{id}                        event JSON; ticket type order and ids
//	ticket_type:{eventID}:{typeID}    hash name, price, currency, capacity, sold
//	ticket:{id}                       ticket JSON
//	user:tickets:{userID}             list of ticket ids in purchase order
//
// The ticket type hash is the only authority on sold. Sales change it in a
// server-side script; organizer edits run under WATCH and never write sold on
// an existing ticket type.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"ticket-ledger/internal/status"
	"ticket-ledger/models"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const maxAttempts = 3

var errContended = errors.New("redisstore: ticket type kept changing")

// commitSaleScript checks stock and price, increments sold and stores the
// tickets in one step.
//
//	KEYS  ticket type hash, user ticket list, ticket:{id}...
//	ARGV  quantity, price, currency, ticket ids..., ticket JSON...
//
// Returns {sold, capacity} after the sale. On rejection the first element is
// 0 when stock is short, -1 when the ticket type is gone, -2 when price or
// currency changed and -3 on a ticket id collision.
const commitSaleScript = `
local fields = redis.call('HMGET', KEYS[1], 'capacity', 'sold', 'price', 'currency')
if not fields[1] then
  return {-1, 0}
end
if fields[3] ~= ARGV[2] or fields[4] ~= ARGV[3] then
  return {-2, 0}
end
local capacity = tonumber(fields[1])
local sold = tonumber(fields[2])
local q = tonumber(ARGV[1])
if capacity - sold < q then
  return {0, capacity}
end
local n = #KEYS - 2
for i = 1, n do
  if redis.call('EXISTS', KEYS[2 + i]) == 1 then
    return {-3, capacity}
  end
end
redis.call('HINCRBY', KEYS[1], 'sold', q)
for i = 1, n do
  redis.call('SET', KEYS[2 + i], ARGV[3 + n + i])
  redis.call('RPUSH', KEYS[2], ARGV[3 + i])
end
return {sold + q, capacity}
`

type Store struct {
	client *redis.Client
}

func New(client *redis.Client) *Store {
	return &Store{client: client}
}

const eventsKey = "events"

func eventKey(id string) string {
	return fmt.Sprintf("event:%s", id)
}

func ticketTypeKey(eventID, ticketTypeID string) string {
	return fmt.Sprintf("ticket_type:%s:%s", eventID, ticketTypeID)
}

func ticketKey(id string) string {
	return fmt.Sprintf("ticket:%s", id)
}

func userTicketsKey(userID string) string {
	return fmt.Sprintf("user:tickets:%s", userID)
}

// ticketTypeFields is what HSET writes for a ticket type, sold excluded.
func ticketTypeFields(tt models.TicketType) []any {
	return []any{
		"name", tt.Name,
		"price", tt.Price.String(),
		"currency", tt.Currency,
		"capacity", tt.Capacity,
	}
}

// encodeEvent stores the event without live sold counts.
func encodeEvent(e models.Event) (string, error) {
	out := e.Clone()
	for i := range out.TicketTypes {
		out.TicketTypes[i].Sold = 0
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode event %s: %w", e.ID, err)
	}
	return string(b), nil
}

func parseTicketType(id string, fields map[string]string) (models.TicketType, error) {
	price, err := decimal.NewFromString(fields["price"])
	if err != nil {
		return models.TicketType{}, fmt.Errorf("decode price of ticket type %s: %w", id, err)
	}
	capacity, err := strconv.Atoi(fields["capacity"])
	if err != nil {
		return models.TicketType{}, fmt.Errorf("decode capacity of ticket type %s: %w", id, err)
	}
	sold, err := strconv.Atoi(fields["sold"])
	if err != nil {
		return models.TicketType{}, fmt.Errorf("decode sold of ticket type %s: %w", id, err)
	}
	return models.TicketType{
		ID:       id,
		Name:     fields["name"],
		Price:    price,
		Currency: fields["currency"],
		Capacity: capacity,
		Sold:     sold,
	}, nil
}

func (s *Store) readEvent(ctx context.Context, c redis.Cmdable, eventID string) (models.Event, error) {
	raw, err := c.Get(ctx, eventKey(eventID)).Result()
	if errors.Is(err, redis.Nil) {
		return models.Event{}, status.ErrEventNotFound
	}
	if err != nil {
		return models.Event{}, fmt.Errorf("load event %s: %w", eventID, err)
	}
	var event models.Event
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return models.Event{}, fmt.Errorf("decode event %s: %w", eventID, err)
	}
	for i, tt := range event.TicketTypes {
		fields, err := c.HGetAll(ctx, ticketTypeKey(eventID, tt.ID)).Result()
		if err != nil {
			return models.Event{}, fmt.Errorf("load ticket type %s: %w", tt.ID, err)
		}
		if len(fields) == 0 {
			return models.Event{}, fmt.Errorf("ticket type %s of event %s is missing", tt.ID, eventID)
		}
		live, err := parseTicketType(tt.ID, fields)
		if err != nil {
			return models.Event{}, err
		}
		event.TicketTypes[i] = live
	}
	return event, nil
}

func (s *Store) GetEvent(ctx context.Context, eventID string) (models.Event, error) {
	return s.readEvent(ctx, s.client, eventID)
}

// readTicketType also returns the raw price so the sale script can compare it
// byte for byte.
func (s *Store) readTicketType(ctx context.Context, eventID, ticketTypeID string) (models.TicketType, string, error) {
	fields, err := s.client.HGetAll(ctx, ticketTypeKey(eventID, ticketTypeID)).Result()
	if err != nil {
		return models.TicketType{}, "", fmt.Errorf("load ticket type %s: %w", ticketTypeID, err)
	}
	if len(fields) == 0 {
		n, err := s.client.Exists(ctx, eventKey(eventID)).Result()
		if err != nil {
			return models.TicketType{}, "", fmt.Errorf("load event %s: %w", eventID, err)
		}
		if n == 0 {
			return models.TicketType{}, "", status.ErrEventNotFound
		}
		return models.TicketType{}, "", status.ErrTicketTypeNotFound
	}
	tt, err := parseTicketType(ticketTypeID, fields)
	if err != nil {
		return models.TicketType{}, "", err
	}
	return tt, fields["price"], nil
}

func (s *Store) GetTicketType(ctx context.Context, eventID, ticketTypeID string) (models.TicketType, error) {
	tt, _, err := s.readTicketType(ctx, eventID, ticketTypeID)
	return tt, err
}

func (s *Store) ListEvents(ctx context.Context, filter models.EventFilter) ([]models.Event, error) {
	ids, err := s.client.SMembers(ctx, eventsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	out := make([]models.Event, 0, len(ids))
	for _, id := range ids {
		event, err := s.GetEvent(ctx, id)
		if errors.Is(err, status.ErrEventNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
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
	encoded, err := encodeEvent(event)
	if err != nil {
		return err
	}

	// The event key and its ticket type hashes land in one MULTI so readers
	// never see one without the other.
	txf := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, eventKey(event.ID)).Result()
		if err != nil {
			return fmt.Errorf("create event: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("%w: event %s already exists", status.ErrInvalidEvent, event.ID)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, tt := range event.TicketTypes {
				fields := append(ticketTypeFields(tt), "sold", tt.Sold)
				pipe.HSet(ctx, ticketTypeKey(event.ID, tt.ID), fields...)
			}
			pipe.Set(ctx, eventKey(event.ID), encoded, 0)
			pipe.SAdd(ctx, eventsKey, event.ID)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, eventKey(event.ID))
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("create event %s: %w", event.ID, errContended)
}

func (s *Store) UpdateEvent(ctx context.Context, eventID string, fn func(current models.Event) (models.Event, error)) (models.Event, error) {
	var updated models.Event
	txf := func(tx *redis.Tx) error {
		current, err := s.readEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(current.TicketTypes))
		for _, tt := range current.TicketTypes {
			keys = append(keys, ticketTypeKey(eventID, tt.ID))
		}
		if err := tx.Watch(ctx, keys...).Err(); err != nil {
			return err
		}
		// Re-read now that the hashes are watched.
		current, err = s.readEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}

		next, err := fn(current.Clone())
		if err != nil {
			return err
		}
		next.ID = current.ID
		next, err = models.CarrySold(next, current)
		if err != nil {
			return err
		}
		if err := next.Validate(); err != nil {
			return err
		}
		encoded, err := encodeEvent(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, eventKey(eventID), encoded, 0)
			for _, tt := range next.TicketTypes {
				key := ticketTypeKey(eventID, tt.ID)
				pipe.HSet(ctx, key, ticketTypeFields(tt)...)
				pipe.HSetNX(ctx, key, "sold", 0)
			}
			for _, tt := range current.TicketTypes {
				if _, ok := next.TicketType(tt.ID); !ok {
					pipe.Del(ctx, ticketTypeKey(eventID, tt.ID))
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		updated = next
		return nil
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, eventKey(eventID))
		if errors.Is(err, redis.TxFailedErr) {
			slog.Debug("Event update raced a sale, retrying", "event_id", eventID, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return models.Event{}, err
		}
		return updated, nil
	}
	return models.Event{}, fmt.Errorf("update event %s: %w", eventID, errContended)
}

func (s *Store) DeleteEvent(ctx context.Context, eventID string) error {
	txf := func(tx *redis.Tx) error {
		current, err := s.readEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, tt := range current.TicketTypes {
				pipe.Del(ctx, ticketTypeKey(eventID, tt.ID))
			}
			pipe.Del(ctx, eventKey(eventID))
			pipe.SRem(ctx, eventsKey, eventID)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, eventKey(eventID))
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("delete event %s: %w", eventID, errContended)
}

func (s *Store) CommitSale(ctx context.Context, sale models.Sale, mint models.MintFunc) (models.TicketType, []models.Ticket, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		current, rawPrice, err := s.readTicketType(ctx, sale.EventID, sale.TicketTypeID)
		if err != nil {
			return models.TicketType{}, nil, err
		}
		next, err := current.WithSale(sale.Quantity)
		if err != nil {
			return models.TicketType{}, nil, err
		}

		tickets, err := mint(current)
		if err != nil {
			return models.TicketType{}, nil, err
		}
		if len(tickets) != sale.Quantity {
			return models.TicketType{}, nil, fmt.Errorf("%w: minted %d of %d tickets", status.ErrTicketIssueFailed, len(tickets), sale.Quantity)
		}

		keys := []string{ticketTypeKey(sale.EventID, sale.TicketTypeID), userTicketsKey(sale.UserID)}
		args := []any{sale.Quantity, rawPrice, current.Currency}
		payloads := make([]any, 0, len(tickets))
		for _, t := range tickets {
			b, err := json.Marshal(t)
			if err != nil {
				return models.TicketType{}, nil, fmt.Errorf("encode ticket %s: %w", t.ID, err)
			}
			keys = append(keys, ticketKey(t.ID))
			args = append(args, t.ID)
			payloads = append(payloads, string(b))
		}
		args = append(args, payloads...)

		res, err := s.client.Eval(ctx, commitSaleScript, keys, args...).Int64Slice()
		if err != nil {
			return models.TicketType{}, nil, fmt.Errorf("commit sale: %w", err)
		}
		if len(res) != 2 {
			return models.TicketType{}, nil, fmt.Errorf("commit sale: unexpected script reply %v", res)
		}
		switch code := res[0]; {
		case code > 0:
			next.Sold = int(code)
			next.Capacity = int(res[1])
			return next, tickets, nil
		case code == 0:
			return models.TicketType{}, nil, status.ErrInsufficientInventory
		case code == -3:
			return models.TicketType{}, nil, fmt.Errorf("%w: ticket id collision", status.ErrTicketIssueFailed)
		}
		// The ticket type was edited or removed after it was read; mint again
		// from the new state.
		slog.Debug("Sale raced an event edit, retrying",
			"event_id", sale.EventID,
			"ticket_type_id", sale.TicketTypeID,
			"attempt", attempt+1,
		)
	}
	return models.TicketType{}, nil, fmt.Errorf("commit sale: %w", errContended)
}

func (s *Store) GetTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	raw, err := s.client.Get(ctx, ticketKey(ticketID)).Result()
	if errors.Is(err, redis.Nil) {
		return models.Ticket{}, status.ErrTicketNotFound
	}
	if err != nil {
		return models.Ticket{}, fmt.Errorf("load ticket %s: %w", ticketID, err)
	}
	var t models.Ticket
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return models.Ticket{}, fmt.Errorf("decode ticket %s: %w", ticketID, err)
	}
	return t, nil
}

func (s *Store) TicketsByUser(ctx context.Context, userID string) ([]models.Ticket, error) {
	ids, err := s.client.LRange(ctx, userTicketsKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load tickets of user %s: %w", userID, err)
	}
	if len(ids) == 0 {
		return []models.Ticket{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = ticketKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load tickets of user %s: %w", userID, err)
	}

	out := make([]models.Ticket, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("ticket %s listed for user %s is missing", ids[i], userID)
		}
		var t models.Ticket
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			return nil, fmt.Errorf("decode ticket %s: %w", ids[i], err)
		}
		out = append(out, t)
	}
	return out, nil
}
