// Package sqlstore keeps the ledger in SQLite through dbx.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"ticket-ledger/internal/status"
	"ticket-ledger/internal/storage/sqlstore/migrations"
	"ticket-ledger/models"

	"github.com/pocketbase/dbx"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// Store persists events, ticket types and tickets. A sale is one transaction:
// the sold increment is a conditional UPDATE that matches no row once the
// stock is gone, and the tickets are inserted alongside it.
type Store struct {
	db *dbx.DB
}

// Open opens the database at path (":memory:" for a private in-memory
// database) and applies the embedded schema.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite has one writer; a single connection also keeps ":memory:" shared.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	db := dbx.NewFromDB(sqlDB, "sqlite")
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func migrate(db *dbx.DB) error {
	if _, err := db.NewQuery(`CREATE TABLE IF NOT EXISTS schema_migrations (name TEXT PRIMARY KEY, applied_at INTEGER NOT NULL)`).Execute(); err != nil {
		return err
	}
	files, err := fs.Glob(migrations.FS, "*.sql")
	if err != nil {
		return err
	}
	sort.Strings(files)

	for _, name := range files {
		var count int
		if err := db.NewQuery("SELECT COUNT(*) FROM schema_migrations WHERE name = {:name}").
			Bind(dbx.Params{"name": name}).Row(&count); err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		body, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			return err
		}
		err = db.Transactional(func(tx *dbx.Tx) error {
			if _, err := tx.NewQuery(string(body)).Execute(); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			_, err := tx.Insert("schema_migrations", dbx.Params{
				"name":       name,
				"applied_at": time.Now().UTC().UnixNano(),
			}).Execute()
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

type eventRow struct {
	ID            string `db:"id"`
	Title         string `db:"title"`
	Description   string `db:"description"`
	StartTime     int64  `db:"start_time"`
	EndTime       int64  `db:"end_time"`
	Address       string `db:"address"`
	VirtualLink   string `db:"virtual_link"`
	Category      string `db:"category"`
	Tags          string `db:"tags"`
	Featured      bool   `db:"featured"`
	OrganizerID   string `db:"organizer_id"`
	OrganizerName string `db:"organizer_name"`
	CreatedAt     int64  `db:"created_at"`
	UpdatedAt     int64  `db:"updated_at"`
}

type ticketTypeRow struct {
	EventID  string `db:"event_id"`
	ID       string `db:"id"`
	Position int    `db:"position"`
	Name     string `db:"name"`
	Price    string `db:"price"`
	Currency string `db:"currency"`
	Capacity int    `db:"capacity"`
	Sold     int    `db:"sold"`
}

type ticketRow struct {
	Seq            int64  `db:"seq"`
	ID             string `db:"id"`
	UserID         string `db:"user_id"`
	EventID        string `db:"event_id"`
	TicketTypeID   string `db:"ticket_type_id"`
	EventTitle     string `db:"event_title"`
	TicketTypeName string `db:"ticket_type_name"`
	Price          string `db:"price"`
	Currency       string `db:"currency"`
	IssuedAt       int64  `db:"issued_at"`
	ScanToken      string `db:"scan_token"`
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func (r eventRow) toModel() (models.Event, error) {
	var tags []string
	if err := json.Unmarshal([]byte(r.Tags), &tags); err != nil {
		return models.Event{}, fmt.Errorf("decode tags of event %s: %w", r.ID, err)
	}
	return models.Event{
		ID:            r.ID,
		Title:         r.Title,
		Description:   r.Description,
		StartTime:     fromNanos(r.StartTime),
		EndTime:       fromNanos(r.EndTime),
		Location:      models.Location{Address: r.Address, VirtualLink: r.VirtualLink},
		Category:      r.Category,
		Tags:          tags,
		Featured:      r.Featured,
		OrganizerID:   r.OrganizerID,
		OrganizerName: r.OrganizerName,
		CreatedAt:     fromNanos(r.CreatedAt),
		UpdatedAt:     fromNanos(r.UpdatedAt),
	}, nil
}

func eventParams(e models.Event) (dbx.Params, error) {
	tags := e.Tags
	if tags == nil {
		tags = []string{}
	}
	encoded, err := json.Marshal(tags)
	if err != nil {
		return nil, err
	}
	return dbx.Params{
		"id":             e.ID,
		"title":          e.Title,
		"description":    e.Description,
		"start_time":     toNanos(e.StartTime),
		"end_time":       toNanos(e.EndTime),
		"address":        e.Location.Address,
		"virtual_link":   e.Location.VirtualLink,
		"category":       e.Category,
		"tags":           string(encoded),
		"featured":       e.Featured,
		"organizer_id":   e.OrganizerID,
		"organizer_name": e.OrganizerName,
		"created_at":     toNanos(e.CreatedAt),
		"updated_at":     toNanos(e.UpdatedAt),
	}, nil
}

func (r ticketTypeRow) toModel() (models.TicketType, error) {
	price, err := decimal.NewFromString(r.Price)
	if err != nil {
		return models.TicketType{}, fmt.Errorf("decode price of ticket type %s: %w", r.ID, err)
	}
	return models.TicketType{
		ID:       r.ID,
		Name:     r.Name,
		Price:    price,
		Currency: r.Currency,
		Capacity: r.Capacity,
		Sold:     r.Sold,
	}, nil
}

func (r ticketRow) toModel() (models.Ticket, error) {
	price, err := decimal.NewFromString(r.Price)
	if err != nil {
		return models.Ticket{}, fmt.Errorf("decode price of ticket %s: %w", r.ID, err)
	}
	return models.Ticket{
		ID:             r.ID,
		UserID:         r.UserID,
		EventID:        r.EventID,
		TicketTypeID:   r.TicketTypeID,
		EventTitle:     r.EventTitle,
		TicketTypeName: r.TicketTypeName,
		Price:          price,
		Currency:       r.Currency,
		IssuedAt:       fromNanos(r.IssuedAt),
		ScanToken:      r.ScanToken,
	}, nil
}

// loadEvent reads one event and its ticket types through b, which is either
// the database or an open transaction.
func loadEvent(ctx context.Context, b dbx.Builder, eventID string) (models.Event, error) {
	var row eventRow
	err := b.Select().From("events").
		Where(dbx.HashExp{"id": eventID}).
		WithContext(ctx).
		One(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Event{}, status.ErrEventNotFound
	}
	if err != nil {
		return models.Event{}, fmt.Errorf("load event %s: %w", eventID, err)
	}
	event, err := row.toModel()
	if err != nil {
		return models.Event{}, err
	}
	types, err := loadTicketTypes(ctx, b, eventID)
	if err != nil {
		return models.Event{}, err
	}
	event.TicketTypes = types[eventID]
	return event, nil
}

func loadTicketTypes(ctx context.Context, b dbx.Builder, eventIDs ...string) (map[string][]models.TicketType, error) {
	out := make(map[string][]models.TicketType, len(eventIDs))
	if len(eventIDs) == 0 {
		return out, nil
	}
	ids := make([]any, len(eventIDs))
	for i, id := range eventIDs {
		ids[i] = id
	}

	var rows []ticketTypeRow
	err := b.Select().From("ticket_types").
		Where(dbx.In("event_id", ids...)).
		OrderBy("event_id", "position").
		WithContext(ctx).
		All(&rows)
	if err != nil {
		return nil, fmt.Errorf("load ticket types: %w", err)
	}
	for _, r := range rows {
		tt, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out[r.EventID] = append(out[r.EventID], tt)
	}
	return out, nil
}

func (s *Store) GetEvent(ctx context.Context, eventID string) (models.Event, error) {
	return loadEvent(ctx, s.db, eventID)
}

func (s *Store) GetTicketType(ctx context.Context, eventID, ticketTypeID string) (models.TicketType, error) {
	var row ticketTypeRow
	err := s.db.Select().From("ticket_types").
		Where(dbx.HashExp{"event_id": eventID, "id": ticketTypeID}).
		WithContext(ctx).
		One(&row)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := loadEvent(ctx, s.db, eventID); err != nil {
			return models.TicketType{}, err
		}
		return models.TicketType{}, status.ErrTicketTypeNotFound
	}
	if err != nil {
		return models.TicketType{}, fmt.Errorf("load ticket type %s: %w", ticketTypeID, err)
	}
	return row.toModel()
}

func (s *Store) ListEvents(ctx context.Context, filter models.EventFilter) ([]models.Event, error) {
	q := s.db.Select().From("events").OrderBy("start_time", "id").WithContext(ctx)
	// LIKE folds case for ASCII only, so other terms are left to Matches.
	if term := strings.TrimSpace(filter.Search); term != "" && isASCII(term) {
		q.AndWhere(dbx.Or(dbx.Like("title", term), dbx.Like("description", term)))
	}
	if c := filter.CategoryFilter(); c != "" {
		q.AndWhere(dbx.HashExp{"category": c})
	}
	if filter.FeaturedOnly {
		q.AndWhere(dbx.HashExp{"featured": true})
	}
	if filter.OrganizerID != "" {
		q.AndWhere(dbx.HashExp{"organizer_id": filter.OrganizerID})
	}

	var rows []eventRow
	if err := q.All(&rows); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	types, err := loadTicketTypes(ctx, s.db, ids...)
	if err != nil {
		return nil, err
	}

	out := make([]models.Event, 0, len(rows))
	for _, r := range rows {
		event, err := r.toModel()
		if err != nil {
			return nil, err
		}
		event.TicketTypes = types[r.ID]
		if filter.Matches(event) {
			out = append(out, event)
		}
	}
	return out, nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func (s *Store) CreateEvent(ctx context.Context, event models.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	params, err := eventParams(event)
	if err != nil {
		return err
	}

	return s.db.TransactionalContext(ctx, nil, func(tx *dbx.Tx) error {
		var count int
		if err := tx.NewQuery("SELECT COUNT(*) FROM events WHERE id = {:id}").
			Bind(dbx.Params{"id": event.ID}).WithContext(ctx).Row(&count); err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: event %s already exists", status.ErrInvalidEvent, event.ID)
		}
		if _, err := tx.Insert("events", params).WithContext(ctx).Execute(); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		for i, tt := range event.TicketTypes {
			if _, err := tx.Insert("ticket_types", dbx.Params{
				"event_id": event.ID,
				"id":       tt.ID,
				"position": i,
				"name":     tt.Name,
				"price":    tt.Price.String(),
				"currency": tt.Currency,
				"capacity": tt.Capacity,
				"sold":     tt.Sold,
			}).WithContext(ctx).Execute(); err != nil {
				return fmt.Errorf("insert ticket type %s: %w", tt.ID, err)
			}
		}
		return nil
	})
}

func (s *Store) UpdateEvent(ctx context.Context, eventID string, fn func(current models.Event) (models.Event, error)) (models.Event, error) {
	var updated models.Event
	err := s.db.TransactionalContext(ctx, nil, func(tx *dbx.Tx) error {
		current, err := loadEvent(ctx, tx, eventID)
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

		params, err := eventParams(next)
		if err != nil {
			return err
		}
		delete(params, "id")
		if _, err := tx.Update("events", params, dbx.HashExp{"id": eventID}).WithContext(ctx).Execute(); err != nil {
			return fmt.Errorf("update event: %w", err)
		}

		keep := make([]any, 0, len(next.TicketTypes))
		for i, tt := range next.TicketTypes {
			keep = append(keep, tt.ID)
			// sold is left to the row; only sales move it.
			_, err := tx.NewQuery(`
				INSERT INTO ticket_types (event_id, id, position, name, price, currency, capacity, sold)
				VALUES ({:event_id}, {:id}, {:position}, {:name}, {:price}, {:currency}, {:capacity}, 0)
				ON CONFLICT (event_id, id) DO UPDATE SET
					position = excluded.position,
					name     = excluded.name,
					price    = excluded.price,
					currency = excluded.currency,
					capacity = excluded.capacity`).
				Bind(dbx.Params{
					"event_id": eventID,
					"id":       tt.ID,
					"position": i,
					"name":     tt.Name,
					"price":    tt.Price.String(),
					"currency": tt.Currency,
					"capacity": tt.Capacity,
				}).WithContext(ctx).Execute()
			if err != nil {
				return fmt.Errorf("save ticket type %s: %w", tt.ID, err)
			}
		}
		if _, err := tx.Delete("ticket_types", dbx.And(
			dbx.HashExp{"event_id": eventID},
			dbx.NotIn("id", keep...),
		)).WithContext(ctx).Execute(); err != nil {
			return fmt.Errorf("remove ticket types: %w", err)
		}

		updated = next
		return nil
	})
	if err != nil {
		return models.Event{}, err
	}
	return updated, nil
}

func (s *Store) DeleteEvent(ctx context.Context, eventID string) error {
	return s.db.TransactionalContext(ctx, nil, func(tx *dbx.Tx) error {
		if _, err := tx.Delete("ticket_types", dbx.HashExp{"event_id": eventID}).WithContext(ctx).Execute(); err != nil {
			return fmt.Errorf("delete ticket types: %w", err)
		}
		res, err := tx.Delete("events", dbx.HashExp{"id": eventID}).WithContext(ctx).Execute()
		if err != nil {
			return fmt.Errorf("delete event: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return status.ErrEventNotFound
		}
		return nil
	})
}

func (s *Store) CommitSale(ctx context.Context, sale models.Sale, mint models.MintFunc) (models.TicketType, []models.Ticket, error) {
	var (
		updated models.TicketType
		tickets []models.Ticket
	)
	err := s.db.TransactionalContext(ctx, nil, func(tx *dbx.Tx) error {
		var row ticketTypeRow
		err := tx.Select().From("ticket_types").
			Where(dbx.HashExp{"event_id": sale.EventID, "id": sale.TicketTypeID}).
			WithContext(ctx).
			One(&row)
		if errors.Is(err, sql.ErrNoRows) {
			if _, err := loadEvent(ctx, tx, sale.EventID); err != nil {
				return err
			}
			return status.ErrTicketTypeNotFound
		}
		if err != nil {
			return fmt.Errorf("load ticket type: %w", err)
		}
		current, err := row.toModel()
		if err != nil {
			return err
		}
		next, err := current.WithSale(sale.Quantity)
		if err != nil {
			return err
		}

		minted, err := mint(current)
		if err != nil {
			return err
		}
		if len(minted) != sale.Quantity {
			return fmt.Errorf("%w: minted %d of %d tickets", status.ErrTicketIssueFailed, len(minted), sale.Quantity)
		}

		res, err := tx.NewQuery(`
			UPDATE ticket_types SET sold = sold + {:q}
			WHERE event_id = {:event_id} AND id = {:id} AND capacity - sold >= {:q}`).
			Bind(dbx.Params{"q": sale.Quantity, "event_id": sale.EventID, "id": sale.TicketTypeID}).
			WithContext(ctx).
			Execute()
		if err != nil {
			return fmt.Errorf("increment sold: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return status.ErrInsufficientInventory
		}

		for _, t := range minted {
			if _, err := tx.Insert("tickets", dbx.Params{
				"id":               t.ID,
				"user_id":          t.UserID,
				"event_id":         t.EventID,
				"ticket_type_id":   t.TicketTypeID,
				"event_title":      t.EventTitle,
				"ticket_type_name": t.TicketTypeName,
				"price":            t.Price.String(),
				"currency":         t.Currency,
				"issued_at":        toNanos(t.IssuedAt),
				"scan_token":       t.ScanToken,
			}).WithContext(ctx).Execute(); err != nil {
				return fmt.Errorf("%w: insert ticket %s: %v", status.ErrTicketIssueFailed, t.ID, err)
			}
		}

		updated = next
		tickets = minted
		return nil
	})
	if err != nil {
		return models.TicketType{}, nil, err
	}
	return updated, tickets, nil
}

func (s *Store) GetTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	var row ticketRow
	err := s.db.Select().From("tickets").
		Where(dbx.HashExp{"id": ticketID}).
		WithContext(ctx).
		One(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Ticket{}, status.ErrTicketNotFound
	}
	if err != nil {
		return models.Ticket{}, fmt.Errorf("load ticket %s: %w", ticketID, err)
	}
	return row.toModel()
}

func (s *Store) TicketsByUser(ctx context.Context, userID string) ([]models.Ticket, error) {
	var rows []ticketRow
	err := s.db.Select().From("tickets").
		Where(dbx.HashExp{"user_id": userID}).
		OrderBy("seq").
		WithContext(ctx).
		All(&rows)
	if err != nil {
		return nil, fmt.Errorf("load tickets of user %s: %w", userID, err)
	}
	out := make([]models.Ticket, 0, len(rows))
	for _, r := range rows {
		t, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
