package models

import (
	"fmt"
	"strings"
	"time"

	"ticket-ledger/internal/status"

	"github.com/shopspring/decimal"
)

type Location struct {
	Address     string `json:"address,omitempty"`
	VirtualLink string `json:"virtual_link,omitempty"`
}

func (l Location) IsVirtual() bool {
	return l.VirtualLink != ""
}

// Validate requires exactly one of Address or VirtualLink.
func (l Location) Validate() error {
	address := strings.TrimSpace(l.Address)
	link := strings.TrimSpace(l.VirtualLink)
	switch {
	case address == "" && link == "":
		return fmt.Errorf("%w: location is required", status.ErrInvalidEvent)
	case address != "" && link != "":
		return fmt.Errorf("%w: address and virtual link are mutually exclusive", status.ErrInvalidEvent)
	}
	return nil
}

type Event struct {
	ID            string       `json:"id"`
	Title         string       `json:"title"`
	Description   string       `json:"description"`
	StartTime     time.Time    `json:"start_time"`
	EndTime       time.Time    `json:"end_time"`
	Location      Location     `json:"location"`
	Category      string       `json:"category"`
	Tags          []string     `json:"tags,omitempty"`
	Featured      bool         `json:"featured"`
	OrganizerID   string       `json:"organizer_id"`
	OrganizerName string       `json:"organizer_name"`
	TicketTypes   []TicketType `json:"ticket_types"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// TicketType returns the ticket type with the given id.
func (e Event) TicketType(id string) (TicketType, bool) {
	for _, tt := range e.TicketTypes {
		if tt.ID == id {
			return tt, true
		}
	}
	return TicketType{}, false
}

func (e Event) TotalSold() int {
	total := 0
	for _, tt := range e.TicketTypes {
		total += tt.Sold
	}
	return total
}

func (e Event) TotalCapacity() int {
	total := 0
	for _, tt := range e.TicketTypes {
		total += tt.Capacity
	}
	return total
}

// Revenue sums price * sold across ticket types. Mixed currencies are summed
// as-is; events are created with a single currency in practice.
func (e Event) Revenue() decimal.Decimal {
	total := decimal.Zero
	for _, tt := range e.TicketTypes {
		total = total.Add(tt.Price.Mul(decimal.NewFromInt(int64(tt.Sold))))
	}
	return total
}

func (e Event) Currency() string {
	if len(e.TicketTypes) == 0 {
		return ""
	}
	return e.TicketTypes[0].Currency
}

// Clone returns a deep copy so callers never share slices with a store.
func (e Event) Clone() Event {
	out := e
	if e.Tags != nil {
		out.Tags = append([]string(nil), e.Tags...)
	}
	if e.TicketTypes != nil {
		out.TicketTypes = append([]TicketType(nil), e.TicketTypes...)
	}
	return out
}

// Validate checks the invariants every stored event must satisfy.
func (e Event) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("%w: title is required", status.ErrInvalidEvent)
	}
	if strings.TrimSpace(e.Description) == "" {
		return fmt.Errorf("%w: description is required", status.ErrInvalidEvent)
	}
	if e.StartTime.IsZero() || e.EndTime.IsZero() {
		return fmt.Errorf("%w: start and end time are required", status.ErrInvalidEvent)
	}
	if e.EndTime.Before(e.StartTime) {
		return fmt.Errorf("%w: end time is before start time", status.ErrInvalidEvent)
	}
	if err := e.Location.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Category) == "" {
		return fmt.Errorf("%w: category is required", status.ErrInvalidEvent)
	}
	if e.OrganizerID == "" {
		return fmt.Errorf("%w: organizer is required", status.ErrInvalidEvent)
	}
	if len(e.TicketTypes) == 0 {
		return fmt.Errorf("%w: at least one ticket type is required", status.ErrInvalidEvent)
	}
	seen := make(map[string]struct{}, len(e.TicketTypes))
	for _, tt := range e.TicketTypes {
		if err := tt.Validate(); err != nil {
			return err
		}
		if _, dup := seen[tt.ID]; dup {
			return fmt.Errorf("%w: duplicate ticket type id %s", status.ErrInvalidTicketType, tt.ID)
		}
		seen[tt.ID] = struct{}{}
	}
	return nil
}

type EventDraft struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	StartTime   time.Time         `json:"start_time"`
	EndTime     time.Time         `json:"end_time"`
	Location    Location          `json:"location"`
	Category    string            `json:"category"`
	Tags        []string          `json:"tags"`
	Featured    bool              `json:"featured"`
	TicketTypes []TicketTypeDraft `json:"ticket_types"`
}

// NewEvent builds an event owned by organizer from a draft. newID supplies
// identifiers for the event and each ticket type.
func NewEvent(organizer User, draft EventDraft, newID func() string, now time.Time) (Event, error) {
	event := Event{
		ID:            newID(),
		Title:         strings.TrimSpace(draft.Title),
		Description:   strings.TrimSpace(draft.Description),
		StartTime:     draft.StartTime,
		EndTime:       draft.EndTime,
		Location:      draft.Location,
		Category:      strings.TrimSpace(draft.Category),
		Tags:          normalizeTags(draft.Tags, draft.Category),
		Featured:      draft.Featured,
		OrganizerID:   organizer.ID,
		OrganizerName: organizer.Name,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, d := range draft.TicketTypes {
		tt, err := NewTicketType(newID(), d.Name, d.Price, d.Currency, d.Capacity)
		if err != nil {
			return Event{}, err
		}
		event.TicketTypes = append(event.TicketTypes, tt)
	}
	if err := event.Validate(); err != nil {
		return Event{}, err
	}
	return event, nil
}

// EventPatch carries an organizer edit. Nil fields are left unchanged; a nil
// TicketTypes slice keeps the current ticket types.
type EventPatch struct {
	Title       *string           `json:"title,omitempty"`
	Description *string           `json:"description,omitempty"`
	StartTime   *time.Time        `json:"start_time,omitempty"`
	EndTime     *time.Time        `json:"end_time,omitempty"`
	Location    *Location         `json:"location,omitempty"`
	Category    *string           `json:"category,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Featured    *bool             `json:"featured,omitempty"`
	TicketTypes []TicketTypePatch `json:"ticket_types,omitempty"`
}

// TicketTypePatch edits an existing ticket type when ID is set, otherwise it
// adds a new one. Sold is never taken from a patch.
type TicketTypePatch struct {
	ID       string          `json:"id,omitempty"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
	Capacity int             `json:"capacity"`
}

// Apply returns a copy of e with the patch applied. Live sold counts are
// preserved; a ticket type that has sales can be neither removed nor shrunk
// below its sold count.
func (e Event) Apply(p EventPatch, newID func() string, now time.Time) (Event, error) {
	out := e.Clone()
	if p.Title != nil {
		out.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		out.Description = strings.TrimSpace(*p.Description)
	}
	if p.StartTime != nil {
		out.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		out.EndTime = *p.EndTime
	}
	if p.Location != nil {
		out.Location = *p.Location
	}
	if p.Category != nil {
		out.Category = strings.TrimSpace(*p.Category)
	}
	if p.Tags != nil || p.Category != nil {
		tags := p.Tags
		if tags == nil {
			tags = e.Tags
		}
		out.Tags = normalizeTags(tags, out.Category)
	}
	if p.Featured != nil {
		out.Featured = *p.Featured
	}

	if p.TicketTypes != nil {
		kept := make(map[string]struct{}, len(p.TicketTypes))
		next := make([]TicketType, 0, len(p.TicketTypes))
		for _, tp := range p.TicketTypes {
			if tp.ID == "" {
				tt, err := NewTicketType(newID(), tp.Name, tp.Price, tp.Currency, tp.Capacity)
				if err != nil {
					return Event{}, err
				}
				next = append(next, tt)
				continue
			}
			current, ok := e.TicketType(tp.ID)
			if !ok {
				return Event{}, fmt.Errorf("%w: %s", status.ErrTicketTypeNotFound, tp.ID)
			}
			updated, err := current.Edit(tp.Name, tp.Price, tp.Currency, tp.Capacity)
			if err != nil {
				return Event{}, err
			}
			kept[tp.ID] = struct{}{}
			next = append(next, updated)
		}
		for _, tt := range e.TicketTypes {
			if _, ok := kept[tt.ID]; !ok && tt.Sold > 0 {
				return Event{}, fmt.Errorf("%w: ticket type %s has sales and cannot be removed", status.ErrInvalidTicketType, tt.ID)
			}
		}
		out.TicketTypes = next
	}

	out.UpdatedAt = now
	if err := out.Validate(); err != nil {
		return Event{}, err
	}
	return out, nil
}

func normalizeTags(tags []string, category string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(tags)+1)
	add := func(tag string) {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			return
		}
		if _, ok := seen[tag]; ok {
			return
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	for _, t := range tags {
		add(t)
	}
	add(category)
	return out
}

// CarrySold copies the live sold counts of current into next and starts new
// ticket types at zero. Stores call it so an edit can never move sold.
func CarrySold(next, current Event) (Event, error) {
	out := next.Clone()
	for i, tt := range out.TicketTypes {
		live, ok := current.TicketType(tt.ID)
		if !ok {
			out.TicketTypes[i].Sold = 0
			continue
		}
		if tt.Capacity < live.Sold {
			return Event{}, fmt.Errorf("%w: capacity %d below sold %d", status.ErrInvalidTicketType, tt.Capacity, live.Sold)
		}
		out.TicketTypes[i].Sold = live.Sold
	}
	for _, tt := range current.TicketTypes {
		if _, ok := out.TicketType(tt.ID); !ok && tt.Sold > 0 {
			return Event{}, fmt.Errorf("%w: ticket type %s has sales and cannot be removed", status.ErrInvalidTicketType, tt.ID)
		}
	}
	return out, nil
}
