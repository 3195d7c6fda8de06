package models

import (
	"sort"
	"strings"
)

// AllCategories is the listing value that disables category filtering.
const AllCategories = "All"

type EventFilter struct {
	Search       string `json:"search"`
	Category     string `json:"category"`
	FeaturedOnly bool   `json:"featured_only"`
	OrganizerID  string `json:"organizer_id"`
}

func (f EventFilter) CategoryFilter() string {
	c := strings.TrimSpace(f.Category)
	if c == AllCategories {
		return ""
	}
	return c
}

// Matches applies the filter in memory. Search is case-insensitive over the
// title and description.
func (f EventFilter) Matches(e Event) bool {
	if term := strings.ToLower(strings.TrimSpace(f.Search)); term != "" {
		if !strings.Contains(strings.ToLower(e.Title), term) &&
			!strings.Contains(strings.ToLower(e.Description), term) {
			return false
		}
	}
	if c := f.CategoryFilter(); c != "" && e.Category != c {
		return false
	}
	if f.FeaturedOnly && !e.Featured {
		return false
	}
	if f.OrganizerID != "" && e.OrganizerID != f.OrganizerID {
		return false
	}
	return true
}

// SortEvents orders events by start time, then id, so every store lists in
// the same order.
func SortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].StartTime.Equal(events[j].StartTime) {
			return events[i].StartTime.Before(events[j].StartTime)
		}
		return events[i].ID < events[j].ID
	})
}
