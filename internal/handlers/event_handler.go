package handlers

import (
	"net/http"
	"strconv"

	"ticket-ledger/internal/services"
	"ticket-ledger/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type EventHandler struct {
	auth         Authenticator
	eventService *services.EventService
}

func NewEventHandler(auth Authenticator, eventService *services.EventService) *EventHandler {
	return &EventHandler{
		auth:         auth,
		eventService: eventService,
	}
}

// ListEvents - GET /api/v1/events?q=&category=&featured=
func (h *EventHandler) ListEvents(e *core.RequestEvent) error {
	query := e.Request.URL.Query()
	featured, _ := strconv.ParseBool(query.Get("featured"))

	events, err := h.eventService.ListEvents(e.Request.Context(), models.EventFilter{
		Search:       query.Get("q"),
		Category:     query.Get("category"),
		FeaturedOnly: featured,
	})
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{
		"events": events,
		"total":  len(events),
	})
}

// GetEvent - GET /api/v1/events/{eventId}
func (h *EventHandler) GetEvent(e *core.RequestEvent) error {
	event, err := h.eventService.GetEvent(e.Request.Context(), e.Request.PathValue("eventId"))
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, event)
}

// Categories - GET /api/v1/events/categories
func (h *EventHandler) Categories(e *core.RequestEvent) error {
	categories, err := h.eventService.Categories(e.Request.Context())
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{"categories": categories})
}

// CreateEvent - POST /api/v1/events
func (h *EventHandler) CreateEvent(e *core.RequestEvent) error {
	var draft models.EventDraft
	if err := e.BindBody(&draft); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	user, err := currentUser(e, h.auth)
	if err != nil {
		return respondError(e, err)
	}

	event, err := h.eventService.CreateEvent(e.Request.Context(), user, draft)
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusCreated, event)
}

// UpdateEvent - PATCH /api/v1/events/{eventId}
func (h *EventHandler) UpdateEvent(e *core.RequestEvent) error {
	var patch models.EventPatch
	if err := e.BindBody(&patch); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	user, err := currentUser(e, h.auth)
	if err != nil {
		return respondError(e, err)
	}

	event, err := h.eventService.UpdateEvent(e.Request.Context(), user, e.Request.PathValue("eventId"), patch)
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, event)
}

// DeleteEvent - DELETE /api/v1/events/{eventId}
func (h *EventHandler) DeleteEvent(e *core.RequestEvent) error {
	user, err := currentUser(e, h.auth)
	if err != nil {
		return respondError(e, err)
	}
	if err := h.eventService.DeleteEvent(e.Request.Context(), user, e.Request.PathValue("eventId")); err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, map[string]string{"message": "Event deleted"})
}

// Dashboard - GET /api/v1/organizer/dashboard
func (h *EventHandler) Dashboard(e *core.RequestEvent) error {
	user, err := currentUser(e, h.auth)
	if err != nil {
		return respondError(e, err)
	}
	dashboard, err := h.eventService.Dashboard(e.Request.Context(), user)
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, dashboard)
}
