package handlers

import (
	"net/http"

	"ticket-ledger/internal/services"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type BookingHandler struct {
	auth           Authenticator
	bookingService *services.BookingService
}

func NewBookingHandler(auth Authenticator, bookingService *services.BookingService) *BookingHandler {
	return &BookingHandler{
		auth:           auth,
		bookingService: bookingService,
	}
}

type PurchaseRequest struct {
	EventID      string `json:"event_id"`
	TicketTypeID string `json:"ticket_type_id"`
	Quantity     int    `json:"quantity"`
}

// Purchase - POST /api/v1/booking/purchase
func (h *BookingHandler) Purchase(e *core.RequestEvent) error {
	var req PurchaseRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	user, err := currentUser(e, h.auth)
	if err != nil {
		return respondError(e, err)
	}

	result, err := h.bookingService.Purchase(e.Request.Context(), user, req.EventID, req.TicketTypeID, req.Quantity)
	if err != nil {
		return respondError(e, err)
	}

	return e.JSON(http.StatusCreated, map[string]any{
		"reference": result.Reference,
		"tickets":   result.Tickets,
		"message":   result.Message,
		"remaining": result.TicketType.Available(),
	})
}
