package handlers

import (
	"net/http"

	"ticket-ledger/internal/services"
	"ticket-ledger/internal/status"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type TicketHandler struct {
	auth           Authenticator
	bookingService *services.BookingService
}

func NewTicketHandler(auth Authenticator, bookingService *services.BookingService) *TicketHandler {
	return &TicketHandler{
		auth:           auth,
		bookingService: bookingService,
	}
}

// MyTickets - GET /api/v1/tickets
func (h *TicketHandler) MyTickets(e *core.RequestEvent) error {
	user, err := currentUser(e, h.auth)
	if err != nil {
		return respondError(e, err)
	}
	tickets, err := h.bookingService.MyTickets(e.Request.Context(), user)
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{
		"tickets": tickets,
		"total":   len(tickets),
	})
}

// GetTicket - GET /api/v1/tickets/{ticketId}
func (h *TicketHandler) GetTicket(e *core.RequestEvent) error {
	user, err := currentUser(e, h.auth)
	if err != nil {
		return respondError(e, err)
	}
	ticket, err := h.bookingService.GetTicket(e.Request.Context(), user, e.Request.PathValue("ticketId"))
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, ticket)
}

type VerifyRequest struct {
	TicketID  string `json:"ticket_id"`
	ScanToken string `json:"scan_token"`
}

// VerifyTicket - POST /api/v1/tickets/verify, for organizers at the door.
func (h *TicketHandler) VerifyTicket(e *core.RequestEvent) error {
	var req VerifyRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	user, err := currentUser(e, h.auth)
	if err != nil {
		return respondError(e, err)
	}
	if user == nil {
		return respondError(e, status.ErrUnauthenticated)
	}
	if !user.IsOrganizer() {
		return respondError(e, status.ErrForbidden)
	}

	ticket, err := h.bookingService.VerifyTicket(e.Request.Context(), req.TicketID, req.ScanToken)
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{
		"valid":  true,
		"ticket": ticket,
	})
}
