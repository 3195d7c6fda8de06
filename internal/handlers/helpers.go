package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"ticket-ledger/internal/status"
	"ticket-ledger/models"
	"ticket-ledger/security"

	"github.com/pocketbase/pocketbase/core"
)

// Authenticator resolves a session token to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

type ErrorResponse struct {
	ErrorKind status.Kind `json:"error_kind"`
	Message   string      `json:"message"`
}

var httpStatus = map[status.Kind]int{
	status.KindUnauthenticated:       http.StatusUnauthorized,
	status.KindInvalidCredentials:    http.StatusUnauthorized,
	status.KindForbidden:             http.StatusForbidden,
	status.KindEventNotFound:         http.StatusNotFound,
	status.KindTicketTypeNotFound:    http.StatusNotFound,
	status.KindTicketNotFound:        http.StatusNotFound,
	status.KindInvalidQuantity:       http.StatusBadRequest,
	status.KindInvalidEvent:          http.StatusBadRequest,
	status.KindInvalidTicketType:     http.StatusBadRequest,
	status.KindInvalidAccount:        http.StatusBadRequest,
	status.KindInvalidScanToken:      http.StatusBadRequest,
	status.KindInsufficientInventory: http.StatusConflict,
	status.KindEmailTaken:            http.StatusConflict,
}

// respondError writes err as {error_kind, message}. Internal errors are logged
// and never shown to the caller.
func respondError(e *core.RequestEvent, err error) error {
	kind := status.KindOf(err)
	code, ok := httpStatus[kind]
	if !ok {
		slog.Error("Request failed",
			"method", e.Request.Method,
			"path", e.Request.URL.Path,
			"error", err,
		)
		return e.JSON(http.StatusInternalServerError, ErrorResponse{
			ErrorKind: status.KindInternal,
			Message:   "Something went wrong. Please try again.",
		})
	}
	return e.JSON(code, ErrorResponse{ErrorKind: kind, Message: err.Error()})
}

// currentUser returns the session's user, or nil for anonymous callers.
func currentUser(e *core.RequestEvent, auth Authenticator) (*models.User, error) {
	token := security.SessionToken(e.Request)
	if token == "" {
		return nil, nil
	}
	user, err := auth.Authenticate(e.Request.Context(), token)
	if errors.Is(err, status.ErrUnauthenticated) {
		return nil, nil
	}
	return user, err
}
