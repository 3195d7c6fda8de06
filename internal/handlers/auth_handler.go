package handlers

import (
	"context"
	"net/http"

	"ticket-ledger/internal/services"
	"ticket-ledger/models"
	"ticket-ledger/security"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

// Accounts is the session collaborator behind the auth endpoints.
type Accounts interface {
	Register(ctx context.Context, reg services.Registration) (*models.User, error)
	Login(ctx context.Context, email, password string) (*services.Session, error)
	Logout(ctx context.Context, token string) error
}

type AuthHandler struct {
	accounts Accounts
}

func NewAuthHandler(accounts Accounts) *AuthHandler {
	return &AuthHandler{accounts: accounts}
}

// Register - POST /api/v1/auth/register
func (h *AuthHandler) Register(e *core.RequestEvent) error {
	var req services.Registration
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	user, err := h.accounts.Register(e.Request.Context(), req)
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusCreated, user)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login - POST /api/v1/auth/login
func (h *AuthHandler) Login(e *core.RequestEvent) error {
	var req LoginRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	session, err := h.accounts.Login(e.Request.Context(), req.Email, req.Password)
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, session)
}

// Logout - POST /api/v1/auth/logout
func (h *AuthHandler) Logout(e *core.RequestEvent) error {
	if err := h.accounts.Logout(e.Request.Context(), security.SessionToken(e.Request)); err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, map[string]string{"message": "Logged out"})
}
