package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"ticket-ledger/internal/services"
	"ticket-ledger/internal/status"
	"ticket-ledger/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockAccounts struct {
	mock.Mock
}

func (m *MockAccounts) Register(ctx context.Context, reg services.Registration) (*models.User, error) {
	args := m.Called(ctx, reg)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func (m *MockAccounts) Login(ctx context.Context, email, password string) (*services.Session, error) {
	args := m.Called(ctx, email, password)
	session, _ := args.Get(0).(*services.Session)
	return session, args.Error(1)
}

func (m *MockAccounts) Logout(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func TestAuthHandler_Register(t *testing.T) {
	accounts := new(MockAccounts)
	h := NewAuthHandler(accounts)

	yaw := services.Registration{Name: "Yaw Asante", Email: "yaw@example.com", Password: "secret123"}
	accounts.On("Register", mock.Anything, yaw).
		Return(&models.User{ID: "U2", Name: yaw.Name, Email: yaw.Email, Role: models.RoleAttendee}, nil)

	e, rec := newRequestEvent(t, http.MethodPost, "/api/v1/auth/register", "", yaw)
	require.NoError(t, h.Register(e))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "yaw@example.com", decode(t, rec)["email"])
	accounts.AssertExpectations(t)
}

func TestAuthHandler_RegisterRejections(t *testing.T) {
	accounts := new(MockAccounts)
	h := NewAuthHandler(accounts)

	accounts.On("Register", mock.Anything, mock.MatchedBy(func(r services.Registration) bool {
		return r.Email == attendee.Email
	})).Return(nil, status.ErrEmailTaken)
	accounts.On("Register", mock.Anything, mock.MatchedBy(func(r services.Registration) bool {
		return r.Email == ""
	})).Return(nil, status.ErrInvalidAccount)

	e, rec := newRequestEvent(t, http.MethodPost, "/api/v1/auth/register", "",
		services.Registration{Name: "Esi", Email: attendee.Email, Password: "secret123"})
	require.NoError(t, h.Register(e))
	assertErrorKind(t, rec, http.StatusConflict, status.KindEmailTaken)

	e, rec = newRequestEvent(t, http.MethodPost, "/api/v1/auth/register", "", services.Registration{Name: "Nobody"})
	require.NoError(t, h.Register(e))
	assertErrorKind(t, rec, http.StatusBadRequest, status.KindInvalidAccount)
}

func TestAuthHandler_Login(t *testing.T) {
	accounts := new(MockAccounts)
	h := NewAuthHandler(accounts)

	accounts.On("Login", mock.Anything, attendee.Email, "secret123").
		Return(&services.Session{Token: "tok-U1", User: attendee, ExpiresAt: showtime.Add(24 * time.Hour)}, nil)
	accounts.On("Login", mock.Anything, attendee.Email, "wrong").
		Return(nil, status.ErrInvalidCredentials)

	e, rec := newRequestEvent(t, http.MethodPost, "/api/v1/auth/login", "",
		LoginRequest{Email: attendee.Email, Password: "secret123"})
	require.NoError(t, h.Login(e))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tok-U1", decode(t, rec)["token"])

	e, rec = newRequestEvent(t, http.MethodPost, "/api/v1/auth/login", "",
		LoginRequest{Email: attendee.Email, Password: "wrong"})
	require.NoError(t, h.Login(e))
	assertErrorKind(t, rec, http.StatusUnauthorized, status.KindInvalidCredentials)
}

func TestAuthHandler_Logout(t *testing.T) {
	accounts := new(MockAccounts)
	h := NewAuthHandler(accounts)
	accounts.On("Logout", mock.Anything, "tok-U1").Return(nil)

	e, rec := newRequestEvent(t, http.MethodPost, "/api/v1/auth/logout", "tok-U1", nil)
	require.NoError(t, h.Logout(e))
	assert.Equal(t, http.StatusOK, rec.Code)
	accounts.AssertExpectations(t)
}
