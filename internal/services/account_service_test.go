package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"ticket-ledger/internal/status"
	"ticket-ledger/models"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestAccounts(t *testing.T) (*AccountService, redismock.ClientMock) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	svc := NewAccountService(db, time.Hour)
	svc.newID = sequence("acct")
	svc.newToken = func() (string, error) { return "tok-1", nil }
	svc.hash = func(password []byte) ([]byte, error) { return append([]byte("hashed:"), password...), nil }
	svc.now = func() time.Time { return testStart }
	return svc, mock
}

func accountFields(t *testing.T, password string) map[string]string {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return map[string]string{
		"id":            "acct-1",
		"name":          "Esi Owusu",
		"email":         "esi@example.com",
		"role":          "organizer",
		"password_hash": string(hashed),
	}
}

func TestRegister(t *testing.T) {
	svc, mock := newTestAccounts(t)

	mock.ExpectSetNX("account:email:esi@example.com", "acct-1", 0).SetVal(true)
	mock.ExpectHSet("account:acct-1",
		"id", "acct-1",
		"name", "Esi Owusu",
		"email", "esi@example.com",
		"role", "organizer",
		"password_hash", "hashed:secret1",
	).SetVal(5)

	user, err := svc.Register(context.Background(), Registration{
		Name:     " Esi Owusu ",
		Email:    "Esi@Example.com",
		Password: "secret1",
		Role:     models.RoleOrganizer,
	})
	require.NoError(t, err)
	assert.Equal(t, &models.User{ID: "acct-1", Name: "Esi Owusu", Email: "esi@example.com", Role: models.RoleOrganizer}, user)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegister_DefaultsToAttendee(t *testing.T) {
	svc, mock := newTestAccounts(t)

	mock.ExpectSetNX("account:email:yaw@example.com", "acct-1", 0).SetVal(true)
	mock.ExpectHSet("account:acct-1",
		"id", "acct-1",
		"name", "Yaw",
		"email", "yaw@example.com",
		"role", "attendee",
		"password_hash", "hashed:secret1",
	).SetVal(5)

	user, err := svc.Register(context.Background(), Registration{Name: "Yaw", Email: "yaw@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAttendee, user.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegister_EmailTaken(t *testing.T) {
	svc, mock := newTestAccounts(t)

	mock.ExpectSetNX("account:email:esi@example.com", "acct-1", 0).SetVal(false)

	_, err := svc.Register(context.Background(), Registration{Name: "Esi", Email: "esi@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, status.ErrEmailTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegister_Invalid(t *testing.T) {
	svc, mock := newTestAccounts(t)

	tests := []struct {
		name string
		reg  Registration
	}{
		{"missing name", Registration{Email: "a@example.com", Password: "secret1"}},
		{"missing email", Registration{Name: "A", Password: "secret1"}},
		{"bad email", Registration{Name: "A", Email: "not-an-email", Password: "secret1"}},
		{"short password", Registration{Name: "A", Email: "a@example.com", Password: "123"}},
		{"unknown role", Registration{Name: "A", Email: "a@example.com", Password: "secret1", Role: "admin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.reg)
			assert.ErrorIs(t, err, status.ErrInvalidAccount)
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogin(t *testing.T) {
	svc, mock := newTestAccounts(t)

	mock.ExpectGet("account:email:esi@example.com").SetVal("acct-1")
	mock.ExpectHGetAll("account:acct-1").SetVal(accountFields(t, "secret1"))
	mock.ExpectSet("session:tok-1", "acct-1", time.Hour).SetVal("OK")

	session, err := svc.Login(context.Background(), "ESI@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", session.Token)
	assert.Equal(t, "acct-1", session.User.ID)
	assert.True(t, session.User.IsOrganizer())
	assert.Equal(t, testStart.Add(time.Hour), session.ExpiresAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc, mock := newTestAccounts(t)
	ctx := context.Background()

	mock.ExpectGet("account:email:nobody@example.com").RedisNil()
	mock.ExpectGet("account:email:esi@example.com").SetVal("acct-1")
	mock.ExpectHGetAll("account:acct-1").SetVal(accountFields(t, "secret1"))

	_, err := svc.Login(ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, status.ErrInvalidCredentials)
	_, err = svc.Login(ctx, "esi@example.com", "wrong-password")
	assert.ErrorIs(t, err, status.ErrInvalidCredentials)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthenticate(t *testing.T) {
	svc, mock := newTestAccounts(t)
	ctx := context.Background()

	mock.ExpectGet("session:tok-1").SetVal("acct-1")
	mock.ExpectHGetAll("account:acct-1").SetVal(accountFields(t, "secret1"))
	mock.ExpectGet("session:expired").RedisNil()
	mock.ExpectGet("session:broken").SetErr(errors.New("connection reset"))

	user, err := svc.Authenticate(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "esi@example.com", user.Email)

	_, err = svc.Authenticate(ctx, "")
	assert.ErrorIs(t, err, status.ErrUnauthenticated)
	_, err = svc.Authenticate(ctx, "expired")
	assert.ErrorIs(t, err, status.ErrUnauthenticated)
	_, err = svc.Authenticate(ctx, "broken")
	assert.Error(t, err)
	assert.Equal(t, status.KindInternal, status.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogout(t *testing.T) {
	svc, mock := newTestAccounts(t)

	mock.ExpectDel("session:tok-1").SetVal(1)

	require.NoError(t, svc.Logout(context.Background(), "tok-1"))
	require.NoError(t, svc.Logout(context.Background(), ""))
	assert.NoError(t, mock.ExpectationsWereMet())
}
