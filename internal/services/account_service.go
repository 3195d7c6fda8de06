package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"ticket-ledger/internal/status"
	"ticket-ledger/models"
	"ticket-ledger/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

type Session struct {
	Token     string       `json:"token"`
	User      *models.User `json:"user"`
	ExpiresAt time.Time    `json:"expires_at"`
}

type Registration struct {
	Name     string      `json:"name"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     models.Role `json:"role"`
}

// AccountService keeps accounts and sessions in redis.
//
//	account:{id}           hash  id, name, email, role, password_hash
//	account:email:{email}  string -> account id
//	session:{token}        string -> account id, expires after the session TTL
type AccountService struct {
	redis      redis.Cmdable
	sessionTTL time.Duration
	newID      func() string
	newToken   func() (string, error)
	hash       func(password []byte) ([]byte, error)
	now        func() time.Time
}

func NewAccountService(client redis.Cmdable, sessionTTL time.Duration) *AccountService {
	return &AccountService{
		redis:      client,
		sessionTTL: sessionTTL,
		newID:      uuid.NewString,
		newToken:   func() (string, error) { return utils.GenerateToken(32) },
		hash: func(password []byte) ([]byte, error) {
			return bcrypt.GenerateFromPassword(password, bcrypt.DefaultCost)
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

func accountKey(id string) string {
	return fmt.Sprintf("account:%s", id)
}

func accountEmailKey(email string) string {
	return fmt.Sprintf("account:email:%s", email)
}

func sessionKey(token string) string {
	return fmt.Sprintf("session:%s", token)
}

func (r Registration) validate() (Registration, error) {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	if r.Role == "" {
		r.Role = models.RoleAttendee
	}
	switch {
	case r.Name == "":
		return r, fmt.Errorf("%w: name is required", status.ErrInvalidAccount)
	case r.Email == "":
		return r, fmt.Errorf("%w: email is required", status.ErrInvalidAccount)
	case len(r.Password) < minPasswordLength:
		return r, fmt.Errorf("%w: password must be at least %d characters", status.ErrInvalidAccount, minPasswordLength)
	case !r.Role.Valid():
		return r, fmt.Errorf("%w: unknown role %q", status.ErrInvalidAccount, r.Role)
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return r, fmt.Errorf("%w: invalid email", status.ErrInvalidAccount)
	}
	return r, nil
}

// Register creates an account. Emails are unique, compared case-insensitively.
func (s *AccountService) Register(ctx context.Context, reg Registration) (*models.User, error) {
	reg, err := reg.validate()
	if err != nil {
		return nil, err
	}
	hashed, err := s.hash([]byte(reg.Password))
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{ID: s.newID(), Name: reg.Name, Email: reg.Email, Role: reg.Role}

	claimed, err := s.redis.SetNX(ctx, accountEmailKey(user.Email), user.ID, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("claim email: %w", err)
	}
	if !claimed {
		return nil, status.ErrEmailTaken
	}

	if err := s.redis.HSet(ctx, accountKey(user.ID),
		"id", user.ID,
		"name", user.Name,
		"email", user.Email,
		"role", string(user.Role),
		"password_hash", string(hashed),
	).Err(); err != nil {
		s.redis.Del(ctx, accountEmailKey(user.Email))
		return nil, fmt.Errorf("store account: %w", err)
	}

	slog.Info("Account registered", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// Login checks the password and opens a session.
func (s *AccountService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	id, err := s.redis.Get(ctx, accountEmailKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, status.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	fields, err := s.redis.HGetAll(ctx, accountKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if len(fields) == 0 {
		return nil, status.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(fields["password_hash"]), []byte(password)); err != nil {
		return nil, status.ErrInvalidCredentials
	}

	token, err := s.newToken()
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}
	if err := s.redis.Set(ctx, sessionKey(token), id, s.sessionTTL).Err(); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	return &Session{
		Token:     token,
		User:      userFromFields(fields),
		ExpiresAt: s.now().Add(s.sessionTTL),
	}, nil
}

func (s *AccountService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.redis.Del(ctx, sessionKey(token)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Authenticate resolves a session token to its user.
func (s *AccountService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, status.ErrUnauthenticated
	}
	id, err := s.redis.Get(ctx, sessionKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, status.ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}

	fields, err := s.redis.HGetAll(ctx, accountKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if len(fields) == 0 {
		return nil, status.ErrUnauthenticated
	}
	return userFromFields(fields), nil
}

func userFromFields(fields map[string]string) *models.User {
	return &models.User{
		ID:    fields["id"],
		Name:  fields["name"],
		Email: fields["email"],
		Role:  models.Role(fields["role"]),
	}
}
