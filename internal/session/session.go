// Package session models the authenticated user of a browser or CLI session.
//
// The bearer token issued by the invoicing API is decoded without verifying
// its signature: the claims are only used for display and for filtering API
// calls, while authorization stays with the API.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("session not found")
	ErrExpired      = errors.New("session expired")
	ErrInvalidToken = errors.New("invalid token")
)

type AuthSession struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the session is no longer usable at now.
func (s AuthSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// FromToken decodes the token payload. The result has no ID yet.
func FromToken(token string) (AuthSession, error) {
	token = strings.TrimSpace(token)
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser(jwt.WithJSONNumber()).ParseUnverified(token, claims); err != nil {
		return AuthSession{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	userID, err := claimString(claims["user_id"])
	if err != nil || userID == "" {
		return AuthSession{}, fmt.Errorf("%w: missing user_id claim", ErrInvalidToken)
	}
	username, _ := claimString(claims["username"])
	if username == "" {
		username, _ = claimString(claims["user_name"])
	}

	s := AuthSession{Token: token, UserID: userID, Username: username}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		s.ExpiresAt = exp.Time.UTC()
	}
	return s, nil
}

// claimString accepts claims sent as strings or numbers.
func claimString(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(t), nil
	case json.Number:
		return t.String(), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	}
	return "", fmt.Errorf("unsupported claim type %T", v)
}

type ctxKey struct{}

func NewContext(ctx context.Context, s *AuthSession) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session stored by NewContext, if any.
func FromContext(ctx context.Context) (*AuthSession, bool) {
	s, ok := ctx.Value(ctxKey{}).(*AuthSession)
	return s, ok && s != nil
}

// Store persists sessions by ID.
type Store interface {
	Save(ctx context.Context, s AuthSession) error
	Get(ctx context.Context, id string) (AuthSession, error)
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Manager issues and looks up sessions in a Store.
type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewManager caps every session at ttl even when the token lives longer.
func NewManager(store Store, ttl time.Duration) *Manager {
	return &Manager{store: store, ttl: ttl, now: time.Now}
}

// Create decodes token and stores a new session for it.
func (m *Manager) Create(ctx context.Context, token string) (AuthSession, error) {
	s, err := FromToken(token)
	if err != nil {
		return AuthSession{}, err
	}
	now := m.now().UTC()
	if s.Expired(now) {
		return AuthSession{}, ErrExpired
	}
	if m.ttl > 0 {
		capAt := now.Add(m.ttl)
		if s.ExpiresAt.IsZero() || s.ExpiresAt.After(capAt) {
			s.ExpiresAt = capAt
		}
	}
	s.ID = uuid.NewString()
	s.CreatedAt = now
	if err := m.store.Save(ctx, s); err != nil {
		return AuthSession{}, fmt.Errorf("save session: %w", err)
	}
	return s, nil
}

// Lookup returns a live session. Expired sessions are deleted and reported as ErrExpired.
func (m *Manager) Lookup(ctx context.Context, id string) (AuthSession, error) {
	if _, err := uuid.Parse(id); err != nil {
		return AuthSession{}, ErrNotFound
	}
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return AuthSession{}, err
	}
	if s.Expired(m.now()) {
		_ = m.store.Delete(ctx, id)
		return AuthSession{}, ErrExpired
	}
	return s, nil
}

func (m *Manager) Destroy(ctx context.Context, id string) error {
	return m.store.Delete(ctx, id)
}

// Sweep removes expired sessions from the store.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	return m.store.DeleteExpired(ctx, m.now())
}
