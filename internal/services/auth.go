package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"fatture/internal/api"
	"fatture/internal/session"
)

// Authenticator exchanges credentials for a bearer token.
type Authenticator interface {
	Authenticate(ctx context.Context, creds api.Credentials) (string, error)
}

// SessionIssuer turns a token into a stored session.
type SessionIssuer interface {
	Create(ctx context.Context, token string) (session.AuthSession, error)
	Destroy(ctx context.Context, id string) error
}

// AuthService signs users in against the invoicing API and keeps the
// resulting token in a server-side session.
type AuthService struct {
	auth     Authenticator
	sessions SessionIssuer
	clientID string
}

// NewAuthService takes the Google client id sent along with ID tokens; it may
// be empty when Google login is disabled.
func NewAuthService(auth Authenticator, sessions SessionIssuer, googleClientID string) *AuthService {
	return &AuthService{auth: auth, sessions: sessions, clientID: googleClientID}
}

func (s *AuthService) Login(ctx context.Context, email, password string) (session.AuthSession, error) {
	return s.login(ctx, api.Credentials{Email: strings.TrimSpace(email), Password: password}, "password")
}

// LoginWithGoogle posts a Google ID token as the credential.
func (s *AuthService) LoginWithGoogle(ctx context.Context, idToken string) (session.AuthSession, error) {
	return s.login(ctx, api.Credentials{Credential: idToken, ClientID: s.clientID}, "google")
}

func (s *AuthService) login(ctx context.Context, creds api.Credentials, method string) (session.AuthSession, error) {
	token, err := s.auth.Authenticate(ctx, creds)
	if err != nil {
		return session.AuthSession{}, fmt.Errorf("authenticate: %w", err)
	}
	sess, err := s.sessions.Create(ctx, token)
	if err != nil {
		return session.AuthSession{}, fmt.Errorf("create session: %w", err)
	}
	slog.InfoContext(ctx, "User signed in",
		"user_id", sess.UserID,
		"username", sess.Username,
		"method", method,
		"expires_at", sess.ExpiresAt)
	return sess, nil
}

func (s *AuthService) Logout(ctx context.Context, id string) error {
	return s.sessions.Destroy(ctx, id)
}
