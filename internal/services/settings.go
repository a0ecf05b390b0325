package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fatture/internal/api"
	"fatture/internal/core"
	"fatture/internal/session"
)

// UserDirectory reads and updates users on the invoicing API.
type UserDirectory interface {
	UserSettings(ctx context.Context, token, userID string) (core.UserSettings, error)
	UpdateUser(ctx context.Context, token, userID string, upd api.SettingsUpdate) error
}

// Invalidator drops cached data derived from a user's settings.
type Invalidator interface {
	Invalidate(userID string)
}

// SettingsService edits the tax settings the dashboard deducts.
type SettingsService struct {
	users UserDirectory
	after Invalidator
}

func NewSettingsService(users UserDirectory, after Invalidator) *SettingsService {
	return &SettingsService{users: users, after: after}
}

// Get returns the user's settings; a user without a record gets zero values.
func (s *SettingsService) Get(ctx context.Context, sess session.AuthSession) (core.UserSettings, error) {
	settings, err := s.users.UserSettings(ctx, sess.Token, sess.UserID)
	if errors.Is(err, api.ErrNotFound) {
		return core.UserSettings{ID: sess.UserID, Name: sess.Username}, nil
	}
	if err != nil {
		return core.UserSettings{}, fmt.Errorf("load user settings: %w", err)
	}
	return settings, nil
}

// Update validates and saves the settings, then invalidates the user's dashboards.
func (s *SettingsService) Update(ctx context.Context, sess session.AuthSession, upd api.SettingsUpdate) error {
	check := core.UserSettings{
		ID:                       sess.UserID,
		TaxDownPaymentPercentage: upd.TaxDownPaymentPercentage,
		MonthlySocialSecurity:    upd.MonthlySocialSecurity,
	}
	if err := check.Validate(); err != nil {
		return err
	}
	if err := s.users.UpdateUser(ctx, sess.Token, sess.UserID, upd); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if s.after != nil {
		s.after.Invalidate(sess.UserID)
	}
	slog.InfoContext(ctx, "User settings updated",
		"user_id", sess.UserID,
		"tax_down_payment_percentage", upd.TaxDownPaymentPercentage,
		"monthly_social_security_cents", upd.MonthlySocialSecurity.Cents)
	return nil
}
