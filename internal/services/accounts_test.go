package services

import (
	"context"
	"errors"
	"testing"

	"fatture/internal/api"
	"fatture/internal/core"
	"fatture/internal/session"
)

type fakeAuth struct {
	got   api.Credentials
	token string
	err   error
}

func (f *fakeAuth) Authenticate(ctx context.Context, creds api.Credentials) (string, error) {
	f.got = creds
	return f.token, f.err
}

type fakeIssuer struct {
	created   []string
	destroyed []string
	err       error
}

func (f *fakeIssuer) Create(ctx context.Context, token string) (session.AuthSession, error) {
	if f.err != nil {
		return session.AuthSession{}, f.err
	}
	f.created = append(f.created, token)
	return session.AuthSession{ID: "s-1", Token: token, UserID: "42", Username: "ann"}, nil
}

func (f *fakeIssuer) Destroy(ctx context.Context, id string) error {
	f.destroyed = append(f.destroyed, id)
	return nil
}

func TestAuthService(t *testing.T) {
	ctx := context.Background()

	t.Run("password login creates a session", func(t *testing.T) {
		auth := &fakeAuth{token: "a.b.c"}
		issuer := &fakeIssuer{}
		svc := NewAuthService(auth, issuer, "client-1")

		s, err := svc.Login(ctx, "  ann@example.com ", "secret")
		if err != nil {
			t.Fatalf("Login: %v", err)
		}
		if s.ID != "s-1" || s.Token != "a.b.c" {
			t.Fatalf("session = %+v", s)
		}
		if auth.got.Email != "ann@example.com" || auth.got.Password != "secret" || auth.got.Credential != "" {
			t.Fatalf("credentials = %+v", auth.got)
		}
	})

	t.Run("google login posts the id token with the client id", func(t *testing.T) {
		auth := &fakeAuth{token: "a.b.c"}
		svc := NewAuthService(auth, &fakeIssuer{}, "client-1")
		if _, err := svc.LoginWithGoogle(ctx, "id-token"); err != nil {
			t.Fatalf("LoginWithGoogle: %v", err)
		}
		if auth.got.Credential != "id-token" || auth.got.ClientID != "client-1" || auth.got.Email != "" {
			t.Fatalf("credentials = %+v", auth.got)
		}
	})

	t.Run("rejected credentials", func(t *testing.T) {
		auth := &fakeAuth{err: &api.Error{Op: "authenticate", StatusCode: 401}}
		issuer := &fakeIssuer{}
		svc := NewAuthService(auth, issuer, "")
		if _, err := svc.Login(ctx, "ann@example.com", "nope"); !errors.Is(err, api.ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
		if len(issuer.created) != 0 {
			t.Fatal("no session should be created")
		}
	})

	t.Run("undecodable token", func(t *testing.T) {
		svc := NewAuthService(&fakeAuth{token: "garbage"}, &fakeIssuer{err: session.ErrInvalidToken}, "")
		if _, err := svc.Login(ctx, "ann@example.com", "pw"); !errors.Is(err, session.ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("logout destroys the session", func(t *testing.T) {
		issuer := &fakeIssuer{}
		svc := NewAuthService(&fakeAuth{}, issuer, "")
		if err := svc.Logout(ctx, "s-9"); err != nil {
			t.Fatal(err)
		}
		if len(issuer.destroyed) != 1 || issuer.destroyed[0] != "s-9" {
			t.Fatalf("destroyed = %v", issuer.destroyed)
		}
	})
}

type fakeUsers struct {
	settings  core.UserSettings
	getErr    error
	updateErr error
	updated   []api.SettingsUpdate
}

func (f *fakeUsers) UserSettings(ctx context.Context, token, userID string) (core.UserSettings, error) {
	return f.settings, f.getErr
}

func (f *fakeUsers) UpdateUser(ctx context.Context, token, userID string, upd api.SettingsUpdate) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updated = append(f.updated, upd)
	return nil
}

type countingInvalidator struct{ users []string }

func (c *countingInvalidator) Invalidate(userID string) { c.users = append(c.users, userID) }

func TestSettingsService(t *testing.T) {
	ctx := context.Background()

	t.Run("get", func(t *testing.T) {
		users := &fakeUsers{settings: core.UserSettings{ID: "42", TaxDownPaymentPercentage: 20}}
		svc := NewSettingsService(users, nil)
		got, err := svc.Get(ctx, sess)
		if err != nil || got.TaxDownPaymentPercentage != 20 {
			t.Fatalf("Get = %+v, %v", got, err)
		}
	})

	t.Run("missing user yields zero settings", func(t *testing.T) {
		svc := NewSettingsService(&fakeUsers{getErr: &api.Error{StatusCode: 404}}, nil)
		got, err := svc.Get(ctx, sess)
		if err != nil || got.ID != "42" || got.TaxDownPaymentPercentage != 0 {
			t.Fatalf("Get = %+v, %v", got, err)
		}
	})

	t.Run("update invalidates dashboards", func(t *testing.T) {
		users := &fakeUsers{}
		inv := &countingInvalidator{}
		svc := NewSettingsService(users, inv)
		upd := api.SettingsUpdate{TaxDownPaymentPercentage: 15, MonthlySocialSecurity: eur(300)}
		if err := svc.Update(ctx, sess, upd); err != nil {
			t.Fatalf("Update: %v", err)
		}
		if len(users.updated) != 1 || len(inv.users) != 1 || inv.users[0] != "42" {
			t.Fatalf("updated=%v invalidated=%v", users.updated, inv.users)
		}
	})

	t.Run("invalid percentage is rejected before calling the API", func(t *testing.T) {
		users := &fakeUsers{}
		inv := &countingInvalidator{}
		svc := NewSettingsService(users, inv)
		err := svc.Update(ctx, sess, api.SettingsUpdate{TaxDownPaymentPercentage: 120})
		var ve *core.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if len(users.updated) != 0 || len(inv.users) != 0 {
			t.Fatal("nothing should be saved or invalidated")
		}
	})

	t.Run("api failure keeps the cache", func(t *testing.T) {
		inv := &countingInvalidator{}
		svc := NewSettingsService(&fakeUsers{updateErr: errors.New("boom")}, inv)
		if err := svc.Update(ctx, sess, api.SettingsUpdate{}); err == nil {
			t.Fatal("expected error")
		}
		if len(inv.users) != 0 {
			t.Fatal("cache should not be invalidated")
		}
	})
}

type fakeAdvisorSource struct {
	invoices []core.Invoice
	users    []core.UserSettings
	usersErr error
	advisor  string
}

func (f *fakeAdvisorSource) ListInvoicesForTaxAdvisor(ctx context.Context, token, advisorID string) ([]core.Invoice, error) {
	f.advisor = advisorID
	return f.invoices, nil
}

func (f *fakeAdvisorSource) ListUsers(ctx context.Context, token, userID string) ([]core.UserSettings, error) {
	return f.users, f.usersErr
}

func TestAdvisorService_Invoices(t *testing.T) {
	src := &fakeAdvisorSource{
		invoices: []core.Invoice{
			{ID: "1", Number: "A-1", UserID: "7", IssueDate: core.NewDate(2024, 1, 10)},
			{ID: "2", Number: "B-1", UserID: "8", IssueDate: core.NewDate(2024, 3, 5)},
			{ID: "3", Number: "C-1", UserID: "99", IssueDate: core.NewDate(2024, 2, 1)},
		},
		users: []core.UserSettings{
			{ID: "7", Name: "Ann", Email: "ann@example.com"},
			{ID: "8", Name: "Bob", Email: "bob@example.com"},
		},
	}
	svc := NewAdvisorService(src)

	rows, err := svc.Invoices(context.Background(), sess)
	if err != nil {
		t.Fatalf("Invoices: %v", err)
	}
	if src.advisor != "42" {
		t.Fatalf("advisor id = %q", src.advisor)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d", len(rows))
	}
	want := []struct{ number, email string }{
		{"B-1", "bob@example.com"},
		{"C-1", ""},
		{"A-1", "ann@example.com"},
	}
	for i, w := range want {
		if rows[i].Number != w.number || rows[i].ClientEmail != w.email {
			t.Errorf("row %d = %s/%s, want %s/%s", i, rows[i].Number, rows[i].ClientEmail, w.number, w.email)
		}
	}

	src.usersErr = errors.New("down")
	if _, err := svc.Invoices(context.Background(), sess); err == nil {
		t.Fatal("expected error when users cannot be listed")
	}
}
