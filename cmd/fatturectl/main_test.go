package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"fatture/internal/core"
	"fatture/internal/period"
	"fatture/internal/session"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  "u-7",
		"username": "mario",
		"exp":      exp.Unix(),
	})
	s, err := tok.SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestSessionFromTokenFile(t *testing.T) {
	t.Setenv("FATTURE_TOKEN", "")
	opts := &rootOptions{tokenFile: filepath.Join(t.TempDir(), "nested", "token")}

	if _, err := opts.session(); !errors.Is(err, errNotLoggedIn) {
		t.Fatalf("missing file: got %v, want errNotLoggedIn", err)
	}

	if err := opts.saveToken(signedToken(t, time.Now().Add(time.Hour))); err != nil {
		t.Fatalf("saveToken: %v", err)
	}
	info, err := os.Stat(opts.tokenFile)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("token file mode = %o, want 600", perm)
	}

	sess, err := opts.session()
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if sess.UserID != "u-7" || sess.Username != "mario" {
		t.Errorf("session = %+v", sess)
	}
}

func TestSessionExpiredToken(t *testing.T) {
	t.Setenv("FATTURE_TOKEN", signedToken(t, time.Now().Add(-time.Hour)))
	opts := &rootOptions{tokenFile: filepath.Join(t.TempDir(), "token")}

	if _, err := opts.session(); !errors.Is(err, session.ErrExpired) {
		t.Fatalf("got %v, want ErrExpired", err)
	}
}

func TestSessionEnvOverridesFile(t *testing.T) {
	opts := &rootOptions{tokenFile: filepath.Join(t.TempDir(), "token")}
	if err := os.WriteFile(opts.tokenFile, []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FATTURE_TOKEN", signedToken(t, time.Now().Add(time.Hour)))

	sess, err := opts.session()
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if sess.UserID != "u-7" {
		t.Errorf("UserID = %q", sess.UserID)
	}
}

func TestReadPassword(t *testing.T) {
	t.Run("stdin", func(t *testing.T) {
		got, err := readPassword(strings.NewReader("s3cret pass\r\nignored\n"), true)
		if err != nil || got != "s3cret pass" {
			t.Errorf("got %q, %v", got, err)
		}
	})
	t.Run("stdin without newline", func(t *testing.T) {
		got, err := readPassword(strings.NewReader("abc"), true)
		if err != nil || got != "abc" {
			t.Errorf("got %q, %v", got, err)
		}
	})
	t.Run("empty stdin", func(t *testing.T) {
		if _, err := readPassword(strings.NewReader(""), true); err == nil {
			t.Error("expected error")
		}
	})
	t.Run("env", func(t *testing.T) {
		t.Setenv("FATTURE_PASSWORD", "from-env")
		got, err := readPassword(nil, false)
		if err != nil || got != "from-env" {
			t.Errorf("got %q, %v", got, err)
		}
	})
	t.Run("none", func(t *testing.T) {
		t.Setenv("FATTURE_PASSWORD", "")
		if _, err := readPassword(nil, false); err == nil {
			t.Error("expected error")
		}
	})
}

func TestDashboardRequest(t *testing.T) {
	now := time.Date(2024, 5, 17, 10, 0, 0, 0, time.Local)

	tests := []struct {
		name        string
		granularity string
		asOf        string
		want        period.Granularity
		wantAsOf    string
		wantErr     bool
	}{
		{name: "defaults to now", granularity: "month", want: period.Month, wantAsOf: "2024-05-17"},
		{name: "alias", granularity: "year", asOf: "2023-12-31", want: period.YTD, wantAsOf: "2023-12-31"},
		{name: "unknown granularity", granularity: "decade", wantErr: true},
		{name: "bad date", granularity: "quarter", asOf: "31/12/2023", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := dashboardRequest(tt.granularity, tt.asOf, true, now)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if req.Granularity != tt.want || req.AsOf.Format(time.DateOnly) != tt.wantAsOf || !req.CurrentPeriodOnly {
				t.Errorf("got %+v", req)
			}
		})
	}
}

func TestScopeFlags(t *testing.T) {
	now := time.Date(2024, 5, 17, 0, 0, 0, 0, time.Local)

	sc, err := (&scopeFlags{}).scope(now)
	if err != nil || !sc.All() {
		t.Fatalf("empty flags: %+v, %v", sc, err)
	}

	sc, err = (&scopeFlags{granularity: "quarter", asOf: "2024-02-10"}).scope(now)
	if err != nil {
		t.Fatal(err)
	}
	if sc.Granularity != period.Quarter || sc.AsOf.Month() != time.February {
		t.Errorf("got %+v", sc)
	}
	if !sc.Match(core.NewDate(2024, 3, 31)) || sc.Match(core.NewDate(2024, 4, 1)) {
		t.Error("quarter scope should cover January to March only")
	}

	if _, err := (&scopeFlags{granularity: "week"}).scope(now); !errors.Is(err, period.ErrUnknownGranularity) {
		t.Errorf("got %v, want ErrUnknownGranularity", err)
	}
}

func TestPrintInvoices(t *testing.T) {
	var buf bytes.Buffer
	err := printInvoices(&buf, []core.ResolvedInvoice{{Invoice: core.Invoice{
		ID: "1", Number: "2024/001", IssueDate: core.NewDate(2024, 3, 5), CustomerName: "Acme",
		Status: core.StatusPaid, Currency: "EUR", TotalAmount: core.Money{Cents: 122000}, TaxAmount: core.Money{Cents: 22000},
	}}})
	if err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"NUMBER", "2024/001", "Acme", "Paid", "EUR 1220.00", "220.00"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestLogoutRemovesToken(t *testing.T) {
	dir := t.TempDir()
	tokenFile := filepath.Join(dir, "token")
	if err := os.WriteFile(tokenFile, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--token-file", tokenFile, "logout"})
	if err := root.Execute(); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := os.Stat(tokenFile); !os.IsNotExist(err) {
		t.Errorf("token file still present: %v", err)
	}

	// A second logout is not an error.
	root = newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"--token-file", tokenFile, "logout"})
	if err := root.Execute(); err != nil {
		t.Errorf("second logout: %v", err)
	}
}

func TestMigrateCommands(t *testing.T) {
	db := filepath.Join(t.TempDir(), "ctl.db")

	run := func(args ...string) string {
		t.Helper()
		root := newRootCmd()
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetArgs(append([]string{"migrate", "--db", db}, args...))
		if err := root.Execute(); err != nil {
			t.Fatalf("migrate %v: %v", args, err)
		}
		return out.String()
	}

	if out := run("version"); !strings.Contains(out, "version 0") {
		t.Errorf("fresh db: %q", out)
	}
	up := run("up")
	if strings.Contains(up, "version 0 ") || !strings.Contains(up, "clean") {
		t.Errorf("after up: %q", up)
	}

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"migrate", "--db", db, "down", "zero"})
	if err := root.Execute(); err == nil {
		t.Error("expected error for non-numeric steps")
	}
}

func TestExportRejectsSheets(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"export", "sheets"})
	if err := root.Execute(); !errors.Is(err, core.ErrInvalidExportFormat) {
		t.Errorf("got %v, want ErrInvalidExportFormat", err)
	}
}
