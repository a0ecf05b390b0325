package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"fatture/internal/core"
	"fatture/internal/period"
)

var parserNow = time.Date(2024, time.May, 17, 15, 30, 0, 0, time.UTC)

func TestParseDashboardParams(t *testing.T) {
	tests := []struct {
		name        string
		query       url.Values
		wantG       period.Granularity
		wantAsOf    string
		wantCurrent bool
		wantErr     bool
	}{
		{
			name:     "empty query uses month and today",
			query:    url.Values{},
			wantG:    period.Month,
			wantAsOf: "2024-05-17",
		},
		{
			name:        "all values provided",
			query:       url.Values{"granularity": {"quarter"}, "as_of": {"2023-12-31"}, "current": {"on"}},
			wantG:       period.Quarter,
			wantAsOf:    "2023-12-31",
			wantCurrent: true,
		},
		{
			name:     "current flag false",
			query:    url.Values{"granularity": {"ytd"}, "current": {"0"}},
			wantG:    period.YTD,
			wantAsOf: "2024-05-17",
		},
		{
			name:    "unknown granularity",
			query:   url.Values{"granularity": {"weekly"}},
			wantErr: true,
		},
		{
			name:    "malformed date",
			query:   url.Values{"as_of": {"17/05/2024"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseDashboardParams(tt.query, parserNow)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDashboardParams() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if req.Granularity != tt.wantG {
				t.Errorf("Granularity = %q, want %q", req.Granularity, tt.wantG)
			}
			if got := req.AsOf.Format("2006-01-02"); got != tt.wantAsOf {
				t.Errorf("AsOf = %s, want %s", got, tt.wantAsOf)
			}
			if req.CurrentPeriodOnly != tt.wantCurrent {
				t.Errorf("CurrentPeriodOnly = %v, want %v", req.CurrentPeriodOnly, tt.wantCurrent)
			}
		})
	}
}

func TestParseDashboardParams_ErrorKinds(t *testing.T) {
	_, err := ParseDashboardParams(url.Values{"granularity": {"weekly"}}, parserNow)
	if !errors.Is(err, period.ErrUnknownGranularity) {
		t.Errorf("expected ErrUnknownGranularity, got %v", err)
	}

	_, err = ParseDashboardParams(url.Values{"as_of": {"tomorrow"}}, parserNow)
	var ve *core.ValidationError
	if !errors.As(err, &ve) || ve.Field != "as_of" {
		t.Errorf("expected as_of validation error, got %v", err)
	}
}

func TestParseScopeParams(t *testing.T) {
	tests := []struct {
		name    string
		query   url.Values
		wantAll bool
		wantG   period.Granularity
		wantErr bool
	}{
		{"missing granularity selects all", url.Values{}, true, "", false},
		{"explicit all", url.Values{"granularity": {"ALL"}}, true, "", false},
		{"last twelve months", url.Values{"granularity": {"last12Months"}}, false, period.Last12Months, false},
		{"bad granularity", url.Values{"granularity": {"fortnight"}}, false, "", true},
		{"bad date", url.Values{"as_of": {"2024-13-01"}}, false, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc, err := ParseScopeParams(tt.query, parserNow)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseScopeParams() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if sc.All() != tt.wantAll {
				t.Errorf("All() = %v, want %v", sc.All(), tt.wantAll)
			}
			if sc.Granularity != tt.wantG {
				t.Errorf("Granularity = %q, want %q", sc.Granularity, tt.wantG)
			}
		})
	}
}

func newFormParser(t *testing.T, body string) *RequestBodyParser {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/settings", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	p := NewRequestBodyParser(req)
	if err := p.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return p
}

func TestParseSettingsUpdate(t *testing.T) {
	t.Run("comma decimals", func(t *testing.T) {
		p := newFormParser(t, "name=+Ada+&email=ada%40example.com&tax_down_payment_percentage=27%2C5&monthly_social_security=350%2C25")
		upd, err := ParseSettingsUpdate(p)
		if err != nil {
			t.Fatal(err)
		}
		if upd.Name != "Ada" || upd.Email != "ada@example.com" {
			t.Errorf("name/email = %q/%q", upd.Name, upd.Email)
		}
		if upd.TaxDownPaymentPercentage != 27.5 {
			t.Errorf("percentage = %v, want 27.5", upd.TaxDownPaymentPercentage)
		}
		if upd.MonthlySocialSecurity.Cents != 35025 {
			t.Errorf("social security = %d, want 35025", upd.MonthlySocialSecurity.Cents)
		}
	})

	t.Run("blank amounts stay zero", func(t *testing.T) {
		upd, err := ParseSettingsUpdate(newFormParser(t, "name=Ada"))
		if err != nil {
			t.Fatal(err)
		}
		if upd.TaxDownPaymentPercentage != 0 || upd.MonthlySocialSecurity.Cents != 0 {
			t.Errorf("unexpected amounts: %+v", upd)
		}
	})

	t.Run("bad percentage", func(t *testing.T) {
		_, err := ParseSettingsUpdate(newFormParser(t, "tax_down_payment_percentage=lots"))
		var ve *core.ValidationError
		if !errors.As(err, &ve) || ve.Field != "tax_down_payment_percentage" {
			t.Errorf("expected percentage validation error, got %v", err)
		}
	})

	t.Run("bad social security", func(t *testing.T) {
		_, err := ParseSettingsUpdate(newFormParser(t, "monthly_social_security=abc"))
		var ve *core.ValidationError
		if !errors.As(err, &ve) || ve.Field != "monthly_social_security" {
			t.Errorf("expected social security validation error, got %v", err)
		}
	})
}

func TestRequestBodyParser_JSON(t *testing.T) {
	body := `{"email":"  ada@example.com ","password":" secret ","remember":true,"attempts":3}`
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	parser := NewRequestBodyParser(req)
	if err := parser.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !parser.IsJSON() {
		t.Error("Expected IsJSON() to be true")
	}
	if got := parser.Get("email"); got != "ada@example.com" {
		t.Errorf("Get('email') = %q", got)
	}
	if got := parser.GetRaw("password"); got != " secret " {
		t.Errorf("GetRaw('password') = %q, want untouched value", got)
	}
	if got := parser.Get("remember"); got != "true" {
		t.Errorf("Get('remember') = %q, want 'true'", got)
	}
	if got := parser.Get("attempts"); got != "3" {
		t.Errorf("Get('attempts') = %q, want '3'", got)
	}
}

func TestRequestBodyParser_JSONWithoutContentType(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"a@b.c"}`))
	parser := NewRequestBodyParser(req)
	if err := parser.Parse(); err != nil {
		t.Fatal(err)
	}
	if !parser.IsJSON() || parser.Get("email") != "a@b.c" {
		t.Error("body starting with '{' should be read as JSON")
	}
}

func TestRequestBodyParser_MalformedJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":`))
	req.Header.Set("Content-Type", "application/json")
	parser := NewRequestBodyParser(req)
	if err := parser.Parse(); err == nil {
		t.Fatal("expected a decode error")
	}
	if err := parser.Parse(); err == nil {
		t.Error("second Parse() should report the same error")
	}
}

func TestRequestBodyParser_FormData(t *testing.T) {
	p := newFormParser(t, "email=ada%40example.com&note=line%01one")
	if p.IsJSON() {
		t.Error("Expected IsJSON() to be false for form data")
	}
	if got := p.Get("note"); got != "lineone" {
		t.Errorf("Get('note') = %q, control characters should be dropped", got)
	}
}

func TestRequestBodyParser_EmptyBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(""))
	parser := NewRequestBodyParser(req)
	if err := parser.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if val := parser.Get("nonexistent"); val != "" {
		t.Errorf("Get('nonexistent') = %q, want empty string", val)
	}
}

func TestSafeRedirect(t *testing.T) {
	tests := []struct {
		next string
		want string
	}{
		{"", "/dashboard"},
		{"/invoices?granularity=ytd", "/invoices?granularity=ytd"},
		{"//evil.example.com", "/dashboard"},
		{"https://evil.example.com/", "/dashboard"},
		{`/\evil.example.com`, "/dashboard"},
		{"settings", "/dashboard"},
	}
	for _, tt := range tests {
		if got := safeRedirect(tt.next); got != tt.want {
			t.Errorf("safeRedirect(%q) = %q, want %q", tt.next, got, tt.want)
		}
	}
}

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		currency string
		cents    int64
		want     string
	}{
		{"EUR", 123456, "€1234.56"},
		{"usd", -300, "-$3.00"},
		{"", 5, "€0.05"},
		{"SEK", 1000, "SEK 10.00"},
	}
	for _, tt := range tests {
		if got := formatMoney(tt.currency, core.Money{Cents: tt.cents}); got != tt.want {
			t.Errorf("formatMoney(%q, %d) = %q, want %q", tt.currency, tt.cents, got, tt.want)
		}
	}
}
