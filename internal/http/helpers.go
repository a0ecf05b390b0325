package http

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"fatture/internal/core"
)

const displayCurrency = "EUR"

var currencySymbols = map[string]string{
	"EUR": "€",
	"USD": "$",
	"GBP": "£",
	"CHF": "CHF ",
}

// formatMoney renders an amount for display, e.g. "€1234.56" or "-$3.00".
func formatMoney(currency string, m core.Money) string {
	symbol, ok := currencySymbols[strings.ToUpper(currency)]
	if !ok {
		if currency == "" {
			symbol = currencySymbols[displayCurrency]
		} else {
			symbol = strings.ToUpper(currency) + " "
		}
	}
	d := m.Decimal()
	if strings.HasPrefix(d, "-") {
		return "-" + symbol + d[1:]
	}
	return symbol + d
}

func formatDate(d core.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.Format("2006-01-02")
}

// sanitizeInput removes control characters except tab and newlines and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// safeRedirect keeps post-login redirects on this site.
func safeRedirect(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return "/dashboard"
	}
	if u, err := url.Parse(next); err != nil || u.Host != "" || u.Scheme != "" {
		return "/dashboard"
	}
	return next
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	id, err := randomHex(8)
	if err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + id
}
