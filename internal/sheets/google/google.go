package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"fatture/internal/core"
	"fatture/internal/export"
	ports "fatture/internal/sheets"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Base tab name, e.g. "Fatture"; callers pass a suffix per export.
	sheetBase string

	mu    sync.Mutex
	known map[string]bool
}

var _ ports.InvoiceExporter = (*Client)(nil)

// jsonUnmarshal is swapped in tests.
var jsonUnmarshal = json.Unmarshal

// NewFromEnv creates a Sheets client using environment variables.
// Required: GOOGLE_SPREADSHEET_ID
// Auth: GOOGLE_OAUTH_CLIENT_JSON/FILE plus GOOGLE_OAUTH_TOKEN_JSON/FILE (see
// cmd/oauth-init), or GOOGLE_SERVICE_ACCOUNT_JSON/FILE.
// Optional: GOOGLE_SHEET_NAME (default "Fatture").
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	base := strings.TrimSpace(os.Getenv("GOOGLE_SHEET_NAME"))
	if base == "" {
		base = "Fatture"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return New(svc, spreadsheetID, base), nil
}

func New(svc *gsheet.Service, spreadsheetID, sheetBase string) *Client {
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     sheetBase,
		known:         make(map[string]bool),
	}
}

// newSheetsService prefers a service account when one is configured and
// otherwise uses the stored OAuth user token.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	if sa, err := readEnvOrFile("GOOGLE_SERVICE_ACCOUNT_JSON", "GOOGLE_SERVICE_ACCOUNT_FILE"); err != nil {
		return nil, fmt.Errorf("read service account: %w", err)
	} else if sa != nil {
		slog.InfoContext(ctx, "Creating Google Sheets service with Service Account", "credentials_size", len(sa))
		svc, err := gsheet.NewService(ctx,
			goption.WithCredentialsJSON(sa),
			goption.WithScopes(gsheet.SpreadsheetsScope))
		if err != nil {
			return nil, fmt.Errorf("create sheets service: %w", err)
		}
		return svc, nil
	}

	clientJSON, err := readEnvOrFile("GOOGLE_OAUTH_CLIENT_JSON", "GOOGLE_OAUTH_CLIENT_FILE")
	if err != nil {
		return nil, fmt.Errorf("read oauth client: %w", err)
	}
	if clientJSON == nil {
		return nil, errors.New("missing oauth client (set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE)")
	}
	tokenJSON, err := readEnvOrFile("GOOGLE_OAUTH_TOKEN_JSON", "GOOGLE_OAUTH_TOKEN_FILE")
	if err != nil {
		return nil, fmt.Errorf("read oauth token: %w", err)
	}
	if tokenJSON == nil {
		return nil, errors.New("missing oauth token (set GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE)")
	}

	cfg, err := googleoauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	var tok oauth2.Token
	if err := jsonUnmarshal(tokenJSON, &tok); err != nil {
		return nil, fmt.Errorf("oauth token: %w", err)
	}

	// The token source refreshes through the pooled client.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, newHTTPClientWithPooling())
	svc, err := gsheet.NewService(ctx, goption.WithTokenSource(cfg.TokenSource(ctx, &tok)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created with OAuth token")
	return svc, nil
}

func readEnvOrFile(jsonKey, fileKey string) ([]byte, error) {
	if v := strings.TrimSpace(os.Getenv(jsonKey)); v != "" {
		return []byte(v), nil
	}
	if path := strings.TrimSpace(os.Getenv(fileKey)); path != "" {
		return os.ReadFile(path)
	}
	return nil, nil
}

// newHTTPClientWithPooling creates an HTTP client for the Sheets API with
// connection pooling and bounded timeouts.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

// TabName returns "<base> <suffix>"; an empty suffix yields the base name.
func (c *Client) TabName(suffix string) string {
	suffix = strings.TrimSpace(suffix)
	if suffix == "" {
		return c.sheetBase
	}
	return c.sheetBase + " " + suffix
}

// ExportInvoices replaces the content of the tab named TabName(label) with a
// header row plus one row per invoice, creating the tab when needed.
func (c *Client) ExportInvoices(ctx context.Context, label string, invoices []core.ResolvedInvoice) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	tab := c.TabName(label)
	if tab == "" {
		return "", errors.New("empty sheet name")
	}
	if err := c.ensureSheet(ctx, tab); err != nil {
		return "", err
	}

	clearRng := quoteSheet(tab) + "!A:L"
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, clearRng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("clear %s: %w", clearRng, err)
	}

	values := invoiceValues(invoices)
	rng := fmt.Sprintf("%s!A1:L%d", quoteSheet(tab), len(values))
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("update %s: %w", rng, err)
	}

	slog.InfoContext(ctx, "Invoices written to sheet",
		"sheet", tab,
		"rows", len(invoices),
		"range", rng)
	return rng, nil
}

func (c *Client) ensureSheet(ctx context.Context, tab string) error {
	c.mu.Lock()
	ok := c.known[tab]
	c.mu.Unlock()
	if ok {
		return nil
	}

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	exists := false
	c.mu.Lock()
	for _, sh := range ss.Sheets {
		if sh.Properties == nil {
			continue
		}
		c.known[sh.Properties.Title] = true
		if sh.Properties.Title == tab {
			exists = true
		}
	}
	c.mu.Unlock()
	if exists {
		return nil
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: tab}},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %q: %w", tab, err)
	}
	slog.InfoContext(ctx, "Sheet created", "sheet", tab)

	c.mu.Lock()
	c.known[tab] = true
	c.mu.Unlock()
	return nil
}

func invoiceValues(invoices []core.ResolvedInvoice) [][]any {
	out := make([][]any, 0, len(invoices)+1)
	out = append(out, toAny(export.Header))
	for _, inv := range invoices {
		out = append(out, toAny(export.Row(inv)))
	}
	return out
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

// quoteSheet wraps a tab name in single quotes for A1 notation, doubling
// embedded quotes.
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
