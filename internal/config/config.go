package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"fatture/internal/aggregate"
)

// Session backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

type Config struct {
	// HTTP Server
	Port         string
	BaseURL      string
	CookieSecure bool
	LogLevel     string

	// Invoicing API
	APIBaseURL string
	APITimeout time.Duration

	// Sessions
	SessionBackend string
	SQLiteDBPath   string
	RedisURL       string
	SessionTTL     time.Duration

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google login
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Google Sheets export. Credentials are read by the sheets client from
	// the environment, the fields here are only validated.
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleOAuthClientFile    string
	GoogleOAuthTokenFile     string
	GoogleOAuthClientJSON    string
	GoogleOAuthTokenJSON     string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string

	// Export worker
	ExportDir           string
	ExportSweepInterval time.Duration
	ExportBatchSize     int
	ExportMaxAttempts   int

	// Caching and aggregation
	CatalogCacheTTL    time.Duration
	DashboardCacheTTL  time.Duration
	ResolveConcurrency int
	TaxDeductionMode   string

	// PDF letterhead
	IssuerName  string
	IssuerEmail string
}

// source resolves a key from the environment first, then from the optional
// YAML file named by FATTURE_CONFIG.
type source map[string]string

// Load reads the configuration. Defaults, then FATTURE_CONFIG, then the
// environment. YAML keys are the lower-cased variable names, e.g.
// api_base_url.
func Load() (*Config, error) {
	src := source{}
	if path := strings.TrimSpace(os.Getenv("FATTURE_CONFIG")); path != "" {
		var err error
		if src, err = readFile(path); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		Port:         src.get("PORT", "8080"),
		BaseURL:      src.get("BASE_URL", "http://localhost:8080"),
		CookieSecure: src.getBool("COOKIE_SECURE", false),
		LogLevel:     src.get("LOG_LEVEL", "info"),

		APIBaseURL: src.get("API_BASE_URL", "http://localhost:3000"),
		APITimeout: src.getDuration("API_TIMEOUT", 15*time.Second),

		SessionBackend: src.get("SESSION_BACKEND", BackendSQLite),
		SQLiteDBPath:   src.get("SQLITE_DB_PATH", "./data/fatture.db"),
		RedisURL:       src.get("REDIS_URL", ""),
		SessionTTL:     src.getDuration("SESSION_TTL", 12*time.Hour),

		AMQPURL:      src.get("AMQP_URL", ""),
		AMQPExchange: src.get("AMQP_EXCHANGE", "fatture"),
		AMQPQueue:    src.get("AMQP_QUEUE", "export_requests"),

		GoogleClientID:     src.get("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: src.get("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  src.get("GOOGLE_REDIRECT_URL", ""),

		GoogleSpreadsheetID:      src.get("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          src.get("GOOGLE_SHEET_NAME", "Fatture"),
		GoogleOAuthClientFile:    src.get("GOOGLE_OAUTH_CLIENT_FILE", ""),
		GoogleOAuthTokenFile:     src.get("GOOGLE_OAUTH_TOKEN_FILE", ""),
		GoogleOAuthClientJSON:    src.get("GOOGLE_OAUTH_CLIENT_JSON", ""),
		GoogleOAuthTokenJSON:     src.get("GOOGLE_OAUTH_TOKEN_JSON", ""),
		GoogleServiceAccountFile: src.get("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleServiceAccountJSON: src.get("GOOGLE_SERVICE_ACCOUNT_JSON", ""),

		ExportDir:           src.get("EXPORT_DIR", "./data/exports"),
		ExportSweepInterval: src.getDuration("EXPORT_SWEEP_INTERVAL", 30*time.Second),
		ExportBatchSize:     src.getInt("EXPORT_BATCH_SIZE", 10),
		ExportMaxAttempts:   src.getInt("EXPORT_MAX_ATTEMPTS", 3),

		CatalogCacheTTL:    src.getDuration("CATALOG_CACHE_TTL", 10*time.Minute),
		DashboardCacheTTL:  src.getDuration("DASHBOARD_CACHE_TTL", time.Minute),
		ResolveConcurrency: src.getInt("RESOLVE_CONCURRENCY", 8),
		TaxDeductionMode:   src.get("TAX_DEDUCTION_MODE", string(aggregate.PerInvoice)),

		IssuerName:  src.get("ISSUER_NAME", ""),
		IssuerEmail: src.get("ISSUER_EMAIL", ""),
	}
	return cfg, nil
}

func readFile(path string) (source, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	raw := map[string]string{}
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	src := make(source, len(raw))
	for k, v := range raw {
		src[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	return src, nil
}

// GoogleLoginEnabled reports whether the Google sign-in button is shown.
func (c *Config) GoogleLoginEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// SheetsEnabled reports whether Google Sheets exports can run.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if u, err := url.Parse(c.APIBaseURL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		errors = append(errors, fmt.Sprintf("invalid API base URL '%s': must be an absolute http(s) URL", c.APIBaseURL))
	}
	if c.APITimeout < time.Second || c.APITimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid API timeout %v: must be between 1 second and 5 minutes", c.APITimeout))
	}

	// Validate session backend
	validBackends := []string{BackendSQLite, BackendRedis, BackendMemory}
	if !slices.Contains(validBackends, c.SessionBackend) {
		errors = append(errors, fmt.Sprintf("invalid session backend '%s': must be one of %v", c.SessionBackend, validBackends))
	}
	if c.SessionBackend == BackendSQLite {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}
	if c.SessionBackend == BackendRedis {
		if u, err := url.Parse(c.RedisURL); c.RedisURL == "" || err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			errors = append(errors, fmt.Sprintf("invalid Redis URL '%s': required for redis backend with scheme 'redis' or 'rediss'", c.RedisURL))
		}
	}
	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Google login needs all three or nothing
	if c.GoogleClientID != "" || c.GoogleClientSecret != "" {
		if c.GoogleClientID == "" || c.GoogleClientSecret == "" || c.GoogleRedirectURL == "" {
			errors = append(errors, "Google login requires GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET and GOOGLE_REDIRECT_URL")
		}
	}

	if c.SheetsEnabled() {
		errors = append(errors, c.validateSheets()...)
	}

	if c.ExportDir == "" {
		errors = append(errors, "export directory cannot be empty")
	}
	if c.ExportSweepInterval < time.Second || c.ExportSweepInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid export sweep interval %v: must be between 1 second and 24 hours", c.ExportSweepInterval))
	}
	if c.ExportBatchSize < 1 || c.ExportBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid export batch size %d: must be between 1 and 1000", c.ExportBatchSize))
	}
	if c.ExportMaxAttempts < 1 {
		errors = append(errors, fmt.Sprintf("invalid export max attempts %d: must be at least 1", c.ExportMaxAttempts))
	}

	if c.CatalogCacheTTL < 0 || c.DashboardCacheTTL < 0 {
		errors = append(errors, "cache TTLs cannot be negative")
	}
	if c.ResolveConcurrency < 1 || c.ResolveConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid resolve concurrency %d: must be between 1 and 64", c.ResolveConcurrency))
	}
	if _, err := aggregate.ParseTaxDeduction(c.TaxDeductionMode); err != nil {
		errors = append(errors, fmt.Sprintf("invalid tax deduction mode '%s': must be per_invoice or per_line", c.TaxDeductionMode))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func (c *Config) validateSheets() []string {
	var errors []string
	if c.GoogleSheetName == "" {
		errors = append(errors, "Google Sheet name is required when a spreadsheet is configured")
	}

	for _, f := range []struct{ name, path string }{
		{"Google service account file", c.GoogleServiceAccountFile},
		{"Google OAuth client file", c.GoogleOAuthClientFile},
		{"Google OAuth token file", c.GoogleOAuthTokenFile},
	} {
		if f.path == "" {
			continue
		}
		if _, err := os.Stat(f.path); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("%s does not exist: %s", f.name, f.path))
		}
	}

	if c.GoogleServiceAccountFile != "" || c.GoogleServiceAccountJSON != "" {
		return errors
	}
	if c.GoogleOAuthClientFile == "" && c.GoogleOAuthClientJSON == "" {
		errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_FILE/JSON or GOOGLE_OAUTH_CLIENT_FILE/JSON must be provided for sheets export")
	}
	if c.GoogleOAuthTokenFile == "" && c.GoogleOAuthTokenJSON == "" {
		errors = append(errors, "either GOOGLE_OAUTH_TOKEN_FILE or GOOGLE_OAUTH_TOKEN_JSON must be provided for sheets export")
	}
	return errors
}

func (s source) get(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	if value, ok := s[key]; ok && value != "" {
		return value
	}
	return defaultValue
}

func (s source) getInt(key string, defaultValue int) int {
	if value := s.get(key, ""); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func (s source) getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := s.get(key, ""); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func (s source) getBool(key string, defaultValue bool) bool {
	if value := s.get(key, ""); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
