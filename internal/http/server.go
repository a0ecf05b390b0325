package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"fatture/internal/api"
	"fatture/internal/core"
	"fatture/internal/export"
	applog "fatture/internal/log"
	"fatture/internal/period"
	"fatture/internal/services"
	"fatture/internal/session"
	appweb "fatture/web"
)

// Authenticator signs users in and out.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (session.AuthSession, error)
	LoginWithGoogle(ctx context.Context, idToken string) (session.AuthSession, error)
	Logout(ctx context.Context, id string) error
}

// SessionLookup resolves the session cookie.
type SessionLookup interface {
	Lookup(ctx context.Context, id string) (session.AuthSession, error)
}

type DashboardLoader interface {
	Load(ctx context.Context, sess session.AuthSession, req services.DashboardRequest) (*services.Dashboard, error)
}

type InvoiceReader interface {
	Resolved(ctx context.Context, sess session.AuthSession, sc services.Scope) ([]core.ResolvedInvoice, error)
	Find(ctx context.Context, sess session.AuthSession, id string) (core.ResolvedInvoice, error)
}

type ExportRequester interface {
	Request(ctx context.Context, sess session.AuthSession, format core.ExportFormat, g period.Granularity, asOf time.Time) (core.ExportJob, error)
	Get(ctx context.Context, sess session.AuthSession, id string) (core.ExportJob, error)
	List(ctx context.Context, sess session.AuthSession, limit int) ([]core.ExportJob, error)
}

type SettingsEditor interface {
	Get(ctx context.Context, sess session.AuthSession) (core.UserSettings, error)
	Update(ctx context.Context, sess session.AuthSession, upd api.SettingsUpdate) error
}

type AdvisorReader interface {
	Invoices(ctx context.Context, sess session.AuthSession) ([]services.AdvisorInvoice, error)
}

// ReadinessCheck is one dependency probed by /readyz.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Deps wires the server to the services. Exports, Settings, Advisor and
// Google may be nil; their pages then answer 404.
type Deps struct {
	Auth      Authenticator
	Sessions  SessionLookup
	Dashboard DashboardLoader
	Invoices  InvoiceReader
	Exports   ExportRequester
	Settings  SettingsEditor
	Advisor   AdvisorReader
	Google    *GoogleLogin

	Issuer        export.Issuer
	ExportDir     string
	SheetsEnabled bool
	CookieSecure  bool
	RateLimit     int
	Logger        *applog.Logger
	Ready         []ReadinessCheck
}

type Server struct {
	http.Server
	deps        Deps
	templates   *template.Template
	logger      *applog.Logger
	structured  *applog.StructuredLogger
	rateLimiter *rateLimiter
	metrics     *securityMetrics
	now         func() time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = applog.New(applog.Config{Component: applog.ComponentHTTP})
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	s := &Server{
		deps:        deps,
		logger:      logger,
		structured:  applog.NewStructuredLogger(logger),
		rateLimiter: newRateLimiter(deps.RateLimit),
		metrics:     &securityMetrics{},
		now:         time.Now,
	}

	t, err := parseTemplates()
	if err != nil {
		logger.Warn("Failed parsing templates", "error", err)
	}
	s.templates = t

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.withRequestID)
	r.Use(applog.Middleware(s.logger, requestIDFromRequest))
	r.Use(s.withAccessLog)
	r.Use(s.withSecurityHeaders)
	r.Use(s.withRateLimit)

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		r.Handle("/static/*", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "public, max-age=3600")
			static.ServeHTTP(w, r)
		}))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", "error", err)
	}

	r.Get("/login", s.handleLoginPage)
	r.Post("/login", s.handleLogin)
	r.Get("/auth/google", s.handleGoogleStart)
	r.Get("/auth/google/callback", s.handleGoogleCallback)

	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		})
		r.Post("/logout", s.handleLogout)

		r.Get("/dashboard", s.handleDashboardPage)
		r.Get("/ui/dashboard", s.handleDashboardPanel)

		r.Route("/invoices", func(r chi.Router) {
			r.Get("/", s.handleInvoicesPage)
			r.Get("/export.csv", s.handleInvoicesCSV)
			r.Get("/{id}/pdf", s.handleInvoicePDF)
		})

		r.Route("/exports", func(r chi.Router) {
			r.Get("/", s.handleExportsPage)
			r.Post("/", s.handleCreateExport)
			r.Get("/{id}", s.handleExportStatus)
			r.Get("/{id}/download", s.handleExportDownload)
		})

		r.Get("/settings", s.handleSettingsPage)
		r.Post("/settings", s.handleSaveSettings)
		r.Get("/tax-advisor", s.handleAdvisorPage)

		r.Route("/api", func(r chi.Router) {
			r.Use(applog.ComponentMiddleware(applog.ComponentAPI))
			r.Get("/dashboard", s.handleDashboardJSON)
			r.Get("/exports/{id}", s.handleExportJSON)
		})
	})

	return r
}

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		s.logger.Info("Security summary", "counters", s.metrics.snapshot())
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady probes every readiness check with a short timeout.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	failed := map[string]string{}
	for _, c := range s.deps.Ready {
		if err := c.Check(ctx); err != nil {
			failed[c.Name] = err.Error()
		}
	}
	if len(failed) > 0 {
		s.logger.WarnContext(ctx, "Readiness check failed", "failed", failed)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not ready", "failed": failed})
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
