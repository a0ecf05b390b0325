// Package cli holds the bootstrap shared by cmd/fatture, cmd/fatture-worker
// and cmd/fatturectl.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fatture/internal/aggregate"
	"fatture/internal/amqp"
	"fatture/internal/api"
	"fatture/internal/backend"
	"fatture/internal/cache"
	"fatture/internal/catalog"
	"fatture/internal/config"
	"fatture/internal/core"
	"fatture/internal/export"
	applog "fatture/internal/log"
	"fatture/internal/services"
	"fatture/internal/session"
)

const (
	catalogCacheSize   = 2000
	dashboardCacheSize = 200
	cacheCleanInterval = 5 * time.Minute
)

// SetupLogger installs the process-wide text logger.
func SetupLogger(w io.Writer, level, component string) *applog.Logger {
	if w == nil {
		w = os.Stdout
	}
	return applog.Setup(w, level, component)
}

// LoadEnvFile loads .env for local development; a missing file is fine.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads the configuration and validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Options tune Bootstrap per binary.
type Options struct {
	// Publisher connects to AMQP so new export jobs are announced.
	Publisher bool
	// NoStores keeps sessions in memory and disables export jobs, for
	// commands that talk to the API only.
	NoStores bool
}

// App is everything a binary needs, wired from one Config.
type App struct {
	Config   *config.Config
	Logger   *applog.Logger
	API      *api.Client
	Backend  *backend.Result
	Sessions *session.Manager
	Caches   *cache.Manager
	Resolver *catalog.Resolver
	AMQP     *amqp.Client

	Auth      *services.AuthService
	Dashboard *services.DashboardService
	Invoices  *services.InvoiceService
	Exports   *services.ExportService
	Settings  *services.SettingsService
	Advisor   *services.AdvisorService
	Issuer    export.Issuer
}

// Bootstrap opens the stores and builds the services. Call Close when done.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *applog.Logger, opts Options) (*App, error) {
	mode, err := aggregate.ParseTaxDeduction(cfg.TaxDeductionMode)
	if err != nil {
		return nil, err
	}

	stores := &backend.Result{Sessions: session.NewMemoryStore()}
	if !opts.NoStores {
		bcfg, err := backend.FromAppConfig(cfg)
		if err != nil {
			return nil, err
		}
		if stores, err = backend.NewFactory(logger.WithComponent(applog.ComponentStorage).Logger).Create(ctx, bcfg); err != nil {
			return nil, err
		}
	}

	app := &App{
		Config:   cfg,
		Logger:   logger,
		Backend:  stores,
		Sessions: session.NewManager(stores.Sessions, cfg.SessionTTL),
		Caches:   cache.NewManager(logger.WithComponent(applog.ComponentCache).Logger),
		Issuer:   export.Issuer{Name: cfg.IssuerName, Email: cfg.IssuerEmail},
	}
	app.API = api.NewClient(cfg.APIBaseURL, cfg.APITimeout, api.WithLogger(logger.WithComponent(applog.ComponentAPI).Logger))

	lineItems := cache.NewLRUCache[core.LineItem](catalogCacheSize, cfg.CatalogCacheTTL)
	dashboards := cache.NewLRUCache[*services.Dashboard](dashboardCacheSize, cfg.DashboardCacheTTL)
	app.Caches.Register("line_items", lineItems)
	app.Caches.Register("dashboards", dashboards)

	app.Resolver = catalog.NewResolver(app.API, lineItems, cfg.ResolveConcurrency)
	app.Dashboard = services.NewDashboardService(app.API, app.Resolver, dashboards, mode)
	app.Invoices = services.NewInvoiceService(app.API, app.Resolver)
	app.Auth = services.NewAuthService(app.API, app.Sessions, cfg.GoogleClientID)
	app.Settings = services.NewSettingsService(app.API, app.Dashboard)
	app.Advisor = services.NewAdvisorService(app.API)

	if opts.Publisher && cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to connect to AMQP, exports rely on the worker sweep", applog.FieldError, err)
		} else {
			app.AMQP = client
		}
	}

	if stores.Jobs != nil {
		if app.AMQP != nil {
			app.Exports = services.NewExportService(stores.Jobs, app.AMQP)
		} else {
			app.Exports = services.NewExportService(stores.Jobs, nil)
		}
	}

	app.Caches.StartCleanup(cacheCleanInterval)
	return app, nil
}

// Close stops the cache janitor and closes the broker and the stores.
func (a *App) Close() error {
	a.Caches.Stop()
	var errs []error
	if a.AMQP != nil {
		errs = append(errs, a.AMQP.Close())
	}
	if a.Backend != nil && a.Backend.Cleanup != nil {
		errs = append(errs, a.Backend.Cleanup())
	}
	return errors.Join(errs...)
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM, after
// cleanup has run within timeout.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func(ctx context.Context)) context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		}
		cancel()
	}()

	return ctx
}
