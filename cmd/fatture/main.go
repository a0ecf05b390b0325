package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"fatture/internal/cli"
	apphttp "fatture/internal/http"
	applog "fatture/internal/log"
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		cli.SetupLogger(os.Stdout, "info", applog.ComponentApp).Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(os.Stdout, cfg.LogLevel, applog.ComponentApp)

	app, err := cli.Bootstrap(context.Background(), cfg, logger, cli.Options{Publisher: true})
	if err != nil {
		logger.Error("Failed to initialize", applog.FieldError, err, applog.FieldOperation, applog.OpStartup)
		os.Exit(1)
	}

	deps := apphttp.Deps{
		Auth:          app.Auth,
		Sessions:      app.Sessions,
		Dashboard:     app.Dashboard,
		Invoices:      app.Invoices,
		Settings:      app.Settings,
		Advisor:       app.Advisor,
		Issuer:        app.Issuer,
		ExportDir:     cfg.ExportDir,
		SheetsEnabled: cfg.SheetsEnabled(),
		CookieSecure:  cfg.CookieSecure,
		Logger:        logger,
	}
	// a nil *ExportService must not become a non-nil interface
	if app.Exports != nil {
		deps.Exports = app.Exports
	}
	if cfg.GoogleLoginEnabled() {
		redirect := cfg.GoogleRedirectURL
		if redirect == "" {
			redirect = cfg.BaseURL + "/auth/google/callback"
		}
		deps.Google = apphttp.NewGoogleLogin(cfg.GoogleClientID, cfg.GoogleClientSecret, redirect)
	}
	for _, c := range app.Backend.Checks {
		deps.Ready = append(deps.Ready, apphttp.ReadinessCheck{Name: c.Name, Check: c.Probe})
	}

	srv := apphttp.NewServer(":"+cfg.Port, deps)
	srv.ReadTimeout = 15 * time.Second
	srv.WriteTimeout = cfg.APITimeout + 15*time.Second
	srv.MaxHeaderBytes = 1 << 16

	sweepDone := make(chan struct{})
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go func() {
		defer close(sweepDone)
		sweepSessions(sweepCtx, app, logger)
	}()

	ctx := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		stopSweep()
		<-sweepDone
	})

	logger.Info("Starting fatture server",
		"port", cfg.Port,
		"session_backend", cfg.SessionBackend,
		"exports_enabled", app.Exports != nil,
		"google_login", deps.Google != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		_ = app.Close()
		os.Exit(1)
	}

	<-ctx.Done()
	if err := app.Close(); err != nil {
		logger.Warn("Cleanup failed", applog.FieldError, err)
	}
	logger.Info("Server stopped gracefully")
}

// sweepSessions drops expired sessions every few minutes. Redis expires keys
// on its own, the other stores need this.
func sweepSessions(ctx context.Context, app *cli.App, logger *applog.Logger) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := app.Sessions.Sweep(ctx)
			if err != nil {
				logger.Warn("Session sweep failed", applog.FieldError, err)
				continue
			}
			if n > 0 {
				logger.Info("Expired sessions removed", "count", n)
			}
		}
	}
}
