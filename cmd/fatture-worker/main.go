package main

import (
	"context"
	"errors"
	"os"
	"time"

	"fatture/internal/amqp"
	"fatture/internal/cli"
	applog "fatture/internal/log"
	"fatture/internal/sheets"
	gsheet "fatture/internal/sheets/google"
	"fatture/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		cli.SetupLogger(os.Stdout, "info", applog.ComponentWorker).Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(os.Stdout, cfg.LogLevel, applog.ComponentWorker)
	logger.Info("Starting fatture-worker")

	app, err := cli.Bootstrap(context.Background(), cfg, logger, cli.Options{})
	if err != nil {
		logger.Error("Failed to initialize", applog.FieldError, err, applog.FieldOperation, applog.OpStartup)
		os.Exit(1)
	}
	defer app.Close()

	if app.Backend.Jobs == nil {
		logger.Error("The export worker needs SQLITE_DB_PATH for the job table")
		os.Exit(1)
	}

	var exporter sheets.InvoiceExporter
	if cfg.SheetsEnabled() {
		client, err := gsheet.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
			os.Exit(1)
		}
		exporter = client
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	w := worker.NewExportWorker(app.Backend.Jobs, app.Sessions, app.Invoices, exporter, worker.Options{
		Dir:         cfg.ExportDir,
		Issuer:      app.Issuer,
		BatchSize:   cfg.ExportBatchSize,
		MaxAttempts: cfg.ExportMaxAttempts,
	})

	done := make(chan struct{})
	ctx := cli.GracefulShutdown(logger, 30*time.Second, nil)

	// Jobs queued while the worker was down.
	if n, err := w.ProcessPendingJobs(ctx); err != nil {
		logger.Error("Startup sweep failed", applog.FieldError, err)
	} else if n > 0 {
		logger.Info("Startup sweep processed jobs", "count", n)
	}

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
			os.Exit(1)
		}
		defer client.Close()

		go func() {
			if err := client.ConsumeExportRequests(ctx, w.HandleExportMessage); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", applog.FieldError, err)
			}
		}()
	} else {
		logger.Info("AMQP disabled, relying on the periodic sweep")
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(cfg.ExportSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := w.ProcessPendingJobs(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("Periodic export sweep failed", applog.FieldError, err)
				}
			}
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down worker...")
	<-done
	logger.Info("Worker shutdown complete")
}
