package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"fatture/internal/amqp"
	"fatture/internal/api"
	"fatture/internal/core"
	"fatture/internal/export"
	"fatture/internal/period"
	"fatture/internal/services"
	"fatture/internal/session"
	"fatture/internal/sheets"
	"fatture/internal/storage"
)

var (
	ErrSheetsNotConfigured = errors.New("google sheets export is not configured")
	ErrSessionMismatch     = errors.New("session does not belong to the job owner")
)

// JobQueue is the export job table as the worker sees it.
type JobQueue interface {
	GetExportJob(ctx context.Context, id string) (core.ExportJob, error)
	ClaimExportJob(ctx context.Context, id string, staleAfter time.Duration) error
	MarkExportJobDone(ctx context.Context, id, outputPath, resultRef string) error
	MarkExportJobFailed(ctx context.Context, id string, cause error) error
	ResetExportJob(ctx context.Context, id string, cause error) error
	ListPendingExportJobs(ctx context.Context, staleAfter time.Duration, limit int) ([]core.ExportJob, error)
}

type SessionLookup interface {
	Lookup(ctx context.Context, id string) (session.AuthSession, error)
}

type InvoiceReader interface {
	Resolved(ctx context.Context, sess session.AuthSession, sc services.Scope) ([]core.ResolvedInvoice, error)
}

type Options struct {
	Dir         string
	Issuer      export.Issuer
	BatchSize   int
	MaxAttempts int
	// StaleAfter is how long a running job may go untouched before another
	// worker is allowed to take it over.
	StaleAfter time.Duration
}

// ExportWorker turns export jobs into files under Dir or Google Sheets tabs.
type ExportWorker struct {
	jobs     JobQueue
	sessions SessionLookup
	invoices InvoiceReader
	sheets   sheets.InvoiceExporter
	opts     Options
}

// NewExportWorker accepts a nil exporter; sheets jobs then fail permanently.
func NewExportWorker(jobs JobQueue, sessions SessionLookup, invoices InvoiceReader, exporter sheets.InvoiceExporter, opts Options) *ExportWorker {
	if opts.Dir == "" {
		opts.Dir = "./data/exports"
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 10 * time.Minute
	}
	return &ExportWorker{jobs: jobs, sessions: sessions, invoices: invoices, sheets: exporter, opts: opts}
}

// HandleExportMessage processes the job named by an AMQP export request.
// A returned error makes the consumer requeue the message.
func (w *ExportWorker) HandleExportMessage(ctx context.Context, msg *amqp.ExportRequestedMessage) error {
	slog.InfoContext(ctx, "Processing export message",
		"job_id", msg.JobID,
		"format", msg.Format)
	return w.process(ctx, msg.JobID)
}

// ProcessPendingJobs runs pending and stale jobs. It backs up the queue when
// messages are lost or the broker is down, and returns how many jobs it handled.
func (w *ExportWorker) ProcessPendingJobs(ctx context.Context) (int, error) {
	pending, err := w.jobs.ListPendingExportJobs(ctx, w.opts.StaleAfter, w.opts.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending jobs: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	slog.InfoContext(ctx, "Processing pending export jobs", "count", len(pending))

	done := 0
	for _, job := range pending {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if err := w.process(ctx, job.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to process export job", "job_id", job.ID, "error", err)
			continue
		}
		done++
	}
	return done, nil
}

func (w *ExportWorker) process(ctx context.Context, id string) error {
	if err := w.jobs.ClaimExportJob(ctx, id, w.opts.StaleAfter); err != nil {
		if errors.Is(err, storage.ErrJobTaken) {
			slog.DebugContext(ctx, "Export job already taken", "job_id", id)
			return nil
		}
		return err
	}
	job, err := w.jobs.GetExportJob(ctx, id)
	if err != nil {
		return err
	}

	start := time.Now()
	outputPath, ref, err := w.run(ctx, job)
	if err == nil {
		if err := w.jobs.MarkExportJobDone(ctx, id, outputPath, ref); err != nil {
			return err
		}
		slog.InfoContext(ctx, "Export job completed",
			"job_id", id,
			"format", job.Format,
			"output", outputPath,
			"ref", ref,
			"duration", time.Since(start))
		return nil
	}

	if permanent(err) || job.Attempts >= w.opts.MaxAttempts {
		return w.jobs.MarkExportJobFailed(ctx, id, err)
	}
	slog.WarnContext(ctx, "Export job failed, will retry",
		"job_id", id,
		"attempt", job.Attempts,
		"error", err)
	return w.jobs.ResetExportJob(ctx, id, err)
}

func (w *ExportWorker) run(ctx context.Context, job core.ExportJob) (outputPath, ref string, err error) {
	sess, err := w.sessions.Lookup(ctx, job.SessionID)
	if err != nil {
		return "", "", fmt.Errorf("load session: %w", err)
	}
	if sess.UserID != job.UserID {
		return "", "", ErrSessionMismatch
	}
	sc, err := services.ScopeFromJob(job)
	if err != nil {
		return "", "", err
	}
	invoices, err := w.invoices.Resolved(ctx, sess, sc)
	if err != nil {
		return "", "", err
	}

	switch job.Format {
	case core.ExportCSV:
		outputPath, err = w.writeFile(job, func(out io.Writer) error {
			return export.ConvertToCSV(out, invoices)
		})
		return outputPath, "", err
	case core.ExportPDF:
		b, err := export.RenderInvoicesPDF(invoices, w.opts.Issuer)
		if err != nil {
			return "", "", err
		}
		outputPath, err = w.writeFile(job, func(out io.Writer) error {
			_, err := out.Write(b)
			return err
		})
		return outputPath, "", err
	case core.ExportSheets:
		if w.sheets == nil {
			return "", "", ErrSheetsNotConfigured
		}
		ref, err = w.sheets.ExportInvoices(ctx, sc.Label(), invoices)
		if err != nil {
			return "", "", fmt.Errorf("export to sheets: %w", err)
		}
		return "", ref, nil
	}
	return "", "", fmt.Errorf("%w: %q", core.ErrInvalidExportFormat, string(job.Format))
}

// writeFile writes Dir/{job id}{ext} through a temp file so downloads never
// see a partial export.
func (w *ExportWorker) writeFile(job core.ExportJob, write func(io.Writer) error) (string, error) {
	if err := os.MkdirAll(w.opts.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}
	tmp, err := os.CreateTemp(w.opts.Dir, job.ID+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write %s export: %w", job.Format, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close export file: %w", err)
	}
	final := filepath.Join(w.opts.Dir, job.ID+job.Format.Extension())
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", fmt.Errorf("move export file: %w", err)
	}
	return final, nil
}

// permanent reports errors a retry cannot fix.
func permanent(err error) bool {
	var schema *api.SchemaError
	switch {
	case errors.As(err, &schema),
		errors.Is(err, api.ErrUnauthorized),
		errors.Is(err, session.ErrNotFound),
		errors.Is(err, session.ErrExpired),
		errors.Is(err, ErrSessionMismatch),
		errors.Is(err, ErrSheetsNotConfigured),
		errors.Is(err, export.ErrNoInvoices),
		errors.Is(err, period.ErrUnknownGranularity),
		errors.Is(err, core.ErrInvalidExportFormat):
		return true
	}
	return false
}
