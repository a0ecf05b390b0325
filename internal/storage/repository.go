// Package storage is the local SQLite store: server side sessions and the
// export job table shared by the web server and the export worker.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"fatture/internal/core"
	"fatture/internal/session"

	_ "modernc.org/sqlite"
)

var ErrJobNotFound = errors.New("export job not found")

// ErrJobTaken is returned by ClaimExportJob when another worker owns the job
// or the job already finished.
var ErrJobTaken = errors.New("export job already claimed")

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// sessions and jobs are written from several goroutines
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, queries: New(db), now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(v, 0).UTC()
}

// Save implements session.Store.
func (r *SQLiteRepository) Save(ctx context.Context, s session.AuthSession) error {
	created := s.CreatedAt
	if created.IsZero() {
		created = r.now()
	}
	err := r.queries.UpsertSession(ctx, UpsertSessionParams{
		ID:        s.ID,
		Token:     s.Token,
		UserID:    s.UserID,
		Username:  s.Username,
		ExpiresAt: toUnix(s.ExpiresAt),
		CreatedAt: toUnix(created),
	})
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	slog.DebugContext(ctx, "Session saved", "session_id", s.ID, "user_id", s.UserID)
	return nil
}

// Get implements session.Store.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (session.AuthSession, error) {
	row, err := r.queries.GetSession(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return session.AuthSession{}, session.ErrNotFound
	}
	if err != nil {
		return session.AuthSession{}, fmt.Errorf("get session: %w", err)
	}
	return session.AuthSession{
		ID:        row.ID,
		Token:     row.Token,
		UserID:    row.UserID,
		Username:  row.Username,
		ExpiresAt: fromUnix(row.ExpiresAt),
		CreatedAt: fromUnix(row.CreatedAt),
	}, nil
}

// Delete implements session.Store.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if err := r.queries.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpired implements session.Store.
func (r *SQLiteRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	n, err := r.queries.DeleteExpiredSessions(ctx, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Expired sessions removed", "count", n)
	}
	return int(n), nil
}

// CreateExportJob stores a new pending job. ID, UserID and SessionID are required.
func (r *SQLiteRepository) CreateExportJob(ctx context.Context, job core.ExportJob) (core.ExportJob, error) {
	if job.ID == "" || job.UserID == "" || job.SessionID == "" {
		return core.ExportJob{}, fmt.Errorf("create export job: id, user and session are required")
	}
	now := r.now().UTC()
	err := r.queries.CreateExportJob(ctx, CreateExportJobParams{
		ID:          job.ID,
		UserID:      job.UserID,
		SessionID:   job.SessionID,
		Format:      string(job.Format),
		Granularity: job.Granularity,
		AsOf:        toUnix(job.AsOf),
		CreatedAt:   now.Unix(),
		UpdatedAt:   now.Unix(),
	})
	if err != nil {
		return core.ExportJob{}, fmt.Errorf("create export job: %w", err)
	}

	slog.InfoContext(ctx, "Export job saved to SQLite",
		"job_id", job.ID,
		"user_id", job.UserID,
		"format", job.Format)

	job.Status = core.ExportPending
	job.CreatedAt = time.Unix(now.Unix(), 0).UTC()
	job.UpdatedAt = job.CreatedAt
	return job, nil
}

func (r *SQLiteRepository) GetExportJob(ctx context.Context, id string) (core.ExportJob, error) {
	row, err := r.queries.GetExportJob(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ExportJob{}, ErrJobNotFound
	}
	if err != nil {
		return core.ExportJob{}, fmt.Errorf("get export job: %w", err)
	}
	return jobFromRow(row), nil
}

// ClaimExportJob moves a pending job, or a running one untouched for
// staleAfter, to running. Only one caller wins.
func (r *SQLiteRepository) ClaimExportJob(ctx context.Context, id string, staleAfter time.Duration) error {
	now := r.now()
	n, err := r.queries.ClaimExportJob(ctx, ClaimExportJobParams{
		UpdatedAt:   now.Unix(),
		ID:          id,
		UpdatedAt_2: now.Add(-staleAfter).Unix(),
	})
	if err != nil {
		return fmt.Errorf("claim export job: %w", err)
	}
	if n == 0 {
		return ErrJobTaken
	}
	return nil
}

func (r *SQLiteRepository) MarkExportJobDone(ctx context.Context, id, outputPath, resultRef string) error {
	err := r.queries.MarkExportJobDone(ctx, MarkExportJobDoneParams{
		OutputPath: outputPath,
		ResultRef:  resultRef,
		UpdatedAt:  r.now().Unix(),
		ID:         id,
	})
	if err != nil {
		return fmt.Errorf("mark export job done: %w", err)
	}
	slog.InfoContext(ctx, "Export job marked as done", "job_id", id)
	return nil
}

func (r *SQLiteRepository) MarkExportJobFailed(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	err := r.queries.MarkExportJobFailed(ctx, MarkExportJobFailedParams{
		Error:     msg,
		UpdatedAt: r.now().Unix(),
		ID:        id,
	})
	if err != nil {
		return fmt.Errorf("mark export job failed: %w", err)
	}
	slog.WarnContext(ctx, "Export job marked as failed", "job_id", id, "error", msg)
	return nil
}

// ResetExportJob puts a running job back to pending after a retryable error.
func (r *SQLiteRepository) ResetExportJob(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := r.queries.ResetExportJob(ctx, ResetExportJobParams{Error: msg, UpdatedAt: r.now().Unix(), ID: id}); err != nil {
		return fmt.Errorf("reset export job: %w", err)
	}
	return nil
}

// ListPendingExportJobs returns pending jobs plus running jobs not updated for
// staleAfter, oldest first.
func (r *SQLiteRepository) ListPendingExportJobs(ctx context.Context, staleAfter time.Duration, limit int) ([]core.ExportJob, error) {
	rows, err := r.queries.ListPendingExportJobs(ctx, ListPendingExportJobsParams{
		UpdatedAt: r.now().Add(-staleAfter).Unix(),
		Limit:     int64(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("list pending export jobs: %w", err)
	}
	return jobsFromRows(rows), nil
}

func (r *SQLiteRepository) ListExportJobs(ctx context.Context, userID string, limit int) ([]core.ExportJob, error) {
	rows, err := r.queries.ListExportJobsByUser(ctx, ListExportJobsByUserParams{UserID: userID, Limit: int64(limit)})
	if err != nil {
		return nil, fmt.Errorf("list export jobs: %w", err)
	}
	return jobsFromRows(rows), nil
}

func jobsFromRows(rows []ExportJob) []core.ExportJob {
	jobs := make([]core.ExportJob, len(rows))
	for i, row := range rows {
		jobs[i] = jobFromRow(row)
	}
	return jobs
}

func jobFromRow(row ExportJob) core.ExportJob {
	return core.ExportJob{
		ID:          row.ID,
		UserID:      row.UserID,
		SessionID:   row.SessionID,
		Format:      core.ExportFormat(row.Format),
		Status:      core.ExportStatus(row.Status),
		Granularity: row.Granularity,
		AsOf:        fromUnix(row.AsOf),
		OutputPath:  row.OutputPath,
		ResultRef:   row.ResultRef,
		Error:       row.Error,
		Attempts:    int(row.Attempts),
		CreatedAt:   fromUnix(row.CreatedAt),
		UpdatedAt:   fromUnix(row.UpdatedAt),
	}
}
