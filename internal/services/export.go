package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"fatture/internal/amqp"
	"fatture/internal/core"
	"fatture/internal/period"
	"fatture/internal/session"
	"fatture/internal/storage"
)

// JobStore persists export jobs.
type JobStore interface {
	CreateExportJob(ctx context.Context, job core.ExportJob) (core.ExportJob, error)
	GetExportJob(ctx context.Context, id string) (core.ExportJob, error)
	ListExportJobs(ctx context.Context, userID string, limit int) ([]core.ExportJob, error)
}

// ExportPublisher announces new jobs to the export worker.
type ExportPublisher interface {
	PublishExportRequested(ctx context.Context, msg *amqp.ExportRequestedMessage) error
}

// ExportService stores export jobs locally and notifies the worker.
type ExportService struct {
	jobs      JobStore
	publisher ExportPublisher
}

// NewExportService accepts a nil publisher; jobs are then only picked up by
// the worker's periodic sweep.
func NewExportService(jobs JobStore, publisher ExportPublisher) *ExportService {
	return &ExportService{jobs: jobs, publisher: publisher}
}

// Request creates a pending export job for the session's user. An empty
// granularity exports every invoice.
func (s *ExportService) Request(ctx context.Context, sess session.AuthSession, format core.ExportFormat, g period.Granularity, asOf time.Time) (core.ExportJob, error) {
	if _, err := core.ParseExportFormat(string(format)); err != nil {
		return core.ExportJob{}, err
	}
	if g != "" && !g.Valid() {
		return core.ExportJob{}, fmt.Errorf("%w: %q", period.ErrUnknownGranularity, string(g))
	}
	if asOf.IsZero() {
		asOf = time.Now()
	}

	// Save locally first, the worker reads the job back by id
	job, err := s.jobs.CreateExportJob(ctx, core.ExportJob{
		ID:          uuid.NewString(),
		UserID:      sess.UserID,
		SessionID:   sess.ID,
		Format:      format,
		Granularity: string(g),
		AsOf:        asOf.UTC(),
	})
	if err != nil {
		return core.ExportJob{}, fmt.Errorf("save export job: %w", err)
	}

	if err := s.publish(ctx, job); err != nil {
		slog.ErrorContext(ctx, "Failed to publish export request",
			"job_id", job.ID, "error", err)
		// Don't fail the request - the sweep will pick the job up
	}
	return job, nil
}

func (s *ExportService) publish(ctx context.Context, job core.ExportJob) error {
	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, job left for the sweep", "job_id", job.ID)
		return nil
	}
	return s.publisher.PublishExportRequested(ctx, amqp.NewExportRequestedMessage(job))
}

// Get returns a job owned by the session's user.
func (s *ExportService) Get(ctx context.Context, sess session.AuthSession, id string) (core.ExportJob, error) {
	job, err := s.jobs.GetExportJob(ctx, id)
	if err != nil {
		return core.ExportJob{}, err
	}
	if job.UserID != sess.UserID {
		return core.ExportJob{}, storage.ErrJobNotFound
	}
	return job, nil
}

func (s *ExportService) List(ctx context.Context, sess session.AuthSession, limit int) ([]core.ExportJob, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.jobs.ListExportJobs(ctx, sess.UserID, limit)
}
