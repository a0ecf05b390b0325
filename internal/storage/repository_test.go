package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"fatture/internal/core"
	"fatture/internal/session"
)

func newTestRepo(t *testing.T) (*SQLiteRepository, *time.Time) {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "fatture.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }
	return repo, &now
}

func TestSessionStore(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	var store session.Store = repo

	s := session.AuthSession{
		ID:        "2b1f7a0e-7f3a-4a53-9f4b-0d9f0b6b8e11",
		Token:     "a.b.c",
		UserID:    "42",
		Username:  "ann",
		ExpiresAt: time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC),
	}
	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := store.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Token != s.Token || got.UserID != "42" || got.Username != "ann" || !got.ExpiresAt.Equal(s.ExpiresAt) {
		t.Fatalf("session = %+v", got)
	}

	s.Token = "d.e.f"
	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if got, _ := store.Get(ctx, s.ID); got.Token != "d.e.f" {
		t.Fatalf("token not updated: %q", got.Token)
	}

	n, err := store.DeleteExpired(ctx, time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC))
	if err != nil || n != 1 {
		t.Fatalf("DeleteExpired = %d, %v", n, err)
	}
	if _, err := store.Get(ctx, s.ID); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.Delete(ctx, "missing"); err != nil {
		t.Fatalf("Delete of missing id: %v", err)
	}
}

func TestExportJobLifecycle(t *testing.T) {
	repo, now := newTestRepo(t)
	ctx := context.Background()

	job, err := repo.CreateExportJob(ctx, core.ExportJob{
		ID:          "job-1",
		UserID:      "42",
		SessionID:   "sess",
		Format:      core.ExportCSV,
		Granularity: "quarter",
		AsOf:        time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("CreateExportJob: %v", err)
	}
	if job.Status != core.ExportPending {
		t.Fatalf("status = %s", job.Status)
	}

	pending, err := repo.ListPendingExportJobs(ctx, 10*time.Minute, 10)
	if err != nil || len(pending) != 1 || pending[0].Granularity != "quarter" {
		t.Fatalf("pending = %+v, %v", pending, err)
	}

	if err := repo.ClaimExportJob(ctx, "job-1", 10*time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := repo.ClaimExportJob(ctx, "job-1", 10*time.Minute); !errors.Is(err, ErrJobTaken) {
		t.Fatalf("second claim: expected ErrJobTaken, got %v", err)
	}
	if pending, _ := repo.ListPendingExportJobs(ctx, 10*time.Minute, 10); len(pending) != 0 {
		t.Fatalf("running job should not be pending yet")
	}

	*now = now.Add(time.Hour)
	if pending, _ := repo.ListPendingExportJobs(ctx, 10*time.Minute, 10); len(pending) != 1 {
		t.Fatalf("stale running job should be listed again")
	}
	if err := repo.ClaimExportJob(ctx, "job-1", 10*time.Minute); err != nil {
		t.Fatalf("stale claim: %v", err)
	}

	if err := repo.MarkExportJobDone(ctx, "job-1", "/tmp/job-1.csv", ""); err != nil {
		t.Fatalf("done: %v", err)
	}
	got, err := repo.GetExportJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetExportJob: %v", err)
	}
	if got.Status != core.ExportDone || got.OutputPath != "/tmp/job-1.csv" || got.Attempts != 2 || !got.Finished() {
		t.Fatalf("job = %+v", got)
	}
	if !got.AsOf.Equal(time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("as_of = %s", got.AsOf)
	}
	if err := repo.ClaimExportJob(ctx, "job-1", 0); !errors.Is(err, ErrJobTaken) {
		t.Fatalf("finished job must not be claimable, got %v", err)
	}
}

func TestExportJobFailureAndListing(t *testing.T) {
	repo, now := newTestRepo(t)
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		*now = now.Add(time.Duration(i) * time.Second)
		if _, err := repo.CreateExportJob(ctx, core.ExportJob{ID: id, UserID: "u1", SessionID: "s", Format: core.ExportPDF}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := repo.CreateExportJob(ctx, core.ExportJob{ID: "x", UserID: "u2", SessionID: "s", Format: core.ExportSheets}); err != nil {
		t.Fatal(err)
	}

	if err := repo.ClaimExportJob(ctx, "b", time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := repo.ResetExportJob(ctx, "b", errors.New("api down")); err != nil {
		t.Fatal(err)
	}
	if err := repo.MarkExportJobFailed(ctx, "c", errors.New("bad payload")); err != nil {
		t.Fatal(err)
	}

	jobs, err := repo.ListExportJobs(ctx, "u1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 3 || jobs[0].ID != "c" || jobs[0].Error != "bad payload" || jobs[0].Status != core.ExportFailed {
		t.Fatalf("jobs = %+v", jobs)
	}
	b, _ := repo.GetExportJob(ctx, "b")
	if b.Status != core.ExportPending || b.Error != "api down" || b.Attempts != 1 {
		t.Fatalf("b = %+v", b)
	}

	if _, err := repo.GetExportJob(ctx, "nope"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if _, err := repo.CreateExportJob(ctx, core.ExportJob{ID: "y"}); err == nil {
		t.Fatalf("expected error for job without user")
	}
	if _, err := repo.CreateExportJob(ctx, core.ExportJob{ID: "z", UserID: "u", SessionID: "s", Format: "xls"}); err == nil {
		t.Fatalf("expected check constraint failure for unknown format")
	}
}

func TestMigrationVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	if err := RunMigrations(path); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	v, dirty, err := MigrationVersion(path)
	if err != nil || dirty || v != 2 {
		t.Fatalf("version = %d dirty=%v err=%v", v, dirty, err)
	}
	if err := RollbackMigrations(path, 1); err != nil {
		t.Fatalf("RollbackMigrations: %v", err)
	}
	if v, _, _ := MigrationVersion(path); v != 1 {
		t.Fatalf("version after rollback = %d", v)
	}
	if err := RunMigrations(path); err != nil {
		t.Fatalf("re-run: %v", err)
	}
}
