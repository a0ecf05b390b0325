package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fatture/internal/amqp"
	"fatture/internal/core"
	"fatture/internal/export"
	"fatture/internal/services"
	"fatture/internal/session"
	"fatture/internal/sheets/memory"
	"fatture/internal/storage"
)

const sessionID = "2b1f7a0e-7f3a-4a53-9f4b-0d9f0b6b8e11"

type fakeSessions map[string]session.AuthSession

func (f fakeSessions) Lookup(_ context.Context, id string) (session.AuthSession, error) {
	s, ok := f[id]
	if !ok {
		return session.AuthSession{}, session.ErrExpired
	}
	return s, nil
}

type fakeInvoices struct {
	invoices []core.ResolvedInvoice
	err      error
	scopes   []services.Scope
}

func (f *fakeInvoices) Resolved(_ context.Context, _ session.AuthSession, sc services.Scope) ([]core.ResolvedInvoice, error) {
	f.scopes = append(f.scopes, sc)
	return f.invoices, f.err
}

func sampleInvoices() []core.ResolvedInvoice {
	return []core.ResolvedInvoice{{
		Invoice: core.Invoice{
			ID: "1", Number: "INV-1", IssueDate: core.NewDate(2024, 3, 15), DueDate: core.NewDate(2024, 4, 15),
			Currency: "EUR", TotalAmount: core.Money{Cents: 22000}, TaxAmount: core.Money{Cents: 2000},
			TaxRate: 10, CustomerName: "Acme", Status: core.StatusPaid, Paid: true,
		},
		Lines: []core.ResolvedLine{{LineItem: core.LineItem{Name: "Design", Price: core.Money{Cents: 10000}}, Quantity: 2}},
	}}
}

type harness struct {
	repo     *storage.SQLiteRepository
	invoices *fakeInvoices
	sheets   *memory.Store
	worker   *ExportWorker
	dir      string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "fatture.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	h := &harness{
		repo:     repo,
		invoices: &fakeInvoices{invoices: sampleInvoices()},
		sheets:   memory.New(),
		dir:      filepath.Join(t.TempDir(), "exports"),
	}
	sessions := fakeSessions{sessionID: {ID: sessionID, Token: "tok", UserID: "42"}}
	h.worker = NewExportWorker(repo, sessions, h.invoices, h.sheets, Options{
		Dir:         h.dir,
		Issuer:      export.Issuer{Name: "Studio"},
		MaxAttempts: 2,
	})
	return h
}

func (h *harness) job(t *testing.T, id string, format core.ExportFormat, granularity string) core.ExportJob {
	t.Helper()
	job, err := h.repo.CreateExportJob(context.Background(), core.ExportJob{
		ID:          id,
		UserID:      "42",
		SessionID:   sessionID,
		Format:      format,
		Granularity: granularity,
		AsOf:        time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("CreateExportJob: %v", err)
	}
	return job
}

func (h *harness) get(t *testing.T, id string) core.ExportJob {
	t.Helper()
	job, err := h.repo.GetExportJob(context.Background(), id)
	if err != nil {
		t.Fatalf("GetExportJob: %v", err)
	}
	return job
}

func TestHandleExportMessage_CSV(t *testing.T) {
	h := newHarness(t)
	job := h.job(t, "job-csv", core.ExportCSV, "quarter")

	if err := h.worker.HandleExportMessage(context.Background(), amqp.NewExportRequestedMessage(job)); err != nil {
		t.Fatalf("HandleExportMessage: %v", err)
	}

	got := h.get(t, job.ID)
	if got.Status != core.ExportDone || got.Attempts != 1 {
		t.Fatalf("job = %+v", got)
	}
	if want := filepath.Join(h.dir, "job-csv.csv"); got.OutputPath != want {
		t.Fatalf("output path = %q, want %q", got.OutputPath, want)
	}
	f, err := os.Open(got.OutputPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := export.ParseCSV(f)
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(records) != 1 || records[0].Invoice.Number != "INV-1" {
		t.Fatalf("records = %+v", records)
	}

	if sc := h.invoices.scopes[0]; sc.Label() != "Q1.2024" {
		t.Errorf("scope label = %q", sc.Label())
	}

	entries, _ := os.ReadDir(h.dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestHandleExportMessage_PDF(t *testing.T) {
	h := newHarness(t)
	job := h.job(t, "job-pdf", core.ExportPDF, "")

	if err := h.worker.HandleExportMessage(context.Background(), amqp.NewExportRequestedMessage(job)); err != nil {
		t.Fatal(err)
	}
	got := h.get(t, job.ID)
	if got.Status != core.ExportDone {
		t.Fatalf("job = %+v", got)
	}
	b, err := os.ReadFile(got.OutputPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(b), "%PDF-") {
		t.Errorf("not a pdf: %q", b[:min(len(b), 10)])
	}
}

func TestHandleExportMessage_Sheets(t *testing.T) {
	h := newHarness(t)
	job := h.job(t, "job-sheets", core.ExportSheets, "")

	if err := h.worker.HandleExportMessage(context.Background(), amqp.NewExportRequestedMessage(job)); err != nil {
		t.Fatal(err)
	}
	got := h.get(t, job.ID)
	if got.Status != core.ExportDone || got.ResultRef != "mem:2024!A1:L2" || got.OutputPath != "" {
		t.Fatalf("job = %+v", got)
	}
	if rows := h.sheets.Rows("2024"); len(rows) != 2 || rows[1][0] != "INV-1" {
		t.Errorf("rows = %v", rows)
	}
}

func TestHandleExportMessage_PermanentFailures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(h *harness)
		format  core.ExportFormat
		session string
		wantErr string
	}{
		{
			name:    "no invoices for pdf",
			setup:   func(h *harness) { h.invoices.invoices = nil },
			format:  core.ExportPDF,
			session: sessionID,
			wantErr: export.ErrNoInvoices.Error(),
		},
		{
			name:    "sheets not configured",
			setup:   func(h *harness) { h.worker.sheets = nil },
			format:  core.ExportSheets,
			session: sessionID,
			wantErr: ErrSheetsNotConfigured.Error(),
		},
		{
			name:    "session gone",
			setup:   func(h *harness) {},
			format:  core.ExportCSV,
			session: "0c1d9d4e-3a43-4f0e-9d0a-2f6f1e0b7c22",
			wantErr: session.ErrExpired.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h)
			job, err := h.repo.CreateExportJob(context.Background(), core.ExportJob{
				ID: "job", UserID: "42", SessionID: tt.session, Format: tt.format,
			})
			if err != nil {
				t.Fatal(err)
			}
			if err := h.worker.HandleExportMessage(context.Background(), amqp.NewExportRequestedMessage(job)); err != nil {
				t.Fatalf("HandleExportMessage: %v", err)
			}
			got := h.get(t, job.ID)
			if got.Status != core.ExportFailed || !strings.Contains(got.Error, tt.wantErr) {
				t.Fatalf("job = %+v", got)
			}
		})
	}
}

func TestProcessPendingJobs_RetriesThenFails(t *testing.T) {
	h := newHarness(t)
	h.invoices.err = errors.New("list invoices: context deadline exceeded")
	job := h.job(t, "job-retry", core.ExportCSV, "")
	ctx := context.Background()

	n, err := h.worker.ProcessPendingJobs(ctx)
	if err != nil || n != 1 {
		t.Fatalf("first sweep = %d, %v", n, err)
	}
	got := h.get(t, job.ID)
	if got.Status != core.ExportPending || got.Attempts != 1 || got.Error == "" {
		t.Fatalf("after first attempt: %+v", got)
	}

	if _, err := h.worker.ProcessPendingJobs(ctx); err != nil {
		t.Fatal(err)
	}
	got = h.get(t, job.ID)
	if got.Status != core.ExportFailed || got.Attempts != 2 {
		t.Fatalf("after max attempts: %+v", got)
	}

	if n, err := h.worker.ProcessPendingJobs(ctx); err != nil || n != 0 {
		t.Fatalf("nothing left to sweep, got %d, %v", n, err)
	}
}

func TestHandleExportMessage_AlreadyClaimed(t *testing.T) {
	h := newHarness(t)
	job := h.job(t, "job-done", core.ExportCSV, "")
	ctx := context.Background()
	msg := amqp.NewExportRequestedMessage(job)

	if err := h.worker.HandleExportMessage(ctx, msg); err != nil {
		t.Fatal(err)
	}
	// redelivery of a finished job is acknowledged without work
	if err := h.worker.HandleExportMessage(ctx, msg); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if got := h.get(t, job.ID); got.Attempts != 1 {
		t.Fatalf("attempts = %d", got.Attempts)
	}
	if len(h.invoices.scopes) != 1 {
		t.Fatalf("invoices read %d times", len(h.invoices.scopes))
	}
}

func TestHandleExportMessage_UnknownJob(t *testing.T) {
	h := newHarness(t)
	err := h.worker.HandleExportMessage(context.Background(), &amqp.ExportRequestedMessage{JobID: "missing"})
	if err != nil {
		t.Fatalf("unknown job should be acknowledged, got %v", err)
	}
}

func TestPermanent(t *testing.T) {
	if permanent(errors.New("connection reset")) {
		t.Error("plain errors are retryable")
	}
	if !permanent(errors.Join(errors.New("load session"), session.ErrNotFound)) {
		t.Error("missing session is permanent")
	}
}
