package http

import (
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"fatture/internal/core"
	applog "fatture/internal/log"
	"fatture/internal/services"
)

type exportRow struct {
	ID           string
	Format       core.ExportFormat
	Status       core.ExportStatus
	Scope        string
	Created      string
	Attempts     int
	Error        string
	ResultRef    string
	Finished     bool
	Downloadable bool
}

func newExportRow(job core.ExportJob) exportRow {
	row := exportRow{
		ID:        job.ID,
		Format:    job.Format,
		Status:    job.Status,
		Created:   job.CreatedAt.Local().Format("2006-01-02 15:04"),
		Attempts:  job.Attempts,
		Error:     job.Error,
		ResultRef: job.ResultRef,
		Finished:  job.Finished(),
	}
	if sc, err := services.ScopeFromJob(job); err == nil {
		row.Scope = sc.Label()
		if sc.All() {
			row.Scope = "all invoices"
		}
	}
	row.Downloadable = job.Status == core.ExportDone && job.OutputPath != ""
	return row
}

type exportsView struct {
	page
	Rows   []exportRow
	AsOf   string
	Sheets bool
	Error  string
}

func (s *Server) handleExportsPage(w http.ResponseWriter, r *http.Request) {
	if s.deps.Exports == nil {
		http.NotFound(w, r)
		return
	}
	view := exportsView{
		page:   s.page(r, "Exports", "exports"),
		AsOf:   s.now().Format("2006-01-02"),
		Sheets: s.deps.SheetsEnabled,
	}
	jobs, err := s.deps.Exports.List(r.Context(), currentSession(r), 20)
	if err != nil {
		s.structured.LogError(r.Context(), "Export list failed", err, applog.ErrorTypeDatabase, applog.OpList, nil)
		view.Error = "Could not load your exports"
	}
	for _, job := range jobs {
		view.Rows = append(view.Rows, newExportRow(job))
	}
	s.render(w, r, http.StatusOK, "exports.html", view)
}

// handleCreateExport queues an export job and returns its table row.
func (s *Server) handleCreateExport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Exports == nil {
		http.NotFound(w, r)
		return
	}
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		ErrorResponse(http.StatusBadRequest, "Malformed request").Write(w)
		return
	}

	format, err := core.ParseExportFormat(p.Get("format"))
	if err != nil {
		s.fail(w, r, "Invalid export format", applog.OpExport, err)
		return
	}
	if format == core.ExportSheets && !s.deps.SheetsEnabled {
		ErrorResponse(http.StatusUnprocessableEntity, "Google Sheets export is not configured").Write(w)
		return
	}
	sc, err := ParseScopeParams(url.Values{
		"granularity": {p.Get("granularity")},
		"as_of":       {p.Get("as_of")},
	}, s.now())
	if err != nil {
		s.fail(w, r, "Invalid export scope", applog.OpExport, err)
		return
	}

	sess := currentSession(r)
	job, err := s.deps.Exports.Request(r.Context(), sess, format, sc.Granularity, sc.AsOf)
	if err != nil {
		s.fail(w, r, "Export request failed", applog.OpExport, err)
		return
	}
	s.structured.LogExportRequested(r.Context(), sess.UserID, job.ID, string(job.Format))

	if p.IsJSON() {
		writeJSON(w, http.StatusAccepted, newExportJSON(job))
		return
	}
	html, err := s.renderFragment("export_row.html", newExportRow(job))
	if err != nil {
		s.structured.LogError(r.Context(), "Template execution failed", err, applog.ErrorTypeInternal, applog.OpRender, nil)
		html = `<tr><td colspan="6">Export queued</td></tr>`
	}
	NewHTMXResponse().
		Status(http.StatusAccepted).
		ExportQueued(job).
		Notify(NotificationSuccess, "Export queued").
		Fragment(html).
		Write(w)
}

// handleExportStatus returns the job's row; unfinished rows poll themselves.
func (s *Server) handleExportStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Exports == nil {
		http.NotFound(w, r)
		return
	}
	job, err := s.deps.Exports.Get(r.Context(), currentSession(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, "Export lookup failed", applog.OpLoad, err)
		return
	}
	s.render(w, r, http.StatusOK, "export_row.html", newExportRow(job))
}

type exportJSON struct {
	ID        string    `json:"id"`
	Format    string    `json:"format"`
	Status    string    `json:"status"`
	Scope     string    `json:"scope"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error,omitempty"`
	ResultRef string    `json:"result_ref,omitempty"`
	Download  string    `json:"download,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newExportJSON(job core.ExportJob) exportJSON {
	row := newExportRow(job)
	out := exportJSON{
		ID:        job.ID,
		Format:    string(job.Format),
		Status:    string(job.Status),
		Scope:     row.Scope,
		Attempts:  job.Attempts,
		Error:     job.Error,
		ResultRef: job.ResultRef,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
	if row.Downloadable {
		out.Download = "/exports/" + job.ID + "/download"
	}
	return out
}

func (s *Server) handleExportJSON(w http.ResponseWriter, r *http.Request) {
	if s.deps.Exports == nil {
		writeJSON(w, http.StatusNotFound, errorJSON{Error: "exports disabled"})
		return
	}
	job, err := s.deps.Exports.Get(r.Context(), currentSession(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, "Export lookup failed", applog.OpLoad, err)
		return
	}
	writeJSON(w, http.StatusOK, newExportJSON(job))
}

// handleExportDownload serves a finished CSV or PDF export from the export directory.
func (s *Server) handleExportDownload(w http.ResponseWriter, r *http.Request) {
	if s.deps.Exports == nil {
		http.NotFound(w, r)
		return
	}
	job, err := s.deps.Exports.Get(r.Context(), currentSession(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, "Export lookup failed", applog.OpLoad, err)
		return
	}
	if job.Status != core.ExportDone || job.OutputPath == "" {
		ErrorResponse(http.StatusConflict, "This export has no file to download yet").Write(w)
		return
	}

	path, ok := s.exportPath(job.OutputPath)
	if !ok {
		applog.FromContext(r.Context()).WithComponent(applog.ComponentSecurity).WarnContext(r.Context(), "Export path outside export directory",
			applog.FieldJobID, job.ID, "path", job.OutputPath)
		ErrorResponse(http.StatusNotFound, "Not found").Write(w)
		return
	}
	f, err := os.Open(path)
	if err != nil {
		s.structured.LogError(r.Context(), "Export file missing", err, applog.ErrorTypeNotFound, applog.OpExport,
			applog.NewFields().WithExportJob(job.ID, string(job.Format)))
		ErrorResponse(http.StatusNotFound, "The export file is gone, request a new export").Write(w)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", job.Format.ContentType())
	w.Header().Set("Content-Disposition", attachment("invoices-"+job.ID+job.Format.Extension()))
	http.ServeContent(w, r, "", job.UpdatedAt, f)
}

// exportPath resolves p and reports whether it lies inside the export directory.
func (s *Server) exportPath(p string) (string, bool) {
	if s.deps.ExportDir == "" {
		return "", false
	}
	dir, err := filepath.Abs(s.deps.ExportDir)
	if err != nil {
		return "", false
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(dir, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		return "", false
	}
	return abs, true
}
