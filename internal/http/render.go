package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strings"

	"fatture/internal/api"
	"fatture/internal/core"
	applog "fatture/internal/log"
	"fatture/internal/period"
	"fatture/internal/session"
	"fatture/internal/storage"
	appweb "fatture/web"
)

var templateFuncs = template.FuncMap{
	"money": formatMoney,
	"eur": func(m core.Money) string {
		return formatMoney(displayCurrency, m)
	},
	"date": formatDate,
	"qty":  core.FormatQuantity,
	"lower": func(v any) string {
		switch x := v.(type) {
		case core.InvoiceStatus:
			return strings.ToLower(string(x))
		case core.ExportStatus:
			return strings.ToLower(string(x))
		case string:
			return strings.ToLower(x)
		}
		return ""
	},
	"granularities": period.Granularities,
}

func parseTemplates() (*template.Template, error) {
	return template.New("fatture").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
}

// page carries what the layout needs on every full page.
type page struct {
	Title    string
	Active   string
	Username string
	Google   bool
}

func (s *Server) page(r *http.Request, title, active string) page {
	p := page{Title: title, Active: active, Google: s.deps.Google != nil}
	if sess, ok := session.FromContext(r.Context()); ok {
		p.Username = sess.Username
	}
	return p
}

// render executes a template into a buffer first so a failing template
// never leaves a half-written page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	if s.templates == nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Templates not loaded", "template", name)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.structured.LogError(r.Context(), "Template execution failed", err, applog.ErrorTypeInternal, applog.OpRender,
			applog.NewFields().WithComponent(applog.ComponentTemplate))
		http.Error(w, "error rendering page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// renderFragment executes a partial template to a string so handlers can
// attach HX-Trigger headers before writing.
func (s *Server) renderFragment(name string, data any) (string, error) {
	if s.templates == nil {
		return "", errors.New("templates not loaded")
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

type errorJSON struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// classify maps an error to the response status, the log error type and a
// message that is safe to show.
func classify(err error) (int, string, string) {
	var (
		ve     *core.ValidationError
		schema *api.SchemaError
		apiErr *api.Error
	)
	switch {
	case errors.Is(err, period.ErrUnknownGranularity), errors.Is(err, core.ErrInvalidExportFormat):
		return http.StatusBadRequest, applog.ErrorTypeValidation, err.Error()
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity, applog.ErrorTypeValidation, ve.Error()
	case errors.Is(err, api.ErrUnauthorized):
		return http.StatusUnauthorized, applog.ErrorTypeAuth, "The invoicing service rejected your session"
	case errors.Is(err, api.ErrNotFound), errors.Is(err, storage.ErrJobNotFound):
		return http.StatusNotFound, applog.ErrorTypeNotFound, "Not found"
	case errors.As(err, &schema):
		return http.StatusBadGateway, applog.ErrorTypeUpstream, "The invoicing service returned malformed data"
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, applog.ErrorTypeUpstream, "The invoicing service is unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, applog.ErrorTypeTimeout, "The invoicing service timed out"
	}
	return http.StatusInternalServerError, applog.ErrorTypeInternal, "Internal error"
}

// fail logs err and answers with an HTMX error fragment, or a JSON error
// under /api. A token rejected upstream ends the local session too.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, msg, op string, err error) {
	status, errType, public := classify(err)
	if status >= http.StatusInternalServerError {
		s.structured.LogError(r.Context(), msg, err, errType, op, nil)
	} else {
		applog.FromContext(r.Context()).WarnContext(r.Context(), msg,
			applog.FieldError, err, applog.FieldErrorType, errType, applog.FieldOperation, op)
	}

	if status == http.StatusUnauthorized {
		s.endSession(w, r)
	}

	if strings.HasPrefix(r.URL.Path, "/api/") {
		writeJSON(w, status, errorJSON{Error: public})
		return
	}
	if status == http.StatusUnauthorized && r.Header.Get("HX-Request") != "true" {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	b := ErrorResponse(status, public)
	if status == http.StatusUnauthorized {
		b.Redirect("/login")
	}
	b.Write(w)
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	if sess, ok := session.FromContext(r.Context()); ok && s.deps.Auth != nil {
		if err := s.deps.Auth.Logout(context.WithoutCancel(r.Context()), sess.ID); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Failed to drop session", applog.FieldError, err)
		}
	}
	s.clearSessionCookie(w)
}
