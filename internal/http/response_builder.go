package http

import (
	"encoding/json"
	"html/template"
	"net/http"

	"fatture/internal/core"
)

// Client-side events the templates listen for.
const (
	eventExportQueued     = "export:queued"
	eventDashboardRefresh = "dashboard:refresh"
	eventSettingsSaved    = "settings:saved"
	eventNotification     = "show-notification"
)

type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
)

// notificationDuration is how long app.js keeps a toast on screen, in ms.
var notificationDuration = map[NotificationType]int{
	NotificationSuccess: 3000,
	NotificationError:   5000,
}

// HTMXResponse collects a status, HX-* headers and an HTML fragment and
// writes them in one go. Events are sent as a single HX-Trigger JSON object.
type HTMXResponse struct {
	status   int
	header   http.Header
	events   map[string]any
	fragment string
}

func NewHTMXResponse() *HTMXResponse {
	return &HTMXResponse{status: http.StatusOK, header: http.Header{}, events: map[string]any{}}
}

func (b *HTMXResponse) Status(code int) *HTMXResponse {
	b.status = code
	return b
}

func (b *HTMXResponse) Header(name, value string) *HTMXResponse {
	b.header.Set(name, value)
	return b
}

// Redirect makes HTMX navigate the whole page to url.
func (b *HTMXResponse) Redirect(url string) *HTMXResponse {
	return b.Header("HX-Redirect", url)
}

// Fragment sets an HTML body. The caller is responsible for escaping.
func (b *HTMXResponse) Fragment(html string) *HTMXResponse {
	b.header.Set("Content-Type", "text/html; charset=utf-8")
	b.fragment = html
	return b
}

func (b *HTMXResponse) ExportQueued(job core.ExportJob) *HTMXResponse {
	b.events[eventExportQueued] = map[string]string{"id": job.ID, "format": string(job.Format)}
	return b
}

func (b *HTMXResponse) DashboardRefresh() *HTMXResponse {
	b.events[eventDashboardRefresh] = true
	return b
}

func (b *HTMXResponse) SettingsSaved() *HTMXResponse {
	b.events[eventSettingsSaved] = true
	return b
}

// Notify shows a toast. Only one notification per response.
func (b *HTMXResponse) Notify(kind NotificationType, message string) *HTMXResponse {
	b.events[eventNotification] = map[string]any{
		"type":     string(kind),
		"message":  message,
		"duration": notificationDuration[kind],
	}
	return b
}

func (b *HTMXResponse) Write(w http.ResponseWriter) {
	for name, values := range b.header {
		w.Header()[name] = values
	}
	if len(b.events) > 0 {
		if raw, err := json.Marshal(b.events); err == nil {
			w.Header().Set("HX-Trigger", string(raw))
		}
	}
	w.WriteHeader(b.status)
	if b.fragment != "" {
		_, _ = w.Write([]byte(b.fragment))
	}
}

// ErrorResponse is an escaped error fragment plus an error toast.
func ErrorResponse(status int, message string) *HTMXResponse {
	return NewHTMXResponse().
		Status(status).
		Notify(NotificationError, message).
		Fragment(`<div class="error">` + template.HTMLEscapeString(message) + `</div>`)
}
