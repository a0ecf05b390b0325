package http

import (
	"net/http"
	"strconv"

	applog "fatture/internal/log"
)

type settingsView struct {
	page
	Name           string
	Email          string
	Percentage     string
	SocialSecurity string
	Error          string
}

func (s *Server) handleSettingsPage(w http.ResponseWriter, r *http.Request) {
	if s.deps.Settings == nil {
		http.NotFound(w, r)
		return
	}
	view := settingsView{page: s.page(r, "Settings", "settings")}
	settings, err := s.deps.Settings.Get(r.Context(), currentSession(r))
	if err != nil {
		status, errType, msg := classify(err)
		if status == http.StatusUnauthorized {
			s.fail(w, r, "Settings load rejected", applog.OpLoad, err)
			return
		}
		s.structured.LogError(r.Context(), "Settings load failed", err, errType, applog.OpLoad, nil)
		view.Error = msg
		s.render(w, r, status, "settings.html", view)
		return
	}
	view.Name = settings.Name
	view.Email = settings.Email
	view.Percentage = strconv.FormatFloat(settings.TaxDownPaymentPercentage, 'f', -1, 64)
	view.SocialSecurity = settings.MonthlySocialSecurity.Decimal()
	s.render(w, r, http.StatusOK, "settings.html", view)
}

// handleSaveSettings updates the tax settings and refreshes open dashboards.
func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	if s.deps.Settings == nil {
		http.NotFound(w, r)
		return
	}
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		ErrorResponse(http.StatusBadRequest, "Malformed request").Write(w)
		return
	}
	upd, err := ParseSettingsUpdate(p)
	if err != nil {
		s.fail(w, r, "Invalid settings", applog.OpUpdate, err)
		return
	}
	if err := s.deps.Settings.Update(r.Context(), currentSession(r), upd); err != nil {
		s.fail(w, r, "Settings update failed", applog.OpUpdate, err)
		return
	}
	NewHTMXResponse().
		SettingsSaved().
		DashboardRefresh().
		Notify(NotificationSuccess, "Settings saved").
		Fragment(`<div class="success">Settings saved</div>`).
		Write(w)
}
