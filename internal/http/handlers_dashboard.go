package http

import (
	"errors"
	"net/http"
	"strconv"

	applog "fatture/internal/log"
	"fatture/internal/period"
	"fatture/internal/services"
)

type figureView struct {
	Key      string
	Label    string
	Value    string
	Negative bool
}

type rowView struct {
	Name  string
	Cells []string
	Total string
}

// tableView is a category by bucket table.
type tableView struct {
	Title   string
	Buckets []string
	Rows    []rowView
}

type dashboardView struct {
	Granularity      period.Granularity
	GranularityLabel string
	AsOf             string
	Current          bool
	Figures          []figureView
	Tables           []tableView
	Empty            bool
	GeneratedAt      string
	Error            string
}

type dashboardPage struct {
	page
	Granularity period.Granularity
	AsOf        string
	Current     bool
}

func (s *Server) handleDashboardPage(w http.ResponseWriter, r *http.Request) {
	req, err := ParseDashboardParams(r.URL.Query(), s.now())
	if err != nil {
		req, _ = ParseDashboardParams(nil, s.now())
	}
	s.render(w, r, http.StatusOK, "dashboard.html", dashboardPage{
		page:        s.page(r, "Dashboard", "dashboard"),
		Granularity: req.Granularity,
		AsOf:        req.AsOf.Format("2006-01-02"),
		Current:     req.CurrentPeriodOnly,
	})
}

// handleDashboardPanel renders the dashboard partial. A load overtaken by a
// newer one answers 204 so HTMX keeps what the newer load swaps in.
func (s *Server) handleDashboardPanel(w http.ResponseWriter, r *http.Request) {
	req, err := ParseDashboardParams(r.URL.Query(), s.now())
	if err != nil {
		s.fail(w, r, "Invalid dashboard parameters", applog.OpLoad, err)
		return
	}
	sess := currentSession(r)

	d, err := s.deps.Dashboard.Load(r.Context(), sess, req)
	if errors.Is(err, services.ErrSuperseded) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		status, errType, msg := classify(err)
		if status == http.StatusUnauthorized {
			s.fail(w, r, "Dashboard load rejected", applog.OpLoad, err)
			return
		}
		s.structured.LogError(r.Context(), "Dashboard load failed", err, errType, applog.OpLoad,
			applog.NewFields().WithUser(sess.UserID).WithDashboard(string(req.Granularity), req.AsOf.Format("2006-01-02"), 0))
		s.render(w, r, http.StatusOK, "dashboard_panel.html", dashboardView{
			Granularity: req.Granularity,
			AsOf:        req.AsOf.Format("2006-01-02"),
			Error:       msg,
		})
		return
	}

	s.structured.LogDashboardLoaded(r.Context(), sess.UserID, string(req.Granularity), req.AsOf.Format("2006-01-02"), d.IssuedCount)
	s.render(w, r, http.StatusOK, "dashboard_panel.html", newDashboardView(d, req))
}

func newDashboardView(d *services.Dashboard, req services.DashboardRequest) dashboardView {
	v := dashboardView{
		Granularity:      req.Granularity,
		GranularityLabel: req.Granularity.Label(),
		AsOf:             req.AsOf.Format("2006-01-02"),
		Current:          d.CurrentPeriodOnly,
		Tables: []tableView{
			{Title: "Income by service", Buckets: d.Buckets, Rows: rowViews(d.ServiceRows)},
			{Title: "Income by customer", Buckets: d.Buckets, Rows: rowViews(d.CustomerRows)},
		},
		Empty:       d.IssuedCount == 0,
		GeneratedAt: d.GeneratedAt.Format("15:04:05"),
	}
	for _, f := range d.Figures() {
		fv := figureView{Key: f.Key, Label: f.Label, Value: f.Count}
		if f.Count == "" {
			fv.Value = formatMoney(displayCurrency, f.Amount)
			fv.Negative = f.Amount.Cents < 0
		}
		v.Figures = append(v.Figures, fv)
	}
	return v
}

func rowViews(rows []services.SeriesRow) []rowView {
	out := make([]rowView, 0, len(rows))
	for _, row := range rows {
		rv := rowView{Name: row.Name, Total: formatMoney(displayCurrency, row.Total)}
		for _, c := range row.Cells {
			rv.Cells = append(rv.Cells, formatMoney(displayCurrency, c))
		}
		out = append(out, rv)
	}
	return out
}

func (s *Server) handleDashboardJSON(w http.ResponseWriter, r *http.Request) {
	req, err := ParseDashboardParams(r.URL.Query(), s.now())
	if err != nil {
		s.fail(w, r, "Invalid dashboard parameters", applog.OpLoad, err)
		return
	}
	sess := currentSession(r)
	d, err := s.deps.Dashboard.Load(r.Context(), sess, req)
	if errors.Is(err, services.ErrSuperseded) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		s.fail(w, r, "Dashboard load failed", applog.OpLoad, err)
		return
	}
	w.Header().Set("X-Invoice-Count", strconv.Itoa(d.IssuedCount))
	writeJSON(w, http.StatusOK, services.NewDashboardJSON(d, req))
}
