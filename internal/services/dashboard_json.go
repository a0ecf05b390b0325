package services

import "time"

// SeriesJSON is one category row of a dashboard table.
type SeriesJSON struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
	Total  string   `json:"total"`
}

// DashboardJSON is the wire form of a dashboard served by /api/dashboard and
// printed by the CLI. Amounts are decimal strings.
type DashboardJSON struct {
	Granularity       string            `json:"granularity"`
	AsOf              string            `json:"as_of"`
	CurrentPeriodOnly bool              `json:"current_period_only"`
	IssuedCount       int               `json:"issued_count"`
	PaidCount         int               `json:"paid_count"`
	Totals            map[string]string `json:"totals"`
	Buckets           []string          `json:"buckets"`
	IncomeByService   []SeriesJSON      `json:"income_by_service"`
	IncomeByCustomer  []SeriesJSON      `json:"income_by_customer"`
	GeneratedAt       time.Time         `json:"generated_at"`
}

func NewDashboardJSON(d *Dashboard, req DashboardRequest) DashboardJSON {
	out := DashboardJSON{
		Granularity:       string(req.Granularity),
		AsOf:              req.AsOf.Format("2006-01-02"),
		CurrentPeriodOnly: d.CurrentPeriodOnly,
		IssuedCount:       d.IssuedCount,
		PaidCount:         d.PaidCount,
		Totals:            map[string]string{},
		Buckets:           d.Buckets,
		IncomeByService:   seriesJSON(d.ServiceRows),
		IncomeByCustomer:  seriesJSON(d.CustomerRows),
		GeneratedAt:       d.GeneratedAt,
	}
	if out.Buckets == nil {
		out.Buckets = []string{}
	}
	for _, f := range d.Figures() {
		if f.Count == "" {
			out.Totals[f.Key] = f.Amount.Decimal()
		}
	}
	return out
}

func seriesJSON(rows []SeriesRow) []SeriesJSON {
	out := make([]SeriesJSON, 0, len(rows))
	for _, row := range rows {
		sj := SeriesJSON{Name: row.Name, Total: row.Total.Decimal(), Values: make([]string, len(row.Cells))}
		for i, c := range row.Cells {
			sj.Values[i] = c.Decimal()
		}
		out = append(out, sj)
	}
	return out
}
