package http

import (
	"net/http"

	"fatture/internal/core"
	applog "fatture/internal/log"
)

type advisorRow struct {
	Number      string
	Issued      string
	Customer    string
	ClientName  string
	ClientEmail string
	Status      core.InvoiceStatus
	Total       string
	Tax         string
}

type advisorView struct {
	page
	Rows  []advisorRow
	Error string
}

func (s *Server) handleAdvisorPage(w http.ResponseWriter, r *http.Request) {
	if s.deps.Advisor == nil {
		http.NotFound(w, r)
		return
	}
	view := advisorView{page: s.page(r, "Tax advisor", "tax-advisor")}
	invoices, err := s.deps.Advisor.Invoices(r.Context(), currentSession(r))
	if err != nil {
		status, errType, msg := classify(err)
		if status == http.StatusUnauthorized {
			s.fail(w, r, "Advisor invoices rejected", applog.OpList, err)
			return
		}
		s.structured.LogError(r.Context(), "Advisor invoices failed", err, errType, applog.OpList, nil)
		view.Error = msg
		s.render(w, r, status, "tax_advisor.html", view)
		return
	}
	for _, inv := range invoices {
		view.Rows = append(view.Rows, advisorRow{
			Number:      inv.Number,
			Issued:      formatDate(inv.IssueDate),
			Customer:    inv.CustomerName,
			ClientName:  inv.ClientName,
			ClientEmail: inv.ClientEmail,
			Status:      inv.Status,
			Total:       formatMoney(inv.Currency, inv.TotalAmount),
			Tax:         formatMoney(inv.Currency, inv.TaxAmount),
		})
	}
	s.render(w, r, http.StatusOK, "tax_advisor.html", view)
}
