package http

import (
	"bytes"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	"fatture/internal/core"
	"fatture/internal/export"
	applog "fatture/internal/log"
)

type invoiceRow struct {
	ID       string
	Number   string
	Issued   string
	Due      string
	Customer string
	Status   core.InvoiceStatus
	Paid     bool
	Total    string
	Tax      string
	Lines    []string
}

type invoicesView struct {
	page
	Granularity string
	AsOf        string
	Scope       string
	Query       string
	Rows        []invoiceRow
	Total       string
	Exports     bool
	Error       string
}

func newInvoiceRow(inv core.ResolvedInvoice) invoiceRow {
	row := invoiceRow{
		ID:       inv.ID,
		Number:   inv.Number,
		Issued:   formatDate(inv.IssueDate),
		Due:      formatDate(inv.DueDate),
		Customer: inv.CustomerName,
		Status:   inv.Status,
		Paid:     inv.Paid,
		Total:    formatMoney(inv.Currency, inv.TotalAmount),
		Tax:      formatMoney(inv.Currency, inv.TaxAmount),
	}
	for _, l := range inv.Lines {
		row.Lines = append(row.Lines, l.Name+": "+core.FormatQuantity(l.Quantity)+" x "+formatMoney(inv.Currency, l.Price))
	}
	return row
}

func (s *Server) handleInvoicesPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	view := invoicesView{
		page:        s.page(r, "Invoices", "invoices"),
		Granularity: q.Get("granularity"),
		Query:       r.URL.RawQuery,
		Exports:     s.deps.Exports != nil,
	}

	sc, err := ParseScopeParams(q, s.now())
	if err != nil {
		status, _, msg := classify(err)
		view.Error = msg
		s.render(w, r, status, "invoices.html", view)
		return
	}
	view.AsOf = sc.AsOf.Format("2006-01-02")
	view.Scope = sc.Label()

	invoices, err := s.deps.Invoices.Resolved(r.Context(), currentSession(r), sc)
	if err != nil {
		status, errType, msg := classify(err)
		if status == http.StatusUnauthorized {
			s.fail(w, r, "Invoice list rejected", applog.OpList, err)
			return
		}
		s.structured.LogError(r.Context(), "Invoice list failed", err, errType, applog.OpList, nil)
		view.Error = msg
		s.render(w, r, status, "invoices.html", view)
		return
	}

	var total core.Money
	for i := len(invoices) - 1; i >= 0; i-- {
		view.Rows = append(view.Rows, newInvoiceRow(invoices[i]))
		total = total.Add(invoices[i].TotalAmount)
	}
	view.Total = formatMoney(displayCurrency, total)
	s.render(w, r, http.StatusOK, "invoices.html", view)
}

// handleInvoicesCSV streams the invoices in scope as a CSV attachment.
func (s *Server) handleInvoicesCSV(w http.ResponseWriter, r *http.Request) {
	sc, err := ParseScopeParams(r.URL.Query(), s.now())
	if err != nil {
		s.fail(w, r, "Invalid export parameters", applog.OpExport, err)
		return
	}
	sess := currentSession(r)
	invoices, err := s.deps.Invoices.Resolved(r.Context(), sess, sc)
	if err != nil {
		s.fail(w, r, "CSV export failed", applog.OpExport, err)
		return
	}

	var buf bytes.Buffer
	if err := export.ConvertToCSV(&buf, invoices); err != nil {
		s.fail(w, r, "CSV encoding failed", applog.OpExport, err)
		return
	}
	applog.FromContext(r.Context()).WithComponent(applog.ComponentExport).InfoContext(r.Context(), "CSV exported",
		applog.FieldFormat, string(core.ExportCSV),
		applog.FieldInvoices, len(invoices),
		"scope", sc.Label())

	w.Header().Set("Content-Type", core.ExportCSV.ContentType())
	w.Header().Set("Content-Disposition", attachment("invoices-"+sc.Label()+".csv"))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleInvoicePDF(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	inv, err := s.deps.Invoices.Find(r.Context(), currentSession(r), id)
	if err != nil {
		s.fail(w, r, "Invoice lookup failed", applog.OpRender, err)
		return
	}
	doc, err := export.RenderInvoicePDF(inv, s.deps.Issuer)
	if err != nil {
		s.fail(w, r, "PDF rendering failed", applog.OpRender, err)
		return
	}
	w.Header().Set("Content-Type", core.ExportPDF.ContentType())
	w.Header().Set("Content-Disposition", `inline; filename="`+fileName("invoice-"+inv.Number+".pdf")+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func fileName(name string) string {
	return unsafeFileChars.ReplaceAllString(name, "_")
}

func attachment(name string) string {
	return `attachment; filename="` + fileName(name) + `"`
}
