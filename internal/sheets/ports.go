package sheets

import (
	"context"

	"fatture/internal/core"
)

// Ports for outbound adapters.
type (
	// InvoiceExporter writes a table of invoices to the tab identified by
	// label (a period label or a year) and returns the written range.
	InvoiceExporter interface {
		ExportInvoices(ctx context.Context, label string, invoices []core.ResolvedInvoice) (rangeRef string, err error)
	}
)
