package memory

import (
	"context"
	"testing"

	"fatture/internal/core"
	ports "fatture/internal/sheets"
)

var _ ports.InvoiceExporter = (*Store)(nil)

func TestMemoryStoreExportReplacesTab(t *testing.T) {
	s := New()
	ctx := context.Background()

	inv := core.ResolvedInvoice{Invoice: core.Invoice{
		Number:       "1",
		IssueDate:    core.NewDate(2024, 1, 2),
		TotalAmount:  core.Money{Cents: 100},
		CustomerName: "A",
		Status:       core.StatusNew,
	}}

	ref, err := s.ExportInvoices(ctx, "2024", []core.ResolvedInvoice{inv, inv})
	if err != nil || ref != "mem:2024!A1:L3" {
		t.Fatalf("unexpected export: ref=%q err=%v", ref, err)
	}
	if _, err := s.ExportInvoices(ctx, "2024", []core.ResolvedInvoice{inv}); err != nil {
		t.Fatal(err)
	}
	rows := s.Rows("2024")
	if len(rows) != 2 || rows[0][0] != "Invoice Number" || rows[1][4] != "1.00" {
		t.Fatalf("rows = %v", rows)
	}

	rows[1][0] = "mutated"
	if s.Rows("2024")[1][0] != "1" {
		t.Fatal("Rows must return a copy")
	}
	if ref, _ := s.ExportInvoices(ctx, " ", nil); ref != "mem:default!A1:L1" {
		t.Fatalf("blank label ref = %q", ref)
	}
}
