// Package memory is an in-process InvoiceExporter used in development and
// tests when no spreadsheet is configured.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"fatture/internal/core"
	"fatture/internal/export"
)

type Store struct {
	mu   sync.Mutex
	tabs map[string][][]string
}

func New() *Store {
	return &Store{tabs: make(map[string][][]string)}
}

// ExportInvoices replaces the rows stored under label and returns a synthetic
// range reference.
func (s *Store) ExportInvoices(_ context.Context, label string, invoices []core.ResolvedInvoice) (string, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		label = "default"
	}
	rows := make([][]string, 0, len(invoices)+1)
	rows = append(rows, append([]string(nil), export.Header...))
	for _, inv := range invoices {
		rows = append(rows, export.Row(inv))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tabs[label] = rows
	return fmt.Sprintf("mem:%s!A1:L%d", label, len(rows)), nil
}

// Rows returns a copy of what was last written under label.
func (s *Store) Rows(label string) [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.tabs[label]
	out := make([][]string, len(src))
	for i, r := range src {
		out[i] = append([]string(nil), r...)
	}
	return out
}
