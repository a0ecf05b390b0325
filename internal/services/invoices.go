package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"fatture/internal/core"
	"fatture/internal/period"
	"fatture/internal/session"
)

// InvoiceSource reads invoices visible to a token.
type InvoiceSource interface {
	ListInvoices(ctx context.Context, token string) ([]core.Invoice, error)
	GetInvoice(ctx context.Context, token, id string) (core.Invoice, error)
}

// LineResolver joins invoices with their catalog line items.
type LineResolver interface {
	Resolve(ctx context.Context, token, userID string, invoices []core.Invoice) ([]core.ResolvedInvoice, error)
}

// Scope restricts a listing to the period of Granularity containing AsOf.
// The zero Scope selects every invoice.
type Scope struct {
	Granularity period.Granularity
	AsOf        time.Time
}

func (sc Scope) All() bool {
	return sc.Granularity == ""
}

func (sc Scope) Match(d core.Date) bool {
	return sc.All() || period.InWindow(d, sc.Granularity, sc.AsOf)
}

// Label names the scope: the period label of AsOf, or its year when the
// scope selects everything.
func (sc Scope) Label() string {
	asOf := sc.AsOf
	if asOf.IsZero() {
		asOf = time.Now()
	}
	if sc.All() {
		return strconv.Itoa(asOf.Year())
	}
	d := core.NewDate(asOf.Year(), int(asOf.Month()), asOf.Day())
	label, err := period.Classify(d, sc.Granularity, asOf)
	if err != nil {
		return strconv.Itoa(asOf.Year())
	}
	return label
}

// ScopeFromJob rebuilds the scope stored on an export job.
func ScopeFromJob(job core.ExportJob) (Scope, error) {
	if job.Granularity == "" {
		return Scope{AsOf: job.AsOf}, nil
	}
	g, err := period.ParseGranularity(job.Granularity)
	if err != nil {
		return Scope{}, err
	}
	return Scope{Granularity: g, AsOf: job.AsOf}, nil
}

// InvoiceService reads invoices for the signed-in user and resolves their
// line items for exports and the invoice list.
type InvoiceService struct {
	source   InvoiceSource
	resolver LineResolver
}

func NewInvoiceService(source InvoiceSource, resolver LineResolver) *InvoiceService {
	return &InvoiceService{source: source, resolver: resolver}
}

// Resolved returns the invoices in scope with their line items, oldest first.
func (s *InvoiceService) Resolved(ctx context.Context, sess session.AuthSession, sc Scope) ([]core.ResolvedInvoice, error) {
	invoices, err := s.source.ListInvoices(ctx, sess.Token)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}

	selected := invoices[:0:0]
	for _, inv := range invoices {
		if sc.Match(inv.IssueDate) {
			selected = append(selected, inv)
		}
	}
	sort.SliceStable(selected, func(i, j int) bool {
		if !selected[i].IssueDate.Equal(selected[j].IssueDate.Time) {
			return selected[i].IssueDate.Before(selected[j].IssueDate.Time)
		}
		return selected[i].Number < selected[j].Number
	})

	resolved, err := s.resolver.Resolve(ctx, sess.Token, sess.UserID, selected)
	if err != nil {
		return nil, fmt.Errorf("resolve line items: %w", err)
	}

	slog.DebugContext(ctx, "Invoices resolved",
		"user_id", sess.UserID,
		"total", len(invoices),
		"in_scope", len(resolved))
	return resolved, nil
}

// Find returns one invoice of the user with its line items resolved.
func (s *InvoiceService) Find(ctx context.Context, sess session.AuthSession, id string) (core.ResolvedInvoice, error) {
	inv, err := s.source.GetInvoice(ctx, sess.Token, id)
	if err != nil {
		return core.ResolvedInvoice{}, fmt.Errorf("get invoice %s: %w", id, err)
	}
	resolved, err := s.resolver.Resolve(ctx, sess.Token, sess.UserID, []core.Invoice{inv})
	if err != nil {
		return core.ResolvedInvoice{}, fmt.Errorf("resolve line items: %w", err)
	}
	return resolved[0], nil
}
