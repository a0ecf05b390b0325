package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"fatture/internal/core"
	"fatture/internal/session"
)

// AdvisorSource reads the invoices a tax advisor may see and the users
// they belong to.
type AdvisorSource interface {
	ListInvoicesForTaxAdvisor(ctx context.Context, token, advisorID string) ([]core.Invoice, error)
	ListUsers(ctx context.Context, token, userID string) ([]core.UserSettings, error)
}

// AdvisorInvoice is an invoice of one of the advisor's clients.
type AdvisorInvoice struct {
	core.Invoice
	ClientName  string
	ClientEmail string
}

// AdvisorService backs the tax advisor view.
type AdvisorService struct {
	source AdvisorSource
}

func NewAdvisorService(source AdvisorSource) *AdvisorService {
	return &AdvisorService{source: source}
}

// Invoices lists the invoices of the signed-in advisor's clients, newest
// first, with each client's name and email looked up.
func (s *AdvisorService) Invoices(ctx context.Context, sess session.AuthSession) ([]AdvisorInvoice, error) {
	var (
		invoices []core.Invoice
		users    []core.UserSettings
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		invoices, err = s.source.ListInvoicesForTaxAdvisor(gctx, sess.Token, sess.UserID)
		if err != nil {
			return fmt.Errorf("list advisor invoices: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		users, err = s.source.ListUsers(gctx, sess.Token, "")
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byID := make(map[string]core.UserSettings, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	out := make([]AdvisorInvoice, 0, len(invoices))
	missing := 0
	for _, inv := range invoices {
		row := AdvisorInvoice{Invoice: inv}
		if u, ok := byID[inv.UserID]; ok {
			row.ClientName = u.Name
			row.ClientEmail = u.Email
		} else {
			missing++
		}
		out = append(out, row)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].IssueDate.After(out[j].IssueDate.Time)
	})

	if missing > 0 {
		slog.WarnContext(ctx, "Advisor invoices without a known client",
			"user_id", sess.UserID, "missing", missing)
	}
	return out, nil
}
