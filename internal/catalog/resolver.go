// Package catalog joins invoice line item references with their catalog entries.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"fatture/internal/cache"
	"fatture/internal/core"
)

// Fetcher loads a single catalog entry from the invoicing API.
type Fetcher interface {
	GetLineItem(ctx context.Context, token, id string) (core.LineItem, error)
}

type Resolver struct {
	fetcher     Fetcher
	cache       cache.Cache[core.LineItem]
	group       singleflight.Group
	concurrency int
}

// NewResolver returns a resolver fetching at most concurrency items at a
// time. A nil cache disables caching.
func NewResolver(f Fetcher, c cache.Cache[core.LineItem], concurrency int) *Resolver {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Resolver{fetcher: f, cache: c, concurrency: concurrency}
}

func cacheKey(userID, itemID string) string {
	return userID + ":" + itemID
}

// Resolve looks up every line item referenced by invoices. Each distinct
// item is fetched once; any failure fails the whole call.
// A reference without a quantity falls back to the catalog default.
func (r *Resolver) Resolve(ctx context.Context, token, userID string, invoices []core.Invoice) ([]core.ResolvedInvoice, error) {
	ids := uniqueItemIDs(invoices)
	items := make(map[string]core.LineItem, len(ids))
	fetched := make([]core.LineItem, len(ids))

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			li, err := r.lookup(gctx, token, userID, id)
			if err != nil {
				return fmt.Errorf("resolve line item %s: %w", id, err)
			}
			fetched[i] = li
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, id := range ids {
		items[id] = fetched[i]
	}
	slog.DebugContext(ctx, "Line items resolved",
		"user_id", userID,
		"items", len(ids),
		"invoices", len(invoices),
		"duration", time.Since(start))

	out := make([]core.ResolvedInvoice, 0, len(invoices))
	for _, inv := range invoices {
		ri := core.ResolvedInvoice{Invoice: inv, Lines: make([]core.ResolvedLine, 0, len(inv.LineItems))}
		for _, ref := range inv.LineItems {
			li := items[ref.ID]
			qty := ref.Quantity
			if qty == 0 && !ref.QuantitySet {
				qty = li.Quantity
			}
			ri.Lines = append(ri.Lines, core.ResolvedLine{LineItem: li, Quantity: qty})
		}
		out = append(out, ri)
	}
	return out, nil
}

func (r *Resolver) lookup(ctx context.Context, token, userID, id string) (core.LineItem, error) {
	key := cacheKey(userID, id)
	if r.cache != nil {
		if li, ok := r.cache.Get(key); ok {
			return li, nil
		}
	}
	v, err, _ := r.group.Do(key, func() (any, error) {
		li, err := r.fetcher.GetLineItem(ctx, token, id)
		if err != nil {
			return core.LineItem{}, err
		}
		if r.cache != nil {
			r.cache.Set(key, li)
		}
		return li, nil
	})
	if err != nil {
		return core.LineItem{}, err
	}
	return v.(core.LineItem), nil
}

// Invalidate forgets every cached catalog entry of userID.
func (r *Resolver) Invalidate(userID string) {
	if r.cache != nil {
		r.cache.DeletePrefix(userID + ":")
	}
}

func uniqueItemIDs(invoices []core.Invoice) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, inv := range invoices {
		for _, ref := range inv.LineItems {
			if _, ok := seen[ref.ID]; ok {
				continue
			}
			seen[ref.ID] = struct{}{}
			ids = append(ids, ref.ID)
		}
	}
	return ids
}
