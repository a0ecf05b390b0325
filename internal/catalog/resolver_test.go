package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fatture/internal/cache"
	"fatture/internal/core"
)

type fakeFetcher struct {
	mu      sync.Mutex
	items   map[string]core.LineItem
	calls   map[string]int
	delay   time.Duration
	active  int32
	maxSeen int32
	fail    string
}

func (f *fakeFetcher) GetLineItem(ctx context.Context, token, id string) (core.LineItem, error) {
	n := atomic.AddInt32(&f.active, 1)
	defer atomic.AddInt32(&f.active, -1)
	for {
		m := atomic.LoadInt32(&f.maxSeen)
		if n <= m || atomic.CompareAndSwapInt32(&f.maxSeen, m, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[id]++
	if id == f.fail {
		return core.LineItem{}, errors.New("boom")
	}
	li, ok := f.items[id]
	if !ok {
		return core.LineItem{}, errors.New("missing " + id)
	}
	return li, nil
}

func catalogItems() map[string]core.LineItem {
	return map[string]core.LineItem{
		"a": {ID: "a", Name: "Design", Price: core.Money{Cents: 10000}, Quantity: 1},
		"b": {ID: "b", Name: "Hosting", Price: core.Money{Cents: 2500}, Quantity: 4},
		"c": {ID: "c", Name: "Support", Price: core.Money{Cents: 5000}, Quantity: 1},
	}
}

func TestResolve(t *testing.T) {
	f := &fakeFetcher{items: catalogItems()}
	r := NewResolver(f, cache.NewLRUCache[core.LineItem](10, time.Minute), 2)

	invoices := []core.Invoice{
		{Number: "1", LineItems: []core.LineItemRef{{ID: "a", Quantity: 2}, {ID: "b"}}},
		{Number: "2", LineItems: []core.LineItemRef{{ID: "a", Quantity: 0.5}}},
		{Number: "3"},
	}
	got, err := r.Resolve(context.Background(), "tok", "u1", invoices)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d invoices", len(got))
	}
	if got[0].LinesTotal().Cents != 2*10000+4*2500 {
		t.Fatalf("invoice 1 total = %d", got[0].LinesTotal().Cents)
	}
	if got[1].Lines[0].Subtotal().Cents != 5000 || got[1].Lines[0].Name != "Design" {
		t.Fatalf("invoice 2 line = %+v", got[1].Lines[0])
	}
	if len(got[2].Lines) != 0 {
		t.Fatalf("invoice 3 should have no lines")
	}
	if f.calls["a"] != 1 || f.calls["b"] != 1 {
		t.Fatalf("calls = %v", f.calls)
	}

	if _, err := r.Resolve(context.Background(), "tok", "u1", invoices); err != nil {
		t.Fatal(err)
	}
	if f.calls["a"] != 1 {
		t.Fatalf("second resolve should hit the cache, calls = %v", f.calls)
	}

	r.Invalidate("u1")
	if _, err := r.Resolve(context.Background(), "tok", "u1", invoices); err != nil {
		t.Fatal(err)
	}
	if f.calls["a"] != 2 {
		t.Fatalf("invalidate should force a refetch, calls = %v", f.calls)
	}
}

func TestResolve_QuantityFallback(t *testing.T) {
	r := NewResolver(&fakeFetcher{items: catalogItems()}, nil, 2)

	tests := []struct {
		name string
		ref  core.LineItemRef
		want float64
	}{
		{"missing uses catalog default", core.LineItemRef{ID: "b"}, 4},
		{"explicit zero kept", core.LineItemRef{ID: "b", QuantitySet: true}, 0},
		{"explicit value", core.LineItemRef{ID: "b", Quantity: 2, QuantitySet: true}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(context.Background(), "tok", "u1", []core.Invoice{{Number: "1", LineItems: []core.LineItemRef{tt.ref}}})
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if q := got[0].Lines[0].Quantity; q != tt.want {
				t.Errorf("quantity = %v, want %v", q, tt.want)
			}
		})
	}
}

func TestResolve_BoundedConcurrency(t *testing.T) {
	f := &fakeFetcher{items: catalogItems(), delay: 20 * time.Millisecond}
	r := NewResolver(f, nil, 2)
	invoices := []core.Invoice{{LineItems: []core.LineItemRef{{ID: "a"}, {ID: "b"}, {ID: "c"}}}}
	if _, err := r.Resolve(context.Background(), "tok", "u1", invoices); err != nil {
		t.Fatal(err)
	}
	if m := atomic.LoadInt32(&f.maxSeen); m > 2 {
		t.Fatalf("saw %d concurrent fetches, limit is 2", m)
	}
}

func TestResolve_FailureAbortsAll(t *testing.T) {
	f := &fakeFetcher{items: catalogItems(), fail: "b"}
	r := NewResolver(f, nil, 4)
	invoices := []core.Invoice{{LineItems: []core.LineItemRef{{ID: "a"}, {ID: "b"}}}}
	got, err := r.Resolve(context.Background(), "tok", "u1", invoices)
	if err == nil || got != nil {
		t.Fatalf("expected failure, got %v, %v", got, err)
	}
}
