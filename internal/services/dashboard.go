package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"fatture/internal/aggregate"
	"fatture/internal/api"
	"fatture/internal/cache"
	"fatture/internal/core"
	"fatture/internal/period"
	"fatture/internal/session"
)

// ErrSuperseded is returned by Load when a newer load for the same user
// started before this one finished. Callers drop the result.
var ErrSuperseded = errors.New("dashboard load superseded by a newer request")

// DashboardSource is the part of the invoicing API the dashboard reads.
type DashboardSource interface {
	ListInvoices(ctx context.Context, token string) ([]core.Invoice, error)
	UserSettings(ctx context.Context, token, userID string) (core.UserSettings, error)
}

type DashboardRequest struct {
	Granularity period.Granularity
	AsOf        time.Time
	// CurrentPeriodOnly drops invoices outside the period containing AsOf.
	CurrentPeriodOnly bool
}

// SeriesRow is one table row: a category with its amount per bucket.
type SeriesRow struct {
	Name  string
	Cells []core.Money
	Total core.Money
}

type Dashboard struct {
	aggregate.Result
	Settings          core.UserSettings
	CurrentPeriodOnly bool
	Buckets           []string
	TopServices       []core.CategoryAmount
	TopCustomers      []core.CategoryAmount
	ServiceRows       []SeriesRow
	CustomerRows      []SeriesRow
	GeneratedAt       time.Time
}

type DashboardService struct {
	source       DashboardSource
	resolver     LineResolver
	cache        cache.Cache[*Dashboard]
	taxDeduction aggregate.TaxDeduction
	topN         int
	timeout      time.Duration

	group singleflight.Group
	mu    sync.Mutex
	seq   map[string]uint64
	now   func() time.Time
}

// NewDashboardService builds the service; c may be nil to disable caching.
func NewDashboardService(source DashboardSource, resolver LineResolver, c cache.Cache[*Dashboard], mode aggregate.TaxDeduction) *DashboardService {
	return &DashboardService{
		source:       source,
		resolver:     resolver,
		cache:        c,
		taxDeduction: mode,
		topN:         aggregate.DefaultTopN,
		timeout:      60 * time.Second,
		seq:          make(map[string]uint64),
		now:          time.Now,
	}
}

func dashboardKey(userID string, req DashboardRequest) string {
	return fmt.Sprintf("%s|%s|%s|%t", userID, req.Granularity, req.AsOf.Format("2006-01-02"), req.CurrentPeriodOnly)
}

func (s *DashboardService) ticket(userID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq[userID]++
	return s.seq[userID]
}

func (s *DashboardService) latest(userID string, t uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq[userID] == t
}

// Load computes the dashboard for the session's user. Identical concurrent
// loads share one computation; a load overtaken by a newer one for the same
// user returns ErrSuperseded.
func (s *DashboardService) Load(ctx context.Context, sess session.AuthSession, req DashboardRequest) (*Dashboard, error) {
	if !req.Granularity.Valid() {
		return nil, fmt.Errorf("%w: %q", period.ErrUnknownGranularity, string(req.Granularity))
	}
	if req.AsOf.IsZero() {
		req.AsOf = s.now()
	}
	t := s.ticket(sess.UserID)
	key := dashboardKey(sess.UserID, req)

	if s.cache != nil {
		if d, ok := s.cache.Get(key); ok {
			slog.DebugContext(ctx, "Dashboard cache hit", "user_id", sess.UserID, "key", key)
			return s.deliver(sess.UserID, t, d)
		}
	}

	v, err, shared := s.group.Do(key, func() (any, error) {
		// shared callers must not fail because the first one went away
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		d, err := s.compute(cctx, sess, req)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			s.cache.Set(key, d)
		}
		return d, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		slog.DebugContext(ctx, "Dashboard load shared", "user_id", sess.UserID, "key", key)
	}
	return s.deliver(sess.UserID, t, v.(*Dashboard))
}

func (s *DashboardService) deliver(userID string, t uint64, d *Dashboard) (*Dashboard, error) {
	if !s.latest(userID, t) {
		return nil, ErrSuperseded
	}
	return d, nil
}

// Invalidate drops cached dashboards of userID, e.g. after a settings change.
func (s *DashboardService) Invalidate(userID string) {
	if s.cache != nil {
		s.cache.DeletePrefix(userID + "|")
	}
}

func (s *DashboardService) compute(ctx context.Context, sess session.AuthSession, req DashboardRequest) (*Dashboard, error) {
	start := time.Now()

	var (
		invoices []core.Invoice
		settings core.UserSettings
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		invoices, err = s.source.ListInvoices(gctx, sess.Token)
		if err != nil {
			return fmt.Errorf("list invoices: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		settings, err = s.source.UserSettings(gctx, sess.Token, sess.UserID)
		if errors.Is(err, api.ErrNotFound) {
			slog.WarnContext(gctx, "User settings not found, using zero deductions", "user_id", sess.UserID)
			settings, err = core.UserSettings{ID: sess.UserID}, nil
		}
		if err != nil {
			return fmt.Errorf("load user settings: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if req.CurrentPeriodOnly {
		sc := Scope{Granularity: req.Granularity, AsOf: req.AsOf}
		kept := invoices[:0:0]
		for _, inv := range invoices {
			if sc.Match(inv.IssueDate) {
				kept = append(kept, inv)
			}
		}
		invoices = kept
	}

	resolved, err := s.resolver.Resolve(ctx, sess.Token, sess.UserID, invoices)
	if err != nil {
		return nil, fmt.Errorf("resolve line items: %w", err)
	}

	res, err := aggregate.Aggregate(resolved, aggregate.Options{
		Granularity:              req.Granularity,
		AsOf:                     req.AsOf,
		TaxDownPaymentPercentage: settings.TaxDownPaymentPercentage,
		MonthlySocialSecurity:    settings.MonthlySocialSecurity,
		TaxDeduction:             s.taxDeduction,
	})
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}

	d := &Dashboard{
		Result:            res,
		Settings:          settings,
		CurrentPeriodOnly: req.CurrentPeriodOnly,
		Buckets:           mergeBuckets(res.IncomeByService, res.IncomeByCustomer),
		TopServices:       aggregate.TopN(res.IncomeByService, s.topN),
		TopCustomers:      aggregate.TopN(res.IncomeByCustomer, s.topN),
		GeneratedAt:       s.now(),
	}
	d.ServiceRows = seriesRows(res.IncomeByService, d.Buckets, d.TopServices)
	d.CustomerRows = seriesRows(res.IncomeByCustomer, d.Buckets, d.TopCustomers)

	slog.InfoContext(ctx, "Dashboard computed",
		"user_id", sess.UserID,
		"granularity", req.Granularity,
		"invoices", res.IssuedCount,
		"buckets", len(d.Buckets),
		"duration", time.Since(start))
	return d, nil
}

// mergeBuckets returns every bucket of both maps in chronological order.
func mergeBuckets(maps ...*aggregate.IncomeMap) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range maps {
		for _, b := range m.Buckets() {
			if _, ok := seen[b]; ok {
				continue
			}
			seen[b] = struct{}{}
			out = append(out, b)
		}
	}
	period.Sort(out)
	return out
}

// seriesRows lays out the top categories per bucket; the Others row holds
// whatever the named rows leave of each bucket total.
func seriesRows(m *aggregate.IncomeMap, buckets []string, top []core.CategoryAmount) []SeriesRow {
	bucketTotals := make([]core.Money, len(buckets))
	for _, c := range m.Categories() {
		for i, b := range buckets {
			v, _ := m.Get(c, b)
			bucketTotals[i] = bucketTotals[i].Add(v)
		}
	}

	rows := make([]SeriesRow, 0, len(top))
	named := make([]core.Money, len(buckets))
	for _, ca := range top {
		row := SeriesRow{Name: ca.Name, Total: ca.Amount, Cells: make([]core.Money, len(buckets))}
		if ca.Folded {
			for i := range buckets {
				row.Cells[i] = bucketTotals[i].Sub(named[i])
			}
		} else {
			for i, b := range buckets {
				v, _ := m.Get(ca.Name, b)
				row.Cells[i] = v
				named[i] = named[i].Add(v)
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// Figures returns the scalar totals in display order for templates and JSON.
func (d *Dashboard) Figures() []Figure {
	return []Figure{
		{Key: "issued", Label: "Invoices issued", Count: strconv.Itoa(d.IssuedCount)},
		{Key: "paid", Label: "Invoices paid", Count: strconv.Itoa(d.PaidCount)},
		{Key: "total_invoice_amount", Label: "Total invoiced", Amount: d.TotalInvoiceAmount},
		{Key: "total_tax_amount", Label: "VAT", Amount: d.TotalTaxAmount},
		{Key: "total_income_without_vat", Label: "Income without VAT", Amount: d.TotalIncomeWithoutVAT},
		{Key: "tax_down_payment", Label: "Tax down payment", Amount: d.TaxDownPaymentDeduction},
		{Key: "social_security", Label: "Social security", Amount: d.SocialSecurityDeduction},
		{Key: "net_cash_flow", Label: "Net cash flow", Amount: d.NetCashFlow},
	}
}

// Figure is a labelled dashboard number; Count is set for counters.
type Figure struct {
	Key    string
	Label  string
	Count  string
	Amount core.Money
}
