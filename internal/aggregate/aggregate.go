// Package aggregate folds resolved invoices into the income dashboard figures:
// income by service and by customer per period bucket, invoice counters and
// the net cash flow after tax and social security set-asides.
package aggregate

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"fatture/internal/core"
	"fatture/internal/period"
)

// TaxDeduction selects how invoice tax is removed from line income when
// computing income without VAT.
type TaxDeduction string

const (
	// PerInvoice subtracts each invoice's tax once.
	PerInvoice TaxDeduction = "per_invoice"
	// PerLine subtracts the invoice tax from every line item, reproducing the
	// figures of the legacy dashboard.
	PerLine TaxDeduction = "per_line"
)

// DefaultTopN is how many categories the dashboard charts individually.
const DefaultTopN = 5

var ErrUnknownTaxDeduction = errors.New("unknown tax deduction mode")

// ParseTaxDeduction maps a config value to a mode; empty means PerInvoice.
func ParseTaxDeduction(s string) (TaxDeduction, error) {
	switch TaxDeduction(strings.ToLower(strings.TrimSpace(s))) {
	case "", PerInvoice:
		return PerInvoice, nil
	case PerLine:
		return PerLine, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTaxDeduction, s)
}

type Options struct {
	Granularity              period.Granularity
	AsOf                     time.Time
	TaxDownPaymentPercentage float64
	MonthlySocialSecurity    core.Money
	TaxDeduction             TaxDeduction
}

type Result struct {
	Granularity period.Granularity
	AsOf        time.Time

	IncomeByService  *IncomeMap
	IncomeByCustomer *IncomeMap

	IssuedCount int
	PaidCount   int

	TotalInvoiceAmount      core.Money
	TotalTaxAmount          core.Money
	TotalIncomeWithoutVAT   core.Money
	TaxDownPaymentDeduction core.Money
	SocialSecurityDeduction core.Money
	NetCashFlow             core.Money
}

// Aggregate computes the dashboard result in a single pass over invoices.
// It fails as a whole if any invoice date cannot be classified.
func Aggregate(invoices []core.ResolvedInvoice, opts Options) (Result, error) {
	if !opts.Granularity.Valid() {
		return Result{}, fmt.Errorf("%w: %q", period.ErrUnknownGranularity, string(opts.Granularity))
	}
	mode := opts.TaxDeduction
	if mode == "" {
		mode = PerInvoice
	}
	if mode != PerInvoice && mode != PerLine {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownTaxDeduction, string(mode))
	}

	res := Result{
		Granularity:      opts.Granularity,
		AsOf:             opts.AsOf,
		IncomeByService:  NewIncomeMap(),
		IncomeByCustomer: NewIncomeMap(),
	}

	for i, inv := range invoices {
		bucket, err := period.Classify(inv.IssueDate, opts.Granularity, opts.AsOf)
		if err != nil {
			return Result{}, fmt.Errorf("classify invoice %d (%s): %w", i, inv.Number, err)
		}

		res.IssuedCount++
		if inv.Status == core.StatusPaid {
			res.PaidCount++
		}
		res.TotalInvoiceAmount = res.TotalInvoiceAmount.Add(inv.TotalAmount)
		res.TotalTaxAmount = res.TotalTaxAmount.Add(inv.TaxAmount)

		var lines core.Money
		for _, line := range inv.Lines {
			sub := line.Subtotal()
			res.IncomeByService.Add(line.Name, bucket, sub)
			res.IncomeByCustomer.Add(inv.CustomerName, bucket, sub)
			lines = lines.Add(sub)
			if mode == PerLine {
				res.TotalIncomeWithoutVAT = res.TotalIncomeWithoutVAT.Add(sub.Sub(inv.TaxAmount))
			}
		}
		if mode == PerInvoice {
			res.TotalIncomeWithoutVAT = res.TotalIncomeWithoutVAT.Add(lines.Sub(inv.TaxAmount))
		}
	}

	res.TaxDownPaymentDeduction = res.TotalIncomeWithoutVAT.Percent(opts.TaxDownPaymentPercentage)
	res.SocialSecurityDeduction = opts.MonthlySocialSecurity.Mul(period.Multiplier(opts.Granularity))
	res.NetCashFlow = res.TotalInvoiceAmount.
		Sub(res.TaxDownPaymentDeduction).
		Sub(res.SocialSecurityDeduction).
		Sub(res.TotalTaxAmount)

	return res, nil
}

// TopN ranks categories by their total across buckets and keeps the first n.
// The remaining categories are summed into a single OthersCategory entry.
// Equal totals keep first-insertion order.
func TopN(m *IncomeMap, n int) []core.CategoryAmount {
	if m == nil || m.Len() == 0 {
		return nil
	}
	ranked := make([]core.CategoryAmount, 0, m.Len())
	for _, c := range m.Categories() {
		ranked = append(ranked, core.CategoryAmount{Name: c, Amount: m.Total(c)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Amount.Cents > ranked[j].Amount.Cents
	})
	if n < 0 {
		n = 0
	}
	if len(ranked) <= n {
		return ranked
	}
	var others core.Money
	for _, ca := range ranked[n:] {
		others = others.Add(ca.Amount)
	}
	out := append(ranked[:n:n], core.CategoryAmount{Name: core.OthersCategory, Amount: others, Folded: true})
	return out
}
