package aggregate

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"fatture/internal/core"
	"fatture/internal/period"
)

var asOf = time.Date(2024, 11, 20, 0, 0, 0, 0, time.UTC)

func eur(v int64) core.Money { return core.Money{Cents: v * 100} }

func line(name string, price int64, qty float64) core.ResolvedLine {
	return core.ResolvedLine{LineItem: core.LineItem{ID: name, Name: name, Price: eur(price)}, Quantity: qty}
}

func invoice(number, customer string, date core.Date, status core.InvoiceStatus, total, tax int64, lines ...core.ResolvedLine) core.ResolvedInvoice {
	return core.ResolvedInvoice{
		Invoice: core.Invoice{
			Number:       number,
			CustomerName: customer,
			IssueDate:    date,
			Status:       status,
			TotalAmount:  eur(total),
			TaxAmount:    eur(tax),
		},
		Lines: lines,
	}
}

func TestAggregate_SingleInvoiceMonth(t *testing.T) {
	invs := []core.ResolvedInvoice{
		invoice("INV-1", "Acme", core.NewDate(2024, 3, 15), core.StatusPaid, 220, 20, line("a", 100, 2)),
	}
	res, err := Aggregate(invs, Options{Granularity: period.Month, AsOf: asOf})
	if err != nil {
		t.Fatalf("Aggregate error: %v", err)
	}
	got, ok := res.IncomeByCustomer.Get("Acme", "3.2024")
	if !ok || got != eur(200) {
		t.Fatalf("IncomeByCustomer[Acme][3.2024] = %v (%v), want 200", got, ok)
	}
	if got, _ := res.IncomeByService.Get("a", "3.2024"); got != eur(200) {
		t.Fatalf("IncomeByService[a][3.2024] = %v", got)
	}
	if res.IssuedCount != 1 || res.PaidCount != 1 {
		t.Fatalf("issued=%d paid=%d", res.IssuedCount, res.PaidCount)
	}
	if res.TotalInvoiceAmount != eur(220) || res.TotalTaxAmount != eur(20) {
		t.Fatalf("totals = %v / %v", res.TotalInvoiceAmount, res.TotalTaxAmount)
	}
	if res.NetCashFlow != eur(200) {
		t.Fatalf("NetCashFlow = %v, want 200", res.NetCashFlow)
	}
}

func TestAggregate_SameQuarterDifferentCustomers(t *testing.T) {
	invs := []core.ResolvedInvoice{
		invoice("INV-1", "Acme", core.NewDate(2024, 1, 10), core.StatusSent, 500, 0, line("Design", 500, 1)),
		invoice("INV-2", "Globex", core.NewDate(2024, 3, 28), core.StatusNew, 300, 0, line("Hosting", 100, 3)),
	}
	res, err := Aggregate(invs, Options{Granularity: period.Quarter, AsOf: asOf})
	if err != nil {
		t.Fatalf("Aggregate error: %v", err)
	}
	if got, _ := res.IncomeByCustomer.Get("Acme", "Q1.2024"); got != eur(500) {
		t.Fatalf("Acme Q1 = %v", got)
	}
	if got, _ := res.IncomeByCustomer.Get("Globex", "Q1.2024"); got != eur(300) {
		t.Fatalf("Globex Q1 = %v", got)
	}
	if b := res.IncomeByCustomer.Buckets(); !reflect.DeepEqual(b, []string{"Q1.2024"}) {
		t.Fatalf("buckets = %v", b)
	}
	if res.PaidCount != 0 || res.IssuedCount != 2 {
		t.Fatalf("issued=%d paid=%d", res.IssuedCount, res.PaidCount)
	}
}

func TestAggregate_NetCashFlow(t *testing.T) {
	invs := []core.ResolvedInvoice{
		invoice("INV-1", "Acme", core.NewDate(2024, 2, 1), core.StatusPaid, 220, 20, line("a", 100, 2)),
	}
	res, err := Aggregate(invs, Options{
		Granularity:              period.Quarter,
		AsOf:                     asOf,
		TaxDownPaymentPercentage: 25,
		MonthlySocialSecurity:    eur(100),
	})
	if err != nil {
		t.Fatalf("Aggregate error: %v", err)
	}
	// 220 - 25% of (200-20) - 3*100 - 20
	if res.TotalIncomeWithoutVAT != eur(180) {
		t.Fatalf("TotalIncomeWithoutVAT = %v", res.TotalIncomeWithoutVAT)
	}
	if res.TaxDownPaymentDeduction != eur(45) {
		t.Fatalf("TaxDownPaymentDeduction = %v", res.TaxDownPaymentDeduction)
	}
	if res.SocialSecurityDeduction != eur(300) {
		t.Fatalf("SocialSecurityDeduction = %v", res.SocialSecurityDeduction)
	}
	if res.NetCashFlow != eur(-145) {
		t.Fatalf("NetCashFlow = %v, want -145", res.NetCashFlow)
	}
}

func TestAggregate_SocialSecurityMultiplier(t *testing.T) {
	for g, months := range map[period.Granularity]int64{
		period.Month: 1, period.BiMonthly: 2, period.Quarter: 3, period.YTD: 12,
	} {
		res, err := Aggregate(nil, Options{Granularity: g, AsOf: asOf, MonthlySocialSecurity: eur(10)})
		if err != nil {
			t.Fatalf("%s: %v", g, err)
		}
		if res.SocialSecurityDeduction != eur(10*months) {
			t.Errorf("%s: deduction = %v, want %d", g, res.SocialSecurityDeduction, 10*months)
		}
		if res.NetCashFlow != eur(-10*months) {
			t.Errorf("%s: net = %v", g, res.NetCashFlow)
		}
	}
}

func TestAggregate_TaxDeductionModes(t *testing.T) {
	invs := []core.ResolvedInvoice{
		invoice("INV-1", "Acme", core.NewDate(2024, 5, 5), core.StatusSent, 180, 30, line("a", 100, 1), line("b", 50, 1)),
	}
	perInvoice, err := Aggregate(invs, Options{Granularity: period.Month, AsOf: asOf})
	if err != nil {
		t.Fatalf("per invoice: %v", err)
	}
	if perInvoice.TotalIncomeWithoutVAT != eur(120) {
		t.Fatalf("per invoice = %v, want 120", perInvoice.TotalIncomeWithoutVAT)
	}
	perLine, err := Aggregate(invs, Options{Granularity: period.Month, AsOf: asOf, TaxDeduction: PerLine})
	if err != nil {
		t.Fatalf("per line: %v", err)
	}
	if perLine.TotalIncomeWithoutVAT != eur(90) {
		t.Fatalf("per line = %v, want 90", perLine.TotalIncomeWithoutVAT)
	}
	if _, err := Aggregate(invs, Options{Granularity: period.Month, AsOf: asOf, TaxDeduction: "twice"}); !errors.Is(err, ErrUnknownTaxDeduction) {
		t.Fatalf("expected ErrUnknownTaxDeduction, got %v", err)
	}
}

func TestAggregate_Errors(t *testing.T) {
	if _, err := Aggregate(nil, Options{Granularity: "weekly"}); !errors.Is(err, period.ErrUnknownGranularity) {
		t.Fatalf("expected ErrUnknownGranularity, got %v", err)
	}
	bad := []core.ResolvedInvoice{invoice("X", "Acme", core.Date{}, core.StatusNew, 0, 0, line("a", 1, 1))}
	if _, err := Aggregate(bad, Options{Granularity: period.Month, AsOf: asOf}); !errors.Is(err, period.ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func sampleInvoices() []core.ResolvedInvoice {
	var out []core.ResolvedInvoice
	customers := []string{"Acme", "Globex", "Initech", "Umbrella", "Hooli", "Stark", "Wayne"}
	services := []string{"Design", "Hosting", "Consulting", "Support"}
	for i := 0; i < 40; i++ {
		date := core.NewDate(2023+i%2, 1+i%12, 1+i%27)
		status := core.StatusSent
		if i%3 == 0 {
			status = core.StatusPaid
		}
		out = append(out, invoice(
			fmt.Sprintf("INV-%d", i),
			customers[i%len(customers)],
			date, status, int64(100+i), int64(i%7),
			line(services[i%len(services)], int64(10+i), float64(1+i%3)),
			line(services[(i+1)%len(services)], int64(5+i%4), 1),
		))
	}
	return out
}

func TestAggregate_Deterministic(t *testing.T) {
	invs := sampleInvoices()
	opts := Options{Granularity: period.BiMonthly, AsOf: asOf, TaxDownPaymentPercentage: 20, MonthlySocialSecurity: eur(50)}
	a, err := Aggregate(invs, opts)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Aggregate(invs, opts)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a.IncomeByService.Map(), b.IncomeByService.Map()) ||
		!reflect.DeepEqual(a.IncomeByCustomer.Map(), b.IncomeByCustomer.Map()) {
		t.Fatalf("income maps differ between runs")
	}
	if !reflect.DeepEqual(a.IncomeByCustomer.Categories(), b.IncomeByCustomer.Categories()) {
		t.Fatalf("category order differs between runs")
	}
	if a.NetCashFlow != b.NetCashFlow {
		t.Fatalf("net cash flow differs: %v vs %v", a.NetCashFlow, b.NetCashFlow)
	}
}

func TestAggregate_CustomerTotalsMatchLines(t *testing.T) {
	invs := sampleInvoices()
	want := map[string]core.Money{}
	for _, inv := range invs {
		want[inv.CustomerName] = want[inv.CustomerName].Add(inv.LinesTotal())
	}
	for _, g := range period.Granularities() {
		res, err := Aggregate(invs, Options{Granularity: g, AsOf: asOf})
		if err != nil {
			t.Fatalf("%s: %v", g, err)
		}
		for customer, total := range want {
			if got := res.IncomeByCustomer.Total(customer); got != total {
				t.Errorf("%s: %s total = %v, want %v", g, customer, got, total)
			}
		}
		var all core.Money
		for _, total := range want {
			all = all.Add(total)
		}
		if res.IncomeByService.GrandTotal() != all || res.IncomeByCustomer.GrandTotal() != all {
			t.Errorf("%s: grand totals differ from line income %v", g, all)
		}
	}
}

func TestTopN(t *testing.T) {
	m := NewIncomeMap()
	m.Add("a", "1.2024", eur(10))
	m.Add("b", "1.2024", eur(50))
	m.Add("c", "1.2024", eur(30))
	m.Add("d", "2.2024", eur(30))
	m.Add("e", "2.2024", eur(5))
	m.Add("f", "2.2024", eur(1))
	m.Add("g", "2.2024", eur(2))
	m.Add("a", "2.2024", eur(25))

	got := TopN(m, 5)
	want := []core.CategoryAmount{
		{Name: "b", Amount: eur(50)},
		{Name: "a", Amount: eur(35)},
		{Name: "c", Amount: eur(30)},
		{Name: "d", Amount: eur(30)},
		{Name: "e", Amount: eur(5)},
		{Name: core.OthersCategory, Amount: eur(3), Folded: true},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("TopN = %+v\nwant %+v", got, want)
	}
}

func TestTopN_RealOthersCategory(t *testing.T) {
	m := NewIncomeMap()
	m.Add(core.OthersCategory, "1.2024", eur(40))
	m.Add("a", "1.2024", eur(20))
	m.Add("b", "1.2024", eur(5))
	m.Add("c", "1.2024", eur(1))

	got := TopN(m, 2)
	want := []core.CategoryAmount{
		{Name: core.OthersCategory, Amount: eur(40)},
		{Name: "a", Amount: eur(20)},
		{Name: core.OthersCategory, Amount: eur(6), Folded: true},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("TopN = %+v\nwant %+v", got, want)
	}
}

func TestTopN_SumInvariant(t *testing.T) {
	res, err := Aggregate(sampleInvoices(), Options{Granularity: period.Month, AsOf: asOf})
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range []*IncomeMap{res.IncomeByCustomer, res.IncomeByService} {
		for n := 0; n <= m.Len()+1; n++ {
			var sum core.Money
			for _, ca := range TopN(m, n) {
				sum = sum.Add(ca.Amount)
			}
			if sum != m.GrandTotal() {
				t.Fatalf("n=%d: top-N sum %v != total %v", n, sum, m.GrandTotal())
			}
		}
	}
}

func TestTopN_NoOthersWhenFew(t *testing.T) {
	m := NewIncomeMap()
	m.Add("only", "1.2024", eur(1))
	got := TopN(m, DefaultTopN)
	if len(got) != 1 || got[0].Name != "only" {
		t.Fatalf("TopN = %+v", got)
	}
	if TopN(NewIncomeMap(), 5) != nil {
		t.Fatalf("expected nil for empty map")
	}
}

func TestParseTaxDeduction(t *testing.T) {
	if m, err := ParseTaxDeduction(""); err != nil || m != PerInvoice {
		t.Fatalf("empty -> %q, %v", m, err)
	}
	if m, err := ParseTaxDeduction("PER_LINE"); err != nil || m != PerLine {
		t.Fatalf("PER_LINE -> %q, %v", m, err)
	}
	if _, err := ParseTaxDeduction("x"); err == nil {
		t.Fatalf("expected error")
	}
}
