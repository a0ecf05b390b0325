// Package export renders invoices as CSV reports and PDF documents.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"fatture/internal/core"
)

// Header is the first CSV row.
var Header = []string{
	"Invoice Number",
	"Issue Date",
	"Due Date",
	"Currency",
	"Total Amount",
	"Tax Amount",
	"Tax Rate",
	"Description",
	"Customer Name",
	"Paid",
	"Status",
	"Line Items",
}

var ErrBadHeader = errors.New("unexpected CSV header")

// LineSummary is one entry of the "Line Items" column.
type LineSummary struct {
	Name     string
	Quantity float64
	Price    core.Money
}

// Record is a CSV row read back by ParseCSV.
type Record struct {
	Invoice core.Invoice
	Lines   []LineSummary
}

// ConvertToCSV writes one row per invoice after the header row.
func ConvertToCSV(w io.Writer, invoices []core.ResolvedInvoice) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, inv := range invoices {
		if err := cw.Write(Row(inv)); err != nil {
			return fmt.Errorf("write invoice %s: %w", inv.Number, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Row renders one invoice in Header column order.
func Row(inv core.ResolvedInvoice) []string {
	return []string{
		inv.Number,
		inv.IssueDate.String(),
		inv.DueDate.String(),
		inv.Currency,
		inv.TotalAmount.Decimal(),
		inv.TaxAmount.Decimal(),
		strconv.FormatFloat(inv.TaxRate, 'f', -1, 64),
		inv.Description,
		inv.CustomerName,
		strconv.FormatBool(inv.Paid),
		string(inv.Status),
		formatLines(inv.Lines),
	}
}

// Names are escaped so a ";" inside one cannot end the entry early.
var (
	nameEscaper   = strings.NewReplacer(`\`, `\\`, `;`, `\;`)
	nameUnescaper = strings.NewReplacer(`\\`, `\`, `\;`, `;`)
)

func formatLines(lines []core.ResolvedLine) string {
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		parts = append(parts, fmt.Sprintf("%s: %s x %s", nameEscaper.Replace(l.Name), core.FormatQuantity(l.Quantity), l.Price.Decimal()))
	}
	return strings.Join(parts, "; ")
}

// ParseCSV reads a report written by ConvertToCSV.
func ParseCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	head, err := cr.Read()
	if err == io.EOF {
		return nil, ErrBadHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(head) != len(Header) {
		return nil, fmt.Errorf("%w: %d columns, want %d", ErrBadHeader, len(head), len(Header))
	}
	for i, h := range Header {
		if strings.TrimPrefix(head[i], "\ufeff") != h {
			return nil, fmt.Errorf("%w: column %d is %q, want %q", ErrBadHeader, i+1, head[i], h)
		}
	}
	cr.FieldsPerRecord = len(Header)

	var out []Record
	for line := 2; ; line++ {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		rec, err := parseRow(fields)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func parseRow(f []string) (Record, error) {
	var (
		inv core.Invoice
		err error
	)
	inv.Number = f[0]
	if inv.IssueDate, err = core.ParseDate(f[1]); err != nil {
		return Record{}, fmt.Errorf("issue date: %w", err)
	}
	if f[2] != "" {
		if inv.DueDate, err = core.ParseDate(f[2]); err != nil {
			return Record{}, fmt.Errorf("due date: %w", err)
		}
	}
	inv.Currency = f[3]
	if inv.TotalAmount.Cents, err = core.ParseAmount(f[4]); err != nil {
		return Record{}, fmt.Errorf("total amount: %w", err)
	}
	if inv.TaxAmount.Cents, err = core.ParseAmount(f[5]); err != nil {
		return Record{}, fmt.Errorf("tax amount: %w", err)
	}
	if f[6] != "" {
		if inv.TaxRate, err = strconv.ParseFloat(f[6], 64); err != nil {
			return Record{}, fmt.Errorf("tax rate: %w", err)
		}
	}
	inv.Description = f[7]
	inv.CustomerName = f[8]
	if inv.Paid, err = strconv.ParseBool(f[9]); err != nil {
		return Record{}, fmt.Errorf("paid: %w", err)
	}
	if inv.Status, err = core.ParseStatus(f[10]); err != nil {
		return Record{}, fmt.Errorf("status: %w", err)
	}
	lines, err := parseLines(f[11])
	if err != nil {
		return Record{}, err
	}
	return Record{Invoice: inv, Lines: lines}, nil
}

// splitLines cuts the column on "; " outside escapes. Entries keep their
// escapes for parseLines.
func splitLines(s string) []string {
	var (
		out []string
		cur strings.Builder
	)
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '\\' && i+1 < len(s):
			cur.WriteByte(s[i])
			cur.WriteByte(s[i+1])
			i++
		case s[i] == ';' && i+1 < len(s) && s[i+1] == ' ':
			out = append(out, cur.String())
			cur.Reset()
			i++
		default:
			cur.WriteByte(s[i])
		}
	}
	return append(out, cur.String())
}

// parseLines splits each entry on its last ": " and the following " x ", so
// names may contain either separator.
func parseLines(s string) ([]LineSummary, error) {
	if s == "" {
		return nil, nil
	}
	var out []LineSummary
	for _, part := range splitLines(s) {
		colon := strings.LastIndex(part, ": ")
		if colon < 0 {
			return nil, fmt.Errorf("line item %q: missing name", part)
		}
		qty, price, ok := strings.Cut(part[colon+2:], " x ")
		if !ok {
			return nil, fmt.Errorf("line item %q: missing quantity", part)
		}
		q, err := strconv.ParseFloat(qty, 64)
		if err != nil {
			return nil, fmt.Errorf("line item %q: quantity: %w", part, err)
		}
		p, err := core.ParseAmount(price)
		if err != nil {
			return nil, fmt.Errorf("line item %q: price: %w", part, err)
		}
		out = append(out, LineSummary{Name: nameUnescaper.Replace(part[:colon]), Quantity: q, Price: core.Money{Cents: p}})
	}
	return out, nil
}
