package export

import (
	"errors"
	"fmt"

	"github.com/johnfercher/maroto/pkg/color"
	"github.com/johnfercher/maroto/pkg/consts"
	"github.com/johnfercher/maroto/pkg/pdf"
	"github.com/johnfercher/maroto/pkg/props"

	"fatture/internal/core"
)

var ErrNoInvoices = errors.New("no invoices to render")

var (
	darkGray   = color.Color{Red: 38, Green: 38, Blue: 34}
	mediumGray = color.Color{Red: 121, Green: 119, Blue: 109}
)

// Issuer is printed in the document heading.
type Issuer struct {
	Name  string
	Email string
}

// RenderInvoicePDF returns a single invoice as an A4 PDF.
func RenderInvoicePDF(inv core.ResolvedInvoice, issuer Issuer) ([]byte, error) {
	return RenderInvoicesPDF([]core.ResolvedInvoice{inv}, issuer)
}

// RenderInvoicesPDF renders one page per invoice into a single document.
func RenderInvoicesPDF(invoices []core.ResolvedInvoice, issuer Issuer) ([]byte, error) {
	if len(invoices) == 0 {
		return nil, ErrNoInvoices
	}
	m := pdf.NewMaroto(consts.Portrait, consts.A4)
	m.SetPageMargins(20, 20, 20)

	for i, inv := range invoices {
		if i > 0 {
			m.AddPage()
		}
		renderInvoice(m, inv, issuer)
	}

	buf, err := m.Output()
	if err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func money(currency string, m core.Money) string {
	if currency == "" {
		return m.Decimal()
	}
	return currency + " " + m.Decimal()
}

func text(m pdf.Maroto, s string, size float64, style consts.Style, c color.Color, align consts.Align) {
	m.Text(s, props.Text{Size: size, Style: style, Color: c, Align: align})
}

func renderInvoice(m pdf.Maroto, inv core.ResolvedInvoice, issuer Issuer) {
	m.Row(15, func() {
		m.Col(12, func() {
			text(m, "INVOICE", 24, consts.Bold, darkGray, consts.Left)
		})
	})
	if issuer.Name != "" {
		m.Row(10, func() {
			m.Col(12, func() {
				text(m, issuer.Name, 16, consts.Bold, darkGray, consts.Left)
			})
		})
	}
	if issuer.Email != "" {
		m.Row(5, func() {
			m.Col(12, func() {
				text(m, issuer.Email, 9, consts.Normal, mediumGray, consts.Left)
			})
		})
	}
	m.Row(8, func() {})

	m.Row(5, func() {
		m.Col(6, func() { text(m, "BILL TO", 8, consts.Bold, darkGray, consts.Left) })
		m.Col(6, func() { text(m, "INVOICE DETAILS", 8, consts.Bold, darkGray, consts.Right) })
	})
	m.Row(5, func() {
		m.Col(6, func() { text(m, inv.CustomerName, 10, consts.Bold, darkGray, consts.Left) })
		m.Col(6, func() { text(m, "Invoice #"+inv.Number, 10, consts.Normal, darkGray, consts.Right) })
	})
	m.Row(5, func() {
		m.Col(6, func() { text(m, string(inv.Status), 9, consts.Normal, mediumGray, consts.Left) })
		m.Col(6, func() {
			text(m, "Date: "+inv.IssueDate.Format("Jan 02, 2006"), 9, consts.Normal, mediumGray, consts.Right)
		})
	})
	if !inv.DueDate.IsZero() {
		m.Row(5, func() {
			m.Col(12, func() {
				text(m, "Due: "+inv.DueDate.Format("Jan 02, 2006"), 9, consts.Normal, mediumGray, consts.Right)
			})
		})
	}
	m.Row(8, func() {})

	m.Row(6, func() {
		m.Col(6, func() { text(m, "Description", 8, consts.Bold, darkGray, consts.Left) })
		m.Col(2, func() { text(m, "Qty", 8, consts.Bold, darkGray, consts.Right) })
		m.Col(2, func() { text(m, "Price", 8, consts.Bold, darkGray, consts.Right) })
		m.Col(2, func() { text(m, "Total", 8, consts.Bold, darkGray, consts.Right) })
	})
	for _, l := range inv.Lines {
		m.Row(6, func() {
			m.Col(6, func() { text(m, l.Name, 9, consts.Normal, darkGray, consts.Left) })
			m.Col(2, func() { text(m, core.FormatQuantity(l.Quantity), 9, consts.Normal, darkGray, consts.Right) })
			m.Col(2, func() { text(m, money(inv.Currency, l.Price), 9, consts.Normal, darkGray, consts.Right) })
			m.Col(2, func() { text(m, money(inv.Currency, l.Subtotal()), 9, consts.Normal, darkGray, consts.Right) })
		})
	}
	m.Row(8, func() {})

	summary := func(label, value string, size float64, style consts.Style) {
		m.Row(6, func() {
			m.Col(8, func() {})
			m.Col(2, func() { text(m, label, size, style, mediumGray, consts.Right) })
			m.Col(2, func() { text(m, value, size, style, darkGray, consts.Right) })
		})
	}
	summary("Subtotal", money(inv.Currency, inv.LinesTotal()), 9, consts.Normal)
	summary(fmt.Sprintf("Tax (%s%%)", core.FormatQuantity(inv.TaxRate)), money(inv.Currency, inv.TaxAmount), 9, consts.Normal)
	summary("Total", money(inv.Currency, inv.TotalAmount), 12, consts.Bold)

	if inv.Description != "" {
		m.Row(12, func() {})
		m.Row(5, func() {
			m.Col(12, func() { text(m, inv.Description, 8, consts.Normal, mediumGray, consts.Left) })
		})
	}
}
