package core

import (
	"errors"
	"strings"
	"time"
)

const (
	StatusNew       InvoiceStatus = "New"
	StatusSent      InvoiceStatus = "Sent"
	StatusPaid      InvoiceStatus = "Paid"
	StatusCancelled InvoiceStatus = "Cancelled"
	StatusLost      InvoiceStatus = "Lost"
)

type (
	InvoiceStatus string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// LineItemRef points at a catalog entry with an invoice-specific quantity.
	// A zero Quantity falls back to the catalog default unless QuantitySet.
	LineItemRef struct {
		ID          string
		Quantity    float64
		QuantitySet bool
	}

	// LineItem is a priced catalog entry.
	LineItem struct {
		ID       string
		Name     string
		Price    Money
		Quantity float64 // catalog default, invoices override it
		Currency string
	}

	Invoice struct {
		ID           string
		Number       string
		IssueDate    Date
		DueDate      Date
		Currency     string
		TotalAmount  Money
		TaxAmount    Money
		TaxRate      float64
		Description  string
		Status       InvoiceStatus
		CustomerName string
		SupplierName string
		Paid         bool
		UserID       string
		LineItems    []LineItemRef
	}

	// ResolvedLine is a line item reference joined with its catalog entry.
	ResolvedLine struct {
		LineItem
		Quantity float64
	}

	// ResolvedInvoice carries an invoice with its line items looked up.
	ResolvedInvoice struct {
		Invoice
		Lines []ResolvedLine
	}

	UserSettings struct {
		ID                       string
		Name                     string
		Email                    string
		TaxDownPaymentPercentage float64
		MonthlySocialSecurity    Money
	}

	Customer struct {
		ID      string
		Name    string
		Email   string
		Address string
		Phone   string
	}

	Supplier struct {
		ID      string
		Name    string
		Email   string
		Address string
		Phone   string
	}

	Expense struct {
		ID            string
		Description   string
		Amount        Money
		Currency      string
		Type          string
		PaymentMethod string
		Status        string
		Vendor        string
		Notes         string
	}
)

var (
	ErrInvalidDay         = errors.New("invalid day")
	ErrInvalidMonth       = errors.New("invalid month")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidQuantity    = errors.New("invalid quantity")
	ErrInvalidStatus      = errors.New("invalid invoice status")
	ErrEmptyDescription   = errors.New("empty description")
	ErrEmptyName          = errors.New("empty name")
	ErrEmptyInvoiceNumber = errors.New("empty invoice number")
	ErrZeroDate           = errors.New("date cannot be zero")
)

// Statuses lists every invoice status in lifecycle order.
func Statuses() []InvoiceStatus {
	return []InvoiceStatus{StatusNew, StatusSent, StatusPaid, StatusCancelled, StatusLost}
}

// ParseStatus matches s case-insensitively against the known statuses.
func ParseStatus(s string) (InvoiceStatus, error) {
	s = strings.TrimSpace(s)
	for _, st := range Statuses() {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	return "", ErrInvalidStatus
}

func (s InvoiceStatus) Valid() bool {
	_, err := ParseStatus(string(s))
	return err == nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrZeroDate
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Month returns the month as 1-12.
func (d Date) Month() int {
	return int(d.Time.Month())
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts a plain YYYY-MM-DD date or a full RFC 3339 timestamp.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, ErrZeroDate
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return Date{Time: t}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, err
	}
	t = t.UTC()
	return NewDate(t.Year(), int(t.Month()), t.Day()), nil
}

// String renders the date as YYYY-MM-DD, or "" for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format("2006-01-02")
}

// Subtotal is price times quantity.
func (l ResolvedLine) Subtotal() Money {
	return l.Price.MulQuantity(l.Quantity)
}

// LinesTotal sums the subtotals of every resolved line.
func (ri ResolvedInvoice) LinesTotal() Money {
	var sum Money
	for _, l := range ri.Lines {
		sum = sum.Add(l.Subtotal())
	}
	return sum
}

func (r LineItemRef) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return &ValidationError{Field: "line_items.id", Value: r.ID, Message: "missing line item id"}
	}
	if r.Quantity < 0 {
		return &ValidationError{Field: "line_items.quantity", Value: r.Quantity, Message: "quantity cannot be negative", Err: ErrInvalidQuantity}
	}
	return nil
}

func (li LineItem) Validate() error {
	if strings.TrimSpace(li.ID) == "" {
		return &ValidationError{Field: "id", Value: li.ID, Message: "missing line item id"}
	}
	if strings.TrimSpace(li.Name) == "" {
		return &ValidationError{Field: "name", Value: li.Name, Message: "line item name is required", Err: ErrEmptyName}
	}
	if li.Price.Cents < 0 {
		return &ValidationError{Field: "price", Value: li.Price.Cents, Message: "price cannot be negative", Err: ErrInvalidAmount}
	}
	return nil
}

// CheckShape reports the fields an invoice read from the API cannot be listed
// or aggregated without. Business rules are left to Validate.
func (inv Invoice) CheckShape() error {
	if strings.TrimSpace(inv.Number) == "" {
		return &ValidationError{Field: "invoice_number", Value: inv.Number, Message: "invoice number is required", Err: ErrEmptyInvoiceNumber}
	}
	if err := inv.IssueDate.Validate(); err != nil {
		return &ValidationError{Field: "issue_date", Value: inv.IssueDate.String(), Message: "invalid issue date", Err: err}
	}
	if !inv.Status.Valid() {
		return &ValidationError{Field: "status", Value: string(inv.Status), Message: "unknown invoice status", Err: ErrInvalidStatus}
	}
	for _, ref := range inv.LineItems {
		if strings.TrimSpace(ref.ID) == "" {
			return &ValidationError{Field: "line_items.id", Value: ref.ID, Message: "missing line item id"}
		}
	}
	return nil
}

// Validate applies CheckShape plus the rules for invoices this module writes.
func (inv Invoice) Validate() error {
	if err := inv.CheckShape(); err != nil {
		return err
	}
	if !inv.DueDate.IsZero() && inv.DueDate.Before(inv.IssueDate.Time) {
		return &ValidationError{Field: "due_date", Value: inv.DueDate.String(), Message: "due date before issue date"}
	}
	if inv.TaxRate < 0 || inv.TaxRate > 100 {
		return &ValidationError{Field: "tax_rate", Value: inv.TaxRate, Message: "tax rate must be between 0 and 100"}
	}
	for _, ref := range inv.LineItems {
		if err := ref.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (u UserSettings) Validate() error {
	if u.TaxDownPaymentPercentage < 0 || u.TaxDownPaymentPercentage > 100 {
		return &ValidationError{Field: "tax_down_payment_percentage", Value: u.TaxDownPaymentPercentage, Message: "must be between 0 and 100"}
	}
	if u.MonthlySocialSecurity.Cents < 0 {
		return &ValidationError{Field: "monthly_social_security_payment", Value: u.MonthlySocialSecurity.Cents, Message: "cannot be negative", Err: ErrInvalidAmount}
	}
	return nil
}

func (c Customer) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return &ValidationError{Field: "name", Value: c.Name, Message: "customer name is required", Err: ErrEmptyName}
	}
	return nil
}

func (s Supplier) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return &ValidationError{Field: "name", Value: s.Name, Message: "supplier name is required", Err: ErrEmptyName}
	}
	return nil
}

func (e Expense) Validate() error {
	if len(strings.TrimSpace(e.Description)) == 0 {
		return &ValidationError{Field: "description", Value: e.Description, Message: "description is required", Err: ErrEmptyDescription}
	}
	if len(e.Description) > 200 {
		return &ValidationError{Field: "description", Value: len(e.Description), Message: "description too long (max 200 characters)"}
	}
	if err := e.Amount.Validate(); err != nil {
		return &ValidationError{Field: "amount", Value: e.Amount.Cents, Message: "amount must be positive", Err: err}
	}
	return nil
}
