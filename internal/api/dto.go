package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"fatture/internal/core"
)

// Number is a JSON field that the API sends either as a number or as a
// numeric string ("220" or "220.00"). The raw text is kept so amounts can be
// converted to cents without going through float64.
type Number struct {
	raw string
	set bool
}

func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*n = Number{}
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*n = Number{}
			return nil
		}
		*n = Number{raw: s, set: true}
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return fmt.Errorf("expected number or numeric string, got %s", b)
	}
	*n = Number{raw: num.String(), set: true}
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.set {
		return []byte("null"), nil
	}
	if _, err := strconv.ParseFloat(n.raw, 64); err != nil {
		return nil, fmt.Errorf("number %q: %w", n.raw, err)
	}
	return []byte(n.raw), nil
}

// IsSet reports whether the field was present and not null.
func (n Number) IsSet() bool { return n.set }

func (n Number) Float() (float64, error) {
	if !n.set {
		return 0, nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(n.raw, ",", "."), 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", n.raw)
	}
	return f, nil
}

// Money converts the value to cents. Plain decimals are parsed exactly;
// exponent forms go through float64.
func (n Number) Money() (core.Money, error) {
	if !n.set {
		return core.Money{}, nil
	}
	if cents, err := core.ParseAmount(n.raw); err == nil {
		return core.Money{Cents: cents}, nil
	}
	f, err := n.Float()
	if err != nil {
		return core.Money{}, err
	}
	return core.FromFloat(f)
}

func NumberFromMoney(m core.Money) Number {
	return Number{raw: m.Decimal(), set: true}
}

func NumberFromFloat(f float64) Number {
	return Number{raw: strconv.FormatFloat(f, 'f', -1, 64), set: true}
}

// ID accepts identifiers sent as JSON strings or numbers.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return fmt.Errorf("expected id string or number, got %s", b)
	}
	*id = ID(num.String())
	return nil
}

type invoiceWire struct {
	ID            ID                `json:"id,omitempty"`
	InvoiceNumber string            `json:"invoice_number"`
	IssueDate     string            `json:"issue_date,omitempty"`
	DueDate       string            `json:"due_date,omitempty"`
	Currency      string            `json:"currency,omitempty"`
	TotalAmount   Number            `json:"total_amount"`
	TaxAmount     Number            `json:"tax_amount"`
	TaxRate       Number            `json:"tax_rate"`
	Description   string            `json:"description,omitempty"`
	Status        string            `json:"status,omitempty"`
	CustomerName  string            `json:"customer_name,omitempty"`
	SupplierName  string            `json:"supplier_name,omitempty"`
	Paid          bool              `json:"paid"`
	UserID        ID                `json:"user_id,omitempty"`
	LineItems     []lineItemRefWire `json:"line_items"`
}

type lineItemRefWire struct {
	ID       ID     `json:"id"`
	Quantity Number `json:"quantity"`
}

func (w invoiceWire) toCore() (core.Invoice, error) {
	inv := core.Invoice{
		ID:           string(w.ID),
		Number:       strings.TrimSpace(w.InvoiceNumber),
		Currency:     w.Currency,
		Description:  w.Description,
		CustomerName: w.CustomerName,
		SupplierName: w.SupplierName,
		Paid:         w.Paid,
		UserID:       string(w.UserID),
	}

	var err error
	if inv.IssueDate, err = core.ParseDate(w.IssueDate); err != nil {
		return core.Invoice{}, &core.ValidationError{Field: "issue_date", Value: w.IssueDate, Message: "invalid date", Err: err}
	}
	if w.DueDate != "" {
		if inv.DueDate, err = core.ParseDate(w.DueDate); err != nil {
			return core.Invoice{}, &core.ValidationError{Field: "due_date", Value: w.DueDate, Message: "invalid date", Err: err}
		}
	}
	if inv.TotalAmount, err = w.TotalAmount.Money(); err != nil {
		return core.Invoice{}, &core.ValidationError{Field: "total_amount", Value: w.TotalAmount.raw, Message: "not a number", Err: core.ErrInvalidAmount}
	}
	if inv.TaxAmount, err = w.TaxAmount.Money(); err != nil {
		return core.Invoice{}, &core.ValidationError{Field: "tax_amount", Value: w.TaxAmount.raw, Message: "not a number", Err: core.ErrInvalidAmount}
	}
	if inv.TaxRate, err = w.TaxRate.Float(); err != nil {
		return core.Invoice{}, &core.ValidationError{Field: "tax_rate", Value: w.TaxRate.raw, Message: "not a number"}
	}

	inv.Status = core.StatusNew
	if w.Status != "" {
		st, err := core.ParseStatus(w.Status)
		if err != nil {
			return core.Invoice{}, &core.ValidationError{Field: "status", Value: w.Status, Message: "unknown invoice status", Err: err}
		}
		inv.Status = st
	}
	if inv.Status == core.StatusPaid {
		inv.Paid = true
	}

	for i, ref := range w.LineItems {
		q, err := ref.Quantity.Float()
		if err != nil {
			return core.Invoice{}, &core.ValidationError{Field: fmt.Sprintf("line_items[%d].quantity", i), Value: ref.Quantity.raw, Message: "not a number", Err: core.ErrInvalidQuantity}
		}
		inv.LineItems = append(inv.LineItems, core.LineItemRef{ID: string(ref.ID), Quantity: q, QuantitySet: ref.Quantity.IsSet()})
	}

	if err := inv.CheckShape(); err != nil {
		return core.Invoice{}, err
	}
	return inv, nil
}

func invoiceToWire(inv core.Invoice) invoiceWire {
	w := invoiceWire{
		ID:            ID(inv.ID),
		InvoiceNumber: inv.Number,
		IssueDate:     inv.IssueDate.String(),
		DueDate:       inv.DueDate.String(),
		Currency:      inv.Currency,
		TotalAmount:   NumberFromMoney(inv.TotalAmount),
		TaxAmount:     NumberFromMoney(inv.TaxAmount),
		TaxRate:       NumberFromFloat(inv.TaxRate),
		Description:   inv.Description,
		Status:        string(inv.Status),
		CustomerName:  inv.CustomerName,
		SupplierName:  inv.SupplierName,
		Paid:          inv.Paid,
		UserID:        ID(inv.UserID),
		LineItems:     make([]lineItemRefWire, 0, len(inv.LineItems)),
	}
	for _, ref := range inv.LineItems {
		wr := lineItemRefWire{ID: ID(ref.ID)}
		if ref.QuantitySet || ref.Quantity != 0 {
			wr.Quantity = NumberFromFloat(ref.Quantity)
		}
		w.LineItems = append(w.LineItems, wr)
	}
	return w
}

func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(id))
}

type lineItemWire struct {
	ID       ID     `json:"id,omitempty"`
	Name     string `json:"name"`
	Price    Number `json:"price"`
	Quantity Number `json:"quantity"`
	Currency string `json:"currency,omitempty"`
	UserID   ID     `json:"user_id,omitempty"`
}

func (w lineItemWire) toCore() (core.LineItem, error) {
	price, err := w.Price.Money()
	if err != nil {
		return core.LineItem{}, &core.ValidationError{Field: "price", Value: w.Price.raw, Message: "not a number", Err: core.ErrInvalidAmount}
	}
	qty, err := w.Quantity.Float()
	if err != nil {
		return core.LineItem{}, &core.ValidationError{Field: "quantity", Value: w.Quantity.raw, Message: "not a number", Err: core.ErrInvalidQuantity}
	}
	li := core.LineItem{
		ID:       string(w.ID),
		Name:     strings.TrimSpace(w.Name),
		Price:    price,
		Quantity: qty,
		Currency: w.Currency,
	}
	if err := li.Validate(); err != nil {
		return core.LineItem{}, err
	}
	return li, nil
}

func lineItemToWire(li core.LineItem, userID string) lineItemWire {
	return lineItemWire{
		ID:       ID(li.ID),
		Name:     li.Name,
		Price:    NumberFromMoney(li.Price),
		Quantity: NumberFromFloat(li.Quantity),
		Currency: li.Currency,
		UserID:   ID(userID),
	}
}

type userWire struct {
	ID                           ID     `json:"id,omitempty"`
	UserID                       ID     `json:"user_id,omitempty"`
	Name                         string `json:"name,omitempty"`
	Email                        string `json:"email,omitempty"`
	TaxDownPaymentPercentage     Number `json:"tax_down_payment_percentage"`
	MonthlySocialSecurityPayment Number `json:"monthly_social_security_payment"`
}

func (w userWire) toCore() (core.UserSettings, error) {
	pct, err := w.TaxDownPaymentPercentage.Float()
	if err != nil {
		return core.UserSettings{}, &core.ValidationError{Field: "tax_down_payment_percentage", Value: w.TaxDownPaymentPercentage.raw, Message: "not a number"}
	}
	ss, err := w.MonthlySocialSecurityPayment.Money()
	if err != nil {
		return core.UserSettings{}, &core.ValidationError{Field: "monthly_social_security_payment", Value: w.MonthlySocialSecurityPayment.raw, Message: "not a number", Err: core.ErrInvalidAmount}
	}
	id := w.ID
	if id == "" {
		id = w.UserID
	}
	u := core.UserSettings{
		ID:                       string(id),
		Name:                     w.Name,
		Email:                    w.Email,
		TaxDownPaymentPercentage: pct,
		MonthlySocialSecurity:    ss,
	}
	if err := u.Validate(); err != nil {
		return core.UserSettings{}, err
	}
	return u, nil
}

type partyWire struct {
	ID      ID     `json:"id,omitempty"`
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

func (w partyWire) toCustomer() (core.Customer, error) {
	c := core.Customer{ID: string(w.ID), Name: strings.TrimSpace(w.Name), Email: w.Email, Address: w.Address, Phone: w.Phone}
	if err := c.Validate(); err != nil {
		return core.Customer{}, err
	}
	return c, nil
}

func (w partyWire) toSupplier() (core.Supplier, error) {
	s := core.Supplier{ID: string(w.ID), Name: strings.TrimSpace(w.Name), Email: w.Email, Address: w.Address, Phone: w.Phone}
	if err := s.Validate(); err != nil {
		return core.Supplier{}, err
	}
	return s, nil
}

type expenseWire struct {
	ID            ID     `json:"id,omitempty"`
	Description   string `json:"description"`
	Amount        Number `json:"amount"`
	Currency      string `json:"currency,omitempty"`
	Type          string `json:"type,omitempty"`
	PaymentMethod string `json:"payment_method,omitempty"`
	Status        string `json:"status,omitempty"`
	Vendor        string `json:"vendor,omitempty"`
	Notes         string `json:"notes,omitempty"`
	UserID        ID     `json:"user_id,omitempty"`
}

func (w expenseWire) toCore() (core.Expense, error) {
	amount, err := w.Amount.Money()
	if err != nil {
		return core.Expense{}, &core.ValidationError{Field: "amount", Value: w.Amount.raw, Message: "not a number", Err: core.ErrInvalidAmount}
	}
	e := core.Expense{
		ID:            string(w.ID),
		Description:   strings.TrimSpace(w.Description),
		Amount:        amount,
		Currency:      w.Currency,
		Type:          w.Type,
		PaymentMethod: w.PaymentMethod,
		Status:        w.Status,
		Vendor:        w.Vendor,
		Notes:         w.Notes,
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	return e, nil
}

func expenseToWire(e core.Expense, userID string) expenseWire {
	return expenseWire{
		ID:            ID(e.ID),
		Description:   e.Description,
		Amount:        NumberFromMoney(e.Amount),
		Currency:      e.Currency,
		Type:          e.Type,
		PaymentMethod: e.PaymentMethod,
		Status:        e.Status,
		Vendor:        e.Vendor,
		Notes:         e.Notes,
		UserID:        ID(userID),
	}
}
