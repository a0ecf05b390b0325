package api

import (
	"context"
	"net/http"

	"fatture/internal/core"
)

// ListInvoices returns every invoice visible to the token's user.
func (c *Client) ListInvoices(ctx context.Context, token string) ([]core.Invoice, error) {
	var wire []invoiceWire
	if err := c.do(ctx, "list invoices", http.MethodGet, "/invoices/list", token, nil, &wire); err != nil {
		return nil, err
	}
	return convertList("invoice", wire, invoiceWire.toCore)
}

func (c *Client) GetInvoice(ctx context.Context, token, id string) (core.Invoice, error) {
	var wire invoiceWire
	if err := c.do(ctx, "get invoice", http.MethodGet, "/invoices/"+escape(id), token, nil, &wire); err != nil {
		return core.Invoice{}, err
	}
	return convertOne("invoice", wire, invoiceWire.toCore)
}

func (c *Client) CreateInvoice(ctx context.Context, token string, inv core.Invoice) (core.Invoice, error) {
	if err := inv.Validate(); err != nil {
		return core.Invoice{}, err
	}
	var wire invoiceWire
	if err := c.do(ctx, "create invoice", http.MethodPost, "/invoices/create", token, invoiceToWire(inv), &wire); err != nil {
		return core.Invoice{}, err
	}
	return convertOne("invoice", wire, invoiceWire.toCore)
}

func (c *Client) UpdateInvoice(ctx context.Context, token string, inv core.Invoice) (core.Invoice, error) {
	if err := inv.Validate(); err != nil {
		return core.Invoice{}, err
	}
	var wire invoiceWire
	if err := c.do(ctx, "update invoice", http.MethodPut, "/invoices/update/"+escape(inv.ID), token, invoiceToWire(inv), &wire); err != nil {
		return core.Invoice{}, err
	}
	return convertOne("invoice", wire, invoiceWire.toCore)
}

// DeleteInvoice soft-deletes an invoice; RestoreInvoice brings it back.
func (c *Client) DeleteInvoice(ctx context.Context, token, id string) error {
	return c.do(ctx, "delete invoice", http.MethodDelete, "/invoices/delete/"+escape(id), token, nil, nil)
}

func (c *Client) RestoreInvoice(ctx context.Context, token, id string) error {
	return c.do(ctx, "restore invoice", http.MethodPut, "/invoices/restore/"+escape(id), token, nil, nil)
}

// ListInvoicesForTaxAdvisor returns the invoices of every client assigned to advisorID.
func (c *Client) ListInvoicesForTaxAdvisor(ctx context.Context, token, advisorID string) ([]core.Invoice, error) {
	var wire []invoiceWire
	if err := c.do(ctx, "list tax advisor invoices", http.MethodGet, "/invoices/tax_advisor/"+escape(advisorID), token, nil, &wire); err != nil {
		return nil, err
	}
	return convertList("invoice", wire, invoiceWire.toCore)
}
