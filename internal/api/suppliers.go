package api

import (
	"context"
	"net/http"

	"fatture/internal/core"
)

func supplierToWire(s core.Supplier) partyWire {
	return partyWire{ID: ID(s.ID), Name: s.Name, Email: s.Email, Address: s.Address, Phone: s.Phone}
}

func (c *Client) ListSuppliers(ctx context.Context, token string) ([]core.Supplier, error) {
	var wire []partyWire
	if err := c.do(ctx, "list suppliers", http.MethodGet, "/suppliers/list", token, nil, &wire); err != nil {
		return nil, err
	}
	return convertList("supplier", wire, partyWire.toSupplier)
}

func (c *Client) GetSupplier(ctx context.Context, token, id string) (core.Supplier, error) {
	var wire partyWire
	if err := c.do(ctx, "get supplier", http.MethodGet, "/suppliers/"+escape(id), token, nil, &wire); err != nil {
		return core.Supplier{}, err
	}
	return convertOne("supplier", wire, partyWire.toSupplier)
}

func (c *Client) CreateSupplier(ctx context.Context, token string, s core.Supplier) (core.Supplier, error) {
	if err := s.Validate(); err != nil {
		return core.Supplier{}, err
	}
	var wire partyWire
	if err := c.do(ctx, "create supplier", http.MethodPost, "/suppliers/create", token, supplierToWire(s), &wire); err != nil {
		return core.Supplier{}, err
	}
	return convertOne("supplier", wire, partyWire.toSupplier)
}

func (c *Client) UpdateSupplier(ctx context.Context, token string, s core.Supplier) error {
	if err := s.Validate(); err != nil {
		return err
	}
	return c.do(ctx, "update supplier", http.MethodPut, "/suppliers/"+escape(s.ID), token, supplierToWire(s), nil)
}

func (c *Client) DeleteSupplier(ctx context.Context, token, id string) error {
	return c.do(ctx, "delete supplier", http.MethodDelete, "/suppliers/"+escape(id), token, nil, nil)
}
