package api

import (
	"context"
	"net/http"

	"fatture/internal/core"
)

func (c *Client) ListLineItems(ctx context.Context, token string) ([]core.LineItem, error) {
	var wire []lineItemWire
	if err := c.do(ctx, "list line items", http.MethodGet, "/line_items/list", token, nil, &wire); err != nil {
		return nil, err
	}
	return convertList("line item", wire, lineItemWire.toCore)
}

// GetLineItem fetches one catalog entry. The returned item always carries id,
// even when the API omits it from the body.
func (c *Client) GetLineItem(ctx context.Context, token, id string) (core.LineItem, error) {
	var wire lineItemWire
	if err := c.do(ctx, "get line item", http.MethodGet, "/line_items/"+escape(id), token, nil, &wire); err != nil {
		return core.LineItem{}, err
	}
	if wire.ID == "" {
		wire.ID = ID(id)
	}
	return convertOne("line item", wire, lineItemWire.toCore)
}

func (c *Client) CreateLineItem(ctx context.Context, token, userID string, li core.LineItem) (core.LineItem, error) {
	if li.Name == "" {
		return core.LineItem{}, &core.ValidationError{Field: "name", Message: "line item name is required", Err: core.ErrEmptyName}
	}
	var wire lineItemWire
	if err := c.do(ctx, "create line item", http.MethodPost, "/line_items/create", token, lineItemToWire(li, userID), &wire); err != nil {
		return core.LineItem{}, err
	}
	return convertOne("line item", wire, lineItemWire.toCore)
}

func (c *Client) UpdateLineItem(ctx context.Context, token, userID string, li core.LineItem) error {
	if err := li.Validate(); err != nil {
		return err
	}
	return c.do(ctx, "update line item", http.MethodPut, "/line_items/"+escape(li.ID), token, lineItemToWire(li, userID), nil)
}

func (c *Client) DeleteLineItem(ctx context.Context, token, id string) error {
	return c.do(ctx, "delete line item", http.MethodDelete, "/line_items/"+escape(id), token, nil, nil)
}
