package api

import (
	"context"
	"net/http"

	"fatture/internal/core"
)

func customerToWire(c core.Customer) partyWire {
	return partyWire{ID: ID(c.ID), Name: c.Name, Email: c.Email, Address: c.Address, Phone: c.Phone}
}

func (c *Client) ListCustomers(ctx context.Context, token string) ([]core.Customer, error) {
	var wire []partyWire
	if err := c.do(ctx, "list customers", http.MethodGet, "/customers/list", token, nil, &wire); err != nil {
		return nil, err
	}
	return convertList("customer", wire, partyWire.toCustomer)
}

func (c *Client) GetCustomer(ctx context.Context, token, id string) (core.Customer, error) {
	var wire partyWire
	if err := c.do(ctx, "get customer", http.MethodGet, "/customers/"+escape(id), token, nil, &wire); err != nil {
		return core.Customer{}, err
	}
	return convertOne("customer", wire, partyWire.toCustomer)
}

func (c *Client) CreateCustomer(ctx context.Context, token string, cust core.Customer) (core.Customer, error) {
	if err := cust.Validate(); err != nil {
		return core.Customer{}, err
	}
	var wire partyWire
	if err := c.do(ctx, "create customer", http.MethodPost, "/customers/create", token, customerToWire(cust), &wire); err != nil {
		return core.Customer{}, err
	}
	return convertOne("customer", wire, partyWire.toCustomer)
}

func (c *Client) UpdateCustomer(ctx context.Context, token string, cust core.Customer) error {
	if err := cust.Validate(); err != nil {
		return err
	}
	return c.do(ctx, "update customer", http.MethodPut, "/customers/"+escape(cust.ID), token, customerToWire(cust), nil)
}

func (c *Client) DeleteCustomer(ctx context.Context, token, id string) error {
	return c.do(ctx, "delete customer", http.MethodDelete, "/customers/"+escape(id), token, nil, nil)
}
