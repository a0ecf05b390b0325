package api

import (
	"context"
	"net/http"
	"net/url"

	"fatture/internal/core"
)

func (c *Client) ListExpenses(ctx context.Context, token, userID string) ([]core.Expense, error) {
	path := "/expenses/list?" + url.Values{"user_id": {userID}}.Encode()
	var wire []expenseWire
	if err := c.do(ctx, "list expenses", http.MethodGet, path, token, nil, &wire); err != nil {
		return nil, err
	}
	return convertList("expense", wire, expenseWire.toCore)
}

func (c *Client) CreateExpense(ctx context.Context, token, userID string, e core.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}
	return c.do(ctx, "create expense", http.MethodPost, "/expenses/create", token, expenseToWire(e, userID), nil)
}

func (c *Client) UpdateExpense(ctx context.Context, token, userID string, e core.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}
	return c.do(ctx, "update expense", http.MethodPut, "/expenses/"+escape(e.ID), token, expenseToWire(e, userID), nil)
}

func (c *Client) DeleteExpense(ctx context.Context, token, id string) error {
	return c.do(ctx, "delete expense", http.MethodDelete, "/expenses/"+escape(id), token, nil, nil)
}
