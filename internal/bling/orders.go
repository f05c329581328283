package bling

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// FindOrders searches sales orders by their human-facing number. Bling
// returns at most one row because the search is limited to 1.
func (c *Client) FindOrders(ctx context.Context, number string) ([]OrderSummary, error) {
	query := url.Values{
		"numero": {number},
		"limite": {"1"},
	}

	var orders []OrderSummary
	if err := c.getJSON(ctx, "/pedidos/vendas", query, &orders); err != nil {
		return nil, fmt.Errorf("bling: searching order %s: %w", number, err)
	}

	return orders, nil
}

// GetOrder fetches the full order detail, including its lines.
func (c *Client) GetOrder(ctx context.Context, id string) (*Order, error) {
	var order Order
	if err := c.getJSON(ctx, "/pedidos/vendas/"+url.PathEscape(id), nil, &order); err != nil {
		return nil, fmt.Errorf("bling: fetching order %s: %w", id, err)
	}

	return &order, nil
}

// GetProduct fetches product detail for barcode resolution.
func (c *Client) GetProduct(ctx context.Context, id string) (*Product, error) {
	var product Product
	if err := c.getJSON(ctx, "/produtos/"+url.PathEscape(id), nil, &product); err != nil {
		return nil, fmt.Errorf("bling: fetching product %s: %w", id, err)
	}

	return &product, nil
}

// PostStockMovement posts one stock movement covering every item.
func (c *Client) PostStockMovement(ctx context.Context, m StockMovement) error {
	resp, err := c.Do(ctx, http.MethodPost, "/estoques/movimentacoes", nil, m)
	if err != nil {
		return fmt.Errorf("bling: posting stock movement: %w", err)
	}

	drain(resp)

	return nil
}
