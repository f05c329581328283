package bling

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// MovementStockOut is the stock-out movement type for /estoques/movimentacoes.
const MovementStockOut = "S"

// Bling IDs are 64-bit integers; json.Number keeps them exact and lets the
// picking layer treat them as opaque strings.

// OrderSummary is one row of the sales-order search.
type OrderSummary struct {
	ID     json.Number `json:"id"`
	Number json.Number `json:"numero"`
}

// Order is the sales-order detail.
type Order struct {
	ID     json.Number `json:"id"`
	Number json.Number `json:"numero"`
	Items  []OrderItem `json:"itens"`
}

// OrderItem is one order line. Quantity is a decimal in Bling's schema.
type OrderItem struct {
	Code        string          `json:"codigo"`
	Description string          `json:"descricao"`
	Quantity    decimal.Decimal `json:"quantidade"`
	Product     ProductRef      `json:"produto"`
}

// ProductRef points at a product by ID.
type ProductRef struct {
	ID json.Number `json:"id"`
}

// HasID reports whether the reference names a real product. Free-text order
// lines come back with no ID or ID 0.
func (r ProductRef) HasID() bool {
	return r.ID != "" && r.ID != "0"
}

// Product is the subset of product detail used to resolve scanned codes.
type Product struct {
	ID      json.Number `json:"id"`
	Name    string      `json:"nome"`
	Code    string      `json:"codigo"`
	Barcode string      `json:"codigoBarras"`
	GTIN    string      `json:"gtin"`
}

// StockMovement is the body of a stock movement post.
type StockMovement struct {
	Type  string              `json:"tipo"`
	Notes string              `json:"observacoes"`
	Items []StockMovementItem `json:"itens"`
}

// StockMovementItem moves Quantity units of one product.
type StockMovementItem struct {
	Product  ProductRef `json:"produto"`
	Quantity int        `json:"quantidade"`
}
