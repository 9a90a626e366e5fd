package domain

import "github.com/shopspring/decimal"

// Product is a read-only catalog entry. Price keeps the locale-formatted
// source text (e.g. "3.499,00").
type Product struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    string `json:"price"`
	Category string `json:"category"`
}

// LineItem is one product placed in the cart.
type LineItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Price     string          `json:"price"`
	Amount    decimal.Decimal `json:"amount"`
}
