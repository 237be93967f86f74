package domain

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Prices travel as JSON numbers everywhere: catalog requests, stored cart
// snapshots and API responses.
func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

type Rating struct {
	Rate  float64 `json:"rate"`
	Count int     `json:"count"`
}

// Product mirrors the catalog API's product shape.
type Product struct {
	ID          int             `json:"id"`
	Title       string          `json:"title"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Image       string          `json:"image"`
	Rating      Rating          `json:"rating"`
}

// RatingStars is the number of whole stars shown for the product.
func (p Product) RatingStars() int {
	if p.Rating.Rate <= 0 {
		return 0
	}
	return int(p.Rating.Rate)
}

// UserCart is a cart record as kept by the remote catalog API.
type UserCart struct {
	ID       int           `json:"id"`
	UserID   int           `json:"userId"`
	Date     string        `json:"date"`
	Products []UserCartRow `json:"products"`
}

type UserCartRow struct {
	ProductID int `json:"productId"`
	Quantity  int `json:"quantity"`
}

var ErrProductNotFound = errors.New("product not found")
