package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/rl1809/mini-storefront/internal/core/domain"
	"github.com/rl1809/mini-storefront/internal/port"
)

// ProductDetails is what a product detail view shows.
type ProductDetails struct {
	Product     domain.Product `json:"product"`
	InCart      bool           `json:"in_cart"`
	RatingStars int            `json:"rating_stars"`
}

// CartDetails is what a cart view shows.
type CartDetails struct {
	Items     domain.Cart     `json:"items"`
	Total     decimal.Decimal `json:"total"`
	Count     int             `json:"count"`
	Units     int             `json:"units"`
	Step      domain.Step     `json:"step"`
	StepLabel string          `json:"step_label"`
}

// Storefront is the session-scoped surface shared by the HTTP, gRPC and
// CLI front ends.
type Storefront struct {
	Catalog  port.Catalog
	Carts    *CartService
	Checkout *CheckoutService
}

func NewStorefront(catalog port.Catalog, carts *CartService, checkout *CheckoutService) *Storefront {
	return &Storefront{Catalog: catalog, Carts: carts, Checkout: checkout}
}

func (s *Storefront) Browse(ctx context.Context, f Filter) ([]domain.Product, error) {
	return Browse(ctx, s.Catalog, f)
}

func (s *Storefront) Categories(ctx context.Context) ([]string, error) {
	return s.Catalog.ListCategories(ctx)
}

func (s *Storefront) ProductDetails(ctx context.Context, sessionID string, id int) (ProductDetails, error) {
	p, err := s.Catalog.GetProduct(ctx, id)
	if err != nil {
		return ProductDetails{}, err
	}
	return ProductDetails{
		Product:     *p,
		InCart:      s.Carts.Contains(ctx, sessionID, p.ID),
		RatingStars: p.RatingStars(),
	}, nil
}

// AddProduct looks the product up in the catalog and adds it to the cart.
func (s *Storefront) AddProduct(ctx context.Context, sessionID string, id int) (CartDetails, error) {
	p, err := s.Catalog.GetProduct(ctx, id)
	if err != nil {
		return CartDetails{}, err
	}
	if err := s.Carts.Add(ctx, sessionID, *p); err != nil {
		return CartDetails{}, err
	}
	return s.Cart(ctx, sessionID), nil
}

func (s *Storefront) RemoveProduct(ctx context.Context, sessionID string, id int) (CartDetails, error) {
	if err := s.Carts.Remove(ctx, sessionID, id); err != nil {
		return CartDetails{}, err
	}
	return s.Cart(ctx, sessionID), nil
}

func (s *Storefront) AdjustQuantity(ctx context.Context, sessionID string, id, delta int) (CartDetails, error) {
	if err := s.Carts.AdjustQuantity(ctx, sessionID, id, delta); err != nil {
		return CartDetails{}, err
	}
	return s.Cart(ctx, sessionID), nil
}

func (s *Storefront) Cart(ctx context.Context, sessionID string) CartDetails {
	items := s.Carts.Items(ctx, sessionID)
	if items == nil {
		items = domain.Cart{}
	}
	step := s.Checkout.Step(sessionID)
	return CartDetails{
		Items:     items,
		Total:     items.Total(),
		Count:     len(items),
		Units:     items.Units(),
		Step:      step,
		StepLabel: step.String(),
	}
}

func (s *Storefront) NextStep(ctx context.Context, sessionID string) CartDetails {
	s.Checkout.Next(sessionID)
	return s.Cart(ctx, sessionID)
}

func (s *Storefront) PrevStep(ctx context.Context, sessionID string) CartDetails {
	s.Checkout.Prev(sessionID)
	return s.Cart(ctx, sessionID)
}

func (s *Storefront) SubmitPayment(ctx context.Context, sessionID, requestID string, form domain.PaymentForm) (domain.Order, error) {
	return s.Checkout.SubmitPayment(ctx, sessionID, requestID, form)
}

func (s *Storefront) Orders(ctx context.Context, sessionID string) ([]domain.Order, error) {
	orders, err := s.Checkout.Orders(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	return orders, nil
}
