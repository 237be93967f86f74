package port

import (
	"context"

	"github.com/rl1809/mini-storefront/internal/core/domain"
)

type OrderRepository interface {
	// CreateOrder persists an order and its lines atomically
	CreateOrder(ctx context.Context, order domain.Order) error

	// GetOrder retrieves an order by ID, nil if it does not exist
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)

	// ListOrders returns the orders of a session, newest first
	ListOrders(ctx context.Context, sessionID string) ([]domain.Order, error)
}
