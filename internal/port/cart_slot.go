package port

import (
	"context"

	"github.com/rl1809/mini-storefront/internal/core/domain"
)

type CartSlot interface {
	// LoadSlot returns the raw snapshot stored under name, nil if the slot is empty
	LoadSlot(ctx context.Context, name string) ([]byte, error)

	// StoreSlot replaces the snapshot stored under name
	StoreSlot(ctx context.Context, name string, data []byte) error
}

type CartPublisher interface {
	// PublishCart broadcasts the new cart of a session to out-of-process listeners
	PublishCart(ctx context.Context, sessionID string, cart domain.Cart) error
}

type IdempotencyStore interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency drops a claimed key so the request can be retried
	ReleaseIdempotency(ctx context.Context, key string) error
}
