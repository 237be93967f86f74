package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/mini-storefront/internal/core/domain"
)

const (
	cartEventsPrefix  = "cart_events:"
	idempotencyKeyTTL = 24 * time.Hour
)

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) LoadSlot(ctx context.Context, name string) ([]byte, error) {
	data, err := r.client.Get(ctx, name).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (r *RedisAdapter) StoreSlot(ctx context.Context, name string, data []byte) error {
	return r.client.Set(ctx, name, data, 0).Err()
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// PublishCart sends the full cart JSON on cart_events:{session}.
func (r *RedisAdapter) PublishCart(ctx context.Context, sessionID string, cart domain.Cart) error {
	data, err := cart.Encode()
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, cartEventsPrefix+sessionID, data).Err()
}

// SubscribeCart delivers carts published for sessionID until ctx is done.
// Messages that do not decode are skipped.
func (r *RedisAdapter) SubscribeCart(ctx context.Context, sessionID string) (<-chan domain.Cart, error) {
	sub := r.client.Subscribe(ctx, cartEventsPrefix+sessionID)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, err
	}

	out := make(chan domain.Cart)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				cart, err := domain.DecodeCart([]byte(msg.Payload))
				if err != nil {
					continue
				}
				select {
				case out <- cart:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
