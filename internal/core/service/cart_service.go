package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/mini-storefront/internal/core/domain"
	"github.com/rl1809/mini-storefront/internal/port"
)

var ErrInvalidDelta = errors.New("quantity delta must be +1 or -1")

// SlotName is the storage slot holding a session's cart. The empty session
// is the single local cart.
func SlotName(sessionID string) string {
	if sessionID == "" {
		return "cart"
	}
	return "cart:" + sessionID
}

type CartOption func(*CartService)

func WithCartPublisher(p port.CartPublisher) CartOption {
	return func(s *CartService) { s.publisher = p }
}

func WithCartLogger(l *zap.Logger) CartOption {
	return func(s *CartService) { s.logger = l }
}

// CartService is the only writer of cart slots in the process. Every
// mutation is serialized, written through to the slot and announced to
// subscribers.
type CartService struct {
	slot      port.CartSlot
	publisher port.CartPublisher
	logger    *zap.Logger

	mu sync.Mutex
	// carts caches non-empty carts only; the slot stays the source of truth.
	carts  map[string]domain.Cart
	subs   map[string]map[int]chan domain.Cart
	nextID int
}

func NewCartService(slot port.CartSlot, opts ...CartOption) *CartService {
	s := &CartService{
		slot:   slot,
		logger: zap.NewNop(),
		carts:  make(map[string]domain.Cart),
		subs:   make(map[string]map[int]chan domain.Cart),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("cart")
	return s
}

func (s *CartService) Add(ctx context.Context, sessionID string, p domain.Product) error {
	return s.mutate(ctx, sessionID, func(c domain.Cart) (domain.Cart, bool) {
		return c.Add(p)
	})
}

func (s *CartService) Remove(ctx context.Context, sessionID string, productID int) error {
	return s.mutate(ctx, sessionID, func(c domain.Cart) (domain.Cart, bool) {
		return c.Remove(productID)
	})
}

func (s *CartService) AdjustQuantity(ctx context.Context, sessionID string, productID, delta int) error {
	if delta != 1 && delta != -1 {
		return ErrInvalidDelta
	}
	return s.mutate(ctx, sessionID, func(c domain.Cart) (domain.Cart, bool) {
		return c.Adjust(productID, delta)
	})
}

func (s *CartService) Clear(ctx context.Context, sessionID string) error {
	return s.mutate(ctx, sessionID, func(c domain.Cart) (domain.Cart, bool) {
		return domain.Cart{}, len(c) > 0
	})
}

// Take empties the session's cart and returns what it held, in one step.
// Nothing added concurrently can be lost between the read and the clear.
func (s *CartService) Take(ctx context.Context, sessionID string) (domain.Cart, error) {
	var taken domain.Cart
	err := s.mutate(ctx, sessionID, func(c domain.Cart) (domain.Cart, bool) {
		taken = slices.Clone(c)
		return domain.Cart{}, len(c) > 0
	})
	if err != nil {
		return nil, err
	}
	return taken, nil
}

// Restore puts line items back into the cart, keeping their quantities.
// Products already in the cart are left as they are.
func (s *CartService) Restore(ctx context.Context, sessionID string, items domain.Cart) error {
	return s.mutate(ctx, sessionID, func(c domain.Cart) (domain.Cart, bool) {
		changed := false
		for _, li := range items {
			if li.Quantity <= 0 || c.Contains(li.ID) {
				continue
			}
			c = append(slices.Clip(c), li)
			changed = true
		}
		return c, changed
	})
}

func (s *CartService) Contains(ctx context.Context, sessionID string, productID int) bool {
	return s.Items(ctx, sessionID).Contains(productID)
}

func (s *CartService) TotalPrice(ctx context.Context, sessionID string) decimal.Decimal {
	return s.Items(ctx, sessionID).Total()
}

// Count is the number of distinct products in the cart.
func (s *CartService) Count(ctx context.Context, sessionID string) int {
	return len(s.Items(ctx, sessionID))
}

func (s *CartService) Items(ctx context.Context, sessionID string) domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.loadLocked(ctx, sessionID))
}

// Subscribe returns a channel receiving the session's cart after every
// change. A slow reader only sees the latest cart.
func (s *CartService) Subscribe(sessionID string) (<-chan domain.Cart, func()) {
	ch := make(chan domain.Cart, 1)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	if s.subs[sessionID] == nil {
		s.subs[sessionID] = make(map[int]chan domain.Cart)
	}
	s.subs[sessionID][id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs[sessionID], id)
			if len(s.subs[sessionID]) == 0 {
				delete(s.subs, sessionID)
			}
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *CartService) mutate(ctx context.Context, sessionID string, fn func(domain.Cart) (domain.Cart, bool)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, changed := fn(s.loadLocked(ctx, sessionID))
	if !changed {
		return nil
	}

	data, err := next.Encode()
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := s.slot.StoreSlot(ctx, SlotName(sessionID), data); err != nil {
		return fmt.Errorf("store cart: %w", err)
	}
	s.cacheLocked(sessionID, next)

	for _, ch := range s.subs[sessionID] {
		select {
		case ch <- next:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- next
		}
	}

	if s.publisher != nil {
		if err := s.publisher.PublishCart(ctx, sessionID, next); err != nil {
			s.logger.Warn("publish cart failed", zap.String("session", sessionID), zap.Error(err))
		}
	}
	return nil
}

// loadLocked returns the session's cart, reading the slot on first use.
// An unreadable slot reads as an empty cart and is not cached, so the next
// call tries storage again.
func (s *CartService) loadLocked(ctx context.Context, sessionID string) domain.Cart {
	if cart, ok := s.carts[sessionID]; ok {
		return cart
	}

	data, err := s.slot.LoadSlot(ctx, SlotName(sessionID))
	if err != nil {
		s.logger.Warn("load cart failed", zap.String("session", sessionID), zap.Error(err))
		return domain.Cart{}
	}

	cart, err := domain.DecodeCart(data)
	if err != nil {
		s.logger.Warn("corrupt cart snapshot, starting empty", zap.String("session", sessionID), zap.Error(err))
	}
	s.cacheLocked(sessionID, cart)
	return cart
}

// cacheLocked keeps cart in memory unless it is empty. Sessions that only
// read an empty cart cost nothing once the call returns.
func (s *CartService) cacheLocked(sessionID string, cart domain.Cart) {
	if len(cart) == 0 {
		delete(s.carts, sessionID)
		return
	}
	s.carts[sessionID] = cart
}
