package service

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/rl1809/mini-storefront/internal/core/domain"
)

// Mock CartSlot
type mockSlot struct {
	mu       sync.Mutex
	data     map[string][]byte
	writes   int
	loadErr  error
	storeErr error
}

func newMockSlot() *mockSlot {
	return &mockSlot{data: make(map[string][]byte)}
}

func (m *mockSlot) LoadSlot(ctx context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.data[name], nil
}

func (m *mockSlot) StoreSlot(ctx context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storeErr != nil {
		return m.storeErr
	}
	m.data[name] = slices.Clone(data)
	m.writes++
	return nil
}

// stored decodes what is currently persisted for the session.
func (m *mockSlot) stored(sessionID string) domain.Cart {
	m.mu.Lock()
	defer m.mu.Unlock()
	cart, _ := domain.DecodeCart(m.data[SlotName(sessionID)])
	return cart
}

// Mock CartPublisher
type mockPublisher struct {
	mu    sync.Mutex
	carts []domain.Cart
	err   error
}

func (m *mockPublisher) PublishCart(ctx context.Context, sessionID string, cart domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts = append(m.carts, cart)
	return m.err
}

// Mock IdempotencyStore
type mockIdem struct {
	mu  sync.Mutex
	set map[string]bool
	err error
}

func newMockIdem() *mockIdem {
	return &mockIdem{set: make(map[string]bool)}
}

func (m *mockIdem) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if m.set[key] {
		return false, nil
	}
	m.set[key] = true
	return true, nil
}

func (m *mockIdem) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.set, key)
	return nil
}

func (m *mockIdem) claimed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.set)
}

// Mock OrderRepository
type mockOrders struct {
	mu     sync.Mutex
	orders []domain.Order
	err    error
}

func (m *mockOrders) CreateOrder(ctx context.Context, order domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.orders = append(m.orders, order)
	return nil
}

func (m *mockOrders) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ID == orderID {
			return &o, nil
		}
	}
	return nil, nil
}

func (m *mockOrders) ListOrders(ctx context.Context, sessionID string) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Order
	for i := len(m.orders) - 1; i >= 0; i-- {
		if m.orders[i].SessionID == sessionID {
			out = append(out, m.orders[i])
		}
	}
	return out, nil
}

func (m *mockOrders) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

var errCatalogDown = errors.New("catalog down")

// Mock Catalog
type mockCatalog struct {
	mu       sync.Mutex
	products []domain.Product
	err      error
	calls    int
	// block, when set, holds ListProductsByCategory for that category
	// until the channel is closed.
	block map[string]chan struct{}
	// holdGet, when set, holds GetProduct until closed. Each held call is
	// announced on heldGet first.
	holdGet chan struct{}
	heldGet chan int
}

func (m *mockCatalog) ListProducts(ctx context.Context) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return slices.Clone(m.products), nil
}

func (m *mockCatalog) ListProductsByCategory(ctx context.Context, category string) ([]domain.Product, error) {
	m.mu.Lock()
	gate := m.block[category]
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.Product
	for _, p := range m.products {
		if p.Category == category {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockCatalog) ListCategories(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []string
	for _, p := range m.products {
		if !slices.Contains(out, p.Category) {
			out = append(out, p.Category)
		}
	}
	return out, nil
}

func (m *mockCatalog) GetProduct(ctx context.Context, id int) (*domain.Product, error) {
	m.mu.Lock()
	hold, held := m.holdGet, m.heldGet
	m.mu.Unlock()
	if hold != nil {
		held <- id
		<-hold
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, p := range m.products {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, domain.ErrProductNotFound
}

func (m *mockCatalog) setPrice(id int, price string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.products {
		if m.products[i].ID == id {
			m.products[i].Price = decimal.RequireFromString(price)
		}
	}
}

func product(id int, price, title, category string) domain.Product {
	return domain.Product{
		ID:       id,
		Title:    title,
		Price:    decimal.RequireFromString(price),
		Category: category,
	}
}

// fiveProducts spans two categories, interleaved.
func fiveProducts() []domain.Product {
	return []domain.Product{
		product(1, "30", "Cotton Shirt", "A"),
		product(2, "10", "Leather Jacket", "B"),
		product(3, "20", "Linen shirt", "A"),
		product(4, "15", "Wool Scarf", "B"),
		product(5, "5", "Silk Tie", "A"),
	}
}
