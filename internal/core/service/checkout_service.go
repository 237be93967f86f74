package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/mini-storefront/internal/core/domain"
	"github.com/rl1809/mini-storefront/internal/port"
)

var (
	ErrDuplicateRequest = errors.New("duplicate request")
	ErrEmptyCart        = errors.New("cart is empty")
	ErrInvalidPayment   = errors.New("invalid payment details")
	ErrCheckoutClosed   = errors.New("checkout is closed")
)

const defaultQuoteConcurrency = 4

// PendingOrder is an accepted order waiting to be stored, together with
// the cart it was built from.
type PendingOrder struct {
	Order domain.Order
	Items domain.Cart
}

type CheckoutOption func(*CheckoutService)

func WithCheckoutLogger(l *zap.Logger) CheckoutOption {
	return func(s *CheckoutService) { s.logger = l }
}

// WithQuoteConcurrency bounds the parallel price lookups of one payment.
func WithQuoteConcurrency(n int) CheckoutOption {
	return func(s *CheckoutService) { s.maxConcurrent = n }
}

// CheckoutService walks a session through products → cart → payment and
// turns a submitted payment form into a queued order. No payment is taken.
type CheckoutService struct {
	carts   *CartService
	catalog port.Catalog
	idem    port.IdempotencyStore
	orders  port.OrderRepository
	logger  *zap.Logger
	now     func() time.Time

	maxConcurrent int
	orderQueue    chan PendingOrder

	// queueMu guards closed; senders hold it for reading.
	queueMu sync.RWMutex
	closed  bool

	mu    sync.Mutex
	steps map[string]domain.Step
}

func NewCheckoutService(carts *CartService, catalog port.Catalog, idem port.IdempotencyStore, orders port.OrderRepository, queueSize int, opts ...CheckoutOption) *CheckoutService {
	s := &CheckoutService{
		carts:         carts,
		catalog:       catalog,
		idem:          idem,
		orders:        orders,
		logger:        zap.NewNop(),
		now:           time.Now,
		maxConcurrent: defaultQuoteConcurrency,
		orderQueue:    make(chan PendingOrder, queueSize),
		steps:         make(map[string]domain.Step),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxConcurrent <= 0 {
		s.maxConcurrent = defaultQuoteConcurrency
	}
	s.logger = s.logger.Named("checkout")
	return s
}

func (s *CheckoutService) Step(sessionID string) domain.Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.steps[sessionID]
}

func (s *CheckoutService) GoTo(sessionID string, step domain.Step) domain.Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	step = step.Clamp()
	if step == domain.StepProducts {
		delete(s.steps, sessionID)
	} else {
		s.steps[sessionID] = step
	}
	return step
}

func (s *CheckoutService) Next(sessionID string) domain.Step {
	return s.GoTo(sessionID, s.Step(sessionID)+1)
}

func (s *CheckoutService) Prev(sessionID string) domain.Step {
	return s.GoTo(sessionID, s.Step(sessionID)-1)
}

// SubmitPayment turns the session's cart into a pending order. requestID
// makes resubmission of the same form a ErrDuplicateRequest. The cart is
// taken in one step, so a second concurrent payment finds it empty.
func (s *CheckoutService) SubmitPayment(ctx context.Context, sessionID, requestID string, form domain.PaymentForm) (domain.Order, error) {
	if err := form.Validate(); err != nil {
		return domain.Order{}, fmt.Errorf("%w: %w", ErrInvalidPayment, err)
	}

	if requestID == "" {
		requestID = uuid.NewString()
	}
	idempotencyKey := fmt.Sprintf("checkout:%s:%s", sessionID, requestID)

	ok, err := s.idem.SetIdempotency(ctx, idempotencyKey)
	if err != nil {
		return domain.Order{}, fmt.Errorf("idempotency check failed: %w", err)
	}
	if !ok {
		return domain.Order{}, ErrDuplicateRequest
	}

	items, err := s.carts.Take(ctx, sessionID)
	if err != nil {
		s.release(idempotencyKey)
		return domain.Order{}, fmt.Errorf("take cart: %w", err)
	}
	if len(items) == 0 {
		s.release(idempotencyKey)
		return domain.Order{}, ErrEmptyCart
	}

	lines := s.quote(ctx, items)
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.LineTotal)
	}

	now := s.now()
	order := domain.Order{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Lines:      lines,
		Total:      total.Round(2),
		CardSuffix: form.CardSuffix(),
		Status:     domain.OrderStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.enqueue(ctx, PendingOrder{Order: order, Items: items}); err != nil {
		s.release(idempotencyKey)
		if restoreErr := s.carts.Restore(context.WithoutCancel(ctx), sessionID, items); restoreErr != nil {
			s.logger.Error("CRITICAL restore after rejected payment failed",
				zap.String("session", sessionID),
				zap.Error(restoreErr))
		}
		return domain.Order{}, err
	}

	s.logger.Info("payment form submitted",
		zap.String("session", sessionID),
		zap.String("order", order.ID),
		zap.String("card", "****"+order.CardSuffix),
		zap.String("total", order.Total.StringFixed(2)))

	s.GoTo(sessionID, domain.StepProducts)
	return order, nil
}

// enqueue hands the order to the workers. It fails once Close was called.
func (s *CheckoutService) enqueue(ctx context.Context, pending PendingOrder) error {
	s.queueMu.RLock()
	defer s.queueMu.RUnlock()
	if s.closed {
		return ErrCheckoutClosed
	}

	select {
	case s.orderQueue <- pending:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// release frees a request id whose payment was not accepted.
func (s *CheckoutService) release(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.idem.ReleaseIdempotency(ctx, key); err != nil {
		s.logger.Warn("release request id failed", zap.String("key", key), zap.Error(err))
	}
}

// quote prices every line from the catalog, falling back to the price
// stored in the cart when the catalog cannot answer.
func (s *CheckoutService) quote(ctx context.Context, items domain.Cart) []domain.OrderLine {
	lines := make([]domain.OrderLine, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrent)

	for idx := range items {
		g.Go(func() error {
			it := items[idx]
			price := it.Price
			title := it.Title

			if s.catalog != nil {
				p, err := s.catalog.GetProduct(gctx, it.ID)
				if err != nil {
					s.logger.Debug("quote falls back to cart price", zap.Int("product", it.ID), zap.Error(err))
				} else {
					price = p.Price
					title = p.Title
				}
			}

			lines[idx] = domain.OrderLine{
				ProductID: it.ID,
				Title:     title,
				UnitPrice: price,
				Quantity:  it.Quantity,
				LineTotal: price.Mul(decimal.NewFromInt(int64(it.Quantity))),
			}
			return nil
		})
	}
	g.Wait()

	return lines
}

func (s *CheckoutService) Orders(ctx context.Context, sessionID string) ([]domain.Order, error) {
	return s.orders.ListOrders(ctx, sessionID)
}

func (s *CheckoutService) GetOrderQueue() <-chan PendingOrder {
	return s.orderQueue
}

// Close stops accepting payments and closes the order queue. Payments
// already being queued finish first. Close may be called more than once.
func (s *CheckoutService) Close() {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.orderQueue)
}

// RunWorker stores queued orders until the queue is closed. An order that
// cannot be stored has its items put back into the session's cart.
func (s *CheckoutService) RunWorker(id int) {
	for pending := range s.orderQueue {
		s.storeOrder(id, pending)
	}
}

func (s *CheckoutService) storeOrder(id int, pending PendingOrder) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	order := pending.Order
	order.Status = domain.OrderStatusConfirmed
	order.UpdatedAt = s.now()

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		s.logger.Error("failed to save order",
			zap.Int("worker", id),
			zap.String("order", order.ID),
			zap.Error(err))

		if rollbackErr := s.carts.Restore(ctx, order.SessionID, pending.Items); rollbackErr != nil {
			s.logger.Error("CRITICAL rollback failed",
				zap.Int("worker", id),
				zap.String("order", order.ID),
				zap.Error(rollbackErr))
		} else {
			s.logger.Info("restored cart items", zap.Int("worker", id), zap.String("order", order.ID))
		}
		return
	}

	s.logger.Info("saved order", zap.Int("worker", id), zap.String("order", order.ID))
}
