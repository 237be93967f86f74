package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/goleak"

	"github.com/rl1809/mini-storefront/internal/core/domain"
)

var validForm = domain.PaymentForm{
	CardNumber: "4242 4242 4242 4242",
	CardHolder: "Jane Doe",
	Expiry:     "12/30",
	CVC:        "123",
}

type checkoutFixture struct {
	slot     *mockSlot
	catalog  *mockCatalog
	idem     *mockIdem
	orders   *mockOrders
	carts    *CartService
	checkout *CheckoutService
}

func newCheckoutFixture(queueSize int) *checkoutFixture {
	f := &checkoutFixture{
		slot:    newMockSlot(),
		catalog: &mockCatalog{products: fiveProducts()},
		idem:    newMockIdem(),
		orders:  &mockOrders{},
	}
	f.carts = NewCartService(f.slot)
	f.checkout = NewCheckoutService(f.carts, f.catalog, f.idem, f.orders, queueSize, WithQuoteConcurrency(2))
	return f
}

func (f *checkoutFixture) fill(t *testing.T, sessionID string, ids ...int) {
	t.Helper()
	for _, id := range ids {
		p, err := f.catalog.GetProduct(context.Background(), id)
		if err != nil {
			t.Fatalf("get product %d: %v", id, err)
		}
		if err := f.carts.Add(context.Background(), sessionID, *p); err != nil {
			t.Fatalf("add product %d: %v", id, err)
		}
	}
}

func TestCheckout_Steps(t *testing.T) {
	f := newCheckoutFixture(1)
	defer f.checkout.Close()

	if got := f.checkout.Step("s"); got != domain.StepProducts {
		t.Fatalf("expected products step, got %v", got)
	}
	if got := f.checkout.Prev("s"); got != domain.StepProducts {
		t.Errorf("prev from first step should clamp, got %v", got)
	}
	f.checkout.Next("s")
	if got := f.checkout.Next("s"); got != domain.StepPayment {
		t.Errorf("expected payment step, got %v", got)
	}
	if got := f.checkout.Next("s"); got != domain.StepPayment {
		t.Errorf("next from last step should clamp, got %v", got)
	}
	if got := f.checkout.Step("other"); got != domain.StepProducts {
		t.Errorf("steps leaked across sessions, got %v", got)
	}
	if got := f.checkout.GoTo("s", domain.Step(-4)); got != domain.StepProducts {
		t.Errorf("expected clamp to products, got %v", got)
	}
}

func TestSubmitPayment_Success(t *testing.T) {
	f := newCheckoutFixture(10)
	defer f.checkout.Close()
	ctx := context.Background()

	f.fill(t, "s", 1, 2)
	if err := f.carts.AdjustQuantity(ctx, "s", 2, 1); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	f.checkout.GoTo("s", domain.StepPayment)

	order, err := f.checkout.SubmitPayment(ctx, "s", "req-1", validForm)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}

	// 30 + 10*2
	if !order.Total.Equal(decimal.NewFromInt(50)) {
		t.Errorf("expected total 50, got %s", order.Total)
	}
	if order.CardSuffix != "4242" {
		t.Errorf("expected card suffix 4242, got %q", order.CardSuffix)
	}
	if order.Status != domain.OrderStatusPending {
		t.Errorf("expected pending order, got %s", order.Status)
	}
	if len(order.Lines) != 2 || order.Lines[1].Quantity != 2 {
		t.Errorf("unexpected lines: %+v", order.Lines)
	}
	if f.carts.Count(ctx, "s") != 0 {
		t.Errorf("expected cart cleared")
	}
	if f.checkout.Step("s") != domain.StepProducts {
		t.Errorf("expected step reset to products")
	}

	select {
	case pending := <-f.checkout.GetOrderQueue():
		if pending.Order.ID != order.ID {
			t.Errorf("queued order %s, want %s", pending.Order.ID, order.ID)
		}
		if len(pending.Items) != 2 {
			t.Errorf("expected cart snapshot with 2 items, got %d", len(pending.Items))
		}
	default:
		t.Fatal("order was not queued")
	}
}

func TestSubmitPayment_Requotes(t *testing.T) {
	f := newCheckoutFixture(10)
	defer f.checkout.Close()
	ctx := context.Background()

	f.fill(t, "s", 1)
	f.catalog.setPrice(1, "25")

	order, err := f.checkout.SubmitPayment(ctx, "s", "req-1", validForm)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if !order.Total.Equal(decimal.NewFromInt(25)) {
		t.Errorf("expected catalog price 25, got %s", order.Total)
	}
}

func TestSubmitPayment_CatalogDownUsesCartPrice(t *testing.T) {
	f := newCheckoutFixture(10)
	defer f.checkout.Close()
	ctx := context.Background()

	f.fill(t, "s", 1, 3)
	f.catalog.mu.Lock()
	f.catalog.err = errCatalogDown
	f.catalog.mu.Unlock()

	order, err := f.checkout.SubmitPayment(ctx, "s", "req-1", validForm)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if !order.Total.Equal(decimal.NewFromInt(50)) {
		t.Errorf("expected cart total 50, got %s", order.Total)
	}
}

func TestSubmitPayment_InvalidForm(t *testing.T) {
	f := newCheckoutFixture(10)
	defer f.checkout.Close()

	f.fill(t, "s", 1)
	form := validForm
	form.CVC = " "

	_, err := f.checkout.SubmitPayment(context.Background(), "s", "req-1", form)
	if !errors.Is(err, ErrInvalidPayment) || !errors.Is(err, domain.ErrCVCRequired) {
		t.Errorf("expected ErrInvalidPayment wrapping ErrCVCRequired, got: %v", err)
	}
	if f.carts.Count(context.Background(), "s") != 1 {
		t.Errorf("cart should be untouched")
	}
}

func TestSubmitPayment_EmptyCart(t *testing.T) {
	f := newCheckoutFixture(10)
	defer f.checkout.Close()

	_, err := f.checkout.SubmitPayment(context.Background(), "s", "req-1", validForm)
	if !errors.Is(err, ErrEmptyCart) {
		t.Errorf("expected ErrEmptyCart, got: %v", err)
	}

	// the request id is still usable once the cart has items
	f.fill(t, "s", 2)
	if _, err := f.checkout.SubmitPayment(context.Background(), "s", "req-1", validForm); err != nil {
		t.Errorf("expected success, got error: %v", err)
	}
}

func TestSubmitPayment_DuplicateRequest(t *testing.T) {
	f := newCheckoutFixture(10)
	defer f.checkout.Close()
	ctx := context.Background()

	f.fill(t, "s", 1)
	if _, err := f.checkout.SubmitPayment(ctx, "s", "req-1", validForm); err != nil {
		t.Fatalf("first payment failed: %v", err)
	}

	f.fill(t, "s", 2)
	_, err := f.checkout.SubmitPayment(ctx, "s", "req-1", validForm)
	if !errors.Is(err, ErrDuplicateRequest) {
		t.Errorf("expected ErrDuplicateRequest, got: %v", err)
	}

	// Cart should be untouched by the duplicate
	if !f.carts.Contains(ctx, "s", 2) {
		t.Errorf("duplicate request cleared the cart")
	}
}

func TestSubmitPayment_IdempotencyError(t *testing.T) {
	f := newCheckoutFixture(10)
	defer f.checkout.Close()

	f.fill(t, "s", 1)
	f.idem.err = errors.New("redis down")

	_, err := f.checkout.SubmitPayment(context.Background(), "s", "req-1", validForm)
	if err == nil || errors.Is(err, ErrDuplicateRequest) {
		t.Errorf("expected storage error, got: %v", err)
	}
}

func TestSubmitPayment_Concurrent(t *testing.T) {
	totalRequests := 50

	f := newCheckoutFixture(100)
	defer f.checkout.Close()

	go func() {
		for range f.checkout.GetOrderQueue() {
		}
	}()

	f.fill(t, "s", 1)

	var successCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.checkout.SubmitPayment(context.Background(), "s", "same-form", validForm)
			if err == nil {
				successCount.Add(1)
			}
		}()
	}

	wg.Wait()

	if successCount.Load() != 1 {
		t.Errorf("expected exactly 1 accepted payment, got %d", successCount.Load())
	}
}

func TestWorker_PersistsOrders(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newCheckoutFixture(10)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		f.checkout.RunWorker(1)
		close(done)
	}()

	for i := 0; i < 3; i++ {
		f.fill(t, "s", 1)
		if _, err := f.checkout.SubmitPayment(ctx, "s", fmt.Sprintf("req-%d", i), validForm); err != nil {
			t.Fatalf("payment %d failed: %v", i, err)
		}
	}

	f.checkout.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after Close")
	}

	if f.orders.count() != 3 {
		t.Fatalf("expected 3 stored orders, got %d", f.orders.count())
	}
	orders, _ := f.checkout.Orders(ctx, "s")
	for _, o := range orders {
		if o.Status != domain.OrderStatusConfirmed {
			t.Errorf("expected confirmed order, got %s", o.Status)
		}
	}
}

func TestWorker_RestoresCartOnFailure(t *testing.T) {
	f := newCheckoutFixture(10)
	f.orders.err = errors.New("db down")
	ctx := context.Background()

	f.fill(t, "s", 1, 2)
	if err := f.carts.AdjustQuantity(ctx, "s", 1, 1); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if _, err := f.checkout.SubmitPayment(ctx, "s", "req-1", validForm); err != nil {
		t.Fatalf("payment failed: %v", err)
	}
	if f.carts.Count(ctx, "s") != 0 {
		t.Fatalf("expected cart cleared after payment")
	}

	f.checkout.Close()
	f.checkout.RunWorker(1)

	items := f.carts.Items(ctx, "s")
	if len(items) != 2 {
		t.Fatalf("expected 2 restored items, got %d", len(items))
	}
	if items[0].ID != 1 || items[0].Quantity != 2 {
		t.Errorf("expected product 1 restored with quantity 2, got %+v", items[0])
	}
}

func TestSubmitPayment_AddDuringQuoteStaysInCart(t *testing.T) {
	f := newCheckoutFixture(10)
	defer f.checkout.Close()
	ctx := context.Background()

	f.fill(t, "s", 1)
	extra, _ := f.catalog.GetProduct(ctx, 5)

	f.catalog.mu.Lock()
	f.catalog.holdGet = make(chan struct{})
	f.catalog.heldGet = make(chan int, 1)
	f.catalog.mu.Unlock()

	type result struct {
		order domain.Order
		err   error
	}
	res := make(chan result, 1)
	go func() {
		order, err := f.checkout.SubmitPayment(ctx, "s", "req-1", validForm)
		res <- result{order, err}
	}()

	// the payment is quoting product 1 while product 5 is added
	<-f.catalog.heldGet
	if err := f.carts.Add(ctx, "s", *extra); err != nil {
		t.Fatalf("add during quote: %v", err)
	}
	close(f.catalog.holdGet)

	r := <-res
	if r.err != nil {
		t.Fatalf("payment failed: %v", r.err)
	}
	for _, l := range r.order.Lines {
		if l.ProductID == 5 {
			t.Errorf("product added after checkout started ended up in the order")
		}
	}
	if !f.carts.Contains(ctx, "s", 5) {
		t.Errorf("product added during checkout was lost from the cart")
	}
	if f.carts.Contains(ctx, "s", 1) {
		t.Errorf("ordered product is still in the cart")
	}
}

func TestSubmitPayment_ConcurrentFreshRequestIDs(t *testing.T) {
	f := newCheckoutFixture(100)
	defer f.checkout.Close()

	f.fill(t, "s", 1, 2)

	var successCount, emptyCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			requestID := ""
			if i%2 == 0 {
				requestID = fmt.Sprintf("req-%d", i)
			}
			_, err := f.checkout.SubmitPayment(context.Background(), "s", requestID, validForm)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, ErrEmptyCart):
				emptyCount.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if successCount.Load() != 1 {
		t.Errorf("expected exactly 1 order for one cart, got %d", successCount.Load())
	}
	if emptyCount.Load() != 19 {
		t.Errorf("expected 19 empty-cart rejections, got %d", emptyCount.Load())
	}
	if n := len(f.checkout.GetOrderQueue()); n != 1 {
		t.Errorf("expected 1 queued order, got %d", n)
	}
	// rejected attempts give their request ids back
	if n := f.idem.claimed(); n != 1 {
		t.Errorf("expected 1 claimed request id, got %d", n)
	}
}

func TestSubmitPayment_CancelledWhileQueueFull(t *testing.T) {
	f := newCheckoutFixture(1)
	defer f.checkout.Close()

	// fill the only queue slot
	f.fill(t, "other", 3)
	if _, err := f.checkout.SubmitPayment(context.Background(), "other", "req-0", validForm); err != nil {
		t.Fatalf("first payment failed: %v", err)
	}

	f.fill(t, "s", 1, 2)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := f.checkout.SubmitPayment(ctx, "s", "req-1", validForm)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got: %v", err)
	}
	if f.carts.Count(context.Background(), "s") != 2 {
		t.Errorf("expected the cart back after a payment that was not queued")
	}

	// drain the queue; the same request id is accepted on retry
	<-f.checkout.GetOrderQueue()
	if _, err := f.checkout.SubmitPayment(context.Background(), "s", "req-1", validForm); err != nil {
		t.Errorf("retry with the same request id failed: %v", err)
	}
}

func TestSubmitPayment_AfterClose(t *testing.T) {
	f := newCheckoutFixture(10)
	f.fill(t, "s", 1)

	f.checkout.Close()
	f.checkout.Close()

	_, err := f.checkout.SubmitPayment(context.Background(), "s", "req-1", validForm)
	if !errors.Is(err, ErrCheckoutClosed) {
		t.Fatalf("expected ErrCheckoutClosed, got: %v", err)
	}
	if !f.carts.Contains(context.Background(), "s", 1) {
		t.Errorf("expected the cart to be kept when checkout is closed")
	}
}
