package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/mini-storefront/internal/core/domain"
	"github.com/rl1809/mini-storefront/internal/port"
)

const DefaultSearchDebounce = 300 * time.Millisecond

type SortOrder int

const (
	SortNone SortOrder = iota
	SortAsc
	SortDesc
)

func (o SortOrder) String() string {
	switch o {
	case SortAsc:
		return "asc"
	case SortDesc:
		return "desc"
	default:
		return "none"
	}
}

func ParseSortOrder(s string) (SortOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return SortNone, nil
	case "asc", "ascending":
		return SortAsc, nil
	case "desc", "descending":
		return SortDesc, nil
	}
	return SortNone, fmt.Errorf("unknown sort order %q", s)
}

// Filter selects and orders the displayed products. A nil Category means
// all categories.
type Filter struct {
	Category *string
	Search   string
	Sort     SortOrder
}

// Derive applies the category guard, the title search and the price sort to
// products. The input is not modified and ties keep their input order.
func Derive(products []domain.Product, f Filter) []domain.Product {
	search := strings.ToLower(f.Search)

	out := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if f.Category != nil && p.Category != *f.Category {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Title), search) {
			continue
		}
		out = append(out, p)
	}

	switch f.Sort {
	case SortAsc:
		slices.SortStableFunc(out, func(a, b domain.Product) int { return a.Price.Cmp(b.Price) })
	case SortDesc:
		slices.SortStableFunc(out, func(a, b domain.Product) int { return b.Price.Cmp(a.Price) })
	}
	return out
}

// Fetch reads the products of category, or of every category when nil.
func Fetch(ctx context.Context, catalog port.Catalog, category *string) ([]domain.Product, error) {
	if category == nil {
		return catalog.ListProducts(ctx)
	}
	return catalog.ListProductsByCategory(ctx, *category)
}

// Browse is the stateless form of the catalog view: one fetch, then Derive.
func Browse(ctx context.Context, catalog port.Catalog, f Filter) ([]domain.Product, error) {
	products, err := Fetch(ctx, catalog, f.Category)
	if err != nil {
		return nil, err
	}
	return Derive(products, f), nil
}

type ViewOption func(*CatalogView)

func WithSearchDebounce(d time.Duration) ViewOption {
	return func(v *CatalogView) { v.quiet = d }
}

func WithViewLogger(l *zap.Logger) ViewOption {
	return func(v *CatalogView) { v.logger = l }
}

// CatalogView holds one client's browsing state and the product list it
// derives from it. Any input change recomputes the list from the fetched
// products.
type CatalogView struct {
	catalog port.Catalog
	logger  *zap.Logger
	quiet   time.Duration
	search  *Debouncer

	mu        sync.Mutex
	filter    Filter
	products  []domain.Product
	displayed []domain.Product
	errMsg    string
	gen       uint64
	subs      map[int]chan []domain.Product
	nextID    int
}

func NewCatalogView(catalog port.Catalog, opts ...ViewOption) *CatalogView {
	v := &CatalogView{
		catalog:   catalog,
		logger:    zap.NewNop(),
		quiet:     DefaultSearchDebounce,
		displayed: []domain.Product{},
		subs:      make(map[int]chan []domain.Product),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.logger = v.logger.Named("catalog_view")
	v.search = NewDebouncer(v.quiet, "", v.applySearch)
	return v
}

// Load fetches products for the current category.
func (v *CatalogView) Load(ctx context.Context) error {
	v.mu.Lock()
	category := v.filter.Category
	v.mu.Unlock()
	return v.SetCategory(ctx, category)
}

// SetCategory switches the category and refetches. When calls overlap only
// the latest one's result is kept. A failed fetch leaves an empty list and
// a message in Err.
func (v *CatalogView) SetCategory(ctx context.Context, category *string) error {
	if category != nil {
		c := *category
		category = &c
	}

	v.mu.Lock()
	v.gen++
	gen := v.gen
	v.filter.Category = category
	v.mu.Unlock()

	products, err := Fetch(ctx, v.catalog, category)

	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.gen {
		return nil
	}
	if err != nil {
		v.logger.Warn("fetch products failed", zap.Error(err))
		v.products = nil
		v.errMsg = err.Error()
	} else {
		v.products = products
		v.errMsg = ""
	}
	v.recomputeLocked()
	return err
}

// SetSearchTerm updates the title search after the debounce quiet period.
func (v *CatalogView) SetSearchTerm(term string) {
	v.search.Trigger(term)
}

// FlushSearch applies a pending search term without waiting.
func (v *CatalogView) FlushSearch() {
	v.search.Flush()
}

func (v *CatalogView) SetSortOrder(order SortOrder) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.filter.Sort = order
	v.recomputeLocked()
}

func (v *CatalogView) Displayed() []domain.Product {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.displayed)
}

func (v *CatalogView) Filter() Filter {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.filter
}

// Err is the user-facing message of the last failed fetch, empty otherwise.
func (v *CatalogView) Err() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.errMsg
}

func (v *CatalogView) Categories(ctx context.Context) ([]string, error) {
	return v.catalog.ListCategories(ctx)
}

// Subscribe returns a channel receiving the displayed list after every
// recompute. A slow reader only sees the latest list.
func (v *CatalogView) Subscribe() (<-chan []domain.Product, func()) {
	ch := make(chan []domain.Product, 1)

	v.mu.Lock()
	id := v.nextID
	v.nextID++
	v.subs[id] = ch
	v.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			v.mu.Lock()
			delete(v.subs, id)
			v.mu.Unlock()
			close(ch)
		})
	}
}

// Close stops pending search updates.
func (v *CatalogView) Close() {
	v.search.Stop()
}

func (v *CatalogView) applySearch(term string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.filter.Search = term
	v.recomputeLocked()
}

func (v *CatalogView) recomputeLocked() {
	v.displayed = Derive(v.products, v.filter)
	for _, ch := range v.subs {
		snapshot := slices.Clone(v.displayed)
		select {
		case ch <- snapshot:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snapshot
		}
	}
}
