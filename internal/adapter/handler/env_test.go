package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/mini-storefront/internal/adapter/catalog"
	"github.com/rl1809/mini-storefront/internal/adapter/storage"
	"github.com/rl1809/mini-storefront/internal/core/service"
)

type fakeProduct struct {
	ID       int     `json:"id"`
	Title    string  `json:"title"`
	Price    float64 `json:"price"`
	Category string  `json:"category"`
	Rating   struct {
		Rate  float64 `json:"rate"`
		Count int     `json:"count"`
	} `json:"rating"`
}

var fakeProducts = []fakeProduct{
	{ID: 1, Title: "Cotton Shirt", Price: 30, Category: "clothing"},
	{ID: 2, Title: "Gold Ring", Price: 10, Category: "jewelery"},
	{ID: 3, Title: "Linen shirt", Price: 20, Category: "clothing"},
}

// newFakeCatalogAPI serves the subset of the remote catalog API the
// storefront reads. down switches every response to a 503.
func newFakeCatalogAPI(t *testing.T, down *atomic.Bool) *httptest.Server {
	t.Helper()

	write := func(w http.ResponseWriter, v any) {
		if down != nil && down.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(v)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /products", func(w http.ResponseWriter, r *http.Request) {
		write(w, fakeProducts)
	})
	mux.HandleFunc("GET /products/categories", func(w http.ResponseWriter, r *http.Request) {
		write(w, []string{"clothing", "jewelery"})
	})
	mux.HandleFunc("GET /products/category/{name}", func(w http.ResponseWriter, r *http.Request) {
		var out []fakeProduct
		for _, p := range fakeProducts {
			if p.Category == r.PathValue("name") {
				out = append(out, p)
			}
		}
		write(w, out)
	})
	mux.HandleFunc("GET /products/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.Atoi(r.PathValue("id"))
		for _, p := range fakeProducts {
			if p.ID == id {
				write(w, p)
				return
			}
		}
		// the real API answers unknown ids with an empty 200
		write(w, nil)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type testEnv struct {
	store    *service.Storefront
	client   *catalog.Client
	checkout *service.CheckoutService
	orders   *storage.SQLiteAdapter
	redis    *miniredis.Miniredis
}

// newTestEnv wires the storefront the way the server does: Redis for carts
// and idempotency, SQLite for orders, the catalog client over HTTP.
func newTestEnv(t *testing.T, catalogDown *atomic.Bool) *testEnv {
	t.Helper()

	api := newFakeCatalogAPI(t, catalogDown)
	client := catalog.NewClient(catalog.Options{BaseURL: api.URL, Timeout: 2 * time.Second})

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	cache := storage.NewRedisAdapter(rdb)

	orders, err := storage.OpenSQLite(t.Context(), filepath.Join(t.TempDir(), "orders.db"))
	require.NoError(t, err)
	t.Cleanup(func() { orders.Close() })

	carts := service.NewCartService(cache, service.WithCartPublisher(cache))
	checkout := service.NewCheckoutService(carts, client, cache, orders, 16)

	done := make(chan struct{})
	go func() {
		checkout.RunWorker(0)
		close(done)
	}()
	t.Cleanup(func() {
		checkout.Close()
		<-done
	})

	return &testEnv{
		store:    service.NewStorefront(client, carts, checkout),
		client:   client,
		checkout: checkout,
		orders:   orders,
		redis:    mr,
	}
}
