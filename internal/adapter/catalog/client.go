package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rl1809/mini-storefront/internal/core/domain"
)

const (
	DefaultBaseURL = "https://fakestoreapi.com"
	defaultTimeout = 10 * time.Second
	contentType    = "application/json; charset=utf-8"
)

var (
	// ErrUnavailable is the only failure callers see for transport, server
	// and decode errors. The cause is logged, not returned.
	ErrUnavailable = errors.New("something went wrong; please try again later")
	ErrNotFound    = domain.ErrProductNotFound
)

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client reads and writes the remote product catalog.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	logger  *zap.Logger
	busy    *BusyTracker
	group   singleflight.Group
}

func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		timeout: opts.Timeout,
		http:    opts.HTTPClient,
		logger:  opts.Logger.Named("catalog"),
		busy:    NewBusyTracker(),
	}
}

// Busy exposes the loading state of this client's requests.
func (c *Client) Busy() *BusyTracker {
	return c.busy
}

func (c *Client) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var out []domain.Product
	if err := c.get(ctx, "/products", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListProductsLimited(ctx context.Context, limit int) ([]domain.Product, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))

	var out []domain.Product
	if err := c.get(ctx, "/products", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListProductsByCategory(ctx context.Context, category string) ([]domain.Product, error) {
	var out []domain.Product
	if err := c.get(ctx, "/products/category/"+url.PathEscape(category), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListCategories(ctx context.Context) ([]string, error) {
	var out []string
	if err := c.get(ctx, "/products/categories", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetProduct(ctx context.Context, id int) (*domain.Product, error) {
	var out *domain.Product
	if err := c.get(ctx, "/products/"+strconv.Itoa(id), nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, ErrNotFound
	}
	return out, nil
}

func (c *Client) ListCartsByUser(ctx context.Context, userID int) ([]domain.UserCart, error) {
	q := url.Values{}
	q.Set("userId", strconv.Itoa(userID))

	var out []domain.UserCart
	if err := c.get(ctx, "/carts", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateProduct(ctx context.Context, p domain.Product) (*domain.Product, error) {
	var out domain.Product
	if err := c.send(ctx, http.MethodPost, "/products", p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateProduct(ctx context.Context, id int, p domain.Product) (*domain.Product, error) {
	var out domain.Product
	if err := c.send(ctx, http.MethodPut, "/products/"+strconv.Itoa(id), p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ProductPatch carries the fields of a partial product update.
type ProductPatch struct {
	Title       *string          `json:"title,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Description *string          `json:"description,omitempty"`
	Category    *string          `json:"category,omitempty"`
	Image       *string          `json:"image,omitempty"`
}

func (c *Client) PatchProduct(ctx context.Context, id int, patch ProductPatch) (*domain.Product, error) {
	var out domain.Product
	if err := c.send(ctx, http.MethodPatch, "/products/"+strconv.Itoa(id), patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteProduct(ctx context.Context, id int) (*domain.Product, error) {
	var out *domain.Product
	if err := c.send(ctx, http.MethodDelete, "/products/"+strconv.Itoa(id), nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, ErrNotFound
	}
	return out, nil
}

// get coalesces identical concurrent reads into one request. The shared
// request outlives any single caller; each caller stops waiting when its
// own context ends.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	key := path
	if len(query) > 0 {
		key += "?" + query.Encode()
	}

	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		return c.do(shared, http.MethodGet, key, nil)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
		return c.decode(path, res.Val.([]byte), out)
	case <-ctx.Done():
		c.logger.Debug("caller gave up waiting", zap.String("path", key), zap.Error(ctx.Err()))
		return ErrUnavailable
	}
}

func (c *Client) send(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
	}

	data, err := c.do(ctx, method, path, payload)
	if err != nil {
		return err
	}
	return c.decode(path, data, out)
}

func (c *Client) do(ctx context.Context, method, pathAndQuery string, payload []byte) ([]byte, error) {
	done := c.busy.Begin()
	defer done()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+pathAndQuery, body)
	if err != nil {
		c.logger.Error("build request failed", zap.String("path", pathAndQuery), zap.Error(err))
		return nil, ErrUnavailable
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("request failed",
			zap.String("method", method),
			zap.String("path", pathAndQuery),
			zap.Error(err))
		return nil, ErrUnavailable
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("read response failed", zap.String("path", pathAndQuery), zap.Error(err))
		return nil, ErrUnavailable
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("unexpected status",
			zap.String("method", method),
			zap.String("path", pathAndQuery),
			zap.Int("status", resp.StatusCode))
		return nil, ErrUnavailable
	}

	c.logger.Debug("request done",
		zap.String("method", method),
		zap.String("path", pathAndQuery),
		zap.Int("bytes", len(data)))
	return data, nil
}

// decode treats an empty body as JSON null; the catalog answers unknown
// product ids that way.
func (c *Client) decode(path string, data []byte, out any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		data = []byte("null")
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Error("decode response failed", zap.String("path", path), zap.Error(err))
		return ErrUnavailable
	}
	return nil
}
