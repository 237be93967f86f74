package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/mini-storefront/internal/adapter/catalog"
	"github.com/rl1809/mini-storefront/internal/core/domain"
	"github.com/rl1809/mini-storefront/internal/core/service"
)

const (
	sessionHeader = "X-Session-ID"
	sessionCookie = "sid"
)

type HTTPHandler struct {
	store  *service.Storefront
	busy   func() bool
	logger *zap.Logger
}

type AddItemHTTPRequest struct {
	ProductID int `json:"product_id"`
}

type PaymentHTTPRequest struct {
	RequestID string `json:"request_id"`
	domain.PaymentForm
}

type ErrorHTTPResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// NewHTTPHandler serves the storefront as JSON. busy reports whether the
// catalog has requests in flight; it may be nil.
func NewHTTPHandler(store *service.Storefront, busy func() bool, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if busy == nil {
		busy = func() bool { return false }
	}
	return &HTTPHandler{store: store, busy: busy, logger: logger.Named("http")}
}

func (h *HTTPHandler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.HandleFunc("GET /api/status", h.Status)
	mux.HandleFunc("GET /api/categories", h.Categories)
	mux.HandleFunc("GET /api/products", h.Products)
	mux.HandleFunc("GET /api/products/{id}", h.Product)
	mux.HandleFunc("GET /api/cart", h.Cart)
	mux.HandleFunc("POST /api/cart/items", h.AddItem)
	mux.HandleFunc("DELETE /api/cart/items/{id}", h.RemoveItem)
	mux.HandleFunc("POST /api/cart/items/{id}/increment", h.adjust(1))
	mux.HandleFunc("POST /api/cart/items/{id}/decrement", h.adjust(-1))
	mux.HandleFunc("POST /api/checkout/next", h.NextStep)
	mux.HandleFunc("POST /api/checkout/prev", h.PrevStep)
	mux.HandleFunc("POST /api/checkout/payment", h.SubmitPayment)
	mux.HandleFunc("GET /api/orders", h.Orders)
	return mux
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"busy": h.busy()})
}

func (h *HTTPHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.store.Categories(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (h *HTTPHandler) Products(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	sort, err := service.ParseSortOrder(q.Get("sort"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorHTTPResponse{Message: err.Error()})
		return
	}

	filter := service.Filter{Search: q.Get("search"), Sort: sort}
	if q.Has("category") && q.Get("category") != "" {
		category := q.Get("category")
		filter.Category = &category
	}

	products, err := h.store.Browse(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *HTTPHandler) Product(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	details, err := h.store.ProductDetails(r.Context(), h.session(w, r), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (h *HTTPHandler) Cart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Cart(r.Context(), h.session(w, r)))
}

func (h *HTTPHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorHTTPResponse{Message: "invalid request body"})
		return
	}
	if req.ProductID <= 0 {
		writeJSON(w, http.StatusBadRequest, ErrorHTTPResponse{Message: "missing required fields"})
		return
	}

	cart, err := h.store.AddProduct(r.Context(), h.session(w, r), req.ProductID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

func (h *HTTPHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	cart, err := h.store.RemoveProduct(r.Context(), h.session(w, r), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

func (h *HTTPHandler) adjust(delta int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		cart, err := h.store.AdjustQuantity(r.Context(), h.session(w, r), id, delta)
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cart)
	}
}

func (h *HTTPHandler) NextStep(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.NextStep(r.Context(), h.session(w, r)))
}

func (h *HTTPHandler) PrevStep(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.PrevStep(r.Context(), h.session(w, r)))
}

func (h *HTTPHandler) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorHTTPResponse{Message: "invalid request body"})
		return
	}

	order, err := h.store.SubmitPayment(r.Context(), h.session(w, r), req.RequestID, req.PaymentForm)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, order)
}

func (h *HTTPHandler) Orders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.store.Orders(r.Context(), h.session(w, r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// session identifies the caller by header, then cookie. A caller with
// neither gets a new session cookie.
func (h *HTTPHandler) session(w http.ResponseWriter, r *http.Request) string {
	if id := r.Header.Get(sessionHeader); id != "" {
		return id
	}
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status, message := httpStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, ErrorHTTPResponse{Success: false, Message: message})
}

func httpStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrProductNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrDuplicateRequest):
		return http.StatusConflict, "duplicate request"
	case errors.Is(err, service.ErrEmptyCart), errors.Is(err, service.ErrInvalidPayment):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, service.ErrInvalidDelta):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, catalog.ErrUnavailable):
		return http.StatusBadGateway, err.Error()
	case errors.Is(err, service.ErrCheckoutClosed):
		return http.StatusServiceUnavailable, err.Error()
	}
	return http.StatusInternalServerError, "internal error"
}

func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, ErrorHTTPResponse{Message: "invalid product id"})
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
