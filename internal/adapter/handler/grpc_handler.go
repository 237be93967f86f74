package handler

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/mini-storefront/internal/adapter/catalog"
	"github.com/rl1809/mini-storefront/internal/core/domain"
	"github.com/rl1809/mini-storefront/internal/core/service"
)

const grpcServiceName = "storefront.v1.Storefront"

type ListProductsRequest struct {
	Category string `json:"category,omitempty"`
	Search   string `json:"search,omitempty"`
	Sort     string `json:"sort,omitempty"`
}

type ListProductsResponse struct {
	Products []domain.Product `json:"products"`
}

type GetCartRequest struct {
	SessionID string `json:"session_id"`
}

type ItemRequest struct {
	SessionID string `json:"session_id"`
	ProductID int    `json:"product_id"`
}

type AdjustQuantityRequest struct {
	SessionID string `json:"session_id"`
	ProductID int    `json:"product_id"`
	Delta     int    `json:"delta"`
}

type SubmitPaymentRequest struct {
	SessionID string             `json:"session_id"`
	RequestID string             `json:"request_id"`
	Form      domain.PaymentForm `json:"form"`
}

// StorefrontServer is the server side of storefront.v1.Storefront.
type StorefrontServer interface {
	ListProducts(context.Context, *ListProductsRequest) (*ListProductsResponse, error)
	GetCart(context.Context, *GetCartRequest) (*service.CartDetails, error)
	AddItem(context.Context, *ItemRequest) (*service.CartDetails, error)
	RemoveItem(context.Context, *ItemRequest) (*service.CartDetails, error)
	AdjustQuantity(context.Context, *AdjustQuantityRequest) (*service.CartDetails, error)
	SubmitPayment(context.Context, *SubmitPaymentRequest) (*domain.Order, error)
}

type GRPCHandler struct {
	store  *service.Storefront
	logger *zap.Logger
}

func NewGRPCHandler(store *service.Storefront, logger *zap.Logger) *GRPCHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GRPCHandler{store: store, logger: logger.Named("grpc")}
}

func RegisterStorefrontServer(s grpc.ServiceRegistrar, srv StorefrontServer) {
	s.RegisterService(&storefrontServiceDesc, srv)
}

func (h *GRPCHandler) ListProducts(ctx context.Context, req *ListProductsRequest) (*ListProductsResponse, error) {
	sort, err := service.ParseSortOrder(req.Sort)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	filter := service.Filter{Search: req.Search, Sort: sort}
	if req.Category != "" {
		category := req.Category
		filter.Category = &category
	}

	products, err := h.store.Browse(ctx, filter)
	if err != nil {
		return nil, h.grpcError(err)
	}
	return &ListProductsResponse{Products: products}, nil
}

func (h *GRPCHandler) GetCart(ctx context.Context, req *GetCartRequest) (*service.CartDetails, error) {
	if req.SessionID == "" {
		return nil, status.Error(codes.InvalidArgument, "missing session id")
	}
	cart := h.store.Cart(ctx, req.SessionID)
	return &cart, nil
}

func (h *GRPCHandler) AddItem(ctx context.Context, req *ItemRequest) (*service.CartDetails, error) {
	if req.SessionID == "" || req.ProductID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "missing required fields")
	}
	cart, err := h.store.AddProduct(ctx, req.SessionID, req.ProductID)
	if err != nil {
		return nil, h.grpcError(err)
	}
	return &cart, nil
}

func (h *GRPCHandler) RemoveItem(ctx context.Context, req *ItemRequest) (*service.CartDetails, error) {
	if req.SessionID == "" || req.ProductID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "missing required fields")
	}
	cart, err := h.store.RemoveProduct(ctx, req.SessionID, req.ProductID)
	if err != nil {
		return nil, h.grpcError(err)
	}
	return &cart, nil
}

func (h *GRPCHandler) AdjustQuantity(ctx context.Context, req *AdjustQuantityRequest) (*service.CartDetails, error) {
	if req.SessionID == "" || req.ProductID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "missing required fields")
	}
	cart, err := h.store.AdjustQuantity(ctx, req.SessionID, req.ProductID, req.Delta)
	if err != nil {
		return nil, h.grpcError(err)
	}
	return &cart, nil
}

func (h *GRPCHandler) SubmitPayment(ctx context.Context, req *SubmitPaymentRequest) (*domain.Order, error) {
	if req.SessionID == "" {
		return nil, status.Error(codes.InvalidArgument, "missing session id")
	}
	order, err := h.store.SubmitPayment(ctx, req.SessionID, req.RequestID, req.Form)
	if err != nil {
		return nil, h.grpcError(err)
	}
	return &order, nil
}

func (h *GRPCHandler) grpcError(err error) error {
	switch {
	case errors.Is(err, domain.ErrProductNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, service.ErrDuplicateRequest):
		return status.Error(codes.AlreadyExists, "duplicate request")
	case errors.Is(err, service.ErrEmptyCart):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, service.ErrInvalidPayment), errors.Is(err, service.ErrInvalidDelta):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, catalog.ErrUnavailable), errors.Is(err, service.ErrCheckoutClosed):
		return status.Error(codes.Unavailable, err.Error())
	}
	h.logger.Error("request failed", zap.Error(err))
	return status.Error(codes.Internal, "internal error")
}

func unaryHandler[Req any, Resp any](call func(StorefrontServer, context.Context, *Req) (*Resp, error), method string) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(StorefrontServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + grpcServiceName + "/" + method,
		}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(StorefrontServer), ctx, req.(*Req))
		})
	}
}

var storefrontServiceDesc = grpc.ServiceDesc{
	ServiceName: grpcServiceName,
	HandlerType: (*StorefrontServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListProducts", Handler: unaryHandler(StorefrontServer.ListProducts, "ListProducts")},
		{MethodName: "GetCart", Handler: unaryHandler(StorefrontServer.GetCart, "GetCart")},
		{MethodName: "AddItem", Handler: unaryHandler(StorefrontServer.AddItem, "AddItem")},
		{MethodName: "RemoveItem", Handler: unaryHandler(StorefrontServer.RemoveItem, "RemoveItem")},
		{MethodName: "AdjustQuantity", Handler: unaryHandler(StorefrontServer.AdjustQuantity, "AdjustQuantity")},
		{MethodName: "SubmitPayment", Handler: unaryHandler(StorefrontServer.SubmitPayment, "SubmitPayment")},
	},
	Metadata: "storefront.v1",
}

// GRPCClient calls storefront.v1.Storefront over an existing connection.
type GRPCClient struct {
	cc grpc.ClientConnInterface
}

func NewGRPCClient(cc grpc.ClientConnInterface) *GRPCClient {
	return &GRPCClient{cc: cc}
}

func (c *GRPCClient) invoke(ctx context.Context, method string, in, out any) error {
	return c.cc.Invoke(ctx, "/"+grpcServiceName+"/"+method, in, out, grpc.CallContentSubtype(codecName))
}

func (c *GRPCClient) ListProducts(ctx context.Context, req *ListProductsRequest) (*ListProductsResponse, error) {
	out := new(ListProductsResponse)
	if err := c.invoke(ctx, "ListProducts", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *GRPCClient) GetCart(ctx context.Context, req *GetCartRequest) (*service.CartDetails, error) {
	out := new(service.CartDetails)
	if err := c.invoke(ctx, "GetCart", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *GRPCClient) AddItem(ctx context.Context, req *ItemRequest) (*service.CartDetails, error) {
	out := new(service.CartDetails)
	if err := c.invoke(ctx, "AddItem", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *GRPCClient) RemoveItem(ctx context.Context, req *ItemRequest) (*service.CartDetails, error) {
	out := new(service.CartDetails)
	if err := c.invoke(ctx, "RemoveItem", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *GRPCClient) AdjustQuantity(ctx context.Context, req *AdjustQuantityRequest) (*service.CartDetails, error) {
	out := new(service.CartDetails)
	if err := c.invoke(ctx, "AdjustQuantity", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *GRPCClient) SubmitPayment(ctx context.Context, req *SubmitPaymentRequest) (*domain.Order, error) {
	out := new(domain.Order)
	if err := c.invoke(ctx, "SubmitPayment", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// LoggingInterceptor logs failed unary calls.
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if err != nil {
			logger.Debug("grpc call failed", zap.String("method", info.FullMethod), zap.Error(err))
		}
		return resp, err
	}
}
