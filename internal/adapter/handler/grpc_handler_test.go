package handler

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/rl1809/mini-storefront/internal/core/domain"
)

func newGRPCClient(t *testing.T) *GRPCClient {
	t.Helper()
	env := newTestEnv(t, nil)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnaryInterceptor(LoggingInterceptor(zap.NewNop())))
	RegisterStorefrontServer(srv, NewGRPCHandler(env.store, nil))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return NewGRPCClient(conn)
}

func TestGRPC_ListProducts(t *testing.T) {
	client := newGRPCClient(t)
	ctx := context.Background()

	resp, err := client.ListProducts(ctx, &ListProductsRequest{Category: "clothing", Sort: "desc"})
	require.NoError(t, err)
	require.Len(t, resp.Products, 2)
	assert.Equal(t, 1, resp.Products[0].ID)
	assert.Equal(t, 3, resp.Products[1].ID)

	_, err = client.ListProducts(ctx, &ListProductsRequest{Sort: "sideways"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGRPC_CartAndPayment(t *testing.T) {
	client := newGRPCClient(t)
	ctx := context.Background()

	cart, err := client.AddItem(ctx, &ItemRequest{SessionID: "g1", ProductID: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, cart.Count)

	cart, err = client.AdjustQuantity(ctx, &AdjustQuantityRequest{SessionID: "g1", ProductID: 2, Delta: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, cart.Units)
	assert.Equal(t, "20", cart.Total.String())

	_, err = client.AdjustQuantity(ctx, &AdjustQuantityRequest{SessionID: "g1", ProductID: 2, Delta: 5})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.AddItem(ctx, &ItemRequest{SessionID: "g1", ProductID: 77})
	assert.Equal(t, codes.NotFound, status.Code(err))

	form := domain.PaymentForm{CardNumber: "4242424242424242", CardHolder: "Jo", Expiry: "1230", CVC: "999"}
	order, err := client.SubmitPayment(ctx, &SubmitPaymentRequest{SessionID: "g1", RequestID: "r1", Form: form})
	require.NoError(t, err)
	assert.Equal(t, "20", order.Total.String())
	require.Len(t, order.Lines, 1)
	assert.Equal(t, 2, order.Lines[0].Quantity)

	_, err = client.SubmitPayment(ctx, &SubmitPaymentRequest{SessionID: "g1", RequestID: "r2", Form: form})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	cart, err = client.AddItem(ctx, &ItemRequest{SessionID: "g1", ProductID: 1})
	require.NoError(t, err)
	_, err = client.SubmitPayment(ctx, &SubmitPaymentRequest{SessionID: "g1", RequestID: "r1", Form: form})
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	cart, err = client.RemoveItem(ctx, &ItemRequest{SessionID: "g1", ProductID: 1})
	require.NoError(t, err)
	assert.Zero(t, cart.Count)

	cart, err = client.GetCart(ctx, &GetCartRequest{SessionID: "g1"})
	require.NoError(t, err)
	assert.Zero(t, cart.Count)
	assert.NotNil(t, cart.Items)

	_, err = client.GetCart(ctx, &GetCartRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
