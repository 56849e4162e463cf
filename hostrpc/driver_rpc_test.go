package hostrpc

import (
	"context"
	"encoding/json"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type echoServer struct {
	UnimplementedDriverServiceServer
}

func (echoServer) InvokeAction(_ context.Context, in *InvokeActionRequest) (*InvokeActionResponse, error) {
	return &InvokeActionResponse{Success: true, Result: in.Params, CorrelationId: in.CorrelationId}, nil
}

func dial(t *testing.T, srv DriverServiceServer, opts ...grpc.ServerOption) DriverServiceClient {
	t.Helper()
	lis := bufconn.Listen(1 << 16)
	gs := grpc.NewServer(opts...)
	RegisterDriverServiceServer(gs, srv)
	go func() { _ = gs.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
		gs.Stop()
	})
	return NewDriverServiceClient(conn)
}

func TestCodecRegistered(t *testing.T) {
	c := encoding.GetCodec(CodecName)
	require.NotNil(t, c)

	b, err := c.Marshal(&GetStateRequest{DriverId: "d1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"driver_id":"d1"}`, string(b))

	var got GetStateRequest
	require.NoError(t, c.Unmarshal(b, &got))
	assert.Equal(t, "d1", got.DriverId)
}

func TestInvokeActionOverJSON(t *testing.T) {
	client := dial(t, echoServer{})

	resp, err := client.InvokeAction(context.Background(), &InvokeActionRequest{
		DriverId:      "d1",
		Action:        "echo",
		Params:        json.RawMessage(`[1,"a"]`),
		CorrelationId: "c-7",
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.JSONEq(t, `[1,"a"]`, string(resp.Result))
	assert.Equal(t, "c-7", resp.CorrelationId)
}

func TestUnimplementedMethods(t *testing.T) {
	client := dial(t, echoServer{})

	_, err := client.GetState(context.Background(), &GetStateRequest{DriverId: "d1"})
	assert.Equal(t, codes.Unimplemented, status.Code(err))

	stream, err := client.WatchEvents(context.Background(), &WatchEventsRequest{DriverId: "d1"})
	require.NoError(t, err)
	_, err = stream.Recv()
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}

func TestUnaryInterceptorSeesFullMethod(t *testing.T) {
	var methods []string
	interceptor := func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		methods = append(methods, info.FullMethod)
		return handler(ctx, req)
	}
	client := dial(t, echoServer{}, grpc.UnaryInterceptor(interceptor))

	_, err := client.InvokeAction(context.Background(), &InvokeActionRequest{DriverId: "d1", Action: "x"})
	require.NoError(t, err)
	_, _ = client.GetState(context.Background(), &GetStateRequest{DriverId: "d1"})

	assert.Equal(t, []string{
		"/nx.driver.DriverService/InvokeAction",
		"/nx.driver.DriverService/GetState",
	}, methods)
}
