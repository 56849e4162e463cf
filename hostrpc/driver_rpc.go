package hostrpc

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// This file is intentionally handwritten to avoid protoc.
// It defines the host -> driver contract: invoke an action, read state,
// and watch the driver event surface.

const serviceName = "nx.driver.DriverService"

const (
	methodInvokeAction = "/" + serviceName + "/InvokeAction"
	methodGetState     = "/" + serviceName + "/GetState"
	methodWatchEvents  = "/" + serviceName + "/WatchEvents"
)

type InvokeActionRequest struct {
	DriverId      string          `json:"driver_id"`
	Action        string          `json:"action"`
	Params        json.RawMessage `json:"params,omitempty"` // JSON array
	CorrelationId string          `json:"correlation_id,omitempty"`
}

type InvokeActionResponse struct {
	Success       bool            `json:"success"`
	Message       string          `json:"message,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	CorrelationId string          `json:"correlation_id,omitempty"`
}

type GetStateRequest struct {
	DriverId string `json:"driver_id"`
}

type GetStateResponse struct {
	DriverId string          `json:"driver_id"`
	State    json.RawMessage `json:"state"`
}

type WatchEventsRequest struct {
	DriverId string   `json:"driver_id"`
	Topics   []string `json:"topics,omitempty"` // empty = every topic
}

type DriverEvent struct {
	DriverId string          `json:"driver_id"`
	Topic    string          `json:"topic"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	TSUnixMs int64           `json:"ts_unix_ms"`
}

// DriverServiceClient: host (client) -> driver process (server).
type DriverServiceClient interface {
	InvokeAction(ctx context.Context, in *InvokeActionRequest, opts ...grpc.CallOption) (*InvokeActionResponse, error)
	GetState(ctx context.Context, in *GetStateRequest, opts ...grpc.CallOption) (*GetStateResponse, error)
	WatchEvents(ctx context.Context, in *WatchEventsRequest, opts ...grpc.CallOption) (DriverService_WatchEventsClient, error)
}

type driverServiceClient struct{ cc grpc.ClientConnInterface }

func NewDriverServiceClient(cc grpc.ClientConnInterface) DriverServiceClient {
	return &driverServiceClient{cc}
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

func (c *driverServiceClient) InvokeAction(ctx context.Context, in *InvokeActionRequest, opts ...grpc.CallOption) (*InvokeActionResponse, error) {
	out := new(InvokeActionResponse)
	if err := c.cc.Invoke(ctx, methodInvokeAction, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *driverServiceClient) GetState(ctx context.Context, in *GetStateRequest, opts ...grpc.CallOption) (*GetStateResponse, error) {
	out := new(GetStateResponse)
	if err := c.cc.Invoke(ctx, methodGetState, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

var watchEventsStreamDesc = grpc.StreamDesc{
	StreamName:    "WatchEvents",
	ServerStreams: true,
}

func (c *driverServiceClient) WatchEvents(ctx context.Context, in *WatchEventsRequest, opts ...grpc.CallOption) (DriverService_WatchEventsClient, error) {
	stream, err := c.cc.NewStream(ctx, &watchEventsStreamDesc, methodWatchEvents, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	x := &driverServiceWatchEventsClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type DriverService_WatchEventsClient interface {
	Recv() (*DriverEvent, error)
	grpc.ClientStream
}

type driverServiceWatchEventsClient struct{ grpc.ClientStream }

func (x *driverServiceWatchEventsClient) Recv() (*DriverEvent, error) {
	m := new(DriverEvent)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

type DriverServiceServer interface {
	InvokeAction(context.Context, *InvokeActionRequest) (*InvokeActionResponse, error)
	GetState(context.Context, *GetStateRequest) (*GetStateResponse, error)
	WatchEvents(*WatchEventsRequest, DriverService_WatchEventsServer) error
	mustEmbedUnimplementedDriverServiceServer()
}

type UnimplementedDriverServiceServer struct{}

func (UnimplementedDriverServiceServer) InvokeAction(context.Context, *InvokeActionRequest) (*InvokeActionResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method InvokeAction not implemented")
}
func (UnimplementedDriverServiceServer) GetState(context.Context, *GetStateRequest) (*GetStateResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetState not implemented")
}
func (UnimplementedDriverServiceServer) WatchEvents(*WatchEventsRequest, DriverService_WatchEventsServer) error {
	return status.Errorf(codes.Unimplemented, "method WatchEvents not implemented")
}
func (UnimplementedDriverServiceServer) mustEmbedUnimplementedDriverServiceServer() {}

type DriverService_WatchEventsServer interface {
	Send(*DriverEvent) error
	grpc.ServerStream
}

type driverServiceWatchEventsServer struct{ grpc.ServerStream }

func (x *driverServiceWatchEventsServer) Send(m *DriverEvent) error { return x.ServerStream.SendMsg(m) }

func RegisterDriverServiceServer(s grpc.ServiceRegistrar, srv DriverServiceServer) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*DriverServiceServer)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "InvokeAction", Handler: invokeActionHandler},
			{MethodName: "GetState", Handler: getStateHandler},
		},
		Streams: []grpc.StreamDesc{
			{
				StreamName:    "WatchEvents",
				Handler:       watchEventsHandler,
				ServerStreams: true,
			},
		},
		Metadata: "nx_driver.proto",
	}, srv)
}

func invokeActionHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(InvokeActionRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DriverServiceServer).InvokeAction(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodInvokeAction}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DriverServiceServer).InvokeAction(ctx, req.(*InvokeActionRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getStateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetStateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DriverServiceServer).GetState(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetState}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DriverServiceServer).GetState(ctx, req.(*GetStateRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func watchEventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(WatchEventsRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(DriverServiceServer).WatchEvents(in, &driverServiceWatchEventsServer{stream})
}
