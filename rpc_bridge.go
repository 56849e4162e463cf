package drivercore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/NotrixInc/nx-driver-core/hostrpc"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// EnvRPCAddr names the environment variable holding the driver RPC address
const EnvRPCAddr = "NX_DRIVER_RPC_ADDR"

// TopicWatchStarted is the first event of every watch stream. It is sent once
// the server side subscription is live.
const TopicWatchStarted = "watch.started"

// watchBuffer bounds the events queued for one watch stream
const watchBuffer = 256

var (
	ErrDriverNotFound = errors.New("driver not found")
	ErrRemoteAction   = errors.New("remote action failed")
)

// ActionServer exposes a set of drivers over the DriverService RPC.
type ActionServer struct {
	hostrpc.UnimplementedDriverServiceServer

	logger Logger
	clock  Clock

	mu      sync.RWMutex
	drivers map[string]*Driver
}

// NewActionServer serves drivers, keyed by their ID. It logs with the
// logger of the first driver.
func NewActionServer(drivers ...*Driver) *ActionServer {
	s := &ActionServer{
		logger:  NopLogger(),
		clock:   NewSystemClock(),
		drivers: make(map[string]*Driver),
	}
	if len(drivers) > 0 {
		s.logger = drivers[0].Logger()
		s.clock = drivers[0].Clock()
	}
	for _, d := range drivers {
		s.Add(d)
	}
	return s
}

// Add serves d, replacing any driver with the same ID
func (s *ActionServer) Add(d *Driver) {
	if d == nil {
		return
	}
	s.mu.Lock()
	s.drivers[d.ID()] = d
	s.mu.Unlock()
}

// Register installs the service on gs
func (s *ActionServer) Register(gs grpc.ServiceRegistrar) {
	hostrpc.RegisterDriverServiceServer(gs, s)
}

// Serve runs a gRPC server on lis until ctx is done
func (s *ActionServer) Serve(ctx context.Context, lis net.Listener, opts ...grpc.ServerOption) error {
	gs := grpc.NewServer(opts...)
	s.Register(gs)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			gs.GracefulStop()
		case <-done:
		}
	}()

	s.logger.Info("driver rpc listening", "addr", lis.Addr().String())
	if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func (s *ActionServer) lookup(id string) (*Driver, error) {
	s.mu.RLock()
	d, ok := s.drivers[id]
	s.mu.RUnlock()
	if !ok {
		return nil, status.Errorf(codes.NotFound, "driver %q not found", id)
	}
	return d, nil
}

func (s *ActionServer) InvokeAction(ctx context.Context, req *hostrpc.InvokeActionRequest) (*hostrpc.InvokeActionResponse, error) {
	d, err := s.lookup(req.DriverId)
	if err != nil {
		return nil, err
	}

	var args []any
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &args); err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "params must be a JSON array: %v", err)
		}
	}

	resp := &hostrpc.InvokeActionResponse{CorrelationId: req.CorrelationId}
	out, err := d.Call(ctx, req.Action, args...)
	if err != nil {
		s.logger.Warn("remote action failed", "driver_id", req.DriverId, "action", req.Action,
			"correlation_id", req.CorrelationId, "err", err)
		resp.Message = err.Error()
		return resp, nil
	}

	if out != nil {
		b, err := json.Marshal(out)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "encode result: %v", err)
		}
		resp.Result = b
	}
	resp.Success = true
	return resp, nil
}

func (s *ActionServer) GetState(ctx context.Context, req *hostrpc.GetStateRequest) (*hostrpc.GetStateResponse, error) {
	d, err := s.lookup(req.DriverId)
	if err != nil {
		return nil, err
	}
	state := d.State()
	if state == nil {
		return nil, status.Error(codes.FailedPrecondition, ErrStateUnset.Error())
	}
	b, err := json.Marshal(state)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode state: %v", err)
	}
	return &hostrpc.GetStateResponse{DriverId: d.ID(), State: b}, nil
}

// WatchEvents streams the driver event surface. A consumer that falls more
// than watchBuffer events behind is disconnected with ResourceExhausted.
func (s *ActionServer) WatchEvents(req *hostrpc.WatchEventsRequest, stream hostrpc.DriverService_WatchEventsServer) error {
	d, err := s.lookup(req.DriverId)
	if err != nil {
		return err
	}

	topics := make(map[string]bool, len(req.Topics))
	for _, t := range req.Topics {
		topics[t] = true
	}

	events := make(chan *hostrpc.DriverEvent, watchBuffer)
	overflow := make(chan struct{})
	var once sync.Once

	off := d.On(WildcardTopic, func(e Event) {
		if len(topics) > 0 && !topics[e.Topic] {
			return
		}
		ev := &hostrpc.DriverEvent{
			DriverId: d.ID(),
			Topic:    e.Topic,
			TSUnixMs: s.clock.Now().UnixMilli(),
		}
		if e.Payload != nil {
			b, err := json.Marshal(e.Payload)
			if err != nil {
				s.logger.Warn("watch payload not encodable", "topic", e.Topic, "err", err)
			} else {
				ev.Payload = b
			}
		}
		select {
		case events <- ev:
		default:
			once.Do(func() { close(overflow) })
		}
	})
	defer off()

	if err := stream.Send(&hostrpc.DriverEvent{
		DriverId: d.ID(),
		Topic:    TopicWatchStarted,
		TSUnixMs: s.clock.Now().UnixMilli(),
	}); err != nil {
		return err
	}

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-overflow:
			return status.Error(codes.ResourceExhausted, "watcher too slow")
		case ev := <-events:
			if err := stream.Send(ev); err != nil {
				return err
			}
		}
	}
}

// HostClient calls DriverService on a driver process
type HostClient struct {
	cc *grpc.ClientConn
	c  hostrpc.DriverServiceClient
}

// DialHost connects to addr, for example unix:///tmp/nxdriver.sock or
// localhost:7070. Connections are insecure unless opts say otherwise.
func DialHost(addr string, opts ...grpc.DialOption) (*HostClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &HostClient{cc: conn, c: hostrpc.NewDriverServiceClient(conn)}, nil
}

func (h *HostClient) Close() error { return h.cc.Close() }

// InvokeAction calls action on the remote driver and returns its JSON result.
// A failing action is reported as ErrRemoteAction.
func (h *HostClient) InvokeAction(ctx context.Context, driverID, action string, args ...any) (json.RawMessage, error) {
	if args == nil {
		args = []any{}
	}
	params, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}

	resp, err := h.c.InvokeAction(ctx, &hostrpc.InvokeActionRequest{
		DriverId:      driverID,
		Action:        action,
		Params:        params,
		CorrelationId: uuid.NewString(),
	})
	if err != nil {
		return nil, remoteErr(err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("%w: %s", ErrRemoteAction, resp.Message)
	}
	return resp.Result, nil
}

// State returns a snapshot of the remote driver state
func (h *HostClient) State(ctx context.Context, driverID string) (map[string]any, error) {
	resp, err := h.c.GetState(ctx, &hostrpc.GetStateRequest{DriverId: driverID})
	if err != nil {
		return nil, remoteErr(err)
	}
	var state map[string]any
	if err := json.Unmarshal(resp.State, &state); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return state, nil
}

// EventStream receives events of a remote driver. Payloads arrive as
// json.RawMessage.
type EventStream struct {
	s hostrpc.DriverService_WatchEventsClient
}

func (es *EventStream) Recv() (Event, error) {
	ev, err := es.s.Recv()
	if err != nil {
		return Event{}, err
	}
	e := Event{Topic: ev.Topic}
	if len(ev.Payload) > 0 {
		e.Payload = ev.Payload
	}
	return e, nil
}

// Watch subscribes to events of the remote driver, optionally filtered by
// topic. It returns once the remote subscription is live; cancel ctx to end it.
func (h *HostClient) Watch(ctx context.Context, driverID string, topics ...string) (*EventStream, error) {
	s, err := h.c.WatchEvents(ctx, &hostrpc.WatchEventsRequest{DriverId: driverID, Topics: topics})
	if err != nil {
		return nil, remoteErr(err)
	}
	first, err := s.Recv()
	if err != nil {
		return nil, remoteErr(err)
	}
	if first.Topic != TopicWatchStarted {
		return nil, fmt.Errorf("unexpected first watch event %q", first.Topic)
	}
	return &EventStream{s: s}, nil
}

func remoteErr(err error) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%w: %s", ErrDriverNotFound, status.Convert(err).Message())
	}
	return err
}

// RequireHostAddrFromEnv reads the driver RPC address from EnvRPCAddr
func RequireHostAddrFromEnv(getenv func(string) string) (string, error) {
	addr := getenv(EnvRPCAddr)
	if addr == "" {
		return "", fmt.Errorf("%s is required", EnvRPCAddr)
	}
	return addr, nil
}

// DecodePayload decodes the payload of an event received from an EventStream
func DecodePayload[T any](e Event) (*T, error) {
	raw, ok := e.Payload.(json.RawMessage)
	if !ok {
		return nil, fmt.Errorf("decode %s payload: not raw json (%T)", e.Topic, e.Payload)
	}
	var data T
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", e.Topic, err)
	}
	return &data, nil
}
