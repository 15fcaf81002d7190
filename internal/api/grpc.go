package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"spxlab/internal/httpapi"
	"spxlab/internal/strategy"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "spxlab.v1.Backtest"

const (
	runMethod    = "/" + ServiceName + "/Run"
	statusMethod = "/" + ServiceName + "/Status"
)

// BacktestServer is the server API for the spxlab.v1.Backtest service.
// Requests and responses are generic structs carrying the same fields as the
// HTTP API's query parameters and JSON bodies.
type BacktestServer interface {
	Run(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Status(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// backtestServiceDesc is the grpc.ServiceDesc for spxlab.v1.Backtest.
var backtestServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BacktestServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Run", Handler: runHandler},
		{MethodName: "Status", Handler: statusHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "spxlab/v1/backtest.proto",
}

// RegisterBacktestServer registers srv on s.
func RegisterBacktestServer(s grpc.ServiceRegistrar, srv BacktestServer) {
	s.RegisterService(&backtestServiceDesc, srv)
}

func runHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BacktestServer).Run(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: runMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BacktestServer).Run(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func statusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BacktestServer).Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: statusMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BacktestServer).Status(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Compile-time interface check.
var _ BacktestServer = (*GRPCService)(nil)

// GRPCService implements BacktestServer on top of an httpapi.Service.
type GRPCService struct {
	svc *httpapi.Service
}

// NewGRPCService creates a GRPCService.
func NewGRPCService(svc *httpapi.Service) *GRPCService {
	return &GRPCService{svc: svc}
}

// RegisterGRPC registers the service on the given gRPC server instance.
func (g *GRPCService) RegisterGRPC(gs *grpc.Server) {
	RegisterBacktestServer(gs, g)
}

// Run executes a backtest. Request fields mirror the HTTP query parameters.
func (g *GRPCService) Run(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	cfg, err := g.svc.ParseQuery(queryFromStruct(req))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	resp, err := g.svc.Backtest(ctx, cfg)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(resp)
}

// Status describes the currently resolvable price history.
func (g *GRPCService) Status(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	resp, err := g.svc.Status(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(resp)
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, strategy.ErrInvalidConfig):
		return status.Error(codes.InvalidArgument, err.Error())
	case httpapi.IsNotFound(err):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// queryFromStruct flattens top-level scalar fields into query values.
func queryFromStruct(s *structpb.Struct) url.Values {
	q := url.Values{}
	for k, v := range s.GetFields() {
		switch x := v.GetKind().(type) {
		case *structpb.Value_StringValue:
			q.Set(k, x.StringValue)
		case *structpb.Value_NumberValue:
			q.Set(k, strconv.FormatFloat(x.NumberValue, 'f', -1, 64))
		case *structpb.Value_BoolValue:
			q.Set(k, strconv.FormatBool(x.BoolValue))
		}
	}
	return q
}

// toStruct converts v to a Struct through its JSON form so gRPC and HTTP
// clients see the same field names.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encoding response: %v", err))
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encoding response: %v", err))
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encoding response: %v", err))
	}
	return out, nil
}

// BacktestClient calls spxlab.v1.Backtest over a client connection.
type BacktestClient struct {
	cc grpc.ClientConnInterface
}

// NewBacktestClient creates a BacktestClient.
func NewBacktestClient(cc grpc.ClientConnInterface) *BacktestClient {
	return &BacktestClient{cc: cc}
}

// Run calls Backtest/Run.
func (c *BacktestClient) Run(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, runMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Status calls Backtest/Status.
func (c *BacktestClient) Status(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, statusMethod, &structpb.Struct{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
