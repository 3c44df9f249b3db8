package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/fibertrace/internal/logging"
	"github.com/signalsfoundry/fibertrace/internal/observability"
)

// Fully qualified names of the TraceService RPCs.
const (
	TraceServiceName           = "fibertrace.v1.TraceService"
	TraceServiceTraceMethod    = "/fibertrace.v1.TraceService/Trace"
	TraceServiceSnapshotMethod = "/fibertrace.v1.TraceService/Snapshot"
)

// TraceServiceServer is the server API of fibertrace.v1.TraceService. Messages
// are google.protobuf.Struct values carrying the JSON shapes of TraceRequest,
// TraceResponse and SnapshotInfo.
type TraceServiceServer interface {
	Trace(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Snapshot(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// TraceServiceDesc describes fibertrace.v1.TraceService for grpc.Server.
var TraceServiceDesc = grpc.ServiceDesc{
	ServiceName: TraceServiceName,
	HandlerType: (*TraceServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Trace", Handler: traceHandler},
		{MethodName: "Snapshot", Handler: snapshotHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "fibertrace/v1/trace.proto",
}

// RegisterTraceServiceServer registers srv on s.
func RegisterTraceServiceServer(s grpc.ServiceRegistrar, srv TraceServiceServer) {
	s.RegisterService(&TraceServiceDesc, srv)
}

func traceHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TraceServiceServer).Trace(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: TraceServiceTraceMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TraceServiceServer).Trace(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func snapshotHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TraceServiceServer).Snapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: TraceServiceSnapshotMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TraceServiceServer).Snapshot(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// GRPCServer adapts Service to TraceServiceServer.
type GRPCServer struct {
	svc *Service
}

// NewGRPCServer wraps svc.
func NewGRPCServer(svc *Service) *GRPCServer {
	return &GRPCServer{svc: svc}
}

// Trace implements TraceServiceServer.
func (g *GRPCServer) Trace(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := traceRequestFromStruct(in)
	if err != nil {
		return nil, ToStatusError(err)
	}
	resp, err := g.svc.Trace(ctx, req)
	if err != nil {
		return nil, ToStatusError(err)
	}
	out, err := toStruct(resp)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return out, nil
}

// Snapshot implements TraceServiceServer.
func (g *GRPCServer) Snapshot(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	info, err := g.svc.Snapshot(ctx)
	if err != nil {
		return nil, ToStatusError(err)
	}
	out, err := toStruct(info)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return out, nil
}

// NewServer builds a grpc.Server with request ids, spans, metrics and the
// TraceService registered. metrics may be nil.
func NewServer(svc *Service, log logging.Logger, metrics *observability.APICollector, opts ...grpc.ServerOption) *grpc.Server {
	base := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			RequestIDUnaryServerInterceptor(log),
			TracingUnaryServerInterceptor(),
			metrics.UnaryServerInterceptor(),
		),
	}
	server := grpc.NewServer(append(base, opts...)...)
	RegisterTraceServiceServer(server, NewGRPCServer(svc))
	return server
}

func traceRequestFromStruct(in *structpb.Struct) (TraceRequest, error) {
	if in == nil {
		return TraceRequest{}, fmt.Errorf("%w: empty request", ErrInvalidRequest)
	}
	fields := in.GetFields()
	var req TraceRequest

	cable := fields["cable_id"]
	if cable == nil {
		cable = fields["cableId"]
	}
	if cable != nil {
		sv, ok := cable.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return TraceRequest{}, fmt.Errorf("%w: cable_id must be a string", ErrInvalidRequest)
		}
		req.CableID = sv.StringValue
	}

	if strand := fields["strand"]; strand != nil {
		nv, ok := strand.GetKind().(*structpb.Value_NumberValue)
		if !ok || nv.NumberValue != math.Trunc(nv.NumberValue) || math.Abs(nv.NumberValue) > math.MaxInt32 {
			return TraceRequest{}, fmt.Errorf("%w: strand must be an integer", ErrInvalidRequest)
		}
		req.Strand = int(nv.NumberValue)
	}

	if version := fields["version"]; version != nil {
		req.Version = version.GetStringValue()
	}
	return req, nil
}

// toStruct converts a JSON-tagged value into a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// fromStruct decodes a Struct into a JSON-tagged value.
func fromStruct(s *structpb.Struct, v any) error {
	data, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// Client is a typed client for fibertrace.v1.TraceService.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient returns a Client using cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Trace calls TraceService/Trace.
func (c *Client) Trace(ctx context.Context, req TraceRequest, opts ...grpc.CallOption) (TraceResponse, error) {
	in, err := structpb.NewStruct(map[string]interface{}{
		"cable_id": req.CableID,
		"strand":   req.Strand,
		"version":  req.Version,
	})
	if err != nil {
		return TraceResponse{}, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, TraceServiceTraceMethod, in, out, opts...); err != nil {
		return TraceResponse{}, err
	}
	var resp TraceResponse
	if err := fromStruct(out, &resp); err != nil {
		return TraceResponse{}, fmt.Errorf("decode trace response: %w", err)
	}
	return resp, nil
}

// Snapshot calls TraceService/Snapshot.
func (c *Client) Snapshot(ctx context.Context, opts ...grpc.CallOption) (SnapshotInfo, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, TraceServiceSnapshotMethod, new(emptypb.Empty), out, opts...); err != nil {
		return SnapshotInfo{}, err
	}
	var info SnapshotInfo
	if err := fromStruct(out, &info); err != nil {
		return SnapshotInfo{}, fmt.Errorf("decode snapshot info: %w", err)
	}
	return info, nil
}
