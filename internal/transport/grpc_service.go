package transport

import (
	"context"
	"fmt"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ReplicaServiceName is the fully qualified gRPC service name.
const ReplicaServiceName = "quorumcache.v1.Replica"

const (
	ReadMethod   = "/" + ReplicaServiceName + "/Read"
	WriteMethod  = "/" + ReplicaServiceName + "/Write"
	RemoveMethod = "/" + ReplicaServiceName + "/Remove"
)

// Fields of the Write request struct.
const (
	fieldKey   = "key"
	fieldValue = "value"
)

// ReplicaServer is the server API for the Replica service.
// Read returns codes.NotFound for a missing key.
type ReplicaServer interface {
	Read(context.Context, *wrapperspb.Int64Value) (*wrapperspb.StringValue, error)
	Write(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	Remove(context.Context, *wrapperspb.Int64Value) (*emptypb.Empty, error)
}

// RegisterReplicaServer registers srv on s.
func RegisterReplicaServer(s grpc.ServiceRegistrar, srv ReplicaServer) {
	s.RegisterService(&replicaServiceDesc, srv)
}

var replicaServiceDesc = grpc.ServiceDesc{
	ServiceName: ReplicaServiceName,
	HandlerType: (*ReplicaServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Read", Handler: readHandler},
		{MethodName: "Write", Handler: writeHandler},
		{MethodName: "Remove", Handler: removeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "quorumcache/v1/replica.proto",
}

func readHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.Int64Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReplicaServer).Read(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ReadMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ReplicaServer).Read(ctx, req.(*wrapperspb.Int64Value))
	}
	return interceptor(ctx, in, info, handler)
}

func writeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReplicaServer).Write(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: WriteMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ReplicaServer).Write(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func removeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.Int64Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReplicaServer).Remove(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RemoveMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ReplicaServer).Remove(ctx, req.(*wrapperspb.Int64Value))
	}
	return interceptor(ctx, in, info, handler)
}

// NewWriteRequest encodes a write. The key travels as a decimal string since
// struct numbers are doubles.
func NewWriteRequest(key int64, value string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldKey:   structpb.NewStringValue(strconv.FormatInt(key, 10)),
		fieldValue: structpb.NewStringValue(value),
	}}
}

// ParseWriteRequest decodes a request built by NewWriteRequest.
func ParseWriteRequest(s *structpb.Struct) (int64, string, error) {
	kv, ok := s.GetFields()[fieldKey]
	if !ok {
		return 0, "", fmt.Errorf("missing %q field", fieldKey)
	}
	key, err := strconv.ParseInt(kv.GetStringValue(), 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid key %q: %w", kv.GetStringValue(), err)
	}
	vv, ok := s.GetFields()[fieldValue]
	if !ok {
		return 0, "", fmt.Errorf("missing %q field", fieldValue)
	}
	return key, vv.GetStringValue(), nil
}
