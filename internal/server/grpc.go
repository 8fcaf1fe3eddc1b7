package server

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"quorumcache/internal/metrics"
	"quorumcache/internal/storage"
	"quorumcache/internal/transport"
)

const transportGRPC = "grpc"

// ReplicaService implements transport.ReplicaServer over a local store.
type ReplicaService struct {
	nodeID  string
	store   storage.Store
	logger  *zap.Logger
	metrics *metrics.Server
}

var _ transport.ReplicaServer = (*ReplicaService)(nil)

// NewReplicaService creates the gRPC service for store.
func NewReplicaService(nodeID string, store storage.Store, logger *zap.Logger, m *metrics.Server) *ReplicaService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewServer(nil)
	}
	return &ReplicaService{nodeID: nodeID, store: store, logger: logger, metrics: m}
}

// Read returns the stored value or codes.NotFound.
func (s *ReplicaService) Read(ctx context.Context, req *wrapperspb.Int64Value) (*wrapperspb.StringValue, error) {
	value, ok := s.store.Get(req.GetValue())
	if !ok {
		s.count("read", codes.NotFound)
		return nil, status.Errorf(codes.NotFound, "key %d not found", req.GetValue())
	}
	s.count("read", codes.OK)
	return wrapperspb.String(value), nil
}

// Write overwrites a key.
func (s *ReplicaService) Write(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	key, value, err := transport.ParseWriteRequest(req)
	if err != nil {
		s.count("write", codes.InvalidArgument)
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	s.store.Put(key, value)
	s.metrics.Keys.Set(float64(s.store.Len()))
	s.logger.Debug("write", zap.String("node", s.nodeID), zap.Int64("key", key))

	s.count("write", codes.OK)
	return &emptypb.Empty{}, nil
}

// Remove deletes a key; removing an absent key succeeds.
func (s *ReplicaService) Remove(ctx context.Context, req *wrapperspb.Int64Value) (*emptypb.Empty, error) {
	s.store.Delete(req.GetValue())
	s.metrics.Keys.Set(float64(s.store.Len()))
	s.logger.Debug("remove", zap.String("node", s.nodeID), zap.Int64("key", req.GetValue()))

	s.count("remove", codes.OK)
	return &emptypb.Empty{}, nil
}

func (s *ReplicaService) count(op string, code codes.Code) {
	s.metrics.Requests.WithLabelValues(transportGRPC, op, code.String()).Inc()
}
