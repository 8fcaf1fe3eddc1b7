package transport

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"quorumcache/internal/replica"
)

// GRPCClient talks to replicas over the Replica gRPC service and keeps one
// connection per address.
type GRPCClient struct {
	mu       sync.RWMutex
	conns    map[string]*grpc.ClientConn
	dialOpts []grpc.DialOption
}

// NewGRPCClient creates a client. Extra dial options are appended to the
// insecure transport credentials.
func NewGRPCClient(opts ...grpc.DialOption) *GRPCClient {
	return &GRPCClient{
		conns:    make(map[string]*grpc.ClientConn),
		dialOpts: append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...),
	}
}

// conn returns the connection for addr, creating it if needed.
func (c *GRPCClient) conn(addr string) (*grpc.ClientConn, error) {
	c.mu.RLock()
	cc, exists := c.conns[addr]
	c.mu.RUnlock()

	if exists {
		return cc, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	if cc, exists := c.conns[addr]; exists {
		return cc, nil
	}

	cc, err := grpc.NewClient(addr, c.dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", addr, err)
	}
	c.conns[addr] = cc
	return cc, nil
}

// Read calls Replica/Read.
func (c *GRPCClient) Read(ctx context.Context, ep replica.Endpoint, key int64) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.invoke(ctx, ep, ReadMethod, wrapperspb.Int64(key), out); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

// Write calls Replica/Write.
func (c *GRPCClient) Write(ctx context.Context, ep replica.Endpoint, key int64, value string) error {
	return c.invoke(ctx, ep, WriteMethod, NewWriteRequest(key, value), new(emptypb.Empty))
}

// Remove calls Replica/Remove.
func (c *GRPCClient) Remove(ctx context.Context, ep replica.Endpoint, key int64) error {
	return c.invoke(ctx, ep, RemoveMethod, wrapperspb.Int64(key), new(emptypb.Empty))
}

func (c *GRPCClient) invoke(ctx context.Context, ep replica.Endpoint, method string, in, out any) error {
	cc, err := c.conn(ep.Addr)
	if err != nil {
		return fmt.Errorf("%w: %w", replica.ErrUnavailable, err)
	}
	if err := cc.Invoke(ctx, method, in, out); err != nil {
		if status.Code(err) == codes.NotFound {
			return replica.ErrNotFound
		}
		return fmt.Errorf("%w: %w", replica.ErrUnavailable, err)
	}
	return nil
}

// Close closes every cached connection.
func (c *GRPCClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for addr, cc := range c.conns {
		if err := cc.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", addr, err)
		}
	}
	c.conns = make(map[string]*grpc.ClientConn)
	return firstErr
}
