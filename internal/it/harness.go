// Package it runs replica nodes in-process and drives a coordinator against
// them over real HTTP and gRPC connections.
package it

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"quorumcache/internal/coordinator"
	"quorumcache/internal/metrics"
	"quorumcache/internal/quorum"
	"quorumcache/internal/replica"
	"quorumcache/internal/server"
	"quorumcache/internal/storage"
	"quorumcache/internal/transport"
)

// Cluster represents a test cluster of replica nodes.
type Cluster struct {
	mu    sync.Mutex
	nodes []*Node
}

// Node is a replica serving one store over both HTTP and gRPC. A node that
// is down drops every request.
type Node struct {
	ID    string
	Store *storage.InMemoryStore

	httpServer *httptest.Server
	grpcServer *grpc.Server
	grpcAddr   string

	down  atomic.Bool
	delay atomic.Int64
}

// NewCluster starts n nodes named r0..r{n-1}.
func NewCluster(n int, logger *zap.Logger) (*Cluster, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cluster{}
	for i := 0; i < n; i++ {
		node, err := startNode(fmt.Sprintf("r%d", i), logger)
		if err != nil {
			c.Stop()
			return nil, err
		}
		c.nodes = append(c.nodes, node)
	}
	return c, nil
}

func startNode(id string, logger *zap.Logger) (*Node, error) {
	n := &Node{ID: id, Store: storage.NewInMemoryStore()}

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to listen for %s: %w", id, err)
	}
	n.grpcAddr = lis.Addr().String()
	n.grpcServer = grpc.NewServer(grpc.UnaryInterceptor(n.interceptor))
	transport.RegisterReplicaServer(n.grpcServer, server.NewReplicaService(id, n.Store, logger, nil))
	go func() { _ = n.grpcServer.Serve(lis) }()

	api := server.NewHTTPHandler(id, n.Store, logger, nil)
	n.httpServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !n.gate(r.Context()) {
			// Drops the connection without a response.
			panic(http.ErrAbortHandler)
		}
		api.ServeHTTP(w, r)
	}))

	return n, nil
}

// gate applies the configured delay and reports whether the node is up.
func (n *Node) gate(ctx context.Context) bool {
	if d := time.Duration(n.delay.Load()); d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return false
		}
	}
	return !n.down.Load()
}

func (n *Node) interceptor(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if !n.gate(ctx) {
		return nil, status.Error(codes.Unavailable, "replica down")
	}
	return handler(ctx, req)
}

// SetDown marks the node unreachable or brings it back. The store keeps its
// contents while down.
func (n *Node) SetDown(down bool) {
	n.down.Store(down)
}

// SetDelay makes every request wait d before being served.
func (n *Node) SetDelay(d time.Duration) {
	n.delay.Store(int64(d))
}

// Endpoint returns the node's address for the given transport kind.
func (n *Node) Endpoint(kind string) replica.Endpoint {
	if kind == transport.KindGRPC {
		return replica.Endpoint{ID: n.ID, Addr: n.grpcAddr}
	}
	return replica.Endpoint{ID: n.ID, Addr: n.httpServer.URL}
}

// Value reads the node's store directly, bypassing any coordinator.
func (n *Node) Value(key int64) (string, bool) {
	return n.Store.Get(key)
}

// Stop shuts the node down.
func (n *Node) Stop() {
	n.httpServer.Close()
	n.grpcServer.Stop()
}

// Node returns the i-th node.
func (c *Cluster) Node(i int) *Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nodes[i]
}

// Nodes returns all nodes in replica set order.
func (c *Cluster) Nodes() []*Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Node(nil), c.nodes...)
}

// ReplicaSet returns the cluster's replica set for the given transport kind.
func (c *Cluster) ReplicaSet(kind string) (*replica.Set, error) {
	nodes := c.Nodes()
	endpoints := make([]replica.Endpoint, 0, len(nodes))
	for _, n := range nodes {
		endpoints = append(endpoints, n.Endpoint(kind))
	}
	return replica.NewSet(endpoints)
}

// Coordinator builds a coordinator over the cluster. The returned client
// must be closed by the caller.
func (c *Cluster) Coordinator(kind string, policy quorum.Policy, timeout time.Duration, m *metrics.Coordinator) (*coordinator.Coordinator, transport.Client, error) {
	set, err := c.ReplicaSet(kind)
	if err != nil {
		return nil, nil, err
	}
	client, err := transport.New(kind)
	if err != nil {
		return nil, nil, err
	}
	coord, err := coordinator.New(set, client, coordinator.Config{
		Policy:  policy,
		Timeout: timeout,
		Metrics: m,
	})
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return coord, client, nil
}

// Seed writes key=value directly into the given nodes' stores.
func (c *Cluster) Seed(key int64, values map[int]string) {
	for i, v := range values {
		c.Node(i).Store.Put(key, v)
	}
}

// Stop stops all nodes in the cluster.
func (c *Cluster) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, n := range c.nodes {
		n.Stop()
	}
	c.nodes = nil
}
