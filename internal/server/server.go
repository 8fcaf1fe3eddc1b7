package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"quorumcache/internal/metrics"
	"quorumcache/internal/storage"
	"quorumcache/internal/transport"
)

// Config holds the settings of one replica node. An empty address disables
// that front end.
type Config struct {
	ID             string
	HTTPAddr       string
	GRPCAddr       string
	RateLimitQPS   float64
	RateLimitBurst int
	SlowRequest    time.Duration
	Logger         *zap.Logger
}

// Node represents a single replica store process.
type Node struct {
	cfg        Config
	store      storage.Store
	logger     *zap.Logger
	registry   *prometheus.Registry
	httpServer *http.Server
	grpcServer *grpc.Server

	mu       sync.Mutex
	httpLis  net.Listener
	grpcLis  net.Listener
	serveErr chan error
}

// NewNode creates a node with an empty in-memory store.
func NewNode(cfg Config) (*Node, error) {
	if cfg.ID == "" {
		return nil, errors.New("node id cannot be empty")
	}
	if cfg.HTTPAddr == "" && cfg.GRPCAddr == "" {
		return nil, errors.New("at least one of http or grpc address is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("node", cfg.ID))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	m := metrics.NewServer(registry)

	store := storage.NewInMemoryStore()
	limiter := NewRateLimiter(cfg.RateLimitQPS, cfg.RateLimitBurst, logger, m)

	n := &Node{
		cfg:      cfg,
		store:    store,
		logger:   logger,
		registry: registry,
		serveErr: make(chan error, 2),
	}

	if cfg.HTTPAddr != "" {
		var api http.Handler = NewHTTPHandler(cfg.ID, store, logger, m)
		if limiter != nil {
			api = limiter.Middleware(api)
		}
		mux := http.NewServeMux()
		mux.Handle(transport.CachePath, api)
		mux.Handle(transport.CachePath+"/", api)
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		n.httpServer = &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	if cfg.GRPCAddr != "" {
		interceptors := []grpc.UnaryServerInterceptor{LoggingInterceptor(logger, cfg.SlowRequest)}
		if limiter != nil {
			interceptors = append(interceptors, limiter.UnaryServerInterceptor())
		}
		n.grpcServer = grpc.NewServer(grpc.ChainUnaryInterceptor(interceptors...))
		transport.RegisterReplicaServer(n.grpcServer, NewReplicaService(cfg.ID, store, logger, m))
		// Enable gRPC reflection for grpcurl
		reflection.Register(n.grpcServer)
	}

	return n, nil
}

// Store returns the node's local store.
func (n *Node) Store() storage.Store {
	return n.store
}

// Registry returns the node's metrics registry.
func (n *Node) Registry() *prometheus.Registry {
	return n.registry
}

// Start binds the listeners and serves in the background.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.httpServer != nil {
		lis, err := net.Listen("tcp", n.cfg.HTTPAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", n.cfg.HTTPAddr, err)
		}
		n.httpLis = lis
		go func() {
			if err := n.httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				n.serveErr <- fmt.Errorf("http serve: %w", err)
			}
		}()
		n.logger.Info("serving http", zap.String("addr", lis.Addr().String()))
	}

	if n.grpcServer != nil {
		lis, err := net.Listen("tcp", n.cfg.GRPCAddr)
		if err != nil {
			if n.httpLis != nil {
				n.httpServer.Close()
			}
			return fmt.Errorf("failed to listen on %s: %w", n.cfg.GRPCAddr, err)
		}
		n.grpcLis = lis
		go func() {
			if err := n.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				n.serveErr <- fmt.Errorf("grpc serve: %w", err)
			}
		}()
		n.logger.Info("serving grpc", zap.String("addr", lis.Addr().String()))
	}

	return nil
}

// Errors reports fatal serve errors.
func (n *Node) Errors() <-chan error {
	return n.serveErr
}

// HTTPAddr returns the bound HTTP address, or "" before Start.
func (n *Node) HTTPAddr() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.httpLis == nil {
		return ""
	}
	return n.httpLis.Addr().String()
}

// GRPCAddr returns the bound gRPC address, or "" before Start.
func (n *Node) GRPCAddr() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.grpcLis == nil {
		return ""
	}
	return n.grpcLis.Addr().String()
}

// Stop gracefully stops the node.
func (n *Node) Stop(ctx context.Context) error {
	n.logger.Info("stopping node")

	var err error
	if n.httpServer != nil {
		err = n.httpServer.Shutdown(ctx)
	}
	if n.grpcServer != nil {
		done := make(chan struct{})
		go func() {
			n.grpcServer.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			n.grpcServer.Stop()
		}
	}
	return err
}
