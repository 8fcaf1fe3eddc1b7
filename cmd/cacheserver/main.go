// Command cacheserver runs one replica store node.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"quorumcache/internal/config"
	qlog "quorumcache/internal/log"
	"quorumcache/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	nodeID := flag.String("node-id", "", "replica ID (overrides server.id)")
	httpAddr := flag.String("http", "", "HTTP listen address (overrides server.http_addr)")
	grpcAddr := flag.String("grpc", "", "gRPC listen address (overrides server.grpc_addr)")
	rateQPS := flag.Float64("rate-qps", 0, "requests per second per node, 0 disables (overrides server.rate_limit_qps)")
	rateBurst := flag.Int("rate-burst", 0, "rate limiter burst (overrides server.rate_limit_burst)")
	logLevel := flag.String("log-level", "", "debug, info, warn or error (overrides log.level)")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "node-id":
			cfg.Server.ID = *nodeID
		case "http":
			cfg.Server.HTTPAddr = *httpAddr
		case "grpc":
			cfg.Server.GRPCAddr = *grpcAddr
		case "rate-qps":
			cfg.Server.RateLimitQPS = *rateQPS
		case "rate-burst":
			cfg.Server.RateLimitBurst = *rateBurst
		case "log-level":
			cfg.Log.Level = *logLevel
		}
	})

	if err := cfg.Server.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := qlog.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	node, err := server.NewNode(server.Config{
		ID:             cfg.Server.ID,
		HTTPAddr:       cfg.Server.HTTPAddr,
		GRPCAddr:       cfg.Server.GRPCAddr,
		RateLimitQPS:   cfg.Server.RateLimitQPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
		SlowRequest:    cfg.Server.SlowRequest,
		Logger:         logger,
	})
	if err != nil {
		logger.Fatal("failed to create node", zap.Error(err))
	}
	if err := node.Start(); err != nil {
		logger.Fatal("failed to start node", zap.Error(err))
	}

	logger.Info("replica started",
		zap.String("id", cfg.Server.ID),
		zap.String("http", node.HTTPAddr()),
		zap.String("grpc", node.GRPCAddr()),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.Stringer("signal", sig))
	case err := <-node.Errors():
		logger.Error("server failed", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := node.Stop(ctx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}
