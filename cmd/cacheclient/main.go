// Command cacheclient drives a quorum coordinator through a short scenario:
// put(1, "a"), pause, put(1, "b"), pause, get(1). The pauses leave time to
// stop or restart replicas by hand.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"quorumcache/internal/config"
	"quorumcache/internal/coordinator"
	qlog "quorumcache/internal/log"
	"quorumcache/internal/metrics"
	"quorumcache/internal/transport"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	replicas := flag.String("replicas", "", "comma separated id=addr list (overrides client.replicas)")
	kind := flag.String("transport", "", "http or grpc (overrides client.transport)")
	policy := flag.String("policy", "", "floor or majority (overrides client.quorum_policy)")
	timeout := flag.Duration("timeout", 0, "per replica timeout (overrides client.request_timeout)")
	pause := flag.Duration("pause", 30*time.Second, "pause between scenario steps")
	key := flag.Int64("key", 1, "key used by the scenario")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	var flagErr error
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "replicas":
			endpoints, err := config.ParseReplicaList(*replicas)
			if err != nil {
				flagErr = err
				return
			}
			cfg.Client.Replicas = cfg.Client.Replicas[:0]
			for _, ep := range endpoints {
				cfg.Client.Replicas = append(cfg.Client.Replicas, ep.ID+"="+ep.Addr)
			}
		case "transport":
			cfg.Client.Transport = *kind
		case "policy":
			cfg.Client.QuorumPolicy = *policy
		case "timeout":
			cfg.Client.RequestTimeout = *timeout
		}
	})
	if flagErr == nil {
		flagErr = cfg.Client.Validate()
	}
	if flagErr != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", flagErr)
		os.Exit(1)
	}

	logger, err := qlog.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg.Client, *key, *pause, logger); err != nil {
		logger.Fatal("scenario failed", zap.Error(err))
	}
}

func run(cfg config.ClientConfig, key int64, pause time.Duration, logger *zap.Logger) error {
	set, err := cfg.ReplicaSet()
	if err != nil {
		return err
	}
	policy, err := cfg.Policy()
	if err != nil {
		return err
	}
	client, err := transport.New(cfg.Transport)
	if err != nil {
		return err
	}
	defer client.Close()

	coord, err := coordinator.New(set, client, coordinator.Config{
		Policy:  policy,
		Timeout: cfg.RequestTimeout,
		Logger:  logger,
		Metrics: metrics.NewCoordinator(prometheus.NewRegistry()),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("coordinator ready",
		zap.Stringers("replicas", set.Endpoints()),
		zap.String("transport", cfg.Transport),
		zap.Stringer("policy", policy))

	put := func(value string) {
		res := coord.Put(ctx, key, value)
		fmt.Printf("put(%d, %q): %s acks=%d/%d required=%d\n",
			key, value, res.Status, res.Acks, res.Replicas, res.Required)
		if res.Err != nil {
			fmt.Printf("  %v\n", res.Err)
		}
	}

	put("a")
	if err := sleep(ctx, pause); err != nil {
		return err
	}
	put("b")
	if err := sleep(ctx, pause); err != nil {
		return err
	}

	value, err := coord.Get(ctx, key)
	switch {
	case err == nil:
		fmt.Printf("get(%d) = %q\n", key, value)
	case errors.Is(err, coordinator.ErrNotFound):
		fmt.Printf("get(%d): not found\n", key)
	default:
		fmt.Printf("get(%d): %v\n", key, err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	fmt.Printf("waiting %s\n", d)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
