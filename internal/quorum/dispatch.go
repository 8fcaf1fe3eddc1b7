package quorum

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"quorumcache/internal/metrics"
	"quorumcache/internal/replica"
)

const (
	// DefaultPerReplicaTimeout is the default timeout for each replica request.
	DefaultPerReplicaTimeout = 2 * time.Second
)

// Op is the kind of request sent to a replica.
type Op int

const (
	OpRead Op = iota
	OpWrite
	OpRemove
)

func (o Op) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Request is one operation to broadcast. Value is only used by OpWrite.
type Request struct {
	Op    Op
	Key   int64
	Value string
}

// Client issues single requests against one Replica Store.
// Implementations must honour ctx cancellation.
type Client interface {
	Read(ctx context.Context, ep replica.Endpoint, key int64) (string, error)
	Write(ctx context.Context, ep replica.Endpoint, key int64, value string) error
	Remove(ctx context.Context, ep replica.Endpoint, key int64) error
}

// Outcome is the result of one request against one replica.
// Err is nil on success; Value is only set for successful reads.
type Outcome struct {
	Replica replica.Endpoint
	Value   string
	Err     error
}

// OK reports whether the replica answered successfully.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Successes counts successful outcomes.
func Successes(outcomes []Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.OK() {
			n++
		}
	}
	return n
}

// Errors returns up to limit replica errors, in replica order.
func Errors(outcomes []Outcome, limit int) []error {
	var errs []error
	for _, o := range outcomes {
		if o.Err == nil {
			continue
		}
		if len(errs) == limit {
			break
		}
		errs = append(errs, o.Err)
	}
	return errs
}

// Dispatcher broadcasts requests to replicas in parallel.
type Dispatcher struct {
	client  Client
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Coordinator
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout sets the per-replica timeout.
func WithTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(disp *Dispatcher) {
		if l != nil {
			disp.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Coordinator) Option {
	return func(disp *Dispatcher) {
		disp.metrics = m
	}
}

// NewDispatcher creates a dispatcher over client.
func NewDispatcher(client Client, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		client:  client,
		timeout: DefaultPerReplicaTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Timeout returns the per-replica timeout.
func (d *Dispatcher) Timeout() time.Duration {
	return d.timeout
}

// Broadcast sends req to every target concurrently and waits for all of them
// to settle. The returned slice has one outcome per target, in target order,
// whatever order the replicas answered in. A failing replica never fails the
// broadcast. If ctx ends first, targets that have not answered get ctx.Err().
func (d *Dispatcher) Broadcast(ctx context.Context, req Request, targets []replica.Endpoint) []Outcome {
	outcomes := make([]Outcome, len(targets))
	if len(targets) == 0 {
		return outcomes
	}

	type indexed struct {
		i int
		o Outcome
	}
	// Buffered so late replicas can finish after an abandoned broadcast.
	results := make(chan indexed, len(targets))

	for i, ep := range targets {
		go func(i int, ep replica.Endpoint) {
			defer func() {
				if r := recover(); r != nil {
					results <- indexed{i: i, o: Outcome{
						Replica: ep,
						Err:     fmt.Errorf("replica %s: panic: %v", ep.ID, r),
					}}
				}
			}()
			results <- indexed{i: i, o: d.call(ctx, req, ep)}
		}(i, ep)
	}

	received := make([]bool, len(targets))
	for n := 0; n < len(targets); n++ {
		select {
		case r := <-results:
			outcomes[r.i] = r.o
			received[r.i] = true
		case <-ctx.Done():
			for i, ok := range received {
				if !ok {
					outcomes[i] = Outcome{
						Replica: targets[i],
						Err:     fmt.Errorf("replica %s: %w", targets[i].ID, ctx.Err()),
					}
				}
			}
			return outcomes
		}
	}

	return outcomes
}

func (d *Dispatcher) call(ctx context.Context, req Request, ep replica.Endpoint) Outcome {
	replicaCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	out := Outcome{Replica: ep}
	start := time.Now()

	switch req.Op {
	case OpRead:
		out.Value, out.Err = d.client.Read(replicaCtx, ep, req.Key)
	case OpWrite:
		out.Err = d.client.Write(replicaCtx, ep, req.Key, req.Value)
	case OpRemove:
		out.Err = d.client.Remove(replicaCtx, ep, req.Key)
	default:
		out.Err = fmt.Errorf("unknown op %d", int(req.Op))
	}

	d.metrics.ObserveReplica(req.Op.String(), out.Err, time.Since(start))

	if out.Err != nil {
		out.Err = fmt.Errorf("replica %s: %w", ep.ID, out.Err)
		fields := []zap.Field{
			zap.String("replica", ep.String()),
			zap.Stringer("op", req.Op),
			zap.Int64("key", req.Key),
			zap.Error(out.Err),
		}
		if errors.Is(out.Err, replica.ErrNotFound) {
			d.logger.Debug("replica has no value", fields...)
		} else {
			d.logger.Warn("replica request failed", fields...)
		}
	}

	return out
}
