package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"quorumcache/internal/metrics"
	"quorumcache/internal/quorum"
	"quorumcache/internal/repair"
	"quorumcache/internal/replica"
)

// maxReportedErrors caps the replica errors attached to a QuorumError.
const maxReportedErrors = 3

// WriteStatus tells whether a put was kept or rolled back.
type WriteStatus int

const (
	Committed WriteStatus = iota
	RolledBack
)

func (s WriteStatus) String() string {
	if s == RolledBack {
		return "rolled_back"
	}
	return "committed"
}

// WriteResult represents the result of a put.
type WriteResult struct {
	Status   WriteStatus
	Acks     int
	Required int
	Replicas int
	// Err wraps ErrWriteQuorumNotReached when Status is RolledBack.
	Err error
	// Rollback holds the compensating delete, if one was issued.
	Rollback *DeleteResult
}

// DeleteResult represents the result of a delete. It never fails the call.
type DeleteResult struct {
	Acks     int
	Replicas int
	Failed   []quorum.Outcome
}

// Config holds coordinator settings. Zero values take defaults.
type Config struct {
	Policy  quorum.Policy
	Timeout time.Duration
	Logger  *zap.Logger
	Metrics *metrics.Coordinator
}

// Coordinator runs quorum reads and writes over a replica set.
// It keeps no per-key state and is safe for concurrent use.
type Coordinator struct {
	replicas   *replica.Set
	dispatcher *quorum.Dispatcher
	repairer   *repair.Repairer
	policy     quorum.Policy
	logger     *zap.Logger
	metrics    *metrics.Coordinator
}

// New creates a coordinator that reaches replicas through client.
func New(replicas *replica.Set, client quorum.Client, cfg Config) (*Coordinator, error) {
	if replicas == nil || replicas.Len() == 0 {
		return nil, replica.ErrEmptySet
	}
	if client == nil {
		return nil, errors.New("replica client cannot be nil")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.NewCoordinator(nil)
	}

	dispatcher := quorum.NewDispatcher(client,
		quorum.WithTimeout(cfg.Timeout),
		quorum.WithLogger(logger),
		quorum.WithMetrics(m),
	)

	return &Coordinator{
		replicas:   replicas,
		dispatcher: dispatcher,
		repairer:   repair.NewRepairer(dispatcher, logger, m),
		policy:     cfg.Policy,
		logger:     logger,
		metrics:    m,
	}, nil
}

// Replicas returns the replica set.
func (c *Coordinator) Replicas() *replica.Set {
	return c.replicas
}

// Policy returns the threshold policy.
func (c *Coordinator) Policy() quorum.Policy {
	return c.policy
}

// Get reads key from every replica and returns the value most of them agree on.
// Replicas that answered with a different value are overwritten before Get
// returns. If the most common value is held by fewer replicas than the policy
// requires, Get returns a *QuorumError and no value.
func (c *Coordinator) Get(ctx context.Context, key int64) (string, error) {
	n := c.replicas.Len()
	outcomes := c.dispatcher.Broadcast(ctx, quorum.Request{Op: quorum.OpRead, Key: key}, c.replicas.Endpoints())

	tally := repair.NewTally(outcomes)
	winner, found := tally.Winner()
	required := c.policy.Required(n)

	if winner.Count() < required {
		c.metrics.QuorumFailures.WithLabelValues("get").Inc()
		err := &QuorumError{
			Key:      key,
			Best:     winner.Count(),
			Required: required,
			Replicas: n,
			Errors:   quorum.Errors(outcomes, maxReportedErrors),
		}
		c.logger.Warn("read quorum not reached",
			zap.Int64("key", key),
			zap.Int("best", err.Best),
			zap.Int("required", required),
			zap.Int("replicas", n),
			zap.Int("responded", tally.Responded()))
		return "", err
	}

	if !found {
		return "", ErrNotFound
	}

	c.repairer.Repair(ctx, key, winner.Value, tally.Stale(winner.Value))

	return winner.Value, nil
}

// Put writes value to every replica. When fewer replicas than the policy
// requires acknowledge, the key is deleted from all replicas and the result
// reports RolledBack.
func (c *Coordinator) Put(ctx context.Context, key int64, value string) WriteResult {
	n := c.replicas.Len()
	outcomes := c.dispatcher.Broadcast(ctx,
		quorum.Request{Op: quorum.OpWrite, Key: key, Value: value}, c.replicas.Endpoints())

	result := WriteResult{
		Status:   Committed,
		Acks:     quorum.Successes(outcomes),
		Required: c.policy.Required(n),
		Replicas: n,
	}
	if c.policy.Met(result.Acks, n) {
		return result
	}

	c.metrics.QuorumFailures.WithLabelValues("put").Inc()
	c.metrics.WriteRollbacks.Inc()
	c.logger.Warn("write quorum not reached, rolling back",
		zap.Int64("key", key),
		zap.Int("acks", result.Acks),
		zap.Int("required", result.Required),
		zap.Int("replicas", n))

	rollback := c.Delete(context.WithoutCancel(ctx), key)

	result.Status = RolledBack
	result.Rollback = &rollback
	result.Err = fmt.Errorf("%w: key=%d acks=%d required=%d replicas=%d",
		ErrWriteQuorumNotReached, key, result.Acks, result.Required, n)
	if errs := quorum.Errors(outcomes, maxReportedErrors); len(errs) > 0 {
		result.Err = fmt.Errorf("%w errors=%v", result.Err, errs)
	}
	return result
}

// Delete removes key from every replica. There is no quorum check; replicas
// that fail are reported in the result.
func (c *Coordinator) Delete(ctx context.Context, key int64) DeleteResult {
	outcomes := c.dispatcher.Broadcast(ctx, quorum.Request{Op: quorum.OpRemove, Key: key}, c.replicas.Endpoints())

	result := DeleteResult{
		Acks:     quorum.Successes(outcomes),
		Replicas: len(outcomes),
	}
	for _, o := range outcomes {
		if !o.OK() {
			result.Failed = append(result.Failed, o)
		}
	}
	if len(result.Failed) > 0 {
		c.logger.Warn("delete not applied on every replica",
			zap.Int64("key", key),
			zap.Int("acks", result.Acks),
			zap.Int("failed", len(result.Failed)))
	}
	return result
}
