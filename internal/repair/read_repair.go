package repair

import (
	"context"

	"go.uber.org/zap"

	"quorumcache/internal/metrics"
	"quorumcache/internal/quorum"
	"quorumcache/internal/replica"
)

// Report summarises one repair round.
type Report struct {
	Repaired []replica.Endpoint
	Failed   []quorum.Outcome
}

// Repairer writes the winning value back to stale replicas.
type Repairer struct {
	dispatcher *quorum.Dispatcher
	logger     *zap.Logger
	metrics    *metrics.Coordinator
}

// NewRepairer creates a repairer that sends its writes through dispatcher.
func NewRepairer(dispatcher *quorum.Dispatcher, logger *zap.Logger, m *metrics.Coordinator) *Repairer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repairer{
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    m,
	}
}

// Repair overwrites key with value on every stale replica in one parallel
// round and waits for it to settle. It is best effort: failures are logged
// and reported, never returned. The round is detached from ctx cancellation
// so an abandoned read still converges the replicas it already observed.
func (r *Repairer) Repair(ctx context.Context, key int64, value string, stale []replica.Endpoint) Report {
	var report Report
	if len(stale) == 0 {
		return report
	}

	r.logger.Info("read repair triggered",
		zap.Int64("key", key),
		zap.Int("stale", len(stale)))

	outcomes := r.dispatcher.Broadcast(context.WithoutCancel(ctx),
		quorum.Request{Op: quorum.OpWrite, Key: key, Value: value}, stale)

	for _, o := range outcomes {
		if o.OK() {
			report.Repaired = append(report.Repaired, o.Replica)
			r.observe(metrics.ResultOK)
			continue
		}
		report.Failed = append(report.Failed, o)
		r.observe(metrics.ResultFailure)
		r.logger.Warn("read repair failed",
			zap.String("replica", o.Replica.String()),
			zap.Int64("key", key),
			zap.Error(o.Err))
	}

	r.logger.Info("read repair completed",
		zap.Int64("key", key),
		zap.Int("repaired", len(report.Repaired)),
		zap.Int("failed", len(report.Failed)))

	return report
}

func (r *Repairer) observe(result string) {
	if r.metrics == nil {
		return
	}
	r.metrics.ReadRepairs.WithLabelValues(result).Inc()
}
