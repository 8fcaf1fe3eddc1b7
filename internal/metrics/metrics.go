// Package metrics holds the Prometheus collectors exported by the coordinator
// and by replica store nodes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "quorumcache"

// Result label values.
const (
	ResultOK      = "ok"
	ResultFailure = "failure"
)

// Coordinator holds the client-side quorum metrics.
type Coordinator struct {
	ReplicaRequests        *prometheus.CounterVec
	ReplicaRequestDuration *prometheus.HistogramVec
	QuorumFailures         *prometheus.CounterVec
	ReadRepairs            *prometheus.CounterVec
	WriteRollbacks         prometheus.Counter
}

// NewCoordinator creates and registers coordinator metrics on reg.
// A nil reg registers on a private registry.
func NewCoordinator(reg prometheus.Registerer) *Coordinator {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Coordinator{
		ReplicaRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "coordinator",
				Name:      "replica_requests_total",
				Help:      "Requests dispatched to replicas, by operation and result",
			},
			[]string{"op", "result"},
		),
		ReplicaRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "coordinator",
				Name:      "replica_request_duration_seconds",
				Help:      "Latency of single replica requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		QuorumFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "coordinator",
				Name:      "quorum_failures_total",
				Help:      "Operations that did not reach the required quorum",
			},
			[]string{"op"},
		),
		ReadRepairs: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "coordinator",
				Name:      "read_repairs_total",
				Help:      "Read-repair writes issued to stale replicas, by result",
			},
			[]string{"result"},
		),
		WriteRollbacks: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "coordinator",
				Name:      "write_rollbacks_total",
				Help:      "Writes rolled back after missing the write quorum",
			},
		),
	}
}

// ObserveReplica records one replica request.
func (m *Coordinator) ObserveReplica(op string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultFailure
	}
	m.ReplicaRequests.WithLabelValues(op, result).Inc()
	m.ReplicaRequestDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// Server holds replica store node metrics.
type Server struct {
	Requests    *prometheus.CounterVec
	RateLimited *prometheus.CounterVec
	Keys        prometheus.Gauge
}

// NewServer creates and registers replica node metrics on reg.
func NewServer(reg prometheus.Registerer) *Server {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Server{
		Requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "replica",
				Name:      "requests_total",
				Help:      "Requests served by this replica, by transport, operation and status",
			},
			[]string{"transport", "op", "status"},
		),
		RateLimited: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "replica",
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the rate limiter",
			},
			[]string{"transport"},
		),
		Keys: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "replica",
				Name:      "keys",
				Help:      "Number of keys currently stored",
			},
		),
	}
}
