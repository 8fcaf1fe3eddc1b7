package it

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quorumcache/internal/coordinator"
	"quorumcache/internal/metrics"
	"quorumcache/internal/quorum"
	"quorumcache/internal/transport"
)

var kinds = []string{transport.KindHTTP, transport.KindGRPC}

const testTimeout = 500 * time.Millisecond

func startCluster(t *testing.T, n int) *Cluster {
	t.Helper()
	c, err := NewCluster(n, nil)
	require.NoError(t, err)
	t.Cleanup(c.Stop)
	return c
}

func newCoordinator(t *testing.T, c *Cluster, kind string, policy quorum.Policy) (*coordinator.Coordinator, *metrics.Coordinator) {
	t.Helper()
	m := metrics.NewCoordinator(prometheus.NewRegistry())
	coord, client, err := c.Coordinator(kind, policy, testTimeout, m)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return coord, m
}

func repairs(m *metrics.Coordinator) float64 {
	return testutil.ToFloat64(m.ReadRepairs.WithLabelValues(metrics.ResultOK))
}

// Three replicas, all reachable: put a, get a. Then R0 goes down and b is
// written to R1 and R2 only. R0 comes back holding a, and the next get
// repairs it.
func TestScenario_OutageAndRecovery(t *testing.T) {
	for _, kind := range kinds {
		t.Run(kind, func(t *testing.T) {
			cluster := startCluster(t, 3)
			coord, m := newCoordinator(t, cluster, kind, quorum.PolicyFloorHalf)
			ctx := context.Background()
			r0 := cluster.Node(0)

			res := coord.Put(ctx, 1, "a")
			require.Equal(t, coordinator.Committed, res.Status)
			assert.Equal(t, 3, res.Acks)

			v, err := coord.Get(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, "a", v)
			assert.Equal(t, 0.0, repairs(m))

			r0.SetDown(true)
			res = coord.Put(ctx, 1, "b")
			require.Equal(t, coordinator.Committed, res.Status, "2 acks meet floor(3/2)")
			assert.Equal(t, 2, res.Acks)

			v, err = coord.Get(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, "b", v)
			assert.Equal(t, 0.0, repairs(m), "a down replica is not stale")

			r0.SetDown(false)
			stale, _ := r0.Value(1)
			require.Equal(t, "a", stale)

			v, err = coord.Get(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, "b", v)
			assert.Equal(t, 1.0, repairs(m))

			repaired, ok := r0.Value(1)
			require.True(t, ok)
			assert.Equal(t, "b", repaired)
		})
	}
}

func TestScenario_ReadRepairConvergence(t *testing.T) {
	for _, kind := range kinds {
		t.Run(kind, func(t *testing.T) {
			cluster := startCluster(t, 3)
			cluster.Seed(7, map[int]string{0: "a", 1: "a", 2: "b"})
			coord, _ := newCoordinator(t, cluster, kind, quorum.PolicyMajority)

			v, err := coord.Get(context.Background(), 7)
			require.NoError(t, err)
			assert.Equal(t, "a", v)

			for _, n := range cluster.Nodes() {
				got, ok := n.Value(7)
				require.True(t, ok, n.ID)
				assert.Equal(t, "a", got, n.ID)
			}
		})
	}
}

func TestScenario_TieGoesToFirstReplica(t *testing.T) {
	cluster := startCluster(t, 3)
	cluster.Seed(9, map[int]string{0: "x", 1: "y", 2: "z"})
	coord, _ := newCoordinator(t, cluster, transport.KindHTTP, quorum.PolicyFloorHalf)

	for i := 0; i < 3; i++ {
		v, err := coord.Get(context.Background(), 9)
		require.NoError(t, err)
		assert.Equal(t, "x", v)
	}
}

func TestScenario_MajorityRollback(t *testing.T) {
	for _, kind := range kinds {
		t.Run(kind, func(t *testing.T) {
			cluster := startCluster(t, 3)
			coord, m := newCoordinator(t, cluster, kind, quorum.PolicyMajority)
			ctx := context.Background()

			cluster.Node(1).SetDown(true)
			cluster.Node(2).SetDown(true)

			res := coord.Put(ctx, 3, "v")
			assert.Equal(t, coordinator.RolledBack, res.Status)
			assert.Equal(t, 1, res.Acks)
			assert.Equal(t, 2, res.Required)
			assert.ErrorIs(t, res.Err, coordinator.ErrWriteQuorumNotReached)
			assert.Equal(t, 1.0, testutil.ToFloat64(m.WriteRollbacks))

			cluster.Node(1).SetDown(false)
			cluster.Node(2).SetDown(false)

			for _, n := range cluster.Nodes() {
				_, ok := n.Value(3)
				assert.False(t, ok, "%s still holds the rolled back value", n.ID)
			}

			_, err := coord.Get(ctx, 3)
			assert.ErrorIs(t, err, coordinator.ErrQuorumNotReached)
		})
	}
}

func TestScenario_FloorRollbackOnlyWhenAllFail(t *testing.T) {
	cluster := startCluster(t, 3)
	coord, _ := newCoordinator(t, cluster, transport.KindGRPC, quorum.PolicyFloorHalf)
	ctx := context.Background()

	for _, n := range cluster.Nodes() {
		n.SetDown(true)
	}
	res := coord.Put(ctx, 4, "v")
	assert.Equal(t, coordinator.RolledBack, res.Status)
	assert.Equal(t, 0, res.Acks)

	_, err := coord.Get(ctx, 4)
	var qerr *coordinator.QuorumError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, 0, qerr.Best)
	assert.Equal(t, 1, qerr.Required)
	assert.NotEmpty(t, qerr.Errors)
}

func TestScenario_SlowReplicaTimesOut(t *testing.T) {
	for _, kind := range kinds {
		t.Run(kind, func(t *testing.T) {
			cluster := startCluster(t, 3)
			coord, _ := newCoordinator(t, cluster, kind, quorum.PolicyMajority)
			ctx := context.Background()

			cluster.Node(2).SetDelay(5 * testTimeout)

			start := time.Now()
			res := coord.Put(ctx, 5, "v")
			elapsed := time.Since(start)

			assert.Equal(t, coordinator.Committed, res.Status)
			assert.Equal(t, 2, res.Acks)
			assert.Less(t, elapsed, 4*testTimeout)
		})
	}
}

func TestScenario_DeleteIsIdempotent(t *testing.T) {
	for _, kind := range kinds {
		t.Run(kind, func(t *testing.T) {
			cluster := startCluster(t, 3)
			coord, _ := newCoordinator(t, cluster, kind, quorum.PolicyFloorHalf)
			ctx := context.Background()

			require.Equal(t, coordinator.Committed, coord.Put(ctx, 6, "v").Status)

			for i := 0; i < 3; i++ {
				res := coord.Delete(ctx, 6)
				assert.Equal(t, 3, res.Acks)
				assert.Empty(t, res.Failed)
			}
			for _, n := range cluster.Nodes() {
				_, ok := n.Value(6)
				assert.False(t, ok)
			}
		})
	}
}

func TestScenario_ValuesSurviveEveryTransport(t *testing.T) {
	values := []string{"", ".", "..", "a/b", "../x"}
	for _, kind := range kinds {
		t.Run(kind, func(t *testing.T) {
			cluster := startCluster(t, 3)
			coord, _ := newCoordinator(t, cluster, kind, quorum.PolicyMajority)
			ctx := context.Background()

			for i, value := range values {
				key := int64(i)
				res := coord.Put(ctx, key, value)
				require.Equal(t, coordinator.Committed, res.Status, "value %q", value)
				assert.Equal(t, 3, res.Acks, "value %q", value)

				for _, n := range cluster.Nodes() {
					got, ok := n.Value(key)
					require.True(t, ok, "%s has no value for %q", n.ID, value)
					assert.Equal(t, value, got)
				}

				v, err := coord.Get(ctx, key)
				require.NoError(t, err)
				assert.Equal(t, value, v)
			}
		})
	}
}

func TestScenario_ConcurrentClients(t *testing.T) {
	cluster := startCluster(t, 5)
	coord, _ := newCoordinator(t, cluster, transport.KindGRPC, quorum.PolicyMajority)
	ctx := context.Background()

	const keys = 20
	var wg sync.WaitGroup
	for i := 0; i < keys; i++ {
		wg.Add(1)
		go func(key int64) {
			defer wg.Done()
			res := coord.Put(ctx, key, fmt.Sprintf("v%d", key))
			assert.Equal(t, coordinator.Committed, res.Status)

			v, err := coord.Get(ctx, key)
			assert.NoError(t, err)
			assert.Equal(t, fmt.Sprintf("v%d", key), v)
		}(int64(i))
	}
	wg.Wait()

	for _, n := range cluster.Nodes() {
		assert.Equal(t, keys, n.Store.Len(), n.ID)
	}
}
