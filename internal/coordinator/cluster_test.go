package coordinator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"quorumcache/internal/quorum"
	"quorumcache/internal/replica"
)

// fakeCluster is an in-memory set of replicas implementing quorum.Client.
type fakeCluster struct {
	mu         sync.Mutex
	data       map[string]map[int64]string
	down       map[string]bool
	writesDown map[string]bool
	delay      map[string]time.Duration
	writes     []string // "id:key=value" in arrival order
}

func newFakeCluster(n int) (*fakeCluster, *replica.Set) {
	eps := make([]replica.Endpoint, n)
	fc := &fakeCluster{
		data:       make(map[string]map[int64]string),
		down:       make(map[string]bool),
		writesDown: make(map[string]bool),
		delay:      make(map[string]time.Duration),
	}
	for i := range eps {
		eps[i] = replica.Endpoint{ID: fmt.Sprintf("r%d", i), Addr: fmt.Sprintf("mem://%d", i)}
		fc.data[eps[i].ID] = make(map[int64]string)
	}
	set, err := replica.NewSet(eps)
	if err != nil {
		panic(err)
	}
	return fc, set
}

func (f *fakeCluster) wait(ctx context.Context, id string) error {
	f.mu.Lock()
	d := f.delay[id]
	f.mu.Unlock()
	if d == 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeCluster) Read(ctx context.Context, ep replica.Endpoint, key int64) (string, error) {
	if err := f.wait(ctx, ep.ID); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down[ep.ID] {
		return "", replica.ErrUnavailable
	}
	v, ok := f.data[ep.ID][key]
	if !ok {
		return "", replica.ErrNotFound
	}
	return v, nil
}

func (f *fakeCluster) Write(ctx context.Context, ep replica.Endpoint, key int64, value string) error {
	if err := f.wait(ctx, ep.ID); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down[ep.ID] || f.writesDown[ep.ID] {
		return replica.ErrUnavailable
	}
	f.data[ep.ID][key] = value
	f.writes = append(f.writes, fmt.Sprintf("%s:%d=%s", ep.ID, key, value))
	return nil
}

func (f *fakeCluster) Remove(ctx context.Context, ep replica.Endpoint, key int64) error {
	if err := f.wait(ctx, ep.ID); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down[ep.ID] {
		return replica.ErrUnavailable
	}
	delete(f.data[ep.ID], key)
	return nil
}

// seed sets key to values[i] on replica i; "" leaves the replica empty.
func (f *fakeCluster) seed(key int64, values ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, v := range values {
		if v != "" {
			f.data[fmt.Sprintf("r%d", i)][key] = v
		}
	}
}

func (f *fakeCluster) setDown(id string, down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down[id] = down
}

// direct reads a replica bypassing the coordinator.
func (f *fakeCluster) direct(id string, key int64) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[id][key]
	return v, ok
}

func (f *fakeCluster) writeLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

func (f *fakeCluster) resetWriteLog() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = nil
}

func newTestCoordinator(t *testing.T, n int, policy quorum.Policy) (*Coordinator, *fakeCluster) {
	t.Helper()
	fc, set := newFakeCluster(n)
	c, err := New(set, fc, Config{Policy: policy, Timeout: time.Second})
	require.NoError(t, err)
	return c, fc
}

var policies = []quorum.Policy{quorum.PolicyFloorHalf, quorum.PolicyMajority}
