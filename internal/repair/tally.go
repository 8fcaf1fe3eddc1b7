package repair

import (
	"quorumcache/internal/quorum"
	"quorumcache/internal/replica"
)

// Bucket groups the replicas that returned the same value.
type Bucket struct {
	Value    string
	Replicas []replica.Endpoint
}

// Count returns the number of replicas that returned Value.
func (b Bucket) Count() int {
	return len(b.Replicas)
}

// Tally maps each distinct value observed during one read to the replicas
// that returned it. Buckets keep the order in which values were first seen.
type Tally struct {
	buckets []Bucket
	index   map[string]int
}

// NewTally builds a tally from read outcomes. Failed outcomes are ignored.
// Every successful replica lands in exactly one bucket.
func NewTally(outcomes []quorum.Outcome) *Tally {
	t := &Tally{index: make(map[string]int)}
	for _, o := range outcomes {
		if !o.OK() {
			continue
		}
		i, ok := t.index[o.Value]
		if !ok {
			i = len(t.buckets)
			t.index[o.Value] = i
			t.buckets = append(t.buckets, Bucket{Value: o.Value})
		}
		t.buckets[i].Replicas = append(t.buckets[i].Replicas, o.Replica)
	}
	return t
}

// Buckets returns the buckets in first-seen order.
func (t *Tally) Buckets() []Bucket {
	return t.buckets
}

// Responded returns how many replicas contributed a value.
func (t *Tally) Responded() int {
	n := 0
	for _, b := range t.buckets {
		n += b.Count()
	}
	return n
}

// Winner returns the largest bucket. Ties go to the value seen first.
// ok is false when no replica returned a value.
func (t *Tally) Winner() (b Bucket, ok bool) {
	for i, cand := range t.buckets {
		if i == 0 || cand.Count() > b.Count() {
			b = cand
		}
	}
	return b, len(t.buckets) > 0
}

// Stale returns every replica whose value differs from value.
func (t *Tally) Stale(value string) []replica.Endpoint {
	var stale []replica.Endpoint
	for _, b := range t.buckets {
		if b.Value != value {
			stale = append(stale, b.Replicas...)
		}
	}
	return stale
}
