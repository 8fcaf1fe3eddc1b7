package replica

import (
	"errors"
	"fmt"
)

// ErrEmptySet is returned when a Set is built without endpoints.
var ErrEmptySet = errors.New("replica set must contain at least one endpoint")

// Endpoint identifies one Replica Store instance.
type Endpoint struct {
	ID   string
	Addr string
}

// String returns "id@addr".
func (e Endpoint) String() string {
	return e.ID + "@" + e.Addr
}

// Set is an ordered, immutable collection of endpoints.
type Set struct {
	endpoints []Endpoint
}

// NewSet builds a Set from endpoints, keeping their order.
// IDs and addresses must be non-empty and IDs must be unique.
func NewSet(endpoints []Endpoint) (*Set, error) {
	if len(endpoints) == 0 {
		return nil, ErrEmptySet
	}

	seen := make(map[string]struct{}, len(endpoints))
	eps := make([]Endpoint, 0, len(endpoints))
	for i, ep := range endpoints {
		if ep.ID == "" || ep.Addr == "" {
			return nil, fmt.Errorf("endpoint %d: id and address cannot be empty", i)
		}
		if _, dup := seen[ep.ID]; dup {
			return nil, fmt.Errorf("duplicate replica id %q", ep.ID)
		}
		seen[ep.ID] = struct{}{}
		eps = append(eps, ep)
	}

	return &Set{endpoints: eps}, nil
}

// Len returns N.
func (s *Set) Len() int {
	return len(s.endpoints)
}

// Endpoints returns a copy of the endpoints in set order.
func (s *Set) Endpoints() []Endpoint {
	out := make([]Endpoint, len(s.endpoints))
	copy(out, s.endpoints)
	return out
}
