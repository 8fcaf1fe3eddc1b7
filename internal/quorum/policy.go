package quorum

import "fmt"

// Policy decides how many replicas must agree or acknowledge.
type Policy int

const (
	// PolicyFloorHalf requires at least floor(N/2). For N=3 a single replica
	// is enough, so this is not a real majority.
	PolicyFloorHalf Policy = iota
	// PolicyMajority requires floor(N/2)+1.
	PolicyMajority
)

// Required returns the threshold for n replicas.
func (p Policy) Required(n int) int {
	if p == PolicyMajority {
		return n/2 + 1
	}
	return n / 2
}

// Met reports whether count satisfies the threshold for n replicas.
func (p Policy) Met(count, n int) bool {
	return count >= p.Required(n)
}

func (p Policy) String() string {
	switch p {
	case PolicyFloorHalf:
		return "floor"
	case PolicyMajority:
		return "majority"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy parses "floor" or "majority". An empty string is floor.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "floor":
		return PolicyFloorHalf, nil
	case "majority":
		return PolicyMajority, nil
	default:
		return 0, fmt.Errorf("unknown quorum policy %q (expected floor or majority)", s)
	}
}
