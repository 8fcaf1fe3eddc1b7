package coordinator

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrQuorumNotReached means no value was returned by enough replicas.
	// Callers should retry later; it does not mean the key is absent.
	ErrQuorumNotReached = errors.New("quorum not reached")
	// ErrWriteQuorumNotReached means too few replicas accepted a write and
	// the key was rolled back.
	ErrWriteQuorumNotReached = errors.New("write quorum not reached")
	// ErrNotFound means the threshold is zero and no replica holds the key.
	ErrNotFound = errors.New("key not found")
)

// QuorumError describes a read that could not produce an authoritative value.
type QuorumError struct {
	Key      int64
	Best     int // replicas agreeing on the most common value
	Required int
	Replicas int
	Errors   []error // first few replica failures
}

func (e *QuorumError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%v for key %d: best=%d required=%d replicas=%d",
		ErrQuorumNotReached, e.Key, e.Best, e.Required, e.Replicas)
	if len(e.Errors) > 0 {
		fmt.Fprintf(&b, " errors=%v", e.Errors)
	}
	return b.String()
}

func (e *QuorumError) Unwrap() error {
	return ErrQuorumNotReached
}
