package replica

import "errors"

// Errors a Replica Store client reports. Both mean the replica did not
// contribute a value to the current operation.
var (
	// ErrNotFound indicates the replica holds no value for the key.
	ErrNotFound = errors.New("key not found on replica")
	// ErrUnavailable indicates a non-ok status, refused connection or transport failure.
	ErrUnavailable = errors.New("replica unavailable")
)
