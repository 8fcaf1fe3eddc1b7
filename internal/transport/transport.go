package transport

import (
	"fmt"

	"quorumcache/internal/quorum"
)

// Kind names a wire format.
const (
	KindHTTP = "http"
	KindGRPC = "grpc"
)

// Client is a quorum.Client that holds connections.
type Client interface {
	quorum.Client
	Close() error
}

// New returns a client for kind.
func New(kind string) (Client, error) {
	switch kind {
	case "", KindHTTP:
		return NewHTTPClient(nil), nil
	case KindGRPC:
		return NewGRPCClient(), nil
	default:
		return nil, fmt.Errorf("unknown transport %q (expected http or grpc)", kind)
	}
}
