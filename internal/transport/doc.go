// Package transport implements Replica Store clients for the coordinator.
// Two wire formats are supported: the HTTP API under /cache used by the cache
// server nodes, and a gRPC service whose messages are protobuf well-known
// types so no generated code is required.
package transport
