// Package server runs a single Replica Store node. A node owns one local
// store and serves it over HTTP (/cache) and gRPC. Nodes know nothing about
// each other; replication is driven entirely by the coordinator.
package server
