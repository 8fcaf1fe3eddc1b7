// Package storage provides the local key-value store behind a single replica
// node. It has no knowledge of other replicas and keeps no versions: a write
// overwrites whatever was there.
package storage
