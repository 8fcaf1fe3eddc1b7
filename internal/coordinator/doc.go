// Package coordinator implements get, put and delete against a fixed replica
// set. Reads are resolved by majority vote over the values replicas return and
// stale replicas are repaired in place; writes below the threshold are rolled
// back by deleting the key everywhere.
//
// There is no ordering between concurrent operations on the same key: two
// puts may interleave their replica writes and leave replicas disagreeing
// until the next get repairs them.
package coordinator
