// Package replica describes the fixed, ordered set of Replica Store endpoints
// a coordinator fans out to. The set is immutable once built and its size is
// the basis for all quorum arithmetic.
package replica
