// Package quorum provides the parallel fan-out used by the coordinator and the
// threshold arithmetic applied to its results. It handles per-replica timeouts
// and collects one outcome per replica without letting a slow replica hold up
// the others.
package quorum
