// Package repair resolves divergent replica reads by majority vote and writes
// the winning value back to replicas that returned something else.
package repair
