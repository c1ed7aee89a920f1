// Package daemon coordinates the long-running mediarelay process.
//
// It ties the Redis intake consumer to a pipeline session under a flock-based
// single-instance lock: every envelope read from the stream becomes one batch.
// Batch processing lives in the pipeline package; the daemon only owns
// startup, shutdown, and the running tallies shown by the status command.
package daemon
