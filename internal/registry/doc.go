// Package registry persists the destinations batches are distributed to.
//
// Destinations are Discord-style webhook endpoints keyed by channel ID and
// stored in a SQLite database under the data directory. The distributor only
// reads from the registry; the CLI adds, removes, and imports entries,
// including the legacy channels.json layout written by earlier deployments.
package registry
