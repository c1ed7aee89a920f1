// Package intake carries submitted sources over a Redis stream.
//
// Discovery collaborators (or `mediarelay submit --enqueue`) publish an
// Envelope with XADD; the daemon reads new entries with a blocking XREAD and
// hands each envelope to the pipeline. Consumption starts at the stream tail,
// so entries published while no daemon is running are not replayed.
package intake
