// Package main hosts the mediarelay CLI entrypoint and command graph.
//
// The Cobra-based command tree runs batches in-process or enqueues them on the
// Redis intake stream, manages the destination registry, runs the intake
// daemon, and reports dependency health. Configuration resolution and logger
// setup live here so subcommands stay declarative; the pipeline itself lives
// in the internal packages.
package main
