// Package relay assembles a ready-to-run pipeline session from configuration.
//
// Both the CLI submit path and the daemon build their sessions here so the
// conversion client, retriever, remediator, destination registry, webhook
// deliverer and notifier are wired identically in every entry point.
package relay
