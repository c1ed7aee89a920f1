// Package notifications pushes batch summaries and errors to ntfy.
//
// NewService returns an ntfy-backed Service when a topic is configured and a
// no-op otherwise, so callers never need to check whether notifications are
// enabled. The [notifications] config section can silence batch summaries or
// error alerts independently.
package notifications
