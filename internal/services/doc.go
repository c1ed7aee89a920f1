// Package services defines shared utilities consumed by the pipeline stages
// and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp batch IDs, source positions, stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper, and Reason, which turns a
//     failure into the label recorded in batch reports (ServiceError,
//     TransferFailure, RemediationFailed, ...).
//
// Use these helpers when wiring new stage logic so failures are classified the
// same way at every stage of the pipeline.
package services
