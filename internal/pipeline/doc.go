// Package pipeline coordinates a batch of submitted sources from conversion to
// distribution.
//
// A Session is built from explicit dependencies (converter, retriever,
// remediator, distributor) and drives each batch through four phases:
// screening of the submitted references, concurrent conversion, deduplication
// on the resolved content key, and concurrent retrieval plus remediation
// followed by distribution. Failures are recorded per source in the returned
// Report; only an unusable cache directory aborts a batch.
package pipeline
