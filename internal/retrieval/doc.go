// Package retrieval streams conversion assets into the local cache directory.
//
// Each Retrieve call performs one streaming GET, reserves a collision-free
// file name with O_EXCL, and reports progress through an optional callback
// driven by a per-transfer ticker. An Artifact is returned only after the body
// has been fully copied and the file closed; any failure removes the partial
// file and surfaces services.ErrTransfer.
package retrieval
