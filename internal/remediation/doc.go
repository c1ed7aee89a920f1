// Package remediation normalizes retrieved files into formats destinations
// accept.
//
// The pipeline depends only on the Remediator interface. FFmpeg converts HEIC
// stills to JPEG and remuxes every non-image container with a stream copy,
// replacing the original atomically; Passthrough leaves files untouched and
// is used when remediation is disabled.
package remediation
