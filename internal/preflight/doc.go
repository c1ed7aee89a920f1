// Package preflight provides readiness checks for the filesystem paths and
// external services mediarelay depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and refuses to consume submissions
//     when a required check fails.
//   - The CLI "mediarelay status" command renders every check, including the
//     optional ones, for operators.
//
// Checks for disabled features (remediation, intake) are skipped.
package preflight
