// Package textutil provides filename helpers shared by the retrieval and
// distribution stages.
//
// Names handed out by remote services are untrusted: they may carry path
// separators, control characters, decomposed Unicode, or lengths the local
// filesystem rejects. SanitizeFileName folds them into a single safe path
// segment, and SplitName separates a stem from its extension the way the
// cache naming scheme expects.
package textutil
