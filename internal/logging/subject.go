package logging

import "strings"

// FormatSubject builds the batch/source/stage subject shown in console output,
// e.g. "Batch 3f2a91c0 · Source #2 (retrieval)".
func FormatSubject(batchID, sourceIndex, stage string) string {
	batchID = strings.TrimSpace(batchID)
	sourceIndex = strings.TrimSpace(sourceIndex)
	stage = strings.TrimSpace(stage)
	parts := make([]string, 0, 2)
	if batchID != "" {
		if len(batchID) > 8 {
			batchID = batchID[:8]
		}
		parts = append(parts, "Batch "+batchID)
	}
	switch {
	case sourceIndex != "" && stage != "":
		parts = append(parts, "Source #"+sourceIndex+" ("+stage+")")
	case sourceIndex != "":
		parts = append(parts, "Source #"+sourceIndex)
	case stage != "":
		parts = append(parts, stage)
	}
	return strings.Join(parts, " · ")
}
