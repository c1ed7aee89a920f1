package pipeline

import (
	"time"

	"mediarelay/internal/distribution"
)

// SourceReference is a discovered URL plus the identity of whoever shared it.
type SourceReference struct {
	URL       string `json:"url"`
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// SourceStatus is the terminal state of one submitted source.
type SourceStatus string

const (
	SourceDistributed SourceStatus = "distributed"
	SourceFailed      SourceStatus = "failed"
	SourceDuplicate   SourceStatus = "duplicate"
)

// SourceReport records what happened to one submitted source.
type SourceReport struct {
	Index  int             `json:"index"`
	Source SourceReference `json:"source"`
	Status SourceStatus    `json:"status"`
	Reason string          `json:"reason,omitempty"`
	// DuplicateOf is the index of the source that absorbed this one, or -1.
	DuplicateOf int                    `json:"duplicate_of"`
	Artifacts   []string               `json:"artifacts,omitempty"`
	Outcomes    []distribution.Outcome `json:"outcomes,omitempty"`
}

// Report is the result of one SubmitSources call.
type Report struct {
	BatchID    string         `json:"batch_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Sources    []SourceReport `json:"sources"`
}

// Counts tallies sources by status.
func (r Report) Counts() (distributed, failed, duplicate int) {
	for _, src := range r.Sources {
		switch src.Status {
		case SourceDistributed:
			distributed++
		case SourceFailed:
			failed++
		case SourceDuplicate:
			duplicate++
		}
	}
	return distributed, failed, duplicate
}

// Outcomes returns every distribution outcome in source order.
func (r Report) Outcomes() []distribution.Outcome {
	var out []distribution.Outcome
	for _, src := range r.Sources {
		out = append(out, src.Outcomes...)
	}
	return out
}

// Duration is the wall time spent on the batch.
func (r Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
