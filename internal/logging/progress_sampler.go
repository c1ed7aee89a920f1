package logging

import "strings"

// ProgressSampler suppresses repetitive download progress logs while keeping
// a line whenever the percentage crosses a bucket or the tracked asset changes.
type ProgressSampler struct {
	bucketSize float64
	lastAsset  string
	lastBucket int
}

// NewProgressSampler constructs a sampler that emits when the percent crosses
// bucket boundaries (default 10%) or when the asset changes.
func NewProgressSampler(bucketSize float64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 10
	}
	return &ProgressSampler{bucketSize: bucketSize, lastBucket: -1}
}

// ShouldLog reports whether a progress event should be logged. Percent is
// negative when the total size is unknown; such events only log on an asset
// change.
func (s *ProgressSampler) ShouldLog(percent float64, asset string) bool {
	if s == nil {
		return true
	}
	asset = strings.TrimSpace(asset)
	emit := false
	if asset != "" && asset != s.lastAsset {
		s.lastAsset = asset
		s.lastBucket = -1
		emit = true
	}
	if percent >= 0 {
		if percent > 100 {
			percent = 100
		}
		bucket := int(percent / s.bucketSize)
		if bucket > s.lastBucket {
			s.lastBucket = bucket
			emit = true
		}
	}
	return emit
}

// Reset clears the sampler state.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.lastAsset = ""
	s.lastBucket = -1
}
