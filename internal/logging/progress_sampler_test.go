package logging

import "testing"

func TestNewProgressSampler(t *testing.T) {
	tests := []struct {
		name       string
		bucketSize float64
		wantSize   float64
	}{
		{"default bucket size for zero", 0, 10},
		{"default bucket size for negative", -1, 10},
		{"custom bucket size", 25, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewProgressSampler(tt.bucketSize)
			if s.bucketSize != tt.wantSize {
				t.Errorf("bucketSize = %v, want %v", s.bucketSize, tt.wantSize)
			}
			if s.lastBucket != -1 {
				t.Errorf("lastBucket = %d, want -1", s.lastBucket)
			}
		})
	}
}

func TestProgressSampler_NilSampler(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog(50, "clip.mp4") {
		t.Error("ShouldLog on nil sampler should always return true")
	}
	s.Reset()
}

func TestProgressSampler_Buckets(t *testing.T) {
	s := NewProgressSampler(10)

	if !s.ShouldLog(0, "clip.mp4") {
		t.Error("first event should log")
	}
	if s.ShouldLog(7, "clip.mp4") {
		t.Error("7% should not log (same bucket)")
	}
	if !s.ShouldLog(10, "clip.mp4") {
		t.Error("10% should log (new bucket)")
	}
	if !s.ShouldLog(100, "clip.mp4") {
		t.Error("100% should log")
	}
	if s.ShouldLog(130, "clip.mp4") {
		t.Error("values over 100% share the final bucket")
	}
}

func TestProgressSampler_AssetChangeResetsBucket(t *testing.T) {
	s := NewProgressSampler(10)
	s.ShouldLog(60, "a.mp4")

	if !s.ShouldLog(0, "b.jpg") {
		t.Error("new asset should log")
	}
	if !s.ShouldLog(10, "b.jpg") {
		t.Error("10% should log after asset change reset the bucket")
	}
}

func TestProgressSampler_UnknownTotal(t *testing.T) {
	s := NewProgressSampler(10)
	if !s.ShouldLog(-1, "stream") {
		t.Error("first event should log even without a total")
	}
	if s.ShouldLog(-1, "stream") {
		t.Error("unknown percent should not trigger bucket logging")
	}
}

func TestProgressSampler_Reset(t *testing.T) {
	s := NewProgressSampler(10)
	s.ShouldLog(50, "a.mp4")
	s.Reset()
	if s.lastAsset != "" || s.lastBucket != -1 {
		t.Fatalf("unexpected state after reset: %+v", s)
	}
	if !s.ShouldLog(50, "a.mp4") {
		t.Error("should log after reset")
	}
}
