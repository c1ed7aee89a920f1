package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"mediarelay/internal/conversion"
	"mediarelay/internal/distribution"
	"mediarelay/internal/pipeline"
	"mediarelay/internal/registry"
	"mediarelay/internal/retrieval"
	"mediarelay/internal/services"
)

// assetServer serves fixed payloads and counts hits per path. Paths under
// /drop/ announce a length, send a few bytes, then cut the connection.
type assetServer struct {
	*httptest.Server
	mu   sync.Mutex
	hits map[string]int
}

func newAssetServer(t *testing.T) *assetServer {
	t.Helper()
	as := &assetServer{hits: map[string]int{}}
	as.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		as.mu.Lock()
		as.hits[r.URL.Path]++
		as.mu.Unlock()
		if strings.HasPrefix(r.URL.Path, "/drop/") {
			w.Header().Set("Content-Length", "4096")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("partial"))
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
			if hj, ok := w.(http.Hijacker); ok {
				if conn, _, err := hj.Hijack(); err == nil {
					_ = conn.Close()
				}
			}
			return
		}
		_, _ = w.Write([]byte("payload:" + r.URL.Path))
	}))
	t.Cleanup(as.Close)
	return as
}

func (as *assetServer) hitCount(path string) int {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.hits[path]
}

// fakeConverter answers from a table keyed by source URL.
type fakeConverter struct {
	replies map[string]conversion.Response
	errs    map[string]error
	calls   atomic.Int32
}

func (c *fakeConverter) Convert(_ context.Context, req conversion.Request) (conversion.Response, error) {
	c.calls.Add(1)
	if err, ok := c.errs[req.URL]; ok {
		return conversion.Response{}, err
	}
	resp, ok := c.replies[req.URL]
	if !ok {
		return conversion.Response{}, services.Wrap(services.ErrServiceResponse, "conversion", "test", "no reply for "+req.URL, nil)
	}
	return resp, nil
}

type staticLister []registry.Destination

func (l staticLister) List(context.Context) ([]registry.Destination, error) { return l, nil }

// sink records every delivered message and checks the files exist at delivery time.
type sink struct {
	mu       sync.Mutex
	messages []distribution.Message
}

func (s *sink) Deliver(_ context.Context, _ registry.Destination, msg distribution.Message) error {
	for _, path := range msg.Files {
		if _, err := os.Stat(path); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	return nil
}

type harness struct {
	session   *pipeline.Session
	cacheDir  string
	converter *fakeConverter
	sink      *sink
}

func newHarness(t *testing.T, converter *fakeConverter, dests int) *harness {
	t.Helper()
	cacheDir := filepath.Join(t.TempDir(), "cache")
	lister := make(staticLister, 0, dests)
	for i := range dests {
		id := string(rune('a' + i))
		lister = append(lister, registry.Destination{ChannelID: id, WebhookID: "w" + id, WebhookToken: "t" + id})
	}
	deliveries := &sink{}
	session, err := pipeline.NewSession(pipeline.Config{
		Converter:   converter,
		Retriever:   retrieval.New(retrieval.Config{CacheDir: cacheDir}),
		Distributor: distribution.New(distribution.Config{Lister: lister, Deliverer: deliveries}),
		NewBatchID:  func() string { return "batch-test" },
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return &harness{session: session, cacheDir: cacheDir, converter: converter, sink: deliveries}
}

func (h *harness) assertCacheEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(h.cacheDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("read cache dir: %v", err)
	}
	if len(entries) != 0 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("expected empty cache dir, found %v", names)
	}
}

func redirect(url, filename string) conversion.Response {
	return conversion.Response{Status: conversion.StatusRedirect, URL: url, Filename: filename}
}

func TestSubmitSourcesOutcomeCountAndCleanup(t *testing.T) {
	assets := newAssetServer(t)
	converter := &fakeConverter{replies: map[string]conversion.Response{
		"https://src/1": redirect(assets.URL+"/one.mp4", "one.mp4"),
		"https://src/2": redirect(assets.URL+"/two.mp4", "two.mp4"),
		"https://src/3": redirect(assets.URL+"/three.jpg", "three.jpg"),
	}}
	h := newHarness(t, converter, 3)

	report, err := h.session.SubmitSources(context.Background(), []pipeline.SourceReference{
		{URL: "https://src/1", Username: "a"},
		{URL: "https://src/2", Username: "b"},
		{URL: "https://src/3", Username: "c"},
	})
	if err != nil {
		t.Fatalf("SubmitSources: %v", err)
	}
	if report.BatchID != "batch-test" {
		t.Fatalf("unexpected batch id %q", report.BatchID)
	}
	if got := len(report.Outcomes()); got != 3*3 {
		t.Fatalf("expected 9 outcomes, got %d", got)
	}
	distributed, failed, duplicate := report.Counts()
	if distributed != 3 || failed != 0 || duplicate != 0 {
		t.Fatalf("unexpected counts %d/%d/%d", distributed, failed, duplicate)
	}
	h.assertCacheEmpty(t)
}

func TestSubmitSourcesDeduplicatesRepeatedSource(t *testing.T) {
	assets := newAssetServer(t)
	converter := &fakeConverter{replies: map[string]conversion.Response{
		"https://src/1": redirect(assets.URL+"/same.mp4", "same.mp4"),
	}}
	h := newHarness(t, converter, 2)

	report, err := h.session.SubmitSources(context.Background(), []pipeline.SourceReference{
		{URL: "https://src/1", Username: "first"},
		{URL: " https://src/1 ", Username: "second"},
	})
	if err != nil {
		t.Fatalf("SubmitSources: %v", err)
	}
	if converter.calls.Load() != 1 {
		t.Fatalf("expected one conversion, got %d", converter.calls.Load())
	}
	if assets.hitCount("/same.mp4") != 1 {
		t.Fatalf("expected one retrieval, got %d", assets.hitCount("/same.mp4"))
	}
	if len(report.Outcomes()) != 2 {
		t.Fatalf("expected one outcome set (2 destinations), got %d", len(report.Outcomes()))
	}
	second := report.Sources[1]
	if second.Status != pipeline.SourceDuplicate || second.DuplicateOf != 0 {
		t.Fatalf("unexpected duplicate record %+v", second)
	}
	h.assertCacheEmpty(t)
}

func TestSubmitSourcesDeduplicatesResolvedContent(t *testing.T) {
	assets := newAssetServer(t)
	converter := &fakeConverter{replies: map[string]conversion.Response{
		"https://short/abc":        redirect(assets.URL+"/video.mp4?sig=1", "video.mp4"),
		"https://long/watch?v=abc": redirect(assets.URL+"/video.mp4?sig=2", "video.mp4"),
	}}
	h := newHarness(t, converter, 1)

	report, err := h.session.SubmitSources(context.Background(), []pipeline.SourceReference{
		{URL: "https://short/abc", Username: "alice"},
		{URL: "https://long/watch?v=abc", Username: "bob"},
	})
	if err != nil {
		t.Fatalf("SubmitSources: %v", err)
	}
	if assets.hitCount("/video.mp4") != 1 {
		t.Fatalf("expected a single retrieval, got %d", assets.hitCount("/video.mp4"))
	}
	if report.Sources[1].Status != pipeline.SourceDuplicate {
		t.Fatalf("expected second source to be a duplicate, got %+v", report.Sources[1])
	}
	if len(h.sink.messages) != 1 || h.sink.messages[0].Username != "alice" {
		t.Fatalf("expected the first requester's identity, got %+v", h.sink.messages)
	}
}

func TestSubmitSourcesPickerWithAudio(t *testing.T) {
	assets := newAssetServer(t)
	converter := &fakeConverter{replies: map[string]conversion.Response{
		"https://src/post": {
			Status:        conversion.StatusPicker,
			Audio:         assets.URL + "/audio.mp3",
			AudioFilename: "track.mp3",
			Picker: []conversion.PickerItem{
				{Type: "photo", URL: assets.URL + "/p1.jpg"},
				{Type: "photo", URL: assets.URL + "/p2.jpg"},
				{Type: "photo", URL: assets.URL + "/p3.jpg"},
			},
		},
	}}
	h := newHarness(t, converter, 1)

	report, err := h.session.SubmitSources(context.Background(), []pipeline.SourceReference{
		{URL: "https://src/post", Username: "poster", AvatarURL: "https://img/poster.png"},
	})
	if err != nil {
		t.Fatalf("SubmitSources: %v", err)
	}
	src := report.Sources[0]
	if src.Status != pipeline.SourceDistributed || len(src.Artifacts) != 4 {
		t.Fatalf("expected 4 distributed artifacts, got %+v", src)
	}
	if len(h.sink.messages) != 1 {
		t.Fatalf("expected one delivery, got %d", len(h.sink.messages))
	}
	msg := h.sink.messages[0]
	if len(msg.Files) != 4 || msg.Username != "poster" || msg.AvatarURL != "https://img/poster.png" {
		t.Fatalf("unexpected delivered message %+v", msg)
	}
	for _, path := range []string{"/audio.mp3", "/p1.jpg", "/p2.jpg", "/p3.jpg"} {
		if assets.hitCount(path) != 1 {
			t.Fatalf("expected one retrieval of %s", path)
		}
	}
	h.assertCacheEmpty(t)
}

func TestSubmitSourcesMidStreamDrop(t *testing.T) {
	assets := newAssetServer(t)
	converter := &fakeConverter{replies: map[string]conversion.Response{
		"https://src/bad":  redirect(assets.URL+"/drop/broken.mp4", "broken.mp4"),
		"https://src/good": redirect(assets.URL+"/fine.mp4", "fine.mp4"),
	}}
	h := newHarness(t, converter, 2)

	report, err := h.session.SubmitSources(context.Background(), []pipeline.SourceReference{
		{URL: "https://src/bad"},
		{URL: "https://src/good"},
	})
	if err != nil {
		t.Fatalf("SubmitSources: %v", err)
	}
	bad := report.Sources[0]
	if bad.Status != pipeline.SourceFailed || !strings.HasPrefix(bad.Reason, "TransferFailure") {
		t.Fatalf("expected transfer failure, got %+v", bad)
	}
	if len(bad.Outcomes) != 0 || len(bad.Artifacts) != 0 {
		t.Fatalf("failed source must not be distributed: %+v", bad)
	}
	if report.Sources[1].Status != pipeline.SourceDistributed {
		t.Fatalf("expected healthy source to be distributed, got %+v", report.Sources[1])
	}
	if len(report.Outcomes()) != 2 {
		t.Fatalf("expected outcomes only for the healthy source, got %d", len(report.Outcomes()))
	}
	h.assertCacheEmpty(t)
}

func TestSubmitSourcesSameFilenameStaysDistinct(t *testing.T) {
	assets := newAssetServer(t)
	converter := &fakeConverter{replies: map[string]conversion.Response{
		"https://src/a": redirect(assets.URL+"/a/clip.mp4", "clip.mp4"),
		"https://src/b": redirect(assets.URL+"/b/clip.mp4", "clip.mp4"),
	}}
	h := newHarness(t, converter, 1)

	report, err := h.session.SubmitSources(context.Background(), []pipeline.SourceReference{
		{URL: "https://src/a"},
		{URL: "https://src/b"},
	})
	if err != nil {
		t.Fatalf("SubmitSources: %v", err)
	}
	var names []string
	for _, src := range report.Sources {
		if src.Status != pipeline.SourceDistributed || len(src.Artifacts) != 1 {
			t.Fatalf("expected both sources distributed, got %+v", src)
		}
		name := src.Artifacts[0]
		if !strings.HasPrefix(name, "clip") || !strings.HasSuffix(name, ".mp4") {
			t.Fatalf("unexpected artifact name %q", name)
		}
		names = append(names, name)
	}
	if names[0] == names[1] {
		t.Fatalf("expected distinct names, both were %q", names[0])
	}
}

func tunnel(url, filename string) conversion.Response {
	return conversion.Response{Status: conversion.StatusTunnel, URL: url, Filename: filename}
}

func tunnelPicker(urls ...string) conversion.Response {
	items := make([]conversion.PickerItem, 0, len(urls))
	for _, u := range urls {
		items = append(items, conversion.PickerItem{Type: "photo", URL: u})
	}
	return conversion.Response{Status: conversion.StatusPicker, Picker: items}
}

func TestSubmitSourcesTunnelDeduplication(t *testing.T) {
	assets := newAssetServer(t)
	base := assets.URL + "/tunnel"
	tests := []struct {
		name        string
		first       conversion.Response
		second      conversion.Response
		wantDup     bool
		wantFiles   int
		wantMessage int
	}{
		{
			name:        "distinct tunnel singles",
			first:       tunnel(base+"?id=x&sig=1", "clip.mp4"),
			second:      tunnel(base+"?id=y&sig=2", "clip.mp4"),
			wantFiles:   1,
			wantMessage: 2,
		},
		{
			name:        "identical tunnel singles",
			first:       tunnel(base+"?id=x&sig=1", "clip.mp4"),
			second:      tunnel(base+"?id=x&sig=1", "clip.mp4"),
			wantDup:     true,
			wantFiles:   1,
			wantMessage: 1,
		},
		{
			name:        "distinct tunnel pickers",
			first:       tunnelPicker(base+"?id=a1", base+"?id=a2"),
			second:      tunnelPicker(base+"?id=b1", base+"?id=b2"),
			wantFiles:   2,
			wantMessage: 2,
		},
		{
			name:        "identical tunnel pickers",
			first:       tunnelPicker(base+"?id=a1", base+"?id=a2"),
			second:      tunnelPicker(base+"?id=a1", base+"?id=a2"),
			wantDup:     true,
			wantFiles:   2,
			wantMessage: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			converter := &fakeConverter{replies: map[string]conversion.Response{
				"https://tiktok.com/@a/photo/1": tt.first,
				"https://tiktok.com/@b/photo/2": tt.second,
			}}
			h := newHarness(t, converter, 1)

			report, err := h.session.SubmitSources(context.Background(), []pipeline.SourceReference{
				{URL: "https://tiktok.com/@a/photo/1", Username: "alice"},
				{URL: "https://tiktok.com/@b/photo/2", Username: "bob"},
			})
			if err != nil {
				t.Fatalf("SubmitSources: %v", err)
			}
			first, second := report.Sources[0], report.Sources[1]
			if first.Status != pipeline.SourceDistributed || len(first.Artifacts) != tt.wantFiles {
				t.Fatalf("expected first source distributed with %d artifacts, got %+v", tt.wantFiles, first)
			}
			if tt.wantDup {
				if second.Status != pipeline.SourceDuplicate || second.DuplicateOf != 0 {
					t.Fatalf("expected second source to duplicate the first, got %+v", second)
				}
			} else if second.Status != pipeline.SourceDistributed || len(second.Artifacts) != tt.wantFiles {
				t.Fatalf("expected second source distributed with %d artifacts, got %+v", tt.wantFiles, second)
			}
			if len(h.sink.messages) != tt.wantMessage {
				t.Fatalf("expected %d deliveries, got %d", tt.wantMessage, len(h.sink.messages))
			}
			posters := map[string]bool{}
			for _, msg := range h.sink.messages {
				posters[msg.Username] = true
			}
			if !posters["alice"] || posters["bob"] == tt.wantDup {
				t.Fatalf("unexpected delivered posters %v", posters)
			}
			h.assertCacheEmpty(t)
		})
	}
}

func TestSubmitSourcesServiceErrorIsolated(t *testing.T) {
	assets := newAssetServer(t)
	envelope := json.RawMessage(`{"code":"invalid_url"}`)
	converter := &fakeConverter{
		replies: map[string]conversion.Response{
			"https://src/ok": redirect(assets.URL+"/ok.mp4", "ok.mp4"),
		},
		errs: map[string]error{
			"https://src/err": services.Wrap(services.ErrServiceResponse, "conversion", "dispatch", "service returned error", &conversion.ServiceError{Payload: envelope}),
		},
	}
	h := newHarness(t, converter, 2)

	report, err := h.session.SubmitSources(context.Background(), []pipeline.SourceReference{
		{URL: "https://src/err"},
		{URL: "https://src/ok"},
	})
	if err != nil {
		t.Fatalf("SubmitSources: %v", err)
	}
	failed := report.Sources[0]
	if failed.Status != pipeline.SourceFailed || !strings.HasPrefix(failed.Reason, "ServiceError") || !strings.Contains(failed.Reason, "invalid_url") {
		t.Fatalf("expected ServiceError with payload, got %+v", failed)
	}
	if report.Sources[1].Status != pipeline.SourceDistributed || len(report.Sources[1].Outcomes) != 2 {
		t.Fatalf("expected other source distributed, got %+v", report.Sources[1])
	}
}

func TestSubmitSourcesEmptyBatchIsNoop(t *testing.T) {
	converter := &fakeConverter{}
	h := newHarness(t, converter, 1)

	report, err := h.session.SubmitSources(context.Background(), []pipeline.SourceReference{{URL: "  "}})
	if err != nil {
		t.Fatalf("SubmitSources: %v", err)
	}
	if converter.calls.Load() != 0 {
		t.Fatal("expected no conversion calls")
	}
	if report.Sources[0].Status != pipeline.SourceFailed || !strings.HasPrefix(report.Sources[0].Reason, "InvalidArgument") {
		t.Fatalf("expected invalid argument record, got %+v", report.Sources[0])
	}
	if _, err := os.Stat(h.cacheDir); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected cache dir untouched for empty batch, stat err=%v", err)
	}
}

type failingRemediator struct{ failExt string }

func (f failingRemediator) Remediate(_ context.Context, path string) (string, error) {
	if strings.HasSuffix(path, f.failExt) {
		return "", services.Wrap(services.ErrRemediation, "remediation", "remux", "exit status 1", nil)
	}
	return path, nil
}

func TestSubmitSourcesRemediationFailureExcludesArtifact(t *testing.T) {
	assets := newAssetServer(t)
	converter := &fakeConverter{replies: map[string]conversion.Response{
		"https://src/post": {
			Status: conversion.StatusPicker,
			Picker: []conversion.PickerItem{
				{URL: assets.URL + "/good.jpg"},
				{URL: assets.URL + "/bad.mov"},
			},
		},
		"https://src/video": redirect(assets.URL+"/only.mov", "only.mov"),
	}}
	cacheDir := filepath.Join(t.TempDir(), "cache")
	deliveries := &sink{}
	session, err := pipeline.NewSession(pipeline.Config{
		Converter:   converter,
		Retriever:   retrieval.New(retrieval.Config{CacheDir: cacheDir}),
		Remediator:  failingRemediator{failExt: ".mov"},
		Distributor: distribution.New(distribution.Config{Lister: staticLister{{ChannelID: "c", WebhookID: "w", WebhookToken: "t"}}, Deliverer: deliveries}),
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	report, err := session.SubmitSources(context.Background(), []pipeline.SourceReference{
		{URL: "https://src/post"},
		{URL: "https://src/video"},
	})
	if err != nil {
		t.Fatalf("SubmitSources: %v", err)
	}
	if src := report.Sources[0]; src.Status != pipeline.SourceDistributed || len(src.Artifacts) != 1 || !strings.HasSuffix(src.Artifacts[0], ".jpg") {
		t.Fatalf("expected only the jpg to be distributed, got %+v", src)
	}
	if src := report.Sources[1]; src.Status != pipeline.SourceFailed || !strings.HasPrefix(src.Reason, "RemediationFailed") {
		t.Fatalf("expected remediation failure, got %+v", src)
	}
	entries, _ := os.ReadDir(cacheDir)
	if len(entries) != 0 {
		t.Fatalf("expected cache dir to be empty, found %d entries", len(entries))
	}
}

func TestSubmitSourcesAbortsWhenCacheUnavailable(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	converter := &fakeConverter{}
	session, err := pipeline.NewSession(pipeline.Config{
		Converter:   converter,
		Retriever:   retrieval.New(retrieval.Config{CacheDir: filepath.Join(blocker, "cache")}),
		Distributor: distribution.New(distribution.Config{Lister: staticLister{}}),
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	report, err := session.SubmitSources(context.Background(), []pipeline.SourceReference{{URL: "https://src/1"}})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if converter.calls.Load() != 0 {
		t.Fatal("expected no conversion calls after abort")
	}
	if report.Sources[0].Status != pipeline.SourceFailed {
		t.Fatalf("expected source marked failed, got %+v", report.Sources[0])
	}
}

func TestSubmitSourcesReportsProgress(t *testing.T) {
	assets := newAssetServer(t)
	converter := &fakeConverter{replies: map[string]conversion.Response{
		"https://src/1": redirect(assets.URL+"/one.mp4", "one.mp4"),
	}}
	var events atomic.Int32
	session, err := pipeline.NewSession(pipeline.Config{
		Converter:   converter,
		Retriever:   retrieval.New(retrieval.Config{CacheDir: t.TempDir()}),
		Distributor: distribution.New(distribution.Config{Lister: staticLister{}}),
		OnProgress: func(ev pipeline.ProgressEvent) {
			if ev.SourceIndex == 0 && ev.Progress.Loaded > 0 {
				events.Add(1)
			}
		},
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	report, err := session.SubmitSources(context.Background(), []pipeline.SourceReference{{URL: "https://src/1"}})
	if err != nil {
		t.Fatalf("SubmitSources: %v", err)
	}
	if events.Load() == 0 {
		t.Fatal("expected at least the final progress event")
	}
	if src := report.Sources[0]; src.Status != pipeline.SourceFailed || !strings.HasPrefix(src.Reason, "NoDestinations") {
		t.Fatalf("expected no-destination failure, got %+v", src)
	}
}

func TestNewSessionValidatesDependencies(t *testing.T) {
	if _, err := pipeline.NewSession(pipeline.Config{}); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
	_, err := pipeline.NewSession(pipeline.Config{
		Converter:   &fakeConverter{},
		Retriever:   retrieval.New(retrieval.Config{CacheDir: t.TempDir()}),
		Distributor: distribution.New(distribution.Config{}),
		Mode:        "video",
	})
	if !errors.Is(err, services.ErrInvalidArgument) {
		t.Fatalf("expected invalid mode error, got %v", err)
	}
}
