package relay_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"mediarelay/internal/pipeline"
	"mediarelay/internal/relay"
	"mediarelay/internal/services"
	"mediarelay/internal/testsupport"
)

func TestNewRequiresConversionEndpoint(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Conversion.APIURL = ""
	if _, err := relay.New(cfg, nil, relay.Options{}); err == nil {
		t.Fatal("expected error without conversion api_url")
	}
}

// TestEndToEnd drives a batch through real components against local servers
// standing in for the conversion service, the asset host, and the webhook.
func TestEndToEnd(t *testing.T) {
	assets := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("video-bytes"))
	}))
	defer assets.Close()

	cobalt := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		if body["url"] == "https://bad.example/post" {
			_, _ = w.Write([]byte(`{"status":"error","error":{"code":"error.api.link.invalid"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":   "tunnel",
			"url":      assets.URL + "/tunnel?id=1",
			"filename": "clip.mp4",
		})
	}))
	defer cobalt.Close()

	var deliveries atomic.Int32
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/webhooks/") {
			t.Errorf("unexpected webhook path %q", r.URL.Path)
		}
		_, _ = io.Copy(io.Discard, r.Body)
		deliveries.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer webhook.Close()

	cfg := testsupport.NewConfig(t,
		testsupport.WithConversionURL(cobalt.URL),
		testsupport.WithWebhookBaseURL(webhook.URL),
	)

	r, err := relay.New(cfg, nil, relay.Options{})
	if err != nil {
		t.Fatalf("relay.New: %v", err)
	}
	defer r.Close()

	testsupport.AddDestination(t, r.Registry, "c1")
	testsupport.AddDestination(t, r.Registry, "c2")

	ctx := context.Background()

	report, err := r.Session.SubmitSources(ctx, []pipeline.SourceReference{
		{URL: "https://good.example/post", Username: "alice"},
		{URL: "https://bad.example/post", Username: "bob"},
	})
	if err != nil {
		t.Fatalf("SubmitSources: %v", err)
	}
	if got := deliveries.Load(); got != 2 {
		t.Fatalf("expected 2 webhook deliveries, got %d", got)
	}
	if report.Sources[0].Status != pipeline.SourceDistributed {
		t.Fatalf("expected first source distributed, got %+v", report.Sources[0])
	}
	if report.Sources[1].Status != pipeline.SourceFailed || !strings.HasPrefix(report.Sources[1].Reason, services.Reason(services.ErrServiceResponse)) {
		t.Fatalf("expected service error for second source, got %+v", report.Sources[1])
	}
	entries, _ := os.ReadDir(cfg.Paths.CacheDir)
	if len(entries) != 0 {
		t.Fatalf("expected empty cache after batch, found %d files", len(entries))
	}
}
