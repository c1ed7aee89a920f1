package daemon_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mediarelay/internal/daemon"
	"mediarelay/internal/intake"
	"mediarelay/internal/pipeline"
	"mediarelay/internal/testsupport"
)

type fakeSubmitter struct {
	mu      sync.Mutex
	batches [][]pipeline.SourceReference
	err     error
}

func (f *fakeSubmitter) SubmitSources(_ context.Context, sources []pipeline.SourceReference) (pipeline.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, sources)
	if f.err != nil {
		return pipeline.Report{}, f.err
	}
	report := pipeline.Report{BatchID: "batch"}
	for i, src := range sources {
		report.Sources = append(report.Sources, pipeline.SourceReport{Index: i, Source: src, Status: pipeline.SourceDistributed, DuplicateOf: -1})
	}
	return report, nil
}

// fakeSource hands each envelope to the handler, then blocks until cancelled.
type fakeSource struct {
	envelopes []intake.Envelope
	handled   chan struct{}
}

func (f *fakeSource) Run(ctx context.Context, handle intake.Handler) error {
	for _, env := range f.envelopes {
		_ = handle(ctx, env)
	}
	close(f.handled)
	<-ctx.Done()
	return ctx.Err()
}

func TestDaemonProcessesEnvelopes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	submitter := &fakeSubmitter{}
	source := &fakeSource{
		handled: make(chan struct{}),
		envelopes: []intake.Envelope{
			{ID: "1-0", Sources: []pipeline.SourceReference{{URL: "https://a.example/1"}, {URL: "https://a.example/2"}}},
			{ID: "2-0", Sources: []pipeline.SourceReference{{URL: "https://b.example/1"}}},
		},
	}

	d, err := daemon.New(cfg, submitter, source, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-source.handled:
	case <-time.After(5 * time.Second):
		t.Fatal("envelopes were not handled")
	}

	status := d.Status()
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.Batches != 2 || status.Distributed != 3 {
		t.Fatalf("unexpected tallies: %+v", status)
	}
	if status.LockFilePath != cfg.LockPath() {
		t.Fatalf("lock path = %q", status.LockFilePath)
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if d.Status().Running {
		t.Fatal("expected daemon stopped after Close")
	}
	if len(submitter.batches) != 2 || len(submitter.batches[0]) != 2 {
		t.Fatalf("unexpected submissions: %+v", submitter.batches)
	}
}

func TestDaemonRecordsBatchErrors(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	submitter := &fakeSubmitter{err: errors.New("configuration error: cache unavailable")}
	source := &fakeSource{
		handled:   make(chan struct{}),
		envelopes: []intake.Envelope{{ID: "1-0", Sources: []pipeline.SourceReference{{URL: "https://a.example/1"}}}},
	}
	d, err := daemon.New(cfg, submitter, source, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Close()
	<-source.handled

	status := d.Status()
	if status.Batches != 1 || status.LastError == "" {
		t.Fatalf("expected recorded error, got %+v", status)
	}
}

func TestDaemonSingleInstanceLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	newDaemon := func() *daemon.Daemon {
		d, err := daemon.New(cfg, &fakeSubmitter{}, &fakeSource{handled: make(chan struct{})}, nil)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		return d
	}

	first := newDaemon()
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	held, err := daemon.LockHeld(cfg.LockPath())
	if err != nil {
		t.Fatalf("LockHeld: %v", err)
	}
	if !held {
		t.Fatal("expected lock to be held while the first daemon runs")
	}

	second := newDaemon()
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("expected second daemon to fail acquiring the lock")
	}

	first.Stop()
	held, err = daemon.LockHeld(cfg.LockPath())
	if err != nil {
		t.Fatalf("LockHeld: %v", err)
	}
	if held {
		t.Fatal("expected lock released after Stop")
	}
	if err := second.Start(context.Background()); err != nil {
		t.Fatalf("second Start after release: %v", err)
	}
	second.Stop()
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := daemon.New(testsupport.NewConfig(t), nil, &fakeSource{}, nil); err == nil {
		t.Fatal("expected error without submitter")
	}
}
