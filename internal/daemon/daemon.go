package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"mediarelay/internal/config"
	"mediarelay/internal/intake"
	"mediarelay/internal/logging"
	"mediarelay/internal/pipeline"
)

// Submitter runs one batch of sources.
type Submitter interface {
	SubmitSources(ctx context.Context, sources []pipeline.SourceReference) (pipeline.Report, error)
}

// Source delivers intake envelopes until ctx is cancelled.
type Source interface {
	Run(ctx context.Context, handle intake.Handler) error
}

// Daemon consumes intake envelopes and enforces single-instance execution.
type Daemon struct {
	logger    *slog.Logger
	submitter Submitter
	source    Source
	stream    string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}

	mu          sync.Mutex
	batches     int
	distributed int
	failed      int
	lastBatch   time.Time
	lastErr     string
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool      `json:"running"`
	LockFilePath string    `json:"lock_file"`
	Stream       string    `json:"stream"`
	Batches      int       `json:"batches"`
	Distributed  int       `json:"distributed"`
	Failed       int       `json:"failed"`
	LastBatchAt  time.Time `json:"last_batch_at,omitzero"`
	LastError    string    `json:"last_error,omitempty"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, submitter Submitter, source Source, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || submitter == nil || source == nil {
		return nil, errors.New("daemon requires config, submitter, and intake source")
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		logger:    logging.NewComponentLogger(logger, "daemon"),
		submitter: submitter,
		source:    source,
		stream:    cfg.Intake.Stream,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and begins consuming the intake stream.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another mediarelay daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	d.running.Store(true)

	go func() {
		defer close(d.done)
		if err := d.source.Run(runCtx, d.handle); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("intake consumer stopped", logging.Error(err))
		}
	}()

	d.logger.Info("mediarelay daemon started",
		logging.String("lock", d.lockPath),
		logging.String("stream", d.stream),
	)
	return nil
}

// Stop stops consumption, waits for the in-flight batch, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.done != nil {
		<-d.done
		d.done = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("mediarelay daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Status returns the current daemon state.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Status{
		Running:      d.running.Load(),
		LockFilePath: d.lockPath,
		Stream:       d.stream,
		Batches:      d.batches,
		Distributed:  d.distributed,
		Failed:       d.failed,
		LastBatchAt:  d.lastBatch,
		LastError:    d.lastErr,
	}
}

func (d *Daemon) handle(ctx context.Context, env intake.Envelope) error {
	report, err := d.submitter.SubmitSources(ctx, env.Sources)
	distributed, failed, duplicate := report.Counts()

	d.mu.Lock()
	d.batches++
	d.distributed += distributed
	d.failed += failed
	d.lastBatch = time.Now()
	if err != nil {
		d.lastErr = err.Error()
	}
	d.mu.Unlock()

	logger := logging.WithContext(ctx, d.logger)
	if err != nil {
		logger.Error("batch aborted",
			logging.String("envelope_id", env.ID),
			logging.Error(err),
		)
		return err
	}
	logger.Info("batch processed",
		logging.String("envelope_id", env.ID),
		logging.String("batch_id", report.BatchID),
		logging.Int("distributed", distributed),
		logging.Int("failed", failed),
		logging.Int("duplicate", duplicate),
		logging.Duration("duration", report.Duration()),
	)
	return nil
}

// LockHeld reports whether another process currently holds the daemon lock at
// path.
func LockHeld(path string) (bool, error) {
	probe := flock.New(path)
	ok, err := probe.TryLock()
	if err != nil {
		return false, err
	}
	if ok {
		_ = probe.Unlock()
		return false, nil
	}
	return true, nil
}
