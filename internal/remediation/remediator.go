package remediation

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"mediarelay/internal/logging"
	"mediarelay/internal/services"
)

// Remediator rewrites a cached file into a deliverable format and returns the
// path of the result, which may differ from the input.
type Remediator interface {
	Remediate(ctx context.Context, path string) (string, error)
}

var _ Remediator = (*FFmpeg)(nil)

type commandRunner func(ctx context.Context, name string, args ...string) error

// Passthrough returns every path unchanged.
type Passthrough struct{}

// Remediate implements Remediator.
func (Passthrough) Remediate(_ context.Context, path string) (string, error) {
	return path, nil
}

// FFmpeg remediates files by shelling out to ffmpeg.
type FFmpeg struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
	run     commandRunner
}

// NewFFmpeg constructs an ffmpeg-backed remediator. An empty binary defaults
// to "ffmpeg" on PATH; a zero timeout disables the per-invocation deadline.
func NewFFmpeg(binary string, timeout time.Duration, logger *slog.Logger) *FFmpeg {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpeg{
		binary:  binary,
		timeout: timeout,
		logger:  logging.NewComponentLogger(logger, "remediation"),
		run:     defaultCommandRunner,
	}
}

// WithCommandRunner allows injecting a custom command runner for tests.
func (f *FFmpeg) WithCommandRunner(r commandRunner) {
	if f != nil && r != nil {
		f.run = r
	}
}

// Remediate implements Remediator.
func (f *FFmpeg) Remediate(ctx context.Context, path string) (string, error) {
	if f == nil {
		return "", services.Wrap(services.ErrRemediation, "remediation", "init", "remediator not initialized", nil)
	}
	if strings.TrimSpace(path) == "" {
		return "", services.Wrap(services.ErrInvalidArgument, "remediation", "validate", "path is required", nil)
	}
	if _, err := os.Stat(path); err != nil {
		return "", services.Wrap(services.ErrRemediation, "remediation", "stat", path, err)
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	switch classify(path) {
	case kindImage:
		return path, nil
	case kindHEIC:
		return f.convertHEIC(ctx, path)
	default:
		return f.remux(ctx, path)
	}
}

func (f *FFmpeg) convertHEIC(ctx context.Context, path string) (string, error) {
	output := strings.TrimSuffix(path, filepath.Ext(path)) + ".jpg"
	logger := logging.WithContext(ctx, f.logger)
	logger.Debug("converting heic to jpeg", logging.String("input", path), logging.String("output", output))

	if err := f.run(ctx, f.binary, "-hide_banner", "-loglevel", "error", "-i", path, "-y", output); err != nil {
		_ = os.Remove(output)
		return "", services.Wrap(services.ErrRemediation, "remediation", "heic to jpeg", filepath.Base(path), err)
	}
	if _, err := os.Stat(output); err != nil {
		return "", services.Wrap(services.ErrRemediation, "remediation", "heic to jpeg", "ffmpeg produced no output", err)
	}
	if err := os.Remove(path); err != nil {
		logging.WarnWithContext(logger, "failed to remove heic original", "remediation_cleanup_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "original file left in cache directory"),
		)
	}
	return output, nil
}

func (f *FFmpeg) remux(ctx context.Context, path string) (string, error) {
	ext := filepath.Ext(path)
	tmpPath := path + ".fixed" + ext
	logger := logging.WithContext(ctx, f.logger)
	logger.Debug("remuxing container", logging.String("input", path))

	if err := f.run(ctx, f.binary, "-hide_banner", "-loglevel", "error", "-i", path, "-c", "copy", "-y", tmpPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", services.Wrap(services.ErrRemediation, "remediation", "remux", filepath.Base(path), err)
	}
	if _, err := os.Stat(tmpPath); err != nil {
		return "", services.Wrap(services.ErrRemediation, "remediation", "remux", "ffmpeg produced no output", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return "", services.Wrap(services.ErrRemediation, "remediation", "remux", "replace original", err)
	}
	return path, nil
}

type fileKind int

const (
	kindOther fileKind = iota
	kindImage
	kindHEIC
)

func classify(path string) fileKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".webp":
		return kindImage
	case ".heic":
		return kindHEIC
	default:
		return kindOther
	}
}

// defaultCommandRunner executes ffmpeg and folds its output into the error.
func defaultCommandRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}
