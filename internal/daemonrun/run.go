package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"mediarelay/internal/config"
	"mediarelay/internal/daemon"
	"mediarelay/internal/deps"
	"mediarelay/internal/intake"
	"mediarelay/internal/logging"
	"mediarelay/internal/preflight"
	"mediarelay/internal/relay"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the mediarelay daemon runtime loop and blocks until SIGINT or
// SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if !cfg.IntakeEnabled() {
		return errors.New("intake.redis_addr is required to run the daemon")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("mediarelayd-%s.log", runID))
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
		SessionID:        uuid.NewString(),
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update mediarelayd.log link: %v\n", err)
	}

	pidPath := filepath.Join(cfg.Paths.DataDir, "mediarelayd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	client := intake.NewClient(cfg)
	defer client.Close()

	logDependencySnapshot(logger, cfg)
	for _, result := range preflight.Failed(preflight.RunAll(signalCtx, cfg, client)) {
		logger.Warn("preflight check failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldEventType, "preflight_failed"),
			logging.String(logging.FieldErrorHint, "run 'mediarelay status' for the full check list"),
			logging.String(logging.FieldImpact, "batches may fail until the dependency is available"),
		)
	}

	r, err := relay.New(cfg, logger, relay.Options{})
	if err != nil {
		logger.Error("assemble relay", logging.Error(err))
		return err
	}
	defer r.Close()

	consumer := intake.NewConsumer(client, cfg.Intake.Stream, logger)
	d, err := daemon.New(cfg, r.Session, consumer, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return err
	}

	<-signalCtx.Done()
	logger.Info("mediarelay daemon shutting down")
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "mediarelayd.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("conversion_api", cfg.Conversion.APIURL),
		logging.Bool("conversion_key_present", strings.TrimSpace(cfg.Conversion.APIKey) != ""),
		logging.Bool("remediation_enabled", cfg.Remediation.Enabled),
		logging.String("intake_stream", cfg.Intake.Stream),
		logging.Bool("ntfy_enabled", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
	)
	for _, status := range deps.Check(deps.RemediationRequirements(cfg.Remediation.FFmpegBinary, cfg.Remediation.Enabled)) {
		if status.Available {
			logger.Info("external tool available",
				logging.String(logging.FieldEventType, "dependency_tool"),
				logging.String("tool", status.Name),
				logging.String("path", status.Path),
			)
			continue
		}
		log := logger.Warn
		if status.Optional {
			log = logger.Info
		}
		log("external tool unavailable",
			logging.String(logging.FieldEventType, "dependency_tool"),
			logging.String("tool", status.Name),
			logging.Bool("optional", status.Optional),
			logging.String("detail", status.Detail),
			logging.String(logging.FieldImpact, status.Description),
		)
	}
}
