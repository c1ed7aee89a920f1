package retrieval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mediarelay/internal/logging"
	"mediarelay/internal/services"
)

const maxNameAttempts = 8

// Target is a single asset to download.
type Target struct {
	URL    string
	Naming Naming
	// SuggestedName is the file name proposed by the conversion service.
	SuggestedName string
	// RequestID is shared by every asset of one source.
	RequestID string
}

// Options tunes a single retrieval.
type Options struct {
	// OnProgress, when set, is called on the progress cadence while the body
	// is streaming and once more after a successful copy.
	OnProgress func(Progress)
}

// Artifact is a fully written file in the cache directory.
type Artifact struct {
	Path      string
	RequestID string
	AssetURL  string
	Bytes     int64
}

// Config describes retriever dependencies.
type Config struct {
	CacheDir         string
	HTTPClient       *http.Client
	Timeout          time.Duration
	ProgressInterval time.Duration
	Logger           *slog.Logger
	// NewID draws the uniqueness suffix for a file name. Defaults to NewRequestID.
	NewID func() string
}

// Retriever downloads assets into a shared cache directory. It is safe for
// concurrent use; name reservation is the only coordination between calls.
type Retriever struct {
	cacheDir string
	http     *http.Client
	timeout  time.Duration
	interval time.Duration
	logger   *slog.Logger
	newID    func() string
}

// New constructs a Retriever.
func New(cfg Config) *Retriever {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	interval := cfg.ProgressInterval
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	newID := cfg.NewID
	if newID == nil {
		newID = NewRequestID
	}
	return &Retriever{
		cacheDir: cfg.CacheDir,
		http:     client,
		timeout:  cfg.Timeout,
		interval: interval,
		logger:   logging.NewComponentLogger(cfg.Logger, "retrieval"),
		newID:    newID,
	}
}

// CacheDir returns the directory artifacts are written to.
func (r *Retriever) CacheDir() string {
	return r.cacheDir
}

// EnsureCacheDir creates the cache directory if it does not exist.
func (r *Retriever) EnsureCacheDir() error {
	if strings.TrimSpace(r.cacheDir) == "" {
		return services.Wrap(services.ErrConfiguration, "retrieval", "cache dir", "cache directory not configured", nil)
	}
	if err := os.MkdirAll(r.cacheDir, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "retrieval", "cache dir", r.cacheDir, err)
	}
	return nil
}

// Retrieve streams target into the cache directory.
func (r *Retriever) Retrieve(ctx context.Context, target Target, opts Options) (Artifact, error) {
	if strings.TrimSpace(target.URL) == "" {
		return Artifact{}, services.Wrap(services.ErrInvalidArgument, "retrieval", "validate", "asset url is required", nil)
	}
	if err := r.EnsureCacheDir(); err != nil {
		return Artifact{}, services.Wrap(services.ErrTransfer, "retrieval", "prepare", "", err)
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	logger := logging.WithContext(ctx, r.logger)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL, nil)
	if err != nil {
		return Artifact{}, services.Wrap(services.ErrTransfer, "retrieval", "build request", "", err)
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return Artifact{}, services.Wrap(services.ErrTransfer, "retrieval", "request", "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Artifact{}, services.Wrap(services.ErrTransfer, "retrieval", "request", fmt.Sprintf("unexpected status %s", resp.Status), nil)
	}

	file, path, err := r.reserve(target, dispositionFileName(resp.Header.Get("Content-Disposition")), resp.Header.Get("Content-Type"))
	if err != nil {
		return Artifact{}, err
	}

	written, err := r.copyBody(file, resp, opts)
	closeErr := file.Close()
	if err == nil && closeErr != nil {
		err = services.Wrap(services.ErrTransfer, "retrieval", "close", path, closeErr)
	}
	if err != nil {
		if removeErr := os.Remove(path); removeErr != nil && !errors.Is(removeErr, fs.ErrNotExist) {
			logging.WarnWithContext(logger, "failed to remove partial download", "retrieval_cleanup_failed",
				logging.String("path", path),
				logging.Error(removeErr),
				logging.String(logging.FieldImpact, "partial file left in cache directory"),
				logging.String(logging.FieldErrorHint, "remove the file manually"),
			)
		}
		return Artifact{}, err
	}

	logger.Debug("asset saved",
		logging.String("path", path),
		logging.Int64("size_bytes", written),
	)
	return Artifact{Path: path, RequestID: target.RequestID, AssetURL: target.URL, Bytes: written}, nil
}

// reserve creates the destination file exclusively, drawing a new suffix
// whenever the name is already taken.
func (r *Retriever) reserve(target Target, dispositionName, contentType string) (*os.File, string, error) {
	uniqueID := r.newID()
	if target.Naming == NameSingle && strings.TrimSpace(target.RequestID) != "" {
		uniqueID = target.RequestID
	}
	var lastErr error
	for range maxNameAttempts {
		path := filepath.Join(r.cacheDir, fileName(target, dispositionName, contentType, uniqueID))
		file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			return file, path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", services.Wrap(services.ErrTransfer, "retrieval", "create file", path, err)
		}
		lastErr = err
		uniqueID = r.newID()
	}
	return nil, "", services.Wrap(services.ErrTransfer, "retrieval", "create file", "no free file name", lastErr)
}

func (r *Retriever) copyBody(file *os.File, resp *http.Response, opts Options) (int64, error) {
	counter := &countingWriter{}
	ticker := startProgressTicker(r.interval, resp.ContentLength, counter, opts.OnProgress)
	written, err := io.Copy(io.MultiWriter(file, counter), resp.Body)
	ticker.stop()
	if err != nil {
		return written, services.Wrap(services.ErrTransfer, "retrieval", "stream body", "", err)
	}
	if resp.ContentLength >= 0 && written != resp.ContentLength {
		return written, services.Wrap(services.ErrTransfer, "retrieval", "stream body",
			fmt.Sprintf("short body: got %d of %d bytes", written, resp.ContentLength), nil)
	}
	if opts.OnProgress != nil {
		opts.OnProgress(Progress{Loaded: written, Total: resp.ContentLength, Rate: 0})
	}
	return written, nil
}
