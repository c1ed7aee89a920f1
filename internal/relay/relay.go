package relay

import (
	"errors"
	"fmt"
	"log/slog"

	"mediarelay/internal/config"
	"mediarelay/internal/conversion"
	"mediarelay/internal/distribution"
	"mediarelay/internal/notifications"
	"mediarelay/internal/pipeline"
	"mediarelay/internal/registry"
	"mediarelay/internal/remediation"
	"mediarelay/internal/retrieval"
)

// Options tunes assembly for a particular entry point.
type Options struct {
	// OnProgress forwards retrieval progress, e.g. to a terminal renderer.
	OnProgress func(pipeline.ProgressEvent)
	// Notifier overrides the configured notification service.
	Notifier notifications.Service
}

// Relay owns the long-lived resources behind a pipeline session.
type Relay struct {
	Session  *pipeline.Session
	Registry *registry.Store
	Notifier notifications.Service
}

// New builds a Relay from cfg. The caller must Close it.
func New(cfg *config.Config, logger *slog.Logger, opts Options) (*Relay, error) {
	if cfg == nil {
		return nil, errors.New("relay: config is required")
	}
	if err := cfg.RequireConversion(); err != nil {
		return nil, err
	}

	converter, err := conversion.New(conversion.Config{
		APIURL:       cfg.Conversion.APIURL,
		APIKey:       cfg.Conversion.APIKey,
		VideoQuality: cfg.Conversion.VideoQuality,
		AudioBitrate: cfg.Conversion.AudioBitrate,
		Timeout:      cfg.ConversionTimeout(),
	})
	if err != nil {
		return nil, err
	}

	store, err := registry.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open destination registry: %w", err)
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	var remediator remediation.Remediator = remediation.Passthrough{}
	if cfg.Remediation.Enabled {
		remediator = remediation.NewFFmpeg(cfg.Remediation.FFmpegBinary, cfg.RemediationTimeout(), logger)
	}

	distributor := distribution.New(distribution.Config{
		Lister: store,
		Deliverer: distribution.NewWebhook(distribution.WebhookConfig{
			BaseURL:          cfg.Distribution.WebhookBaseURL,
			DefaultUsername:  cfg.Distribution.DefaultUsername,
			DefaultAvatarURL: cfg.Distribution.DefaultAvatarURL,
			Timeout:          cfg.DeliveryTimeout(),
		}),
		MaxParallel: cfg.Distribution.MaxParallel,
		Logger:      logger,
	})

	session, err := pipeline.NewSession(pipeline.Config{
		Converter: converter,
		Retriever: retrieval.New(retrieval.Config{
			CacheDir:         cfg.Paths.CacheDir,
			Timeout:          cfg.RetrievalTimeout(),
			ProgressInterval: cfg.ProgressInterval(),
			Logger:           logger,
		}),
		Remediator:      remediator,
		Distributor:     distributor,
		Notifier:        notifier,
		Logger:          logger,
		Mode:            conversion.Mode(cfg.Conversion.Mode),
		VideoQuality:    cfg.Conversion.VideoQuality,
		AudioBitrate:    cfg.Conversion.AudioBitrate,
		TikTokFullAudio: cfg.Conversion.TikTokFullAudio,
		TikTokH265:      cfg.Conversion.TikTokH265,
		OnProgress:      opts.OnProgress,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &Relay{Session: session, Registry: store, Notifier: notifier}, nil
}

// Close releases the registry connection.
func (r *Relay) Close() error {
	if r == nil {
		return nil
	}
	return r.Registry.Close()
}
