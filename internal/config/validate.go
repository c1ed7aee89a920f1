package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// Allowed values accepted by the conversion service.
var (
	ConversionModes = []string{"auto", "audio", "mute"}
	VideoQualities  = []string{"144", "240", "360", "480", "720", "1080", "1440", "2160", "4320", "max"}
	AudioBitrates   = []string{"320", "256", "128", "96", "64", "8"}
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateConversion(); err != nil {
		return err
	}
	if err := c.validateDistribution(); err != nil {
		return err
	}
	if err := c.validateTimeouts(); err != nil {
		return err
	}
	return nil
}

// RequireConversion reports whether the conversion service is reachable in
// principle. Commands that only touch the registry skip this check.
func (c *Config) RequireConversion() error {
	if strings.TrimSpace(c.Conversion.APIURL) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/mediarelay/config.toml"
		}
		return fmt.Errorf("conversion.api_url is required. Set COBALT_API_URL env var or edit %s (create with 'mediarelay config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateConversion() error {
	if c.Conversion.APIURL != "" {
		parsed, err := url.Parse(c.Conversion.APIURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("conversion.api_url must be an absolute URL, got %q", c.Conversion.APIURL)
		}
	}
	if !slices.Contains(ConversionModes, c.Conversion.Mode) {
		return fmt.Errorf("conversion.mode must be one of %s", strings.Join(ConversionModes, ", "))
	}
	if !slices.Contains(VideoQualities, c.Conversion.VideoQuality) {
		return fmt.Errorf("conversion.video_quality must be one of %s", strings.Join(VideoQualities, ", "))
	}
	if !slices.Contains(AudioBitrates, c.Conversion.AudioBitrate) {
		return fmt.Errorf("conversion.audio_bitrate must be one of %s", strings.Join(AudioBitrates, ", "))
	}
	return nil
}

func (c *Config) validateDistribution() error {
	parsed, err := url.Parse(c.Distribution.WebhookBaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return errors.New("distribution.webhook_base_url must be an absolute URL")
	}
	return nil
}

func (c *Config) validateTimeouts() error {
	return ensurePositiveMap(map[string]int{
		"conversion.request_timeout":     c.Conversion.RequestTimeout,
		"retrieval.timeout":              c.Retrieval.Timeout,
		"retrieval.progress_interval_ms": c.Retrieval.ProgressIntervalMS,
		"remediation.timeout":            c.Remediation.Timeout,
		"distribution.request_timeout":   c.Distribution.RequestTimeout,
		"distribution.max_parallel":      c.Distribution.MaxParallel,
		"notifications.request_timeout":  c.Notifications.RequestTimeout,
	})
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
