package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeConversion()
	c.normalizeRetrieval()
	c.normalizeRemediation()
	c.normalizeDistribution()
	c.normalizeIntake()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		c.Paths.CacheDir = defaultCacheDir
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeConversion() {
	c.Conversion.APIURL = strings.TrimSpace(c.Conversion.APIURL)
	if c.Conversion.APIURL == "" {
		if value, ok := os.LookupEnv("COBALT_API_URL"); ok {
			c.Conversion.APIURL = strings.TrimSpace(value)
		}
	}
	c.Conversion.APIKey = strings.TrimSpace(c.Conversion.APIKey)
	if c.Conversion.APIKey == "" {
		if value, ok := os.LookupEnv("COBALT_API_KEY"); ok {
			c.Conversion.APIKey = strings.TrimSpace(value)
		}
	}
	c.Conversion.Mode = strings.ToLower(strings.TrimSpace(c.Conversion.Mode))
	if c.Conversion.Mode == "" {
		c.Conversion.Mode = defaultConversionMode
	}
	c.Conversion.VideoQuality = strings.ToLower(strings.TrimSpace(c.Conversion.VideoQuality))
	if c.Conversion.VideoQuality == "" {
		c.Conversion.VideoQuality = defaultVideoQuality
	}
	c.Conversion.AudioBitrate = strings.TrimSpace(c.Conversion.AudioBitrate)
	if c.Conversion.AudioBitrate == "" {
		c.Conversion.AudioBitrate = defaultAudioBitrate
	}
	if c.Conversion.RequestTimeout <= 0 {
		c.Conversion.RequestTimeout = defaultConversionTimeout
	}
}

func (c *Config) normalizeRetrieval() {
	if c.Retrieval.Timeout <= 0 {
		c.Retrieval.Timeout = defaultRetrievalTimeout
	}
	if c.Retrieval.ProgressIntervalMS <= 0 {
		c.Retrieval.ProgressIntervalMS = defaultProgressIntervalMS
	}
}

func (c *Config) normalizeRemediation() {
	c.Remediation.FFmpegBinary = strings.TrimSpace(c.Remediation.FFmpegBinary)
	if c.Remediation.FFmpegBinary == "" {
		c.Remediation.FFmpegBinary = defaultFFmpegBinary
	}
	if c.Remediation.Timeout <= 0 {
		c.Remediation.Timeout = defaultRemediationTimeout
	}
}

func (c *Config) normalizeDistribution() {
	c.Distribution.WebhookBaseURL = strings.TrimRight(strings.TrimSpace(c.Distribution.WebhookBaseURL), "/")
	if c.Distribution.WebhookBaseURL == "" {
		c.Distribution.WebhookBaseURL = defaultWebhookBaseURL
	}
	c.Distribution.DefaultUsername = strings.TrimSpace(c.Distribution.DefaultUsername)
	if c.Distribution.DefaultUsername == "" {
		c.Distribution.DefaultUsername = defaultDistributionUsername
	}
	c.Distribution.DefaultAvatarURL = strings.TrimSpace(c.Distribution.DefaultAvatarURL)
	if c.Distribution.DefaultAvatarURL == "" {
		c.Distribution.DefaultAvatarURL = defaultDistributionAvatarURL
	}
	if c.Distribution.RequestTimeout <= 0 {
		c.Distribution.RequestTimeout = defaultDistributionTimeout
	}
	if c.Distribution.MaxParallel <= 0 {
		c.Distribution.MaxParallel = defaultDistributionMaxParallel
	}
}

func (c *Config) normalizeIntake() {
	c.Intake.RedisAddr = strings.TrimSpace(c.Intake.RedisAddr)
	if c.Intake.RedisAddr == "" {
		if value, ok := os.LookupEnv("REDIS_ADDR"); ok {
			c.Intake.RedisAddr = strings.TrimSpace(value)
		}
	}
	if c.Intake.RedisPassword == "" {
		if value, ok := os.LookupEnv("REDIS_PASSWORD"); ok {
			c.Intake.RedisPassword = value
		}
	}
	c.Intake.Stream = strings.TrimSpace(c.Intake.Stream)
	if c.Intake.Stream == "" {
		c.Intake.Stream = defaultIntakeStream
	}
	if c.Intake.MaxLen < 0 {
		c.Intake.MaxLen = 0
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotificationsTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
