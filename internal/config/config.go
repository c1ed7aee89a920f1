package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	CacheDir string `toml:"cache_dir"`
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
}

// Conversion contains configuration for the Cobalt-compatible conversion service.
type Conversion struct {
	APIURL          string `toml:"api_url"`
	APIKey          string `toml:"api_key"`
	Mode            string `toml:"mode"`
	VideoQuality    string `toml:"video_quality"`
	AudioBitrate    string `toml:"audio_bitrate"`
	TikTokFullAudio bool   `toml:"tiktok_full_audio"`
	TikTokH265      bool   `toml:"tiktok_h265"`
	RequestTimeout  int    `toml:"request_timeout"`
}

// Retrieval contains configuration for asset downloads.
type Retrieval struct {
	Timeout            int `toml:"timeout"`
	ProgressIntervalMS int `toml:"progress_interval_ms"`
}

// Remediation contains configuration for ffmpeg container fixes.
type Remediation struct {
	Enabled      bool   `toml:"enabled"`
	FFmpegBinary string `toml:"ffmpeg_binary"`
	Timeout      int    `toml:"timeout"`
}

// Distribution contains configuration for webhook delivery.
type Distribution struct {
	WebhookBaseURL   string `toml:"webhook_base_url"`
	DefaultUsername  string `toml:"default_username"`
	DefaultAvatarURL string `toml:"default_avatar_url"`
	RequestTimeout   int    `toml:"request_timeout"`
	MaxParallel      int    `toml:"max_parallel"`
}

// Intake contains configuration for the Redis stream that carries submitted sources.
type Intake struct {
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	Stream        string `toml:"stream"`
	MaxLen        int    `toml:"max_len"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	BatchSummary   bool   `toml:"batch_summary"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for mediarelay.
//
// Configuration sections by subsystem:
//   - Paths: cache, data (registry database, daemon lock), and log directories
//   - Conversion: conversion service endpoint, credentials, and quality defaults
//   - Retrieval: download timeout and progress cadence
//   - Remediation: ffmpeg container fixes
//   - Distribution: webhook delivery and default sender identity
//   - Intake: Redis stream used by discovery collaborators
//   - Notifications: ntfy batch summaries
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Conversion    Conversion    `toml:"conversion"`
	Retrieval     Retrieval     `toml:"retrieval"`
	Remediation   Remediation   `toml:"remediation"`
	Distribution  Distribution  `toml:"distribution"`
	Intake        Intake        `toml:"intake"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/mediarelay/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("mediarelay.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for pipeline operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.CacheDir, c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RegistryPath returns the SQLite database holding registered destinations.
func (c *Config) RegistryPath() string {
	return filepath.Join(c.Paths.DataDir, "destinations.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "mediarelayd.lock")
}

// ConversionTimeout returns the per-request timeout for the conversion service.
func (c *Config) ConversionTimeout() time.Duration {
	return seconds(c.Conversion.RequestTimeout)
}

// RetrievalTimeout returns the upper bound for a single asset download.
func (c *Config) RetrievalTimeout() time.Duration {
	return seconds(c.Retrieval.Timeout)
}

// ProgressInterval returns the cadence of download progress reports.
func (c *Config) ProgressInterval() time.Duration {
	return time.Duration(c.Retrieval.ProgressIntervalMS) * time.Millisecond
}

// RemediationTimeout returns the upper bound for a single ffmpeg invocation.
func (c *Config) RemediationTimeout() time.Duration {
	return seconds(c.Remediation.Timeout)
}

// DeliveryTimeout returns the per-destination webhook request timeout.
func (c *Config) DeliveryTimeout() time.Duration {
	return seconds(c.Distribution.RequestTimeout)
}

// IntakeEnabled reports whether a Redis intake stream is configured.
func (c *Config) IntakeEnabled() bool {
	return strings.TrimSpace(c.Intake.RedisAddr) != ""
}

func seconds(value int) time.Duration {
	return time.Duration(value) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
