package config

const (
	defaultCacheDir                = "~/.cache/mediarelay"
	defaultDataDir                 = "~/.local/share/mediarelay"
	defaultLogDir                  = "~/.local/share/mediarelay/logs"
	defaultConversionMode          = "auto"
	defaultVideoQuality            = "1080"
	defaultAudioBitrate            = "320"
	defaultConversionTimeout       = 60
	defaultRetrievalTimeout        = 900
	defaultProgressIntervalMS      = 1500
	defaultFFmpegBinary            = "ffmpeg"
	defaultRemediationTimeout      = 300
	defaultWebhookBaseURL          = "https://discord.com/api"
	defaultDistributionUsername    = "Message Forwarder"
	defaultDistributionAvatarURL   = "https://img.freepik.com/premium-vector/default-avatar-profile-icon-social-media-user-image-gray-avatar-icon-blank-profile-silhouette-vector-illustration_561158-3485.jpg"
	defaultDistributionTimeout     = 120
	defaultDistributionMaxParallel = 4
	defaultIntakeStream            = "mediarelay:sources"
	defaultIntakeMaxLen            = 1000
	defaultNotificationsTimeout    = 10
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			CacheDir: defaultCacheDir,
			DataDir:  defaultDataDir,
			LogDir:   defaultLogDir,
		},
		Conversion: Conversion{
			Mode:           defaultConversionMode,
			VideoQuality:   defaultVideoQuality,
			AudioBitrate:   defaultAudioBitrate,
			RequestTimeout: defaultConversionTimeout,
		},
		Retrieval: Retrieval{
			Timeout:            defaultRetrievalTimeout,
			ProgressIntervalMS: defaultProgressIntervalMS,
		},
		Remediation: Remediation{
			Enabled:      true,
			FFmpegBinary: defaultFFmpegBinary,
			Timeout:      defaultRemediationTimeout,
		},
		Distribution: Distribution{
			WebhookBaseURL:   defaultWebhookBaseURL,
			DefaultUsername:  defaultDistributionUsername,
			DefaultAvatarURL: defaultDistributionAvatarURL,
			RequestTimeout:   defaultDistributionTimeout,
			MaxParallel:      defaultDistributionMaxParallel,
		},
		Intake: Intake{
			Stream: defaultIntakeStream,
			MaxLen: defaultIntakeMaxLen,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotificationsTimeout,
			BatchSummary:   true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
