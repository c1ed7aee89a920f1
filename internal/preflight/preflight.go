package preflight

import (
	"context"

	"mediarelay/internal/config"
	"mediarelay/internal/intake"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// RunAll executes all applicable preflight checks for the given config.
// redis may be nil when intake is not configured.
func RunAll(ctx context.Context, cfg *config.Config, redis intake.StreamClient) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Cache directory", cfg.Paths.CacheDir),
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckConversionService(ctx, cfg.Conversion.APIURL, cfg.Conversion.APIKey),
	}

	if cfg.Remediation.Enabled {
		results = append(results, checkFFmpeg(cfg.Remediation.FFmpegBinary))
	}
	if cfg.IntakeEnabled() {
		results = append(results, CheckRedis(ctx, redis))
	}
	return results
}

// Failed returns the checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
