package deps

import "strings"

const defaultFFmpeg = "ffmpeg"

func ffmpegRequirement(configured string, optional bool) Requirement {
	binary := strings.TrimSpace(configured)
	if binary == "" {
		binary = defaultFFmpeg
	}
	return Requirement{
		Name:        "FFmpeg",
		Command:     binary,
		Description: "Remuxes retrieved media into Discord-playable containers",
		Optional:    optional,
	}
}

// ResolveFFmpeg reports the ffmpeg binary the remediator will execute,
// falling back to "ffmpeg" on PATH when nothing is configured.
func ResolveFFmpeg(configured string) Status {
	return Resolve(ffmpegRequirement(configured, false))
}
