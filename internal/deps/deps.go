package deps

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Requirement names an external tool the remediation stage shells out to.
// Optional tools only degrade remediation; a missing required tool means
// artifacts that need a remux cannot be delivered.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is the outcome of resolving a Requirement on this host. Path holds
// the executable that will actually run; Detail explains why it is missing.
type Status struct {
	Requirement
	Path      string
	Available bool
	Detail    string
}

// RemediationRequirements lists the tools the remediator invokes. ffmpeg is
// only optional when remediation is disabled, since artifacts are then
// delivered as retrieved.
func RemediationRequirements(ffmpegBinary string, remediationEnabled bool) []Requirement {
	return []Requirement{ffmpegRequirement(ffmpegBinary, !remediationEnabled)}
}

// Check resolves every requirement in order.
func Check(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		results = append(results, Resolve(req))
	}
	return results
}

// Resolve locates the command of req. A command containing a path separator
// must point at an executable file; a bare name is looked up on PATH.
func Resolve(req Requirement) Status {
	req.Command = strings.TrimSpace(req.Command)
	req.Description = strings.TrimSpace(req.Description)
	status := Status{Requirement: req}
	if req.Command == "" {
		status.Detail = "command not configured"
		return status
	}

	if strings.ContainsRune(req.Command, os.PathSeparator) {
		info, err := os.Stat(req.Command)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", req.Command)
			return status
		}
		if !isExecutable(info) {
			status.Detail = fmt.Sprintf("%q is not executable", req.Command)
			return status
		}
		status.Path = req.Command
		status.Available = true
		return status
	}

	resolved, err := exec.LookPath(req.Command)
	if err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", req.Command)
		return status
	}
	status.Path = resolved
	status.Available = true
	return status
}

func isExecutable(info os.FileInfo) bool {
	if info == nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
