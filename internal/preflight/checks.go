package preflight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"mediarelay/internal/deps"
	"mediarelay/internal/intake"
)

// CheckConversionService verifies that the conversion API answers its info
// endpoint. The key is sent when configured so auth failures surface here.
func CheckConversionService(ctx context.Context, apiURL, apiKey string) Result {
	const name = "Conversion service"

	base := strings.TrimSpace(apiURL)
	if base == "" {
		return Result{Name: name, Detail: "missing api_url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("check failed (%v)", err)}
	}
	req.Header.Set("Accept", "application/json")
	if key := strings.TrimSpace(apiKey); key != "" {
		req.Header.Set("Authorization", "Api-Key "+key)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		detail := "Reachable"
		if version := serviceVersion(resp.Body); version != "" {
			detail = fmt.Sprintf("Reachable (version %s)", version)
		}
		return Result{Name: name, Passed: true, Detail: detail}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Result{Name: name, Detail: "auth failed (invalid api key)"}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("check failed (%d)", resp.StatusCode)}
	}
}

// serviceVersion extracts cobalt.version from the info document, if present.
func serviceVersion(body io.Reader) string {
	var info struct {
		Cobalt struct {
			Version string `json:"version"`
		} `json:"cobalt"`
	}
	if err := json.NewDecoder(io.LimitReader(body, 64<<10)).Decode(&info); err != nil {
		return ""
	}
	return strings.TrimSpace(info.Cobalt.Version)
}

// CheckRedis verifies the intake stream server answers PING.
func CheckRedis(ctx context.Context, client intake.StreamClient) Result {
	const name = "Intake stream"
	if client == nil {
		return Result{Name: name, Detail: "redis client not configured"}
	}
	if err := intake.Ping(ctx, client); err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

func checkFFmpeg(binary string) Result {
	status := deps.ResolveFFmpeg(binary)
	if !status.Available {
		return Result{Name: status.Name, Detail: status.Detail}
	}
	return Result{Name: status.Name, Passed: true, Detail: status.Path}
}

func summarizeNetError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "check timed out (service unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "check timed out (service unreachable)"
	}
	return err.Error()
}
