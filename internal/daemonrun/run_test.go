package daemonrun

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"mediarelay/internal/config"
)

func TestRunRequiresIntake(t *testing.T) {
	cfg := config.Default()
	cfg.Intake.RedisAddr = ""
	if err := Run(context.Background(), &cfg, Options{}); err == nil || !strings.Contains(err.Error(), "redis_addr") {
		t.Fatalf("expected intake error, got %v", err)
	}
}

func TestEnsureCurrentLogPointerReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "mediarelayd-1.log")
	second := filepath.Join(dir, "mediarelayd-2.log")
	for _, path := range []string{first, second} {
		if err := os.WriteFile(path, []byte(filepath.Base(path)), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := ensureCurrentLogPointer(dir, first); err != nil {
		t.Fatalf("first pointer: %v", err)
	}
	if err := ensureCurrentLogPointer(dir, second); err != nil {
		t.Fatalf("second pointer: %v", err)
	}
	content, err := os.ReadFile(filepath.Join(dir, "mediarelayd.log"))
	if err != nil {
		t.Fatalf("read pointer: %v", err)
	}
	if string(content) != "mediarelayd-2.log" {
		t.Fatalf("pointer resolves to %q", content)
	}
}

func TestWritePIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mediarelayd.pid")
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(content)) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("pid file = %q", content)
	}
}
