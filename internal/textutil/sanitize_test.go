package textutil

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "   ", ""},
		{"plain", "clip.mp4", "clip.mp4"},
		{"separators", "a/b\\c:d*e.mp4", "a-b-c-d-e.mp4"},
		{"reserved removed", `what?"<is>|this.jpg`, "whatisthis.jpg"},
		{"control chars", "bad\x00name\n.png", "badname.png"},
		{"hidden", "...secret.txt", "secret.txt"},
		{"decomposed unicode", "cafe\u0301.mp4", "caf\u00e9.mp4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeFileName(tt.in); got != tt.want {
				t.Fatalf("SanitizeFileName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeFileNameTruncatesKeepingExtension(t *testing.T) {
	long := strings.Repeat("é", 300) + ".webm"
	got := SanitizeFileName(long)
	if len(got) > maxFileNameBytes {
		t.Fatalf("expected at most %d bytes, got %d", maxFileNameBytes, len(got))
	}
	if !strings.HasSuffix(got, ".webm") {
		t.Fatalf("expected extension preserved, got %q", got)
	}
	if !utf8.ValidString(got) {
		t.Fatalf("truncation split a rune: %q", got)
	}
}

func TestSanitizeToken(t *testing.T) {
	if got := SanitizeToken("  "); got != "unknown" {
		t.Fatalf("expected unknown, got %q", got)
	}
	if got := SanitizeToken("Hello World!"); got != "hello_world" {
		t.Fatalf("unexpected token %q", got)
	}
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		in, stem, ext string
	}{
		{"clip.mp4", "clip", ".mp4"},
		{"archive.tar.gz", "archive.tar", ".gz"},
		{"noext", "noext", ""},
		{".hidden", ".hidden", ""},
	}
	for _, tt := range tests {
		stem, ext := SplitName(tt.in)
		if stem != tt.stem || ext != tt.ext {
			t.Fatalf("SplitName(%q) = (%q, %q), want (%q, %q)", tt.in, stem, ext, tt.stem, tt.ext)
		}
	}
}
