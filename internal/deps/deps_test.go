package deps

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	if err := os.WriteFile(present, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	plain := filepath.Join(binDir, "plain")
	if err := os.WriteFile(plain, []byte("data"), 0o644); err != nil {
		t.Fatalf("write plain file: %v", err)
	}

	tests := []struct {
		name      string
		command   string
		available bool
		detail    string
	}{
		{name: "executable path", command: present, available: true},
		{name: "not on PATH", command: "clearly-not-present-binary", detail: `binary "clearly-not-present-binary" not found`},
		{name: "blank", command: "  ", detail: "command not configured"},
		{name: "not executable", command: plain, detail: "is not executable"},
		{name: "directory", command: binDir, detail: "is a directory"},
		{name: "missing path", command: filepath.Join(binDir, "gone"), detail: "not found"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			results := CheckBinaries([]Requirement{{Name: tc.name, Command: tc.command}})
			if len(results) != 1 {
				t.Fatalf("expected one result, got %d", len(results))
			}
			got := results[0]
			if got.Available != tc.available {
				t.Fatalf("available = %v, want %v (%#v)", got.Available, tc.available, got)
			}
			if tc.available && got.Path != tc.command {
				t.Fatalf("expected resolved path %q, got %q", tc.command, got.Path)
			}
			if !strings.Contains(got.Detail, tc.detail) {
				t.Fatalf("detail %q does not contain %q", got.Detail, tc.detail)
			}
		})
	}
}

func TestCheckBinariesResolvesFromPATH(t *testing.T) {
	binDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(binDir, "fakeffmpeg"), []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	t.Setenv("PATH", binDir)

	results := CheckBinaries([]Requirement{{Name: "FFmpeg", Command: "fakeffmpeg"}})
	if !results[0].Available || results[0].Path != filepath.Join(binDir, "fakeffmpeg") {
		t.Fatalf("unexpected status %#v", results[0])
	}
}

func TestMissingSkipsOptional(t *testing.T) {
	statuses := []Status{
		{Requirement: Requirement{Name: "FFmpeg"}, Available: true},
		{Requirement: Requirement{Name: "FFprobe"}, Detail: `binary "ffprobe" not found`},
		{Requirement: Requirement{Name: "Extra", Optional: true}},
	}
	missing := Missing(statuses)
	if len(missing) != 1 || missing[0].Name != "FFprobe" {
		t.Fatalf("unexpected missing list %#v", missing)
	}
	if got := Describe(missing); !strings.Contains(got, "FFprobe: binary") {
		t.Fatalf("unexpected description %q", got)
	}
}

func TestMediaRequirements(t *testing.T) {
	reqs := MediaRequirements("ffmpeg", "ffprobe")
	if len(reqs) != 2 || reqs[0].Command != "ffmpeg" || reqs[1].Command != "ffprobe" {
		t.Fatalf("unexpected requirements %#v", reqs)
	}
}
