package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"matchreel/internal/config"
	"matchreel/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if !strings.Contains(result.Detail, "does not exist") {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckVideoHost_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	result := CheckVideoHost(context.Background(), config.Host{BaseURL: srv.URL, Token: "good-token"})
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckVideoHost_BadToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	result := CheckVideoHost(context.Background(), config.Host{BaseURL: srv.URL, Token: "bad"})
	if result.Passed {
		t.Fatal("expected failure for rejected token")
	}
	if !strings.Contains(result.Detail, "auth failed") {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestCheckVideoHost_MissingSettings(t *testing.T) {
	if r := CheckVideoHost(context.Background(), config.Host{Token: "x"}); r.Passed || r.Detail != "missing base_url" {
		t.Fatalf("unexpected result %+v", r)
	}
	if r := CheckVideoHost(context.Background(), config.Host{BaseURL: "http://example.invalid"}); r.Passed || r.Detail != "missing token" {
		t.Fatalf("unexpected result %+v", r)
	}
}

func TestCheckIntake_MissingURL(t *testing.T) {
	if r := CheckIntake(context.Background(), config.Intake{Enabled: true}); r.Passed {
		t.Fatal("expected failure without url")
	}
}

func TestRunAllSkipsDisabledIntegrations(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	cfg.Storage.Host.BaseURL = ""
	cfg.Storage.Archive.Enabled = false
	cfg.Intake.Enabled = false

	results := RunAll(context.Background(), cfg)
	if len(results) != 3 {
		t.Fatalf("expected only directory checks, got %d: %+v", len(results), results)
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("expected all checks to pass, got %+v", failed)
	}
}

func TestFailedFiltersPassingResults(t *testing.T) {
	results := []Result{{Name: "a", Passed: true}, {Name: "b"}}
	failed := Failed(results)
	if len(failed) != 1 || failed[0].Name != "b" {
		t.Fatalf("unexpected failed results %+v", failed)
	}
}
