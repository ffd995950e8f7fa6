package logging_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"matchreel/internal/config"
	"matchreel/internal/logging"
	"matchreel/internal/services"
)

func TestNewRunLoggerLinksCurrentLog(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, run, err := logging.NewRunLogger(&cfg, "20240101T000000.000Z", "debug", false)
	if err != nil {
		t.Fatalf("NewRunLogger returned error: %v", err)
	}
	logger.Debug("hello from test")

	if filepath.Base(run.Path) != "matchreel-20240101T000000.000Z.log" {
		t.Fatalf("unexpected run log path %q", run.Path)
	}
	content, err := os.ReadFile(run.Current)
	if err != nil {
		t.Fatalf("read current log: %v", err)
	}
	if !strings.Contains(string(content), "hello from test") {
		t.Fatalf("expected message through %s, got %q", logging.CurrentLogName, content)
	}

	_, second, err := logging.NewRunLogger(&cfg, "20240102T000000.000Z", "", false)
	if err != nil {
		t.Fatalf("second NewRunLogger: %v", err)
	}
	target, err := os.Readlink(second.Current)
	if err != nil {
		t.Fatalf("readlink: %v", err)
	}
	if target != second.Path {
		t.Fatalf("expected current log to follow the newest run, got %q", target)
	}
}

func TestConsoleLoggerFormatsComponentAndFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "info",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.NewComponentLogger(logger, "storage").Info("upload finished",
		logging.String("asset", "team highlights"),
		logging.Int("count", 3),
	)

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	for _, fragment := range []string{"INFO storage: upload finished", `asset="team highlights"`, "count=3"} {
		if !strings.Contains(line, fragment) {
			t.Fatalf("expected %q in %q", fragment, line)
		}
	}
	if strings.Contains(line, ".go:") {
		t.Fatalf("expected no source location at info level, got %q", line)
	}
}

func TestJSONLoggerIncludesContextFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{
		Format:      "json",
		Level:       "info",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithJobID(context.Background(), "job-42")
	ctx = services.WithStage(ctx, "analyzing")
	logging.WithContext(ctx, logger).Info("stage started")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(content))), &entry); err != nil {
		t.Fatalf("decode json log: %v (%q)", err, content)
	}
	if entry[logging.FieldJobID] != "job-42" {
		t.Fatalf("expected job_id field, got %v", entry)
	}
	if entry[logging.FieldStage] != "analyzing" {
		t.Fatalf("expected stage field, got %v", entry)
	}
	if entry["level"] != "info" || entry["msg"] != "stage started" {
		t.Fatalf("unexpected level/msg: %v", entry)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "warn.log")
	logger, err := logging.New(logging.Options{Format: "json", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "slow upload", "upload_slow")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	for _, key := range []string{logging.FieldEventType, logging.FieldErrorHint, logging.FieldImpact} {
		if !strings.Contains(string(content), `"`+key+`"`) {
			t.Fatalf("expected %s in %q", key, content)
		}
	}
}
