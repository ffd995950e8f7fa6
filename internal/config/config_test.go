package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"matchreel/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("MATCHREEL_CONFIG", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantWork := filepath.Join(tempHome, ".local", "share", "matchreel", "work")
	if cfg.Paths.WorkDir != wantWork {
		t.Fatalf("unexpected work dir: got %q want %q", cfg.Paths.WorkDir, wantWork)
	}
	if cfg.API.Bind != "127.0.0.1:7490" {
		t.Fatalf("unexpected api bind: %q", cfg.API.Bind)
	}
	if cfg.Worker.Concurrency != 2 {
		t.Fatalf("expected default concurrency 2, got %d", cfg.Worker.Concurrency)
	}
	if cfg.Storage.Host.DefaultPrivacy != "unlisted" {
		t.Fatalf("expected unlisted default privacy, got %q", cfg.Storage.Host.DefaultPrivacy)
	}
	if cfg.Storage.RetentionDays != 30 {
		t.Fatalf("expected 30 day retention, got %d", cfg.Storage.RetentionDays)
	}
	if cfg.Health.FailureThreshold != 3 {
		t.Fatalf("expected failure threshold 3, got %d", cfg.Health.FailureThreshold)
	}
	if cfg.Health.TimeoutSeconds != 30 || cfg.Health.SlowThresholdSeconds != 10 {
		t.Fatalf("expected 30s check timeout above 10s slow threshold, got %d/%d",
			cfg.Health.TimeoutSeconds, cfg.Health.SlowThresholdSeconds)
	}
	if cfg.QueueDBPath() != filepath.Join(tempHome, ".local", "share", "matchreel", "queue.db") {
		t.Fatalf("unexpected queue path %q", cfg.QueueDBPath())
	}
}

func TestLoadCustomConfigMergesDetectorTables(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(tempHome, "config.toml")
	payload := map[string]any{
		"paths": map[string]any{
			"work_dir": "~/work",
		},
		"worker": map[string]any{
			"concurrency": 4,
			"stage_timeouts": map[string]any{
				"Analyzing": 60,
			},
		},
		"analysis": map[string]any{
			"weights": map[string]any{
				"crowd": 0.5,
			},
		},
		"logging": map[string]any{
			"format": "JSON",
			"level":  "Debug",
		},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected existing config at %q, got %q (exists=%v)", configPath, resolved, exists)
	}
	if cfg.Paths.WorkDir != filepath.Join(tempHome, "work") {
		t.Fatalf("unexpected work dir %q", cfg.Paths.WorkDir)
	}
	if cfg.Worker.Concurrency != 4 {
		t.Fatalf("expected concurrency 4, got %d", cfg.Worker.Concurrency)
	}
	if got := cfg.StageTimeout("analyzing"); got != time.Minute {
		t.Fatalf("expected analyzing timeout 1m, got %s", got)
	}
	if cfg.Analysis.Weights["crowd"] != 0.5 {
		t.Fatalf("expected crowd weight override, got %v", cfg.Analysis.Weights["crowd"])
	}
	if cfg.Analysis.Weights["ball"] != 0.2 {
		t.Fatalf("expected ball weight default to survive merge, got %v", cfg.Analysis.Weights["ball"])
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("expected normalized logging, got %q/%q", cfg.Logging.Format, cfg.Logging.Level)
	}
}

func TestLoadReadsSecretsFromDotEnv(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("MATCHREEL_HOST_TOKEN", "")
	os.Unsetenv("MATCHREEL_HOST_TOKEN")
	t.Cleanup(func() { os.Unsetenv("MATCHREEL_HOST_TOKEN") })

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(configPath, []byte("[storage.host]\nbase_url = \"https://host.example.com/api\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("MATCHREEL_HOST_TOKEN=from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Storage.Host.Token != "from-dotenv" {
		t.Fatalf("expected host token from .env, got %q", cfg.Storage.Host.Token)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{
			name:   "zero concurrency",
			mutate: func(c *config.Config) { c.Worker.Concurrency = 0 },
			want:   "worker.concurrency",
		},
		{
			name:   "heartbeat timeout too small",
			mutate: func(c *config.Config) { c.Worker.HeartbeatTimeout = c.Worker.HeartbeatInterval },
			want:   "heartbeat_timeout",
		},
		{
			name:   "unordered storage thresholds",
			mutate: func(c *config.Config) { c.Storage.WarningThreshold = 0.95 },
			want:   "storage thresholds",
		},
		{
			name: "archive without credentials",
			mutate: func(c *config.Config) {
				c.Storage.Archive.Enabled = true
				c.Storage.Archive.Endpoint = "s3.local"
			},
			want: "credentials",
		},
		{
			name: "duplicate endpoints",
			mutate: func(c *config.Config) {
				c.Health.Endpoints = []config.Endpoint{
					{Name: "a", URL: "http://a.local/health"},
					{Name: "a", URL: "http://b.local/health"},
				}
			},
			want: "duplicate",
		},
		{
			name:   "slow threshold reaches check timeout",
			mutate: func(c *config.Config) { c.Health.TimeoutSeconds = c.Health.SlowThresholdSeconds },
			want:   "health.slow_threshold_seconds must be less than health.timeout_seconds",
		},
		{
			name: "endpoint timeout below slow threshold",
			mutate: func(c *config.Config) {
				c.Health.Endpoints = []config.Endpoint{
					{Name: "worker", URL: "http://worker.local/health", TimeoutSeconds: 5},
				}
			},
			want: "health.endpoints[worker].timeout_seconds",
		},
		{
			name:   "single detector agreement",
			mutate: func(c *config.Config) { c.Analysis.MinSignificantDetectors = 1 },
			want:   "analysis.min_significant_detectors must be at least 2",
		},
		{
			name:   "bad privacy",
			mutate: func(c *config.Config) { c.Storage.Host.DefaultPrivacy = "secret" },
			want:   "default_privacy",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error containing %q", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Storage.Host.BaseURL == "" {
		t.Fatal("expected sample host base url")
	}
}

func TestEncodeRedactsSecrets(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Host.Token = "super-secret"
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if strings.Contains(string(data), "super-secret") {
		t.Fatal("expected token to be redacted")
	}
}
