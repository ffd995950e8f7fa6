package testsupport

import (
	"path/filepath"
	"testing"

	"matchreel/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.API.Bind = "127.0.0.1:0"
	cfgVal.Worker.PollInterval = 1
	cfgVal.Retry.InitialMillis = 1
	cfgVal.Retry.MaxMillis = 5

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithConcurrency sets the worker pool size.
func WithConcurrency(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Worker.Concurrency = n
	}
}

// WithMaxAttempts sets the per-job claim attempt limit.
func WithMaxAttempts(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Worker.MaxAttempts = n
	}
}

// WithStageTimeout overrides one stage's timeout in seconds.
func WithStageTimeout(stage string, seconds int) ConfigOption {
	return func(b *configBuilder) {
		timeouts := make(map[string]int, len(b.cfg.Worker.StageTimeouts)+1)
		for k, v := range b.cfg.Worker.StageTimeouts {
			timeouts[k] = v
		}
		timeouts[stage] = seconds
		b.cfg.Worker.StageTimeouts = timeouts
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WorkDir)
}
