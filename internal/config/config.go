package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkDir string `toml:"work_dir"`
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// API contains the daemon HTTP listener settings.
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// Worker contains job pool sizing, claim and stage timing configuration.
type Worker struct {
	Concurrency           int            `toml:"concurrency"`
	MaxAttempts           int            `toml:"max_attempts"`
	PollInterval          int            `toml:"poll_interval"`
	ErrorRetryInterval    int            `toml:"error_retry_interval"`
	HeartbeatInterval     int            `toml:"heartbeat_interval"`
	HeartbeatTimeout      int            `toml:"heartbeat_timeout"`
	AttemptBackoffInitial int            `toml:"attempt_backoff_initial"`
	AttemptBackoffMax     int            `toml:"attempt_backoff_max"`
	StageTimeouts         map[string]int `toml:"stage_timeouts"`
	WorkDirRetentionHours int            `toml:"work_dir_retention_hours"`
	KeepDownloads         bool           `toml:"keep_downloads"`
}

// Retry contains the policy applied to outbound network calls.
type Retry struct {
	MaxAttempts   int     `toml:"max_attempts"`
	InitialMillis int     `toml:"initial_ms"`
	MaxMillis     int     `toml:"max_ms"`
	Multiplier    float64 `toml:"multiplier"`
}

// Analysis contains Scene Analyzer tuning.
type Analysis struct {
	VisualSampleRate        float64            `toml:"visual_sample_rate"`
	MotionSampleRate        float64            `toml:"motion_sample_rate"`
	NoteBufferSeconds       float64            `toml:"note_buffer_seconds"`
	MergeThresholdSeconds   float64            `toml:"merge_threshold_seconds"`
	MinConfidence           float64            `toml:"min_confidence"`
	FrameConfidence         float64            `toml:"frame_confidence"`
	MinSignificantDetectors int                `toml:"min_significant_detectors"`
	CacheSize               int                `toml:"cache_size"`
	MotionThreshold         float64            `toml:"motion_threshold"`
	MotionSustainSamples    int                `toml:"motion_sustain_samples"`
	ConfirmationBoost       float64            `toml:"confirmation_boost"`
	ModelPath               string             `toml:"model_path"`
	FrameWidth              int                `toml:"frame_width"`
	FrameHeight             int                `toml:"frame_height"`
	MaxClips                int                `toml:"max_clips"`
	MinClipSeconds          float64            `toml:"min_clip_seconds"`
	MaxClipSeconds          float64            `toml:"max_clip_seconds"`
	Weights                 map[string]float64 `toml:"weights"`
	Thresholds              map[string]float64 `toml:"thresholds"`
}

// Host contains permanent video host API settings.
type Host struct {
	BaseURL        string `toml:"base_url"`
	Token          string `toml:"token"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	DefaultPrivacy string `toml:"default_privacy"`
}

// Archive contains temporary cloud archive (S3-compatible) settings.
type Archive struct {
	Enabled       bool   `toml:"enabled"`
	Endpoint      string `toml:"endpoint"`
	AccessKey     string `toml:"access_key"`
	SecretKey     string `toml:"secret_key"`
	Bucket        string `toml:"bucket"`
	UseSSL        bool   `toml:"use_ssl"`
	Prefix        string `toml:"prefix"`
	CapacityBytes int64  `toml:"capacity_bytes"`
}

// Storage contains upload, retention and alerting configuration.
type Storage struct {
	Parallel           bool    `toml:"parallel"`
	MaxParallelUploads int     `toml:"max_parallel_uploads"`
	RetentionDays      int     `toml:"retention_days"`
	CleanupInterval    int     `toml:"cleanup_interval"`
	WarningThreshold   float64 `toml:"warning_threshold"`
	CriticalThreshold  float64 `toml:"critical_threshold"`
	EmergencyThreshold float64 `toml:"emergency_threshold"`
	Host               Host    `toml:"host"`
	Archive            Archive `toml:"archive"`
}

// Endpoint describes a dependency polled by the health monitor.
type Endpoint struct {
	Name           string `toml:"name"`
	URL            string `toml:"url"`
	Critical       bool   `toml:"critical"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Health contains health monitor timing and thresholds.
type Health struct {
	Interval             int        `toml:"interval"`
	TimeoutSeconds       int        `toml:"timeout_seconds"`
	SlowThresholdSeconds int        `toml:"slow_threshold_seconds"`
	FailureThreshold     int        `toml:"failure_threshold"`
	RetryAttempts        int        `toml:"retry_attempts"`
	UptimeInterval       int        `toml:"uptime_interval"`
	HistoryWindowHours   int        `toml:"history_window_hours"`
	Endpoints            []Endpoint `toml:"endpoints"`
}

// Notifications contains configuration for ntfy operational alerts.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	JobErrors      bool   `toml:"job_errors"`
	HealthAlerts   bool   `toml:"health_alerts"`
	StorageAlerts  bool   `toml:"storage_alerts"`
}

// Webhook contains completion webhook delivery settings.
type Webhook struct {
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxAttempts    int    `toml:"max_attempts"`
	UserAgent      string `toml:"user_agent"`
}

// Intake contains the optional AMQP submission consumer settings.
type Intake struct {
	Enabled    bool   `toml:"enabled"`
	URL        string `toml:"url"`
	Exchange   string `toml:"exchange"`
	Queue      string `toml:"queue"`
	RoutingKey string `toml:"routing_key"`
	Prefetch   int    `toml:"prefetch"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for matchreel.
//
// Configuration sections by subsystem:
//   - Paths: working, data and log directories
//   - API: daemon HTTP listener
//   - Worker: job pool, claim heartbeats, attempt limits and stage timeouts
//   - Retry: backoff policy for outbound network calls
//   - Analysis: scene analyzer sampling, fusion weights and thresholds
//   - Storage: video host, temporary archive, retention and storage alerts
//   - Health: dependency polling and alert thresholds
//   - Notifications: ntfy operational alerts
//   - Webhook: completion webhook delivery
//   - Intake: optional AMQP submission queue
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	API           API           `toml:"api"`
	Worker        Worker        `toml:"worker"`
	Retry         Retry         `toml:"retry"`
	Analysis      Analysis      `toml:"analysis"`
	Storage       Storage       `toml:"storage"`
	Health        Health        `toml:"health"`
	Notifications Notifications `toml:"notifications"`
	Webhook       Webhook       `toml:"webhook"`
	Intake        Intake        `toml:"intake"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. A .env file next to the config file is
// loaded first so secrets can stay out of the TOML.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if err := loadDotEnv(filepath.Dir(resolvedPath)); err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func loadDotEnv(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return nil
	}
	envPath := filepath.Join(dir, ".env")
	info, err := os.Stat(envPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat env file: %w", err)
	}
	if info.IsDir() {
		return nil
	}
	// godotenv.Load never overrides variables already present in the environment.
	if err := godotenv.Load(envPath); err != nil {
		return fmt.Errorf("load env file %s: %w", envPath, err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if strings.TrimSpace(path) == "" {
		if envPath, ok := os.LookupEnv("MATCHREEL_CONFIG"); ok && strings.TrimSpace(envPath) != "" {
			path = envPath
		}
	}
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("matchreel.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// QueueDBPath returns the SQLite job store location.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.DataDir, "queue.db")
}

// FFmpegBinary returns the ffmpeg executable name used for clip assembly and frame extraction.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// StageTimeout returns the configured timeout for a pipeline stage, falling
// back to the default stage timeout.
func (c *Config) StageTimeout(stage string) time.Duration {
	if c == nil {
		return time.Duration(defaultStageTimeoutSeconds) * time.Second
	}
	if seconds, ok := c.Worker.StageTimeouts[strings.TrimSpace(stage)]; ok && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if seconds, ok := c.Worker.StageTimeouts["default"]; ok && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return time.Duration(defaultStageTimeoutSeconds) * time.Second
}

// HeartbeatInterval returns the worker heartbeat cadence.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Worker.HeartbeatInterval) * time.Second
}

// HeartbeatTimeout returns how long a claim may go without a heartbeat before it is reclaimed.
func (c *Config) HeartbeatTimeout() time.Duration {
	return time.Duration(c.Worker.HeartbeatTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the configuration as TOML, with secrets redacted.
func (c *Config) Encode() ([]byte, error) {
	if c == nil {
		return nil, errors.New("config is nil")
	}
	clone := *c
	clone.API.Token = redact(clone.API.Token)
	clone.Storage.Host.Token = redact(clone.Storage.Host.Token)
	clone.Storage.Archive.AccessKey = redact(clone.Storage.Archive.AccessKey)
	clone.Storage.Archive.SecretKey = redact(clone.Storage.Archive.SecretKey)
	clone.Intake.URL = redact(clone.Intake.URL)
	return toml.Marshal(clone)
}

func redact(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return "********"
}
