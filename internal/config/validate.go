package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWorker(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateAnalysis(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateHealth(); err != nil {
		return err
	}
	if err := c.validateIntake(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateWorker() error {
	if err := ensurePositiveMap(map[string]int{
		"worker.concurrency":             c.Worker.Concurrency,
		"worker.max_attempts":            c.Worker.MaxAttempts,
		"worker.poll_interval":           c.Worker.PollInterval,
		"worker.error_retry_interval":    c.Worker.ErrorRetryInterval,
		"worker.heartbeat_interval":      c.Worker.HeartbeatInterval,
		"worker.heartbeat_timeout":       c.Worker.HeartbeatTimeout,
		"worker.attempt_backoff_initial": c.Worker.AttemptBackoffInitial,
		"worker.attempt_backoff_max":     c.Worker.AttemptBackoffMax,
	}); err != nil {
		return err
	}
	if c.Worker.HeartbeatTimeout <= c.Worker.HeartbeatInterval {
		return errors.New("worker.heartbeat_timeout must be greater than worker.heartbeat_interval")
	}
	if c.Worker.AttemptBackoffMax < c.Worker.AttemptBackoffInitial {
		return errors.New("worker.attempt_backoff_max must be >= worker.attempt_backoff_initial")
	}
	for stage, seconds := range c.Worker.StageTimeouts {
		if seconds <= 0 {
			return fmt.Errorf("worker.stage_timeouts.%s must be positive", stage)
		}
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.MaxAttempts <= 0 {
		return errors.New("retry.max_attempts must be positive")
	}
	if c.Retry.InitialMillis <= 0 || c.Retry.MaxMillis < c.Retry.InitialMillis {
		return errors.New("retry.initial_ms must be positive and <= retry.max_ms")
	}
	if c.Retry.Multiplier < 1 {
		return errors.New("retry.multiplier must be >= 1")
	}
	return nil
}

func (c *Config) validateAnalysis() error {
	a := c.Analysis
	if a.VisualSampleRate <= 0 || a.MotionSampleRate <= 0 {
		return errors.New("analysis sample rates must be positive")
	}
	for name, value := range map[string]float64{
		"analysis.min_confidence":   a.MinConfidence,
		"analysis.frame_confidence": a.FrameConfidence,
		"analysis.motion_threshold": a.MotionThreshold,
	} {
		if value < 0 || value > 1 {
			return fmt.Errorf("%s must be between 0 and 1", name)
		}
	}
	if a.NoteBufferSeconds < 0 || a.MergeThresholdSeconds < 0 {
		return errors.New("analysis buffers must not be negative")
	}
	if a.MinSignificantDetectors < 2 {
		return errors.New("analysis.min_significant_detectors must be at least 2")
	}
	if a.CacheSize <= 0 {
		return errors.New("analysis.cache_size must be positive")
	}
	if a.MotionSustainSamples <= 0 {
		return errors.New("analysis.motion_sustain_samples must be positive")
	}
	if a.FrameWidth <= 0 || a.FrameHeight <= 0 {
		return errors.New("analysis.frame_width and frame_height must be positive")
	}
	if a.MinClipSeconds <= 0 || a.MaxClipSeconds < a.MinClipSeconds {
		return errors.New("analysis.min_clip_seconds must be positive and <= max_clip_seconds")
	}
	if a.MaxClips < 0 {
		return errors.New("analysis.max_clips must not be negative")
	}
	var total float64
	for name, weight := range a.Weights {
		if weight < 0 {
			return fmt.Errorf("analysis.weights.%s must not be negative", name)
		}
		total += weight
	}
	if total <= 0 {
		return errors.New("analysis.weights must contain at least one positive weight")
	}
	for name, threshold := range a.Thresholds {
		if threshold < 0 || threshold > 1 {
			return fmt.Errorf("analysis.thresholds.%s must be between 0 and 1", name)
		}
	}
	return nil
}

func (c *Config) validateStorage() error {
	s := c.Storage
	if s.RetentionDays <= 0 {
		return errors.New("storage.retention_days must be positive")
	}
	if s.CleanupInterval <= 0 {
		return errors.New("storage.cleanup_interval must be positive")
	}
	if s.Parallel && s.MaxParallelUploads <= 0 {
		return errors.New("storage.max_parallel_uploads must be positive when storage.parallel is true")
	}
	if !(0 < s.WarningThreshold && s.WarningThreshold < s.CriticalThreshold &&
		s.CriticalThreshold < s.EmergencyThreshold && s.EmergencyThreshold <= 1) {
		return errors.New("storage thresholds must satisfy 0 < warning < critical < emergency <= 1")
	}
	switch s.Host.DefaultPrivacy {
	case "unlisted", "private", "public":
	default:
		return fmt.Errorf("storage.host.default_privacy: unsupported value %q", s.Host.DefaultPrivacy)
	}
	if s.Host.BaseURL != "" {
		if err := validateURL("storage.host.base_url", s.Host.BaseURL); err != nil {
			return err
		}
	}
	if s.Archive.Enabled {
		if s.Archive.Endpoint == "" {
			return errors.New("storage.archive.endpoint must be set when storage.archive.enabled is true")
		}
		if s.Archive.Bucket == "" {
			return errors.New("storage.archive.bucket must be set when storage.archive.enabled is true")
		}
		if s.Archive.AccessKey == "" || s.Archive.SecretKey == "" {
			return errors.New("storage.archive credentials are required. Set MATCHREEL_ARCHIVE_ACCESS_KEY and MATCHREEL_ARCHIVE_SECRET_KEY or edit the config")
		}
		if s.Archive.CapacityBytes <= 0 {
			return errors.New("storage.archive.capacity_bytes must be positive")
		}
	}
	return nil
}

func (c *Config) validateHealth() error {
	if err := ensurePositiveMap(map[string]int{
		"health.interval":               c.Health.Interval,
		"health.timeout_seconds":        c.Health.TimeoutSeconds,
		"health.slow_threshold_seconds": c.Health.SlowThresholdSeconds,
		"health.failure_threshold":      c.Health.FailureThreshold,
		"health.retry_attempts":         c.Health.RetryAttempts,
		"health.uptime_interval":        c.Health.UptimeInterval,
		"health.history_window_hours":   c.Health.HistoryWindowHours,
	}); err != nil {
		return err
	}
	if c.Health.SlowThresholdSeconds >= c.Health.TimeoutSeconds {
		return errors.New("health.slow_threshold_seconds must be less than health.timeout_seconds")
	}
	seen := make(map[string]struct{}, len(c.Health.Endpoints))
	for i, ep := range c.Health.Endpoints {
		if ep.Name == "" {
			return fmt.Errorf("health.endpoints[%d].name must be set", i)
		}
		if _, dup := seen[ep.Name]; dup {
			return fmt.Errorf("health.endpoints: duplicate name %q", ep.Name)
		}
		seen[ep.Name] = struct{}{}
		if err := validateURL(fmt.Sprintf("health.endpoints[%s].url", ep.Name), ep.URL); err != nil {
			return err
		}
		if ep.TimeoutSeconds > 0 && c.Health.SlowThresholdSeconds >= ep.TimeoutSeconds {
			return fmt.Errorf("health.endpoints[%s].timeout_seconds must exceed health.slow_threshold_seconds", ep.Name)
		}
	}
	return nil
}

func (c *Config) validateIntake() error {
	if !c.Intake.Enabled {
		return nil
	}
	if c.Intake.URL == "" {
		return errors.New("intake.url must be set when intake.enabled is true (or set MATCHREEL_AMQP_URL)")
	}
	if c.Intake.Queue == "" {
		return errors.New("intake.queue must be set when intake.enabled is true")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func validateURL(field, value string) error {
	parsed, err := url.Parse(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must use http or https", field)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", field)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
