package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeWorker()
	c.normalizeAnalysis()
	c.normalizeStorage()
	c.normalizeHealth()
	c.normalizeIntake()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	c.API.Token = envFallback(c.API.Token, "MATCHREEL_API_TOKEN")
	return nil
}

func (c *Config) normalizeWorker() {
	if c.Worker.StageTimeouts == nil {
		c.Worker.StageTimeouts = map[string]int{}
	}
	normalized := make(map[string]int, len(c.Worker.StageTimeouts))
	for key, value := range c.Worker.StageTimeouts {
		normalized[strings.ToLower(strings.TrimSpace(key))] = value
	}
	c.Worker.StageTimeouts = normalized
}

func (c *Config) normalizeAnalysis() {
	c.Analysis.ModelPath = strings.TrimSpace(c.Analysis.ModelPath)
	if c.Analysis.ModelPath != "" {
		if expanded, err := expandPath(c.Analysis.ModelPath); err == nil {
			c.Analysis.ModelPath = expanded
		}
	}
	defaults := Default().Analysis
	c.Analysis.Weights = mergeFloatMap(defaults.Weights, c.Analysis.Weights)
	c.Analysis.Thresholds = mergeFloatMap(defaults.Thresholds, c.Analysis.Thresholds)
}

func (c *Config) normalizeStorage() {
	host := &c.Storage.Host
	host.BaseURL = strings.TrimRight(strings.TrimSpace(host.BaseURL), "/")
	host.Token = envFallback(host.Token, "MATCHREEL_HOST_TOKEN")
	host.DefaultPrivacy = strings.ToLower(strings.TrimSpace(host.DefaultPrivacy))
	if host.DefaultPrivacy == "" {
		host.DefaultPrivacy = defaultHostPrivacy
	}

	archive := &c.Storage.Archive
	archive.Endpoint = strings.TrimSpace(archive.Endpoint)
	archive.Bucket = strings.TrimSpace(archive.Bucket)
	archive.Prefix = strings.Trim(strings.TrimSpace(archive.Prefix), "/")
	archive.AccessKey = envFallback(archive.AccessKey, "MATCHREEL_ARCHIVE_ACCESS_KEY")
	archive.SecretKey = envFallback(archive.SecretKey, "MATCHREEL_ARCHIVE_SECRET_KEY")
}

func (c *Config) normalizeHealth() {
	for i := range c.Health.Endpoints {
		ep := &c.Health.Endpoints[i]
		ep.Name = strings.TrimSpace(ep.Name)
		ep.URL = strings.TrimSpace(ep.URL)
		if ep.TimeoutSeconds <= 0 {
			ep.TimeoutSeconds = c.Health.TimeoutSeconds
		}
	}
}

func (c *Config) normalizeIntake() {
	c.Intake.URL = envFallback(c.Intake.URL, "MATCHREEL_AMQP_URL")
	c.Intake.Exchange = strings.TrimSpace(c.Intake.Exchange)
	c.Intake.Queue = strings.TrimSpace(c.Intake.Queue)
	c.Intake.RoutingKey = strings.TrimSpace(c.Intake.RoutingKey)
	if c.Intake.Prefetch <= 0 {
		c.Intake.Prefetch = defaultIntakePrefetch
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func envFallback(value, key string) string {
	value = strings.TrimSpace(value)
	if value != "" {
		return value
	}
	if env, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(env)
	}
	return ""
}

func mergeFloatMap(defaults, overrides map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(defaults)+len(overrides))
	for key, value := range defaults {
		out[key] = value
	}
	for key, value := range overrides {
		out[strings.ToLower(strings.TrimSpace(key))] = value
	}
	return out
}
