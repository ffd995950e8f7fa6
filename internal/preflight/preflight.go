package preflight

import (
	"context"
	"strings"

	"matchreel/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if strings.TrimSpace(cfg.Storage.Host.BaseURL) != "" {
		results = append(results, CheckVideoHost(ctx, cfg.Storage.Host))
	}
	if cfg.Storage.Archive.Enabled {
		results = append(results, CheckArchive(ctx, cfg.Storage.Archive))
	}
	if cfg.Intake.Enabled {
		results = append(results, CheckIntake(ctx, cfg.Intake))
	}
	return results
}

// Failed returns only the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
