package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"

	"matchreel/internal/config"
)

// Options describes logger construction parameters.
type Options struct {
	Level            string
	Format           string
	OutputPaths      []string
	ErrorOutputPaths []string
	Development      bool
	// Color enables ANSI level colouring in console output.
	Color bool
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	level := parseLevel(opts.Level)
	levelVar := new(slog.LevelVar)
	levelVar.Set(level)

	outputWriter, err := openWriters(
		defaultSlice(opts.OutputPaths, []string{"stdout"}),
		defaultSlice(opts.ErrorOutputPaths, []string{"stderr"}),
	)
	if err != nil {
		return nil, err
	}

	addSource := opts.Development || level <= slog.LevelDebug

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "console"
	}

	var handler slog.Handler
	switch format {
	case "json":
		handler = newJSONHandler(outputWriter, levelVar, addSource)
	case "console":
		handler = newPrettyHandler(outputWriter, levelVar, addSource, opts.Color)
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	return slog.New(handler), nil
}

// CurrentLogName is the stable name pointing at the active run log.
const CurrentLogName = "matchreel.log"

// RunLog describes the files backing a daemon run logger.
type RunLog struct {
	Path    string
	Current string
}

// NewRunLogger creates a logger writing to stdout and a per-run file
// <log_dir>/matchreel-<runID>.log, then repoints matchreel.log at it. Level
// overrides the configured level when non-empty.
func NewRunLogger(cfg *config.Config, runID, level string, development bool) (*slog.Logger, RunLog, error) {
	if cfg == nil {
		return nil, RunLog{}, fmt.Errorf("config is required")
	}
	if err := os.MkdirAll(cfg.Paths.LogDir, 0o755); err != nil {
		return nil, RunLog{}, fmt.Errorf("ensure log directory: %w", err)
	}
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	run := RunLog{
		Path:    filepath.Join(cfg.Paths.LogDir, "matchreel-"+runID+".log"),
		Current: filepath.Join(cfg.Paths.LogDir, CurrentLogName),
	}
	logger, err := New(Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", run.Path},
		ErrorOutputPaths: []string{"stderr", run.Path},
		Development:      development,
		Color:            StdoutIsTerminal(),
	})
	if err != nil {
		return nil, RunLog{}, err
	}
	if err := pointCurrentLog(run.Current, run.Path); err != nil {
		WarnWithContext(logger, "unable to update current log link", "log_link_failed",
			String("link", run.Current),
			Error(err),
			String(FieldImpact, "matchreel logs will show an older run"),
		)
	}
	return logger, run, nil
}

// pointCurrentLog replaces link with a symlink to target, falling back to a
// hard link where symlinks are unsupported.
func pointCurrentLog(link, target string) error {
	if err := os.Remove(link); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, link); err == nil {
		return nil
	}
	if err := os.Link(target, link); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

// StdoutIsTerminal reports whether stdout is attached to an interactive terminal.
func StdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func defaultSlice(value []string, fallback []string) []string {
	if len(value) == 0 {
		cp := make([]string, len(fallback))
		copy(cp, fallback)
		return cp
	}
	cp := make([]string, len(value))
	copy(cp, value)
	return cp
}

func openWriters(outputPaths []string, errorPaths []string) (io.Writer, error) {
	seen := map[string]struct{}{}
	var writers []io.Writer
	combined := append([]string{}, outputPaths...)
	combined = append(combined, errorPaths...)

	for _, path := range combined {
		trimmed := strings.TrimSpace(path)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}

		switch trimmed {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			// Console output already reaches stdout; stderr is only used when it
			// is the sole destination.
			if len(outputPaths) == 0 {
				writers = append(writers, os.Stderr)
			}
		default:
			if err := ensureLogDir(trimmed); err != nil {
				return nil, err
			}
			file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
			if err != nil {
				return nil, fmt.Errorf("open log file %s: %w", trimmed, err)
			}
			writers = append(writers, file)
		}
	}

	if len(writers) == 0 {
		return os.Stdout, nil
	}
	if len(writers) == 1 {
		return writers[0], nil
	}
	return io.MultiWriter(writers...), nil
}

func ensureLogDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
