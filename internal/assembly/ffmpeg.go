package assembly

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"matchreel/internal/logging"
	"matchreel/internal/services"
	"matchreel/internal/textutil"
)

// CommandRunner executes an external tool and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput() //nolint:gosec
}

// FFmpegOption configures the ffmpeg assembler.
type FFmpegOption func(*FFmpegAssembler)

// WithRunner overrides process execution.
func WithRunner(run CommandRunner) FFmpegOption {
	return func(a *FFmpegAssembler) {
		if run != nil {
			a.run = run
		}
	}
}

// FFmpegAssembler cuts each window with stream copy and concatenates the
// segments into a team compilation plus optional per-player reels.
type FFmpegAssembler struct {
	binary string
	run    CommandRunner
	logger *slog.Logger
}

// NewFFmpegAssembler constructs an assembler that invokes binary.
func NewFFmpegAssembler(binary string, logger *slog.Logger, opts ...FFmpegOption) *FFmpegAssembler {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	a := &FFmpegAssembler{
		binary: binary,
		run:    execRunner,
		logger: logging.NewComponentLogger(logger, "assembler"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble implements Assembler. A request with no usable windows produces
// no clips and no error.
func (a *FFmpegAssembler) Assemble(ctx context.Context, req Request) (Output, error) {
	if strings.TrimSpace(req.VideoPath) == "" {
		return Output{}, services.Wrap(services.ErrValidation, "assembling", "assemble", "video path required", nil)
	}
	if strings.TrimSpace(req.WorkDir) == "" {
		return Output{}, services.Wrap(services.ErrValidation, "assembling", "assemble", "work directory required", nil)
	}
	windows := PlanWindows(req)
	if len(windows) == 0 {
		a.logger.Info("no highlight windows to assemble",
			logging.String(logging.FieldEventType, "assembly_empty"),
			logging.String("job_id", req.JobID),
		)
		return Output{}, nil
	}

	clipDir := filepath.Join(req.WorkDir, "clips")
	segmentDir := filepath.Join(clipDir, "segments")
	if err := os.MkdirAll(segmentDir, 0o755); err != nil {
		return Output{}, services.Wrap(services.ErrConfiguration, "assembling", "create clip dir", "", err)
	}

	segments := make(map[Window]string, len(windows))
	for i, w := range windows {
		if err := ctx.Err(); err != nil {
			return Output{}, err
		}
		path := filepath.Join(segmentDir, fmt.Sprintf("segment-%03d.mp4", i+1))
		if err := a.extract(ctx, req.VideoPath, w, path); err != nil {
			return Output{}, err
		}
		segments[w] = path
	}

	match := matchTitle(req.Club, req.Opponent)
	team, err := a.compile(ctx, segments, windows, filepath.Join(clipDir, textutil.Slug(match)+"-team.mp4"))
	if err != nil {
		return Output{}, err
	}
	team.Kind = KindTeam
	team.Title = match + " - Team Highlights"
	out := Output{Clips: []Clip{team}}

	if req.PlayerHighlights {
		players, groups := PlayerGroups(windows)
		for _, player := range players {
			name := textutil.Slug(match) + "-" + textutil.Slug(player) + ".mp4"
			clip, err := a.compile(ctx, segments, groups[player], filepath.Join(clipDir, name))
			if err != nil {
				return Output{}, err
			}
			clip.Kind = KindPlayer
			clip.Player = player
			clip.Title = fmt.Sprintf("%s - %s Highlights", match, textutil.TitleCase(player))
			out.Clips = append(out.Clips, clip)
		}
	}

	a.logger.Info("clips assembled",
		logging.String(logging.FieldEventType, "assembly_complete"),
		logging.String("job_id", req.JobID),
		logging.Int("windows", len(windows)),
		logging.Int("clips", len(out.Clips)),
		logging.Float64("team_seconds", team.Duration),
	)
	return out, nil
}

func (a *FFmpegAssembler) extract(ctx context.Context, input string, w Window, output string) error {
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-ss", formatSeconds(w.Start),
		"-i", input,
		"-t", formatSeconds(w.Duration()),
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		output,
	}
	if out, err := a.run(ctx, a.binary, args...); err != nil {
		return services.Wrap(services.ErrExternalTool, "assembling", "extract segment",
			fmt.Sprintf("ffmpeg failed at %.1fs: %s", w.Start, strings.TrimSpace(string(out))), err)
	}
	return nil
}

func (a *FFmpegAssembler) compile(ctx context.Context, segments map[Window]string, windows []Window, output string) (Clip, error) {
	listPath := strings.TrimSuffix(output, filepath.Ext(output)) + ".txt"
	var list strings.Builder
	for _, w := range windows {
		fmt.Fprintf(&list, "file '%s'\n", escapeConcatPath(segments[w]))
	}
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return Clip{}, services.Wrap(services.ErrConfiguration, "assembling", "write concat list", "", err)
	}
	defer os.Remove(listPath)

	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "concat", "-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-movflags", "+faststart",
		output,
	}
	if out, err := a.run(ctx, a.binary, args...); err != nil {
		return Clip{}, services.Wrap(services.ErrExternalTool, "assembling", "concat segments",
			strings.TrimSpace(string(out)), err)
	}
	info, err := os.Stat(output)
	if err != nil {
		return Clip{}, services.Wrap(services.ErrExternalTool, "assembling", "concat segments", "output missing", err)
	}
	return Clip{
		Path:      output,
		Duration:  totalDuration(windows),
		SizeBytes: info.Size(),
		Windows:   append([]Window(nil), windows...),
	}, nil
}

func matchTitle(club, opponent string) string {
	club = textutil.TitleCase(club)
	opponent = textutil.TitleCase(opponent)
	if opponent == "" {
		return club
	}
	return club + " vs " + opponent
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// escapeConcatPath quotes a path for the concat demuxer's single-quoted syntax.
func escapeConcatPath(path string) string {
	return strings.ReplaceAll(path, "'", `'\''`)
}
