package assembly

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"matchreel/internal/analysis"
	"matchreel/internal/logging"
	"matchreel/internal/queue"
	"matchreel/internal/services"
)

type recordingRunner struct {
	mu    sync.Mutex
	calls [][]string
	lists []string
	fail  string
}

func (r *recordingRunner) run(_ context.Context, _ string, args ...string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, args)
	for i, arg := range args {
		if arg == "concat" && i+4 < len(args) {
			data, err := os.ReadFile(args[i+4])
			if err != nil {
				return nil, err
			}
			r.lists = append(r.lists, string(data))
		}
	}
	output := args[len(args)-1]
	if r.fail != "" && strings.Contains(output, r.fail) {
		return []byte("boom"), errors.New("exit status 1")
	}
	return nil, os.WriteFile(output, []byte("clip-bytes"), 0o644)
}

func sampleRequest(t *testing.T) Request {
	t.Helper()
	return Request{
		JobID:     "job-1",
		VideoPath: "/videos/match.mp4",
		WorkDir:   t.TempDir(),
		Club:      "Harbour FC",
		Opponent:  "Rovers",
		Highlights: []analysis.Candidate{
			{Start: 10, End: 20, Peak: 15, Confidence: 0.8, Label: "goal", Player: "Smith"},
			{Start: 100, End: 103, Peak: 101, Confidence: 0.7, Label: "shot", Player: "Jones"},
		},
		ManualCuts:       []queue.ManualCut{{Start: 210, End: 220}},
		PlayerHighlights: true,
		MinClipSeconds:   6,
		MaxClipSeconds:   45,
	}
}

func TestFFmpegAssemblerBuildsTeamAndPlayerClips(t *testing.T) {
	runner := &recordingRunner{}
	assembler := NewFFmpegAssembler("ffmpeg", logging.NewNop(), WithRunner(runner.run))
	req := sampleRequest(t)

	out, err := assembler.Assemble(context.Background(), req)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(runner.calls) != 6 {
		t.Fatalf("expected 3 extracts + 3 concats, got %d calls", len(runner.calls))
	}
	if len(out.Clips) != 3 {
		t.Fatalf("expected team + 2 player clips, got %+v", out.Clips)
	}

	team := out.Clips[0]
	if team.Kind != KindTeam || team.Title != "Harbour FC vs Rovers - Team Highlights" {
		t.Fatalf("unexpected team clip %+v", team)
	}
	if filepath.Base(team.Path) != "harbour-fc-vs-rovers-team.mp4" {
		t.Fatalf("unexpected team path %s", team.Path)
	}
	if team.Duration != 26 || team.SizeBytes != int64(len("clip-bytes")) || len(team.Windows) != 3 {
		t.Fatalf("unexpected team metrics %+v", team)
	}
	if strings.Count(runner.lists[0], "file '") != 3 {
		t.Fatalf("team concat list should reference 3 segments:\n%s", runner.lists[0])
	}

	jones, smith := out.Clips[1], out.Clips[2]
	if jones.Player != "Jones" || smith.Player != "Smith" || smith.Kind != KindPlayer {
		t.Fatalf("unexpected player clips %+v %+v", jones, smith)
	}
	if smith.Title != "Harbour FC vs Rovers - Smith Highlights" || smith.Duration != 10 {
		t.Fatalf("unexpected smith clip %+v", smith)
	}

	extract := runner.calls[0]
	joined := strings.Join(extract, " ")
	if !strings.Contains(joined, "-ss 10.000 -i /videos/match.mp4 -t 10.000 -c copy") {
		t.Fatalf("unexpected extract args: %s", joined)
	}
	if _, err := os.Stat(strings.TrimSuffix(team.Path, ".mp4") + ".txt"); !os.IsNotExist(err) {
		t.Fatalf("concat list should be removed, stat err=%v", err)
	}
}

func TestFFmpegAssemblerNoWindows(t *testing.T) {
	runner := &recordingRunner{}
	assembler := NewFFmpegAssembler("", logging.NewNop(), WithRunner(runner.run))
	req := sampleRequest(t)
	req.Highlights = nil
	req.ManualCuts = nil

	out, err := assembler.Assemble(context.Background(), req)
	if err != nil || len(out.Clips) != 0 || len(runner.calls) != 0 {
		t.Fatalf("expected empty output without ffmpeg calls, got %+v err=%v calls=%d", out, err, len(runner.calls))
	}
}

func TestFFmpegAssemblerReportsToolFailure(t *testing.T) {
	runner := &recordingRunner{fail: "segment-002"}
	assembler := NewFFmpegAssembler("ffmpeg", logging.NewNop(), WithRunner(runner.run))

	_, err := assembler.Assemble(context.Background(), sampleRequest(t))
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected ffmpeg output in error, got %v", err)
	}
}

func TestFFmpegAssemblerRequiresPaths(t *testing.T) {
	assembler := NewFFmpegAssembler("ffmpeg", logging.NewNop())
	_, err := assembler.Assemble(context.Background(), Request{WorkDir: t.TempDir()})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEscapeConcatPath(t *testing.T) {
	if got := escapeConcatPath("/tmp/o'neil.mp4"); got != `/tmp/o'\''neil.mp4` {
		t.Fatalf("escapeConcatPath = %s", got)
	}
}
