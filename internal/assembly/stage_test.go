package assembly

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"matchreel/internal/analysis"
	"matchreel/internal/config"
	"matchreel/internal/logging"
	"matchreel/internal/queue"
	"matchreel/internal/services"
)

type progressStore struct {
	updates []float64
}

func (p *progressStore) UpdateProgress(_ context.Context, job *queue.Job, status queue.Status, progress float64, _ string) error {
	p.updates = append(p.updates, progress)
	job.Status = status
	return nil
}

type fakeAssembler struct {
	got Request
	out Output
	err error
}

func (f *fakeAssembler) Assemble(_ context.Context, req Request) (Output, error) {
	f.got = req
	return f.out, f.err
}

func analyzedJob(t *testing.T) *queue.Job {
	t.Helper()
	result := analysis.Result{
		Highlights: []analysis.Candidate{{Start: 10, End: 20, Peak: 15, Confidence: 0.8, Label: "goal"}},
		Stats:      analysis.Stats{VideoSeconds: 5400},
	}
	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &queue.Job{
		ID:               3,
		PublicID:         "job-3",
		Club:             "Harbour FC",
		InputPath:        "/videos/match.mp4",
		WorkDir:          t.TempDir(),
		HighlightsJSON:   string(data),
		ManualCutsJSON:   `[{"start":100,"end":110,"description":"free kick"}]`,
		PlayerHighlights: true,
	}
}

func TestStageStoresClips(t *testing.T) {
	cfg := config.Default()
	store := &progressStore{}
	fake := &fakeAssembler{out: Output{Clips: []Clip{{Path: "/work/team.mp4", Kind: KindTeam, Title: "Harbour FC - Team Highlights"}}}}
	st := NewStage(&cfg, store, fake, logging.NewNop())
	job := analyzedJob(t)

	if err := st.Prepare(context.Background(), job); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := st.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if fake.got.VideoDuration != 5400 || len(fake.got.ManualCuts) != 1 || !fake.got.PlayerHighlights {
		t.Fatalf("unexpected request %+v", fake.got)
	}
	if fake.got.MinClipSeconds != cfg.Analysis.MinClipSeconds || fake.got.MaxClipSeconds != cfg.Analysis.MaxClipSeconds {
		t.Fatalf("clip limits not forwarded: %+v", fake.got)
	}
	out, err := DecodeOutput(job.ClipsJSON)
	if err != nil || len(out.Clips) != 1 || out.Clips[0].Kind != KindTeam {
		t.Fatalf("unexpected stored clips %+v err=%v", out, err)
	}
	if len(store.updates) != 2 || store.updates[0] != 70 || math.Abs(store.updates[1]-84.9) > 1e-9 {
		t.Fatalf("unexpected progress %v", store.updates)
	}
}

func TestStageWrapsAssemblerFailure(t *testing.T) {
	cfg := config.Default()
	st := NewStage(&cfg, &progressStore{}, &fakeAssembler{err: errors.New("disk full")}, logging.NewNop())
	err := st.Execute(context.Background(), analyzedJob(t))
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestStagePrepareRequiresWorkDir(t *testing.T) {
	cfg := config.Default()
	st := NewStage(&cfg, &progressStore{}, &fakeAssembler{}, logging.NewNop())
	job := analyzedJob(t)
	job.WorkDir = ""
	if err := st.Prepare(context.Background(), job); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDecodeOutputEmpty(t *testing.T) {
	out, err := DecodeOutput("")
	if err != nil || len(out.Clips) != 0 {
		t.Fatalf("expected empty output, got %+v err=%v", out, err)
	}
	if _, err := DecodeOutput("{"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
