package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"matchreel/internal/api"
	"matchreel/internal/config"
	"matchreel/internal/daemon"
	"matchreel/internal/logging"
	"matchreel/internal/queue"
	"matchreel/internal/stage"
	"matchreel/internal/testsupport"
	"matchreel/internal/workflow"
)

type noopStage struct{}

func (noopStage) Prepare(context.Context, *queue.Job) error { return nil }
func (noopStage) Execute(context.Context, *queue.Job) error { return nil }
func (noopStage) HealthCheck(context.Context) stage.Health {
	return stage.Healthy("noop")
}

func newDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	mgr := workflow.NewManager(cfg, store, logging.NewNop())
	mgr.ConfigureStages(workflow.StageSet{
		Download:   noopStage{},
		ParseNotes: noopStage{},
		Analyze:    noopStage{},
		Assemble:   noopStage{},
		Upload:     noopStage{},
	})
	d, err := daemon.New(cfg, store, logging.NewNop(), daemon.Components{Workflow: mgr})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	return d
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.Bind == "" || d.Addr() == "" {
		t.Fatal("expected api listener address")
	}
	if !status.Workflow.Running {
		t.Fatal("expected workflow to be running")
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	status = d.Status(ctx)
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
	if d.Addr() != "" {
		t.Fatalf("expected listener closed, got %q", d.Addr())
	}
}

func TestDaemonLockPreventsSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := newDaemon(t, cfg)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}

	otherCfg := *cfg
	otherCfg.API.Bind = "127.0.0.1:0"
	second := newDaemon(t, &otherCfg)
	if err := second.Start(context.Background()); err == nil {
		t.Fatal("expected lock contention error")
	}
	if got := second.Status(context.Background()).LockFilePath; got != filepath.Join(cfg.Paths.DataDir, "matchreel.lock") {
		t.Fatalf("unexpected lock path %q", got)
	}
}

func TestDaemonProcessesSubmittedJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	video := testsupport.WriteFile(t, filepath.Join(testsupport.BaseDir(cfg), "videos", "match.mp4"), 512)
	body, _ := json.Marshal(api.SubmitRequest{
		Club:      "Harbour FC",
		Opponent:  "Rovers",
		MatchDate: "2024-10-12",
		VideoRef:  video,
		Notes:     "15:30 - Smith goal",
	})
	resp, err := http.Post("http://"+d.Addr()+"/api/jobs", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	var submitted api.SubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&submitted); err != nil {
		t.Fatalf("decode: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := d.Jobs().Describe(context.Background(), submitted.JobID)
		if err != nil {
			t.Fatalf("Describe: %v", err)
		}
		if job.Status == string(queue.StatusCompleted) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("job did not complete")
}
