package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"matchreel/internal/api"
	"matchreel/internal/config"
	"matchreel/internal/daemon"
	"matchreel/internal/health"
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

// gateStage blocks Execute until release is closed.
type gateStage struct {
	noopStage
	entered chan struct{}
	release chan struct{}
}

func (g *gateStage) Execute(ctx context.Context, _ *queue.Job) error {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type cliTestEnv struct {
	cfg        *config.Config
	store      *queue.Store
	daemon     *daemon.Daemon
	gate       *gateStage
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithConcurrency(1))
	t.Setenv("HOME", filepath.Join(testsupport.BaseDir(cfg), "home"))
	store := testsupport.MustOpenStore(t, cfg)

	gate := &gateStage{entered: make(chan struct{}, 1), release: make(chan struct{})}
	mgr := workflow.NewManager(cfg, store, logging.NewNop())
	mgr.ConfigureStages(workflow.StageSet{
		Download:   gate,
		ParseNotes: noopStage{},
		Analyze:    noopStage{},
		Assemble:   noopStage{},
		Upload:     noopStage{},
	})
	d, err := daemon.New(cfg, store, logging.NewNop(), daemon.Components{Workflow: mgr})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(func() {
		select {
		case <-gate.release:
		default:
			close(gate.release)
		}
		d.Stop()
	})

	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg, d.Addr())
	return &cliTestEnv{cfg: cfg, store: store, daemon: d, gate: gate, configPath: configPath}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config, bind string) {
	t.Helper()
	content := fmt.Sprintf("[paths]\nwork_dir = %q\ndata_dir = %q\nlog_dir = %q\n\n[api]\nbind = %q\n",
		cfg.Paths.WorkDir, cfg.Paths.DataDir, cfg.Paths.LogDir, bind)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	if configPath != "" {
		args = append([]string{"--config", configPath}, args...)
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func waitForJobStatus(t *testing.T, store *queue.Store, ref string, want queue.Status) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.Lookup(context.Background(), ref)
		if err == nil && job.Status == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach %s", ref, want)
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, env.configPath, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, err = runCLI(t, "", "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}
	if _, err := runCLI(t, "", "config", "init", "--path", target); err == nil {
		t.Fatal("expected init to refuse overwriting")
	}
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	env := setupCLITestEnv(t)
	t.Setenv("MATCHREEL_API_TOKEN", "super-secret")

	out, err := runCLI(t, env.configPath, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "super-secret") {
		t.Fatalf("secret leaked in output: %s", out)
	}
	requireContains(t, out, "********")
}

func TestSubmitCancelRetryFlow(t *testing.T) {
	env := setupCLITestEnv(t)
	video := testsupport.WriteFile(t, filepath.Join(testsupport.BaseDir(env.cfg), "videos", "match.mp4"), 256)

	out, err := runCLI(t, env.configPath, "--json", "submit",
		"--club", "Harbour FC", "--opponent", "Rovers", "--date", "2024-10-12",
		"--video", video, "--notes", "15:30 - Smith goal")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	var submitted api.SubmitResponse
	if err := json.Unmarshal([]byte(out), &submitted); err != nil {
		t.Fatalf("decode submit output %q: %v", out, err)
	}

	select {
	case <-env.gate.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("job was never claimed")
	}

	out, err = runCLI(t, env.configPath, "jobs")
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	requireContains(t, out, submitted.JobID)
	requireContains(t, out, "Harbour FC vs Rovers")

	out, err = runCLI(t, env.configPath, "cancel", submitted.JobID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	requireContains(t, out, "will stop after its current stage")

	close(env.gate.release)
	waitForJobStatus(t, env.store, submitted.JobID, queue.StatusCancelled)

	out, err = runCLI(t, env.configPath, "show", submitted.JobID)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	requireContains(t, out, "cancelled")

	out, err = runCLI(t, env.configPath, "retry", submitted.JobID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	requireContains(t, out, "requeued")
	waitForJobStatus(t, env.store, submitted.JobID, queue.StatusCompleted)

	out, err = runCLI(t, env.configPath, "jobs", "--status", "completed")
	if err != nil {
		t.Fatalf("jobs --status: %v", err)
	}
	requireContains(t, out, submitted.JobID)
}

func TestUnknownJobReportsError(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, err := runCLI(t, env.configPath, "show", "nope"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
	if _, err := runCLI(t, env.configPath, "cancel", "nope"); err == nil {
		t.Fatal("expected cancel of unknown job to fail")
	}
	if _, err := runCLI(t, env.configPath, "jobs", "--status", "bogus"); err == nil {
		t.Fatal("expected invalid status to fail")
	}
}

func TestStatusAndHealthCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, env.configPath, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "running")
	requireContains(t, out, env.daemon.Addr())

	out, err = runCLI(t, env.configPath, "health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	requireContains(t, out, "Overall: healthy")

	if _, err := runCLI(t, env.configPath, "storage"); err == nil {
		t.Fatal("expected storage to fail without a scheduler")
	}
}

func TestRenderEndpointsShowsAverageLatency(t *testing.T) {
	records := []health.Record{
		{
			Endpoint:     health.Endpoint{Name: "worker-a", URL: "http://worker-a.local/health"},
			Status:       health.StatusHealthy,
			LastCheck:    &health.CheckResult{Healthy: true, LatencyMs: 120},
			AvgLatencyMs: 87.4,
			Uptime:       99.5,
		},
		{
			Endpoint: health.Endpoint{Name: "worker-b", URL: "http://worker-b.local/health"},
			Status:   health.StatusUnknown,
		},
	}
	out := renderEndpoints(records)
	requireContains(t, out, "Avg")
	requireContains(t, out, "120ms")
	requireContains(t, out, "87ms")
	requireContains(t, out, "99.50%")
}

func TestCommandsReportStoppedDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	env.daemon.Stop()

	_, err := runCLI(t, env.configPath, "status")
	if err == nil || !strings.Contains(err.Error(), "not running") {
		t.Fatalf("expected not running error, got %v", err)
	}
}

func TestLogsCommandFiltersByJob(t *testing.T) {
	env := setupCLITestEnv(t)
	logPath := filepath.Join(env.cfg.Paths.LogDir, logging.CurrentLogName)
	content := "level=INFO msg=\"stage started\" job_id=aaa\nlevel=WARN msg=\"retrying\" job_id=bbb\nlevel=INFO msg=\"done\" job_id=aaa\n"
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(logPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, err := runCLI(t, env.configPath, "logs", "--job", "aaa")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, "stage started")
	requireContains(t, out, "done")
	if strings.Contains(out, "retrying") {
		t.Fatalf("expected job filter to drop other jobs, got %q", out)
	}

	out, err = runCLI(t, env.configPath, "logs", "-n", "1")
	if err != nil {
		t.Fatalf("logs -n: %v", err)
	}
	if strings.Count(strings.TrimSpace(out), "\n") != 0 {
		t.Fatalf("expected a single line, got %q", out)
	}
}
