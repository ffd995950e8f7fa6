package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"matchreel/internal/api"
	"matchreel/internal/config"
	"matchreel/internal/deps"
	"matchreel/internal/logging"
	"matchreel/internal/queue"
	"matchreel/internal/services"
	"matchreel/internal/workflow"
)

// maxRequestBody bounds JSON request bodies.
const maxRequestBody = 1 << 20

type apiServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon

	handler http.Handler

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.API.Bind),
		token:  strings.TrimSpace(cfg.API.Token),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}
	srv.handler = srv.routes()
	return srv
}

func (s *apiServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("HEAD /health", s.handleHealth)

	s.handle(mux, "GET /api/status", s.handleStatus)
	s.handle(mux, "POST /api/jobs", s.handleSubmit)
	s.handle(mux, "GET /api/jobs", s.handleListJobs)
	s.handle(mux, "GET /api/jobs/{id}", s.handleGetJob)
	s.handle(mux, "DELETE /api/jobs/{id}", s.handleCancelJob)
	s.handle(mux, "POST /api/jobs/{id}/retry", s.handleRetryJob)

	s.handle(mux, "GET /api/health/endpoints", s.handleListEndpoints)
	s.handle(mux, "POST /api/health/endpoints", s.handleRegisterEndpoint)
	s.handle(mux, "DELETE /api/health/endpoints/{name}", s.handleRemoveEndpoint)
	s.handle(mux, "POST /api/health/check", s.handleCheckEndpoints)

	s.handle(mux, "GET /api/storage", s.handleStorageStatus)
	s.handle(mux, "POST /api/storage/cleanup", s.handleStorageCleanup)
	s.handle(mux, "POST /api/storage/public", s.handleMakePublic)
	return mux
}

func (s *apiServer) handle(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	mux.HandleFunc(pattern, authMiddleware(s.token, withRequestID(fn)))
}

func withRequestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	}
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.stop()
	}()

	s.logger.Info("api server listening",
		logging.String(logging.FieldEventType, "api_listening"),
		logging.String("address", listener.Addr().String()),
		logging.Bool("auth", s.token != ""),
	)
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	listener, server := s.listener, s.server
	s.listener, s.server = nil, nil
	s.mu.Unlock()
	if listener == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	_ = listener.Close()
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		Bind:         status.Bind,
		QueueDBPath:  status.QueueDBPath,
		LockFilePath: status.LockFilePath,
		Workflow:     workflowStatus(status.Workflow),
		Database:     api.FromDatabaseHealth(status.Database),
		Dependencies: dependencyStatus(status.Dependencies),
	})
}

func dependencyStatus(statuses []deps.Status) []api.DependencyStatus {
	out := make([]api.DependencyStatus, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, api.DependencyStatus{
			Name:        st.Name,
			Command:     st.Command,
			Path:        st.Path,
			Description: st.Description,
			Optional:    st.Optional,
			Available:   st.Available,
			Detail:      st.Detail,
		})
	}
	return out
}

func workflowStatus(summary workflow.StatusSummary) api.WorkflowStatus {
	out := api.WorkflowStatus{
		Running:    summary.Running,
		Workers:    summary.Workers,
		ActiveJobs: summary.ActiveJobs,
		Completed:  summary.Completed,
		Failed:     summary.Failed,
		QueueStats: api.MergeQueueStats(summary.QueueStats),
		LastError:  summary.LastError,
	}
	if summary.LastJob != nil {
		job := api.FromJob(summary.LastJob, nil)
		out.LastJob = &job
	}
	names := make([]string, 0, len(summary.StageHealth))
	for name := range summary.StageHealth {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		h := summary.StageHealth[name]
		out.StageHealth = append(out.StageHealth, api.StageHealth{Name: name, Ready: h.Ready, Detail: h.Detail})
	}
	return out
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.daemon.jobs.Submit(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	logging.WithContext(r.Context(), s.logger).Info("job submitted",
		logging.String(logging.FieldEventType, "job_submitted"),
		logging.String(logging.FieldJobID, resp.JobID),
		logging.String("club", req.Club),
	)
	s.writeJSON(w, http.StatusAccepted, resp)
}

func (s *apiServer) handleListJobs(w http.ResponseWriter, r *http.Request) {
	var statuses []queue.Status
	for _, raw := range r.URL.Query()["status"] {
		for value := range strings.SplitSeq(raw, ",") {
			if strings.TrimSpace(value) == "" {
				continue
			}
			status, ok := queue.ParseStatus(value)
			if !ok {
				s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", value))
				return
			}
			statuses = append(statuses, status)
		}
	}
	jobs, err := s.daemon.jobs.List(r.Context(), statuses...)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if jobs == nil {
		jobs = []api.Job{}
	}
	s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: jobs})
}

func (s *apiServer) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.daemon.jobs.Describe(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: *job})
}

func (s *apiServer) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	result, err := s.daemon.jobs.Cancel(r.Context(), []string{r.PathValue("id")})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	code := http.StatusOK
	if len(result.Jobs) == 1 {
		switch result.Jobs[0].Outcome {
		case api.CancelNotFound:
			code = http.StatusNotFound
		case api.CancelFinished:
			code = http.StatusConflict
		}
	}
	s.writeJSON(w, code, result)
}

func (s *apiServer) handleRetryJob(w http.ResponseWriter, r *http.Request) {
	result, err := s.daemon.jobs.Retry(r.Context(), []string{r.PathValue("id")})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	code := http.StatusOK
	if len(result.Jobs) == 1 {
		switch result.Jobs[0].Outcome {
		case api.RetryNotFound:
			code = http.StatusNotFound
		case api.RetryNotFailed:
			code = http.StatusConflict
		}
	}
	s.writeJSON(w, code, result)
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, queue.ErrJobNotFound), errors.Is(err, services.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, queue.ErrJobFinished):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrValidation):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrConfiguration):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("api request failed", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}
