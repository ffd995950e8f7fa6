package daemon

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"matchreel/internal/api"
	"matchreel/internal/logging"
	"matchreel/internal/storage"
)

func (s *apiServer) handleStorageStatus(w http.ResponseWriter, r *http.Request) {
	scheduler := s.daemon.components.Scheduler
	if scheduler == nil {
		s.writeError(w, http.StatusServiceUnavailable, "storage management disabled")
		return
	}
	report, err := scheduler.Status(r.Context())
	if err != nil {
		report.Error = err.Error()
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *apiServer) handleStorageCleanup(w http.ResponseWriter, r *http.Request) {
	emergency, _ := strconv.ParseBool(r.URL.Query().Get("emergency"))
	resp := api.CleanupResponse{Reports: []storage.CleanupReport{}}

	if emergency {
		cleaner := s.daemon.components.Cleaner
		if cleaner == nil {
			s.writeError(w, http.StatusServiceUnavailable, "storage management disabled")
			return
		}
		report, err := cleaner.RunEmergency(r.Context())
		if err != nil {
			resp.Error = err.Error()
		}
		resp.Reports = append(resp.Reports, report)
		s.writeJSON(w, http.StatusOK, resp)
		return
	}

	scheduler := s.daemon.components.Scheduler
	if scheduler == nil {
		s.writeError(w, http.StatusServiceUnavailable, "storage management disabled")
		return
	}
	reports, err := scheduler.RunNow(r.Context())
	if errors.Is(err, storage.ErrCleanupRunning) {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		resp.Error = err.Error()
	}
	resp.Reports = append(resp.Reports, reports...)
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleMakePublic(w http.ResponseWriter, r *http.Request) {
	coordinator := s.daemon.components.Coordinator
	if coordinator == nil {
		s.writeError(w, http.StatusServiceUnavailable, "video host not configured")
		return
	}
	var req api.PublishRequest
	if !s.decode(w, r, &req) {
		return
	}

	var report storage.BatchReport
	switch ref := strings.TrimSpace(req.JobID); {
	case ref != "":
		job, err := s.daemon.store.Lookup(r.Context(), ref)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		report, err = coordinator.MakeJobPublic(r.Context(), job.ID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
	case len(req.IDs) > 0:
		report = coordinator.MakePublic(r.Context(), req.IDs)
	default:
		s.writeError(w, http.StatusBadRequest, "ids or jobId is required")
		return
	}

	logging.WithContext(r.Context(), s.logger).Info("publish request handled",
		logging.String(logging.FieldEventType, "publish_requested"),
		logging.Int("succeeded", len(report.Succeeded)),
		logging.Int("failed", len(report.Failed)),
	)
	resp := api.PublishResponse{Succeeded: report.Succeeded, Failed: report.Errors()}
	if resp.Succeeded == nil {
		resp.Succeeded = []string{}
	}
	s.writeJSON(w, http.StatusOK, resp)
}
