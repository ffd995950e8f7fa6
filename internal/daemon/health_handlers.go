package daemon

import (
	"net/http"
	"strings"
	"time"

	"matchreel/internal/api"
	"matchreel/internal/health"
	"matchreel/internal/logging"
)

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if monitor := s.daemon.components.Monitor; monitor != nil {
		monitor.Handler().ServeHTTP(w, r)
		return
	}
	s.writeJSON(w, http.StatusOK, health.Summary{
		Overall:     health.OverallHealthy,
		Endpoints:   []health.Record{},
		GeneratedAt: time.Now().UTC(),
	})
}

func (s *apiServer) monitor(w http.ResponseWriter) *health.Monitor {
	monitor := s.daemon.components.Monitor
	if monitor == nil {
		s.writeError(w, http.StatusServiceUnavailable, "health monitor disabled")
	}
	return monitor
}

func (s *apiServer) handleListEndpoints(w http.ResponseWriter, _ *http.Request) {
	monitor := s.monitor(w)
	if monitor == nil {
		return
	}
	s.writeJSON(w, http.StatusOK, monitor.Summary())
}

func (s *apiServer) handleRegisterEndpoint(w http.ResponseWriter, r *http.Request) {
	monitor := s.monitor(w)
	if monitor == nil {
		return
	}
	var req api.RegisterEndpointRequest
	if !s.decode(w, r, &req) {
		return
	}
	ep := health.Endpoint{
		Name:     req.Name,
		URL:      req.URL,
		Critical: req.Critical,
		Timeout:  time.Duration(req.TimeoutSeconds) * time.Second,
	}
	if err := monitor.Register(ep); err != nil {
		s.writeServiceError(w, err)
		return
	}
	record, err := monitor.CheckNow(r.Context(), strings.TrimSpace(req.Name))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, record)
}

func (s *apiServer) handleRemoveEndpoint(w http.ResponseWriter, r *http.Request) {
	monitor := s.monitor(w)
	if monitor == nil {
		return
	}
	name := r.PathValue("name")
	if !monitor.Remove(name) {
		s.writeError(w, http.StatusNotFound, "endpoint "+name+" is not registered")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleCheckEndpoints(w http.ResponseWriter, r *http.Request) {
	monitor := s.monitor(w)
	if monitor == nil {
		return
	}
	name := strings.TrimSpace(r.URL.Query().Get("endpoint"))
	if name == "" {
		records := monitor.CheckAll(r.Context())
		if records == nil {
			records = []health.Record{}
		}
		s.logger.Debug("manual health check", logging.Int("endpoints", len(records)))
		s.writeJSON(w, http.StatusOK, records)
		return
	}
	record, err := monitor.CheckNow(r.Context(), name)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, []health.Record{record})
}
