package web

import (
	"context"
	"net/http"
	"time"

	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/core"
	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/logging"
	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/prospect"
)

// healthPingTimeout bounds the database check of /healthz.
const healthPingTimeout = 2 * time.Second

type healthResponse struct {
	Status   string                   `json:"status"`
	Database string                   `json:"database"`
	Imports  core.ImportLimiterStatus `json:"imports"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:   "ok",
		Database: "ok",
		Imports:  s.imports.LimiterStatus(),
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
	defer cancel()
	if err := s.db.Ping(ctx); err != nil {
		logging.FromContext(r.Context()).Warn("health check: database unreachable", "error", err)
		resp.Status = "degraded"
		resp.Database = "unreachable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.imports.RegistryStats(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleProspects selects registry establishments matching the criteria in
// the body and, with "inject", claims them as contacts.
func (s *Server) handleProspects(w http.ResponseWriter, r *http.Request) {
	var criteria prospect.Criteria
	if err := decodeJSON(w, r, &criteria); err != nil {
		s.respondError(w, r, err)
		return
	}
	res, err := s.prospects.Generate(r.Context(), criteria)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if res.Candidates == nil {
		res.Candidates = []prospect.Candidate{}
	}
	writeJSON(w, http.StatusOK, res)
}
