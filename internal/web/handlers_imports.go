package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/core"
	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/logging"
)

// sseKeepAlive is the interval of comment frames on an idle event stream.
var sseKeepAlive = 15 * time.Second

type startImportResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

// importResponse is a job with its live progress while it runs here.
type importResponse struct {
	*core.ImportJob
	Progress *core.ImportProgress `json:"progress,omitempty"`
	Percent  *int                 `json:"percent,omitempty"`
}

// handleStartImport starts a background import and answers 202 with the job
// id before any row is read.
func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	var req core.ImportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	id, err := s.imports.StartImport(withRequestMetadata(r.Context(), r), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/registry/imports/"+id.String())
	writeJSON(w, http.StatusAccepted, startImportResponse{
		JobID:  id.String(),
		Status: string(core.StatusRunning),
	})
}

func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", core.DefaultHistoryLimit)
	jobs, err := s.imports.ListRecentImports(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []core.ImportJob{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	id, err := jobIDParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	job, err := s.imports.GetImportStatus(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	resp := importResponse{ImportJob: job}
	if job.Status == core.StatusRunning {
		if p, err := s.imports.Progress(id); err == nil {
			pct := p.Percent()
			resp.Progress = &p
			resp.Percent = &pct
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleImportProgress returns the live progress snapshot. Only the process
// running the import has one.
func (s *Server) handleImportProgress(w http.ResponseWriter, r *http.Request) {
	id, err := jobIDParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	p, err := s.imports.Progress(id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleCancelImport(w http.ResponseWriter, r *http.Request) {
	id, err := jobIDParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.imports.CancelImport(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"jobId":  id.String(),
		"status": "cancelling",
	})
}

type previewRequest struct {
	core.ImportRequest
	Rows int `json:"rows,omitempty"`
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	preview, err := s.imports.PreviewSource(r.Context(), req.ImportRequest, req.Rows)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// handleImportEvents streams progress as server-sent events.
//
// Frames are "event: progress" with the progress JSON, then one
// "event: complete" carrying the persisted job once the import ends. A job
// that already finished gets the complete frame at once.
func (s *Server) handleImportEvents(w http.ResponseWriter, r *http.Request) {
	id, err := jobIDParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	progressCh, unsubscribe, err := s.imports.SubscribeProgress(id)
	if err != nil && !errors.Is(err, core.ErrImportNotActive) {
		s.respondError(w, r, err)
		return
	}
	if progressCh == nil {
		// Not running here: report the stored state if there is one.
		job, err := s.imports.GetImportStatus(r.Context(), id)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		if job.Status == core.StatusRunning {
			s.respondError(w, r, core.ErrImportNotActive)
			return
		}
		unsubscribe = func() {}
	}
	defer unsubscribe()

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, r, errors.New("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logger := logging.WithFields(r.Context(), "import_id", id)
	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	eventID := 0
	for progressCh != nil {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				progressCh = nil
				break
			}
			data, err := json.Marshal(progress)
			if err != nil {
				logger.Error("encode progress event", "error", err)
				continue
			}
			eventID++
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", eventID, data)
			flusher.Flush()

		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}

	job, err := s.imports.GetImportStatus(r.Context(), id)
	if err != nil {
		logger.Error("load finished import", "error", err)
		fmt.Fprint(w, "event: complete\ndata: {}\n\n")
		flusher.Flush()
		return
	}
	data, _ := json.Marshal(job)
	eventID++
	fmt.Fprintf(w, "id: %d\nevent: complete\ndata: %s\n\n", eventID, data)
	flusher.Flush()
}
