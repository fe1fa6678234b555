package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/billbuster/billpoints/internal/document"
	"github.com/billbuster/billpoints/internal/pipeline"
)

type processRequest struct {
	Path string `json:"path"`
}

type batchProcessRequest struct {
	Paths []string `json:"paths"`
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Path == "" {
		jsonError(w, "path is required", http.StatusBadRequest)
		return
	}

	job, errMsg, code := s.submitPath(req.Path)
	if errMsg != "" {
		jsonError(w, errMsg, code)
		return
	}

	// The worker may already be mutating the job; read through Snapshot.
	snap := job.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"job_id":   snap.ID,
		"phase":    snap.Phase,
		"poll_url": fmt.Sprintf("/api/process/%s/status", snap.ID),
	})
}

func (s *Server) handleBatchProcess(w http.ResponseWriter, r *http.Request) {
	var req batchProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Paths) == 0 {
		jsonError(w, "at least one path is required", http.StatusBadRequest)
		return
	}

	var results []map[string]any
	for _, path := range req.Paths {
		job, errMsg, _ := s.submitPath(path)
		if errMsg != "" {
			results = append(results, map[string]any{
				"path":  path,
				"error": errMsg,
			})
			continue
		}
		snap := job.Snapshot()
		results = append(results, map[string]any{
			"path":     path,
			"job_id":   snap.ID,
			"phase":    snap.Phase,
			"poll_url": fmt.Sprintf("/api/process/%s/status", snap.ID),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{"jobs": results})
}

// submitPath validates a document path and queues a job for it.
func (s *Server) submitPath(path string) (*pipeline.Job, string, int) {
	if !document.IsSupported(path) {
		return nil, fmt.Sprintf("unsupported file type: %s", filepath.Ext(path)), http.StatusBadRequest
	}
	if _, err := os.Stat(path); err != nil {
		return nil, "document not found: " + path, http.StatusNotFound
	}

	now := time.Now()
	job := &pipeline.Job{
		ID:           uuid.NewString(),
		DocumentPath: path,
		Phase:        pipeline.PhaseQueued,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.orchestrator.Submit(job); err != nil {
		return nil, err.Error(), http.StatusServiceUnavailable
	}
	return job, "", 0
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	snap := job.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

func (s *Server) handlePoints(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	res := job.Result()
	if res == nil {
		jsonError(w, "job not finished", http.StatusConflict)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pipeline.NewExport(res))
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
