package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/MimeLyc/shorts-publisher/internal/jobs"
	"github.com/MimeLyc/shorts-publisher/pkg/icron"
	"github.com/MimeLyc/shorts-publisher/pkg/log"
	"github.com/go-chi/chi/v5"
)

const (
	defaultRunLimit  = 20
	statusRunHistory = 5
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
	})
}

// handleCron runs one pipeline pass detached from the request context.
func (s *Server) handleCron(w http.ResponseWriter, r *http.Request) {
	summary, err := s.runner.Run(context.WithoutCancel(r.Context()))
	if summary == nil {
		msg := "pipeline run failed"
		if err != nil {
			msg = err.Error()
		}
		writeError(w, http.StatusInternalServerError, msg)
		return
	}
	if err != nil {
		log.Warn("Pipeline run finished with errors: %v", err)
	}
	writeJSON(w, http.StatusOK, summary)
}

type statusResponse struct {
	Counts          map[jobs.Status]int `json:"counts"`
	Total           int                 `json:"total"`
	NextScheduledAt *time.Time          `json:"next_scheduled_at,omitempty"`
	Cron            *icron.TriggerInfo  `json:"cron,omitempty"`
	RecentRuns      []jobs.RunSummary   `json:"recent_runs"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := s.now()

	all, err := s.store.ListAll(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := statusResponse{
		Counts: jobs.CountByStatus(all),
		Total:  len(all),
	}

	next, ok, err := s.store.NextScheduledTime(ctx, now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if ok {
		resp.NextScheduledAt = &next
	}

	if s.cronExpr != "" {
		info, err := icron.GetTriggerInfo(s.cronExpr, now)
		if err != nil {
			log.Warn("Failed to compute cron trigger info: %v", err)
		} else {
			resp.Cron = info
		}
	}

	runs, err := s.store.ListRecentRunSummaries(ctx, statusRunHistory)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp.RecentRuns = runs

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	all, err := s.store.ListAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.store.Get(r.Context(), id)
	if errors.Is(err, jobs.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	runs, err := s.store.ListRecentRunSummaries(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}
