package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mattjoyce/runlet/internal/events"
	"github.com/mattjoyce/runlet/internal/execute"
	"github.com/mattjoyce/runlet/internal/history"
)

const maxRunBody = 1 << 20 // 1 MiB

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	})
}

// handleCreateRun executes a command synchronously. Output chunks are
// published to the event hub while the child runs; the reply carries the
// complete result.
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRunBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Argv) == 0 {
		s.writeError(w, http.StatusBadRequest, "argv must not be empty")
		return
	}
	if req.TimeoutSeconds < 0 {
		s.writeError(w, http.StatusBadRequest, "timeout_seconds must not be negative")
		return
	}

	timeout := s.config.DefaultTimeout
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds * float64(time.Second))
	}

	runID := uuid.New().String()
	s.hub.Publish(events.TypeRunStarted, events.RunStarted{RunID: runID, Argv: req.Argv})

	cmd := execute.Command{
		Argv:    req.Argv,
		Dir:     req.Workdir,
		Env:     req.Env,
		Timeout: timeout,
		Notify:  []execute.Stream{execute.Stdout, execute.Stderr},
		OnEvent: func(ev execute.Event) {
			s.hub.Publish(events.TypeRunOutput, events.RunOutput{
				RunID:  runID,
				Stream: string(ev.Stream),
				Chunk:  string(ev.Data),
			})
		},
	}

	started := time.Now()
	res, err := s.executor.Run(cmd)
	finished := time.Now()

	if err != nil {
		s.hub.Publish(events.TypeRunFailed, events.RunFailed{RunID: runID, Error: err.Error()})
		s.recordFault(r, runID, req, started, finished, err)
		s.writeRunError(w, err)
		return
	}

	status := history.StatusSucceeded
	if res.ExitCode != 0 {
		status = history.StatusFailed
	}
	if _, err := s.store.Record(r.Context(), &history.Run{
		ID:         runID,
		Argv:       req.Argv,
		Workdir:    req.Workdir,
		Status:     status,
		ExitCode:   res.ExitCode,
		Stdout:     res.Stdout,
		Stderr:     res.Stderr,
		StartedAt:  started,
		FinishedAt: finished,
	}); err != nil {
		s.logger.Error("failed to record run", "run_id", runID, "error", err)
	}

	s.hub.Publish(events.TypeRunFinished, events.RunFinished{
		RunID:    runID,
		ExitCode: res.ExitCode,
		Duration: finished.Sub(started).String(),
	})

	respondJSON(w, http.StatusOK, RunResponse{
		ID:         runID,
		ExitCode:   res.ExitCode,
		Stdout:     res.Stdout,
		Stderr:     res.Stderr,
		DurationMS: finished.Sub(started).Milliseconds(),
	})
}

// recordFault persists a failed run attempt. Best-effort; the HTTP error
// reply is what the caller acts on.
func (s *Server) recordFault(r *http.Request, runID string, req RunRequest, started, finished time.Time, runErr error) {
	status := history.StatusLaunchFailed
	if errors.Is(runErr, execute.ErrTimeoutExceeded) {
		status = history.StatusTimedOut
	}
	if _, err := s.store.Record(r.Context(), &history.Run{
		ID:         runID,
		Argv:       req.Argv,
		Workdir:    req.Workdir,
		Status:     status,
		Detail:     runErr.Error(),
		StartedAt:  started,
		FinishedAt: finished,
	}); err != nil {
		s.logger.Error("failed to record run fault", "run_id", runID, "error", err)
	}
}

// writeRunError maps engine faults to HTTP statuses.
func (s *Server) writeRunError(w http.ResponseWriter, err error) {
	var te *execute.TimeoutError
	switch {
	case errors.As(err, &te):
		respondJSON(w, http.StatusRequestTimeout, ErrorResponse{Error: err.Error(), Pid: te.Pid})
	case errors.Is(err, execute.ErrCommandUnavailable):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, execute.ErrConfiguration):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := s.store.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]RunSummary, 0, len(runs))
	for _, run := range runs {
		out = append(out, summarize(run))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	run, err := s.store.Get(r.Context(), runID)
	if errors.Is(err, history.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, RunDetail{
		RunSummary: summarize(run),
		Workdir:    run.Workdir,
		Stdout:     run.Stdout,
		Stderr:     run.Stderr,
		Detail:     run.Detail,
	})
}

func summarize(run *history.Run) RunSummary {
	return RunSummary{
		ID:         run.ID,
		Argv:       run.Argv,
		Status:     string(run.Status),
		ExitCode:   run.ExitCode,
		StartedAt:  run.StartedAt.UTC().Format(time.RFC3339),
		DurationMS: run.Duration().Milliseconds(),
	}
}
