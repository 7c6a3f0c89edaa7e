package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ideagent/backend/internal/orchestrator"
	"github.com/ideagent/backend/internal/project"
	"github.com/ideagent/backend/internal/runctx"
	"github.com/ideagent/backend/internal/runstore"
	"github.com/ideagent/backend/internal/stream"
	"github.com/ideagent/backend/internal/token"
)

type createRunRequest struct {
	UserID         string                   `json:"user_id"`
	Query          string                   `json:"query"`
	Project        map[string]string        `json:"project"`
	MessageHistory []token.HistoryMessage   `json:"message_history"`
	Model          string                   `json:"model"`
}

type createRunResponse struct {
	TaskID      string `json:"task_id"`
	StreamToken string `json:"stream_token"`
}

// handleCreateRun implements POST /api/runs: validates the body, mints a
// task_id, and signs a resume token carrying the entire payload so the
// events endpoint can rebuild the run statelessly (spec.md §6).
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	payload := token.RunPayload{
		UserID:         req.UserID,
		Query:          req.Query,
		Project:        req.Project,
		MessageHistory: req.MessageHistory,
		Model:          req.Model,
	}
	signed, err := s.signer.Sign(payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to sign token")
		return
	}

	taskID := newTaskID("run")
	if s.store != nil {
		now := time.Now()
		_ = s.store.Set(r.Context(), taskID, runstore.Summary{TaskID: taskID, UserID: req.UserID, Status: runstore.StatusRunning, StartedAt: now, UpdatedAt: now}, s.cfg.RunStoreTTL)
	}

	writeJSON(w, http.StatusOK, createRunResponse{TaskID: taskID, StreamToken: signed})
}

// handleRunEvents implements GET /api/runs/{run_id}/events: verifies the
// token, rebuilds the Run Context from scratch, and drives the orchestrator
// until the stream ends.
func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	var payload token.RunPayload
	if err := s.signer.Verify(r.URL.Query().Get("token"), &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid or expired token")
		return
	}

	sink, err := stream.NewSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	rc := runctx.New(project.New(payload.Project), basePayloadFrom(payload))
	s.runAndRecord(r, runID, rc, sink, payload.UserID)
}

// handleRunResume implements GET /api/runs/{run_id}/resume: verifies the
// token, truncates the client-supplied execution result to the trailing
// 100KiB, and reruns the agent from scratch with exec_result set
// (spec.md §4.4 "Defer/Resume" — resume is stateless, not checkpointed).
func (s *Server) handleRunResume(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	var payload token.RunPayload
	if err := s.signer.Verify(r.URL.Query().Get("token"), &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid or expired token")
		return
	}

	sink, err := stream.NewSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	execResult := orchestrator.PrepareResume(r.URL.Query().Get("result"))
	rc := runctx.NewResumed(project.New(payload.Project), basePayloadFrom(payload), execResult)
	s.runAndRecord(r, runID, rc, sink, payload.UserID)
}

func (s *Server) runAndRecord(r *http.Request, runID string, rc *runctx.Context, sink stream.Sink, userID string) {
	s.orchestrator.Run(r.Context(), runID, rc, sink)

	if s.store == nil {
		return
	}
	status := runstore.StatusComplete
	if rc.IsDeferRequested() {
		status = runstore.StatusDeferred
	}
	_ = s.store.Set(r.Context(), runID, runstore.Summary{
		TaskID: runID, UserID: userID, Status: status, UpdatedAt: time.Now(),
	}, s.cfg.RunStoreTTL)
}

func basePayloadFrom(payload token.RunPayload) runctx.BasePayload {
	history := make([]runctx.Message, len(payload.MessageHistory))
	for i, m := range payload.MessageHistory {
		history[i] = runctx.Message{Role: m.Role, Content: m.Content}
	}
	return runctx.BasePayload{UserID: payload.UserID, Query: payload.Query, Model: payload.Model, MessageHistory: history}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
