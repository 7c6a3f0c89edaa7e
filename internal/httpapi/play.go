package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ideagent/backend/internal/playflow"
	"github.com/ideagent/backend/internal/stream"
	"github.com/ideagent/backend/internal/token"
)

type createPlayRequest struct {
	UserID    string            `json:"user_id"`
	Project   map[string]string `json:"project"`
	EntryPath string            `json:"entry_path"`
	Runtime   string            `json:"runtime"`
	Env       map[string]string `json:"env"`
}

// handleCreatePlay implements POST /api/play: mints a task_id and a
// resume token carrying the play payload (spec.md §6).
func (s *Server) handleCreatePlay(w http.ResponseWriter, r *http.Request) {
	var req createPlayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	payload := token.PlayPayload{
		UserID:    req.UserID,
		Project:   req.Project,
		EntryPath: req.EntryPath,
		Runtime:   req.Runtime,
		Env:       req.Env,
	}
	signed, err := s.signer.Sign(payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to sign token")
		return
	}

	writeJSON(w, http.StatusOK, createRunResponse{TaskID: newTaskID("play"), StreamToken: signed})
}

// handlePlayEvents implements GET /api/play/{play_id}/events: verifies the
// token and drives the play flow (compile/install/run the entry file)
// against the Sandbox Session Manager.
func (s *Server) handlePlayEvents(w http.ResponseWriter, r *http.Request) {
	playID := r.PathValue("play_id")
	var payload token.PlayPayload
	if err := s.signer.Verify(r.URL.Query().Get("token"), &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid or expired token")
		return
	}

	sink, err := stream.NewSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	playflow.Run(r.Context(), playID, s.sandboxMgr, playflow.Params{
		UserID:    payload.UserID,
		Project:   payload.Project,
		EntryPath: payload.EntryPath,
		Runtime:   payload.Runtime,
		Env:       payload.Env,
	}, s.cfg.SandboxAppPort, sink)
}

// handlePlayStop implements DELETE /api/play/{play_id}?token=...&sandbox_id=...:
// verifies the token's authenticity (any valid, unexpired signature
// authorizes the stop; the play_id itself does not gate a specific
// sandbox_id per spec.md §6) and stops the named sandbox.
func (s *Server) handlePlayStop(w http.ResponseWriter, r *http.Request) {
	var payload token.PlayPayload
	if err := s.signer.Verify(r.URL.Query().Get("token"), &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid or expired token")
		return
	}

	sandboxID := r.URL.Query().Get("sandbox_id")
	if sandboxID == "" {
		writeError(w, http.StatusBadRequest, "sandbox_id is required")
		return
	}
	if err := s.sandboxMgr.StopByID(r.Context(), sandboxID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handlePlayProbe implements GET /api/play/probe?url=...: a server-side HEAD
// probe, retried as a GET when the HEAD request gets no response at all,
// bounded by an 8s timeout, grounded on original_source/backend/src/api/sandbox.py's
// probe_url.
func (s *Server) handlePlayProbe(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	client := &http.Client{
		Timeout: 8 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error { return nil },
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	status := probeOnce(ctx, client, http.MethodHead, url)
	if status == 0 {
		status = probeOnce(ctx, client, http.MethodGet, url)
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": status != 0, "status": nullableStatus(status)})
}

func probeOnce(ctx context.Context, client *http.Client, method, url string) int {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()
	return resp.StatusCode
}

func nullableStatus(status int) any {
	if status == 0 {
		return nil
	}
	return status
}
