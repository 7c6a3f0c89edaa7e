// Package httpapi implements the HTTP Surface (C8) and the two auxiliary
// single-shot endpoints from C14: the three endpoint families (runs, play,
// stop) spec.md §6 enumerates, each POST pairing with a GET that opens the
// resumable stream. Grounded on the teacher's example/cmd/assistant/http.go
// wiring shape, using net/http's method+pattern routing (Go 1.22+) in place
// of the teacher's goa-generated mux, since this surface is hand-specified
// rather than design-first generated.
package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ideagent/backend/internal/config"
	"github.com/ideagent/backend/internal/model"
	"github.com/ideagent/backend/internal/orchestrator"
	"github.com/ideagent/backend/internal/runstore"
	"github.com/ideagent/backend/internal/sandbox"
	"github.com/ideagent/backend/internal/telemetry"
	"github.com/ideagent/backend/internal/token"
	"github.com/ideagent/backend/internal/tools"
)

// Server wires every dependency the HTTP Surface needs to build a handler.
type Server struct {
	cfg          config.Config
	signer       *token.Signer
	store        runstore.Store
	modelClient  model.Client
	sandboxMgr   *sandbox.Manager
	registry     *tools.Registry
	orchestrator *orchestrator.Orchestrator
	logger       telemetry.Logger
	metrics      telemetry.Metrics
}

// New builds a Server from its fully-constructed dependencies; see
// cmd/server/main.go for the wiring order.
func New(cfg config.Config, signer *token.Signer, store runstore.Store, modelClient model.Client, sandboxMgr *sandbox.Manager, registry *tools.Registry, orch *orchestrator.Orchestrator, logger telemetry.Logger, metrics telemetry.Metrics) *Server {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	return &Server{cfg: cfg, signer: signer, store: store, modelClient: modelClient, sandboxMgr: sandboxMgr, registry: registry, orchestrator: orch, logger: logger, metrics: metrics}
}

// Handler builds the routed http.Handler for the full surface.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/runs", s.handleCreateRun)
	mux.HandleFunc("GET /api/runs/{run_id}/events", s.handleRunEvents)
	mux.HandleFunc("GET /api/runs/{run_id}/resume", s.handleRunResume)

	mux.HandleFunc("POST /api/play", s.handleCreatePlay)
	mux.HandleFunc("GET /api/play/probe", s.handlePlayProbe)
	mux.HandleFunc("GET /api/play/{play_id}/events", s.handlePlayEvents)
	mux.HandleFunc("DELETE /api/play/{play_id}", s.handlePlayStop)

	mux.HandleFunc("POST /api/inline-fix", s.handleInlineFix)
	mux.HandleFunc("GET /api/models", s.handleModels)

	return s.withLogging(mux)
}

// withLogging wraps every request with a timed access log line, matching
// the teacher's log.HTTP(ctx) middleware shape without depending on a
// clue-specific request ID scheme.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info(r.Context(), "http request", "method", r.Method, "path", r.URL.Path, "duration_ms", time.Since(start).Milliseconds())
		s.metrics.RecordTimer("http.request", time.Since(start), "path", r.URL.Path)
	})
}

func newTaskID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}
