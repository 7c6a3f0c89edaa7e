package httpapi

import "net/http"

// handleModels implements GET /api/models (C14): the static list of models
// the IDE's model picker offers, sourced from config.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"models":  s.cfg.AvailableModels,
		"default": s.cfg.ModelGatewayDefault,
	})
}
