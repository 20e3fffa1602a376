package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Ajirohack/echo/internal/pipeline"
)

// ProvidersHandler exposes the configured backends and language set.
type ProvidersHandler struct {
	engine  Engine
	limiter pipeline.Limiter
}

// NewProvidersHandler creates the providers/languages endpoint handler.
func NewProvidersHandler(engine Engine, limiter pipeline.Limiter) *ProvidersHandler {
	return &ProvidersHandler{engine: engine, limiter: limiter}
}

// Routes registers the providers and languages endpoints.
func (h *ProvidersHandler) Routes(r chi.Router) {
	r.Get("/providers", h.Providers)
	r.Get("/languages", h.Languages)
}

// StageStatus pairs a stage's backend configuration with its remaining
// rate limit admissions. Remaining is -1 for an uncapped stage.
type StageStatus struct {
	pipeline.StageProviders
	Remaining int `json:"rate_limit_remaining"`
}

// Providers handles GET /api/v1/providers.
func (h *ProvidersHandler) Providers(w http.ResponseWriter, r *http.Request) {
	providers := h.engine.Providers()
	stages := make([]StageStatus, 0, len(providers))
	for _, sp := range providers {
		remaining := -1
		if h.limiter != nil {
			remaining = h.limiter.Remaining(sp.Stage)
		}
		stages = append(stages, StageStatus{StageProviders: sp, Remaining: remaining})
	}
	WriteJSON(w, http.StatusOK, map[string]any{"stages": stages})
}

// Languages handles GET /api/v1/languages.
func (h *ProvidersHandler) Languages(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{"languages": h.engine.Languages()})
}
