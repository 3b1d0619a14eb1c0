// Package handlers implements the HTTP handlers for the ragjenkins server.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/agentoven/ragjenkins/internal/activity"
	"github.com/agentoven/ragjenkins/internal/agent"
	"github.com/agentoven/ragjenkins/internal/api/middleware"
	"github.com/agentoven/ragjenkins/internal/archive"
	"github.com/agentoven/ragjenkins/internal/config"
	"github.com/agentoven/ragjenkins/internal/index"
	"github.com/agentoven/ragjenkins/internal/jenkins"
	"github.com/agentoven/ragjenkins/internal/rag"
	"github.com/agentoven/ragjenkins/pkg/contracts"
)

// HealthReporter checks a group of backends, keyed by backend name.
type HealthReporter func(ctx context.Context) map[string]error

// Handlers holds all handler dependencies.
type Handlers struct {
	Config      *config.Config
	Collections *index.Manager
	Ingester    *rag.Ingester
	Model       contracts.ChatModel
	// Jenkins is nil when no Jenkins server is configured.
	Jenkins     contracts.JenkinsService
	AgentConfig agent.Config
	Observers   []agent.Observer
	Activity    *activity.Feed
	Checks      map[string]HealthReporter
	// Providers lists the configured chat provider names for /api/config.
	Providers []string
	Templates []string
}

// collection resolves the collection selected by the request, replying 400
// for an invalid name.
func (h *Handlers) collection(w http.ResponseWriter, r *http.Request) (*index.Collection, bool) {
	coll, err := h.Collections.Get(middleware.GetCollection(r.Context()))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return coll, true
}

// ── Health & Info ────────────────────────────────────────────

// Health handles GET /health.
// Always returns 200 with per-component status in the body.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.Checks))
	for name := range h.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "healthy"
	components := make(map[string]map[string]string, len(names))
	for _, name := range names {
		results := make(map[string]string)
		for backend, err := range h.Checks[name](r.Context()) {
			if err != nil {
				results[backend] = "error: " + err.Error()
				status = "degraded"
				continue
			}
			results[backend] = "ok"
		}
		components[name] = results
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"service":    "ragjenkins",
		"components": components,
	})
}

// Version handles GET /version.
func (h *Handlers) Version(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"version": h.Config.Version,
		"service": "ragjenkins",
	})
}

// configView is what GET /api/config exposes. It never carries secrets.
type configView struct {
	Version           string   `json:"version"`
	LLMConfigured     bool     `json:"llm_configured"`
	LLMModel          string   `json:"llm_model"`
	Providers         []string `json:"providers"`
	EmbeddingProvider string   `json:"embedding_provider"`
	VectorStore       string   `json:"vector_store"`
	ChunkSize         int      `json:"chunk_size"`
	Collections       []string `json:"collections"`
	Jenkins           struct {
		Configured bool     `json:"configured"`
		URL        string   `json:"url,omitempty"`
		DefaultJob string   `json:"default_job"`
		Templates  []string `json:"templates,omitempty"`
	} `json:"jenkins"`
	MaxIterations int  `json:"max_iterations"`
	AuthEnabled   bool `json:"auth_enabled"`
}

// GetConfig handles GET /api/config.
func (h *Handlers) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := h.Config
	view := configView{
		Version:           cfg.Version,
		LLMConfigured:     len(h.Providers) > 0,
		LLMModel:          cfg.OpenAI.ChatModel,
		Providers:         h.Providers,
		EmbeddingProvider: cfg.Embedding.Provider,
		VectorStore:       cfg.Vector.Store,
		ChunkSize:         cfg.Chunker.ChunkSize,
		Collections:       h.Collections.Names(),
		MaxIterations:     h.AgentConfig.MaxIterations,
		AuthEnabled:       len(cfg.Auth.APIKeys) > 0,
	}
	if view.Providers == nil {
		view.Providers = []string{}
	}
	view.Jenkins.Configured = h.Jenkins != nil
	view.Jenkins.DefaultJob = h.AgentConfig.DefaultJob
	if h.Jenkins != nil {
		view.Jenkins.URL = cfg.Jenkins.URL
		view.Jenkins.Templates = h.Templates
	}
	respondJSON(w, http.StatusOK, view)
}

// ── Helpers ──────────────────────────────────────────────────

// statusFor maps a domain error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, archive.ErrInvalidArchive), errors.Is(err, rag.ErrNoSupportedFiles),
		errors.Is(err, jenkins.ErrInvalidJobName):
		return http.StatusBadRequest
	case errors.Is(err, jenkins.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, agent.ErrBudgetExceeded):
		return http.StatusUnprocessableEntity
	case errors.Is(err, index.ErrEmbedding), errors.Is(err, jenkins.ErrAuth), errors.Is(err, agent.ErrLanguageModel):
		return http.StatusBadGateway
	case errors.Is(err, jenkins.ErrUnreachable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondErr replies with the status statusFor picks and logs server-side
// failures.
func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	respondError(w, status, err.Error())
}
