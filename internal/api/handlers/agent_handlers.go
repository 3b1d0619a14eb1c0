package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/agentoven/ragjenkins/internal/agent"
	"github.com/agentoven/ragjenkins/internal/jenkins"
	"github.com/agentoven/ragjenkins/pkg/contracts"
	"github.com/agentoven/ragjenkins/pkg/models"
)

// maxInstructionBytes bounds the JSON body of POST /api/agent/run.
const maxInstructionBytes = 64 << 10

// ══════════════════════════════════════════════════════════════
// ── Agent ────────────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// Agent builds an orchestrator that searches the given collection.
func (h *Handlers) Agent(search contracts.CodeSearcher) *agent.Orchestrator {
	opts := []agent.Option{agent.WithConfig(h.AgentConfig)}
	if h.Jenkins != nil {
		opts = append(opts, agent.WithJenkins(h.Jenkins))
	}
	for _, obs := range h.Observers {
		opts = append(opts, agent.WithObserver(obs))
	}
	return agent.New(h.Model, search, opts...)
}

// RunAgent handles POST /api/agent/run.
// Failed runs still return the partial turn next to the error.
func (h *Handlers) RunAgent(w http.ResponseWriter, r *http.Request) {
	coll, ok := h.collection(w, r)
	if !ok {
		return
	}

	var req models.AgentRunRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxInstructionBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Instruction) == "" {
		respondError(w, http.StatusBadRequest, "instruction is required")
		return
	}
	if h.Model == nil {
		respondError(w, http.StatusServiceUnavailable, "no language model configured")
		return
	}

	turn, err := h.Agent(coll).Run(r.Context(), req)
	if err != nil {
		respondJSON(w, statusFor(err), map[string]any{
			"error": err.Error(),
			"turn":  turn,
		})
		return
	}
	respondJSON(w, http.StatusOK, turn)
}

// ══════════════════════════════════════════════════════════════
// ── Jenkins ──────────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

type buildView struct {
	Job     string             `json:"job"`
	Build   int                `json:"build"`
	Status  models.BuildStatus `json:"status"`
	Console string             `json:"console,omitempty"`
	Issues  []string           `json:"issues,omitempty"`
}

// GetBuild handles GET /api/jenkins/jobs/{name}/builds/{number}[?console=1].
func (h *Handlers) GetBuild(w http.ResponseWriter, r *http.Request) {
	if h.Jenkins == nil {
		respondError(w, http.StatusServiceUnavailable, "Jenkins is not configured")
		return
	}

	name := chi.URLParam(r, "name")
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil || number <= 0 {
		respondError(w, http.StatusBadRequest, "build number must be a positive integer")
		return
	}

	job := &models.JenkinsJob{Name: name}
	status, err := h.Jenkins.GetStatus(r.Context(), job, number)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	view := buildView{Job: name, Build: number, Status: status}

	if console, _ := strconv.ParseBool(r.URL.Query().Get("console")); console {
		text, err := h.Jenkins.FetchConsole(r.Context(), job, number)
		if err != nil {
			respondErr(w, r, err)
			return
		}
		view.Console = text
		view.Issues = jenkins.AnalyzeConsole(text)
	}
	respondJSON(w, http.StatusOK, view)
}
