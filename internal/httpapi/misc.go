package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agentserver/agentserver/internal/apierror"
)

// mcpConfigDTO is the wire shape for a stored MCP server configuration.
type mcpConfigDTO struct {
	Name      string          `json:"name"`
	Config    json.RawMessage `json:"config,omitempty"`
	UpdatedAt int64           `json:"updatedAt,omitempty"`
}

func (s *Server) handleListMCPConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := s.db.ListMCPConfigs(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	dto := make([]mcpConfigDTO, len(configs))
	for i, c := range configs {
		dto[i] = mcpConfigDTO{Name: c.Name, UpdatedAt: c.UpdatedAt}
	}
	writeJSON(w, http.StatusOK, dto)
}

func (s *Server) handleGetMCPConfig(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	configJSON, err := s.db.GetMCPConfig(r.Context(), name)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mcpConfigDTO{Name: name, Config: json.RawMessage(configJSON)})
}

func (s *Server) handlePutMCPConfig(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var body json.RawMessage
	if err := decodeJSON(r, &body); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.db.UpsertMCPConfig(r.Context(), name, string(body), nowMillis()); err != nil {
		writeErr(w, err)
		return
	}
	writeSuccess(w)
}

func (s *Server) handleDeleteMCPConfig(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.db.DeleteMCPConfig(r.Context(), name); err != nil {
		writeErr(w, err)
		return
	}
	writeSuccess(w)
}

type systemPromptDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Text      string `json:"text"`
	UpdatedAt int64  `json:"updatedAt"`
}

func (s *Server) handleListSystemPrompts(w http.ResponseWriter, r *http.Request) {
	prompts, err := s.db.ListPrompts(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	dto := make([]systemPromptDTO, len(prompts))
	for i, p := range prompts {
		dto[i] = systemPromptDTO{ID: p.ID, Name: p.Name, Text: p.Text, UpdatedAt: p.UpdatedAt}
	}
	writeJSON(w, http.StatusOK, dto)
}

type modelDTO struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	ProviderID        string  `json:"providerId"`
	ContextLength     int     `json:"contextLength"`
	MaxOutputTokens   int     `json:"maxOutputTokens"`
	SupportsTools     bool    `json:"supportsTools"`
	SupportsVision    bool    `json:"supportsVision"`
	SupportsReasoning bool    `json:"supportsReasoning"`
	InputPrice        float64 `json:"inputPrice"`
	OutputPrice       float64 `json:"outputPrice"`
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	models := s.providers.AllModels()
	dto := make([]modelDTO, len(models))
	for i, m := range models {
		dto[i] = modelDTO{
			ID:                m.ID,
			Name:              m.Name,
			ProviderID:        m.ProviderID,
			ContextLength:     m.ContextLength,
			MaxOutputTokens:   m.MaxOutputTokens,
			SupportsTools:     m.SupportsTools,
			SupportsVision:    m.SupportsVision,
			SupportsReasoning: m.SupportsReasoning,
			InputPrice:        m.InputPrice,
			OutputPrice:       m.OutputPrice,
		}
	}
	writeJSON(w, http.StatusOK, dto)
}

// accountDTO summarizes one registered provider as an "account" a client
// can pick from. The OAuth account pool (internal/provider.AccountPool)
// tracks per-credential quota state below a single Gemini provider and
// isn't registered with the Registry by id, so the granularity exposed
// here is one entry per configured provider rather than per pooled
// credential; see DESIGN.md.
type accountDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	providers := s.providers.List()
	dto := make([]accountDTO, len(providers))
	for i, p := range providers {
		dto[i] = accountDTO{ID: p.ID(), Name: p.Name()}
	}
	writeJSON(w, http.StatusOK, dto)
}

type accountDetailsDTO struct {
	ID     string     `json:"id"`
	Name   string     `json:"name"`
	Models []modelDTO `json:"models"`
}

func (s *Server) handleAccountDetails(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := s.providers.Get(id)
	if err != nil {
		writeErr(w, apierror.NotFound("account %q not found", id))
		return
	}
	models := p.Models()
	dto := make([]modelDTO, len(models))
	for i, m := range models {
		dto[i] = modelDTO{
			ID:                m.ID,
			Name:              m.Name,
			ProviderID:        m.ProviderID,
			ContextLength:     m.ContextLength,
			MaxOutputTokens:   m.MaxOutputTokens,
			SupportsTools:     m.SupportsTools,
			SupportsVision:    m.SupportsVision,
			SupportsReasoning: m.SupportsReasoning,
			InputPrice:        m.InputPrice,
			OutputPrice:       m.OutputPrice,
		}
	}
	writeJSON(w, http.StatusOK, accountDetailsDTO{ID: p.ID(), Name: p.Name(), Models: dto})
}

type workspaceDTO struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	DefaultSystemPrompt string `json:"defaultSystemPrompt"`
}

func (s *Server) handleListWorkspaces(w http.ResponseWriter, r *http.Request) {
	workspaces, err := s.db.ListWorkspaces(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	dto := make([]workspaceDTO, len(workspaces))
	for i, ws := range workspaces {
		dto[i] = workspaceDTO{ID: ws.ID, Name: ws.Name, DefaultSystemPrompt: ws.DefaultSystemPrompt}
	}
	writeJSON(w, http.StatusOK, dto)
}
