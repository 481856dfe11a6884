package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/fpt/llmbench/internal/batch"
	"github.com/fpt/llmbench/internal/compare"
	"github.com/fpt/llmbench/internal/relay"
	"github.com/fpt/llmbench/pkg/domain"
	"github.com/fpt/llmbench/pkg/model"
)

// LLMTestRequest is the body of POST /api/llm-test
type LLMTestRequest struct {
	Prompt         string   `json:"prompt" jsonschema:"description=User prompt sent to every selected model"`
	SelectedModels []string `json:"selectedModels" jsonschema:"description=Model ids to run,minItems=1"`
	Streaming      bool     `json:"streaming,omitempty" jsonschema:"description=Stream plain text from a single model"`
	SystemMessage  *string  `json:"systemMessage,omitempty" jsonschema:"description=Overrides the default system message"`
}

// LLMTestResponse is the non-streaming answer of POST /api/llm-test
type LLMTestResponse struct {
	Results []domain.APIResponse `json:"results"`
	Summary compare.Report       `json:"summary"`
}

// MissingProvidersResponse is the 401 answer when vendor keys are absent
type MissingProvidersResponse struct {
	Error            string   `json:"error"`
	MissingProviders []string `json:"missingProviders"`
}

func (s *Server) handleLLMTest(w http.ResponseWriter, r *http.Request) {
	log := s.requestLogger(r)

	var req LLMTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if strings.TrimSpace(req.Prompt) == "" || len(req.SelectedModels) == 0 {
		writeError(w, http.StatusBadRequest, "Prompt and at least one model are required")
		return
	}
	if req.Streaming && len(req.SelectedModels) > 1 {
		writeError(w, http.StatusBadRequest, "Streaming supports exactly one model")
		return
	}

	log.Info("llm test",
		"models", req.SelectedModels,
		"streaming", req.Streaming,
		"prompt_chars", len(req.Prompt),
		"system_message", req.SystemMessage != nil && *req.SystemMessage != "")

	var unavailable []string
	for _, id := range req.SelectedModels {
		if !s.providers.Available(s.registry.Lookup(id).Provider) {
			unavailable = append(unavailable, id)
		}
	}
	if len(unavailable) > 0 {
		var names []string
		for _, p := range s.providers.Missing() {
			names = append(names, p.DisplayName())
		}
		writeJSON(w, http.StatusUnauthorized, MissingProvidersResponse{
			Error: fmt.Sprintf("API key missing for %s. Cannot use models: %s",
				strings.Join(names, " and "), strings.Join(unavailable, ", ")),
			MissingProviders: names,
		})
		return
	}

	if invalid := s.registry.Unknown(req.SelectedModels); len(invalid) > 0 {
		log.Warn("invalid models requested", "models", invalid)
		writeError(w, http.StatusBadRequest, "Invalid model(s): "+strings.Join(invalid, ", "))
		return
	}

	var systemMessage string
	if req.SystemMessage != nil {
		systemMessage = *req.SystemMessage
	}

	if req.Streaming {
		s.stream(w, r, req.Prompt, systemMessage, req.SelectedModels[0])
		return
	}

	infos := make([]model.ModelInfo, 0, len(req.SelectedModels))
	for _, id := range req.SelectedModels {
		infos = append(infos, s.registry.Lookup(id))
	}
	results := s.runner.Run(r.Context(), batch.Job{
		Prompt:        req.Prompt,
		SystemMessage: systemMessage,
		Models:        infos,
	})
	writeJSON(w, http.StatusOK, LLMTestResponse{
		Results: results,
		Summary: compare.Build(results),
	})
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request, prompt, systemMessage, id string) {
	info := s.registry.Lookup(id)
	provider, ok := s.providers.For(info.Provider)
	if !ok {
		// availability was checked above
		writeError(w, http.StatusUnauthorized, info.Provider.DisplayName()+" API key not configured")
		return
	}

	req := domain.Request{
		Model:         id,
		Prompt:        prompt,
		SystemMessage: systemMessage,
		Info:          info,
	}
	// r.Context() ends when the client disconnects, which cancels the vendor stream
	_ = relay.Relay(r.Context(), w, provider, req, s.requestLogger(r))
}

func (s *Server) handleCheckAPIKeys(w http.ResponseWriter, r *http.Request) {
	availability := s.providers.Availability()
	s.requestLogger(r).Info("api key status",
		"openai_available", availability.OpenAIAvailable,
		"anthropic_available", availability.AnthropicAvailable)
	writeJSON(w, http.StatusOK, availability)
}

// ProbeResponse is the answer of GET /api/test-<vendor>
type ProbeResponse struct {
	Success          bool   `json:"success"`
	APIKeyConfigured bool   `json:"apiKeyConfigured"`
	Model            string `json:"model,omitempty"`
	Response         string `json:"response,omitempty"`
	Usage            any    `json:"usage,omitempty"`
	Error            string `json:"error,omitempty"`
	IsAuthError      *bool  `json:"isAuthError,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

func (s *Server) handleTestProvider(provider model.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := s.requestLogger(r).WithComponent("probe")

		if !s.providers.Available(provider) {
			log.Warn("probe without API key", "provider", provider)
			writeJSON(w, http.StatusUnauthorized, ProbeResponse{
				Success:          false,
				APIKeyConfigured: false,
				Error:            provider.DisplayName() + " API key not found in environment variables",
			})
			return
		}

		pinger, ok := s.providers.Pinger(provider)
		if !ok {
			writeJSON(w, http.StatusNotImplemented, ProbeResponse{
				APIKeyConfigured: true,
				Error:            "connectivity probe not supported for " + provider.DisplayName(),
			})
			return
		}

		result, err := pinger.Ping(r.Context())
		if err != nil {
			isAuth := pinger.IsAuthError(err)
			status := http.StatusInternalServerError
			if isAuth {
				status = http.StatusUnauthorized
			}
			log.ErrorWithIcon("❌", "Connection test failed", "provider", provider, "auth_error", isAuth, "error", err)
			writeJSON(w, status, ProbeResponse{
				Success:          false,
				APIKeyConfigured: true,
				Error:            err.Error(),
				IsAuthError:      &isAuth,
			})
			return
		}

		var u any = result.Usage
		if provider == model.ProviderAnthropic {
			u = anthropicUsage{
				InputTokens:  result.Usage.PromptTokens,
				OutputTokens: result.Usage.CompletionTokens,
				TotalTokens:  result.Usage.TotalTokens,
			}
		}
		log.InfoWithIcon("✅", "Connection test succeeded", "provider", provider, "model", result.Model)
		writeJSON(w, http.StatusOK, ProbeResponse{
			Success:          true,
			APIKeyConfigured: true,
			Model:            result.Model,
			Response:         result.Response,
			Usage:            u,
		})
	}
}

// ModelView is a registry entry plus whether its vendor is configured
type ModelView struct {
	model.ModelInfo
	Available bool `json:"available"`
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	models := s.registry.Models()
	if filter := q.Get("filter"); filter != "" {
		filtered, err := s.registry.Filter(filter)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		models = filtered
	}

	var only model.Provider
	if p := q.Get("provider"); p != "" {
		parsed, err := model.ParseProvider(p)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		only = parsed
	}

	views := make([]ModelView, 0, len(models))
	for _, m := range models {
		if only != "" && m.Provider != only {
			continue
		}
		views = append(views, ModelView{ModelInfo: m, Available: s.providers.Available(m.Provider)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": views})
}
