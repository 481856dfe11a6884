package domain

import (
	"encoding/json"
	"time"

	"github.com/fpt/llmbench/pkg/model"
	"github.com/fpt/llmbench/pkg/usage"
)

// TokenUsage is the token accounting reported by a vendor
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// NewTokenUsage fills TotalTokens from its parts
func NewTokenUsage(prompt, completion int) TokenUsage {
	return TokenUsage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}

// APIResponse is the per-model result envelope of a batch run.
// Response holds the parsed JSON body and is null on failure.
type APIResponse struct {
	Model          string           `json:"model"`
	ModelInfo      model.ModelInfo  `json:"modelInfo"`
	Response       json.RawMessage  `json:"response"`
	Raw            *string          `json:"raw"`
	Usage          *TokenUsage      `json:"usage,omitempty"`
	EstimatedUsage *usage.UsageData `json:"estimatedUsage,omitempty"`
	FinishReason   string           `json:"finish_reason,omitempty"`
	Success        bool             `json:"success"`
	Error          string           `json:"error,omitempty"`
	LatencyMs      int64            `json:"latencyMs"`
}

// NewFailure builds a failed envelope for req
func NewFailure(req Request, errMsg string) APIResponse {
	if errMsg == "" {
		errMsg = "Unknown error"
	}
	return APIResponse{
		Model:     req.Model,
		ModelInfo: req.Info,
		Response:  nil,
		Success:   false,
		Error:     errMsg,
	}
}

// Completion carries what a vendor returned for one non-streaming call
type Completion struct {
	Text         string
	FinishReason string
	Usage        *TokenUsage
	Latency      time.Duration
}

// NewResult turns a vendor completion into an envelope. The body must parse
// as JSON for the result to count as a success.
func NewResult(req Request, c Completion) APIResponse {
	raw := c.Text
	resp := APIResponse{
		Model:        req.Model,
		ModelInfo:    req.Info,
		Raw:          &raw,
		Usage:        c.Usage,
		FinishReason: c.FinishReason,
		LatencyMs:    c.Latency.Milliseconds(),
	}
	est := usage.Estimate(req.Prompt, c.Text, req.Info)
	resp.EstimatedUsage = &est

	body, err := ParseJSONBody(c.Text)
	if err != nil {
		resp.Error = ErrInvalidJSON.Error()
		return resp
	}
	resp.Response = body
	resp.Success = true
	return resp
}
