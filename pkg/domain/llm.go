package domain

import (
	"context"
	"errors"

	"github.com/fpt/llmbench/pkg/model"
	"github.com/fpt/llmbench/pkg/usage"
)

var ErrMissingAPIKey = errors.New("API key not configured")

// Request is the vendor-neutral input to a provider call
type Request struct {
	Model         string
	Prompt        string
	SystemMessage string // empty means the default system message
	Info          model.ModelInfo
}

// Sink receives streamed text deltas in arrival order
type Sink interface {
	WriteChunk(chunk string) error
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(chunk string) error

func (f SinkFunc) WriteChunk(chunk string) error { return f(chunk) }

// StreamResult describes a finished stream. Usage is estimated from the
// prompt and the full completion text.
type StreamResult struct {
	Completion   string
	FinishReason string
	Usage        usage.UsageData
}

// Provider is an upstream LLM vendor adapter
type Provider interface {
	// Name returns the vendor this adapter talks to
	Name() model.Provider

	// Complete runs a non-streaming completion. Failures are reported inside
	// the returned envelope, never as a Go error.
	Complete(ctx context.Context, req Request) APIResponse

	// Stream forwards each text delta to sink as it arrives. The returned
	// error is non-nil when the vendor call or the sink failed.
	Stream(ctx context.Context, req Request, sink Sink) (StreamResult, error)
}

// PingResult is the diagnostic outcome of a fixed connectivity probe
type PingResult struct {
	Model    string     `json:"model"`
	Response string     `json:"response"`
	Usage    TokenUsage `json:"usage"`
}

// Pinger is implemented by providers that support a connectivity probe
type Pinger interface {
	Ping(ctx context.Context) (PingResult, error)

	// IsAuthError reports whether err was caused by rejected credentials
	IsAuthError(err error) bool
}
