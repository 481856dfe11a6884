package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/pkg/errors"

	"github.com/fpt/llmbench/pkg/domain"
	"github.com/fpt/llmbench/pkg/logger"
	"github.com/fpt/llmbench/pkg/model"
	"github.com/fpt/llmbench/pkg/usage"
)

const (
	pingModel     = "claude-3-haiku-20240307"
	pingMaxTokens = 50
	pingPrompt    = "Say hello in one sentence"

	maxTokensStopReason = "max_tokens"
)

// AnthropicCore contains shared Anthropic client resources
type AnthropicCore struct {
	client *anthropic.Client
}

// NewAnthropicCore creates the SDK client with retries disabled
func NewAnthropicCore(apiKey string, opts ...option.RequestOption) (*AnthropicCore, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Anthropic %w (set ANTHROPIC_API_KEY)", domain.ErrMissingAPIKey)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	reqOpts = append(reqOpts, opts...)

	client := anthropic.NewClient(reqOpts...)
	return &AnthropicCore{client: &client}, nil
}

// AnthropicClient handles communication with Claude models.
// Implements domain.Provider and domain.Pinger.
type AnthropicClient struct {
	*AnthropicCore
	logger *logger.Logger
}

// NewAnthropicClient creates a new Anthropic adapter. baseURL may be empty.
func NewAnthropicClient(apiKey, baseURL string) (*AnthropicClient, error) {
	var opts []option.RequestOption
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return NewAnthropicClientWithOptions(apiKey, opts...)
}

// NewAnthropicClientWithOptions creates a new Anthropic adapter with extra SDK options
func NewAnthropicClientWithOptions(apiKey string, opts ...option.RequestOption) (*AnthropicClient, error) {
	core, err := NewAnthropicCore(apiKey, opts...)
	if err != nil {
		return nil, err
	}
	return NewAnthropicClientFromCore(core), nil
}

// NewAnthropicClientFromCore creates a new Anthropic client from shared core
func NewAnthropicClientFromCore(core *AnthropicCore) *AnthropicClient {
	return &AnthropicClient{
		AnthropicCore: core,
		logger:        logger.NewComponentLogger("anthropic"),
	}
}

// Name implements domain.Provider
func (c *AnthropicClient) Name() model.Provider {
	return model.ProviderAnthropic
}

// buildParams translates a neutral request into message params. Claude has
// no JSON response mode, so the system message always asks for JSON.
func buildParams(req domain.Request) anthropic.MessageNewParams {
	system := domain.ResolveSystemMessage(req.SystemMessage, true)

	maxTokens := int64(req.Info.OutputLimit)
	if maxTokens <= 0 {
		maxTokens = model.FallbackOutputLimit
	}

	return anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
}

// textContent joins the text blocks of a message
func textContent(msg *anthropic.Message) string {
	var parts []string
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Complete implements domain.Provider
func (c *AnthropicClient) Complete(ctx context.Context, req domain.Request) domain.APIResponse {
	log := c.logger.WithModel(req.Model)
	start := time.Now()

	msg, err := c.client.Messages.New(ctx, buildParams(req))
	if err != nil {
		log.ErrorWithIcon("❌", "Anthropic API call failed", "error", err)
		return domain.NewFailure(req, err.Error())
	}

	if msg.StopReason == maxTokensStopReason {
		log.WarnWithIcon("🚨", "Response was cut off by max_tokens", "output_tokens", msg.Usage.OutputTokens)
	}

	tokenUsage := domain.NewTokenUsage(int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens))
	result := domain.NewResult(req, domain.Completion{
		Text:         textContent(msg),
		FinishReason: string(msg.StopReason),
		Usage:        &tokenUsage,
		Latency:      time.Since(start),
	})
	if !result.Success {
		log.WarnWithIcon("⚠️", "Model didn't return valid JSON", "stop_reason", result.FinishReason)
	} else {
		log.DebugWithIcon("✅", "Model responded", "input_tokens", tokenUsage.PromptTokens, "output_tokens", tokenUsage.CompletionTokens)
	}
	return result
}

// Stream implements domain.Provider using the Message.Accumulate pattern
func (c *AnthropicClient) Stream(ctx context.Context, req domain.Request, sink domain.Sink) (domain.StreamResult, error) {
	stream := c.client.Messages.NewStreaming(ctx, buildParams(req))
	defer stream.Close()

	var acc anthropic.Message
	var completion strings.Builder

	for stream.Next() {
		event := stream.Current()
		if err := acc.Accumulate(event); err != nil {
			return domain.StreamResult{}, errors.Wrap(err, "failed to accumulate streaming event")
		}

		delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		text, ok := delta.Delta.AsAny().(anthropic.TextDelta)
		if !ok || text.Text == "" {
			continue
		}
		completion.WriteString(text.Text)
		if err := sink.WriteChunk(text.Text); err != nil {
			return domain.StreamResult{}, errors.Wrap(err, "failed to forward chunk")
		}
	}
	if err := stream.Err(); err != nil {
		return domain.StreamResult{}, err
	}

	text := completion.String()
	return domain.StreamResult{
		Completion:   text,
		FinishReason: string(acc.StopReason),
		Usage:        usage.Estimate(req.Prompt, text, req.Info),
	}, nil
}

// Ping sends a fixed tiny prompt to check the key works
func (c *AnthropicClient) Ping(ctx context.Context) (domain.PingResult, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(pingModel),
		MaxTokens: pingMaxTokens,
		System:    []anthropic.TextBlockParam{{Text: domain.DefaultSystemMessage}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(pingPrompt)),
		},
	})
	if err != nil {
		return domain.PingResult{}, err
	}

	// only the first text block, the probe wants one sentence
	var text string
	for _, block := range msg.Content {
		if t, ok := block.AsAny().(anthropic.TextBlock); ok {
			text = t.Text
			break
		}
	}
	return domain.PingResult{
		Model:    string(msg.Model),
		Response: text,
		Usage:    domain.NewTokenUsage(int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens)),
	}, nil
}

// IsAuthError implements domain.Pinger
func (c *AnthropicClient) IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden {
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "authentication") ||
		strings.Contains(msg, "auth") ||
		strings.Contains(msg, "apiKey") ||
		strings.Contains(msg, "API key")
}
