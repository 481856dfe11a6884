package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
	"github.com/pkg/errors"

	"github.com/fpt/llmbench/pkg/domain"
	"github.com/fpt/llmbench/pkg/logger"
	"github.com/fpt/llmbench/pkg/model"
	"github.com/fpt/llmbench/pkg/usage"
)

const (
	pingModel     = "gpt-3.5-turbo"
	pingMaxTokens = 20
	pingPrompt    = `Respond with a simple "Hello, the API key is working!" if you receive this message.`
)

// OpenAICore holds shared resources for OpenAI clients
type OpenAICore struct {
	client *openai.Client
}

// NewOpenAICore creates the SDK client. Retries are disabled: every vendor
// failure is terminal for that call.
func NewOpenAICore(apiKey string, opts ...option.RequestOption) (*OpenAICore, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI %w (set OPENAI_API_KEY)", domain.ErrMissingAPIKey)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	reqOpts = append(reqOpts, opts...)

	client := openai.NewClient(reqOpts...)
	return &OpenAICore{client: &client}, nil
}

// OpenAIClient implements domain.Provider and domain.Pinger
type OpenAIClient struct {
	*OpenAICore
	logger *logger.Logger
}

// NewOpenAIClient creates a new OpenAI adapter. baseURL may be empty.
func NewOpenAIClient(apiKey, baseURL string) (*OpenAIClient, error) {
	var opts []option.RequestOption
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return NewOpenAIClientWithOptions(apiKey, opts...)
}

// NewOpenAIClientWithOptions creates a new OpenAI adapter with extra SDK options
func NewOpenAIClientWithOptions(apiKey string, opts ...option.RequestOption) (*OpenAIClient, error) {
	core, err := NewOpenAICore(apiKey, opts...)
	if err != nil {
		return nil, err
	}
	return NewOpenAIClientFromCore(core), nil
}

// NewOpenAIClientFromCore creates a new client instance from an existing core
func NewOpenAIClientFromCore(core *OpenAICore) *OpenAIClient {
	return &OpenAIClient{
		OpenAICore: core,
		logger:     logger.NewComponentLogger("openai"),
	}
}

// Name implements domain.Provider
func (c *OpenAIClient) Name() model.Provider {
	return model.ProviderOpenAI
}

// buildParams translates a neutral request into chat completion params
func buildParams(req domain.Request) openai.ChatCompletionNewParams {
	caps := getModelCapabilities(req.Model)
	system := domain.ResolveSystemMessage(req.SystemMessage, caps.SupportsJSONMode)

	var messages []openai.ChatCompletionMessageParamUnion
	if caps.SupportsSystemPrompt {
		messages = append(messages,
			openai.SystemMessage(system),
			openai.UserMessage(req.Prompt),
		)
	} else {
		messages = append(messages, openai.UserMessage(system+"\n\n"+req.Prompt))
	}

	params := openai.ChatCompletionNewParams{
		Messages: messages,
		Model:    shared.ChatModel(req.Model),
	}

	limit := int64(req.Info.OutputLimit)
	if caps.UsesCompletionTokenLimit {
		params.MaxCompletionTokens = openai.Int(limit)
	} else {
		params.MaxTokens = openai.Int(limit)
	}

	if caps.SupportsJSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return params
}

// Complete implements domain.Provider
func (c *OpenAIClient) Complete(ctx context.Context, req domain.Request) domain.APIResponse {
	log := c.logger.WithModel(req.Model)
	start := time.Now()

	completion, err := c.client.Chat.Completions.New(ctx, buildParams(req))
	if err != nil {
		log.ErrorWithIcon("❌", "OpenAI API call failed", "error", err)
		return domain.NewFailure(req, err.Error())
	}
	if len(completion.Choices) == 0 {
		return domain.NewFailure(req, "no response from OpenAI")
	}

	choice := completion.Choices[0]
	tokenUsage := domain.NewTokenUsage(int(completion.Usage.PromptTokens), int(completion.Usage.CompletionTokens))

	result := domain.NewResult(req, domain.Completion{
		Text:         choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage:        &tokenUsage,
		Latency:      time.Since(start),
	})
	if !result.Success {
		log.WarnWithIcon("⚠️", "Model didn't return valid JSON", "finish_reason", result.FinishReason)
	} else {
		log.DebugWithIcon("✅", "Model responded", "prompt_tokens", tokenUsage.PromptTokens, "completion_tokens", tokenUsage.CompletionTokens)
	}
	return result
}

// Stream implements domain.Provider
func (c *OpenAIClient) Stream(ctx context.Context, req domain.Request, sink domain.Sink) (domain.StreamResult, error) {
	stream := c.client.Chat.Completions.NewStreaming(ctx, buildParams(req))
	defer stream.Close()

	var completion strings.Builder
	var finishReason string

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			finishReason = string(choice.FinishReason)
		}
		delta := choice.Delta.Content
		if delta == "" {
			continue
		}
		completion.WriteString(delta)
		if err := sink.WriteChunk(delta); err != nil {
			return domain.StreamResult{}, errors.Wrap(err, "failed to forward chunk")
		}
	}
	if err := stream.Err(); err != nil {
		return domain.StreamResult{}, err
	}

	text := completion.String()
	return domain.StreamResult{
		Completion:   text,
		FinishReason: finishReason,
		Usage:        usage.Estimate(req.Prompt, text, req.Info),
	}, nil
}

// Ping sends a fixed tiny prompt to check the key works
func (c *OpenAIClient) Ping(ctx context.Context) (domain.PingResult, error) {
	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(pingModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(domain.DefaultSystemMessage),
			openai.UserMessage(pingPrompt),
		},
		MaxTokens: openai.Int(pingMaxTokens),
	})
	if err != nil {
		return domain.PingResult{}, err
	}

	var text string
	if len(completion.Choices) > 0 {
		text = completion.Choices[0].Message.Content
	}
	return domain.PingResult{
		Model:    completion.Model,
		Response: text,
		Usage:    domain.NewTokenUsage(int(completion.Usage.PromptTokens), int(completion.Usage.CompletionTokens)),
	}, nil
}

// IsAuthError implements domain.Pinger
func (c *OpenAIClient) IsAuthError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 401 || apiErr.StatusCode == 403
	}
	return false
}
