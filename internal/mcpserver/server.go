package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/fpt/llmbench/internal/batch"
	"github.com/fpt/llmbench/internal/compare"
	"github.com/fpt/llmbench/pkg/client"
	"github.com/fpt/llmbench/pkg/domain"
	"github.com/fpt/llmbench/pkg/logger"
	"github.com/fpt/llmbench/pkg/model"
	"github.com/fpt/llmbench/pkg/usage"
)

const serverName = "llmbench"

// Server exposes the workbench as MCP tools
type Server struct {
	registry  *model.Registry
	providers *client.Providers
	runner    *batch.Runner
	logger    *logger.Logger
	mcp       *server.MCPServer
}

// New creates the MCP server and registers its tools
func New(registry *model.Registry, providers *client.Providers, version string, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewComponentLogger("mcp")
	}
	s := &Server{
		registry:  registry,
		providers: providers,
		runner:    batch.NewRunner(providers, log.WithComponent("batch")),
		logger:    log,
		mcp:       server.NewMCPServer(serverName, version, server.WithToolCapabilities(false), server.WithRecovery()),
	}

	s.mcp.AddTool(mcp.NewTool("list_models",
		mcp.WithDescription("List the registered models with limits, prices and key availability"),
		mcp.WithString("provider", mcp.Description("Only list models of this vendor: openai or anthropic")),
		mcp.WithString("filter", mcp.Description(`Boolean filter expression, e.g. inputPrice < 0.001 && !deprecated`)),
	), s.listModels)

	s.mcp.AddTool(mcp.NewTool("estimate_cost",
		mcp.WithDescription("Estimate tokens and cost (USD and INR) of a prompt and optional completion for a model"),
		mcp.WithString("model", mcp.Required(), mcp.Description("Model id")),
		mcp.WithString("prompt", mcp.Required(), mcp.Description("Prompt text")),
		mcp.WithString("completion", mcp.Description("Completion text, empty for prompt-only estimates")),
	), s.estimateCost)

	s.mcp.AddTool(mcp.NewTool("compare_models",
		mcp.WithDescription("Send one prompt to several models concurrently and return the results with a cost and diff summary"),
		mcp.WithString("prompt", mcp.Required(), mcp.Description("Prompt sent to every model")),
		mcp.WithArray("models", mcp.Required(), mcp.Description("Model ids"), mcp.Items(map[string]any{"type": "string"})),
		mcp.WithString("system_message", mcp.Description("Overrides the default system message")),
	), s.compareModels)

	return s
}

// ServeStdio serves MCP over stdin/stdout until the client disconnects
func (s *Server) ServeStdio() error {
	s.logger.InfoWithIcon("🔌", "MCP server ready on stdio")
	return server.ServeStdio(s.mcp)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

type modelEntry struct {
	model.ModelInfo
	Available bool `json:"available"`
}

func (s *Server) listModels(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	models, err := s.registry.Filter(request.GetString("filter", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var only model.Provider
	if p := request.GetString("provider", ""); p != "" {
		only, err = model.ParseProvider(p)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	entries := make([]modelEntry, 0, len(models))
	for _, m := range models {
		if only != "" && m.Provider != only {
			continue
		}
		entries = append(entries, modelEntry{ModelInfo: m, Available: s.providers.Available(m.Provider)})
	}
	return jsonResult(entries)
}

type costEstimate struct {
	Model   string          `json:"model"`
	Known   bool            `json:"known"`
	Usage   usage.UsageData `json:"usage"`
	USD     string          `json:"usd"`
	INR     string          `json:"inr"`
	Warning string          `json:"warning,omitempty"`
}

func (s *Server) estimateCost(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("model")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	prompt, err := request.RequireString("prompt")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	completion := request.GetString("completion", "")

	info := s.registry.Lookup(id)
	u := usage.Estimate(prompt, completion, info)
	out := costEstimate{
		Model: id,
		Known: s.registry.Known(id),
		Usage: u,
		USD:   usage.FormatUSD(u.USD.Total),
		INR:   usage.FormatINR(u.INR.Total),
	}
	if !out.Known {
		out.Warning = "unregistered model, priced with fallback rates"
	}
	return jsonResult(out)
}

type comparison struct {
	Results []domain.APIResponse `json:"results"`
	Summary compare.Report       `json:"summary"`
}

func (s *Server) compareModels(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt, err := request.RequireString("prompt")
	if err != nil || strings.TrimSpace(prompt) == "" {
		return mcp.NewToolResultError("prompt is required"), nil
	}
	ids, err := request.RequireStringSlice("models")
	if err != nil || len(ids) == 0 {
		return mcp.NewToolResultError("at least one model is required"), nil
	}

	if invalid := s.registry.Unknown(ids); len(invalid) > 0 {
		return mcp.NewToolResultError("Invalid model(s): " + strings.Join(invalid, ", ")), nil
	}

	infos := make([]model.ModelInfo, 0, len(ids))
	var unavailable []string
	for _, id := range ids {
		info := s.registry.Lookup(id)
		if !s.providers.Available(info.Provider) {
			unavailable = append(unavailable, id)
		}
		infos = append(infos, info)
	}
	if len(unavailable) > 0 {
		return mcp.NewToolResultError("API key missing, cannot use models: " + strings.Join(unavailable, ", ")), nil
	}

	results := s.runner.Run(ctx, batch.Job{
		Prompt:        prompt,
		SystemMessage: request.GetString("system_message", ""),
		Models:        infos,
	})
	return jsonResult(comparison{Results: results, Summary: compare.Build(results)})
}
