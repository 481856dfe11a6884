package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fpt/llmbench/internal/app"
	"github.com/fpt/llmbench/internal/config"
	"github.com/fpt/llmbench/internal/mcpserver"
	"github.com/fpt/llmbench/internal/server"
	"github.com/fpt/llmbench/pkg/client"
	pkgLogger "github.com/fpt/llmbench/pkg/logger"
	"github.com/fpt/llmbench/pkg/model"
	"github.com/fpt/llmbench/pkg/streamclient"
)

var version = "0.1.0"

var (
	settingsPath string
	logLevelFlag string
	cfg          *config.Config
	logger       *pkgLogger.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "llmbench",
		Short: "LLM workbench: compare OpenAI and Anthropic models side by side",
		Long: `llmbench sends one prompt to several OpenAI and Anthropic models, streams
single-model answers and reports tokens and cost in USD and INR.

Examples:
  llmbench serve                                  # Web UI and API on :3000
  llmbench ask -m gpt-4o "List three primes"      # One-shot against a running server
  llmbench ask                                    # Interactive workbench
  llmbench models --filter 'inputPrice < 0.001'   # Browse the registry
  llmbench mcp                                    # MCP tools on stdio`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(settingsPath)
			if err != nil {
				return err
			}
			level := cfg.LogLevel()
			if logLevelFlag != "" {
				if level, err = pkgLogger.ParseLevel(logLevelFlag); err != nil {
					return err
				}
			}
			pkgLogger.SetGlobalLogLevel(level)
			logger = pkgLogger.NewLogger(level)
			return nil
		},
	}
	rootCmd.Version = version
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", "", "Path to settings file")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd(), askCmd(), modelsCmd(), keysCmd(), mcpCmd(), initCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadRegistry() (*model.Registry, error) {
	registry, err := model.Load(cfg.Settings.Models.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load model registry: %w", err)
	}
	return registry, nil
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the web UI and the /api endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.Settings.Server.Addr = addr
			}

			registry, err := loadRegistry()
			if err != nil {
				return err
			}
			providers, err := client.NewProvidersFromConfig(cfg.Providers)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := server.New(registry, providers, logger.WithComponent("server"))
			return srv.ListenAndServe(ctx, cfg.Settings.Server.Addr, cfg.Settings.Server.ReadHeaderTimeoutDuration())
		},
	}
	cmd.Flags().String("addr", "", "Listen address, overrides settings and LLMBENCH_ADDR")
	return cmd
}

// serverURL turns a listen address such as ":3000" into a base URL
func serverURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func askCmd() *cobra.Command {
	var (
		serverAddr string
		models     []string
		stream     bool
		system     string
	)
	cmd := &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Send a prompt to a running server, or start the interactive workbench",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := loadRegistry()
			if err != nil {
				return err
			}
			if serverAddr == "" {
				serverAddr = cfg.Settings.Server.Addr
			}

			w := app.NewWorkbench(streamclient.New(serverURL(serverAddr)), registry, cmd.OutOrStdout())
			if len(models) > 0 {
				if err := w.SelectModels(models); err != nil {
					return err
				}
			}
			w.SetStreaming(stream)
			w.SetSystemMessage(system)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
			defer stop()

			if len(args) == 0 {
				app.StartInteractiveMode(ctx, w)
				return nil
			}
			return w.Ask(ctx, args[0])
		},
	}
	cmd.Flags().StringVar(&serverAddr, "server", "", "Server address or URL (default: settings listen address)")
	cmd.Flags().StringSliceVarP(&models, "model", "m", nil, "Model id, repeat or comma-separate for several")
	cmd.Flags().BoolVarP(&stream, "stream", "s", false, "Stream the answer (single model only)")
	cmd.Flags().StringVar(&system, "system", "", "Override the default system message")
	return cmd
}

func modelsCmd() *cobra.Command {
	var (
		filter   string
		provider string
	)
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List registered models with limits and prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := loadRegistry()
			if err != nil {
				return err
			}
			models, err := registry.Filter(filter)
			if err != nil {
				return err
			}
			if provider != "" {
				p, err := model.ParseProvider(provider)
				if err != nil {
					return err
				}
				var only []model.ModelInfo
				for _, m := range models {
					if m.Provider == p {
						only = append(only, m)
					}
				}
				models = only
			}
			app.RenderModels(cmd.OutOrStdout(), models)
			return nil
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", `Filter expression, e.g. 'provider == "openai" && !deprecated'`)
	cmd.Flags().StringVar(&provider, "provider", "", "Only list models of this vendor (openai, anthropic)")
	return cmd
}

func keysCmd() *cobra.Command {
	var serverAddr string
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Show which vendor API keys are configured",
		RunE: func(cmd *cobra.Command, args []string) error {
			if serverAddr != "" {
				avail, err := streamclient.New(serverURL(serverAddr)).CheckKeys(cmd.Context())
				if err != nil {
					return err
				}
				app.RenderKeys(cmd.OutOrStdout(), avail)
				return nil
			}
			providers, err := client.NewProvidersFromConfig(cfg.Providers)
			if err != nil {
				return err
			}
			app.RenderKeys(cmd.OutOrStdout(), providers.Availability())
			return nil
		},
	}
	cmd.Flags().StringVar(&serverAddr, "server", "", "Ask a running server instead of the local environment")
	return cmd
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve list_models, estimate_cost and compare_models as MCP tools on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := loadRegistry()
			if err != nil {
				return err
			}
			providers, err := client.NewProvidersFromConfig(cfg.Providers)
			if err != nil {
				return err
			}
			return mcpserver.New(registry, providers, version, logger.WithComponent("mcp")).ServeStdio()
		},
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default settings file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.SaveSettings(settingsPath, config.GetDefaultSettings())
		},
	}
}
