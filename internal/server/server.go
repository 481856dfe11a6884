package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fpt/llmbench/internal/batch"
	"github.com/fpt/llmbench/pkg/client"
	"github.com/fpt/llmbench/pkg/logger"
	"github.com/fpt/llmbench/pkg/model"
)

const shutdownTimeout = 10 * time.Second

// Server is the HTTP surface of the workbench
type Server struct {
	registry  *model.Registry
	providers *client.Providers
	runner    *batch.Runner
	logger    *logger.Logger
	handler   http.Handler
}

// New wires the routes. The registry and provider set are read-only after
// construction and shared by all requests.
func New(registry *model.Registry, providers *client.Providers, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewComponentLogger("server")
	}
	s := &Server{
		registry:  registry,
		providers: providers,
		runner:    batch.NewRunner(providers, log.WithComponent("batch")),
		logger:    log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/llm-test", s.handleLLMTest)
	mux.HandleFunc("GET /api/check-api-keys", s.handleCheckAPIKeys)
	mux.HandleFunc("GET /api/test-anthropic", s.handleTestProvider(model.ProviderAnthropic))
	mux.HandleFunc("GET /api/test-openai", s.handleTestProvider(model.ProviderOpenAI))
	mux.HandleFunc("GET /api/models", s.handleModels)
	mux.HandleFunc("GET /api/schema", s.handleSchema)
	mux.HandleFunc("GET /{$}", s.handleIndex)

	s.handler = s.withRequestID(s.withRecover(mux))
	return s
}

// Handler returns the root handler including middleware
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. No write timeout is set because streams stay open for as long
// as the vendor keeps talking.
func (s *Server) ListenAndServe(ctx context.Context, addr string, readHeaderTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoWithIcon("🚀", "Listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.InfoWithIcon("🛑", "Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
