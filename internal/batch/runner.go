package batch

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fpt/llmbench/pkg/domain"
	"github.com/fpt/llmbench/pkg/logger"
	"github.com/fpt/llmbench/pkg/model"
)

// ProviderSource resolves the adapter serving a vendor
type ProviderSource interface {
	For(provider model.Provider) (domain.Provider, bool)
}

// Job is one batch request: a prompt sent to every selected model
type Job struct {
	Prompt        string
	SystemMessage string
	Models        []model.ModelInfo
}

// Runner fans a prompt out to several models concurrently
type Runner struct {
	providers ProviderSource
	logger    *logger.Logger
}

// NewRunner creates a batch runner
func NewRunner(providers ProviderSource, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.NewComponentLogger("batch")
	}
	return &Runner{providers: providers, logger: log}
}

// Run calls every model of job concurrently and waits for all of them.
// results[i] always belongs to job.Models[i]. A failing or panicking model
// only affects its own entry.
func (r *Runner) Run(ctx context.Context, job Job) []domain.APIResponse {
	results := make([]domain.APIResponse, len(job.Models))
	start := time.Now()

	var g errgroup.Group
	for i, info := range job.Models {
		g.Go(func() error {
			results[i] = r.runOne(ctx, job, info)
			return nil
		})
	}
	_ = g.Wait()

	succeeded := 0
	for _, res := range results {
		if res.Success {
			succeeded++
		}
	}
	r.logger.InfoWithIcon("📊", "Batch completed",
		"models", len(results), "succeeded", succeeded, "elapsed", time.Since(start).Round(time.Millisecond))
	return results
}

func (r *Runner) runOne(ctx context.Context, job Job, info model.ModelInfo) (res domain.APIResponse) {
	req := domain.Request{
		Model:         info.ID,
		Prompt:        job.Prompt,
		SystemMessage: job.SystemMessage,
		Info:          info,
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.WithModel(info.ID).ErrorWithIcon("💥", "Provider panicked", "panic", p)
			res = domain.NewFailure(req, fmt.Sprintf("internal error: %v", p))
		}
	}()

	provider, ok := r.providers.For(info.Provider)
	if !ok {
		return domain.NewFailure(req, fmt.Sprintf("%s API key not configured", info.Provider.DisplayName()))
	}
	return provider.Complete(ctx, req)
}
