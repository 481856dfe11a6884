package batch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/fpt/llmbench/pkg/client"
	"github.com/fpt/llmbench/pkg/domain"
	"github.com/fpt/llmbench/pkg/logger"
	"github.com/fpt/llmbench/pkg/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeProvider answers per model id: JSON text, a failure, or a panic
type fakeProvider struct {
	name    model.Provider
	replies map[string]string
	delays  map[string]time.Duration
	calls   atomic.Int32
}

func (f *fakeProvider) Name() model.Provider { return f.name }

func (f *fakeProvider) Complete(ctx context.Context, req domain.Request) domain.APIResponse {
	f.calls.Add(1)
	if d, ok := f.delays[req.Model]; ok {
		time.Sleep(d)
	}
	reply, ok := f.replies[req.Model]
	if !ok {
		return domain.NewFailure(req, "vendor exploded")
	}
	if reply == "panic" {
		panic("adapter bug")
	}
	return domain.NewResult(req, domain.Completion{Text: reply, FinishReason: "stop"})
}

func (f *fakeProvider) Stream(context.Context, domain.Request, domain.Sink) (domain.StreamResult, error) {
	return domain.StreamResult{}, nil
}

func infos(t *testing.T, ids ...string) []model.ModelInfo {
	t.Helper()
	reg, err := model.LoadBuiltin()
	require.NoError(t, err)
	out := make([]model.ModelInfo, 0, len(ids))
	for _, id := range ids {
		out = append(out, reg.Lookup(id))
	}
	return out
}

func TestRun_OrderAndIsolation(t *testing.T) {
	openai := &fakeProvider{
		name:    model.ProviderOpenAI,
		replies: map[string]string{"gpt-4o": `{"ok":true}`},
		// the first model finishes last; results must still follow input order
		delays: map[string]time.Duration{"gpt-4o": 30 * time.Millisecond},
	}
	runner := NewRunner(client.NewProviders(openai), logger.NewDiscardLogger())

	results := runner.Run(context.Background(), Job{
		Prompt: "hi",
		Models: infos(t, "gpt-4o", "gpt-4o-mini"),
	})

	require.Len(t, results, 2)
	assert.Equal(t, "gpt-4o", results[0].Model)
	assert.True(t, results[0].Success)
	assert.Equal(t, "gpt-4o-mini", results[1].Model)
	assert.False(t, results[1].Success)
	assert.NotEmpty(t, results[1].Error)
	assert.EqualValues(t, 2, openai.calls.Load())
}

func TestRun_PanicBecomesFailure(t *testing.T) {
	anthropic := &fakeProvider{
		name: model.ProviderAnthropic,
		replies: map[string]string{
			"claude-3-haiku-20240307":    "panic",
			"claude-3-5-sonnet-20240620": `{"x":1}`,
		},
	}
	runner := NewRunner(client.NewProviders(anthropic), logger.NewDiscardLogger())

	results := runner.Run(context.Background(), Job{
		Prompt: "hi",
		Models: infos(t, "claude-3-haiku-20240307", "claude-3-5-sonnet-20240620"),
	})

	require.Len(t, results, 2)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "adapter bug")
	assert.True(t, results[1].Success)
}

func TestRun_MissingProvider(t *testing.T) {
	runner := NewRunner(client.NewProviders(), logger.NewDiscardLogger())

	results := runner.Run(context.Background(), Job{Prompt: "hi", Models: infos(t, "gpt-4o")})

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, "OpenAI API key not configured", results[0].Error)
}

func TestRun_Empty(t *testing.T) {
	runner := NewRunner(client.NewProviders(), logger.NewDiscardLogger())
	assert.Empty(t, runner.Run(context.Background(), Job{Prompt: "hi"}))
}

func TestRun_SystemMessagePassedThrough(t *testing.T) {
	var seen atomic.Value
	provider := &recordingProvider{seen: &seen}
	runner := NewRunner(client.NewProviders(provider), logger.NewDiscardLogger())

	runner.Run(context.Background(), Job{Prompt: "hi", SystemMessage: "Be brief", Models: infos(t, "gpt-4o")})

	req, ok := seen.Load().(domain.Request)
	require.True(t, ok)
	assert.Equal(t, "Be brief", req.SystemMessage)
	assert.Equal(t, "hi", req.Prompt)
	assert.Equal(t, 0.005, req.Info.InputPrice)
}

type recordingProvider struct {
	seen *atomic.Value
}

func (r *recordingProvider) Name() model.Provider { return model.ProviderOpenAI }

func (r *recordingProvider) Complete(_ context.Context, req domain.Request) domain.APIResponse {
	r.seen.Store(req)
	return domain.NewResult(req, domain.Completion{Text: "{}"})
}

func (r *recordingProvider) Stream(context.Context, domain.Request, domain.Sink) (domain.StreamResult, error) {
	return domain.StreamResult{}, nil
}
