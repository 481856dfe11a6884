package relay

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/fpt/llmbench/pkg/domain"
	"github.com/fpt/llmbench/pkg/logger"
	"github.com/fpt/llmbench/pkg/model"
	"github.com/fpt/llmbench/pkg/usage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedProvider streams fixed chunks and optionally fails afterwards
type scriptedProvider struct {
	chunks []string
	err    error
}

func (p *scriptedProvider) Name() model.Provider { return model.ProviderOpenAI }

func (p *scriptedProvider) Complete(_ context.Context, req domain.Request) domain.APIResponse {
	return domain.NewFailure(req, "not used")
}

func (p *scriptedProvider) Stream(ctx context.Context, req domain.Request, sink domain.Sink) (domain.StreamResult, error) {
	var text strings.Builder
	for _, chunk := range p.chunks {
		if err := ctx.Err(); err != nil {
			return domain.StreamResult{}, err
		}
		text.WriteString(chunk)
		if err := sink.WriteChunk(chunk); err != nil {
			return domain.StreamResult{}, err
		}
	}
	if p.err != nil {
		return domain.StreamResult{}, p.err
	}
	return domain.StreamResult{
		Completion: text.String(),
		Usage:      usage.Estimate(req.Prompt, text.String(), req.Info),
	}, nil
}

func testRequest() domain.Request {
	return domain.Request{
		Model:  "gpt-4o",
		Prompt: "Hello there",
		Info:   model.ModelInfo{ID: "gpt-4o", Provider: model.ProviderOpenAI, InputPrice: 0.005, OutputPrice: 0.015, OutputLimit: 4096},
	}
}

func TestRelay_Success(t *testing.T) {
	rec := httptest.NewRecorder()
	provider := &scriptedProvider{chunks: []string{`{"greeting":`, ` "hi"}`}}

	err := Relay(context.Background(), rec, provider, testRequest(), logger.NewDiscardLogger())
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", rec.Header().Get("Connection"))
	assert.True(t, rec.Flushed)

	body := rec.Body.String()
	assert.Equal(t, 1, strings.Count(body, usage.Marker))
	assert.True(t, strings.HasPrefix(body, `{"greeting": "hi"}`+usage.Marker))

	content, u, err := usage.SplitMarker(body)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, `{"greeting": "hi"}`, content)
	assert.Equal(t, 3, u.PromptTokens)
	assert.Equal(t, 5, u.CompletionTokens)
	assert.Equal(t, u.PromptTokens+u.CompletionTokens, u.TotalTokens)
}

func TestRelay_VendorErrorMidStream(t *testing.T) {
	rec := httptest.NewRecorder()
	provider := &scriptedProvider{chunks: []string{"partial"}, err: errors.New("connection reset")}

	err := Relay(context.Background(), rec, provider, testRequest(), logger.NewDiscardLogger())
	require.Error(t, err)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "partialError with OpenAI model gpt-4o: connection reset", rec.Body.String())
	assert.NotContains(t, rec.Body.String(), usage.Marker)
}

func TestRelay_VendorErrorBeforeFirstChunk(t *testing.T) {
	rec := httptest.NewRecorder()
	req := testRequest()
	req.Model = "claude-3-haiku-20240307"
	req.Info.Provider = model.ProviderAnthropic
	provider := &scriptedProvider{err: errors.New("overloaded")}

	require.Error(t, Relay(context.Background(), rec, provider, req, logger.NewDiscardLogger()))
	assert.Equal(t, "Error with Anthropic model claude-3-haiku-20240307: overloaded", rec.Body.String())
}

func TestRelay_ClientCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	provider := &scriptedProvider{chunks: []string{"never sent"}}

	err := Relay(ctx, rec, provider, testRequest(), logger.NewDiscardLogger())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.Body.String())
}

// brokenWriter fails every body write, as a closed connection would
type brokenWriter struct {
	header http.Header
}

func (b *brokenWriter) Header() http.Header { return b.header }

func (b *brokenWriter) WriteHeader(int) {}

func (b *brokenWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestRelay_ClientGone(t *testing.T) {
	w := &brokenWriter{header: http.Header{}}
	provider := &scriptedProvider{chunks: []string{"a", "b"}}

	err := Relay(context.Background(), w, provider, testRequest(), logger.NewDiscardLogger())
	assert.ErrorIs(t, err, ErrClientGone)
}

func TestErrorText(t *testing.T) {
	assert.Equal(t, "Error with OpenAI model gpt-4o: boom", ErrorText(testRequest(), errors.New("boom")))
}
