package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/openai/openai-go/v2/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpt/llmbench/pkg/domain"
	"github.com/fpt/llmbench/pkg/model"
)

func TestGetModelCapabilities(t *testing.T) {
	testCases := []struct {
		model              string
		expectedJSON       bool
		expectedSystem     bool
		expectedCompletion bool
	}{
		{"gpt-4o", true, true, false},
		{"gpt-4o-mini", true, true, false},
		{"gpt-3.5-turbo", true, true, false},
		{"gpt-3.5-turbo-instruct", false, true, false},
		{"o1", true, true, true},
		{"o1-mini", false, false, true},
		{"o3-mini", true, true, true},
		{"unknown-model", true, true, false},
	}

	for _, tc := range testCases {
		caps := getModelCapabilities(tc.model)

		if caps.SupportsJSONMode != tc.expectedJSON {
			t.Errorf("Model %s JSON mode: got %v, expected %v", tc.model, caps.SupportsJSONMode, tc.expectedJSON)
		}
		if caps.SupportsSystemPrompt != tc.expectedSystem {
			t.Errorf("Model %s system prompt: got %v, expected %v", tc.model, caps.SupportsSystemPrompt, tc.expectedSystem)
		}
		if caps.UsesCompletionTokenLimit != tc.expectedCompletion {
			t.Errorf("Model %s completion token limit: got %v, expected %v", tc.model, caps.UsesCompletionTokenLimit, tc.expectedCompletion)
		}
	}
}

func TestNewOpenAIClient_NoAPIKey(t *testing.T) {
	_, err := NewOpenAIClient("", "")
	if err == nil {
		t.Fatal("expected error for empty API key")
	}
	if !errors.Is(err, domain.ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
}

// fakeOpenAI records chat completion requests and answers with a canned handler
type fakeOpenAI struct {
	mu       sync.Mutex
	requests []map[string]any
	handler  func(w http.ResponseWriter, body map[string]any)
}

func (f *fakeOpenAI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
		http.NotFound(w, r)
		return
	}
	data, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(data, &body)

	f.mu.Lock()
	f.requests = append(f.requests, body)
	f.mu.Unlock()

	f.handler(w, body)
}

func (f *fakeOpenAI) lastRequest(t *testing.T) map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

func newTestClient(t *testing.T, fake *fakeOpenAI) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := NewOpenAIClientWithOptions("test-key", option.WithBaseURL(srv.URL+"/v1/"))
	require.NoError(t, err)
	return client
}

func completionJSON(content string) string {
	encoded, _ := json.Marshal(content)
	return fmt.Sprintf(`{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4o",
"choices":[{"index":0,"message":{"role":"assistant","content":%s,"refusal":null},"finish_reason":"stop","logprobs":null}],
"usage":{"prompt_tokens":12,"completion_tokens":5,"total_tokens":17}}`, encoded)
}

func testRequest(modelID string) domain.Request {
	return domain.Request{
		Model:  modelID,
		Prompt: "Summarise the plot of Hamlet",
		Info: model.ModelInfo{
			ID: modelID, Provider: model.ProviderOpenAI, Family: "GPT-4o",
			TokenLimit: 128000, OutputLimit: 1024, InputPrice: 0.005, OutputPrice: 0.015,
		},
	}
}

func TestComplete_Success(t *testing.T) {
	fake := &fakeOpenAI{handler: func(w http.ResponseWriter, _ map[string]any) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionJSON(`{"summary":"revenge"}`))
	}}
	client := newTestClient(t, fake)

	result := client.Complete(context.Background(), testRequest("gpt-4o"))

	require.True(t, result.Success, result.Error)
	assert.JSONEq(t, `{"summary":"revenge"}`, string(result.Response))
	assert.Equal(t, "stop", result.FinishReason)
	require.NotNil(t, result.Usage)
	assert.Equal(t, domain.TokenUsage{PromptTokens: 12, CompletionTokens: 5, TotalTokens: 17}, *result.Usage)
	require.NotNil(t, result.EstimatedUsage)
	assert.Equal(t, 7, result.EstimatedUsage.PromptTokens)

	body := fake.lastRequest(t)
	assert.Equal(t, "gpt-4o", body["model"])
	assert.EqualValues(t, 1024, body["max_tokens"])
	assert.Equal(t, map[string]any{"type": "json_object"}, body["response_format"])

	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	system := messages[0].(map[string]any)
	assert.Equal(t, "system", system["role"])
	assert.Equal(t, domain.DefaultSystemMessage+domain.JSONInstruction, system["content"])
	assert.Equal(t, "user", messages[1].(map[string]any)["role"])
}

func TestComplete_InstructModelSkipsJSONMode(t *testing.T) {
	fake := &fakeOpenAI{handler: func(w http.ResponseWriter, _ map[string]any) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionJSON(`{}`))
	}}
	client := newTestClient(t, fake)

	req := testRequest("gpt-3.5-turbo-instruct")
	req.SystemMessage = "Be concise"
	result := client.Complete(context.Background(), req)
	require.True(t, result.Success, result.Error)

	body := fake.lastRequest(t)
	assert.NotContains(t, body, "response_format")
	system := body["messages"].([]any)[0].(map[string]any)
	assert.Equal(t, "Be concise", system["content"])
}

func TestComplete_ReasoningModelUsesCompletionTokens(t *testing.T) {
	fake := &fakeOpenAI{handler: func(w http.ResponseWriter, _ map[string]any) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionJSON(`{}`))
	}}
	client := newTestClient(t, fake)

	client.Complete(context.Background(), testRequest("o1-mini"))

	body := fake.lastRequest(t)
	assert.EqualValues(t, 1024, body["max_completion_tokens"])
	assert.NotContains(t, body, "max_tokens")
	messages := body["messages"].([]any)
	require.Len(t, messages, 1)
	assert.Equal(t, "user", messages[0].(map[string]any)["role"])
}

func TestComplete_InvalidJSON(t *testing.T) {
	fake := &fakeOpenAI{handler: func(w http.ResponseWriter, _ map[string]any) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionJSON("Sure! Here you go."))
	}}
	client := newTestClient(t, fake)

	result := client.Complete(context.Background(), testRequest("gpt-4o"))

	assert.False(t, result.Success)
	assert.Equal(t, "The model didn't return valid JSON", result.Error)
	require.NotNil(t, result.Raw)
	assert.Equal(t, "Sure! Here you go.", *result.Raw)
	assert.NotNil(t, result.Usage)
}

func TestComplete_VendorError(t *testing.T) {
	fake := &fakeOpenAI{handler: func(w http.ResponseWriter, _ map[string]any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":{"message":"upstream exploded","type":"server_error"}}`)
	}}
	client := newTestClient(t, fake)

	result := client.Complete(context.Background(), testRequest("gpt-4o"))

	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
	assert.Nil(t, result.Raw)
	assert.Nil(t, result.Response)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Len(t, fake.requests, 1, "no retries")
}

func sseChunk(content string, finish string) string {
	encoded, _ := json.Marshal(content)
	fr := "null"
	if finish != "" {
		fr = `"` + finish + `"`
	}
	return fmt.Sprintf("data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"gpt-4o\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%s},\"finish_reason\":%s}]}\n\n", encoded, fr)
}

func TestStream(t *testing.T) {
	fake := &fakeOpenAI{handler: func(w http.ResponseWriter, body map[string]any) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, sseChunk(`{"a":`, ""))
		_, _ = io.WriteString(w, sseChunk("", ""))
		_, _ = io.WriteString(w, sseChunk(` 1}`, ""))
		_, _ = io.WriteString(w, sseChunk("", "stop"))
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}}
	client := newTestClient(t, fake)

	var chunks []string
	result, err := client.Stream(context.Background(), testRequest("gpt-4o"), domain.SinkFunc(func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	}))
	require.NoError(t, err)

	assert.Equal(t, []string{`{"a":`, ` 1}`}, chunks)
	assert.Equal(t, `{"a": 1}`, result.Completion)
	assert.Equal(t, "stop", result.FinishReason)
	assert.Equal(t, 7, result.Usage.PromptTokens)
	assert.Equal(t, 2, result.Usage.CompletionTokens)
	assert.Equal(t, result.Usage.PromptTokens+result.Usage.CompletionTokens, result.Usage.TotalTokens)

	assert.Equal(t, true, fake.lastRequest(t)["stream"])
}

func TestStream_SinkError(t *testing.T) {
	fake := &fakeOpenAI{handler: func(w http.ResponseWriter, _ map[string]any) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, sseChunk("hello", ""))
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}}
	client := newTestClient(t, fake)

	sinkErr := errors.New("client went away")
	_, err := client.Stream(context.Background(), testRequest("gpt-4o"), domain.SinkFunc(func(string) error {
		return sinkErr
	}))
	assert.ErrorIs(t, err, sinkErr)
}

func TestStream_VendorError(t *testing.T) {
	fake := &fakeOpenAI{handler: func(w http.ResponseWriter, _ map[string]any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"model not found","type":"invalid_request_error"}}`)
	}}
	client := newTestClient(t, fake)

	_, err := client.Stream(context.Background(), testRequest("gpt-4o"), domain.SinkFunc(func(string) error { return nil }))
	assert.Error(t, err)
}

func TestPing(t *testing.T) {
	fake := &fakeOpenAI{handler: func(w http.ResponseWriter, _ map[string]any) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionJSON("Hello, the API key is working!"))
	}}
	client := newTestClient(t, fake)

	result, err := client.Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Hello, the API key is working!", result.Response)
	assert.Equal(t, 17, result.Usage.TotalTokens)

	body := fake.lastRequest(t)
	assert.Equal(t, pingModel, body["model"])
	assert.EqualValues(t, pingMaxTokens, body["max_tokens"])
}

func TestIsAuthError(t *testing.T) {
	fake := &fakeOpenAI{handler: func(w http.ResponseWriter, _ map[string]any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`)
	}}
	client := newTestClient(t, fake)

	_, err := client.Ping(context.Background())
	require.Error(t, err)
	assert.True(t, client.IsAuthError(err))
	assert.False(t, client.IsAuthError(errors.New("dial tcp: timeout")))
}
