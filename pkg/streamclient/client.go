package streamclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/fpt/llmbench/internal/compare"
	"github.com/fpt/llmbench/pkg/client"
	"github.com/fpt/llmbench/pkg/domain"
	"github.com/fpt/llmbench/pkg/usage"
)

const readBufferSize = 4096

// Client talks to a running llmbench server
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New creates a client for baseURL, e.g. "http://localhost:3000"
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: http.DefaultClient,
	}
}

// Options describes one workbench request
type Options struct {
	Prompt        string
	Models        []string
	SystemMessage string // empty uses the server default
}

type requestBody struct {
	Prompt         string   `json:"prompt"`
	SelectedModels []string `json:"selectedModels"`
	Streaming      bool     `json:"streaming"`
	SystemMessage  *string  `json:"systemMessage,omitempty"`
}

// APIError is a non-OK answer from the server
type APIError struct {
	StatusCode       int
	Message          string
	MissingProviders []string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.StatusCode)
}

// Handler receives progress of a streaming session. Nil fields are skipped.
type Handler struct {
	OnStage   func(Stage)
	OnContent func(content string)
	OnUsage   func(u usage.UsageData)
}

func (h Handler) stage(s Stage) {
	if h.OnStage != nil {
		h.OnStage(s)
	}
}

// BatchResponse is the decoded non-streaming answer
type BatchResponse struct {
	Results []domain.APIResponse `json:"results"`
	Summary compare.Report       `json:"summary"`
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) post(ctx context.Context, opts Options, streaming bool) (*http.Response, error) {
	body := requestBody{
		Prompt:         opts.Prompt,
		SelectedModels: opts.Models,
		Streaming:      streaming,
	}
	if opts.SystemMessage != "" {
		body.SystemMessage = &opts.SystemMessage
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/llm-test", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "request failed")
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, readAPIError(resp)
	}
	return resp, nil
}

// readAPIError builds an APIError from the JSON error body, falling back to
// the status text when the body is not JSON
func readAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body struct {
		Error            string   `json:"error"`
		MissingProviders []string `json:"missingProviders"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
		apiErr.MissingProviders = body.MissingProviders
	} else {
		apiErr.Message = "request failed: " + resp.Status
	}
	return apiErr
}

// Stream runs a single-model streaming request, reporting progress to h,
// and returns the finished session. The session is also returned on error
// so callers can show the partial content.
func (c *Client) Stream(ctx context.Context, opts Options, h Handler) (*Session, error) {
	session := NewSession()
	h.stage(StageConnecting)

	resp, err := c.post(ctx, opts, true)
	if err != nil {
		session.Fail(err)
		h.stage(StageError)
		return session, err
	}
	defer resp.Body.Close()

	session.Connected()
	h.stage(StageThinking)

	buf := make([]byte, readBufferSize)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			first := session.Stage() != StageStreaming
			content := session.Feed(buf[:n])
			if first {
				h.stage(StageStreaming)
			}
			if h.OnContent != nil {
				h.OnContent(content)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			err := errors.Wrap(rerr, "stream interrupted")
			session.Fail(err)
			h.stage(StageError)
			return session, err
		}
	}

	session.Finish()
	if h.OnContent != nil {
		h.OnContent(session.Content())
	}
	if u := session.Usage(); u != nil && h.OnUsage != nil {
		h.OnUsage(*u)
	}
	h.stage(StageComplete)
	return session, nil
}

// RunBatch runs a non-streaming request against every model in opts
func (c *Client) RunBatch(ctx context.Context, opts Options) (*BatchResponse, error) {
	resp, err := c.post(ctx, opts, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out BatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "failed to decode batch response")
	}
	return &out, nil
}

// CheckKeys asks the server which vendors are configured
func (c *Client) CheckKeys(ctx context.Context) (client.Availability, error) {
	var out client.Availability
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/check-api-keys", nil)
	if err != nil {
		return out, err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return out, errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return out, readAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, errors.Wrap(err, "failed to decode key status")
	}
	return out, nil
}
