package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/fpt/llmbench/pkg/domain"
	"github.com/fpt/llmbench/pkg/logger"
	"github.com/fpt/llmbench/pkg/usage"
)

// ErrClientGone is returned when writing to the client failed mid-stream
var ErrClientGone = errors.New("client connection closed")

// flushWriter writes each chunk to the response and flushes it immediately
type flushWriter struct {
	w       io.Writer
	rc      *http.ResponseController
	written int
}

func (f *flushWriter) WriteChunk(chunk string) error {
	n, err := io.WriteString(f.w, chunk)
	f.written += n
	if err != nil {
		return fmt.Errorf("%w: %v", ErrClientGone, err)
	}
	if err := f.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return fmt.Errorf("%w: %v", ErrClientGone, err)
	}
	return nil
}

// ErrorText is the plain-text line written into a stream when the vendor
// call fails after the body has started.
func ErrorText(req domain.Request, err error) string {
	return fmt.Sprintf("Error with %s model %s: %s", req.Info.Provider.DisplayName(), req.Model, err.Error())
}

// Relay streams one model's completion to w as plain text and terminates the
// body with the usage marker. Once the headers are out there is no structured
// error channel, so a vendor failure is written as text and the body ends.
// Nothing more is written when ctx was cancelled by the client.
func Relay(ctx context.Context, w http.ResponseWriter, provider domain.Provider, req domain.Request, log *logger.Logger) error {
	h := w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sink := &flushWriter{w: w, rc: http.NewResponseController(w)}
	// push headers before the vendor answers so the client can show progress
	_ = sink.rc.Flush()

	log = log.WithModel(req.Model)
	log.DebugWithIcon("📡", "Streaming started", "provider", provider.Name())

	result, err := provider.Stream(ctx, req, sink)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			log.InfoWithIcon("🔌", "Client disconnected, upstream stream cancelled", "bytes", sink.written)
		case errors.Is(err, ErrClientGone):
			log.InfoWithIcon("🔌", "Client stopped reading", "error", err)
		default:
			log.ErrorWithIcon("❌", "Stream failed", "error", err)
			if werr := sink.WriteChunk(ErrorText(req, err)); werr != nil {
				log.Debug("could not deliver stream error", "error", werr)
			}
		}
		return err
	}

	marker, err := usage.EncodeMarker(result.Usage)
	if err != nil {
		return err
	}
	if err := sink.WriteChunk(string(marker)); err != nil {
		return err
	}

	log.InfoWithIcon("✅", "Stream completed",
		"finish_reason", result.FinishReason,
		"prompt_tokens", result.Usage.PromptTokens,
		"completion_tokens", result.Usage.CompletionTokens,
		"cost_usd", usage.FormatUSD(result.Usage.USD.Total))
	return nil
}
