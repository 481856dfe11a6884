package app

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/fpt/llmbench/pkg/model"
	"github.com/fpt/llmbench/pkg/streamclient"
	"github.com/fpt/llmbench/pkg/usage"
)

// Backend is the part of the server client the workbench needs
type Backend interface {
	Stream(ctx context.Context, opts streamclient.Options, h streamclient.Handler) (*streamclient.Session, error)
	RunBatch(ctx context.Context, opts streamclient.Options) (*streamclient.BatchResponse, error)
}

// Workbench holds the interactive selection and sends prompts to the server
type Workbench struct {
	backend       Backend
	registry      *model.Registry
	out           io.Writer
	models        []string
	streaming     bool
	systemMessage string
}

// NewWorkbench creates a workbench writing its output to out
func NewWorkbench(backend Backend, registry *model.Registry, out io.Writer) *Workbench {
	return &Workbench{
		backend:  backend,
		registry: registry,
		out:      out,
	}
}

// SelectModels replaces the selection. Unknown ids are rejected.
func (w *Workbench) SelectModels(ids []string) error {
	var cleaned []string
	seen := make(map[string]bool)
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		cleaned = append(cleaned, id)
	}
	if len(cleaned) == 0 {
		return errors.New("at least one model is required")
	}
	if unknown := w.registry.Unknown(cleaned); len(unknown) > 0 {
		return fmt.Errorf("invalid model(s): %s", strings.Join(unknown, ", "))
	}
	w.models = cleaned
	return nil
}

// Models returns the current selection
func (w *Workbench) Models() []string {
	return append([]string(nil), w.models...)
}

// SetStreaming switches between streaming and batch mode
func (w *Workbench) SetStreaming(on bool) {
	w.streaming = on
}

// Streaming reports whether prompts are streamed
func (w *Workbench) Streaming() bool {
	return w.streaming
}

// SetSystemMessage overrides the server's default system message; empty restores it
func (w *Workbench) SetSystemMessage(msg string) {
	w.systemMessage = strings.TrimSpace(msg)
}

// SystemMessage returns the override, empty when the default is used
func (w *Workbench) SystemMessage() string {
	return w.systemMessage
}

func (w *Workbench) options(prompt string) streamclient.Options {
	return streamclient.Options{
		Prompt:        prompt,
		Models:        w.Models(),
		SystemMessage: w.systemMessage,
	}
}

// Ask sends prompt to the selected models and renders the answer
func (w *Workbench) Ask(ctx context.Context, prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return errors.New("prompt is empty")
	}
	if len(w.models) == 0 {
		return errors.New("no model selected, use /models")
	}

	if w.streaming {
		if len(w.models) != 1 {
			return errors.Errorf("streaming supports exactly one model, %d selected", len(w.models))
		}
		return w.stream(ctx, prompt)
	}

	resp, err := w.backend.RunBatch(ctx, w.options(prompt))
	if err != nil {
		return err
	}
	RenderBatch(w.out, resp)
	return nil
}

func (w *Workbench) stream(ctx context.Context, prompt string) error {
	WriteResponseHeader(w.out, w.models[0])

	printed := 0
	var finalUsage *usage.UsageData
	_, err := w.backend.Stream(ctx, w.options(prompt), streamclient.Handler{
		OnContent: func(content string) {
			if len(content) > printed {
				fmt.Fprint(w.out, content[printed:])
				printed = len(content)
			}
		},
		OnUsage: func(u usage.UsageData) {
			finalUsage = &u
		},
	})
	fmt.Fprintln(w.out)
	if err != nil {
		return err
	}
	if finalUsage != nil {
		RenderUsage(w.out, *finalUsage)
	}
	return nil
}
