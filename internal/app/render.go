package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/fpt/llmbench/internal/compare"
	"github.com/fpt/llmbench/pkg/client"
	"github.com/fpt/llmbench/pkg/domain"
	"github.com/fpt/llmbench/pkg/model"
	"github.com/fpt/llmbench/pkg/streamclient"
	"github.com/fpt/llmbench/pkg/usage"
)

var headerColor = color.New(color.FgHiCyan, color.Bold)

func okMark() string   { return color.GreenString("✓") }
func failMark() string { return color.RedString("✗") }

const rule = "────────────────────────────────────────────────────────────"

// WriteResponseHeader prints the model name above an answer
func WriteResponseHeader(w io.Writer, modelID string) {
	headerColor.Fprintf(w, "\n%s\n", modelID)
}

// RenderUsage prints one line of token and cost figures
func RenderUsage(w io.Writer, u usage.UsageData) {
	fmt.Fprintln(w, color.New(color.Faint).Sprintf("tokens %s in / %s out / %s total · %s · %s",
		usage.FormatNumber(u.PromptTokens),
		usage.FormatNumber(u.CompletionTokens),
		usage.FormatNumber(u.TotalTokens),
		usage.FormatUSD(u.USD.Total),
		usage.FormatINR(u.INR.Total),
	))
}

func renderResult(w io.Writer, res domain.APIResponse) {
	mark := okMark()
	if !res.Success {
		mark = failMark()
	}
	headerColor.Fprintf(w, "\n%s %s", mark, res.Model)
	fmt.Fprintf(w, "  (%dms", res.LatencyMs)
	if res.FinishReason != "" {
		fmt.Fprintf(w, ", %s", res.FinishReason)
	}
	fmt.Fprintln(w, ")")

	switch {
	case res.Success:
		fmt.Fprintln(w, indentJSON(res.Response))
	default:
		fmt.Fprintln(w, color.RedString("Error: %s", res.Error))
		if res.Raw != nil && *res.Raw != "" {
			fmt.Fprintln(w, *res.Raw)
		}
	}

	cost := compare.CostOf(res)
	if res.Usage != nil {
		fmt.Fprintf(w, "tokens %s in / %s out (vendor)", usage.FormatNumber(res.Usage.PromptTokens), usage.FormatNumber(res.Usage.CompletionTokens))
	} else if res.EstimatedUsage != nil {
		fmt.Fprintf(w, "tokens %s in / %s out (estimated)", usage.FormatNumber(res.EstimatedUsage.PromptTokens), usage.FormatNumber(res.EstimatedUsage.CompletionTokens))
	} else {
		return
	}
	fmt.Fprintf(w, " · %s · %s\n", usage.FormatUSD(cost.USD.Total), usage.FormatINR(cost.INR.Total))
}

func indentJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

// RenderBatch prints every result followed by the comparison summary
func RenderBatch(w io.Writer, resp *streamclient.BatchResponse) {
	for _, res := range resp.Results {
		renderResult(w, res)
	}
	RenderSummary(w, resp.Summary)
}

// RenderSummary prints the aggregate figures and answer diffs of a batch
func RenderSummary(w io.Writer, r compare.Report) {
	fmt.Fprintln(w, "\n"+rule)
	fmt.Fprintf(w, "%d models: %s succeeded, %s failed\n", r.Models,
		color.GreenString("%d", r.Succeeded), color.RedString("%d", r.Failed))
	if r.Succeeded == 0 {
		return
	}
	fmt.Fprintf(w, "total %s (%s) · mean %s · mean latency %.0fms\n",
		usage.FormatUSD(r.TotalCostUSD), usage.FormatINR(r.TotalCostINR), usage.FormatUSD(r.MeanCostUSD), r.MeanLatencyMs)
	fmt.Fprintf(w, "cheapest %s · fastest %s\n", r.Cheapest, r.Fastest)

	for _, d := range r.Diffs {
		if d.Identical {
			fmt.Fprintf(w, "%s matches %s\n", d.Model, d.Against)
			continue
		}
		fmt.Fprintf(w, "\n%s vs %s:\n", d.Against, d.Model)
		for _, line := range strings.SplitAfter(d.Unified, "\n") {
			switch {
			case strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++"):
				fmt.Fprint(w, color.GreenString("%s", line))
			case strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---"):
				fmt.Fprint(w, color.RedString("%s", line))
			default:
				fmt.Fprint(w, line)
			}
		}
	}
}

// RenderKeys prints which vendors have an API key configured
func RenderKeys(w io.Writer, a client.Availability) {
	status := map[model.Provider]bool{
		model.ProviderOpenAI:    a.OpenAIAvailable,
		model.ProviderAnthropic: a.AnthropicAvailable,
	}
	for _, p := range model.Providers {
		if status[p] {
			fmt.Fprintf(w, "%s %-10s configured\n", okMark(), p.DisplayName())
		} else {
			fmt.Fprintf(w, "%s %-10s missing\n", failMark(), p.DisplayName())
		}
	}
}

// RenderModels prints the registry as a table
func RenderModels(w io.Writer, models []model.ModelInfo) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tPROVIDER\tFAMILY\tCONTEXT\tOUTPUT\tIN $/1K\tOUT $/1K\t")
	for _, m := range models {
		id := m.ID
		if m.Deprecated {
			id += " (deprecated)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			id, m.Provider.DisplayName(), m.Family,
			usage.FormatNumber(m.TokenLimit), usage.FormatNumber(m.OutputLimit),
			usage.FormatUSD(m.InputPrice), usage.FormatUSD(m.OutputPrice))
	}
	_ = tw.Flush()
}
