package compare

import (
	"bytes"
	"encoding/json"
	"fmt"

	diff "github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/fpt/llmbench/pkg/domain"
	"github.com/fpt/llmbench/pkg/usage"
)

// Diff is the unified diff of one model's JSON answer against the baseline
type Diff struct {
	Model     string `json:"model"`
	Against   string `json:"against"`
	Identical bool   `json:"identical"`
	Unified   string `json:"unified,omitempty"`
}

// Report summarises a batch run. Cost and latency figures only cover
// successful results.
type Report struct {
	Models        int     `json:"models"`
	Succeeded     int     `json:"succeeded"`
	Failed        int     `json:"failed"`
	TotalCostUSD  float64 `json:"totalCostUsd"`
	TotalCostINR  float64 `json:"totalCostInr"`
	MeanCostUSD   float64 `json:"meanCostUsd"`
	MinCostUSD    float64 `json:"minCostUsd"`
	MaxCostUSD    float64 `json:"maxCostUsd"`
	MeanLatencyMs float64 `json:"meanLatencyMs"`
	Cheapest      string  `json:"cheapest,omitempty"`
	Fastest       string  `json:"fastest,omitempty"`
	Diffs         []Diff  `json:"diffs,omitempty"`
}

// CostOf returns the USD/INR cost of a result. Vendor-reported token counts
// win over the estimate when present.
func CostOf(res domain.APIResponse) usage.Cost {
	if res.Usage != nil {
		return usage.CalculateCost(res.Usage.PromptTokens, res.Usage.CompletionTokens, res.ModelInfo)
	}
	if res.EstimatedUsage != nil {
		return res.EstimatedUsage.Cost
	}
	return usage.Cost{}
}

// Build computes the report for results, in result order
func Build(results []domain.APIResponse) Report {
	report := Report{Models: len(results)}

	var (
		names     []string
		costs     []float64
		costsINR  []float64
		latencies []float64
		baseline  *domain.APIResponse
	)
	for i := range results {
		res := &results[i]
		if !res.Success {
			report.Failed++
			continue
		}
		report.Succeeded++

		cost := CostOf(*res)
		names = append(names, res.Model)
		costs = append(costs, cost.USD.Total)
		costsINR = append(costsINR, cost.INR.Total)
		latencies = append(latencies, float64(res.LatencyMs))

		if baseline == nil {
			baseline = res
			continue
		}
		report.Diffs = append(report.Diffs, diffResponses(*baseline, *res))
	}

	if len(costs) == 0 {
		return report
	}

	report.TotalCostUSD = floats.Sum(costs)
	report.TotalCostINR = floats.Sum(costsINR)
	report.MeanCostUSD = stat.Mean(costs, nil)
	report.MinCostUSD = floats.Min(costs)
	report.MaxCostUSD = floats.Max(costs)
	report.MeanLatencyMs = stat.Mean(latencies, nil)
	report.Cheapest = names[floats.MinIdx(costs)]
	report.Fastest = names[floats.MinIdx(latencies)]
	return report
}

func diffResponses(base, other domain.APIResponse) Diff {
	oldText := prettyJSON(base.Response)
	newText := prettyJSON(other.Response)

	d := Diff{Model: other.Model, Against: base.Model}
	if oldText == newText {
		d.Identical = true
		return d
	}
	edits := myers.ComputeEdits("", oldText, newText)
	d.Unified = fmt.Sprint(diff.ToUnified(base.Model, other.Model, oldText, edits))
	return d
}

// prettyJSON indents a JSON body so diffs are line oriented
func prettyJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw) + "\n"
	}
	buf.WriteByte('\n')
	return buf.String()
}
