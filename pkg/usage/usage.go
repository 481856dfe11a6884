package usage

import (
	"github.com/fpt/llmbench/pkg/model"
)

// USDToINR is the fixed conversion rate used for every INR figure
const USDToINR = 83.34

const charsPerToken = 4

// EstimateTokens approximates the token count of text as ceil(length/4),
// where length is measured in UTF-16 code units. This is not a tokenizer:
// every cost figure in the application is calibrated to this heuristic.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	units := 0
	for _, r := range text {
		if r >= 0x10000 {
			units += 2 // surrogate pair
		} else {
			units++
		}
	}
	return (units + charsPerToken - 1) / charsPerToken
}

// Amounts is an input/output/total cost triple in one currency
type Amounts struct {
	Input  float64 `json:"input"`
	Output float64 `json:"output"`
	Total  float64 `json:"total"`
}

// Cost holds the same cost in USD and INR
type Cost struct {
	USD Amounts `json:"cost_usd"`
	INR Amounts `json:"cost_inr"`
}

// CalculateCost prices token counts with the model's per-1K rates.
// Figures are not rounded; rounding is a display concern.
func CalculateCost(promptTokens, completionTokens int, info model.ModelInfo) Cost {
	input := float64(promptTokens) / 1000 * info.InputPrice
	output := float64(completionTokens) / 1000 * info.OutputPrice
	total := input + output

	return Cost{
		USD: Amounts{Input: input, Output: output, Total: total},
		INR: Amounts{
			Input:  input * USDToINR,
			Output: output * USDToINR,
			Total:  total * USDToINR,
		},
	}
}

// UsageData is the token and cost summary of one completion
type UsageData struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	Cost
}

// NewUsageData builds usage data from token counts
func NewUsageData(promptTokens, completionTokens int, info model.ModelInfo) UsageData {
	return UsageData{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
		Cost:             CalculateCost(promptTokens, completionTokens, info),
	}
}

// Estimate builds usage data by running EstimateTokens over prompt and completion
func Estimate(prompt, completion string, info model.ModelInfo) UsageData {
	return NewUsageData(EstimateTokens(prompt), EstimateTokens(completion), info)
}
