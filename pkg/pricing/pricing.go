// Package pricing holds the static per-token cost table used for session
// cost accounting. Prices are USD per million tokens and are approximate.
package pricing

import (
	"sort"
	"strings"
)

type rate struct {
	input  float64
	output float64
}

// Known model pricing. Versioned model ids are matched by substring when
// no exact entry exists.
var table = map[string]rate{
	// Anthropic
	"claude-sonnet-4-5-20250929": {3.0, 15.0},
	"claude-sonnet-4":            {3.0, 15.0},
	"claude-opus-4":              {15.0, 75.0},
	"claude-haiku-3-5":           {0.25, 1.25},

	// OpenAI
	"gpt-4o":      {2.50, 10.0},
	"gpt-4o-mini": {0.15, 0.60},
	"o1":          {15.0, 60.0},
	"o3":          {10.0, 40.0},
	"o3-mini":     {1.10, 4.40},

	// OpenRouter model ids
	"anthropic/claude-sonnet-4":   {3.0, 15.0},
	"anthropic/claude-opus-4":     {15.0, 75.0},
	"anthropic/claude-haiku-3-5":  {0.25, 1.25},
	"openai/gpt-4o":               {2.50, 10.0},
	"google/gemini-2.5-pro":       {1.25, 10.0},
	"google/gemini-2.5-flash":     {0.15, 0.60},
	"meta-llama/llama-4-scout":    {0.15, 0.40},
	"meta-llama/llama-4-maverick": {0.30, 0.80},
	"deepseek/deepseek-r1":        {0.55, 2.19},
	"mistralai/mistral-large":     {2.0, 6.0},
}

// Default pricing for unknown models.
var defaultRate = rate{3.0, 15.0}

// Estimate returns the estimated cost in USD for the given token counts.
func Estimate(model string, inputTokens, outputTokens int) float64 {
	r := lookup(model)
	return float64(inputTokens)*r.input/1_000_000 + float64(outputTokens)*r.output/1_000_000
}

// Rates returns the input/output USD-per-million rates for a model.
func Rates(model string) (input, output float64) {
	r := lookup(model)
	return r.input, r.output
}

func lookup(model string) rate {
	if r, ok := table[model]; ok {
		return r
	}
	if r, ok := matchPartial(model); ok {
		return r
	}
	return defaultRate
}

// partialKeys orders the table for the substring fallback, longest key
// first so an id matching several families ("o3-mini-...") resolves to the
// most specific entry, deterministically.
var partialKeys = func() []string {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}()

// matchPartial handles versioned model ids that embed a base family name.
func matchPartial(model string) (rate, bool) {
	for _, key := range partialKeys {
		if strings.Contains(model, key) {
			return table[key], true
		}
	}
	return rate{}, false
}
