package live

import "strings"

// modelContextLimits maps model name patterns to their context window in
// tokens. Keys are matched as case-insensitive substrings.
var modelContextLimits = map[string]int64{
	// Anthropic Claude
	"claude-opus-4":   200_000,
	"claude-sonnet-4": 200_000,
	"claude-haiku-4":  200_000,
	"claude-3-7":      200_000,
	"claude-3-5":      200_000,
	"claude-3-opus":   200_000,
	"claude-3-haiku":  200_000,
	"claude-2":        100_000,
	// OpenAI
	"gpt-5":         400_000,
	"gpt-4.1":       1_047_576,
	"gpt-4o":        128_000,
	"gpt-4-turbo":   128_000,
	"gpt-4":         8_192,
	"gpt-3.5-turbo": 16_385,
	"o3":            200_000,
	"o4-mini":       200_000,
	// Google
	"gemini-2.5": 1_048_576,
	"gemini-2.0": 1_048_576,
}

// DefaultContextLimit is used when the model name cannot be matched.
const DefaultContextLimit int64 = 200_000

// ContextLimit returns the context window for model. The longest matching
// key wins, so "gpt-4-turbo" takes precedence over "gpt-4".
func ContextLimit(model string) int64 {
	return lookup(modelContextLimits, model, DefaultContextLimit)
}

func lookup[V any](table map[string]V, model string, fallback V) V {
	lower := strings.ToLower(model)
	bestLen := 0
	best := fallback
	for key, v := range table {
		if strings.Contains(lower, key) && len(key) > bestLen {
			bestLen = len(key)
			best = v
		}
	}
	return best
}
