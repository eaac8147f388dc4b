package live

// Price is the list price of a model in USD per million tokens.
type Price struct {
	Input  float64
	Output float64
}

var modelPrices = map[string]Price{
	"claude-opus-4":    {Input: 15, Output: 75},
	"claude-opus-4-5":  {Input: 5, Output: 25},
	"claude-opus-4-6":  {Input: 5, Output: 25},
	"claude-sonnet-4":  {Input: 3, Output: 15},
	"claude-haiku-4":   {Input: 1, Output: 5},
	"claude-3-7":       {Input: 3, Output: 15},
	"claude-3-5-haiku": {Input: 0.8, Output: 4},
	"gpt-5":            {Input: 1.25, Output: 10},
	"gpt-5-mini":       {Input: 0.25, Output: 2},
	"gpt-4.1":          {Input: 2, Output: 8},
	"gpt-4o":           {Input: 2.5, Output: 10},
	"gpt-4o-mini":      {Input: 0.15, Output: 0.6},
	"gemini-2.5-pro":   {Input: 1.25, Output: 10},
	"gemini-2.5-flash": {Input: 0.3, Output: 2.5},
}

// PriceOf looks up the price of model. Unknown models are free.
func PriceOf(model string) (Price, bool) {
	p := lookup(modelPrices, model, Price{})
	return p, p != Price{}
}

// EstimateCost prices a session from its input and output token counts.
func EstimateCost(model string, input, output int64) float64 {
	p, ok := PriceOf(model)
	if !ok {
		return 0
	}
	return (float64(input)*p.Input + float64(output)*p.Output) / 1_000_000
}
