package anthropic

import (
	"strings"

	"go.uber.org/zap"
)

// TokenUsage tracks token consumption.
type TokenUsage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

// Price is the per-million-token list price of a model family in USD.
type Price struct {
	Input  float64
	Output float64
}

// familyPrices is keyed by model id prefix so dated snapshots and
// aliases of one family share a price.
var familyPrices = []struct {
	prefix string
	price  Price
}{
	{"claude-haiku-4", Price{Input: 1.00, Output: 5.00}},
	{"claude-3-5-haiku", Price{Input: 0.80, Output: 4.00}},
	{"claude-sonnet-4", Price{Input: 3.00, Output: 15.00}},
	{"claude-opus-4-5", Price{Input: 5.00, Output: 25.00}},
	{"claude-opus-4", Price{Input: 15.00, Output: 75.00}},
}

// PriceFor returns the list price for a model id. The first matching
// prefix wins, so more specific prefixes are listed first.
func PriceFor(model string) (Price, bool) {
	for _, fp := range familyPrices {
		if strings.HasPrefix(model, fp.prefix) {
			return fp.price, true
		}
	}
	return Price{}, false
}

// EstimateCost computes an estimated cost in USD. Cache writes bill at
// 1.25x input and cache reads at 0.1x. Unknown models cost 0.
func (u TokenUsage) EstimateCost(model string) float64 {
	p, ok := PriceFor(model)
	if !ok {
		return 0
	}
	perTok := func(n int64, rate float64) float64 { return float64(n) / 1e6 * rate }
	return perTok(u.InputTokens, p.Input) +
		perTok(u.OutputTokens, p.Output) +
		perTok(u.CacheCreationInputTokens, p.Input*1.25) +
		perTok(u.CacheReadInputTokens, p.Input*0.1)
}

// LogCost logs token usage and estimated cost for one document.
func (u TokenUsage) LogCost(model, document string) {
	zap.L().Info("anthropic: usage",
		zap.String("model", model),
		zap.String("document", document),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
		zap.Int64("cache_read_tokens", u.CacheReadInputTokens),
		zap.Float64("estimated_cost_usd", u.EstimateCost(model)),
	)
}
