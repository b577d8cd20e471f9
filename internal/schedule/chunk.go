// Package schedule holds the pacing logic: chunk sizing, day/night delay
// windows and the self-correcting daily transfer budget.
package schedule

import (
	"math/rand"

	"github.com/shopspring/decimal"
)

// ChunkConfig bounds one transfer. MaxTokens wins when set; otherwise the cap
// is MaxUSD divided by the current token price.
type ChunkConfig struct {
	MinTokens int64
	MaxTokens int64
	MaxUSD    decimal.Decimal
}

// MaxChunkTokens resolves the effective token cap at the given price.
func (c ChunkConfig) MaxChunkTokens(price decimal.Decimal) int64 {
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	if price.Sign() <= 0 {
		return c.MinTokens
	}
	maxTok := c.MaxUSD.Div(price).IntPart()
	if maxTok < 1 {
		return 1
	}
	return maxTok
}

// ChunkSize picks a uniform random whole-token amount in
// [min(MinTokens, remaining), min(maxChunk, remaining)], never below 1 and
// never above remaining, so every send strictly reduces the debt.
func ChunkSize(rng *rand.Rand, cfg ChunkConfig, remaining int64, price decimal.Decimal) int64 {
	if remaining <= 0 {
		return 0
	}
	hi := cfg.MaxChunkTokens(price)
	if hi > remaining {
		hi = remaining
	}
	if hi < 1 {
		hi = 1
	}
	lo := cfg.MinTokens
	if lo > remaining {
		lo = remaining
	}
	if lo > hi {
		lo = hi
	}
	if lo < 1 {
		lo = 1
	}
	return lo + rng.Int63n(hi-lo+1)
}
