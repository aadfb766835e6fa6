// Package strategy holds the shared decision toolkit and the four
// concrete trading strategies that consume market data and produce a
// TradeDecision: momentum, arbitrage, liquidity-provisioning, and
// mean-reversion.
package strategy

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/batchswap/coordinator"
	"github.com/batchswap/coordinator/internal/util"
)

// Strategy evaluates a market snapshot and decides whether to trade.
type Strategy interface {
	Name() string
	ShouldTrade(md batchswap.MarketData, nowMs int64) batchswap.TradeDecision
}

// Bounds constrains the amount a strategy is willing to commit.
type Bounds struct {
	MinAmountIn *big.Int
	MaxAmountIn *big.Int
}

// noTrade is the zero-confidence, no-op decision every strategy returns
// when its preconditions aren't met. warnings, if any, are surfaced on the
// decision even though no trade was made.
func noTrade(reason string, warnings ...string) batchswap.TradeDecision {
	return batchswap.TradeDecision{ShouldTrade: false, Reasoning: reason, Warnings: warnings}
}

const (
	extremeDelta1hPct  = 100.0
	extremeDelta24hPct = 200.0
)

// validateMarketData checks a snapshot against the errors and warnings
// every strategy must observe before consuming it, without performing any
// network I/O. errs is empty and valid is true when every required field
// is present and well-formed; warnings never affect validity.
func validateMarketData(md batchswap.MarketData, nowMs int64) (valid bool, errs []error, warnings []string) {
	valid = true

	if md.PoolID == (common.Hash{}) {
		valid = false
		errs = append(errs, batchswap.NewValidationError(batchswap.KindInvalidMarketData, "pool_id is missing"))
	}
	if md.PoolKey.Currency0 == (common.Address{}) || md.PoolKey.Currency1 == (common.Address{}) {
		valid = false
		errs = append(errs, batchswap.NewValidationError(batchswap.KindInvalidMarketData, "pool_key is missing"))
	}

	price, priceErr := parsePrice(md.CurrentPrice)
	if priceErr != nil || price <= 0 {
		valid = false
		errs = append(errs, batchswap.NewValidationError(batchswap.KindInvalidMarketData, "current_price is not a positive finite number"))
	}

	totalLiquidity, ok := util.ParseNonNegativeBigInt(md.TotalLiquidity)
	if !ok {
		valid = false
		errs = append(errs, batchswap.NewValidationError(batchswap.KindInvalidMarketData, "total_liquidity is not a valid non-negative integer"))
	}
	if _, ok := util.ParseNonNegativeBigInt(md.Volume1h); !ok {
		valid = false
		errs = append(errs, batchswap.NewValidationError(batchswap.KindInvalidMarketData, "volume_1h is not a valid non-negative integer"))
	}
	if _, ok := util.ParseNonNegativeBigInt(md.Volume24h); !ok {
		valid = false
		errs = append(errs, batchswap.NewValidationError(batchswap.KindInvalidMarketData, "volume_24h is not a valid non-negative integer"))
	}

	if md.IsStale(nowMs) {
		warnings = append(warnings, "stale market data snapshot")
	}
	if absFloat(md.PriceChange1hPct) > extremeDelta1hPct {
		warnings = append(warnings, "extreme 1h price change")
	}
	if absFloat(md.PriceChange24hPct) > extremeDelta24hPct {
		warnings = append(warnings, "extreme 24h price change")
	}
	if ok && totalLiquidity.Sign() == 0 {
		warnings = append(warnings, "zero total liquidity")
	}

	return valid, errs, warnings
}

// checkMarketData validates md on behalf of a strategy's ShouldTrade. When
// invalid it returns ok=false and a ready-made noTrade decision carrying the
// joined validation errors and any warnings; the caller should return it
// immediately. When ok is true the caller proceeds and must attach warnings
// to whatever TradeDecision it ultimately returns.
func checkMarketData(md batchswap.MarketData, nowMs int64) (decision batchswap.TradeDecision, warnings []string, ok bool) {
	valid, errs, warnings := validateMarketData(md, nowMs)
	if !valid {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return noTrade(strings.Join(msgs, "; "), warnings...), warnings, false
	}
	return batchswap.TradeDecision{}, warnings, true
}

func parsePrice(s string) (float64, error) {
	v, _, err := big.ParseFloat(s, 10, 200, big.ToNearestEven)
	if err != nil {
		return 0, err
	}
	f, _ := v.Float64()
	return f, nil
}

// decideAmount is the single point where confidence scales into an
// amount_in within bounds. Every strategy routes through this helper so
// confidence is scaled exactly once (see the module's accompanying
// design notes on double-scaling).
func decideAmount(confidence float64, bounds Bounds) *big.Int {
	return util.ScaleLinear(confidence, bounds.MinAmountIn, bounds.MaxAmountIn)
}

// minAmountOut computes floor(amountIn * price_scaled) truncated toward
// zero, then applies slippageBps as a further haircut, matching the
// hook's own floor-toward-zero rounding so the off-chain estimate never
// overstates what the contract will accept.
func minAmountOut(amountIn *big.Int, price float64, slippageBps uint32) *big.Int {
	priceFixed := util.PriceFixedPoint1e18(price)
	product := new(big.Int).Mul(amountIn, priceFixed.ToBig())
	product.Div(product, big.NewInt(1e18))

	if slippageBps > 0 {
		haircut := new(big.Int).Mul(product, big.NewInt(int64(10_000-slippageBps)))
		haircut.Div(haircut, big.NewInt(10_000))
		return haircut
	}
	return product
}

// cooldownElapsed reports whether at least cooldown has passed since
// lastTradeMs. lastTradeMs of 0 means no prior trade, always elapsed.
func cooldownElapsed(lastTradeMs, nowMs int64, cooldown time.Duration) bool {
	if lastTradeMs == 0 {
		return true
	}
	return time.Duration(nowMs-lastTradeMs)*time.Millisecond >= cooldown
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// effectivePrice returns the price to use in minAmountOut for dir: the
// quoted pool price for ZERO_FOR_ONE, or its reciprocal for ONE_FOR_ZERO
// (spec.md §4.5's min-out formula uses amount_in*1e18/P in that case).
func effectivePrice(price float64, dir batchswap.Direction) float64 {
	if dir == batchswap.ZeroForOne {
		return price
	}
	if price == 0 {
		return 0
	}
	return 1.0 / price
}
