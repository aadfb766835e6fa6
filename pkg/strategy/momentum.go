package strategy

import (
	"time"

	"github.com/batchswap/coordinator"
	"github.com/batchswap/coordinator/internal/util"
)

// MomentumConfig tunes the momentum strategy's thresholds (spec.md
// §4.5.1).
type MomentumConfig struct {
	Bounds      Bounds
	SlippageBps uint32

	Threshold1hPct            float64
	Threshold24hPct           float64
	ShortWeight               float64 // weight applied to the 1h change in the composite score
	LongWeight                float64 // weight applied to the 24h change in the composite score
	MinVolumeThreshold        int64
	Cooldown                  time.Duration
	MaxVolatilityPct          float64
	RequireVolumeConfirmation bool
	TrendConfirmationSwaps    int
}

// Momentum trades on a price trend, combining the 1h and 24h price changes
// into a single weighted composite score. Recent swaps only scale the
// confidence: at least 60% of the confirmation window agreeing with the
// trend raises it, fewer lowers it, and the trade goes ahead either way.
type Momentum struct {
	cfg         MomentumConfig
	lastTradeMs int64
}

func NewMomentum(cfg MomentumConfig) *Momentum {
	if cfg.ShortWeight == 0 && cfg.LongWeight == 0 {
		cfg.ShortWeight, cfg.LongWeight = 1, 1
	}
	return &Momentum{cfg: cfg}
}

func (m *Momentum) Name() string { return "momentum" }

func (m *Momentum) ShouldTrade(md batchswap.MarketData, nowMs int64) batchswap.TradeDecision {
	decision, warnings, ok := checkMarketData(md, nowMs)
	if !ok {
		return decision
	}
	if !cooldownElapsed(m.lastTradeMs, nowMs, m.cfg.Cooldown) {
		return noTrade("cooldown active")
	}

	delta1h, delta24h := md.PriceChange1hPct, md.PriceChange24hPct

	if absFloat(delta1h) > m.cfg.MaxVolatilityPct || absFloat(delta24h) > m.cfg.MaxVolatilityPct {
		return noTrade("price volatility exceeds max_volatility_pct")
	}

	composite := delta1h*m.cfg.ShortWeight + delta24h*m.cfg.LongWeight
	requiredMagnitude := m.cfg.Threshold1hPct*m.cfg.ShortWeight + m.cfg.Threshold24hPct*m.cfg.LongWeight
	if absFloat(composite) < requiredMagnitude {
		return noTrade("composite momentum below threshold")
	}

	if m.cfg.RequireVolumeConfirmation {
		volume, ok := util.ParseNonNegativeBigInt(md.Volume1h)
		if !ok || volume.Int64() < m.cfg.MinVolumeThreshold {
			return noTrade("insufficient 1h volume to confirm momentum")
		}
	}

	expectUptrend := composite > 0
	window := m.cfg.TrendConfirmationSwaps
	if window > len(md.RecentSwaps) {
		window = len(md.RecentSwaps)
	}
	recent := md.RecentSwaps[len(md.RecentSwaps)-window:]

	aligned := 0
	for _, s := range recent {
		// expecting uptrend: a swap with zero_for_one == false (buying
		// currency0, i.e. ONE_FOR_ZERO) counts as aligned; downtrend is
		// symmetric.
		if (expectUptrend && !s.ZeroForOne) || (!expectUptrend && s.ZeroForOne) {
			aligned++
		}
	}

	confirmationMultiplier := 0.7
	if window > 0 && float64(aligned)/float64(window) >= 0.6 {
		confirmationMultiplier = 1.2
	}

	// Positive composite momentum: price trending up, sell currency0 into
	// the rally by going ZeroForOne; negative composite buys back in.
	direction := batchswap.ZeroForOne
	if composite < 0 {
		direction = batchswap.OneForZero
	}

	conf1h := absFloat(delta1h) / (3 * m.cfg.Threshold1hPct)
	conf24h := absFloat(delta24h) / (3 * m.cfg.Threshold24hPct)
	confidence := (conf1h*m.cfg.ShortWeight + conf24h*m.cfg.LongWeight) / (m.cfg.ShortWeight + m.cfg.LongWeight)

	if sameSign(delta1h, delta24h) {
		confidence += 0.15
	} else if delta1h != 0 && delta24h != 0 {
		confidence -= 0.15
	}

	confidence *= confirmationMultiplier
	confidence = clampRange(confidence, 0.1, 1.0)

	price, err := parsePrice(md.CurrentPrice)
	if err != nil {
		return noTrade("unparseable current_price")
	}

	amountIn := decideAmount(confidence, m.cfg.Bounds)
	minOut := minAmountOut(amountIn, effectivePrice(price, direction), m.cfg.SlippageBps)

	m.lastTradeMs = nowMs
	return batchswap.TradeDecision{
		ShouldTrade:  true,
		Direction:    direction,
		AmountIn:     amountIn,
		MinAmountOut: minOut,
		Confidence:   confidence,
		Reasoning:    "confirmed momentum trend",
		Warnings:     warnings,
	}
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func clampRange(f, lo, hi float64) float64 {
	if f < lo {
		return lo
	}
	if f > hi {
		return hi
	}
	return f
}
