package strategy

import (
	"time"

	"github.com/batchswap/coordinator"
	"github.com/batchswap/coordinator/internal/util"
)

// ReferencePrice is one external price quote for a pool's currency pair,
// e.g. a CEX mid or an oracle read, tagged with its source and when it
// was observed.
type ReferencePrice struct {
	Source     string
	Price      float64
	ObservedAt time.Time
}

// ArbitrageConfig tunes the arbitrage strategy's thresholds (spec.md
// §4.5.2).
type ArbitrageConfig struct {
	Bounds         Bounds
	MaxSlippageBps uint32

	MinSpreadPct     float64
	MaxSpreadPct     float64
	EstimatedGasCost float64
	MinNetProfit     float64
	MinLiquidity     int64
	SourceWeights    map[string]float64 // defaults to 1.0 for an unlisted source
	EnableCrossPool  bool
	Cooldown         time.Duration
}

// ReferencePriceFunc supplies the external reference prices available for
// the pool's currency pair right now. Kept as an interface seam rather
// than a field on MarketData, since references come from a different
// data source than the pool snapshot.
type ReferencePriceFunc func(md batchswap.MarketData) []ReferencePrice

const referencePriceMaxAge = 5 * time.Minute

// Arbitrage trades when the pool's quoted price diverges from an
// external reference price by more than MinSpreadPct, selecting the
// reference opportunity with the highest spread-weighted confidence and
// requiring the estimated profit minus EstimatedGasCost to reach
// MinNetProfit.
type Arbitrage struct {
	cfg         ArbitrageConfig
	refFn       ReferencePriceFunc
	lastTradeMs int64
}

func NewArbitrage(cfg ArbitrageConfig, refFn ReferencePriceFunc) *Arbitrage {
	return &Arbitrage{cfg: cfg, refFn: refFn}
}

func (a *Arbitrage) Name() string { return "arbitrage" }

type arbitrageOpportunity struct {
	direction  batchswap.Direction
	spreadPct  float64
	confidence float64
	score      float64
}

func (a *Arbitrage) ShouldTrade(md batchswap.MarketData, nowMs int64) batchswap.TradeDecision {
	decision, warnings, ok := checkMarketData(md, nowMs)
	if !ok {
		return decision
	}
	if !cooldownElapsed(a.lastTradeMs, nowMs, a.cfg.Cooldown) {
		return noTrade("cooldown active")
	}

	liquidity, ok := util.ParseNonNegativeBigInt(md.TotalLiquidity)
	if !ok || liquidity.Int64() < a.cfg.MinLiquidity {
		return noTrade("total_liquidity below min_liquidity")
	}

	currentPrice, err := parsePrice(md.CurrentPrice)
	if err != nil || currentPrice <= 0 {
		return noTrade("unparseable current_price")
	}

	var best *arbitrageOpportunity
	now := time.UnixMilli(nowMs)
	for _, ref := range a.refFn(md) {
		if now.Sub(ref.ObservedAt) > referencePriceMaxAge {
			continue
		}
		spreadPct := (ref.Price - currentPrice) / currentPrice * 100.0
		if absFloat(spreadPct) < a.cfg.MinSpreadPct || absFloat(spreadPct) > a.cfg.MaxSpreadPct {
			continue
		}

		direction := batchswap.OneForZero // reference above pool: pool underpriced, buy
		if spreadPct <= 0 {
			direction = batchswap.ZeroForOne // reference below pool: pool overpriced, sell
		}

		weight := a.cfg.SourceWeights[ref.Source]
		if weight == 0 {
			weight = 1.0
		}
		sourceConfidence := 1.0
		confidence := clamp01(absFloat(spreadPct) / (5 * a.cfg.MinSpreadPct) * sourceConfidence * weight)

		score := absFloat(spreadPct) * confidence
		if best == nil || score > best.score {
			best = &arbitrageOpportunity{direction: direction, spreadPct: spreadPct, confidence: confidence, score: score}
		}
	}

	if best == nil {
		return noTrade("no reference price within spread bounds")
	}

	estimatedProfit := absFloat(best.spreadPct) / 100.0 * currentPrice
	if estimatedProfit-a.cfg.EstimatedGasCost < a.cfg.MinNetProfit {
		return noTrade("estimated net profit below min_net_profit")
	}

	sizeFraction := best.confidence * best.spreadPct / 2
	if sizeFraction < 0 {
		sizeFraction = -sizeFraction
	}
	if sizeFraction > 1.0 {
		sizeFraction = 1.0
	}

	amountIn := decideAmount(sizeFraction, a.cfg.Bounds)
	minOut := minAmountOut(amountIn, effectivePrice(currentPrice, best.direction), a.cfg.MaxSlippageBps)

	a.lastTradeMs = nowMs
	return batchswap.TradeDecision{
		ShouldTrade:  true,
		Direction:    best.direction,
		AmountIn:     amountIn,
		MinAmountOut: minOut,
		Confidence:   best.confidence,
		Reasoning:    "pool price diverged from external reference",
		Warnings:     warnings,
	}
}
