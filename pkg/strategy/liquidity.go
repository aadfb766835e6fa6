package strategy

import (
	"math/big"
	"time"

	"github.com/batchswap/coordinator"
	"github.com/batchswap/coordinator/internal/util"
)

// scarcerSide names which currency is relatively scarce in a pool.
type scarcerSide int

const (
	sideBalanced scarcerSide = iota
	sideToken0
	sideToken1
)

// LiquidityConfig tunes the liquidity strategy's thresholds (spec.md
// §4.5.3).
type LiquidityConfig struct {
	Bounds      Bounds
	SlippageBps uint32

	ImbalanceThreshold          float64 // ratio of larger/smaller side that counts as imbalanced
	MinTotalLiquidity           int64
	MaxTotalLiquidity           int64 // 0 = unbounded
	VolumeToLiquidityThreshold  float64
	Cooldown                    time.Duration
	TradeIntoImbalance          bool
	MinConfidence               float64
	PositionSizeFraction        float64 // fraction of total_liquidity to size a trade at
	DetectLiquidityChanges      bool
	LiquidityChangeThresholdPct float64
}

// Liquidity reacts to persistent imbalance between a pool's two sides,
// elevated trade volume relative to its depth, and sudden swings in total
// liquidity, stacking whichever of those signals fire into a single
// confidence score.
type Liquidity struct {
	cfg         LiquidityConfig
	lastTotal   *big.Int
	lastTradeMs int64
}

func NewLiquidity(cfg LiquidityConfig) *Liquidity {
	return &Liquidity{cfg: cfg}
}

func (l *Liquidity) Name() string { return "liquidity" }

func (l *Liquidity) ShouldTrade(md batchswap.MarketData, nowMs int64) batchswap.TradeDecision {
	decision, warnings, ok := checkMarketData(md, nowMs)
	if !ok {
		return decision
	}
	if !cooldownElapsed(l.lastTradeMs, nowMs, l.cfg.Cooldown) {
		return noTrade("cooldown active")
	}

	total, ok := util.ParseNonNegativeBigInt(md.TotalLiquidity)
	if !ok {
		return noTrade("unparseable total_liquidity")
	}
	if total.Int64() < l.cfg.MinTotalLiquidity {
		return noTrade("total_liquidity below min_total_liquidity")
	}
	if l.cfg.MaxTotalLiquidity > 0 && total.Int64() > l.cfg.MaxTotalLiquidity {
		return noTrade("total_liquidity above max_total_liquidity")
	}

	liq0, ok0 := util.ParseNonNegativeBigInt(md.Liquidity0)
	liq1, ok1 := util.ParseNonNegativeBigInt(md.Liquidity1)
	if !ok0 || !ok1 {
		return noTrade("unparseable per-side liquidity")
	}

	imbalanceRatio, side := imbalance(liq0, liq1)

	confidence := 0.0
	imbalanced := imbalanceRatio >= l.cfg.ImbalanceThreshold && side != sideBalanced
	if imbalanced {
		severity := clamp01((imbalanceRatio - l.cfg.ImbalanceThreshold) / l.cfg.ImbalanceThreshold)
		confidence += 0.3 + 0.4*severity
	}

	volume, volOk := util.ParseNonNegativeBigInt(md.Volume1h)
	volumeToLiquidity := 0.0
	if volOk && total.Sign() > 0 {
		volumeToLiquidity, _ = new(big.Float).Quo(new(big.Float).SetInt(volume), new(big.Float).SetInt(total)).Float64()
	}
	highVolume := volumeToLiquidity >= l.cfg.VolumeToLiquidityThreshold
	if highVolume {
		if confidence > 0 {
			confidence += 0.15
		} else {
			confidence += 0.25
		}
	}

	suddenChange := false
	if l.cfg.DetectLiquidityChanges && l.lastTotal != nil && l.lastTotal.Sign() > 0 {
		diff := new(big.Int).Sub(total, l.lastTotal)
		diff.Abs(diff)
		changePct := new(big.Float).Quo(new(big.Float).SetInt(diff), new(big.Float).SetInt(l.lastTotal))
		changePct.Mul(changePct, big.NewFloat(100))
		changePctF, _ := changePct.Float64()
		if changePctF >= l.cfg.LiquidityChangeThresholdPct {
			suddenChange = true
			if confidence > 0 {
				confidence += 0.1
			} else {
				confidence += 0.2
			}
		}
	}
	l.lastTotal = total

	if !imbalanced && !highVolume && !suddenChange {
		return noTrade("no liquidity signal fired")
	}

	confidence = clamp01(confidence)
	if confidence < l.cfg.MinConfidence {
		return noTrade("combined confidence below min_confidence")
	}

	direction, ok := l.direction(side)
	if !ok {
		return noTrade("pool is balanced, no directional signal")
	}

	price, err := parsePrice(md.CurrentPrice)
	if err != nil {
		return noTrade("unparseable current_price")
	}

	totalF := new(big.Float).SetInt(total)
	sizeF := new(big.Float).Mul(totalF, big.NewFloat(l.cfg.PositionSizeFraction))
	sizeF.Mul(sizeF, big.NewFloat(confidence))
	sizeInt, _ := sizeF.Int(nil)
	amountIn := util.ClampBig(sizeInt, l.cfg.Bounds.MinAmountIn, l.cfg.Bounds.MaxAmountIn)
	minOut := minAmountOut(amountIn, effectivePrice(price, direction), l.cfg.SlippageBps)

	l.lastTradeMs = nowMs
	return batchswap.TradeDecision{
		ShouldTrade:  true,
		Direction:    direction,
		AmountIn:     amountIn,
		MinAmountOut: minOut,
		Confidence:   confidence,
		Reasoning:    "liquidity signal",
		Warnings:     warnings,
	}
}

// direction resolves the scarcer-side signal into a trade direction,
// honoring TradeIntoImbalance.
func (l *Liquidity) direction(side scarcerSide) (batchswap.Direction, bool) {
	var intoImbalance batchswap.Direction
	switch side {
	case sideToken0:
		intoImbalance = batchswap.OneForZero // buy the scarcer token0
	case sideToken1:
		intoImbalance = batchswap.ZeroForOne // buy the scarcer token1
	default:
		return 0, false
	}
	if l.cfg.TradeIntoImbalance {
		return intoImbalance, true
	}
	if intoImbalance == batchswap.ZeroForOne {
		return batchswap.OneForZero, true
	}
	return batchswap.ZeroForOne, true
}

// imbalance computes the larger/smaller liquidity ratio and which side is
// scarcer. Equal or both-zero sides report a ratio of 1.0 and balanced.
func imbalance(liq0, liq1 *big.Int) (float64, scarcerSide) {
	if liq0.Sign() == 0 && liq1.Sign() == 0 {
		return 1.0, sideBalanced
	}
	cmp := liq0.Cmp(liq1)
	if cmp == 0 {
		return 1.0, sideBalanced
	}
	larger, smaller := liq0, liq1
	side := sideToken1 // liq0 > liq1: token1 is scarcer
	if cmp < 0 {
		larger, smaller = liq1, liq0
		side = sideToken0
	}
	if smaller.Sign() == 0 {
		return 1e18, side
	}
	ratio, _ := new(big.Float).Quo(new(big.Float).SetInt(larger), new(big.Float).SetInt(smaller)).Float64()
	return ratio, side
}
