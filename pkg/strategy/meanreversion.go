package strategy

import (
	"math"
	"math/big"
	"time"

	"github.com/batchswap/coordinator"
	"github.com/batchswap/coordinator/internal/util"
)

const meanReversionBufferCap = 1000

// pricePoint is one observation in the mean-reversion ring buffer.
type pricePoint struct {
	price float64
	ts    int64
}

// MeanReversionConfig tunes the mean-reversion strategy's EMA tracking
// and signal zones (spec.md §4.5.4).
type MeanReversionConfig struct {
	Bounds      Bounds
	SlippageBps uint32

	EMAPeriod                 int
	EMASmoothingFactor        float64 // 0 defaults to 2/(EMAPeriod+1)
	ModerateDevThreshold      float64
	StrongDevThreshold        float64
	ExtremeDevThreshold       float64
	MaxDevThreshold           float64 // beyond this, treat as a regime change and skip
	Cooldown                  time.Duration
	MinConfidence             float64
	RequireVolumeConfirmation bool
	VolumeConfirmationRatio   float64
	MinDataPoints             int
}

// MeanReversion maintains a ring buffer of recent prices alongside a
// running EMA and EMA-of-squares, trades against deviations beyond its
// configured zone thresholds, and bets the price reverts toward the
// mean. Floating point is used deliberately for the EMA/variance/z-score
// intermediates; only the resulting AmountIn/MinAmountOut are
// big-integer.
type MeanReversion struct {
	cfg    MeanReversionConfig
	buffer []pricePoint
	ema    float64
	emaSq  float64
	seen   int

	lastTradeMs int64
}

func NewMeanReversion(cfg MeanReversionConfig) *MeanReversion {
	if cfg.EMASmoothingFactor <= 0 {
		cfg.EMASmoothingFactor = 2.0 / (float64(cfg.EMAPeriod) + 1)
	}
	return &MeanReversion{cfg: cfg}
}

func (r *MeanReversion) Name() string { return "mean_reversion" }

func (r *MeanReversion) ShouldTrade(md batchswap.MarketData, nowMs int64) batchswap.TradeDecision {
	decision, warnings, ok := checkMarketData(md, nowMs)
	if !ok {
		return decision
	}

	price, err := parsePrice(md.CurrentPrice)
	if err != nil {
		return noTrade("unparseable current_price")
	}

	r.appendPoint(price, nowMs)

	k := r.cfg.EMASmoothingFactor
	if r.seen == 0 {
		r.ema = price
		r.emaSq = price * price
		r.seen = 1
		return noTrade("establishing mean, no prior price observed")
	}
	r.ema = price*k + r.ema*(1-k)
	r.emaSq = price*price*k + r.emaSq*(1-k)
	r.seen++

	if !cooldownElapsed(r.lastTradeMs, nowMs, r.cfg.Cooldown) {
		return noTrade("cooldown active")
	}

	variance := r.emaSq - r.ema*r.ema
	if variance < 0 {
		variance = 0
	}
	sigma := math.Sqrt(variance)
	if sigma == 0 {
		return noTrade("zero variance, no z-score available")
	}

	z := (price - r.ema) / sigma
	if absFloat(z) > r.cfg.MaxDevThreshold {
		return noTrade("deviation exceeds max_dev_threshold, likely regime change")
	}

	var confidence float64
	switch {
	case absFloat(z) >= r.cfg.ExtremeDevThreshold:
		confidence = 0.9
	case absFloat(z) >= r.cfg.StrongDevThreshold:
		confidence = 0.65
	case absFloat(z) >= r.cfg.ModerateDevThreshold:
		confidence = 0.4
	default:
		return noTrade("deviation below moderate_dev_threshold")
	}

	if r.cfg.RequireVolumeConfirmation {
		volume, volOk := util.ParseNonNegativeBigInt(md.Volume1h)
		liquidity, liqOk := util.ParseNonNegativeBigInt(md.TotalLiquidity)
		confirmed := false
		if volOk && liqOk && liquidity.Sign() > 0 {
			ratio, _ := new(big.Float).Quo(new(big.Float).SetInt(volume), new(big.Float).SetInt(liquidity)).Float64()
			confirmed = ratio >= r.cfg.VolumeConfirmationRatio
		}
		if confirmed {
			confidence = math.Min(confidence*1.2, 1.0)
		} else {
			confidence *= 0.7
		}
	}

	if len(r.buffer) < r.cfg.MinDataPoints {
		return noTrade("insufficient data_points for min_data_points")
	}
	if confidence < r.cfg.MinConfidence {
		return noTrade("confidence below min_confidence")
	}

	// Contrarian: price above mean (z > 0) sells into the rally;
	// below mean buys in, betting on reversion.
	direction := batchswap.OneForZero
	if z > 0 {
		direction = batchswap.ZeroForOne
	}

	amountIn := decideAmount(confidence, r.cfg.Bounds)
	minOut := minAmountOut(amountIn, effectivePrice(price, direction), r.cfg.SlippageBps)

	r.lastTradeMs = nowMs
	return batchswap.TradeDecision{
		ShouldTrade:  true,
		Direction:    direction,
		AmountIn:     amountIn,
		MinAmountOut: minOut,
		Confidence:   confidence,
		Reasoning:    "price deviated from tracked mean",
		Warnings:     warnings,
	}
}

func (r *MeanReversion) appendPoint(price float64, nowMs int64) {
	r.buffer = append(r.buffer, pricePoint{price: price, ts: nowMs})
	if len(r.buffer) > meanReversionBufferCap {
		r.buffer = r.buffer[len(r.buffer)-meanReversionBufferCap:]
	}
}
