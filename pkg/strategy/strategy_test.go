package strategy

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batchswap/coordinator"
)

func bounds() Bounds {
	return Bounds{MinAmountIn: big.NewInt(100), MaxAmountIn: big.NewInt(10_000)}
}

func basePoolKey() batchswap.PoolKey {
	return batchswap.PoolKey{
		Currency0: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Currency1: common.HexToAddress("0x2222222222222222222222222222222222222222"),
	}
}

func baseMarketData(nowMs int64) batchswap.MarketData {
	return batchswap.MarketData{
		PoolID:         common.HexToHash("0xfeed"),
		PoolKey:        basePoolKey(),
		CurrentPrice:   "2.0",
		TotalLiquidity: "1000000",
		Liquidity0:     "500000",
		Liquidity1:     "500000",
		Volume1h:       "0",
		Volume24h:      "0",
		CapturedAtMs:   nowMs,
	}
}

func TestValidateMarketData_Stale(t *testing.T) {
	now := int64(10_000_000)
	md := baseMarketData(now)
	md.CapturedAtMs = now - (6 * time.Minute).Milliseconds()

	valid, errs, warnings := validateMarketData(md, now)
	assert.True(t, valid, "staleness is a warning, not a validation error")
	assert.Empty(t, errs)
	assert.Contains(t, warnings, "stale market data snapshot")
}

func TestValidateMarketData_MissingPoolIdentifiers(t *testing.T) {
	now := int64(10_000_000)
	md := baseMarketData(now)
	md.PoolID = common.Hash{}
	md.PoolKey = batchswap.PoolKey{}

	valid, errs, _ := validateMarketData(md, now)
	assert.False(t, valid)
	require.Len(t, errs, 2)
}

func TestValidateMarketData_NonPositivePrice(t *testing.T) {
	now := int64(10_000_000)
	md := baseMarketData(now)
	md.CurrentPrice = "0"

	valid, errs, _ := validateMarketData(md, now)
	assert.False(t, valid)
	require.Len(t, errs, 1)
	var verr *batchswap.ValidationError
	require.ErrorAs(t, errs[0], &verr)
	assert.Equal(t, batchswap.KindInvalidMarketData, verr.Kind)
}

func TestValidateMarketData_UnparsableVolumes(t *testing.T) {
	now := int64(10_000_000)
	md := baseMarketData(now)
	md.Volume1h = "not-a-number"
	md.Volume24h = "-5"

	valid, errs, _ := validateMarketData(md, now)
	assert.False(t, valid)
	require.Len(t, errs, 2)
}

func TestValidateMarketData_ExtremePriceChangeWarns(t *testing.T) {
	now := int64(10_000_000)
	md := baseMarketData(now)
	md.PriceChange1hPct = 150
	md.PriceChange24hPct = 250

	valid, errs, warnings := validateMarketData(md, now)
	assert.True(t, valid)
	assert.Empty(t, errs)
	assert.Contains(t, warnings, "extreme 1h price change")
	assert.Contains(t, warnings, "extreme 24h price change")
}

func TestValidateMarketData_ZeroLiquidityWarns(t *testing.T) {
	now := int64(10_000_000)
	md := baseMarketData(now)
	md.TotalLiquidity = "0"

	valid, errs, warnings := validateMarketData(md, now)
	assert.True(t, valid)
	assert.Empty(t, errs)
	assert.Contains(t, warnings, "zero total liquidity")
}

func momentumConfig() MomentumConfig {
	return MomentumConfig{
		Bounds:                 bounds(),
		Threshold1hPct:         3,
		Threshold24hPct:        8,
		ShortWeight:            1,
		LongWeight:             1,
		MaxVolatilityPct:       50,
		TrendConfirmationSwaps: 3,
	}
}

func TestMomentum_NoTradeBelowThreshold(t *testing.T) {
	now := int64(10_000_000)
	m := NewMomentum(momentumConfig())
	md := baseMarketData(now)
	md.PriceChange1hPct = 1

	d := m.ShouldTrade(md, now)
	assert.False(t, d.ShouldTrade)
}

func TestMomentum_RejectsExcessiveVolatility(t *testing.T) {
	now := int64(10_000_000)
	cfg := momentumConfig()
	cfg.MaxVolatilityPct = 5
	m := NewMomentum(cfg)
	md := baseMarketData(now)
	md.PriceChange1hPct = 20

	d := m.ShouldTrade(md, now)
	assert.False(t, d.ShouldTrade)
}

func TestMomentum_TradesOnConfirmedTrend(t *testing.T) {
	now := int64(10_000_000)
	m := NewMomentum(momentumConfig())
	md := baseMarketData(now)
	md.PriceChange1hPct = 10
	md.PriceChange24hPct = 10
	md.RecentSwaps = []batchswap.RecentSwap{
		{ZeroForOne: false}, {ZeroForOne: false}, {ZeroForOne: true},
	}

	d := m.ShouldTrade(md, now)
	require.True(t, d.ShouldTrade)
	assert.Equal(t, batchswap.ZeroForOne, d.Direction)
	assert.True(t, d.AmountIn.Cmp(bounds().MinAmountIn) >= 0)
	assert.True(t, d.AmountIn.Cmp(bounds().MaxAmountIn) <= 0)
}

func TestMomentum_UnconfirmedTrendLowersConfidence(t *testing.T) {
	now := int64(10_000_000)
	md := baseMarketData(now)
	md.PriceChange1hPct = 10
	md.PriceChange24hPct = 10
	md.RecentSwaps = []batchswap.RecentSwap{
		{ZeroForOne: false}, {ZeroForOne: false}, {ZeroForOne: true},
	}

	m := NewMomentum(momentumConfig())
	confirmed := m.ShouldTrade(md, now)

	m2 := NewMomentum(momentumConfig())
	mdUnconfirmed := md
	mdUnconfirmed.RecentSwaps = []batchswap.RecentSwap{
		{ZeroForOne: true}, {ZeroForOne: true}, {ZeroForOne: true},
	}
	unconfirmed := m2.ShouldTrade(mdUnconfirmed, now)

	require.True(t, confirmed.ShouldTrade)
	require.True(t, unconfirmed.ShouldTrade)
	assert.True(t, unconfirmed.Confidence < confirmed.Confidence)
}

func TestMomentum_VolumeConfirmationRequired(t *testing.T) {
	now := int64(10_000_000)
	cfg := momentumConfig()
	cfg.RequireVolumeConfirmation = true
	cfg.MinVolumeThreshold = 1000
	m := NewMomentum(cfg)

	md := baseMarketData(now)
	md.PriceChange1hPct = 10
	md.PriceChange24hPct = 10
	md.Volume1h = "10"
	md.RecentSwaps = []batchswap.RecentSwap{{ZeroForOne: false}}

	d := m.ShouldTrade(md, now)
	assert.False(t, d.ShouldTrade)
}

func TestMomentum_CooldownBlocksRepeatTrade(t *testing.T) {
	now := int64(10_000_000)
	cfg := momentumConfig()
	cfg.Cooldown = time.Minute
	m := NewMomentum(cfg)
	md := baseMarketData(now)
	md.PriceChange1hPct = 10
	md.PriceChange24hPct = 10
	md.RecentSwaps = []batchswap.RecentSwap{{ZeroForOne: false}}

	first := m.ShouldTrade(md, now)
	require.True(t, first.ShouldTrade)

	second := m.ShouldTrade(md, now+1000)
	assert.False(t, second.ShouldTrade)
}

func arbitrageConfig() ArbitrageConfig {
	return ArbitrageConfig{
		Bounds:           bounds(),
		MinSpreadPct:     5,
		MaxSpreadPct:     50,
		MinNetProfit:     -1, // allow trades through in tests that don't model gas economics
		EstimatedGasCost: 0,
	}
}

func refPrices(prices ...ReferencePrice) ReferencePriceFunc {
	return func(md batchswap.MarketData) []ReferencePrice { return prices }
}

func TestArbitrage_TradesOnDivergence(t *testing.T) {
	now := int64(10_000_000)
	a := NewArbitrage(arbitrageConfig(), refPrices(ReferencePrice{Source: "cex", Price: 1.8, ObservedAt: time.UnixMilli(now)}))
	md := baseMarketData(now)

	d := a.ShouldTrade(md, now)
	require.True(t, d.ShouldTrade)
	assert.Equal(t, batchswap.ZeroForOne, d.Direction, "pool price above reference sells currency0")
}

func TestArbitrage_NoReferencePrice(t *testing.T) {
	now := int64(10_000_000)
	a := NewArbitrage(arbitrageConfig(), refPrices())
	d := a.ShouldTrade(baseMarketData(now), now)
	assert.False(t, d.ShouldTrade)
}

func TestArbitrage_DiscardsStaleReference(t *testing.T) {
	now := int64(10_000_000)
	stale := time.UnixMilli(now).Add(-10 * time.Minute)
	a := NewArbitrage(arbitrageConfig(), refPrices(ReferencePrice{Source: "cex", Price: 1.8, ObservedAt: stale}))
	d := a.ShouldTrade(baseMarketData(now), now)
	assert.False(t, d.ShouldTrade)
}

func TestArbitrage_RejectsUnprofitableSpread(t *testing.T) {
	now := int64(10_000_000)
	cfg := arbitrageConfig()
	cfg.MinNetProfit = 1000 // unreachable, forces rejection regardless of spread
	a := NewArbitrage(cfg, refPrices(ReferencePrice{Source: "cex", Price: 1.8, ObservedAt: time.UnixMilli(now)}))
	d := a.ShouldTrade(baseMarketData(now), now)
	assert.False(t, d.ShouldTrade)
}

func liquidityConfig() LiquidityConfig {
	return LiquidityConfig{
		Bounds:                     bounds(),
		ImbalanceThreshold:         1.5,
		VolumeToLiquidityThreshold: 0.5,
		TradeIntoImbalance:         true,
		PositionSizeFraction:       0.01,
		MinConfidence:              0.1,
	}
}

func TestLiquidity_NoSignalWhenBalanced(t *testing.T) {
	now := int64(10_000_000)
	l := NewLiquidity(liquidityConfig())
	d := l.ShouldTrade(baseMarketData(now), now)
	assert.False(t, d.ShouldTrade)
}

func TestLiquidity_TradesIntoImbalance(t *testing.T) {
	now := int64(10_000_000)
	l := NewLiquidity(liquidityConfig())
	md := baseMarketData(now)
	md.Liquidity0 = "900000"
	md.Liquidity1 = "100000" // token1 scarcer, ratio 9 >> threshold 1.5

	d := l.ShouldTrade(md, now)
	require.True(t, d.ShouldTrade)
	assert.Equal(t, batchswap.ZeroForOne, d.Direction, "buy the scarcer token1")
}

func TestLiquidity_InvertsWhenNotTradingIntoImbalance(t *testing.T) {
	now := int64(10_000_000)
	cfg := liquidityConfig()
	cfg.TradeIntoImbalance = false
	l := NewLiquidity(cfg)
	md := baseMarketData(now)
	md.Liquidity0 = "900000"
	md.Liquidity1 = "100000"

	d := l.ShouldTrade(md, now)
	require.True(t, d.ShouldTrade)
	assert.Equal(t, batchswap.OneForZero, d.Direction)
}

func TestLiquidity_RejectsBelowMinTotalLiquidity(t *testing.T) {
	now := int64(10_000_000)
	cfg := liquidityConfig()
	cfg.MinTotalLiquidity = 2_000_000
	l := NewLiquidity(cfg)
	md := baseMarketData(now)
	md.Liquidity0 = "900000"
	md.Liquidity1 = "100000"

	d := l.ShouldTrade(md, now)
	assert.False(t, d.ShouldTrade)
}

func meanReversionConfig() MeanReversionConfig {
	return MeanReversionConfig{
		Bounds:               bounds(),
		EMAPeriod:            10,
		ModerateDevThreshold: 1.0,
		StrongDevThreshold:   2.0,
		ExtremeDevThreshold:  3.0,
		MaxDevThreshold:      200.0,
		MinConfidence:        0.1,
		MinDataPoints:        3,
	}
}

func TestMeanReversion_TradesOnDeviation(t *testing.T) {
	now := int64(10_000_000)
	mr := NewMeanReversion(meanReversionConfig())

	prices := []string{"2.0", "2.01", "1.99", "2.0", "2.02"}
	var last batchswap.TradeDecision
	for i, p := range prices {
		md := baseMarketData(now + int64(i)*1000)
		md.CurrentPrice = p
		last = mr.ShouldTrade(md, now+int64(i)*1000)
	}

	spike := baseMarketData(now + 10000)
	spike.CurrentPrice = "2.5"
	last = mr.ShouldTrade(spike, now+10000)
	require.True(t, last.ShouldTrade)
	assert.Equal(t, batchswap.ZeroForOne, last.Direction, "price above mean sells currency0 expecting reversion down")
}

func TestMeanReversion_RegimeChangeSkipsTrade(t *testing.T) {
	now := int64(10_000_000)
	cfg := meanReversionConfig()
	cfg.MaxDevThreshold = 1.5
	mr := NewMeanReversion(cfg)

	prices := []string{"2.0", "2.01", "1.99", "2.0", "2.02"}
	for i, p := range prices {
		md := baseMarketData(now + int64(i)*1000)
		md.CurrentPrice = p
		mr.ShouldTrade(md, now+int64(i)*1000)
	}

	spike := baseMarketData(now + 10000)
	spike.CurrentPrice = "2.5"
	d := mr.ShouldTrade(spike, now+10000)
	assert.False(t, d.ShouldTrade, "deviation beyond max_dev_threshold is a regime change, not a reversion signal")
}

func TestDecideAmount_ScalesWithinBounds(t *testing.T) {
	b := bounds()
	lo := decideAmount(0, b)
	hi := decideAmount(1, b)
	assert.Equal(t, b.MinAmountIn, lo)
	assert.Equal(t, b.MaxAmountIn, hi)
}

func TestMinAmountOut_AppliesSlippage(t *testing.T) {
	amountIn := big.NewInt(1000)
	noSlip := minAmountOut(amountIn, 2.0, 0)
	withSlip := minAmountOut(amountIn, 2.0, 500) // 5%

	assert.Equal(t, big.NewInt(2000), noSlip)
	assert.True(t, withSlip.Cmp(noSlip) < 0)
}
