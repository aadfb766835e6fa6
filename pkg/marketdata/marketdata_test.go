package marketdata

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batchswap/coordinator"
)

type stubFetcher struct {
	calls int
	data  batchswap.MarketData
	err   error
}

func (s *stubFetcher) FetchMarketData(ctx context.Context, poolID common.Hash, key batchswap.PoolKey) (batchswap.MarketData, error) {
	s.calls++
	return s.data, s.err
}

func TestCache_ServesFromCacheWithinTTL(t *testing.T) {
	now := int64(1_000_000)
	c := NewCache(time.Minute, func() int64 { return now })
	pool := common.HexToHash("0x1")
	fetcher := &stubFetcher{data: batchswap.MarketData{CurrentPrice: "2.0"}}

	_, err := c.FetchMarketData(context.Background(), pool, batchswap.PoolKey{}, fetcher)
	require.NoError(t, err)
	_, err = c.FetchMarketData(context.Background(), pool, batchswap.PoolKey{}, fetcher)
	require.NoError(t, err)

	assert.Equal(t, 1, fetcher.calls)
}

func TestCache_RefetchesAfterTTL(t *testing.T) {
	now := int64(1_000_000)
	c := NewCache(time.Minute, func() int64 { return now })
	pool := common.HexToHash("0x1")
	fetcher := &stubFetcher{data: batchswap.MarketData{CurrentPrice: "2.0"}}

	_, err := c.FetchMarketData(context.Background(), pool, batchswap.PoolKey{}, fetcher)
	require.NoError(t, err)

	now += time.Minute.Milliseconds() + 1
	_, err = c.FetchMarketData(context.Background(), pool, batchswap.PoolKey{}, fetcher)
	require.NoError(t, err)

	assert.Equal(t, 2, fetcher.calls)
}

func TestCache_ClearCacheForcesRefetch(t *testing.T) {
	now := int64(1_000_000)
	c := NewCache(time.Minute, func() int64 { return now })
	pool := common.HexToHash("0x1")
	fetcher := &stubFetcher{data: batchswap.MarketData{CurrentPrice: "2.0"}}

	_, _ = c.FetchMarketData(context.Background(), pool, batchswap.PoolKey{}, fetcher)
	c.ClearCache(pool)
	_, _ = c.FetchMarketData(context.Background(), pool, batchswap.PoolKey{}, fetcher)

	assert.Equal(t, 2, fetcher.calls)
}

func TestCalculateVolume_SumsAbsoluteAmount0(t *testing.T) {
	md := batchswap.MarketData{
		RecentSwaps: []batchswap.RecentSwap{
			{Amount0: big.NewInt(-100)},
			{Amount0: big.NewInt(50)},
			{Amount0: nil},
		},
	}
	vol := CalculateVolume(md)
	assert.Equal(t, big.NewInt(150), vol)
}

func TestMonitor_EmitsOnPriceShift(t *testing.T) {
	pool := common.HexToHash("0x1")
	fetcher := &stubFetcher{data: batchswap.MarketData{CurrentPrice: "2.0", TotalLiquidity: "1000"}}
	cache := NewCache(time.Millisecond, nil)
	mon := NewMonitor(cache, fetcher, MonitorConfig{FetchRatePerSecond: 1000, PriceDeltaPct: 1})
	mon.Watch(pool, batchswap.PoolKey{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mon.Start(ctx, 5*time.Millisecond)
	defer mon.Stop()

	select {
	case ev := <-mon.Changes():
		assert.Equal(t, ChangeRefresh, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected initial refresh event")
	}

	fetcher.data.CurrentPrice = "2.5"

	select {
	case ev := <-mon.Changes():
		assert.Equal(t, ChangePriceShift, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected price shift event")
	}
}
