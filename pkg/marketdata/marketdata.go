// Package marketdata caches pool snapshots behind a TTL and watches for
// changes worth notifying strategy runtimes about.
package marketdata

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"

	"github.com/batchswap/coordinator"
	"github.com/batchswap/coordinator/internal/util"
)

// Fetcher retrieves a fresh snapshot for a pool. pkg/hookclient does not
// implement this directly, since market data (prices, recent swaps,
// volume) typically comes from an indexer or subgraph rather than the
// hook contract itself; callers supply their own implementation.
type Fetcher interface {
	FetchMarketData(ctx context.Context, poolID common.Hash, key batchswap.PoolKey) (batchswap.MarketData, error)
}

// ChangeKind classifies why a MarketDataChanged event fired.
type ChangeKind string

const (
	ChangePriceShift     ChangeKind = "price_shift"
	ChangeLiquidityShift ChangeKind = "liquidity_shift"
	ChangeRefresh        ChangeKind = "refresh"
)

// MarketDataChanged is emitted by the pool monitor whenever a refreshed
// snapshot differs meaningfully from the one it replaced.
type MarketDataChanged struct {
	PoolID common.Hash
	Kind   ChangeKind
	Data   batchswap.MarketData
}

type cacheEntry struct {
	data      batchswap.MarketData
	expiresAt int64
}

// Cache is a TTL-bounded snapshot cache, keyed by pool.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[common.Hash]cacheEntry
	nowFunc func() int64
}

// NewCache constructs a Cache with the given TTL. nowFunc defaults to
// time.Now().UnixMilli when nil.
func NewCache(ttl time.Duration, nowFunc func() int64) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if nowFunc == nil {
		nowFunc = func() int64 { return time.Now().UnixMilli() }
	}
	return &Cache{ttl: ttl, entries: make(map[common.Hash]cacheEntry), nowFunc: nowFunc}
}

// FetchMarketData returns the cached snapshot for poolID if still fresh,
// otherwise calls fetcher, caches the result, and returns it.
func (c *Cache) FetchMarketData(ctx context.Context, poolID common.Hash, key batchswap.PoolKey, fetcher Fetcher) (batchswap.MarketData, error) {
	now := c.nowFunc()

	c.mu.Lock()
	entry, ok := c.entries[poolID]
	c.mu.Unlock()
	if ok && now < entry.expiresAt {
		return entry.data, nil
	}

	data, err := fetcher.FetchMarketData(ctx, poolID, key)
	if err != nil {
		return batchswap.MarketData{}, err
	}

	c.mu.Lock()
	c.entries[poolID] = cacheEntry{data: data, expiresAt: now + c.ttl.Milliseconds()}
	c.mu.Unlock()

	return data, nil
}

// CalculateVolume sums absolute amount0 across a snapshot's recent-swap
// tape, the simplest faithful reading of "volume" available from a swap
// list without a separate indexer aggregate.
func CalculateVolume(md batchswap.MarketData) *big.Int {
	total := new(big.Int)
	for _, s := range md.RecentSwaps {
		if s.Amount0 == nil {
			continue
		}
		abs := new(big.Int).Abs(s.Amount0)
		total.Add(total, abs)
	}
	return total
}

// ClearCache evicts poolID's cached snapshot, forcing the next fetch to
// hit the fetcher.
func (c *Cache) ClearCache(poolID common.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, poolID)
}

// ClearAllCache evicts every cached snapshot.
func (c *Cache) ClearAllCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[common.Hash]cacheEntry)
}

// Monitor polls a set of pools through a Cache and emits MarketDataChanged
// events on Changes() for a pool's first snapshot (ChangeRefresh) and
// whenever a refreshed snapshot diverges from the last one seen,
// rate-limiting its own fetch cadence so a large pool set
// cannot overwhelm the fetcher.
type Monitor struct {
	cache       *Cache
	fetcher     Fetcher
	limiter     *rate.Limiter
	priceDeltaPct float64
	liquidityDeltaPct float64

	mu      sync.Mutex
	pools   map[common.Hash]batchswap.PoolKey
	lastSeen map[common.Hash]batchswap.MarketData

	changes chan MarketDataChanged
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// MonitorConfig tunes the pool monitor's fetch pacing and change
// detection thresholds.
type MonitorConfig struct {
	FetchRatePerSecond float64
	PriceDeltaPct      float64
	LiquidityDeltaPct  float64
}

// NewMonitor constructs a Monitor backed by cache and fetcher.
func NewMonitor(cache *Cache, fetcher Fetcher, cfg MonitorConfig) *Monitor {
	if cfg.FetchRatePerSecond <= 0 {
		cfg.FetchRatePerSecond = 2
	}
	if cfg.PriceDeltaPct <= 0 {
		cfg.PriceDeltaPct = 1
	}
	if cfg.LiquidityDeltaPct <= 0 {
		cfg.LiquidityDeltaPct = 5
	}
	return &Monitor{
		cache:             cache,
		fetcher:           fetcher,
		limiter:           rate.NewLimiter(rate.Limit(cfg.FetchRatePerSecond), 1),
		priceDeltaPct:     cfg.PriceDeltaPct,
		liquidityDeltaPct: cfg.LiquidityDeltaPct,
		pools:             make(map[common.Hash]batchswap.PoolKey),
		lastSeen:          make(map[common.Hash]batchswap.MarketData),
		changes:           make(chan MarketDataChanged, 64),
	}
}

// Watch adds poolID to the set the monitor refreshes.
func (m *Monitor) Watch(poolID common.Hash, key batchswap.PoolKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pools[poolID] = key
}

// Unwatch removes poolID from the monitored set.
func (m *Monitor) Unwatch(poolID common.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pools, poolID)
	delete(m.lastSeen, poolID)
}

// Changes returns the channel MarketDataChanged events are delivered on.
func (m *Monitor) Changes() <-chan MarketDataChanged {
	return m.changes
}

// Start launches the background refresh loop.
func (m *Monitor) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.wg.Add(1)

	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.refreshAll(ctx)
			}
		}
	}()
}

// Stop cancels the refresh loop and blocks until it has exited.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

func (m *Monitor) refreshAll(ctx context.Context) {
	m.mu.Lock()
	snapshot := make(map[common.Hash]batchswap.PoolKey, len(m.pools))
	for id, key := range m.pools {
		snapshot[id] = key
	}
	m.mu.Unlock()

	for poolID, key := range snapshot {
		if err := m.limiter.Wait(ctx); err != nil {
			return
		}
		m.cache.ClearCache(poolID) // force a fresh read so change detection is meaningful
		data, err := m.cache.FetchMarketData(ctx, poolID, key, m.fetcher)
		if err != nil {
			continue
		}
		m.detectAndEmit(poolID, data)
	}
}

func (m *Monitor) detectAndEmit(poolID common.Hash, data batchswap.MarketData) {
	m.mu.Lock()
	prev, had := m.lastSeen[poolID]
	m.lastSeen[poolID] = data
	m.mu.Unlock()

	if !had {
		m.emit(MarketDataChanged{PoolID: poolID, Kind: ChangeRefresh, Data: data})
		return
	}

	if pctDelta(prev.CurrentPrice, data.CurrentPrice) >= m.priceDeltaPct {
		m.emit(MarketDataChanged{PoolID: poolID, Kind: ChangePriceShift, Data: data})
		return
	}
	if pctDeltaInt(prev.TotalLiquidity, data.TotalLiquidity) >= m.liquidityDeltaPct {
		m.emit(MarketDataChanged{PoolID: poolID, Kind: ChangeLiquidityShift, Data: data})
	}
}

func (m *Monitor) emit(ev MarketDataChanged) {
	select {
	case m.changes <- ev:
	default:
		// Slow consumer: drop rather than block the refresh loop.
	}
}

// pctDelta returns the absolute percent change between two decimal price
// strings, or 0 if either fails to parse.
func pctDelta(prev, cur string) float64 {
	p, ok1 := new(big.Float).SetString(prev)
	c, ok2 := new(big.Float).SetString(cur)
	if !ok1 || !ok2 || p.Sign() == 0 {
		return 0
	}
	delta := new(big.Float).Sub(c, p)
	delta.Quo(delta, p)
	delta.Mul(delta, big.NewFloat(100))
	f, _ := delta.Abs(delta).Float64()
	return f
}

// pctDeltaInt is pctDelta for non-negative big-integer strings such as
// total_liquidity.
func pctDeltaInt(prev, cur string) float64 {
	p, ok1 := util.ParseNonNegativeBigInt(prev)
	c, ok2 := util.ParseNonNegativeBigInt(cur)
	if !ok1 || !ok2 || p.Sign() == 0 {
		return 0
	}
	pf := new(big.Float).SetInt(p)
	delta := new(big.Float).SetInt(new(big.Int).Sub(c, p))
	delta.Quo(delta, pf)
	delta.Mul(delta, big.NewFloat(100))
	f, _ := delta.Abs(delta).Float64()
	return f
}
