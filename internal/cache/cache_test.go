package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spreadup-monitor/internal/connector"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func update(exchange connector.ExchangeID, market connector.MarketKind, symbol string, price float64) connector.PriceUpdate {
	return connector.PriceUpdate{
		Exchange:  exchange,
		Market:    market,
		Symbol:    symbol,
		Price:     price,
		Timestamp: time.Unix(1700000000, 0),
	}
}

func TestUpdateThenGetReturnsLatest(t *testing.T) {
	c := New(DefaultTTL)
	c.Update(update(connector.MEXC, connector.Spot, "BTCUSDT", 30000))
	c.Update(update(connector.MEXC, connector.Spot, "BTCUSDT", 30001))

	got, ok := c.Get(connector.MEXC, connector.Spot, "BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 30001.0, got.Price)

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Updates)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, 1, stats.Entries)
}

func TestGetMissesUnknownKey(t *testing.T) {
	c := New(DefaultTTL)

	_, ok := c.Get(connector.GateIO, connector.Futures, "BTCUSDT")
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.Stats().Misses)
}

func TestMarketsAreSeparateKeys(t *testing.T) {
	c := New(DefaultTTL)
	c.Update(update(connector.MEXC, connector.Spot, "BTCUSDT", 30000))
	c.Update(update(connector.MEXC, connector.Futures, "BTCUSDT", 31200))

	spot, ok := c.Get(connector.MEXC, connector.Spot, "BTCUSDT")
	require.True(t, ok)
	fut, ok := c.Get(connector.MEXC, connector.Futures, "BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 30000.0, spot.Price)
	assert.Equal(t, 31200.0, fut.Price)
	assert.Equal(t, 2, c.Len())
}

func TestEntriesExpireAfterTTL(t *testing.T) {
	clock := newFakeClock()
	c := New(300*time.Second, WithClock(clock.Now))
	c.Update(update(connector.BingX, connector.Spot, "ETHUSDT", 2000))

	clock.Advance(299 * time.Second)
	_, ok := c.Get(connector.BingX, connector.Spot, "ETHUSDT")
	assert.True(t, ok)

	// At exactly the TTL the entry is gone.
	clock.Advance(1 * time.Second)
	_, ok = c.Get(connector.BingX, connector.Spot, "ETHUSDT")
	assert.False(t, ok)
}

func TestUpdateResetsTTL(t *testing.T) {
	clock := newFakeClock()
	c := New(300*time.Second, WithClock(clock.Now))
	c.Update(update(connector.HTX, connector.Spot, "BTCUSDT", 30000))

	clock.Advance(200 * time.Second)
	c.Update(update(connector.HTX, connector.Spot, "BTCUSDT", 30100))

	clock.Advance(200 * time.Second)
	got, ok := c.Get(connector.HTX, connector.Spot, "BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 30100.0, got.Price)
}

func TestEvictExpiredSweep(t *testing.T) {
	clock := newFakeClock()
	c := New(300*time.Second, WithClock(clock.Now))
	c.Update(update(connector.MEXC, connector.Spot, "BTCUSDT", 30000))
	c.Update(update(connector.MEXC, connector.Spot, "ETHUSDT", 2000))

	clock.Advance(100 * time.Second)
	c.Update(update(connector.MEXC, connector.Spot, "SOLUSDT", 100))

	clock.Advance(250 * time.Second)
	assert.Equal(t, 2, c.EvictExpired())
	assert.Equal(t, 0, c.EvictExpired())
	assert.Equal(t, 1, c.Len())

	_, ok := c.Get(connector.MEXC, connector.Spot, "SOLUSDT")
	assert.True(t, ok)
}

func TestAllByMarketGroupsBySymbol(t *testing.T) {
	c := New(DefaultTTL)
	c.Update(update(connector.MEXC, connector.Spot, "BTCUSDT", 30000))
	c.Update(update(connector.GateIO, connector.Spot, "BTCUSDT", 30010))
	c.Update(update(connector.GateIO, connector.Futures, "BTCUSDT", 31200))

	spot := c.AllByMarket(connector.Spot)
	require.Len(t, spot, 1)
	require.Len(t, spot["BTCUSDT"], 2)
	assert.Equal(t, 30000.0, spot["BTCUSDT"][connector.MEXC].Price)
	assert.Equal(t, 30010.0, spot["BTCUSDT"][connector.GateIO].Price)

	futures := c.AllByMarket(connector.Futures)
	require.Len(t, futures, 1)
	assert.Equal(t, 31200.0, futures["BTCUSDT"][connector.GateIO].Price)

	// The view is a copy: mutations must not reach the cache.
	delete(spot["BTCUSDT"], connector.MEXC)
	_, ok := c.Get(connector.MEXC, connector.Spot, "BTCUSDT")
	assert.True(t, ok)
}

func TestAllByMarketExcludesExpired(t *testing.T) {
	clock := newFakeClock()
	c := New(300*time.Second, WithClock(clock.Now))
	c.Update(update(connector.MEXC, connector.Spot, "BTCUSDT", 30000))

	clock.Advance(150 * time.Second)
	c.Update(update(connector.GateIO, connector.Spot, "BTCUSDT", 30010))

	clock.Advance(200 * time.Second)
	spot := c.AllByMarket(connector.Spot)
	require.Len(t, spot, 1)
	_, hasStale := spot["BTCUSDT"][connector.MEXC]
	assert.False(t, hasStale)
	assert.Equal(t, 30010.0, spot["BTCUSDT"][connector.GateIO].Price)
}

func TestConcurrentUpdatesAndReads(t *testing.T) {
	c := New(DefaultTTL)
	symbols := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "DOGEUSDT"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				sym := symbols[(n+j)%len(symbols)]
				c.Update(update(connector.MEXC, connector.Spot, sym, float64(j)))
				c.Get(connector.MEXC, connector.Spot, sym)
				c.AllByMarket(connector.Spot)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, len(symbols), c.Len())
	assert.Equal(t, int64(1600), c.Stats().Updates)
}
