// Package cache holds the in-memory TTL price cache at the center of
// the monitoring pipeline, with an optional Redis write-through mirror
// for external consumers.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"spreadup-monitor/internal/connector"
	"spreadup-monitor/internal/metrics"
)

// DefaultTTL is how long a price stays usable without a refresh.
const DefaultTTL = 300 * time.Second

type entry struct {
	update    connector.PriceUpdate
	expiresAt time.Time
}

// PriceCache stores the latest price per exchange:market:symbol with a
// fixed TTL. Reads never return expired entries; removal happens in
// EvictExpired.
type PriceCache struct {
	mu       sync.RWMutex
	ttl      time.Duration
	entries  map[string]*entry
	byMarket map[connector.MarketKind]map[string]map[connector.ExchangeID]*entry
	now      func() time.Time
	mirror   *RedisMirror

	hits    atomic.Int64
	misses  atomic.Int64
	updates atomic.Int64
}

// Option configures a PriceCache.
type Option func(*PriceCache)

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *PriceCache) { c.now = now }
}

// WithMirror attaches a Redis write-through mirror.
func WithMirror(m *RedisMirror) Option {
	return func(c *PriceCache) { c.mirror = m }
}

// New creates a price cache with the given TTL.
func New(ttl time.Duration, opts ...Option) *PriceCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &PriceCache{
		ttl:     ttl,
		entries: make(map[string]*entry),
		byMarket: map[connector.MarketKind]map[string]map[connector.ExchangeID]*entry{
			connector.Spot:    make(map[string]map[connector.ExchangeID]*entry),
			connector.Futures: make(map[string]map[connector.ExchangeID]*entry),
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Update upserts the latest price for the update's key and resets its
// TTL. The mirror, when attached, receives the update asynchronously.
func (c *PriceCache) Update(u connector.PriceUpdate) {
	key := u.Key()
	c.mu.Lock()
	expiresAt := c.now().Add(c.ttl)
	if e, ok := c.entries[key]; ok {
		e.update = u
		e.expiresAt = expiresAt
	} else {
		e := &entry{update: u, expiresAt: expiresAt}
		c.entries[key] = e
		symbols, ok := c.byMarket[u.Market]
		if !ok {
			symbols = make(map[string]map[connector.ExchangeID]*entry)
			c.byMarket[u.Market] = symbols
		}
		exchanges, ok := symbols[u.Symbol]
		if !ok {
			exchanges = make(map[connector.ExchangeID]*entry)
			symbols[u.Symbol] = exchanges
		}
		exchanges[u.Exchange] = e
	}
	size := len(c.entries)
	c.mu.Unlock()

	c.updates.Add(1)
	metrics.RecordPriceUpdate(string(u.Exchange), string(u.Market))
	metrics.CacheEntries.Set(float64(size))

	if c.mirror != nil {
		c.mirror.Enqueue(u)
	}
}

// Get returns the live entry for one exchange market symbol. Expired
// entries count as misses and stay in place for the sweep.
func (c *PriceCache) Get(exchange connector.ExchangeID, market connector.MarketKind, symbol string) (connector.PriceUpdate, bool) {
	key := string(exchange) + ":" + string(market) + ":" + symbol

	c.mu.RLock()
	now := c.now()
	e, ok := c.entries[key]
	var u connector.PriceUpdate
	live := ok && e.expiresAt.After(now)
	if live {
		u = e.update
	}
	c.mu.RUnlock()

	if !live {
		c.misses.Add(1)
		metrics.CacheMisses.Inc()
		return connector.PriceUpdate{}, false
	}
	c.hits.Add(1)
	metrics.CacheHits.Inc()
	return u, true
}

// AllByMarket returns a copied symbol -> exchange -> update view of one
// market with expired entries excluded. The copy is taken under a
// single read lock, so each symbol's prices are mutually consistent.
func (c *PriceCache) AllByMarket(market connector.MarketKind) map[string]map[connector.ExchangeID]connector.PriceUpdate {
	out := make(map[string]map[connector.ExchangeID]connector.PriceUpdate)

	c.mu.RLock()
	defer c.mu.RUnlock()
	now := c.now()
	for symbol, exchanges := range c.byMarket[market] {
		for exchange, e := range exchanges {
			if !e.expiresAt.After(now) {
				continue
			}
			m, ok := out[symbol]
			if !ok {
				m = make(map[connector.ExchangeID]connector.PriceUpdate, len(exchanges))
				out[symbol] = m
			}
			m[exchange] = e.update
		}
	}
	return out
}

// EvictExpired removes all expired entries and returns how many went.
// Running it twice in a row is a no-op the second time.
func (c *PriceCache) EvictExpired() int {
	evicted := 0

	c.mu.Lock()
	now := c.now()
	for key, e := range c.entries {
		if e.expiresAt.After(now) {
			continue
		}
		delete(c.entries, key)
		u := e.update
		if exchanges, ok := c.byMarket[u.Market][u.Symbol]; ok {
			delete(exchanges, u.Exchange)
			if len(exchanges) == 0 {
				delete(c.byMarket[u.Market], u.Symbol)
			}
		}
		evicted++
	}
	size := len(c.entries)
	c.mu.Unlock()

	if evicted > 0 {
		metrics.CacheEvictions.Add(float64(evicted))
	}
	metrics.CacheEntries.Set(float64(size))
	return evicted
}

// Statistics is a snapshot of the cache counters.
type Statistics struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Updates int64 `json:"updates"`
	Entries int   `json:"entries"`
}

// Stats returns the current counters. Entries counts live and expired
// entries still awaiting the sweep.
func (c *PriceCache) Stats() Statistics {
	c.mu.RLock()
	entries := len(c.entries)
	c.mu.RUnlock()

	return Statistics{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Updates: c.updates.Load(),
		Entries: entries,
	}
}

// MirrorTopList publishes a scan's best opportunities, pre-marshaled,
// through the mirror for external consumers. A no-op without a mirror.
func (c *PriceCache) MirrorTopList(ctx context.Context, data []byte) error {
	if c.mirror == nil {
		return nil
	}
	return c.mirror.StoreTopList(ctx, data)
}

// Len returns the number of stored entries.
func (c *PriceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the mirror when one is attached.
func (c *PriceCache) Close() error {
	if c.mirror != nil {
		return c.mirror.Close()
	}
	return nil
}
