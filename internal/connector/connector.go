// Package connector defines the exchange connector contract and the
// shared machinery every venue implementation builds on: pooled HTTP
// with rate limiting and a circuit breaker, supervised feeds with
// reconnect, and per-connector statistics.
package connector

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ExchangeID identifies a supported exchange
type ExchangeID string

const (
	MEXC   ExchangeID = "mexc"
	GateIO ExchangeID = "gateio"
	BingX  ExchangeID = "bingx"
	HTX    ExchangeID = "htx"
)

// AllExchanges returns the supported exchanges in stable order
func AllExchanges() []ExchangeID {
	return []ExchangeID{MEXC, GateIO, BingX, HTX}
}

// ParseExchangeID validates a raw exchange name
func ParseExchangeID(s string) (ExchangeID, error) {
	id := ExchangeID(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllExchanges() {
		if id == known {
			return id, nil
		}
	}
	return "", fmt.Errorf("unknown exchange %q", s)
}

// MarketKind distinguishes spot from perpetual futures markets
type MarketKind string

const (
	Spot    MarketKind = "spot"
	Futures MarketKind = "futures"
)

// PriceUpdate is one observed price for a symbol on one exchange market
type PriceUpdate struct {
	Exchange  ExchangeID    `json:"exchange"`
	Market    MarketKind    `json:"market"`
	Symbol    string        `json:"symbol"` // canonical, e.g. BTCUSDT
	Price     float64       `json:"price"`
	Volume24h *float64      `json:"volume_24h,omitempty"` // 24h quote volume where the venue reports it
	Timestamp time.Time     `json:"timestamp"`
	Latency   time.Duration `json:"latency,omitempty"` // set when the frame carries an event time
}

// Key returns the cache key "exchange:market:symbol"
func (u PriceUpdate) Key() string {
	return string(u.Exchange) + ":" + string(u.Market) + ":" + u.Symbol
}

// Quote is one price point from a REST snapshot
type Quote struct {
	Price     float64  `json:"price"`
	Volume24h *float64 `json:"volume_24h,omitempty"`
}

// UpdateHandler is called for every accepted price update
type UpdateHandler func(update PriceUpdate)

// FeedState tracks one market feed through its lifecycle
type FeedState int32

const (
	FeedDisconnected FeedState = iota
	FeedConnecting
	FeedSubscribing
	FeedStreaming
	FeedError
	FeedClosed
)

func (s FeedState) String() string {
	switch s {
	case FeedDisconnected:
		return "disconnected"
	case FeedConnecting:
		return "connecting"
	case FeedSubscribing:
		return "subscribing"
	case FeedStreaming:
		return "streaming"
	case FeedError:
		return "error"
	case FeedClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connector defaults
const (
	DefaultReconnectWait    = 5 * time.Second
	DefaultPingInterval     = 20 * time.Second
	DefaultSubscribeDelay   = 50 * time.Millisecond
	DefaultMaxSubscriptions = 50
	DefaultPollInterval     = 500 * time.Millisecond
)

// Config holds per-venue connector settings. Zero fields fall back to
// the venue's built-in endpoints and the defaults above.
type Config struct {
	SpotRestURL    string
	SpotWSURL      string
	FuturesRestURL string
	FuturesWSURL   string

	// Optional read-only API credentials. Public market data works
	// without them.
	APIKey    string
	APISecret string

	ReconnectWait    time.Duration
	PingInterval     time.Duration
	SubscribeDelay   time.Duration // pause between per-symbol subscribe messages
	MaxSubscriptions int           // cap for venues without an all-tickers channel
	PollInterval     time.Duration // REST-polling venues only

	RestRate  float64 // requests per second
	RestBurst int
}

func (c Config) withDefaults() Config {
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = DefaultReconnectWait
	}
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.SubscribeDelay <= 0 {
		c.SubscribeDelay = DefaultSubscribeDelay
	}
	if c.MaxSubscriptions <= 0 {
		c.MaxSubscriptions = DefaultMaxSubscriptions
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	return c
}

// Connector is the interface every exchange implementation satisfies
type Connector interface {
	// ID returns the exchange identifier
	ID() ExchangeID

	// Initialize discovers tradable symbols on both markets. It must
	// be called before StartFeeds.
	Initialize(ctx context.Context) error

	// StartFeeds launches the spot and futures feeds and returns; the
	// feeds reconnect on failure until Close or context cancellation.
	StartFeeds(ctx context.Context) error

	// Close stops the feeds and releases connections. Idempotent.
	Close() error

	// SnapshotSpot fetches current spot prices for all known symbols via REST
	SnapshotSpot(ctx context.Context) (map[string]Quote, error)

	// SnapshotFutures fetches current futures prices for all known symbols via REST
	SnapshotFutures(ctx context.Context) (map[string]Quote, error)

	// CommonSymbols returns the sorted symbols tradable on both markets
	CommonSymbols() []string

	// SetUpdateHandler sets the callback for accepted price updates
	SetUpdateHandler(handler UpdateHandler)

	// Stats returns a snapshot of the connector counters
	Stats() StatsSnapshot

	// FeedStates returns the current state of each market feed
	FeedStates() map[MarketKind]FeedState
}
