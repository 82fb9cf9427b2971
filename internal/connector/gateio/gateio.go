// Package gateio implements the Gate.io connector: per-symbol ticker
// subscriptions on the spot and USDT-perpetual websockets plus REST
// snapshots.
package gateio

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"spreadup-monitor/internal/connector"
	"spreadup-monitor/internal/normalizer"
)

// Production endpoints.
const (
	defaultRestURL      = "https://api.gateio.ws/api/v4"
	defaultSpotWSURL    = "wss://api.gateio.ws/ws/v4/"
	defaultFuturesWSURL = "wss://fx-ws.gateio.ws/v4/ws/usdt"

	// Gate.io expects protocol pings more often than the shared default.
	pingInterval = 15 * time.Second
)

// Connector is the Gate.io implementation of connector.Connector.
type Connector struct {
	*connector.BaseConnector

	// canonical <-> venue pair names ("BTCUSDT" <-> "BTC_USDT"),
	// filled during symbol discovery.
	symbols *normalizer.SymbolMap
}

// New creates a Gate.io connector. Zero config fields fall back to the
// production endpoints and the shared defaults.
func New(cfg connector.Config) *Connector {
	if cfg.SpotRestURL == "" {
		cfg.SpotRestURL = defaultRestURL
	}
	if cfg.FuturesRestURL == "" {
		cfg.FuturesRestURL = defaultRestURL
	}
	if cfg.SpotWSURL == "" {
		cfg.SpotWSURL = defaultSpotWSURL
	}
	if cfg.FuturesWSURL == "" {
		cfg.FuturesWSURL = defaultFuturesWSURL
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = pingInterval
	}
	return &Connector{
		BaseConnector: connector.NewBaseConnector(connector.GateIO, cfg),
		symbols:       normalizer.NewSymbolMap(),
	}
}

// Initialize discovers the tradable symbols on both markets.
func (c *Connector) Initialize(ctx context.Context) error {
	spot, err := c.fetchSpotSymbols(ctx)
	if err != nil {
		return fmt.Errorf("gateio: spot symbols: %w", err)
	}
	futures, err := c.fetchFuturesSymbols(ctx)
	if err != nil {
		return fmt.Errorf("gateio: futures symbols: %w", err)
	}
	c.SetSymbols(connector.Spot, spot)
	c.SetSymbols(connector.Futures, futures)

	log.Info().
		Str("exchange", "gateio").
		Int("spot", len(spot)).
		Int("futures", len(futures)).
		Int("common", len(c.CommonSymbols())).
		Msg("Symbols discovered")
	return nil
}

// StartFeeds launches the spot and futures websocket feeds. The venue
// has no all-tickers channel, so each feed subscribes to the first
// MaxSubscriptions common symbols.
func (c *Connector) StartFeeds(ctx context.Context) error {
	c.StartFeed(ctx, connector.Spot, c.runSpotSession)
	c.StartFeed(ctx, connector.Futures, c.runFuturesSession)
	return nil
}

// Close stops the feeds and waits for them to exit.
func (c *Connector) Close() error {
	c.Shutdown()
	return nil
}

// subscriptionList returns the symbols each feed subscribes to: the
// first MaxSubscriptions of the sorted common set.
func (c *Connector) subscriptionList() []string {
	common := c.CommonSymbols()
	if max := c.Config().MaxSubscriptions; len(common) > max {
		common = common[:max]
	}
	return common
}
