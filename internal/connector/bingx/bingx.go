// Package bingx implements the BingX connector: per-symbol ticker
// subscriptions on the spot and swap websockets plus REST snapshots.
// BingX keepalive is a plaintext "ping" frame, answered with "pong".
package bingx

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"spreadup-monitor/internal/connector"
	"spreadup-monitor/internal/normalizer"
)

// Production endpoints.
const (
	defaultRestURL      = "https://open-api.bingx.com"
	defaultSpotWSURL    = "wss://open-api-ws.bingx.com/spot"
	defaultFuturesWSURL = "wss://open-api-ws.bingx.com/swap"
)

// Connector is the BingX implementation of connector.Connector.
type Connector struct {
	*connector.BaseConnector

	// canonical <-> venue symbols ("BTCUSDT" <-> "BTC-USDT"), filled
	// during symbol discovery. Spot and swap share the dashed format.
	symbols *normalizer.SymbolMap
}

// New creates a BingX connector. Zero config fields fall back to the
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
	return &Connector{
		BaseConnector: connector.NewBaseConnector(connector.BingX, cfg),
		symbols:       normalizer.NewSymbolMap(),
	}
}

// Initialize discovers the tradable symbols on both markets.
func (c *Connector) Initialize(ctx context.Context) error {
	spot, err := c.fetchSpotSymbols(ctx)
	if err != nil {
		return fmt.Errorf("bingx: spot symbols: %w", err)
	}
	futures, err := c.fetchFuturesSymbols(ctx)
	if err != nil {
		return fmt.Errorf("bingx: futures symbols: %w", err)
	}
	c.SetSymbols(connector.Spot, spot)
	c.SetSymbols(connector.Futures, futures)

	log.Info().
		Str("exchange", "bingx").
		Int("spot", len(spot)).
		Int("futures", len(futures)).
		Int("common", len(c.CommonSymbols())).
		Msg("Symbols discovered")
	return nil
}

// StartFeeds launches the spot and swap websocket feeds, each
// subscribing to the first MaxSubscriptions common symbols.
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

func (c *Connector) subscriptionList() []string {
	common := c.CommonSymbols()
	if max := c.Config().MaxSubscriptions; len(common) > max {
		common = common[:max]
	}
	return common
}
