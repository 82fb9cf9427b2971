// Package mexc implements the MEXC connector: all-tickers websocket
// feeds for spot and USDT perpetuals plus REST snapshots.
package mexc

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"spreadup-monitor/internal/connector"
)

// Production endpoints.
const (
	defaultSpotRestURL    = "https://api.mexc.com"
	defaultSpotWSURL      = "wss://stream.mexc.com/ws"
	defaultFuturesRestURL = "https://contract.mexc.com"
	defaultFuturesWSURL   = "wss://contract.mexc.com/ws"
)

// Connector is the MEXC implementation of connector.Connector.
type Connector struct {
	*connector.BaseConnector
}

// New creates a MEXC connector. Zero config fields fall back to the
// production endpoints and the shared defaults.
func New(cfg connector.Config) *Connector {
	if cfg.SpotRestURL == "" {
		cfg.SpotRestURL = defaultSpotRestURL
	}
	if cfg.SpotWSURL == "" {
		cfg.SpotWSURL = defaultSpotWSURL
	}
	if cfg.FuturesRestURL == "" {
		cfg.FuturesRestURL = defaultFuturesRestURL
	}
	if cfg.FuturesWSURL == "" {
		cfg.FuturesWSURL = defaultFuturesWSURL
	}
	return &Connector{BaseConnector: connector.NewBaseConnector(connector.MEXC, cfg)}
}

// Initialize discovers the tradable symbols on both markets.
func (c *Connector) Initialize(ctx context.Context) error {
	spot, err := c.fetchSpotSymbols(ctx)
	if err != nil {
		return fmt.Errorf("mexc: spot symbols: %w", err)
	}
	futures, err := c.fetchFuturesSymbols(ctx)
	if err != nil {
		return fmt.Errorf("mexc: futures symbols: %w", err)
	}
	c.SetSymbols(connector.Spot, spot)
	c.SetSymbols(connector.Futures, futures)

	log.Info().
		Str("exchange", "mexc").
		Int("spot", len(spot)).
		Int("futures", len(futures)).
		Int("common", len(c.CommonSymbols())).
		Msg("Symbols discovered")
	return nil
}

// StartFeeds launches the spot and futures websocket feeds. Both use
// an all-tickers subscription, so no per-symbol planning is needed.
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
