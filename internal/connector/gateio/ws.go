package gateio

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"spreadup-monitor/internal/connector"
	"spreadup-monitor/internal/normalizer"
)

// Channel names.
const (
	spotTickersChannel    = "spot.tickers"
	futuresTickersChannel = "futures.tickers"
)

type subscribeMessage struct {
	Time    int64    `json:"time"`
	Channel string   `json:"channel"`
	Event   string   `json:"event"`
	Payload []string `json:"payload"`
}

func (c *Connector) runSpotSession(ctx context.Context) error {
	return c.runSession(ctx, connector.Spot, c.Config().SpotWSURL, spotTickersChannel, c.parseSpotMessage)
}

func (c *Connector) runFuturesSession(ctx context.Context) error {
	return c.runSession(ctx, connector.Futures, c.Config().FuturesWSURL, futuresTickersChannel, c.parseFuturesMessage)
}

func (c *Connector) runSession(ctx context.Context, market connector.MarketKind, wsURL, channel string, parse func([]byte) (connector.PriceUpdate, bool)) error {
	cfg := c.Config()
	conn, err := connector.DialWS(ctx, wsURL, 3*cfg.PingInterval)
	if err != nil {
		return err
	}
	defer conn.Close()
	stop := conn.CloseOn(ctx, c.Done())
	defer stop()

	c.SetFeedState(market, connector.FeedSubscribing)
	for _, symbol := range c.subscriptionList() {
		pair, ok := c.symbols.Venue(symbol)
		if !ok {
			continue
		}
		msg := subscribeMessage{
			Time:    time.Now().Unix(),
			Channel: channel,
			Event:   "subscribe",
			Payload: []string{pair},
		}
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", pair, err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-c.Done():
			return nil
		case <-time.After(cfg.SubscribeDelay):
		}
	}

	go conn.KeepAlive(ctx, cfg.PingInterval, conn.WritePing)

	return c.ReadFeed(ctx, conn, market, isControl, parse)
}

// isControl matches subscription acks and application-level pongs;
// ticker pushes have event "update".
func isControl(raw []byte) bool {
	var f struct {
		Event   string `json:"event"`
		Channel string `json:"channel"`
	}
	if json.Unmarshal(raw, &f) != nil {
		return false
	}
	if f.Event == "subscribe" || f.Event == "unsubscribe" {
		return true
	}
	return f.Channel == "spot.pong" || f.Channel == "futures.pong"
}

// spotFrame is one spot.tickers push:
// {"time":1700000000,"channel":"spot.tickers","event":"update",
//  "result":{"currency_pair":"BTC_USDT","last":"30000.5","quote_volume":"1e8"}}
type spotFrame struct {
	TimeMs  int64  `json:"time_ms"`
	Channel string `json:"channel"`
	Event   string `json:"event"`
	Result  struct {
		CurrencyPair string `json:"currency_pair"`
		Last         string `json:"last"`
		QuoteVolume  string `json:"quote_volume"`
	} `json:"result"`
}

func (c *Connector) parseSpotMessage(raw []byte) (connector.PriceUpdate, bool) {
	var f spotFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return connector.PriceUpdate{}, false
	}
	if f.Channel != spotTickersChannel || f.Event != "update" {
		return connector.PriceUpdate{}, false
	}

	symbol, ok := c.symbols.Canonical(f.Result.CurrencyPair)
	if !ok {
		symbol = normalizer.Canonical(f.Result.CurrencyPair)
	}
	price, priceOK := connector.AsFloat(f.Result.Last)
	if !priceOK || price <= 0 || symbol == "" || !c.Known(connector.Spot, symbol) {
		return connector.PriceUpdate{}, false
	}

	u := connector.PriceUpdate{
		Exchange:  connector.GateIO,
		Market:    connector.Spot,
		Symbol:    symbol,
		Price:     price,
		Timestamp: time.Now().UTC(),
	}
	if vol, ok := connector.AsFloat(f.Result.QuoteVolume); ok && vol > 0 {
		u.Volume24h = &vol
	}
	if f.TimeMs > 0 {
		if lat := time.Since(time.UnixMilli(f.TimeMs)); lat > 0 {
			u.Latency = lat
		}
	}
	return u, true
}

type futuresTickerResult struct {
	Contract string `json:"contract"`
	Last     string `json:"last"`
}

// futuresFrame is one futures.tickers push. The result is usually a
// one-element array; a bare object is tolerated.
type futuresFrame struct {
	TimeMs  int64           `json:"time_ms"`
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Result  json.RawMessage `json:"result"`
}

func (c *Connector) parseFuturesMessage(raw []byte) (connector.PriceUpdate, bool) {
	var f futuresFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return connector.PriceUpdate{}, false
	}
	if f.Channel != futuresTickersChannel || f.Event != "update" {
		return connector.PriceUpdate{}, false
	}

	var ticker futuresTickerResult
	var list []futuresTickerResult
	if err := json.Unmarshal(f.Result, &list); err == nil {
		if len(list) == 0 {
			return connector.PriceUpdate{}, false
		}
		ticker = list[0]
	} else if err := json.Unmarshal(f.Result, &ticker); err != nil {
		return connector.PriceUpdate{}, false
	}

	symbol, ok := c.symbols.Canonical(ticker.Contract)
	if !ok {
		symbol = normalizer.Canonical(ticker.Contract)
	}
	price, priceOK := connector.AsFloat(ticker.Last)
	if !priceOK || price <= 0 || symbol == "" || !c.Known(connector.Futures, symbol) {
		return connector.PriceUpdate{}, false
	}

	u := connector.PriceUpdate{
		Exchange:  connector.GateIO,
		Market:    connector.Futures,
		Symbol:    symbol,
		Price:     price,
		Timestamp: time.Now().UTC(),
	}
	if f.TimeMs > 0 {
		if lat := time.Since(time.UnixMilli(f.TimeMs)); lat > 0 {
			u.Latency = lat
		}
	}
	return u, true
}
