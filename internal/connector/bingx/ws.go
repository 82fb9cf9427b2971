package bingx

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"spreadup-monitor/internal/connector"
	"spreadup-monitor/internal/normalizer"
)

type subscribeMessage struct {
	ID          string `json:"id"`
	RequestType string `json:"requestType"`
	DataType    string `json:"dataType"`
}

func (c *Connector) runSpotSession(ctx context.Context) error {
	return c.runSession(ctx, connector.Spot, c.Config().SpotWSURL, "spot_ticker_", c.parseSpotMessage)
}

func (c *Connector) runFuturesSession(ctx context.Context) error {
	return c.runSession(ctx, connector.Futures, c.Config().FuturesWSURL, "futures_ticker_", c.parseFuturesMessage)
}

func (c *Connector) runSession(ctx context.Context, market connector.MarketKind, wsURL, idPrefix string, parse func([]byte) (connector.PriceUpdate, bool)) error {
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
		venueSymbol, ok := c.symbols.Venue(symbol)
		if !ok {
			continue
		}
		msg := subscribeMessage{
			ID:          idPrefix + venueSymbol,
			RequestType: "subscribe",
			DataType:    "ticker." + venueSymbol,
		}
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", venueSymbol, err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-c.Done():
			return nil
		case <-time.After(cfg.SubscribeDelay):
		}
	}

	// BingX expects a plaintext ping and answers with "pong".
	go conn.KeepAlive(ctx, cfg.PingInterval, func() error {
		return conn.WriteText("ping")
	})

	return c.ReadFeed(ctx, conn, market, isControl, parse)
}

// isControl matches plaintext keepalive frames and subscription acks
// ({"id":"...","code":0,"msg":""} with no dataType).
func isControl(raw []byte) bool {
	s := strings.TrimSpace(string(raw))
	if strings.EqualFold(s, "ping") || strings.EqualFold(s, "pong") {
		return true
	}
	var f struct {
		DataType string `json:"dataType"`
		Code     *int   `json:"code"`
	}
	if json.Unmarshal(raw, &f) != nil {
		return false
	}
	return f.DataType == "" && f.Code != nil
}

// tickerFrame is one ticker push on either socket:
// {"dataType":"ticker.BTC-USDT","data":{"symbol":"BTC-USDT","price":"30000.5"}}
type tickerFrame struct {
	DataType string `json:"dataType"`
	Data     struct {
		Symbol    string      `json:"symbol"`
		Price     interface{} `json:"price"`
		Timestamp int64       `json:"timestamp"` // ms, optional
	} `json:"data"`
}

func (c *Connector) parseSpotMessage(raw []byte) (connector.PriceUpdate, bool) {
	return c.parseTicker(raw, connector.Spot)
}

func (c *Connector) parseFuturesMessage(raw []byte) (connector.PriceUpdate, bool) {
	return c.parseTicker(raw, connector.Futures)
}

func (c *Connector) parseTicker(raw []byte, market connector.MarketKind) (connector.PriceUpdate, bool) {
	var f tickerFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return connector.PriceUpdate{}, false
	}
	if !strings.Contains(f.DataType, "ticker") {
		return connector.PriceUpdate{}, false
	}

	symbol := normalizer.Canonical(f.Data.Symbol)
	price, ok := connector.AsFloat(f.Data.Price)
	if !ok || price <= 0 || symbol == "" || !c.Known(market, symbol) {
		return connector.PriceUpdate{}, false
	}

	u := connector.PriceUpdate{
		Exchange:  connector.BingX,
		Market:    market,
		Symbol:    symbol,
		Price:     price,
		Timestamp: time.Now().UTC(),
	}
	if f.Data.Timestamp > 0 {
		if lat := time.Since(time.UnixMilli(f.Data.Timestamp)); lat > 0 {
			u.Latency = lat
		}
	}
	return u, true
}
