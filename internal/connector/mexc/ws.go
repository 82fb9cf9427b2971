package mexc

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"spreadup-monitor/internal/connector"
	"spreadup-monitor/internal/normalizer"
)

func (c *Connector) runSpotSession(ctx context.Context) error {
	cfg := c.Config()
	conn, err := connector.DialWS(ctx, cfg.SpotWSURL, 3*cfg.PingInterval)
	if err != nil {
		return err
	}
	defer conn.Close()
	stop := conn.CloseOn(ctx, c.Done())
	defer stop()

	c.SetFeedState(connector.Spot, connector.FeedSubscribing)
	sub := map[string]interface{}{
		"method": "SUBSCRIPTION",
		"params": []string{"spot@miniTicker"},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	go conn.KeepAlive(ctx, cfg.PingInterval, func() error {
		return conn.WriteJSON(map[string]string{"method": "ping"})
	})

	return c.ReadFeed(ctx, conn, connector.Spot, isControl, c.parseSpotMessage)
}

func (c *Connector) runFuturesSession(ctx context.Context) error {
	cfg := c.Config()
	conn, err := connector.DialWS(ctx, cfg.FuturesWSURL, 3*cfg.PingInterval)
	if err != nil {
		return err
	}
	defer conn.Close()
	stop := conn.CloseOn(ctx, c.Done())
	defer stop()

	c.SetFeedState(connector.Futures, connector.FeedSubscribing)
	sub := map[string]interface{}{
		"method": "sub.ticker",
		"param":  map[string]interface{}{},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	go conn.KeepAlive(ctx, cfg.PingInterval, func() error {
		return conn.WriteJSON(map[string]string{"method": "ping"})
	})

	return c.ReadFeed(ctx, conn, connector.Futures, isControl, c.parseFuturesMessage)
}

// isControl matches subscription acks and keepalive pongs on both
// sockets: {"id":0,"code":0,"msg":...} on spot, {"channel":"pong"} and
// {"channel":"rs.sub.ticker"} on futures.
func isControl(raw []byte) bool {
	var f struct {
		Code    *int   `json:"code"`
		Msg     string `json:"msg"`
		Channel string `json:"channel"`
	}
	if json.Unmarshal(raw, &f) != nil {
		return false
	}
	if f.Code != nil || strings.EqualFold(f.Msg, "pong") {
		return true
	}
	return f.Channel == "pong" || strings.HasPrefix(f.Channel, "rs.")
}

// spotFrame is one spot@miniTicker push:
// {"d":{"s":"BTCUSDT","c":"30000.12"},"t":1700000000000}
type spotFrame struct {
	Data struct {
		Symbol string `json:"s"`
		Close  string `json:"c"`
	} `json:"d"`
	Time int64 `json:"t"` // event time, ms
}

func (c *Connector) parseSpotMessage(raw []byte) (connector.PriceUpdate, bool) {
	var f spotFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return connector.PriceUpdate{}, false
	}
	if f.Data.Symbol == "" || f.Data.Close == "" {
		return connector.PriceUpdate{}, false
	}

	symbol := normalizer.Canonical(f.Data.Symbol)
	price, err := strconv.ParseFloat(f.Data.Close, 64)
	if err != nil || price <= 0 || !c.Known(connector.Spot, symbol) {
		return connector.PriceUpdate{}, false
	}

	u := connector.PriceUpdate{
		Exchange:  connector.MEXC,
		Market:    connector.Spot,
		Symbol:    symbol,
		Price:     price,
		Timestamp: time.Now().UTC(),
	}
	if f.Time > 0 {
		if lat := time.Since(time.UnixMilli(f.Time)); lat > 0 {
			u.Latency = lat
		}
	}
	return u, true
}

// futuresFrame is one push.ticker message:
// {"channel":"push.ticker","data":{"symbol":"BTC_USDT","lastPrice":30500.5,...}}
type futuresFrame struct {
	Channel string `json:"channel"`
	Data    struct {
		Symbol    string      `json:"symbol"`
		LastPrice interface{} `json:"lastPrice"`
		Amount24  float64     `json:"amount24"`
		Timestamp int64       `json:"timestamp"` // ms
	} `json:"data"`
}

func (c *Connector) parseFuturesMessage(raw []byte) (connector.PriceUpdate, bool) {
	var f futuresFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return connector.PriceUpdate{}, false
	}
	if f.Channel != "push.ticker" {
		return connector.PriceUpdate{}, false
	}

	symbol := normalizer.Canonical(f.Data.Symbol)
	price, ok := connector.AsFloat(f.Data.LastPrice)
	if !ok || price <= 0 || symbol == "" || !c.Known(connector.Futures, symbol) {
		return connector.PriceUpdate{}, false
	}

	u := connector.PriceUpdate{
		Exchange:  connector.MEXC,
		Market:    connector.Futures,
		Symbol:    symbol,
		Price:     price,
		Timestamp: time.Now().UTC(),
	}
	if f.Data.Amount24 > 0 {
		vol := f.Data.Amount24
		u.Volume24h = &vol
	}
	if f.Data.Timestamp > 0 {
		if lat := time.Since(time.UnixMilli(f.Data.Timestamp)); lat > 0 {
			u.Latency = lat
		}
	}
	return u, true
}
