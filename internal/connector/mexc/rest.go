package mexc

import (
	"context"
	"strconv"

	"spreadup-monitor/internal/connector"
	"spreadup-monitor/internal/normalizer"
)

type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol string `json:"symbol"`
		// "ENABLED", "1" or 1 depending on the API era.
		Status interface{} `json:"status"`
	} `json:"symbols"`
}

func spotEnabled(status interface{}) bool {
	switch v := status.(type) {
	case string:
		return v == "ENABLED" || v == "1"
	case float64:
		return v == 1
	}
	return false
}

func (c *Connector) fetchSpotSymbols(ctx context.Context) ([]string, error) {
	var resp exchangeInfoResponse
	if err := c.GetJSON(ctx, c.Config().SpotRestURL+"/api/v3/exchangeInfo", nil, &resp); err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(resp.Symbols))
	for _, s := range resp.Symbols {
		if !spotEnabled(s.Status) {
			continue
		}
		symbols = append(symbols, normalizer.Canonical(s.Symbol))
	}
	return symbols, nil
}

type contractDetailResponse struct {
	Data []struct {
		Symbol string `json:"symbol"` // BTC_USDT
		State  int    `json:"state"`  // 0 = live
	} `json:"data"`
}

func (c *Connector) fetchFuturesSymbols(ctx context.Context) ([]string, error) {
	var resp contractDetailResponse
	if err := c.GetJSON(ctx, c.Config().FuturesRestURL+"/api/v1/contract/detail", nil, &resp); err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(resp.Data))
	for _, contract := range resp.Data {
		if contract.State != 0 {
			continue
		}
		symbols = append(symbols, normalizer.Canonical(contract.Symbol))
	}
	return symbols, nil
}

type spotTicker struct {
	Symbol      string `json:"symbol"`
	LastPrice   string `json:"lastPrice"`
	QuoteVolume string `json:"quoteVolume"`
}

// SnapshotSpot fetches the 24h spot tickers for all known symbols.
func (c *Connector) SnapshotSpot(ctx context.Context) (map[string]connector.Quote, error) {
	var tickers []spotTicker
	if err := c.GetJSON(ctx, c.Config().SpotRestURL+"/api/v3/ticker/24hr", nil, &tickers); err != nil {
		return nil, err
	}

	out := make(map[string]connector.Quote, len(tickers))
	for _, t := range tickers {
		symbol := normalizer.Canonical(t.Symbol)
		price, err := strconv.ParseFloat(t.LastPrice, 64)
		if err != nil || price <= 0 || !c.Known(connector.Spot, symbol) {
			continue
		}
		q := connector.Quote{Price: price}
		if vol, err := strconv.ParseFloat(t.QuoteVolume, 64); err == nil && vol > 0 {
			q.Volume24h = &vol
		}
		out[symbol] = q
	}
	return out, nil
}

type futuresTickerResponse struct {
	Data []struct {
		Symbol    string  `json:"symbol"` // BTC_USDT
		LastPrice float64 `json:"lastPrice"`
		Amount24  float64 `json:"amount24"` // 24h quote turnover
	} `json:"data"`
}

// SnapshotFutures fetches the futures tickers for all known contracts.
func (c *Connector) SnapshotFutures(ctx context.Context) (map[string]connector.Quote, error) {
	var resp futuresTickerResponse
	if err := c.GetJSON(ctx, c.Config().FuturesRestURL+"/api/v1/contract/ticker", nil, &resp); err != nil {
		return nil, err
	}

	out := make(map[string]connector.Quote, len(resp.Data))
	for _, t := range resp.Data {
		symbol := normalizer.Canonical(t.Symbol)
		if t.LastPrice <= 0 || !c.Known(connector.Futures, symbol) {
			continue
		}
		q := connector.Quote{Price: t.LastPrice}
		if t.Amount24 > 0 {
			vol := t.Amount24
			q.Volume24h = &vol
		}
		out[symbol] = q
	}
	return out, nil
}
