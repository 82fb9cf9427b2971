package gateio

import (
	"context"
	"strconv"

	"spreadup-monitor/internal/connector"
	"spreadup-monitor/internal/normalizer"
)

type currencyPair struct {
	ID          string `json:"id"` // BTC_USDT
	TradeStatus string `json:"trade_status"`
}

func (c *Connector) fetchSpotSymbols(ctx context.Context) ([]string, error) {
	var pairs []currencyPair
	if err := c.GetJSON(ctx, c.Config().SpotRestURL+"/spot/currency_pairs", nil, &pairs); err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if p.TradeStatus != "tradable" {
			continue
		}
		canonical := normalizer.Canonical(p.ID)
		c.symbols.Register(canonical, p.ID)
		symbols = append(symbols, canonical)
	}
	return symbols, nil
}

type futuresContract struct {
	Name        string `json:"name"` // BTC_USDT
	InDelisting bool   `json:"in_delisting"`
}

func (c *Connector) fetchFuturesSymbols(ctx context.Context) ([]string, error) {
	var contracts []futuresContract
	if err := c.GetJSON(ctx, c.Config().FuturesRestURL+"/futures/usdt/contracts", nil, &contracts); err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(contracts))
	for _, f := range contracts {
		if f.InDelisting {
			continue
		}
		canonical := normalizer.Canonical(f.Name)
		c.symbols.Register(canonical, f.Name)
		symbols = append(symbols, canonical)
	}
	return symbols, nil
}

type spotTicker struct {
	CurrencyPair string `json:"currency_pair"`
	Last         string `json:"last"`
	QuoteVolume  string `json:"quote_volume"`
}

// SnapshotSpot fetches the spot tickers for all known pairs.
func (c *Connector) SnapshotSpot(ctx context.Context) (map[string]connector.Quote, error) {
	var tickers []spotTicker
	if err := c.GetJSON(ctx, c.Config().SpotRestURL+"/spot/tickers", nil, &tickers); err != nil {
		return nil, err
	}

	out := make(map[string]connector.Quote, len(tickers))
	for _, t := range tickers {
		symbol := normalizer.Canonical(t.CurrencyPair)
		price, err := strconv.ParseFloat(t.Last, 64)
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

type futuresTicker struct {
	Contract string `json:"contract"`
	Last     string `json:"last"`
}

// SnapshotFutures fetches the USDT perpetual tickers for all known
// contracts.
func (c *Connector) SnapshotFutures(ctx context.Context) (map[string]connector.Quote, error) {
	var tickers []futuresTicker
	if err := c.GetJSON(ctx, c.Config().FuturesRestURL+"/futures/usdt/tickers", nil, &tickers); err != nil {
		return nil, err
	}

	out := make(map[string]connector.Quote, len(tickers))
	for _, t := range tickers {
		symbol := normalizer.Canonical(t.Contract)
		price, err := strconv.ParseFloat(t.Last, 64)
		if err != nil || price <= 0 || !c.Known(connector.Futures, symbol) {
			continue
		}
		out[symbol] = connector.Quote{Price: price}
	}
	return out, nil
}
