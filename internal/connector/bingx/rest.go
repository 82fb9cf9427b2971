package bingx

import (
	"context"

	"spreadup-monitor/internal/connector"
	"spreadup-monitor/internal/normalizer"
)

type spotSymbolsResponse struct {
	Data []struct {
		Symbol string `json:"symbol"` // BTC-USDT
		Status int    `json:"status"` // 1 = trading
	} `json:"data"`
}

func (c *Connector) fetchSpotSymbols(ctx context.Context) ([]string, error) {
	var resp spotSymbolsResponse
	if err := c.GetJSON(ctx, c.Config().SpotRestURL+"/openApi/spot/v1/common/symbols", nil, &resp); err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(resp.Data))
	for _, s := range resp.Data {
		if s.Status != 1 {
			continue
		}
		canonical := normalizer.Canonical(s.Symbol)
		c.symbols.Register(canonical, s.Symbol)
		symbols = append(symbols, canonical)
	}
	return symbols, nil
}

type contractsResponse struct {
	Data []struct {
		Symbol string `json:"symbol"` // BTC-USDT
		Status int    `json:"status"`
	} `json:"data"`
}

func (c *Connector) fetchFuturesSymbols(ctx context.Context) ([]string, error) {
	var resp contractsResponse
	if err := c.GetJSON(ctx, c.Config().FuturesRestURL+"/openApi/swap/v2/quote/contracts", nil, &resp); err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(resp.Data))
	for _, s := range resp.Data {
		if s.Status != 1 {
			continue
		}
		canonical := normalizer.Canonical(s.Symbol)
		c.symbols.Register(canonical, s.Symbol)
		symbols = append(symbols, canonical)
	}
	return symbols, nil
}

type priceListResponse struct {
	Data []struct {
		Symbol string      `json:"symbol"`
		Price  interface{} `json:"price"` // string on spot, number on swap
	} `json:"data"`
}

// SnapshotSpot fetches the spot prices for all known symbols. The
// venue's bulk price endpoint carries no volume.
func (c *Connector) SnapshotSpot(ctx context.Context) (map[string]connector.Quote, error) {
	return c.snapshot(ctx, connector.Spot, c.Config().SpotRestURL+"/openApi/spot/v1/ticker/prices")
}

// SnapshotFutures fetches the swap prices for all known contracts.
func (c *Connector) SnapshotFutures(ctx context.Context) (map[string]connector.Quote, error) {
	return c.snapshot(ctx, connector.Futures, c.Config().FuturesRestURL+"/openApi/swap/v2/quote/prices")
}

func (c *Connector) snapshot(ctx context.Context, market connector.MarketKind, url string) (map[string]connector.Quote, error) {
	var resp priceListResponse
	if err := c.GetJSON(ctx, url, nil, &resp); err != nil {
		return nil, err
	}

	out := make(map[string]connector.Quote, len(resp.Data))
	for _, item := range resp.Data {
		symbol := normalizer.Canonical(item.Symbol)
		price, ok := connector.AsFloat(item.Price)
		if !ok || price <= 0 || !c.Known(market, symbol) {
			continue
		}
		out[symbol] = connector.Quote{Price: price}
	}
	return out, nil
}
