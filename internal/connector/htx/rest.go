package htx

import (
	"context"
	"net/url"
	"strings"

	"spreadup-monitor/internal/connector"
	"spreadup-monitor/internal/normalizer"
)

type spotTickersResponse struct {
	Data []struct {
		Symbol string  `json:"symbol"` // lower-case, e.g. btcusdt
		Close  float64 `json:"close"`
		Vol    float64 `json:"vol"` // 24h quote volume
	} `json:"data"`
}

func (c *Connector) fetchSpotSymbols(ctx context.Context) ([]string, error) {
	var resp spotTickersResponse
	if err := c.GetJSON(ctx, c.Config().SpotRestURL+"/market/tickers", nil, &resp); err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(resp.Data))
	for _, t := range resp.Data {
		if t.Symbol == "" {
			continue
		}
		symbols = append(symbols, normalizer.Canonical(t.Symbol))
	}
	return symbols, nil
}

type contractInfoResponse struct {
	Data []struct {
		Symbol         string `json:"symbol"` // base only, e.g. BTC
		ContractStatus int    `json:"contract_status"`
	} `json:"data"`
}

func (c *Connector) fetchFuturesSymbols(ctx context.Context) ([]string, error) {
	var resp contractInfoResponse
	if err := c.GetJSON(ctx, c.Config().FuturesRestURL+"/api/v1/contract_contract_info", nil, &resp); err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(resp.Data))
	for _, contract := range resp.Data {
		if contract.ContractStatus != 1 || contract.Symbol == "" {
			continue
		}
		symbols = append(symbols, normalizer.Canonical(contract.Symbol)+"USDT")
	}
	return symbols, nil
}

// SnapshotSpot fetches the bulk spot tickers for all known symbols.
func (c *Connector) SnapshotSpot(ctx context.Context) (map[string]connector.Quote, error) {
	var resp spotTickersResponse
	if err := c.GetJSON(ctx, c.Config().SpotRestURL+"/market/tickers", nil, &resp); err != nil {
		return nil, err
	}

	out := make(map[string]connector.Quote, len(resp.Data))
	for _, t := range resp.Data {
		symbol := normalizer.Canonical(t.Symbol)
		if t.Close <= 0 || !c.Known(connector.Spot, symbol) {
			continue
		}
		q := connector.Quote{Price: t.Close}
		if t.Vol > 0 {
			vol := t.Vol
			q.Volume24h = &vol
		}
		out[symbol] = q
	}
	return out, nil
}

type klineResponse struct {
	Data []struct {
		Close float64 `json:"close"`
	} `json:"data"`
}

// SnapshotFutures probes the per-base kline endpoint for each popular
// base with a known contract. Individual probe failures are tolerated;
// the snapshot fails only when every probe does.
func (c *Connector) SnapshotFutures(ctx context.Context) (map[string]connector.Quote, error) {
	out := make(map[string]connector.Quote)
	var lastErr error

	for _, base := range popularBases {
		symbol := base + "USDT"
		if !c.Known(connector.Futures, symbol) {
			continue
		}

		params := url.Values{
			"symbol": {base + "_CQ"},
			"period": {"1min"},
			"size":   {"1"},
		}
		var resp klineResponse
		if err := c.GetJSON(ctx, c.Config().FuturesRestURL+"/market/history/kline", params, &resp); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		if len(resp.Data) == 0 || resp.Data[0].Close <= 0 {
			continue
		}
		out[symbol] = connector.Quote{Price: resp.Data[0].Close}
	}

	if len(out) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

// probedBases returns the popular bases with a known futures contract,
// mostly for introspection and tests.
func (c *Connector) probedBases() []string {
	bases := make([]string, 0, len(popularBases))
	for _, base := range popularBases {
		if c.Known(connector.Futures, strings.ToUpper(base)+"USDT") {
			bases = append(bases, base)
		}
	}
	return bases
}
