package spread

import (
	"math"
	"sort"
	"time"

	"spreadup-monitor/internal/cache"
	"spreadup-monitor/internal/connector"
	"spreadup-monitor/internal/normalizer"
)

// Calculator defaults.
const (
	DefaultThreshold = 3.0
	// MaxRealisticSpread rejects spreads that only ever come from bad
	// data or dead markets.
	MaxRealisticSpread = 50.0
)

// Calculator scans the price cache for symbols whose futures price on
// any exchange exceeds the spot price on any exchange by at least the
// threshold.
type Calculator struct {
	cache     *cache.PriceCache
	threshold float64
}

// NewCalculator creates a calculator over the given cache.
func NewCalculator(c *cache.PriceCache, threshold float64) *Calculator {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Calculator{cache: c, threshold: threshold}
}

// Threshold returns the configured minimum spread in percent.
func (c *Calculator) Threshold() float64 {
	return c.threshold
}

// FindOpportunities crosses every spot exchange with every futures
// exchange per symbol and returns the accepted spreads sorted by
// spread descending, ties broken by symbol, then spot exchange, then
// futures exchange. A nil allowed set means all exchanges.
func (c *Calculator) FindOpportunities(allowed map[connector.ExchangeID]bool) []Opportunity {
	spotView := c.cache.AllByMarket(connector.Spot)
	futuresView := c.cache.AllByMarket(connector.Futures)
	now := time.Now()

	var opportunities []Opportunity
	for symbol, spotPrices := range spotView {
		futuresPrices, ok := futuresView[symbol]
		if !ok {
			continue
		}

		for spotExchange, spotUpdate := range spotPrices {
			if allowed != nil && !allowed[spotExchange] {
				continue
			}
			if spotUpdate.Price <= 0 {
				continue
			}

			for futuresExchange, futuresUpdate := range futuresPrices {
				if allowed != nil && !allowed[futuresExchange] {
					continue
				}
				if futuresUpdate.Price <= spotUpdate.Price {
					continue
				}

				spread := SpreadPercent(spotUpdate.Price, futuresUpdate.Price)
				if spread < c.threshold {
					continue
				}
				if spread >= MaxRealisticSpread {
					continue
				}

				var latency time.Duration
				if spotUpdate.Latency > 0 && futuresUpdate.Latency > 0 {
					latency = spotUpdate.Latency
					if futuresUpdate.Latency > latency {
						latency = futuresUpdate.Latency
					}
				}

				opportunities = append(opportunities, Opportunity{
					Symbol:          symbol,
					BaseAsset:       normalizer.BaseAsset(symbol),
					SpotExchange:    spotExchange,
					SpotPrice:       spotUpdate.Price,
					FuturesExchange: futuresExchange,
					FuturesPrice:    futuresUpdate.Price,
					SpreadPercent:   round4(spread),
					Volume24h:       spotUpdate.Volume24h,
					Latency:         latency,
					Timestamp:       now,
				})
			}
		}
	}

	sort.Slice(opportunities, func(i, j int) bool {
		a, b := opportunities[i], opportunities[j]
		if a.SpreadPercent != b.SpreadPercent {
			return a.SpreadPercent > b.SpreadPercent
		}
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		if a.SpotExchange != b.SpotExchange {
			return a.SpotExchange < b.SpotExchange
		}
		return a.FuturesExchange < b.FuturesExchange
	})

	return opportunities
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
