// Package spread detects spot/perpetual arbitrage opportunities from
// the price cache and gates how often each base asset may alert.
package spread

import (
	"strings"
	"time"

	"spreadup-monitor/internal/connector"
)

// Opportunity is one detected spot/futures arbitrage spread: the
// futures side trades above the spot side by SpreadPercent.
type Opportunity struct {
	Symbol          string               `json:"symbol"`
	BaseAsset       string               `json:"base_asset"`
	SpotExchange    connector.ExchangeID `json:"spot_exchange"`
	SpotPrice       float64              `json:"spot_price"`
	FuturesExchange connector.ExchangeID `json:"futures_exchange"`
	FuturesPrice    float64              `json:"futures_price"`
	SpreadPercent   float64              `json:"spread_percent"`
	Volume24h       *float64             `json:"volume_24h,omitempty"` // spot-side 24h quote volume
	Latency         time.Duration        `json:"latency,omitempty"`    // worse of the two feed latencies
	Timestamp       time.Time            `json:"timestamp"`
}

// AbsoluteSpread returns the price difference in quote currency
func (o Opportunity) AbsoluteSpread() float64 {
	return o.FuturesPrice - o.SpotPrice
}

// SpotURL returns the spot trading page for the opportunity's symbol
func (o Opportunity) SpotURL() string {
	switch o.SpotExchange {
	case connector.MEXC:
		return "https://www.mexc.com/exchange/" + o.Symbol
	case connector.GateIO:
		return "https://www.gate.io/trade/" + o.Symbol
	case connector.BingX:
		return "https://www.bingx.com/en-us/spot/" + o.Symbol
	case connector.HTX:
		return "https://www.htx.com/exchange/" + strings.ToLower(o.Symbol)
	default:
		return ""
	}
}

// FuturesURL returns the futures trading page for the opportunity's symbol
func (o Opportunity) FuturesURL() string {
	switch o.FuturesExchange {
	case connector.MEXC:
		return "https://www.mexc.com/futures/" + o.Symbol
	case connector.GateIO:
		return "https://www.gate.io/futures_trade/" + o.Symbol
	case connector.BingX:
		return "https://www.bingx.com/en-us/futures/" + o.Symbol
	case connector.HTX:
		return "https://www.htx.com/futures/" + strings.ToLower(o.Symbol)
	default:
		return ""
	}
}

// SpreadPercent computes the futures premium over spot in percent
func SpreadPercent(spotPrice, futuresPrice float64) float64 {
	return (futuresPrice - spotPrice) / spotPrice * 100
}
