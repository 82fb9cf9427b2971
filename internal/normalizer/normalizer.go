// Package normalizer converts venue symbol formats to the canonical
// form used throughout the service and back.
package normalizer

import (
	"strings"
	"sync"
)

// Canonical returns the canonical form of a venue symbol: upper-case
// with separator characters removed ("btcusdt", "BTC_USDT", "BTC-USDT"
// and "BTC/USDT" all map to "BTCUSDT"). Applying it twice is a no-op.
func Canonical(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	s = strings.ReplaceAll(s, "_", "")
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, "/", "")
	return s
}

// BaseAsset extracts the base asset from a symbol by stripping the
// USDT quote suffix ("BTCUSDT" and "BTC_USDT" both yield "BTC").
// Symbols without the suffix are returned unchanged.
func BaseAsset(symbol string) string {
	s := strings.TrimSpace(symbol)
	s = strings.TrimSuffix(s, "_USDT")
	s = strings.TrimSuffix(s, "USDT")
	return s
}

// SymbolMap is a bidirectional mapping between canonical symbols and
// one venue market's native format. Connectors fill it during symbol
// discovery and use it to route subscriptions out and ticker frames
// back.
type SymbolMap struct {
	mu          sync.RWMutex
	toVenue     map[string]string
	toCanonical map[string]string
}

// NewSymbolMap creates an empty symbol map.
func NewSymbolMap() *SymbolMap {
	return &SymbolMap{
		toVenue:     make(map[string]string),
		toCanonical: make(map[string]string),
	}
}

// Register records one canonical/venue pair, overwriting earlier
// entries for either side.
func (m *SymbolMap) Register(canonical, venue string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toVenue[canonical] = venue
	m.toCanonical[venue] = canonical
}

// Venue returns the venue-native symbol for a canonical one.
func (m *SymbolMap) Venue(canonical string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.toVenue[canonical]
	return v, ok
}

// Canonical returns the canonical symbol for a venue-native one.
func (m *SymbolMap) Canonical(venue string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.toCanonical[venue]
	return c, ok
}

// Len returns the number of registered pairs.
func (m *SymbolMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.toVenue)
}
