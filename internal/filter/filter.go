// Package filter holds per-subscriber alert criteria and their store.
package filter

import (
	"sync"

	"spreadup-monitor/internal/connector"
	"spreadup-monitor/internal/spread"
)

// Filter defaults.
const (
	DefaultMinSpread    = 3.0
	DefaultMaxSpread    = 50.0
	DefaultMinVolumeUSD = 0.0
)

// UserFilters is one subscriber's alert criteria. Values handed out by
// the Store are snapshots; treat them as read-only and mutate through
// the Store.
type UserFilters struct {
	MinSpread        float64                       `json:"min_spread"`
	MaxSpread        float64                       `json:"max_spread"`
	MinVolumeUSD     float64                       `json:"min_volume_usd"`
	EnabledExchanges map[connector.ExchangeID]bool `json:"enabled_exchanges"`
}

// Defaults returns the filters applied to subscribers who never set
// any: 3%..50% spread, no volume floor, all exchanges enabled.
func Defaults() UserFilters {
	enabled := make(map[connector.ExchangeID]bool, len(connector.AllExchanges()))
	for _, id := range connector.AllExchanges() {
		enabled[id] = true
	}
	return UserFilters{
		MinSpread:        DefaultMinSpread,
		MaxSpread:        DefaultMaxSpread,
		MinVolumeUSD:     DefaultMinVolumeUSD,
		EnabledExchanges: enabled,
	}
}

// Accept reports whether an opportunity passes the filters: spread
// inside [MinSpread, MaxSpread], volume at least MinVolumeUSD when the
// opportunity carries one, and both exchanges enabled. An opportunity
// without volume never fails the volume check.
func (f UserFilters) Accept(o spread.Opportunity) bool {
	if o.SpreadPercent < f.MinSpread || o.SpreadPercent > f.MaxSpread {
		return false
	}
	if o.Volume24h != nil && *o.Volume24h < f.MinVolumeUSD {
		return false
	}
	return f.EnabledExchanges[o.SpotExchange] && f.EnabledExchanges[o.FuturesExchange]
}

func (f UserFilters) clone() UserFilters {
	enabled := make(map[connector.ExchangeID]bool, len(f.EnabledExchanges))
	for id, on := range f.EnabledExchanges {
		enabled[id] = on
	}
	f.EnabledExchanges = enabled
	return f
}

// Store maps subscriber ids to their filters. Writes are copy-on-
// write: every mutation publishes a fresh value, so snapshots handed
// out earlier never change under their readers.
type Store struct {
	mu     sync.RWMutex
	byUser map[int64]UserFilters
}

// NewStore creates an empty filter store.
func NewStore() *Store {
	return &Store{byUser: make(map[int64]UserFilters)}
}

// Get returns the subscriber's filters, or the defaults when none are
// stored.
func (s *Store) Get(userID int64) UserFilters {
	s.mu.RLock()
	f, ok := s.byUser[userID]
	s.mu.RUnlock()
	if !ok {
		return Defaults()
	}
	return f
}

// Set replaces the subscriber's filters wholesale.
func (s *Store) Set(userID int64, f UserFilters) {
	s.mu.Lock()
	s.byUser[userID] = f.clone()
	s.mu.Unlock()
}

// update clones the subscriber's current filters (or the defaults),
// applies fn and publishes the result.
func (s *Store) update(userID int64, fn func(*UserFilters)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.byUser[userID]
	if ok {
		f = f.clone()
	} else {
		f = Defaults()
	}
	fn(&f)
	s.byUser[userID] = f
}

// SetMinSpread sets the minimum spread in percent.
func (s *Store) SetMinSpread(userID int64, v float64) {
	s.update(userID, func(f *UserFilters) { f.MinSpread = v })
}

// SetMaxSpread sets the maximum spread in percent.
func (s *Store) SetMaxSpread(userID int64, v float64) {
	s.update(userID, func(f *UserFilters) { f.MaxSpread = v })
}

// SetMinVolume sets the 24h volume floor in USD.
func (s *Store) SetMinVolume(userID int64, v float64) {
	s.update(userID, func(f *UserFilters) { f.MinVolumeUSD = v })
}

// ToggleExchange flips one exchange on or off and returns the new
// state.
func (s *Store) ToggleExchange(userID int64, exchange connector.ExchangeID) bool {
	var enabled bool
	s.update(userID, func(f *UserFilters) {
		enabled = !f.EnabledExchanges[exchange]
		f.EnabledExchanges[exchange] = enabled
	})
	return enabled
}

// EnableAllExchanges turns every supported exchange on.
func (s *Store) EnableAllExchanges(userID int64) {
	s.update(userID, func(f *UserFilters) {
		for _, id := range connector.AllExchanges() {
			f.EnabledExchanges[id] = true
		}
	})
}

// DisableAllExchanges turns every exchange off; the subscriber gets no
// alerts until one is re-enabled.
func (s *Store) DisableAllExchanges(userID int64) {
	s.update(userID, func(f *UserFilters) {
		for id := range f.EnabledExchanges {
			f.EnabledExchanges[id] = false
		}
	})
}

// Remove drops the subscriber's stored filters; Get falls back to the
// defaults afterwards.
func (s *Store) Remove(userID int64) {
	s.mu.Lock()
	delete(s.byUser, userID)
	s.mu.Unlock()
}

// Len returns the number of subscribers with stored filters.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byUser)
}
