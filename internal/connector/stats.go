package connector

import (
	"sync/atomic"
	"time"
)

// Stats holds the per-connector counters. All methods are safe for
// concurrent use.
type Stats struct {
	restRequests atomic.Int64
	wsMessages   atomic.Int64
	errors       atomic.Int64
	reconnects   atomic.Int64
	lastUpdate   atomic.Int64 // unix nanoseconds, 0 = never
}

// StatsSnapshot is a point-in-time copy of the connector counters
type StatsSnapshot struct {
	RestRequests int64     `json:"rest_requests"`
	WSMessages   int64     `json:"ws_messages"`
	Errors       int64     `json:"errors"`
	Reconnects   int64     `json:"reconnects"`
	LastUpdate   time.Time `json:"last_update"`
}

func (s *Stats) IncRest()      { s.restRequests.Add(1) }
func (s *Stats) IncMessage()   { s.wsMessages.Add(1) }
func (s *Stats) IncError()     { s.errors.Add(1) }
func (s *Stats) IncReconnect() { s.reconnects.Add(1) }

// MarkUpdate records the time of the most recent accepted update
func (s *Stats) MarkUpdate(at time.Time) {
	s.lastUpdate.Store(at.UnixNano())
}

// Snapshot returns a copy of the current counters
func (s *Stats) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		RestRequests: s.restRequests.Load(),
		WSMessages:   s.wsMessages.Load(),
		Errors:       s.errors.Load(),
		Reconnects:   s.reconnects.Load(),
	}
	if ns := s.lastUpdate.Load(); ns > 0 {
		snap.LastUpdate = time.Unix(0, ns)
	}
	return snap
}
