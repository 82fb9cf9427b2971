package notify

import (
	"sort"
	"sync"

	"spreadup-monitor/internal/filter"
)

// MemoryRegistry is the in-process Registry used when no chat backend
// is wired: a subscriber set over the shared filter store.
type MemoryRegistry struct {
	mu      sync.RWMutex
	members map[int64]struct{}
	filters *filter.Store
}

// NewMemoryRegistry creates an empty registry over the given filters.
func NewMemoryRegistry(filters *filter.Store) *MemoryRegistry {
	return &MemoryRegistry{
		members: make(map[int64]struct{}),
		filters: filters,
	}
}

// Subscribe adds a subscriber. Adding twice is a no-op.
func (r *MemoryRegistry) Subscribe(userID int64) {
	r.mu.Lock()
	r.members[userID] = struct{}{}
	r.mu.Unlock()
}

// Subscribers returns the current subscriber ids in ascending order.
func (r *MemoryRegistry) Subscribers() []int64 {
	r.mu.RLock()
	ids := make([]int64, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// FiltersFor returns the subscriber's filters.
func (r *MemoryRegistry) FiltersFor(userID int64) filter.UserFilters {
	return r.filters.Get(userID)
}

// Remove drops the subscriber and their stored filters.
func (r *MemoryRegistry) Remove(userID int64) {
	r.mu.Lock()
	delete(r.members, userID)
	r.mu.Unlock()
	r.filters.Remove(userID)
}

// Len returns the number of subscribers.
func (r *MemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}
