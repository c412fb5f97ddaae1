package zones

import (
	"sync"
	"time"

	"github.com/jptaranto/zone-bridge/internal/provider"
)

type stateEntry struct {
	state      ZoneState
	generation uint64
}

// StateCache provides thread-safe storage of zone states.
// Polls and commands write here; API handlers read.
//
// Every command write bumps the zone's generation. A poll captures the
// generation before calling the provider and its result is dropped if a
// command landed in the meantime.
type StateCache struct {
	mu      sync.RWMutex
	entries map[string]*stateEntry
	now     func() time.Time
}

// NewStateCache creates an empty cache.
func NewStateCache() *StateCache {
	return &StateCache{
		entries: make(map[string]*stateEntry),
		now:     time.Now,
	}
}

// Get returns the cached state, or DefaultState if the zone was never read.
func (c *StateCache) Get(zoneID string) ZoneState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[zoneID]
	if !ok {
		return DefaultState()
	}
	return entry.state
}

// Generation returns the zone's current write generation.
func (c *StateCache) Generation(zoneID string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if entry, ok := c.entries[zoneID]; ok {
		return entry.generation
	}
	return 0
}

// ApplyStatus stores a successful poll result taken at generation.
// Returns the resulting state, whether it was applied, and whether the
// playback/volume/mute values or staleness changed.
func (c *StateCache) ApplyStatus(zoneID string, generation uint64, status provider.Status) (ZoneState, bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.entryLocked(zoneID)
	if entry.generation != generation {
		return entry.state, false, false
	}

	previous := entry.state
	entry.state = ZoneState{
		Playback:    status.Playback,
		Volume:      status.Volume,
		Muted:       status.Muted,
		LastUpdated: c.now(),
		Stale:       false,
	}
	changed := !previous.SameValues(entry.state) || previous.Stale
	return entry.state, true, changed
}

// MarkStale flags the zone after a failed poll taken at generation,
// keeping the last good values. Returns the state and whether the flag flipped.
func (c *StateCache) MarkStale(zoneID string, generation uint64) (ZoneState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.entryLocked(zoneID)
	if entry.generation != generation || entry.state.Stale {
		return entry.state, false
	}
	entry.state.Stale = true
	return entry.state, true
}

// ApplyAck stores the values reported by a successful command.
// Fields the acknowledgement did not carry keep their cached values.
func (c *StateCache) ApplyAck(zoneID string, ack provider.Ack) (ZoneState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.entryLocked(zoneID)
	previous := entry.state
	if ack.Playback != nil {
		entry.state.Playback = *ack.Playback
	}
	if ack.Volume != nil {
		entry.state.Volume = *ack.Volume
	}
	if ack.Muted != nil {
		entry.state.Muted = *ack.Muted
	}
	entry.state.LastUpdated = c.now()
	entry.generation++
	return entry.state, !previous.SameValues(entry.state)
}

func (c *StateCache) entryLocked(zoneID string) *stateEntry {
	entry, ok := c.entries[zoneID]
	if !ok {
		entry = &stateEntry{state: DefaultState()}
		c.entries[zoneID] = entry
	}
	return entry
}
