package audit

import (
	"fmt"
	"log"
	"sync"

	"github.com/jptaranto/zone-bridge/internal/zones"
)

// Recorder turns bridge notifications into audit events. It implements
// bridge.StateListener.
type Recorder struct {
	service *Service
	logger  *log.Logger

	mu   sync.Mutex
	last map[string]zones.ZoneState
}

// NewRecorder creates a recorder writing through service.
func NewRecorder(service *Service, logger *log.Logger) *Recorder {
	if logger == nil {
		logger = log.Default()
	}
	return &Recorder{
		service: service,
		logger:  logger,
		last:    make(map[string]zones.ZoneState),
	}
}

// ZoneStateChanged records reachability flips and playback transitions.
// Volume and mute changes are not logged.
func (r *Recorder) ZoneStateChanged(zone zones.Zone, state zones.ZoneState) {
	r.mu.Lock()
	prev, seen := r.last[zone.ID]
	r.last[zone.ID] = state
	r.mu.Unlock()

	switch {
	case state.Stale && (!seen || !prev.Stale):
		r.record(zone, EventZoneUnreachable, EventLevelWarn,
			fmt.Sprintf("zone %s is unreachable", zone.Name), nil)
	case !state.Stale && seen && prev.Stale:
		r.record(zone, EventZoneReachable, EventLevelInfo,
			fmt.Sprintf("zone %s is reachable again", zone.Name), nil)
	}

	if seen && !state.Stale && prev.Playback != state.Playback {
		r.record(zone, EventPlaybackChanged, EventLevelInfo,
			fmt.Sprintf("zone %s %s -> %s", zone.Name, prev.Playback, state.Playback),
			map[string]any{"from": string(prev.Playback), "to": string(state.Playback)})
	}
}

// ZonesChanged records discovery outcomes.
func (r *Recorder) ZonesChanged(_ []zones.Zone, changes zones.Changes) {
	for _, zone := range changes.Added {
		r.record(zone, EventZoneDiscovered, EventLevelInfo,
			fmt.Sprintf("zone %s discovered", zone.Name), map[string]any{"endpoint": zone.Endpoint})
	}
	for _, zone := range changes.Restored {
		r.record(zone, EventZoneRestored, EventLevelInfo,
			fmt.Sprintf("zone %s is back in discovery", zone.Name), map[string]any{"endpoint": zone.Endpoint})
	}
	for _, zone := range changes.Renamed {
		r.record(zone, EventZoneRenamed, EventLevelInfo,
			fmt.Sprintf("zone %s renamed to %s", zone.ID, zone.Name), map[string]any{"name": zone.Name})
	}
	for _, zone := range changes.Removed {
		r.mu.Lock()
		delete(r.last, zone.ID)
		r.mu.Unlock()
		r.record(zone, EventZoneMissing, EventLevelWarn,
			fmt.Sprintf("zone %s missing from discovery", zone.Name), nil)
	}
}

func (r *Recorder) record(zone zones.Zone, eventType EventType, level EventLevel, message string, payload map[string]any) {
	_, err := r.service.RecordEvent(WriteEventInput{
		Type:        eventType,
		Level:       level,
		ZoneID:      zone.ID,
		AccessoryID: zone.AccessoryID,
		Message:     message,
		Payload:     payload,
	})
	if err != nil {
		r.logger.Printf("[AUDIT] %v", err)
	}
}
