package bridge

import "github.com/jptaranto/zone-bridge/internal/zones"

// StateListener receives zone changes published by the bridge.
// Calls happen on poller and request goroutines and must not block.
type StateListener interface {
	ZoneStateChanged(zone zones.Zone, state zones.ZoneState)
	ZonesChanged(all []zones.Zone, changes zones.Changes)
}

func (service *Service) AddListener(listener StateListener) {
	if listener == nil {
		return
	}
	service.listenersMu.Lock()
	defer service.listenersMu.Unlock()
	service.listeners = append(service.listeners, listener)
}

func (service *Service) notifyState(zone zones.Zone, state zones.ZoneState) {
	// Reload so listeners see the current name.
	if latest, ok := service.registry.Get(zone.ID); ok {
		zone = latest
	}
	for _, listener := range service.snapshotListeners() {
		listener.ZoneStateChanged(zone, state)
	}
}

func (service *Service) notifyZones(all []zones.Zone, changes zones.Changes) {
	for _, listener := range service.snapshotListeners() {
		listener.ZonesChanged(all, changes)
	}
}

func (service *Service) snapshotListeners() []StateListener {
	service.listenersMu.RLock()
	defer service.listenersMu.RUnlock()
	return append([]StateListener(nil), service.listeners...)
}
