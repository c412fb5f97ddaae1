package zones

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jptaranto/zone-bridge/internal/provider"
)

// accessoryNamespace scopes the name-based UUIDs handed to the accessory layer.
const accessoryNamespace = "6f1b7c7e-2d4a-5b8e-9c3f-0a1d2e3f4b5c"

// AccessoryID derives the stable accessory identity from a provider zone id.
// It depends on the id alone so renames never produce a second accessory.
func AccessoryID(zoneID string) string {
	namespace := uuid.MustParse(accessoryNamespace)
	return uuid.NewSHA1(namespace, []byte(zoneID)).String()
}

// Changes describes what a reconcile pass did.
type Changes struct {
	Added    []Zone
	Restored []Zone
	Removed  []Zone
	Renamed  []Zone
}

// Empty reports whether the pass changed nothing observable.
func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Restored) == 0 && len(c.Removed) == 0 && len(c.Renamed) == 0
}

// Registry owns the set of known zones.
type Registry struct {
	mu    sync.RWMutex
	zones map[string]*Zone
	order []string
	byAcc map[string]string
	now   func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		zones: make(map[string]*Zone),
		byAcc: make(map[string]string),
		now:   time.Now,
	}
}

// Reconcile applies a discovery pass. Existing zones are updated in place,
// new ones created, and zones missing from records are marked not known but
// kept. Returns every zone in first-discovery order.
func (r *Registry) Reconcile(records []provider.ZoneRecord) ([]Zone, Changes) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var changes Changes

	// Last record wins when a listing repeats an id.
	latest := make(map[string]provider.ZoneRecord, len(records))
	ordered := make([]string, 0, len(records))
	for _, record := range records {
		id := strings.TrimSpace(record.ID)
		if id == "" {
			continue
		}
		if _, seen := latest[id]; !seen {
			ordered = append(ordered, id)
		}
		record.ID = id
		latest[id] = record
	}

	for _, id := range ordered {
		record := latest[id]
		zone, exists := r.zones[id]
		if !exists {
			zone = &Zone{
				ID:          id,
				AccessoryID: AccessoryID(id),
				Endpoint:    record.Host,
				Name:        record.Name,
				Known:       true,
				FirstSeenAt: now,
				LastSeenAt:  now,
			}
			r.zones[id] = zone
			r.byAcc[zone.AccessoryID] = id
			r.order = append(r.order, id)
			changes.Added = append(changes.Added, *zone)
			continue
		}

		renamed := zone.Name != record.Name
		restored := !zone.Known
		zone.Name = record.Name
		zone.Endpoint = record.Host
		zone.Known = true
		zone.LastSeenAt = now

		if restored {
			changes.Restored = append(changes.Restored, *zone)
		}
		if renamed {
			changes.Renamed = append(changes.Renamed, *zone)
		}
	}

	for _, id := range r.order {
		if _, present := latest[id]; present {
			continue
		}
		zone := r.zones[id]
		if zone.Known {
			zone.Known = false
			changes.Removed = append(changes.Removed, *zone)
		}
	}

	return r.listLocked(), changes
}

// Get returns the zone with the given provider id.
func (r *Registry) Get(zoneID string) (Zone, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	zone, ok := r.zones[zoneID]
	if !ok {
		return Zone{}, false
	}
	return *zone, true
}

// Lookup resolves either a provider zone id or an accessory id.
func (r *Registry) Lookup(id string) (Zone, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if zone, ok := r.zones[id]; ok {
		return *zone, true
	}
	if zoneID, ok := r.byAcc[strings.ToLower(id)]; ok {
		return *r.zones[zoneID], true
	}
	return Zone{}, false
}

// List returns all zones, known and stale, in first-discovery order.
func (r *Registry) List() []Zone {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked()
}

// Len returns the number of zones ever discovered this session.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func (r *Registry) listLocked() []Zone {
	result := make([]Zone, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, *r.zones[id])
	}
	return result
}
