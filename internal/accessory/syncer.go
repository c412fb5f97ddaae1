package accessory

import (
	"log"

	"github.com/jptaranto/zone-bridge/internal/zones"
)

// Syncer keeps the accessory table in step with zone discovery.
type Syncer struct {
	repo     *Repository
	provider string
	postfix  string
	logger   *log.Logger
}

// NewSyncer creates a Syncer. Register it with bridge.Service.AddListener.
func NewSyncer(repo *Repository, provider, postfix string, logger *log.Logger) *Syncer {
	if logger == nil {
		logger = log.Default()
	}
	return &Syncer{repo: repo, provider: provider, postfix: postfix, logger: logger}
}

// ZonesChanged upserts every zone after a reconcile.
func (s *Syncer) ZonesChanged(all []zones.Zone, changes zones.Changes) {
	if changes.Empty() && len(all) == 0 {
		return
	}
	items := make([]Accessory, 0, len(all))
	for _, zone := range all {
		items = append(items, s.FromZone(zone))
	}
	if err := s.repo.Upsert(items); err != nil {
		s.logger.Printf("[ACCESSORY] failed to persist %d accessories: %v", len(items), err)
	}
}

// ZoneStateChanged is a no-op; only identities are persisted.
func (s *Syncer) ZoneStateChanged(zones.Zone, zones.ZoneState) {}

// FromZone builds the accessory record for a zone.
func (s *Syncer) FromZone(zone zones.Zone) Accessory {
	return Accessory{
		AccessoryID: zone.AccessoryID,
		ZoneID:      zone.ID,
		Provider:    s.provider,
		DisplayName: DisplayName(zone.Name, s.postfix),
		Category:    CategorySpeaker,
		Known:       zone.Known,
		FirstSeenAt: zone.FirstSeenAt,
		LastSeenAt:  zone.LastSeenAt,
	}
}
