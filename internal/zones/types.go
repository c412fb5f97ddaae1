package zones

import (
	"time"

	"github.com/jptaranto/zone-bridge/internal/provider"
)

// Zone is one addressable playback endpoint.
type Zone struct {
	ID          string    `json:"id"`
	AccessoryID string    `json:"accessory_id"`
	Endpoint    string    `json:"endpoint"`
	Name        string    `json:"name"`
	Known       bool      `json:"known"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// Ref returns the provider address of the zone.
func (zone Zone) Ref() provider.ZoneRef {
	return provider.ZoneRef{ID: zone.ID, Endpoint: zone.Endpoint}
}

// ZoneState is the last known live status of a zone.
type ZoneState struct {
	Playback    provider.PlaybackState `json:"playback"`
	Volume      int                    `json:"volume"`
	Muted       bool                   `json:"muted"`
	LastUpdated time.Time              `json:"last_updated"`
	Stale       bool                   `json:"stale"`
}

// DefaultState is reported for a zone that has never been read successfully.
func DefaultState() ZoneState {
	return ZoneState{
		Playback: provider.PlaybackStopped,
		Volume:   provider.MinVolume,
		Muted:    false,
		Stale:    true,
	}
}

// SameValues reports whether two states carry the same playback, volume and mute.
func (state ZoneState) SameValues(other ZoneState) bool {
	return state.Playback == other.Playback &&
		state.Volume == other.Volume &&
		state.Muted == other.Muted
}
