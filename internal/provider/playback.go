package provider

import "math"

// PlaybackState is the canonical transport state shared by every provider.
type PlaybackState string

const (
	PlaybackPlaying PlaybackState = "PLAYING"
	PlaybackPaused  PlaybackState = "PAUSED"
	PlaybackStopped PlaybackState = "STOPPED"
)

// Valid reports whether the state is one of the canonical values.
func (state PlaybackState) Valid() bool {
	switch state {
	case PlaybackPlaying, PlaybackPaused, PlaybackStopped:
		return true
	}
	return false
}

// ParsePlaybackState parses a canonical state name as used on the HTTP surface.
func ParsePlaybackState(value string) (PlaybackState, bool) {
	state := PlaybackState(value)
	return state, state.Valid()
}

const (
	MinVolume = 0
	MaxVolume = 100
)

// ClampVolume rounds to the nearest integer and clamps into [0,100].
// NaN maps to 0.
func ClampVolume(v float64) int {
	if math.IsNaN(v) {
		return MinVolume
	}
	rounded := math.Round(v)
	if rounded <= MinVolume {
		return MinVolume
	}
	if rounded >= MaxVolume {
		return MaxVolume
	}
	return int(rounded)
}
