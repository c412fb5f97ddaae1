package roon

import (
	"strings"

	"github.com/jptaranto/zone-bridge/internal/provider"
)

// StatusToPlayback maps a Roon zone state to the canonical state.
// "loading" counts as paused: audio is not yet audible.
func StatusToPlayback(state string) provider.PlaybackState {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "playing":
		return provider.PlaybackPlaying
	case "paused", "loading":
		return provider.PlaybackPaused
	case "stopped":
		return provider.PlaybackStopped
	default:
		return provider.PlaybackStopped
	}
}
