package volumio

import (
	"strings"

	"github.com/jptaranto/zone-bridge/internal/provider"
)

// Volumio reports transport status as play / pause / stop.
const (
	statusPlay  = "play"
	statusPause = "pause"
	statusStop  = "stop"
)

// StatusToPlayback maps a Volumio status string to the canonical state.
// Unknown or empty values map to STOPPED so an undeterminable zone is never
// reported as playing.
func StatusToPlayback(status string) provider.PlaybackState {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case statusPlay:
		return provider.PlaybackPlaying
	case statusPause:
		return provider.PlaybackPaused
	case statusStop:
		return provider.PlaybackStopped
	default:
		return provider.PlaybackStopped
	}
}

// CommandResultToPlayback maps a command acknowledgement such as
// "play Success" to the state the zone is now in.
func CommandResultToPlayback(response string) provider.PlaybackState {
	fields := strings.Fields(strings.ToLower(response))
	if len(fields) != 2 || fields[1] != "success" {
		return provider.PlaybackStopped
	}
	return StatusToPlayback(fields[0])
}
