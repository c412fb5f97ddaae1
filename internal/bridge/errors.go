package bridge

import (
	"errors"
	"fmt"

	"github.com/jptaranto/zone-bridge/internal/provider"
)

var (
	// ErrZoneNotFound is returned when an id matches no discovered zone.
	ErrZoneNotFound = errors.New("zone not found")
	// ErrUnsupportedCommand is returned when the provider exposes no primitive
	// that can reach the requested playback state.
	ErrUnsupportedCommand = errors.New("provider cannot reach requested playback state")
	// ErrInvalidPlayback is returned for a target outside the canonical states.
	ErrInvalidPlayback = errors.New("invalid playback target")
)

// CommandError reports a failed dispatch. Cached state is left untouched.
type CommandError struct {
	Op     string
	ZoneID string
	Kind   provider.ErrorKind
	Err    error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s command for zone %s failed (%s): %v", e.Op, e.ZoneID, e.Kind, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func newCommandError(op, zoneID string, err error) *CommandError {
	return &CommandError{
		Op:     op,
		ZoneID: zoneID,
		Kind:   provider.KindOf(err),
		Err:    err,
	}
}
