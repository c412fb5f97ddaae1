package bridge

import (
	"context"
	"log"
	"time"

	"github.com/jptaranto/zone-bridge/internal/provider"
	"github.com/jptaranto/zone-bridge/internal/zones"
)

// IntentKind selects which part of the zone state an intent changes.
type IntentKind string

const (
	IntentPlayback IntentKind = "playback"
	IntentVolume   IntentKind = "volume"
	IntentMute     IntentKind = "mute"
)

// Intent is a caller-requested change, consumed synchronously by Dispatch.
type Intent struct {
	Kind     IntentKind
	Playback provider.PlaybackState
	Volume   float64
	Muted    bool
}

// PlaybackIntent requests a playback state.
func PlaybackIntent(target provider.PlaybackState) Intent {
	return Intent{Kind: IntentPlayback, Playback: target}
}

// VolumeIntent requests a volume; the value is clamped before sending.
func VolumeIntent(volume float64) Intent {
	return Intent{Kind: IntentVolume, Volume: volume}
}

// MuteIntent requests a mute state.
func MuteIntent(muted bool) Intent {
	return Intent{Kind: IntentMute, Muted: muted}
}

// Dispatcher turns intents into provider commands.
type Dispatcher struct {
	provider    provider.Provider
	cache       *zones.StateCache
	lock        *zones.Lock
	logger      *log.Logger
	timeout     time.Duration
	lockTimeout time.Duration
	notify      func(zones.Zone, zones.ZoneState)
}

// NewDispatcher creates a dispatcher. notify is called after a command
// changes cached values; it may be nil.
func NewDispatcher(
	p provider.Provider,
	cache *zones.StateCache,
	lock *zones.Lock,
	logger *log.Logger,
	timeout time.Duration,
	notify func(zones.Zone, zones.ZoneState),
) *Dispatcher {
	if logger == nil {
		logger = log.Default()
	}
	if lock == nil {
		lock = zones.NewLock(logger)
	}
	if notify == nil {
		notify = func(zones.Zone, zones.ZoneState) {}
	}
	return &Dispatcher{
		provider:    p,
		cache:       cache,
		lock:        lock,
		logger:      logger,
		timeout:     timeout,
		lockTimeout: zones.DefaultLockTimeout,
		notify:      notify,
	}
}

// Busy reports whether a command currently holds the zone.
func (d *Dispatcher) Busy(zoneID string) bool {
	return d.lock.IsLocked(zoneID)
}

// Dispatch applies an intent to a zone. The whole read-compare-send-write
// sequence runs under the zone lock. On failure the cache is unchanged and a
// *CommandError is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, zone zones.Zone, intent Intent) (zones.ZoneState, error) {
	var result zones.ZoneState
	err := d.lock.WithLock(ctx, zone.ID, d.lockTimeout, func() error {
		var err error
		switch intent.Kind {
		case IntentPlayback:
			result, err = d.dispatchPlayback(ctx, zone, intent.Playback)
		case IntentVolume:
			result, err = d.dispatchVolume(ctx, zone, intent.Volume)
		case IntentMute:
			result, err = d.dispatchMute(ctx, zone, intent.Muted)
		default:
			err = newCommandError(string(intent.Kind), zone.ID, ErrUnsupportedCommand)
		}
		return err
	})
	if err != nil {
		if _, ok := err.(*CommandError); !ok {
			err = newCommandError(string(intent.Kind), zone.ID, err)
		}
		return d.cache.Get(zone.ID), err
	}
	return result, nil
}

func (d *Dispatcher) dispatchPlayback(ctx context.Context, zone zones.Zone, target provider.PlaybackState) (zones.ZoneState, error) {
	if !target.Valid() {
		return zones.ZoneState{}, newCommandError(string(IntentPlayback), zone.ID, ErrInvalidPlayback)
	}

	current := d.cache.Get(zone.ID)
	if current.Playback == target {
		return current, nil
	}

	command, needed, err := transportCommand(d.provider.Capabilities(), current.Playback, target)
	if err != nil {
		return zones.ZoneState{}, newCommandError(string(IntentPlayback), zone.ID, err)
	}
	if !needed {
		return current, nil
	}

	cmdCtx, cancel := d.commandContext(ctx)
	defer cancel()

	d.logger.Printf("[DISPATCH] zone %s %s -> %s via %s", zone.ID, current.Playback, target, command)
	ack, err := d.provider.SendTransport(cmdCtx, zone.Ref(), command)
	if err != nil {
		d.logger.Printf("[DISPATCH] zone %s %s failed: %v", zone.ID, command, err)
		return zones.ZoneState{}, newCommandError(string(IntentPlayback), zone.ID, err)
	}

	return d.apply(zone, ack), nil
}

func (d *Dispatcher) dispatchVolume(ctx context.Context, zone zones.Zone, requested float64) (zones.ZoneState, error) {
	volume := provider.ClampVolume(requested)

	cmdCtx, cancel := d.commandContext(ctx)
	defer cancel()

	ack, err := d.provider.SetVolume(cmdCtx, zone.Ref(), volume)
	if err != nil {
		d.logger.Printf("[DISPATCH] zone %s volume=%d failed: %v", zone.ID, volume, err)
		return zones.ZoneState{}, newCommandError(string(IntentVolume), zone.ID, err)
	}
	if ack.Volume == nil {
		ack.Volume = &volume
	}
	return d.apply(zone, ack), nil
}

func (d *Dispatcher) dispatchMute(ctx context.Context, zone zones.Zone, muted bool) (zones.ZoneState, error) {
	cmdCtx, cancel := d.commandContext(ctx)
	defer cancel()

	ack, err := d.provider.SetMute(cmdCtx, zone.Ref(), muted)
	if err != nil {
		d.logger.Printf("[DISPATCH] zone %s mute=%t failed: %v", zone.ID, muted, err)
		return zones.ZoneState{}, newCommandError(string(IntentMute), zone.ID, err)
	}
	if ack.Muted == nil {
		ack.Muted = &muted
	}
	return d.apply(zone, ack), nil
}

func (d *Dispatcher) apply(zone zones.Zone, ack provider.Ack) zones.ZoneState {
	state, changed := d.cache.ApplyAck(zone.ID, ack)
	if changed {
		d.notify(zone, state)
	}
	return state
}

func (d *Dispatcher) commandContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.timeout)
}

// transportCommand picks the primitive that moves current to target.
// Explicit verbs win; toggle is used only when it flips between playing and
// not playing. needed is false when current and target are both not playing
// and only toggle is available.
func transportCommand(caps provider.Capabilities, current, target provider.PlaybackState) (provider.Command, bool, error) {
	var verb provider.Command
	switch target {
	case provider.PlaybackPlaying:
		verb = provider.CommandPlay
	case provider.PlaybackPaused:
		verb = provider.CommandPause
	case provider.PlaybackStopped:
		verb = provider.CommandStop
	default:
		return "", false, ErrInvalidPlayback
	}

	if caps.Supports(verb) {
		return verb, true, nil
	}

	if !caps.Toggle {
		return "", false, ErrUnsupportedCommand
	}

	wantPlaying := target == provider.PlaybackPlaying
	isPlaying := current == provider.PlaybackPlaying
	if wantPlaying == isPlaying {
		return "", false, nil
	}
	return provider.CommandToggle, true, nil
}
