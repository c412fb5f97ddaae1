package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jptaranto/zone-bridge/internal/provider"
	"github.com/jptaranto/zone-bridge/internal/zones"
)

var (
	explicitCaps = provider.Capabilities{Play: true, Pause: true, Stop: true, Toggle: true}
	toggleCaps   = provider.Capabilities{Toggle: true}
)

type dispatcherFixture struct {
	provider   *fakeProvider
	cache      *zones.StateCache
	dispatcher *Dispatcher
	listener   *recordingListener
	zone       zones.Zone
}

func newDispatcherFixture(caps provider.Capabilities, initial provider.Status) *dispatcherFixture {
	fp := newFakeProvider(caps)
	fp.setStatus("z1", initial)
	cache := zones.NewStateCache()
	cache.ApplyStatus("z1", 0, initial)
	listener := &recordingListener{}
	dispatcher := NewDispatcher(fp, cache, nil, quietLogger, time.Second, listener.ZoneStateChanged)
	return &dispatcherFixture{
		provider:   fp,
		cache:      cache,
		dispatcher: dispatcher,
		listener:   listener,
		zone:       zones.Zone{ID: "z1", Endpoint: "http://z1", Name: "Kitchen", Known: true},
	}
}

func TestDispatch_PlaybackSameStateSendsNothing(t *testing.T) {
	f := newDispatcherFixture(explicitCaps, provider.Status{Playback: provider.PlaybackPlaying})

	state, err := f.dispatcher.Dispatch(context.Background(), f.zone, PlaybackIntent(provider.PlaybackPlaying))
	require.NoError(t, err)
	require.Equal(t, provider.PlaybackPlaying, state.Playback)
	require.Empty(t, f.provider.sentCommands())
	require.Zero(t, f.listener.stateCount())
}

func TestDispatch_PlaybackUsesExplicitVerb(t *testing.T) {
	f := newDispatcherFixture(explicitCaps, provider.Status{Playback: provider.PlaybackPaused})

	state, err := f.dispatcher.Dispatch(context.Background(), f.zone, PlaybackIntent(provider.PlaybackPlaying))
	require.NoError(t, err)
	require.Equal(t, provider.PlaybackPlaying, state.Playback)
	require.Equal(t, []provider.Command{provider.CommandPlay}, f.provider.sentCommands())
	require.Equal(t, provider.PlaybackPlaying, f.cache.Get("z1").Playback)
	require.Equal(t, 1, f.listener.stateCount())

	_, err = f.dispatcher.Dispatch(context.Background(), f.zone, PlaybackIntent(provider.PlaybackStopped))
	require.NoError(t, err)
	require.Equal(t, []provider.Command{provider.CommandPlay, provider.CommandStop}, f.provider.sentCommands())
}

func TestDispatch_ToggleOnlyProvider(t *testing.T) {
	f := newDispatcherFixture(toggleCaps, provider.Status{Playback: provider.PlaybackPlaying})

	state, err := f.dispatcher.Dispatch(context.Background(), f.zone, PlaybackIntent(provider.PlaybackPaused))
	require.NoError(t, err)
	require.Equal(t, provider.PlaybackPaused, state.Playback)
	require.Equal(t, []provider.Command{provider.CommandToggle}, f.provider.sentCommands())

	// Paused to stopped needs no toggle; both are "not playing".
	state, err = f.dispatcher.Dispatch(context.Background(), f.zone, PlaybackIntent(provider.PlaybackStopped))
	require.NoError(t, err)
	require.Equal(t, provider.PlaybackPaused, state.Playback)
	require.Len(t, f.provider.sentCommands(), 1)

	state, err = f.dispatcher.Dispatch(context.Background(), f.zone, PlaybackIntent(provider.PlaybackPlaying))
	require.NoError(t, err)
	require.Equal(t, provider.PlaybackPlaying, state.Playback)
	require.Len(t, f.provider.sentCommands(), 2)
}

func TestDispatch_NoTransportPrimitives(t *testing.T) {
	f := newDispatcherFixture(provider.Capabilities{}, provider.Status{Playback: provider.PlaybackStopped})

	_, err := f.dispatcher.Dispatch(context.Background(), f.zone, PlaybackIntent(provider.PlaybackPlaying))
	require.ErrorIs(t, err, ErrUnsupportedCommand)
	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	require.Equal(t, "z1", cmdErr.ZoneID)
}

func TestDispatch_InvalidPlaybackTarget(t *testing.T) {
	f := newDispatcherFixture(explicitCaps, provider.Status{})

	_, err := f.dispatcher.Dispatch(context.Background(), f.zone, PlaybackIntent("LOUD"))
	require.ErrorIs(t, err, ErrInvalidPlayback)
}

func TestDispatch_FailureLeavesCacheUnchanged(t *testing.T) {
	f := newDispatcherFixture(explicitCaps, provider.Status{Playback: provider.PlaybackPaused, Volume: 20})
	before := f.cache.Get("z1")
	f.provider.commandErr = &provider.TransportError{URL: "http://z1", Err: errors.New("connection refused")}

	state, err := f.dispatcher.Dispatch(context.Background(), f.zone, PlaybackIntent(provider.PlaybackPlaying))
	require.Error(t, err)
	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	require.Equal(t, provider.KindTransport, cmdErr.Kind)
	require.Equal(t, string(IntentPlayback), cmdErr.Op)
	require.Equal(t, before, state)
	require.Equal(t, before, f.cache.Get("z1"))

	_, err = f.dispatcher.Dispatch(context.Background(), f.zone, VolumeIntent(80))
	require.Error(t, err)
	require.Equal(t, 20, f.cache.Get("z1").Volume)
	require.Zero(t, f.listener.stateCount())
}

func TestDispatch_VolumeIsRoundedAndClamped(t *testing.T) {
	f := newDispatcherFixture(explicitCaps, provider.Status{Volume: 10})

	state, err := f.dispatcher.Dispatch(context.Background(), f.zone, VolumeIntent(42.6))
	require.NoError(t, err)
	require.Equal(t, 43, state.Volume)

	state, err = f.dispatcher.Dispatch(context.Background(), f.zone, VolumeIntent(150))
	require.NoError(t, err)
	require.Equal(t, 100, state.Volume)

	state, err = f.dispatcher.Dispatch(context.Background(), f.zone, VolumeIntent(-3))
	require.NoError(t, err)
	require.Equal(t, 0, state.Volume)

	require.Equal(t, []int{43, 100, 0}, f.provider.volumes)
}

func TestDispatch_Mute(t *testing.T) {
	f := newDispatcherFixture(explicitCaps, provider.Status{})

	state, err := f.dispatcher.Dispatch(context.Background(), f.zone, MuteIntent(true))
	require.NoError(t, err)
	require.True(t, state.Muted)
	require.True(t, f.cache.Get("z1").Muted)
}

func TestDispatch_ZoneBusy(t *testing.T) {
	fp := newFakeProvider(explicitCaps)
	cache := zones.NewStateCache()
	lock := zones.NewLock(quietLogger)
	dispatcher := NewDispatcher(fp, cache, lock, quietLogger, time.Second, nil)
	dispatcher.lockTimeout = 20 * time.Millisecond

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = lock.WithLock(context.Background(), "z1", time.Second, func() error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	require.True(t, dispatcher.Busy("z1"))
	require.False(t, dispatcher.Busy("z2"))

	_, err := dispatcher.Dispatch(context.Background(), zones.Zone{ID: "z1"}, MuteIntent(true))
	require.ErrorIs(t, err, zones.ErrLockTimeout)
	require.Empty(t, fp.mutes)

	close(release)
	<-done
	require.False(t, dispatcher.Busy("z1"))
}

func TestDispatch_ConcurrentToggleSendsOnce(t *testing.T) {
	for _, initial := range []provider.PlaybackState{provider.PlaybackStopped, provider.PlaybackPaused} {
		t.Run(string(initial), func(t *testing.T) {
			f := newDispatcherFixture(toggleCaps, provider.Status{Playback: initial})

			var wg sync.WaitGroup
			errs := make(chan error, 32)
			for i := 0; i < 32; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := f.dispatcher.Dispatch(context.Background(), f.zone, PlaybackIntent(provider.PlaybackPlaying))
					errs <- err
				}()
			}
			wg.Wait()
			close(errs)

			for err := range errs {
				require.NoError(t, err)
			}
			require.Equal(t, []provider.Command{provider.CommandToggle}, f.provider.sentCommands())
			require.Equal(t, provider.PlaybackPlaying, f.cache.Get("z1").Playback)
		})
	}
}

func TestTransportCommand(t *testing.T) {
	cases := []struct {
		name    string
		caps    provider.Capabilities
		current provider.PlaybackState
		target  provider.PlaybackState
		command provider.Command
		needed  bool
		err     error
	}{
		{"explicit play", explicitCaps, provider.PlaybackStopped, provider.PlaybackPlaying, provider.CommandPlay, true, nil},
		{"explicit pause", explicitCaps, provider.PlaybackPlaying, provider.PlaybackPaused, provider.CommandPause, true, nil},
		{"toggle to play", toggleCaps, provider.PlaybackStopped, provider.PlaybackPlaying, provider.CommandToggle, true, nil},
		{"toggle to stop", toggleCaps, provider.PlaybackPlaying, provider.PlaybackStopped, provider.CommandToggle, true, nil},
		{"toggle not needed", toggleCaps, provider.PlaybackPaused, provider.PlaybackStopped, "", false, nil},
		{"nothing available", provider.Capabilities{}, provider.PlaybackPaused, provider.PlaybackPlaying, "", false, ErrUnsupportedCommand},
		{"invalid target", explicitCaps, provider.PlaybackPaused, "BOGUS", "", false, ErrInvalidPlayback},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			command, needed, err := transportCommand(tc.caps, tc.current, tc.target)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.command, command)
			require.Equal(t, tc.needed, needed)
		})
	}
}
