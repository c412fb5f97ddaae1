package bridge

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jptaranto/zone-bridge/internal/provider"
	"github.com/jptaranto/zone-bridge/internal/zones"
)

var quietLogger = log.New(io.Discard, "", 0)

type pollerFixture struct {
	provider *fakeProvider
	registry *zones.Registry
	cache    *zones.StateCache
	poller   *Poller
	listener *recordingListener
	zone     zones.Zone
}

func newPollerFixture(t *testing.T, interval time.Duration) *pollerFixture {
	t.Helper()
	fp := newFakeProvider(provider.Capabilities{Play: true, Pause: true, Stop: true})
	registry := zones.NewRegistry()
	all, _ := registry.Reconcile([]provider.ZoneRecord{{ID: "z1", Host: "http://z1", Name: "Kitchen"}})
	cache := zones.NewStateCache()
	listener := &recordingListener{}
	poller := NewPoller(fp, registry, cache, quietLogger, interval, time.Second, listener.ZoneStateChanged)
	t.Cleanup(poller.StopAll)
	return &pollerFixture{provider: fp, registry: registry, cache: cache, poller: poller, listener: listener, zone: all[0]}
}

func TestPoller_RefreshUpdatesCache(t *testing.T) {
	f := newPollerFixture(t, time.Hour)
	f.provider.setStatus("z1", provider.Status{Playback: provider.PlaybackPlaying, Volume: 35})

	state := f.poller.Refresh(context.Background(), f.zone)
	require.Equal(t, provider.PlaybackPlaying, state.Playback)
	require.Equal(t, 35, state.Volume)
	require.False(t, state.Stale)
	require.Equal(t, state, f.cache.Get("z1"))
	require.Equal(t, 1, f.listener.stateCount())

	// Unchanged values do not notify again.
	f.poller.Refresh(context.Background(), f.zone)
	require.Equal(t, 1, f.listener.stateCount())
}

func TestPoller_FailureKeepsLastValuesAndMarksStale(t *testing.T) {
	f := newPollerFixture(t, time.Hour)
	f.provider.setStatus("z1", provider.Status{Playback: provider.PlaybackPaused, Volume: 40, Muted: true})
	f.poller.Refresh(context.Background(), f.zone)

	f.provider.setFetchErr(&provider.TransportError{URL: "http://z1", Err: errors.New("connection refused")})
	state := f.poller.Refresh(context.Background(), f.zone)
	require.True(t, state.Stale)
	require.Equal(t, provider.PlaybackPaused, state.Playback)
	require.Equal(t, 40, state.Volume)
	require.True(t, state.Muted)

	f.provider.setFetchErr(nil)
	state = f.poller.Refresh(context.Background(), f.zone)
	require.False(t, state.Stale)
}

func TestPoller_FailureBeforeFirstSuccessReportsDefaults(t *testing.T) {
	f := newPollerFixture(t, time.Hour)
	f.provider.setFetchErr(&provider.ParseError{URL: "http://z1", Err: errors.New("bad json")})

	state := f.poller.Refresh(context.Background(), f.zone)
	require.Equal(t, zones.DefaultState().Playback, state.Playback)
	require.Equal(t, 0, state.Volume)
	require.True(t, state.Stale)
}

func TestPoller_ConcurrentRefreshesShareOneFetch(t *testing.T) {
	f := newPollerFixture(t, time.Hour)
	f.provider.setStatus("z1", provider.Status{Playback: provider.PlaybackPlaying, Volume: 12})
	gate := make(chan struct{})
	started := make(chan struct{}, 4)
	f.provider.fetchGate = gate
	f.provider.fetchStarted = started

	results := make([]zones.ZoneState, 3)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0] = f.poller.Refresh(context.Background(), f.zone)
	}()
	<-started

	for i := 1; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.poller.Refresh(context.Background(), f.zone)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	require.Equal(t, 1, f.provider.fetchCount())
	for _, state := range results {
		require.Equal(t, provider.PlaybackPlaying, state.Playback)
		require.Equal(t, 12, state.Volume)
	}
}

func TestPoller_WaiterReturnsCachedStateWhenCancelled(t *testing.T) {
	f := newPollerFixture(t, time.Hour)
	gate := make(chan struct{})
	started := make(chan struct{}, 2)
	f.provider.fetchGate = gate
	f.provider.fetchStarted = started
	defer close(gate)

	go f.poller.Refresh(context.Background(), f.zone)
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	state := f.poller.Refresh(ctx, f.zone)
	require.True(t, state.Stale)
	require.Equal(t, 1, f.provider.fetchCount())
}

func TestPoller_CommandDuringPollWins(t *testing.T) {
	f := newPollerFixture(t, time.Hour)
	f.provider.setStatus("z1", provider.Status{Playback: provider.PlaybackStopped})
	gate := make(chan struct{})
	started := make(chan struct{}, 1)
	f.provider.fetchGate = gate
	f.provider.fetchStarted = started

	done := make(chan zones.ZoneState)
	go func() { done <- f.poller.Refresh(context.Background(), f.zone) }()
	<-started

	playing := provider.PlaybackPlaying
	f.cache.ApplyAck("z1", provider.Ack{Playback: &playing})
	close(gate)

	state := <-done
	require.Equal(t, provider.PlaybackPlaying, state.Playback)
	require.Equal(t, provider.PlaybackPlaying, f.cache.Get("z1").Playback)
}

func TestPoller_StartZonePollsUntilStopped(t *testing.T) {
	f := newPollerFixture(t, 10*time.Millisecond)
	f.provider.setStatus("z1", provider.Status{Playback: provider.PlaybackPlaying})

	f.poller.StartZone("z1")
	f.poller.StartZone("z1")
	require.Equal(t, []string{"z1"}, f.poller.Running())

	require.Eventually(t, func() bool {
		return f.provider.fetchCount() >= 3
	}, time.Second, 5*time.Millisecond)

	f.poller.StopZone("z1")
	require.Empty(t, f.poller.Running())
	count := f.provider.fetchCount()
	time.Sleep(40 * time.Millisecond)
	require.Equal(t, count, f.provider.fetchCount())
}

func TestPoller_FailingZoneDoesNotAffectOthers(t *testing.T) {
	f := newPollerFixture(t, 10*time.Millisecond)
	all, _ := f.registry.Reconcile([]provider.ZoneRecord{
		{ID: "z1", Host: "http://z1", Name: "Kitchen"},
		{ID: "z2", Host: "http://z2", Name: "Office"},
	})
	require.Len(t, all, 2)

	failing := &zoneFailingProvider{fakeProvider: f.provider, failZone: "z1"}
	poller := NewPoller(failing, f.registry, f.cache, quietLogger, 10*time.Millisecond, time.Second, nil)
	t.Cleanup(poller.StopAll)
	f.provider.setStatus("z2", provider.Status{Playback: provider.PlaybackPlaying, Volume: 70})

	poller.StartZone("z1")
	poller.StartZone("z2")

	require.Eventually(t, func() bool {
		state := f.cache.Get("z2")
		return !state.Stale && state.Volume == 70
	}, time.Second, 5*time.Millisecond)
	require.True(t, f.cache.Get("z1").Stale)
}

type zoneFailingProvider struct {
	*fakeProvider
	failZone string
}

func (p *zoneFailingProvider) FetchState(ctx context.Context, zone provider.ZoneRef) (provider.Status, error) {
	if zone.ID == p.failZone {
		return provider.Status{}, &provider.HTTPError{URL: zone.Endpoint, StatusCode: 500}
	}
	return p.fakeProvider.FetchState(ctx, zone)
}
