package bridge

import (
	"context"
	"sync"

	"github.com/jptaranto/zone-bridge/internal/provider"
	"github.com/jptaranto/zone-bridge/internal/zones"
)

// fakeProvider is an in-memory provider that tracks every call.
type fakeProvider struct {
	mu       sync.Mutex
	caps     provider.Capabilities
	records  []provider.ZoneRecord
	statuses map[string]provider.Status

	listErr    error
	listErrs   []error
	fetchErr   error
	commandErr error

	// fetchGate, when set, blocks FetchState until it is closed.
	fetchGate chan struct{}
	// fetchStarted receives one value per FetchState call when set.
	fetchStarted chan struct{}

	listCalls  int
	fetchCalls int
	commands   []provider.Command
	volumes    []int
	mutes      []bool
}

func newFakeProvider(caps provider.Capabilities) *fakeProvider {
	return &fakeProvider{caps: caps, statuses: make(map[string]provider.Status)}
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Capabilities() provider.Capabilities { return f.caps }

func (f *fakeProvider) ListZones(ctx context.Context) ([]provider.ZoneRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if len(f.listErrs) > 0 {
		err := f.listErrs[0]
		f.listErrs = f.listErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]provider.ZoneRecord(nil), f.records...), nil
}

func (f *fakeProvider) FetchState(ctx context.Context, zone provider.ZoneRef) (provider.Status, error) {
	f.mu.Lock()
	f.fetchCalls++
	gate := f.fetchGate
	started := f.fetchStarted
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return provider.Status{}, &provider.TransportError{URL: zone.ID, Err: ctx.Err()}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return provider.Status{}, f.fetchErr
	}
	return f.statuses[zone.ID], nil
}

func (f *fakeProvider) SendTransport(ctx context.Context, zone provider.ZoneRef, command provider.Command) (provider.Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, command)
	if f.commandErr != nil {
		return provider.Ack{}, f.commandErr
	}

	status := f.statuses[zone.ID]
	switch command {
	case provider.CommandPlay:
		status.Playback = provider.PlaybackPlaying
	case provider.CommandPause:
		status.Playback = provider.PlaybackPaused
	case provider.CommandStop:
		status.Playback = provider.PlaybackStopped
	case provider.CommandToggle:
		if status.Playback == provider.PlaybackPlaying {
			status.Playback = provider.PlaybackPaused
		} else {
			status.Playback = provider.PlaybackPlaying
		}
	}
	f.statuses[zone.ID] = status
	playback := status.Playback
	return provider.Ack{Playback: &playback}, nil
}

func (f *fakeProvider) SetVolume(ctx context.Context, zone provider.ZoneRef, volume int) (provider.Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volumes = append(f.volumes, volume)
	if f.commandErr != nil {
		return provider.Ack{}, f.commandErr
	}
	status := f.statuses[zone.ID]
	status.Volume = volume
	f.statuses[zone.ID] = status
	return provider.Ack{}, nil
}

func (f *fakeProvider) SetMute(ctx context.Context, zone provider.ZoneRef, muted bool) (provider.Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutes = append(f.mutes, muted)
	if f.commandErr != nil {
		return provider.Ack{}, f.commandErr
	}
	status := f.statuses[zone.ID]
	status.Muted = muted
	f.statuses[zone.ID] = status
	return provider.Ack{Muted: &muted}, nil
}

func (f *fakeProvider) setStatus(zoneID string, status provider.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[zoneID] = status
}

func (f *fakeProvider) setFetchErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErr = err
}

func (f *fakeProvider) sentCommands() []provider.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]provider.Command(nil), f.commands...)
}

func (f *fakeProvider) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls
}

func (f *fakeProvider) listCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

// recordingListener captures listener callbacks.
type recordingListener struct {
	mu      sync.Mutex
	states  []zones.ZoneState
	changes []zones.Changes
}

func (l *recordingListener) ZoneStateChanged(zone zones.Zone, state zones.ZoneState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, state)
}

func (l *recordingListener) ZonesChanged(all []zones.Zone, changes zones.Changes) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.changes = append(l.changes, changes)
}

func (l *recordingListener) stateCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.states)
}
