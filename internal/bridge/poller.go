package bridge

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/jptaranto/zone-bridge/internal/provider"
	"github.com/jptaranto/zone-bridge/internal/zones"
)

// DefaultPollInterval is the nominal refresh period per zone.
const DefaultPollInterval = 3 * time.Second

type refreshCall struct {
	done  chan struct{}
	state zones.ZoneState
}

type pollTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Poller keeps cached zone state fresh. Each zone gets its own recurring
// task; refreshes for one zone never overlap.
type Poller struct {
	provider provider.Provider
	registry *zones.Registry
	cache    *zones.StateCache
	logger   *log.Logger
	interval time.Duration
	timeout  time.Duration
	notify   func(zones.Zone, zones.ZoneState)

	baseCtx    context.Context
	baseCancel context.CancelFunc

	inflightMu sync.Mutex
	inflight   map[string]*refreshCall

	tasksMu sync.Mutex
	tasks   map[string]*pollTask
}

// NewPoller creates a poller. notify is called whenever a refresh changes a
// zone's values or staleness; it may be nil.
func NewPoller(
	p provider.Provider,
	registry *zones.Registry,
	cache *zones.StateCache,
	logger *log.Logger,
	interval time.Duration,
	timeout time.Duration,
	notify func(zones.Zone, zones.ZoneState),
) *Poller {
	if logger == nil {
		logger = log.Default()
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if notify == nil {
		notify = func(zones.Zone, zones.ZoneState) {}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		provider:   p,
		registry:   registry,
		cache:      cache,
		logger:     logger,
		interval:   interval,
		timeout:    timeout,
		notify:     notify,
		baseCtx:    ctx,
		baseCancel: cancel,
		inflight:   make(map[string]*refreshCall),
		tasks:      make(map[string]*pollTask),
	}
}

// Refresh reads the zone's live state and updates the cache.
// If a refresh for the zone is already running, Refresh waits for it and
// returns its result instead of starting another one. Provider failures are
// absorbed: the previous values are kept and flagged stale.
func (p *Poller) Refresh(ctx context.Context, zone zones.Zone) zones.ZoneState {
	p.inflightMu.Lock()
	if call, ok := p.inflight[zone.ID]; ok {
		p.inflightMu.Unlock()
		select {
		case <-call.done:
			return call.state
		case <-ctx.Done():
			return p.cache.Get(zone.ID)
		}
	}
	call := &refreshCall{done: make(chan struct{})}
	p.inflight[zone.ID] = call
	p.inflightMu.Unlock()

	call.state = p.refresh(zone)

	p.inflightMu.Lock()
	delete(p.inflight, zone.ID)
	p.inflightMu.Unlock()
	close(call.done)

	return call.state
}

// refresh is detached from the caller's context: other callers may be
// waiting on its result.
func (p *Poller) refresh(zone zones.Zone) zones.ZoneState {
	generation := p.cache.Generation(zone.ID)

	ctx := p.baseCtx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	status, err := p.provider.FetchState(ctx, zone.Ref())
	if err != nil {
		state, flipped := p.cache.MarkStale(zone.ID, generation)
		if flipped {
			p.logger.Printf("[POLL] zone %s (%s) unreachable, serving stale state: %v", zone.ID, zone.Name, err)
			p.notify(zone, state)
		}
		return state
	}

	state, applied, changed := p.cache.ApplyStatus(zone.ID, generation, status)
	if !applied {
		p.logger.Printf("[POLL] zone %s result discarded, a command updated it during the poll", zone.ID)
		return state
	}
	if changed {
		p.notify(zone, state)
	}
	return state
}

// StartZone begins the recurring refresh task for a zone. It is a no-op if
// the task is already running.
func (p *Poller) StartZone(zoneID string) {
	p.tasksMu.Lock()
	defer p.tasksMu.Unlock()

	if _, running := p.tasks[zoneID]; running {
		return
	}
	if p.baseCtx.Err() != nil {
		return
	}

	ctx, cancel := context.WithCancel(p.baseCtx)
	task := &pollTask{cancel: cancel, done: make(chan struct{})}
	p.tasks[zoneID] = task

	go func() {
		defer close(task.done)
		p.run(ctx, zoneID)
	}()
}

// StopZone cancels the zone's task and waits for it to exit.
func (p *Poller) StopZone(zoneID string) {
	p.tasksMu.Lock()
	task, ok := p.tasks[zoneID]
	delete(p.tasks, zoneID)
	p.tasksMu.Unlock()

	if !ok {
		return
	}
	task.cancel()
	<-task.done
}

// StopAll cancels every task and waits for them to exit.
func (p *Poller) StopAll() {
	p.baseCancel()

	p.tasksMu.Lock()
	tasks := p.tasks
	p.tasks = make(map[string]*pollTask)
	p.tasksMu.Unlock()

	for _, task := range tasks {
		task.cancel()
		<-task.done
	}
}

// Running returns the ids of zones with an active task.
func (p *Poller) Running() []string {
	p.tasksMu.Lock()
	defer p.tasksMu.Unlock()

	ids := make([]string, 0, len(p.tasks))
	for id := range p.tasks {
		ids = append(ids, id)
	}
	return ids
}

func (p *Poller) run(ctx context.Context, zoneID string) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.tick(ctx, zoneID)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx, zoneID)
		}
	}
}

func (p *Poller) tick(ctx context.Context, zoneID string) {
	// Endpoint and name may change between discovery passes.
	zone, ok := p.registry.Get(zoneID)
	if !ok {
		return
	}
	p.Refresh(ctx, zone)
}
