package bridge

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/jptaranto/zone-bridge/internal/provider"
	"github.com/jptaranto/zone-bridge/internal/zones"
)

// Options configures the bridge service.
type Options struct {
	PollInterval   time.Duration
	RequestTimeout time.Duration
	// RefreshOnRead makes GetState poll the zone before answering.
	RefreshOnRead bool
	// DiscoverySchedule is a cron spec such as "@every 60s"; empty disables
	// periodic rediscovery.
	DiscoverySchedule string
	DiscoveryRetries  int
	DiscoveryBackoff  time.Duration
	StaticZones       []provider.ZoneRecord
}

// ZoneView pairs a zone with its cached state. Busy is set while a command
// holds the zone.
type ZoneView struct {
	zones.Zone
	State zones.ZoneState `json:"state"`
	Busy  bool            `json:"busy"`
}

// Service is the facade consumed by the accessory layer.
type Service struct {
	provider   provider.Provider
	registry   *zones.Registry
	cache      *zones.StateCache
	poller     *Poller
	dispatcher *Dispatcher
	logger     *log.Logger
	opts       Options

	listenersMu sync.RWMutex
	listeners   []StateListener

	discovery *discoveryRunner

	startMu sync.Mutex
	started bool
	stopped bool
}

// NewService wires registry, cache, poller and dispatcher around p.
func NewService(p provider.Provider, logger *log.Logger, opts Options) *Service {
	if logger == nil {
		logger = log.Default()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.DiscoveryRetries < 0 {
		opts.DiscoveryRetries = 0
	}

	service := &Service{
		provider: p,
		registry: zones.NewRegistry(),
		cache:    zones.NewStateCache(),
		logger:   logger,
		opts:     opts,
	}
	service.poller = NewPoller(p, service.registry, service.cache, logger, opts.PollInterval, opts.RequestTimeout, service.notifyState)
	service.dispatcher = NewDispatcher(p, service.cache, zones.NewLock(logger), logger, opts.RequestTimeout, service.notifyState)
	service.discovery = newDiscoveryRunner(service)
	return service
}

// ProviderName returns the configured provider.
func (service *Service) ProviderName() string {
	return service.provider.Name()
}

// Start runs the first discovery in the background and schedules the
// recurring ones.
func (service *Service) Start() {
	service.startMu.Lock()
	defer service.startMu.Unlock()
	if service.started || service.stopped {
		return
	}
	service.started = true

	if len(service.opts.StaticZones) > 0 {
		service.applyRecords(service.opts.StaticZones)
	}

	go func() {
		ctx, cancel := service.discoveryContext()
		defer cancel()
		if _, err := service.Rescan(ctx); err != nil {
			service.logger.Printf("Initial discovery failed: %v", err)
		}
	}()

	if err := service.discovery.schedule(service.opts.DiscoverySchedule); err != nil {
		service.logger.Printf("Periodic discovery disabled: %v", err)
	}
}

// Stop cancels discovery and every zone poller and waits for them.
func (service *Service) Stop() {
	service.startMu.Lock()
	if service.stopped {
		service.startMu.Unlock()
		return
	}
	service.stopped = true
	service.startMu.Unlock()

	service.discovery.stop()
	service.poller.StopAll()
}

// ListZones returns every zone with its cached state.
func (service *Service) ListZones() []ZoneView {
	all := service.registry.List()
	views := make([]ZoneView, 0, len(all))
	for _, zone := range all {
		views = append(views, ZoneView{
			Zone:  zone,
			State: service.cache.Get(zone.ID),
			Busy:  service.dispatcher.Busy(zone.ID),
		})
	}
	return views
}

// GetZone resolves a zone by provider id or accessory id.
func (service *Service) GetZone(id string) (zones.Zone, error) {
	zone, ok := service.registry.Lookup(id)
	if !ok {
		return zones.Zone{}, ErrZoneNotFound
	}
	return zone, nil
}

// ZoneBusy reports whether a command is in progress for the zone.
func (service *Service) ZoneBusy(id string) bool {
	zone, ok := service.registry.Lookup(id)
	if !ok {
		return false
	}
	return service.dispatcher.Busy(zone.ID)
}

// PollingZones returns the sorted ids of zones with an active poll task.
func (service *Service) PollingZones() []string {
	ids := service.poller.Running()
	sort.Strings(ids)
	return ids
}

// GetState returns the zone's state. With RefreshOnRead the zone is polled
// first (joining any refresh already in flight); failures surface as stale
// state, never as errors.
func (service *Service) GetState(ctx context.Context, id string) (zones.ZoneState, error) {
	zone, err := service.GetZone(id)
	if err != nil {
		return zones.ZoneState{}, err
	}
	if service.opts.RefreshOnRead {
		return service.poller.Refresh(ctx, zone), nil
	}
	return service.cache.Get(zone.ID), nil
}

// SetPlayback requests a playback state. Repeating the current state sends
// nothing to the provider.
func (service *Service) SetPlayback(ctx context.Context, id string, target provider.PlaybackState) (zones.ZoneState, error) {
	return service.dispatch(ctx, id, PlaybackIntent(target))
}

// SetVolume requests a volume; the value is rounded and clamped to [0,100].
func (service *Service) SetVolume(ctx context.Context, id string, volume float64) (zones.ZoneState, error) {
	return service.dispatch(ctx, id, VolumeIntent(volume))
}

// SetMute requests a mute state.
func (service *Service) SetMute(ctx context.Context, id string, muted bool) (zones.ZoneState, error) {
	return service.dispatch(ctx, id, MuteIntent(muted))
}

// Rescan runs a discovery pass now, joining one already in flight.
// Returns the number of known zones.
func (service *Service) Rescan(ctx context.Context) (int, error) {
	result := service.discovery.run(ctx)
	return result.zones, result.err
}

// LastDiscovery returns when discovery last succeeded and the last error.
func (service *Service) LastDiscovery() (time.Time, error) {
	return service.discovery.last()
}

// IsHealthy reports false only when discovery has never produced a zone
// and the last attempt failed.
func (service *Service) IsHealthy() bool {
	_, err := service.discovery.last()
	return err == nil || service.registry.Len() > 0
}

func (service *Service) dispatch(ctx context.Context, id string, intent Intent) (zones.ZoneState, error) {
	zone, err := service.GetZone(id)
	if err != nil {
		return zones.ZoneState{}, err
	}
	return service.dispatcher.Dispatch(ctx, zone, intent)
}

// applyRecords reconciles a listing and keeps pollers in step with it.
func (service *Service) applyRecords(records []provider.ZoneRecord) []zones.Zone {
	all, changes := service.registry.Reconcile(records)

	for _, zone := range changes.Added {
		service.logger.Printf("[DISCOVERY] new zone %s (%s) at %s", zone.ID, zone.Name, zone.Endpoint)
		service.poller.StartZone(zone.ID)
	}
	for _, zone := range changes.Restored {
		service.logger.Printf("[DISCOVERY] zone %s (%s) is back", zone.ID, zone.Name)
		service.poller.StartZone(zone.ID)
	}
	for _, zone := range changes.Renamed {
		service.logger.Printf("[DISCOVERY] zone %s renamed to %s", zone.ID, zone.Name)
	}
	for _, zone := range changes.Removed {
		service.logger.Printf("[DISCOVERY] zone %s (%s) missing from discovery, marking stale", zone.ID, zone.Name)
		service.poller.StopZone(zone.ID)
	}

	service.notifyZones(all, changes)
	return all
}

func (service *Service) discoveryContext() (context.Context, context.CancelFunc) {
	budget := service.opts.RequestTimeout * time.Duration(service.opts.DiscoveryRetries+1)
	if budget <= 0 {
		budget = time.Minute
	}
	budget += service.opts.DiscoveryBackoff * time.Duration(1<<service.opts.DiscoveryRetries)
	return context.WithTimeout(context.Background(), budget)
}
