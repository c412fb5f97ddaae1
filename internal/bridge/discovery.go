package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jptaranto/zone-bridge/internal/provider"
)

type discoveryResult struct {
	zones      int
	durationMs int64
	err        error
}

// discoveryRunner lists zones from the provider. Concurrent passes are
// coalesced: late callers wait for the running pass and share its result.
type discoveryRunner struct {
	service *Service

	mu       sync.Mutex
	inFlight bool
	waiters  []chan discoveryResult

	statusMu      sync.RWMutex
	lastSuccess   time.Time
	lastError     error
	scheduler     *cron.Cron
	schedulerSpec string
}

func newDiscoveryRunner(service *Service) *discoveryRunner {
	return &discoveryRunner{service: service}
}

func (runner *discoveryRunner) run(ctx context.Context) discoveryResult {
	runner.mu.Lock()
	if runner.inFlight {
		ch := make(chan discoveryResult, 1)
		runner.waiters = append(runner.waiters, ch)
		runner.mu.Unlock()
		select {
		case result := <-ch:
			return result
		case <-ctx.Done():
			return discoveryResult{err: ctx.Err()}
		}
	}
	runner.inFlight = true
	runner.mu.Unlock()

	result := runner.discover(ctx)

	runner.mu.Lock()
	waiters := runner.waiters
	runner.waiters = nil
	runner.inFlight = false
	runner.mu.Unlock()

	for _, ch := range waiters {
		ch <- result
		close(ch)
	}
	return result
}

func (runner *discoveryRunner) discover(ctx context.Context) discoveryResult {
	service := runner.service
	start := time.Now()

	records, err := runner.listWithRetry(ctx)
	if err != nil {
		// A failed listing says nothing about which zones exist; leave the
		// registry alone instead of marking everything stale.
		runner.record(time.Time{}, err)
		return discoveryResult{err: err, durationMs: time.Since(start).Milliseconds()}
	}

	records = append(records, service.opts.StaticZones...)
	all := service.applyRecords(records)

	known := 0
	for _, zone := range all {
		if zone.Known {
			known++
		}
	}
	runner.record(time.Now(), nil)

	return discoveryResult{
		zones:      known,
		durationMs: time.Since(start).Milliseconds(),
	}
}

// listWithRetry retries transport failures with exponential backoff.
// HTTP and parse failures are returned immediately.
func (runner *discoveryRunner) listWithRetry(ctx context.Context) ([]provider.ZoneRecord, error) {
	service := runner.service
	backoff := service.opts.DiscoveryBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt <= service.opts.DiscoveryRetries; attempt++ {
		if attempt > 0 {
			wait := backoff * time.Duration(1<<(attempt-1))
			service.logger.Printf("[DISCOVERY] attempt %d/%d failed: %v, retrying in %s",
				attempt, service.opts.DiscoveryRetries+1, lastErr, wait)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, lastErr
			}
		}

		callCtx := ctx
		cancel := func() {}
		if service.opts.RequestTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, service.opts.RequestTimeout)
		}
		records, err := service.provider.ListZones(callCtx)
		cancel()
		if err == nil {
			return records, nil
		}
		lastErr = err
		if !provider.Retryable(err) {
			break
		}
	}
	return nil, lastErr
}

func (runner *discoveryRunner) record(success time.Time, err error) {
	runner.statusMu.Lock()
	defer runner.statusMu.Unlock()
	runner.lastError = err
	if !success.IsZero() {
		runner.lastSuccess = success
	}
}

func (runner *discoveryRunner) last() (time.Time, error) {
	runner.statusMu.RLock()
	defer runner.statusMu.RUnlock()
	return runner.lastSuccess, runner.lastError
}

// schedule starts the cron-driven rediscovery.
func (runner *discoveryRunner) schedule(spec string) error {
	if spec == "" {
		return fmt.Errorf("no discovery schedule configured")
	}

	scheduler := cron.New()
	_, err := scheduler.AddFunc(spec, func() {
		ctx, cancel := runner.service.discoveryContext()
		defer cancel()
		if _, err := runner.service.Rescan(ctx); err != nil {
			runner.service.logger.Printf("Periodic discovery failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid discovery schedule %q: %w", spec, err)
	}

	runner.statusMu.Lock()
	runner.scheduler = scheduler
	runner.schedulerSpec = spec
	runner.statusMu.Unlock()

	runner.service.logger.Printf("Starting periodic discovery schedule=%s", spec)
	scheduler.Start()
	return nil
}

func (runner *discoveryRunner) stop() {
	runner.statusMu.Lock()
	scheduler := runner.scheduler
	runner.scheduler = nil
	runner.statusMu.Unlock()

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
}
