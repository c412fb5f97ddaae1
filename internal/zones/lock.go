package zones

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// ErrLockTimeout is returned when the zone lock could not be acquired in time.
var ErrLockTimeout = errors.New("zone lock timeout")

// DefaultLockTimeout bounds how long a command waits behind another one.
const DefaultLockTimeout = 30 * time.Second

type zoneMutex struct {
	sem chan struct{}
}

// Lock provides per-zone mutual exclusion for commands so two concurrent
// SET requests never interleave their read-compare-write steps.
type Lock struct {
	mu      sync.Mutex
	mutexes map[string]*zoneMutex
	logger  *log.Logger
}

// NewLock creates a Lock.
func NewLock(logger *log.Logger) *Lock {
	if logger == nil {
		logger = log.Default()
	}
	return &Lock{
		mutexes: make(map[string]*zoneMutex),
		logger:  logger,
	}
}

// WithLock runs fn while holding the zone's lock. Acquisition gives up when
// ctx is done or timeout elapses (DefaultLockTimeout when zero).
func (l *Lock) WithLock(ctx context.Context, zoneID string, timeout time.Duration, fn func() error) error {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	zm := l.getOrCreate(zoneID)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case zm.sem <- struct{}{}:
	case <-timer.C:
		l.logger.Printf("[ZONE-LOCK] timeout waiting for zone %s", zoneID)
		return ErrLockTimeout
	case <-ctx.Done():
		return ctx.Err()
	}

	defer func() { <-zm.sem }()

	return fn()
}

// IsLocked reports whether a command currently holds the zone.
func (l *Lock) IsLocked(zoneID string) bool {
	l.mu.Lock()
	zm, exists := l.mutexes[zoneID]
	l.mu.Unlock()
	if !exists {
		return false
	}
	return len(zm.sem) > 0
}

func (l *Lock) getOrCreate(zoneID string) *zoneMutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	zm, exists := l.mutexes[zoneID]
	if !exists {
		zm = &zoneMutex{sem: make(chan struct{}, 1)}
		l.mutexes[zoneID] = zm
	}
	return zm
}
