package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

type pairingEntry struct {
	createdAt time.Time
	requestID string
}

// PairingStore tracks pending pairing codes. Entries expire after the TTL.
type PairingStore struct {
	entries *cache.Cache
	ttl     time.Duration

	// consumeMu makes the lookup and delete in Consume one step.
	consumeMu sync.Mutex
}

// NewPairingStore creates a store whose codes live for ttl and are swept
// every cleanupInterval.
func NewPairingStore(ttl, cleanupInterval time.Duration) *PairingStore {
	return &PairingStore{
		entries: cache.New(ttl, cleanupInterval),
		ttl:     ttl,
	}
}

// Clear wipes all entries from the store.
func (store *PairingStore) Clear() {
	store.entries.Flush()
}

// Len returns the number of live codes.
func (store *PairingStore) Len() int {
	return store.entries.ItemCount()
}

// Create generates and stores a new pairing code.
func (store *PairingStore) Create(requestID string) (string, error) {
	for attempts := 0; attempts < 10; attempts++ {
		code, err := randomPairingCode()
		if err != nil {
			return "", err
		}
		entry := pairingEntry{createdAt: time.Now(), requestID: requestID}
		// Add fails if the code is already pending.
		if err := store.entries.Add(code, entry, store.ttl); err != nil {
			continue
		}
		return code, nil
	}

	return "", fmt.Errorf("unable to generate unique pairing code")
}

// Consume removes a pairing code and reports whether it was pending.
// Expired codes are never returned.
func (store *PairingStore) Consume(code string) bool {
	store.consumeMu.Lock()
	defer store.consumeMu.Unlock()

	if _, ok := store.entries.Get(code); !ok {
		return false
	}
	store.entries.Delete(code)
	return true
}

func randomPairingCode() (string, error) {
	max := big.NewInt(900000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	code := 100000 + n.Int64()
	return fmt.Sprintf("%06d", code), nil
}
