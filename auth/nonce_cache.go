package auth

import (
	"errors"
	"sync"

	"myshare/storage"
)

// NonceStore tracks consumed nonces. Consume must check and insert atomically.
type NonceStore interface {
	Seen(nonce string) (bool, error)
	Consume(nonce string, timestamp int64) (bool, error)
	Evict(cutoff int64) (int64, error)
}

// MemoryNonceCache is a process-lifetime nonce set keyed by token timestamp.
type MemoryNonceCache struct {
	mu      sync.Mutex
	entries map[string]int64
}

// NewMemoryNonceCache returns an empty cache.
func NewMemoryNonceCache() *MemoryNonceCache {
	return &MemoryNonceCache{entries: make(map[string]int64)}
}

// Seen reports whether nonce has been consumed.
func (c *MemoryNonceCache) Seen(nonce string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[nonce]
	return ok, nil
}

// Consume records nonce, returning false if it was already present.
func (c *MemoryNonceCache) Consume(nonce string, timestamp int64) (bool, error) {
	if nonce == "" {
		return false, errors.New("nonce is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[nonce]; ok {
		return false, nil
	}
	c.entries[nonce] = timestamp
	return true, nil
}

// Evict drops entries whose timestamp is before cutoff.
func (c *MemoryNonceCache) Evict(cutoff int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed int64
	for nonce, timestamp := range c.entries {
		if timestamp < cutoff {
			delete(c.entries, nonce)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of tracked nonces.
func (c *MemoryNonceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// PersistentNonceStore keeps consumed nonces in SQLite so replay protection
// survives restarts.
type PersistentNonceStore struct {
	store *storage.Store
}

// NewPersistentNonceStore wraps an open storage.Store.
func NewPersistentNonceStore(store *storage.Store) *PersistentNonceStore {
	return &PersistentNonceStore{store: store}
}

// Seen reports whether nonce has been consumed.
func (p *PersistentNonceStore) Seen(nonce string) (bool, error) {
	return p.store.HasNonce(nonce)
}

// Consume records nonce, returning false if it was already present.
func (p *PersistentNonceStore) Consume(nonce string, timestamp int64) (bool, error) {
	return p.store.ConsumeNonce(nonce, timestamp)
}

// Evict drops entries whose timestamp is before cutoff.
func (p *PersistentNonceStore) Evict(cutoff int64) (int64, error) {
	return p.store.PruneNonces(cutoff)
}
