// Package trust keeps the set of pinned peer public keys.
package trust

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	appcrypto "myshare/crypto"
	"myshare/storage"
)

var (
	// ErrNotTrusted is returned when removing a device that is not in the store.
	ErrNotTrusted = errors.New("trust: device is not trusted")
	// ErrStorage reports persisted trust data that cannot be read or parsed.
	ErrStorage = errors.New("trust: storage failure")
	// ErrKeyConflict is returned by AddIfAbsent when the device is already
	// pinned to a different key.
	ErrKeyConflict = errors.New("trust: device is pinned to a different key")
)

// Backend persists trust entries.
type Backend interface {
	ListTrustedPeers() ([]storage.TrustedPeer, error)
	SaveTrustedPeer(peer storage.TrustedPeer) (*storage.KeyRotationEvent, error)
	DeleteTrustedPeer(deviceID string) error
	ClearTrustedPeers() (int64, error)
}

// Entry is one pinned device.
type Entry struct {
	DeviceID    string
	DeviceName  string
	PublicKey   ed25519.PublicKey
	Fingerprint string
	AddedAt     time.Time
}

// Store is an in-memory snapshot of trusted peers, written through to a Backend.
// Reads never touch the backend. Writes persist first and only then update the
// snapshot, so a failed write leaves both sides unchanged.
type Store struct {
	backend Backend

	mu      sync.RWMutex
	entries map[string]Entry
}

// DefaultDeviceName is the display name used when a peer supplies none.
func DefaultDeviceName(deviceID string) string {
	short := deviceID
	if len(short) > 8 {
		short = short[:8]
	}
	return "device-" + short
}

// Load reads every persisted entry. A row whose key cannot be parsed fails the
// whole load with ErrStorage.
func Load(backend Backend) (*Store, error) {
	if backend == nil {
		return nil, errors.New("trust backend is required")
	}

	peers, err := backend.ListTrustedPeers()
	if err != nil {
		return nil, fmt.Errorf("%w: load trusted peers: %v", ErrStorage, err)
	}

	entries := make(map[string]Entry, len(peers))
	for _, peer := range peers {
		publicKey, err := appcrypto.ParsePublicKeyPEM([]byte(peer.PublicKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("%w: trusted peer %q has an unreadable key: %v", ErrStorage, peer.DeviceID, err)
		}
		entries[peer.DeviceID] = Entry{
			DeviceID:    peer.DeviceID,
			DeviceName:  peer.DeviceName,
			PublicKey:   publicKey,
			Fingerprint: peer.KeyFingerprint,
			AddedAt:     time.UnixMilli(peer.AddedAt),
		}
	}

	return &Store{backend: backend, entries: entries}, nil
}

// Add inserts or overwrites the entry for deviceID.
func (s *Store) Add(deviceID, deviceName string, publicKey ed25519.PublicKey) error {
	deviceID, deviceName, err := normalizeEntry(deviceID, deviceName, publicKey)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(deviceID, deviceName, publicKey)
}

// AddIfAbsent pins publicKey for deviceID only if the device is not pinned
// yet. The check and the write happen under one lock. An existing pin with the
// same key is a no-op; a different key fails with ErrKeyConflict and leaves
// the pin untouched.
func (s *Store) AddIfAbsent(deviceID, deviceName string, publicKey ed25519.PublicKey) error {
	deviceID, deviceName, err := normalizeEntry(deviceID, deviceName, publicKey)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[deviceID]; ok {
		if bytes.Equal(existing.PublicKey, publicKey) {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrKeyConflict, deviceID)
	}
	return s.putLocked(deviceID, deviceName, publicKey)
}

func normalizeEntry(deviceID, deviceName string, publicKey ed25519.PublicKey) (string, string, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return "", "", errors.New("device id is required")
	}
	if len(publicKey) != ed25519.PublicKeySize {
		return "", "", fmt.Errorf("invalid Ed25519 public key length: got %d want %d", len(publicKey), ed25519.PublicKeySize)
	}
	if strings.TrimSpace(deviceName) == "" {
		deviceName = DefaultDeviceName(deviceID)
	}
	return deviceID, deviceName, nil
}

// putLocked persists and then updates the snapshot. Callers hold s.mu.
func (s *Store) putLocked(deviceID, deviceName string, publicKey ed25519.PublicKey) error {
	publicKeyPEM, err := appcrypto.MarshalPublicKeyPEM(publicKey)
	if err != nil {
		return err
	}
	fingerprint := appcrypto.KeyFingerprint(publicKey)

	rotation, err := s.backend.SaveTrustedPeer(storage.TrustedPeer{
		DeviceID:       deviceID,
		DeviceName:     deviceName,
		PublicKeyPEM:   string(publicKeyPEM),
		KeyFingerprint: fingerprint,
	})
	if err != nil {
		return fmt.Errorf("persist trusted peer %q: %w", deviceID, err)
	}
	if rotation != nil {
		slog.Warn("trusted peer key replaced",
			"device_id", deviceID,
			"old_fingerprint", rotation.OldKeyFingerprint,
			"new_fingerprint", rotation.NewKeyFingerprint,
		)
	}

	addedAt := time.Now()
	if existing, ok := s.entries[deviceID]; ok {
		addedAt = existing.AddedAt
	}
	s.entries[deviceID] = Entry{
		DeviceID:    deviceID,
		DeviceName:  deviceName,
		PublicKey:   append(ed25519.PublicKey(nil), publicKey...),
		Fingerprint: fingerprint,
		AddedAt:     addedAt,
	}
	slog.Info("peer trusted", "device_id", deviceID, "device_name", deviceName, "fingerprint", fingerprint)
	return nil
}

// IsTrusted reports whether deviceID is pinned.
func (s *Store) IsTrusted(deviceID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[deviceID]
	return ok
}

// PublicKey returns the pinned key for deviceID.
func (s *Store) PublicKey(deviceID string) (ed25519.PublicKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[deviceID]
	if !ok {
		return nil, false
	}
	return entry.PublicKey, true
}

// Entry returns the full record for deviceID.
func (s *Store) Entry(deviceID string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[deviceID]
	return entry, ok
}

// Remove drops one entry.
func (s *Store) Remove(deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[deviceID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotTrusted, deviceID)
	}
	if err := s.backend.DeleteTrustedPeer(deviceID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("remove trusted peer %q: %w", deviceID, err)
	}
	delete(s.entries, deviceID)
	slog.Info("peer untrusted", "device_id", deviceID)
	return nil
}

// Clear drops every entry.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.backend.ClearTrustedPeers(); err != nil {
		return fmt.Errorf("clear trusted peers: %w", err)
	}
	s.entries = make(map[string]Entry)
	slog.Info("trust store cleared")
	return nil
}

// List returns every entry ordered by name then id.
func (s *Store) List() []Entry {
	s.mu.RLock()
	entries := make([]Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		entries = append(entries, entry)
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].DeviceName != entries[j].DeviceName {
			return entries[i].DeviceName < entries[j].DeviceName
		}
		return entries[i].DeviceID < entries[j].DeviceID
	})
	return entries
}

// Len returns the number of trusted peers.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
