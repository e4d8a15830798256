package storage

import (
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dataDir := t.TempDir()
	store, _, err := Open(dataDir)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close test store: %v", err)
		}
	})

	return store
}

func mustSaveTrustedPeer(t *testing.T, store *Store, deviceID, name, fingerprint string) *KeyRotationEvent {
	t.Helper()

	rotation, err := store.SaveTrustedPeer(TrustedPeer{
		DeviceID:       deviceID,
		DeviceName:     name,
		PublicKeyPEM:   "pem-" + fingerprint,
		KeyFingerprint: fingerprint,
	})
	if err != nil {
		t.Fatalf("save trusted peer %q: %v", deviceID, err)
	}
	return rotation
}
