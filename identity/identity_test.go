package identity

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	appcrypto "myshare/crypto"
)

func testPaths(t *testing.T) Paths {
	t.Helper()

	dir := t.TempDir()
	return Paths{
		DeviceIDPath:   filepath.Join(dir, "device_id.txt"),
		PrivateKeyPath: filepath.Join(dir, "keys", "ed25519_private.pem"),
		PublicKeyPath:  filepath.Join(dir, "keys", "ed25519_public.pem"),
		TLSCertPath:    filepath.Join(dir, "tls", "cert.pem"),
		TLSKeyPath:     filepath.Join(dir, "tls", "key.pem"),
	}
}

func TestLoadOrCreateIsStableAcrossRuns(t *testing.T) {
	paths := testPaths(t)

	first, err := LoadOrCreate(paths)
	if err != nil {
		t.Fatalf("first LoadOrCreate failed: %v", err)
	}
	if _, err := uuid.Parse(first.DeviceID); err != nil {
		t.Fatalf("device id is not a UUID: %q", first.DeviceID)
	}
	if first.TLSCertificate.Leaf.Subject.CommonName != first.DeviceID {
		t.Fatalf("expected certificate CN %q, got %q", first.DeviceID, first.TLSCertificate.Leaf.Subject.CommonName)
	}

	second, err := LoadOrCreate(paths)
	if err != nil {
		t.Fatalf("second LoadOrCreate failed: %v", err)
	}
	if first.DeviceID != second.DeviceID {
		t.Fatalf("device id changed across runs: %q -> %q", first.DeviceID, second.DeviceID)
	}
	if !bytes.Equal(first.PublicKey, second.PublicKey) {
		t.Fatalf("public key changed across runs")
	}
	if first.Fingerprint() != second.Fingerprint() {
		t.Fatalf("fingerprint changed across runs")
	}
	if !bytes.Equal(first.TLSCertificate.Certificate[0], second.TLSCertificate.Certificate[0]) {
		t.Fatalf("TLS certificate changed across runs")
	}
}

func TestFingerprintMatchesPublicKeyPEM(t *testing.T) {
	id, err := LoadOrCreate(testPaths(t))
	if err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}

	parsed, err := appcrypto.ParsePublicKeyPEM(id.PublicKeyPEM())
	if err != nil {
		t.Fatalf("ParsePublicKeyPEM failed: %v", err)
	}
	if !bytes.Equal(parsed, id.PublicKey) {
		t.Fatalf("PEM does not round trip to the identity public key")
	}
	if id.Fingerprint() != appcrypto.KeyFingerprint(parsed) {
		t.Fatalf("fingerprint mismatch for parsed key")
	}
	if cfg := id.TLSConfig(); len(cfg.Certificates) != 1 || cfg.MinVersion == 0 {
		t.Fatalf("unexpected TLS config: %+v", cfg)
	}
}

func TestLoadOrCreateRejectsCorruptMaterial(t *testing.T) {
	paths := testPaths(t)
	if _, err := LoadOrCreate(paths); err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}

	if err := os.WriteFile(paths.PrivateKeyPath, []byte("garbage"), 0o600); err != nil {
		t.Fatalf("corrupt private key: %v", err)
	}
	if _, err := LoadOrCreate(paths); !errors.Is(err, ErrStorage) {
		t.Fatalf("expected ErrStorage for corrupt key, got %v", err)
	}
}

func TestLoadOrCreateRejectsCorruptDeviceID(t *testing.T) {
	paths := testPaths(t)
	if err := os.WriteFile(paths.DeviceIDPath, []byte("not-a-uuid"), 0o600); err != nil {
		t.Fatalf("write device id: %v", err)
	}

	if _, err := LoadOrCreate(paths); !errors.Is(err, ErrStorage) {
		t.Fatalf("expected ErrStorage for corrupt device id, got %v", err)
	}
}
