// Package identity owns the long-lived device identity: a UUID device id, an
// Ed25519 signing keypair and a self-signed TLS certificate, all persisted in
// the data directory and reused across runs.
package identity

import (
	"crypto/ed25519"
	"crypto/tls"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"myshare/config"
	appcrypto "myshare/crypto"
)

// ErrStorage reports identity material that could not be read, parsed or written.
var ErrStorage = errors.New("identity: storage failure")

// Paths lists the files that make up a persisted identity.
type Paths struct {
	DeviceIDPath   string
	PrivateKeyPath string
	PublicKeyPath  string
	TLSCertPath    string
	TLSKeyPath     string
}

// PathsFromConfig maps the configured file locations.
func PathsFromConfig(cfg *config.DeviceConfig) Paths {
	return Paths{
		DeviceIDPath:   cfg.DeviceIDPath,
		PrivateKeyPath: cfg.SigningPrivateKeyPath,
		PublicKeyPath:  cfg.SigningPublicKeyPath,
		TLSCertPath:    cfg.TLSCertPath,
		TLSKeyPath:     cfg.TLSKeyPath,
	}
}

// Identity is the local device's id and key material.
type Identity struct {
	DeviceID       string
	PrivateKey     ed25519.PrivateKey
	PublicKey      ed25519.PublicKey
	TLSCertificate tls.Certificate

	publicKeyPEM []byte
}

// LoadOrCreate loads the identity from paths, generating any missing piece.
// Existing but unreadable or corrupt material fails with ErrStorage.
func LoadOrCreate(paths Paths) (*Identity, error) {
	for _, p := range []string{paths.DeviceIDPath, paths.PrivateKeyPath, paths.PublicKeyPath, paths.TLSCertPath, paths.TLSKeyPath} {
		if strings.TrimSpace(p) == "" {
			return nil, fmt.Errorf("%w: identity path is empty", ErrStorage)
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
			return nil, fmt.Errorf("%w: create directory for %s: %v", ErrStorage, p, err)
		}
	}

	deviceID, err := ensureDeviceID(paths.DeviceIDPath)
	if err != nil {
		return nil, err
	}

	privateKey, publicKey, err := appcrypto.EnsureEd25519KeyPair(paths.PrivateKeyPath, paths.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("%w: signing keypair: %v", ErrStorage, err)
	}

	certificate, err := appcrypto.EnsureTLSCertificate(paths.TLSCertPath, paths.TLSKeyPath, deviceID)
	if err != nil {
		return nil, fmt.Errorf("%w: tls certificate: %v", ErrStorage, err)
	}

	publicKeyPEM, err := appcrypto.MarshalPublicKeyPEM(publicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: encode public key: %v", ErrStorage, err)
	}

	return &Identity{
		DeviceID:       deviceID,
		PrivateKey:     privateKey,
		PublicKey:      publicKey,
		TLSCertificate: certificate,
		publicKeyPEM:   publicKeyPEM,
	}, nil
}

// Fingerprint returns the hex SHA-256 of the PEM-encoded public key.
func (i *Identity) Fingerprint() string {
	return appcrypto.KeyFingerprint(i.PublicKey)
}

// SSHFingerprint returns the public key fingerprint in OpenSSH display form.
func (i *Identity) SSHFingerprint() string {
	return appcrypto.SSHFingerprint(i.PublicKey)
}

// PublicKeyPEM returns a copy of the PEM-encoded public key.
func (i *Identity) PublicKeyPEM() []byte {
	return append([]byte(nil), i.publicKeyPEM...)
}

// TLSConfig returns a server configuration presenting the persisted certificate.
func (i *Identity) TLSConfig() *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{i.TLSCertificate},
		MinVersion:   tls.VersionTLS12,
	}
}

func ensureDeviceID(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(raw))
		if _, parseErr := uuid.Parse(id); parseErr != nil {
			return "", fmt.Errorf("%w: device id in %s: %v", ErrStorage, path, parseErr)
		}
		return id, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: read device id: %v", ErrStorage, err)
	}

	id := uuid.NewString()
	if err := os.WriteFile(path, []byte(id), 0o600); err != nil {
		return "", fmt.Errorf("%w: write device id: %v", ErrStorage, err)
	}
	return id, nil
}
