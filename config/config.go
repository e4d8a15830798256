package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
)

const (
	// AppDirectoryName is the per-user application data directory name.
	AppDirectoryName = "myshare"
	// DataDirEnv overrides the resolved data directory when set.
	DataDirEnv = "MYSHARE_DATA_DIR"
	// DefaultListeningPort is the HTTPS port used in fixed port mode.
	DefaultListeningPort = 8080
	// PortModeAutomatic picks an available port at launch.
	PortModeAutomatic = "automatic"
	// PortModeFixed uses the configured listening port value.
	PortModeFixed = "fixed"
	// DefaultTimestampWindowSeconds bounds accepted auth token clock skew.
	DefaultTimestampWindowSeconds = 300
	// DefaultDiscoveryTimeoutSeconds bounds one mDNS browse.
	DefaultDiscoveryTimeoutSeconds = 5
	// SinkLocal writes received files to the incoming directory only.
	SinkLocal = "local"
	// SinkS3 also mirrors received files to an S3 bucket.
	SinkS3 = "s3"

	configFileName = "config.json"
)

// DeviceConfig contains persistent local-device settings.
type DeviceConfig struct {
	DeviceName              string `json:"device_name"`
	PortMode                string `json:"port_mode"`
	ListeningPort           int    `json:"listening_port"`
	DeviceIDPath            string `json:"device_id_path"`
	SigningPrivateKeyPath   string `json:"signing_private_key_path"`
	SigningPublicKeyPath    string `json:"signing_public_key_path"`
	TLSCertPath             string `json:"tls_cert_path"`
	TLSKeyPath              string `json:"tls_key_path"`
	IncomingDir             string `json:"incoming_dir"`
	TimestampWindowSeconds  int    `json:"timestamp_window_seconds"`
	DiscoveryTimeoutSeconds int    `json:"discovery_timeout_seconds"`
	PersistNonces           bool   `json:"persist_nonces"`
	Sink                    string `json:"sink"`
	S3Bucket                string `json:"s3_bucket,omitempty"`
	S3Region                string `json:"s3_region,omitempty"`
	KeyFingerprint          string `json:"key_fingerprint"`
}

// ResolveDataDir returns the OS-aware app data directory.
//
// If MYSHARE_DATA_DIR is set, its value is used as an explicit override.
func ResolveDataDir() (string, error) {
	if override := os.Getenv(DataDirEnv); override != "" {
		return override, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	switch runtime.GOOS {
	case "windows":
		base := os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(base, AppDirectoryName), nil
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", AppDirectoryName), nil
	default:
		base := os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			base = filepath.Join(home, ".config")
		}
		return filepath.Join(base, AppDirectoryName), nil
	}
}

// ConfigPath returns the full path to config.json for a data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, configFileName)
}

// EnsureDataDirectories creates the app data directory layout if needed.
func EnsureDataDirectories(dataDir string) error {
	dirs := []string{
		dataDir,
		filepath.Join(dataDir, "keys"),
		filepath.Join(dataDir, "tls"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}

	return nil
}

// Load reads and unmarshals config.json from disk.
func Load(path string) (*DeviceConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg DeviceConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// Save marshals and writes config.json to disk.
func Save(path string, cfg *DeviceConfig) error {
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	raw = append(raw, '\n')
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// LoadOrCreate ensures directories and config exist, then returns both.
func LoadOrCreate() (*DeviceConfig, string, error) {
	dataDir, err := ResolveDataDir()
	if err != nil {
		return nil, "", err
	}
	if err := EnsureDataDirectories(dataDir); err != nil {
		return nil, "", err
	}

	cfgPath := ConfigPath(dataDir)
	cfg, err := Load(cfgPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, "", err
		}

		cfg = &DeviceConfig{}
		normalizeDefaults(cfg, dataDir)
		if err := Save(cfgPath, cfg); err != nil {
			return nil, "", err
		}

		return cfg, cfgPath, nil
	}

	if normalizeDefaults(cfg, dataDir) {
		if err := Save(cfgPath, cfg); err != nil {
			return nil, "", err
		}
	}

	return cfg, cfgPath, nil
}

// ListenAddress returns the host:port the transfer server should bind.
func (c *DeviceConfig) ListenAddress() string {
	if c.PortMode == PortModeFixed && c.ListeningPort > 0 {
		return fmt.Sprintf(":%d", c.ListeningPort)
	}
	return ":0"
}

// defaultIncomingDir keeps received files inside an overridden data dir so
// isolated profiles never share ~/Downloads.
func defaultIncomingDir(dataDir string) string {
	if os.Getenv(DataDirEnv) != "" {
		return filepath.Join(dataDir, "incoming")
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(dataDir, "incoming")
	}
	return filepath.Join(home, "Downloads", "MyShare", "Incoming")
}

func defaultDeviceName() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "MyShare Device"
}

func normalizeDefaults(cfg *DeviceConfig, dataDir string) bool {
	updated := false
	keysDir := filepath.Join(dataDir, "keys")
	tlsDir := filepath.Join(dataDir, "tls")

	setPath := func(field *string, value string) {
		if *field == "" {
			*field = value
			updated = true
		}
	}

	if cfg.DeviceName == "" {
		cfg.DeviceName = defaultDeviceName()
		updated = true
	}

	mode := normalizePortMode(cfg.PortMode)
	if mode == "" {
		if cfg.ListeningPort > 0 {
			mode = PortModeFixed
		} else {
			mode = PortModeAutomatic
		}
	}
	if cfg.PortMode != mode {
		cfg.PortMode = mode
		updated = true
	}
	if cfg.PortMode == PortModeFixed && cfg.ListeningPort == 0 {
		cfg.ListeningPort = DefaultListeningPort
		updated = true
	}
	if cfg.PortMode == PortModeAutomatic && cfg.ListeningPort < 0 {
		cfg.ListeningPort = 0
		updated = true
	}

	setPath(&cfg.DeviceIDPath, filepath.Join(dataDir, "device_id.txt"))
	setPath(&cfg.SigningPrivateKeyPath, filepath.Join(keysDir, "ed25519_private.pem"))
	setPath(&cfg.SigningPublicKeyPath, filepath.Join(keysDir, "ed25519_public.pem"))
	setPath(&cfg.TLSCertPath, filepath.Join(tlsDir, "cert.pem"))
	setPath(&cfg.TLSKeyPath, filepath.Join(tlsDir, "key.pem"))
	setPath(&cfg.IncomingDir, defaultIncomingDir(dataDir))

	if cfg.TimestampWindowSeconds <= 0 {
		cfg.TimestampWindowSeconds = DefaultTimestampWindowSeconds
		updated = true
	}
	if cfg.DiscoveryTimeoutSeconds <= 0 {
		cfg.DiscoveryTimeoutSeconds = DefaultDiscoveryTimeoutSeconds
		updated = true
	}
	if cfg.Sink != SinkLocal && cfg.Sink != SinkS3 {
		cfg.Sink = SinkLocal
		updated = true
	}

	return updated
}

func normalizePortMode(mode string) string {
	switch mode {
	case PortModeAutomatic:
		return PortModeAutomatic
	case PortModeFixed:
		return PortModeFixed
	default:
		return ""
	}
}
