package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// DefaultService is the mDNS service name without domain suffix.
	DefaultService = "_myshare._tcp"
	// DefaultDomain is the mDNS domain.
	DefaultDomain = "local."
	// DefaultVersion is the TXT record protocol version.
	DefaultVersion = 1
	// DefaultScanTimeout bounds one Browse call.
	DefaultScanTimeout = 5 * time.Second
)

// TXT record keys.
const (
	txtDeviceID          = "device_id"
	txtDeviceName        = "device_name"
	txtPort              = "port"
	txtPubkeyFingerprint = "pubkey_fingerprint"
	txtVersion           = "version"
)

type registerFunc func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (*zeroconf.Server, error)
type browseFunc func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error

// Config controls mDNS advertising and browsing.
type Config struct {
	Service     string
	Domain      string
	Version     int
	ScanTimeout time.Duration

	SelfDeviceID   string
	DeviceName     string
	ListeningPort  int
	KeyFingerprint string

	registerFn registerFunc
	browseFn   browseFunc
}

func (c Config) withDefaults() Config {
	out := c
	if out.Service == "" {
		out.Service = DefaultService
	}
	if out.Domain == "" {
		out.Domain = DefaultDomain
	}
	if out.Version == 0 {
		out.Version = DefaultVersion
	}
	if out.ScanTimeout <= 0 {
		out.ScanTimeout = DefaultScanTimeout
	}
	if out.registerFn == nil {
		out.registerFn = zeroconf.Register
	}
	return out
}

func (c Config) validateForAdvertise() error {
	if strings.TrimSpace(c.SelfDeviceID) == "" {
		return errors.New("self device ID is required")
	}
	if strings.TrimSpace(c.DeviceName) == "" {
		return errors.New("device name is required")
	}
	if c.ListeningPort <= 0 {
		return errors.New("listening port must be > 0")
	}
	return nil
}

func (c Config) txtRecords() []string {
	return []string{
		txtDeviceID + "=" + c.SelfDeviceID,
		txtDeviceName + "=" + c.DeviceName,
		txtPort + "=" + strconv.Itoa(c.ListeningPort),
		txtPubkeyFingerprint + "=" + c.KeyFingerprint,
		txtVersion + "=" + strconv.Itoa(c.Version),
	}
}

// Advertiser publishes the local receiver on the LAN.
type Advertiser struct {
	server *zeroconf.Server
}

// StartAdvertiser registers the service instance, named after the device id.
func StartAdvertiser(config Config) (*Advertiser, error) {
	cfg := config.withDefaults()
	if err := cfg.validateForAdvertise(); err != nil {
		return nil, err
	}

	server, err := cfg.registerFn(cfg.SelfDeviceID, cfg.Service, cfg.Domain, cfg.ListeningPort, cfg.txtRecords(), nil)
	if err != nil {
		return nil, fmt.Errorf("register mDNS service: %w", err)
	}

	return &Advertiser{server: server}, nil
}

// Stop withdraws the advertisement.
func (a *Advertiser) Stop() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
}
