package discovery

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

func TestStartAdvertiserBuildsExpectedTXTRecords(t *testing.T) {
	var (
		gotInstance string
		gotService  string
		gotDomain   string
		gotPort     int
		gotTXT      []string
	)

	cfg := Config{
		SelfDeviceID:   "device-123",
		DeviceName:     "Alice Laptop",
		ListeningPort:  9999,
		KeyFingerprint: "abcd",
		registerFn: func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (*zeroconf.Server, error) {
			gotInstance = instance
			gotService = service
			gotDomain = domain
			gotPort = port
			gotTXT = append([]string(nil), text...)
			return nil, nil
		},
	}

	advertiser, err := StartAdvertiser(cfg)
	if err != nil {
		t.Fatalf("StartAdvertiser failed: %v", err)
	}
	if advertiser == nil {
		t.Fatalf("expected advertiser instance")
	}
	advertiser.Stop()

	if gotInstance != "device-123" {
		t.Fatalf("unexpected instance name: %q", gotInstance)
	}
	if gotService != DefaultService {
		t.Fatalf("unexpected service: %q", gotService)
	}
	if gotDomain != DefaultDomain {
		t.Fatalf("unexpected domain: %q", gotDomain)
	}
	if gotPort != 9999 {
		t.Fatalf("unexpected port: %d", gotPort)
	}

	for _, want := range []string{
		"device_id=device-123",
		"device_name=Alice Laptop",
		"port=9999",
		"pubkey_fingerprint=abcd",
		"version=1",
	} {
		assertContainsTXT(t, gotTXT, want)
	}
}

func TestStartAdvertiserValidatesConfig(t *testing.T) {
	if _, err := StartAdvertiser(Config{DeviceName: "x", ListeningPort: 1}); err == nil {
		t.Fatalf("expected missing device id to fail")
	}
	if _, err := StartAdvertiser(Config{SelfDeviceID: "x", DeviceName: "x"}); err == nil {
		t.Fatalf("expected missing port to fail")
	}
}

func TestBrowseCollectsPeersAndSkipsSelf(t *testing.T) {
	cfg := Config{
		SelfDeviceID: "self",
		ScanTimeout:  50 * time.Millisecond,
		browseFn: func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
			entries <- testEntry("self", "Me", "10.0.0.1", 8080)
			entries <- testEntry("peer-b", "Bravo", "10.0.0.3", 9000)
			entries <- testEntry("peer-a", "Alpha", "10.0.0.2", 8443)
			entries <- testEntry("peer-a", "Alpha", "10.0.0.2", 8443)
			entries <- &zeroconf.ServiceEntry{Text: []string{"garbage"}}
			return nil
		},
	}

	records, err := Browse(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Browse failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d: %+v", len(records), records)
	}
	if records[0].DeviceID != "peer-a" || records[1].DeviceID != "peer-b" {
		t.Fatalf("unexpected order: %+v", records)
	}
	if records[0].Address != "10.0.0.2" || records[0].Port != 8443 || records[0].Fingerprint != "fp-peer-a" {
		t.Fatalf("unexpected record: %+v", records[0])
	}

	found, err := Lookup(records, "peer-b")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if found.DeviceName != "Bravo" {
		t.Fatalf("unexpected lookup result: %+v", found)
	}
	if _, err := Lookup(records, "missing"); !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
}

func TestBrowseReturnsResolverError(t *testing.T) {
	cfg := Config{
		ScanTimeout: time.Second,
		browseFn: func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
			return errors.New("no multicast")
		},
	}
	if _, err := Browse(context.Background(), cfg); err == nil {
		t.Fatalf("expected browse error")
	}
}

func TestParseEntryFallsBackToTXTPort(t *testing.T) {
	entry := testEntry("peer", "", "192.168.0.5", 0)
	entry.Text = append(entry.Text, "port=7000")
	entry.HostName = "peer-host.local."

	record, ok := parseEntry(entry, "self")
	if !ok {
		t.Fatalf("expected entry to parse")
	}
	if record.Port != 7000 {
		t.Fatalf("expected TXT port fallback, got %d", record.Port)
	}
	if record.DeviceName != "peer-host.local." {
		t.Fatalf("expected host name fallback, got %q", record.DeviceName)
	}
}

func testEntry(deviceID, name, ip string, port int) *zeroconf.ServiceEntry {
	entry := zeroconf.NewServiceEntry(deviceID, DefaultService, DefaultDomain)
	entry.Port = port
	entry.AddrIPv4 = []net.IP{net.ParseIP(ip)}
	entry.Text = []string{
		"device_id=" + deviceID,
		"pubkey_fingerprint=fp-" + deviceID,
		"version=1",
	}
	if name != "" {
		entry.Text = append(entry.Text, "device_name="+name)
	}
	return entry
}

func assertContainsTXT(t *testing.T, txt []string, want string) {
	t.Helper()
	for _, entry := range txt {
		if entry == want {
			return
		}
	}
	t.Fatalf("expected TXT record %q in %v", want, txt)
}
