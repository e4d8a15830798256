package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"
)

// ErrDeviceNotFound is returned by Lookup when no record matches.
var ErrDeviceNotFound = errors.New("discovery: device not found")

// DeviceRecord is one receiver seen on the LAN.
type DeviceRecord struct {
	DeviceID    string
	DeviceName  string
	Address     string
	Port        int
	Fingerprint string
	Version     int
}

// Browse scans for receivers for cfg.ScanTimeout, or until ctx ends, and
// returns them sorted by name. The local device is excluded.
func Browse(ctx context.Context, config Config) ([]DeviceRecord, error) {
	cfg := config.withDefaults()

	browse := cfg.browseFn
	if browse == nil {
		resolver, err := zeroconf.NewResolver(nil)
		if err != nil {
			return nil, fmt.Errorf("create mDNS resolver: %w", err)
		}
		browse = resolver.Browse
	}

	scanCtx, cancel := context.WithTimeout(ctx, cfg.ScanTimeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 32)
	collected := make(map[string]DeviceRecord)
	collectorDone := make(chan struct{})

	collect := func(entry *zeroconf.ServiceEntry) {
		if entry == nil {
			return
		}
		if record, ok := parseEntry(entry, cfg.SelfDeviceID); ok {
			collected[record.DeviceID] = record
		}
	}

	go func() {
		defer close(collectorDone)
		for {
			select {
			case <-scanCtx.Done():
				// Drain whatever arrived before the window closed.
				for {
					select {
					case entry, ok := <-entries:
						if !ok {
							return
						}
						collect(entry)
					default:
						return
					}
				}
			case entry, ok := <-entries:
				if !ok {
					return
				}
				collect(entry)
			}
		}
	}()

	if err := browse(scanCtx, cfg.Service, cfg.Domain, entries); err != nil {
		cancel()
		<-collectorDone
		return nil, fmt.Errorf("browse mDNS: %w", err)
	}

	<-scanCtx.Done()
	<-collectorDone

	// The scan window ending is the normal outcome; only a cancelled parent is an error.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records := make([]DeviceRecord, 0, len(collected))
	for _, record := range collected {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].DeviceName != records[j].DeviceName {
			return records[i].DeviceName < records[j].DeviceName
		}
		return records[i].DeviceID < records[j].DeviceID
	})
	return records, nil
}

// Lookup finds a record by device id.
func Lookup(records []DeviceRecord, deviceID string) (DeviceRecord, error) {
	for _, record := range records {
		if record.DeviceID == deviceID {
			return record, nil
		}
	}
	return DeviceRecord{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
}

func parseEntry(entry *zeroconf.ServiceEntry, selfDeviceID string) (DeviceRecord, bool) {
	txt := txtToMap(entry.Text)

	deviceID := strings.TrimSpace(txt[txtDeviceID])
	if deviceID == "" || deviceID == selfDeviceID {
		return DeviceRecord{}, false
	}

	address := ""
	for _, ip := range entry.AddrIPv4 {
		if ip != nil {
			address = ip.String()
			break
		}
	}
	if address == "" {
		for _, ip := range entry.AddrIPv6 {
			if ip != nil {
				address = ip.String()
				break
			}
		}
	}
	if address == "" {
		return DeviceRecord{}, false
	}

	port := entry.Port
	if port <= 0 {
		if parsed, err := strconv.Atoi(txt[txtPort]); err == nil {
			port = parsed
		}
	}
	if port <= 0 {
		return DeviceRecord{}, false
	}

	version := 0
	if txt[txtVersion] != "" {
		if parsed, err := strconv.Atoi(txt[txtVersion]); err == nil {
			version = parsed
		}
	}

	name := strings.TrimSpace(txt[txtDeviceName])
	if name == "" {
		name = strings.TrimSpace(entry.HostName)
	}
	if name == "" {
		name = deviceID
	}

	return DeviceRecord{
		DeviceID:    deviceID,
		DeviceName:  name,
		Address:     address,
		Port:        port,
		Fingerprint: strings.TrimSpace(txt[txtPubkeyFingerprint]),
		Version:     version,
	}, true
}

func txtToMap(text []string) map[string]string {
	out := make(map[string]string, len(text))
	for _, entry := range text {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		out[key] = strings.TrimSpace(parts[1])
	}
	return out
}
