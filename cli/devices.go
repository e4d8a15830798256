package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"myshare/discovery"
	"myshare/storage"
)

var shortIDPattern = regexp.MustCompile(`^\d{4}$`)

// resolveDeviceID maps a 4-digit short id through the registry. Anything else
// is taken as a full device id.
func resolveDeviceID(store *storage.Store, id string) (string, error) {
	if !shortIDPattern.MatchString(id) {
		return id, nil
	}
	device, err := store.DeviceByShortID(id)
	if errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("unknown short id %s, run discover first", id)
	}
	if err != nil {
		return "", err
	}
	return device.DeviceID, nil
}

// registerRecords stores browse results and returns them with their short ids.
func registerRecords(store *storage.Store, records []discovery.DeviceRecord) ([]storage.DiscoveredDevice, error) {
	devices := make([]storage.DiscoveredDevice, 0, len(records))
	for _, record := range records {
		device := storage.DiscoveredDevice{
			DeviceID:       record.DeviceID,
			DeviceName:     record.DeviceName,
			Address:        record.Address,
			Port:           record.Port,
			KeyFingerprint: record.Fingerprint,
		}
		shortID, err := store.RegisterDevice(device)
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", record.DeviceID, err)
		}
		device.ShortID = shortID
		devices = append(devices, device)
	}
	return devices, nil
}

// browseDevices is the network scan used by commands.
var browseDevices = discovery.Browse

// locate finds a device on the network, refreshing the registry. When the
// browse misses the device, its last registered endpoint is used.
func locate(ctx context.Context, e *env, id string) (*storage.DiscoveredDevice, error) {
	deviceID, err := resolveDeviceID(e.store, id)
	if err != nil {
		return nil, err
	}

	records, err := browseDevices(ctx, e.discoveryConfig(0))
	if err != nil {
		slog.Warn("discovery failed, falling back to registry", "error", err)
	} else {
		devices, err := registerRecords(e.store, records)
		if err != nil {
			return nil, err
		}
		if record, err := discovery.Lookup(records, deviceID); err == nil {
			for i := range devices {
				if devices[i].DeviceID == record.DeviceID {
					return &devices[i], nil
				}
			}
		}
	}

	device, err := e.store.DeviceByID(deviceID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", discovery.ErrDeviceNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return device, nil
}
