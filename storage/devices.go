package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const discoveredDeviceColumns = `short_id,
			device_id,
			device_name,
			address,
			port,
			key_fingerprint,
			last_seen`

// RegisterDevice stores a browse result and returns its 4-digit short id.
// A device that is already registered keeps its short id and gets its
// endpoint refreshed; new devices get the next id after the current maximum.
func (s *Store) RegisterDevice(device DiscoveredDevice) (string, error) {
	if device.DeviceID == "" {
		return "", errors.New("device_id is required")
	}
	if strings.TrimSpace(device.Address) == "" {
		return "", errors.New("address is required")
	}
	if device.Port <= 0 {
		return "", errors.New("port must be > 0")
	}
	if device.LastSeen == 0 {
		device.LastSeen = nowUnixMilli()
	}

	var shortID string
	err := s.withTx("register device", func(tx *sql.Tx) error {
		err := tx.QueryRow(
			`SELECT short_id FROM discovered_devices WHERE device_id = ?`,
			device.DeviceID,
		).Scan(&shortID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			var maxID sql.NullInt64
			if err := tx.QueryRow(
				`SELECT MAX(CAST(short_id AS INTEGER)) FROM discovered_devices`,
			).Scan(&maxID); err != nil {
				return fmt.Errorf("read max short id: %w", err)
			}
			shortID = fmt.Sprintf("%04d", maxID.Int64+1)
		case err != nil:
			return fmt.Errorf("lookup device %q: %w", device.DeviceID, err)
		}

		_, err = tx.Exec(
			`INSERT INTO discovered_devices (`+discoveredDeviceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(short_id) DO UPDATE SET
				device_name = excluded.device_name,
				address = excluded.address,
				port = excluded.port,
				key_fingerprint = excluded.key_fingerprint,
				last_seen = excluded.last_seen`,
			shortID,
			device.DeviceID,
			device.DeviceName,
			device.Address,
			device.Port,
			device.KeyFingerprint,
			device.LastSeen,
		)
		if err != nil {
			return fmt.Errorf("upsert device %q: %w", device.DeviceID, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	return shortID, nil
}

// DeviceByShortID resolves a 4-digit short id.
func (s *Store) DeviceByShortID(shortID string) (*DiscoveredDevice, error) {
	return s.getDevice("short_id", shortID)
}

// DeviceByID resolves a full device id.
func (s *Store) DeviceByID(deviceID string) (*DiscoveredDevice, error) {
	return s.getDevice("device_id", deviceID)
}

// ListDevices returns registered devices ordered by short id.
func (s *Store) ListDevices() ([]DiscoveredDevice, error) {
	rows, err := s.db.Query(
		`SELECT ` + discoveredDeviceColumns + ` FROM discovered_devices ORDER BY short_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	devices := make([]DiscoveredDevice, 0)
	for rows.Next() {
		device, err := scanDiscoveredDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device row: %w", err)
		}
		devices = append(devices, *device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate device rows: %w", err)
	}

	return devices, nil
}

// ClearDevices empties the registry.
func (s *Store) ClearDevices() error {
	if _, err := s.db.Exec(`DELETE FROM discovered_devices`); err != nil {
		return fmt.Errorf("clear devices: %w", err)
	}
	return nil
}

func (s *Store) getDevice(column, value string) (*DiscoveredDevice, error) {
	device, err := scanDiscoveredDevice(s.db.QueryRow(
		`SELECT `+discoveredDeviceColumns+` FROM discovered_devices WHERE `+column+` = ?`,
		value,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get device by %s %q: %w", column, value, err)
	}
	return device, nil
}

func scanDiscoveredDevice(row scanner) (*DiscoveredDevice, error) {
	var device DiscoveredDevice
	if err := row.Scan(
		&device.ShortID,
		&device.DeviceID,
		&device.DeviceName,
		&device.Address,
		&device.Port,
		&device.KeyFingerprint,
		&device.LastSeen,
	); err != nil {
		return nil, err
	}
	return &device, nil
}
