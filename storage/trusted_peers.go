package storage

import (
	"database/sql"
	"errors"
	"fmt"
)

const trustedPeerColumns = `device_id,
			device_name,
			public_key_pem,
			key_fingerprint,
			added_at,
			updated_at`

// SaveTrustedPeer inserts or overwrites a pinned peer. When an existing row is
// replaced with a different key, a trusted key-rotation event is written in the
// same transaction and returned.
func (s *Store) SaveTrustedPeer(peer TrustedPeer) (*KeyRotationEvent, error) {
	if peer.DeviceID == "" {
		return nil, errors.New("device_id is required")
	}
	if peer.DeviceName == "" {
		return nil, errors.New("device_name is required")
	}
	if peer.PublicKeyPEM == "" {
		return nil, errors.New("public_key_pem is required")
	}
	if peer.KeyFingerprint == "" {
		return nil, errors.New("key_fingerprint is required")
	}
	now := nowUnixMilli()
	if peer.AddedAt == 0 {
		peer.AddedAt = now
	}
	peer.UpdatedAt = now

	var rotation *KeyRotationEvent
	err := s.withTx("save trusted peer", func(tx *sql.Tx) error {
		existing, err := scanTrustedPeer(tx.QueryRow(
			`SELECT `+trustedPeerColumns+` FROM trusted_peers WHERE device_id = ?`,
			peer.DeviceID,
		))
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("get trusted peer %q: %w", peer.DeviceID, err)
		default:
			peer.AddedAt = existing.AddedAt
			if existing.KeyFingerprint != peer.KeyFingerprint {
				rotation = &KeyRotationEvent{
					PeerDeviceID:      peer.DeviceID,
					OldKeyFingerprint: existing.KeyFingerprint,
					NewKeyFingerprint: peer.KeyFingerprint,
					Decision:          KeyRotationDecisionTrusted,
					Timestamp:         now,
				}
				if err := insertKeyRotationEvent(tx, rotation); err != nil {
					return err
				}
			}
		}

		_, err = tx.Exec(
			`INSERT INTO trusted_peers (`+trustedPeerColumns+`) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(device_id) DO UPDATE SET
				device_name = excluded.device_name,
				public_key_pem = excluded.public_key_pem,
				key_fingerprint = excluded.key_fingerprint,
				updated_at = excluded.updated_at`,
			peer.DeviceID,
			peer.DeviceName,
			peer.PublicKeyPEM,
			peer.KeyFingerprint,
			peer.AddedAt,
			peer.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert trusted peer %q: %w", peer.DeviceID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return rotation, nil
}

// GetTrustedPeer fetches one pinned peer by device ID.
func (s *Store) GetTrustedPeer(deviceID string) (*TrustedPeer, error) {
	peer, err := scanTrustedPeer(s.db.QueryRow(
		`SELECT `+trustedPeerColumns+` FROM trusted_peers WHERE device_id = ?`,
		deviceID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get trusted peer %q: %w", deviceID, err)
	}
	return peer, nil
}

// ListTrustedPeers returns all pinned peers sorted by name.
func (s *Store) ListTrustedPeers() ([]TrustedPeer, error) {
	rows, err := s.db.Query(
		`SELECT ` + trustedPeerColumns + ` FROM trusted_peers ORDER BY device_name, device_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list trusted peers: %w", err)
	}
	defer rows.Close()

	peers := make([]TrustedPeer, 0)
	for rows.Next() {
		peer, err := scanTrustedPeer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trusted peer row: %w", err)
		}
		peers = append(peers, *peer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trusted peer rows: %w", err)
	}

	return peers, nil
}

// DeleteTrustedPeer removes one pinned peer.
func (s *Store) DeleteTrustedPeer(deviceID string) error {
	if deviceID == "" {
		return errors.New("device_id is required")
	}

	res, err := s.db.Exec(`DELETE FROM trusted_peers WHERE device_id = ?`, deviceID)
	if err != nil {
		return fmt.Errorf("delete trusted peer %q: %w", deviceID, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read rows affected for delete trusted peer %q: %w", deviceID, err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// ClearTrustedPeers removes every pinned peer and returns how many were dropped.
func (s *Store) ClearTrustedPeers() (int64, error) {
	var removed int64
	err := s.withTx("clear trusted peers", func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM trusted_peers`)
		if err != nil {
			return fmt.Errorf("clear trusted peers: %w", err)
		}
		removed, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("read rows affected for clear trusted peers: %w", err)
		}
		return nil
	})
	return removed, err
}

// RecordKeyRotationEvent persists one trusted/rejected key-change decision.
func (s *Store) RecordKeyRotationEvent(event KeyRotationEvent) error {
	return s.withTx("record key rotation", func(tx *sql.Tx) error {
		return insertKeyRotationEvent(tx, &event)
	})
}

// GetRecentKeyRotationEvents returns key-rotation history for one peer, newest first.
func (s *Store) GetRecentKeyRotationEvents(peerDeviceID string, limit int) ([]KeyRotationEvent, error) {
	if peerDeviceID == "" {
		return nil, errors.New("peer_device_id is required")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(
		`SELECT
			id,
			peer_device_id,
			old_key_fingerprint,
			new_key_fingerprint,
			decision,
			timestamp
		FROM key_rotation_events
		WHERE peer_device_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`,
		peerDeviceID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get key rotation events for peer %q: %w", peerDeviceID, err)
	}
	defer rows.Close()

	events := make([]KeyRotationEvent, 0)
	for rows.Next() {
		var event KeyRotationEvent
		if err := rows.Scan(
			&event.ID,
			&event.PeerDeviceID,
			&event.OldKeyFingerprint,
			&event.NewKeyFingerprint,
			&event.Decision,
			&event.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan key rotation event row: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate key rotation event rows: %w", err)
	}

	return events, nil
}

func insertKeyRotationEvent(tx *sql.Tx, event *KeyRotationEvent) error {
	if event.PeerDeviceID == "" {
		return errors.New("peer_device_id is required")
	}
	if event.OldKeyFingerprint == "" {
		return errors.New("old_key_fingerprint is required")
	}
	if event.NewKeyFingerprint == "" {
		return errors.New("new_key_fingerprint is required")
	}
	if err := validateKeyRotationDecision(event.Decision); err != nil {
		return err
	}
	if event.Timestamp == 0 {
		event.Timestamp = nowUnixMilli()
	}

	res, err := tx.Exec(
		`INSERT INTO key_rotation_events (
			peer_device_id,
			old_key_fingerprint,
			new_key_fingerprint,
			decision,
			timestamp
		) VALUES (?, ?, ?, ?, ?)`,
		event.PeerDeviceID,
		event.OldKeyFingerprint,
		event.NewKeyFingerprint,
		event.Decision,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert key rotation event for peer %q: %w", event.PeerDeviceID, err)
	}
	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}
	return nil
}

func scanTrustedPeer(row scanner) (*TrustedPeer, error) {
	var peer TrustedPeer
	if err := row.Scan(
		&peer.DeviceID,
		&peer.DeviceName,
		&peer.PublicKeyPEM,
		&peer.KeyFingerprint,
		&peer.AddedAt,
		&peer.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &peer, nil
}
