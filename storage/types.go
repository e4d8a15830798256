package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound indicates a requested row does not exist.
	ErrNotFound = errors.New("storage: record not found")
)

const (
	// KeyRotationDecisionTrusted means a presented replacement key was accepted.
	KeyRotationDecisionTrusted = "trusted"
	// KeyRotationDecisionRejected means a presented replacement key was rejected.
	KeyRotationDecisionRejected = "rejected"
)

const (
	// SecuritySeverityInfo indicates informational security event context.
	SecuritySeverityInfo = "info"
	// SecuritySeverityWarning indicates potentially suspicious behavior.
	SecuritySeverityWarning = "warning"
	// SecuritySeverityCritical indicates serious security failures.
	SecuritySeverityCritical = "critical"
)

// TrustedPeer is one pinned device identity.
type TrustedPeer struct {
	DeviceID       string
	DeviceName     string
	PublicKeyPEM   string
	KeyFingerprint string
	AddedAt        int64
	UpdatedAt      int64
}

// KeyRotationEvent tracks one trust/reject decision for a peer key change.
type KeyRotationEvent struct {
	ID                int64
	PeerDeviceID      string
	OldKeyFingerprint string
	NewKeyFingerprint string
	Decision          string
	Timestamp         int64
}

// SecurityEvent stores structured security-relevant runtime events.
type SecurityEvent struct {
	ID           int64
	EventType    string
	PeerDeviceID *string
	Details      string
	Severity     string
	Timestamp    int64
}

// SecurityEventFilter narrows GetSecurityEvents query results.
type SecurityEventFilter struct {
	EventType     string
	PeerDeviceID  string
	Severity      string
	FromTimestamp *int64
	ToTimestamp   *int64
	Limit         int
	Offset        int
}

// ReceivedFile records one accepted upload.
type ReceivedFile struct {
	FileID         string
	SenderDeviceID string
	Filename       string
	StoredPath     string
	Filesize       int64
	Checksum       string
	ReceivedAt     int64
}

// DiscoveredDevice is a browse result registered under a short numeric id.
type DiscoveredDevice struct {
	ShortID        string
	DeviceID       string
	DeviceName     string
	Address        string
	Port           int
	KeyFingerprint string
	LastSeen       int64
}

type scanner interface {
	Scan(dest ...any) error
}

func validateKeyRotationDecision(decision string) error {
	switch decision {
	case KeyRotationDecisionTrusted, KeyRotationDecisionRejected:
		return nil
	default:
		return fmt.Errorf("invalid key rotation decision %q", decision)
	}
}

func validateSecuritySeverity(severity string) error {
	switch severity {
	case SecuritySeverityInfo, SecuritySeverityWarning, SecuritySeverityCritical:
		return nil
	default:
		return fmt.Errorf("invalid security event severity %q", severity)
	}
}

func nullString(ptr *string) sql.NullString {
	if ptr == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *ptr, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func nowUnixMilli() int64 {
	return time.Now().UnixMilli()
}
