package storage

import (
	"testing"
	"time"
)

func TestLogAndQuerySecurityEvents(t *testing.T) {
	store := newTestStore(t)

	now := nowUnixMilli()
	peerID := "peer-security"

	if err := store.LogSecurityEvent(SecurityEvent{
		EventType:    "replayed_nonce",
		PeerDeviceID: &peerID,
		Details:      `{"nonce":"n-1"}`,
		Severity:     SecuritySeverityWarning,
		Timestamp:    now - 1_000,
	}); err != nil {
		t.Fatalf("LogSecurityEvent replay failed: %v", err)
	}
	if err := store.LogSecurityEvent(SecurityEvent{
		EventType:    "invalid_signature",
		PeerDeviceID: &peerID,
		Details:      `{"nonce":"n-2","filename":"a.txt"}`,
		Severity:     SecuritySeverityCritical,
		Timestamp:    now,
	}); err != nil {
		t.Fatalf("LogSecurityEvent signature failed: %v", err)
	}

	all, err := store.GetSecurityEvents(SecurityEventFilter{
		PeerDeviceID: peerID,
		Limit:        10,
	})
	if err != nil {
		t.Fatalf("GetSecurityEvents all failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 security events, got %d", len(all))
	}
	if all[0].EventType != "invalid_signature" {
		t.Fatalf("expected newest event type invalid_signature, got %q", all[0].EventType)
	}
	if all[1].EventType != "replayed_nonce" {
		t.Fatalf("expected older event type replayed_nonce, got %q", all[1].EventType)
	}

	filtered, err := store.GetSecurityEvents(SecurityEventFilter{
		EventType:    "replayed_nonce",
		PeerDeviceID: peerID,
		Severity:     SecuritySeverityWarning,
		Limit:        10,
	})
	if err != nil {
		t.Fatalf("GetSecurityEvents filtered failed: %v", err)
	}
	if len(filtered) != 1 {
		t.Fatalf("expected 1 filtered security event, got %d", len(filtered))
	}
	if filtered[0].Details != `{"nonce":"n-1"}` {
		t.Fatalf("unexpected filtered event details: %q", filtered[0].Details)
	}
}

func TestSecurityEventRetentionPrunesOldRows(t *testing.T) {
	store := newTestStore(t)
	store.SetSecurityEventRetention(1 * time.Second)

	now := nowUnixMilli()

	if err := store.LogSecurityEvent(SecurityEvent{
		EventType: "old_event",
		Details:   `{"state":"old"}`,
		Severity:  SecuritySeverityInfo,
		Timestamp: now - 10_000,
	}); err != nil {
		t.Fatalf("LogSecurityEvent old_event failed: %v", err)
	}
	if err := store.LogSecurityEvent(SecurityEvent{
		EventType: "new_event",
		Details:   `{"state":"new"}`,
		Severity:  SecuritySeverityInfo,
		Timestamp: now,
	}); err != nil {
		t.Fatalf("LogSecurityEvent new_event failed: %v", err)
	}

	events, err := store.GetSecurityEvents(SecurityEventFilter{Limit: 10})
	if err != nil {
		t.Fatalf("GetSecurityEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event after retention prune, got %d", len(events))
	}
	if events[0].EventType != "new_event" {
		t.Fatalf("expected retained event type new_event, got %q", events[0].EventType)
	}
}

func TestRecordSecurityEventEncodesDetails(t *testing.T) {
	store := newTestStore(t)

	if err := store.RecordSecurityEvent("receiver_mismatch", "peer-x", SecuritySeverityWarning, map[string]string{
		"receiver_id": "someone-else",
	}); err != nil {
		t.Fatalf("RecordSecurityEvent failed: %v", err)
	}
	if err := store.RecordSecurityEvent("bad_severity", "", "loud", nil); err == nil {
		t.Fatalf("expected invalid severity to fail")
	}

	events, err := store.GetSecurityEvents(SecurityEventFilter{EventType: "receiver_mismatch"})
	if err != nil {
		t.Fatalf("GetSecurityEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Details != `{"receiver_id":"someone-else"}` {
		t.Fatalf("unexpected details %q", events[0].Details)
	}
	if events[0].PeerDeviceID == nil || *events[0].PeerDeviceID != "peer-x" {
		t.Fatalf("expected peer id peer-x, got %v", events[0].PeerDeviceID)
	}
}
