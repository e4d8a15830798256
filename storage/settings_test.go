package storage

import (
	"errors"
	"testing"
)

func TestSettingsOperations(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.GetSetting("grab.path"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing key, got %v", err)
	}

	if err := store.SetSetting("grab.path", "/tmp/a.txt"); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}
	if err := store.SetSetting("grab.path", "/tmp/b.txt"); err != nil {
		t.Fatalf("SetSetting overwrite failed: %v", err)
	}

	value, err := store.GetSetting("grab.path")
	if err != nil {
		t.Fatalf("GetSetting failed: %v", err)
	}
	if value != "/tmp/b.txt" {
		t.Fatalf("unexpected setting value %q", value)
	}

	if err := store.DeleteSetting("grab.path"); err != nil {
		t.Fatalf("DeleteSetting failed: %v", err)
	}
	if err := store.DeleteSetting("grab.path"); err != nil {
		t.Fatalf("DeleteSetting absent key failed: %v", err)
	}
	if _, err := store.GetSetting("grab.path"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
