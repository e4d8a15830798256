package grab

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"myshare/storage"
)

func newTestState(t *testing.T) (*State, *storage.Store) {
	t.Helper()

	store, _, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close storage: %v", err)
		}
	})

	state := New(store)
	state.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return state, store
}

func TestGrabAndGrabbed(t *testing.T) {
	state, store := newTestState(t)

	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if _, err := state.Grab(path); err != nil {
		t.Fatalf("Grab failed: %v", err)
	}

	// A fresh State over the same store sees the staged file.
	file, err := New(store).Grabbed()
	if err != nil {
		t.Fatalf("Grabbed failed: %v", err)
	}
	if file.Path != path {
		t.Fatalf("expected path %q, got %q", path, file.Path)
	}
	if file.Name != "notes.txt" {
		t.Fatalf("expected name notes.txt, got %q", file.Name)
	}
	if file.GrabbedAt.Unix() != 1_700_000_000 {
		t.Fatalf("unexpected grab time %v", file.GrabbedAt)
	}
}

func TestGrabRejectsMissingAndDirectories(t *testing.T) {
	state, _ := newTestState(t)

	if _, err := state.Grab(filepath.Join(t.TempDir(), "absent.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
	if _, err := state.Grab(t.TempDir()); err == nil {
		t.Fatalf("expected directory to be rejected")
	}
	if _, err := state.Grabbed(); !errors.Is(err, ErrNothingGrabbed) {
		t.Fatalf("expected ErrNothingGrabbed, got %v", err)
	}
}

func TestGrabbedClearsVanishedFile(t *testing.T) {
	state, store := newTestState(t)

	path := filepath.Join(t.TempDir(), "gone.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := state.Grab(path); err != nil {
		t.Fatalf("Grab failed: %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove file: %v", err)
	}

	if _, err := state.Grabbed(); !errors.Is(err, ErrNothingGrabbed) {
		t.Fatalf("expected ErrNothingGrabbed, got %v", err)
	}
	if _, err := store.GetSetting(settingPath); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected grab state to be cleared, got %v", err)
	}
}

func TestRelease(t *testing.T) {
	state, _ := newTestState(t)

	if err := state.Release(); err != nil {
		t.Fatalf("Release with nothing grabbed failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "a.bin")
	if err := os.WriteFile(path, []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := state.Grab(path); err != nil {
		t.Fatalf("Grab failed: %v", err)
	}
	if err := state.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := state.Grabbed(); !errors.Is(err, ErrNothingGrabbed) {
		t.Fatalf("expected ErrNothingGrabbed after release, got %v", err)
	}
}
