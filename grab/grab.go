// Package grab remembers one local file staged for the next send.
package grab

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"myshare/storage"
)

const (
	settingPath      = "grab.path"
	settingName      = "grab.name"
	settingGrabbedAt = "grab.grabbed_at"
)

// ErrNothingGrabbed is returned when no file is staged.
var ErrNothingGrabbed = errors.New("no file grabbed")

// Settings is the key/value persistence used for grab state.
type Settings interface {
	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
	DeleteSetting(key string) error
}

// File describes the staged file.
type File struct {
	Path      string
	Name      string
	GrabbedAt time.Time
}

// State reads and writes the staged file through Settings.
type State struct {
	settings Settings
	now      func() time.Time
}

// New returns a State backed by settings.
func New(settings Settings) *State {
	return &State{settings: settings, now: time.Now}
}

// Grab stages path. The file must exist and must not be a directory.
func (s *State) Grab(path string) (*File, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", absPath, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", absPath)
	}

	file := &File{
		Path:      absPath,
		Name:      filepath.Base(absPath),
		GrabbedAt: s.now().UTC(),
	}
	values := [][2]string{
		{settingPath, file.Path},
		{settingName, file.Name},
		{settingGrabbedAt, strconv.FormatInt(file.GrabbedAt.Unix(), 10)},
	}
	for _, kv := range values {
		if err := s.settings.SetSetting(kv[0], kv[1]); err != nil {
			return nil, fmt.Errorf("save grab state: %w", err)
		}
	}
	return file, nil
}

// Grabbed returns the staged file. A staged file that no longer exists on
// disk clears the state and reports ErrNothingGrabbed.
func (s *State) Grabbed() (*File, error) {
	path, err := s.settings.GetSetting(settingPath)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNothingGrabbed
	}
	if err != nil {
		return nil, fmt.Errorf("read grab state: %w", err)
	}

	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat grabbed file: %w", err)
		}
		if err := s.Release(); err != nil {
			return nil, err
		}
		return nil, ErrNothingGrabbed
	}

	file := &File{Path: path, Name: filepath.Base(path)}
	if name, err := s.settings.GetSetting(settingName); err == nil && name != "" {
		file.Name = name
	}
	if raw, err := s.settings.GetSetting(settingGrabbedAt); err == nil {
		if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
			file.GrabbedAt = time.Unix(unix, 0).UTC()
		}
	}
	return file, nil
}

// Release clears the staged file. Releasing with nothing staged is a no-op.
func (s *State) Release() error {
	for _, key := range []string{settingPath, settingName, settingGrabbedAt} {
		if err := s.settings.DeleteSetting(key); err != nil {
			return fmt.Errorf("clear grab state: %w", err)
		}
	}
	return nil
}
