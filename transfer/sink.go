package transfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Sink persists accepted uploads and returns where they ended up.
type Sink interface {
	Store(ctx context.Context, filename string, content []byte) (string, error)
}

// DirSink writes files into one directory. A file is staged under a temporary
// name and renamed into place, so readers never observe a partial write.
// An existing file with the same name is replaced.
type DirSink struct {
	Dir string
}

// NewDirSink returns a DirSink rooted at dir.
func NewDirSink(dir string) *DirSink {
	return &DirSink{Dir: dir}
}

// Store writes content to Dir/filename. filename must already be sanitized.
func (d *DirSink) Store(_ context.Context, filename string, content []byte) (string, error) {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create incoming directory: %w", err)
	}

	finalPath := filepath.Join(d.Dir, filename)
	temp, err := os.CreateTemp(d.Dir, "."+filename+".*.part")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tempPath := temp.Name()
	cleanup := func() {
		_ = temp.Close()
		_ = os.Remove(tempPath)
	}

	if _, err := temp.Write(content); err != nil {
		cleanup()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := temp.Sync(); err != nil {
		cleanup()
		return "", fmt.Errorf("sync temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tempPath, 0o644); err != nil {
		_ = os.Remove(tempPath)
		return "", fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		_ = os.Remove(tempPath)
		return "", fmt.Errorf("finalize received file: %w", err)
	}

	return finalPath, nil
}
