package persistence

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Filesystem keeps the current state in <dir>/status.cf and history entries
// in <dir>/history.
type Filesystem struct {
	dir string
}

// NewFilesystem returns a backend rooted at dir.
func NewFilesystem(dir string) *Filesystem { return &Filesystem{dir: dir} }

func (f *Filesystem) String() string { return "file://" + f.dir }

// Load implements Backend.
func (f *Filesystem) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(f.dir, currentName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}

	return data, err
}

// Save writes to a temporary file and renames it over the current one.
func (f *Filesystem) Save(_ context.Context, data []byte) error {
	tmp := filepath.Join(f.dir, tempName)
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, filepath.Join(f.dir, currentName)); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}

	return nil
}

// SaveSnapshot implements Backend.
func (f *Filesystem) SaveSnapshot(_ context.Context, timestamp string, data []byte) error {
	dir := filepath.Join(f.dir, historyDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	return os.WriteFile(filepath.Join(dir, historyName(timestamp)), data, 0o644)
}
