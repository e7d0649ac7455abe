package kvstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/book-expert/voice-installer/internal/core"
	"github.com/book-expert/voice-installer/internal/fsutil"
)

// FileStore implements core.KeyValueStore with one file per key inside a directory.
type FileStore struct {
	dir string
}

// NewFileStore returns a store rooted at dir, creating the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	err := fsutil.EnsureDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare key-value directory: %w", err)
	}

	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(key string) (string, error) {
	err := fsutil.CheckName(key)
	if err != nil {
		return "", fmt.Errorf("invalid key: %w", err)
	}

	return filepath.Join(f.dir, key), nil
}

// Get reads the file holding key.
func (f *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	path, err := f.path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: '%s' in %s", core.ErrKeyNotFound, key, f.dir)
		}

		return nil, fmt.Errorf("failed to read key '%s': %w", key, err)
	}

	return data, nil
}

// Put atomically replaces the file holding key.
func (f *FileStore) Put(_ context.Context, key string, data []byte) error {
	path, err := f.path(key)
	if err != nil {
		return err
	}

	err = fsutil.WriteFileAtomic(path, data)
	if err != nil {
		return fmt.Errorf("failed to write key '%s': %w", key, err)
	}

	return nil
}
