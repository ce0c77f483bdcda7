package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/book-expert/lesson-audio/internal/core"
	"github.com/book-expert/lesson-audio/internal/fsutil"
)

// ErrInvalidKey is returned for keys that would escape the store directory.
var ErrInvalidKey = errors.New("invalid object key")

// FileStore implements core.ObjectStore on a flat local directory. Each key
// is stored as one file named after the key.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed and returns a store rooted at it.
func NewFileStore(dir string) (*FileStore, error) {
	err := fsutil.EnsureDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to create store directory '%s': %w", dir, err)
	}

	return &FileStore{dir: dir}, nil
}

// Dir returns the root directory of the store.
func (f *FileStore) Dir() string {
	return f.dir
}

// Download reads the object stored under key.
func (f *FileStore) Download(_ context.Context, key string) ([]byte, error) {
	path, err := f.pathFor(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: '%s' in '%s'", core.ErrObjectNotFound, key, f.dir)
		}

		return nil, fmt.Errorf("failed to read object '%s': %w", key, err)
	}

	return data, nil
}

// Upload writes data under key. The write goes through a temp file and a
// rename so a reader never observes a partial object.
func (f *FileStore) Upload(_ context.Context, key string, data []byte) error {
	path, err := f.pathFor(key)
	if err != nil {
		return err
	}

	err = fsutil.WriteFileAtomic(path, data)
	if err != nil {
		return fmt.Errorf("failed to store object '%s': %w", key, err)
	}

	return nil
}

func (f *FileStore) pathFor(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	return filepath.Join(f.dir, key), nil
}
