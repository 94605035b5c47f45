package accessibility

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrDocumentNotFound is returned by a Backend when a key does not exist
var ErrDocumentNotFound = errors.New("accessibility document not found")

// Backend persists accessibility documents as opaque blobs
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Store(ctx context.Context, key string, data []byte) error
	Keys(ctx context.Context) ([]string, error)
}

// FileBackend stores documents as files in a directory
type FileBackend struct {
	Dir string
}

// NewFileBackend returns a FileBackend rooted at dir, creating it if needed
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileBackend{Dir: dir}, nil
}

// Load reads the document stored under key
func (b *FileBackend) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(b.Dir, filepath.Base(key)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrDocumentNotFound
	}
	return data, err
}

// Store writes the document under key, replacing it atomically
func (b *FileBackend) Store(ctx context.Context, key string, data []byte) error {
	tmp, err := os.CreateTemp(b.Dir, ".tmp-"+filepath.Base(key))
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(b.Dir, filepath.Base(key)))
}

// Keys lists the stored documents
func (b *FileBackend) Keys(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(b.Dir)
	if err != nil {
		return nil, err
	}
	keys := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "access_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		keys = append(keys, name)
	}
	sort.Strings(keys)
	return keys, nil
}
