package zarr

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	// ErrNotFound is returned by Store.Get for absent keys.
	ErrNotFound = errors.New("zarr: key not found")

	// ErrStoreExists is returned when creating a store at an existing path.
	ErrStoreExists = errors.New("zarr: store already exists")
)

// Store is a read-only key/value view of a Zarr hierarchy.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// WritableStore can also write keys.
type WritableStore interface {
	Store
	Set(ctx context.Context, key string, value []byte) error
}

// DirStore keeps one file per key under Root.
type DirStore struct {
	Root string
}

// CreateDirStore creates an empty directory store. It fails with
// ErrStoreExists if anything exists at root.
func CreateDirStore(root string) (*DirStore, error) {
	if _, err := os.Stat(root); err == nil {
		return nil, fmt.Errorf("%s: %w", root, ErrStoreExists)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}
	return &DirStore{Root: root}, nil
}

// OpenDirStore opens an existing directory store.
func OpenDirStore(root string) (*DirStore, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open store: %s is not a directory", root)
	}
	return &DirStore{Root: root}, nil
}

// CleanKey validates a store key and returns it in canonical form. Keys are
// slash separated and may not escape the store root.
func CleanKey(key string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return "", fmt.Errorf("empty key")
	}
	clean := path.Clean(key)
	if clean == ".." || strings.HasPrefix(clean, "../") || path.IsAbs(clean) {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return clean, nil
}

func (s *DirStore) path(key string) (string, error) {
	clean, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.Root, filepath.FromSlash(clean)), nil
}

// Get implements Store.
func (s *DirStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Set implements WritableStore.
func (s *DirStore) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, value, 0o644)
}

// MemStore is an in-memory store.
type MemStore map[string][]byte

// Get implements Store.
func (m MemStore) Get(_ context.Context, key string) ([]byte, error) {
	b, ok := m[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return b, nil
}

// Set implements WritableStore.
func (m MemStore) Set(_ context.Context, key string, value []byte) error {
	m[key] = value
	return nil
}

// Sub returns a view of s rooted at prefix.
func Sub(s Store, prefix string) Store {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return s
	}
	return subStore{parent: s, prefix: prefix}
}

type subStore struct {
	parent Store
	prefix string
}

func (s subStore) Get(ctx context.Context, key string) ([]byte, error) {
	return s.parent.Get(ctx, s.prefix+"/"+key)
}
