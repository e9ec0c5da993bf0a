package snapshot

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const fileExt = ".json"

// FileStore is a Store backed by one JSON file per key under a base
// directory. Key segments become path segments, so the runs of one document
// share a directory:
//
//	<base>/ledger/<documentID>/<runID>.json
//
// Writes are atomic: the value lands in a sibling .tmp file first and is
// renamed into place, so readers never observe a torn snapshot.
type FileStore struct {
	basePath string
}

// NewFileStore creates a file store rooted at basePath, creating the
// directory if needed.
func NewFileStore(basePath string) (*FileStore, error) {
	if basePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		basePath = filepath.Join(home, ".local", "share", "takeoffd", "snapshots")
	}
	if err := os.MkdirAll(basePath, 0o700); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	return &FileStore{basePath: basePath}, nil
}

// BasePath returns the root directory of the store.
func (s *FileStore) BasePath() string { return s.basePath }

// pathFor maps a key to its file, rejecting segments that could escape the
// base directory.
func (s *FileStore) pathFor(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	segments := strings.Split(key, ":")
	for _, seg := range segments {
		if err := ValidateID(seg); err != nil {
			return "", fmt.Errorf("key %q: %w", key, err)
		}
	}
	return filepath.Join(s.basePath, filepath.Join(segments...)) + fileExt, nil
}

// Get implements Store.
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.pathFor(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", key, err)
	}
	return data, nil
}

// Set implements Store with a write-then-rename so a crash mid-write leaves
// either the old value or the new one, never a partial file.
func (s *FileStore) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, value, 0o600); err != nil {
		return fmt.Errorf("write snapshot %s: %w", key, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("commit snapshot %s: %w", key, err)
	}
	return nil
}

// Delete implements Store.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.pathFor(key)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return fmt.Errorf("delete snapshot %s: %w", key, err)
	}
	return nil
}

// List implements Store by walking the tree and mapping files back to keys.
func (s *FileStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var keys []string
	err := filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() || !strings.HasSuffix(path, fileExt) {
			return nil
		}
		rel, err := filepath.Rel(s.basePath, strings.TrimSuffix(path, fileExt))
		if err != nil {
			return err
		}
		key := strings.Join(strings.Split(rel, string(filepath.Separator)), ":")
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

var _ Store = (*FileStore)(nil)
