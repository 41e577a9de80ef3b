package artifact

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// FSStore stores artifacts as files under a root directory, one file per
// key. Writes go to a temporary file in the destination directory followed
// by a rename, so concurrent readers never observe partial content.
type FSStore struct {
	root string
}

var _ Store = (*FSStore)(nil)

// NewFSStore creates a filesystem-backed artifact store rooted at dir,
// creating the directory when missing.
func NewFSStore(dir string) (*FSStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: empty root directory", ErrInvalidKey)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FSStore{root: dir}, nil
}

func (s *FSStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	dest := s.pathOf(key)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".put-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dest)
}

func (s *FSStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.pathOf(key))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return data, err
}

func (s *FSStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".put-") {
			return nil
		}
		key := s.keyOf(p)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(keys)
	return keys, nil
}

func (s *FSStore) Delete(ctx context.Context, prefix string) error {
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := os.Remove(s.pathOf(key)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	s.pruneEmptyDirs()
	return nil
}

func (s *FSStore) Close() error {
	return nil
}

func (s *FSStore) pathOf(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *FSStore) keyOf(p string) string {
	rel, err := filepath.Rel(s.root, p)
	if err != nil {
		return ""
	}
	return filepath.ToSlash(rel)
}

// pruneEmptyDirs removes directories left empty by Delete. Best effort:
// a directory that gained a new file since listing simply stays.
func (s *FSStore) pruneEmptyDirs() {
	var dirs []string
	filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err == nil && d.IsDir() && p != s.root {
			dirs = append(dirs, p)
		}
		return nil
	})
	// Deepest first.
	slices.Reverse(dirs)
	for _, dir := range dirs {
		os.Remove(dir)
	}
}
