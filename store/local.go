package store

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore persists artifacts under a base directory on the local
// filesystem. Containers are real directories.
type LocalStore struct {
	base string
}

// NewLocalStore creates the base directory if needed and returns the store.
func NewLocalStore(base string) (*LocalStore, error) {
	if base == "" {
		return nil, fmt.Errorf("base directory cannot be empty")
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("create base directory %q: %w", base, err)
	}
	return &LocalStore{base: base}, nil
}

// PutObject writes data to base/path, creating parent directories.
func (s *LocalStore) PutObject(ctx context.Context, path string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full := s.resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create directory for %q: %w", path, err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("write %q: %w", path, err)
	}
	return nil
}

// PutTabular writes the table as an xlsx file at path.
func (s *LocalStore) PutTabular(ctx context.Context, path string, table *Table) error {
	data, err := EncodeTable(table)
	if err != nil {
		return err
	}
	return s.PutObject(ctx, path, data, ContentTypeXLSX)
}

// EnsureContainer creates the directory at path.
func (s *LocalStore) EnsureContainer(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.resolve(path), 0o755); err != nil {
		return fmt.Errorf("create container %q: %w", path, err)
	}
	return nil
}

// List walks the base directory and returns slash-separated keys of all
// files under prefix.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var keys []string
	err := filepath.WalkDir(s.base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.base, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", prefix, err)
	}
	return keys, nil
}

func (s *LocalStore) resolve(path string) string {
	return filepath.Join(s.base, filepath.FromSlash(path))
}
