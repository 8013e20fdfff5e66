package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"caseflow/domain/core"
	"caseflow/internal/errors"
)

// Store keeps JSON snapshots of analysis results under slash-separated keys,
// e.g. "<session>/analysis.json".
type Store interface {
	Save(ctx context.Context, key string, v any) error
	Load(ctx context.Context, key string, v any) error
	List(ctx context.Context, prefix string) ([]string, error)
	Cleanup(ctx context.Context, olderThan time.Duration) (int, error)
}

// LocalStore implements Store on the local filesystem.
type LocalStore struct {
	basePath string
}

// NewLocalStore creates the base directory if needed.
func NewLocalStore(basePath string) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &LocalStore{basePath: basePath}, nil
}

// Key builds the storage key of a named result of a session.
func Key(id core.SessionID, name string) string {
	return id.String() + "/" + name + ".json"
}

// Save writes v as indented JSON. The file is written to a temporary name
// and renamed so readers never see a partial snapshot.
func (s *LocalStore) Save(ctx context.Context, key string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.keyToPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", key, err)
	}

	content, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return os.Rename(tmp, path)
}

// Load decodes the snapshot stored under key into v.
func (s *LocalStore) Load(ctx context.Context, key string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.keyToPath(key)
	if err != nil {
		return err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.NotFound(key)
		}
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal(content, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

// List returns the keys starting with prefix in lexical order.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.basePath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(s.basePath, path)
		if err != nil {
			return err
		}
		if key := filepath.ToSlash(rel); strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Cleanup removes snapshots last written more than olderThan ago and
// returns how many were removed.
func (s *LocalStore) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	removed := 0
	err := filepath.WalkDir(s.basePath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("failed to remove expired snapshot %s: %w", path, err)
			}
			removed++
		}
		return nil
	})
	return removed, err
}

// keyToPath maps a key onto a path below the base directory.
func (s *LocalStore) keyToPath(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if key == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.InvalidInput(fmt.Sprintf("invalid snapshot key %q", key))
	}
	return filepath.Join(s.basePath, clean), nil
}
