package objstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/zenrollup/snapshotter/pkg/types"
)

// FilesystemStore stores objects as files under a root directory. Writes go
// through a temp file and a rename so a crash mid-write never leaves a
// partially written object under the final key.
type FilesystemStore struct {
	fs   afero.Fs
	root string
}

var ErrInvalidRoot = errors.New("invalid object store root: must not be empty")

// NewFilesystemStore creates a store rooted at root on the given filesystem.
// Pass afero.NewOsFs() for on-disk storage; tests use the in-memory fs.
func NewFilesystemStore(fs afero.Fs, root string) (*FilesystemStore, error) {
	if root == "" {
		return nil, ErrInvalidRoot
	}
	if err := fs.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create object store root: %w", err)
	}
	return &FilesystemStore{fs: fs, root: root}, nil
}

func (s *FilesystemStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dst := s.path(key)
	if err := s.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}

	tmp := dst + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write object %s: %w", key, err)
	}
	if err := s.fs.Rename(tmp, dst); err != nil {
		// best-effort cleanup of the temp file
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("failed to finalize object %s: %w", key, err)
	}
	return nil
}

func (s *FilesystemStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(s.fs, s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("object %s: %w", key, types.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return data, nil
}

func (s *FilesystemStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	ok, err := afero.Exists(s.fs, s.path(key))
	if err != nil {
		return false, fmt.Errorf("failed to stat object %s: %w", key, err)
	}
	return ok, nil
}

func (s *FilesystemStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(path.Clean(key)))
}
