package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// FSStore reads documents from an fs.FS (a content directory or an embedded tree).
type FSStore struct {
	FS fs.FS
}

// NewDirStore opens a content directory on disk.
func NewDirStore(root string) (FSStore, error) {
	info, err := os.Stat(root)
	if err != nil {
		return FSStore{}, fmt.Errorf("content root %s: %w", root, err)
	}
	if !info.IsDir() {
		return FSStore{}, fmt.Errorf("content root %s is not a directory", root)
	}
	return FSStore{FS: os.DirFS(root)}, nil
}

func (s FSStore) Load(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !fs.ValidPath(path) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotExist)
	}
	data, err := fs.ReadFile(s.FS, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotExist)
		}
		return nil, err
	}
	return data, nil
}
