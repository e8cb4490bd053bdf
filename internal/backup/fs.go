package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Filesystem stores backups as files under a root directory. Keys map to
// relative paths.
type Filesystem struct {
	root string
}

// NewFilesystem returns a filesystem destination rooted at root, creating
// the directory if needed.
func NewFilesystem(root string) (*Filesystem, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: empty directory", ErrUnknownDest)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating backup directory: %w", err)
	}
	return &Filesystem{root: root}, nil
}

func (f *Filesystem) Driver() Driver { return DriverFilesystem }

// Root returns the destination directory.
func (f *Filesystem) Root() string { return f.root }

func (f *Filesystem) pathFor(key string) (string, error) {
	k, err := checkKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(f.root, filepath.FromSlash(k)), nil
}

// Put copies r to a temp file next to the target, syncs it and renames it
// into place.
func (f *Filesystem) Put(_ context.Context, key string, r io.Reader, _ int64) (Object, error) {
	p, err := f.pathFor(key)
	if err != nil {
		return Object{}, err
	}
	if _, err := os.Stat(p); err == nil {
		return Object{}, fmt.Errorf("%s: %w", key, ErrKeyExists)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return Object{}, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".backup-*.tmp")
	if err != nil {
		return Object{}, err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	size, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return Object{}, err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return Object{}, err
	}
	if err := tmp.Close(); err != nil {
		return Object{}, err
	}
	if err := os.Rename(tmpName, p); err != nil {
		return Object{}, err
	}
	st, err := os.Stat(p)
	if err != nil {
		return Object{}, err
	}
	return Object{Key: key, Size: size, Modified: st.ModTime()}, nil
}

func (f *Filesystem) Get(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := f.pathFor(key)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

func (f *Filesystem) List(_ context.Context, prefix string) ([]Object, error) {
	var out []Object
	err := filepath.WalkDir(f.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(f.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, Object{Key: key, Size: info.Size(), Modified: info.ModTime()})
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
