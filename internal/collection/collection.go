// Package collection manages collection directories on disk. A collection
// directory holds the compressed XML payload together with marker files:
//
//	data.xml.gz  the payload, rewritten atomically on Save
//	lock         present while a process holds the collection open
//	backend      the storage backend name ("xml")
//	name.txt     the display name
package collection

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/closet/internal/paths"
	"github.com/mesh-intelligence/closet/internal/store"
	"github.com/mesh-intelligence/closet/internal/xmlcodec"
	"github.com/mesh-intelligence/closet/pkg/types"
)

// File names inside a collection directory.
const (
	DataFile    = "data.xml.gz"
	LockFile    = "lock"
	BackendFile = "backend"
	NameFile    = "name.txt"
)

// Options controls opening and creating collections.
type Options struct {
	Force  bool // Take over a lock held by someone else.
	Logger zerolog.Logger
	Clock  func() time.Time
}

// Collection is an open collection: its directory, the lock it holds, and
// the in-memory store loaded from its payload.
type Collection struct {
	dir    string
	name   string
	store  *store.Store
	lock   *lock
	log    zerolog.Logger
	closed bool
}

func newStore(cfg types.Config, opts Options) *store.Store {
	sopts := []store.Option{
		store.WithLogger(opts.Logger),
		store.WithUndoLimit(cfg.EffectiveUndoLimit()),
	}
	if opts.Clock != nil {
		sopts = append(sopts, store.WithClock(opts.Clock))
	}
	return store.New(sopts...)
}

// Create makes a new collection directory for cfg and opens it. displayName
// defaults to cfg.Collection.
func Create(cfg types.Config, displayName string, opts Options) (*Collection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dir, err := paths.CollectionDir(cfg.DataDir, cfg.Collection)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(filepath.Join(dir, BackendFile)); err == nil {
		return nil, fmt.Errorf("creating collection %s: %w", dir, fs.ErrExist)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", dir, err)
	}
	if displayName == "" {
		displayName = cfg.Collection
	}
	if err := os.WriteFile(filepath.Join(dir, BackendFile), []byte(cfg.Backend+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("writing backend marker: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, NameFile), []byte(displayName+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("writing name: %w", err)
	}

	lk, err := acquire(filepath.Join(dir, LockFile), opts)
	if err != nil {
		return nil, err
	}
	c := &Collection{
		dir:   dir,
		name:  displayName,
		store: newStore(cfg, opts),
		lock:  lk,
		log:   opts.Logger,
	}
	if err := c.Save(); err != nil {
		lk.release()
		return nil, err
	}
	c.log.Info().Str("dir", dir).Msg("collection created")
	return c, nil
}

// Open locks the collection named by cfg and loads its payload into a fresh
// store. Returns types.ErrNotCollection when the directory has no backend
// marker and types.ErrLocked when another holder has it open, unless
// opts.Force is set.
func Open(ctx context.Context, cfg types.Config, opts Options) (*Collection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dir, err := paths.CollectionDir(cfg.DataDir, cfg.Collection)
	if err != nil {
		return nil, err
	}
	backend, err := readMarker(filepath.Join(dir, BackendFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("opening %s: %w", dir, types.ErrNotCollection)
	}
	if err != nil {
		return nil, err
	}
	if backend != cfg.Backend {
		return nil, fmt.Errorf("opening %s: backend %q: %w", dir, backend, types.ErrBackendUnknown)
	}

	lk, err := acquire(filepath.Join(dir, LockFile), opts)
	if err != nil {
		return nil, err
	}
	c := &Collection{
		dir:   dir,
		name:  displayName(dir),
		store: newStore(cfg, opts),
		lock:  lk,
		log:   opts.Logger,
	}

	data := filepath.Join(dir, DataFile)
	if _, err := os.Stat(data); err == nil {
		// Loading preserves handles and leaves nothing to undo.
		report, err := xmlcodec.ImportFile(ctx, data, c.store, xmlcodec.ImportOptions{
			Policy: xmlcodec.HandlesPreserve,
			Batch:  true,
		})
		if err != nil {
			lk.release()
			return nil, fmt.Errorf("loading %s: %w", data, err)
		}
		c.log.Debug().Int("records", report.Total()).Str("dir", dir).Msg("collection loaded")
	}
	return c, nil
}

// Store returns the collection's store.
func (c *Collection) Store() *store.Store { return c.store }

// Dir returns the collection directory.
func (c *Collection) Dir() string { return c.dir }

// Name returns the display name.
func (c *Collection) Name() string { return c.name }

// DataPath returns the payload path.
func (c *Collection) DataPath() string { return filepath.Join(c.dir, DataFile) }

// Rename changes the display name.
func (c *Collection) Rename(name string) error {
	if c.closed {
		return types.ErrClosed
	}
	if err := os.WriteFile(filepath.Join(c.dir, NameFile), []byte(name+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing name: %w", err)
	}
	c.name = name
	return nil
}

// Save writes the store to the payload file atomically.
func (c *Collection) Save() error {
	if c.closed {
		return types.ErrClosed
	}
	return xmlcodec.ExportFile(c.DataPath(), c.store, xmlcodec.Options{
		Created:  c.store.Now,
		Compress: true,
	})
}

// Close releases the lock. It does not save. Closing twice returns
// types.ErrClosed.
func (c *Collection) Close() error {
	if c.closed {
		return types.ErrClosed
	}
	c.closed = true
	return c.lock.release()
}

// Info describes a collection found by Discover.
type Info struct {
	Name     string
	Dir      string
	Backend  string
	Locked   bool
	Holder   string
	Modified time.Time // Payload modification time; zero when never saved.
}

// Discover lists the collections directly under root, sorted by directory.
// A missing root yields no collections.
func Discover(root string) ([]Info, error) {
	entries, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", root, err)
	}
	var out []Info
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		backend, err := readMarker(filepath.Join(dir, BackendFile))
		if err != nil {
			continue
		}
		info := Info{Name: displayName(dir), Dir: dir, Backend: backend}
		if holder, err := readMarker(filepath.Join(dir, LockFile)); err == nil {
			info.Locked = true
			info.Holder = holder
		}
		if st, err := os.Stat(filepath.Join(dir, DataFile)); err == nil {
			info.Modified = st.ModTime()
		}
		out = append(out, info)
	}
	return out, nil
}

func readMarker(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// displayName reads name.txt, falling back to the directory name.
func displayName(dir string) string {
	if name, err := readMarker(filepath.Join(dir, NameFile)); err == nil && name != "" {
		return name
	}
	return filepath.Base(dir)
}
