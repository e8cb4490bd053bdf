package collection

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/closet/internal/store"
	"github.com/mesh-intelligence/closet/pkg/types"
)

func testConfig(t *testing.T, name string) types.Config {
	t.Helper()
	return types.Config{Backend: types.BackendXML, DataDir: t.TempDir(), Collection: name}
}

func testOptions() Options {
	return Options{Clock: func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }}
}

func TestCreateWritesLayout(t *testing.T) {
	cfg := testConfig(t, "family")
	c, err := Create(cfg, "Family wardrobe", testOptions())
	require.NoError(t, err)
	defer c.Close()

	dir := filepath.Join(cfg.DataDir, "family")
	assert.Equal(t, dir, c.Dir())
	assert.Equal(t, "Family wardrobe", c.Name())
	for _, f := range []string{DataFile, LockFile, BackendFile, NameFile} {
		assert.FileExists(t, filepath.Join(dir, f))
	}
	backend, err := os.ReadFile(filepath.Join(dir, BackendFile))
	require.NoError(t, err)
	assert.Equal(t, "xml\n", string(backend))

	_, err = Create(cfg, "", testOptions())
	assert.ErrorIs(t, err, fs.ErrExist)
}

func TestCreateRejectsBadConfig(t *testing.T) {
	_, err := Create(types.Config{Backend: "csv", Collection: "x", DataDir: t.TempDir()}, "", Options{})
	assert.ErrorIs(t, err, types.ErrBackendUnknown)

	_, err = Create(types.Config{Backend: types.BackendXML, Collection: "../x", DataDir: t.TempDir()}, "", Options{})
	assert.Error(t, err)
}

func TestSaveAndReopen(t *testing.T) {
	cfg := testConfig(t, "main")
	c, err := Create(cfg, "", testOptions())
	require.NoError(t, err)

	var shirt types.Handle
	require.NoError(t, c.Store().Update("add", false, func(tx *store.Txn) error {
		shirt, err = tx.Add(&types.Textile{Description: "Linen shirt"})
		return err
	}))
	c.Store().SetHome(shirt)
	require.NoError(t, c.Save())
	require.NoError(t, c.Close())
	assert.NoFileExists(t, filepath.Join(c.Dir(), LockFile))

	again, err := Open(context.Background(), cfg, testOptions())
	require.NoError(t, err)
	defer again.Close()

	got, ok := again.Store().Textile(shirt)
	require.True(t, ok, "handles survive a save and reload")
	assert.Equal(t, "Linen shirt", got.Description)
	assert.Equal(t, "I0001", got.ID)
	assert.Equal(t, shirt, again.Store().Home())
	assert.False(t, again.Store().CanUndo(), "loading leaves nothing to undo")
}

func TestLocking(t *testing.T) {
	cfg := testConfig(t, "shared")
	first, err := Create(cfg, "", testOptions())
	require.NoError(t, err)

	_, err = Open(context.Background(), cfg, testOptions())
	require.ErrorIs(t, err, types.ErrLocked)

	opts := testOptions()
	opts.Force = true
	second, err := Open(context.Background(), cfg, opts)
	require.NoError(t, err)

	// The first holder lost the lock and must not remove the new one.
	require.NoError(t, first.Close())
	assert.FileExists(t, filepath.Join(cfg.DataDir, "shared", LockFile))

	require.NoError(t, second.Close())
	assert.NoFileExists(t, filepath.Join(cfg.DataDir, "shared", LockFile))
}

func TestClosedCollection(t *testing.T) {
	c, err := Create(testConfig(t, "c"), "", testOptions())
	require.NoError(t, err)
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Close(), types.ErrClosed)
	assert.ErrorIs(t, c.Save(), types.ErrClosed)
	assert.ErrorIs(t, c.Rename("x"), types.ErrClosed)
}

func TestOpenNotCollection(t *testing.T) {
	cfg := testConfig(t, "plain")
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.DataDir, "plain"), 0o755))
	_, err := Open(context.Background(), cfg, Options{})
	assert.ErrorIs(t, err, types.ErrNotCollection)
}

func TestOpenCorruptPayloadReleasesLock(t *testing.T) {
	cfg := testConfig(t, "bad")
	c, err := Create(cfg, "", testOptions())
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, os.WriteFile(c.DataPath(), []byte("<database><textiles>"), 0o644))

	_, err = Open(context.Background(), cfg, Options{})
	require.ErrorIs(t, err, types.ErrMalformedDocument)
	assert.NoFileExists(t, filepath.Join(c.Dir(), LockFile))
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	a, err := Create(types.Config{Backend: types.BackendXML, DataDir: root, Collection: "alpha"}, "Alpha", testOptions())
	require.NoError(t, err)
	b, err := Create(types.Config{Backend: types.BackendXML, DataDir: root, Collection: "beta"}, "", testOptions())
	require.NoError(t, err)
	require.NoError(t, b.Close())
	require.NoError(t, os.MkdirAll(filepath.Join(root, "not-a-collection"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.txt"), nil, 0o644))

	infos, err := Discover(root)
	require.NoError(t, err)
	require.Len(t, infos, 2)

	assert.Equal(t, "Alpha", infos[0].Name)
	assert.True(t, infos[0].Locked)
	assert.NotEmpty(t, infos[0].Holder)
	assert.False(t, infos[0].Modified.IsZero())

	assert.Equal(t, "beta", infos[1].Name)
	assert.False(t, infos[1].Locked)
	assert.Equal(t, types.BackendXML, infos[1].Backend)
	require.NoError(t, a.Close())

	none, err := Discover(filepath.Join(root, "missing"))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRename(t *testing.T) {
	cfg := testConfig(t, "r")
	c, err := Create(cfg, "", testOptions())
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Rename("Renamed"))
	infos, err := Discover(cfg.DataDir)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "Renamed", infos[0].Name)
}
