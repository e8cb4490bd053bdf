package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/closet/internal/paths"
	"github.com/mesh-intelligence/closet/pkg/types"
)

// harness runs closet commands in-process against temporary directories.
type harness struct {
	t         *testing.T
	configDir string
	dataDir   string
	now       time.Time
	stderr    bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	return &harness{
		t:         t,
		configDir: filepath.Join(root, "config"),
		dataDir:   filepath.Join(root, "data"),
		now:       time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC),
	}
}

// run executes one command and returns its standard output. Log output goes
// to h.stderr.
func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	a := &app{log: zerolog.Nop(), now: func() time.Time { return h.now }}
	root := newRootCmd(a)
	var stdout bytes.Buffer
	h.stderr.Reset()
	root.SetOut(&stdout)
	root.SetErr(&h.stderr)
	root.SetArgs(append([]string{"--config-dir", h.configDir, "--data-dir", h.dataDir}, args...))
	err := root.ExecuteContext(h.t.Context())
	require.NoError(h.t, a.closeLog())
	return stdout.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, "stdout:\n%s\nstderr:\n%s", out, h.stderr.String())
	return out
}

func TestInit(t *testing.T) {
	h := newHarness(t)
	t.Setenv("CLOSET_OWNER_NAME", "Ada")

	out := h.mustRun("init", "--name", "Everyday")
	assert.Contains(t, out, `Initialized collection "Everyday"`)

	data, err := os.ReadFile(filepath.Join(h.configDir, paths.ConfigFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "backend: xml")
	assert.Contains(t, string(data), "collection: default")
	assert.Contains(t, string(data), "name: Ada")
	assert.DirExists(t, filepath.Join(h.dataDir, "default"))

	out = h.mustRun("init")
	assert.Contains(t, out, "already initialized")

	exported := filepath.Join(t.TempDir(), "out.xml")
	h.mustRun("export", exported)
	doc, err := os.ReadFile(exported)
	require.NoError(t, err)
	assert.Contains(t, string(doc), "<name>Ada</name>")
}

func TestLogFile(t *testing.T) {
	h := newHarness(t)
	logPath := filepath.Join(t.TempDir(), "closet.log")
	t.Setenv("CLOSET_LOG_FILE", logPath)

	h.mustRun("--log-level", "info", "init")
	assert.Empty(t, h.stderr.String())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"collection created"`)
	assert.Contains(t, string(data), `"level":"info"`)
}

func TestAddListShow(t *testing.T) {
	h := newHarness(t)
	h.mustRun("init")

	assert.Contains(t, h.mustRun("add", "textile", "Linen shirt", "--type", "shirt", "--attr", "fabric=linen", "--tag", "summer"),
		"Added textile I0001")
	assert.Contains(t, h.mustRun("add", "textile", "Wool coat"), "Added textile I0002")
	assert.Contains(t, h.mustRun("add", "note", "Wash cold", "--type", "Care", "--attach", "I0001"), "Added note N0001")

	out := h.mustRun("list", "textiles")
	assert.Contains(t, out, "I0001")
	assert.Contains(t, out, "Linen shirt (shirt)")
	assert.Contains(t, out, "Total: 2 textile record(s)")

	out = h.mustRun("show", "textile", "I0001")
	assert.Contains(t, out, "Linen shirt")
	assert.Contains(t, out, "fabric = linen")
	assert.Contains(t, out, "N0001")
	assert.Contains(t, out, "summer")

	out = h.mustRun("show", "note", "N0001")
	assert.Contains(t, out, "Referenced by:")
	assert.Contains(t, out, "textile I0001")

	out = h.mustRun("--json", "list", "tag")
	var views []recordView
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "summer", views[0].Summary)
	assert.Equal(t, "T0001", views[0].ID)
}

func TestAddTagRejectsDuplicate(t *testing.T) {
	h := newHarness(t)
	h.mustRun("init")
	h.mustRun("add", "tag", "summer", "--color", "#ffcc00")

	_, err := h.run("add", "tag", "Summer")
	assert.ErrorIs(t, err, types.ErrInvalidData)
}

func TestTagCommand(t *testing.T) {
	h := newHarness(t)
	h.mustRun("init")
	h.mustRun("add", "textile", "Linen shirt")

	assert.Contains(t, h.mustRun("tag", "textile", "I0001", "summer", "linen"), "now has 2 tag(s)")
	assert.Contains(t, h.mustRun("tag", "textile", "I0001", "summer"), "now has 2 tag(s)")
	assert.Contains(t, h.mustRun("tag", "textile", "I0001", "summer", "--remove"), "now has 1 tag(s)")
	assert.Contains(t, h.mustRun("list", "tag"), "Total: 2 tag record(s)", "removing a tag keeps the tag record")

	_, err := h.run("tag", "tag", "T0001", "x")
	assert.ErrorIs(t, err, errUsage)
	_, err = h.run("tag", "textile", "I0001", "winter", "--remove")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestRemoveUnlinksReferrers(t *testing.T) {
	h := newHarness(t)
	h.mustRun("init")
	h.mustRun("add", "textile", "Shirt")
	h.mustRun("add", "textile", "Trousers")
	h.mustRun("add", "ensemble", "Office", "--child", "I0001", "--child", "I0002")

	out := h.mustRun("remove", "textile", "I0001")
	assert.Contains(t, out, "Removed textile I0001 (unlinked from 1 record(s))")

	out = h.mustRun("show", "ensemble", "F0001")
	assert.Contains(t, out, "I0002")
	assert.NotContains(t, out, "I0001")

	_, err := h.run("remove", "textile", "I0001")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestExportImport(t *testing.T) {
	h := newHarness(t)
	h.mustRun("init")
	h.mustRun("add", "textile", "Shirt", "--tag", "summer")
	h.mustRun("add", "textile", "Secret coat", "--private")

	doc := filepath.Join(t.TempDir(), "closet.xml.gz")
	h.mustRun("export", doc)
	public := filepath.Join(t.TempDir(), "public.xml")
	h.mustRun("export", public, "--public")
	data, err := os.ReadFile(public)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "Secret coat")

	h.mustRun("--collection", "copy", "init")
	out := h.mustRun("--collection", "copy", "import", doc)
	assert.Contains(t, out, "Imported 3 record(s)")
	assert.Contains(t, out, "handles: preserve")
	assert.Contains(t, h.mustRun("--collection", "copy", "list", "textile"), "Secret coat")

	// A second import into the now non-empty collection remaps and renumbers.
	out = h.mustRun("--collection", "copy", "--json", "import", doc, "--handles", "remap")
	var report reportView
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "remap", report.Policy)
	assert.Equal(t, 2, report.IDsChanged[types.KindTextile])
	assert.Contains(t, h.mustRun("--collection", "copy", "list", "textile"), "Total: 4")

	_, err = h.run("import", doc, "--handles", "sometimes")
	assert.ErrorIs(t, err, errUsage)
}

func TestSnapshotCommand(t *testing.T) {
	h := newHarness(t)
	h.mustRun("init")
	h.mustRun("add", "textile", "Shirt", "--attr", "fabric=linen", "--attr", "size=M")

	db := filepath.Join(t.TempDir(), "closet.db")
	out := h.mustRun("--json", "snapshot", db)
	var counts map[string]int
	require.NoError(t, json.Unmarshal([]byte(out), &counts))
	assert.Equal(t, 1, counts["textiles"])
	assert.Equal(t, 2, counts["attributes"])
}

func TestBackupCommand(t *testing.T) {
	h := newHarness(t)
	h.mustRun("init")
	h.mustRun("add", "textile", "Shirt")
	dest := filepath.Join(t.TempDir(), "backups")

	_, err := h.run("backup")
	assert.ErrorIs(t, err, errUsage)

	out := h.mustRun("backup", "--dest", dest)
	assert.Contains(t, out, "fs:default/20261019T090000Z.xml.gz")

	h.now = h.now.Add(time.Minute)
	h.mustRun("add", "textile", "Coat")
	h.mustRun("backup", "--dest", dest)

	out = h.mustRun("backup", "--dest", dest, "--list")
	assert.Contains(t, out, "default/20261019T090000Z.xml.gz")
	assert.Contains(t, out, "default/20261019T090100Z.xml.gz")

	h.mustRun("remove", "textile", "I0001")
	out = h.mustRun("backup", "--dest", dest, "--restore", "default/20261019T090000Z.xml.gz")
	assert.Contains(t, out, "Restored 1 record(s)")
	out = h.mustRun("list", "textile")
	assert.Contains(t, out, "Shirt")
	assert.NotContains(t, out, "Coat")

	h.mustRun("backup", "--dest", dest, "--restore", "latest")
	assert.Contains(t, h.mustRun("list", "textile"), "Total: 2")
}

func TestCollectionsCommand(t *testing.T) {
	h := newHarness(t)
	assert.Contains(t, h.mustRun("collections"), "No collections")

	h.mustRun("init")
	h.mustRun("--collection", "summer", "init", "--name", "Summer")
	out := h.mustRun("collections")
	assert.Contains(t, out, "default")
	assert.Contains(t, out, "Summer")
	assert.NotContains(t, out, "locked", "commands release their lock")
}

func TestVerifyCommand(t *testing.T) {
	h := newHarness(t)
	h.mustRun("init")
	photo := filepath.Join(t.TempDir(), "shirt.png")
	require.NoError(t, os.WriteFile(photo, []byte("not really a png"), 0o644))
	h.mustRun("add", "textile", "Shirt")
	assert.Contains(t, h.mustRun("add", "media", photo, "--attach", "I0001"), "Added media O0001")
	assert.Contains(t, h.mustRun("show", "textile", "I0001"), "O0001")

	assert.Contains(t, h.mustRun("verify"), "Verified 1 media file(s), 0 problem(s)")

	require.NoError(t, os.WriteFile(photo, []byte("changed"), 0o644))
	out, err := h.run("verify")
	require.Error(t, err)
	assert.Contains(t, out, "1 problem(s)")
	assert.Equal(t, exitUserError, exitCode(err))
}

func TestErrors(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("list", "textile")
	assert.ErrorIs(t, err, types.ErrNotCollection, "not initialized")

	h.mustRun("init")
	_, err = h.run("show", "textile", "I0099")
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = h.run("list", "garment")
	assert.ErrorIs(t, err, types.ErrUnknownKind)
	_, err = h.run("add", "textile", "Shirt", "--attr", "novalue")
	assert.ErrorIs(t, err, errUsage)
	_, err = h.run("list", "textile", "--bogus")
	assert.ErrorIs(t, err, errUsage)
	assert.Contains(t, h.mustRun("list", "textile"), "No textile records found.", "failed add left nothing behind")
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("show: %w", types.ErrNotFound), exitUserError},
		{types.ErrLocked, exitUserError},
		{errUsage, exitUserError},
		{errors.New("disk on fire"), exitSysError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, exitCode(tt.err), tt.err.Error())
	}
}

func TestVersion(t *testing.T) {
	h := newHarness(t)
	out := h.mustRun("version")
	assert.Contains(t, out, "closet v"+Version)
	assert.NoDirExists(t, h.configDir, "version needs no setup")
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"a longer summary line", 10, "a longe..."},
		{"Überzieher für den Winter", 10, "Überzie..."},
		{"日本の着物と帯のセット", 8, "日本の着物..."},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.n)
		assert.Equal(t, tt.want, got, tt.in)
		assert.True(t, utf8.ValidString(got), tt.in)
	}
}
