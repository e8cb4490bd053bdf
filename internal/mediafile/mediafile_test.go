package mediafile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// BLAKE2b-256 of the empty input.
const emptySum = "0e5751c026e543b2e8ab2eb06099daa1d1e5df47778f7787faab45cdf12fe3a8"

func TestChecksum(t *testing.T) {
	sum, err := Checksum(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, emptySum, sum)

	a, err := Checksum(strings.NewReader("shirt"))
	require.NoError(t, err)
	b, err := Checksum(strings.NewReader("shirts"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 64)
}

func TestDetectMime(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"photo.JPG", "whatever", "image/jpeg"},
		{"notes.txt", "plain", "text/plain"},
		{"noext", "<html><body>hi</body></html>", "text/html"},
		{"blob", "\x89PNG\r\n\x1a\n0000", "image/png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			got, err := DetectMime(path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDescribeAndVerify(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "photos"), 0o755))
	path := filepath.Join(base, "photos", "blue shirt.png")
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG\r\n\x1a\nimage"), 0o644))

	m, err := Describe(path, base)
	require.NoError(t, err)
	assert.Equal(t, "photos/blue shirt.png", m.Path)
	assert.Equal(t, "image/png", m.Mime)
	assert.Equal(t, "blue shirt", m.Description)
	assert.Len(t, m.Checksum, 64)
	assert.Equal(t, path, Resolve(m, base))

	require.NoError(t, Verify(m, base))
	require.NoError(t, os.WriteFile(path, []byte("changed"), 0o644))
	assert.ErrorIs(t, Verify(m, base), ErrChecksumMismatch)

	outside, err := Describe(path, t.TempDir())
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(outside.Path))
}

func TestDescribeMissingFile(t *testing.T) {
	_, err := Describe(filepath.Join(t.TempDir(), "gone.jpg"), "")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
