// Package mediafile inspects the files media objects point at: content
// checksums and MIME types.
package mediafile

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/mesh-intelligence/closet/pkg/types"
)

// sniffLen is how much of a file DetectMime reads when the extension is
// unknown.
const sniffLen = 512

// ErrChecksumMismatch is returned by Verify when the file changed.
var ErrChecksumMismatch = errors.New("media checksum mismatch")

// Checksum returns the hex BLAKE2b-256 digest of r.
func Checksum(r io.Reader) (string, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hashing: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ChecksumFile returns the checksum of the file at path.
func ChecksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return Checksum(f)
}

// DetectMime guesses the MIME type of the file at path from its extension,
// falling back to content sniffing. Parameters such as charset are dropped.
func DetectMime(path string) (string, error) {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); t != "" {
		return baseType(t), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return baseType(http.DetectContentType(buf[:n])), nil
}

func baseType(t string) string {
	if mt, _, err := mime.ParseMediaType(t); err == nil {
		return mt
	}
	return t
}

// Describe builds a media object for the file at path. The stored path is
// made relative to baseDir when the file lies beneath it. The description
// defaults to the file name without extension.
func Describe(path, baseDir string) (*types.MediaObject, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	sum, err := ChecksumFile(abs)
	if err != nil {
		return nil, err
	}
	mt, err := DetectMime(abs)
	if err != nil {
		return nil, err
	}
	stored := abs
	if baseDir != "" {
		if rel, err := filepath.Rel(baseDir, abs); err == nil && !strings.HasPrefix(rel, "..") {
			stored = filepath.ToSlash(rel)
		}
	}
	name := filepath.Base(abs)
	return &types.MediaObject{
		Path:        stored,
		Mime:        mt,
		Checksum:    sum,
		Description: strings.TrimSuffix(name, filepath.Ext(name)),
	}, nil
}

// Resolve returns the file system path of m, interpreting relative paths
// against baseDir.
func Resolve(m *types.MediaObject, baseDir string) string {
	p := filepath.FromSlash(m.Path)
	if filepath.IsAbs(p) || baseDir == "" {
		return p
	}
	return filepath.Join(baseDir, p)
}

// Verify recomputes the checksum of m's file and compares it with the
// stored one. Media without a stored checksum always verify.
func Verify(m *types.MediaObject, baseDir string) error {
	if m.Checksum == "" {
		return nil
	}
	sum, err := ChecksumFile(Resolve(m, baseDir))
	if err != nil {
		return err
	}
	if sum != m.Checksum {
		return fmt.Errorf("%s %s: %w", m.ID, m.Path, ErrChecksumMismatch)
	}
	return nil
}
