// Package backup copies exported collection payloads to a destination and
// restores them. Two destinations exist: a local directory and an
// S3-compatible bucket.
//
// Keys have the form "<collection>/<UTC timestamp>.xml.gz", so a plain
// lexical sort of a collection's keys is also chronological.
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/mesh-intelligence/closet/internal/store"
	"github.com/mesh-intelligence/closet/internal/xmlcodec"
)

// Driver names a destination implementation.
type Driver string

const (
	DriverFilesystem Driver = "fs"
	DriverS3         Driver = "s3"
)

// Errors returned by destinations.
var (
	ErrNoBackups   = errors.New("no backups found")
	ErrInvalidKey  = errors.New("invalid backup key")
	ErrKeyExists   = errors.New("backup already exists")
	ErrNoBucket    = errors.New("s3 bucket required")
	ErrUnknownDest = errors.New("unknown backup destination")
)

// Suffix is appended to every backup key.
const Suffix = ".xml.gz"

const keyTime = "20060102T150405Z"

// Object describes a stored backup.
type Object struct {
	Key      string
	Size     int64
	Modified time.Time
}

// Destination stores backup payloads under slash-separated keys.
type Destination interface {
	Driver() Driver
	// Put stores the payload under key. An existing key is not overwritten.
	Put(ctx context.Context, key string, r io.Reader, size int64) (Object, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// List returns the objects whose key starts with prefix, sorted by key.
	List(ctx context.Context, prefix string) ([]Object, error)
}

// Config selects and configures a destination.
type Config struct {
	// Dest is a directory path, a file:// URL, or an s3://bucket/prefix URL.
	Dest string   `mapstructure:"dest" yaml:"dest"`
	S3   S3Config `mapstructure:"s3" yaml:"s3"`
}

// Open returns the destination named by cfg.Dest. For s3:// URLs the bucket
// and prefix in the URL override the ones in cfg.S3.
func Open(ctx context.Context, cfg Config) (Destination, error) {
	dest := strings.TrimSpace(cfg.Dest)
	if dest == "" {
		return nil, fmt.Errorf("%w: destination is empty", ErrUnknownDest)
	}
	u, err := url.Parse(dest)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Plain paths, including Windows drive letters.
		return NewFilesystem(dest)
	}
	switch u.Scheme {
	case "file":
		return NewFilesystem(u.Path)
	case "s3":
		s3cfg := cfg.S3
		s3cfg.Bucket = u.Host
		if p := strings.Trim(u.Path, "/"); p != "" {
			s3cfg.Prefix = p
		}
		return NewS3(ctx, s3cfg)
	default:
		return nil, fmt.Errorf("%w: scheme %q", ErrUnknownDest, u.Scheme)
	}
}

// Key returns the backup key for collection at time t.
func Key(collection string, t time.Time) string {
	return collection + "/" + t.UTC().Format(keyTime) + Suffix
}

// checkKey rejects empty, absolute and parent-relative keys.
func checkKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	clean := path.Clean(key)
	for _, part := range strings.Split(clean, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return clean, nil
}

// Run exports src as a compressed payload and stores it under
// Key(collection, now).
func Run(ctx context.Context, dst Destination, collection string, src xmlcodec.Source, now time.Time) (Object, error) {
	var buf bytes.Buffer
	w := xmlcodec.NewWriter(xmlcodec.Options{
		Created:  func() time.Time { return now },
		Compress: true,
	})
	if err := w.Write(&buf, src); err != nil {
		return Object{}, err
	}
	key := Key(collection, now)
	obj, err := dst.Put(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		return Object{}, fmt.Errorf("storing %s on %s: %w", key, dst.Driver(), err)
	}
	return obj, nil
}

// Latest returns the newest backup of collection.
func Latest(ctx context.Context, dst Destination, collection string) (Object, error) {
	objs, err := List(ctx, dst, collection)
	if err != nil {
		return Object{}, err
	}
	if len(objs) == 0 {
		return Object{}, fmt.Errorf("%s: %w", collection, ErrNoBackups)
	}
	return objs[len(objs)-1], nil
}

// List returns the backups of collection, oldest first.
func List(ctx context.Context, dst Destination, collection string) ([]Object, error) {
	objs, err := dst.List(ctx, collection+"/")
	if err != nil {
		return nil, err
	}
	out := objs[:0]
	for _, o := range objs {
		if strings.HasSuffix(o.Key, Suffix) {
			out = append(out, o)
		}
	}
	return out, nil
}

// Restore imports the backup stored under key into s.
func Restore(ctx context.Context, dst Destination, key string, s *store.Store, opts xmlcodec.ImportOptions) (*xmlcodec.Report, error) {
	rc, err := dst.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", key, err)
	}
	defer rc.Close()
	return xmlcodec.Import(ctx, rc, s, opts)
}
