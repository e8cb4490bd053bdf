package collection

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/closet/pkg/types"
)

// lock is a held lock file. The file names its holder: a token unique to
// this acquisition followed by host and process id.
type lock struct {
	path  string
	token string
	log   zerolog.Logger
}

func holderLine(token string) string {
	host, _ := os.Hostname()
	return fmt.Sprintf("%s %s %d\n", token, host, os.Getpid())
}

// acquire creates path exclusively. An existing lock is an error wrapping
// types.ErrLocked unless opts.Force is set, in which case it is replaced.
func acquire(path string, opts Options) (*lock, error) {
	lk := &lock{path: path, token: uuid.NewString(), log: opts.Logger}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, fs.ErrExist) {
		holder, _ := readMarker(path)
		if !opts.Force {
			return nil, fmt.Errorf("%s held by %q: %w", path, holder, types.ErrLocked)
		}
		lk.log.Warn().Str("lock", path).Str("holder", holder).Msg("overriding stale lock")
		if err := os.WriteFile(path, []byte(holderLine(lk.token)), 0o644); err != nil {
			return nil, fmt.Errorf("taking over lock: %w", err)
		}
		return lk, nil
	}
	if err != nil {
		return nil, fmt.Errorf("creating lock: %w", err)
	}
	if _, err := f.WriteString(holderLine(lk.token)); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("writing lock: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("closing lock: %w", err)
	}
	return lk, nil
}

// release removes the lock file if this acquisition still owns it. A lock
// taken over by someone else is left alone.
func (l *lock) release() error {
	holder, err := readMarker(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading lock: %w", err)
	}
	if !strings.HasPrefix(holder, l.token) {
		l.log.Warn().Str("lock", l.path).Str("holder", holder).Msg("lock was taken over; leaving it")
		return nil
	}
	if err := os.Remove(l.path); err != nil {
		return fmt.Errorf("removing lock: %w", err)
	}
	return nil
}
