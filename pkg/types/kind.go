package types

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Handle is the opaque, immutable identifier of a primary record. It is the
// only valid cross-reference target.
type Handle string

// NewHandle mints a fresh handle from a UUID v7 with the hyphens removed, so
// handles sort by creation time.
func NewHandle() Handle {
	return Handle(strings.ReplaceAll(uuid.Must(uuid.NewV7()).String(), "-", ""))
}

// Kind enumerates the primary record kinds.
type Kind int

// Primary record kinds, in XML table order after tags.
const (
	KindTextile Kind = iota
	KindEnsemble
	KindMedia
	KindNote
	KindTag
)

// NumKinds is the number of primary record kinds. Arrays indexed by Kind use it.
const NumKinds = 5

// Kinds lists every primary record kind.
var Kinds = []Kind{KindTextile, KindEnsemble, KindMedia, KindNote, KindTag}

var kindNames = [NumKinds]string{
	KindTextile:  "textile",
	KindEnsemble: "ensemble",
	KindMedia:    "media",
	KindNote:     "note",
	KindTag:      "tag",
}

// idFormats are the per-kind user ID templates.
var idFormats = [NumKinds]string{
	KindTextile:  "I%04d",
	KindEnsemble: "F%04d",
	KindMedia:    "O%04d",
	KindNote:     "N%04d",
	KindTag:      "T%04d",
}

// String returns the lowercase kind name.
func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	return k >= 0 && int(k) < NumKinds
}

// IDFormat returns the fmt template used to allocate user IDs for k.
func (k Kind) IDFormat() string {
	return idFormats[k]
}

// FormatID renders the user ID for counter n.
func (k Kind) FormatID(n int) string {
	return fmt.Sprintf(idFormats[k], n)
}

// ParseKind parses a kind name as produced by Kind.String.
// Returns ErrUnknownKind for anything else.
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range kindNames {
		if n == name {
			return Kind(i), nil
		}
	}
	// Accept plural forms used by the CLI ("textiles").
	for i, n := range kindNames {
		if n+"s" == name {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, ErrUnknownKind
	}
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind name.
func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Reference identifies a record of a given kind.
type Reference struct {
	Kind   Kind   `json:"kind"`
	Handle Handle `json:"handle"`
}
