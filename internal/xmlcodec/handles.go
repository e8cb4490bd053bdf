package xmlcodec

import (
	"fmt"

	"github.com/mesh-intelligence/closet/pkg/types"
)

// HandlePolicy selects how document handles map to store handles.
type HandlePolicy int

const (
	// HandlesAuto preserves handles when the store is empty at the start of
	// the import and remaps them otherwise.
	HandlesAuto HandlePolicy = iota
	// HandlesPreserve keeps document handles. A document record whose handle
	// already exists in the store overwrites it and is reported as a merge
	// candidate.
	HandlesPreserve
	// HandlesRemap mints a fresh handle for every document handle.
	HandlesRemap
)

func (p HandlePolicy) String() string {
	switch p {
	case HandlesAuto:
		return "auto"
	case HandlesPreserve:
		return "preserve"
	case HandlesRemap:
		return "remap"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParseHandlePolicy parses the names produced by HandlePolicy.String.
func ParseHandlePolicy(s string) (HandlePolicy, error) {
	for _, p := range []HandlePolicy{HandlesAuto, HandlesPreserve, HandlesRemap} {
		if p.String() == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown handle policy %q", s)
}

type handleEntry struct {
	handle       types.Handle
	instantiated bool
}

// HandleTable maps document handles to store handles for one import. An
// entry is created the first time a handle is seen, whether as a definition
// or as a reference, so references that precede their definition resolve to
// the same store handle.
type HandleTable struct {
	preserve bool
	entries  [types.NumKinds]map[types.Handle]*handleEntry
	order    [types.NumKinds][]types.Handle
}

// NewHandleTable returns an empty table. With preserve set, store handles
// equal document handles.
func NewHandleTable(preserve bool) *HandleTable {
	t := &HandleTable{preserve: preserve}
	for _, k := range types.Kinds {
		t.entries[k] = make(map[types.Handle]*handleEntry)
	}
	return t
}

// Preserve reports whether document handles are kept.
func (t *HandleTable) Preserve() bool { return t.preserve }

func (t *HandleTable) entry(k types.Kind, doc types.Handle) *handleEntry {
	e, ok := t.entries[k][doc]
	if ok {
		return e
	}
	e = &handleEntry{handle: doc}
	if !t.preserve || doc == "" {
		e.handle = types.NewHandle()
	}
	t.entries[k][doc] = e
	t.order[k] = append(t.order[k], doc)
	return e
}

// Lookup returns the store handle for a referenced document handle.
func (t *HandleTable) Lookup(k types.Kind, doc types.Handle) types.Handle {
	return t.entry(k, doc).handle
}

// Define returns the store handle for a defined document handle and marks it
// instantiated. dup is true when the handle was already defined earlier in
// the document.
func (t *HandleTable) Define(k types.Kind, doc types.Handle) (h types.Handle, dup bool) {
	e := t.entry(k, doc)
	dup = e.instantiated
	e.instantiated = true
	return e.handle, dup
}

// Unresolved returns the store handles of kind k that were referenced but
// never defined, in first-seen order.
func (t *HandleTable) Unresolved(k types.Kind) []types.Handle {
	var out []types.Handle
	for _, doc := range t.order[k] {
		if e := t.entries[k][doc]; !e.instantiated {
			out = append(out, e.handle)
		}
	}
	return out
}

// Len returns the number of document handles of kind k seen so far.
func (t *HandleTable) Len(k types.Kind) int { return len(t.order[k]) }
