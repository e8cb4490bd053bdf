package store

import "github.com/mesh-intelligence/closet/pkg/types"

// Cursor walks the records of one kind over a snapshot of handles taken when
// the cursor was created. Records deleted after that are skipped.
type Cursor struct {
	store   *Store
	kind    types.Kind
	handles []types.Handle
	pos     int
}

// Cursor returns a cursor over the records of kind k in handle order.
func (s *Store) Cursor(k types.Kind) *Cursor {
	return &Cursor{store: s, kind: k, handles: s.Handles(k)}
}

// Next returns a copy of the next record, or false when exhausted.
func (c *Cursor) Next() (types.Record, bool) {
	for c.pos < len(c.handles) {
		h := c.handles[c.pos]
		c.pos++
		if rec, ok := c.store.Get(c.kind, h); ok {
			return rec, true
		}
	}
	return nil, false
}

// Len returns the number of handles in the snapshot.
func (c *Cursor) Len() int { return len(c.handles) }

// Reset rewinds the cursor to the first handle.
func (c *Cursor) Reset() { c.pos = 0 }
