package store

import "github.com/mesh-intelligence/closet/pkg/types"

// table holds the records of one kind, indexed by handle and by user ID.
// Stored records are never mutated in place: writers replace them with a
// fresh copy, so the journal and undo history can share pointers safely.
type table struct {
	kind    types.Kind
	records map[types.Handle]types.Record
	ids     map[string]types.Handle
	counter int // next candidate for ID allocation
}

func newTable(kind types.Kind) *table {
	return &table{
		kind:    kind,
		records: make(map[types.Handle]types.Record),
		ids:     make(map[string]types.Handle),
	}
}

func (t *table) get(h types.Handle) (types.Record, bool) {
	rec, ok := t.records[h]
	return rec, ok
}

// set stores rec under its handle and keeps the ID index consistent,
// dropping the stale entry when the user ID changed.
func (t *table) set(rec types.Record) {
	meta := rec.Meta()
	if old, ok := t.records[meta.Handle]; ok {
		oldID := old.Meta().ID
		if oldID != meta.ID && t.ids[oldID] == meta.Handle {
			delete(t.ids, oldID)
		}
	}
	t.records[meta.Handle] = rec
	if meta.ID != "" {
		t.ids[meta.ID] = meta.Handle
	}
}

// remove purges h from both indices and returns the removed record.
func (t *table) remove(h types.Handle) (types.Record, bool) {
	rec, ok := t.records[h]
	if !ok {
		return nil, false
	}
	delete(t.records, h)
	if id := rec.Meta().ID; t.ids[id] == h {
		delete(t.ids, id)
	}
	return rec, true
}

// nextID tries prefix%counter upward until an unused ID is found. The
// counter never drops below size+1, so IDs inserted from outside (imports
// with high numbers) push allocation past them.
func (t *table) nextID() string {
	if n := len(t.records) + 1; t.counter < n {
		t.counter = n
	}
	for {
		id := t.kind.FormatID(t.counter)
		t.counter++
		if _, used := t.ids[id]; !used {
			return id
		}
	}
}

func (t *table) reset() {
	t.records = make(map[types.Handle]types.Record)
	t.ids = make(map[string]types.Handle)
	t.counter = 0
}
