// Package store implements the in-memory object-graph datastore: per-kind
// handle and user-ID indices, transactions with a rollback journal, an undo
// and redo history, and synchronous change notification.
//
// The store is single-writer and has no internal locking. All mutation goes
// through a *Txn obtained from Begin or Update; reads return deep copies so
// callers can never alter canonical state.
package store

import (
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/closet/pkg/types"
)

// Store is the canonical in-memory state of one collection.
type Store struct {
	tables    [types.NumKinds]*table
	bus       *Bus
	history   *history
	active    *Txn
	seq       uint64
	owner     types.Owner
	home      types.Handle
	bookmarks [types.NumKinds][]types.Handle
	log       zerolog.Logger
	now       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for transaction and legalization messages.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithClock replaces time.Now for change stamps and undo timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithUndoLimit bounds the number of undoable transactions kept. Zero or a
// negative value keeps types.DefaultUndoLimit.
func WithUndoLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.history.limit = n
		}
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		bus:     NewBus(),
		history: &history{limit: types.DefaultUndoLimit},
		log:     zerolog.Nop(),
		now:     time.Now,
	}
	for _, k := range types.Kinds {
		s.tables[k] = newTable(k)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bus returns the change notification bus.
func (s *Store) Bus() *Bus { return s.bus }

// Logger returns the store's logger.
func (s *Store) Logger() zerolog.Logger { return s.log }

// Now returns the store clock's current time.
func (s *Store) Now() time.Time { return s.now() }

// Get returns a copy of the record of kind k with handle h.
// A miss returns false; it is never an error.
func (s *Store) Get(k types.Kind, h types.Handle) (types.Record, bool) {
	if !k.Valid() {
		return nil, false
	}
	rec, ok := s.tables[k].get(h)
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// GetByID returns a copy of the record of kind k with user ID id.
func (s *Store) GetByID(k types.Kind, id string) (types.Record, bool) {
	if !k.Valid() {
		return nil, false
	}
	h, ok := s.tables[k].ids[id]
	if !ok {
		return nil, false
	}
	return s.Get(k, h)
}

// Has reports whether a record of kind k with handle h exists.
func (s *Store) Has(k types.Kind, h types.Handle) bool {
	if !k.Valid() {
		return false
	}
	_, ok := s.tables[k].records[h]
	return ok
}

// IDOwner returns the handle currently holding user ID id within kind k.
func (s *Store) IDOwner(k types.Kind, id string) (types.Handle, bool) {
	if !k.Valid() {
		return "", false
	}
	h, ok := s.tables[k].ids[id]
	return h, ok
}

// Textile returns a copy of the textile with handle h.
func (s *Store) Textile(h types.Handle) (*types.Textile, bool) {
	return getAs[*types.Textile](s, types.KindTextile, h)
}

// Ensemble returns a copy of the ensemble with handle h.
func (s *Store) Ensemble(h types.Handle) (*types.Ensemble, bool) {
	return getAs[*types.Ensemble](s, types.KindEnsemble, h)
}

// Media returns a copy of the media object with handle h.
func (s *Store) Media(h types.Handle) (*types.MediaObject, bool) {
	return getAs[*types.MediaObject](s, types.KindMedia, h)
}

// Note returns a copy of the note with handle h.
func (s *Store) Note(h types.Handle) (*types.Note, bool) {
	return getAs[*types.Note](s, types.KindNote, h)
}

// Tag returns a copy of the tag with handle h.
func (s *Store) Tag(h types.Handle) (*types.Tag, bool) {
	return getAs[*types.Tag](s, types.KindTag, h)
}

func getAs[T types.Record](s *Store, k types.Kind, h types.Handle) (T, bool) {
	var zero T
	rec, ok := s.Get(k, h)
	if !ok {
		return zero, false
	}
	typed, ok := rec.(T)
	return typed, ok
}

// Count returns the number of records of kind k.
func (s *Store) Count(k types.Kind) int {
	if !k.Valid() {
		return 0
	}
	return len(s.tables[k].records)
}

// IsEmpty reports whether the store holds no records of any kind.
func (s *Store) IsEmpty() bool {
	for _, k := range types.Kinds {
		if s.Count(k) > 0 {
			return false
		}
	}
	return true
}

// Handles returns the handles of kind k in sorted order.
func (s *Store) Handles(k types.Kind) []types.Handle {
	if !k.Valid() {
		return nil
	}
	out := make([]types.Handle, 0, len(s.tables[k].records))
	for h := range s.tables[k].records {
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}

// Iterate calls fn with a copy of every record of kind k in handle order
// until fn returns false.
func (s *Store) Iterate(k types.Kind, fn func(types.Record) bool) {
	for _, h := range s.Handles(k) {
		rec, ok := s.Get(k, h)
		if !ok {
			continue
		}
		if !fn(rec) {
			return
		}
	}
}

// FindNextID allocates the next unused user ID for kind k.
func (s *Store) FindNextID(k types.Kind) string {
	return s.tables[k].nextID()
}

// Backlinks returns every record that references h, sorted by kind then
// handle.
func (s *Store) Backlinks(h types.Handle) []types.Reference {
	var out []types.Reference
	for _, k := range types.Kinds {
		for _, handle := range s.Handles(k) {
			rec := s.tables[k].records[handle]
			if types.ReferencesHandle(rec, h) {
				out = append(out, types.Reference{Kind: k, Handle: handle})
			}
		}
	}
	return out
}

// Owner returns the collection owner.
func (s *Store) Owner() types.Owner { return s.owner }

// SetOwner replaces the collection owner outside any transaction; the
// change is not undoable. Txn.SetOwner is the journaled form.
func (s *Store) SetOwner(o types.Owner) { s.owner = o }

// Home returns the default textile handle, or "" when unset.
func (s *Store) Home() types.Handle { return s.home }

// SetHome sets the default textile. An empty handle clears it.
func (s *Store) SetHome(h types.Handle) { s.home = h }

// Bookmarks returns the bookmarked handles of kind k in insertion order.
func (s *Store) Bookmarks(k types.Kind) []types.Handle {
	if !k.Valid() {
		return nil
	}
	return slices.Clone(s.bookmarks[k])
}

// AddBookmark appends h to the bookmarks of kind k unless already present.
func (s *Store) AddBookmark(k types.Kind, h types.Handle) {
	if slices.Contains(s.bookmarks[k], h) {
		return
	}
	s.bookmarks[k] = append(s.bookmarks[k], h)
}

// RemoveBookmark drops h from the bookmarks of kind k.
func (s *Store) RemoveBookmark(k types.Kind, h types.Handle) {
	s.bookmarks[k] = slices.DeleteFunc(s.bookmarks[k], func(b types.Handle) bool { return b == h })
}

// Clear drops all records, bookmarks, owner data, and undo history, then
// emits a rebuild event for every kind.
// Returns ErrTxnActive while a transaction is open.
func (s *Store) Clear() error {
	if s.active != nil {
		return types.ErrTxnActive
	}
	for _, k := range types.Kinds {
		s.tables[k].reset()
		s.bookmarks[k] = nil
	}
	s.home = ""
	s.owner = types.Owner{}
	s.history.reset()
	s.RequestRebuild()
	return nil
}

// RequestRebuild emits a rebuild event for every kind. Callers use it after
// batch transactions, which emit nothing themselves.
func (s *Store) RequestRebuild() {
	for _, k := range types.Kinds {
		s.bus.Emit(types.Event{Kind: k, Action: types.ActionRebuild})
	}
}

// InTransaction reports whether a transaction is currently open.
func (s *Store) InTransaction() bool { return s.active != nil }

// apply writes rec (or deletes when rec is nil) without journaling.
// Used by rollback, undo, and redo.
func (s *Store) apply(k types.Kind, h types.Handle, rec types.Record) {
	if rec == nil {
		s.tables[k].remove(h)
		return
	}
	s.tables[k].set(rec)
}
