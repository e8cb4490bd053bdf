package store

import (
	"slices"

	"github.com/mesh-intelligence/closet/pkg/types"
)

// collectionState is the collection-level data a transaction can change
// besides records.
type collectionState struct {
	owner     types.Owner
	home      types.Handle
	bookmarks [types.NumKinds][]types.Handle
}

func (st collectionState) equal(o collectionState) bool {
	if st.owner != o.owner || st.home != o.home {
		return false
	}
	for k := range st.bookmarks {
		if !slices.Equal(st.bookmarks[k], o.bookmarks[k]) {
			return false
		}
	}
	return true
}

func (s *Store) state() collectionState {
	st := collectionState{owner: s.owner, home: s.home}
	for k := range s.bookmarks {
		st.bookmarks[k] = slices.Clone(s.bookmarks[k])
	}
	return st
}

func (s *Store) restore(st collectionState) {
	s.owner = st.owner
	s.home = st.home
	for k := range st.bookmarks {
		s.bookmarks[k] = slices.Clone(st.bookmarks[k])
	}
}

// revert undoes one journaled write.
func (s *Store) revert(d diff) {
	if d.after != nil {
		s.restore(*d.before)
		return
	}
	s.apply(d.kind, d.handle, d.old)
}

// replay reapplies one journaled write.
func (s *Store) replay(d diff) {
	if d.after != nil {
		s.restore(*d.after)
		return
	}
	s.apply(d.kind, d.handle, d.new)
}

// changeState applies fn to the collection state and journals the change.
// An fn that changes nothing journals nothing.
func (tx *Txn) changeState(fn func(st *collectionState)) error {
	if err := tx.check(); err != nil {
		return err
	}
	s := tx.store
	before, after := s.state(), s.state()
	fn(&after)
	if before.equal(after) {
		return nil
	}
	s.restore(after)
	tx.journal = append(tx.journal, diff{before: &before, after: &after})
	return nil
}

// SetOwner replaces the collection owner as part of the transaction.
func (tx *Txn) SetOwner(o types.Owner) error {
	return tx.changeState(func(st *collectionState) { st.owner = o })
}

// SetHome sets the default textile as part of the transaction. An empty
// handle clears it.
func (tx *Txn) SetHome(h types.Handle) error {
	return tx.changeState(func(st *collectionState) { st.home = h })
}

// AddBookmark appends h to the bookmarks of kind k unless already present.
func (tx *Txn) AddBookmark(k types.Kind, h types.Handle) error {
	if !k.Valid() {
		return types.ErrUnknownKind
	}
	return tx.changeState(func(st *collectionState) {
		if !slices.Contains(st.bookmarks[k], h) {
			st.bookmarks[k] = append(st.bookmarks[k], h)
		}
	})
}

// RemoveBookmark drops h from the bookmarks of kind k.
func (tx *Txn) RemoveBookmark(k types.Kind, h types.Handle) error {
	if !k.Valid() {
		return types.ErrUnknownKind
	}
	return tx.changeState(func(st *collectionState) {
		st.bookmarks[k] = slices.DeleteFunc(st.bookmarks[k], func(b types.Handle) bool { return b == h })
	})
}

// forget drops h from home and the bookmarks once its record is gone.
func (tx *Txn) forget(k types.Kind, h types.Handle) error {
	return tx.changeState(func(st *collectionState) {
		if k == types.KindTextile && st.home == h {
			st.home = ""
		}
		st.bookmarks[k] = slices.DeleteFunc(st.bookmarks[k], func(b types.Handle) bool { return b == h })
	})
}
