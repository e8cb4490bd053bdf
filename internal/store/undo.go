package store

import (
	"time"

	"github.com/mesh-intelligence/closet/pkg/types"
)

// unit is one committed transaction in the undo history. Units are
// immutable once pushed.
type unit struct {
	seq   uint64
	desc  string
	at    time.Time
	diffs []diff
}

// history is an arena of units. Units before pos can be undone; units from
// pos onward can be redone. Pushing a new unit truncates the redo part.
type history struct {
	units []unit
	pos   int
	limit int
}

func (h *history) push(u unit) {
	clear(h.units[h.pos:])
	h.units = append(h.units[:h.pos], u)
	if h.limit > 0 && len(h.units) > h.limit {
		drop := len(h.units) - h.limit
		clear(h.units[:drop])
		h.units = h.units[drop:]
	}
	h.pos = len(h.units)
}

func (h *history) undo() (unit, bool) {
	if h.pos == 0 {
		return unit{}, false
	}
	h.pos--
	return h.units[h.pos], true
}

func (h *history) redo() (unit, bool) {
	if h.pos == len(h.units) {
		return unit{}, false
	}
	u := h.units[h.pos]
	h.pos++
	return u, true
}

func (h *history) reset() {
	h.units = nil
	h.pos = 0
}

// Undo reverts the most recent committed transaction, replaying its writes
// in reverse and announcing the inverse changes. Returns false when there is
// nothing to undo.
func (s *Store) Undo() (bool, error) {
	if s.active != nil {
		return false, types.ErrTxnActive
	}
	u, ok := s.history.undo()
	if !ok {
		return false, nil
	}
	for i := len(u.diffs) - 1; i >= 0; i-- {
		s.revert(u.diffs[i])
	}
	s.log.Debug().Uint64("seq", u.seq).Str("txn", u.desc).Msg("undo")
	s.bus.emitAll(netEvents(u.diffs, true))
	return true, nil
}

// Redo reapplies the most recently undone transaction.
// Returns false when there is nothing to redo.
func (s *Store) Redo() (bool, error) {
	if s.active != nil {
		return false, types.ErrTxnActive
	}
	u, ok := s.history.redo()
	if !ok {
		return false, nil
	}
	for _, d := range u.diffs {
		s.replay(d)
	}
	s.log.Debug().Uint64("seq", u.seq).Str("txn", u.desc).Msg("redo")
	s.bus.emitAll(netEvents(u.diffs, false))
	return true, nil
}

// CanUndo reports whether Undo would revert a transaction.
func (s *Store) CanUndo() bool { return s.history.pos > 0 }

// CanRedo reports whether Redo would reapply a transaction.
func (s *Store) CanRedo() bool { return s.history.pos < len(s.history.units) }

// UndoDescription returns the description of the transaction Undo would
// revert, or "".
func (s *Store) UndoDescription() string {
	if !s.CanUndo() {
		return ""
	}
	return s.history.units[s.history.pos-1].desc
}

// RedoDescription returns the description of the transaction Redo would
// reapply, or "".
func (s *Store) RedoDescription() string {
	if !s.CanRedo() {
		return ""
	}
	return s.history.units[s.history.pos].desc
}

// UndoDepth returns the number of transactions that can be undone.
func (s *Store) UndoDepth() int { return s.history.pos }
