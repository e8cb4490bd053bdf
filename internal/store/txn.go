package store

import (
	"fmt"

	"github.com/mesh-intelligence/closet/pkg/types"
)

// diff is one journaled write. A nil old means the record did not exist
// before the write; a nil new means the write deleted it. Changes to the
// collection state set before and after instead of a record.
type diff struct {
	kind   types.Kind
	handle types.Handle
	old    types.Record
	new    types.Record

	before, after *collectionState
}

// Txn is an open transaction. Every write is journaled in execution order so
// the transaction can be rolled back, and, unless it is a batch transaction,
// pushed onto the undo history and announced on commit.
type Txn struct {
	store   *Store
	desc    string
	batch   bool
	journal []diff
	done    bool
}

// Begin opens a transaction. Only one transaction may be open at a time.
// Batch transactions skip undo bookkeeping and change notification.
func (s *Store) Begin(desc string, batch bool) (*Txn, error) {
	if s.active != nil {
		return nil, fmt.Errorf("begin %q: %w", desc, types.ErrTxnActive)
	}
	tx := &Txn{store: s, desc: desc, batch: batch}
	s.active = tx
	return tx, nil
}

// Update runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back when fn returns an error or panics.
func (s *Store) Update(desc string, batch bool, fn func(tx *Txn) error) (err error) {
	tx, err := s.Begin(desc, batch)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Description returns the transaction description.
func (tx *Txn) Description() string { return tx.desc }

// Batch reports whether this is a batch transaction.
func (tx *Txn) Batch() bool { return tx.batch }

// Len returns the number of journaled writes.
func (tx *Txn) Len() int { return len(tx.journal) }

// Store returns the store the transaction writes to.
func (tx *Txn) Store() *Store { return tx.store }

func (tx *Txn) check() error {
	if tx.done {
		return types.ErrTxnClosed
	}
	return nil
}

// Add stores a new record. A missing handle is minted and a missing user ID
// is allocated; both are written back to rec. Returns the record's handle.
func (tx *Txn) Add(rec types.Record) (types.Handle, error) {
	if err := tx.check(); err != nil {
		return "", err
	}
	if rec == nil || !rec.Kind().Valid() {
		return "", types.ErrInvalidData
	}
	meta := rec.Meta()
	if meta.Handle == "" {
		meta.Handle = types.NewHandle()
	}
	if meta.ID == "" {
		meta.ID = tx.store.FindNextID(rec.Kind())
	}
	if err := tx.put(rec, 0, true); err != nil {
		return "", err
	}
	return meta.Handle, nil
}

// Put commits rec. A record whose handle is not yet stored is added,
// otherwise the stored version is replaced. The change stamp is set to the
// current time, never moving backwards for an existing record.
func (tx *Txn) Put(rec types.Record) error {
	return tx.put(rec, 0, true)
}

// PutAt commits rec with an explicit change stamp, as used when loading
// records from a document. The stamp still never moves backwards.
func (tx *Txn) PutAt(rec types.Record, change int64) error {
	return tx.put(rec, change, false)
}

func (tx *Txn) put(rec types.Record, change int64, stamp bool) error {
	if err := tx.check(); err != nil {
		return err
	}
	if rec == nil || !rec.Kind().Valid() {
		return types.ErrInvalidData
	}
	k := rec.Kind()
	h := rec.Meta().Handle
	if h == "" {
		return fmt.Errorf("put %s without handle: %w", k, types.ErrInvalidData)
	}

	t := tx.store.tables[k]
	old, exists := t.get(h)

	stored := rec.Clone()
	meta := stored.Meta()
	if meta.ID == "" {
		meta.ID = t.nextID()
	} else if owner, used := t.ids[meta.ID]; used && owner != h {
		id := t.nextID()
		tx.store.log.Warn().
			Str("kind", k.String()).
			Str("handle", string(h)).
			Str("id", meta.ID).
			Str("assigned", id).
			Msg("duplicate user id replaced")
		meta.ID = id
	}
	if stamp {
		change = tx.store.now().Unix()
	}
	if exists && old.Meta().Change > change {
		change = old.Meta().Change
	}
	meta.Change = change

	rec.Meta().ID = meta.ID
	rec.Meta().Change = meta.Change

	t.set(stored)
	tx.journal = append(tx.journal, diff{kind: k, handle: h, old: old, new: stored})
	return nil
}

// Remove deletes the record of kind k with handle h and drops it from the
// home textile and the bookmarks. Returns ErrNotFound when no such record
// exists.
func (tx *Txn) Remove(k types.Kind, h types.Handle) error {
	if err := tx.check(); err != nil {
		return err
	}
	if !k.Valid() {
		return types.ErrUnknownKind
	}
	old, ok := tx.store.tables[k].remove(h)
	if !ok {
		return fmt.Errorf("remove %s %s: %w", k, h, types.ErrNotFound)
	}
	tx.journal = append(tx.journal, diff{kind: k, handle: h, old: old})
	return tx.forget(k, h)
}

// Commit finishes the transaction. Non-batch transactions with at least one
// write become one undo unit and announce their net changes. A batch
// transaction with writes clears the undo history, since earlier units may
// no longer apply to the state it built.
func (tx *Txn) Commit() error {
	if err := tx.check(); err != nil {
		return err
	}
	s := tx.store
	tx.done = true
	s.active = nil

	s.log.Debug().
		Str("txn", tx.desc).
		Bool("batch", tx.batch).
		Int("writes", len(tx.journal)).
		Msg("transaction committed")

	if len(tx.journal) == 0 {
		return nil
	}
	if tx.batch {
		s.history.reset()
		return nil
	}
	s.seq++
	s.history.push(unit{
		seq:   s.seq,
		desc:  tx.desc,
		at:    s.now(),
		diffs: tx.journal,
	})
	s.bus.emitAll(netEvents(tx.journal, false))
	return nil
}

// Rollback reverts every write of the transaction in reverse order. It is a
// no-op on a finished transaction, so it is safe to defer.
func (tx *Txn) Rollback() {
	if tx.done {
		return
	}
	s := tx.store
	for i := len(tx.journal) - 1; i >= 0; i-- {
		s.revert(tx.journal[i])
	}
	s.log.Debug().
		Str("txn", tx.desc).
		Int("writes", len(tx.journal)).
		Msg("transaction rolled back")
	tx.journal = nil
	tx.done = true
	s.active = nil
}
