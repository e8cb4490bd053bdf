package store

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/closet/pkg/types"
)

// fakeClock returns a settable clock for deterministic change stamps.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestStore(t *testing.T, opts ...Option) (*Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	opts = append([]Option{WithClock(clock.now)}, opts...)
	return New(opts...), clock
}

func addTextile(t *testing.T, s *Store, desc string) types.Handle {
	t.Helper()
	var h types.Handle
	err := s.Update("add "+desc, false, func(tx *Txn) error {
		var err error
		h, err = tx.Add(&types.Textile{Description: desc})
		return err
	})
	require.NoError(t, err)
	return h
}

func TestAddAssignsHandleAndID(t *testing.T) {
	s, _ := newTestStore(t)

	a := addTextile(t, s, "Shirt A")
	b := addTextile(t, s, "Shirt B")

	ta, ok := s.Textile(a)
	require.True(t, ok)
	tb, ok := s.Textile(b)
	require.True(t, ok)

	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
	assert.Equal(t, "I0001", ta.ID)
	assert.Equal(t, "I0002", tb.ID)
	assert.Equal(t, 2, s.Count(types.KindTextile))
}

func TestGetEqualsAddedRecord(t *testing.T) {
	s, clock := newTestStore(t)
	in := &types.Textile{
		Description: "Wool coat",
		Type:        "coat",
		Attributes:  []types.Attribute{{Type: "clo", Value: "1.2", Private: true}},
		URLs:        []types.URL{{Path: "https://example.com", Type: "shop"}},
		Tags:        []types.Handle{"tag1"},
	}
	want := in.Clone().(*types.Textile)

	var h types.Handle
	require.NoError(t, s.Update("add", false, func(tx *Txn) error {
		var err error
		h, err = tx.Add(in)
		return err
	}))

	got, ok := s.Textile(h)
	require.True(t, ok)
	want.Handle = h
	want.ID = "I0001"
	want.Change = clock.t.Unix()
	assert.Equal(t, want, got)
	assert.Equal(t, h, in.Handle, "Add writes the handle back")
}

func TestGetReturnsCopy(t *testing.T) {
	s, _ := newTestStore(t)
	h := addTextile(t, s, "Scarf")

	got, _ := s.Textile(h)
	got.Description = "mutated"
	again, _ := s.Textile(h)
	assert.Equal(t, "Scarf", again.Description)
}

func TestGetMissReturnsFalse(t *testing.T) {
	s, _ := newTestStore(t)
	_, ok := s.Get(types.KindTextile, "nope")
	assert.False(t, ok)
	_, ok = s.GetByID(types.KindNote, "N0001")
	assert.False(t, ok)
	_, ok = s.Get(types.Kind(99), "nope")
	assert.False(t, ok)
}

func TestGetByID(t *testing.T) {
	s, _ := newTestStore(t)
	h := addTextile(t, s, "Shirt")
	rec, ok := s.GetByID(types.KindTextile, "I0001")
	require.True(t, ok)
	assert.Equal(t, h, rec.Meta().Handle)
}

func TestRemoveAndUndoScenario(t *testing.T) {
	s, _ := newTestStore(t)
	a := addTextile(t, s, "Shirt A")
	b := addTextile(t, s, "Shirt B")

	require.NoError(t, s.Update("remove", false, func(tx *Txn) error {
		return tx.Remove(types.KindTextile, a)
	}))
	assert.Equal(t, 1, s.Count(types.KindTextile))
	_, ok := s.GetByID(types.KindTextile, "I0001")
	assert.False(t, ok, "removal purges the id index")

	// Undo the remove, then the add of Shirt B.
	ok, err := s.Undo()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, s.Count(types.KindTextile))

	ok, err = s.Undo()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, s.Count(types.KindTextile))

	restored, ok := s.Textile(a)
	require.True(t, ok)
	assert.Equal(t, "I0001", restored.ID)
	assert.False(t, s.Has(types.KindTextile, b))

	// Redo both and Shirt B is back with its original id.
	_, err = s.Redo()
	require.NoError(t, err)
	tb, ok := s.Textile(b)
	require.True(t, ok)
	assert.Equal(t, "I0002", tb.ID)
}

func TestUndoRedoRestoresExactState(t *testing.T) {
	s, clock := newTestStore(t)
	h := addTextile(t, s, "Jacket")
	pre, _ := s.Textile(h)

	clock.t = clock.t.Add(time.Hour)
	require.NoError(t, s.Update("edit", false, func(tx *Txn) error {
		rec, _ := tx.Store().Textile(h)
		rec.Description = "Rain jacket"
		rec.Notes = []types.Handle{"n1"}
		if err := tx.Put(rec); err != nil {
			return err
		}
		_, err := tx.Add(&types.Note{Text: types.StyledText{String: "waterproof"}})
		return err
	}))
	post, _ := s.Textile(h)
	postNotes := s.Count(types.KindNote)

	_, err := s.Undo()
	require.NoError(t, err)
	_, err = s.Redo()
	require.NoError(t, err)
	got, _ := s.Textile(h)
	assert.Equal(t, post, got)
	assert.Equal(t, postNotes, s.Count(types.KindNote))

	_, err = s.Undo()
	require.NoError(t, err)
	got, _ = s.Textile(h)
	assert.Equal(t, pre, got)
	assert.Equal(t, 0, s.Count(types.KindNote))
}

func TestUpdateRollsBackOnError(t *testing.T) {
	s, _ := newTestStore(t)
	existing := addTextile(t, s, "Keep me")
	boom := errors.New("boom")

	err := s.Update("failing", false, func(tx *Txn) error {
		if _, err := tx.Add(&types.Textile{Description: "temp"}); err != nil {
			return err
		}
		if err := tx.Remove(types.KindTextile, existing); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, s.Count(types.KindTextile))
	assert.True(t, s.Has(types.KindTextile, existing))
	assert.False(t, s.InTransaction())
	assert.Equal(t, 1, s.UndoDepth(), "failed transaction leaves no undo unit")
}

func TestUpdateRollsBackOnPanic(t *testing.T) {
	s, _ := newTestStore(t)
	assert.Panics(t, func() {
		_ = s.Update("panicking", true, func(tx *Txn) error {
			_, _ = tx.Add(&types.Tag{Name: "red"})
			panic("listener exploded")
		})
	})
	assert.Equal(t, 0, s.Count(types.KindTag))
	assert.False(t, s.InTransaction())
}

func TestBatchRollback(t *testing.T) {
	s, _ := newTestStore(t)
	tx, err := s.Begin("bulk", true)
	require.NoError(t, err)
	_, err = tx.Add(&types.Note{})
	require.NoError(t, err)
	tx.Rollback()
	assert.Equal(t, 0, s.Count(types.KindNote))
}

func TestSingleWriter(t *testing.T) {
	s, _ := newTestStore(t)
	tx, err := s.Begin("first", false)
	require.NoError(t, err)

	_, err = s.Begin("second", false)
	assert.ErrorIs(t, err, types.ErrTxnActive)
	_, err = s.Undo()
	assert.ErrorIs(t, err, types.ErrTxnActive)
	_, err = s.Redo()
	assert.ErrorIs(t, err, types.ErrTxnActive)
	assert.ErrorIs(t, s.Clear(), types.ErrTxnActive)

	require.NoError(t, tx.Commit())
	assert.ErrorIs(t, tx.Commit(), types.ErrTxnClosed)
	_, err = tx.Add(&types.Tag{})
	assert.ErrorIs(t, err, types.ErrTxnClosed)
	tx.Rollback() // no-op on a finished transaction
}

func TestRemoveMissing(t *testing.T) {
	s, _ := newTestStore(t)
	err := s.Update("remove", false, func(tx *Txn) error {
		return tx.Remove(types.KindTextile, "missing")
	})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestPutRequiresHandle(t *testing.T) {
	s, _ := newTestStore(t)
	err := s.Update("put", false, func(tx *Txn) error {
		return tx.Put(&types.Textile{})
	})
	assert.ErrorIs(t, err, types.ErrInvalidData)
}

func TestIDChangeDropsStaleIndexEntry(t *testing.T) {
	s, _ := newTestStore(t)
	h := addTextile(t, s, "Boots")

	require.NoError(t, s.Update("renumber", false, func(tx *Txn) error {
		rec, _ := tx.Store().Textile(h)
		rec.ID = "I0100"
		return tx.Put(rec)
	}))
	_, ok := s.GetByID(types.KindTextile, "I0001")
	assert.False(t, ok)
	rec, ok := s.GetByID(types.KindTextile, "I0100")
	require.True(t, ok)
	assert.Equal(t, h, rec.Meta().Handle)
}

func TestDuplicateIDIsLegalized(t *testing.T) {
	s, _ := newTestStore(t)
	addTextile(t, s, "First")

	dup := &types.Textile{Object: types.Object{ID: "I0001"}, Description: "Second"}
	require.NoError(t, s.Update("dup", false, func(tx *Txn) error {
		_, err := tx.Add(dup)
		return err
	}))
	assert.Equal(t, "I0002", dup.ID)
	assert.Equal(t, 2, s.Count(types.KindTextile))
}

func TestFindNextIDRespectsExternalIDs(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Update("seed", false, func(tx *Txn) error {
		for _, id := range []string{"I0001", "I0002", "I0003"} {
			if _, err := tx.Add(&types.Textile{Object: types.Object{ID: id}}); err != nil {
				return err
			}
		}
		return nil
	}))
	assert.Equal(t, "I0004", s.FindNextID(types.KindTextile))
	assert.Equal(t, "I0005", s.FindNextID(types.KindTextile))
	assert.Equal(t, "N0001", s.FindNextID(types.KindNote))
}

func TestChangeStampIsMonotonic(t *testing.T) {
	s, clock := newTestStore(t)
	h := addTextile(t, s, "Socks")
	first, _ := s.Textile(h)

	clock.t = clock.t.Add(-time.Hour)
	require.NoError(t, s.Update("edit", false, func(tx *Txn) error {
		rec, _ := tx.Store().Textile(h)
		rec.Description = "Wool socks"
		return tx.Put(rec)
	}))
	second, _ := s.Textile(h)
	assert.Equal(t, first.Change, second.Change)

	require.NoError(t, s.Update("import", false, func(tx *Txn) error {
		rec, _ := tx.Store().Textile(h)
		return tx.PutAt(rec, 5)
	}))
	third, _ := s.Textile(h)
	assert.Equal(t, first.Change, third.Change)
}

func TestNewCommitTruncatesRedo(t *testing.T) {
	s, _ := newTestStore(t)
	addTextile(t, s, "A")
	addTextile(t, s, "B")

	_, err := s.Undo()
	require.NoError(t, err)
	assert.True(t, s.CanRedo())
	assert.Equal(t, "add B", s.RedoDescription())

	addTextile(t, s, "C")
	assert.False(t, s.CanRedo())
	assert.Equal(t, "add C", s.UndoDescription())
	ok, err := s.Redo()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUndoLimit(t *testing.T) {
	s, _ := newTestStore(t, WithUndoLimit(2))
	addTextile(t, s, "A")
	addTextile(t, s, "B")
	addTextile(t, s, "C")
	assert.Equal(t, 2, s.UndoDepth())

	for s.CanUndo() {
		_, err := s.Undo()
		require.NoError(t, err)
	}
	assert.Equal(t, 1, s.Count(types.KindTextile), "the oldest transaction fell out of the history")
	assert.Empty(t, s.UndoDescription())
}

func TestBatchTransactionsAreNotUndoable(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Update("bulk", true, func(tx *Txn) error {
		_, err := tx.Add(&types.Textile{})
		return err
	}))
	assert.False(t, s.CanUndo())
	ok, err := s.Undo()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, s.Count(types.KindTextile))
}

func TestCursorSkipsDeleted(t *testing.T) {
	s, _ := newTestStore(t)
	a := addTextile(t, s, "A")
	addTextile(t, s, "B")

	c := s.Cursor(types.KindTextile)
	assert.Equal(t, 2, c.Len())
	require.NoError(t, s.Update("remove", false, func(tx *Txn) error {
		return tx.Remove(types.KindTextile, a)
	}))

	var seen []string
	for rec, ok := c.Next(); ok; rec, ok = c.Next() {
		seen = append(seen, rec.(*types.Textile).Description)
	}
	assert.Equal(t, []string{"B"}, seen)

	c.Reset()
	_, ok := c.Next()
	assert.True(t, ok)
}

func TestIterateInHandleOrder(t *testing.T) {
	s, _ := newTestStore(t)
	for _, d := range []string{"A", "B", "C"} {
		addTextile(t, s, d)
	}
	var handles []types.Handle
	s.Iterate(types.KindTextile, func(rec types.Record) bool {
		handles = append(handles, rec.Meta().Handle)
		return len(handles) < 2
	})
	assert.Len(t, handles, 2)
	assert.Equal(t, s.Handles(types.KindTextile)[:2], handles)
}

func TestBacklinks(t *testing.T) {
	s, _ := newTestStore(t)
	shirt := addTextile(t, s, "Shirt")
	var ens types.Handle
	require.NoError(t, s.Update("ensemble", false, func(tx *Txn) error {
		var err error
		ens, err = tx.Add(&types.Ensemble{Children: []types.ChildRef{{Ref: shirt}}})
		return err
	}))
	assert.Equal(t, []types.Reference{{Kind: types.KindEnsemble, Handle: ens}}, s.Backlinks(shirt))
	assert.Empty(t, s.Backlinks(ens))
}

func TestBookmarksAndHome(t *testing.T) {
	s, _ := newTestStore(t)
	h := addTextile(t, s, "Favorite")
	s.AddBookmark(types.KindTextile, h)
	s.AddBookmark(types.KindTextile, h)
	s.SetHome(h)
	assert.Equal(t, []types.Handle{h}, s.Bookmarks(types.KindTextile))
	assert.Equal(t, h, s.Home())

	s.RemoveBookmark(types.KindTextile, h)
	assert.Empty(t, s.Bookmarks(types.KindTextile))
}

func TestClear(t *testing.T) {
	s, _ := newTestStore(t)
	addTextile(t, s, "A")
	s.SetOwner(types.Owner{Name: "Ada"})

	var rebuilt []types.Kind
	s.Bus().SubscribeAll(func(ev types.Event) {
		if ev.Action == types.ActionRebuild {
			rebuilt = append(rebuilt, ev.Kind)
		}
	})
	require.NoError(t, s.Clear())
	assert.True(t, s.IsEmpty())
	assert.True(t, s.Owner().IsZero())
	assert.False(t, s.CanUndo())
	assert.Equal(t, types.Kinds, rebuilt)
	assert.Equal(t, "I0001", s.FindNextID(types.KindTextile))
}
