package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/closet/pkg/types"
)

func TestBatchCommitClearsUndoHistory(t *testing.T) {
	s, _ := newTestStore(t)
	shirt := addTextile(t, s, "Shirt")
	require.True(t, s.CanUndo())

	var outfit types.Handle
	require.NoError(t, s.Update("import", true, func(tx *Txn) error {
		var err error
		outfit, err = tx.Add(&types.Ensemble{Children: []types.ChildRef{{Ref: shirt}}})
		return err
	}))

	assert.False(t, s.CanUndo())
	assert.False(t, s.CanRedo())
	ok, err := s.Undo()
	require.NoError(t, err)
	assert.False(t, ok)

	ens, ok := s.Ensemble(outfit)
	require.True(t, ok)
	_, ok = s.Textile(ens.Children[0].Ref)
	assert.True(t, ok, "child reference still resolves")
}

func TestEmptyBatchKeepsUndoHistory(t *testing.T) {
	s, _ := newTestStore(t)
	addTextile(t, s, "Shirt")
	require.NoError(t, s.Update("nothing", true, func(*Txn) error { return nil }))
	assert.True(t, s.CanUndo())
}

func TestRemoveForgetsHomeAndBookmarks(t *testing.T) {
	s, _ := newTestStore(t)
	a := addTextile(t, s, "A")
	b := addTextile(t, s, "B")
	require.NoError(t, s.Update("favorites", false, func(tx *Txn) error {
		if err := tx.SetHome(a); err != nil {
			return err
		}
		if err := tx.AddBookmark(types.KindTextile, a); err != nil {
			return err
		}
		return tx.AddBookmark(types.KindTextile, b)
	}))

	require.NoError(t, s.Update("remove A", false, func(tx *Txn) error {
		return tx.Remove(types.KindTextile, a)
	}))
	assert.Empty(t, s.Home())
	assert.Equal(t, []types.Handle{b}, s.Bookmarks(types.KindTextile))

	ok, err := s.Undo()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, a, s.Home())
	assert.Equal(t, []types.Handle{a, b}, s.Bookmarks(types.KindTextile))

	ok, err = s.Redo()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, s.Home())
	assert.Equal(t, []types.Handle{b}, s.Bookmarks(types.KindTextile))
}

func TestStateChangesRollBack(t *testing.T) {
	s, _ := newTestStore(t)
	a := addTextile(t, s, "A")
	s.SetOwner(types.Owner{Name: "Ada"})

	err := s.Update("fails", false, func(tx *Txn) error {
		if err := tx.SetOwner(types.Owner{Name: "Grace"}); err != nil {
			return err
		}
		if err := tx.SetHome(a); err != nil {
			return err
		}
		if err := tx.AddBookmark(types.KindTextile, a); err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, "Ada", s.Owner().Name)
	assert.Empty(t, s.Home())
	assert.Empty(t, s.Bookmarks(types.KindTextile))
	assert.Equal(t, "add A", s.UndoDescription())
}

func TestStateOnlyTransactionIsUndoableAndSilent(t *testing.T) {
	s, _ := newTestStore(t)
	a := addTextile(t, s, "A")
	got := recordEvents(s)

	require.NoError(t, s.Update("set home", false, func(tx *Txn) error {
		return tx.SetHome(a)
	}))
	assert.Equal(t, "set home", s.UndoDescription())
	assert.Empty(t, *got)

	_, err := s.Undo()
	require.NoError(t, err)
	assert.Empty(t, s.Home())
	assert.Empty(t, *got)
}

func TestUnchangedStateIsNotJournaled(t *testing.T) {
	s, _ := newTestStore(t)
	a := addTextile(t, s, "A")
	s.AddBookmark(types.KindTextile, a)

	tx, err := s.Begin("again", false)
	require.NoError(t, err)
	require.NoError(t, tx.AddBookmark(types.KindTextile, a))
	require.NoError(t, tx.RemoveBookmark(types.KindNote, a))
	assert.Equal(t, 0, tx.Len())
	require.NoError(t, tx.Commit())
	assert.Equal(t, "add A", s.UndoDescription())

	tx, err = s.Begin("bad kind", false)
	require.NoError(t, err)
	assert.ErrorIs(t, tx.AddBookmark(types.Kind(99), a), types.ErrUnknownKind)
	tx.Rollback()
}
