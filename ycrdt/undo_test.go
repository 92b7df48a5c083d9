package ycrdt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUndoManager_UndoRedoInsert(t *testing.T) {
	doc := NewDoc(Options{ClientID: 1})
	text, err := GetText(doc, "t")
	require.NoError(t, err)

	um := NewUndoManager(doc, text)

	require.NoError(t, text.Insert(0, "hello"))
	require.Equal(t, "hello", text.String())

	ok, err := um.Undo()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "", text.String())

	ok, err = um.Redo()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "hello", text.String())
}

func TestUndoManager_UndoRestoresDeletion(t *testing.T) {
	doc := NewDoc(Options{ClientID: 1})
	arr, err := GetArray[string](doc, "a")
	require.NoError(t, err)
	require.NoError(t, arr.Insert(0, "a", "b", "c"))

	um := NewUndoManager(doc, arr)

	require.NoError(t, arr.Delete(1, 1))
	slice, err := arr.ToSlice()
	require.NoError(t, err)
	require.Equal(t, []string{"a", "c"}, slice)

	ok, err := um.Undo()
	require.NoError(t, err)
	require.True(t, ok)
	slice, err = arr.ToSlice()
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, slice)
}

func TestUndoManager_OutOfScopeChangesAreIgnored(t *testing.T) {
	doc := NewDoc(Options{ClientID: 1})
	tracked, err := GetText(doc, "tracked")
	require.NoError(t, err)
	untracked, err := GetText(doc, "untracked")
	require.NoError(t, err)

	um := NewUndoManager(doc, tracked)

	require.NoError(t, untracked.Insert(0, "ignored"))
	require.False(t, um.CanUndo())

	require.NoError(t, tracked.Insert(0, "watched"))
	require.True(t, um.CanUndo())

	ok, err := um.Undo()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "", tracked.String())
	require.Equal(t, "ignored", untracked.String())
}
