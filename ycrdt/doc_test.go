package ycrdt

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Horusiath/y-crdt/block"
	"github.com/Horusiath/y-crdt/codec"
	"github.com/Horusiath/y-crdt/yerr"
)

func fullUpdate(t *testing.T, d *Doc) []byte {
	t.Helper()
	data, err := codec.EncodeStateAsUpdate(d.store, block.StateVector{}, codec.V1)
	require.NoError(t, err)
	return data
}

func TestText_InsertDeleteAndString(t *testing.T) {
	doc := NewDoc(Options{ClientID: 1})
	text, err := GetText(doc, "t")
	require.NoError(t, err)

	require.NoError(t, text.Insert(0, "Hello"))
	require.NoError(t, text.Insert(5, " World"))
	require.Equal(t, "Hello World", text.String())

	require.NoError(t, text.Delete(5, 6))
	require.Equal(t, "Hello", text.String())
}

func TestArray_InsertGetDeleteToSlice(t *testing.T) {
	doc := NewDoc(Options{ClientID: 1})
	arr, err := GetArray[int](doc, "a")
	require.NoError(t, err)

	require.NoError(t, arr.Insert(0, 1, 2, 3))
	require.Equal(t, 3, arr.Len())

	v, err := arr.Get(1)
	require.NoError(t, err)
	require.Equal(t, 2, v)

	require.NoError(t, arr.Delete(1, 1))
	slice, err := arr.ToSlice()
	require.NoError(t, err)
	require.Equal(t, []int{1, 3}, slice)
}

// TestMap_LastWriterWinsAcrossReplicas exercises spec §4.2's map rule end
// to end: two replicas write the same key concurrently, and after
// exchanging updates both converge on the entry with the higher
// (clock, client_id) id — here, the higher client id, since both entries
// land at clock 0.
func TestMap_LastWriterWinsAcrossReplicas(t *testing.T) {
	doc1 := NewDoc(Options{ClientID: 1})
	doc2 := NewDoc(Options{ClientID: 2})

	m1, err := GetMap[string](doc1, "m")
	require.NoError(t, err)
	m2, err := GetMap[string](doc2, "m")
	require.NoError(t, err)

	require.NoError(t, m1.Set("key", "from1"))
	require.NoError(t, m2.Set("key", "from2"))

	update1 := fullUpdate(t, doc1)
	update2 := fullUpdate(t, doc2)

	require.NoError(t, ApplyUpdate(doc2, update1, codec.V1))
	require.NoError(t, ApplyUpdate(doc1, update2, codec.V1))

	v1, ok1 := m1.Get("key")
	require.True(t, ok1)
	v2, ok2 := m2.Get("key")
	require.True(t, ok2)
	require.Equal(t, "from2", v1)
	require.Equal(t, "from2", v2)
}

// TestText_ConcurrentInsertConvergesWithLowerClientLeftmost mirrors the
// block-level tie-break test at the Doc/transaction layer: two replicas
// insert at the same (absent) origin concurrently, and after exchanging
// updates both converge on the same order with the lower client id
// leftmost, regardless of which replica applied which insert first.
func TestText_ConcurrentInsertConvergesWithLowerClientLeftmost(t *testing.T) {
	doc1 := NewDoc(Options{ClientID: 1})
	doc2 := NewDoc(Options{ClientID: 2})

	t1, err := GetText(doc1, "t")
	require.NoError(t, err)
	t2, err := GetText(doc2, "t")
	require.NoError(t, err)

	require.NoError(t, t1.Insert(0, "A"))
	require.NoError(t, t2.Insert(0, "B"))

	update1 := fullUpdate(t, doc1)
	update2 := fullUpdate(t, doc2)

	require.NoError(t, ApplyUpdate(doc2, update1, codec.V1))
	require.NoError(t, ApplyUpdate(doc1, update2, codec.V1))

	require.Equal(t, "AB", t1.String())
	require.Equal(t, "AB", t2.String())
}

// TestWeakLink_RangeAbsorbsLaterInsert exercises spec §4.6's "open at the
// right" absorption rule: a range link created over [0,2) of an array
// keeps including whatever gets spliced between its quoted endpoints'
// live neighbors later, because Unquote re-walks the live linked list at
// call time instead of a cached snapshot.
func TestWeakLink_RangeAbsorbsLaterInsert(t *testing.T) {
	doc := NewDoc(Options{ClientID: 1})
	arr, err := GetArray[string](doc, "a")
	require.NoError(t, err)
	require.NoError(t, arr.Insert(0, "a", "c"))

	link, err := arr.LinkRange(0, 2)
	require.NoError(t, err)

	links, err := GetMap[any](doc, "links")
	require.NoError(t, err)
	wl, err := links.SetLink("ac", link)
	require.NoError(t, err)

	require.NoError(t, arr.Insert(1, "b"))

	got := wl.Unquote()
	require.Equal(t, []any{"a", "b", "c"}, got)
}

// TestObserveDeep_AcrossWeakLink exercises spec §9's deep-observe
// propagation across a weak link: a change to the linked-to collection
// bubbles into the linking collection's deep observers too, exactly once
// per commit.
func TestObserveDeep_AcrossWeakLink(t *testing.T) {
	doc := NewDoc(Options{ClientID: 1})
	inner, err := GetMap[string](doc, "inner")
	require.NoError(t, err)
	outer, err := GetMap[any](doc, "outer")
	require.NoError(t, err)

	require.NoError(t, inner.Set("x", "v1"))
	link := inner.LinkKey("x")
	_, err = outer.SetLink("ref", link)
	require.NoError(t, err)

	var batches [][]Event
	sub, err := outer.ObserveDeep(func(evs []Event) {
		batches = append(batches, evs)
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, inner.Set("x", "v2"))

	require.Len(t, batches, 1)
	require.Len(t, batches[0], 1)
	require.Equal(t, "x", batches[0][0].Key)
	require.Equal(t, "v2", batches[0][0].NewValue)
}

// TestApplyUpdate_Idempotent exercises spec §4.5's idempotence property:
// re-applying the same update a second time changes nothing.
func TestApplyUpdate_Idempotent(t *testing.T) {
	doc1 := NewDoc(Options{ClientID: 1})
	t1, err := GetText(doc1, "t")
	require.NoError(t, err)
	require.NoError(t, t1.Insert(0, "abc"))
	update := fullUpdate(t, doc1)

	doc2 := NewDoc(Options{ClientID: 2})
	t2, err := GetText(doc2, "t")
	require.NoError(t, err)

	require.NoError(t, ApplyUpdate(doc2, update, codec.V1))
	require.NoError(t, ApplyUpdate(doc2, update, codec.V1))

	require.Equal(t, "abc", t2.String())
}

// TestObserve_PanicInOneCallbackDoesNotStopOthers exercises spec §9's
// observer isolation: a panicking callback is recovered and logged, and
// every other registered callback for the same commit still runs, in
// registration order.
func TestObserve_PanicInOneCallbackDoesNotStopOthers(t *testing.T) {
	doc := NewDoc(Options{ClientID: 1})
	arr, err := GetArray[int](doc, "a")
	require.NoError(t, err)

	var order []string
	sub1, err := arr.Observe(func(Event) {
		order = append(order, "first")
		panic("boom")
	})
	require.NoError(t, err)
	defer sub1.Unsubscribe()

	sub2, err := arr.Observe(func(Event) {
		order = append(order, "second")
	})
	require.NoError(t, err)
	defer sub2.Unsubscribe()

	require.NoError(t, arr.Insert(0, 1))
	require.Equal(t, []string{"first", "second"}, order)
}

// TestPreliminaryArray_BuffersUntilAttach exercises spec §9's preliminary
// handle buffering: operations performed before Attach apply as soon as
// the handle is attached, in the order they were issued.
func TestPreliminaryArray_BuffersUntilAttach(t *testing.T) {
	arr := NewArray[string]()
	_, err := arr.Observe(func(Event) {})
	require.ErrorIs(t, err, yerr.Sentinel(yerr.ObserveOnPreliminary))

	require.NoError(t, arr.Insert(0, "a"))
	require.NoError(t, arr.Insert(1, "b"))

	doc := NewDoc(Options{ClientID: 1})
	require.NoError(t, arr.Attach(doc, "a"))

	slice, err := arr.ToSlice()
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, slice)
}
