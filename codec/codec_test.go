package codec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Horusiath/y-crdt/block"
)

func sampleBlocks() []*block.Block {
	return []*block.Block{
		{
			ID:      block.ID{Client: 1, Clock: 0},
			Len:     3,
			Content: block.NewString("abc"),
			Parent:  block.ParentRef{RootName: "text"},
		},
		{
			ID:            block.ID{Client: 1, Clock: 3},
			Len:           1,
			Content:       block.Embed{Value: "x"},
			Parent:        block.ParentRef{RootName: "arr"},
			HasOriginLeft: true,
			OriginLeft:    block.ID{Client: 1, Clock: 2},
			Deleted:       true,
		},
		{
			ID:      block.ID{Client: 2, Clock: 0},
			Len:     1,
			Content: block.Embed{Value: "new"},
			Parent:  block.ParentRef{RootName: "map", MapKey: "k"},
		},
	}
}

func sampleDeleteSet() block.DeleteSet {
	ds := block.NewDeleteSet()
	ds.Add(block.ID{Client: 1, Clock: 3}, 1)
	ds.Add(block.ID{Client: 2, Clock: 5}, 2)
	return ds
}

func requireBlocksEqual(t *testing.T, want, got []*block.Block) {
	t.Helper()
	require.Equal(t, len(want), len(got))
	for i := range want {
		w, g := want[i], got[i]
		require.Equal(t, w.ID, g.ID, "block %d id", i)
		require.Equal(t, w.Len, g.Len, "block %d len", i)
		require.Equal(t, w.HasOriginLeft, g.HasOriginLeft, "block %d hasOriginLeft", i)
		require.Equal(t, w.OriginLeft, g.OriginLeft, "block %d originLeft", i)
		require.Equal(t, w.HasOriginRight, g.HasOriginRight, "block %d hasOriginRight", i)
		require.Equal(t, w.OriginRight, g.OriginRight, "block %d originRight", i)
		require.Equal(t, w.Parent, g.Parent, "block %d parent", i)
		require.Equal(t, w.Deleted, g.Deleted, "block %d deleted", i)
		require.Equal(t, w.Content, g.Content, "block %d content", i)
	}
}

func TestUpdateV1_RoundTrip(t *testing.T) {
	blocks := sampleBlocks()
	ds := sampleDeleteSet()

	data, err := EncodeUpdateV1(blocks, ds)
	require.NoError(t, err)

	gotBlocks, gotDS, err := DecodeUpdateV1(data)
	require.NoError(t, err)

	requireBlocksEqual(t, blocks, gotBlocks)
	require.Equal(t, ds, gotDS)
}

func TestUpdateV2_RoundTrip(t *testing.T) {
	blocks := sampleBlocks()
	ds := sampleDeleteSet()

	data, err := EncodeUpdateV2(blocks, ds)
	require.NoError(t, err)

	gotBlocks, gotDS, err := DecodeUpdateV2(data)
	require.NoError(t, err)

	requireBlocksEqual(t, blocks, gotBlocks)
	require.Equal(t, ds, gotDS)
}

func TestStateVector_RoundTrip(t *testing.T) {
	sv := block.StateVector{1: 10, 2: 0, 5: 42}
	data := EncodeStateVector(sv)
	got, err := DecodeStateVector(data)
	require.NoError(t, err)
	require.Equal(t, sv, got)
}

func TestStateVector_EmptyEncodesToSingleZeroByte(t *testing.T) {
	data := EncodeStateVector(block.StateVector{})
	require.Equal(t, []byte{0}, data)
}

// TestEncodeStateAsUpdate_OnlyEmitsUnseenSuffix exercises spec §4.5's delta
// property: a state vector covering everything a store holds produces an
// update with zero blocks, and a state vector covering a strict prefix
// produces exactly the missing suffix, split at the boundary when needed.
func TestEncodeStateAsUpdate_OnlyEmitsUnseenSuffix(t *testing.T) {
	store := block.NewStore()
	_, err := store.GetOrCreateBranch("text", block.KindText)
	require.NoError(t, err)

	require.NoError(t, store.Append(&block.Block{
		ID:      block.ID{Client: 1, Clock: 0},
		Len:     5,
		Content: block.NewString("hello"),
		Parent:  block.ParentRef{RootName: "text"},
	}))

	full, err := EncodeStateAsUpdate(store, block.StateVector{}, V1)
	require.NoError(t, err)
	fullBlocks, _, err := DecodeUpdateV1(full)
	require.NoError(t, err)
	require.Len(t, fullBlocks, 1)
	require.Equal(t, block.Clock(5), fullBlocks[0].Len)

	partial, err := EncodeStateAsUpdate(store, block.StateVector{1: 2}, V1)
	require.NoError(t, err)
	partialBlocks, _, err := DecodeUpdateV1(partial)
	require.NoError(t, err)
	require.Len(t, partialBlocks, 1)
	require.Equal(t, block.Clock(2), partialBlocks[0].ID.Clock)
	require.Equal(t, block.Clock(3), partialBlocks[0].Len)
	require.Equal(t, "llo", partialBlocks[0].Content.(block.String).String())

	upToDate, err := EncodeStateAsUpdate(store, block.StateVector{1: 5}, V1)
	require.NoError(t, err)
	upToDateBlocks, _, err := DecodeUpdateV1(upToDate)
	require.NoError(t, err)
	require.Empty(t, upToDateBlocks)
}

func TestVarint_RoundTrip(t *testing.T) {
	w := &Writer{}
	values := []uint64{0, 1, 127, 128, 300, 1 << 20, 1 << 40}
	for _, v := range values {
		w.WriteUvarint(v)
	}
	r := NewReader(w.Bytes())
	for _, want := range values {
		got, err := r.ReadUvarint()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestVarint_SignedZigzagRoundTrip(t *testing.T) {
	w := &Writer{}
	values := []int64{0, 1, -1, 1000, -1000, 1 << 30, -(1 << 30)}
	for _, v := range values {
		w.WriteVarint(v)
	}
	r := NewReader(w.Bytes())
	for _, want := range values {
		got, err := r.ReadVarint()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}
