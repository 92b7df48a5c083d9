package block

import "testing"

func newTestBlock(client ClientID, clock Clock, s string) *Block {
	c := NewString(s)
	return &Block{ID: ID{Client: client, Clock: clock}, Len: c.Len(), Content: c}
}

func TestStore_AppendRejectsGap(t *testing.T) {
	s := NewStore()
	if err := s.Append(newTestBlock(1, 0, "hello")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Append(newTestBlock(1, 10, "world")); err == nil {
		t.Error("expected append at a non-contiguous clock to fail")
	}
}

func TestStore_GetItemSplitsInPlace(t *testing.T) {
	s := NewStore()
	b := newTestBlock(1, 0, "hello world")
	if err := s.Append(b); err != nil {
		t.Fatal(err)
	}

	right, err := s.GetItem(ID{Client: 1, Clock: 6})
	if err != nil {
		t.Fatal(err)
	}
	if right.ID.Clock != 6 {
		t.Errorf("expected split id clock 6, got %d", right.ID.Clock)
	}
	if b.Len != 6 {
		t.Errorf("expected left half len 6, got %d", b.Len)
	}
	if right.Len != 5 {
		t.Errorf("expected right half len 5, got %d", right.Len)
	}
	if b.Content.(String).String() != "hello " {
		t.Errorf("unexpected left content %q", b.Content.(String).String())
	}
	if right.Content.(String).String() != "world" {
		t.Errorf("unexpected right content %q", right.Content.(String).String())
	}
}

func TestStore_SplitMergeSymmetry(t *testing.T) {
	s := NewStore()
	b := newTestBlock(1, 0, "abcdef")
	if err := s.Append(b); err != nil {
		t.Fatal(err)
	}
	branch := &Branch{Kind: KindText, Start: b, End: b}

	right, err := s.GetItem(ID{Client: 1, Clock: 3})
	if err != nil {
		t.Fatal(err)
	}
	// Wire the two halves into branch order, as the integrator would.
	b.Right, right.Left = right, b
	branch.End = right

	if !s.MergeAdjacent(b, right) {
		t.Fatal("expected adjacent halves to merge back together")
	}
	if b.Content.(String).String() != "abcdef" {
		t.Errorf("expected merge to restore original content, got %q", b.Content.(String).String())
	}
	if b.Len != 6 {
		t.Errorf("expected merged len 6, got %d", b.Len)
	}
	if b.Right != nil {
		t.Error("expected merged block to have no right neighbor (branch end)")
	}
}

func TestStore_MergeAdjacentRejectsDifferentDeletedFlags(t *testing.T) {
	s := NewStore()
	a := newTestBlock(1, 0, "ab")
	b := newTestBlock(1, 2, "cd")
	b.Deleted = true
	if err := s.Append(a); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(b); err != nil {
		t.Fatal(err)
	}
	a.Right, b.Left = b, a

	if s.MergeAdjacent(a, b) {
		t.Error("blocks with differing Deleted flags must not merge")
	}
}

func TestStore_DeleteSplitsAndMarks(t *testing.T) {
	s := NewStore()
	b := newTestBlock(1, 0, "hello world")
	if err := s.Append(b); err != nil {
		t.Fatal(err)
	}
	branch := &Branch{Kind: KindText, Start: b, End: b}

	touched, err := s.Delete(branch, 5, 1) // delete the space
	if err != nil {
		t.Fatal(err)
	}
	if len(touched) != 1 {
		t.Fatalf("expected exactly one touched range, got %d", len(touched))
	}

	var deletedCount int
	for cur := branch.Start; cur != nil; cur = cur.Right {
		if cur.Deleted {
			deletedCount++
			if cur.Len != 1 {
				t.Errorf("expected deleted block of len 1, got %d", cur.Len)
			}
		}
	}
	if deletedCount != 1 {
		t.Errorf("expected exactly one deleted block, got %d", deletedCount)
	}
}

func TestStore_GetOrCreateBranch_TypeMismatch(t *testing.T) {
	s := NewStore()
	if _, err := s.GetOrCreateBranch("root", KindArray); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetOrCreateBranch("root", KindMap); err == nil {
		t.Error("expected TypeMismatch when reinterpreting a root under a different kind")
	}
}
