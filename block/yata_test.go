package block

import "testing"

func setupRootBranch(s *Store, name string, kind Kind) *Branch {
	b, err := s.GetOrCreateBranch(name, kind)
	if err != nil {
		panic(err)
	}
	return b
}

func embedBlock(client ClientID, clock Clock, value any, parent string) *Block {
	return &Block{
		ID:      ID{Client: client, Clock: clock},
		Len:     1,
		Content: Embed{Value: value},
		Parent:  ParentRef{RootName: parent},
	}
}

func sequenceValues(branch *Branch) []any {
	var out []any
	for b := branch.Start; b != nil; b = b.Right {
		if b.Deleted {
			continue
		}
		out = append(out, b.Content.(Embed).Value)
	}
	return out
}

func TestYata_ConcurrentInsertAtHead_TieBreaksByClient(t *testing.T) {
	// Replica where 'A' (client 1) was already integrated locally, and
	// 'B' (client 2) arrives concurrently with the same (absent) origin.
	s1 := NewStore()
	branch1 := setupRootBranch(s1, "arr", KindArray)
	y1 := NewIntegrator(s1)

	a := embedBlock(1, 0, "A", "arr")
	if _, err := y1.Integrate(a); err != nil {
		t.Fatal(err)
	}
	b := embedBlock(2, 0, "B", "arr")
	if _, err := y1.Integrate(b); err != nil {
		t.Fatal(err)
	}

	got := sequenceValues(branch1)
	want := []any{"A", "B"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("replica 1 order = %v, want %v", got, want)
	}

	// Replica where 'B' was integrated locally first, and 'A' arrives
	// concurrently — convergence requires the same final order.
	s2 := NewStore()
	branch2 := setupRootBranch(s2, "arr", KindArray)
	y2 := NewIntegrator(s2)

	b2 := embedBlock(2, 0, "B", "arr")
	if _, err := y2.Integrate(b2); err != nil {
		t.Fatal(err)
	}
	a2 := embedBlock(1, 0, "A", "arr")
	if _, err := y2.Integrate(a2); err != nil {
		t.Fatal(err)
	}

	got2 := sequenceValues(branch2)
	if len(got2) != 2 || got2[0] != want[0] || got2[1] != want[1] {
		t.Fatalf("replica 2 order = %v, want %v (convergence failure)", got2, want)
	}
}

func TestYata_SequentialInsertsPreserveOrder(t *testing.T) {
	s := NewStore()
	branch := setupRootBranch(s, "arr", KindArray)
	y := NewIntegrator(s)

	one := embedBlock(1, 0, 1, "arr")
	if _, err := y.Integrate(one); err != nil {
		t.Fatal(err)
	}
	two := embedBlock(1, 1, 2, "arr")
	two.HasOriginLeft, two.OriginLeft = true, one.ID
	if _, err := y.Integrate(two); err != nil {
		t.Fatal(err)
	}
	three := embedBlock(1, 2, 3, "arr")
	three.HasOriginLeft, three.OriginLeft = true, two.ID
	if _, err := y.Integrate(three); err != nil {
		t.Fatal(err)
	}

	got := sequenceValues(branch)
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("got %v, want [1 2 3]", got)
	}
}

func TestYata_BuffersOnMissingOrigin(t *testing.T) {
	s := NewStore()
	_ = setupRootBranch(s, "arr", KindArray)
	y := NewIntegrator(s)

	// b references an origin_left that hasn't arrived yet.
	b := embedBlock(1, 5, "late", "arr")
	b.HasOriginLeft, b.OriginLeft = true, ID{Client: 1, Clock: 4}

	integrated, err := y.Integrate(b)
	if err != nil {
		t.Fatal(err)
	}
	if integrated {
		t.Fatal("expected block with missing origin to be buffered, not integrated")
	}
	if y.Pending() != 1 {
		t.Fatalf("expected 1 pending block, got %d", y.Pending())
	}

	// Now supply the missing predecessor; draining should integrate both.
	// It must span clocks [0,5) so that origin id (1,4) resolves to its
	// last logical unit, so use a splittable multi-unit content kind
	// rather than an atomic Embed (which is always exactly one clock).
	predContent := JSONContent{Values: []any{0, 1, 2, 3, 4}}
	pred := &Block{ID: ID{Client: 1, Clock: 0}, Len: predContent.Len(), Content: predContent, Parent: ParentRef{RootName: "arr"}}
	if _, err := y.Integrate(pred); err != nil {
		t.Fatal(err)
	}
	if y.Pending() != 0 {
		t.Fatalf("expected pending queue drained, got %d remaining", y.Pending())
	}
}

func TestYata_MapEntryVisibilityRule(t *testing.T) {
	s := NewStore()
	branch := setupRootBranch(s, "m", KindMap)
	y := NewIntegrator(s)

	older := &Block{ID: ID{Client: 1, Clock: 0}, Len: 1, Content: Embed{Value: "old"}, Parent: ParentRef{RootName: "m", MapKey: "k"}}
	if _, err := y.Integrate(older); err != nil {
		t.Fatal(err)
	}
	newer := &Block{ID: ID{Client: 2, Clock: 0}, Len: 1, Content: Embed{Value: "new"}, Parent: ParentRef{RootName: "m", MapKey: "k"}}
	if _, err := y.Integrate(newer); err != nil {
		t.Fatal(err)
	}

	visible := branch.MapValues["k"]
	if visible.Content.(Embed).Value != "new" {
		t.Fatalf("expected the higher (clock,client) entry visible, got %v", visible.Content.(Embed).Value)
	}
	// The older entry must still be reachable (tombstones/shadowed entries
	// are retained, never removed).
	if s.index[older.ID] == nil {
		t.Error("shadowed map entry must remain in the store")
	}
}
