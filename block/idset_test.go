package block

import "testing"

func TestIdSet_CoalesceAdjacent(t *testing.T) {
	s := &IdSet{}
	s.Add(0, 5)  // [0,5)
	s.Add(5, 3)  // [5,8) - adjacent, should merge with the above
	s.Add(20, 2) // disjoint

	ranges := s.Ranges()
	if len(ranges) != 2 {
		t.Fatalf("expected 2 coalesced ranges, got %d: %v", len(ranges), ranges)
	}
	if ranges[0].Start != 0 || ranges[0].End != 8 {
		t.Errorf("expected first range [0,8), got [%d,%d)", ranges[0].Start, ranges[0].End)
	}
}

func TestIdSet_CoalesceOverlapping(t *testing.T) {
	s := &IdSet{}
	s.Add(10, 5) // [10,15)
	s.Add(12, 6) // [12,18) overlaps

	ranges := s.Ranges()
	if len(ranges) != 1 || ranges[0].Start != 10 || ranges[0].End != 18 {
		t.Fatalf("expected single merged range [10,18), got %v", ranges)
	}
}

func TestIdSet_Contains(t *testing.T) {
	s := &IdSet{}
	s.Add(0, 5)
	s.Add(10, 5)

	for _, c := range []Clock{0, 3, 4} {
		if !s.Contains(c) {
			t.Errorf("expected Contains(%d) = true", c)
		}
	}
	for _, c := range []Clock{5, 9, 15} {
		if s.Contains(c) {
			t.Errorf("expected Contains(%d) = false", c)
		}
	}
}

func TestIdSet_ContainsRange(t *testing.T) {
	s := &IdSet{}
	s.Add(0, 10)

	if !s.ContainsRange(2, 5) {
		t.Error("expected [2,7) to be covered by [0,10)")
	}
	if s.ContainsRange(8, 5) {
		t.Error("did not expect [8,13) to be fully covered by [0,10)")
	}
}

func TestDeleteSet_Merge(t *testing.T) {
	a := NewDeleteSet()
	a.Add(ID{Client: 1, Clock: 0}, 5)

	b := NewDeleteSet()
	b.Add(ID{Client: 1, Clock: 5}, 3)
	b.Add(ID{Client: 2, Clock: 0}, 2)

	a.Merge(b)

	if !a.Contains(ID{Client: 1, Clock: 7}) {
		t.Error("merged delete-set should cover client 1 clock 7")
	}
	if !a.Contains(ID{Client: 2, Clock: 1}) {
		t.Error("merged delete-set should cover client 2 clock 1")
	}
	if a[1].Sum() != 8 {
		t.Errorf("expected client 1 coalesced sum 8, got %d", a[1].Sum())
	}
}

func TestStateVector_GetUnknownClient(t *testing.T) {
	sv := StateVector{}
	if got := sv.Get(99); got != 0 {
		t.Errorf("expected 0 for unknown client, got %d", got)
	}
}
