package block

import "testing"

func TestID_Less(t *testing.T) {
	a := ID{Client: 1, Clock: 5}
	b := ID{Client: 1, Clock: 6}
	c := ID{Client: 2, Clock: 0}

	if !a.Less(b) {
		t.Errorf("expected %v < %v", a, b)
	}
	if b.Less(a) {
		t.Errorf("did not expect %v < %v", b, a)
	}
	if !a.Less(c) {
		t.Errorf("expected %v < %v (client order wins)", a, c)
	}
}

func TestID_HasValue(t *testing.T) {
	if NoID.HasValue() {
		t.Error("NoID should not HasValue")
	}
	id := ID{Client: 1, Clock: 0}
	if !id.HasValue() {
		t.Error("client=1,clock=0 is a real id and should HasValue")
	}
}

func TestID_Covers(t *testing.T) {
	start := ID{Client: 1, Clock: 10}
	cases := []struct {
		id   ID
		want bool
	}{
		{ID{Client: 1, Clock: 9}, false},
		{ID{Client: 1, Clock: 10}, true},
		{ID{Client: 1, Clock: 14}, true},
		{ID{Client: 1, Clock: 15}, false},
		{ID{Client: 2, Clock: 12}, false},
	}
	for _, tc := range cases {
		if got := tc.id.Covers(start, 5); got != tc.want {
			t.Errorf("Covers(%v, start=%v, len=5) = %v, want %v", tc.id, start, got, tc.want)
		}
	}
}
