package block

import (
	"sort"

	"golang.org/x/exp/constraints"
)

// numRange is a half-open [Start, End) range over any unsigned integer
// clock type. It backs IdSet's per-client tombstone ranges, and through
// IdSet the DeleteSet; it is written generically over
// constraints.Unsigned rather than being fixed to Clock.
type numRange[T constraints.Unsigned] struct {
	Start, End T
}

func (r numRange[T]) Len() T { return r.End - r.Start }

// IdSet is a sorted, maximally-coalesced set of clock ranges for a single
// client. It is the building block of DeleteSet (spec §3 "Delete set").
type IdSet struct {
	ranges []numRange[Clock]
}

// Add inserts [start, start+length) into the set and re-coalesces around
// it. Adding an already-covered range is a no-op.
func (s *IdSet) Add(start Clock, length Clock) {
	if length == 0 {
		return
	}
	s.ranges = append(s.ranges, numRange[Clock]{Start: start, End: start + length})
	s.Coalesce()
}

// Coalesce sorts the set's ranges and merges every pair of adjacent or
// overlapping ranges into one, restoring the "maximally coalesced"
// invariant required by spec §3.
func (s *IdSet) Coalesce() {
	if len(s.ranges) < 2 {
		return
	}
	sort.Slice(s.ranges, func(i, j int) bool { return s.ranges[i].Start < s.ranges[j].Start })
	merged := s.ranges[:1]
	for _, r := range s.ranges[1:] {
		last := &merged[len(merged)-1]
		if r.Start <= last.End {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}
	s.ranges = merged
}

// Contains reports whether clock c falls inside any range of the set.
func (s *IdSet) Contains(c Clock) bool {
	idx := sort.Search(len(s.ranges), func(i int) bool { return s.ranges[i].End > c })
	return idx < len(s.ranges) && s.ranges[idx].Start <= c
}

// ContainsRange reports whether the whole [start, start+length) range is
// covered by a single range of the set (delete-set membership is always
// checked against whole block spans, never partial ones, by callers).
func (s *IdSet) ContainsRange(start, length Clock) bool {
	if length == 0 {
		return true
	}
	idx := sort.Search(len(s.ranges), func(i int) bool { return s.ranges[i].End >= start+length })
	return idx < len(s.ranges) && s.ranges[idx].Start <= start && s.ranges[idx].End >= start+length
}

// Ranges returns the set's coalesced ranges in ascending order. The
// returned slice must not be mutated by the caller.
func (s *IdSet) Ranges() []numRange[Clock] { return s.ranges }

// Merge folds other's ranges into s and re-coalesces.
func (s *IdSet) Merge(other *IdSet) {
	if other == nil {
		return
	}
	s.ranges = append(s.ranges, other.ranges...)
	s.Coalesce()
}

// Sum returns the total number of clocks covered by the set — used by the
// tombstone-persistence property of spec §8 ("len sum per client never
// decreases").
func (s *IdSet) Sum() Clock {
	var total Clock
	for _, r := range s.ranges {
		total += r.Len()
	}
	return total
}

// DeleteSet maps each client to its tombstoned clock ranges (spec §3).
type DeleteSet map[ClientID]*IdSet

// NewDeleteSet returns an empty delete-set.
func NewDeleteSet() DeleteSet { return make(DeleteSet) }

// Add records id.Client's [id.Clock, id.Clock+length) range as deleted.
func (ds DeleteSet) Add(id ID, length Clock) {
	set, ok := ds[id.Client]
	if !ok {
		set = &IdSet{}
		ds[id.Client] = set
	}
	set.Add(id.Clock, length)
}

// Contains reports whether id is covered by the delete-set.
func (ds DeleteSet) Contains(id ID) bool {
	set, ok := ds[id.Client]
	if !ok {
		return false
	}
	return set.Contains(id.Clock)
}

// Coalesce re-coalesces every client's range set. Called once at the start
// of Transaction commit (spec §4.3 step 1).
func (ds DeleteSet) Coalesce() {
	for _, set := range ds {
		set.Coalesce()
	}
}

// Merge folds other into ds in place.
func (ds DeleteSet) Merge(other DeleteSet) {
	for client, set := range other {
		existing, ok := ds[client]
		if !ok {
			copied := &IdSet{ranges: append([]numRange[Clock]{}, set.Ranges()...)}
			ds[client] = copied
			continue
		}
		existing.Merge(set)
	}
}

// StateVector maps each client to the smallest clock not yet observed from
// that client (spec §3 "State vector").
type StateVector map[ClientID]Clock

// Get returns the next-unseen clock for client, or 0 if nothing from that
// client has ever been observed.
func (sv StateVector) Get(client ClientID) Clock {
	return sv[client]
}

// Clone returns an independent copy of sv.
func (sv StateVector) Clone() StateVector {
	out := make(StateVector, len(sv))
	for k, v := range sv {
		out[k] = v
	}
	return out
}
