package block

import (
	"sort"

	"github.com/Horusiath/y-crdt/yerr"
)

// clientBlocks is one client's ordered, internally-contiguous sequence of
// blocks (spec §4.1 "a mapping client_id -> ordered sequence of blocks").
// Grounded on yrs::block_store::ClientBlockList
// (original_source/yrs/src/block_store.rs), including its binary-search
// lookup by clock.
type clientBlocks struct {
	list []*Block
}

// find returns the index of the block whose range contains clock c, or -1.
func (cb *clientBlocks) find(c Clock) int {
	lo, hi := 0, len(cb.list)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		b := cb.list[mid]
		if c < b.ID.Clock {
			hi = mid - 1
		} else if c >= b.End() {
			lo = mid + 1
		} else {
			return mid
		}
	}
	return -1
}

func (cb *clientBlocks) nextClock() Clock {
	if len(cb.list) == 0 {
		return 0
	}
	last := cb.list[len(cb.list)-1]
	return last.End()
}

// Store is the block store: per-client ordered blocks, a global id->block
// index, and the branch registry (spec §4.1).
type Store struct {
	clients map[ClientID]*clientBlocks
	index   map[ID]*Block // resolves any block-start id directly to its block

	roots       map[string]*Branch
	typeHeaders map[ID]*Branch
}

// NewStore returns an empty block store.
func NewStore() *Store {
	return &Store{
		clients:     make(map[ClientID]*clientBlocks),
		index:       make(map[ID]*Block),
		roots:       make(map[string]*Branch),
		typeHeaders: make(map[ID]*Branch),
	}
}

// NextClock returns the next clock a local append for client would use —
// the store's contribution to invariant 1 of spec §3 ("gap-free sequence
// [0, next_clock)").
func (s *Store) NextClock(client ClientID) Clock {
	cb, ok := s.clients[client]
	if !ok {
		return 0
	}
	return cb.nextClock()
}

// StateVector returns the store's current state vector (spec §3).
func (s *Store) StateVector() StateVector {
	sv := make(StateVector, len(s.clients))
	for client, cb := range s.clients {
		sv[client] = cb.nextClock()
	}
	return sv
}

// Append adds block to its client's sequence. It rejects the append if
// block.ID.Clock does not equal the client's next clock (spec §4.1).
func (s *Store) Append(b *Block) error {
	cb, ok := s.clients[b.ID.Client]
	if !ok {
		cb = &clientBlocks{}
		s.clients[b.ID.Client] = cb
	}
	if want := cb.nextClock(); b.ID.Clock != want {
		return yerr.New(yerr.MalformedUpdate, "append: client %d expected clock %d, got %d", b.ID.Client, want, b.ID.Clock)
	}
	cb.list = append(cb.list, b)
	s.index[b.ID] = b
	// Left/Right are the block's position in its containing branch's
	// logical (YATA) order, threaded in by the Integrator — physical,
	// per-client storage order (this slice) is a separate axis entirely.
	return nil
}

// GetItem resolves id to the block currently containing that clock,
// splitting the containing block in place if id falls strictly inside it
// (spec §4.1). The linked-list neighbors and the global index are updated
// atomically within this call, matching the spec's requirement that a
// split never observably changes content.
func (s *Store) GetItem(id ID) (*Block, error) {
	if b, ok := s.index[id]; ok {
		return b, nil
	}
	cb, ok := s.clients[id.Client]
	if !ok {
		return nil, yerr.New(yerr.MalformedUpdate, "get_item: unknown client %d", id.Client)
	}
	idx := cb.find(id.Clock)
	if idx < 0 {
		return nil, yerr.New(yerr.MalformedUpdate, "get_item: clock %d not found for client %d", id.Clock, id.Client)
	}
	b := cb.list[idx]
	if b.ID.Clock == id.Clock {
		return b, nil
	}
	offset := Clock(id.Clock - b.ID.Clock)
	right, err := s.split(cb, idx, offset)
	if err != nil {
		return nil, err
	}
	return right, nil
}

// split divides the block at index idx of cb into two adjacent blocks of
// lengths offset and (len-offset). Both halves retain the original
// origin_left/origin_right per spec §4.1; the right half's id becomes
// (client, clock+offset).
func (s *Store) split(cb *clientBlocks, idx int, offset Clock) (right *Block, err error) {
	left := cb.list[idx]
	if offset == 0 || offset >= left.Len {
		return left, nil
	}
	if !left.Content.Splittable() {
		return nil, yerr.New(yerr.MalformedUpdate, "split: content at %s is not splittable", left.ID)
	}
	leftContent, rightContent := left.Content.Split(offset)

	right = &Block{
		ID:      ID{Client: left.ID.Client, Clock: left.ID.Clock + offset},
		Len:     left.Len - offset,
		Content: rightContent,
		Parent:  left.Parent,
		Deleted: left.Deleted,
		// Both halves retain the pre-split block's original origin_left
		// and origin_right unchanged (spec §4.1) — their position in the
		// branch's logical order is already fixed by Left/Right below, so
		// the origin fields only need to keep resolving to a consistent
		// point in the total order for any future integration that scans
		// past them.
		HasOriginLeft:  left.HasOriginLeft,
		OriginLeft:     left.OriginLeft,
		HasOriginRight: left.HasOriginRight,
		OriginRight:    left.OriginRight,
		Right:          left.Right,
		Left:           left,
	}
	left.Len = offset
	left.Content = leftContent
	left.Right = right
	if right.Right != nil {
		right.Right.Left = right
	}

	cb.list = append(cb.list, nil)
	copy(cb.list[idx+2:], cb.list[idx+1:])
	cb.list[idx+1] = right

	s.index[right.ID] = right
	return right, nil
}

// MergeAdjacent coalesces a and b into a single block when they satisfy
// the six-way adjacency check of spec §4.1. It returns true if a merge
// happened. Merging is opportunistic compaction only: it must never alter
// observable state, so it is always safe to skip.
func (s *Store) MergeAdjacent(a, b *Block) bool {
	if a == nil || b == nil || a.Right != b {
		return false
	}
	if !sameAdjacencyClass(a, b) {
		return false
	}
	a.Content = mergeContent(a.Content, b.Content)
	a.Len += b.Len
	a.Right = b.Right
	if b.Right != nil {
		b.Right.Left = a
	}
	delete(s.index, b.ID)

	cb := s.clients[b.ID.Client]
	idx := sort.Search(len(cb.list), func(i int) bool { return cb.list[i].ID.Clock >= b.ID.Clock })
	if idx < len(cb.list) && cb.list[idx] == b {
		cb.list = append(cb.list[:idx], cb.list[idx+1:]...)
	}
	return true
}

// MergeClientAdjacent walks client's block list once, merging every
// eligible adjacent pair. Called from Transaction.commit for every client
// touched by the transaction (spec §4.3 step 3).
func (s *Store) MergeClientAdjacent(client ClientID) {
	cb, ok := s.clients[client]
	if !ok {
		return
	}
	i := 0
	for i < len(cb.list)-1 {
		if s.MergeAdjacent(cb.list[i], cb.list[i+1]) {
			continue // list shrank in place; re-check the same index
		}
		i++
	}
}

// GetOrCreateBranch resolves name to its Branch, creating an empty root
// branch of kind on first use. It raises yerr.TypeMismatch if name already
// names a root of a different kind (spec §7).
func (s *Store) GetOrCreateBranch(name string, kind Kind) (*Branch, error) {
	if b, ok := s.roots[name]; ok {
		if b.Kind != kind {
			return nil, yerr.New(yerr.TypeMismatch, "root %q is a %s, not a %s", name, b.Kind, kind)
		}
		return b, nil
	}
	b := &Branch{Kind: kind, HeaderID: NoID}
	if kind == KindMap || kind == KindXmlElement {
		b.MapValues = make(map[string]*Block)
	}
	s.roots[name] = b
	return b, nil
}

// BranchForType resolves the Branch nested under the Type block at
// headerID, creating it on first encounter when creating is true
// (integration of the Type block itself).
func (s *Store) BranchForType(headerID ID, kind Kind, name string, create bool) (*Branch, bool) {
	if b, ok := s.typeHeaders[headerID]; ok {
		return b, true
	}
	if !create {
		return nil, false
	}
	b := &Branch{Kind: kind, Name: name, HeaderID: headerID}
	if kind == KindMap || kind == KindXmlElement {
		b.MapValues = make(map[string]*Block)
	}
	s.typeHeaders[headerID] = b
	return b, true
}

// Delete marks the n blocks covering index-range [from, from+n) of branch
// as deleted, splitting boundary blocks as needed, and returns the
// touched (client, clock-range) spans so the caller's transaction can
// extend its delete-set (spec §4.2 "Deletions"). The store itself never
// writes to a delete-set.
func (s *Store) Delete(branch *Branch, from, n int) ([]Range, error) {
	if n == 0 {
		return nil, nil
	}
	var touched []Range
	cur := branch.Start
	idx := 0
	remaining := n
	for cur != nil && remaining > 0 {
		visible := int(cur.IndexLen())
		if visible == 0 || idx+visible <= from {
			idx += visible
			cur = cur.Right
			continue
		}
		// cur overlaps [from, from+n).
		startOffset := 0
		if from > idx {
			startOffset = from - idx
		}
		endOffset := visible
		if idx+visible > from+n {
			endOffset = from + n - idx
		}
		if startOffset > 0 {
			cb := s.clients[cur.ID.Client]
			i := cb.find(cur.ID.Clock)
			right, err := s.split(cb, i, Clock(startOffset))
			if err != nil {
				return nil, err
			}
			idx += startOffset
			cur = right
			visible = int(cur.IndexLen())
			endOffset -= startOffset
			startOffset = 0
		}
		if endOffset < visible {
			cb := s.clients[cur.ID.Client]
			i := cb.find(cur.ID.Clock)
			if _, err := s.split(cb, i, Clock(endOffset)); err != nil {
				return nil, err
			}
		}
		if !cur.Deleted {
			cur.Deleted = true
			touched = append(touched, Range{Client: cur.ID.Client, Start: cur.ID.Clock, End: cur.End()})
		}
		remaining -= endOffset
		idx += endOffset
		cur = cur.Right
	}
	return touched, nil
}

// ApplyDeleteSet marks every block whose clock range intersects ds as
// deleted (spec §4.3 step 2), splitting a block in place when the
// delete-set range only partially covers it — the same boundary-alignment
// Store.Delete does for locally-originated deletes. It is idempotent (spec
// §4.5 "delete-set application is idempotent").
func (s *Store) ApplyDeleteSet(ds DeleteSet) {
	for client, set := range ds {
		cb, ok := s.clients[client]
		if !ok {
			continue
		}
		for _, r := range set.Ranges() {
			s.setDeletedRange(cb, r.Start, r.End, true)
		}
	}
}

// UnmarkDeleted clears the tombstone on every block whose clock range
// intersects ds, splitting a block in place when ds only partially covers
// it. This is the inverse of ApplyDeleteSet, used to restore content an
// undo/redo stack item had previously deleted.
func (s *Store) UnmarkDeleted(ds DeleteSet) {
	for client, set := range ds {
		cb, ok := s.clients[client]
		if !ok {
			continue
		}
		for _, r := range set.Ranges() {
			s.setDeletedRange(cb, r.Start, r.End, false)
		}
	}
}

// setDeletedRange sets the tombstone flag to deleted for every clock in
// [start, end) of cb's blocks, splitting a block that only partially
// overlaps the range so the intersecting sub-range becomes its own block
// before being flagged.
func (s *Store) setDeletedRange(cb *clientBlocks, start, end Clock, deleted bool) {
	if start >= end {
		return
	}
	idx := sort.Search(len(cb.list), func(i int) bool { return cb.list[i].End() > start })
	for idx < len(cb.list) {
		b := cb.list[idx]
		if b.ID.Clock >= end {
			break
		}
		if b.ID.Clock < start {
			right, err := s.split(cb, idx, start-b.ID.Clock)
			if err != nil {
				return
			}
			b = right
			idx++
		}
		if b.End() > end {
			if _, err := s.split(cb, idx, end-b.ID.Clock); err != nil {
				return
			}
		}
		b.Deleted = deleted
		idx++
	}
}

// Clients returns the set of client ids currently known to the store.
func (s *Store) Clients() []ClientID {
	out := make([]ClientID, 0, len(s.clients))
	for c := range s.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// BlocksOf returns client's blocks in clock order. The returned slice must
// not be mutated by the caller.
func (s *Store) BlocksOf(client ClientID) []*Block {
	cb, ok := s.clients[client]
	if !ok {
		return nil
	}
	return cb.list
}

// Root returns the named root branch, if any.
func (s *Store) Root(name string) (*Branch, bool) {
	b, ok := s.roots[name]
	return b, ok
}

// TypeBranch returns the branch nested under the Type block at headerID,
// if it has been created.
func (s *Store) TypeBranch(headerID ID) (*Branch, bool) {
	b, ok := s.typeHeaders[headerID]
	return b, ok
}
