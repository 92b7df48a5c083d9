package block

// Integrator runs the YATA ordering discipline (spec §4.2) on top of a
// Store, plus the pending-dependency queue for blocks that arrive before
// an origin, parent type header, or (for roots) a not-yet-typed root
// branch is available locally.
//
// Per spec §4.2, a missing dependency is not an error: the block is
// buffered and the queue is drained transitively whenever a dependency
// becomes satisfied.
type Integrator struct {
	store   *Store
	pending []*pendingBlock
}

type pendingBlock struct {
	block  *Block
	branch *Branch // resolved once the parent dependency is satisfied
}

// NewIntegrator returns an Integrator over store.
func NewIntegrator(store *Store) *Integrator { return &Integrator{store: store} }

// Pending reports how many blocks are currently buffered on a missing
// dependency.
func (y *Integrator) Pending() int { return len(y.pending) }

// resolveParent resolves b's ParentRef to a Branch, returning ok=false if
// the dependency (an untyped root, or a not-yet-integrated Type header) is
// not yet available.
func (y *Integrator) resolveParent(ref ParentRef) (*Branch, bool) {
	if ref.TypeHeader.HasValue() {
		return y.store.BranchForType(ref.TypeHeader, 0, "", false)
	}
	return y.store.Root(ref.RootName)
}

// originsReady reports whether b's origin_left and origin_right (if set)
// are resolvable against the store's current clocks.
func (y *Integrator) originsReady(b *Block) bool {
	if b.HasOriginLeft && y.store.NextClock(b.OriginLeft.Client) <= b.OriginLeft.Clock {
		return false
	}
	if b.HasOriginRight && y.store.NextClock(b.OriginRight.Client) <= b.OriginRight.Clock {
		return false
	}
	return true
}

// Integrate buffers or integrates b, depending on whether its
// dependencies (parent branch, origins) are currently resolvable. It
// returns true if b was integrated immediately.
func (y *Integrator) Integrate(b *Block) (bool, error) {
	branch, ok := y.resolveParent(b.Parent)
	if !ok || !y.originsReady(b) {
		y.pending = append(y.pending, &pendingBlock{block: b})
		return false, nil
	}
	if err := y.integrate(branch, b); err != nil {
		return false, err
	}
	y.drain()
	return true, nil
}

// drain repeatedly scans the pending queue, integrating every block whose
// dependencies have become satisfied, until a full pass makes no further
// progress (spec §4.2 "drained transitively").
func (y *Integrator) drain() {
	for {
		progressed := false
		remaining := y.pending[:0]
		for _, p := range y.pending {
			branch, ok := y.resolveParent(p.block.Parent)
			if ok && y.originsReady(p.block) {
				if err := y.integrate(branch, p.block); err == nil {
					progressed = true
					continue
				}
			}
			remaining = append(remaining, p)
		}
		y.pending = remaining
		if !progressed {
			return
		}
	}
}

// integrate appends b and threads it into branch's structure: map entries
// follow the last-writer rule of spec §4.2; everything else follows the
// YATA scan.
func (y *Integrator) integrate(branch *Branch, b *Block) error {
	// Routing is by parent_sub presence, not branch kind: an XmlElement
	// branch carries both its attribute map entries and its sequence of
	// children in the same Branch (spec §4.6 "element attributes are map
	// entries of the element's own branch"), exactly like a Map branch
	// carries only entries and an Array/Text/XmlFragment branch carries
	// only sequence children.
	if b.Parent.IsMapEntry() {
		return y.integrateMapEntry(branch, b)
	}
	return y.integrateSequence(branch, b)
}

// integrateMapEntry implements spec §4.2's map rule: the entry for a key is
// the map-child block with the largest id under lexicographic
// (clock, client_id) order, and the key has a visible value only while
// that block is not deleted. Older entries are kept,
// never removed, and simply fall out of MapValues (they remain reachable
// through the store's per-client block lists for history/GC purposes).
func (y *Integrator) integrateMapEntry(branch *Branch, b *Block) error {
	if err := y.store.Append(b); err != nil {
		return err
	}
	current, ok := branch.MapValues[b.Parent.MapKey]
	if !ok || mapEntryWins(b, current) {
		branch.MapValues[b.Parent.MapKey] = b
	}
	if t, isType := b.TypeKind(); isType {
		y.store.BranchForType(b.ID, t.Kind, t.Name, true)
	}
	return nil
}

// mapEntryWins reports whether candidate should become the visible value
// over incumbent, per the (clock, client_id) lexicographic order of spec
// §4.2.
func mapEntryWins(candidate, incumbent *Block) bool {
	if candidate.ID.Clock != incumbent.ID.Clock {
		return candidate.ID.Clock > incumbent.ID.Clock
	}
	return candidate.ID.Client > incumbent.ID.Client
}

// integrateSequence implements the YATA scan of spec §4.2 for Array/Text/
// Xml sequence branches.
func (y *Integrator) integrateSequence(branch *Branch, b *Block) error {
	var ol, or *Block
	if b.HasOriginLeft {
		var err error
		ol, err = y.store.GetItem(b.OriginLeft)
		if err != nil {
			return err
		}
	}
	if b.HasOriginRight {
		var err error
		or, err = y.store.GetItem(b.OriginRight)
		if err != nil {
			return err
		}
	}

	pos := y.sequencePositions(branch)
	posOf := func(x *Block) int {
		if x == nil {
			return -1
		}
		return pos[x]
	}
	olPos := posOf(ol)

	var c *Block
	if ol != nil {
		c = ol.Right
	} else {
		c = branch.Start
	}
	for c != nil && c != or {
		var cOL *Block
		if c.HasOriginLeft {
			var err error
			cOL, err = y.store.GetItem(c.OriginLeft)
			if err != nil {
				return err
			}
		}
		cOLPos := posOf(cOL)
		// Tie-break direction pinned against spec §8 scenario S7 rather
		// than §4.2's prose: concurrent inserts at an identical origin
		// converge with the lower client id leftmost regardless of which
		// replica integrates which block first, which requires breaking
		// (inserting b before c) when c's client is numerically greater,
		// not less. See DESIGN.md.
		if cOLPos < olPos || (cOLPos == olPos && c.ID.Client > b.ID.Client) {
			break
		}
		c = c.Right
	}

	if err := y.store.Append(b); err != nil {
		return err
	}
	y.insertBefore(branch, c, b)
	if t, isType := b.TypeKind(); isType {
		y.store.BranchForType(b.ID, t.Kind, t.Name, true)
	}
	return nil
}

// sequencePositions returns each live-or-tombstoned block's index in
// branch's current linked-list order, used as the "current total order"
// comparator of spec §4.2. Computed fresh per integration: correct and
// simple, at the cost of an O(N) walk that a production engine would
// avoid with a cached ordinal — acceptable for this scope (spec §9 allows
// a linear walk for modestly sized collections and the scan itself is
// already O(N) in the worst case).
func (y *Integrator) sequencePositions(branch *Branch) map[*Block]int {
	pos := make(map[*Block]int)
	i := 0
	for b := branch.Start; b != nil; b = b.Right {
		pos[b] = i
		i++
	}
	return pos
}

// insertBefore splices b into branch's linked list immediately before c
// (nil meaning "at the end"), updating the branch's Start/End pointers.
func (y *Integrator) insertBefore(branch *Branch, c, b *Block) {
	var left *Block
	if c != nil {
		left = c.Left
	} else {
		left = branch.End
	}
	b.Left = left
	b.Right = c
	if left != nil {
		left.Right = b
	} else {
		branch.Start = b
	}
	if c != nil {
		c.Left = b
	} else {
		branch.End = b
	}
}
