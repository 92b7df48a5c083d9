package ycrdt

import (
	"sync"

	"github.com/rs/xid"

	"github.com/Horusiath/y-crdt/block"
	"github.com/Horusiath/y-crdt/yerr"
)

// indexSkipStride is the spacing, in live blocks, of the position marks
// resolveOrigins starts its walk from. The marks are scanned linearly and
// rebuilt by a full walk once marked dirty, so a lookup is still linear in
// the block count; the marks only shorten the walk from the head.
const indexSkipStride = 64

type indexMark struct {
	cumIndex int
	block    *block.Block
}

// pendingOp is a buffered mutation on a handle created before it was
// attached to a Doc (spec §9 "preliminary types"). It captures everything
// the operation needs as a closure so replay, once attach() opens a single
// transaction, needs no separate per-kind bookkeeping.
type pendingOp func(tx *Transaction) error

// collection is the plumbing every attached shared-type handle (Array, Map,
// Text, XmlElement, XmlFragment, XmlText) embeds: attachment state,
// observer bookkeeping, and the position index. Per-content-kind behavior
// stays on the Content variants in package block; this struct only carries
// what is genuinely identical across every collection kind.
type collection struct {
	mu sync.Mutex

	doc      *Doc
	branch   *block.Branch
	rootName string // set only when this collection is a root

	observers     []observerEntry
	deepObservers []deepObserverEntry

	indexDirty bool
	indexMarks []indexMark

	pending []pendingOp
}

func newCollection() *collection {
	return &collection{indexDirty: true}
}

// attached reports whether this handle has a live Doc backing it.
func (c *collection) attached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc != nil
}

// attach wires a preliminary handle to branch inside doc, then replays any
// buffered operations as a single transaction (spec §9: a preliminary
// handle's operations apply as one batch once attached, not one
// transaction per buffered call).
func (c *collection) attach(doc *Doc, branch *block.Branch, rootName string) error {
	c.mu.Lock()
	c.doc = doc
	c.branch = branch
	c.rootName = rootName
	ops := c.pending
	c.pending = nil
	c.mu.Unlock()

	doc.registerCollection(branch, c)
	if len(ops) == 0 {
		return nil
	}
	return doc.Transact(nil, func(tx *Transaction) error {
		for _, op := range ops {
			if err := op(tx); err != nil {
				return err
			}
		}
		return nil
	})
}

// mutate runs op against the attached doc's transaction, or buffers it for
// replay on attach if this handle is still preliminary.
func (c *collection) mutate(op pendingOp) error {
	c.mu.Lock()
	doc := c.doc
	if doc == nil {
		c.pending = append(c.pending, op)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return doc.Transact(nil, op)
}

// parentRef returns the ParentRef a new child block should carry to belong
// to this collection.
func (c *collection) parentRef() block.ParentRef {
	if c.branch.HeaderID.HasValue() {
		return block.ParentRef{TypeHeader: c.branch.HeaderID}
	}
	return block.ParentRef{RootName: c.rootName}
}

// insertType splices a new nested-collection header of kind/name into this
// collection's sequence at index, and returns the (now registered) Branch
// it introduces. Used by XmlFragment/XmlElement to create child elements
// and text nodes in place, the same way a Type block introduces any other
// nested shared type (spec §3 "Type(header)").
func (c *collection) insertType(tx *Transaction, index int, kind block.Kind, name string) (*block.Branch, error) {
	left, right, err := c.resolveOrigins(index)
	if err != nil {
		return nil, err
	}
	b := &block.Block{
		ID:      block.ID{Client: c.doc.clientID, Clock: c.doc.store.NextClock(c.doc.clientID)},
		Len:     1,
		Content: block.Type{Kind: kind, Name: name},
		Parent:  c.parentRef(),
	}
	if left != nil {
		b.HasOriginLeft, b.OriginLeft = true, lastUnitID(left)
	}
	if right != nil {
		b.HasOriginRight, b.OriginRight = true, right.ID
	}
	if err := tx.integrate(b); err != nil {
		return nil, err
	}
	c.markDirty()
	branch, ok := c.doc.store.TypeBranch(b.ID)
	if !ok {
		return nil, yerr.New(yerr.MalformedUpdate, "insertType: branch not registered after integration")
	}
	return branch, nil
}

func (c *collection) markDirty() {
	c.mu.Lock()
	c.indexDirty = true
	c.mu.Unlock()
}

// rebuildIndex walks branch.Start once, recording a mark every
// indexSkipStride live blocks.
func (c *collection) rebuildIndex() {
	var marks []indexMark
	cum := 0
	count := 0
	for b := c.branch.Start; b != nil; b = b.Right {
		n := int(b.IndexLen())
		if n == 0 {
			continue
		}
		if count%indexSkipStride == 0 {
			marks = append(marks, indexMark{cumIndex: cum, block: b})
		}
		cum += n
		count++
	}
	c.indexMarks = marks
	c.indexDirty = false
}

// lastUnitID returns the id of the final logical unit of b — the
// "immediately to the left" id a YATA origin_left needs when b spans more
// than one unit.
func lastUnitID(b *block.Block) block.ID {
	if b == nil {
		return block.NoID
	}
	return block.ID{Client: b.ID.Client, Clock: b.End() - 1}
}

// resolveOrigins walks branch's live units to find the unit immediately
// before and immediately at visible index. When index falls strictly
// inside a multi-unit block, the store splits that block in place (via
// GetItem) so both origins land on exact unit boundaries. The walk starts
// from the nearest index mark at or before index, not branch.Start.
func (c *collection) resolveOrigins(index int) (left, right *block.Block, err error) {
	c.mu.Lock()
	if c.indexDirty {
		c.rebuildIndex()
	}
	marks := c.indexMarks
	c.mu.Unlock()

	cur := c.branch.Start
	pos := 0
	for _, m := range marks {
		if m.cumIndex > index {
			break
		}
		cur = m.block
		pos = m.cumIndex
	}

	store := c.doc.store
	var prevLive *block.Block
	if cur != nil {
		// Starting from a mark skips the blocks before it, so find the
		// live block immediately to its left here.
		for l := cur.Left; l != nil; l = l.Left {
			if l.IndexLen() > 0 {
				prevLive = l
				break
			}
		}
	}
	for cur != nil {
		n := int(cur.IndexLen())
		if n == 0 {
			cur = cur.Right
			continue
		}
		if pos == index {
			return prevLive, cur, nil
		}
		if pos+n > index {
			offset := block.Clock(index - pos)
			split, err := store.GetItem(block.ID{Client: cur.ID.Client, Clock: cur.ID.Clock + offset})
			if err != nil {
				return nil, nil, err
			}
			return split.Left, split, nil
		}
		pos += n
		prevLive = cur
		cur = cur.Right
	}
	if index != pos {
		return nil, nil, yerr.New(yerr.OutOfBounds, "index %d exceeds collection length %d", index, pos)
	}
	return prevLive, nil, nil
}

// unitIDAt returns the id of the exact logical unit at visible index,
// splitting the block holding it if needed so the id is addressable on
// its own — the building block for WeakLink range endpoints.
func (c *collection) unitIDAt(index int) (block.ID, error) {
	_, right, err := c.resolveOrigins(index)
	if err != nil {
		return block.ID{}, err
	}
	if right == nil {
		return block.ID{}, yerr.New(yerr.OutOfBounds, "index %d is at or past the end of the collection", index)
	}
	return right.ID, nil
}

// length returns the collection's current visible length.
func (c *collection) length() int {
	n := 0
	for b := c.branch.Start; b != nil; b = b.Right {
		n += int(b.IndexLen())
	}
	return n
}

// Observe registers fn to run once per Event this collection produces,
// in registration order, starting from the commit after registration.
func (c *collection) Observe(fn func(Event)) (*Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.doc == nil {
		return nil, yerr.New(yerr.ObserveOnPreliminary, "cannot observe a handle not yet attached to a doc")
	}
	id, sub := newSubscription(func(id xid.ID) {
		c.mu.Lock()
		for i := range c.observers {
			if c.observers[i].id == id {
				c.observers[i].fn = nil
			}
		}
		c.mu.Unlock()
	})
	c.observers = append(c.observers, observerEntry{id: id, fn: fn})
	return sub, nil
}

// ObserveDeep registers fn to run once per commit with the full batch of
// events produced by this collection and every collection reachable from
// it through the parent chain or a weak link (spec §9).
func (c *collection) ObserveDeep(fn func([]Event)) (*Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.doc == nil {
		return nil, yerr.New(yerr.ObserveOnPreliminary, "cannot observe a handle not yet attached to a doc")
	}
	id, sub := newSubscription(func(id xid.ID) {
		c.mu.Lock()
		for i := range c.deepObservers {
			if c.deepObservers[i].id == id {
				c.deepObservers[i].fn = nil
			}
		}
		c.mu.Unlock()
	})
	c.deepObservers = append(c.deepObservers, deepObserverEntry{id: id, fn: fn})
	return sub, nil
}

// fireShallow dispatches ev to every still-registered shallow observer in
// registration order, recovering and logging a panic in one callback
// without stopping the rest (spec §9).
func (c *collection) fireShallow(ev Event) {
	c.mu.Lock()
	entries := append([]observerEntry(nil), c.observers...)
	c.mu.Unlock()
	for _, e := range entries {
		if e.fn == nil {
			continue
		}
		c.callShallow(e.fn, ev)
	}
}

func (c *collection) callShallow(fn func(Event), ev Event) {
	defer func() {
		if r := recover(); r != nil {
			c.doc.logger.Warn().Interface("panic", r).Msg("observe callback panicked")
		}
	}()
	fn(ev)
}

func (c *collection) fireDeep(events []Event) {
	if len(events) == 0 {
		return
	}
	c.mu.Lock()
	entries := append([]deepObserverEntry(nil), c.deepObservers...)
	c.mu.Unlock()
	for _, e := range entries {
		if e.fn == nil {
			continue
		}
		c.callDeep(e.fn, events)
	}
}

func (c *collection) callDeep(fn func([]Event), events []Event) {
	defer func() {
		if r := recover(); r != nil {
			c.doc.logger.Warn().Interface("panic", r).Msg("observeDeep callback panicked")
		}
	}()
	fn(events)
}
