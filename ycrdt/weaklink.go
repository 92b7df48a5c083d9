package ycrdt

import (
	"github.com/Horusiath/y-crdt/block"
	"github.com/Horusiath/y-crdt/yerr"
)

// PendingLink is a not-yet-inserted weak link: the quoted-range or
// quoted-key payload plus the branch it quotes, ready to be embedded
// somewhere via Array.InsertLink or Map.SetLink (spec §4.6).
type PendingLink struct {
	content block.Link
	source  *block.Branch
}

// LinkRange builds a PendingLink quoting a's visible range
// [fromIndex, toIndex) at the moment this call runs. The quote itself is
// resolved live at Deref/Unquote time, never against a cached snapshot
// (spec §4.6 "open at the right"), so content spliced into the range later
// is automatically included.
func (a *Array[T]) LinkRange(fromIndex, toIndex int) (*PendingLink, error) {
	return linkRange(a.col, fromIndex, toIndex)
}

// LinkRange builds a PendingLink quoting t's visible code-point range
// [fromIndex, toIndex).
func (t *Text) LinkRange(fromIndex, toIndex int) (*PendingLink, error) {
	return linkRange(t.col, fromIndex, toIndex)
}

func linkRange(col *collection, fromIndex, toIndex int) (*PendingLink, error) {
	if toIndex <= fromIndex {
		return nil, yerr.New(yerr.OutOfBounds, "link range [%d,%d) is empty or inverted", fromIndex, toIndex)
	}
	startID, err := col.unitIDAt(fromIndex)
	if err != nil {
		return nil, err
	}
	endID, err := col.unitIDAt(toIndex - 1)
	if err != nil {
		return nil, err
	}
	return &PendingLink{content: block.Link{Start: startID, End: endID}, source: col.branch}, nil
}

// LinkKey builds a PendingLink quoting m's current entry at key (spec
// §4.6 "deref() on a map link" resolves to whatever value key holds when
// dereferenced, not the value at link-creation time).
func (m *Map[T]) LinkKey(key string) *PendingLink {
	return &PendingLink{content: block.Link{Key: key}, source: m.col.branch}
}

// InsertLink splices link into the array at index, as a single atomic
// unit.
func (a *Array[T]) InsertLink(index int, link *PendingLink) (*WeakLink, error) {
	var wl *WeakLink
	err := a.col.mutate(func(tx *Transaction) error {
		b := &block.Block{
			ID:      block.ID{Client: a.col.doc.clientID, Clock: a.col.doc.store.NextClock(a.col.doc.clientID)},
			Len:     1,
			Content: link.content,
			Parent:  a.col.parentRef(),
		}
		left, right, err := a.col.resolveOrigins(index)
		if err != nil {
			return err
		}
		if left != nil {
			b.HasOriginLeft, b.OriginLeft = true, lastUnitID(left)
		}
		if right != nil {
			b.HasOriginRight, b.OriginRight = true, right.ID
		}
		if err := tx.integrate(b); err != nil {
			return err
		}
		a.col.markDirty()
		a.col.doc.addLinkEdge(link.source, a.col.branch)
		wl = &WeakLink{doc: a.col.doc, block: b, source: link.source}
		tx.recordEvent(a.col.branch, Event{Kind: EventInsert, Index: index, Length: 1})
		return nil
	})
	return wl, err
}

// SetLink writes link at key, as a single map-entry block.
func (m *Map[T]) SetLink(key string, link *PendingLink) (*WeakLink, error) {
	var wl *WeakLink
	err := m.col.mutate(func(tx *Transaction) error {
		b := &block.Block{
			ID:      block.ID{Client: m.col.doc.clientID, Clock: m.col.doc.store.NextClock(m.col.doc.clientID)},
			Len:     1,
			Content: link.content,
			Parent:  block.ParentRef{RootName: m.col.rootName, MapKey: key},
		}
		if m.col.branch.HeaderID.HasValue() {
			b.Parent = block.ParentRef{TypeHeader: m.col.branch.HeaderID, MapKey: key}
		}
		if err := tx.integrate(b); err != nil {
			return err
		}
		m.col.doc.addLinkEdge(link.source, m.col.branch)
		wl = &WeakLink{doc: m.col.doc, block: b, source: link.source}
		tx.recordEvent(m.col.branch, Event{Kind: EventMapAdd, Key: key})
		return nil
	})
	return wl, err
}

// WeakLink is a live quotation of a range or map key (spec §4.6). Deref
// and Unquote always re-walk the current linked list, never a cached
// snapshot, so edits made after the link was created — including splices
// landing between the quoted range's live neighbors — are reflected
// automatically ("open at the right").
type WeakLink struct {
	doc    *Doc
	block  *block.Block
	source *block.Branch
}

// Deref resolves a map-key link to its currently visible value. It
// returns ok=false if the link itself has been deleted, if it quotes a
// range instead of a key, or if the key's current entry is tombstoned —
// spec §4.6 treats "the link is gone" and "the thing it points to is gone"
// as two distinct absence conditions, both collapsing to the same result.
func (w *WeakLink) Deref() (any, bool) {
	if w.block.Deleted {
		return nil, false
	}
	key := w.block.Content.(block.Link).Key
	if key == "" {
		return nil, false
	}
	b, ok := w.source.MapValues[key]
	if !ok || b.Deleted {
		return nil, false
	}
	return unitValue(b.Content, 0)
}

// Unquote resolves a range link to its currently visible values. Both the
// link itself being deleted and the quoted range being fully deleted
// collapse to the same result: an empty, non-nil slice rather than an
// error (spec §4.6 "undefined/absent" collapses to empty for ranges).
func (w *WeakLink) Unquote() []any {
	if w.block.Deleted {
		return []any{}
	}
	link := w.block.Content.(block.Link)
	if link.Key != "" {
		return nil
	}
	startBlock, err := w.doc.store.GetItem(link.Start)
	if err != nil {
		return []any{}
	}
	endBlock, err := w.doc.store.GetItem(link.End)
	if err != nil {
		return []any{}
	}

	var out []any
	cur := startBlock
	for cur != nil {
		if !cur.Deleted {
			n := int(cur.IndexLen())
			for i := 0; i < n; i++ {
				if v, ok := unitValue(cur.Content, i); ok {
					out = append(out, v)
				}
			}
		}
		if cur == endBlock {
			break
		}
		cur = cur.Right
	}
	if out == nil {
		out = []any{}
	}
	return out
}
