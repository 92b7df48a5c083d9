package ycrdt

import (
	"github.com/Horusiath/y-crdt/block"
)

// Text is the rich-text sequence shared type (spec §4.4). Insert produces
// one String-content block per call; Format splices a zero-width marker
// block at each endpoint of the formatted range rather than rewriting the
// content in place, matching how the block store already models format
// ranges (spec §3 "Format is a zero-visible-length marker").
type Text struct {
	col *collection
}

// NewText returns a preliminary Text, not yet attached to any Doc.
func NewText() *Text { return &Text{col: newCollection()} }

// Attach binds a preliminary Text to name inside doc.
func (t *Text) Attach(doc *Doc, name string) error {
	branch, err := doc.store.GetOrCreateBranch(name, block.KindText)
	if err != nil {
		return err
	}
	return t.col.attach(doc, branch, name)
}

// Len returns the text's current visible length, in code points.
func (t *Text) Len() int { return t.col.length() }

// Insert splices s into the text starting at code-point index (spec §4.4).
func (t *Text) Insert(index int, s string) error {
	if s == "" {
		return nil
	}
	return t.col.mutate(func(tx *Transaction) error {
		return t.insert(tx, index, s)
	})
}

func (t *Text) insert(tx *Transaction, index int, s string) error {
	left, right, err := t.col.resolveOrigins(index)
	if err != nil {
		return err
	}
	content := block.NewString(s)
	b := &block.Block{
		ID:      block.ID{Client: t.col.doc.clientID, Clock: t.col.doc.store.NextClock(t.col.doc.clientID)},
		Len:     content.Len(),
		Content: content,
		Parent:  t.col.parentRef(),
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
	t.col.markDirty()
	tx.recordEvent(t.col.branch, Event{Kind: EventInsert, Index: index, Length: len([]rune(s)), Values: []any{s}})
	return nil
}

// Delete removes the n code points starting at index.
func (t *Text) Delete(index, n int) error {
	if n == 0 {
		return nil
	}
	return t.col.mutate(func(tx *Transaction) error {
		if _, err := tx.delete(t.col.branch, index, n); err != nil {
			return err
		}
		t.col.markDirty()
		tx.recordEvent(t.col.branch, Event{Kind: EventDelete, Index: index, Length: n})
		return nil
	})
}

// Format applies attrs as a formatting range over [index, index+n), by
// inserting a Format marker block per attribute at each endpoint (spec
// §4.4 "format(i, n, attrs)").
func (t *Text) Format(index, n int, attrs map[string]any) error {
	if n == 0 || len(attrs) == 0 {
		return nil
	}
	return t.col.mutate(func(tx *Transaction) error {
		for key, value := range attrs {
			if err := t.insertFormatMarker(tx, index, key, value); err != nil {
				return err
			}
			if err := t.insertFormatMarker(tx, index+n, key, nil); err != nil {
				return err
			}
		}
		tx.recordEvent(t.col.branch, Event{Kind: EventFormat, Index: index, Length: n, Values: []any{attrs}})
		return nil
	})
}

func (t *Text) insertFormatMarker(tx *Transaction, index int, key string, value any) error {
	left, right, err := t.col.resolveOrigins(index)
	if err != nil {
		return err
	}
	b := &block.Block{
		ID:      block.ID{Client: t.col.doc.clientID, Clock: t.col.doc.store.NextClock(t.col.doc.clientID)},
		Len:     1,
		Content: block.Format{Key: key, Value: value},
		Parent:  t.col.parentRef(),
	}
	if left != nil {
		b.HasOriginLeft, b.OriginLeft = true, lastUnitID(left)
	}
	if right != nil {
		b.HasOriginRight, b.OriginRight = true, right.ID
	}
	return tx.integrate(b)
}

// String materializes the text's current visible content.
func (t *Text) String() string {
	var runes []rune
	for b := t.col.branch.Start; b != nil; b = b.Right {
		if b.IndexLen() == 0 {
			continue
		}
		if s, ok := b.Content.(block.String); ok {
			runes = append(runes, []rune(s.String())...)
		}
	}
	return string(runes)
}

// ToDelta renders the text as a Quill-style delta (spec §4.4, §9).
func (t *Text) ToDelta() []DeltaOp {
	b := newDeltaBuilder()
	active := map[string]any{}
	for cur := t.col.branch.Start; cur != nil; cur = cur.Right {
		if cur.Deleted {
			continue
		}
		switch c := cur.Content.(type) {
		case block.String:
			b.insert(c.String(), cloneAttrs(active))
		case block.Format:
			if c.Value == nil {
				delete(active, c.Key)
			} else {
				active[c.Key] = c.Value
			}
		}
	}
	return b.ops()
}

// Observe registers fn to run once per insert/delete/format event.
func (t *Text) Observe(fn func(Event)) (*Subscription, error) { return t.col.Observe(fn) }

// ObserveDeep registers fn to run once per commit with this text's events.
func (t *Text) ObserveDeep(fn func([]Event)) (*Subscription, error) { return t.col.ObserveDeep(fn) }
