package ycrdt

import (
	"github.com/Horusiath/y-crdt/block"
)

// XmlFragment is the containerless top-level XML root (spec §4.4, §9): a
// sequence of XmlElement/XmlText children with no tag or attributes of its
// own.
type XmlFragment struct {
	col *collection
}

// InsertElement creates a new tagged child element at index.
func (f *XmlFragment) InsertElement(index int, tag string) (*XmlElement, error) {
	var elem *XmlElement
	err := f.col.mutate(func(tx *Transaction) error {
		branch, err := f.col.insertType(tx, index, block.KindXmlElement, tag)
		if err != nil {
			return err
		}
		elem = attachChildXml(f.col.doc, branch, tag)
		tx.recordEvent(f.col.branch, Event{Kind: EventInsert, Index: index, Length: 1})
		return nil
	})
	return elem, err
}

// InsertText creates a new text child node at index.
func (f *XmlFragment) InsertText(index int) (*XmlText, error) {
	var txt *XmlText
	err := f.col.mutate(func(tx *Transaction) error {
		branch, err := f.col.insertType(tx, index, block.KindXmlText, "")
		if err != nil {
			return err
		}
		txt = &XmlText{Text: Text{col: newChildCollection(f.col.doc, branch)}}
		tx.recordEvent(f.col.branch, Event{Kind: EventInsert, Index: index, Length: 1})
		return nil
	})
	return txt, err
}

// Len returns the fragment's current child count.
func (f *XmlFragment) Len() int { return f.col.length() }

// Observe registers fn to run once per child insert/delete event.
func (f *XmlFragment) Observe(fn func(Event)) (*Subscription, error) { return f.col.Observe(fn) }

// ObserveDeep registers fn to run once per commit with this fragment's
// events plus every descendant's events bubbled into it.
func (f *XmlFragment) ObserveDeep(fn func([]Event)) (*Subscription, error) {
	return f.col.ObserveDeep(fn)
}

// XmlElement is a tagged XML node: its attributes live as map entries of
// its own branch, its children as that same branch's sequence (spec §4.6
// — see the routing note in block.Integrator.integrate).
type XmlElement struct {
	Tag string
	col *collection
}

func attachChildXml(doc *Doc, branch *block.Branch, tag string) *XmlElement {
	return &XmlElement{Tag: tag, col: newChildCollection(doc, branch)}
}

func newChildCollection(doc *Doc, branch *block.Branch) *collection {
	c := newCollection()
	c.doc = doc
	c.branch = branch
	doc.registerCollection(branch, c)
	return c
}

// SetAttribute writes attr on the element, producing one map-entry block
// parented to the element's own branch header.
func (e *XmlElement) SetAttribute(name string, value any) error {
	return e.col.mutate(func(tx *Transaction) error {
		var old any
		if existing, ok := e.col.branch.MapValues[name]; ok && !existing.Deleted {
			old, _ = unitValue(existing.Content, 0)
		}
		b := &block.Block{
			ID:      block.ID{Client: e.col.doc.clientID, Clock: e.col.doc.store.NextClock(e.col.doc.clientID)},
			Len:     1,
			Content: block.Embed{Value: value},
			Parent:  block.ParentRef{TypeHeader: e.col.branch.HeaderID, MapKey: name},
		}
		if err := tx.integrate(b); err != nil {
			return err
		}
		kind := EventMapAdd
		if old != nil {
			kind = EventMapUpdate
		}
		tx.recordEvent(e.col.branch, Event{Kind: kind, Key: name, OldValue: old, NewValue: value})
		return nil
	})
}

// Attribute returns the current value of an attribute, if set.
func (e *XmlElement) Attribute(name string) (any, bool) {
	b, ok := e.col.branch.MapValues[name]
	if !ok || b.Deleted {
		return nil, false
	}
	return unitValue(b.Content, 0)
}

// InsertElement creates a new tagged child element at index, under this
// element.
func (e *XmlElement) InsertElement(index int, tag string) (*XmlElement, error) {
	var child *XmlElement
	err := e.col.mutate(func(tx *Transaction) error {
		branch, err := e.col.insertType(tx, index, block.KindXmlElement, tag)
		if err != nil {
			return err
		}
		child = attachChildXml(e.col.doc, branch, tag)
		tx.recordEvent(e.col.branch, Event{Kind: EventInsert, Index: index, Length: 1})
		return nil
	})
	return child, err
}

// InsertText creates a new text child node at index, under this element.
func (e *XmlElement) InsertText(index int) (*XmlText, error) {
	var txt *XmlText
	err := e.col.mutate(func(tx *Transaction) error {
		branch, err := e.col.insertType(tx, index, block.KindXmlText, "")
		if err != nil {
			return err
		}
		txt = &XmlText{Text: Text{col: newChildCollection(e.col.doc, branch)}}
		tx.recordEvent(e.col.branch, Event{Kind: EventInsert, Index: index, Length: 1})
		return nil
	})
	return txt, err
}

// Len returns the element's current child count.
func (e *XmlElement) Len() int { return e.col.length() }

// Observe registers fn to run once per attribute/child change event.
func (e *XmlElement) Observe(fn func(Event)) (*Subscription, error) { return e.col.Observe(fn) }

// ObserveDeep registers fn to run once per commit with this element's
// events plus every descendant's events bubbled into it.
func (e *XmlElement) ObserveDeep(fn func([]Event)) (*Subscription, error) {
	return e.col.ObserveDeep(fn)
}

// XmlText is a text node inside an XML tree: identical to Text, including
// its ToDelta, which renders plain insert runs with no tag-aware
// serialization. Its parent chain is addressable by a deep observer the
// same way any other nested collection's is.
type XmlText struct {
	Text
}
