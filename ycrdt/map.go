package ycrdt

import (
	"github.com/Horusiath/y-crdt/block"
)

// Map is a key/value shared type (spec §4.2, §4.4). Every write produces a
// new map-entry Block; the visible value for a key is always the entry
// block with the largest (clock, client_id) id (spec §4.2), which the
// Integrator — not Map — enforces.
type Map[T any] struct {
	col *collection
}

// NewMap returns a preliminary Map, not yet attached to any Doc.
func NewMap[T any]() *Map[T] {
	return &Map[T]{col: newCollection()}
}

// Attach binds a preliminary Map to name inside doc.
func (m *Map[T]) Attach(doc *Doc, name string) error {
	branch, err := doc.store.GetOrCreateBranch(name, block.KindMap)
	if err != nil {
		return err
	}
	return m.col.attach(doc, branch, name)
}

// Set writes value at key, producing one new map-entry block (spec §4.4
// "set(key, value)").
func (m *Map[T]) Set(key string, value T) error {
	return m.col.mutate(func(tx *Transaction) error {
		return m.set(tx, key, value)
	})
}

func (m *Map[T]) set(tx *Transaction, key string, value T) error {
	var old any
	if existing, ok := m.col.branch.MapValues[key]; ok && !existing.Deleted {
		old, _ = unitValue(existing.Content, 0)
	}
	b := &block.Block{
		ID:      block.ID{Client: m.col.doc.clientID, Clock: m.col.doc.store.NextClock(m.col.doc.clientID)},
		Len:     1,
		Content: block.Embed{Value: value},
		Parent:  block.ParentRef{RootName: m.col.rootName, MapKey: key},
	}
	if m.col.branch.HeaderID.HasValue() {
		b.Parent = block.ParentRef{TypeHeader: m.col.branch.HeaderID, MapKey: key}
	}
	if err := tx.integrate(b); err != nil {
		return err
	}
	kind := EventMapAdd
	if old != nil {
		kind = EventMapUpdate
	}
	tx.recordEvent(m.col.branch, Event{Kind: kind, Key: key, OldValue: old, NewValue: value})
	return nil
}

// Get returns the value currently visible at key.
func (m *Map[T]) Get(key string) (T, bool) {
	var zero T
	b, ok := m.col.branch.MapValues[key]
	if !ok || b.Deleted {
		return zero, false
	}
	v, ok := unitValue(b.Content, 0)
	if !ok {
		return zero, false
	}
	tv, ok := v.(T)
	return tv, ok
}

// Delete removes key from the map (spec §4.4 "delete(key)"): the visible
// entry block is tombstoned, older entries remain for history per spec
// §4.2, it just never resurfaces as MapValues[key].
func (m *Map[T]) Delete(key string) error {
	return m.col.mutate(func(tx *Transaction) error {
		b, ok := m.col.branch.MapValues[key]
		if !ok || b.Deleted {
			return nil
		}
		old, _ := unitValue(b.Content, 0)
		b.Deleted = true
		tx.ds.Add(b.ID, b.Len)
		tx.touchedClients[b.ID.Client] = true
		tx.recordEvent(m.col.branch, Event{Kind: EventMapDelete, Key: key, OldValue: old})
		return nil
	})
}

// Keys returns every key currently visible in the map.
func (m *Map[T]) Keys() []string {
	keys := make([]string, 0, len(m.col.branch.MapValues))
	for k, b := range m.col.branch.MapValues {
		if !b.Deleted {
			keys = append(keys, k)
		}
	}
	return keys
}

// Observe registers fn to run once per add/update/delete event.
func (m *Map[T]) Observe(fn func(Event)) (*Subscription, error) { return m.col.Observe(fn) }

// ObserveDeep registers fn to run once per commit with this map's events
// plus every nested/linked collection's events bubbled into it.
func (m *Map[T]) ObserveDeep(fn func([]Event)) (*Subscription, error) { return m.col.ObserveDeep(fn) }
