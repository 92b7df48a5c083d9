package ycrdt

import (
	"github.com/Horusiath/y-crdt/block"
	"github.com/Horusiath/y-crdt/yerr"
)

// Array is a sequence shared type (spec §4.4). Insert always produces
// exactly one Block per call, holding every inserted item as a single
// JSONContent run — not one Block per item — so a batched insert stays one
// YATA integration instead of N.
type Array[T any] struct {
	col *collection
}

// NewArray returns a preliminary Array, not yet attached to any Doc. Its
// operations buffer locally until Attach is called.
func NewArray[T any]() *Array[T] {
	return &Array[T]{col: newCollection()}
}

// Attach binds a preliminary Array to name inside doc, replaying any
// buffered operations as a single transaction.
func (a *Array[T]) Attach(doc *Doc, name string) error {
	branch, err := doc.store.GetOrCreateBranch(name, block.KindArray)
	if err != nil {
		return err
	}
	return a.col.attach(doc, branch, name)
}

// Len returns the array's current visible length.
func (a *Array[T]) Len() int { return a.col.length() }

// Insert splices items into the array starting at index (spec §4.4
// "insert(i, items)").
func (a *Array[T]) Insert(index int, items ...T) error {
	if len(items) == 0 {
		return nil
	}
	values := make([]any, len(items))
	for i, v := range items {
		values[i] = v
	}
	return a.col.mutate(func(tx *Transaction) error {
		return a.insert(tx, index, values)
	})
}

// Push appends items to the end of the array.
func (a *Array[T]) Push(items ...T) error {
	return a.Insert(a.Len(), items...)
}

func (a *Array[T]) insert(tx *Transaction, index int, values []any) error {
	left, right, err := a.col.resolveOrigins(index)
	if err != nil {
		return err
	}
	content := block.JSONContent{Values: values}
	b := &block.Block{
		ID:      block.ID{Client: a.col.doc.clientID, Clock: a.col.doc.store.NextClock(a.col.doc.clientID)},
		Len:     content.Len(),
		Content: content,
		Parent:  a.col.parentRef(),
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
	tx.recordEvent(a.col.branch, Event{Kind: EventInsert, Index: index, Length: len(values), Values: values})
	return nil
}

// Delete removes the n items starting at index (spec §4.4 "delete(i, n)").
func (a *Array[T]) Delete(index, n int) error {
	if n == 0 {
		return nil
	}
	return a.col.mutate(func(tx *Transaction) error {
		if _, err := tx.delete(a.col.branch, index, n); err != nil {
			return err
		}
		a.col.markDirty()
		tx.recordEvent(a.col.branch, Event{Kind: EventDelete, Index: index, Length: n})
		return nil
	})
}

// Get returns the item at index.
func (a *Array[T]) Get(index int) (T, error) {
	var zero T
	pos := 0
	for b := a.col.branch.Start; b != nil; b = b.Right {
		n := int(b.IndexLen())
		if n == 0 {
			continue
		}
		if index < pos+n {
			v, ok := unitValue(b.Content, index-pos)
			if !ok {
				return zero, yerr.New(yerr.TypeMismatch, "array element at %d has no readable value", index)
			}
			tv, ok := v.(T)
			if !ok {
				return zero, yerr.New(yerr.TypeMismatch, "array element at %d is not the requested type", index)
			}
			return tv, nil
		}
		pos += n
	}
	return zero, yerr.New(yerr.OutOfBounds, "index %d exceeds array length %d", index, pos)
}

// ToSlice materializes the array's current visible contents.
func (a *Array[T]) ToSlice() ([]T, error) {
	out := make([]T, 0, a.Len())
	for b := a.col.branch.Start; b != nil; b = b.Right {
		n := int(b.IndexLen())
		for i := 0; i < n; i++ {
			v, ok := unitValue(b.Content, i)
			if !ok {
				continue
			}
			tv, ok := v.(T)
			if !ok {
				return nil, yerr.New(yerr.TypeMismatch, "array contains a value that is not the requested type")
			}
			out = append(out, tv)
		}
	}
	return out, nil
}

// unitValue extracts the i-th logical unit's value out of a content blob
// that may hold several (JSONContent, String) or exactly one (Embed,
// Binary as a whole).
func unitValue(c block.Content, i int) (any, bool) {
	switch v := c.(type) {
	case block.JSONContent:
		if i < 0 || i >= len(v.Values) {
			return nil, false
		}
		return v.Values[i], true
	case block.String:
		s := v.String()
		runes := []rune(s)
		if i < 0 || i >= len(runes) {
			return nil, false
		}
		return string(runes[i]), true
	case block.Embed:
		return v.Value, true
	case block.Binary:
		return v.Bytes, true
	default:
		return nil, false
	}
}

// Observe registers fn to run once per insert/delete event (spec §4.7).
func (a *Array[T]) Observe(fn func(Event)) (*Subscription, error) { return a.col.Observe(fn) }

// ObserveDeep registers fn to run once per commit with this array's events
// plus every nested/linked collection's events bubbled into it.
func (a *Array[T]) ObserveDeep(fn func([]Event)) (*Subscription, error) { return a.col.ObserveDeep(fn) }
