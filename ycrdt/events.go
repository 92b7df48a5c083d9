package ycrdt

// EventKind tags the shape of a collection change event (spec §4.7).
type EventKind int

const (
	EventInsert EventKind = iota
	EventDelete
	EventMapAdd
	EventMapUpdate
	EventMapDelete
	EventFormat
)

// Event describes one change a commit produced on a single collection.
// Array/Text changes carry Index/Length/Values; Map changes carry Key,
// OldValue and NewValue. WeakLink retargeting is reported through the
// owning collection's own Map/Array event, not a separate kind — §4.7
// only names WeakLinkEvent as "target reference", which is what
// Event.Key/Event.NewValue already carry for a map-backed link.
type Event struct {
	Kind     EventKind
	Index    int
	Length   int
	Values   []any
	Key      string
	OldValue any
	NewValue any
	Origin   any
}
