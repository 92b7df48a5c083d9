package block

// ParentRef names what a Block belongs to: a named root collection, a
// nested type header (another Block whose Content is a Type), or — for
// map entries — a (parent, key) locator. Spec §3 keeps parent and
// parent_sub as two fields; here the map-entry locator is folded into
// ParentRef itself (see DESIGN.md for the rationale), so a Block never
// carries a parent_sub field of its own.
type ParentRef struct {
	// RootName is set when this block (or the collection it starts) is a
	// top-level, user-named root (spec §3 "root name").
	RootName string
	// TypeHeader is set when the parent is a nested collection: the ID of
	// the Block whose Content is a Type (spec §3 "nested type header id").
	TypeHeader ID
	// MapKey is set when this block is a map entry; Parent then names the
	// Map collection it is keyed into (spec §3 parent_sub).
	MapKey string
}

// IsRoot reports whether this reference names a top-level root collection.
func (p ParentRef) IsRoot() bool { return p.RootName != "" }

// IsMapEntry reports whether this reference is a (parent, key) map locator.
func (p ParentRef) IsMapEntry() bool { return p.MapKey != "" }

// Block is the atomic unit of operation (spec §3).
type Block struct {
	ID ID
	// Len is the number of logical units in the block. For splittable
	// content this always equals Content.Len(); for atomic content it is
	// always 1.
	Len Clock

	OriginLeft  ID // zero value (NoID) means "none"
	HasOriginLeft bool
	OriginRight   ID
	HasOriginRight bool

	// Left/Right are the block's current neighbors in its containing
	// linked list — derived state, recomputed on integration (spec §3).
	Left, Right *Block

	Parent ParentRef

	Content Content
	Deleted bool
}

// End returns the clock one past the block's last logical unit.
func (b *Block) End() Clock { return b.ID.Clock + b.Len }

// ContainsClock reports whether clock c falls within this block's range.
func (b *Block) ContainsClock(c Clock) bool {
	return c >= b.ID.Clock && c < b.End()
}

// OriginLeftID returns the block's left origin id, and whether it has one.
func (b *Block) OriginLeftID() (ID, bool) { return b.OriginLeft, b.HasOriginLeft }

// OriginRightID returns the block's right origin id, and whether it has
// one.
func (b *Block) OriginRightID() (ID, bool) { return b.OriginRight, b.HasOriginRight }

// IndexLen returns how many user-visible index slots this block
// contributes — zero if the block is deleted or its content is
// index-invisible (Format markers).
func (b *Block) IndexLen() Clock {
	if b.Deleted {
		return 0
	}
	return b.Content.IndexLen()
}

// sameAdjacencyClass reports whether a and b are eligible to be merged by
// Store.MergeAdjacent: same client, contiguous clocks, same content kind,
// same deleted flag, same parent, and (for Format content) the same key —
// the six-way check of spec §4.1.
func sameAdjacencyClass(a, b *Block) bool {
	if a.ID.Client != b.ID.Client {
		return false
	}
	if a.End() != b.ID.Clock {
		return false
	}
	if a.Deleted != b.Deleted {
		return false
	}
	if a.Parent != b.Parent {
		return false
	}
	switch ac := a.Content.(type) {
	case Deleted:
		_, ok := b.Content.(Deleted)
		return ok
	case JSONContent:
		_, ok := b.Content.(JSONContent)
		return ok
	case Binary:
		_, ok := b.Content.(Binary)
		return ok
	case String:
		_, ok := b.Content.(String)
		return ok
	case Format:
		bc, ok := b.Content.(Format)
		return ok && ac.Key == bc.Key
	default:
		// Embed, Type, Move, Link, SubDoc are all atomic (len 1) and
		// never contiguous-mergeable with another unit of themselves.
		return false
	}
}

// mergeContent merges b's content onto the end of a's content. Only
// called once sameAdjacencyClass(a, b) holds.
func mergeContent(a, b Content) Content {
	switch ac := a.(type) {
	case Deleted:
		bc := b.(Deleted)
		return Deleted{Length: ac.Length + bc.Length}
	case JSONContent:
		bc := b.(JSONContent)
		return JSONContent{Values: append(append([]any{}, ac.Values...), bc.Values...)}
	case Binary:
		bc := b.(Binary)
		return Binary{Bytes: append(append([]byte{}, ac.Bytes...), bc.Bytes...)}
	case String:
		bc := b.(String)
		return String{runes: append(append([]rune{}, ac.runes...), bc.runes...)}
	default:
		panic("block: mergeContent called on non-mergeable content")
	}
}

// TypeKind returns the shared collection header this block starts, or
// false if this block's content is not a Type.
func (b *Block) TypeKind() (Type, bool) {
	t, ok := b.Content.(Type)
	if !ok {
		return Type{}, false
	}
	return t, true
}

// Branch is a named root collection or nested type header: the
// "5% of core" branch registry named in spec §4.1.
type Branch struct {
	Kind Kind
	Name string // tag name for XmlElement, empty otherwise
	// HeaderID is the ID of the Type block that introduced this branch, or
	// NoID for a top-level root (roots have no introducing block).
	HeaderID ID

	Start *Block // head of the linked list of child blocks
	End   *Block // tail of the linked list of child blocks

	// MapValues holds, per key, the currently-visible map entry block for
	// Map branches and for XmlElement branches' attributes (spec §4.2 "Map
	// entries"). Array, Text, XmlFragment and XmlText branches leave this
	// nil.
	MapValues map[string]*Block
}
