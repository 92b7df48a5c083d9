package block

// Kind tags a shared collection header (Content.Type) so the branch
// registry can reject a host reinterpreting a root under a different kind
// (spec §7 TypeMismatch).
type Kind uint8

const (
	KindArray Kind = iota
	KindMap
	KindText
	KindXmlElement
	KindXmlFragment
	KindXmlText
)

func (k Kind) String() string {
	switch k {
	case KindArray:
		return "Array"
	case KindMap:
		return "Map"
	case KindText:
		return "Text"
	case KindXmlElement:
		return "XmlElement"
	case KindXmlFragment:
		return "XmlFragment"
	case KindXmlText:
		return "XmlText"
	default:
		return "Unknown"
	}
}

// Content is the payload of a Block. Spec §9 deliberately rejects a common
// base abstraction for content — split rules, delta emission, and clock
// accounting genuinely differ per variant — so Content is a narrow
// interface and each variant below is its own concrete type, not a shared
// struct with a discriminator field.
type Content interface {
	// Len reports how many logical units (clock-space slots) this content
	// occupies.
	Len() Clock
	// Splittable reports whether Split may be called on this content.
	// Embeds, Format markers, Type headers, Move and Link records, and
	// SubDoc handles are atomic and never split (spec §3).
	Splittable() bool
	// Split divides the content at offset into a left part of length
	// offset and a right part of the remainder. Only called when
	// Splittable() is true and 0 < offset < Len().
	Split(offset Clock) (left, right Content)
	// IndexLen reports how many index-space (user-visible) slots this
	// content occupies when not deleted. Format markers occupy clock space
	// but not index space (spec §3), so they return 0 here while Len()
	// still returns 1.
	IndexLen() Clock
}

// Deleted is a tombstone-only payload produced by splitting a deleted
// block, or by directly constructing a gap placeholder when decoding an
// update whose blocks the receiver will never see (spec §3).
type Deleted struct{ Length Clock }

func (d Deleted) Len() Clock      { return d.Length }
func (d Deleted) Splittable() bool { return d.Length > 1 }
func (d Deleted) IndexLen() Clock { return 0 }
func (d Deleted) Split(offset Clock) (Content, Content) {
	return Deleted{Length: offset}, Deleted{Length: d.Length - offset}
}

// JSONContent holds a run of JSON-compatible values, one per logical unit
// (spec §3 "JSON(values[])"), e.g. Array elements that aren't plain
// strings/binaries/embeds.
type JSONContent struct{ Values []any }

func (c JSONContent) Len() Clock       { return Clock(len(c.Values)) }
func (c JSONContent) Splittable() bool { return len(c.Values) > 1 }
func (c JSONContent) IndexLen() Clock  { return c.Len() }
func (c JSONContent) Split(offset Clock) (Content, Content) {
	return JSONContent{Values: c.Values[:offset]}, JSONContent{Values: c.Values[offset:]}
}

// Binary holds a raw byte payload. It occupies a single index slot
// (IndexLen is 1), but a binary of N bytes consumes N clock slots, like the
// String variant below, and is splittable at a byte offset so that a
// clock-range operation (such as applying a delete-set) covering only part
// of it can still be aligned to its boundaries.
type Binary struct{ Bytes []byte }

func (c Binary) Len() Clock       { return Clock(len(c.Bytes)) }
func (c Binary) Splittable() bool { return len(c.Bytes) > 1 }
func (c Binary) IndexLen() Clock  { return 1 }
func (c Binary) Split(offset Clock) (Content, Content) {
	return Binary{Bytes: c.Bytes[:offset]}, Binary{Bytes: c.Bytes[offset:]}
}

// String holds UTF-8 text content. Len is the code-point count (spec §4.4
// "units are code points"), precomputed at construction so splitting and
// index accounting never have to re-scan UTF-8.
type String struct {
	runes []rune
}

// NewString constructs a String content block from a UTF-8 string,
// precomputing its code-point length per spec §4.4.
func NewString(s string) String { return String{runes: []rune(s)} }

func (c String) Len() Clock       { return Clock(len(c.runes)) }
func (c String) Splittable() bool { return len(c.runes) > 1 }
func (c String) IndexLen() Clock  { return c.Len() }
func (c String) String() string   { return string(c.runes) }
func (c String) Split(offset Clock) (Content, Content) {
	return String{runes: c.runes[:offset]}, String{runes: c.runes[offset:]}
}

// Embed holds a single opaque value that can never be split (spec §3).
type Embed struct{ Value any }

func (c Embed) Len() Clock               { return 1 }
func (c Embed) Splittable() bool         { return false }
func (c Embed) IndexLen() Clock          { return 1 }
func (c Embed) Split(Clock) (Content, Content) { panic("block: Embed is not splittable") }

// Format is a zero-visible-length text formatting range marker (spec §3,
// §4.4). It occupies one clock slot but zero index slots.
type Format struct {
	Key   string
	Value any
}

func (c Format) Len() Clock               { return 1 }
func (c Format) Splittable() bool         { return false }
func (c Format) IndexLen() Clock          { return 0 }
func (c Format) Split(Clock) (Content, Content) { panic("block: Format is not splittable") }

// Type carries a nested shared collection header: its kind tag and
// optional tag name (used by XmlElement). A Type block is the "parent
// block" a nested collection's children reference via ParentRef.TypeHeader
// (spec §3 "Type(header)").
type Type struct {
	Kind Kind
	Name string // tag name, XmlElement only
}

func (c Type) Len() Clock               { return 1 }
func (c Type) Splittable() bool         { return false }
func (c Type) IndexLen() Clock          { return 1 }
func (c Type) Split(Clock) (Content, Content) { panic("block: Type is not splittable") }

// Move records a move of an existing range [Start, End) (inclusive IDs) to
// a position described by the block's own origin_left/origin_right (spec
// §3 "Move(range)", §9 Open Question).
type Move struct {
	Start, End ID
}

func (c Move) Len() Clock               { return 1 }
func (c Move) Splittable() bool         { return false }
func (c Move) IndexLen() Clock          { return 0 }
func (c Move) Split(Clock) (Content, Content) { panic("block: Move is not splittable") }

// Link is a weak reference quoting the id range [Start, End] (spec §3
// "Link(quoted_range)", §4.6).
type Link struct {
	Start, End ID
	// Key, if non-empty, is the map key this link quotes instead of a
	// range — a link created over a Map entry rather than an Array/Text
	// range (spec §4.6 "deref() on a map link").
	Key string
}

func (c Link) Len() Clock               { return 1 }
func (c Link) Splittable() bool         { return false }
func (c Link) IndexLen() Clock          { return 1 }
func (c Link) Split(Clock) (Content, Content) { panic("block: Link is not splittable") }

// SubDoc is a subdocument handle (spec §3 "Doc(guid, options)").
type SubDoc struct {
	Guid    string
	Options map[string]any
}

func (c SubDoc) Len() Clock               { return 1 }
func (c SubDoc) Splittable() bool         { return false }
func (c SubDoc) IndexLen() Clock          { return 1 }
func (c SubDoc) Split(Clock) (Content, Content) { panic("block: SubDoc is not splittable") }
