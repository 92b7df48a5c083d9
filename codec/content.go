package codec

import (
	"math"

	"github.com/Horusiath/y-crdt/block"
	"github.com/Horusiath/y-crdt/yerr"
)

// contentTag identifies a Content variant on the wire. Values are stable
// across v1 and v2 since both embed the same per-block content payload
// format (spec §3's tagged variant list).
type contentTag byte

const (
	tagDeleted contentTag = iota
	tagJSON
	tagBinary
	tagString
	tagEmbed
	tagFormat
	tagType
	tagMove
	tagLink
	tagSubDoc
)

func tagOf(c block.Content) (contentTag, error) {
	switch c.(type) {
	case block.Deleted:
		return tagDeleted, nil
	case block.JSONContent:
		return tagJSON, nil
	case block.Binary:
		return tagBinary, nil
	case block.String:
		return tagString, nil
	case block.Embed:
		return tagEmbed, nil
	case block.Format:
		return tagFormat, nil
	case block.Type:
		return tagType, nil
	case block.Move:
		return tagMove, nil
	case block.Link:
		return tagLink, nil
	case block.SubDoc:
		return tagSubDoc, nil
	default:
		return 0, yerr.New(yerr.MalformedUpdate, "codec: unknown content type %T", c)
	}
}

// writeContent appends c's payload (no tag, no length prefix — callers
// that need self-delimiting content, i.e. everything except the trailing
// block in a client run, rely on len from the block header instead).
func writeContent(w *Writer, tag contentTag, c block.Content) error {
	switch tag {
	case tagDeleted:
		// length only: carried by the block header's Len field already.
	case tagJSON:
		v := c.(block.JSONContent)
		for _, val := range v.Values {
			if err := writeAny(w, val); err != nil {
				return err
			}
		}
	case tagBinary:
		w.WriteVarBytes(c.(block.Binary).Bytes)
	case tagString:
		w.WriteVarString(c.(block.String).String())
	case tagEmbed:
		return writeAny(w, c.(block.Embed).Value)
	case tagFormat:
		v := c.(block.Format)
		w.WriteVarString(v.Key)
		if err := writeAny(w, v.Value); err != nil {
			return err
		}
	case tagType:
		v := c.(block.Type)
		w.WriteByte(byte(v.Kind))
		w.WriteVarString(v.Name)
	case tagMove:
		v := c.(block.Move)
		writeID(w, v.Start)
		writeID(w, v.End)
	case tagLink:
		v := c.(block.Link)
		writeID(w, v.Start)
		writeID(w, v.End)
		w.WriteVarString(v.Key)
	case tagSubDoc:
		v := c.(block.SubDoc)
		w.WriteVarString(v.Guid)
		w.WriteUvarint(uint64(len(v.Options)))
		for k, val := range v.Options {
			w.WriteVarString(k)
			if err := writeAny(w, val); err != nil {
				return err
			}
		}
	default:
		return yerr.New(yerr.MalformedUpdate, "codec: unknown content tag %d", tag)
	}
	return nil
}

// readContent parses a content payload of the given tag and length
// (length is the block's logical unit count — needed for variadic
// variants like JSONContent that encode one value per unit).
func readContent(r *Reader, tag contentTag, length block.Clock) (block.Content, error) {
	switch tag {
	case tagDeleted:
		return block.Deleted{Length: length}, nil
	case tagJSON:
		values := make([]any, 0, length)
		for i := block.Clock(0); i < length; i++ {
			v, err := readAny(r)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		return block.JSONContent{Values: values}, nil
	case tagBinary:
		b, err := r.ReadVarBytes()
		if err != nil {
			return nil, err
		}
		return block.Binary{Bytes: b}, nil
	case tagString:
		s, err := r.ReadVarString()
		if err != nil {
			return nil, err
		}
		return block.NewString(s), nil
	case tagEmbed:
		v, err := readAny(r)
		if err != nil {
			return nil, err
		}
		return block.Embed{Value: v}, nil
	case tagFormat:
		key, err := r.ReadVarString()
		if err != nil {
			return nil, err
		}
		val, err := readAny(r)
		if err != nil {
			return nil, err
		}
		return block.Format{Key: key, Value: val}, nil
	case tagType:
		kindByte, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		name, err := r.ReadVarString()
		if err != nil {
			return nil, err
		}
		return block.Type{Kind: block.Kind(kindByte), Name: name}, nil
	case tagMove:
		start, err := readID(r)
		if err != nil {
			return nil, err
		}
		end, err := readID(r)
		if err != nil {
			return nil, err
		}
		return block.Move{Start: start, End: end}, nil
	case tagLink:
		start, err := readID(r)
		if err != nil {
			return nil, err
		}
		end, err := readID(r)
		if err != nil {
			return nil, err
		}
		key, err := r.ReadVarString()
		if err != nil {
			return nil, err
		}
		return block.Link{Start: start, End: end, Key: key}, nil
	case tagSubDoc:
		guid, err := r.ReadVarString()
		if err != nil {
			return nil, err
		}
		n, err := r.ReadUvarint()
		if err != nil {
			return nil, err
		}
		opts := make(map[string]any, n)
		for i := uint64(0); i < n; i++ {
			k, err := r.ReadVarString()
			if err != nil {
				return nil, err
			}
			v, err := readAny(r)
			if err != nil {
				return nil, err
			}
			opts[k] = v
		}
		return block.SubDoc{Guid: guid, Options: opts}, nil
	default:
		return nil, yerr.New(yerr.MalformedUpdate, "codec: unknown content tag %d", tag)
	}
}

func writeID(w *Writer, id block.ID) {
	w.WriteUvarint(uint64(id.Client))
	w.WriteUvarint(uint64(id.Clock))
}

func readID(r *Reader) (block.ID, error) {
	client, err := r.ReadUvarint()
	if err != nil {
		return block.ID{}, err
	}
	clock, err := r.ReadUvarint()
	if err != nil {
		return block.ID{}, err
	}
	return block.ID{Client: block.ClientID(client), Clock: block.Clock(clock)}, nil
}

// any-value tags: a minimal JSON-like dynamic value encoding, sufficient
// for the JSON/Embed/Format/SubDoc-option payloads spec §3 describes as
// "JSON-compatible values" without pulling in a full schema.
type anyTag byte

const (
	anyNil anyTag = iota
	anyBool
	anyFloat64
	anyString
	anySlice
	anyMap
)

func writeAny(w *Writer, v any) error {
	switch val := v.(type) {
	case nil:
		w.WriteByte(byte(anyNil))
	case bool:
		w.WriteByte(byte(anyBool))
		if val {
			w.WriteByte(1)
		} else {
			w.WriteByte(0)
		}
	case float64:
		w.WriteByte(byte(anyFloat64))
		writeFloat64(w, val)
	case int:
		w.WriteByte(byte(anyFloat64))
		writeFloat64(w, float64(val))
	case string:
		w.WriteByte(byte(anyString))
		w.WriteVarString(val)
	case []any:
		w.WriteByte(byte(anySlice))
		w.WriteUvarint(uint64(len(val)))
		for _, item := range val {
			if err := writeAny(w, item); err != nil {
				return err
			}
		}
	case map[string]any:
		w.WriteByte(byte(anyMap))
		w.WriteUvarint(uint64(len(val)))
		for k, item := range val {
			w.WriteVarString(k)
			if err := writeAny(w, item); err != nil {
				return err
			}
		}
	default:
		return yerr.New(yerr.MalformedUpdate, "codec: unsupported JSON value type %T", v)
	}
	return nil
}

func readAny(r *Reader) (any, error) {
	tagByte, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch anyTag(tagByte) {
	case anyNil:
		return nil, nil
	case anyBool:
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		return b != 0, nil
	case anyFloat64:
		return readFloat64(r)
	case anyString:
		return r.ReadVarString()
	case anySlice:
		n, err := r.ReadUvarint()
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, n)
		for i := uint64(0); i < n; i++ {
			v, err := readAny(r)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case anyMap:
		n, err := r.ReadUvarint()
		if err != nil {
			return nil, err
		}
		out := make(map[string]any, n)
		for i := uint64(0); i < n; i++ {
			k, err := r.ReadVarString()
			if err != nil {
				return nil, err
			}
			v, err := readAny(r)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	default:
		return nil, yerr.New(yerr.MalformedUpdate, "codec: unknown any-value tag %d", tagByte)
	}
}

func writeFloat64(w *Writer, f float64) {
	bits := math.Float64bits(f)
	for i := 0; i < 8; i++ {
		w.WriteByte(byte(bits >> (8 * i)))
	}
}

func readFloat64(r *Reader) (float64, error) {
	b, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	var bits uint64
	for i := 0; i < 8; i++ {
		bits |= uint64(b[i]) << (8 * i)
	}
	return math.Float64frombits(bits), nil
}
