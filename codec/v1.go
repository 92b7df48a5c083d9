package codec

import (
	"sort"

	"github.com/Horusiath/y-crdt/block"
	"github.com/Horusiath/y-crdt/yerr"
)

const (
	infoHasOriginLeft  = 1 << 0
	infoHasOriginRight = 1 << 1
	infoTagShift       = 2
	infoTagMask        = 0x0f << infoTagShift
	infoHasParentSub   = 1 << 6
	infoDeleted        = 1 << 7
)

// clientRun is one client's contiguous span of new blocks, as selected by
// EncodeStateAsUpdate or handed in directly by a caller that already knows
// its own pending blocks.
type clientRun struct {
	client block.ClientID
	blocks []*block.Block
}

// EncodeUpdateV1 serializes blocks (grouped into per-client contiguous
// runs) and ds into spec §6's v1 update-bytes layout.
func EncodeUpdateV1(blocks []*block.Block, ds block.DeleteSet) ([]byte, error) {
	runs := groupByClient(blocks)
	w := &Writer{}
	w.WriteUvarint(uint64(len(runs)))
	for _, run := range runs {
		w.WriteUvarint(uint64(run.client))
		w.WriteUvarint(uint64(len(run.blocks)))
		w.WriteUvarint(uint64(run.blocks[0].ID.Clock))
		for _, b := range run.blocks {
			if err := writeBlockV1(w, b); err != nil {
				return nil, err
			}
		}
	}
	writeDeleteSet(w, ds)
	return w.Bytes(), nil
}

func groupByClient(blocks []*block.Block) []clientRun {
	byClient := make(map[block.ClientID][]*block.Block)
	for _, b := range blocks {
		byClient[b.ID.Client] = append(byClient[b.ID.Client], b)
	}
	clients := make([]block.ClientID, 0, len(byClient))
	for c := range byClient {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i] < clients[j] })
	runs := make([]clientRun, 0, len(clients))
	for _, c := range clients {
		bs := byClient[c]
		sort.Slice(bs, func(i, j int) bool { return bs[i].ID.Clock < bs[j].ID.Clock })
		runs = append(runs, clientRun{client: c, blocks: bs})
	}
	return runs
}

func writeBlockV1(w *Writer, b *block.Block) error {
	tag, err := tagOf(b.Content)
	if err != nil {
		return err
	}
	info := byte(tag) << infoTagShift
	if b.HasOriginLeft {
		info |= infoHasOriginLeft
	}
	if b.HasOriginRight {
		info |= infoHasOriginRight
	}
	if b.Parent.IsMapEntry() {
		info |= infoHasParentSub
	}
	if b.Deleted {
		info |= infoDeleted
	}
	w.WriteByte(info)
	if b.HasOriginLeft {
		writeID(w, b.OriginLeft)
	}
	if b.HasOriginRight {
		writeID(w, b.OriginRight)
	}
	writeParentInfo(w, b.Parent)
	if b.Parent.IsMapEntry() {
		w.WriteVarString(b.Parent.MapKey)
	}
	w.WriteUvarint(uint64(b.Len))
	return writeContent(w, tag, b.Content)
}

// parentKind tags which of ParentRef's two mutually exclusive locators
// (root name vs. nested type header) follows on the wire.
type parentKind byte

const (
	parentRootName parentKind = iota
	parentTypeHeader
)

func writeParentInfo(w *Writer, p block.ParentRef) {
	if p.IsRoot() {
		w.WriteByte(byte(parentRootName))
		w.WriteVarString(p.RootName)
		return
	}
	w.WriteByte(byte(parentTypeHeader))
	writeID(w, p.TypeHeader)
}

func readParentInfo(r *Reader) (block.ParentRef, error) {
	kindByte, err := r.ReadByte()
	if err != nil {
		return block.ParentRef{}, err
	}
	switch parentKind(kindByte) {
	case parentRootName:
		name, err := r.ReadVarString()
		if err != nil {
			return block.ParentRef{}, err
		}
		return block.ParentRef{RootName: name}, nil
	case parentTypeHeader:
		id, err := readID(r)
		if err != nil {
			return block.ParentRef{}, err
		}
		return block.ParentRef{TypeHeader: id}, nil
	default:
		return block.ParentRef{}, yerr.New(yerr.MalformedUpdate, "codec: unknown parent-info kind %d", kindByte)
	}
}

func writeDeleteSet(w *Writer, ds block.DeleteSet) {
	clients := make([]block.ClientID, 0, len(ds))
	for c := range ds {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i] < clients[j] })
	w.WriteUvarint(uint64(len(clients)))
	for _, c := range clients {
		ranges := ds[c].Ranges()
		w.WriteUvarint(uint64(c))
		w.WriteUvarint(uint64(len(ranges)))
		for _, rg := range ranges {
			w.WriteUvarint(uint64(rg.Start))
			w.WriteUvarint(uint64(rg.End - rg.Start))
		}
	}
}

func readDeleteSet(r *Reader) (block.DeleteSet, error) {
	n, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	ds := block.NewDeleteSet()
	for i := uint64(0); i < n; i++ {
		client, err := r.ReadUvarint()
		if err != nil {
			return nil, err
		}
		numRanges, err := r.ReadUvarint()
		if err != nil {
			return nil, err
		}
		for j := uint64(0); j < numRanges; j++ {
			start, err := r.ReadUvarint()
			if err != nil {
				return nil, err
			}
			length, err := r.ReadUvarint()
			if err != nil {
				return nil, err
			}
			ds.Add(block.ID{Client: block.ClientID(client), Clock: block.Clock(start)}, block.Clock(length))
		}
	}
	return ds, nil
}

// DecodeUpdateV1 parses bytes written by EncodeUpdateV1. Blocks come back
// with Left/Right unset: wiring them into their branch's logical order is
// the Integrator's job, not the codec's (spec §4.5 "decode yields blocks
// plus a delete-set, application is a separate step").
func DecodeUpdateV1(data []byte) ([]*block.Block, block.DeleteSet, error) {
	r := NewReader(data)
	numClients, err := r.ReadUvarint()
	if err != nil {
		return nil, nil, err
	}
	var blocks []*block.Block
	for i := uint64(0); i < numClients; i++ {
		clientID, err := r.ReadUvarint()
		if err != nil {
			return nil, nil, err
		}
		numBlocks, err := r.ReadUvarint()
		if err != nil {
			return nil, nil, err
		}
		clock, err := r.ReadUvarint()
		if err != nil {
			return nil, nil, err
		}
		for j := uint64(0); j < numBlocks; j++ {
			b, err := readBlockV1(r, block.ClientID(clientID), block.Clock(clock))
			if err != nil {
				return nil, nil, err
			}
			blocks = append(blocks, b)
			clock += uint64(b.Len)
		}
	}
	ds, err := readDeleteSet(r)
	if err != nil {
		return nil, nil, err
	}
	return blocks, ds, nil
}

func readBlockV1(r *Reader, client block.ClientID, clock block.Clock) (*block.Block, error) {
	info, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	b := &block.Block{ID: block.ID{Client: client, Clock: clock}}
	if info&infoHasOriginLeft != 0 {
		b.HasOriginLeft = true
		b.OriginLeft, err = readID(r)
		if err != nil {
			return nil, err
		}
	}
	if info&infoHasOriginRight != 0 {
		b.HasOriginRight = true
		b.OriginRight, err = readID(r)
		if err != nil {
			return nil, err
		}
	}
	parent, err := readParentInfo(r)
	if err != nil {
		return nil, err
	}
	if info&infoHasParentSub != 0 {
		key, err := r.ReadVarString()
		if err != nil {
			return nil, err
		}
		parent.MapKey = key
	}
	b.Parent = parent
	b.Deleted = info&infoDeleted != 0

	length, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	b.Len = block.Clock(length)

	tag := contentTag((info & infoTagMask) >> infoTagShift)
	content, err := readContent(r, tag, b.Len)
	if err != nil {
		return nil, err
	}
	b.Content = content
	return b, nil
}
