package codec

import (
	"github.com/Horusiath/y-crdt/block"
	"github.com/Horusiath/y-crdt/yerr"
)

// EncodeUpdateV2 serializes blocks and ds into the columnar v2 layout:
// parallel clients[]/clocks[]/lens[]/info[] arrays (info run-length
// encoded as (count, infoByte) pairs), an origins[] id-ref stream, and a
// trailing content[] byte stream holding every block's content payload in
// the same order as the other columns. This is an approximation of the
// established v2 format at the column/stream level (see DESIGN.md); it is
// not claimed to be byte-for-byte compatible with lib0's v2 opcode table.
func EncodeUpdateV2(blocks []*block.Block, ds block.DeleteSet) ([]byte, error) {
	runs := groupByClient(blocks)

	w := &Writer{}
	w.WriteUvarint(uint64(len(runs)))

	// clients[] + per-run clocks[]/lens[] columns.
	for _, run := range runs {
		w.WriteUvarint(uint64(run.client))
		w.WriteUvarint(uint64(len(run.blocks)))
		w.WriteUvarint(uint64(run.blocks[0].ID.Clock))
		prevEnd := run.blocks[0].ID.Clock
		for _, b := range run.blocks {
			// delta-encoded against the previous block's end clock within
			// this client's run; the first block's delta is always 0 since
			// startClock already anchors it.
			w.WriteUvarint(uint64(b.ID.Clock - prevEnd))
			w.WriteUvarint(uint64(b.Len))
			prevEnd = b.End()
		}
	}

	// info[] column, run-length encoded across the flattened block order.
	flat := flatten(runs)
	infoRuns, err := runLengthInfo(flat)
	if err != nil {
		return nil, err
	}
	w.WriteUvarint(uint64(len(infoRuns)))
	for _, ir := range infoRuns {
		w.WriteUvarint(uint64(ir.count))
		w.WriteByte(ir.info)
	}

	// origins[] stream: one (hasOriginLeft?, id, hasOriginRight?, id) tuple
	// per block, same-client origins written relative to the block's own
	// clock to keep common local-insert chains small on the wire.
	for _, b := range flat {
		writeRelativeOrigin(w, b, b.OriginLeft, b.HasOriginLeft)
		writeRelativeOrigin(w, b, b.OriginRight, b.HasOriginRight)
		writeParentInfo(w, b.Parent)
		if b.Parent.IsMapEntry() {
			w.WriteVarString(b.Parent.MapKey)
		}
	}

	// content[] stream.
	for _, b := range flat {
		tag, err := tagOf(b.Content)
		if err != nil {
			return nil, err
		}
		if err := writeContent(w, tag, b.Content); err != nil {
			return nil, err
		}
	}

	writeDeleteSet(w, ds)
	return w.Bytes(), nil
}

type infoRun struct {
	count int
	info  byte
}

func runLengthInfo(blocks []*block.Block) ([]infoRun, error) {
	var runs []infoRun
	for _, b := range blocks {
		tag, err := tagOf(b.Content)
		if err != nil {
			return nil, err
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
		if len(runs) > 0 && runs[len(runs)-1].info == info {
			runs[len(runs)-1].count++
			continue
		}
		runs = append(runs, infoRun{count: 1, info: info})
	}
	return runs, nil
}

func flatten(runs []clientRun) []*block.Block {
	var out []*block.Block
	for _, run := range runs {
		out = append(out, run.blocks...)
	}
	return out
}

// writeRelativeOrigin writes a presence-tagged origin id. Same-client
// origins are written as a zig-zag clock delta against the owning block's
// own clock (typically small and negative, since an origin usually
// precedes its dependent); cross-client origins fall back to the absolute
// (client, clock) pair.
func writeRelativeOrigin(w *Writer, owner *block.Block, origin block.ID, has bool) {
	if !has {
		w.WriteByte(0)
		return
	}
	if origin.Client == owner.ID.Client {
		w.WriteByte(1)
		w.WriteVarint(int64(origin.Clock) - int64(owner.ID.Clock))
		return
	}
	w.WriteByte(2)
	writeID(w, origin)
}

func readRelativeOrigin(r *Reader, owner block.ID) (block.ID, bool, error) {
	tagByte, err := r.ReadByte()
	if err != nil {
		return block.ID{}, false, err
	}
	switch tagByte {
	case 0:
		return block.ID{}, false, nil
	case 1:
		delta, err := r.ReadVarint()
		if err != nil {
			return block.ID{}, false, err
		}
		return block.ID{Client: owner.Client, Clock: block.Clock(int64(owner.Clock) + delta)}, true, nil
	case 2:
		id, err := readID(r)
		if err != nil {
			return block.ID{}, false, err
		}
		return id, true, nil
	default:
		return block.ID{}, false, yerr.New(yerr.MalformedUpdate, "codec: unknown origin-ref tag")
	}
}

// DecodeUpdateV2 parses bytes written by EncodeUpdateV2.
func DecodeUpdateV2(data []byte) ([]*block.Block, block.DeleteSet, error) {
	r := NewReader(data)
	numClients, err := r.ReadUvarint()
	if err != nil {
		return nil, nil, err
	}

	type runHeader struct {
		client block.ClientID
		clocks []block.Clock
		lens   []block.Clock
	}
	headers := make([]runHeader, 0, numClients)
	var totalBlocks int
	for i := uint64(0); i < numClients; i++ {
		clientID, err := r.ReadUvarint()
		if err != nil {
			return nil, nil, err
		}
		numBlocks, err := r.ReadUvarint()
		if err != nil {
			return nil, nil, err
		}
		startClock, err := r.ReadUvarint()
		if err != nil {
			return nil, nil, err
		}
		h := runHeader{client: block.ClientID(clientID)}
		clock := block.Clock(startClock)
		prevEnd := clock
		for j := uint64(0); j < numBlocks; j++ {
			delta, err := r.ReadUvarint()
			if err != nil {
				return nil, nil, err
			}
			length, err := r.ReadUvarint()
			if err != nil {
				return nil, nil, err
			}
			c := prevEnd + block.Clock(delta)
			h.clocks = append(h.clocks, c)
			h.lens = append(h.lens, block.Clock(length))
			prevEnd = c + block.Clock(length)
		}
		headers = append(headers, h)
		totalBlocks += len(h.clocks)
	}

	numInfoRuns, err := r.ReadUvarint()
	if err != nil {
		return nil, nil, err
	}
	infos := make([]byte, 0, totalBlocks)
	for i := uint64(0); i < numInfoRuns; i++ {
		count, err := r.ReadUvarint()
		if err != nil {
			return nil, nil, err
		}
		info, err := r.ReadByte()
		if err != nil {
			return nil, nil, err
		}
		for j := uint64(0); j < count; j++ {
			infos = append(infos, info)
		}
	}
	if len(infos) != totalBlocks {
		return nil, nil, yerr.New(yerr.MalformedUpdate, "codec: v2 info-run count does not match block count")
	}

	blocks := make([]*block.Block, 0, totalBlocks)
	for _, h := range headers {
		for i := range h.clocks {
			blocks = append(blocks, &block.Block{
				ID:  block.ID{Client: h.client, Clock: h.clocks[i]},
				Len: h.lens[i],
			})
		}
	}

	for i, b := range blocks {
		origin, has, err := readRelativeOrigin(r, b.ID)
		if err != nil {
			return nil, nil, err
		}
		b.HasOriginLeft, b.OriginLeft = has, origin
		origin2, has2, err := readRelativeOrigin(r, b.ID)
		if err != nil {
			return nil, nil, err
		}
		b.HasOriginRight, b.OriginRight = has2, origin2
		parent, err := readParentInfo(r)
		if err != nil {
			return nil, nil, err
		}
		if infos[i]&infoHasParentSub != 0 {
			key, err := r.ReadVarString()
			if err != nil {
				return nil, nil, err
			}
			parent.MapKey = key
		}
		b.Parent = parent
	}

	for i, b := range blocks {
		info := infos[i]
		tag := contentTag((info & infoTagMask) >> infoTagShift)
		content, err := readContent(r, tag, b.Len)
		if err != nil {
			return nil, nil, err
		}
		b.Content = content
		b.Deleted = info&infoDeleted != 0
	}

	ds, err := readDeleteSet(r)
	if err != nil {
		return nil, nil, err
	}
	return blocks, ds, nil
}

