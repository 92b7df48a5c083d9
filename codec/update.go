package codec

import (
	"github.com/Horusiath/y-crdt/block"
	"github.com/Horusiath/y-crdt/yerr"
)

// Version selects which wire format Encode/Decode operates in.
type Version int

const (
	V1 Version = iota
	V2
)

// EncodeStateAsUpdate collects every block store holds that sv has not yet
// observed and serializes it (spec §4.5 "encode_state_as_update"). A
// client run whose sv cursor falls mid-block is split first, via
// store.GetItem, so the emitted bytes never duplicate clocks the remote
// peer already has.
func EncodeStateAsUpdate(store *block.Store, sv block.StateVector, version Version) ([]byte, error) {
	var blocks []*block.Block
	ds := block.NewDeleteSet()
	for _, client := range store.Clients() {
		known := sv.Get(client)
		all := store.BlocksOf(client)
		for i := 0; i < len(all); i++ {
			b := all[i]
			if b.End() <= known {
				continue
			}
			if b.ID.Clock < known {
				split, err := store.GetItem(block.ID{Client: client, Clock: known})
				if err != nil {
					return nil, err
				}
				b = split
			}
			if b.Deleted {
				ds.Add(b.ID, b.Len)
			}
			blocks = append(blocks, b)
		}
	}
	switch version {
	case V1:
		return EncodeUpdateV1(blocks, ds)
	case V2:
		return EncodeUpdateV2(blocks, ds)
	default:
		return nil, yerr.New(yerr.MalformedUpdate, "codec: unknown update version %d", version)
	}
}

// DecodeUpdate parses update bytes written in the given version, returning
// the blocks and delete-set for the caller to integrate (spec §4.5
// "decode_update"). Integration — resolving dependencies, splicing into
// branch order, applying the delete-set — is left to the ycrdt package's
// transaction layer.
func DecodeUpdate(data []byte, version Version) ([]*block.Block, block.DeleteSet, error) {
	switch version {
	case V1:
		return DecodeUpdateV1(data)
	case V2:
		return DecodeUpdateV2(data)
	default:
		return nil, nil, yerr.New(yerr.MalformedUpdate, "codec: unknown update version %d", version)
	}
}
