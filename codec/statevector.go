package codec

import (
	"sort"

	"github.com/Horusiath/y-crdt/block"
)

// EncodeStateVector implements spec §6's "State vector bytes" layout:
// varuint num_clients, then per client (varuint client_id, varuint
// next_clock). An empty state vector encodes as the single byte [0].
func EncodeStateVector(sv block.StateVector) []byte {
	w := &Writer{}
	clients := sortedClients(sv)
	w.WriteUvarint(uint64(len(clients)))
	for _, c := range clients {
		w.WriteUvarint(uint64(c))
		w.WriteUvarint(uint64(sv[c]))
	}
	return w.Bytes()
}

// DecodeStateVector parses bytes written by EncodeStateVector.
func DecodeStateVector(data []byte) (block.StateVector, error) {
	r := NewReader(data)
	n, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	sv := make(block.StateVector, n)
	for i := uint64(0); i < n; i++ {
		client, err := r.ReadUvarint()
		if err != nil {
			return nil, err
		}
		clock, err := r.ReadUvarint()
		if err != nil {
			return nil, err
		}
		sv[block.ClientID(client)] = block.Clock(clock)
	}
	return sv, nil
}

func sortedClients(sv block.StateVector) []block.ClientID {
	out := make([]block.ClientID, 0, len(sv))
	for c := range sv {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
