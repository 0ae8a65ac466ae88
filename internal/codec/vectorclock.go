package codec

import "tablecrdt/internal/crdt"

// EncodeVectorClock serializes a VectorClock as a count-prefixed list of
// (peer, lamport) varint pairs. The empty clock encodes as a single zero
// byte and decodes back to an empty clock — "give me everything" in a sync
// request.
func EncodeVectorClock(vc crdt.VectorClock) []byte {
	var buf []byte
	buf = putUvarint(buf, uint64(len(vc)))
	for peer, lamport := range vc {
		buf = putUvarint(buf, uint64(peer))
		buf = putUvarint(buf, uint64(lamport))
	}
	return buf
}

// DecodeVectorClock is EncodeVectorClock's inverse.
func DecodeVectorClock(data []byte) (crdt.VectorClock, error) {
	n, rest, err := getUvarint(data, "vectorclock")
	if err != nil {
		return nil, err
	}
	vc := crdt.NewVectorClock()
	for i := uint64(0); i < n; i++ {
		var peer, lamport uint64
		peer, rest, err = getUvarint(rest, "vectorclock.peer")
		if err != nil {
			return nil, err
		}
		lamport, rest, err = getUvarint(rest, "vectorclock.lamport")
		if err != nil {
			return nil, err
		}
		vc[crdt.Peer(peer)] = crdt.Lamport(lamport)
	}
	return vc, nil
}
