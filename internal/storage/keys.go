package storage

import "encoding/binary"

// Key schema, two prefixes sharing one embedded store:
//
//	sequence/<id_be64>  -> durable log entry
//	proof/<id_be64>     -> queued proof awaiting chain submission
const (
	prefixSequence = "sequence/"
	prefixProof    = "proof/"
)

func sequenceKey(id uint64) []byte {
	return append([]byte(prefixSequence), be64(id)...)
}

func proofKey(id uint64) []byte {
	return append([]byte(prefixProof), be64(id)...)
}

func be64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
