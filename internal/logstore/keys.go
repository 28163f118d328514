package logstore

import "encoding/binary"

// Pebble keyspace helpers.
//
// Layout (byte-wise, lexicographically sortable):
// - meta/seq            -> last allocated id (be8)
// - log/i/{id_be8}      -> "" (index entry)
// - msg/{id_be8}        -> serialized payload
//
// Index and payload live under separate prefixes so they can be written and
// removed independently; only Commit couples them in one batch.

var (
	keySeq        = []byte("meta/seq")
	indexPrefix   = []byte("log/i/")
	payloadPrefix = []byte("msg/")
)

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// keyIndex builds the log index key with a big-endian id for proper ordering.
func keyIndex(id uint64) []byte {
	k := make([]byte, 0, len(indexPrefix)+8)
	k = append(k, indexPrefix...)
	return appendBE8(k, id)
}

// keyPayload builds the payload key for an id.
func keyPayload(id uint64) []byte {
	k := make([]byte, 0, len(payloadPrefix)+8)
	k = append(k, payloadPrefix...)
	return appendBE8(k, id)
}

// idFromIndexKey extracts the id from a log index key.
func idFromIndexKey(k []byte) uint64 {
	return binary.BigEndian.Uint64(k[len(indexPrefix):])
}
