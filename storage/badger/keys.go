package badger

import (
	"encoding/binary"
	"fmt"
)

// Key prefixes for different data types
const (
	vectorRecordPrefix = "vecrec"
	documentHashPrefix = "vechash"
	sourcePrefix       = "vecsrc"
)

// makeRecordKey generates a key for one chunk record.
// Format: prefix:source:documentID:chunkIndex
// The chunk index is written BigEndian so iteration yields chunks in order.
func makeRecordKey(source, documentID string, chunkIndex int) []byte {
	prefix := fmt.Sprintf("%s:%s:%s:", vectorRecordPrefix, source, documentID)
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(chunkIndex))
	return buf
}

// makeDocumentKeyPrefix generates the prefix shared by all chunks of a document.
func makeDocumentKeyPrefix(source, documentID string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s:", vectorRecordPrefix, source, documentID))
}

// makeSourceKeyPrefix generates the prefix shared by all records of a source.
func makeSourceKeyPrefix(source string) []byte {
	return []byte(fmt.Sprintf("%s:%s:", vectorRecordPrefix, source))
}

// makeDocumentHashKey generates a key for the content-hash index.
// Format: prefix:source:hash, value is the document ID.
func makeDocumentHashKey(source, hash string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s", documentHashPrefix, source, hash))
}

// makeDocumentHashKeyPrefix generates the hash-index prefix for one source.
func makeDocumentHashKeyPrefix(source string) []byte {
	return []byte(fmt.Sprintf("%s:%s:", documentHashPrefix, source))
}

// makeSourceKey generates the marker key that records a source's existence.
func makeSourceKey(source string) []byte {
	return []byte(fmt.Sprintf("%s:%s", sourcePrefix, source))
}