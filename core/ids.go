package core

import (
	"encoding/binary"
	"fmt"

	"github.com/go-crypt/x/blake2b"
	"github.com/google/uuid"
)

// ID is a unique identifier for chunks stored in the retrieval index.
// It is generated using content-based hashing so that re-ingesting the
// same document produces the same ids.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// Identical content always produces the same ID.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// ChunkID derives the stable identity of a chunk from its position in the
// document. The same (index, document, file, part) always maps to the same
// ID, which is what makes save_records idempotent under redelivery.
func ChunkID(index, documentID, fileID string, part int) ID {
	return IDFromContent(fmt.Sprintf("%s/%s/%s/%d", index, documentID, fileID, part))
}

// NewDocumentID returns a fresh random document id for uploads that did not
// supply one.
func NewDocumentID() string {
	return uuid.NewString()
}
