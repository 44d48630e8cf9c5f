// Package blob reassembles chunked NVS blob values. A blob-index entry
// declares the total size and the chunk index range; the matching blob-data
// entries each carry one chunk of the payload.
package blob

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingChunk is returned when a chunk in the declared range has no
	// matching blob-data entry.
	ErrMissingChunk = errors.New("blob: missing chunk")
	// ErrDuplicateChunk is returned when two blob-data entries claim the
	// same chunk index within the declared range.
	ErrDuplicateChunk = errors.New("blob: duplicate chunk")
	// ErrSizeMismatch is returned when the assembled payload does not match
	// the index entry's declared size.
	ErrSizeMismatch = errors.New("blob: assembled size mismatch")
)

// Chunk is one blob-data fragment.
type Chunk struct {
	Index uint8
	Data  []byte
}

// Index describes a blob-index entry's metadata.
type Index struct {
	Size       uint32
	ChunkCount uint8
	ChunkStart uint8
}

// Assemble concatenates chunks in chunk-index order, requiring exact
// coverage of [ChunkStart, ChunkStart+ChunkCount) with no gaps or
// duplicates, and checks the assembled length against the declared size.
// Chunks outside the range belong to a different version of the blob and
// are ignored.
func Assemble(idx Index, chunks []Chunk) ([]byte, error) {
	lo := int(idx.ChunkStart)
	hi := lo + int(idx.ChunkCount)

	byIndex := make(map[int][]byte, idx.ChunkCount)
	for _, ch := range chunks {
		ci := int(ch.Index)
		if ci < lo || ci >= hi {
			continue
		}
		if _, ok := byIndex[ci]; ok {
			return nil, fmt.Errorf("%w: index %d", ErrDuplicateChunk, ci)
		}
		byIndex[ci] = ch.Data
	}

	out := make([]byte, 0, idx.Size)
	for ci := lo; ci < hi; ci++ {
		data, ok := byIndex[ci]
		if !ok {
			return nil, fmt.Errorf("%w: index %d", ErrMissingChunk, ci)
		}
		out = append(out, data...)
	}

	if uint32(len(out)) != idx.Size {
		return nil, fmt.Errorf("%w: declared %d, assembled %d", ErrSizeMismatch, idx.Size, len(out))
	}
	return out, nil
}
