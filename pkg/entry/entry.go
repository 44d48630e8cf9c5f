// Package entry parses and classifies the 32-byte physical entries that make
// up an NVS page. Parsing validates the entry header CRC; classification
// interprets the type code and, for variable-length types, validates the
// payload length and CRC carried in the inline data field.
package entry

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/nvskit/nvskit/pkg/crc"
	"github.com/nvskit/nvskit/pkg/format"
)

var (
	// ErrTruncated is returned when an entry region is shorter than one slot.
	ErrTruncated = errors.New("entry: truncated")
	// ErrCRCMismatch is returned when the entry header CRC does not validate.
	ErrCRCMismatch = errors.New("entry: header crc mismatch")
	// ErrUnknownType is returned for type codes outside the NVS vocabulary.
	ErrUnknownType = errors.New("entry: unknown type code")
	// ErrPayloadTooShort is returned when a variable-length entry declares
	// more payload than its trailing slots hold.
	ErrPayloadTooShort = errors.New("entry: payload shorter than declared size")
	// ErrPayloadCRC is returned when a variable-length payload fails its CRC.
	ErrPayloadCRC = errors.New("entry: payload crc mismatch")
)

// Raw is one parsed entry header plus the bytes of its trailing payload
// slots, if any.
type Raw struct {
	Slot       int
	Namespace  uint8
	Type       uint8
	Span       uint8
	ChunkIndex uint8
	Key        string
	Data       []byte // the 8-byte inline data field
	Payload    []byte // raw bytes of the span-1 trailing slots, nil for span 1
}

// Parse decodes the entry header at the start of b and verifies its CRC.
// The CRC covers the first four header bytes plus everything after the CRC
// field itself. slot is carried through for diagnostics.
func Parse(b []byte, slot int) (*Raw, error) {
	if len(b) < format.EntrySize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTruncated, len(b))
	}

	stored := binary.LittleEndian.Uint32(b[4:8])
	buf := make([]byte, 0, format.EntrySize-4)
	buf = append(buf, b[0:4]...)
	buf = append(buf, b[8:format.EntrySize]...)
	if !crc.Verify(buf, stored) {
		return nil, fmt.Errorf("%w: stored %08x, computed %08x",
			ErrCRCMismatch, stored, crc.Compute(buf))
	}

	key := string(bytes.TrimRight(b[8:8+format.KeySize], "\x00"))
	return &Raw{
		Slot:       slot,
		Namespace:  b[0],
		Type:       b[1],
		Span:       b[2],
		ChunkIndex: b[3],
		Key:        key,
		Data:       b[24:format.EntrySize],
	}, nil
}

// Kind discriminates the classified entry variants.
type Kind int

const (
	// KindPrimitive is a fixed-width integer value.
	KindPrimitive Kind = iota
	// KindNamespaceDef is a U8 entry under the reserved namespace index 0,
	// binding a namespace index to the entry's key.
	KindNamespaceDef
	// KindString is a variable-length string value.
	KindString
	// KindBlob is a legacy single-chain blob (payload in trailing slots,
	// no index/data split).
	KindBlob
	// KindBlobData is one chunk of a chunked blob.
	KindBlobData
	// KindBlobIndex is the metadata entry describing a chunked blob.
	KindBlobIndex
	// KindIgnore is an entry of type ANY, carrying no value.
	KindIgnore
)

// Classified is a Raw entry interpreted according to its type code.
type Classified struct {
	*Raw
	Kind Kind

	// Uint holds unsigned primitive values and, for KindNamespaceDef, the
	// namespace index being defined. Int holds signed primitive values.
	Uint   uint64
	Int    int64
	Signed bool

	// Size is the declared payload size for variable-length entries, or the
	// total blob size for KindBlobIndex.
	Size uint32
	// Bytes is the CRC-checked payload, truncated to Size.
	Bytes []byte

	// Chunk metadata, meaningful for KindBlobIndex only.
	ChunkCount uint8
	ChunkStart uint8
}

// Classify interprets raw according to its type code. Variable-length
// payloads are length- and CRC-checked here; the caller is expected to have
// already verified the entry header CRC via Parse.
func Classify(raw *Raw) (*Classified, error) {
	c := &Classified{Raw: raw}

	switch {
	case raw.Type == format.TypeAny:
		c.Kind = KindIgnore
		return c, nil

	case format.IsPrimitive(raw.Type):
		width := format.PrimitiveWidth(raw.Type)
		var u uint64
		switch width {
		case 1:
			u = uint64(raw.Data[0])
		case 2:
			u = uint64(binary.LittleEndian.Uint16(raw.Data[0:2]))
		case 4:
			u = uint64(binary.LittleEndian.Uint32(raw.Data[0:4]))
		case 8:
			u = binary.LittleEndian.Uint64(raw.Data[0:8])
		}
		if format.IsSigned(raw.Type) {
			shift := uint(64 - 8*width)
			c.Signed = true
			c.Int = int64(u<<shift) >> shift
		} else {
			c.Uint = u
		}
		if raw.Namespace == 0 && raw.Type == format.TypeU8 {
			c.Kind = KindNamespaceDef
		} else {
			c.Kind = KindPrimitive
		}
		return c, nil

	case format.IsVarLength(raw.Type):
		size := binary.LittleEndian.Uint16(raw.Data[0:2])
		payloadCRC := binary.LittleEndian.Uint32(raw.Data[4:8])
		if int(size) > len(raw.Payload) {
			return nil, fmt.Errorf("%w: key %q declares %d bytes, %d available",
				ErrPayloadTooShort, raw.Key, size, len(raw.Payload))
		}
		payload := raw.Payload[:size]
		if !crc.Verify(payload, payloadCRC) {
			return nil, fmt.Errorf("%w: key %q", ErrPayloadCRC, raw.Key)
		}
		c.Size = uint32(size)
		c.Bytes = payload
		switch raw.Type {
		case format.TypeStr:
			c.Kind = KindString
		case format.TypeBlob:
			c.Kind = KindBlob
		default:
			c.Kind = KindBlobData
		}
		return c, nil

	case raw.Type == format.TypeBlobIndex:
		c.Kind = KindBlobIndex
		c.Size = binary.LittleEndian.Uint32(raw.Data[0:4])
		c.ChunkCount = raw.Data[5]
		c.ChunkStart = raw.Data[6]
		return c, nil

	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownType, raw.Type)
	}
}
