// Package format defines the binary layout of the ESP32 NVS partition
// format: page geometry, page and slot states, and entry type codes.
package format

const (
	// DefaultPageSize is the standard NVS page (flash sector) size.
	DefaultPageSize = 4096
	// HeaderSize is the size of the page header in bytes.
	HeaderSize = 32
	// BitmapSize is the size of the entry-state bitmap in bytes.
	BitmapSize = 32
	// EntrySize is the size of one physical entry slot in bytes.
	EntrySize = 32
	// KeySize is the fixed width of the NUL-padded key field.
	KeySize = 16
	// DataSize is the width of the inline data field at the end of an entry.
	DataSize = 8

	// ChunkAny marks entries that are not part of a chunked blob.
	ChunkAny = 0xFF
)

// EntryCount returns the number of entry slots in a page of the given size.
func EntryCount(pageSize int) int {
	return (pageSize - HeaderSize - BitmapSize) / EntrySize
}

// Page states, stored as the first word of the page header. Erased flash
// reads back as all ones; each state transition clears one more bit.
const (
	PageEmpty   uint32 = 0xFFFFFFFF
	PageActive  uint32 = 0xFFFFFFFE
	PageFull    uint32 = 0xFFFFFFFC
	PageFreeing uint32 = 0xFFFFFFF8
	PageCorrupt uint32 = 0xFFFFFFF0
)

// PageStateName returns the conventional name for a page state tag, or ""
// if the tag is not a defined state.
func PageStateName(state uint32) string {
	switch state {
	case PageEmpty:
		return "EMPTY"
	case PageActive:
		return "ACTIVE"
	case PageFull:
		return "FULL"
	case PageFreeing:
		return "FREEING"
	case PageCorrupt:
		return "CORRUPT"
	default:
		return ""
	}
}

// SlotState is the decoded 2-bit state of one entry slot. The constant
// values match the on-flash bit patterns.
type SlotState uint8

const (
	SlotErased  SlotState = 0
	SlotIllegal SlotState = 1
	SlotWritten SlotState = 2
	SlotEmpty   SlotState = 3
)

// String returns the state name.
func (s SlotState) String() string {
	switch s {
	case SlotErased:
		return "Erased"
	case SlotIllegal:
		return "Illegal"
	case SlotWritten:
		return "Written"
	case SlotEmpty:
		return "Empty"
	default:
		return "Unknown"
	}
}

// Entry type codes. For primitive types the low nibble is the value width
// in bytes and bit 4 marks a signed type.
const (
	TypeU8        uint8 = 0x01
	TypeI8        uint8 = 0x11
	TypeU16       uint8 = 0x02
	TypeI16       uint8 = 0x12
	TypeU32       uint8 = 0x04
	TypeI32       uint8 = 0x14
	TypeU64       uint8 = 0x08
	TypeI64       uint8 = 0x18
	TypeStr       uint8 = 0x21
	TypeBlob      uint8 = 0x41
	TypeBlobData  uint8 = 0x42
	TypeBlobIndex uint8 = 0x48
	TypeAny       uint8 = 0xFF
)

// KnownType reports whether code is a defined NVS entry type.
func KnownType(code uint8) bool {
	switch code {
	case TypeStr, TypeBlob, TypeBlobData, TypeBlobIndex, TypeAny:
		return true
	default:
		return IsPrimitive(code)
	}
}

// IsPrimitive reports whether code is a fixed-width integer type.
func IsPrimitive(code uint8) bool {
	if code&^0x1F != 0 {
		return false
	}
	switch code & 0x0F {
	case 1, 2, 4, 8:
		return true
	default:
		return false
	}
}

// IsVarLength reports whether the entry's payload occupies trailing slots
// (strings, legacy blobs and blob-data chunks).
func IsVarLength(code uint8) bool {
	return code == TypeStr || code == TypeBlob || code == TypeBlobData
}

// IsSigned reports whether a primitive type code is signed.
func IsSigned(code uint8) bool {
	return code&0x10 != 0
}

// PrimitiveWidth returns the value width in bytes of a primitive type code.
func PrimitiveWidth(code uint8) int {
	return int(code & 0x0F)
}

// TypeName returns the conventional name of a type code, or "" if unknown.
func TypeName(code uint8) string {
	switch code {
	case TypeU8:
		return "U8"
	case TypeI8:
		return "I8"
	case TypeU16:
		return "U16"
	case TypeI16:
		return "I16"
	case TypeU32:
		return "U32"
	case TypeI32:
		return "I32"
	case TypeU64:
		return "U64"
	case TypeI64:
		return "I64"
	case TypeStr:
		return "STR"
	case TypeBlob:
		return "BLOB"
	case TypeBlobData:
		return "BLOB_DATA"
	case TypeBlobIndex:
		return "BLOB_IDX"
	case TypeAny:
		return "ANY"
	default:
		return ""
	}
}
