// Package page decodes one fixed-size NVS page: header validation, the
// slot-state bitmap, and the span-aware walk over written entry slots.
package page

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/nvskit/nvskit/pkg/crc"
	"github.com/nvskit/nvskit/pkg/entry"
	"github.com/nvskit/nvskit/pkg/format"
)

var (
	// ErrPageSize is returned when a buffer cannot hold a header, a bitmap
	// and a whole number of entry slots.
	ErrPageSize = errors.New("page: bad page size")
	// ErrSpanOverrun is returned when an entry's declared span exceeds the
	// page's remaining slot capacity.
	ErrSpanOverrun = errors.New("page: entry span exceeds page capacity")
	// ErrIllegalSlot is returned for slots whose bitmap state is not a
	// defined value.
	ErrIllegalSlot = errors.New("page: illegal bitmap state")
)

// Header holds the decoded page header fields.
type Header struct {
	State    uint32
	Sequence uint32
	Version  uint8
	CRC      uint32
}

// decodeHeader reads the 32-byte page header. ok reports whether the stored
// CRC matches; the CRC covers the header bytes between the state word and
// the CRC field. The version byte is stored inverted on flash.
func decodeHeader(b []byte) (Header, bool) {
	h := Header{
		State:    binary.LittleEndian.Uint32(b[0:4]),
		Sequence: binary.LittleEndian.Uint32(b[4:8]),
		Version:  (b[8] ^ 0xFF) + 1,
		CRC:      binary.LittleEndian.Uint32(b[28:32]),
	}
	return h, crc.Verify(b[4:28], h.CRC)
}

// SlotError records a problem confined to one entry slot.
type SlotError struct {
	Slot int
	Err  error
}

// Result is the outcome of decoding one page. A page is never fatal to a
// partition-level decode: header problems mark the result and yield no
// entries, slot problems are collected in SlotErrors.
type Result struct {
	Index  int
	Header Header

	// Skipped is set for page states that carry no entries (empty, freeing,
	// corrupt). UnknownState additionally marks an undefined state tag.
	Skipped      bool
	UnknownState bool
	// CorruptHeader is set when the header CRC fails; the page's entries
	// are not decoded.
	CorruptHeader bool

	Entries    []*entry.Raw
	SlotErrors []SlotError
}

// Decode decodes the page held in b. index is the physical page position
// within the partition, carried through for diagnostics. The page size is
// implied by len(b).
func Decode(b []byte, index int) (*Result, error) {
	body := len(b) - format.HeaderSize - format.BitmapSize
	if body < format.EntrySize || body%format.EntrySize != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrPageSize, len(b))
	}
	capacity := body / format.EntrySize

	res := &Result{Index: index}

	// The state word is decidable before trusting the CRC: pages that are
	// not ACTIVE or FULL carry no entries and are skipped outright.
	state := binary.LittleEndian.Uint32(b[0:4])
	switch state {
	case format.PageActive, format.PageFull:
	case format.PageEmpty, format.PageFreeing, format.PageCorrupt:
		res.Header.State = state
		res.Skipped = true
		return res, nil
	default:
		res.Header.State = state
		res.Skipped = true
		res.UnknownState = true
		return res, nil
	}

	h, ok := decodeHeader(b[:format.HeaderSize])
	res.Header = h
	if !ok {
		res.CorruptHeader = true
		return res, nil
	}

	states := ReadBitmap(b[format.HeaderSize:format.HeaderSize+format.BitmapSize], capacity)
	entries := b[format.HeaderSize+format.BitmapSize:]

	// Two-step lookahead: the bitmap says whether a slot starts an item,
	// the entry header says how many slots the item spans.
	for i := 0; i < capacity; {
		switch states[i] {
		case format.SlotIllegal:
			res.SlotErrors = append(res.SlotErrors, SlotError{i, ErrIllegalSlot})
			i++
			continue
		case format.SlotEmpty, format.SlotErased:
			i++
			continue
		}

		raw, err := entry.Parse(entries[i*format.EntrySize:(i+1)*format.EntrySize], i)
		if err != nil {
			// The span field is covered by the failed CRC and cannot be
			// trusted, so only this slot is skipped.
			res.SlotErrors = append(res.SlotErrors, SlotError{i, err})
			i++
			continue
		}

		span := int(raw.Span)
		if span < 1 || i+span > capacity {
			res.SlotErrors = append(res.SlotErrors, SlotError{
				i, fmt.Errorf("%w: span %d at slot %d of %d", ErrSpanOverrun, span, i, capacity),
			})
			i++
			continue
		}

		if !format.KnownType(raw.Type) {
			res.SlotErrors = append(res.SlotErrors, SlotError{
				i, fmt.Errorf("%w: 0x%02x", entry.ErrUnknownType, raw.Type),
			})
			i += span
			continue
		}
		if raw.Type == format.TypeAny {
			i += span
			continue
		}

		if span > 1 {
			raw.Payload = entries[(i+1)*format.EntrySize : (i+span)*format.EntrySize]
		}
		res.Entries = append(res.Entries, raw)
		i += span
	}

	return res, nil
}
