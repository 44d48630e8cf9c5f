package page

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/nvskit/nvskit/pkg/crc"
	"github.com/nvskit/nvskit/pkg/format"
)

// buildEntry assembles a 32-byte entry slot with a valid header CRC.
func buildEntry(ns, typ, span, chunk uint8, key string, data []byte) []byte {
	e := make([]byte, format.EntrySize)
	e[0], e[1], e[2], e[3] = ns, typ, span, chunk
	copy(e[8:8+format.KeySize], key)
	copy(e[24:], data)

	buf := make([]byte, 0, format.EntrySize-4)
	buf = append(buf, e[0:4]...)
	buf = append(buf, e[8:]...)
	binary.LittleEndian.PutUint32(e[4:8], crc.Compute(buf))
	return e
}

// setSlotState writes a 2-bit slot state into a bitmap region.
func setSlotState(bitmap []byte, slot int, state format.SlotState) {
	shift := uint(6 - 2*(slot%4))
	bitmap[slot/4] &^= 3 << shift
	bitmap[slot/4] |= byte(state) << shift
}

// buildPage lays out slots from position 0 in a fresh ACTIVE page and marks
// each occupied slot Written.
func buildPage(t *testing.T, seq uint32, slots [][]byte) []byte {
	t.Helper()

	p := make([]byte, format.DefaultPageSize)
	for i := range p {
		p[i] = 0xFF
	}
	binary.LittleEndian.PutUint32(p[0:4], format.PageActive)
	binary.LittleEndian.PutUint32(p[4:8], seq)
	p[8] = 0xFE // version 2, stored inverted
	binary.LittleEndian.PutUint32(p[28:32], crc.Compute(p[4:28]))

	if len(slots) > format.EntryCount(len(p)) {
		t.Fatalf("too many slots for one page: %d", len(slots))
	}
	for i, s := range slots {
		copy(p[format.HeaderSize+format.BitmapSize+i*format.EntrySize:], s)
		setSlotState(p[format.HeaderSize:format.HeaderSize+format.BitmapSize], i, format.SlotWritten)
	}
	return p
}

func TestReadBitmap(t *testing.T) {
	// Byte 0b10_11_00_01: slot 0 Written, slot 1 Empty, slot 2 Erased,
	// slot 3 Illegal.
	bitmap := make([]byte, format.BitmapSize)
	for i := range bitmap {
		bitmap[i] = 0xFF
	}
	bitmap[0] = 0xB1

	states := ReadBitmap(bitmap, 126)
	want := []format.SlotState{format.SlotWritten, format.SlotEmpty, format.SlotErased, format.SlotIllegal}
	for i, w := range want {
		if states[i] != w {
			t.Errorf("slot %d: expected %v, got %v", i, w, states[i])
		}
	}
	if len(states) != 126 {
		t.Errorf("expected 126 slot states, got %d", len(states))
	}
	for i := 4; i < 126; i++ {
		if states[i] != format.SlotEmpty {
			t.Errorf("slot %d: expected Empty, got %v", i, states[i])
		}
	}
}

func TestDecodeWrittenEntries(t *testing.T) {
	slots := [][]byte{
		buildEntry(1, format.TypeU8, 1, format.ChunkAny, "a", []byte{1}),
		buildEntry(1, format.TypeU8, 1, format.ChunkAny, "b", []byte{2}),
	}
	p := buildPage(t, 5, slots)

	res, err := Decode(p, 3)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if res.CorruptHeader || res.Skipped {
		t.Fatalf("unexpected page result: %+v", res)
	}
	if res.Header.Sequence != 5 || res.Header.Version != 2 {
		t.Errorf("wrong header: %+v", res.Header)
	}
	if res.Index != 3 {
		t.Errorf("expected index 3, got %d", res.Index)
	}
	if len(res.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(res.Entries))
	}
	if res.Entries[0].Key != "a" || res.Entries[1].Key != "b" {
		t.Errorf("wrong keys: %q %q", res.Entries[0].Key, res.Entries[1].Key)
	}
	if len(res.SlotErrors) != 0 {
		t.Errorf("unexpected slot errors: %v", res.SlotErrors)
	}
}

func TestDecodeSkipsErasedSlots(t *testing.T) {
	slots := [][]byte{
		buildEntry(1, format.TypeU8, 1, format.ChunkAny, "a", []byte{1}),
		buildEntry(1, format.TypeU8, 1, format.ChunkAny, "b", []byte{2}),
	}
	p := buildPage(t, 0, slots)
	setSlotState(p[format.HeaderSize:format.HeaderSize+format.BitmapSize], 1, format.SlotErased)

	res, err := Decode(p, 0)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(res.Entries) != 1 || res.Entries[0].Key != "a" {
		t.Fatalf("expected only entry a, got %d entries", len(res.Entries))
	}
	if len(res.SlotErrors) != 0 {
		t.Errorf("unexpected slot errors: %v", res.SlotErrors)
	}
}

func TestDecodeEmptyPage(t *testing.T) {
	p := make([]byte, format.DefaultPageSize)
	for i := range p {
		p[i] = 0xFF
	}

	res, err := Decode(p, 0)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !res.Skipped || res.UnknownState {
		t.Errorf("expected clean skip of empty page, got %+v", res)
	}
}

func TestDecodeUnknownState(t *testing.T) {
	p := make([]byte, format.DefaultPageSize)
	for i := range p {
		p[i] = 0xFF
	}
	binary.LittleEndian.PutUint32(p[0:4], 0xDEADBEEF)

	res, err := Decode(p, 0)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !res.Skipped || !res.UnknownState {
		t.Errorf("expected unknown-state skip, got %+v", res)
	}
}

func TestDecodeCorruptHeader(t *testing.T) {
	p := buildPage(t, 9, [][]byte{
		buildEntry(1, format.TypeU8, 1, format.ChunkAny, "a", []byte{1}),
	})
	p[5] ^= 0x01 // corrupt the sequence number after the CRC was written

	res, err := Decode(p, 0)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !res.CorruptHeader {
		t.Fatalf("expected CorruptHeader, got %+v", res)
	}
	if len(res.Entries) != 0 {
		t.Errorf("corrupt page must not yield entries, got %d", len(res.Entries))
	}
}

func TestDecodeSpanOverrun(t *testing.T) {
	slots := [][]byte{
		buildEntry(1, format.TypeBlobData, 200, 0, "img", nil),
		buildEntry(1, format.TypeU8, 1, format.ChunkAny, "a", []byte{1}),
	}
	p := buildPage(t, 0, slots)

	res, err := Decode(p, 0)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(res.SlotErrors) != 1 || !errors.Is(res.SlotErrors[0].Err, ErrSpanOverrun) {
		t.Fatalf("expected one span overrun error, got %v", res.SlotErrors)
	}
	// The overrunning slot is skipped singly; the next slot still decodes.
	if len(res.Entries) != 1 || res.Entries[0].Key != "a" {
		t.Errorf("expected entry a to survive, got %d entries", len(res.Entries))
	}
}

func TestDecodeEntryCRCMismatchIsolated(t *testing.T) {
	slots := [][]byte{
		buildEntry(1, format.TypeU8, 1, format.ChunkAny, "a", []byte{1}),
		buildEntry(1, format.TypeU8, 1, format.ChunkAny, "b", []byte{2}),
	}
	p := buildPage(t, 0, slots)
	p[format.HeaderSize+format.BitmapSize+24] ^= 0x01 // flip a bit in entry 0's value

	res, err := Decode(p, 0)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(res.SlotErrors) != 1 || res.SlotErrors[0].Slot != 0 {
		t.Fatalf("expected slot 0 error, got %v", res.SlotErrors)
	}
	if len(res.Entries) != 1 || res.Entries[0].Key != "b" {
		t.Errorf("expected entry b to survive, got %d entries", len(res.Entries))
	}
}

func TestDecodeSpannedPayload(t *testing.T) {
	payload := []byte("this string needs two slots to fit........")
	data := make([]byte, 8)
	binary.LittleEndian.PutUint16(data[0:2], uint16(len(payload)))
	binary.LittleEndian.PutUint32(data[4:8], crc.Compute(payload))

	head := buildEntry(1, format.TypeStr, 3, format.ChunkAny, "s", data)
	slot1 := make([]byte, format.EntrySize)
	slot2 := make([]byte, format.EntrySize)
	copy(slot1, payload[:format.EntrySize])
	copy(slot2, payload[format.EntrySize:])

	p := buildPage(t, 0, [][]byte{head, slot1, slot2})
	res, err := Decode(p, 0)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(res.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(res.Entries))
	}
	raw := res.Entries[0]
	if raw.Span != 3 {
		t.Errorf("expected span 3, got %d", raw.Span)
	}
	if len(raw.Payload) != 2*format.EntrySize {
		t.Fatalf("expected %d payload bytes, got %d", 2*format.EntrySize, len(raw.Payload))
	}
	if string(raw.Payload[:len(payload)]) != string(payload) {
		t.Errorf("payload mismatch")
	}
}

func TestDecodeBadPageSize(t *testing.T) {
	if _, err := Decode(make([]byte, 100), 0); !errors.Is(err, ErrPageSize) {
		t.Errorf("expected ErrPageSize, got %v", err)
	}
}
