package page

import "github.com/nvskit/nvskit/pkg/format"

// ReadBitmap decodes the 2-bit-per-slot entry state bitmap. States are
// packed four to a byte, most significant pair first. Undefined bit
// patterns decode to SlotIllegal.
func ReadBitmap(b []byte, slots int) []format.SlotState {
	out := make([]format.SlotState, slots)
	for i := range out {
		shift := uint(6 - 2*(i%4))
		out[i] = format.SlotState((b[i/4] >> shift) & 0x3)
	}
	return out
}
