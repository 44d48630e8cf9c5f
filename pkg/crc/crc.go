// Package crc implements the CRC32 variant used throughout the NVS format.
package crc

import "hash/crc32"

// Compute returns the NVS checksum of data. NVS uses the IEEE reflected
// polynomial seeded as the ESP32 ROM's crc32_le(0xffffffff, ...), which
// differs from the standard IEEE checksum only in the initial state.
func Compute(data []byte) uint32 {
	return crc32.Update(0xFFFFFFFF, crc32.IEEETable, data)
}

// Verify reports whether data checksums to expected.
func Verify(data []byte, expected uint32) bool {
	return Compute(data) == expected
}
