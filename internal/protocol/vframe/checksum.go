package vframe

import "hash/crc32"

// Checksum is CRC-32 with the IEEE polynomial.
func Checksum(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}
