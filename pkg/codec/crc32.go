package codec

import "hash/crc32"

// CRC32 computes the standard IEEE reversed-polynomial (0xEDB88320)
// CRC32 used throughout the partition-table and filesystem codecs:
// initial value 0xFFFFFFFF, final XOR 0xFFFFFFFF. Go's standard library
// table-based implementation is bit-for-bit the same algorithm, so no
// hand-rolled table is needed here.
func CRC32(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}
