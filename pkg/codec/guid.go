package codec

import "github.com/google/uuid"

// NewGUID generates 16 random bytes via google/uuid and then forces
// the version-4/variant-1 bits explicitly, per §4.2: byte 6 becomes
// (b6 & 0x0F) | 0x40, byte 8 becomes (b8 & 0x3F) | 0x80. This holds
// regardless of the library's own internal variant handling.
func NewGUID() [16]byte {
	raw := uuid.New()
	var guid [16]byte
	copy(guid[:], raw[:])
	guid[6] = (guid[6] & 0x0F) | 0x40
	guid[8] = (guid[8] & 0x3F) | 0x80
	return guid
}
