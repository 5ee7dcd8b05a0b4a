package codec

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"
)

const (
	GPTHeaderHashedSize = 92
	GPTEntrySize         = 128
	GPTDefaultEntries    = 128
	gptSignature         = "EFI PART"
	gptRevision          = 0x00010000
)

// GPTHeader is the primary or backup GPT header. Only the first
// headerSize (92) bytes participate in the header CRC32; the
// surrounding 512-byte sector is zero-padded.
type GPTHeader struct {
	Revision                 uint32
	HeaderSize               uint32
	HeaderCRC32              uint32
	CurrentLBA               uint64
	BackupLBA                uint64
	FirstUsableLBA           uint64
	LastUsableLBA            uint64
	DiskGUID                 [16]byte
	PartitionEntryLBA        uint64
	NumberOfPartitionEntries uint32
	SizeOfPartitionEntry     uint32
	PartitionArrayCRC32      uint32
}

// NewGPTHeader builds a header with the fixed constants from §4.2(3):
// signature "EFI PART", revision 0x00010000, firstUsableLBA=34,
// lastUsableLBA=deviceSectors-34, partitionEntryLBA=2, 128 entries of 128 B.
func NewGPTHeader(deviceSectors uint64, diskGUID [16]byte) GPTHeader {
	return GPTHeader{
		Revision:                 gptRevision,
		HeaderSize:               GPTHeaderHashedSize,
		CurrentLBA:               1,
		BackupLBA:                deviceSectors - 1,
		FirstUsableLBA:           34,
		LastUsableLBA:            deviceSectors - 34,
		DiskGUID:                 diskGUID,
		PartitionEntryLBA:        2,
		NumberOfPartitionEntries: GPTDefaultEntries,
		SizeOfPartitionEntry:     GPTEntrySize,
	}
}

// AsBackup returns a copy with CurrentLBA/BackupLBA and
// PartitionEntryLBA swapped to describe the backup location at the end
// of the device, per §4.3 ("mirror... with the current/backup LBA
// fields swapped").
func (h GPTHeader) AsBackup(backupEntriesLBA uint64) GPTHeader {
	backup := h
	backup.CurrentLBA, backup.BackupLBA = h.BackupLBA, h.CurrentLBA
	backup.PartitionEntryLBA = backupEntriesLBA
	return backup
}

// marshalHashed writes exactly the 92 bytes that participate in the
// header CRC32, with the CRC field itself zeroed.
func (h GPTHeader) marshalHashed() [GPTHeaderHashedSize]byte {
	var buf [GPTHeaderHashedSize]byte
	copy(buf[0:8], []byte(gptSignature))
	binary.LittleEndian.PutUint32(buf[8:12], h.Revision)
	binary.LittleEndian.PutUint32(buf[12:16], h.HeaderSize)
	// buf[16:20] headerCRC32 left zero
	// buf[20:24] reserved left zero
	binary.LittleEndian.PutUint64(buf[24:32], h.CurrentLBA)
	binary.LittleEndian.PutUint64(buf[32:40], h.BackupLBA)
	binary.LittleEndian.PutUint64(buf[40:48], h.FirstUsableLBA)
	binary.LittleEndian.PutUint64(buf[48:56], h.LastUsableLBA)
	copy(buf[56:72], h.DiskGUID[:])
	binary.LittleEndian.PutUint64(buf[72:80], h.PartitionEntryLBA)
	binary.LittleEndian.PutUint32(buf[80:84], h.NumberOfPartitionEntries)
	binary.LittleEndian.PutUint32(buf[84:88], h.SizeOfPartitionEntry)
	binary.LittleEndian.PutUint32(buf[88:92], h.PartitionArrayCRC32)
	return buf
}

// ComputeHeaderCRC32 computes the header CRC32 over the first
// headerSize bytes with the CRC field zeroed, per §4.2(3)/§8.
func (h GPTHeader) ComputeHeaderCRC32() uint32 {
	hashed := h.marshalHashed()
	return CRC32(hashed[:])
}

// Marshal produces the full 512-byte zero-padded sector with the
// header CRC32 filled in (must be computed via ComputeHeaderCRC32 and
// assigned to HeaderCRC32 before calling Marshal).
func (h GPTHeader) Marshal() [512]byte {
	var sector [512]byte
	hashed := h.marshalHashed()
	copy(sector[0:GPTHeaderHashedSize], hashed[:])
	binary.LittleEndian.PutUint32(sector[16:20], h.HeaderCRC32)
	return sector
}

// UnmarshalGPTHeader parses a GPT header sector, rejecting buffers
// shorter than the hashed region.
func UnmarshalGPTHeader(data []byte) (GPTHeader, error) {
	if len(data) < GPTHeaderHashedSize {
		return GPTHeader{}, fmt.Errorf("gpt header: expected at least %d bytes, got %d", GPTHeaderHashedSize, len(data))
	}
	if string(data[0:8]) != gptSignature {
		return GPTHeader{}, fmt.Errorf("gpt header: bad signature %q", data[0:8])
	}
	var h GPTHeader
	h.Revision = binary.LittleEndian.Uint32(data[8:12])
	h.HeaderSize = binary.LittleEndian.Uint32(data[12:16])
	h.HeaderCRC32 = binary.LittleEndian.Uint32(data[16:20])
	h.CurrentLBA = binary.LittleEndian.Uint64(data[24:32])
	h.BackupLBA = binary.LittleEndian.Uint64(data[32:40])
	h.FirstUsableLBA = binary.LittleEndian.Uint64(data[40:48])
	h.LastUsableLBA = binary.LittleEndian.Uint64(data[48:56])
	copy(h.DiskGUID[:], data[56:72])
	h.PartitionEntryLBA = binary.LittleEndian.Uint64(data[72:80])
	h.NumberOfPartitionEntries = binary.LittleEndian.Uint32(data[80:84])
	h.SizeOfPartitionEntry = binary.LittleEndian.Uint32(data[84:88])
	h.PartitionArrayCRC32 = binary.LittleEndian.Uint32(data[88:92])
	return h, nil
}

// GPTEntry is one 128-byte GPT partition entry.
type GPTEntry struct {
	TypeGUID   [16]byte
	UniqueGUID [16]byte
	FirstLBA   uint64
	LastLBA    uint64
	Attributes uint64
	Name       string // up to 36 UTF-16LE code units
}

// IsEmpty reports whether the entry's type GUID is all zero.
func (e GPTEntry) IsEmpty() bool {
	for _, b := range e.TypeGUID {
		if b != 0 {
			return false
		}
	}
	return true
}

// Marshal writes the entry's 128-byte wire representation: 16 B
// type-GUID + 16 B unique-GUID + 8 B first-LBA + 8 B last-LBA + 8 B
// attributes + 72 B UTF-16LE name.
func (e GPTEntry) Marshal() [GPTEntrySize]byte {
	var buf [GPTEntrySize]byte
	copy(buf[0:16], e.TypeGUID[:])
	copy(buf[16:32], e.UniqueGUID[:])
	binary.LittleEndian.PutUint64(buf[32:40], e.FirstLBA)
	binary.LittleEndian.PutUint64(buf[40:48], e.LastLBA)
	binary.LittleEndian.PutUint64(buf[48:56], e.Attributes)
	units := utf16.Encode([]rune(e.Name))
	for i := 0; i < len(units) && i < 36; i++ {
		binary.LittleEndian.PutUint16(buf[56+i*2:58+i*2], units[i])
	}
	return buf
}

// UnmarshalGPTEntry parses a 128-byte GPT partition entry.
func UnmarshalGPTEntry(data []byte) (GPTEntry, error) {
	if len(data) < GPTEntrySize {
		return GPTEntry{}, fmt.Errorf("gpt entry: expected %d bytes, got %d", GPTEntrySize, len(data))
	}
	var e GPTEntry
	copy(e.TypeGUID[:], data[0:16])
	copy(e.UniqueGUID[:], data[16:32])
	e.FirstLBA = binary.LittleEndian.Uint64(data[32:40])
	e.LastLBA = binary.LittleEndian.Uint64(data[40:48])
	e.Attributes = binary.LittleEndian.Uint64(data[48:56])
	var units []uint16
	for i := 0; i < 36; i++ {
		u := binary.LittleEndian.Uint16(data[56+i*2 : 58+i*2])
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	e.Name = string(utf16.Decode(units))
	return e, nil
}

// MarshalEntryArray serializes a slice of entries back-to-back and
// reports the CRC32 over exactly numberOfEntries*sizeOfEntry bytes.
func MarshalEntryArray(entries []GPTEntry, numberOfEntries uint32) ([]byte, uint32) {
	buf := make([]byte, int(numberOfEntries)*GPTEntrySize)
	for i, e := range entries {
		if i >= int(numberOfEntries) {
			break
		}
		marshaled := e.Marshal()
		copy(buf[i*GPTEntrySize:(i+1)*GPTEntrySize], marshaled[:])
	}
	return buf, CRC32(buf)
}

// ProtectiveMBR builds the single 0xEE-type partition covering
// [1, min(deviceSectors-1, 0xFFFFFFFF)], per §4.2(2).
func ProtectiveMBR(deviceSectors uint64) MBR {
	count := deviceSectors - 1
	if count > 0xFFFFFFFF {
		count = 0xFFFFFFFF
	}
	var m MBR
	m.Partitions[0] = MBRPartitionEntry{
		Status:      0x00,
		Type:        PartitionTypeGPTProtective,
		FirstLBA:    1,
		SectorCount: uint32(count),
	}
	m.Partitions[0].FirstCHS = CalculateCHS(1)
	m.Partitions[0].LastCHS = CalculateCHS(uint32(count))
	m.Signature = 0xAA55
	return m
}
