package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCRC32RoundTrip(t *testing.T) {
	require.Equal(t, uint32(0xCBF43926), CRC32([]byte("123456789")))
}

func TestGUIDVersionAndVariant(t *testing.T) {
	guid := NewGUID()
	require.Equal(t, byte(0x40), guid[6]&0xF0)
	require.Equal(t, byte(0x80), guid[8]&0xC0)
}

func TestMBRTrailerAndRoundTrip(t *testing.T) {
	m := MBR{Signature: 0xAA55, DiskSignature: 0xDEADBEEF}
	m.Partitions[0] = MBRPartitionEntry{
		Status: 0x80, Type: PartitionTypeFAT32LBA, FirstLBA: 2048, SectorCount: 100000,
	}
	m.Partitions[0].FirstCHS = CalculateCHS(2048)
	m.Partitions[0].LastCHS = CalculateCHS(2048 + 100000 - 1)

	buf := m.Marshal()
	require.Equal(t, byte(0x55), buf[510])
	require.Equal(t, byte(0xAA), buf[511])

	parsed, err := UnmarshalMBR(buf[:])
	require.NoError(t, err)
	require.True(t, parsed.IsValid())
	require.Equal(t, m.Partitions[0], parsed.Partitions[0])
}

func TestMBREntriesDisjointAndInBounds(t *testing.T) {
	deviceSectors := uint32(16_000_000)
	m := MBR{Signature: 0xAA55}
	m.Partitions[0] = MBRPartitionEntry{Type: PartitionTypeFAT32LBA, FirstLBA: 2048, SectorCount: 1_000_000}
	m.Partitions[1] = MBRPartitionEntry{Type: PartitionTypeLinux, FirstLBA: 1_002_048, SectorCount: 2_000_000}

	used := []MBRPartitionEntry{m.Partitions[0], m.Partitions[1]}
	for _, e := range used {
		require.LessOrEqual(t, uint64(e.FirstLBA)+uint64(e.SectorCount), uint64(deviceSectors))
	}
	require.Less(t, used[0].FirstLBA+used[0].SectorCount, used[1].FirstLBA+1)
}

func TestCalculateCHSClampsCylinder(t *testing.T) {
	chs := CalculateCHS(0xFFFFFFFF)
	cylinder := (uint32(chs[1]&0xC0) << 2) | uint32(chs[2])
	require.Equal(t, uint32(1023), cylinder)
}

func TestGPTHeaderCRCRoundTrip(t *testing.T) {
	deviceSectors := uint64(1_048_576)
	guid := [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	h := NewGPTHeader(deviceSectors, guid)
	require.Equal(t, uint64(34), h.FirstUsableLBA)
	require.Equal(t, deviceSectors-34, h.LastUsableLBA)

	entries := []GPTEntry{{TypeGUID: guid, UniqueGUID: guid, FirstLBA: 2048, LastLBA: 4096, Name: "ESP"}}
	_, arrayCRC := MarshalEntryArray(entries, h.NumberOfPartitionEntries)
	h.PartitionArrayCRC32 = arrayCRC
	h.HeaderCRC32 = h.ComputeHeaderCRC32()

	sector := h.Marshal()
	parsed, err := UnmarshalGPTHeader(sector[:])
	require.NoError(t, err)
	require.Equal(t, h.HeaderCRC32, parsed.HeaderCRC32)

	parsed.HeaderCRC32 = 0
	recomputed := parsed
	recomputed.HeaderCRC32 = 0
	require.Equal(t, h.ComputeHeaderCRC32(), recomputed.ComputeHeaderCRC32())
}

func TestFAT32InvariantsHold(t *testing.T) {
	bs := NewFAT32BootSector(16_000_000, "MYISO", 0x12345678)
	buf := bs.Marshal()

	require.Equal(t, uint16(0xAA55), uint16(buf[511])<<8|uint16(buf[510]))
	parsed, err := UnmarshalFAT32BootSector(buf[:])
	require.NoError(t, err)
	require.Equal(t, uint16(512), parsed.BytesPerSector)
	require.Equal(t, uint8(2), parsed.NumFATs)
	require.Equal(t, uint32(2), parsed.RootCluster)
	require.GreaterOrEqual(t,
		uint64(parsed.FATSize32)*256*uint64(parsed.SectorsPerCluster),
		uint64(parsed.TotalSectors32)-uint64(parsed.ReservedSectorCount),
	)
}

func TestInitialFATEntries(t *testing.T) {
	fat := InitialFAT()
	require.Equal(t, []byte{0xF8, 0xFF, 0xFF, 0x0F}, fat[0:4])
	require.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0x0F}, fat[4:8])
	require.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0x0F}, fat[8:12])
}

func TestExt4SuperBlockMagicRoundTrip(t *testing.T) {
	sb := NewExt4SuperBlock(1_000_000, "persistence", 1_700_000_000, NewGUID())
	buf := sb.Marshal()
	parsed, err := UnmarshalExt4SuperBlock(buf[:])
	require.NoError(t, err)
	require.Equal(t, uint16(0xEF53), parsed.Magic)
	require.Equal(t, uint16(256), parsed.InodeSize)
}

func TestNTFSBootSectorFields(t *testing.T) {
	bs := NewNTFSBootSector(2_000_000, 0xABCDEF01)
	buf := bs.Marshal()
	parsed, err := UnmarshalNTFSBootSector(buf[:])
	require.NoError(t, err)
	require.Equal(t, int8(-10), parsed.ClustersPerFileRecord)
	require.Equal(t, uint64(1_000_000), parsed.MFTCluster)
	require.Equal(t, uint64(1_999_999), parsed.MFTMirrorCluster)
	require.Equal(t, byte(0x55), buf[510])
	require.Equal(t, byte(0xAA), buf[511])
}

func TestProtectiveMBR(t *testing.T) {
	m := ProtectiveMBR(20_000_000)
	require.Equal(t, PartitionTypeGPTProtective, m.Partitions[0].Type)
	require.Equal(t, uint32(1), m.Partitions[0].FirstLBA)
	require.Equal(t, uint32(19_999_999), m.Partitions[0].SectorCount)
	require.True(t, m.IsValid())
}
