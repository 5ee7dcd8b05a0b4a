package fswriter

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JeckAsChristopher/MyISO/pkg/codec"
	"github.com/JeckAsChristopher/MyISO/pkg/fskind"
)

// newPartitionFile stands a plain temp file in for a partition node and
// stubs partitionSizeBytes to report its size, since a regular file has
// no /sys/class/block entry for the real device.SizeBytes to read.
func newPartitionFile(t *testing.T, sectors int64) string {
	t.Helper()
	f, err := os.CreateTemp("", "fswriter-*.img")
	require.NoError(t, err)
	require.NoError(t, f.Truncate(sectors*512))
	require.NoError(t, f.Close())
	t.Cleanup(func() { os.Remove(f.Name()) })

	orig := partitionSizeBytes
	partitionSizeBytes = func(string) (uint64, error) { return uint64(sectors) * 512, nil }
	t.Cleanup(func() { partitionSizeBytes = orig })

	return f.Name()
}

func TestCreateFAT32WritesBootSectorAndBackups(t *testing.T) {
	path := newPartitionFile(t, 2_000_000)
	formatter := &RecordingFormatter{}
	require.NoError(t, CreateFilesystem(path, fskind.FAT32, "MYLABEL", formatter, nil))
	require.Empty(t, formatter.Calls)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	primary, err := codec.UnmarshalFAT32BootSector(raw[0:512])
	require.NoError(t, err)
	require.Equal(t, uint16(512), primary.BytesPerSector)

	backup, err := codec.UnmarshalFAT32BootSector(raw[6*512 : 6*512+512])
	require.NoError(t, err)
	require.Equal(t, primary.VolumeID, backup.VolumeID)

	fsi, err := codec.UnmarshalFSInfo(raw[512 : 512+512])
	require.NoError(t, err)
	require.Equal(t, uint32(0xFFFFFFFF), fsi.FreeCount)

	fat1Offset := int64(primary.ReservedSectorCount) * sectorSize
	require.Equal(t, []byte{0xF8, 0xFF, 0xFF, 0x0F}, raw[fat1Offset:fat1Offset+4])
}

func TestCreateEXT4DelegatesToFormatter(t *testing.T) {
	path := newPartitionFile(t, 2_000_000)
	formatter := &RecordingFormatter{}
	require.NoError(t, CreateFilesystem(path, fskind.EXT4, "", formatter, nil))

	require.Len(t, formatter.Calls, 1)
	require.Equal(t, fskind.EXT4, formatter.Calls[0].Kind)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	sb, err := codec.UnmarshalExt4SuperBlock(raw[1024 : 1024+1024])
	require.NoError(t, err)
	require.Equal(t, uint16(0xEF53), sb.Magic)
}

func TestCreateNTFSDelegatesToFormatter(t *testing.T) {
	path := newPartitionFile(t, 2_000_000)
	formatter := &RecordingFormatter{}
	require.NoError(t, CreateFilesystem(path, fskind.NTFS, "", formatter, nil))

	require.Len(t, formatter.Calls, 1)
	require.Equal(t, fskind.NTFS, formatter.Calls[0].Kind)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	bs, err := codec.UnmarshalNTFSBootSector(raw[0:512])
	require.NoError(t, err)
	require.Equal(t, int8(-10), bs.ClustersPerFileRecord)
}

func TestCreateExFATDelegatesEntirely(t *testing.T) {
	path := newPartitionFile(t, 2_000_000)
	formatter := &RecordingFormatter{}
	require.NoError(t, CreateFilesystem(path, fskind.ExFAT, "", formatter, nil))
	require.Len(t, formatter.Calls, 1)
	require.Equal(t, fskind.ExFAT, formatter.Calls[0].Kind)
}

func TestCreateFilesystemRejectsUnknownKind(t *testing.T) {
	path := newPartitionFile(t, 2_000_000)
	formatter := &RecordingFormatter{}
	err := CreateFilesystem(path, fskind.Unknown, "", formatter, nil)
	require.Error(t, err)
}
