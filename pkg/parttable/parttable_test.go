package parttable

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JeckAsChristopher/MyISO/pkg/codec"
	"github.com/JeckAsChristopher/MyISO/pkg/device"
)

func newOpenTable(t *testing.T, sectors uint64, tableType TableType) (*Table, string) {
	t.Helper()
	f, err := os.CreateTemp("", "parttable-*.img")
	require.NoError(t, err)
	require.NoError(t, f.Truncate(int64(sectors)*512))
	require.NoError(t, f.Close())
	t.Cleanup(func() { os.Remove(f.Name()) })

	tbl := New(f.Name(), tableType, nil)
	tbl.state = Open
	tbl.deviceSectors = sectors
	return tbl, f.Name()
}

func TestCreateMBRWritesTrailerAndScrub(t *testing.T) {
	tbl, path := newOpenTable(t, 20_000_000, TableTypeMBR)
	require.NoError(t, tbl.CreateMBR())
	require.Equal(t, Written, tbl.State())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, byte(0x55), raw[510])
	require.Equal(t, byte(0xAA), raw[511])

	for i := 1; i <= protectiveScrubSectors; i++ {
		chunk := raw[i*sectorSize : i*sectorSize+sectorSize]
		for _, b := range chunk {
			require.Equal(t, byte(0), b)
		}
	}
}

func TestAddMBRPartitionFillsFirstEmptySlot(t *testing.T) {
	tbl, path := newOpenTable(t, 20_000_000, TableTypeMBR)
	require.NoError(t, tbl.CreateMBR())
	require.NoError(t, tbl.AddMBRPartition(2048, 1_000_000, codec.PartitionTypeFAT32LBA, true))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	mbr, err := codec.UnmarshalMBR(raw)
	require.NoError(t, err)
	require.True(t, mbr.IsValid())
	require.Equal(t, uint8(0x80), mbr.Partitions[0].Status)
	require.Equal(t, codec.PartitionTypeFAT32LBA, mbr.Partitions[0].Type)
	require.Equal(t, uint32(2048), mbr.Partitions[0].FirstLBA)
	require.True(t, mbr.Partitions[1].IsEmpty())
}

func TestAddMBRPartitionRejectsWhenFull(t *testing.T) {
	tbl, _ := newOpenTable(t, 20_000_000, TableTypeMBR)
	require.NoError(t, tbl.CreateMBR())
	for i := 0; i < 4; i++ {
		require.NoError(t, tbl.AddMBRPartition(uint32(2048+i*100000), 90000, codec.PartitionTypeLinux, false))
	}
	err := tbl.AddMBRPartition(9_000_000, 1000, codec.PartitionTypeLinux, false)
	require.Error(t, err)
}

func TestCreateGPTWritesProtectiveMBRAndMirroredHeaders(t *testing.T) {
	sectors := uint64(2_000_000)
	tbl, path := newOpenTable(t, sectors, TableTypeGPT)
	require.NoError(t, tbl.CreateGPT())
	require.Equal(t, Written, tbl.State())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	mbr, err := codec.UnmarshalMBR(raw[0:512])
	require.NoError(t, err)
	require.Equal(t, codec.PartitionTypeGPTProtective, mbr.Partitions[0].Type)

	primary, err := codec.UnmarshalGPTHeader(raw[512:1024])
	require.NoError(t, err)
	require.Equal(t, uint64(1), primary.CurrentLBA)
	require.Equal(t, sectors-1, primary.BackupLBA)

	backupOff := int64(sectors-1) * sectorSize
	backup, err := codec.UnmarshalGPTHeader(raw[backupOff : backupOff+512])
	require.NoError(t, err)
	require.Equal(t, sectors-1, backup.CurrentLBA)
	require.Equal(t, uint64(1), backup.BackupLBA)
	require.Equal(t, backup.HeaderCRC32, backup.ComputeHeaderCRC32())
}

func TestAddGPTPartitionUpdatesPrimaryAndBackup(t *testing.T) {
	sectors := uint64(2_000_000)
	tbl, path := newOpenTable(t, sectors, TableTypeGPT)
	require.NoError(t, tbl.CreateGPT())

	var typeGUID [16]byte
	typeGUID[0] = 0xAB
	require.NoError(t, tbl.AddGPTPartition(2048, 1_000_000, typeGUID, "ESP"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	entries := raw[1024 : 1024+128]
	entry, err := codec.UnmarshalGPTEntry(entries)
	require.NoError(t, err)
	require.Equal(t, typeGUID, entry.TypeGUID)
	require.Equal(t, "ESP", entry.Name)

	header, err := codec.UnmarshalGPTHeader(raw[512:1024])
	require.NoError(t, err)
	require.Equal(t, header.HeaderCRC32, header.ComputeHeaderCRC32())
}

func TestCommitTransitionsToCommitted(t *testing.T) {
	tbl, path := newOpenTable(t, 20_000_000, TableTypeMBR)
	require.NoError(t, tbl.CreateMBR())

	rescanner := &device.RecordingRescanner{}
	require.NoError(t, tbl.Commit(nil, rescanner))
	require.Equal(t, Committed, tbl.State())
	require.Equal(t, []string{path}, rescanner.Calls)
}
