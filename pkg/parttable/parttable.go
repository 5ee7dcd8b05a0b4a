// Package parttable implements the Partition Table Engine (C3): builds
// a valid MBR or protective-MBR+GPT on a device, adds entries, commits
// and requests a kernel partition re-read.
package parttable

import (
	"math/rand"
	"os"

	"github.com/JeckAsChristopher/MyISO/pkg/codec"
	"github.com/JeckAsChristopher/MyISO/pkg/device"
	"github.com/JeckAsChristopher/MyISO/pkg/errs"
	"github.com/JeckAsChristopher/MyISO/pkg/logging"
)

// State is the engine's lifecycle: Uninitialized -> Open -> Written -> Committed.
type State int

const (
	Uninitialized State = iota
	Open
	Written
	Committed
)

// TableType selects between a classical MBR and a protective-MBR+GPT layout.
type TableType int

const (
	TableTypeMBR TableType = iota
	TableTypeGPT
)

const (
	protectiveScrubSectors = 2047
	sectorSize             = 512
	gptBackupEntriesOffset = 33 // backup entries start at deviceSectors-33
)

// Table drives the on-disk partition table state machine for a single device.
type Table struct {
	devicePath    string
	tableType     TableType
	state         State
	deviceSectors uint64
	logger        *logging.Logger

	mbr       codec.MBR
	gptHeader codec.GPTHeader
	gptEntries []codec.GPTEntry
}

// New constructs a Table for devicePath in the Uninitialized state.
func New(devicePath string, tableType TableType, logger *logging.Logger) *Table {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &Table{devicePath: devicePath, tableType: tableType, logger: logger}
}

// Initialize opens the device and reads its sector count, transitioning to Open.
func (t *Table) Initialize() error {
	size, err := device.SizeBytes(t.devicePath)
	if err != nil {
		return err
	}
	t.deviceSectors = size / sectorSize
	t.logger.Debug("device sectors", "count", t.deviceSectors)
	t.state = Open
	return nil
}

func (t *Table) requireState(want State, op string) error {
	if t.state != want {
		return errs.Device(errs.InvalidArgument, t.devicePath, op+" called out of sequence", nil)
	}
	return nil
}

func (t *Table) openFile() (*os.File, error) {
	f, err := os.OpenFile(t.devicePath, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, errs.Device(errs.DeviceIo, t.devicePath, "cannot open device", err)
	}
	return f, nil
}

// CreateMBR writes a zero-initialized MBR containing only a random
// disk signature and the 0xAA55 trailer, then unconditionally blanks
// the next 2047 sectors (the "protective scrub" — made unconditional
// per Open Question 4's resolution in favor of the safer behavior).
func (t *Table) CreateMBR() error {
	if err := t.requireState(Open, "CreateMBR"); err != nil {
		return err
	}
	t.logger.Info("creating MBR partition table", "device", t.devicePath)

	t.mbr = codec.MBR{
		DiskSignature: rand.Uint32(),
		Signature:     0xAA55,
	}

	f, err := t.openFile()
	if err != nil {
		return err
	}
	defer f.Close()

	sector := t.mbr.Marshal()
	if _, err := f.WriteAt(sector[:], 0); err != nil {
		return errs.Device(errs.DeviceIo, t.devicePath, "failed to write MBR", err)
	}

	zero := make([]byte, sectorSize)
	for i := 1; i <= protectiveScrubSectors; i++ {
		if _, err := f.WriteAt(zero, int64(i)*sectorSize); err != nil {
			return errs.Device(errs.DeviceIo, t.devicePath, "failed to scrub protective sectors", err)
		}
	}

	if err := f.Sync(); err != nil {
		return errs.Device(errs.DeviceIo, t.devicePath, "fsync failed after MBR write", err)
	}

	t.state = Written
	return nil
}

// CreateGPT writes protective MBR, then the primary GPT header with
// computed CRC, then the (initially all-zero) entry array, then
// mirrors the entry array and header to the backup location at the end
// of the device with current/backup LBA fields swapped (Open Question
// 1: the backup IS written, unconditionally).
func (t *Table) CreateGPT() error {
	if err := t.requireState(Open, "CreateGPT"); err != nil {
		return err
	}
	t.logger.Info("creating GPT partition table", "device", t.devicePath)

	protective := codec.ProtectiveMBR(t.deviceSectors)
	guid := codec.NewGUID()
	header := codec.NewGPTHeader(t.deviceSectors, guid)
	entries := make([]codec.GPTEntry, header.NumberOfPartitionEntries)

	entryBytes, arrayCRC := codec.MarshalEntryArray(entries, header.NumberOfPartitionEntries)
	header.PartitionArrayCRC32 = arrayCRC
	header.HeaderCRC32 = header.ComputeHeaderCRC32()

	f, err := t.openFile()
	if err != nil {
		return err
	}
	defer f.Close()

	mbrSector := protective.Marshal()
	if _, err := f.WriteAt(mbrSector[:], 0); err != nil {
		return errs.Device(errs.DeviceIo, t.devicePath, "failed to write protective MBR", err)
	}

	headerSector := header.Marshal()
	if _, err := f.WriteAt(headerSector[:], sectorSize); err != nil {
		return errs.Device(errs.DeviceIo, t.devicePath, "failed to write GPT header", err)
	}
	if _, err := f.WriteAt(entryBytes, 2*sectorSize); err != nil {
		return errs.Device(errs.DeviceIo, t.devicePath, "failed to write GPT entry array", err)
	}

	backupEntriesLBA := t.deviceSectors - gptBackupEntriesOffset
	backupHeader := header.AsBackup(backupEntriesLBA)
	backupHeader.HeaderCRC32 = backupHeader.ComputeHeaderCRC32()
	backupHeaderSector := backupHeader.Marshal()

	if _, err := f.WriteAt(entryBytes, int64(backupEntriesLBA)*sectorSize); err != nil {
		return errs.Device(errs.DeviceIo, t.devicePath, "failed to write backup GPT entry array", err)
	}
	if _, err := f.WriteAt(backupHeaderSector[:], int64(t.deviceSectors-1)*sectorSize); err != nil {
		return errs.Device(errs.DeviceIo, t.devicePath, "failed to write backup GPT header", err)
	}

	if err := f.Sync(); err != nil {
		return errs.Device(errs.DeviceIo, t.devicePath, "fsync failed after GPT write", err)
	}

	t.gptHeader = header
	t.gptEntries = entries
	t.state = Written
	return nil
}

// AdoptExistingMBR reads back an MBR already present on the device
// (for example one burned verbatim from a hybrid ISO image) and
// transitions to Written so AddMBRPartition can extend it without
// the engine ever overwriting the existing boot code or entries.
func (t *Table) AdoptExistingMBR() error {
	if err := t.requireState(Open, "AdoptExistingMBR"); err != nil {
		return err
	}

	f, err := t.openFile()
	if err != nil {
		return err
	}
	defer f.Close()

	var sector [codec.MBRSize]byte
	if _, err := f.ReadAt(sector[:], 0); err != nil {
		return errs.Device(errs.DeviceIo, t.devicePath, "failed to read existing MBR", err)
	}
	mbr, err := codec.UnmarshalMBR(sector[:])
	if err != nil {
		return errs.Device(errs.DeviceIo, t.devicePath, "failed to parse existing MBR", err)
	}

	t.mbr = mbr
	t.state = Written
	return nil
}

// AddMBRPartition reads the current MBR, finds the first entry whose
// type is 0, writes the new entry with CHS values computed for
// startLBA and startLBA+sectorCount-1, and writes the MBR back.
func (t *Table) AddMBRPartition(startLBA, sectorCount uint32, partType codec.PartitionType, bootable bool) error {
	if err := t.requireState(Written, "AddMBRPartition"); err != nil {
		return err
	}

	f, err := t.openFile()
	if err != nil {
		return err
	}
	defer f.Close()

	var sector [codec.MBRSize]byte
	if _, err := f.ReadAt(sector[:], 0); err != nil {
		return errs.Device(errs.DeviceIo, t.devicePath, "failed to read MBR", err)
	}
	mbr, err := codec.UnmarshalMBR(sector[:])
	if err != nil {
		return errs.Device(errs.DeviceIo, t.devicePath, "failed to parse MBR", err)
	}

	slot := -1
	for i, p := range mbr.Partitions {
		if p.IsEmpty() {
			slot = i
			break
		}
	}
	if slot == -1 {
		return errs.Device(errs.InvalidArgument, t.devicePath, "no free partition slots in MBR", nil)
	}

	status := uint8(0x00)
	if bootable {
		status = 0x80
	}
	mbr.Partitions[slot] = codec.MBRPartitionEntry{
		Status:      status,
		Type:        partType,
		FirstLBA:    startLBA,
		SectorCount: sectorCount,
		FirstCHS:    codec.CalculateCHS(startLBA),
		LastCHS:     codec.CalculateCHS(startLBA + sectorCount - 1),
	}

	out := mbr.Marshal()
	if _, err := f.WriteAt(out[:], 0); err != nil {
		return errs.Device(errs.DeviceIo, t.devicePath, "failed to write partition to MBR", err)
	}
	if err := f.Sync(); err != nil {
		return errs.Device(errs.DeviceIo, t.devicePath, "fsync failed after adding partition", err)
	}

	t.mbr = mbr
	t.logger.Info("partition added to MBR", "slot", slot+1, "device", t.devicePath)
	return nil
}

// AddGPTPartition locates the first zero-typed entry in the array,
// writes it, recomputes the entry-array CRC, rewrites the primary
// header CRC accordingly, and mirrors to backup.
func (t *Table) AddGPTPartition(startLBA, sectorCount uint64, typeGUID [16]byte, name string) error {
	if err := t.requireState(Written, "AddGPTPartition"); err != nil {
		return err
	}

	slot := -1
	for i, e := range t.gptEntries {
		if e.IsEmpty() {
			slot = i
			break
		}
	}
	if slot == -1 {
		return errs.Device(errs.InvalidArgument, t.devicePath, "no free partition slots in GPT", nil)
	}

	t.gptEntries[slot] = codec.GPTEntry{
		TypeGUID:   typeGUID,
		UniqueGUID: codec.NewGUID(),
		FirstLBA:   startLBA,
		LastLBA:    startLBA + sectorCount - 1,
		Name:       name,
	}

	entryBytes, arrayCRC := codec.MarshalEntryArray(t.gptEntries, t.gptHeader.NumberOfPartitionEntries)
	t.gptHeader.PartitionArrayCRC32 = arrayCRC
	t.gptHeader.HeaderCRC32 = t.gptHeader.ComputeHeaderCRC32()

	f, err := t.openFile()
	if err != nil {
		return err
	}
	defer f.Close()

	headerSector := t.gptHeader.Marshal()
	if _, err := f.WriteAt(headerSector[:], sectorSize); err != nil {
		return errs.Device(errs.DeviceIo, t.devicePath, "failed to rewrite GPT header", err)
	}
	if _, err := f.WriteAt(entryBytes, 2*sectorSize); err != nil {
		return errs.Device(errs.DeviceIo, t.devicePath, "failed to rewrite GPT entry array", err)
	}

	backupEntriesLBA := t.deviceSectors - gptBackupEntriesOffset
	backupHeader := t.gptHeader.AsBackup(backupEntriesLBA)
	backupHeader.HeaderCRC32 = backupHeader.ComputeHeaderCRC32()
	backupHeaderSector := backupHeader.Marshal()

	if _, err := f.WriteAt(entryBytes, int64(backupEntriesLBA)*sectorSize); err != nil {
		return errs.Device(errs.DeviceIo, t.devicePath, "failed to rewrite backup GPT entry array", err)
	}
	if _, err := f.WriteAt(backupHeaderSector[:], int64(t.deviceSectors-1)*sectorSize); err != nil {
		return errs.Device(errs.DeviceIo, t.devicePath, "failed to rewrite backup GPT header", err)
	}

	return f.Sync()
}

// MakeBootable marks the first MBR entry as bootable (status 0x80).
func (t *Table) MakeBootable() error {
	f, err := t.openFile()
	if err != nil {
		return err
	}
	defer f.Close()

	var sector [codec.MBRSize]byte
	if _, err := f.ReadAt(sector[:], 0); err != nil {
		return errs.Device(errs.DeviceIo, t.devicePath, "failed to read MBR", err)
	}
	mbr, err := codec.UnmarshalMBR(sector[:])
	if err != nil {
		return errs.Device(errs.DeviceIo, t.devicePath, "failed to parse MBR", err)
	}

	mbr.Partitions[0].Status = 0x80
	out := mbr.Marshal()
	if _, err := f.WriteAt(out[:], 0); err != nil {
		return errs.Device(errs.DeviceIo, t.devicePath, "failed to write MBR", err)
	}
	return f.Sync()
}

// Commit performs fsync and then triggers a kernel partition re-read,
// transitioning to Committed.
func (t *Table) Commit(expectedPartitions []string, rescanner device.Rescanner) error {
	if err := device.Sync(t.devicePath, t.logger); err != nil {
		return err
	}
	if err := device.RereadPartitions(t.devicePath, expectedPartitions, rescanner, t.logger); err != nil {
		return err
	}
	t.state = Committed
	return nil
}

// State returns the engine's current lifecycle state.
func (t *Table) State() State { return t.state }

// DeviceSectors returns the device's sector count, valid once Open.
func (t *Table) DeviceSectors() uint64 { return t.deviceSectors }
