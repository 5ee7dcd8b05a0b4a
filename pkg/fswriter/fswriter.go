// Package fswriter implements the Filesystem Writer (C4): writes the
// FAT32 boot sector, FSInfo, FATs and a zeroed root directory cluster
// directly to a partition device, and shells out to mkfs.* for the
// filesystems this module does not build in-process.
package fswriter

import (
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/JeckAsChristopher/MyISO/pkg/codec"
	"github.com/JeckAsChristopher/MyISO/pkg/device"
	"github.com/JeckAsChristopher/MyISO/pkg/errs"
	"github.com/JeckAsChristopher/MyISO/pkg/fskind"
	"github.com/JeckAsChristopher/MyISO/pkg/logging"
)

const (
	sectorSize          = 512
	rootDirZeroBytes    = 4096
	defaultFAT32Label   = "MyISO"
	defaultEXT4Label    = "persistence"
	defaultNTFSLabel    = "MyISO"
)

// Formatter shells out to the mkfs.* family for filesystems this
// package does not construct in-process, mirroring
// lib/fs_supports.cpp's formatPartition.
type Formatter interface {
	Format(partitionPath string, kind fskind.Kind) error
}

// ExecFormatter is the production Formatter.
type ExecFormatter struct{}

func mkfsCommand(partitionPath string, kind fskind.Kind) (string, []string) {
	switch kind {
	case fskind.EXT4:
		return "mkfs.ext4", []string{"-F", partitionPath}
	case fskind.NTFS:
		return "mkfs.ntfs", []string{"-f", partitionPath}
	case fskind.ExFAT:
		return "mkfs.exfat", []string{partitionPath}
	case fskind.FAT32:
		return "mkfs.vfat", []string{"-F", "32", partitionPath}
	case fskind.FAT64:
		return "mkfs.vfat", []string{"-F", "64", partitionPath}
	default:
		return "", nil
	}
}

func (ExecFormatter) Format(partitionPath string, kind fskind.Kind) error {
	name, args := mkfsCommand(partitionPath, kind)
	if name == "" {
		return errs.New(errs.InvalidArgument, "unsupported filesystem type")
	}
	cmd := exec.Command(name, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return errs.Device(errs.Filesystem, partitionPath, fmt.Sprintf("%s failed: %s", name, out), err)
	}
	return nil
}

// RecordingFormatter is a test Formatter that records calls instead of
// shelling out.
type RecordingFormatter struct {
	Calls []struct {
		PartitionPath string
		Kind          fskind.Kind
	}
	Err error
}

func (r *RecordingFormatter) Format(partitionPath string, kind fskind.Kind) error {
	r.Calls = append(r.Calls, struct {
		PartitionPath string
		Kind          fskind.Kind
	}{partitionPath, kind})
	return r.Err
}

// CreateFilesystem writes the partition's filesystem header and, for
// EXT4 and NTFS, delegates the rest of the mountable structure to the
// Formatter (this module's in-process codecs only describe the leading
// header region — see Open Question 2 in SPEC_FULL.md).
func CreateFilesystem(partitionPath string, kind fskind.Kind, label string, formatter Formatter, logger *logging.Logger) error {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	if !fskind.Supported(kind) {
		return errs.New(errs.InvalidArgument, "unsupported filesystem type")
	}

	switch kind {
	case fskind.FAT32:
		if label == "" {
			label = defaultFAT32Label
		}
		return createFAT32(partitionPath, label, logger)
	case fskind.EXT4:
		if label == "" {
			label = defaultEXT4Label
		}
		if err := createExt4Header(partitionPath, label, logger); err != nil {
			return err
		}
		return formatter.Format(partitionPath, kind)
	case fskind.NTFS:
		if label == "" {
			label = defaultNTFSLabel
		}
		if err := createNTFSHeader(partitionPath, logger); err != nil {
			return err
		}
		return formatter.Format(partitionPath, kind)
	default:
		logger.Info("delegating filesystem creation to external formatter", "fs", fskind.Name(kind))
		return formatter.Format(partitionPath, kind)
	}
}

// partitionSizeBytes is a seam over device.SizeBytes so tests can stand
// a plain file in for a partition node without touching /sys/class/block.
var partitionSizeBytes = device.SizeBytes

// partitionSectors asks the kernel for the partition's sector count via
// sysfs rather than stat'ing the node: on a real block device stat's
// reported size is 0, which would otherwise collapse FATSize32 and the
// EXT4/NTFS header geometry to degenerate values.
func partitionSectors(path string) (uint32, error) {
	size, err := partitionSizeBytes(path)
	if err != nil {
		return 0, err
	}
	return uint32(size / sectorSize), nil
}

// createFAT32 writes the boot sector at sector 0 and its backup at
// sector 6, the FSInfo sector at 1 and its backup at 7, both FAT
// copies starting at sector 32, and zeroes the first 4 KiB of the root
// directory's data region, per §4.2(5)/§4.4.
func createFAT32(partitionPath, label string, logger *logging.Logger) error {
	logger.Info("creating FAT32 filesystem", "partition", partitionPath)

	f, err := os.OpenFile(partitionPath, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return errs.Device(errs.DeviceIo, partitionPath, "cannot open partition for FAT32 creation", err)
	}
	defer f.Close()

	sectors, err := partitionSectors(partitionPath)
	if err != nil {
		return err
	}

	bs := codec.NewFAT32BootSector(sectors, label, uint32(time.Now().Unix()))
	bootSector := bs.Marshal()
	if _, err := f.WriteAt(bootSector[:], 0); err != nil {
		return errs.Device(errs.DeviceIo, partitionPath, "failed to write FAT32 boot sector", err)
	}
	if _, err := f.WriteAt(bootSector[:], 6*sectorSize); err != nil {
		return errs.Device(errs.DeviceIo, partitionPath, "failed to write FAT32 backup boot sector", err)
	}

	fsi := codec.NewFSInfo()
	fsiSector := fsi.Marshal()
	if _, err := f.WriteAt(fsiSector[:], 1*sectorSize); err != nil {
		return errs.Device(errs.DeviceIo, partitionPath, "failed to write FSInfo", err)
	}
	if _, err := f.WriteAt(fsiSector[:], 7*sectorSize); err != nil {
		return errs.Device(errs.DeviceIo, partitionPath, "failed to write backup FSInfo", err)
	}

	fat := codec.InitialFAT()
	fat1Offset := int64(bs.ReservedSectorCount) * sectorSize
	fat2Offset := fat1Offset + int64(bs.FATSize32)*sectorSize
	if _, err := f.WriteAt(fat[:], fat1Offset); err != nil {
		return errs.Device(errs.DeviceIo, partitionPath, "failed to write first FAT", err)
	}
	if _, err := f.WriteAt(fat[:], fat2Offset); err != nil {
		return errs.Device(errs.DeviceIo, partitionPath, "failed to write second FAT", err)
	}

	dataStart := fat2Offset + int64(bs.FATSize32)*sectorSize
	zeros := make([]byte, rootDirZeroBytes)
	if _, err := f.WriteAt(zeros, dataStart); err != nil {
		return errs.Device(errs.DeviceIo, partitionPath, "failed to zero root directory cluster", err)
	}

	if err := f.Sync(); err != nil {
		return errs.Device(errs.DeviceIo, partitionPath, "fsync failed after FAT32 creation", err)
	}
	logger.Info("FAT32 filesystem created", "partition", partitionPath)
	return nil
}

// createExt4Header writes only the superblock at byte offset 1024;
// the rest of the mountable layout is delegated to mkfs.ext4.
func createExt4Header(partitionPath, label string, logger *logging.Logger) error {
	logger.Info("creating EXT4 superblock", "partition", partitionPath)

	f, err := os.OpenFile(partitionPath, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return errs.Device(errs.DeviceIo, partitionPath, "cannot open partition for EXT4 creation", err)
	}
	defer f.Close()

	sectors, err := partitionSectors(partitionPath)
	if err != nil {
		return err
	}
	blockCount := uint32(uint64(sectors) * sectorSize / 4096)

	sb := codec.NewExt4SuperBlock(blockCount, label, uint32(time.Now().Unix()), codec.NewGUID())
	buf := sb.Marshal()
	if _, err := f.WriteAt(buf[:], sb.Offset()); err != nil {
		return errs.Device(errs.DeviceIo, partitionPath, "failed to write EXT4 superblock", err)
	}
	return f.Sync()
}

// createNTFSHeader writes only the boot sector at sector 0; MFT
// construction is delegated to mkfs.ntfs.
func createNTFSHeader(partitionPath string, logger *logging.Logger) error {
	logger.Info("creating NTFS boot sector", "partition", partitionPath)

	f, err := os.OpenFile(partitionPath, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return errs.Device(errs.DeviceIo, partitionPath, "cannot open partition for NTFS creation", err)
	}
	defer f.Close()

	sectors, err := partitionSectors(partitionPath)
	if err != nil {
		return err
	}

	bs := codec.NewNTFSBootSector(uint64(sectors), uint64(time.Now().UnixNano())&0xFFFFFFFF)
	buf := bs.Marshal()
	if _, err := f.WriteAt(buf[:], 0); err != nil {
		return errs.Device(errs.DeviceIo, partitionPath, "failed to write NTFS boot sector", err)
	}
	return f.Sync()
}
