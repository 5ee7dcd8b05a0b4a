// Package orchestrator implements the Strategy Selector & Orchestrator
// (C8): runs the ISO Analyzer, picks a burn Strategy, and drives the
// Block Device Gateway, Partition Table Engine, Filesystem Writer,
// Burn Engine and Bootloader Placer to produce bootable media.
package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/JeckAsChristopher/MyISO/pkg/analyzer"
	"github.com/JeckAsChristopher/MyISO/pkg/bootloader"
	"github.com/JeckAsChristopher/MyISO/pkg/burn"
	"github.com/JeckAsChristopher/MyISO/pkg/codec"
	"github.com/JeckAsChristopher/MyISO/pkg/device"
	"github.com/JeckAsChristopher/MyISO/pkg/errs"
	"github.com/JeckAsChristopher/MyISO/pkg/fskind"
	"github.com/JeckAsChristopher/MyISO/pkg/fswriter"
	"github.com/JeckAsChristopher/MyISO/pkg/iso9660"
	"github.com/JeckAsChristopher/MyISO/pkg/logging"
	"github.com/JeckAsChristopher/MyISO/pkg/option"
	"github.com/JeckAsChristopher/MyISO/pkg/parttable"
)

const (
	oneMiB               = 1024 * 1024
	spaceMarginMiB       = 100
	espSizeSectors       = 512 * 1024 * 1024 / 512
	firstPartitionSector = 2048
	rescanSettleDelay    = 2 * time.Second
)

// deviceSizeBytes is a seam over device.SizeBytes so tests can stand
// in a plain file for a block device without touching /sys/class/block.
var deviceSizeBytes = device.SizeBytes

// Config bundles everything one end-to-end run needs: the paths, the
// requested options, and the collaborator interfaces production code
// shells out through (tests substitute recording implementations).
type Config struct {
	ISOPath    string
	DevicePath string
	Options    option.OrchestratorOptions
	Mounter    device.Mounter
	Rescanner  device.Rescanner
	Formatter  fswriter.Formatter
	Progress   burn.ProgressCallback
}

func (c Config) logger() *logging.Logger {
	if c.Options.Logger != nil {
		return c.Options.Logger
	}
	return logging.DefaultLogger()
}

// Result reports what the run actually did, for the CLI to summarize.
type Result struct {
	Strategy         analyzer.Strategy
	Fingerprint      analyzer.Fingerprint
	PersistenceAdded bool
}

// Run performs the pre-flight space check, analyzes the ISO, selects a
// strategy, and dispatches to the matching burn path.
func Run(cfg Config) (Result, error) {
	logger := cfg.logger()

	fp, err := analyzer.Analyze(cfg.ISOPath, logger)
	if err != nil {
		return Result{}, err
	}

	if err := preflightSpaceCheck(cfg, fp); err != nil {
		return Result{}, err
	}

	strategy := analyzer.DetermineStrategy(fp)
	logger.Info("using intelligent burn strategy", "strategy", strategy.String())

	result := Result{Strategy: strategy, Fingerprint: fp}

	switch strategy {
	case analyzer.HybridPreserve:
		logger.Info("strategy: preserving hybrid ISO structure")
		added, err := burnHybridPreserve(cfg, fp)
		result.PersistenceAdded = added
		return result, err
	case analyzer.SmartExtract:
		logger.Info("strategy: smart extract and reorganize")
		return result, burnSmartExtract(cfg, fp)
	case analyzer.Multipart:
		logger.Info("strategy: multi-partition setup")
		return result, burnMultipart(cfg, fp)
	default:
		logger.Info("strategy: raw copy (fastest)")
		return result, burnRawCopy(cfg)
	}
}

// preflightSpaceCheck fails if the ISO plus any requested persistence
// plus a 100 MiB safety margin exceeds the device's capacity, quoting
// the same device/ISO/requested/required/shortage/max-persistence
// breakdown as main.cpp's pre-burn space check.
func preflightSpaceCheck(cfg Config, fp analyzer.Fingerprint) error {
	deviceBytes, err := deviceSizeBytes(cfg.DevicePath)
	if err != nil {
		return err
	}
	isoMiB := fp.ISODataSize / oneMiB
	deviceMiB := deviceBytes / oneMiB

	required := isoMiB + spaceMarginMiB
	if cfg.Options.Persistence {
		required += cfg.Options.PersistenceSizeMB
	}
	if required <= deviceMiB {
		return nil
	}

	shortage := required - deviceMiB
	maxPersistence := int64(deviceMiB) - int64(isoMiB) - int64(spaceMarginMiB)
	if maxPersistence < 0 {
		maxPersistence = 0
	}

	msg := fmt.Sprintf("insufficient storage for requested persistence\n"+
		"  Device: %d MiB\n"+
		"  ISO: %d MiB\n"+
		"  Requested persistence: %d MiB\n"+
		"  Required: %d MiB\n"+
		"  Shortage: %d MiB",
		deviceMiB, isoMiB, cfg.Options.PersistenceSizeMB, required, shortage)
	if maxPersistence >= 512 {
		msg += fmt.Sprintf("\n  Maximum persistence available: %d MiB", maxPersistence)
	} else {
		msg += "\n  Device too small for persistence (minimum 512 MiB needed)"
	}

	return errs.Device(errs.Filesystem, cfg.DevicePath, msg, nil)
}

func burnMode(fast bool) burn.Mode {
	if fast {
		return burn.ZeroCopy
	}
	return burn.Buffered
}

func preamble(cfg Config, logger *logging.Logger) error {
	if err := device.UnmountAll(cfg.DevicePath, cfg.Mounter, logger); err != nil {
		return err
	}
	return device.Wipe(cfg.DevicePath, logger)
}

// burnRawCopy streams the image onto the device and then installs the
// bootloader, mirroring IntelligentBurner::burnRawCopy's unconditional
// call into Bootloader::installBootloader after every raw/fast burn.
func burnRawCopy(cfg Config) error {
	logger := cfg.logger()
	if err := preamble(cfg, logger); err != nil {
		return err
	}
	if err := burn.Burn(cfg.ISOPath, cfg.DevicePath, burnMode(cfg.Options.FastMode), cfg.Progress, logger); err != nil {
		return err
	}

	bootType, err := bootloader.DetectBootType(cfg.ISOPath, logger)
	if err != nil {
		logger.Info("boot type detection failed, defaulting to syslinux", "error", err)
		bootType = bootloader.Syslinux
	}
	if err := bootloader.Install(cfg.DevicePath, bootType, cfg.Mounter, logger); err != nil {
		logger.Info("bootloader installation failed", "error", err)
	}

	return device.Sync(cfg.DevicePath, logger)
}

// burnHybridPreserve trusts the ISO's own embedded partition table: it
// is copied byte-for-byte, and persistence (if requested) is appended
// as one more MBR entry in the space beyond the copied image.
func burnHybridPreserve(cfg Config, fp analyzer.Fingerprint) (bool, error) {
	logger := cfg.logger()
	if err := preamble(cfg, logger); err != nil {
		return false, err
	}
	if err := burn.Burn(cfg.ISOPath, cfg.DevicePath, burnMode(cfg.Options.FastMode), cfg.Progress, logger); err != nil {
		return false, err
	}

	if !cfg.Options.Persistence {
		return false, device.Sync(cfg.DevicePath, logger)
	}

	logger.Info("adding persistence partition to hybrid ISO")
	time.Sleep(rescanSettleDelay)

	deviceSize, err := deviceSizeBytes(cfg.DevicePath)
	if err != nil {
		return false, err
	}
	usedSpace := fp.ISODataSize
	availableSpace := deviceSize - usedSpace
	requestedBytes := cfg.Options.PersistenceSizeMB * oneMiB

	if availableSpace <= requestedBytes {
		logger.Info("not enough trailing space for a persistence partition, falling back to a file", "available", availableSpace)
		return fallbackFilePersistence(cfg, fp, logger)
	}

	table := parttable.New(cfg.DevicePath, parttable.TableTypeMBR, logger)
	if err := table.Initialize(); err != nil {
		return false, err
	}
	if err := table.AdoptExistingMBR(); err != nil {
		logger.Info("failed to adopt existing MBR for persistence, falling back to a file", "error", err)
		return fallbackFilePersistence(cfg, fp, logger)
	}

	startSector := uint32(usedSpace/512) + 2048
	sectorCount := uint32(requestedBytes / 512)
	nextIndex := len(fp.EmbeddedPartitions) + 1
	persistPart := device.PartitionPath(cfg.DevicePath, nextIndex)

	if err := table.AddMBRPartition(startSector, sectorCount, codec.PartitionTypeLinux, false); err != nil {
		logger.Info("failed to add in-place persistence partition, falling back to a file", "error", err)
		return fallbackFilePersistence(cfg, fp, logger)
	}

	if err := table.Commit([]string{persistPart}, cfg.Rescanner); err != nil {
		return false, err
	}
	if err := fswriter.CreateFilesystem(persistPart, cfg.Options.PersistenceFS, cfg.Options.PersistenceLabel, cfg.Formatter, logger); err != nil {
		return false, err
	}

	return true, device.Sync(cfg.DevicePath, logger)
}

// fallbackFilePersistence mounts the already-burned image's first
// partition and drops a single sparse file on it, formatted as its own
// ext4 filesystem, for devices where the trailing free space is too
// small or too awkward to add a whole partition — mirroring
// PersistenceFallback::setupFallbackPersistence/createFileBased.
func fallbackFilePersistence(cfg Config, fp analyzer.Fingerprint, logger *logging.Logger) (bool, error) {
	mountPoint := filepath.Join(os.TempDir(), fmt.Sprintf("myiso_persist_%d", os.Getpid()))
	if err := os.MkdirAll(mountPoint, 0o755); err != nil {
		return false, errs.Device(errs.Filesystem, cfg.DevicePath, "cannot create persistence mount point", err)
	}
	defer os.RemoveAll(mountPoint)

	firstPartition := device.PartitionPath(cfg.DevicePath, 1)
	if err := cfg.Mounter.Mount(firstPartition, mountPoint, "vfat", false); err != nil {
		logger.Info("could not mount device for file-based persistence, skipping", "error", err)
		return false, device.Sync(cfg.DevicePath, logger)
	}
	defer cfg.Mounter.Unmount(mountPoint, false)

	persistFile := filepath.Join(mountPoint, "casper-rw")
	if err := createFileBasedPersistence(persistFile, cfg.Options.PersistenceSizeMB, cfg.Formatter, logger); err != nil {
		return false, err
	}

	return true, device.Sync(cfg.DevicePath, logger)
}

// createFileBasedPersistence sparse-allocates a regular file of sizeMB
// and hands it to the Formatter exactly as if it were a partition node
// — mkfs.ext4 builds a mountable filesystem inside a plain file just
// as readily as on a block device.
func createFileBasedPersistence(path string, sizeMB uint64, formatter fswriter.Formatter, logger *logging.Logger) error {
	logger.Info("creating file-based persistence", "path", path, "sizeMB", sizeMB)

	f, err := os.Create(path)
	if err != nil {
		return errs.File(errs.Filesystem, path, "cannot create persistence file", err)
	}
	if err := f.Truncate(int64(sizeMB * oneMiB)); err != nil {
		f.Close()
		return errs.File(errs.Filesystem, path, "failed to allocate persistence file", err)
	}
	if err := f.Close(); err != nil {
		return errs.File(errs.Filesystem, path, "failed to close persistence file", err)
	}

	if err := formatter.Format(path, fskind.EXT4); err != nil {
		return err
	}
	logger.Info("file-based persistence created", "path", path)
	return nil
}

// burnSmartExtract builds a single bootable data partition sized to
// the ISO's payload (plus a persistence partition if requested),
// extracts the ISO's files into it directly (no loop device required),
// and installs the detected bootloader.
func burnSmartExtract(cfg Config, fp analyzer.Fingerprint) error {
	logger := cfg.logger()
	if err := preamble(cfg, logger); err != nil {
		return err
	}

	if err := createSinglePartitionLayout(cfg, fp, logger); err != nil {
		return err
	}

	dataPart := device.PartitionPath(cfg.DevicePath, 1)
	if err := fswriter.CreateFilesystem(dataPart, fskind.FAT32, "MYISO", cfg.Formatter, logger); err != nil {
		return err
	}

	mountPoint, err := extractISOToPartition(cfg.ISOPath, dataPart, cfg.Mounter, logger)
	if err != nil {
		return err
	}
	defer unmountAndClean(mountPoint, cfg.Mounter, logger)

	bootType, err := bootloader.DetectBootType(cfg.ISOPath, logger)
	if err != nil {
		logger.Info("boot type detection failed, defaulting to syslinux", "error", err)
		bootType = bootloader.Syslinux
	}
	if err := bootloader.Install(cfg.DevicePath, bootType, cfg.Mounter, logger); err != nil {
		logger.Info("bootloader installation failed", "error", err)
	}

	return device.Sync(cfg.DevicePath, logger)
}

func createSinglePartitionLayout(cfg Config, fp analyzer.Fingerprint, logger *logging.Logger) error {
	table := parttable.New(cfg.DevicePath, parttable.TableTypeMBR, logger)
	if err := table.Initialize(); err != nil {
		return err
	}
	if err := table.CreateMBR(); err != nil {
		return err
	}

	isoSectors := uint32(fp.ISODataSize/512) + 4096
	if err := table.AddMBRPartition(firstPartitionSector, isoSectors, codec.PartitionTypeFAT32LBA, true); err != nil {
		return err
	}

	if cfg.Options.Persistence {
		persistSectors := uint32(cfg.Options.PersistenceSizeMB * oneMiB / 512)
		if err := table.AddMBRPartition(firstPartitionSector+isoSectors, persistSectors, codec.PartitionTypeLinux, false); err != nil {
			return err
		}
	}

	expected := []string{device.PartitionPath(cfg.DevicePath, 1)}
	if cfg.Options.Persistence {
		expected = append(expected, device.PartitionPath(cfg.DevicePath, 2))
	}
	if err := table.Commit(expected, cfg.Rescanner); err != nil {
		return err
	}
	time.Sleep(rescanSettleDelay)
	return nil
}

// burnMultipart lays out an EFI System Partition (when the ISO carries
// UEFI boot files) ahead of the main data partition, plus an optional
// trailing persistence partition, mirroring
// IntelligentBurner::burnMultipart.
func burnMultipart(cfg Config, fp analyzer.Fingerprint) error {
	logger := cfg.logger()
	if err := preamble(cfg, logger); err != nil {
		return err
	}

	table := parttable.New(cfg.DevicePath, parttable.TableTypeMBR, logger)
	if err := table.Initialize(); err != nil {
		return err
	}
	if err := table.CreateMBR(); err != nil {
		return err
	}

	currentSector := uint32(firstPartitionSector)
	dataPartIndex := 1

	if fp.HasUEFI {
		if err := table.AddMBRPartition(currentSector, espSizeSectors, codec.PartitionTypeEFISystem, true); err != nil {
			return err
		}
		logger.Info("created EFI system partition", "sizeMB", 512)
		currentSector += espSizeSectors
		dataPartIndex = 2
	}

	isoSectors := uint32(fp.ISODataSize/512) + 4096
	if err := table.AddMBRPartition(currentSector, isoSectors, codec.PartitionTypeFAT32LBA, !fp.HasUEFI); err != nil {
		return err
	}
	logger.Info("created main data partition")
	currentSector += isoSectors

	persistPartIndex := 0
	if cfg.Options.Persistence {
		persistSectors := uint32(cfg.Options.PersistenceSizeMB * oneMiB / 512)
		if err := table.AddMBRPartition(currentSector, persistSectors, codec.PartitionTypeLinux, false); err != nil {
			return err
		}
		logger.Info("created persistence partition")
		persistPartIndex = dataPartIndex + 1
	}

	expected := []string{device.PartitionPath(cfg.DevicePath, dataPartIndex)}
	if fp.HasUEFI {
		expected = append([]string{device.PartitionPath(cfg.DevicePath, 1)}, expected...)
	}
	if persistPartIndex > 0 {
		expected = append(expected, device.PartitionPath(cfg.DevicePath, persistPartIndex))
	}
	if err := table.Commit(expected, cfg.Rescanner); err != nil {
		return err
	}
	time.Sleep(rescanSettleDelay)

	if fp.HasUEFI {
		espPart := device.PartitionPath(cfg.DevicePath, 1)
		if err := fswriter.CreateFilesystem(espPart, fskind.FAT32, "EFI", cfg.Formatter, logger); err != nil {
			return err
		}
	}

	dataPart := device.PartitionPath(cfg.DevicePath, dataPartIndex)
	if err := fswriter.CreateFilesystem(dataPart, fskind.FAT32, "MYISO", cfg.Formatter, logger); err != nil {
		return err
	}

	mountPoint, err := extractISOToPartition(cfg.ISOPath, dataPart, cfg.Mounter, logger)
	if err != nil {
		return err
	}
	unmountAndClean(mountPoint, cfg.Mounter, logger)

	if persistPartIndex > 0 {
		persistPart := device.PartitionPath(cfg.DevicePath, persistPartIndex)
		if err := fswriter.CreateFilesystem(persistPart, cfg.Options.PersistenceFS, cfg.Options.PersistenceLabel, cfg.Formatter, logger); err != nil {
			return err
		}
	}

	return device.Sync(cfg.DevicePath, logger)
}

// extractISOToPartition mounts partitionPath, opens the ISO through
// the kept ISO9660 reader, and streams every file directly into the
// mount point — no loop device required. On failure the partition is
// unmounted and the mount point removed before returning.
func extractISOToPartition(isoPath, partitionPath string, mounter device.Mounter, logger *logging.Logger) (string, error) {
	logger.Info("extracting ISO contents to partition", "partition", partitionPath)

	mountPoint := filepath.Join(os.TempDir(), fmt.Sprintf("myiso_extract_%d", os.Getpid()))
	if err := os.MkdirAll(mountPoint, 0o755); err != nil {
		return "", errs.Device(errs.Filesystem, partitionPath, "cannot create extraction mount point", err)
	}

	if err := mounter.Mount(partitionPath, mountPoint, "vfat", false); err != nil {
		os.RemoveAll(mountPoint)
		return "", errs.Device(errs.Filesystem, partitionPath, "failed to mount partition for extraction", err)
	}
	extracted := false
	defer func() {
		if !extracted {
			unmountAndClean(mountPoint, mounter, logger)
		}
	}()

	f, err := os.Open(isoPath)
	if err != nil {
		return mountPoint, errs.File(errs.FileIo, isoPath, "cannot open ISO for extraction", err)
	}
	defer f.Close()

	image, err := iso9660.Open(f)
	if err != nil {
		return mountPoint, errs.File(errs.Analysis, isoPath, "cannot parse ISO9660 filesystem", err)
	}
	defer image.Close()

	if err := image.Extract(mountPoint); err != nil {
		return mountPoint, errs.File(errs.FileIo, isoPath, "failed to extract ISO contents", err)
	}

	extracted = true
	logger.Info("ISO contents extracted")
	return mountPoint, nil
}

func unmountAndClean(mountPoint string, mounter device.Mounter, logger *logging.Logger) {
	if err := mounter.Unmount(mountPoint, false); err != nil {
		logger.Info("failed to unmount extraction mount point", "error", err)
	}
	os.RemoveAll(mountPoint)
}
