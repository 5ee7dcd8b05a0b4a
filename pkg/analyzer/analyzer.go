// Package analyzer implements the ISO Analyzer (C5): scans an ISO
// image for ISO9660/El-Torito/UEFI/hybrid-MBR signatures, builds a
// Fingerprint of what it found, and recommends a burn Strategy.
package analyzer

import (
	"os"
	"strings"

	"github.com/JeckAsChristopher/MyISO/pkg/codec"
	"github.com/JeckAsChristopher/MyISO/pkg/errs"
	"github.com/JeckAsChristopher/MyISO/pkg/filesystem"
	"github.com/JeckAsChristopher/MyISO/pkg/iso9660"
	"github.com/JeckAsChristopher/MyISO/pkg/logging"
)

const (
	elToritoOffset   = 34816
	elToritoScanSize = 2048
	iso9660Offset    = 32768
	uefiScanSize     = 1024 * 1024
	bootFileScanSize = 2 * 1024 * 1024
)

var bootFilePatterns = []string{
	"ISOLINUX.BIN", "isolinux.bin",
	"SYSLINUX.BIN", "syslinux.bin",
	"BOOTX64.EFI", "bootx64.efi",
	"BOOTIA32.EFI", "bootia32.efi",
	"GRUBX64.EFI", "grubx64.efi",
	"GRUB.CFG", "grub.cfg",
	"VMLINUZ", "vmlinuz",
	"INITRD", "initrd",
}

// EmbeddedPartition describes one MBR partition entry found inside an
// ISO's first 512 bytes, present when the image is a hybrid ISO.
type EmbeddedPartition struct {
	StartLBA    uint32
	SectorCount uint32
	Type        codec.PartitionType
	Bootable    bool
	Filesystem  string
}

// Strategy selects how the Burn Engine should transfer the image.
type Strategy int

const (
	RawCopy Strategy = iota
	SmartExtract
	HybridPreserve
	Multipart
)

func (s Strategy) String() string {
	switch s {
	case RawCopy:
		return "RawCopy"
	case SmartExtract:
		return "SmartExtract"
	case HybridPreserve:
		return "HybridPreserve"
	case Multipart:
		return "Multipart"
	default:
		return "Unknown"
	}
}

// Fingerprint is the complete analysis result for one ISO image.
type Fingerprint struct {
	IsHybrid           bool
	HasElTorito        bool
	HasUEFI            bool
	HasLegacyBoot      bool
	IsMultiBoot        bool
	ISODataSize        uint64
	EmbeddedPartitions []EmbeddedPartition
	BootFiles          []string
	BootType           string
}

// Analyze performs the four scans (ISO9660, El Torito, hybrid MBR,
// UEFI/boot-file) and derives the composite predicates, mirroring
// SmartAnalyzer::analyzeISO.
func Analyze(isoPath string, logger *logging.Logger) (Fingerprint, error) {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	logger.Info("performing deep analysis of ISO structure", "iso", isoPath)

	f, err := os.Open(isoPath)
	if err != nil {
		return Fingerprint{}, errs.File(errs.Analysis, isoPath, "cannot open ISO for analysis", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Fingerprint{}, errs.File(errs.Analysis, isoPath, "cannot stat ISO", err)
	}

	var fp Fingerprint
	fp.ISODataSize = uint64(info.Size())
	fp.HasElTorito = checkElTorito(f)
	fp.HasUEFI = checkUEFI(f, info.Size())
	fp.IsHybrid, fp.EmbeddedPartitions = checkHybridISO(f)
	fp.HasLegacyBoot = fp.HasElTorito || fp.IsHybrid
	fp.BootFiles = findBootFiles(f, info.Size())
	fp.IsMultiBoot = fp.HasUEFI && fp.HasLegacyBoot

	switch {
	case fp.IsMultiBoot:
		fp.BootType = "Multi-Boot (UEFI + Legacy)"
	case fp.HasUEFI:
		fp.BootType = "UEFI Only"
	case fp.HasElTorito:
		fp.BootType = "Legacy BIOS (El Torito)"
	case fp.IsHybrid:
		fp.BootType = "Hybrid ISO"
	default:
		fp.BootType = "Data Only"
	}

	logger.Info("ISO analysis complete",
		"type", fp.BootType, "hybrid", fp.IsHybrid, "uefi", fp.HasUEFI,
		"legacyBoot", fp.HasLegacyBoot, "embeddedPartitions", len(fp.EmbeddedPartitions))

	return fp, nil
}

func checkElTorito(f *os.File) bool {
	buf := make([]byte, elToritoScanSize)
	n, err := f.ReadAt(buf, elToritoOffset)
	if err != nil && n == 0 {
		return false
	}
	content := string(buf[:n])
	return strings.Contains(content, "EL TORITO") ||
		strings.Contains(content, "BOOT CATALOG") ||
		strings.Contains(content, "BOOTABLE")
}

func checkUEFI(f *os.File, fileSize int64) bool {
	scanSize := int64(uefiScanSize)
	if fileSize < scanSize {
		scanSize = fileSize
	}
	buf := make([]byte, scanSize)
	n, err := f.ReadAt(buf, 0)
	if err != nil && n == 0 {
		return false
	}
	content := string(buf[:n])
	return strings.Contains(content, "EFI/BOOT") ||
		strings.Contains(content, "efi/boot") ||
		strings.Contains(content, "BOOTX64.EFI") ||
		strings.Contains(content, "bootx64.efi") ||
		strings.Contains(content, "BOOTIA32.EFI")
}

func checkHybridISO(f *os.File) (bool, []EmbeddedPartition) {
	var mbrBuf [codec.MBRSize]byte
	if _, err := f.ReadAt(mbrBuf[:], 0); err != nil {
		return false, nil
	}
	mbr, err := codec.UnmarshalMBR(mbrBuf[:])
	if err != nil || !mbr.IsValid() {
		return false, nil
	}

	partitions := extractEmbeddedPartitions(mbr)
	if len(partitions) == 0 {
		return false, nil
	}

	var isoSig [6]byte
	if _, err := f.ReadAt(isoSig[:], iso9660Offset); err != nil {
		return false, partitions
	}
	hasISO9660 := string(isoSig[0:5]) == "CD001"

	return hasISO9660, partitions
}

func extractEmbeddedPartitions(mbr codec.MBR) []EmbeddedPartition {
	var partitions []EmbeddedPartition
	for _, p := range mbr.Partitions {
		if p.IsEmpty() {
			continue
		}
		var fs string
		switch p.Type {
		case codec.PartitionTypeFAT32, codec.PartitionTypeFAT32LBA:
			fs = "FAT32"
		case codec.PartitionTypeLinux:
			fs = "Linux"
		case codec.PartitionTypeEFISystem:
			fs = "EFI"
		default:
			fs = "Unknown"
		}
		partitions = append(partitions, EmbeddedPartition{
			StartLBA:    p.FirstLBA,
			SectorCount: p.SectorCount,
			Type:        p.Type,
			Bootable:    p.Status == 0x80,
			Filesystem:  fs,
		})
	}
	return partitions
}

func findBootFiles(f *os.File, fileSize int64) []string {
	scanSize := int64(bootFileScanSize)
	if fileSize < scanSize {
		scanSize = fileSize
	}
	buf := make([]byte, scanSize)
	n, err := f.ReadAt(buf, 0)
	if err != nil && n == 0 {
		return nil
	}
	content := string(buf[:n])

	var found []string
	for _, pattern := range bootFilePatterns {
		if strings.Contains(content, pattern) {
			found = append(found, pattern)
		}
	}
	return found
}

// RequiredPartitions estimates the number of partitions this ISO will
// need, mirroring SmartAnalyzer::calculateRequiredPartitions.
func RequiredPartitions(fp Fingerprint, withPersistence bool) int {
	partitions := 1

	if fp.IsHybrid && len(fp.EmbeddedPartitions) > 0 {
		partitions = len(fp.EmbeddedPartitions)
	}
	if fp.IsMultiBoot && partitions < 2 {
		partitions = 2
	}
	if fp.HasUEFI && !fp.IsHybrid && partitions < 2 {
		partitions = 2
	}
	if withPersistence {
		partitions++
	}
	return partitions
}

// DetermineStrategy implements the decision table of §4.5: hybrid with
// embedded partitions preserves them; multi-boot or more than one
// embedded partition spreads across several partitions; UEFI or El
// Torito alone gets its boot files extracted and reorganized;
// otherwise the image is copied byte-for-byte.
func DetermineStrategy(fp Fingerprint) Strategy {
	switch {
	case fp.IsHybrid && len(fp.EmbeddedPartitions) > 0:
		return HybridPreserve
	case fp.IsMultiBoot || len(fp.EmbeddedPartitions) > 1:
		return Multipart
	case fp.HasUEFI || fp.HasElTorito:
		return SmartExtract
	default:
		return RawCopy
	}
}

// BootEntries opens isoPath as an ISO9660 filesystem and returns its
// El Torito boot catalog entries, or nil when the image has no El
// Torito boot record. Analyze does not call it.
func BootEntries(isoPath string) ([]*filesystem.FileSystemEntry, error) {
	f, err := os.Open(isoPath)
	if err != nil {
		return nil, errs.File(errs.Analysis, isoPath, "cannot open ISO for boot entry listing", err)
	}
	defer f.Close()

	image, err := iso9660.Open(f)
	if err != nil {
		return nil, errs.File(errs.Analysis, isoPath, "cannot parse ISO9660 filesystem", err)
	}
	defer image.Close()

	if !image.HasElTorito() {
		return nil, nil
	}
	return image.ListBootEntries()
}

// RecommendedStrategyDescription returns a human-readable summary of
// the recommended approach, mirroring getRecommendedStrategy.
func RecommendedStrategyDescription(fp Fingerprint) string {
	switch {
	case fp.IsHybrid:
		return "Hybrid ISO detected - will preserve existing partition structure"
	case fp.IsMultiBoot:
		return "Multi-boot ISO - creating separate UEFI and Legacy partitions"
	case fp.HasUEFI:
		return "UEFI ISO - creating EFI system partition"
	case fp.HasElTorito:
		return "Legacy bootable ISO - creating single bootable partition"
	default:
		return "Data ISO - creating single data partition"
	}
}
