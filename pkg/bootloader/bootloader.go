// Package bootloader implements the Bootloader Placer (C7): detects
// whether an ISO carries a Syslinux/Isolinux or GRUB boot catalog,
// writes the matching menu configuration to the first partition, and
// lays down the exact Syslinux MBR boot stub.
package bootloader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JeckAsChristopher/MyISO/pkg/device"
	"github.com/JeckAsChristopher/MyISO/pkg/errs"
	"github.com/JeckAsChristopher/MyISO/pkg/logging"
)

// Type is the bootloader family to install, mirroring Bootloader::BootType.
type Type int

const (
	Syslinux Type = iota
	Isolinux
	GRUB
)

const bootDetectScanSize = 32768

// syslinuxMBRCode is the exact 55-byte x86 boot stub from
// getSyslinuxMBRCode, zero-padded to the full 440-byte MBR boot-code
// region on write.
var syslinuxMBRCode = []byte{
	0xFA, 0x31, 0xC0, 0x8E, 0xD8, 0x8E, 0xC0, 0x8E, 0xD0, 0xBC, 0x00, 0x7C,
	0xFB, 0xFC, 0xBF, 0x00, 0x06, 0xB9, 0x00, 0x01, 0xF3, 0xA5, 0xEA, 0x1F,
	0x06, 0x00, 0x00, 0xB4, 0x41, 0xBB, 0xAA, 0x55, 0xCD, 0x13, 0x72, 0x3E,
	0x81, 0xFB, 0x55, 0xAA, 0x75, 0x38, 0x83, 0xE1, 0x01, 0x74, 0x33, 0x66,
	0xA1, 0x10, 0x7C, 0x66, 0x3B, 0x46, 0xF8, 0x0F, 0x82, 0x2A, 0x00,
}

const mbrBootCodeSize = 440

const syslinuxCfg = `DEFAULT menu.c32
PROMPT 0
TIMEOUT 300

MENU TITLE MyISO Boot Menu
MENU BACKGROUND splash.png

LABEL linux
  MENU LABEL Boot Linux
  KERNEL /casper/vmlinuz
  APPEND initrd=/casper/initrd boot=casper quiet splash ---

LABEL persistent
  MENU LABEL Boot with Persistence
  KERNEL /casper/vmlinuz
  APPEND initrd=/casper/initrd boot=casper persistent quiet splash ---
`

const grubCfg = `set timeout=10
set default=0

menuentry "Boot Linux" {
  linux /casper/vmlinuz boot=casper quiet splash ---
  initrd /casper/initrd
}

menuentry "Boot with Persistence" {
  linux /casper/vmlinuz boot=casper persistent quiet splash ---
  initrd /casper/initrd
}
`

// DetectBootType scans the first 32 KiB of isoPath for ISOLINUX/SYSLINUX
// or GRUB signatures, defaulting to Syslinux when neither is found,
// mirroring BootloaderInstaller::detectBootType.
func DetectBootType(isoPath string, logger *logging.Logger) (Type, error) {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	logger.Info("detecting bootloader type from ISO", "iso", isoPath)

	f, err := os.Open(isoPath)
	if err != nil {
		return Syslinux, errs.File(errs.FileIo, isoPath, "cannot open ISO for boot detection", err)
	}
	defer f.Close()

	buf := make([]byte, bootDetectScanSize)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return Syslinux, errs.File(errs.FileIo, isoPath, "cannot read ISO for boot detection", err)
	}
	content := string(buf[:n])

	if strings.Contains(content, "ISOLINUX") || strings.Contains(content, "SYSLINUX") {
		logger.Info("detected SYSLINUX/ISOLINUX bootloader")
		return Syslinux, nil
	}
	if strings.Contains(content, "GRUB") {
		logger.Info("detected GRUB bootloader")
		return GRUB, nil
	}
	logger.Info("using SYSLINUX as default bootloader")
	return Syslinux, nil
}

// Install mounts the device's first partition, writes the matching
// menu configuration, and for Syslinux/Isolinux also writes the boot
// stub to the MBR, mirroring BootloaderInstaller::makeBootable.
func Install(devicePath string, bootType Type, mounter device.Mounter, logger *logging.Logger) error {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	logger.Info("making device bootable", "device", devicePath)

	switch bootType {
	case GRUB:
		return installGrub(devicePath, mounter, logger)
	default:
		return installSyslinux(devicePath, mounter, logger)
	}
}

func mountPointFor(devicePath string) string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("myiso_boot_%d", os.Getpid()))
}

func installSyslinux(devicePath string, mounter device.Mounter, logger *logging.Logger) error {
	logger.Info("installing SYSLINUX bootloader")

	mountPoint := mountPointFor(devicePath)
	if err := os.MkdirAll(mountPoint, 0o755); err != nil {
		return errs.Device(errs.Filesystem, devicePath, "cannot create bootloader mount point", err)
	}
	defer os.RemoveAll(mountPoint)

	partition := device.PartitionPath(devicePath, 1)
	if err := mounter.Mount(partition, mountPoint, "vfat", false); err != nil {
		return errs.Device(errs.Filesystem, devicePath, "failed to mount partition for bootloader installation", err)
	}
	defer mounter.Unmount(mountPoint, false)

	syslinuxDir := filepath.Join(mountPoint, "syslinux")
	if err := os.MkdirAll(syslinuxDir, 0o755); err != nil {
		return errs.Device(errs.Filesystem, devicePath, "cannot create syslinux directory", err)
	}
	if err := os.WriteFile(filepath.Join(syslinuxDir, "syslinux.cfg"), []byte(syslinuxCfg), 0o644); err != nil {
		return errs.Device(errs.Filesystem, devicePath, "failed to write syslinux.cfg", err)
	}

	if err := writeSyslinuxMBR(devicePath); err != nil {
		logger.Info("failed to write SYSLINUX MBR", "error", err)
	}

	logger.Info("SYSLINUX bootloader installed")
	return nil
}

func installGrub(devicePath string, mounter device.Mounter, logger *logging.Logger) error {
	logger.Info("installing GRUB bootloader")

	mountPoint := mountPointFor(devicePath)
	if err := os.MkdirAll(mountPoint, 0o755); err != nil {
		return errs.Device(errs.Filesystem, devicePath, "cannot create bootloader mount point", err)
	}
	defer os.RemoveAll(mountPoint)

	partition := device.PartitionPath(devicePath, 1)
	if err := mounter.Mount(partition, mountPoint, "vfat", false); err != nil {
		return errs.Device(errs.Filesystem, devicePath, "failed to mount partition for bootloader installation", err)
	}
	defer mounter.Unmount(mountPoint, false)

	grubDir := filepath.Join(mountPoint, "boot", "grub")
	if err := os.MkdirAll(grubDir, 0o755); err != nil {
		return errs.Device(errs.Filesystem, devicePath, "cannot create grub directory", err)
	}
	if err := os.WriteFile(filepath.Join(grubDir, "grub.cfg"), []byte(grubCfg), 0o644); err != nil {
		return errs.Device(errs.Filesystem, devicePath, "failed to write grub.cfg", err)
	}

	logger.Info("GRUB bootloader installed")
	return nil
}

// writeSyslinuxMBR writes the 55-byte boot stub (zero-padded to 440
// bytes) to the start of the device, leaving the rest of the MBR
// (disk signature, partition table, trailer) untouched.
func writeSyslinuxMBR(devicePath string) error {
	f, err := os.OpenFile(devicePath, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return errs.Device(errs.DeviceIo, devicePath, "cannot open device to write boot stub", err)
	}
	defer f.Close()

	var bootCode [mbrBootCodeSize]byte
	copy(bootCode[:], syslinuxMBRCode)

	if _, err := f.WriteAt(bootCode[:], 0); err != nil {
		return errs.Device(errs.DeviceIo, devicePath, "failed to write syslinux MBR boot code", err)
	}
	return f.Sync()
}
