// Package device implements the Block Device Gateway: opening, sizing,
// wiping and syncing a whole-disk node, enumerating mounts, and
// triggering a kernel partition table re-read.
package device

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/JeckAsChristopher/MyISO/pkg/errs"
	"github.com/JeckAsChristopher/MyISO/pkg/logging"
)

const (
	wipeRegionBytes   = 10 * 1024 * 1024
	wipeChunkBytes    = 1 * 1024 * 1024
	rereadMaxAttempts = 5
	rereadPollDelay   = 1 * time.Second
)

var nvmeOrMMC = regexp.MustCompile(`(nvme\d+n\d+|mmcblk\d+)$`)

// Descriptor identifies a whole-disk block node acquired for the
// duration of one run. It carries no process-wide state.
type Descriptor struct {
	Path   string
	Logger *logging.Logger
}

// New acquires a device descriptor for path, validating it is a block
// special node.
func New(path string, logger *logging.Logger) (*Descriptor, error) {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	if err := Validate(path); err != nil {
		return nil, err
	}
	return &Descriptor{Path: path, Logger: logger}, nil
}

// Validate fails with InvalidDevice unless path refers to a block special node.
func Validate(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errs.Device(errs.InvalidDevice, path, "cannot stat device", err)
	}
	if info.Mode()&os.ModeDevice == 0 || info.Mode()&os.ModeCharDevice != 0 {
		return errs.New(errs.InvalidDevice, fmt.Sprintf("%s is not a block special node", path))
	}
	return nil
}

// SizeBytes reads the kernel's sector count from
// /sys/class/block/<basename>/size and multiplies by 512.
func SizeBytes(path string) (uint64, error) {
	base := filepath.Base(path)
	sizeFile := filepath.Join("/sys/class/block", base, "size")
	raw, err := os.ReadFile(sizeFile)
	if err != nil {
		return 0, errs.Device(errs.DeviceIo, path, "cannot read device size", err)
	}
	sectors, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, errs.Device(errs.DeviceIo, path, "malformed sysfs size value", err)
	}
	return sectors * 512, nil
}

// IsMounted is true if any line of /proc/mounts has a source path
// beginning with path (prefix match, not whole-string).
func IsMounted(path string) (bool, error) {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return false, errs.Device(errs.DeviceIo, path, "cannot read mount table", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 1 {
			continue
		}
		if strings.HasPrefix(fields[0], path) {
			return true, nil
		}
	}
	return false, nil
}

// Mounter shells out to mount/umount. Production code spawns a
// subprocess; tests substitute a recording implementation.
type Mounter interface {
	Unmount(target string, lazy bool) error
	Mount(source, target, fsType string, readOnly bool) error
}

// UnmountAll unmounts every child of path best-effort; if any remain
// mounted, retries with lazy/detach semantics. Always returns nil even
// when nothing was mounted.
func UnmountAll(path string, m Mounter, logger *logging.Logger) error {
	mounted, err := IsMounted(path)
	if err != nil {
		return err
	}
	if !mounted {
		return nil
	}

	logger.Info("unmounting device", "device", path)
	unmountChildren := func(lazy bool) {
		raw, _ := os.ReadFile("/proc/mounts")
		for _, line := range strings.Split(string(raw), "\n") {
			if fields := strings.Fields(line); len(fields) > 0 && strings.HasPrefix(fields[0], path) {
				_ = m.Unmount(fields[0], lazy)
			}
		}
	}
	unmountChildren(false)

	time.Sleep(1 * time.Second)

	mounted, err = IsMounted(path)
	if err != nil {
		return err
	}
	if mounted {
		logger.Info("failed to unmount device cleanly, forcing lazy unmount", "device", path)
		unmountChildren(true)
	}
	return nil
}

// Wipe zero-fills the first 10 MiB and the last 10 MiB of the device
// (covers MBR, GPT primary and backup, most filesystem signatures),
// both in 1 MiB chunks, fsync'd, and then asks the kernel to re-read
// the now-blank partition table via RereadPartitions.
func Wipe(path string, logger *logging.Logger) error {
	logger.Info("wiping device", "device", path)

	size, err := SizeBytes(path)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_SYNC, 0)
	if err != nil {
		return errs.Device(errs.DeviceIo, path, "cannot open device for wipe", err)
	}
	defer f.Close()

	zero := make([]byte, wipeChunkBytes)

	writeRegion := func(offset int64, length int64) error {
		remaining := length
		for remaining > 0 {
			chunk := int64(wipeChunkBytes)
			if remaining < chunk {
				chunk = remaining
			}
			n, werr := f.WriteAt(zero[:chunk], offset)
			if werr != nil {
				return errs.Device(errs.DeviceIo, path, "short write during wipe", werr)
			}
			if int64(n) != chunk {
				return errs.Device(errs.DeviceIo, path, "short write during wipe", nil)
			}
			offset += chunk
			remaining -= chunk
		}
		return nil
	}

	if err := writeRegion(0, wipeRegionBytes); err != nil {
		return err
	}
	tailStart := int64(size) - wipeRegionBytes
	if tailStart < wipeRegionBytes {
		tailStart = wipeRegionBytes
	}
	if err := writeRegion(tailStart, int64(size)-tailStart); err != nil {
		return err
	}

	if err := f.Sync(); err != nil {
		return errs.Device(errs.DeviceIo, path, "fsync failed after wipe", err)
	}

	return RereadPartitions(path, nil, nil, logger)
}

// Rescanner triggers a kernel partition-table rescan via ioctl and/or a
// partprobe-class external utility.
type Rescanner interface {
	Partprobe(path string) error
}

// RereadPartitions opens the device read-only, asks the kernel to
// re-scan via BLKRRPART, then polls sysfs for up to N seconds waiting
// for the expected child partition nodes to appear. It also invokes a
// partprobe-equivalent tool as a second channel.
func RereadPartitions(path string, expectedPartitions []string, r Rescanner, logger *logging.Logger) error {
	logger.Info("requesting kernel partition re-read", "device", path)

	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return errs.Device(errs.DeviceIo, path, "cannot open device for rescan", err)
	}
	defer unix.Close(fd)

	if err := unix.IoctlSetInt(fd, unix.BLKRRPART, 0); err != nil {
		logger.Info("BLKRRPART ioctl failed, relying on partprobe", "device", path, "error", err)
	}

	if r != nil {
		_ = r.Partprobe(path)
	}

	for attempt := 0; attempt < rereadMaxAttempts; attempt++ {
		allPresent := true
		for _, part := range expectedPartitions {
			if _, statErr := os.Stat(filepath.Join("/sys/class/block", filepath.Base(part))); statErr != nil {
				allPresent = false
				break
			}
		}
		if allPresent {
			return nil
		}
		time.Sleep(rereadPollDelay)
	}

	if len(expectedPartitions) > 0 {
		return errs.Device(errs.DeviceIo, path, "partition nodes did not appear after rescan", nil)
	}
	return nil
}

// PartitionPath returns device + "p" + index when the device basename
// matches nvme*/mmcblk*, else device + index.
func PartitionPath(devicePath string, index int) string {
	if nvmeOrMMC.MatchString(devicePath) {
		return fmt.Sprintf("%sp%d", devicePath, index)
	}
	return fmt.Sprintf("%s%d", devicePath, index)
}

// Sync performs a global sync then flushes buffers for this specific device.
func Sync(path string, logger *logging.Logger) error {
	logger.Info("syncing device buffers", "device", path)
	unix.Sync()

	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return errs.Device(errs.DeviceIo, path, "cannot open device to flush buffers", err)
	}
	defer unix.Close(fd)

	if err := unix.IoctlSetInt(fd, unix.BLKFLSBUF, 0); err != nil {
		logger.Info("BLKFLSBUF ioctl failed", "device", path, "error", err)
	}
	return nil
}
