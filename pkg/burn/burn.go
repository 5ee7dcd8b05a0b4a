// Package burn implements the Burn Engine (C6): transfers the ISO
// image onto the target device either through a 4 MiB aligned buffered
// copy loop or through the kernel's zero-copy CopyFileRange, then
// fsyncs and issues a global sync.
package burn

import (
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/JeckAsChristopher/MyISO/pkg/errs"
	"github.com/JeckAsChristopher/MyISO/pkg/logging"
	"github.com/JeckAsChristopher/MyISO/pkg/option"
)

// Mode selects the transfer strategy, mirroring ISOBurner::BurnMode.
type Mode int

const (
	// Buffered reads into an aligned buffer and writes it back out,
	// tracking short writes explicitly.
	Buffered Mode = iota
	// ZeroCopy uses CopyFileRange, falling back to Buffered on EXDEV/ENOSYS.
	ZeroCopy
)

const (
	bufferedChunkSize = 4 * 1024 * 1024
	zeroCopyChunkSize = 16 * 1024 * 1024
	minValidISOSize   = 1024
	iso9660Offset     = 32768
)

// ProgressCallback reuses the shape of option.ExtractionProgressCallback;
// currentFileNumber/totalFileCount are always 1/1 since a burn transfers
// exactly one image.
type ProgressCallback = option.ExtractionProgressCallback

// ValidateISO opens isoPath, rejects images smaller than 1 KiB, and
// warns (does not fail) if the ISO9660 "CD001" signature is absent at
// sector 16, mirroring ISOBurner::validateISO.
func ValidateISO(isoPath string, logger *logging.Logger) error {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	info, err := os.Stat(isoPath)
	if err != nil {
		return errs.File(errs.FileIo, isoPath, "cannot open file", err)
	}
	if info.Size() < minValidISOSize {
		return errs.File(errs.InvalidArgument, isoPath, "file too small to be a valid ISO", nil)
	}

	f, err := os.Open(isoPath)
	if err != nil {
		return errs.File(errs.FileIo, isoPath, "cannot open file", err)
	}
	defer f.Close()

	sig := make([]byte, 5)
	if _, err := f.ReadAt(sig, iso9660Offset); err == nil {
		if string(sig) != "CD001" {
			logger.Info("file may not be a valid ISO 9660 image", "iso", isoPath)
		}
	}
	return nil
}

// Burn transfers isoPath onto devicePath using mode, invoking progress
// after each chunk. It always fsyncs the output and issues a global
// sync on success, mirroring ISOBurner::burnISO's post-write steps.
func Burn(isoPath, devicePath string, mode Mode, progress ProgressCallback, logger *logging.Logger) error {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	if err := ValidateISO(isoPath, logger); err != nil {
		return err
	}

	switch mode {
	case ZeroCopy:
		return burnZeroCopy(isoPath, devicePath, progress, logger)
	default:
		return burnBuffered(isoPath, devicePath, progress, logger)
	}
}

func openInputOutput(isoPath, devicePath string) (*os.File, *os.File, error) {
	in, err := os.Open(isoPath)
	if err != nil {
		return nil, nil, errs.File(errs.FileIo, isoPath, "cannot open ISO file", err)
	}
	out, err := os.OpenFile(devicePath, os.O_WRONLY|os.O_SYNC, 0)
	if err != nil {
		in.Close()
		return nil, nil, errs.Device(errs.DeviceIo, devicePath, "cannot open device for writing", err)
	}
	return in, out, nil
}

func finish(in, out *os.File, devicePath string, logger *logging.Logger) error {
	if err := out.Sync(); err != nil {
		in.Close()
		out.Close()
		return errs.Device(errs.DeviceIo, devicePath, "fsync failed after burn", err)
	}
	in.Close()
	out.Close()
	unix.Sync()
	logger.Info("ISO burned successfully", "device", devicePath)
	return nil
}

// burnBuffered reads into a 4 MiB buffer and writes it back out,
// looping on short writes rather than treating them as failures.
func burnBuffered(isoPath, devicePath string, progress ProgressCallback, logger *logging.Logger) error {
	logger.Info("burning ISO with buffered I/O", "device", devicePath)

	in, out, err := openInputOutput(isoPath, devicePath)
	if err != nil {
		return err
	}

	info, err := in.Stat()
	if err != nil {
		in.Close()
		out.Close()
		return errs.File(errs.FileIo, isoPath, "cannot stat ISO", err)
	}
	totalSize := info.Size()

	buffer := make([]byte, bufferedChunkSize)
	var written int64

	for {
		n, readErr := in.Read(buffer)
		if n > 0 {
			totalWritten := 0
			for totalWritten < n {
				w, writeErr := out.Write(buffer[totalWritten:n])
				if writeErr != nil {
					in.Close()
					out.Close()
					return errs.Device(errs.DeviceIo, devicePath, "write operation failed", writeErr)
				}
				totalWritten += w
			}
			written += int64(n)
			if progress != nil {
				progress("iso image", written, totalSize, 1, 1)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			in.Close()
			out.Close()
			return errs.File(errs.FileIo, isoPath, "read operation failed", readErr)
		}
	}

	return finish(in, out, devicePath, logger)
}

// burnZeroCopy uses CopyFileRange in 16 MiB chunks, falling back to the
// buffered path on EXDEV (cross-filesystem) or ENOSYS.
func burnZeroCopy(isoPath, devicePath string, progress ProgressCallback, logger *logging.Logger) error {
	logger.Info("burning ISO with zero-copy I/O", "device", devicePath)

	in, out, err := openInputOutput(isoPath, devicePath)
	if err != nil {
		return err
	}

	info, err := in.Stat()
	if err != nil {
		in.Close()
		out.Close()
		return errs.File(errs.FileIo, isoPath, "cannot stat ISO", err)
	}
	totalSize := info.Size()

	var written int64
	for written < totalSize {
		toWrite := int(zeroCopyChunkSize)
		if remaining := totalSize - written; remaining < int64(toWrite) {
			toWrite = int(remaining)
		}

		n, copyErr := unix.CopyFileRange(int(in.Fd()), nil, int(out.Fd()), nil, toWrite, 0)
		if copyErr != nil {
			if copyErr == unix.EXDEV || copyErr == unix.ENOSYS || copyErr == unix.EINVAL {
				in.Close()
				out.Close()
				logger.Info("zero-copy not supported, falling back to buffered mode", "device", devicePath)
				return burnBuffered(isoPath, devicePath, progress, logger)
			}
			in.Close()
			out.Close()
			return errs.Device(errs.DeviceIo, devicePath, "zero-copy write operation failed", copyErr)
		}
		if n <= 0 {
			in.Close()
			out.Close()
			logger.Info("zero-copy returned no progress, falling back to buffered mode", "device", devicePath)
			return burnBuffered(isoPath, devicePath, progress, logger)
		}

		written += int64(n)
		if progress != nil {
			progress("iso image", written, totalSize, 1, 1)
		}
	}

	return finish(in, out, devicePath, logger)
}
