package bootloader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JeckAsChristopher/MyISO/pkg/device"
)

func writeISOWithSignature(t *testing.T, signature string) string {
	t.Helper()
	f, err := os.CreateTemp("", "bootloader-*.iso")
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(f.Name()) })

	buf := make([]byte, bootDetectScanSize)
	if signature != "" {
		copy(buf[100:], []byte(signature))
	}
	require.NoError(t, os.WriteFile(f.Name(), buf, 0o644))
	require.NoError(t, f.Close())
	return f.Name()
}

func TestDetectBootTypeSyslinux(t *testing.T) {
	path := writeISOWithSignature(t, "ISOLINUX")
	bt, err := DetectBootType(path, nil)
	require.NoError(t, err)
	require.Equal(t, Syslinux, bt)
}

func TestDetectBootTypeGRUB(t *testing.T) {
	path := writeISOWithSignature(t, "GRUB2 EFI loader")
	bt, err := DetectBootType(path, nil)
	require.NoError(t, err)
	require.Equal(t, GRUB, bt)
}

func TestDetectBootTypeDefaultsToSyslinux(t *testing.T) {
	path := writeISOWithSignature(t, "")
	bt, err := DetectBootType(path, nil)
	require.NoError(t, err)
	require.Equal(t, Syslinux, bt)
}

func TestInstallSyslinuxWritesMBRStubAndRemovesMountPoint(t *testing.T) {
	f, err := os.CreateTemp("", "bootloader-dev-*.img")
	require.NoError(t, err)
	defer os.Remove(f.Name())
	require.NoError(t, f.Truncate(20*1024*1024))
	require.NoError(t, f.Close())

	mounter := &device.RecordingMounter{}
	require.NoError(t, Install(f.Name(), Syslinux, mounter, nil))

	require.Len(t, mounter.MountCalls, 1)
	require.Equal(t, "vfat", mounter.MountCalls[0].FSType)
	require.Len(t, mounter.UnmountCalls, 1)

	raw, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	require.Equal(t, syslinuxMBRCode, raw[0:len(syslinuxMBRCode)])

	// The menu is written under the temporary mount point, which Install
	// removes before returning, so nothing is left behind there.
	mountPoint := mountPointFor(f.Name())
	require.NoFileExists(t, filepath.Join(mountPoint, "syslinux", "syslinux.cfg"))
}
