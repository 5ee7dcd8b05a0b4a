package device

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JeckAsChristopher/MyISO/pkg/logging"
)

func TestValidateRejectsNonexistentPath(t *testing.T) {
	err := Validate("/nonexistent/path/for/device-test")
	require.Error(t, err)
}

func TestValidateRejectsRegularFile(t *testing.T) {
	f, err := os.CreateTemp("", "device-validate-*")
	require.NoError(t, err)
	defer os.Remove(f.Name())
	f.Close()

	err = Validate(f.Name())
	require.Error(t, err)
}

func TestPartitionPathAppendsIndexDirectly(t *testing.T) {
	require.Equal(t, "/dev/sdb1", PartitionPath("/dev/sdb", 1))
	require.Equal(t, "/dev/sdb2", PartitionPath("/dev/sdb", 2))
}

func TestPartitionPathInsertsPBeforeIndexForNVMe(t *testing.T) {
	require.Equal(t, "/dev/nvme0n1p1", PartitionPath("/dev/nvme0n1", 1))
}

func TestPartitionPathInsertsPBeforeIndexForMMC(t *testing.T) {
	require.Equal(t, "/dev/mmcblk0p1", PartitionPath("/dev/mmcblk0", 1))
}

func TestUnmountAllSkipsWhenNothingMounted(t *testing.T) {
	m := &RecordingMounter{}
	err := UnmountAll("/dev/mkbootmedia-device-test-unmounted", m, logging.DefaultLogger())
	require.NoError(t, err)
	require.Empty(t, m.UnmountCalls, "Unmount must not be called when the device isn't mounted")
}

func TestIsMountedIsFalseForUnknownSource(t *testing.T) {
	// The device gateway matches by source-path prefix against
	// /proc/mounts; a path that no mount source starts with is not mounted.
	mounted, err := IsMounted("/this/path/will/never/appear/as/a/mount/source")
	require.NoError(t, err)
	require.False(t, mounted)
}

func TestNewRejectsInvalidDevice(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "not-a-device"), nil)
	require.Error(t, err)
}
