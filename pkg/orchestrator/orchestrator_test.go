package orchestrator

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JeckAsChristopher/MyISO/pkg/analyzer"
	"github.com/JeckAsChristopher/MyISO/pkg/device"
	"github.com/JeckAsChristopher/MyISO/pkg/errs"
	"github.com/JeckAsChristopher/MyISO/pkg/fswriter"
	"github.com/JeckAsChristopher/MyISO/pkg/option"
)

// stubDeviceSize overrides deviceSizeBytes for the duration of a test so
// a plain temp file can stand in for a block device without touching
// /sys/class/block.
func stubDeviceSize(t *testing.T, sizeBytes uint64) {
	t.Helper()
	orig := deviceSizeBytes
	deviceSizeBytes = func(string) (uint64, error) { return sizeBytes, nil }
	t.Cleanup(func() { deviceSizeBytes = orig })
}

func writeTempISO(t *testing.T, size int) string {
	t.Helper()
	f, err := os.CreateTemp("", "orch-iso-*.iso")
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(f.Name()) })
	require.NoError(t, f.Truncate(int64(size)))
	require.NoError(t, f.Close())
	return f.Name()
}

func baseConfig(isoPath, devicePath string) Config {
	return Config{
		ISOPath:    isoPath,
		DevicePath: devicePath,
		Options:    option.DefaultOrchestratorOptions(),
		Mounter:    &device.RecordingMounter{},
		Rescanner:  &device.RecordingRescanner{},
		Formatter:  &fswriter.RecordingFormatter{},
	}
}

func TestPreflightSpaceCheckRejectsInsufficientSpace(t *testing.T) {
	iso := writeTempISO(t, 2*oneMiB)
	cfg := baseConfig(iso, "/dev/fake")
	stubDeviceSize(t, 50*oneMiB) // 50 MiB device, 2 MiB ISO + 100 MiB margin required

	fp := analyzer.Fingerprint{ISODataSize: 2 * oneMiB}
	err := preflightSpaceCheck(cfg, fp)
	require.Error(t, err)
}

func TestPreflightSpaceCheckAcceptsSufficientSpace(t *testing.T) {
	iso := writeTempISO(t, 2*oneMiB)
	cfg := baseConfig(iso, "/dev/fake")
	stubDeviceSize(t, 4*1024*oneMiB) // 4 GiB device

	fp := analyzer.Fingerprint{ISODataSize: 2 * oneMiB}
	require.NoError(t, preflightSpaceCheck(cfg, fp))
}

func TestPreflightSpaceCheckAccountsForPersistence(t *testing.T) {
	iso := writeTempISO(t, 100*oneMiB)
	cfg := baseConfig(iso, "/dev/fake")
	cfg.Options.Persistence = true
	cfg.Options.PersistenceSizeMB = 900
	stubDeviceSize(t, 1024*oneMiB) // 1 GiB: 100 + 900 + 100 margin > 1024

	fp := analyzer.Fingerprint{ISODataSize: 100 * oneMiB}
	err := preflightSpaceCheck(cfg, fp)
	require.Error(t, err)
}

func TestPreflightSpaceCheckReportsFilesystemErrorWithShortfallBreakdown(t *testing.T) {
	iso := writeTempISO(t, 3000*oneMiB)
	cfg := baseConfig(iso, "/dev/fake")
	cfg.Options.Persistence = true
	cfg.Options.PersistenceSizeMB = 1024
	stubDeviceSize(t, 3500*oneMiB)

	fp := analyzer.Fingerprint{ISODataSize: 3000 * oneMiB}
	err := preflightSpaceCheck(cfg, fp)
	require.Error(t, err)

	var target *errs.Error
	require.ErrorAs(t, err, &target)
	require.Equal(t, errs.Filesystem, target.Kind)
	require.Contains(t, target.Message, "Required: 4124 MiB")
	require.Contains(t, target.Message, "Shortage: 624 MiB")
}

func TestRunFailsFastOnInsufficientSpaceBeforeTouchingDevice(t *testing.T) {
	iso := writeTempISO(t, 500*oneMiB)
	cfg := baseConfig(iso, "/dev/fake")
	stubDeviceSize(t, 200*oneMiB)

	result, err := Run(cfg)
	require.Error(t, err)
	require.Equal(t, analyzer.Strategy(0), result.Strategy)

	mounter := cfg.Mounter.(*device.RecordingMounter)
	require.Empty(t, mounter.UnmountCalls, "device must not be touched once the space check fails")
}

func TestBurnModeSelectsZeroCopyOnlyWhenFast(t *testing.T) {
	require.Equal(t, 1, int(burnMode(true)))
	require.NotEqual(t, burnMode(true), burnMode(false))
}
