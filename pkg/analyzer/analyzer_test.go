package analyzer

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JeckAsChristopher/MyISO/pkg/codec"
)

func writeSyntheticISO(t *testing.T, mbrPartitions bool, elTorito bool, uefi bool) string {
	t.Helper()
	f, err := os.CreateTemp("", "analyzer-*.iso")
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(f.Name()) })

	buf := make([]byte, 3*1024*1024)

	if mbrPartitions {
		m := codec.MBR{Signature: 0xAA55}
		m.Partitions[0] = codec.MBRPartitionEntry{Type: codec.PartitionTypeFAT32LBA, FirstLBA: 2048, SectorCount: 100000}
		sector := m.Marshal()
		copy(buf[0:512], sector[:])
		copy(buf[iso9660Offset:iso9660Offset+5], []byte("CD001"))
	}

	if elTorito {
		copy(buf[elToritoOffset:], []byte("EL TORITO BOOT CATALOG"))
	}

	if uefi {
		copy(buf[100:], []byte("EFI/BOOT/BOOTX64.EFI"))
	}

	require.NoError(t, os.WriteFile(f.Name(), buf, 0o644))
	require.NoError(t, f.Close())
	return f.Name()
}

func TestAnalyzeDetectsHybridISO(t *testing.T) {
	path := writeSyntheticISO(t, true, false, false)
	fp, err := Analyze(path, nil)
	require.NoError(t, err)
	require.True(t, fp.IsHybrid)
	require.Len(t, fp.EmbeddedPartitions, 1)
	require.Equal(t, "FAT32", fp.EmbeddedPartitions[0].Filesystem)
	require.Equal(t, HybridPreserve, DetermineStrategy(fp))
}

func TestAnalyzeDetectsElTorito(t *testing.T) {
	path := writeSyntheticISO(t, false, true, false)
	fp, err := Analyze(path, nil)
	require.NoError(t, err)
	require.True(t, fp.HasElTorito)
	require.False(t, fp.IsHybrid)
	require.Equal(t, SmartExtract, DetermineStrategy(fp))
}

func TestAnalyzeDetectsUEFI(t *testing.T) {
	path := writeSyntheticISO(t, false, false, true)
	fp, err := Analyze(path, nil)
	require.NoError(t, err)
	require.True(t, fp.HasUEFI)
	require.Equal(t, SmartExtract, DetermineStrategy(fp))
}

func TestAnalyzeDataOnlyISOFallsBackToRawCopy(t *testing.T) {
	path := writeSyntheticISO(t, false, false, false)
	fp, err := Analyze(path, nil)
	require.NoError(t, err)
	require.Equal(t, "Data Only", fp.BootType)
	require.Equal(t, RawCopy, DetermineStrategy(fp))
}

func TestAnalyzeMultiBootWhenUEFIAndLegacyBothPresent(t *testing.T) {
	path := writeSyntheticISO(t, false, true, true)
	fp, err := Analyze(path, nil)
	require.NoError(t, err)
	require.True(t, fp.IsMultiBoot)
	require.Equal(t, "Multi-Boot (UEFI + Legacy)", fp.BootType)
	require.Equal(t, Multipart, DetermineStrategy(fp))
}

func TestAnalyzeIsIdempotent(t *testing.T) {
	path := writeSyntheticISO(t, true, true, true)
	first, err := Analyze(path, nil)
	require.NoError(t, err)
	second, err := Analyze(path, nil)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestRequiredPartitionsAddsPersistence(t *testing.T) {
	fp := Fingerprint{}
	require.Equal(t, 1, RequiredPartitions(fp, false))
	require.Equal(t, 2, RequiredPartitions(fp, true))
}
