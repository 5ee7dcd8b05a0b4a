package burn

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTempISO(t *testing.T, size int) string {
	t.Helper()
	f, err := os.CreateTemp("", "burn-src-*.iso")
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(f.Name()) })

	data := bytes.Repeat([]byte{0xAB}, size)
	copy(data[iso9660Offset:], []byte("CD001"))
	require.NoError(t, os.WriteFile(f.Name(), data, 0o644))
	require.NoError(t, f.Close())
	return f.Name()
}

func newTempDevice(t *testing.T, size int64) string {
	t.Helper()
	f, err := os.CreateTemp("", "burn-dst-*.img")
	require.NoError(t, err)
	require.NoError(t, f.Truncate(size))
	require.NoError(t, f.Close())
	t.Cleanup(func() { os.Remove(f.Name()) })
	return f.Name()
}

func TestValidateISORejectsTooSmall(t *testing.T) {
	f, err := os.CreateTemp("", "burn-tiny-*.iso")
	require.NoError(t, err)
	defer os.Remove(f.Name())
	require.NoError(t, f.Truncate(100))
	require.NoError(t, f.Close())

	err = ValidateISO(f.Name(), nil)
	require.Error(t, err)
}

func TestBurnBufferedCopiesExactBytes(t *testing.T) {
	size := bufferedChunkSize*2 + 777
	src := writeTempISO(t, size)
	dst := newTempDevice(t, int64(size))

	var lastBytes int64
	progress := func(name string, transferred, total int64, fileNum, fileCount int) {
		lastBytes = transferred
	}

	require.NoError(t, Burn(src, dst, Buffered, progress, nil))
	require.Equal(t, int64(size), lastBytes)

	srcBytes, err := os.ReadFile(src)
	require.NoError(t, err)
	dstBytes, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, srcBytes, dstBytes)
}

func TestBurnZeroCopyCopiesExactBytes(t *testing.T) {
	size := 1024 * 1024
	src := writeTempISO(t, size)
	dst := newTempDevice(t, int64(size))

	require.NoError(t, Burn(src, dst, ZeroCopy, nil, nil))

	srcBytes, err := os.ReadFile(src)
	require.NoError(t, err)
	dstBytes, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, srcBytes, dstBytes)
}
