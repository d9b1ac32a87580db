package plotfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writePlot(t *testing.T, accountID, startNonce, nonces uint64) string {
	t.Helper()
	dir := t.TempDir()
	name := filepathJoinName(accountID, startNonce, nonces)
	path := filepath.Join(dir, name)

	size := nonces * ScoopsPerNonce * ScoopSize
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func filepathJoinName(accountID, startNonce, nonces uint64) string {
	return itoa(accountID) + "_" + itoa(startNonce) + "_" + itoa(nonces)
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

func TestParseFilename(t *testing.T) {
	account, start, nonces, err := ParseFilename("1234567890123456789_0_240")
	require.NoError(t, err)
	require.Equal(t, uint64(1234567890123456789), account)
	require.Equal(t, uint64(0), start)
	require.Equal(t, uint64(240), nonces)
}

func TestParseFilenameTrailingStaggerIgnored(t *testing.T) {
	_, _, nonces, err := ParseFilename("1_2_3_4")
	require.NoError(t, err)
	require.Equal(t, uint64(3), nonces)
}

func TestParseFilenameTooFewComponents(t *testing.T) {
	_, _, _, err := ParseFilename("1_2")
	require.Error(t, err)
}

func TestParseFilenameNonNumeric(t *testing.T) {
	_, _, _, err := ParseFilename("abc_0_1")
	require.Error(t, err)
}

func TestOpenValidatesSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "1_0_1")
	require.NoError(t, os.WriteFile(path, []byte("short"), 0o644))

	_, err := Open(path, false)
	require.Error(t, err)
}

func TestOpenAndReadFullScoop(t *testing.T) {
	path := writePlot(t, 1, 0, 2)

	p, err := Open(path, false)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Prepare(0))

	buf := make([]byte, 2*ScoopSize)
	n, startNonce, finished, err := p.Read(buf, 0)
	require.NoError(t, err)
	require.Equal(t, 2*ScoopSize, n)
	require.Equal(t, uint64(0), startNonce)
	require.True(t, finished)
}

// TestReadFallsBackToBufferedWhenNotSectorAligned covers spec.md scenario
// 6: a chunk size that isn't a multiple of DirectIOAlignment must still
// succeed by routing through the buffered handle, regardless of whether a
// real O_DIRECT handle was obtainable on this filesystem.
func TestReadFallsBackToBufferedWhenNotSectorAligned(t *testing.T) {
	path := writePlot(t, 1, 0, 20)

	p, err := Open(path, true)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Prepare(0))

	buf := make([]byte, 1000) // not a multiple of DirectIOAlignment (512)
	n, _, _, err := p.Read(buf, 0)
	require.NoError(t, err)
	require.Equal(t, 1000, n)
}

func TestReadInChunksAdvancesCursor(t *testing.T) {
	path := writePlot(t, 1, 100, 2)

	p, err := Open(path, false)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Prepare(1))

	buf := make([]byte, ScoopSize)
	n, startNonce, finished, err := p.Read(buf, 1)
	require.NoError(t, err)
	require.Equal(t, ScoopSize, n)
	require.Equal(t, uint64(100), startNonce)
	require.False(t, finished)

	n, startNonce, finished, err = p.Read(buf, 1)
	require.NoError(t, err)
	require.Equal(t, ScoopSize, n)
	require.Equal(t, uint64(101), startNonce)
	require.True(t, finished)
}
