package kernel

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func fixtureScoops(seed int64, nonceCount uint64) []byte {
	r := rand.New(rand.NewSource(seed))
	buf := make([]byte, nonceCount*ScoopSize)
	r.Read(buf)
	return buf
}

func TestAllVariantsAgree(t *testing.T) {
	scoops := fixtureScoops(1, 32)
	var gensig [32]byte
	copy(gensig[:], []byte("the-generation-signature-fixture"))

	var deadlines []uint64
	var offsets []uint64
	for _, v := range []Variant{VariantScalar, VariantSSE2, VariantAVX, VariantAVX2} {
		d, o := variants[v](scoops, 32, gensig)
		deadlines = append(deadlines, d)
		offsets = append(offsets, o)
	}

	for i := 1; i < len(deadlines); i++ {
		require.Equal(t, deadlines[0], deadlines[i], "variant %d disagreed on deadline", i)
		require.Equal(t, offsets[0], offsets[i], "variant %d disagreed on offset", i)
	}
}

func TestFindBestDeadlineUsesResolvedVariant(t *testing.T) {
	scoops := fixtureScoops(2, 16)
	var gensig [32]byte

	d1, o1 := FindBestDeadline(scoops, 16, gensig)
	d2, o2 := variants[VariantScalar](scoops, 16, gensig)
	require.Equal(t, d2, d1)
	require.Equal(t, o2, o1)
}

func TestPadReplicatesFirstByte(t *testing.T) {
	buf := make([]byte, 64)
	buf[0] = 0x42
	for i := 1; i < 40; i++ {
		buf[i] = byte(i)
	}

	padded := Pad(buf, 40, 64)
	require.Equal(t, 24, padded)
	for i := 40; i < 64; i++ {
		require.Equal(t, byte(0x42), buf[i])
	}
}

func TestPadNoOpWhenAligned(t *testing.T) {
	buf := make([]byte, 64)
	require.Equal(t, 0, Pad(buf, 64, 64))
}

func TestResolveReturnsSupportedVariant(t *testing.T) {
	v, fn := resolve()
	require.NotNil(t, fn)
	require.Contains(t, []Variant{VariantAVX2, VariantAVX, VariantSSE2, VariantScalar}, v)
}
