package coordinator

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"scavenge/internal/pipeline"
)

func gensigHex(b byte) string {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = b
	}
	return hex.EncodeToString(raw)
}

func TestFetchMiningInfoStringFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"generationSignature":"%s","baseTarget":"12345","height":"100","targetDeadline":31536000}`, gensigHex(0xAB))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", ^uint64(0), time.Second, zerolog.Nop())
	round, err := c.FetchMiningInfo(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(100), round.Height)
	require.Equal(t, uint64(12345), round.BaseTarget)
	require.Equal(t, uint64(31536000), round.TargetDeadline)
}

func TestFetchMiningInfoIntFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"generationSignature":"%s","baseTarget":12345,"height":100}`, gensigHex(0xCD))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", ^uint64(0), time.Second, zerolog.Nop())
	round, err := c.FetchMiningInfo(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(100), round.Height)
	require.Equal(t, ^uint64(0), round.TargetDeadline)
}

func TestFetchMiningInfoBadGenSig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"generationSignature":"not-hex","baseTarget":1,"height":1}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", ^uint64(0), time.Second, zerolog.Nop())
	_, err := c.FetchMiningInfo(context.Background())
	require.Error(t, err)
}

func TestObserveRoundDetectsChange(t *testing.T) {
	c := NewClient("http://example.invalid", "", ^uint64(0), time.Second, zerolog.Nop())

	r1 := Round{Height: 1, TargetDeadline: ^uint64(0)}
	require.True(t, c.observeRound(r1))
	require.False(t, c.observeRound(r1))

	r2 := Round{Height: 2, TargetDeadline: ^uint64(0)}
	require.True(t, c.observeRound(r2))
}

func TestConsiderTracksBestPerHeight(t *testing.T) {
	c := NewClient("http://example.invalid", "", ^uint64(0), time.Second, zerolog.Nop())
	c.observeRound(Round{Height: 5, TargetDeadline: 10, BaseTarget: 100})

	require.True(t, c.Consider(pipeline.NonceData{Height: 5, Deadline: 500}))
	require.False(t, c.Consider(pipeline.NonceData{Height: 5, Deadline: 600}))
	require.True(t, c.Consider(pipeline.NonceData{Height: 5, Deadline: 200}))
	require.False(t, c.Consider(pipeline.NonceData{Height: 5, Deadline: 2000}))
}

func TestConsiderDropsStaleHeight(t *testing.T) {
	c := NewClient("http://example.invalid", "", ^uint64(0), time.Second, zerolog.Nop())
	c.observeRound(Round{Height: 5, TargetDeadline: ^uint64(0), BaseTarget: 1})

	require.False(t, c.Consider(pipeline.NonceData{Height: 4, Deadline: 1}))
}

func TestComputeScoopInRange(t *testing.T) {
	var gensig [32]byte
	copy(gensig[:], []byte("fixture-generation-signature-32"))

	scoop := computeScoop(gensig, 100)
	require.Less(t, scoop, uint32(4096))
}
