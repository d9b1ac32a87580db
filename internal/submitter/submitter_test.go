package submitter

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"scavenge/internal/errs"
)

func TestSubmitSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "submitNonce", r.URL.Query().Get("requestType"))
		require.Equal(t, "900", r.URL.Query().Get("deadline"))
		fmt.Fprint(w, `{"deadline":900}`)
	}))
	defer srv.Close()

	s := New(srv.URL, "", time.Second, zerolog.Nop())
	err := s.Submit(context.Background(), 1, 2, 3, 900)
	require.NoError(t, err)
}

func TestSubmitSoloModeOmitsDeadlineParam(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.URL.Query().Get("deadline"))
		fmt.Fprint(w, `{"deadline":900}`)
	}))
	defer srv.Close()

	s := New(srv.URL, "my secret phrase", time.Second, zerolog.Nop())
	err := s.Submit(context.Background(), 1, 2, 3, 900)
	require.NoError(t, err)
}

func TestSubmitPoolRejectionDoesNotRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{"error":{"code":1008,"message":"deadline too low"}}`)
	}))
	defer srv.Close()

	s := New(srv.URL, "", time.Second, zerolog.Nop())
	err := s.Submit(context.Background(), 1, 2, 3, 900)
	require.Error(t, err)
	var e *errs.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, errs.PoolError, e.Type)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSubmitRetriesOnTransportFailureThenGivesUp(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := New(srv.URL, "", time.Second, zerolog.Nop())
	err := s.Submit(context.Background(), 1, 2, 3, 900)
	require.Error(t, err)
	require.Equal(t, int32(MaxRetries+1), atomic.LoadInt32(&calls))
}

func TestSubmitRecoversAfterTransientFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 2 {
			// malformed body forces a decode error on the first attempt
			fmt.Fprint(w, `not json`)
			return
		}
		fmt.Fprint(w, `{"deadline":900}`)
	}))
	defer srv.Close()

	s := New(srv.URL, "", time.Second, zerolog.Nop())
	err := s.Submit(context.Background(), 1, 2, 3, 900)
	require.NoError(t, err)
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
