package bufferpool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewPoolSize(t *testing.T) {
	p := New(4, 640)
	require.Equal(t, 4, p.Cap())
	require.Equal(t, 4, p.Len())
}

func TestGetPutRoundTrip(t *testing.T) {
	p := New(1, 64)
	ctx := context.Background()

	b, err := p.Get(ctx, "reader")
	require.NoError(t, err)
	require.Equal(t, 0, p.Len())

	p.Put(b)
	require.Equal(t, 1, p.Len())
}

func TestGetBlocksWhenEmpty(t *testing.T) {
	p := New(1, 64)
	ctx := context.Background()

	b, err := p.Get(ctx, "reader")
	require.NoError(t, err)

	ctx2, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Get(ctx2, "worker")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	p.Put(b)
}

func TestOwnershipTracking(t *testing.T) {
	p := New(1, 64)
	p.EnableOwnershipTracking()
	ctx := context.Background()

	b, err := p.Get(ctx, "reader")
	require.NoError(t, err)
	require.Equal(t, "reader", b.Owner())

	p.Put(b)
	require.Equal(t, "pool", b.Owner())
}
