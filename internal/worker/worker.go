// Package worker hashes ReadReply chunks from the reader and emits
// NonceData candidates to the coordinator.
//
// Grounded on original_source/src/worker.rs's create_worker_task: the
// len==0 drain shortcut, the pad-then-dispatch-then-send shape, and the
// send-order invariant (nonce data before the buffer return, so a
// coordinator that has observed every ReaderTaskProcessed=true has also
// observed every candidate), translated from chan/futures::mpsc into Go
// channels.
package worker

import (
	"context"

	"github.com/rs/zerolog"

	"scavenge/internal/bufferpool"
	"scavenge/internal/kernel"
	"scavenge/internal/pipeline"
)

// PadTo is the alignment the kernel requires, matching worker.rs's
// `8 * 64` constant.
const PadTo = 8 * kernel.ScoopSize

// Worker hashes ReadReplies from in and emits NonceData on out.
type Worker struct {
	pool *bufferpool.Pool
	in   <-chan pipeline.ReadReply
	out  chan<- pipeline.NonceData
	log  zerolog.Logger
}

// New builds a Worker reading from in, returning buffers to pool, and
// emitting candidates on out.
func New(pool *bufferpool.Pool, in <-chan pipeline.ReadReply, out chan<- pipeline.NonceData, log zerolog.Logger) *Worker {
	return &Worker{pool: pool, in: in, out: out, log: log.With().Str("component", "worker").Logger()}
}

// Run processes ReadReplies until in is closed or ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rr, ok := <-w.in:
			if !ok {
				return nil
			}
			if err := w.process(ctx, rr); err != nil {
				return err
			}
		}
	}
}

func (w *Worker) process(ctx context.Context, rr pipeline.ReadReply) error {
	if rr.Len == 0 {
		w.pool.Put(rr.Buffer)
		return nil
	}

	padded := kernel.Pad(rr.Buffer.Data, rr.Len, PadTo)
	nonceCount := uint64(rr.Len+padded) / kernel.ScoopSize

	deadline, offset := kernel.FindBestDeadline(rr.Buffer.Data[:uint64(rr.Len+padded)], nonceCount, rr.GenSig)

	// Each padding nonce is 64 copies of the byte buf[0], not a copy of any
	// real scoop, so the kernel can return one of them as the best. Per
	// spec.md's padding-neutrality law, any offset at or past the real nonce
	// count is ignored and the real nonces alone are rescanned.
	realNonceCount := uint64(rr.Len) / kernel.ScoopSize
	if offset >= realNonceCount {
		deadline, offset = kernel.FindBestDeadline(rr.Buffer.Data[:rr.Len], realNonceCount, rr.GenSig)
	}

	nd := pipeline.NonceData{
		Height:              rr.Height,
		Deadline:            deadline,
		Nonce:               rr.StartNonce + offset,
		AccountID:           rr.AccountID,
		ReaderTaskProcessed: rr.Finished,
	}

	select {
	case w.out <- nd:
	case <-ctx.Done():
		w.pool.Put(rr.Buffer)
		return ctx.Err()
	}

	w.pool.Put(rr.Buffer)
	return nil
}
