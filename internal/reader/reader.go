// Package reader drives one reader goroutine's walk over its assigned
// plot files for the active round, publishing chunks to the worker pool
// over a bounded channel.
//
// Grounded on original_source/src/plot.rs's Plot::read driving loop (there
// inlined into worker.rs's create_worker_task's caller; here split into its
// own package per spec.md §4.D) and on the teacher's controller.go
// StatusInterval ticker shape for the idle wake-up-read loop.
package reader

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"scavenge/internal/bufferpool"
	"scavenge/internal/pipeline"
	"scavenge/internal/plotfile"
)

// RoundParams is what the coordinator hands the reader at the start of
// each round.
type RoundParams struct {
	GenSig [32]byte
	Height uint64
	Scoop  uint32
}

// Reader owns a fixed set of plots and replays them once per round.
type Reader struct {
	plots       []*plotfile.Plot
	pool        *bufferpool.Pool
	out         chan<- pipeline.ReadReply
	workerCount int
	wakeupAfter time.Duration
	log         zerolog.Logger

	mu   sync.Mutex
	busy bool
}

// New builds a Reader over plots, publishing chunks to out and drawing
// buffers from pool. workerCount is the number of worker goroutines
// downstream, used to size the end-of-round drain sentinel burst.
func New(plots []*plotfile.Plot, pool *bufferpool.Pool, out chan<- pipeline.ReadReply, workerCount int, wakeupAfter time.Duration, log zerolog.Logger) *Reader {
	return &Reader{
		plots:       plots,
		pool:        pool,
		out:         out,
		workerCount: workerCount,
		wakeupAfter: wakeupAfter,
		log:         log.With().Str("component", "reader").Logger(),
	}
}

// Run blocks, waiting for round parameters on rounds and scanning all
// plots for each one, until ctx is cancelled. A wake-up-read idler runs
// concurrently on a wakeupAfter ticker, touching plots to keep spinning
// disks warm on every tick at which the reader is not scanning a round.
func (r *Reader) Run(ctx context.Context, rounds <-chan RoundParams) error {
	if r.wakeupAfter > 0 {
		go r.idleTouchLoop(ctx)
	}

	round, ok := r.waitForRound(ctx, rounds)
	if !ok {
		return ctx.Err()
	}

	for {
		r.setBusy(true)
		next, preempted := r.scanRound(ctx, round, rounds)
		r.setBusy(false)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if preempted {
			round = next
			continue
		}

		round, ok = r.waitForRound(ctx, rounds)
		if !ok {
			return ctx.Err()
		}
	}
}

func (r *Reader) waitForRound(ctx context.Context, rounds <-chan RoundParams) (RoundParams, bool) {
	select {
	case round := <-rounds:
		return round, true
	case <-ctx.Done():
		return RoundParams{}, false
	}
}

// scanRound walks every plot for one round in order, publishing a drain
// sentinel burst once all plots are exhausted. If a new round arrives
// while a plot is still being read, it returns that round and preempted
// = true as soon as the in-flight chunk finishes sending, abandoning any
// remaining plots for the old round.
func (r *Reader) scanRound(ctx context.Context, round RoundParams, rounds <-chan RoundParams) (next RoundParams, preempted bool) {
	for _, plot := range r.plots {
		if ctx.Err() != nil {
			return RoundParams{}, false
		}

		if err := plot.Prepare(round.Scoop); err != nil {
			r.log.Warn().Err(err).Str("plot", plot.Path).Msg("failed to prepare plot for round, skipping")
			continue
		}

		if newRound, ok := r.drainPlot(ctx, plot, round, rounds); ok {
			return newRound, true
		}
	}

	r.sendDrainSentinels(ctx, round.Height)
	return RoundParams{}, false
}

// drainPlot reads one plot to completion, checking for a pending round
// change after each chunk is published. It returns (newRound, true) the
// moment one is observed.
func (r *Reader) drainPlot(ctx context.Context, plot *plotfile.Plot, round RoundParams, rounds <-chan RoundParams) (RoundParams, bool) {
	for {
		buf, err := r.pool.Get(ctx, "reader")
		if err != nil {
			return RoundParams{}, false
		}

		n, startNonce, finished, err := plot.Read(buf.Data, round.Scoop)
		if err != nil {
			r.log.Warn().Err(err).Str("plot", plot.Path).Msg("plot read failed, skipping remaining chunks")
			r.pool.Put(buf)
			return RoundParams{}, false
		}

		select {
		case r.out <- pipeline.ReadReply{
			Buffer:     buf,
			Len:        n,
			StartNonce: startNonce,
			AccountID:  plot.AccountID,
			Height:     round.Height,
			GenSig:     round.GenSig,
			Scoop:      round.Scoop,
			Finished:   finished,
		}:
		case <-ctx.Done():
			r.pool.Put(buf)
			return RoundParams{}, false
		}

		if finished {
			return RoundParams{}, false
		}

		select {
		case newRound := <-rounds:
			return newRound, true
		default:
		}
	}
}

// sendDrainSentinels publishes one zero-length ReadReply per worker
// thread, each carrying a real pool buffer, so every worker currently
// blocked on a receive wakes up, returns its buffer, and goes idle until
// the next round rather than starving mid-drain.
func (r *Reader) sendDrainSentinels(ctx context.Context, height uint64) {
	for i := 0; i < r.workerCount; i++ {
		buf, err := r.pool.Get(ctx, "reader")
		if err != nil {
			return
		}
		select {
		case r.out <- pipeline.ReadReply{Buffer: buf, Len: 0, Height: height, Finished: true}:
		case <-ctx.Done():
			r.pool.Put(buf)
			return
		}
	}
}

func (r *Reader) setBusy(b bool) {
	r.mu.Lock()
	r.busy = b
	r.mu.Unlock()
}

func (r *Reader) idleTouchLoop(ctx context.Context) {
	ticker := time.NewTicker(r.wakeupAfter)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.mu.Lock()
			busy := r.busy
			r.mu.Unlock()
			if busy {
				continue
			}
			for _, plot := range r.plots {
				if err := plot.Touch(); err != nil {
					r.log.Debug().Err(err).Str("plot", plot.Path).Msg("idle touch failed")
				}
			}
		}
	}
}
