// Package pipeline holds the message types passed between the reader,
// worker, and coordinator stages. Pulling them out of any one stage
// package avoids import cycles (coordinator needs to know about NonceData
// to forward it to the submitter; reader and worker both need ReadReply).
package pipeline

import "scavenge/internal/bufferpool"

// ReadReply is produced by a reader goroutine for each chunk it pulls from
// a plot file and handed to a worker over a bounded channel. Ownership of
// Buffer transfers with the message: once sent, the reader must not touch
// Buffer again until the worker returns it to the pool.
type ReadReply struct {
	Buffer *bufferpool.Buffer

	// Len is the number of valid bytes at the front of Buffer.Data; the
	// rest of the backing array may be stale data from a previous chunk.
	// Len == 0 marks a drain sentinel: the worker must return Buffer to
	// the pool and otherwise ignore the message.
	Len int

	StartNonce uint64
	AccountID  uint64
	Height     uint64
	GenSig     [32]byte
	Scoop      uint32

	// Finished marks the chunk that completes a plot's current-scoop
	// region, so the worker emits exactly one ReaderTaskProcessed=true
	// NonceData per plot per round (invariant 4).
	Finished bool
}

// NonceData is produced by a worker for the best deadline it found within
// one ReadReply and forwarded to the coordinator for round-scoped
// best-deadline tracking and eventual submission.
type NonceData struct {
	Height    uint64
	Deadline  uint64
	Nonce     uint64
	AccountID uint64

	// ReaderTaskProcessed mirrors the originating ReadReply's Finished
	// flag: true exactly once per plot per round.
	ReaderTaskProcessed bool
}
