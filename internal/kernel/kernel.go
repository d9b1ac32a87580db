// Package kernel resolves, once at process startup, which deadline-search
// variant this CPU should use, then exposes a single FindBestDeadline entry
// point that every worker goroutine shares.
//
// The real cryptographic kernel (the Shabal-256-based scoop hash Burst
// plots are built from) is explicitly out of scope: it is treated as a
// pure function over aligned byte buffers, so here it is stood in by a
// deterministic reference hash. What IS in scope, and what this package
// models, is the dispatch shape from original_source/src/worker.rs's
// extern "C" find_best_deadline_{avx2,avx,sse2} trio: resolve the fastest
// available implementation once, not per buffer. The AVX2/AVX/SSE2/scalar
// variants below differ only in loop-unroll factor — they all delegate
// the actual per-scoop hash to the same reference function, so invariant 3
// (identical results regardless of which variant ran) holds by
// construction rather than by coincidence.
//
// Variant selection follows the teacher's factory.selectBestMethod
// priority-order pattern (pkg/hashing/factory), generalized from a
// preferred-order string list to a capability-gated cpuid probe.
package kernel

import (
	"encoding/binary"
	"math/bits"

	"github.com/klauspost/cpuid/v2"
)

// ScoopSize is the size in bytes of one nonce's scoop record.
const ScoopSize = 64

// Variant identifies a deadline-search implementation.
type Variant string

const (
	VariantAVX2   Variant = "avx2"
	VariantAVX    Variant = "avx"
	VariantSSE2   Variant = "sse2"
	VariantScalar Variant = "scalar"
)

type kernelFunc func(scoops []byte, nonceCount uint64, gensig [32]byte) (deadline uint64, offset uint64)

var variants = map[Variant]kernelFunc{
	VariantAVX2:   findBestDeadlineUnrolled(8),
	VariantAVX:    findBestDeadlineUnrolled(4),
	VariantSSE2:   findBestDeadlineUnrolled(2),
	VariantScalar: findBestDeadlineUnrolled(1),
}

var (
	selectedVariant Variant
	selectedFunc    kernelFunc
)

func init() {
	selectedVariant, selectedFunc = resolve()
}

// resolve picks the best variant this CPU supports, highest first, mirroring
// the AVX2 > AVX > SSE2 > scalar fallback chain of the source implementation.
func resolve() (Variant, kernelFunc) {
	switch {
	case cpuid.CPU.Supports(cpuid.AVX2):
		return VariantAVX2, variants[VariantAVX2]
	case cpuid.CPU.Supports(cpuid.AVX):
		return VariantAVX, variants[VariantAVX]
	case cpuid.CPU.Supports(cpuid.SSE2):
		return VariantSSE2, variants[VariantSSE2]
	default:
		return VariantScalar, variants[VariantScalar]
	}
}

// SelectedVariant reports which variant init() resolved for this process.
func SelectedVariant() Variant { return selectedVariant }

// FindBestDeadline scans scoops (nonceCount scoops of ScoopSize bytes each,
// already padded by the caller to a multiple of ScoopSize) and returns the
// lowest deadline found along with its offset (in nonces) from the start of
// the buffer.
func FindBestDeadline(scoops []byte, nonceCount uint64, gensig [32]byte) (deadline, offset uint64) {
	return selectedFunc(scoops, nonceCount, gensig)
}

// Pad replicates buf[0] into the tail of buf[:l] up to the next multiple of
// p, matching the source implementation's pad() helper byte for byte: the
// padding bytes are not zero, they are a copy of the buffer's first byte.
// It returns how many bytes were padded.
func Pad(buf []byte, l, p int) int {
	r := p - l%p
	if r == p {
		return 0
	}
	for i := 0; i < r; i++ {
		buf[l+i] = buf[0]
	}
	return r
}

// findBestDeadlineUnrolled builds a kernelFunc that walks the scoops in
// batches of `unroll` per outer loop iteration. Every scoop is still
// compared against the running minimum, in index order, so the unroll
// factor changes only the batch grouping, never the result, which is what
// keeps every variant's output identical.
func findBestDeadlineUnrolled(unroll int) kernelFunc {
	return func(scoops []byte, nonceCount uint64, gensig [32]byte) (uint64, uint64) {
		bestDeadline := ^uint64(0)
		bestOffset := uint64(0)

		i := uint64(0)
		for i < nonceCount {
			batch := uint64(unroll)
			if i+batch > nonceCount {
				batch = nonceCount - i
			}
			for j := uint64(0); j < batch; j++ {
				idx := i + j
				start := idx * ScoopSize
				end := start + ScoopSize
				if end > uint64(len(scoops)) {
					break
				}
				d := referenceDeadline(scoops[start:end], gensig)
				if d < bestDeadline {
					bestDeadline = d
					bestOffset = idx
				}
			}
			i += batch
		}

		return bestDeadline, bestOffset
	}
}

// referenceDeadline is the stand-in for the real Shabal-256 scoop hash: a
// deterministic, order-dependent function of (scoop, gensig) used purely
// so the pipeline above the kernel boundary can be built and tested
// without the actual binary cryptographic kernel. All variants call this
// exact same function, never a bit-different approximation of it.
func referenceDeadline(scoop []byte, gensig [32]byte) uint64 {
	var state uint64 = fnv1aOffset
	for _, b := range gensig {
		state = (state ^ uint64(b)) * fnv1aPrime
	}
	for _, b := range scoop {
		state = (state ^ uint64(b)) * fnv1aPrime
	}

	var h [8]byte
	binary.LittleEndian.PutUint64(h[:], state)
	mixed := bits.RotateLeft64(binary.LittleEndian.Uint64(h[:]), 17)
	return mixed
}

const (
	fnv1aOffset = 14695981039346656037
	fnv1aPrime  = 1099511628211
)
