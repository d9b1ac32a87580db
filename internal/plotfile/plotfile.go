// Package plotfile parses and reads Burst-style plot files: immutable,
// scoop-major on-disk artifacts whose filename encodes
// <account_id>_<start_nonce>_<nonces>.
//
// Grounded on original_source/src/plot.rs for the exact offset arithmetic
// (seek-to-scoop, read_offset bookkeeping, the %512 direct-I/O gate) and on
// the teacher's two-handle device pattern (internal/driver/device) for
// keeping a buffered fallback handle alongside a direct one.
package plotfile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"scavenge/internal/errs"
)

const (
	// ScoopsPerNonce is the number of 64-byte scoops stored for each nonce.
	ScoopsPerNonce = 4096
	// ScoopSize is the size in bytes of a single scoop record.
	ScoopSize = 64
	// DirectIOAlignment is the granularity, in bytes, a read length must be
	// a multiple of for the read to go through the direct-I/O handle.
	DirectIOAlignment = 512
	// DefaultSectorSize is used when native sector-size discovery is
	// unavailable (non-Linux platforms, or a failed syscall).
	DefaultSectorSize = 4096
)

// SectorSize reports the block size of the filesystem backing path, using
// a native syscall (unix.Fstatfs on Linux). It replaces
// original_source/src/utils.rs's get_sector_size, which shells out to
// lsblk/diskutil. On platforms or filesystems where discovery isn't
// available, it falls back to DefaultSectorSize.
func SectorSize(path string) int {
	n, err := sectorSize(path)
	if err != nil || n <= 0 {
		return DefaultSectorSize
	}
	return n
}

// Plot represents one opened, validated plot file.
type Plot struct {
	AccountID  uint64
	StartNonce uint64
	Nonces     uint64
	Path       string

	mu          sync.Mutex
	buffered    *os.File
	direct      *os.File
	useDirectIO bool
	scoop       uint32
	readOffset  uint64
}

// ParseFilename splits a plot filename of the form
// <account_id>_<start_nonce>_<nonces>[_<stagger>] and returns its first
// three numeric components. Trailing components are ignored.
func ParseFilename(name string) (accountID, startNonce, nonces uint64, err error) {
	base := filepath.Base(name)
	parts := strings.Split(base, "_")
	if len(parts) < 3 {
		return 0, 0, 0, errs.New(errs.MalformedPlot, "plot filename must have at least 3 underscore-separated components", map[string]interface{}{
			"name": name,
		})
	}

	nums := make([]uint64, 3)
	for i := 0; i < 3; i++ {
		n, perr := strconv.ParseUint(parts[i], 10, 64)
		if perr != nil {
			return 0, 0, 0, errs.Wrap(errs.MalformedPlot, "plot filename component is not a non-negative integer", perr, map[string]interface{}{
				"name":      name,
				"component": parts[i],
			})
		}
		nums[i] = n
	}

	return nums[0], nums[1], nums[2], nil
}

// Open parses path's filename, validates the on-disk size, and opens a
// buffered handle plus — when useDirectIO is requested and supported on
// this platform — a second handle opened with unbuffered/no-caching flags.
func Open(path string, useDirectIO bool) (*Plot, error) {
	accountID, startNonce, nonces, err := ParseFilename(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, errs.Wrap(errs.MalformedPlot, "cannot stat plot file", err, map[string]interface{}{"path": path})
	}

	expected := nonces * ScoopsPerNonce * ScoopSize
	if uint64(info.Size()) != expected {
		return nil, errs.New(errs.SizeMismatch, "plot file size does not match filename-derived size", map[string]interface{}{
			"path":     path,
			"expected": expected,
			"actual":   info.Size(),
		})
	}

	buffered, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.PlotReadError, "failed to open plot file", err, map[string]interface{}{"path": path})
	}

	p := &Plot{
		AccountID:  accountID,
		StartNonce: startNonce,
		Nonces:     nonces,
		Path:       path,
		buffered:   buffered,
	}

	if useDirectIO {
		direct, derr := openDirect(path)
		if derr == nil {
			p.direct = direct
			p.useDirectIO = true
		}
		// Direct I/O being unavailable on this platform/filesystem is not
		// fatal: we silently fall back to the buffered handle for every
		// read, same as a chunk size that isn't sector-aligned would.
	}

	return p, nil
}

// Prepare seeks both handles to the start of scoop and resets the internal
// read cursor.
func (p *Plot) Prepare(scoop uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.scoop = scoop
	p.readOffset = 0
	offset := int64(scoop) * int64(p.Nonces) * ScoopSize

	if _, err := p.buffered.Seek(offset, io.SeekStart); err != nil {
		return errs.Wrap(errs.PlotReadError, "failed to seek buffered handle", err, nil)
	}
	if p.direct != nil {
		if _, err := p.direct.Seek(offset, io.SeekStart); err != nil {
			return errs.Wrap(errs.PlotReadError, "failed to seek direct handle", err, nil)
		}
	}
	return nil
}

// Read fills up to len(buf) bytes of the current scoop region into buf,
// returning the number of bytes read, the absolute nonce index of buf[0],
// and whether the scoop region has now been fully consumed.
func (p *Plot) Read(buf []byte, scoop uint32) (n int, startNonce uint64, finished bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	regionSize := p.Nonces * ScoopSize
	remaining := regionSize - p.readOffset
	toRead := uint64(len(buf))
	if toRead > remaining {
		toRead = remaining
	}

	handle := p.buffered
	if p.useDirectIO && p.direct != nil && toRead%DirectIOAlignment == 0 && toRead > 0 {
		handle = p.direct
	}

	if toRead > 0 {
		if _, rerr := io.ReadFull(handle, buf[:toRead]); rerr != nil {
			return 0, 0, false, errs.Wrap(errs.PlotReadError, "failed to read plot chunk", rerr, map[string]interface{}{
				"path": p.Path, "scoop": scoop,
			})
		}
	}

	startNonce = p.StartNonce + p.readOffset/ScoopSize
	p.readOffset += toRead
	finished = p.readOffset >= regionSize

	if !finished {
		nextOffset := int64(scoop)*int64(p.Nonces)*ScoopSize + int64(p.readOffset)
		if _, serr := p.buffered.Seek(nextOffset, io.SeekStart); serr != nil {
			return int(toRead), startNonce, false, errs.Wrap(errs.PlotReadError, "failed to reseek buffered handle", serr, nil)
		}
		if p.direct != nil {
			if _, serr := p.direct.Seek(nextOffset, io.SeekStart); serr != nil {
				return int(toRead), startNonce, false, errs.Wrap(errs.PlotReadError, "failed to reseek direct handle", serr, nil)
			}
		}
	}

	return int(toRead), startNonce, finished, nil
}

// Touch performs a trivial read to keep a spinning disk's heads warm,
// without disturbing the current read cursor. It is safe to call between
// rounds but must not be called concurrently with Prepare/Read.
func (p *Plot) Touch() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var probe [ScoopSize]byte
	pos, err := p.buffered.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if _, err := p.buffered.ReadAt(probe[:], 0); err != nil && err != io.EOF {
		return err
	}
	_, err = p.buffered.Seek(pos, io.SeekStart)
	return err
}

// Close releases both file handles.
func (p *Plot) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	if cerr := p.buffered.Close(); cerr != nil {
		err = cerr
	}
	if p.direct != nil {
		if cerr := p.direct.Close(); cerr != nil {
			err = cerr
		}
	}
	return err
}

func (p *Plot) String() string {
	return fmt.Sprintf("Plot{account=%d start=%d nonces=%d direct=%v}", p.AccountID, p.StartNonce, p.Nonces, p.useDirectIO)
}
