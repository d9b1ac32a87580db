//go:build !linux

package plotfile

import (
	"errors"
	"os"
)

// openDirect has no portable equivalent of O_DIRECT outside Linux; Open
// treats its error as "direct I/O unavailable" and falls back to the
// buffered handle rather than failing the whole plot.
func openDirect(path string) (*os.File, error) {
	return nil, errors.New("direct I/O is not supported on this platform")
}

// sectorSize has no portable syscall equivalent outside Linux; callers
// fall back to DefaultSectorSize.
func sectorSize(path string) (int, error) {
	return 0, errors.New("sector size discovery is not supported on this platform")
}
