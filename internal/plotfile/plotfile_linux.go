//go:build linux

package plotfile

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

var errUnknownSectorSize = errors.New("filesystem reported a zero or negative block size")

// openDirect opens path a second time with O_DIRECT, bypassing the page
// cache. Reads through the returned handle must be sector-aligned in both
// offset and length; Read checks only the length against
// DirectIOAlignment, not the file offset.
func openDirect(path string) (*os.File, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_DIRECT, 0)
	if err != nil {
		return nil, err
	}
	return os.NewFile(uintptr(fd), path), nil
}

// sectorSize reports the backing filesystem's block size for path via
// Fstatfs, replacing original_source/src/utils.rs's get_sector_size
// (which shells out to lsblk/diskutil) with a native syscall.
func sectorSize(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var stat unix.Statfs_t
	if err := unix.Fstatfs(int(f.Fd()), &stat); err != nil {
		return 0, err
	}
	if stat.Bsize <= 0 {
		return 0, errUnknownSectorSize
	}
	return int(stat.Bsize), nil
}
