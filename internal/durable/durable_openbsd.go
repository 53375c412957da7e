package durable

import (
	"os"

	"golang.org/x/sys/unix"
)

// OpenBSD has no data-only fdatasync; unix.Fsync is the closest primitive,
// matching andreyvit-edb/mmap's own fallback to a full sync on this platform.
func sync(f *os.File) error {
	return unix.Fsync(int(f.Fd()))
}
