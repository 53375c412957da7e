// Package durable provides the fsync-like primitive the journal uses to make
// buffer and segment writes survive a crash. It exists because plain
// f.Sync() also flushes directory-entry metadata that append-heavy files
// don't need durable.
package durable

import "os"

// Sync flushes f's data to stable storage. On platforms without a
// data-only sync syscall it falls back to a full f.Sync().
//
// WARNING: an error from Sync is not safely retryable — once the OS has
// marked the dirty pages clean, a second attempt can report success without
// the data ever having reached disk. Callers should treat it as fatal to
// the write in progress.
func Sync(f *os.File) error {
	return sync(f)
}
