package opj

import (
	"errors"
	"fmt"
)

// Sentinel error kinds raised by the façade itself. Compare with errors.Is;
// each is normally reached wrapped inside a *JournalError, so errors.Is
// still works through Unwrap. The remaining two kinds from the taxonomy
// live closer to where they're actually detected: segment.ErrOutOfRange
// (random access past the end of a segment) and recfmt.ErrCorruptRecord
// (decoding a byte slice of the wrong width) — a Codec of your own may
// define its own corruption error instead.
var (
	ErrJournalAlreadyExists = errors.New("opj: journal already exists")
	ErrJournalNotFound      = errors.New("opj: journal not found")
	ErrSchemaMismatch       = errors.New("opj: schema mismatch")
)

// JournalError wraps a failure tied to the journal directory as a whole —
// creation, opening, the startup sweep — with the operation and path that
// were being acted on and the underlying cause, which may be a sentinel
// above or a raw OS error.
type JournalError struct {
	Op     string
	Path   string
	Detail string
	Err    error
}

func journalErrf(op, path string, err error) error {
	return &JournalError{Op: op, Path: path, Err: err}
}

func (e *JournalError) Unwrap() error { return e.Err }

func (e *JournalError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("opj: %s %s: %s: %v", e.Op, e.Path, e.Detail, e.Err)
	}
	return fmt.Sprintf("opj: %s %s: %v", e.Op, e.Path, e.Err)
}

// RecordError wraps a failure tied to one record at a known position in
// the buffer or a segment, with the underlying cause.
type RecordError struct {
	Op    string
	Index int
	Err   error
}

func recordErrf(op string, index int, err error) error {
	return &RecordError{Op: op, Index: index, Err: err}
}

func (e *RecordError) Unwrap() error { return e.Err }

func (e *RecordError) Error() string {
	return fmt.Sprintf("opj: %s record %d: %v", e.Op, e.Index, e.Err)
}
