// Package opjtest provides test helpers for exercising an opj.Journal
// against a temp directory, plus exact-byte assertions for its on-disk
// files.
package opjtest

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/opjio/opj"
)

// Writable opens a fresh journal in a t.TempDir(), logging verbosely to
// t.Log, and registers a t.Cleanup to close it.
func Writable[T any](t *testing.T, codec opj.Codec[T], o opj.Options) (*opj.Journal[T], string) {
	t.Helper()
	dir := t.TempDir()
	o.Logger = slog.New(slog.NewTextHandler(&logWriter{t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
	o.Verbose = true

	j, err := opj.New(dir, codec, o)
	if err != nil {
		t.Fatalf("opj.New: %v", err)
	}
	t.Cleanup(func() {
		if err := j.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return j, dir
}

type logWriter struct{ t testing.TB }

func (w *logWriter) Write(buf []byte) (int, error) {
	w.t.Log(strings.TrimSuffix(string(buf), "\n"))
	return len(buf), nil
}

// FileNames returns the sorted list of file names directly inside dir.
func FileNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read %s: %v", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	slices.Sort(names)
	return names
}

// Data reads fileName inside dir, returning nil if it does not exist.
func Data(t *testing.T, dir, fileName string) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(dir, fileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatalf("read %s: %v", fileName, err)
	}
	return b
}

// BytesEq reports whether a equals e, failing the test with a hex dump
// highlighting the first difference if not.
func BytesEq(t testing.TB, a, e []byte) bool {
	if bytes.Equal(a, e) {
		return true
	}
	an, en := len(a), len(e)
	off := min(an, en)
	for i := 0; i < min(an, en); i++ {
		if a[i] != e[i] {
			off = i
			break
		}
	}
	t.Helper()
	t.Errorf("** got:\n%v\nwanted:\n%v\nfirst difference offset: 0x%x (%d)", HexDump(a, off), HexDump(e, off), off, off)
	return false
}

// HexDump renders b as a classic 8-bytes-per-line hex+ASCII dump,
// marking the byte at highlightOff (or none, if negative).
func HexDump(b []byte, highlightOff int) string {
	var buf strings.Builder
	var off int
	n := len(b)
	for {
		fmt.Fprintf(&buf, "%08x", off)
		if off >= n {
			buf.WriteByte('\n')
			break
		}
		buf.WriteByte(' ')
		for i := 0; i < 8; i++ {
			if off+i >= n {
				buf.WriteString("   ")
				continue
			}
			if highlightOff >= 0 && off+i == highlightOff {
				buf.WriteByte('>')
			} else {
				buf.WriteByte(' ')
			}
			fmt.Fprintf(&buf, "%02x", b[off+i])
		}
		buf.WriteString("  |")
		for i := 0; i < 8; i++ {
			if off+i < n {
				if v := b[off+i]; v >= 32 && v <= 126 {
					buf.WriteByte(v)
				} else {
					buf.WriteByte('.')
				}
			}
		}
		off += 8
		buf.WriteString("|\n")
		if off >= n {
			break
		}
	}
	return buf.String()
}
