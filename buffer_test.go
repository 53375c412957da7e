package opj

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBufferAppendKeepsSortedOrder(t *testing.T) {
	dir := t.TempDir()
	b, err := openBuffer[int32](dir, int32Codec{})
	if err != nil {
		t.Fatalf("openBuffer: %v", err)
	}
	defer b.Close()

	for _, v := range []int32{5, 1, 9, 3} {
		if _, err := b.Append(v); err != nil {
			t.Fatalf("Append(%d): %v", v, err)
		}
	}

	want := []int32{1, 3, 5, 9}
	if got := b.Snapshot(); !equalInt32(got, want) {
		t.Errorf("Snapshot() = %v, want %v", got, want)
	}
}

func TestBufferRecoversFromCompanionFile(t *testing.T) {
	dir := t.TempDir()
	b, err := openBuffer[int32](dir, int32Codec{})
	if err != nil {
		t.Fatalf("openBuffer: %v", err)
	}
	for _, v := range []int32{7, 2, 4} {
		if _, err := b.Append(v); err != nil {
			t.Fatalf("Append(%d): %v", v, err)
		}
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := openBuffer[int32](dir, int32Codec{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	want := []int32{2, 4, 7}
	if got := reopened.Snapshot(); !equalInt32(got, want) {
		t.Errorf("recovered Snapshot() = %v, want %v", got, want)
	}
}

func TestBufferRecoveryTruncatesTornWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, bufferFileName)
	// Two whole 4-byte int32 records plus a 2-byte torn fragment.
	data := []byte{1, 0, 0, 0, 2, 0, 0, 0, 0xff, 0xff}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	b, err := openBuffer[int32](dir, int32Codec{})
	if err != nil {
		t.Fatalf("openBuffer: %v", err)
	}
	defer b.Close()

	want := []int32{1, 2}
	if got := b.Snapshot(); !equalInt32(got, want) {
		t.Errorf("Snapshot() = %v, want %v", got, want)
	}

	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if fi.Size() != 8 {
		t.Errorf("companion file size = %d, want 8 (torn fragment dropped)", fi.Size())
	}
}

func TestBufferFlushProducesSegmentAndEmptiesBuffer(t *testing.T) {
	dir := t.TempDir()
	b, err := openBuffer[int32](dir, int32Codec{})
	if err != nil {
		t.Fatalf("openBuffer: %v", err)
	}
	defer b.Close()

	for _, v := range []int32{3, 1, 2} {
		if _, err := b.Append(v); err != nil {
			t.Fatalf("Append(%d): %v", v, err)
		}
	}

	seg, err := b.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if b.Len() != 0 {
		t.Errorf("buffer should be empty after Flush, Len() = %d", b.Len())
	}

	r, err := seg.OpenForRead()
	if err != nil {
		t.Fatalf("OpenForRead: %v", err)
	}
	defer r.Release()
	var got []int32
	for v := range r.Iterate() {
		got = append(got, v)
	}
	want := []int32{1, 2, 3}
	if !equalInt32(got, want) {
		t.Errorf("flushed segment contents = %v, want %v", got, want)
	}
}

func TestBufferSelect(t *testing.T) {
	dir := t.TempDir()
	b, err := openBuffer[int32](dir, int32Codec{})
	if err != nil {
		t.Fatalf("openBuffer: %v", err)
	}
	defer b.Close()

	for _, v := range []int32{1, 2, 3, 4, 5} {
		if _, err := b.Append(v); err != nil {
			t.Fatalf("Append(%d): %v", v, err)
		}
	}

	lo, hi := int32(2), int32(4)
	got := collect(b.Select(&lo, &hi))
	want := []int32{2, 3, 4}
	if !equalInt32(got, want) {
		t.Errorf("Select(2, 4) = %v, want %v", got, want)
	}
}
