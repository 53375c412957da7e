package compact

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/opjio/opj/segment"
)

type int32Codec struct{}

func (int32Codec) Size() int { return 4 }

func (int32Codec) Encode(v int32, buf []byte) error {
	binary.LittleEndian.PutUint32(buf, uint32(v))
	return nil
}

func (int32Codec) Decode(buf []byte) (int32, error) {
	return int32(binary.LittleEndian.Uint32(buf)), nil
}

func (int32Codec) Compare(a, b int32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func writeSegment(t *testing.T, dir string, vs ...int32) (*segment.Segment[int32], int) {
	t.Helper()
	w, err := segment.NewWriter[int32](dir, int32Codec{})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	for _, v := range vs {
		if err := w.Append(v); err != nil {
			t.Fatalf("Append(%d): %v", v, err)
		}
	}
	seg, err := w.Publish()
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	return seg, len(vs)
}

func readAll(t *testing.T, seg *segment.Segment[int32]) []int32 {
	t.Helper()
	r, err := seg.OpenForRead()
	if err != nil {
		t.Fatalf("OpenForRead: %v", err)
	}
	defer r.Release()
	var out []int32
	for v := range r.Iterate() {
		out = append(out, v)
	}
	return out
}

func TestMergeInterleaves(t *testing.T) {
	dir := t.TempDir()
	a, na := writeSegment(t, dir, 1, 3, 5)
	b, nb := writeSegment(t, dir, 2, 4, 6)

	c := New[int32](dir, int32Codec{}, nil, time.Millisecond)
	defer c.Close()

	c.Enqueue(a, na)
	c.Enqueue(b, nb)

	select {
	case res := <-c.Results():
		want := []int32{1, 2, 3, 4, 5, 6}
		got := readAll(t, res.Output)
		if !equalSlice(got, want) {
			t.Errorf("merged = %v, want %v", got, want)
		}
		if res.Length != len(want) {
			t.Errorf("Length = %d, want %d", res.Length, len(want))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for merge result")
	}
}

func TestMergeKeepsAllTiedRecords(t *testing.T) {
	dir := t.TempDir()
	a, na := writeSegment(t, dir, 1, 1)
	b, nb := writeSegment(t, dir, 1, 1)

	c := New[int32](dir, int32Codec{}, nil, time.Millisecond)
	defer c.Close()

	c.Enqueue(a, na)
	c.Enqueue(b, nb)

	select {
	case res := <-c.Results():
		got := readAll(t, res.Output)
		want := []int32{1, 1, 1, 1}
		if !equalSlice(got, want) {
			t.Errorf("merged = %v, want %v", got, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for merge result")
	}
}

func TestMergeRetiresBothInputs(t *testing.T) {
	dir := t.TempDir()
	a, na := writeSegment(t, dir, 1)
	b, nb := writeSegment(t, dir, 2)

	c := New[int32](dir, int32Codec{}, nil, time.Millisecond)
	defer c.Close()

	c.Enqueue(a, na)
	c.Enqueue(b, nb)

	select {
	case res := <-c.Results():
		if res.Retired[0].ID() != a.ID() && res.Retired[1].ID() != a.ID() {
			t.Errorf("retired set does not include a: %+v", res.Retired)
		}
		if !res.Retired[0].IsHidden() || !res.Retired[1].IsHidden() {
			t.Error("retired segments should be hidden")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for merge result")
	}
}

func equalSlice(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
