package opj_test

import (
	"math/rand"
	"slices"
	"sort"
	"testing"
	"time"

	"github.com/opjio/opj"
	"github.com/opjio/opj/opjtest"
	"github.com/opjio/opj/recfmt"
)

func TestJournalWithRecfmtCodec(t *testing.T) {
	codec := recfmt.MustNew("iI")
	j, _ := opjtest.Writable[recfmt.Tuple](t, codec, opj.Options{MaxBufferSize: 3})

	records := []recfmt.Tuple{
		{int32(3), uint32(30)},
		{int32(1), uint32(10)},
		{int32(5), uint32(50)},
		{int32(2), uint32(20)},
		{int32(4), uint32(40)},
	}
	for _, r := range records {
		if err := j.Append(r); err != nil {
			t.Fatalf("Append(%v): %v", r, err)
		}
	}

	var got []int32
	for v := range j.Iterate() {
		got = append(got, v[0].(int32))
	}
	want := []int32{1, 2, 3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("Iterate() returned %d records, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("record %d = %d, want %d", i, got[i], want[i])
		}
	}

	if !j.Contains(recfmt.Tuple{int32(3), uint32(30)}) {
		t.Error("Contains should find an exact-match tuple")
	}
}

// waitForOneSegment polls dir until exactly one active (non-hidden, non-fmt,
// non-buffer) ".opj" file remains, or the deadline passes.
func waitForOneSegment(t *testing.T, dir string, timeout time.Duration) int {
	t.Helper()
	deadline := time.Now().Add(timeout)
	n := -1
	for {
		n = 0
		for _, name := range opjtest.FileNames(t, dir) {
			if len(name) > 4 && name[len(name)-4:] == ".opj" && name[0] != '_' {
				n++
			}
		}
		if n == 1 || time.Now().After(deadline) {
			return n
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// TestRandomIntegersConvergeAndRoundTrip is the "i" schema, uniform-random
// integer scenario: append a large uniform-random stream, wait for the
// compactor to quiesce to a single segment, check the full iteration is
// non-decreasing, then reopen and check it reproduces the same order.
func TestRandomIntegersConvergeAndRoundTrip(t *testing.T) {
	codec := recfmt.MustNew("i")
	j, dir := opjtest.Writable[recfmt.Tuple](t, codec, opj.Options{MaxBufferSize: 8, CompactionBackoff: time.Millisecond})

	rng := rand.New(rand.NewSource(42))
	const n = 2000
	appended := make([]int32, n)
	for i := 0; i < n; i++ {
		v := int32(rng.Intn(2001) - 1000)
		appended[i] = v
		if err := j.Append(recfmt.Tuple{v}); err != nil {
			t.Fatalf("Append(%d): %v", v, err)
		}
	}

	if got := waitForOneSegment(t, dir, 5*time.Second); got != 1 {
		t.Fatalf("active segment files = %d after quiescence, want 1", got)
	}

	var got []int32
	for v := range j.Iterate() {
		got = append(got, v[0].(int32))
	}
	if !sort.SliceIsSorted(got, func(i, j int) bool { return got[i] < got[j] }) {
		t.Fatal("Iterate() is not non-decreasing")
	}
	want := slices.Clone(appended)
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
	if !slices.Equal(got, want) {
		t.Fatalf("Iterate() multiset/order mismatch: got %d records, want %d", len(got), len(want))
	}

	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	j2, err := opj.Open[recfmt.Tuple](dir, codec, opj.Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j2.Close()

	var got2 []int32
	for v := range j2.Iterate() {
		got2 = append(got2, v[0].(int32))
	}
	if !slices.Equal(got2, want) {
		t.Fatalf("Iterate() after reopen mismatch: got %d records, want %d", len(got2), len(want))
	}
}

// TestRandomPairsSelectEquivalence is the "dI" schema scenario: append a
// random stream of (float64, uint32) pairs and check that Select with each
// combination of bounds equals filtering the sorted reference list.
func TestRandomPairsSelectEquivalence(t *testing.T) {
	codec := recfmt.MustNew("dI")
	j, dir := opjtest.Writable[recfmt.Tuple](t, codec, opj.Options{MaxBufferSize: 16, CompactionBackoff: time.Millisecond})

	rng := rand.New(rand.NewSource(99))
	const n = 2000
	appended := make([]recfmt.Tuple, n)
	for i := 0; i < n; i++ {
		r := recfmt.Tuple{rng.Float64() * 2, uint32(rng.Intn(2000))}
		appended[i] = r
		if err := j.Append(r); err != nil {
			t.Fatalf("Append(%v): %v", r, err)
		}
	}

	sorted := slices.Clone(appended)
	sort.Slice(sorted, func(i, k int) bool { return codec.Compare(sorted[i], sorted[k]) < 0 })

	bound := recfmt.Tuple{0.5, uint32(1000)}
	upper := recfmt.Tuple{0.7, uint32(2000)}
	cases := []struct {
		name   string
		lo, hi *recfmt.Tuple
	}{
		{"lower-bounded", &bound, nil},
		{"upper-bounded", nil, &bound},
		{"both-bounded", &bound, &upper},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var got []recfmt.Tuple
			for v := range j.Select(c.lo, c.hi) {
				got = append(got, v)
			}
			var want []recfmt.Tuple
			for _, v := range sorted {
				if c.lo != nil && codec.Compare(v, *c.lo) < 0 {
					continue
				}
				if c.hi != nil && codec.Compare(v, *c.hi) > 0 {
					continue
				}
				want = append(want, v)
			}
			if len(got) != len(want) {
				t.Fatalf("Select(%s) returned %d records, want %d", c.name, len(got), len(want))
			}
			for i := range want {
				if codec.Compare(got[i], want[i]) != 0 {
					t.Fatalf("Select(%s)[%d] = %v, want %v", c.name, i, got[i], want[i])
				}
			}
		})
	}

	if got := waitForOneSegment(t, dir, 5*time.Second); got != 1 {
		t.Fatalf("active segment files = %d after quiescence, want 1", got)
	}
}
