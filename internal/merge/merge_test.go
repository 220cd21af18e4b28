package merge

import (
	"math"
	"strconv"
	"testing"

	"github.com/xyproto/ldcore/internal/iobj"
)

func TestSplitStringsNullTerminated(t *testing.T) {
	data := []byte("foo\x00bar\x00")
	got := SplitStrings(data)
	want := []string{"foo\x00", "bar\x00"}
	if len(got) != len(want) {
		t.Fatalf("got %d fragments, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("fragment %d = %q, want %q", i, got[i], want[i])
		}
	}
}

// spec.md §8: "A mergeable section containing a 0-length string is handled
// as a single fragment of length 1 (the null terminator)."
func TestSplitStringsZeroLengthString(t *testing.T) {
	got := SplitStrings([]byte{0})
	if len(got) != 1 {
		t.Fatalf("got %d fragments, want 1", len(got))
	}
	if got[0] != "\x00" {
		t.Errorf("got %q, want a single null byte", got[0])
	}
}

func TestSplitStringsTrailingUnterminated(t *testing.T) {
	got := SplitStrings([]byte("a\x00bc"))
	if len(got) != 2 {
		t.Fatalf("got %d fragments, want 2", len(got))
	}
	if got[1] != "bc" {
		t.Errorf("trailing fragment = %q, want %q", got[1], "bc")
	}
}

func TestSplitFixedByEntsize(t *testing.T) {
	data := make([]byte, 24)
	got := SplitFixed(data, 8)
	if len(got) != 3 {
		t.Fatalf("got %d fragments, want 3", len(got))
	}
	for _, f := range got {
		if len(f) != 8 {
			t.Errorf("fragment length = %d, want 8", len(f))
		}
	}
}

func TestSplitFixedPartialTailDropped(t *testing.T) {
	data := make([]byte, 20)
	got := SplitFixed(data, 8)
	if len(got) != 2 {
		t.Fatalf("got %d fragments, want 2 (trailing 4 bytes don't form a full entry)", len(got))
	}
}

func TestSplitFixedZeroEntsize(t *testing.T) {
	if got := SplitFixed([]byte{1, 2, 3}, 0); got != nil {
		t.Errorf("got %v, want nil for zero entsize", got)
	}
}

func TestHLLEstimateRoughAccuracy(t *testing.T) {
	h := NewHLL(10)
	const n = 5000
	for i := 0; i < n; i++ {
		h.Add("item-" + strconv.Itoa(i))
	}
	est := h.Estimate()
	if math.Abs(est-float64(n))/float64(n) > 0.1 {
		t.Errorf("estimate %.0f too far from true cardinality %d (>10%% relative error)", est, n)
	}
}

func TestHLLEstimateDuplicatesDontInflate(t *testing.T) {
	h := NewHLL(8)
	for i := 0; i < 1000; i++ {
		h.Add("same-value")
	}
	est := h.Estimate()
	if est > 5 {
		t.Errorf("estimate %.0f too high for a single repeated value", est)
	}
}

func TestShardCountForScalesWithEstimate(t *testing.T) {
	small := ShardCountFor(10)
	large := ShardCountFor(100000)
	if small < 1 {
		t.Fatalf("shard count must be at least 1, got %d", small)
	}
	if large <= small {
		t.Errorf("shard count for a larger estimate (%d) should exceed the small one (%d)", large, small)
	}
	if large > 256 {
		t.Errorf("shard count %d exceeds the documented cap of 256", large)
	}
}

func TestAssignOffsetsSkipsDeadRespectsAlignment(t *testing.T) {
	ms := iobj.NewMergedSection(".rodata.str1.1", 0, 0, 1, 1)
	live := ms.Shards[0].GetOrCreate(ms, "a", 0)
	live.MarkAlive()
	aligned := ms.Shards[0].GetOrCreate(ms, "bb", 3) // p2align 3 -> 8-byte align
	aligned.MarkAlive()
	dead := ms.Shards[0].GetOrCreate(ms, "dead", 0)
	// dead is never marked alive.

	size := AssignOffsets(ms, []*iobj.SectionFragment{live, aligned, dead})

	if live.Offset != 0 {
		t.Errorf("live.Offset = %d, want 0", live.Offset)
	}
	if aligned.Offset%8 != 0 {
		t.Errorf("aligned.Offset = %d, not 8-byte aligned", aligned.Offset)
	}
	if dead.Offset != 0 {
		t.Errorf("dead fragment should never be assigned a nonzero offset, got %d", dead.Offset)
	}
	if size != aligned.Offset+uint64(len(aligned.Bytes)) {
		t.Errorf("returned size %d does not match the end of the last live fragment", size)
	}
	if ms.Size != size {
		t.Errorf("ms.Size = %d, want %d", ms.Size, size)
	}
}
