// Package merge implements stage 5, spec.md §4.5: the mergeable-section
// engine. It splits SHF_MERGE input sections into fragments (parsing is
// stage 1's job, in internal/iobj; this package dedups, assigns offsets
// post-liveness, and sizes the shard count via a HyperLogLog estimate).
// New code — flapc never deduplicates string/constant pools across
// files — built around internal/iobj's MergedSection/SectionFragment/
// FragmentShard types.
package merge

import (
	"hash/fnv"
	"math"

	"github.com/xyproto/ldcore/internal/iobj"
)

// SplitStrings splits SHF_MERGE|SHF_STRINGS content into null-terminated
// fragments, spec.md §4.1/§4.5. A zero-length string still yields one
// fragment of length 1 (the null terminator), per spec.md §8's boundary
// case.
func SplitStrings(data []byte) []string {
	var out []string
	start := 0
	for i, b := range data {
		if b == 0 {
			out = append(out, string(data[start:i+1]))
			start = i + 1
		}
	}
	if start < len(data) {
		out = append(out, string(data[start:]))
	}
	return out
}

// SplitFixed splits SHF_MERGE content (non-strings) into entsize-sized
// fragments, spec.md §4.1: "split into fragments either by null-terminator
// (strings) or by entsize (constants)."
func SplitFixed(data []byte, entsize int) [][]byte {
	if entsize <= 0 {
		return nil
	}
	var out [][]byte
	for off := 0; off+entsize <= len(data); off += entsize {
		out = append(out, data[off:off+entsize])
	}
	return out
}

// HLL is a small HyperLogLog cardinality estimator, spec.md §4.5: "the
// hash is also used by a HyperLogLog cardinality estimator to pre-size the
// map." 2^p registers; p=10 gives roughly 3% relative error, adequate for
// sizing shard counts rather than an exact count.
type HLL struct {
	registers []uint8
	p         uint
}

func NewHLL(p uint) *HLL {
	if p < 4 {
		p = 4
	}
	if p > 16 {
		p = 16
	}
	return &HLL{registers: make([]uint8, 1<<p), p: p}
}

func (h *HLL) Add(content string) {
	x := fnv.New64a()
	x.Write([]byte(content))
	v := x.Sum64()
	// FNV-1a's high bits barely change between strings that differ only in
	// their last bytes; mix them (MurmurHash3's 64-bit finalizer) before
	// taking the register index from the top bits.
	v ^= v >> 33
	v *= 0xff51afd7ed558ccd
	v ^= v >> 33
	v *= 0xc4ceb9fe1a85ec53
	v ^= v >> 33
	idx := v >> (64 - h.p)
	// rho = 1 + number of leading zeros in the remaining (64-p)-bit tail,
	// with an all-zero tail capped at 64-p+1 rather than looping forever.
	tail := v << h.p
	rho := uint8(1)
	maxRho := uint8(64 - h.p + 1)
	for tail&(1<<63) == 0 && rho < maxRho {
		tail <<= 1
		rho++
	}
	if rho > h.registers[idx] {
		h.registers[idx] = rho
	}
}

// Estimate returns the approximate distinct-element count, the standard
// HLL harmonic-mean estimator with the small-range linear-counting
// correction.
func (h *HLL) Estimate() float64 {
	m := float64(len(h.registers))
	sum := 0.0
	zeros := 0
	for _, r := range h.registers {
		sum += 1.0 / float64(uint64(1)<<r)
		if r == 0 {
			zeros++
		}
	}
	alpha := 0.7213 / (1.0 + 1.079/m)
	raw := alpha * m * m / sum
	if raw <= 2.5*m && zeros > 0 {
		return m * math.Log(m/float64(zeros))
	}
	return raw
}

// ShardCountFor picks a shard count for a MergedSection from an HLL
// estimate, rounded up to the next power of two and bounded to a sane
// range (internal/concmap.New already rounds up again, so this just picks
// a reasonable order of magnitude).
func ShardCountFor(estimate float64) int {
	n := 1
	for float64(n) < estimate/64 && n < 256 {
		n <<= 1
	}
	if n < 1 {
		n = 1
	}
	return n
}

// AssignOffsets walks the alive fragments of a MergedSection in the order
// given (it does not sort them; internal/pipeline sorts by Bytes first so
// the result is independent of map iteration order) and assigns each an
// offset respecting its alignment, per spec.md §3: "After resolution each alive
// fragment is assigned an in-section offset." Returns the section's total
// size.
func AssignOffsets(ms *iobj.MergedSection, fragments []*iobj.SectionFragment) uint64 {
	var off uint64
	for _, f := range fragments {
		if !f.IsAlive() {
			continue
		}
		if f.P2Align > 0 {
			a := uint64(1) << f.P2Align
			off = (off + a - 1) &^ (a - 1)
		}
		f.Offset = off
		off += uint64(len(f.Bytes))
	}
	ms.Size = off
	return off
}
