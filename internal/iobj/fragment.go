package iobj

import (
	"sync"
	"sync/atomic"
)

// SectionFragment is one deduplicated piece of a mergeable section, spec.md
// §3. Fragment identity is the exact byte content; MergedSection routes
// fragments to a concurrent map shard by content hash (see
// internal/concmap, adapted from flapc's hashmap.go).
type SectionFragment struct {
	Owner *MergedSection
	Bytes string // content is the identity; string gives cheap map keys

	P2Align uint8

	// Offset is assigned in stage 5 (merge), once all fragments that will
	// survive mark-live are known.
	Offset uint64

	isAlive atomic.Bool
	is32Bit atomic.Bool
}

func (f *SectionFragment) IsAlive() bool   { return f.isAlive.Load() }
func (f *SectionFragment) MarkAlive()      { f.isAlive.Store(true) }
func (f *SectionFragment) Is32BitHint() bool { return f.is32Bit.Load() }
func (f *SectionFragment) SetIs32BitHint(v bool) { f.is32Bit.Store(v) }

// MergedSection aggregates fragments with identical (name, flags excluding
// GROUP/COMPRESSED, type, entsize), spec.md §3/§4.5.
type MergedSection struct {
	Name      string
	ShFlags   uint64
	ShType    uint32
	ShEntSize uint64

	Shards []*FragmentShard

	// Size is the final aggregate size, assigned once fragments are
	// offset-assigned in stage 5.
	Size uint64

	// VAddr is this section's assigned virtual address, filled in once
	// stage 8 (internal/layout) has placed the owning MergedSectionChunk.
	// A fragment's runtime address is VAddr+fragment.Offset.
	VAddr uint64
}

// FragmentShard is one concurrent-map shard of a MergedSection, mirroring
// the bucket-shard design of flapc's hashmap.go (FlapHashMap), adapted from
// a fixed string->string map to a content-hash->*SectionFragment map keyed
// additionally by a HyperLogLog cardinality pre-sizing estimator (spec.md
// §4.5).
type FragmentShard struct {
	mu        sync.Mutex
	fragments map[string]*SectionFragment
}

// GetOrCreate returns the existing fragment for bytes, or installs and
// returns a fresh one. Callers route to a shard by content hash before
// calling this (internal/concmap carries the general-purpose version used
// for the symbol table; this method exists for the merge engine's
// specialized SectionFragment identity rule).
func (s *FragmentShard) GetOrCreate(owner *MergedSection, bytes string, p2align uint8) *SectionFragment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.fragments[bytes]; ok {
		return f
	}
	f := &SectionFragment{Owner: owner, Bytes: bytes, P2Align: p2align}
	s.fragments[bytes] = f
	return f
}

// Range calls fn once for every fragment currently in this shard, in
// indeterminate order, for a caller (stage 5's AssignOffsets driver) that
// needs to collect the full fragment set across every shard.
func (s *FragmentShard) Range(fn func(*SectionFragment)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.fragments {
		fn(f)
	}
}

// NewMergedSection allocates a MergedSection with n shards, n chosen by the
// merge engine from a HyperLogLog estimate of distinct fragment count
// (spec.md §4.5).
func NewMergedSection(name string, flags uint64, shtype uint32, entsize uint64, shardCount int) *MergedSection {
	ms := &MergedSection{Name: name, ShFlags: flags, ShType: shtype, ShEntSize: entsize}
	ms.Shards = make([]*FragmentShard, shardCount)
	for i := range ms.Shards {
		ms.Shards[i] = &FragmentShard{fragments: make(map[string]*SectionFragment)}
	}
	return ms
}
