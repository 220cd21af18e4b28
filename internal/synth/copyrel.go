package synth

import "github.com/xyproto/ldcore/internal/iobj"

// CopyRelSection is the copy-relocation synthetic chunk, spec.md §4.7:
// "Two instances exist: one RELRO-eligible, one writable." Adding a symbol
// reserves space aligned to the DSO's reported alignment; aliases sharing
// the same DSO address are re-pointed at the single copy (spec.md's
// "Copy relocation for imported data" scenario, §8 scenario 5).
type CopyRelSection struct {
	iobj.ChunkHeader

	// byDSOAddr groups symbols by the (DSO, original value) pair so
	// aliases share one copy, per spec.md §8 scenario 5: "every alias of
	// environ at the same DSO address shares the copy."
	byDSOAddr map[dsoAddrKey]*copyRelEntry
	order     []*copyRelEntry
	size      uint64
}

type dsoAddrKey struct {
	dso   *iobj.ObjectFile
	value uint64
}

type copyRelEntry struct {
	sym    *iobj.Symbol
	offset uint64
	size   uint64
	align  uint64
	aliases []*iobj.Symbol
}

func NewCopyRelSection(name string, readOnly bool) *CopyRelSection {
	flags := uint64(0x3) // ALLOC|WRITE
	if readOnly {
		flags = 0x2 // ALLOC only, RELRO eligible
	}
	return &CopyRelSection{
		ChunkHeader: iobj.ChunkHeader{Name: name, Flags: flags, Type: 8 /* SHT_NOBITS */, Align: 1, IsRelro: readOnly},
		byDSOAddr:   make(map[dsoAddrKey]*copyRelEntry),
	}
}

// Add reserves space for sym's copy, aligned to align bytes, size bytes
// long. dsoValue is the symbol's original value inside its defining DSO,
// used to detect and merge aliases (spec.md §8 scenario 5).
func (c *CopyRelSection) Add(sym *iobj.Symbol, dsoValue, size, align uint64) {
	if align == 0 {
		align = 1
	}
	key := dsoAddrKey{dso: sym.File, value: dsoValue}
	if e, ok := c.byDSOAddr[key]; ok {
		e.aliases = append(e.aliases, sym)
		sym.HasCopyrel = true
		return
	}
	if c.size%align != 0 {
		c.size = (c.size + align - 1) &^ (align - 1)
	}
	e := &copyRelEntry{sym: sym, offset: c.size, size: size, align: align}
	c.byDSOAddr[key] = e
	c.order = append(c.order, e)
	c.size += size
	sym.HasCopyrel = true
	if align > c.Align {
		c.Align = align
	}
}

// OffsetOf returns the assigned in-section offset for sym, whether sym
// was the first of its alias group or a later alias.
func (c *CopyRelSection) OffsetOf(sym *iobj.Symbol) uint64 {
	for _, e := range c.order {
		if e.sym == sym {
			return e.offset
		}
		for _, a := range e.aliases {
			if a == sym {
				return e.offset
			}
		}
	}
	return 0
}

// Count returns the number of distinct copy-relocation slots reserved
// (one per alias group, not one per aliasing symbol), the entry count
// internal/pipeline needs to presize .rela.dyn before Add is last called.
func (c *CopyRelSection) Count() int { return len(c.order) }

func (c *CopyRelSection) Size() uint64   { return c.size }
func (c *CopyRelSection) WriteTo([]byte) {} // SHT_NOBITS: no file content
