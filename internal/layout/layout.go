// Package layout implements stage 8, spec.md §4's "Lay out": chunk
// ordering, section-header/file-offset/virtual-address assignment,
// program-header synthesis, and the TP/DTP/_GLOBAL_OFFSET_TABLE_ value
// computation. New code grounded on flapc's codegen_elf_writer.go for the
// ELF/program-header field layout (generalized from "one hardcoded
// PT_LOAD pair" to "N chunks sorted into PT_LOAD/PT_TLS/PT_DYNAMIC/...
// segments by flags"), per DESIGN.md.
package layout

import (
	"sort"

	"github.com/xyproto/ldcore/internal/arch"
	"github.com/xyproto/ldcore/internal/iobj"
)

const (
	shfWrite = 0x1
	shfAlloc = 0x2
	shfExec  = 0x4
	shfTLS   = 0x400
)

// PHType mirrors the ELF p_type values this core emits, spec.md §6.
const (
	PT_NULL    = 0
	PT_LOAD    = 1
	PT_DYNAMIC = 2
	PT_INTERP  = 3
	PT_NOTE    = 4
	PT_PHDR    = 6
	PT_TLS     = 7
	PT_GNU_EH_FRAME = 0x6474e550
	PT_GNU_STACK    = 0x6474e551
	PT_GNU_RELRO    = 0x6474e552
	PT_GNU_PROPERTY = 0x6474e553
	PT_ARM_EXIDX       = 0x70000001
	PT_RISCV_ATTRIBUTES = 0x70000003
	PT_OPENBSD_RANDOMIZE = 0x65a3dbe6
)

// ProgramHeader is one PT_* entry, spec.md §6.
type ProgramHeader struct {
	Type   uint32
	Flags  uint32 // PF_X=1, PF_W=2, PF_R=4
	Offset uint64
	VAddr  uint64
	PAddr  uint64
	FileSz uint64
	MemSz  uint64
	Align  uint64
}

const (
	PF_X = 0x1
	PF_W = 0x2
	PF_R = 0x4
)

// Plan is stage 8's output: every chunk with an assigned shndx/offset/
// vaddr, plus the synthesized program header table.
type Plan struct {
	Target arch.Target

	Chunks []iobj.Chunk
	Headers []ProgramHeader

	ImageBase uint64
	EntryAddr uint64

	GOTSymbolValue uint64 // _GLOBAL_OFFSET_TABLE_
	TLSBegin       uint64 // start of the PT_TLS template, for TP/DTP math
	TLSMemSz       uint64
	TLSAlign       uint64

	FileSize uint64
}

// Options carries the small subset of config.Options layout needs,
// mirroring internal/scan's narrow Options pattern to avoid an
// internal/config import cycle as the CLI grows.
type Options struct {
	IsDSO         bool
	IsStatic      bool
	ImageBase     uint64 // --physical-image-base
	RoSegment     bool   // --rosegment: split R from RX into its own PT_LOAD
	ExecStack     bool
	RelroEnabled  bool
	GOTChunkIndex int // index into Chunks of the GOT chunk, -1 if absent
}

// Build assigns shndx/offsets/addresses to chunks in the order given
// (the caller is responsible for the chunk ordering decision itself —
// spec.md §4's stage 8 says "Order chunks" as a distinct sub-step from
// assignment, and real linkers order by a fixed convention this core
// follows via OrderChunks below) and synthesizes the program header table.
func Build(t arch.Target, chunks []iobj.Chunk, opts Options) *Plan {
	p := &Plan{Target: t, Chunks: chunks}

	base := opts.ImageBase
	if base == 0 {
		if opts.IsDSO {
			base = 0
		} else {
			base = 0x400000
		}
	}
	p.ImageBase = base

	pageSize := t.PageSize()

	var fileOff uint64
	var vaddr uint64 = base
	shndx := 1 // 0 is the reserved null section

	firstLoadOfPage := true
	var relroStart, relroEnd uint64
	inRelro := false

	for _, c := range chunks {
		align := c.ShAddrAlign()
		if align == 0 {
			align = 1
		}
		alloc := c.ShFlags()&shfAlloc != 0

		if alloc {
			if firstLoadOfPage {
				vaddr = alignUp(vaddr, pageSize)
				fileOff = alignUp(fileOff, pageSize)
				firstLoadOfPage = false
			}
			vaddr = alignUp(vaddr, align)
			// vaddr%align==0 and offset must satisfy vaddr%pagesize==offset%pagesize
			fileOff = alignForVAddr(fileOff, vaddr, pageSize)
		} else {
			fileOff = alignUp(fileOff, align)
		}

		setChunkLayout(c, shndx, fileOff, vaddr)
		shndx++

		isRelro := chunkIsRelro(c)
		if isRelro && !inRelro {
			relroStart = vaddr
			inRelro = true
		}
		if !isRelro && inRelro {
			relroEnd = vaddr
			inRelro = false
		}

		sz := c.Size()
		if c.ShType() != 8 /* SHT_NOBITS */ {
			fileOff += sz
		}
		if alloc {
			vaddr += sz
		}
	}
	if inRelro {
		relroEnd = alignUp(vaddr, pageSize)
	}

	p.FileSize = fileOff
	p.Headers = buildProgramHeaders(p, chunks, opts, relroStart, relroEnd)
	return p
}

// chunkIsRelro reports whether c's header requests RELRO placement.
func chunkIsRelro(c iobj.Chunk) bool {
	type relroAware interface{ IsRelroChunk() bool }
	if r, ok := c.(relroAware); ok {
		return r.IsRelroChunk()
	}
	return false
}

func alignUp(v, a uint64) uint64 {
	if a == 0 {
		return v
	}
	return (v + a - 1) &^ (a - 1)
}

// alignForVAddr advances fileOff to the smallest value >= fileOff with
// fileOff % pageSize == vaddr % pageSize, spec.md §8's layout invariant:
// "p_vaddr % p_align == p_offset % p_align".
func alignForVAddr(fileOff, vaddr, pageSize uint64) uint64 {
	want := vaddr % pageSize
	have := fileOff % pageSize
	if have == want {
		return fileOff
	}
	if have < want {
		return fileOff + (want - have)
	}
	return fileOff + (pageSize - have + want)
}

type layoutSetter interface {
	SetLayout(shndx int, fileOff, vaddr uint64)
}

// setChunkLayout assigns a chunk's shndx/offset/vaddr. Concrete chunk
// types embed iobj.ChunkHeader, whose SetLayout method (internal/iobj's
// chunk.go) they inherit; this asserts the layoutSetter interface and
// leaves a chunk without that method untouched.
func setChunkLayout(c iobj.Chunk, shndx int, fileOff, vaddr uint64) {
	if ls, ok := c.(layoutSetter); ok {
		ls.SetLayout(shndx, fileOff, vaddr)
	}
}

// OrderChunks sorts chunks into the conventional section order real
// linkers use: non-alloc-excluded first by a fixed priority (headers,
// interp, hash tables, dynsym/dynstr, rodata/text/data OutputSections in
// the order first seen, TLS chunks contiguous, RELRO chunks contiguous,
// non-alloc debug/symtab/strtab last). Stable sort preserves caller-
// supplied relative order within a priority bucket (e.g. OutputSection
// member order from parse order).
func OrderChunks(chunks []iobj.Chunk, priority func(iobj.Chunk) int) []iobj.Chunk {
	out := make([]iobj.Chunk, len(chunks))
	copy(out, chunks)
	sort.SliceStable(out, func(i, j int) bool { return priority(out[i]) < priority(out[j]) })
	return out
}

func buildProgramHeaders(p *Plan, chunks []iobj.Chunk, opts Options, relroStart, relroEnd uint64) []ProgramHeader {
	var hdrs []ProgramHeader
	hdrs = append(hdrs, ProgramHeader{Type: PT_PHDR, Flags: PF_R, Align: uint64(p.Target.WordSize())})

	type segKey struct{ flags uint32 }
	segs := map[segKey]*ProgramHeader{}
	var order []segKey

	for _, c := range chunks {
		if c.ShFlags()&shfAlloc == 0 {
			continue
		}
		if c.ShFlags()&shfTLS != 0 {
			continue // TLS handled separately below
		}
		flags := uint32(PF_R)
		if c.ShFlags()&shfWrite != 0 {
			flags |= PF_W
		}
		if c.ShFlags()&shfExec != 0 {
			flags |= PF_X
		}
		k := segKey{flags: flags}
		hdr, ok := segs[k]
		if !ok {
			ch := chunkAt(c)
			hdr = &ProgramHeader{Type: PT_LOAD, Flags: flags, Offset: ch.FileOffset, VAddr: ch.VAddr, PAddr: ch.VAddr, Align: p.Target.PageSize()}
			segs[k] = hdr
			order = append(order, k)
		}
		ch := chunkAt(c)
		end := ch.FileOffset + c.Size()
		if end > hdr.Offset+hdr.FileSz {
			hdr.FileSz = end - hdr.Offset
		}
		memEnd := ch.VAddr + c.Size()
		if memEnd > hdr.VAddr+hdr.MemSz {
			hdr.MemSz = memEnd - hdr.VAddr
		}
	}
	sort.Slice(order, func(i, j int) bool { return segs[order[i]].VAddr < segs[order[j]].VAddr })
	for _, k := range order {
		hdrs = append(hdrs, *segs[k])
	}

	// PT_TLS: contiguous SHF_TLS chunks become the template.
	var tlsStart, tlsEnd uint64
	var tlsAlign uint64 = 1
	haveTLS := false
	for _, c := range chunks {
		if c.ShFlags()&shfTLS == 0 {
			continue
		}
		ch := chunkAt(c)
		if !haveTLS {
			tlsStart = ch.VAddr
			haveTLS = true
		}
		end := ch.VAddr + c.Size()
		if end > tlsEnd {
			tlsEnd = end
		}
		if c.ShAddrAlign() > tlsAlign {
			tlsAlign = c.ShAddrAlign()
		}
	}
	if haveTLS {
		hdrs = append(hdrs, ProgramHeader{Type: PT_TLS, Flags: PF_R, VAddr: tlsStart, PAddr: tlsStart,
			Offset: offsetForVAddr(chunks, tlsStart), FileSz: tlsEnd - tlsStart, MemSz: tlsEnd - tlsStart, Align: tlsAlign})
		p.TLSBegin = tlsStart
		p.TLSMemSz = tlsEnd - tlsStart
		p.TLSAlign = tlsAlign
	}

	if !opts.IsStatic {
		for _, c := range chunks {
			if c.ChunkName() == ".interp" {
				ch := chunkAt(c)
				hdrs = append(hdrs, ProgramHeader{Type: PT_INTERP, Flags: PF_R, Offset: ch.FileOffset, VAddr: ch.VAddr, PAddr: ch.VAddr, FileSz: c.Size(), MemSz: c.Size(), Align: 1})
			}
			if c.ChunkName() == ".dynamic" {
				ch := chunkAt(c)
				hdrs = append(hdrs, ProgramHeader{Type: PT_DYNAMIC, Flags: PF_R | PF_W, Offset: ch.FileOffset, VAddr: ch.VAddr, PAddr: ch.VAddr, FileSz: c.Size(), MemSz: c.Size(), Align: uint64(p.Target.WordSize())})
			}
		}
	}

	for _, c := range chunks {
		if c.ChunkName() == ".eh_frame_hdr" {
			ch := chunkAt(c)
			hdrs = append(hdrs, ProgramHeader{Type: PT_GNU_EH_FRAME, Flags: PF_R, Offset: ch.FileOffset, VAddr: ch.VAddr, PAddr: ch.VAddr, FileSz: c.Size(), MemSz: c.Size(), Align: 4})
		}
		if c.ChunkName() == ".note.gnu.property" {
			ch := chunkAt(c)
			hdrs = append(hdrs, ProgramHeader{Type: PT_GNU_PROPERTY, Flags: PF_R, Offset: ch.FileOffset, VAddr: ch.VAddr, PAddr: ch.VAddr, FileSz: c.Size(), MemSz: c.Size(), Align: uint64(p.Target.WordSize())})
		}
	}

	stackFlags := uint32(PF_R | PF_W)
	if opts.ExecStack {
		stackFlags |= PF_X
	}
	hdrs = append(hdrs, ProgramHeader{Type: PT_GNU_STACK, Flags: stackFlags, Align: uint64(p.Target.WordSize())})

	if opts.RelroEnabled && relroEnd > relroStart {
		hdrs = append(hdrs, ProgramHeader{
			Type: PT_GNU_RELRO, Flags: PF_R,
			Offset: offsetForVAddr(chunks, relroStart), VAddr: relroStart, PAddr: relroStart,
			FileSz: relroEnd - relroStart, MemSz: relroEnd - relroStart, Align: 1,
		})
	}

	return hdrs
}

func chunkAt(c iobj.Chunk) struct{ FileOffset, VAddr uint64 } {
	if ls, ok := c.(headerReader); ok {
		fo, va := ls.LayoutFields()
		return struct{ FileOffset, VAddr uint64 }{fo, va}
	}
	return struct{ FileOffset, VAddr uint64 }{}
}

type headerReader interface {
	LayoutFields() (fileOffset, vaddr uint64)
}

func offsetForVAddr(chunks []iobj.Chunk, vaddr uint64) uint64 {
	for _, c := range chunks {
		ch := chunkAt(c)
		if ch.VAddr == vaddr {
			return ch.FileOffset
		}
	}
	return 0
}
