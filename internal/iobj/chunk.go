package iobj

// Chunk is any contiguous byte region of the output file (spec.md §3). The
// layout stage (internal/layout) assigns every Chunk an shndx, a file
// offset, and (for SHF_ALLOC chunks) a virtual address; the synth stage
// (internal/synth) populates each Chunk's bytes once addresses are known.
type Chunk interface {
	ChunkName() string
	ShType() uint32
	ShFlags() uint64
	ShAddrAlign() uint64

	// Size returns the chunk's current size estimate. Most synthetic
	// chunks have a two-phase size: an upper bound known right after
	// scanning, and an exact size once symbol assignment finishes. Callers
	// re-invoke Size after UpdateSize.
	Size() uint64

	// WriteTo copies this chunk's final bytes into buf at its assigned
	// file offset region (buf is pre-sliced to exactly Size() bytes by the
	// caller).
	WriteTo(buf []byte)
}

// ChunkHeader is embedded by every concrete Chunk to carry the layout
// fields spec.md §3 lists as common to all chunks: "name, output section
// header ..., assigned shndx ..., reldyn_offset, is_relro flag, optional
// relr vector".
type ChunkHeader struct {
	Name    string
	Type    uint32
	Flags   uint64
	Align   uint64

	Shndx int

	FileOffset uint64
	VAddr      uint64 // meaningful only when Flags & SHF_ALLOC != 0

	RelDynOffset uint64
	IsRelro      bool

	// Relr holds packed base-relocation offsets once internal/synth's GOT
	// chunk (or any other RELRO-eligible chunk) decides to pack into
	// .relr.dyn instead of emitting individual R_RELATIVE entries.
	Relr []uint64
}

func (h *ChunkHeader) ChunkName() string   { return h.Name }
func (h *ChunkHeader) ShType() uint32      { return h.Type }
func (h *ChunkHeader) ShFlags() uint64     { return h.Flags }
func (h *ChunkHeader) ShAddrAlign() uint64 { return h.Align }

// SetLayout is called once by internal/layout's stage-8 placement loop to
// assign this chunk's final shndx/file-offset/virtual-address.
func (h *ChunkHeader) SetLayout(shndx int, fileOffset, vaddr uint64) {
	h.Shndx = shndx
	h.FileOffset = fileOffset
	h.VAddr = vaddr
}

// LayoutFields exposes the fields SetLayout assigned, for internal/layout's
// program-header synthesis pass (which runs after every chunk has its
// final placement and needs to read it back generically across chunk
// types).
func (h *ChunkHeader) LayoutFields() (fileOffset, vaddr uint64) {
	return h.FileOffset, h.VAddr
}

// IsRelroChunk reports whether this chunk belongs in the PT_GNU_RELRO
// region, spec.md §3: "Chunks with is_relro = true are placed contiguously
// ending at a page boundary."
func (h *ChunkHeader) IsRelroChunk() bool { return h.IsRelro }

// OutputSection aggregates input sections sharing (name, flags, type),
// spec.md §3's "OutputSection" chunk subtype.
type OutputSection struct {
	ChunkHeader
	Members []*InputSection
	size    uint64
}

func NewOutputSection(name string, flags uint64, shtype uint32, align uint64) *OutputSection {
	return &OutputSection{ChunkHeader: ChunkHeader{Name: name, Flags: flags, Type: shtype, Align: align}}
}

func (o *OutputSection) Size() uint64 { return o.size }

// Recompute walks Members in their assigned order, packing each at the
// next alignment-satisfying offset, and returns the total size. This is
// stage 8's per-output-section packing step (spec.md §3 invariants: "Every
// alive input section belongs to exactly one output section").
func (o *OutputSection) Recompute() uint64 {
	var off uint64
	for _, m := range o.Members {
		if m.P2Align > 0 {
			a := uint64(1) << m.P2Align
			off = (off + a - 1) &^ (a - 1)
		}
		m.OutputOffset = off
		m.OutputSec = o
		off += m.ShSize
	}
	o.size = off
	return off
}

func (o *OutputSection) WriteTo(buf []byte) {
	for _, m := range o.Members {
		if !m.IsAlive() || m.Leader != nil && m.Leader != m {
			continue
		}
		copy(buf[m.OutputOffset:], m.Contents)
	}
}

// RelroPaddingSection pads the RELRO region out to a page boundary, spec.md
// §3: "a RelroPaddingSection is appended so the PT_GNU_RELRO segment ends
// page-aligned."
type RelroPaddingSection struct {
	ChunkHeader
	padding uint64
}

func NewRelroPadding(padding uint64) *RelroPaddingSection {
	return &RelroPaddingSection{
		ChunkHeader: ChunkHeader{Name: ".relro_padding", Flags: 0x3, Type: 8 /* SHT_NOBITS */, Align: 1, IsRelro: true},
		padding:     padding,
	}
}

func (r *RelroPaddingSection) Size() uint64    { return r.padding }
func (r *RelroPaddingSection) WriteTo([]byte)  {}
