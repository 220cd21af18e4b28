package synth

import (
	"encoding/binary"

	"github.com/xyproto/ldcore/internal/arch"
	"github.com/xyproto/ldcore/internal/iobj"
)

// DT_* tags this core emits, spec.md §4.7.
const (
	DT_NULL     = 0
	DT_NEEDED   = 1
	DT_PLTRELSZ = 2
	DT_PLTGOT   = 3
	DT_HASH     = 4
	DT_STRTAB   = 5
	DT_SYMTAB   = 6
	DT_RELA     = 7
	DT_RELASZ   = 8
	DT_RELAENT  = 9
	DT_STRSZ    = 10
	DT_SYMENT   = 11
	DT_INIT     = 12
	DT_FINI     = 13
	DT_SONAME   = 14
	DT_RPATH    = 15
	DT_SYMBOLIC = 16
	DT_REL      = 17
	DT_RELSZ    = 18
	DT_RELENT   = 19
	DT_PLTREL   = 20
	DT_DEBUG    = 21
	DT_TEXTREL  = 22
	DT_JMPREL   = 23
	DT_BIND_NOW = 24
	DT_INIT_ARRAY     = 25
	DT_FINI_ARRAY     = 26
	DT_INIT_ARRAYSZ   = 27
	DT_FINI_ARRAYSZ   = 28
	DT_RUNPATH        = 29
	DT_FLAGS          = 30
	DT_VERSYM         = 0x6ffffff0
	DT_RELACOUNT      = 0x6ffffff9
	DT_RELCOUNT       = 0x6ffffffa
	DT_VERDEF         = 0x6ffffffc
	DT_VERDEFNUM      = 0x6ffffffd
	DT_VERNEED        = 0x6ffffffe
	DT_VERNEEDNUM     = 0x6fffffff
	DT_GNU_HASH       = 0x6ffffef5
	DT_RELR           = 0x6fffffba
	DT_RELRSZ         = 0x6fffffbb
	DT_RELRENT        = 0x6fffffbc
	DT_FLAGS_1        = 0x6ffffffb
)

// DF_* (DT_FLAGS) and DF_1_* (DT_FLAGS_1) bits this core sets, spec.md §4.7.
const (
	DF_ORIGIN     = 0x1
	DF_SYMBOLIC   = 0x2
	DF_TEXTREL    = 0x4
	DF_BIND_NOW   = 0x8
	DF_STATIC_TLS = 0x10

	DF_1_NOW       = 0x1
	DF_1_NODELETE  = 0x8
	DF_1_INITFIRST = 0x20
	DF_1_NOOPEN    = 0x40
	DF_1_ORIGIN    = 0x80
	DF_1_INTERPOSE = 0x400
	DF_1_PIE       = 0x08000000
)

// DynTag is one (tag, value) pair of the dynamic section.
type DynTag struct {
	Tag   int64
	Value uint64
}

// Dynamic is the PT_DYNAMIC / .dynamic synthetic chunk, spec.md §4.7.
// Callers append tags in the exact order they want emitted (real linkers
// follow a conventional order; this core's ordering is driven entirely by
// internal/pipeline, which calls Add in the sequence spec.md documents), then
// call Finalize to append spare slots and the terminating DT_NULL.
type Dynamic struct {
	iobj.ChunkHeader
	target arch.Target
	tags   []DynTag
}

func NewDynamic(t arch.Target) *Dynamic {
	return &Dynamic{
		ChunkHeader: iobj.ChunkHeader{Name: ".dynamic", Flags: 0x3, Type: 6 /* SHT_DYNAMIC */, Align: uint64(t.WordSize())},
		target:      t,
	}
}

func (d *Dynamic) Add(tag int64, value uint64) { d.tags = append(d.tags, DynTag{tag, value}) }

// Reset discards every tag added so far. internal/pipeline sizes this
// chunk with a placeholder pass before layout (the tag set a given config
// produces is address-independent) and calls Reset before the real,
// address-filled pass once layout has run.
func (d *Dynamic) Reset() { d.tags = d.tags[:0] }

// Finalize appends `spare` DT_NULL padding entries (spec.md's
// --spare-dynamic-tags supplemented feature) followed by the mandatory
// final DT_NULL.
func (d *Dynamic) Finalize(spare int) {
	for i := 0; i < spare; i++ {
		d.Add(DT_NULL, 0)
	}
	d.Add(DT_NULL, 0)
}

func (d *Dynamic) entSize() uint64 { return uint64(d.target.WordSize()) * 2 }
func (d *Dynamic) Size() uint64    { return uint64(len(d.tags)) * d.entSize() }

func (d *Dynamic) WriteTo(buf []byte) {
	es := int(d.entSize())
	ws := d.target.WordSize()
	for i, t := range d.tags {
		off := i * es
		if ws == 8 {
			binary.LittleEndian.PutUint64(buf[off:], uint64(t.Tag))
			binary.LittleEndian.PutUint64(buf[off+8:], t.Value)
		} else {
			binary.LittleEndian.PutUint32(buf[off:], uint32(t.Tag))
			binary.LittleEndian.PutUint32(buf[off+4:], uint32(t.Value))
		}
	}
}

// VersionDef is one Verdef entry (our own symbol version), and
// VersionNeed is one Verneed entry (a dependency's required version),
// spec.md §4.7 Verdef/Verneed.
type VersionDef struct {
	Index uint16
	Name  string
	Flags uint16
}

type VersionNeed struct {
	File     string
	Versions []VerneedAux
}

type VerneedAux struct {
	Name  string
	Index uint16
	Hash  uint32
	Weak  bool
}

// Versym is the per-dynsym-entry 16-bit version index array.
type Versym struct {
	iobj.ChunkHeader
	Indices []uint16
}

func NewVersym() *Versym {
	return &Versym{ChunkHeader: iobj.ChunkHeader{Name: ".gnu.version", Flags: 0x2, Type: 0x6fffffff /* SHT_GNU_versym */, Align: 2}}
}

func (v *Versym) Size() uint64 { return uint64(len(v.Indices)) * 2 }
func (v *Versym) WriteTo(buf []byte) {
	for i, idx := range v.Indices {
		binary.LittleEndian.PutUint16(buf[i*2:], idx)
	}
}

// Verdef is the .gnu.version_d synthetic chunk.
type Verdef struct {
	iobj.ChunkHeader
	target  arch.Target
	strtab  *Dynstr
	Defs    []VersionDef
}

func NewVerdef(t arch.Target, strtab *Dynstr) *Verdef {
	return &Verdef{
		ChunkHeader: iobj.ChunkHeader{Name: ".gnu.version_d", Flags: 0x2, Type: 0x6ffffffd /* SHT_GNU_verdef */, Align: uint64(t.WordSize())},
		target:      t, strtab: strtab,
	}
}

func (v *Verdef) Size() uint64 {
	var total uint64
	for range v.Defs {
		total += 20 + 8 // Verdef header + one Verdaux
	}
	return total
}

func (v *Verdef) WriteTo(buf []byte) {
	off := 0
	for i, d := range v.Defs {
		binary.LittleEndian.PutUint16(buf[off:], 1) // vd_version
		binary.LittleEndian.PutUint16(buf[off+2:], d.Flags)
		binary.LittleEndian.PutUint16(buf[off+4:], d.Index)
		binary.LittleEndian.PutUint16(buf[off+6:], 1) // vd_cnt
		binary.LittleEndian.PutUint32(buf[off+8:], gnuHashForVerdef(d.Name))
		binary.LittleEndian.PutUint32(buf[off+12:], 20) // vd_aux
		next := uint32(0)
		if i != len(v.Defs)-1 {
			next = 28
		}
		binary.LittleEndian.PutUint32(buf[off+16:], next)
		binary.LittleEndian.PutUint32(buf[off+20:], v.strtab.Add(d.Name))
		binary.LittleEndian.PutUint32(buf[off+24:], 0) // vda_next (last aux)
		off += 28
	}
}

func gnuHashForVerdef(name string) uint32 { return DjbHash(name) }

// Verneed is the .gnu.version_r synthetic chunk.
type Verneed struct {
	iobj.ChunkHeader
	target arch.Target
	strtab *Dynstr
	Needs  []VersionNeed
}

func NewVerneed(t arch.Target, strtab *Dynstr) *Verneed {
	return &Verneed{
		ChunkHeader: iobj.ChunkHeader{Name: ".gnu.version_r", Flags: 0x2, Type: 0x6ffffffe /* SHT_GNU_verneed */, Align: uint64(t.WordSize())},
		target:      t, strtab: strtab,
	}
}

func (v *Verneed) Size() uint64 {
	var total uint64
	for _, n := range v.Needs {
		total += 16 + uint64(len(n.Versions))*16
	}
	return total
}

func (v *Verneed) WriteTo(buf []byte) {
	off := 0
	for i, n := range v.Needs {
		binary.LittleEndian.PutUint16(buf[off:], 1) // vn_version
		binary.LittleEndian.PutUint16(buf[off+2:], uint16(len(n.Versions)))
		binary.LittleEndian.PutUint32(buf[off+4:], v.strtab.Add(n.File))
		binary.LittleEndian.PutUint32(buf[off+8:], 16) // vn_aux
		next := uint32(0)
		if i != len(v.Needs)-1 {
			next = 16 + uint32(len(n.Versions))*16
		}
		binary.LittleEndian.PutUint32(buf[off+12:], next)
		auxOff := off + 16
		for j, a := range n.Versions {
			flags := uint16(0)
			if a.Weak {
				flags = 2 // VER_FLG_WEAK
			}
			binary.LittleEndian.PutUint32(buf[auxOff:], a.Hash)
			binary.LittleEndian.PutUint16(buf[auxOff+4:], flags)
			binary.LittleEndian.PutUint16(buf[auxOff+6:], a.Index)
			binary.LittleEndian.PutUint32(buf[auxOff+8:], v.strtab.Add(a.Name))
			auxNext := uint32(0)
			if j != len(n.Versions)-1 {
				auxNext = 16
			}
			binary.LittleEndian.PutUint32(buf[auxOff+12:], auxNext)
			auxOff += 16
		}
		off += 16 + len(n.Versions)*16
	}
}
