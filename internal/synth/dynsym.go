package synth

import (
	"encoding/binary"
	"sort"

	"github.com/xyproto/ldcore/internal/arch"
	"github.com/xyproto/ldcore/internal/iobj"
)

// Dynstr is a deduplicating string pool, spec.md §4.7.
type Dynstr struct {
	iobj.ChunkHeader
	strings []string
	offsets map[string]uint32
	size    uint32
}

func NewDynstr(name string) *Dynstr {
	d := &Dynstr{
		ChunkHeader: iobj.ChunkHeader{Name: name, Flags: 0x2, Type: 3 /* SHT_STRTAB */, Align: 1},
		offsets:     map[string]uint32{"": 0},
		size:        1,
	}
	d.strings = append(d.strings, "\x00")
	return d
}

// Add interns s, returning its byte offset within the pool.
func (d *Dynstr) Add(s string) uint32 {
	if off, ok := d.offsets[s]; ok {
		return off
	}
	off := d.size
	d.offsets[s] = off
	d.strings = append(d.strings, s+"\x00")
	d.size += uint32(len(s) + 1)
	return off
}

func (d *Dynstr) Size() uint64 { return uint64(d.size) }

func (d *Dynstr) WriteTo(buf []byte) {
	var off int
	for _, s := range d.strings {
		copy(buf[off:], s)
		off += len(s)
	}
}

// DjbHash is the classic ELF string hash used by SysV .hash and also
// folded into GNU hash's bucket selection, spec.md §4.7.
func DjbHash(s string) uint32 {
	var h uint32 = 5381
	for i := 0; i < len(s); i++ {
		h = h*33 + uint32(s[i])
	}
	return h
}

// GnuHashValue is the GNU-hash function (the gnu_hash psABI extension). It
// computes the same h*33+c hash from seed 5381 as DjbHash, written with a
// shift-and-add.
func GnuHashValue(s string) uint32 {
	var h uint32 = 5381
	for i := 0; i < len(s); i++ {
		h = (h << 5) + h + uint32(s[i])
	}
	return h
}

// DynsymEntry is one row of .dynsym.
type DynsymEntry struct {
	Sym       *iobj.Symbol
	NameOff   uint32
	Info      uint8 // (bind<<4)|type
	Shndx     uint16
	Value     uint64
	Size      uint64
	IsUndef   bool
	IsExported bool
}

// Dynsym is built in two halves per spec.md §4.7: "Dynsym is built in two
// halves: symbols, then exported symbols sorted for GNU-hash bucketing
// (stable by file priority)."
type Dynsym struct {
	iobj.ChunkHeader
	target  arch.Target
	strtab  *Dynstr
	entries []DynsymEntry // index 0 is the reserved null entry

	NumLocalLike int // count of entries before the exported/bucketed half
}

func NewDynsym(t arch.Target, strtab *Dynstr) *Dynsym {
	ds := &Dynsym{
		ChunkHeader: iobj.ChunkHeader{Name: ".dynsym", Flags: 0x2, Type: 11 /* SHT_DYNSYM */, Align: uint64(t.WordSize())},
		target:      t, strtab: strtab,
	}
	ds.entries = append(ds.entries, DynsymEntry{}) // reserved zero entry
	return ds
}

// AddNonExported appends sym (an imported-but-not-exported or local
// dynamic symbol) to the first half.
func (d *Dynsym) AddNonExported(sym *iobj.Symbol, info uint8, value, size uint64) {
	idx := len(d.entries)
	d.entries = append(d.entries, DynsymEntry{
		Sym: sym, NameOff: d.strtab.Add(sym.Name), Info: info, Value: value, Size: size,
	})
	sym.Aux().DynSymIdx = int32(idx)
	d.NumLocalLike = len(d.entries)
}

// FinalizeExported appends the exported-symbol half, sorted by
// (GNU-hash-bucket, djb-hash) as spec.md §8's Dynsym invariant requires,
// for a hash table with nbuckets buckets.
func (d *Dynsym) FinalizeExported(exported []*iobj.Symbol, infoFor func(*iobj.Symbol) uint8,
	valueFor func(*iobj.Symbol) (uint64, uint64), nbuckets uint32) {

	sort.Slice(exported, func(i, j int) bool {
		hi, hj := GnuHashValue(exported[i].Name), GnuHashValue(exported[j].Name)
		bi, bj := hi%nbuckets, hj%nbuckets
		if bi != bj {
			return bi < bj
		}
		return DjbHash(exported[i].Name) < DjbHash(exported[j].Name)
	})
	for _, sym := range exported {
		idx := len(d.entries)
		val, size := valueFor(sym)
		d.entries = append(d.entries, DynsymEntry{
			Sym: sym, NameOff: d.strtab.Add(sym.Name), Info: infoFor(sym),
			Value: val, Size: size, IsExported: true,
		})
		sym.Aux().DynSymIdx = int32(idx)
	}
}

func (d *Dynsym) entSize() int {
	if d.target.WordSize() == 8 {
		return 24
	}
	return 16
}

func (d *Dynsym) Size() uint64 { return uint64(len(d.entries) * d.entSize()) }

func (d *Dynsym) WriteTo(buf []byte) {
	es := d.entSize()
	for i, e := range d.entries {
		off := i * es
		if d.target.WordSize() == 8 {
			binary.LittleEndian.PutUint32(buf[off:], e.NameOff)
			buf[off+4] = e.Info
			buf[off+5] = 0
			binary.LittleEndian.PutUint16(buf[off+6:], e.Shndx)
			binary.LittleEndian.PutUint64(buf[off+8:], e.Value)
			binary.LittleEndian.PutUint64(buf[off+16:], e.Size)
		} else {
			binary.LittleEndian.PutUint32(buf[off:], e.NameOff)
			binary.LittleEndian.PutUint32(buf[off+4:], uint32(e.Value))
			binary.LittleEndian.PutUint32(buf[off+8:], uint32(e.Size))
			buf[off+12] = e.Info
			buf[off+13] = 0
			binary.LittleEndian.PutUint16(buf[off+14:], e.Shndx)
		}
	}
}

// Entries exposes the built rows for GnuHash/Hash table construction.
func (d *Dynsym) Entries() []DynsymEntry { return d.entries }

// GnuHash builds the .gnu.hash table: a Bloom filter sized to ~12
// bits/exported symbol, buckets, and a chained hash array whose last
// entry per chain has its LSB set (spec.md §4.7).
type GnuHash struct {
	iobj.ChunkHeader
	target    arch.Target
	dynsym    *Dynsym
	symOffset int // first dynsym index that participates (NumLocalLike)

	nbuckets  uint32
	bloomSize uint32
	bloomShift uint32
}

func NewGnuHash(t arch.Target, dynsym *Dynsym) *GnuHash {
	return &GnuHash{
		ChunkHeader: iobj.ChunkHeader{Name: ".gnu.hash", Flags: 0x2, Type: 0x6ffffff6 /* SHT_GNU_HASH */, Align: uint64(t.WordSize())},
		target:      t, dynsym: dynsym,
	}
}

// Finalize computes nbuckets/bloom sizing from the number of exported
// symbols, per spec.md §4.7 ("~12 bits/exported-symbol").
func (g *GnuHash) Finalize() {
	g.symOffset = g.dynsym.NumLocalLike
	n := len(g.dynsym.entries) - g.symOffset
	if n < 1 {
		n = 1
	}
	g.nbuckets = uint32(n)
	if g.nbuckets < 1 {
		g.nbuckets = 1
	}
	bits := uint32(n * 12)
	words := bits / uint32(g.target.WordSize()*8)
	if words < 1 {
		words = 1
	}
	g.bloomSize = nextPow2(words)
	g.bloomShift = 6
}

func nextPow2(n uint32) uint32 {
	p := uint32(1)
	for p < n {
		p <<= 1
	}
	return p
}

func (g *GnuHash) Size() uint64 {
	ws := uint64(g.target.WordSize())
	nsyms := uint64(len(g.dynsym.entries) - g.symOffset)
	return 16 + uint64(g.bloomSize)*ws + uint64(g.nbuckets)*4 + nsyms*4
}

func (g *GnuHash) WriteTo(buf []byte) {
	ws := g.target.WordSize()
	binary.LittleEndian.PutUint32(buf[0:], g.nbuckets)
	binary.LittleEndian.PutUint32(buf[4:], uint32(g.symOffset))
	binary.LittleEndian.PutUint32(buf[8:], g.bloomSize)
	binary.LittleEndian.PutUint32(buf[12:], g.bloomShift)

	bloomOff := 16
	bucketOff := bloomOff + int(g.bloomSize)*ws
	chainOff := bucketOff + int(g.nbuckets)*4

	entries := g.dynsym.entries[g.symOffset:]
	hashes := make([]uint32, len(entries))
	buckets := make([]int, g.nbuckets)
	for i := range buckets {
		buckets[i] = -1
	}
	last := make([]int, g.nbuckets)
	for i := range last {
		last[i] = -1
	}

	bitsPerWord := uint32(ws * 8)
	for i, e := range entries {
		h := GnuHashValue(e.Sym.Name)
		hashes[i] = h
		b := h % g.nbuckets

		word := (h / bitsPerWord) % g.bloomSize
		bit1 := h % bitsPerWord
		bit2 := (h >> g.bloomShift) % bitsPerWord
		wOff := bloomOff + int(word)*ws
		if ws == 8 {
			v := binary.LittleEndian.Uint64(buf[wOff:])
			v |= (uint64(1) << bit1) | (uint64(1) << bit2)
			binary.LittleEndian.PutUint64(buf[wOff:], v)
		} else {
			v := binary.LittleEndian.Uint32(buf[wOff:])
			v |= (uint32(1) << bit1) | (uint32(1) << bit2)
			binary.LittleEndian.PutUint32(buf[wOff:], v)
		}

		if buckets[b] == -1 {
			buckets[b] = i
		}
		last[b] = i
	}
	for b, idx := range buckets {
		if idx >= 0 {
			binary.LittleEndian.PutUint32(buf[bucketOff+b*4:], uint32(idx+g.symOffset))
		}
	}
	for i, h := range hashes {
		v := h &^ 1
		if i == last[h%g.nbuckets] {
			v |= 1
		}
		binary.LittleEndian.PutUint32(buf[chainOff+i*4:], v)
	}
}

// SysVHash is the classic SHT_HASH table: nbucket, nchain, buckets[],
// chain[].
type SysVHash struct {
	iobj.ChunkHeader
	dynsym *Dynsym
}

func NewSysVHash(t arch.Target, dynsym *Dynsym) *SysVHash {
	return &SysVHash{
		ChunkHeader: iobj.ChunkHeader{Name: ".hash", Flags: 0x2, Type: 5 /* SHT_HASH */, Align: 4},
		dynsym:      dynsym,
	}
}

func (h *SysVHash) nbucket() uint32 {
	n := uint32(len(h.dynsym.entries))
	if n < 1 {
		n = 1
	}
	return n
}

func (h *SysVHash) Size() uint64 {
	n := uint64(len(h.dynsym.entries))
	return 8 + uint64(h.nbucket())*4 + n*4
}

func (h *SysVHash) WriteTo(buf []byte) {
	nb := h.nbucket()
	nc := uint32(len(h.dynsym.entries))
	binary.LittleEndian.PutUint32(buf[0:], nb)
	binary.LittleEndian.PutUint32(buf[4:], nc)
	bucketOff := 8
	chainOff := bucketOff + int(nb)*4
	buckets := make([]int32, nb)
	for i := range buckets {
		buckets[i] = 0
	}
	chain := make([]int32, nc)
	for i, e := range h.dynsym.entries {
		if i == 0 || e.Sym == nil {
			continue
		}
		b := DjbHash(e.Sym.Name) % nb
		chain[i] = buckets[b]
		buckets[b] = int32(i)
	}
	for i, b := range buckets {
		binary.LittleEndian.PutUint32(buf[bucketOff+i*4:], uint32(b))
	}
	for i, c := range chain {
		binary.LittleEndian.PutUint32(buf[chainOff+i*4:], uint32(c))
	}
}
