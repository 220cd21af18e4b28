package iobj

import (
	"encoding/binary"
	"fmt"

	"github.com/xyproto/ldcore/internal/arch"
)

// Parse decodes one relocatable object or shared object's raw bytes into an
// ObjectFile (stage 1, spec.md §4.1). It follows blacktop/go-macho's
// file.go convention of a typed, fixed-layout header decode followed by
// lazy per-section content access (Contents is sliced directly out of data,
// never copied, until a later stage needs to mutate it) — generalized here
// from Mach-O's load-command table to ELF's section-header table, since
// nothing in the retrieved pack parses ELF itself.
//
// Only the ELF64 little-endian encoding is decoded in full; ELF32 and
// big-endian inputs are rejected with a plain error rather than guessed
// at, since every architecture this core registers a Target for
// (internal/arch) is LE64. The error carries no diagnostic kind;
// internal/pipeline records every Parse error as MalformedInput.
func Parse(name string, data []byte, priority int) (*ObjectFile, error) {
	if len(data) < 64 || data[0] != 0x7f || data[1] != 'E' || data[2] != 'L' || data[3] != 'F' {
		return nil, fmt.Errorf("iobj: %s: not an ELF file (bad magic)", name)
	}
	class := data[4]
	endian := data[5]
	if class != 2 {
		return nil, fmt.Errorf("iobj: %s: ELF32 input is unsupported", name)
	}
	if endian != 1 {
		return nil, fmt.Errorf("iobj: %s: big-endian ELF input is unsupported", name)
	}
	bo := binary.LittleEndian

	eType := bo.Uint16(data[16:18])
	eMachine := arch.Machine(bo.Uint16(data[18:20]))
	eShoff := bo.Uint64(data[40:48])
	eShentsize := bo.Uint16(data[58:60])
	eShnum := bo.Uint16(data[60:62])
	eShstrndx := bo.Uint16(data[62:64])

	if eShoff == 0 || eShnum == 0 {
		return nil, fmt.Errorf("iobj: %s: missing section header table", name)
	}

	type rawShdr struct {
		name      uint32
		shtype    uint32
		flags     uint64
		addr      uint64
		off       uint64
		size      uint64
		link      uint32
		info      uint32
		addralign uint64
		entsize   uint64
	}
	shdrs := make([]rawShdr, eShnum)
	for i := 0; i < int(eShnum); i++ {
		base := eShoff + uint64(i)*uint64(eShentsize)
		if base+64 > uint64(len(data)) {
			return nil, fmt.Errorf("iobj: %s: truncated section header %d", name, i)
		}
		b := data[base : base+64]
		shdrs[i] = rawShdr{
			name:      bo.Uint32(b[0:4]),
			shtype:    bo.Uint32(b[4:8]),
			flags:     bo.Uint64(b[8:16]),
			addr:      bo.Uint64(b[16:24]),
			off:       bo.Uint64(b[24:32]),
			size:      bo.Uint64(b[32:40]),
			link:      bo.Uint32(b[40:44]),
			info:      bo.Uint32(b[44:48]),
			addralign: bo.Uint64(b[48:56]),
			entsize:   bo.Uint64(b[56:64]),
		}
	}

	if int(eShstrndx) >= len(shdrs) {
		return nil, fmt.Errorf("iobj: %s: invalid section name string table index", name)
	}
	shstrtab := sliceAt(data, shdrs[eShstrndx].off, shdrs[eShstrndx].size)

	of := &ObjectFile{
		Name:     name,
		Priority: priority,
		Data:     data,
		IsDSO:    eType == 3, // ET_DYN
		Machine:  eMachine,
		Class:    arch.Class64,
		Endian:   arch.LittleEndian,
		Sections: make([]*InputSection, len(shdrs)),
	}

	for i, sh := range shdrs {
		sec := &InputSection{
			File:        of,
			Shndx:       i,
			Name:        cstrAt(shstrtab, sh.name),
			ShType:      sh.shtype,
			ShFlags:     sh.flags,
			ShAddrAlign: sh.addralign,
			ShEntSize:   sh.entsize,
			ShSize:      sh.size,
			P2Align:     p2Align(sh.addralign),
		}
		if sh.shtype != 8 { // SHT_NOBITS (.bss) has no file content
			sec.Contents = sliceAt(data, sh.off, sh.size)
		}
		// isAlive starts false (its zero value): stage 3 (internal/gc)
		// is what decides which sections survive, whether by transitive
		// mark-live or, when --gc-sections is off, by marking everything
		// alive unconditionally.
		of.Sections[i] = sec
	}

	// Locate the symbol table (SHT_SYMTAB=2, or SHT_DYNSYM=11 for a DSO
	// with no regular symtab) and its linked string table.
	symtabIdx := -1
	for i, sh := range shdrs {
		if sh.shtype == 2 {
			symtabIdx = i
			break
		}
	}
	if symtabIdx == -1 {
		for i, sh := range shdrs {
			if sh.shtype == 11 {
				symtabIdx = i
				break
			}
		}
	}
	var strtab []byte
	if symtabIdx != -1 {
		strtab = sliceAt(data, shdrs[shdrs[symtabIdx].link].off, shdrs[shdrs[symtabIdx].link].size)
		of.FirstGlobal = int(shdrs[symtabIdx].info)
		raw := sliceAt(data, shdrs[symtabIdx].off, shdrs[symtabIdx].size)
		count := len(raw) / 24
		of.Symbols = make([]*Symbol, count)
		for i := 0; i < count; i++ {
			b := raw[i*24 : i*24+24]
			nameOff := bo.Uint32(b[0:4])
			info := b[4]
			other := b[5]
			shndx := bo.Uint16(b[6:8])
			value := bo.Uint64(b[8:16])
			size := bo.Uint64(b[16:24])

			sym := &Symbol{
				Name:        cstrAt(strtab, nameOff),
				File:        of,
				SymtabIndex: i,
				Visibility:  other & 0x3,
				Size:        size,
			}
			bind := info >> 4
			sym.IsWeak = bind == 2 // STB_WEAK
			switch {
			case shndx == 0: // SHN_UNDEF
				sym.Origin = OriginUndefined
			case shndx == 0xfff1: // SHN_ABS
				sym.Origin = OriginAbsolute
				sym.AbsValue = value
			case shndx == 0xfff2: // SHN_COMMON
				sym.Bind = BindCommon
				sym.Origin = OriginAbsolute
				sym.AbsValue = value
			default:
				if int(shndx) < len(of.Sections) {
					sym.Origin = OriginInputSection
					sym.InputSec = of.Sections[shndx]
					sym.InputOffset = value
				}
			}
			if sym.Origin != OriginUndefined && sym.Bind != BindCommon {
				if of.IsDSO {
					sym.Bind = BindSharedDefined
				} else {
					sym.Bind = BindRegularDefined
				}
			}
			of.Symbols[i] = sym
		}
	}

	// Relocations (SHT_RELA=4 only; SHT_REL=9 sections are skipped
	// without an error, since every Target this core registers is
	// RELA-only per the psABI it targets).
	for _, sh := range shdrs {
		if sh.shtype != 4 {
			continue
		}
		target := int(sh.info)
		if target >= len(of.Sections) {
			continue
		}
		raw := sliceAt(data, sh.off, sh.size)
		n := len(raw) / 24
		relocs := make([]Reloc, n)
		for j := 0; j < n; j++ {
			b := raw[j*24 : j*24+24]
			offset := bo.Uint64(b[0:8])
			info := bo.Uint64(b[8:16])
			addend := int64(bo.Uint64(b[16:24]))
			relocs[j] = Reloc{
				Offset: offset,
				Type:   uint32(info),
				SymIdx: uint32(info >> 32),
				Addend: addend,
			}
		}
		of.Sections[target].Relocs = relocs
	}

	// SHT_GROUP=17 comdat groups: word 0 is the flag word (GRP_COMDAT=1),
	// remaining words are member section indices.
	for i, sh := range shdrs {
		if sh.shtype != 17 {
			continue
		}
		raw := sliceAt(data, sh.off, sh.size)
		if len(raw) < 4 {
			continue
		}
		flags := bo.Uint32(raw[0:4])
		if flags&1 == 0 {
			continue // not GRP_COMDAT, nothing this core models
		}
		signature := ""
		if int(sh.info) < len(of.Symbols) && of.Symbols[sh.info] != nil {
			signature = of.Symbols[sh.info].Name
		}
		var members []int
		for off := 4; off+4 <= len(raw); off += 4 {
			idx := bo.Uint32(raw[off : off+4])
			if int(idx) < len(of.Sections) {
				members = append(members, int(idx))
			}
		}
		of.ComdatGroups = append(of.ComdatGroups, &ComdatGroup{Signature: signature, Members: members, File: of})
		_ = i
	}

	return of, nil
}

func sliceAt(data []byte, off, size uint64) []byte {
	if off > uint64(len(data)) {
		return nil
	}
	end := off + size
	if end > uint64(len(data)) {
		end = uint64(len(data))
	}
	return data[off:end]
}

func cstrAt(tab []byte, off uint32) string {
	if uint64(off) >= uint64(len(tab)) {
		return ""
	}
	end := off
	for end < uint32(len(tab)) && tab[end] != 0 {
		end++
	}
	return string(tab[off:end])
}

func p2Align(align uint64) uint8 {
	if align == 0 {
		return 0
	}
	var n uint8
	for align > 1 {
		align >>= 1
		n++
	}
	return n
}
