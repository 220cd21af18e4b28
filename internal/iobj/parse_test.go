package iobj

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildMiniELF constructs the smallest valid ELF64 LE relocatable object
// this parser accepts: an ELF header, one SHT_STRTAB (section names), one
// SHT_SYMTAB with a single global symbol defined in a SHT_PROGBITS ".text"
// section, and a section header string table index.
func buildMiniELF(t *testing.T) []byte {
	t.Helper()
	bo := binary.LittleEndian

	shstrtab := []byte{0}
	shstrtab = append(shstrtab, ".text\x00"...)
	textNameOff := uint32(1)
	shstrtab = append(shstrtab, ".symtab\x00"...)
	symtabNameOff := textNameOff + 6
	shstrtab = append(shstrtab, ".strtab\x00"...)
	strtabNameOff := symtabNameOff + 8
	shstrtab = append(shstrtab, ".shstrtab\x00"...)
	shstrtabNameOff := strtabNameOff + 8

	strtab := []byte{0}
	strtab = append(strtab, "my_func\x00"...)
	symNameOff := uint32(1)

	text := make([]byte, 16)

	var sym [24]byte
	bo.PutUint32(sym[0:4], symNameOff)
	sym[4] = (1 << 4) | 0 // STB_GLOBAL, STT_NOTYPE
	sym[5] = 0
	bo.PutUint16(sym[6:8], 1) // shndx = 1 (.text)
	bo.PutUint64(sym[8:16], 0)
	bo.PutUint64(sym[16:24], 0)
	symtab := append([]byte{}, make([]byte, 24)...) // null symbol at index 0
	symtab = append(symtab, sym[:]...)

	// Section layout: 0=NULL, 1=.text, 2=.symtab, 3=.strtab, 4=.shstrtab
	const ehsize = 64
	const shentsize = 64

	var shOffsets [5]uint64
	data := make([]byte, ehsize)

	place := func(content []byte) uint64 {
		off := uint64(len(data))
		data = append(data, content...)
		return off
	}
	shOffsets[1] = place(text)
	shOffsets[2] = place(symtab)
	shOffsets[3] = place(strtab)
	shOffsets[4] = place(shstrtab)

	shoff := uint64(len(data))
	shnum := 5
	shdrs := make([]byte, shnum*shentsize)
	putShdr := func(i int, name, shtype uint32, flags, off, size uint64, link, info uint32, entsize uint64) {
		b := shdrs[i*shentsize : i*shentsize+shentsize]
		bo.PutUint32(b[0:4], name)
		bo.PutUint32(b[4:8], shtype)
		bo.PutUint64(b[8:16], flags)
		bo.PutUint64(b[16:24], 0)
		bo.PutUint64(b[24:32], off)
		bo.PutUint64(b[32:40], size)
		bo.PutUint32(b[40:44], link)
		bo.PutUint32(b[44:48], info)
		bo.PutUint64(b[48:56], 1)
		bo.PutUint64(b[56:64], entsize)
	}
	putShdr(0, 0, 0, 0, 0, 0, 0, 0, 0)
	putShdr(1, textNameOff, 1 /* PROGBITS */, 0x6, shOffsets[1], uint64(len(text)), 0, 0, 0)
	putShdr(2, symtabNameOff, 2 /* SYMTAB */, 0, shOffsets[2], uint64(len(symtab)), 3, 1, 24)
	putShdr(3, strtabNameOff, 3 /* STRTAB */, 0, shOffsets[3], uint64(len(strtab)), 0, 0, 0)
	putShdr(4, shstrtabNameOff, 3 /* STRTAB */, 0, shOffsets[4], uint64(len(shstrtab)), 0, 0, 0)
	data = append(data, shdrs...)

	// ELF header
	copy(data[0:4], []byte{0x7f, 'E', 'L', 'F'})
	data[4] = 2 // ELFCLASS64
	data[5] = 1 // ELFDATA2LSB
	data[6] = 1
	bo.PutUint16(data[16:18], 1) // ET_REL
	bo.PutUint16(data[18:20], 62) // EM_X86_64
	bo.PutUint64(data[40:48], shoff)
	bo.PutUint16(data[58:60], shentsize)
	bo.PutUint16(data[60:62], uint16(shnum))
	bo.PutUint16(data[62:64], 4) // shstrndx

	return data
}

func TestParseMiniObjectFile(t *testing.T) {
	data := buildMiniELF(t)
	of, err := Parse("mini.o", data, 0)
	require.NoError(t, err)
	require.False(t, of.IsDSO)
	require.Len(t, of.Sections, 5)
	require.Equal(t, ".text", of.Sections[1].Name)
	require.Len(t, of.Symbols, 2)
	require.Equal(t, "my_func", of.Symbols[1].Name)
	require.Equal(t, OriginInputSection, of.Symbols[1].Origin)
	require.Same(t, of.Sections[1], of.Symbols[1].InputSec)
	require.Equal(t, BindRegularDefined, of.Symbols[1].Bind)
}

func TestParseRejectsBadMagic(t *testing.T) {
	_, err := Parse("bad.o", []byte("not an elf file at all, just junk padding"), 0)
	require.Error(t, err)
}

func TestParseRejects32Bit(t *testing.T) {
	data := buildMiniELF(t)
	data[4] = 1 // ELFCLASS32
	_, err := Parse("bad32.o", data, 0)
	require.Error(t, err)
}
