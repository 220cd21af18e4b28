// Package archive reads System V ar archives and thin archives (spec.md
// §6: "Archive files using the System V !<arch>\n header and thin archives
// !<thin>\n that store paths instead of member bytes"). It is new code —
// flapc never reads archives, it only emits object files for the flap
// toolchain — built directly from the ar(5) format description, in the
// same "parse a flat header, then a byte region" style flapc's own
// elf.go/codegen_elf_writer.go use for ELF.
package archive

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	globalHeader     = "!<arch>\n"
	thinGlobalHeader = "!<thin>\n"
	headerSize       = 60
)

// Member is one archive member: either inline bytes (plain archive) or a
// Path to an on-disk file (thin archive), per spec.md §6.
type Member struct {
	Name string
	Path string // set only for thin-archive members
	Data []byte // set only for plain-archive members
}

// Archive is the parsed result of one ar file.
type Archive struct {
	Thin    bool
	Members []Member
}

// Parse decodes data as a System V archive. It fails with a malformed-input
// style error on a truncated or misaligned member table; the caller
// (internal/pipeline's stage-1 archive loader) wraps this into a
// diag.MalformedInput diagnostic naming the archive path.
func Parse(data []byte) (*Archive, error) {
	if len(data) < len(globalHeader) {
		return nil, fmt.Errorf("archive truncated: shorter than global header")
	}
	thin := false
	switch {
	case string(data[:len(globalHeader)]) == globalHeader:
	case string(data[:len(thinGlobalHeader)]) == thinGlobalHeader:
		thin = true
	default:
		return nil, fmt.Errorf("not an ar archive: bad magic")
	}

	off := len(globalHeader)
	if thin {
		off = len(thinGlobalHeader)
	}

	var longNames string
	var members []Member

	for off+headerSize <= len(data) {
		hdr := data[off : off+headerSize]
		name := strings.TrimRight(string(hdr[0:16]), " ")
		sizeStr := strings.TrimSpace(string(hdr[48:58]))
		size, err := strconv.Atoi(sizeStr)
		if err != nil {
			return nil, fmt.Errorf("archive member at offset %d: malformed size field %q", off, sizeStr)
		}
		if size < 0 {
			return nil, fmt.Errorf("archive member at offset %d: negative size", off)
		}
		off += headerSize

		// GNU "//" is the long-name table; names longer than 16 bytes are
		// stored there and referenced as "/<offset>".
		if name == "//" {
			if off+size > len(data) {
				return nil, fmt.Errorf("archive long-name table truncated")
			}
			longNames = string(data[off : off+size])
			off += size
			if off%2 == 1 && off < len(data) {
				off++ // ar entries are 2-byte aligned
			}
			continue
		}

		// GNU "/" is the symbol index; skip it, spec.md §6 doesn't model
		// archive symbol-index-based lazy extraction for this core — member
		// inclusion is iterative per spec.md §4.2, independent of the ar
		// symbol index.
		if name == "/" {
			if off+size > len(data) {
				return nil, fmt.Errorf("archive symbol table truncated")
			}
			off += size
			if off%2 == 1 && off < len(data) {
				off++
			}
			continue
		}

		if strings.HasPrefix(name, "/") {
			idxStr := name[1:]
			idx, err := strconv.Atoi(idxStr)
			if err != nil {
				return nil, fmt.Errorf("archive member at offset %d: bad long-name reference %q", off-headerSize, name)
			}
			if idx >= len(longNames) {
				return nil, fmt.Errorf("archive member at offset %d: long-name offset out of range", off-headerSize)
			}
			end := strings.IndexByte(longNames[idx:], '/')
			if end < 0 {
				name = longNames[idx:]
			} else {
				name = longNames[idx : idx+end]
			}
		} else {
			name = strings.TrimSuffix(name, "/")
		}

		if thin {
			members = append(members, Member{Name: name, Path: name})
			// Thin-archive member table entries still carry a size field
			// but no inline bytes follow; spec.md §6: "store paths instead
			// of member bytes".
		} else {
			if off+size > len(data) {
				return nil, fmt.Errorf("archive member %q truncated: declares %d bytes past EOF", name, size)
			}
			buf := make([]byte, size)
			copy(buf, data[off:off+size])
			members = append(members, Member{Name: name, Data: buf})
			off += size
			if off%2 == 1 && off < len(data) {
				off++
			}
		}
	}

	return &Archive{Thin: thin, Members: members}, nil
}
