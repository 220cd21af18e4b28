package archive

import (
	"bytes"
	"fmt"
	"testing"
)

// buildAr constructs a minimal System V archive with the given named
// members, padding each to an even length as ar(5) requires.
func buildAr(members map[string][]byte, names []string) []byte {
	var buf bytes.Buffer
	buf.WriteString(globalHeader)
	for _, name := range names {
		data := members[name]
		hdr := make([]byte, headerSize)
		copy(hdr[0:16], []byte(fmt.Sprintf("%-16s", name+"/")))
		copy(hdr[16:28], []byte(fmt.Sprintf("%-12d", 0)))  // mtime
		copy(hdr[28:34], []byte(fmt.Sprintf("%-6d", 0)))   // uid
		copy(hdr[34:40], []byte(fmt.Sprintf("%-6d", 0)))   // gid
		copy(hdr[40:48], []byte(fmt.Sprintf("%-8s", "100644"))) // mode
		copy(hdr[48:58], []byte(fmt.Sprintf("%-10d", len(data))))
		hdr[58], hdr[59] = '`', '\n'
		buf.Write(hdr)
		buf.Write(data)
		if len(data)%2 == 1 {
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes()
}

func TestParsePlainArchiveMembers(t *testing.T) {
	data := buildAr(map[string][]byte{
		"a.o": []byte("AAAA"),
		"b.o": []byte("BBB"),
	}, []string{"a.o", "b.o"})

	ar, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ar.Thin {
		t.Fatal("plain archive misdetected as thin")
	}
	if len(ar.Members) != 2 {
		t.Fatalf("members = %d, want 2", len(ar.Members))
	}
	if ar.Members[0].Name != "a.o" || string(ar.Members[0].Data) != "AAAA" {
		t.Fatalf("member 0 = %+v", ar.Members[0])
	}
	if ar.Members[1].Name != "b.o" || string(ar.Members[1].Data) != "BBB" {
		t.Fatalf("member 1 = %+v", ar.Members[1])
	}
}

func TestParseRejectsBadMagic(t *testing.T) {
	if _, err := Parse([]byte("not an archive at all")); err == nil {
		t.Fatal("expected an error for bad magic")
	}
}

func TestParseRejectsTruncatedMember(t *testing.T) {
	data := buildAr(map[string][]byte{"a.o": []byte("AAAA")}, []string{"a.o"})
	truncated := data[:len(data)-3]
	if _, err := Parse(truncated); err == nil {
		t.Fatal("expected an error for truncated member data")
	}
}

func TestParseThinArchiveHeader(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(thinGlobalHeader)
	data := buf.Bytes()
	ar, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !ar.Thin {
		t.Fatal("thin archive misdetected as plain")
	}
	if len(ar.Members) != 0 {
		t.Fatalf("expected no members in an empty thin archive, got %d", len(ar.Members))
	}
}
