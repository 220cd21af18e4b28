package diag

import (
	"bytes"
	"testing"
)

func TestBagFatalWarningsPromotion(t *testing.T) {
	b := &Bag{FatalWarnings: true}
	b.Add(Diagnostic{Kind: ResolutionError, Severity: SeverityWarning, Message: "unresolved foo"})
	if !b.HasFatal() {
		t.Fatal("warning must be promoted to fatal when FatalWarnings is set")
	}
	if b.ExitCode() != 1 {
		t.Fatalf("ExitCode = %d, want 1", b.ExitCode())
	}
}

func TestBagPlainWarningDoesNotFail(t *testing.T) {
	b := &Bag{}
	b.Add(Diagnostic{Kind: ResolutionError, Severity: SeverityWarning, Message: "unresolved foo"})
	if b.HasFatal() {
		t.Fatal("plain warning must not be fatal")
	}
	if b.ExitCode() != 0 {
		t.Fatalf("ExitCode = %d, want 0", b.ExitCode())
	}
}

func TestBagFlushRendersEachDiagnostic(t *testing.T) {
	b := &Bag{}
	b.Add(Diagnostic{Kind: RangeError, Severity: SeverityFatal, Message: "value out of range", Section: ".text", Symbol: "f"})
	var buf bytes.Buffer
	b.Flush(&buf)
	out := buf.String()
	if !bytes.Contains([]byte(out), []byte("range error")) {
		t.Fatalf("flush output missing kind label: %q", out)
	}
	if !bytes.Contains([]byte(out), []byte("value out of range")) {
		t.Fatalf("flush output missing message: %q", out)
	}
}

func TestKindStringCoversTaxonomy(t *testing.T) {
	for k := MalformedInput; k <= InternalInvariantFailure; k++ {
		if k.String() == "unknown" {
			t.Fatalf("Kind %d missing a String() case", k)
		}
	}
}
