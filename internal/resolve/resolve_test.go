package resolve

import (
	"testing"

	"github.com/xyproto/ldcore/internal/iobj"
)

func TestResolveRegularBeatsShared(t *testing.T) {
	tbl := NewTable(nil)
	dso := &iobj.ObjectFile{Name: "libc.so", Priority: 10, IsDSO: true}
	reg := &iobj.ObjectFile{Name: "main.o", Priority: 1}

	tbl.Resolve(dso, "puts", 0, iobj.BindSharedDefined, false, nil)
	owner := tbl.Resolve(reg, "puts", 0, iobj.BindRegularDefined, false, nil)

	if owner.File != reg {
		t.Fatalf("owner.File = %v, want reg", owner.File)
	}
}

func TestResolveTiePriorityWins(t *testing.T) {
	tbl := NewTable(nil)
	a := &iobj.ObjectFile{Name: "a.o", Priority: 5}
	b := &iobj.ObjectFile{Name: "b.o", Priority: 1}

	tbl.Resolve(a, "foo", 0, iobj.BindRegularDefined, false, nil)
	owner := tbl.Resolve(b, "foo", 0, iobj.BindRegularDefined, false, nil)
	if owner.File != b {
		t.Fatalf("owner.File = %v, want b (lower priority number)", owner.File)
	}

	// A later, higher-priority-number candidate must not steal it back.
	owner2 := tbl.Resolve(a, "foo", 0, iobj.BindRegularDefined, false, nil)
	if owner2.File != b {
		t.Fatalf("owner.File = %v, want b to remain owner", owner2.File)
	}
}

func TestWrapRewritesBothDirections(t *testing.T) {
	tbl := NewTable([]string{"malloc"})
	if got := tbl.RewriteWrapReference("malloc"); got != "__wrap_malloc" {
		t.Fatalf("reference rewrite = %q, want __wrap_malloc", got)
	}
	if got := tbl.RewriteWrapDefinition("malloc"); got != "__wrap_malloc" {
		t.Fatalf("definition rewrite = %q, want __wrap_malloc", got)
	}
	if got := tbl.RewriteWrapReference("free"); got != "free" {
		t.Fatalf("non-wrapped name must pass through unchanged, got %q", got)
	}
}

func TestUnresolvedDiagnosticsReportsMissingDefinitions(t *testing.T) {
	tbl := NewTable(nil)
	reg := &iobj.ObjectFile{Name: "main.o", Priority: 1}
	tbl.Resolve(reg, "known", 0, iobj.BindRegularDefined, false, nil)

	diags := tbl.UnresolvedDiagnostics([]string{"known", "missing"}, func(string) bool { return false })
	if len(diags) != 1 {
		t.Fatalf("diags = %d, want 1", len(diags))
	}
	if diags[0].Symbol != "missing" {
		t.Fatalf("diags[0].Symbol = %q, want missing", diags[0].Symbol)
	}
}

func TestUnresolvedDiagnosticsRespectsIgnorePolicy(t *testing.T) {
	tbl := NewTable(nil)
	diags := tbl.UnresolvedDiagnostics([]string{"anything"}, func(string) bool { return true })
	if len(diags) != 0 {
		t.Fatalf("diags = %d, want 0 under ignore-all policy", len(diags))
	}
}
