package linkscript

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseScriptOutputFormatInputGroup(t *testing.T) {
	src := `
OUTPUT_FORMAT(elf64-x86-64, elf64-x86-64, elf64-x86-64)
GROUP ( /usr/lib/libc.a /usr/lib/libm.a AS_NEEDED ( libpthread.so.0 ) )
__data_start = .;
`
	p := NewParser(src)
	s, err := p.ParseScript()
	require.NoError(t, err)
	require.Equal(t, []string{"elf64-x86-64", "elf64-x86-64", "elf64-x86-64"}, s.OutputFormats)
	require.Len(t, s.Inputs, 3)
	require.Equal(t, "libpthread.so.0", s.Inputs[2].Name)
	require.True(t, s.Inputs[2].AsNeeded)
	require.False(t, s.Inputs[0].AsNeeded)
	require.Len(t, s.Defsyms, 1)
	require.Equal(t, "__data_start", s.Defsyms[0].Name)
}

func TestParseVersionScriptGlobalLocal(t *testing.T) {
	src := `
VER_1.0 {
  global:
    foo_*;
    bar;
  local:
    *;
};
`
	vs, err := ParseVersionScript(src)
	require.NoError(t, err)
	require.NotNil(t, vs)
	require.Len(t, vs.Versions, 1)
	v := vs.Versions[0]
	require.Equal(t, "VER_1.0", v.Name)
	require.Equal(t, 1, v.Index)
	require.True(t, vs.HasExplicitLocalCatchAll())

	a, ok := vs.Resolve("foo_bar", "foo_bar")
	require.True(t, ok)
	require.Equal(t, 1, a.VersionIndex)
	require.False(t, a.Local)

	a2, ok := vs.Resolve("unrelated_symbol", "unrelated_symbol")
	require.True(t, ok)
	require.True(t, a2.Local)
}

func TestParseVersionChainedBlocks(t *testing.T) {
	src := `
VERS_1 {
  global: foo1;
};
VERS_2 {
  global: foo2;
} VERS_1;
`
	vs, err := ParseVersionScript(src)
	require.NoError(t, err)
	require.NotNil(t, vs)
	require.Len(t, vs.Versions, 2)
	require.Equal(t, 1, vs.Versions[0].Index)
	require.Equal(t, 2, vs.Versions[1].Index)
	require.Equal(t, []string{"VERS_1"}, vs.Versions[1].Parents)
}

func TestExternCXXDemangledPattern(t *testing.T) {
	src := `
VER1 {
  global:
    extern "C++" {
      "ns::Foo::bar(int)";
    };
};
`
	vs, err := ParseVersionScript(src)
	require.NoError(t, err)
	v := vs.Versions[0]
	require.Len(t, v.Global, 1)
	require.True(t, v.Global[0].IsCXXDemangled)

	a, ok := vs.Resolve("_ZN2ns3Foo3barEi", "ns::Foo::bar(int)")
	require.True(t, ok)
	require.Equal(t, 1, a.VersionIndex)
}

func TestResolveDefsymExprPlusConstant(t *testing.T) {
	vals := map[string]uint64{"__etext": 0x2000}
	v, err := ResolveDefsymExpr("__etext + 0x10", func(name string) (uint64, bool) {
		n, ok := vals[name]
		return n, ok
	})
	require.NoError(t, err)
	require.EqualValues(t, 0x2010, v)
}

func TestResolveDefsymExprBareLiteral(t *testing.T) {
	v, err := ResolveDefsymExpr("0x1000", func(string) (uint64, bool) { return 0, false })
	require.NoError(t, err)
	require.EqualValues(t, 0x1000, v)
}
