// Package config is the flat Options struct covering spec.md §6's CLI
// surface, bound from cobra/pflag/viper in cmd/ldcore. The linker core
// itself never imports cobra or viper (SPEC_FULL.md's AMBIENT STACK
// section: "the linker core never sees cobra or viper types"); this
// package is the boundary struct that crosses from the CLI layer into the
// pipeline.
package config

// HashStyle selects which dynamic symbol hash table(s) to emit.
type HashStyle int

const (
	HashSysV HashStyle = iota
	HashGNU
	HashBoth
)

// ICFMode selects identical-code-folding aggressiveness (spec.md §4.4).
type ICFMode int

const (
	ICFNone ICFMode = iota
	ICFSafe
	ICFAll
)

// PackDynRelocs selects §4.6/§4.7's RELR packing behavior.
type PackDynRelocs int

const (
	PackNone PackDynRelocs = iota
	PackRELR
)

// UnresolvedSymbolsPolicy controls §4.2/§7's unresolved-reference handling.
type UnresolvedSymbolsPolicy int

const (
	UnresolvedReportAll UnresolvedSymbolsPolicy = iota
	UnresolvedIgnoreAll
	UnresolvedIgnoreInSharedLibs
	UnresolvedIgnoreInObjectFiles
)

// CompressDebug selects §6's --compress-debug-sections behavior.
type CompressDebug int

const (
	CompressNone CompressDebug = iota
	CompressZlib
	CompressZstd
)

// Options is the complete, flattened CLI surface spec.md §6 names as "only
// the options the core depends on" plus the ambient flags SPEC_FULL.md
// adds (--config, --verbose, --trace, --emit-link-report).
type Options struct {
	// Output mode
	Shared      bool
	PIE         bool
	Static      bool
	Relocatable bool // -r
	EmitRelocs  bool

	BsymbolicFunctions bool
	Bsymbolic          bool

	// -z options
	ZNow               bool
	ZRelro             bool
	ZText              bool
	ZCopyReloc         bool
	ZExecStack         bool
	ZPackRelativeRelocs bool
	ZRewriteEndbr      bool
	ZIBT               bool
	ZSHSTK             bool
	ZInitFirst         bool
	ZInterpose         bool
	ZOrigin            bool
	ZDlopen            bool
	ZNoDelete          bool
	ZNoDump            bool
	ZStackSize         uint64
	ZX86_64Variant     string // "", "v2", "v3", "v4"

	BuildID     string // "", "none", "md5", "sha1", "uuid", "0x<hex>"
	GCSections  bool
	PrintGCSections bool
	ICF         ICFMode
	PrintICFSections bool
	PackDynRelocs PackDynRelocs
	HashStyle   HashStyle

	Wrap               []string
	DynamicList        string
	VersionScript      string
	NoUndefined        bool
	AllowMultipleDefinition bool
	UnresolvedSymbols  UnresolvedSymbolsPolicy
	AllowShlibUndefined bool
	ExecuteOnly        bool
	RoSegment          bool
	Omagic             bool
	PhysicalImageBase  uint64
	SpareDynamicTags   int
	CompressDebugSections CompressDebug

	OutputPath    string
	Entry         string
	SOName        string
	RPath         string
	RunPath       string
	DynamicLinker string

	ExportDynamic         bool
	ExportDynamicSymbols  []string
	ExcludeLibs           []string
	AsNeeded              bool
	DiscardSections       []string

	FatalWarnings bool

	Inputs    []string
	LibPaths  []string

	// Ambient, non-spec flags (SPEC_FULL.md AMBIENT STACK).
	ConfigFile     string
	Verbose        bool
	Trace          bool
	EmitLinkReport string
}

// Default returns an Options with every §6 default spec.md implies: PIE
// off, relro on, lazy binding (not -z now), gnu_hash off (sysv default per
// most psABI linkers, overridable), gc-sections off.
func Default() *Options {
	return &Options{
		ZRelro:     true,
		HashStyle:  HashSysV,
		SpareDynamicTags: 5,
	}
}

// Validate performs the §7 UserError checks that must fire "before any
// pass runs": -shared combined with -pie, --execute-only combined with a
// writable text segment request (-omagic), and -static combined with
// -shared.
func (o *Options) Validate() []string {
	var errs []string
	if o.Shared && o.PIE {
		errs = append(errs, "-shared and -pie are mutually exclusive")
	}
	if o.Shared && o.Static {
		errs = append(errs, "-shared and -static are mutually exclusive")
	}
	if o.ExecuteOnly && o.Omagic {
		errs = append(errs, "--execute-only and --omagic are mutually exclusive (omagic makes text writable)")
	}
	if o.Relocatable && (o.Shared || o.PIE || o.Static) {
		errs = append(errs, "-r is incompatible with -shared/-pie/-static")
	}
	return errs
}
