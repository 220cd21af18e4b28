package iobj

// CieRecord is a parsed view over one Common Information Entry in
// .eh_frame (spec.md §3/§4.7). CIE identity is its exact bytes plus the
// effective augmentation; duplicate CIEs across input files are coalesced
// and only one leader is emitted.
type CieRecord struct {
	File     *ObjectFile
	Contents []byte // the CIE's raw bytes, including length/id/version/augstr
	Relocs   []Reloc

	Augmentation string

	// Leader is set once coalescing runs; nil means this record itself is
	// its own leader.
	Leader *CieRecord

	// OutputOffset is assigned when EhFrame (the synthetic chunk) lays out
	// the coalesced CIE/FDE stream.
	OutputOffset uint64
}

// FdeRecord is a parsed view over one Frame Description Entry (spec.md §3).
// Each FDE points to its CIE by index within the owning file; its first
// relocation identifies the text function it covers.
type FdeRecord struct {
	File     *ObjectFile
	Contents []byte
	Relocs   []Reloc

	CieIndex int // index into File.Cies

	// FuncSection/FuncOffset is the text section+offset the FDE's first
	// relocation resolves to; if that section dies, the FDE dies with it
	// (spec.md §3).
	FuncSection *InputSection
	FuncOffset  uint64

	isAlive bool

	OutputOffset uint64
}

func (f *FdeRecord) IsAlive() bool {
	return f.isAlive && (f.FuncSection == nil || f.FuncSection.IsAlive())
}

func (f *FdeRecord) MarkAlive() { f.isAlive = true }
