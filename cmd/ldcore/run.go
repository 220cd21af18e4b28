package main

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/xyproto/ldcore/internal/applier"
	"github.com/xyproto/ldcore/internal/config"
	"github.com/xyproto/ldcore/internal/diag"
	"github.com/xyproto/ldcore/internal/iobj"
	"github.com/xyproto/ldcore/internal/pipeline"
	"github.com/xyproto/ldcore/internal/synth"
)

// Run drives the ten-stage pipeline end to end (spec.md §4), following the
// same "parse, transform, emit" shape as flapc's cli.go RunCompiler, now
// generalized across stage checkpoints instead of one straight-line pass.
// Returns the process exit code spec.md §7 specifies: 0 on success, 1 on
// any fatal diagnostic after the full diagnostic flush.
func Run(opts *config.Options) int {
	logger := diag.NewLogger(opts.Verbose, opts.Trace)
	if diag.DebugCommandLine() {
		logger.Info("ldcore invoked", "args", os.Args)
	}

	p := pipeline.New(opts)

	stages := []struct {
		name string
		run  func() error
	}{
		{"parse", p.LoadInputs},
		{"resolve", p.Resolve},
		{"mark-live", p.MarkLive},
		{"fold-identical", p.FoldIdentical},
		{"merge-sections", p.MergeSections},
	}
	for _, st := range stages {
		if err := st.run(); err != nil {
			p.Diag.Flush(os.Stderr)
			return p.Diag.ExitCode()
		}
		logger.Debug("stage complete", "stage", st.name)
	}

	scanRes, err := p.ScanRelocations()
	if err != nil {
		p.Diag.Flush(os.Stderr)
		return p.Diag.ExitCode()
	}

	chunks, synthOut := p.BuildSynthetics(scanRes)
	plan := p.Layout(chunks)

	for _, ms := range p.MergedSections {
		for _, c := range plan.Chunks {
			if mc, ok := c.(*synth.MergedSectionChunk); ok && mc.ChunkName() == ms.Name {
				_, ms.VAddr = mc.LayoutFields()
				break
			}
		}
	}
	p.FinalizeSynthetics(synthOut, plan)

	// Range-extension thunks (§4.9): gather every direct call/branch
	// relocation the scanner recorded, resolve its PC and destination
	// against the addresses layout just assigned, and place stubs for
	// whichever ones fall outside this target's branch-reach window.
	cands := p.CollectThunkCandidates(scanRes, symbolRuntimeValue)
	thunkPlan := p.PlaceThunks(cands)
	_ = thunkPlan

	out := make([]byte, int(plan.FileSize))
	ctx := &applier.Context{
		Target:  p.Target,
		ValueOf: symbolRuntimeValue,
		GOTIndexOf: func(s *iobj.Symbol) (int32, bool) {
			aux := s.Aux()
			return aux.GOTIdx, aux.GOTIdx >= 0
		},
		PLTIndexOf: func(s *iobj.Symbol) (int32, bool) {
			aux := s.Aux()
			return aux.PLTIdx, aux.PLTIdx >= 0
		},
	}
	p.EmitChunks(out, plan)
	if err := p.ApplyRelocations(out, ctx); err != nil {
		p.Diag.Flush(os.Stderr)
		return p.Diag.ExitCode()
	}
	p.FinalizeBuildID(out, synthOut)
	p.Report.EntryVAddr = plan.EntryAddr

	if err := os.WriteFile(opts.OutputPath, out, 0o755); err != nil {
		p.Diag.Add(diag.Diagnostic{Kind: diag.UserError, Severity: diag.SeverityFatal, Message: err.Error()})
	}

	p.Report.OutputPath = opts.OutputPath
	if opts.EmitLinkReport != "" {
		if err := writeLinkReport(opts.EmitLinkReport, p.Report); err != nil {
			logger.Warn("could not write link report", "error", err)
		}
	}

	p.Diag.Flush(os.Stderr)
	return p.Diag.ExitCode()
}

// symbolRuntimeValue resolves a symbol's final S value per spec.md §4.9:
// its defining input section's output address, or its absolute value for
// an SHN_ABS/SHN_COMMON-origin symbol. Imported symbols (no local
// definition) resolve to 0 here — their actual runtime address is supplied
// by the dynamic linker via a synthesized GOT/PLT slot, not a direct
// write into the referencing section.
func symbolRuntimeValue(s *iobj.Symbol) uint64 {
	switch s.Origin {
	case iobj.OriginAbsolute:
		return s.AbsValue
	case iobj.OriginInputSection:
		if s.InputSec == nil || s.InputSec.OutputSec == nil {
			return 0
		}
		return s.InputSec.OutputSec.VAddr + s.InputSec.OutputOffset + s.InputOffset
	case iobj.OriginOutputSection:
		if s.OutputSec == nil {
			return 0
		}
		return s.OutputSec.VAddr + s.OutputOff
	case iobj.OriginFragment:
		if s.Fragment == nil || s.Fragment.Owner == nil {
			return 0
		}
		return s.Fragment.Owner.VAddr + s.Fragment.Offset + s.FragOffset
	default:
		return 0
	}
}

func writeLinkReport(path string, r pipeline.Report) error {
	b, err := yaml.Marshal(r)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
