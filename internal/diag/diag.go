// Package diag is the linker core's error taxonomy and diagnostic bag
// (spec.md §7), plus the ambient logging/env-var setup SPEC_FULL.md's
// AMBIENT STACK section calls for: log/slog fanned out with
// github.com/samber/slog-multi, colorized stderr rendering with
// github.com/fatih/color (following the palette style of
// Manu343726-cucaracha's cmd/cpu/debug.go), and MOLD_DEBUG/MOLD_REPRO reads
// via github.com/xyproto/env/v2 (flapc's own previously-unused dependency).
package diag

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/fatih/color"
	slogmulti "github.com/samber/slog-multi"
	"github.com/xyproto/env/v2"
)

// Kind is the diagnostic taxonomy of spec.md §7.
type Kind int

const (
	MalformedInput Kind = iota
	UnsupportedFeature
	ResolutionError
	RangeError
	UserError
	InternalInvariantFailure
)

func (k Kind) String() string {
	switch k {
	case MalformedInput:
		return "malformed input"
	case UnsupportedFeature:
		return "unsupported feature"
	case ResolutionError:
		return "resolution error"
	case RangeError:
		return "range error"
	case UserError:
		return "user error"
	case InternalInvariantFailure:
		return "internal invariant failure"
	default:
		return "unknown"
	}
}

// Severity distinguishes a fatal diagnostic (terminates the link after the
// current stage's checkpoint) from a warning (never terminates unless
// --fatal-warnings was given).
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityFatal
)

// Diagnostic is one reportable event, carrying enough context to satisfy
// spec.md §7's per-kind reporting requirements (file/offset for
// MalformedInput, section/offset/symbol/value/range for RangeError, etc).
// Not every field applies to every Kind; Message always does.
type Diagnostic struct {
	Kind     Kind
	Severity Severity
	Message  string

	File    string
	Offset  int64
	Section string
	Symbol  string
	Value   int64
	MinLegal int64
	MaxLegal int64
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s: %s", d.Kind, d.Message)
}

// Bag accumulates diagnostics across a parallel stage (spec.md §7:
// "errors are accumulated into the shared Context bag; a checkpoint at the
// end of each stage terminates if any fatal error occurred").
type Bag struct {
	mu          sync.Mutex
	diagnostics []Diagnostic
	fatalCount  int

	FatalWarnings bool
}

func (b *Bag) Add(d Diagnostic) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d.Severity == SeverityWarning && b.FatalWarnings {
		d.Severity = SeverityFatal
	}
	b.diagnostics = append(b.diagnostics, d)
	if d.Severity == SeverityFatal {
		b.fatalCount++
	}
}

// HasFatal reports whether any accumulated diagnostic is fatal; stage
// checkpoints call this to decide whether to continue.
func (b *Bag) HasFatal() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fatalCount > 0
}

func (b *Bag) All() []Diagnostic {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Diagnostic, len(b.diagnostics))
	copy(out, b.diagnostics)
	return out
}

// Flush renders every accumulated diagnostic to w, colorized unless
// color.NoColor is set (spec.md §7: "Diagnostics are written to stderr,
// optionally colorized"), following the red-fatal/yellow-warning palette
// Manu343726-cucaracha's debug.go establishes for this kind of CLI tool.
func (b *Bag) Flush(w io.Writer) {
	fatal := color.New(color.FgRed, color.Bold)
	warn := color.New(color.FgYellow)
	for _, d := range b.All() {
		c := warn
		label := "warning"
		if d.Severity == SeverityFatal {
			c = fatal
			label = "error"
		}
		loc := ""
		if d.File != "" {
			loc = d.File
			if d.Offset != 0 {
				loc += fmt.Sprintf(":0x%x", d.Offset)
			}
			loc += ": "
		}
		c.Fprintf(w, "%s: %s[%s] %s\n", label, loc, d.Kind, d.Message)
	}
}

// ExitCode implements spec.md §7's "0 on success; 1 on any fatal
// diagnostic after full diagnostic flush."
func (b *Bag) ExitCode() int {
	if b.HasFatal() {
		return 1
	}
	return 0
}

// NewLogger builds the process-wide structured logger. --verbose/--trace
// select the stderr level; MOLD_REPRO, if set, adds a debug-level JSON sink
// written to "<MOLD_REPRO>.log", fanned out alongside stderr via slog-multi.
// Without MOLD_REPRO the logger is the plain stderr handler.
func NewLogger(verbose, trace bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelInfo
	}
	if trace {
		level = slog.LevelDebug
	}

	handlers := []slog.Handler{
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	}

	if repro := env.Str("MOLD_REPRO", ""); repro != "" {
		if f, err := os.Create(repro + ".log"); err == nil {
			handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
		}
	}

	if len(handlers) == 1 {
		return slog.New(handlers[0])
	}
	return slog.New(slogmulti.Fanout(handlers...))
}

// DebugCommandLine reports whether MOLD_DEBUG is set. Its caller,
// cmd/ldcore's Run, then logs the invocation's command line at info
// level; nothing writes the command line into the .comment section.
func DebugCommandLine() bool {
	return env.Bool("MOLD_DEBUG")
}

// ReproPath returns the MOLD_REPRO target path, or "" if unset.
func ReproPath() string {
	return env.Str("MOLD_REPRO", "")
}
