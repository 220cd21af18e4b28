package linkscript

import (
	"fmt"
	"strconv"
	"strings"
)

// Script is the parsed result of a linker-script file: the subset spec.md
// §6 names (OUTPUT_FORMAT, INPUT/GROUP/AS_NEEDED file lists, defsym
// assignments) plus an optional VERSION block.
type Script struct {
	OutputFormats []string // OUTPUT_FORMAT(a, b, c) — first is the default, rest are -b/-EL/-EB alternates
	Inputs        []InputEntry
	Defsyms       []Defsym
	Version       *VersionScript
}

// InputEntry is one file named by INPUT(...), GROUP(...), or a bare
// AS_NEEDED(...) wrapper; AsNeeded marks entries pulled in only if some
// other live object still needs them, mirroring spec.md's AS_NEEDED note.
type InputEntry struct {
	Name     string
	AsNeeded bool
}

// Defsym is a simple `A = B;` top-level assignment (the only expression
// form this subset parses; full linker-script arithmetic is out of
// scope per SPEC_FULL.md's Non-goals).
type Defsym struct {
	Name  string
	Value string
}

// VersionScript holds the parsed VERSION { ... } block: an ordered list
// of named versions (plus one optional anonymous version), each with
// global/local pattern lists. Patterns may be glob (`foo_*`) or, when
// preceded by `extern "C++"`, demangled-name matches.
type VersionScript struct {
	Versions []SymbolVersion
}

// SymbolVersion is one `name { global: ...; local: ...; } base;` entry.
// Index is assigned in file order starting at 1 (index 0 is reserved for
// VER_NDX_LOCAL/VER_NDX_GLOBAL in the output ELF, per spec.md §6).
type SymbolVersion struct {
	Name    string // empty for an anonymous top-level version
	Index   int
	Parents []string
	Global  []Pattern
	Local   []Pattern
}

// Pattern is one matched entry in a global:/local: list.
type Pattern struct {
	Text       string
	IsCXXDemangled bool // true when preceded by extern "C++" { ... }
	IsWildcardLocal bool // true for a bare "*" in local: (catch-all)
}

// Parser is a recursive-descent parser over a Lexer's token stream,
// following the same "peek one token, consume, recurse per grammar rule"
// shape as flapc's parser.go, generalized to this grammar instead of
// flap's expression/statement grammar.
type Parser struct {
	lex  *Lexer
	cur  Token
	next Token
}

func NewParser(src string) *Parser {
	p := &Parser{lex: NewLexer(src)}
	p.cur = p.lex.Next()
	p.next = p.lex.Next()
	return p
}

func (p *Parser) advance() {
	p.cur = p.next
	p.next = p.lex.Next()
}

func (p *Parser) expect(tt TokenType, what string) (Token, error) {
	if p.cur.Type != tt {
		return Token{}, fmt.Errorf("linkscript: expected %s, got %q", what, p.cur.Text)
	}
	tok := p.cur
	p.advance()
	return tok, nil
}

// ParseScript parses a full linker-script file.
func (p *Parser) ParseScript() (*Script, error) {
	s := &Script{}
	for p.cur.Type != TokEOF {
		if p.cur.Type != TokIdent {
			// Skip stray punctuation defensively rather than aborting the
			// whole script over one unrecognized construct.
			p.advance()
			continue
		}
		switch p.cur.Text {
		case "OUTPUT_FORMAT":
			formats, err := p.parseParenIdentList()
			if err != nil {
				return nil, err
			}
			s.OutputFormats = formats
		case "INPUT", "GROUP":
			entries, err := p.parseInputList(false)
			if err != nil {
				return nil, err
			}
			s.Inputs = append(s.Inputs, entries...)
		case "AS_NEEDED":
			entries, err := p.parseInputList(true)
			if err != nil {
				return nil, err
			}
			s.Inputs = append(s.Inputs, entries...)
		case "VERSION":
			p.advance()
			if _, err := p.expect(TokLBrace, "{"); err != nil {
				return nil, err
			}
			v, err := p.parseVersionBlock()
			if err != nil {
				return nil, err
			}
			for p.cur.Type == TokSemicolon {
				p.advance()
			}
			if _, err := p.expect(TokRBrace, "}"); err != nil {
				return nil, err
			}
			s.Version = v
		default:
			name := p.cur.Text
			p.advance()
			if p.cur.Type == TokEquals {
				p.advance()
				val, err := p.parseDefsymValue()
				if err != nil {
					return nil, err
				}
				s.Defsyms = append(s.Defsyms, Defsym{Name: name, Value: val})
				if p.cur.Type == TokSemicolon {
					p.advance()
				}
			}
		}
	}
	return s, nil
}

func (p *Parser) parseDefsymValue() (string, error) {
	var parts []string
	for p.cur.Type != TokSemicolon && p.cur.Type != TokEOF {
		parts = append(parts, p.cur.Text)
		p.advance()
	}
	return strings.Join(parts, " "), nil
}

func (p *Parser) parseParenIdentList() ([]string, error) {
	p.advance() // the keyword itself
	if _, err := p.expect(TokLParen, "("); err != nil {
		return nil, err
	}
	var out []string
	for p.cur.Type != TokRParen && p.cur.Type != TokEOF {
		if p.cur.Type == TokIdent || p.cur.Type == TokString {
			out = append(out, p.cur.Text)
		}
		p.advance()
		if p.cur.Type == TokComma {
			p.advance()
		}
	}
	if _, err := p.expect(TokRParen, ")"); err != nil {
		return nil, err
	}
	if p.cur.Type == TokSemicolon {
		p.advance()
	}
	return out, nil
}

// parseInputList handles INPUT(...), GROUP(...), and AS_NEEDED(...),
// including an AS_NEEDED(...) nested inside an INPUT/GROUP list per
// spec.md's note that AS_NEEDED can wrap a sublist of an outer GROUP.
func (p *Parser) parseInputList(forceAsNeeded bool) ([]InputEntry, error) {
	p.advance() // keyword
	if _, err := p.expect(TokLParen, "("); err != nil {
		return nil, err
	}
	var out []InputEntry
	for p.cur.Type != TokRParen && p.cur.Type != TokEOF {
		if p.cur.Type == TokIdent && p.cur.Text == "AS_NEEDED" {
			nested, err := p.parseInputList(true)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
			continue
		}
		if p.cur.Type == TokIdent || p.cur.Type == TokString {
			out = append(out, InputEntry{Name: p.cur.Text, AsNeeded: forceAsNeeded})
			p.advance()
		} else {
			p.advance()
		}
		if p.cur.Type == TokComma {
			p.advance()
		}
	}
	if _, err := p.expect(TokRParen, ")"); err != nil {
		return nil, err
	}
	if p.cur.Type == TokSemicolon {
		p.advance()
	}
	return out, nil
}

// parseVersionBlock parses `VERSION { ... }` at the top level, or the
// contents of a standalone version script file (GNU ld accepts both
// `VER1 { ... }; VER2 { ... } VER1;` directly and a single anonymous
// `{ global: ...; local: ...; };` with no name).
func (p *Parser) parseVersionBlock() (*VersionScript, error) {
	vs := &VersionScript{}
	nextIndex := 1

	// A bare leading "{" means a single anonymous version.
	if p.cur.Type == TokLBrace {
		sv, err := p.parseOneVersion("", nextIndex)
		if err != nil {
			return nil, err
		}
		vs.Versions = append(vs.Versions, *sv)
		return vs, nil
	}

	for p.cur.Type == TokIdent {
		name := p.cur.Text
		p.advance()
		sv, err := p.parseOneVersion(name, nextIndex)
		if err != nil {
			return nil, err
		}
		nextIndex++
		// optional trailing parent tag: `V2 { ... } V1;`
		if p.cur.Type == TokIdent {
			sv.Parents = append(sv.Parents, p.cur.Text)
			p.advance()
		}
		if p.cur.Type == TokSemicolon {
			p.advance()
		}
		vs.Versions = append(vs.Versions, *sv)
	}
	return vs, nil
}

func (p *Parser) parseOneVersion(name string, index int) (*SymbolVersion, error) {
	sv := &SymbolVersion{Name: name, Index: index}
	if _, err := p.expect(TokLBrace, "{"); err != nil {
		return nil, err
	}
	cur := &sv.Global // GNU ld defaults an unlabeled list to global
	for p.cur.Type != TokRBrace && p.cur.Type != TokEOF {
		if p.cur.Type == TokIdent && p.cur.Text == "extern" {
			p.advance()
			pats, err := p.parseCXXExternBlock()
			if err != nil {
				return nil, err
			}
			*cur = append(*cur, pats...)
			continue
		}
		if p.cur.Type == TokIdent && (p.cur.Text == "global" || p.cur.Text == "local") && p.next.Type == TokColon {
			if p.cur.Text == "global" {
				cur = &sv.Global
			} else {
				cur = &sv.Local
			}
			p.advance() // the keyword
			p.advance() // ':'
			continue
		}
		if p.cur.Type == TokIdent || p.cur.Type == TokStar {
			pat := Pattern{Text: p.cur.Text, IsWildcardLocal: p.cur.Text == "*" && cur == &sv.Local}
			*cur = append(*cur, pat)
			p.advance()
			if p.cur.Type == TokSemicolon {
				p.advance()
			}
			continue
		}
		p.advance()
	}
	if _, err := p.expect(TokRBrace, "}"); err != nil {
		return nil, err
	}
	return sv, nil
}

// parseCXXExternBlock handles `extern "C++" { pattern1; pattern2; };`,
// whose patterns are matched against demangled C++ symbol names rather
// than the raw mangled linker symbol, per spec.md §6's note.
func (p *Parser) parseCXXExternBlock() ([]Pattern, error) {
	if p.cur.Type != TokString {
		return nil, fmt.Errorf("linkscript: expected language string after extern, got %q", p.cur.Text)
	}
	lang := p.cur.Text
	p.advance()
	if lang != "C++" {
		// Unrecognized extern language block: skip its body rather than fail.
	}
	if _, err := p.expect(TokLBrace, "{"); err != nil {
		return nil, err
	}
	var out []Pattern
	for p.cur.Type != TokRBrace && p.cur.Type != TokEOF {
		if p.cur.Type == TokIdent || p.cur.Type == TokString {
			text := p.cur.Text
			p.advance()
			for p.cur.Type != TokSemicolon && p.cur.Type != TokRBrace && p.cur.Type != TokEOF {
				text += p.cur.Text
				p.advance()
			}
			out = append(out, Pattern{Text: text, IsCXXDemangled: true})
		}
		if p.cur.Type == TokSemicolon {
			p.advance()
		}
	}
	if _, err := p.expect(TokRBrace, "}"); err != nil {
		return nil, err
	}
	if p.cur.Type == TokSemicolon {
		p.advance()
	}
	return out, nil
}

// ParseVersionScript parses a standalone version-script file (the form
// passed via --version-script, as opposed to a VERSION{} block embedded
// in a full linker script).
func ParseVersionScript(src string) (*VersionScript, error) {
	p := NewParser(src)
	return p.parseVersionBlock()
}

// ResolveDefsymExpr evaluates the limited `A = B;` / `A = B + N;` forms
// this subset accepts: a bare symbol reference, or a symbol plus/minus a
// decimal or hex integer constant. Anything fancier is out of scope.
func ResolveDefsymExpr(expr string, valueOf func(string) (uint64, bool)) (uint64, error) {
	fields := strings.Fields(expr)
	if len(fields) == 0 {
		return 0, fmt.Errorf("linkscript: empty defsym expression")
	}
	base, ok := valueOf(fields[0])
	if !ok {
		if n, err := parseIntLiteral(fields[0]); err == nil {
			base = n
		} else {
			return 0, fmt.Errorf("linkscript: undefined symbol %q in defsym expression", fields[0])
		}
	}
	i := 1
	for i+1 < len(fields) {
		op := fields[i]
		n, err := parseIntLiteral(fields[i+1])
		if err != nil {
			if v, ok := valueOf(fields[i+1]); ok {
				n = v
			} else {
				return 0, err
			}
		}
		switch op {
		case "+":
			base += n
		case "-":
			base -= n
		default:
			return 0, fmt.Errorf("linkscript: unsupported defsym operator %q", op)
		}
		i += 2
	}
	return base, nil
}

func parseIntLiteral(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return strconv.ParseUint(s[2:], 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}
