// Package scanner implements the state-machine lexer that drives PDF syntax
// recognition through the declarative grammar in package grammar: a byte
// buffer, a cursor, and a classify-then-accumulate lexing loop, generalized
// to a state/operator machine where each popped symbol is routed through
// the current environment's compiled State to find the operator chain to
// execute, instead of a fixed switch over token kinds.
package scanner

import (
	"errors"
	"fmt"
	"io"

	"github.com/benoitkugler/pdfpipe/grammar"
	"github.com/benoitkugler/pdfpipe/symclass"
)

// ErrNoMatch is returned when the state machine reaches a Base/Iterate state
// with no results produced -- typically end of input.
var ErrNoMatch = errors.New("scanner: no match")

// BufferFunc is called by the scanner when it needs more bytes than are
// currently available. required is the total number of bytes the buffer
// must hold, counted from *buf's own start (not from any internal scanner
// cursor); the callee must grow or refill *buf in place and update *offset
// to the new absolute file offset of buf[0] (or return an error, including
// io.EOF when no more input exists). Implemented by package twinstream for
// file-backed scanning, and trivially for fixed in-memory buffers (see
// SetFixedBuffer).
type BufferFunc func(buf *[]byte, offset *int, required int) error

// Environment is one instance of a State currently executing: it owns its
// build stack and var stack, and remembers where (in the scanner buffer) it
// was entered, for PushContent.
type Environment struct {
	state       *grammar.State
	entryOffset int
	build       []Result
	vars        []taggedVar
	weak        bool
}

// Scanner lexes a growable byte buffer through a stack of Environments,
// emitting typed Results.
type Scanner struct {
	buf    []byte
	offset int // absolute file offset of buf[0]
	cursor int // read position within buf (next unread byte)
	mark   int // offset of last Mark, relative to buf

	envs    []*Environment
	results []Result
	symbols []Symbol // pushed-back symbols (unscan)
	garbage []Result // temporaries awaiting disposal

	current Symbol

	bufferFn BufferFunc
	reversed bool

	filter StreamFilter
}

// StreamFilter decodes raw stream bytes as they are read by ReadStream. It
// is the scanner-facing half of filter-backed stream reads: the actual
// codec lives in package object (backed by
// github.com/pdfcpu/pdfcpu/pkg/filter); the scanner only needs to push raw
// bytes through it.
type StreamFilter interface {
	Write(p []byte) (int, error)
	Drain() ([]byte, error)
}

// New creates a scanner with no backing buffer; call SetFixedBuffer or drive
// it through a BufferFunc-aware caller (see package twinstream) before use.
func New(bufferFn BufferFunc) *Scanner {
	return &Scanner{bufferFn: bufferFn}
}

// SetFixedBuffer attaches a fixed in-memory buffer, bypassing BufferFunc
// growth (used for bounded branch-fetch parses).
func (s *Scanner) SetFixedBuffer(buf []byte, offset int) {
	s.buf = buf
	s.offset = offset
	s.cursor = 0
	s.mark = 0
}

// SetFilter attaches (or clears, with nil) a stream filter used by ReadStream.
func (s *Scanner) SetFilter(f StreamFilter) { s.filter = f }

// Offset returns the absolute file offset corresponding to the scanner's
// current read cursor.
func (s *Scanner) Offset() int { return s.offset + s.cursor }

// require ensures at least n more bytes are available past the cursor,
// growing/refilling the buffer through BufferFunc if needed, and realigning
// all outstanding offsets (mark, env entry offsets) when the buffer shifts.
func (s *Scanner) require(n int) error {
	if s.cursor+n <= len(s.buf) {
		return nil
	}
	if s.bufferFn == nil {
		return fmt.Errorf("scanner: buffer exhausted and no buffer function attached")
	}
	prevOffset := s.offset
	// a scanner with no window yet has nothing to realign: its cursor is
	// already at the start of whatever window BufferFunc hands back.
	hadWindow := s.buf != nil
	// the required length is expressed relative to the start of the buffer,
	// not relative to the cursor, so that BufferFunc implementations never
	// need to know the scanner's internal cursor position.
	if err := s.bufferFn(&s.buf, &s.offset, s.cursor+n); err != nil {
		return err
	}
	shift := prevOffset - s.offset
	if shift != 0 && hadWindow {
		s.cursor += shift
		s.mark += shift
		for _, env := range s.envs {
			env.entryOffset += shift
		}
	}
	if s.cursor+n > len(s.buf) {
		return fmt.Errorf("scanner: buffer function did not satisfy request for %d bytes", n)
	}
	return nil
}

// Mark records the current cursor for a later PushMarked.
func (s *Scanner) Mark() { s.mark = s.cursor }

// lexForward pops one Symbol moving forward: skip whitespace, then
// accumulate one run of same-class bytes, stopping at the first delimiter or
// class change. A lone delimiter byte is its own one-byte symbol.
func (s *Scanner) lexForward() (Symbol, error) {
	for {
		if err := s.require(1); err != nil {
			return Symbol{Type: SymEndOfBuffer}, err
		}
		if !symclass.IsWhitespace(s.buf[s.cursor]) {
			break
		}
		s.cursor++
	}

	start := s.cursor
	first := s.buf[s.cursor]
	if symclass.IsDelimiter(first) {
		s.cursor++
		text := string(first)
		// "<<" and ">>" are two-byte delimiters; peek for the doubled form,
		// pulling one more byte in first when the buffer ends here.
		if first == '<' || first == '>' {
			if s.cursor >= len(s.buf) {
				_ = s.require(1) // at end of input there is no doubled form
			}
			if s.cursor < len(s.buf) && s.buf[s.cursor] == first {
				s.cursor++
				text += text
			}
		}
		return newSymbol(text, SymDelimiter), nil
	}

	for {
		s.cursor++
		if s.cursor >= len(s.buf) {
			if err := s.require(1); err != nil {
				break
			}
		}
		if s.cursor >= len(s.buf) || !symclass.IsRegular(s.buf[s.cursor]) {
			break
		}
	}
	text := string(s.buf[start:s.cursor])
	if text == "stream" {
		// The end-of-line marker (CRLF or LF) after the "stream" keyword
		// belongs to the keyword: stream data starts right after it.
		if s.cursor < len(s.buf) && s.buf[s.cursor] == '\r' {
			s.cursor++
			if s.require(1) == nil && s.buf[s.cursor] == '\n' {
				s.cursor++
			}
		} else if s.cursor < len(s.buf) && s.buf[s.cursor] == '\n' {
			s.cursor++
		}
	}
	typ := SymRegular
	if ok, _ := symclass.IsNumeric([]byte(text)); ok {
		typ = SymNumeric
	}
	return newSymbol(text, typ), nil
}

// lexReversed is lexForward's mirror image, used only in the twin stream's
// reversed mode to locate the trailing "startxref" marker.
func (s *Scanner) lexReversed() (Symbol, error) {
	for s.cursor > 0 && symclass.IsWhitespace(s.buf[s.cursor-1]) {
		s.cursor--
	}
	if s.cursor == 0 {
		return Symbol{Type: SymEndOfBuffer}, errors.New("scanner: reversed read exhausted buffer")
	}
	end := s.cursor
	last := s.buf[s.cursor-1]
	if symclass.IsDelimiter(last) {
		s.cursor--
		text := string(s.buf[s.cursor:end])
		return newSymbol(text, SymDelimiter), nil
	}
	for s.cursor > 0 && symclass.IsRegular(s.buf[s.cursor-1]) {
		s.cursor--
	}
	text := string(s.buf[s.cursor:end])
	typ := SymRegular
	if ok, _ := symclass.IsNumeric([]byte(text)); ok {
		typ = SymNumeric
	}
	return newSymbol(text, typ), nil
}

// popSymbol returns the next symbol, either from the pushback stack or by
// lexing fresh bytes.
func (s *Scanner) popSymbol() (Symbol, error) {
	if n := len(s.symbols); n > 0 {
		sym := s.symbols[n-1]
		s.symbols = s.symbols[:n-1]
		return sym, nil
	}
	if s.reversed {
		return s.lexReversed()
	}
	return s.lexForward()
}

func (s *Scanner) pushEnv(state *grammar.State, weak bool) {
	s.envs = append(s.envs, &Environment{state: state, entryOffset: s.cursor, weak: weak})
}

func (s *Scanner) topEnv() *Environment {
	if len(s.envs) == 0 {
		return nil
	}
	return s.envs[len(s.envs)-1]
}

func (s *Scanner) popEnv() {
	if n := len(s.envs); n > 0 {
		s.envs = s.envs[:n-1]
	}
}

// Run drives the scanner from the given start state until that state's
// Iterate flag halts execution (one match produced) or a failure occurs. It
// returns the single top-level Result produced, if any.
func (s *Scanner) Run(start *grammar.State) (Result, error) {
	baseDepth := len(s.envs)
	s.pushEnv(start, false)
	initialDepth := len(s.envs)

	for len(s.envs) >= initialDepth {
		env := s.topEnv()
		if env.state.Iterate && len(s.results) > 0 {
			break
		}

		sym, err := s.popSymbol()
		if err != nil {
			s.envs = s.envs[:baseDepth]
			if errors.Is(err, io.EOF) && len(s.results) == 0 {
				return Result{}, ErrNoMatch
			}
			return Result{}, err
		}
		s.current = sym

		op := env.state.Lookup(sym.Text, sym.IsNumeric(), sym.IsDelimiter())
		if op == nil {
			if env.state.Iterate {
				// no rule matched in a top-level iterate state: treat the
				// symbol as an opaque pass-through result.
				s.results = append(s.results, StringResult(sym.Text))
				break
			}
			s.envs = s.envs[:baseDepth]
			return Result{}, fmt.Errorf("scanner: state %q has no rule for %q", env.state.Name, sym.Text)
		}

		if err := s.execute(op); err != nil {
			s.envs = s.envs[:baseDepth]
			return Result{}, err
		}
	}

	// Whatever this call pushed -- whether it unwound naturally via PopState
	// or was cut short by an Iterate break -- is scoped to this call: the
	// next Run starts clean at the depth it began with.
	if len(s.envs) > baseDepth {
		s.envs = s.envs[:baseDepth]
	}

	if len(s.results) == 0 {
		return Result{}, ErrNoMatch
	}
	top := s.results[len(s.results)-1]
	s.results = s.results[:len(s.results)-1]
	return top, nil
}

// execute runs one operator chain against the current symbol/environment.
func (s *Scanner) execute(op *grammar.Operator) error {
	for o := op; o != nil; o = o.Next {
		env := s.topEnv()
		switch o.Code {
		case grammar.PushState, grammar.PushWeakState:
			target := s.stateByName(o.Arg)
			if target == nil {
				return fmt.Errorf("scanner: unknown state %q", o.Arg)
			}
			s.pushEnv(target, o.Code == grammar.PushWeakState)
		case grammar.PopState:
			s.popEnv()
		case grammar.PushEmptyString:
			s.results = append(s.results, StringResult(""))
		case grammar.PushResult:
			s.results = append(s.results, StringResult(s.current.Text))
		case grammar.AppendResult:
			if n := len(s.results); n > 0 && s.results[n-1].Kind == KindString {
				s.results[n-1].Str += s.current.Text
			} else {
				s.results = append(s.results, StringResult(s.current.Text))
			}
		case grammar.PushContent:
			s.results = append(s.results, StringResult(string(s.buf[env.entryOffset:s.cursor])))
		case grammar.PushMarked:
			s.results = append(s.results, StringResult(string(s.buf[s.mark:s.cursor])))
		case grammar.Mark:
			s.Mark()
		case grammar.PopVariable:
			env.vars = append(env.vars, taggedVar{Tag: o.Arg, Value: s.popResult()})
		case grammar.PopValue:
			env.vars = append(env.vars, taggedVar{Value: s.popResult()})
		case grammar.PullBuildVariable:
			env.vars = append(env.vars, taggedVar{Tag: o.Arg, Value: NestedResult(env.build)})
			env.build = nil
		case grammar.PushComplex:
			s.results = append(s.results, s.composeComplex(o.Arg, env))
		case grammar.StoveComplex:
			env.build = append(env.build, s.composeComplex(o.Arg, env))
		case grammar.PushbackSymbol:
			s.symbols = append(s.symbols, s.current)
		case grammar.PushbackValue:
			r := s.popResult()
			s.symbols = append(s.symbols, newSymbol(r.Str, SymFake))
		case grammar.PopLine:
			s.popLine()
		case grammar.ReadToDelimiter:
			s.readToDelimiter()
		case grammar.NOP, grammar.Break:
			// no-op
		default:
			return fmt.Errorf("scanner: unimplemented opcode %v", o.Code)
		}
	}
	return nil
}

func (s *Scanner) popResult() Result {
	if n := len(s.results); n > 0 {
		r := s.results[n-1]
		s.results = s.results[:n-1]
		return r
	}
	return Result{}
}

func (s *Scanner) composeComplex(identifier string, env *Environment) Result {
	items := make([]Result, 0, len(env.vars)+1)
	items = append(items, StringResult(identifier))
	for _, v := range env.vars {
		if v.Tag != "" {
			items = append(items, NestedResult([]Result{StringResult(v.Tag), v.Value}))
		} else {
			items = append(items, v.Value)
		}
	}
	env.vars = nil
	return NestedResult(items)
}

// stateByName resolves the three package-level grammars by name; kept as a
// tiny switch rather than a map since the set is closed and fixed.
func (s *Scanner) stateByName(name string) *grammar.State {
	switch name {
	case "base":
		return grammar.Base
	case "xref-table":
		return grammar.XRefTable
	case "xref-seeker":
		return grammar.XRefSeeker
	default:
		return nil
	}
}

func (s *Scanner) popLine() {
	for s.cursor < len(s.buf) && s.buf[s.cursor] != '\n' && s.buf[s.cursor] != '\r' {
		s.cursor++
		if s.cursor >= len(s.buf) {
			if s.require(1) != nil {
				return
			}
		}
	}
	for s.cursor < len(s.buf) && (s.buf[s.cursor] == '\n' || s.buf[s.cursor] == '\r') {
		s.cursor++
	}
}

func (s *Scanner) readToDelimiter() {
	for s.cursor < len(s.buf) && !symclass.IsDelimiter(s.buf[s.cursor]) {
		s.cursor++
		if s.cursor >= len(s.buf) {
			if s.require(1) != nil {
				return
			}
		}
	}
}

// PopString pops the top result and returns it as a string if it is a
// KindString; otherwise it leaves the stack untouched and reports failure.
func (s *Scanner) PopString() (string, bool) {
	if n := len(s.results); n > 0 && s.results[n-1].Kind == KindString {
		r := s.results[n-1]
		s.results = s.results[:n-1]
		return r.Str, true
	}
	return "", false
}

// PopStack pops the top result and returns it as a Nested complex if it is a
// KindNested; otherwise it leaves the stack untouched and reports failure.
func (s *Scanner) PopStack() (Result, bool) {
	if n := len(s.results); n > 0 && s.results[n-1].Kind == KindNested {
		r := s.results[n-1]
		s.results = s.results[:n-1]
		return r, true
	}
	return Result{}, false
}

// AssertString pops a string result and errors if the top of stack is not one.
func (s *Scanner) AssertString() (string, error) {
	str, ok := s.PopString()
	if !ok {
		return "", fmt.Errorf("scanner: expected string result, found none")
	}
	return str, nil
}

// AssertComplex pops a complex result and errors if the top of stack is not one.
func (s *Scanner) AssertComplex(identifier string) (Result, error) {
	r, ok := s.PopStack()
	if !ok || r.Identifier() != identifier {
		return Result{}, fmt.Errorf("scanner: expected complex %q, found %v", identifier, r)
	}
	return r, nil
}

// ReadStream consumes exactly n bytes of stream content starting at the
// scanner's current cursor, optionally piping them through the attached
// filter (decode-on-read). dst, if non-nil, receives the raw (pre-filter)
// bytes read.
func (s *Scanner) ReadStream(n int, dst []byte) ([]byte, error) {
	if err := s.require(n); err != nil {
		return nil, err
	}
	raw := s.buf[s.cursor : s.cursor+n]
	if dst != nil {
		copy(dst, raw)
	}
	s.cursor += n
	if s.filter == nil {
		out := make([]byte, len(raw))
		copy(out, raw)
		return out, nil
	}
	if _, err := s.filter.Write(raw); err != nil {
		return nil, err
	}
	return s.filter.Drain()
}

// Discard advances the cursor by n bytes without producing a result,
// equivalent to the twin stream's discard primitive applied at the lexical
// level (used before passthrough when the caller already knows the span).
func (s *Scanner) Discard(n int) error {
	if err := s.require(n); err != nil {
		return err
	}
	s.cursor += n
	return nil
}

// Buffer returns the unread portion of the current window, for callers (the
// twin stream) that need to passthrough or branch-fetch raw bytes.
func (s *Scanner) Buffer() []byte { return s.buf[s.cursor:] }

// ResetFailure clears the environment/result stacks after a fatal scan
// error, so the parser can report a clean failure count instead of carrying
// corrupted internal state forward.
func (s *Scanner) ResetFailure() {
	s.envs = nil
	s.results = nil
	s.symbols = nil
	s.garbage = nil
}

// NextSymbol exposes the raw token stream beneath the grammar for callers
// (package object's value reader) that assemble dict/array/name/string
// structure directly rather than through a compiled State: the grammar/Run
// machinery is used for top-level keyword recognition (xref, trailer, obj,
// endobj), while literal values are read token-by-token instead.
func (s *Scanner) NextSymbol() (text string, numeric, delimiter bool, err error) {
	sym, err := s.popSymbol()
	if err != nil {
		return "", false, false, err
	}
	s.current = sym
	return sym.Text, sym.IsNumeric(), sym.IsDelimiter(), nil
}

// ReadLiteralString reads a "(...)" string literal body, assuming the
// opening "(" has already been consumed by the caller: it honors balanced
// nested parentheses and backslash escapes (both left untouched, byte for
// byte, so a pass-through string round-trips without a decode/re-encode
// step) and consumes the matching close paren.
func (s *Scanner) ReadLiteralString() ([]byte, error) {
	var out []byte
	depth := 1
	for {
		if err := s.require(1); err != nil {
			return nil, err
		}
		c := s.buf[s.cursor]
		s.cursor++
		switch c {
		case '\\':
			if err := s.require(1); err != nil {
				return nil, err
			}
			esc := s.buf[s.cursor]
			s.cursor++
			out = append(out, c, esc)
		case '(':
			depth++
			out = append(out, c)
		case ')':
			depth--
			if depth == 0 {
				return out, nil
			}
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}
}

// ReadHexString reads a "<...>" hex string literal body, assuming the
// opening "<" has already been consumed.
func (s *Scanner) ReadHexString() ([]byte, error) {
	var out []byte
	for {
		if err := s.require(1); err != nil {
			return nil, err
		}
		c := s.buf[s.cursor]
		s.cursor++
		if c == '>' {
			return out, nil
		}
		out = append(out, c)
	}
}

// UnreadSymbol pushes (text, numeric, delimiter) back so the next call to
// NextSymbol or the grammar-driven Run returns it again -- a one-token
// lookahead primitive.
func (s *Scanner) UnreadSymbol(text string, numeric, delimiter bool) {
	typ := SymRegular
	switch {
	case numeric:
		typ = SymNumeric
	case delimiter:
		typ = SymDelimiter
	}
	s.symbols = append(s.symbols, newSymbol(text, typ))
}
