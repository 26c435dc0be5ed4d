// Package grammar implements a declarative state/operator grammar that
// drives package scanner: a State is built by attaching Operator chains to
// symbol strings, to the numeric/delimiter/fallback cases, and is compiled
// into a perfect-hash symbol index so that scanning an already-built grammar
// never allocates.
//
// The hashing/compilation strategy (XOR-accumulated byte hash, power-of-two
// table grown on collision) builds a small closed index once and reuses it
// for every scan, with open addressing to resolve hash collisions.
package grammar

import "github.com/benoitkugler/pdfpipe/symclass"

// State is a named, immutable-after-compilation lexer state.
type State struct {
	Name string
	// Iterate, if true, tells the scanner to stop after a single match so the
	// caller can drive iteration itself (used by top-level "one object at a
	// time" states).
	Iterate bool

	symbols   map[string]*Operator
	numeric   *Operator
	delimiter *Operator
	fallback  *Operator

	compiled compiledIndex
	built    bool
}

// NewState creates a new, uncompiled state.
func NewState(name string, iterate bool) *State {
	return &State{Name: name, Iterate: iterate, symbols: map[string]*Operator{}}
}

// On attaches an operator chain to a literal symbol string (e.g. "<<").
func (s *State) On(symbol string, op *Operator) *State {
	s.symbols[symbol] = op
	return s
}

// OnNumeric attaches the operator chain run when the popped symbol is
// numeric and did not match a literal symbol string.
func (s *State) OnNumeric(op *Operator) *State {
	s.numeric = op
	return s
}

// OnDelimiter attaches the operator chain run for an unmatched delimiter
// symbol.
func (s *State) OnDelimiter(op *Operator) *State {
	s.delimiter = op
	return s
}

// OnFallback attaches the operator chain run when nothing else matches.
func (s *State) OnFallback(op *Operator) *State {
	s.fallback = op
	return s
}

// compiledIndex is the perfect-hash table built by Compile.
type compiledIndex struct {
	mask, shift uint32
	keys        []string
	ops         []*Operator
}

// hashSymbol XOR-accumulates (class(c)-1)*c over the symbol's bytes, then
// folds in the length.
func hashSymbol(sym string) uint32 {
	var sum int32
	for i := 0; i < len(sym); i++ {
		c := sym[i]
		class := int32(symclass.Classify(c)) - 1 // Regular=-1, Whitespace=0, Delimiter=1
		sum ^= class * int32(c)
	}
	if sum < 0 {
		sum = -sum
	}
	return uint32(10*sum + int32(len(sym)))
}

// Compile builds the perfect-hash symbol index for the state. It is
// idempotent; calling it more than once is a no-op.
func (s *State) Compile() *State {
	if s.built {
		return s
	}
	s.built = true

	n := uint(1)
	for (uint32(1) << n) < uint32(len(s.symbols))*2 {
		n++
	}
	if n == 0 {
		n = 1
	}

	var shift uint32
	for {
		mask := (uint32(1) << n) - 1
		size := mask + 1
		keys := make([]string, size)
		ops := make([]*Operator, size)
		ok := true

		for sym, op := range s.symbols {
			h := hashSymbol(sym)
			idx := (h >> shift) & mask
			probes := uint32(0)
			for keys[idx] != "" {
				idx = (idx + 1) & mask
				probes++
				if probes > size {
					ok = false
					break
				}
			}
			if !ok {
				break
			}
			keys[idx] = sym
			ops[idx] = op
		}

		if ok {
			s.compiled = compiledIndex{mask: mask, shift: shift, keys: keys, ops: ops}
			return s
		}
		n++
		shift++
	}
}

// Lookup resolves the operator chain for a lexed symbol: an exact literal
// match first, then falling through to numeric/delimiter/fallback according
// to the symbol's class (as reported by the caller, see package scanner).
func (s *State) Lookup(text string, isNumeric, isDelimiter bool) *Operator {
	if len(s.compiled.keys) > 0 {
		mask := s.compiled.mask
		h := hashSymbol(text)
		idx := (h >> s.compiled.shift) & mask
		for probes := uint32(0); probes <= mask; probes++ {
			if s.compiled.keys[idx] == "" {
				break
			}
			if s.compiled.keys[idx] == text {
				return s.compiled.ops[idx]
			}
			idx = (idx + 1) & mask
		}
	}
	switch {
	case isNumeric && s.numeric != nil:
		return s.numeric
	case isDelimiter && s.delimiter != nil:
		return s.delimiter
	default:
		return s.fallback
	}
}
