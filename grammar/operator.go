package grammar

// OpCode names one instruction in the scanner's operator instruction set. The
// set is exhaustive and mirrors the original grammar's operator vocabulary.
type OpCode uint8

const (
	// PushState allocates a new environment for the named state and pushes it
	// onto the environment stack, retaining the target state.
	PushState OpCode = iota
	// PushWeakState is identical to PushState but does not retain the target
	// state; used to break retain cycles in recursive grammars (e.g. a
	// parenthesized-string state that recurses into itself).
	PushWeakState
	// PopState destroys the top environment and restores the prior one.
	PopState
	// PushEmptyString pushes an empty string result.
	PushEmptyString
	// PushResult copies the current symbol's text into a fresh string and
	// pushes it onto the results stack.
	PushResult
	// AppendResult appends the current symbol's text to the top result.
	AppendResult
	// PushContent pushes the buffer region spanning from state entry to now.
	PushContent
	// PushMarked pushes the buffer region from the last Mark to now.
	PushMarked
	// Mark records the current buffer offset for a later PushMarked.
	Mark
	// PopVariable moves the top result into the current environment's var
	// stack, tagged with the operator's Arg identifier.
	PopVariable
	// PopValue moves the top result into the current environment's var stack,
	// untagged (anonymous).
	PopValue
	// PullBuildVariable takes the entire build stack and pushes it as a
	// single tagged variable in the current environment's var stack.
	PullBuildVariable
	// PushComplex composes [Arg, <var stack>] and pushes it onto the results
	// stack.
	PushComplex
	// StoveComplex is PushComplex, but the composed value is pushed onto the
	// build stack instead of the results stack.
	StoveComplex
	// PushbackSymbol re-seeds the symbol stack from the current symbol.
	PushbackSymbol
	// PushbackValue pops a result and re-seeds the symbol stack with a
	// synthesized ("fake") symbol classified on the fly.
	PushbackValue
	// PopLine bypasses the state machine and consumes raw bytes to the next
	// line break.
	PopLine
	// ReadToDelimiter bypasses the state machine and consumes raw bytes up to
	// (not including) the next delimiter.
	ReadToDelimiter
	// NOP does nothing; used as a chain terminator placeholder.
	NOP
	// Break is a debugging aid with no production effect.
	Break
)

// Operator is one instruction in an intrusive singly-linked chain.
type Operator struct {
	Code OpCode
	Arg  string // state name (PushState/PushWeakState) or K identifier
	Next *Operator
}

// Op builds a single operator with no successor.
func Op(code OpCode) *Operator { return &Operator{Code: code} }

// OpArg builds a single operator carrying an identifier/state-name argument.
func OpArg(code OpCode, arg string) *Operator { return &Operator{Code: code, Arg: arg} }

// Chain links a sequence of operators into one instruction chain and returns
// its head. Each operator in ops must not already be linked.
func Chain(ops ...*Operator) *Operator {
	if len(ops) == 0 {
		return nil
	}
	for i := 0; i < len(ops)-1; i++ {
		ops[i].Next = ops[i+1]
	}
	return ops[0]
}
