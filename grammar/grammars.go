package grammar

// The grammar package exposes a small closed set of named, package-level
// grammars built once at init time. Base and the xref sub-grammars recognize
// the top-level keyword structure of a PDF body (object headers,
// xref/trailer/startxref markers). Object *values* (dictionaries, arrays,
// names, string literals) are deliberately not modeled as States here: PDF
// literal syntax is arbitrarily nested and escape-laden in a way a flat
// symbol/operator table captures poorly, so package object reads them with
// a small hand-written recursive-descent reader built directly on the
// scanner's raw token stream (object/parse.go), keeping lexing and
// structural assembly as separate concerns.

var (
	// Base recognizes "N G obj", "xref", "startxref", "trailer" at the top
	// level of a PDF body.
	Base *State

	// XRefTable recognizes the body of a classical "xref ... trailer"
	// section: "<first> <count>" header lines followed by count 20-byte
	// rows.
	XRefTable *State

	// XRefSeeker is the tiny reversed-mode grammar used to locate the final
	// "startxref" marker by scanning the tail of the file backwards.
	XRefSeeker *State
)

func init() {
	Base = NewState("base", true).
		On("xref", OpArg(PushComplex, "xref")).
		On("trailer", OpArg(PushComplex, "trailer")).
		On("startxref", OpArg(PushComplex, "startxref")).
		On("obj", OpArg(PushComplex, "obj")).
		On("stream", OpArg(PushComplex, "stream")).
		On("endobj", OpArg(PushComplex, "endobj")).
		OnNumeric(Op(PushResult)).
		OnFallback(Op(PushResult)).
		Compile()

	XRefTable = NewState("xref-table", false).
		On("trailer", Chain(OpArg(PushComplex, "xref-table"), Op(PopState), OpArg(PushState, "dict"))).
		OnNumeric(Op(PushResult)).
		Compile()

	XRefSeeker = NewState("xref-seeker", true).
		On("startxref", OpArg(PushComplex, "startxref")).
		OnNumeric(Op(PushResult)).
		OnFallback(Op(NOP)).
		Compile()
}
