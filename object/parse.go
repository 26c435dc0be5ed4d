package object

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/benoitkugler/pdfpipe/scanner"
)

// ReadValue reads one PDF object value (primitive or composite) from sc,
// dispatching on the next raw token. This is the scanner-facing value
// reader shared by package parser (object/indirect definitions, trailer
// dictionaries) and package xref (xref-stream and hybrid trailer
// dictionaries): PDF literal syntax is arbitrarily nested and escape-laden
// in a way a flat grammar table captures poorly, so it is read with a
// small hand-written recursive-descent reader built directly on the
// scanner's token stream, keeping lexing and structural assembly as
// separate concerns.
func ReadValue(sc *scanner.Scanner) (Object, error) {
	text, numeric, delim, err := sc.NextSymbol()
	if err != nil {
		return nil, err
	}
	return valueFrom(sc, text, numeric, delim)
}

func valueFrom(sc *scanner.Scanner, text string, numeric, delim bool) (Object, error) {
	if delim {
		switch text {
		case "<<":
			return readDict(sc)
		case "[":
			return readArray(sc)
		case "(":
			raw, err := sc.ReadLiteralString()
			if err != nil {
				return nil, err
			}
			return StringLiteral(raw), nil
		case "<":
			raw, err := sc.ReadHexString()
			if err != nil {
				return nil, err
			}
			return HexLiteral(raw), nil
		case "/":
			name, err := readNameText(sc)
			if err != nil {
				return nil, err
			}
			return Name(name), nil
		default:
			return nil, fmt.Errorf("object: unexpected delimiter %q in value", text)
		}
	}

	if numeric {
		return readNumberOrRef(sc, text)
	}

	switch text {
	case "true":
		return Boolean(true), nil
	case "false":
		return Boolean(false), nil
	case "null":
		return Null{}, nil
	default:
		return nil, fmt.Errorf("object: unexpected token %q in value", text)
	}
}

// readNumberOrRef disambiguates a bare number from the start of an "N G R"
// indirect reference, using up to two tokens of lookahead and unreading
// them again when the reference pattern doesn't pan out.
func readNumberOrRef(sc *scanner.Scanner, first string) (Object, error) {
	num1 := parseNumber(first)

	text2, numeric2, delim2, err := sc.NextSymbol()
	if err != nil || !numeric2 {
		if err == nil {
			sc.UnreadSymbol(text2, numeric2, delim2)
		}
		return num1, nil
	}

	text3, numeric3, delim3, err := sc.NextSymbol()
	if err == nil && !numeric3 && !delim3 && text3 == "R" {
		objNum, _ := strconv.Atoi(first)
		gen, _ := strconv.Atoi(text2)
		return IndirectRef{ObjectNumber: objNum, GenerationNumber: gen}, nil
	}

	if err == nil {
		sc.UnreadSymbol(text3, numeric3, delim3)
	}
	sc.UnreadSymbol(text2, numeric2, delim2)
	return num1, nil
}

func parseNumber(text string) Object {
	if strings.ContainsAny(text, ".eE") {
		if f, err := strconv.ParseFloat(text, 64); err == nil {
			return Float(f)
		}
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		f, _ := strconv.ParseFloat(text, 64)
		return Float(f)
	}
	return Integer(n)
}

func readNameText(sc *scanner.Scanner) (string, error) {
	text, _, delim, err := sc.NextSymbol()
	if err != nil {
		return "", err
	}
	if delim {
		return "", nil
	}
	return decodeNameEscapes(text), nil
}

func decodeNameEscapes(s string) string {
	if !strings.Contains(s, "#") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '#' && i+2 < len(s) {
			if n, err := strconv.ParseUint(s[i+1:i+3], 16, 8); err == nil {
				b.WriteByte(byte(n))
				i += 2
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// ReadDict reads a dictionary, starting with its opening "<<", and fails if
// anything else comes first (used when the caller already knows a
// dictionary must follow, e.g. right after the "trailer" keyword).
func ReadDict(sc *scanner.Scanner) (*Dict, error) {
	text, _, delim, err := sc.NextSymbol()
	if err != nil {
		return nil, err
	}
	if !delim || text != "<<" {
		return nil, fmt.Errorf("object: expected '<<', found %q", text)
	}
	return readDict(sc)
}

func readDict(sc *scanner.Scanner) (*Dict, error) {
	d := NewDict()
	for {
		text, _, delim, err := sc.NextSymbol()
		if err != nil {
			return nil, err
		}
		if delim && text == ">>" {
			return d, nil
		}
		if !delim || text != "/" {
			return nil, fmt.Errorf("object: expected dictionary key, found %q", text)
		}
		key, err := readNameText(sc)
		if err != nil {
			return nil, err
		}
		val, err := ReadValue(sc)
		if err != nil {
			return nil, err
		}
		d.Set(key, val)
	}
}

func readArray(sc *scanner.Scanner) (Object, error) {
	var a Array
	for {
		text, numeric, delim, err := sc.NextSymbol()
		if err != nil {
			return nil, err
		}
		if delim && text == "]" {
			return a, nil
		}
		v, err := valueFrom(sc, text, numeric, delim)
		if err != nil {
			return nil, err
		}
		a = append(a, v)
	}
}
