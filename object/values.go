/*
Copyright 2018 The pdfcpu Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package object implements the PDF object model: the primitive value types
// (name, number, string, array, dictionary, indirect reference) plus the
// mutable Indirect wrapper the parser and pipe hand to tasks.
package object

import (
	"fmt"
	"strconv"
)

// Object is the interface implemented by every PDF primitive value.
type Object interface {
	fmt.Stringer
	Clone() Object
	PDFString() string
}

// Boolean represents a PDF boolean object.
type Boolean bool

func (b Boolean) Clone() Object    { return b }
func (b Boolean) String() string   { return fmt.Sprintf("%v", bool(b)) }
func (b Boolean) PDFString() string { return b.String() }

// Float represents a PDF real-number object.
type Float float64

func (f Float) Clone() Object  { return f }
func (f Float) String() string { return fmt.Sprintf("%.2f", float64(f)) }
func (f Float) PDFString() string {
	return strconv.FormatFloat(float64(f), 'f', 12, 64)
}

// Integer represents a PDF integer object.
type Integer int

func (i Integer) Clone() Object    { return i }
func (i Integer) String() string   { return strconv.Itoa(int(i)) }
func (i Integer) PDFString() string { return i.String() }

// Name represents a PDF name object (without the leading '/').
type Name string

func (n Name) Clone() Object  { return n }
func (n Name) String() string { return string(n) }
func (n Name) PDFString() string {
	s := " "
	if len(n) > 0 {
		s = string(n)
	}
	return "/" + s
}

// StringLiteral represents a PDF "(...)" string object, with its escape
// sequences kept as written.
type StringLiteral string

func (s StringLiteral) Clone() Object  { return s }
func (s StringLiteral) String() string { return fmt.Sprintf("(%s)", string(s)) }
func (s StringLiteral) PDFString() string {
	return s.String()
}

// HexLiteral represents a PDF "<...>" hex string object.
type HexLiteral string

func (h HexLiteral) Clone() Object  { return h }
func (h HexLiteral) String() string { return fmt.Sprintf("<%s>", string(h)) }
func (h HexLiteral) PDFString() string {
	return h.String()
}

// IndirectRef represents a "N G R" reference to another indirect object.
type IndirectRef struct {
	ObjectNumber     int
	GenerationNumber int
}

func (ir IndirectRef) Clone() Object { return ir }
func (ir IndirectRef) String() string {
	return fmt.Sprintf("(%s)", ir.PDFString())
}
func (ir IndirectRef) PDFString() string {
	return fmt.Sprintf("%d %d R", ir.ObjectNumber, ir.GenerationNumber)
}

// IsNil reports whether ir is the conventional "0 0 R" null reference.
// Object number 0 is reserved for the xref free-list head (see
// xref.Table), so it never addresses a real object; some producers point
// an optional field at it to mean "absent" rather than omitting the key
// outright, so callers resolving an optional indirect reference (e.g. a
// trailer's /Info) should treat this the same as the key being missing.
func (ir IndirectRef) IsNil() bool { return ir.ObjectNumber == 0 }

// Null represents the PDF null object.
type Null struct{}

func (Null) Clone() Object    { return Null{} }
func (Null) String() string   { return "null" }
func (Null) PDFString() string { return "null" }
