package xref

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/benoitkugler/pdfpipe/grammar"
	"github.com/benoitkugler/pdfpipe/object"
	"github.com/benoitkugler/pdfpipe/scanner"
	"github.com/benoitkugler/pdfpipe/twinstream"
)

// ErrNoStartXRef is returned when the reversed-mode seek exhausts its
// attempt budget without finding a "startxref" marker.
var ErrNoStartXRef = errors.New("xref: no startxref marker found within search budget")

const maxSeekAttempts = 100

// LocateStartXRef scans backward from the end of the input file for the
// final "startxref <offset>" marker, using the reversed-mode twin stream
// and the xref-seeker grammar.
func LocateStartXRef(in *twinstream.Stream) (int, error) {
	sc := scanner.New(in.BufferFunc)
	for attempt := 0; attempt < maxSeekAttempts; attempt++ {
		res, err := sc.Run(grammar.XRefSeeker)
		if err != nil {
			return 0, fmt.Errorf("%w: %s", ErrNoStartXRef, err)
		}
		if res.Kind != scanner.KindNested || res.Identifier() != "startxref" {
			continue
		}
		tail := res.Tail()
		if len(tail) == 0 || tail[0].Kind != scanner.KindString {
			continue
		}
		off, err := strconv.Atoi(tail[0].Str)
		if err != nil {
			continue
		}
		return off, nil
	}
	return 0, ErrNoStartXRef
}

// Discover walks the revision chain starting at startOffset (the value
// found by LocateStartXRef), merging each xref section across revisions
// and returning the combined master table plus the winning (newest)
// trailer dictionary. /Prev walks the chain newest-to-oldest; Merge is
// applied oldest-to-newest so a later definition of the same object number
// always wins.
func Discover(ra *twinstream.Stream, startOffset int) (*Table, *object.Dict, error) {
	var revisions []map[int]Entry
	var trailer *object.Dict
	seen := map[int]bool{}

	offset := startOffset
	for offset != 0 && !seen[offset] {
		seen[offset] = true
		rows, trl, prev, xrefStmOffset, err := readSection(ra, offset)
		if err != nil {
			return nil, nil, err
		}
		if trailer == nil {
			trailer = trl
		}

		if xrefStmOffset != 0 && !seen[xrefStmOffset] {
			seen[xrefStmOffset] = true
			if hybridRows, _, _, _, err := readSection(ra, xrefStmOffset); err == nil {
				// /XRefStm is an overlay on this same revision's classical
				// table, not a separate revision: merge it into rows now so
				// it wins over this revision's classical entries regardless
				// of how the revisions themselves later get merged.
				for id, e := range hybridRows {
					rows[id] = e
				}
			}
		}
		revisions = append(revisions, rows)

		offset = prev
	}

	t := New()
	for i := len(revisions) - 1; i >= 0; i-- {
		t.Merge(revisions[i])
	}
	return t, trailer, nil
}

// readSection reads one xref section (classical table or binary stream) at
// the given absolute offset, returning its rows, its trailer (or the xref
// stream dictionary standing in for one), the /Prev offset, and the
// /XRefStm hybrid-reference offset (classical sections only).
func readSection(ra *twinstream.Stream, offset int) (rows map[int]Entry, trailer *object.Dict, prev, xrefStm int, err error) {
	if err = ra.Seek(int64(offset)); err != nil {
		return nil, nil, 0, 0, err
	}

	peek, err := ra.FetchBranch(offset, 32)
	if err != nil {
		return nil, nil, 0, 0, err
	}
	isStream := looksLikeIndirectObject(peek)
	ra.CutBranch(peek)

	if isStream {
		return readXRefStream(ra)
	}
	return readXRefTable(ra)
}

// looksLikeIndirectObject reports whether buf starts with "N G obj" rather
// than the literal keyword "xref", distinguishing a binary xref stream from
// a classical textual table.
func looksLikeIndirectObject(buf []byte) bool {
	i := 0
	for i < len(buf) && (buf[i] == ' ' || buf[i] == '\r' || buf[i] == '\n') {
		i++
	}
	return i < len(buf) && buf[i] >= '0' && buf[i] <= '9'
}

// readXRefTable reads a classical "xref\n<first> <count>\n<20-byte rows>..."
// section (possibly several subsections) followed by "trailer <<...>>".
// Each fixed 20-byte row is read as three tokens (offset, generation, flag)
// from the scanner's raw token stream (see readFixedRow).
func readXRefTable(ra *twinstream.Stream) (map[int]Entry, *object.Dict, int, int, error) {
	sc := scanner.New(ra.BufferFunc)
	rows := map[int]Entry{}

	text, _, _, err := sc.NextSymbol() // "xref"
	if err != nil || text != "xref" {
		return nil, nil, 0, 0, fmt.Errorf("xref: expected 'xref' keyword, found %q", text)
	}

	for {
		firstText, firstNum, _, err := sc.NextSymbol()
		if err != nil {
			return nil, nil, 0, 0, err
		}
		if firstText == "trailer" {
			break
		}
		if !firstNum {
			return nil, nil, 0, 0, fmt.Errorf("xref: expected subsection header, found %q", firstText)
		}
		countText, countNum, _, err := sc.NextSymbol()
		if err != nil || !countNum {
			return nil, nil, 0, 0, fmt.Errorf("xref: malformed subsection header")
		}
		first, _ := strconv.Atoi(firstText)
		count, _ := strconv.Atoi(countText)

		for i := 0; i < count; i++ {
			row, err := readFixedRow(sc)
			if err != nil {
				return nil, nil, 0, 0, err
			}
			rows[first+i] = row
		}
	}

	trailer, err := object.ReadDict(sc)
	if err != nil {
		return nil, nil, 0, 0, err
	}
	prev := intEntry(trailer, "Prev")
	xrefStm := intEntry(trailer, "XRefStm")
	return rows, trailer, prev, xrefStm, nil
}

// readFixedRow reads one classical 20-byte "nnnnnnnnnn ggggg n\r\n" row.
func readFixedRow(sc *scanner.Scanner) (Entry, error) {
	offText, _, _, err := sc.NextSymbol()
	if err != nil {
		return Entry{}, err
	}
	genText, _, _, err := sc.NextSymbol()
	if err != nil {
		return Entry{}, err
	}
	kind, _, _, err := sc.NextSymbol()
	if err != nil {
		return Entry{}, err
	}
	off, _ := strconv.Atoi(offText)
	gen, _ := strconv.Atoi(genText)
	switch kind {
	case "n":
		return Entry{Type: EntryUsed, Offset: off, Generation: gen}, nil
	case "f":
		return Entry{Type: EntryFree, NextFree: off, Generation: gen}, nil
	default:
		return Entry{}, fmt.Errorf("xref: unrecognized row flag %q", kind)
	}
}

func intEntry(d *object.Dict, key string) int {
	if d == nil {
		return 0
	}
	v, ok := d.Get(key)
	if !ok {
		return 0
	}
	if n, ok := v.(object.Integer); ok {
		return int(n)
	}
	return 0
}

// readXRefStream decodes a PDF 1.5+ binary cross-reference stream: its
// dictionary doubles as the trailer. The object's own header ("N G obj")
// and stream body are read with the same token reader as any other
// indirect object, then each fixed-width row is unpacked according to /W
// and grouped according to /Index.
func readXRefStream(ra *twinstream.Stream) (map[int]Entry, *object.Dict, int, int, error) {
	sc := scanner.New(ra.BufferFunc)
	rows := map[int]Entry{}

	for i := 0; i < 2; i++ { // "N G"
		if _, _, _, err := sc.NextSymbol(); err != nil {
			return nil, nil, 0, 0, err
		}
	}
	text, _, _, err := sc.NextSymbol() // "obj"
	if err != nil || text != "obj" {
		return nil, nil, 0, 0, fmt.Errorf("xref: expected object header for xref stream")
	}

	dict, err := object.ReadDict(sc)
	if err != nil {
		return nil, nil, 0, 0, err
	}

	kw, _, _, err := sc.NextSymbol()
	if err != nil || kw != "stream" {
		return nil, nil, 0, 0, fmt.Errorf("xref: expected 'stream' keyword in xref stream object")
	}

	length := intEntry(dict, "Length")
	raw := make([]byte, length)
	if _, err := sc.ReadStream(length, raw); err != nil {
		return nil, nil, 0, 0, err
	}

	chain, err := object.ChainFromDict(dict)
	if err != nil {
		return nil, nil, 0, 0, err
	}
	content := raw
	if len(chain) > 0 {
		content, err = chain.Decode(raw)
		if err != nil {
			return nil, nil, 0, 0, err
		}
	}

	w := widths(dict)
	index := indexPairs(dict)
	rowLen := w[0] + w[1] + w[2]
	pos := 0
	for _, pair := range index {
		first, count := pair[0], pair[1]
		for i := 0; i < count && pos+rowLen <= len(content); i++ {
			f1 := readBigEndian(content[pos:pos+w[0]], 1)
			f2 := readBigEndian(content[pos+w[0]:pos+w[0]+w[1]], 0)
			f3 := readBigEndian(content[pos+w[0]+w[1]:pos+rowLen], 0)
			pos += rowLen
			id := first + i
			switch f1 {
			case 0:
				rows[id] = Entry{Type: EntryFree, NextFree: int(f2), Generation: int(f3)}
			case 1:
				rows[id] = Entry{Type: EntryUsed, Offset: int(f2), Generation: int(f3)}
			case 2:
				rows[id] = Entry{Type: EntryCompressed, StreamID: int(f2), Index: int(f3)}
			}
		}
	}

	prev := intEntry(dict, "Prev")
	return rows, dict, prev, 0, nil
}

func widths(d *object.Dict) [3]int {
	out := [3]int{1, 1, 1}
	v, ok := d.Get("W")
	if !ok {
		return out
	}
	arr, ok := v.(object.Array)
	if !ok || len(arr) < 3 {
		return out
	}
	for i := 0; i < 3; i++ {
		if n, ok := arr[i].(object.Integer); ok {
			out[i] = int(n)
		}
	}
	return out
}

func indexPairs(d *object.Dict) [][2]int {
	v, ok := d.Get("Index")
	if !ok {
		size := intEntry(d, "Size")
		return [][2]int{{0, size}}
	}
	arr, ok := v.(object.Array)
	if !ok {
		return nil
	}
	var out [][2]int
	for i := 0; i+1 < len(arr); i += 2 {
		first, _ := arr[i].(object.Integer)
		count, _ := arr[i+1].(object.Integer)
		out = append(out, [2]int{int(first), int(count)})
	}
	return out
}

func readBigEndian(b []byte, defaultVal uint64) uint64 {
	if len(b) == 0 {
		return defaultVal
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}
