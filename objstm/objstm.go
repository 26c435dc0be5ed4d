// Package objstm reads and rebuilds PDF 1.5+ object streams (/Type /ObjStm):
// containers that pack several compressed, generation-0 indirect objects
// into one filtered stream, indexed by an "id offset" pair prolog ahead of
// their bodies.
package objstm

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/benoitkugler/pdfpipe/object"
	"github.com/benoitkugler/pdfpipe/scanner"
)

// Entry is one compressed object embedded in an object stream.
type Entry struct {
	ID  int
	Def object.Object
}

// Parse decodes an object stream's already-defiltered content into its
// embedded objects, following the /N-pair "id offset" prolog PDF 1.5+
// defines ahead of the object bodies (offsets are relative to /First, the
// byte position where the prolog ends and the bodies begin). Some writers
// separate prolog fields with NUL instead of whitespace; both are accepted.
func Parse(decoded []byte, first int) ([]Entry, error) {
	if first < 0 || first > len(decoded) {
		return nil, fmt.Errorf("objstm: /First %d out of bounds (stream is %d bytes)", first, len(decoded))
	}

	prolog := bytes.ReplaceAll(decoded[:first], []byte{0}, []byte{' '})
	fields := bytes.Fields(prolog)
	if len(fields)%2 != 0 {
		return nil, fmt.Errorf("objstm: odd number of fields (%d) in prolog", len(fields))
	}

	n := len(fields) / 2
	ids := make([]int, n)
	offsets := make([]int, n)
	for i := 0; i < n; i++ {
		id, err := strconv.Atoi(string(fields[2*i]))
		if err != nil {
			return nil, fmt.Errorf("objstm: invalid object number in prolog: %q", fields[2*i])
		}
		off, err := strconv.Atoi(string(fields[2*i+1]))
		if err != nil {
			return nil, fmt.Errorf("objstm: invalid offset in prolog: %q", fields[2*i+1])
		}
		ids[i] = id
		offsets[i] = first + off
		if offsets[i] > len(decoded) {
			return nil, fmt.Errorf("objstm: object %d offset %d exceeds stream length %d", id, offsets[i], len(decoded))
		}
	}

	entries := make([]Entry, n)
	for i := 0; i < n; i++ {
		start, end := offsets[i], len(decoded)
		if i+1 < n {
			end = offsets[i+1]
		}
		sc := scanner.New(nil)
		sc.SetFixedBuffer(decoded[start:end], 0)
		def, err := object.ReadValue(sc)
		if err != nil {
			return nil, fmt.Errorf("objstm: reading embedded object %d: %w", ids[i], err)
		}
		entries[i] = Entry{ID: ids[i], Def: def}
	}
	return entries, nil
}

// Build re-serializes entries into an object stream's decoded content: the
// "id offset" pair prolog (offsets counted from the end of the prolog)
// followed by each object's definition body in order. Returns the content
// and the /First value (the prolog's length) the caller must write back
// into the container's dictionary alongside /N == len(entries).
func Build(entries []Entry) (content []byte, first int) {
	var prolog, bodies bytes.Buffer
	offset := 0
	for _, e := range entries {
		fmt.Fprintf(&prolog, "%d %d ", e.ID, offset)
		body := e.Def.PDFString()
		bodies.WriteString(body)
		bodies.WriteByte(' ')
		offset += len(body) + 1
	}

	var out bytes.Buffer
	out.Write(prolog.Bytes())
	out.Write(bodies.Bytes())
	return out.Bytes(), prolog.Len()
}
