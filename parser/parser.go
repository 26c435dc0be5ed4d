// Package parser drives package scanner through the grammar, reconstructs
// the xref graph (package xref) across revisions, and orchestrates the
// passthrough/discard/insert decisions against package twinstream. It only
// handles top-level object structure; content-stream operators are not
// parsed. Its recursive-resolve/recursion-guard pattern for indirectly
// referenced values follows the usual object-number-resolution idiom for
// PDF readers: mark the id being resolved so a self-reference terminates
// instead of looping forever.
package parser

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/benoitkugler/pdfpipe/grammar"
	"github.com/benoitkugler/pdfpipe/object"
	"github.com/benoitkugler/pdfpipe/scanner"
	"github.com/benoitkugler/pdfpipe/twinstream"
	"github.com/benoitkugler/pdfpipe/xref"
	"github.com/pdfcpu/pdfcpu/pkg/log"
)

// State is the parser's own state machine, distinct from (and layered on
// top of) the scanner's grammar-driven state stack.
type State uint8

const (
	Base State = iota
	ObjectDefinition
	ObjectAppendix
	ObjectPostStream
)

var (
	ErrMalformed    = errors.New("parser: malformed PDF")
	ErrMissingXRef  = errors.New("parser: no startxref marker found")
	ErrObjectLost   = errors.New("parser: live object lost (missing from xref or generation disagreement)")
)

// Event is what Iterate reports back to the caller (the pipe) after one
// step: an object ready to be constructed/filtered/skipped, or end-of-input.
type Event struct {
	Kind     EventKind
	ObjectID int
	Gen      int
}

type EventKind uint8

const (
	EventObject EventKind = iota
	EventEOF
)

// Parser drives one single-pass mutation of a PDF through twin stream tw,
// using xref table xt as the master object index.
type Parser struct {
	scan  *scanner.Scanner
	tw    *twinstream.Stream
	xrefs *xref.Table

	state       State
	pending     *object.Indirect
	currentID   int
	currentGen  int
	currentOff  int
	streamLen   int

	skipTree map[int]bool // ids missing from xref or whose generation disagreed with it (offsets are not compared)
	appended []*object.Indirect

	numBuf  [2]string // last two numeric leaves seen, for "N G obj" assembly
	trailer *object.Dict

	failed bool
}

func (p *Parser) pushNum(text string) {
	p.numBuf[0] = p.numBuf[1]
	p.numBuf[1] = text
}

// New creates a parser bound to an already-populated xref table.
func New(tw *twinstream.Stream, xt *xref.Table) *Parser {
	return &Parser{
		scan:     scanner.New(tw.BufferFunc),
		tw:       tw,
		xrefs:    xt,
		skipTree: map[int]bool{},
	}
}

// Iterate serializes any pending constructed object, discards bytes already
// consumed, and pops one top-level result from the grammar.
func (p *Parser) Iterate() (Event, error) {
	if p.state != Base || p.pending != nil {
		if err := p.flushPending(); err != nil {
			return Event{}, p.fail(err)
		}
	}

	res, err := p.scan.Run(grammar.Base)
	if err != nil {
		if errors.Is(err, scanner.ErrNoMatch) {
			return Event{Kind: EventEOF}, nil
		}
		return Event{}, p.fail(fmt.Errorf("%w: %s", ErrMalformed, err))
	}

	if res.Kind != scanner.KindNested {
		// a bare leaf (most commonly one of the two numbers preceding an
		// object header) -- remember it and keep iterating.
		p.pushNum(res.Str)
		return p.Iterate()
	}

	switch res.Identifier() {
	case "xref":
		return p.Iterate() // stepped into the next xref domain; recurse
	case "trailer":
		return p.handleTrailer()
	case "startxref":
		return p.Iterate() // trailing marker consumed by the grammar
	case "obj":
		return p.handleObjHeader()
	default:
		// "endobj"/"stream" seen outside of ConstructObject's own handling
		// (stray top-level noise, or the "endobj" left over from a
		// stream-less object ConstructObject already peeked past): ignore
		// and keep iterating.
		return p.Iterate()
	}
}

func (p *Parser) handleTrailer() (Event, error) {
	d, err := object.ReadDict(p.scan)
	if err != nil {
		return Event{}, p.fail(err)
	}
	p.trailer = d
	return p.Iterate()
}

func (p *Parser) handleObjHeader() (Event, error) {
	id, err1 := strconv.Atoi(p.numBuf[0])
	gen, err2 := strconv.Atoi(p.numBuf[1])
	if err1 != nil || err2 != nil {
		return Event{}, p.fail(fmt.Errorf("%w: malformed object header", ErrMalformed))
	}

	// currentOff anchors both branches below at the twin stream's window
	// start, which has not moved since the previous object was passed
	// through or skipped; passOverObject and PassthroughObject both measure
	// consumed bytes from this anchor.
	p.currentOff = p.tw.Offset()

	entry, ok := p.xrefs.Lookup(id)
	if !ok || entry.Generation != gen {
		log.Trace.Printf("parser: skipping object %d %d (xref disagreement)\n", id, gen)
		p.skipTree[id] = true
		if err := p.passOverObject(); err != nil {
			return Event{}, p.fail(err)
		}
		return p.Iterate()
	}

	p.currentID, p.currentGen = id, gen
	p.state = ObjectDefinition
	return Event{Kind: EventObject, ObjectID: id, Gen: gen}, nil
}

// Trailer returns the most recently parsed trailer dictionary, or nil if
// none has been seen yet.
func (p *Parser) Trailer() *object.Dict { return p.trailer }

// ConstructObject pops the object's definition and transitions the parser
// state according to whether it has a stream.
func (p *Parser) ConstructObject() (*object.Indirect, error) {
	def, err := object.ReadValue(p.scan)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformed, err)
	}
	obj := object.NewIndirect(p.currentID, p.currentGen, def)
	p.pending = obj

	text, numeric, delim, err := p.scan.NextSymbol()
	if err == nil && !numeric && !delim && text == "stream" {
		obj.HasStream = true
		p.state = ObjectAppendix
		if err := p.resolveStreamLength(obj); err != nil {
			return nil, err
		}
		obj.RawStreamLength = p.streamLen
	} else {
		if err == nil {
			p.scan.UnreadSymbol(text, numeric, delim)
		}
		p.state = Base
	}
	return obj, nil
}

// ConsumeStreamBody advances the scanner cursor past the stream's n raw
// bytes plus its closing "endstream"/"endobj" keywords, once the caller
// (the pipe) has copied those bytes out via Buffer(). Must be called
// before PassthroughObject so the consumed-byte count it computes includes
// the stream.
func (p *Parser) ConsumeStreamBody(n int) error {
	if err := p.scan.Discard(n); err != nil {
		return err
	}
	for _, want := range []string{"endstream", "endobj"} {
		text, _, _, err := p.scan.NextSymbol()
		if err != nil {
			return err
		}
		if text != want {
			return fmt.Errorf("%w: expected %q after stream body, found %q", ErrMalformed, want, text)
		}
	}
	p.state = Base
	return nil
}

// resolveStreamLength resolves a /Length entry that is itself an indirect
// reference. A self-referential /Length (an object whose own stream length
// points back at itself) is rejected rather than recursed into.
func (p *Parser) resolveStreamLength(obj *object.Indirect) error {
	lenVal, ok := obj.GetDictionaryEntry("Length")
	if !ok {
		return fmt.Errorf("%w: stream object %d has no /Length", ErrMalformed, obj.ID)
	}
	switch v := lenVal.(type) {
	case object.Integer:
		p.streamLen = int(v)
		return nil
	case object.IndirectRef:
		if obj.ID == v.ObjectNumber {
			return fmt.Errorf("%w: self-referential /Length on object %d", ErrMalformed, obj.ID)
		}
		n, err := p.LocateAndResolveLength(v.ObjectNumber)
		if err != nil {
			return err
		}
		p.streamLen = n
		return nil
	default:
		return fmt.Errorf("%w: /Length is neither an integer nor a reference", ErrMalformed)
	}
}

// LocateAndResolveLength performs a bounded branch-fetch parse of the given
// object id purely to read back its integer value, without disturbing the
// main scan cursor.
func (p *Parser) LocateAndResolveLength(id int) (int, error) {
	entry, ok := p.xrefs.Lookup(id)
	if !ok || entry.Type == xref.EntryFree {
		return 0, fmt.Errorf("%w: /Length reference %d not found in xref", ErrMalformed, id)
	}

	size := 4096
	for {
		buf, err := p.tw.FetchBranch(entry.Offset, size)
		if err != nil {
			return 0, err
		}
		n, ok := parseLengthFromBytes(buf)
		p.tw.CutBranch(buf)
		if ok {
			return n, nil
		}
		if size >= 1<<20 {
			return 0, fmt.Errorf("%w: could not resolve /Length for object %d", ErrMalformed, id)
		}
		if size < 9216 {
			size = 9216
		} else {
			size *= 2
		}
	}
}

// parseLengthFromBytes parses "N G obj <integer>" from a bounded, possibly
// truncated branch-fetch buffer, used only to recover an indirectly
// referenced stream /Length value.
func parseLengthFromBytes(buf []byte) (int, bool) {
	sc := scanner.New(nil)
	sc.SetFixedBuffer(buf, 0)
	for i := 0; i < 3; i++ {
		if _, _, _, err := sc.NextSymbol(); err != nil {
			return 0, false
		}
	}
	text, numeric, _, err := sc.NextSymbol()
	if err != nil || !numeric {
		return 0, false
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, false
	}
	return n, true
}

// passOverObject reads (without constructing) and discards a whole object's
// definition and, if present, its stream body -- mirroring ConstructObject's
// own value+stream walk so the scanner ends up positioned exactly where it
// would after a normal ConstructObject/PassthroughObject cycle, just without
// ever materializing an Indirect for the mismatched id/gen pair.
func (p *Parser) passOverObject() error {
	def, err := object.ReadValue(p.scan)
	if err != nil {
		return err
	}

	text, numeric, delim, err := p.scan.NextSymbol()
	if err == nil && !numeric && !delim && text == "stream" {
		length, lerr := lengthFromDefinition(def, p)
		if lerr != nil {
			return lerr
		}
		if err := p.scan.Discard(length); err != nil {
			return err
		}
		for _, want := range []string{"endstream", "endobj"} {
			kw, _, _, err := p.scan.NextSymbol()
			if err != nil {
				return err
			}
			if kw != want {
				return fmt.Errorf("%w: expected %q after skipped stream, found %q", ErrMalformed, want, kw)
			}
		}
	} else if err == nil {
		p.scan.UnreadSymbol(text, numeric, delim)
	}

	n := p.scan.Offset() - p.currentOff
	if n <= 0 {
		return nil
	}
	return p.tw.Discard(n)
}

// lengthFromDefinition resolves the /Length entry of a skipped stream
// object's definition, the same way resolveStreamLength does for a
// constructed one.
func lengthFromDefinition(def object.Object, p *Parser) (int, error) {
	d, ok := def.(*object.Dict)
	if !ok {
		return 0, fmt.Errorf("%w: stream object has a non-dictionary definition", ErrMalformed)
	}
	lenVal, ok := d.Get("Length")
	if !ok {
		return 0, fmt.Errorf("%w: skipped stream object has no /Length", ErrMalformed)
	}
	switch v := lenVal.(type) {
	case object.Integer:
		return int(v), nil
	case object.IndirectRef:
		return p.LocateAndResolveLength(v.ObjectNumber)
	default:
		return 0, fmt.Errorf("%w: /Length is neither an integer nor a reference", ErrMalformed)
	}
}

// PassthroughObject is called once a (possibly task-mutated) object has been
// fully handled: it records the object's final output offset in the master
// xref and either re-serializes a pending constructed object or streams the
// original bytes through verbatim.
func (p *Parser) PassthroughObject(obj *object.Indirect, originalStream []byte) error {
	consumed := p.scan.Offset() - p.currentOff
	if err := p.tw.Discard(consumed); err != nil {
		return err
	}

	if obj.DeleteObject {
		p.xrefs.MarkFree(obj.ID, obj.Generation+1)
		p.pending = nil
		p.state = Base
		return nil
	}

	p.xrefs.SetOffset(obj.ID, p.tw.OutputOffset())

	def := obj.GenerateDefinition()
	if err := p.tw.Insert(def); err != nil {
		return err
	}

	if obj.HasStream {
		if body, ok := obj.StreamBytes(originalStream); ok {
			if err := p.tw.Insert([]byte("\nstream\n")); err != nil {
				return err
			}
			if err := p.tw.Insert(body); err != nil {
				return err
			}
			if err := p.tw.Insert([]byte("\nendstream\nendobj\n")); err != nil {
				return err
			}
		} else {
			if err := p.tw.Insert([]byte("\nendobj\n")); err != nil {
				return err
			}
		}
	} else {
		if err := p.tw.Insert([]byte("\nendobj\n")); err != nil {
			return err
		}
	}

	p.pending = nil
	p.state = Base
	return nil
}

func (p *Parser) flushPending() error {
	if p.pending == nil {
		return nil
	}
	return p.PassthroughObject(p.pending, nil)
}

// NewObjectID allocates an id for a new object, with xref entry type=used,
// gen=0: a free id from the master table if there is one, otherwise one
// past the highest used id (see xref.Table.NextFreeOrNewID).
func (p *Parser) NewObjectID() int {
	id := p.xrefs.NextFreeOrNewID()
	p.xrefs.MarkUsed(id, 0, 0)
	return id
}

// Append queues a newly created object for serialization once Iterate
// reports EOF.
func (p *Parser) Append(obj *object.Indirect) {
	p.appended = append(p.appended, obj)
}

// Done serializes any appended objects and reports whether the parser ended
// in a clean state: no ids remain in the skip tree.
func (p *Parser) Done() error {
	for _, obj := range p.appended {
		p.xrefs.SetOffset(obj.ID, p.tw.OutputOffset())
		if err := p.tw.Insert(obj.GenerateDefinition()); err != nil {
			return err
		}
		if obj.HasStream {
			if body, ok := obj.StreamBytes(nil); ok {
				if err := p.tw.Insert([]byte("\nstream\n")); err != nil {
					return err
				}
				if err := p.tw.Insert(body); err != nil {
					return err
				}
				if err := p.tw.Insert([]byte("\nendstream\nendobj\n")); err != nil {
					return err
				}
				continue
			}
		}
		if err := p.tw.Insert([]byte("\nendobj\n")); err != nil {
			return err
		}
	}

	if len(p.skipTree) > 0 {
		return fmt.Errorf("%w: %d live object(s) lost", ErrObjectLost, len(p.skipTree))
	}
	return nil
}

// Failed reports whether the parser hit a fatal error and reset its
// internal state.
func (p *Parser) Failed() bool { return p.failed }

func (p *Parser) fail(err error) error {
	p.failed = true
	p.scan.ResetFailure()
	p.state = Base
	p.pending = nil
	return err
}
