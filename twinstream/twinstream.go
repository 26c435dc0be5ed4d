// Package twinstream implements the coupled input-reader/output-writer used
// by package parser to mutate a PDF in a single pass: one heap buffer slides
// over the input file as it is read, while passthrough/discard/insert decide
// what (if anything) reaches the output file. It is grounded on the
// teacher's reader/file package's split between a live read window
// (tokenizerAt/parseStreamDictAt) and bounded out-of-window fetches
// (extractStreamContent's branch-fetch logic in streams.go), generalized
// here to also drive writes and a one-shot reversed read.
package twinstream

import (
	"errors"
	"fmt"
	"io"
)

// Method selects how a Stream's heap window is driven.
type Method uint8

const (
	// ReadWrite is the production mode: forward read from input, matched by
	// passthrough/discard/insert writes to output.
	ReadWrite Method = iota
	// RandomAccess seeks to absolute input offsets on demand; used while
	// discovering and collecting xref tables.
	RandomAccess
	// Reversed is a one-shot mode that reads chunks from the end of the
	// input file backwards, to locate the final startxref marker.
	Reversed
)

const defaultChunk = 4096

// Stream is the twin stream: one heap buffer shared between a read cursor
// (driven by package scanner through BufferFunc) and the output write path.
type Stream struct {
	in     io.ReadSeeker
	out    io.Writer
	method Method
	size   int64 // input file size, needed for Reversed mode

	heap  []byte
	offsi int // absolute input-file offset of heap[0]
	offso int // bytes written to the output file so far

	side           []byte // side buffer for out-of-window branch fetches
	disallowGrowth bool
	outgrown       bool
}

// NewReadWrite creates a production-mode twin stream.
func NewReadWrite(in io.ReadSeeker, out io.Writer) *Stream {
	return &Stream{in: in, out: out, method: ReadWrite}
}

// NewRandomAccess creates a twin stream for xref discovery: no output, seeks
// freely.
func NewRandomAccess(in io.ReadSeeker) *Stream {
	return &Stream{in: in, method: RandomAccess}
}

// NewReversed creates a one-shot twin stream that reads from the tail of the
// input file backwards, given the file's total size.
func NewReversed(in io.ReadSeeker, size int64) *Stream {
	return &Stream{in: in, method: Reversed, size: size, offsi: int(size)}
}

// Offset returns the absolute input-file offset of the first byte of the
// current window.
func (t *Stream) Offset() int { return t.offsi }

// OutputOffset returns the number of bytes written to the output so far.
func (t *Stream) OutputOffset() int { return t.offso }

// DisallowGrowth switches the stream into bounded-fetch mode: in the
// forward modes BufferFunc then reads no more input into the heap; instead,
// a request beyond the current window sets Outgrown and returns a benign nil
// error so the caller can inspect it, double the requested size, and retry
// from scratch. The Reversed mode does not honour the setting.
func (t *Stream) DisallowGrowth(disallow bool) { t.disallowGrowth = disallow }

// Outgrown reports whether the last BufferFunc call exceeded the allowance
// set by DisallowGrowth.
func (t *Stream) Outgrown() bool { return t.outgrown }

// BufferFunc satisfies scanner.BufferFunc: it grows the heap in place when
// possible, otherwise shifts unread content to offset 0 and refills from the
// input, updating *offset to the new window start.
func (t *Stream) BufferFunc(buf *[]byte, offset *int, required int) error {
	t.outgrown = false

	if required <= len(t.heap) {
		*buf, *offset = t.heap, t.offsi
		return nil
	}

	switch t.method {
	case Reversed:
		if err := t.growReversed(required); err != nil {
			return err
		}
	default:
		if err := t.growForward(required); err != nil {
			return err
		}
	}

	*buf, *offset = t.heap, t.offsi
	return nil
}

func (t *Stream) growForward(required int) error {
	if t.disallowGrowth {
		t.outgrown = true
		return nil
	}

	// (a) grow in place if the backing array already has room.
	if required <= cap(t.heap) {
		old := len(t.heap)
		t.heap = t.heap[:required]
		n, err := io.ReadFull(t.in, t.heap[old:required])
		t.heap = t.heap[:old+n]
		if n > 0 {
			err = nil
		}
		return err
	}

	// (b) allocate a fresh, larger buffer, keep unread content at offset 0.
	want := required
	if want < defaultChunk {
		want = defaultChunk
	}
	next := make([]byte, len(t.heap), want*2)
	copy(next, t.heap)
	old := len(next)
	next = next[:required]
	n, err := io.ReadFull(t.in, next[old:required])
	next = next[:old+n]
	t.heap = next
	if n > 0 {
		err = nil
	}
	return err
}

func (t *Stream) growReversed(required int) error {
	// Pull another chunk from just before the current window, growing
	// toward the start of the file.
	want := required - len(t.heap)
	if want < defaultChunk {
		want = defaultChunk
	}
	newStart := t.offsi - want
	if newStart < 0 {
		newStart = 0
		want = t.offsi
	}
	if want <= 0 {
		return io.EOF
	}
	chunk := make([]byte, want)
	if _, err := t.in.Seek(int64(newStart), io.SeekStart); err != nil {
		return err
	}
	if _, err := io.ReadFull(t.in, chunk); err != nil {
		return err
	}
	t.heap = append(chunk, t.heap...)
	t.offsi = newStart
	return nil
}

// Passthrough copies the first n bytes of the heap to the output file,
// compacting the heap so that the window starts at the first byte past
// those n. The scanner must already have consumed (lexed past) those n
// bytes before this is called.
func (t *Stream) Passthrough(n int) error {
	if n > len(t.heap) {
		return fmt.Errorf("twinstream: passthrough(%d) exceeds window of %d bytes", n, len(t.heap))
	}
	if t.out == nil {
		return errors.New("twinstream: passthrough on a stream with no output")
	}
	if _, err := t.out.Write(t.heap[:n]); err != nil {
		return err
	}
	t.offso += n
	t.advance(n)
	return nil
}

// Discard advances the window by n bytes without writing them to the
// output.
func (t *Stream) Discard(n int) error {
	if n > len(t.heap) {
		return fmt.Errorf("twinstream: discard(%d) exceeds window of %d bytes", n, len(t.heap))
	}
	t.advance(n)
	return nil
}

// Insert writes bytes directly to the output file. It does not touch the
// read window (the twin stream's "cursor" in spec terms).
func (t *Stream) Insert(data []byte) error {
	if t.out == nil {
		return errors.New("twinstream: insert on a stream with no output")
	}
	n, err := t.out.Write(data)
	t.offso += n
	return err
}

func (t *Stream) advance(n int) {
	t.heap = t.heap[n:]
	t.offsi += n
}

// Seek switches the window to an absolute input offset (RandomAccess mode
// only), discarding the current heap.
func (t *Stream) Seek(pos int64) error {
	if _, err := t.in.Seek(pos, io.SeekStart); err != nil {
		return err
	}
	t.heap = nil
	t.offsi = int(pos)
	return nil
}

// FetchBranch returns len bytes starting at the absolute input offset pos,
// without disturbing the main read window. If the range lies within the
// current window, the returned slice aliases the heap directly; otherwise a
// side buffer is allocated and populated via a seek+read on a duplicated
// read position (the underlying io.ReadSeeker's position is restored
// afterwards).
func (t *Stream) FetchBranch(pos, length int) ([]byte, error) {
	if pos >= t.offsi && pos+length <= t.offsi+len(t.heap) {
		start := pos - t.offsi
		return t.heap[start : start+length], nil
	}

	save, err := t.in.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	defer t.in.Seek(save, io.SeekStart)

	if _, err := t.in.Seek(int64(pos), io.SeekStart); err != nil {
		return nil, err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(t.in, buf); err != nil {
		return nil, err
	}
	t.side = buf
	return buf, nil
}

// CutBranch releases the side buffer allocated by FetchBranch, if ptr
// aliases it. Branch-fetched pointers into the live heap need no release.
func (t *Stream) CutBranch(ptr []byte) {
	if t.side != nil && &t.side[0] == &ptr[0] {
		t.side = nil
	}
}
