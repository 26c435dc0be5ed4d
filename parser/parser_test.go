package parser

import (
	"bytes"
	"testing"

	"github.com/benoitkugler/pdfpipe/object"
	"github.com/benoitkugler/pdfpipe/twinstream"
	"github.com/benoitkugler/pdfpipe/xref"
	"github.com/stretchr/testify/require"
)

func newParserFor(t *testing.T, src string, xt *xref.Table) (*Parser, *bytes.Buffer) {
	t.Helper()
	in := bytes.NewReader([]byte(src))
	var out bytes.Buffer
	tw := twinstream.NewReadWrite(in, &out)
	return New(tw, xt), &out
}

func TestIterateYieldsObjectsInXRefOrder(t *testing.T) {
	src := "1 0 obj\n<< /Type /Catalog >>\nendobj\n2 0 obj\n<< /Type /Pages >>\nendobj\n"
	xt := xref.New()
	xt.MarkUsed(1, 0, 0)
	xt.MarkUsed(2, 0, len("1 0 obj\n<< /Type /Catalog >>\nendobj\n"))

	p, _ := newParserFor(t, src, xt)

	ev, err := p.Iterate()
	require.NoError(t, err)
	require.Equal(t, EventObject, ev.Kind)
	require.Equal(t, 1, ev.ObjectID)

	obj, err := p.ConstructObject()
	require.NoError(t, err)
	require.False(t, obj.HasStream)
	require.NoError(t, p.PassthroughObject(obj, nil))

	ev, err = p.Iterate()
	require.NoError(t, err)
	require.Equal(t, EventObject, ev.Kind)
	require.Equal(t, 2, ev.ObjectID)
}

func TestIterateSkipsObjectOnGenerationMismatch(t *testing.T) {
	src := "1 0 obj\n<< /Type /Catalog >>\nendobj\n"
	xt := xref.New()
	xt.MarkUsed(1, 1, 0) // xref says generation 1, body says 0: disagreement

	p, _ := newParserFor(t, src, xt)

	ev, err := p.Iterate()
	require.NoError(t, err)
	require.Equal(t, EventEOF, ev.Kind)
	require.Error(t, p.Done())
}

func TestIterateSkipsMismatchedObjectThenResumesOnNextLiveOne(t *testing.T) {
	first := "1 0 obj\n<< /Type /Catalog >>\nendobj\n"
	src := first + "2 0 obj\n<< /Type /Pages >>\nendobj\n"
	xt := xref.New()
	xt.MarkUsed(1, 1, 0) // disagreement: body declares generation 0
	xt.MarkUsed(2, 0, len(first))

	p, _ := newParserFor(t, src, xt)

	ev, err := p.Iterate()
	require.NoError(t, err)
	require.Equal(t, EventObject, ev.Kind)
	require.Equal(t, 2, ev.ObjectID)

	obj, err := p.ConstructObject()
	require.NoError(t, err)
	v, ok := obj.GetDictionaryEntry("Type")
	require.True(t, ok)
	require.Equal(t, object.Name("Pages"), v)
}

func TestPassOverObjectSkipsStreamBody(t *testing.T) {
	first := "1 0 obj\n<< /Length 5 >>\nstream\nhello\nendstream\nendobj\n"
	src := first + "2 0 obj\n<< /Type /Pages >>\nendobj\n"
	xt := xref.New()
	xt.MarkUsed(1, 7, 0) // disagreement
	xt.MarkUsed(2, 0, len(first))

	p, _ := newParserFor(t, src, xt)

	ev, err := p.Iterate()
	require.NoError(t, err)
	require.Equal(t, EventObject, ev.Kind)
	require.Equal(t, 2, ev.ObjectID)
}

func TestIterateReportsEOF(t *testing.T) {
	xt := xref.New()
	p, _ := newParserFor(t, "", xt)

	ev, err := p.Iterate()
	require.NoError(t, err)
	require.Equal(t, EventEOF, ev.Kind)
}

func TestConstructObjectResolvesDirectStreamLength(t *testing.T) {
	src := "1 0 obj\n<< /Length 5 >>\nstream\nhello\nendstream\nendobj\n"
	xt := xref.New()
	xt.MarkUsed(1, 0, 0)

	p, _ := newParserFor(t, src, xt)
	ev, err := p.Iterate()
	require.NoError(t, err)
	require.Equal(t, EventObject, ev.Kind)

	obj, err := p.ConstructObject()
	require.NoError(t, err)
	require.True(t, obj.HasStream)
	require.Equal(t, 5, obj.RawStreamLength)

	require.NoError(t, p.ConsumeStreamBody(5))
	require.NoError(t, p.PassthroughObject(obj, []byte("hello")))
}

func TestPassthroughObjectHandlesDeletion(t *testing.T) {
	src := "1 0 obj\n<< /Type /Catalog >>\nendobj\n"
	xt := xref.New()
	xt.MarkUsed(1, 0, 0)

	p, out := newParserFor(t, src, xt)
	ev, err := p.Iterate()
	require.NoError(t, err)
	require.Equal(t, 1, ev.ObjectID)

	obj, err := p.ConstructObject()
	require.NoError(t, err)
	obj.DeleteObject = true
	require.NoError(t, p.PassthroughObject(obj, nil))

	require.Empty(t, out.Bytes())
	e, ok := xt.Lookup(1)
	require.True(t, ok)
	require.Equal(t, xref.EntryFree, e.Type)
}

func TestNewObjectIDAllocatesPastMax(t *testing.T) {
	xt := xref.New()
	xt.MarkUsed(1, 0, 0)
	xt.MarkUsed(4, 0, 0)

	p, _ := newParserFor(t, "", xt)
	id := p.NewObjectID()
	require.Equal(t, 5, id)
}

func TestAppendSerializesOnDone(t *testing.T) {
	xt := xref.New()
	p, out := newParserFor(t, "", xt)

	d := object.NewDict()
	d.Set("Type", object.Name("Metadata"))
	obj := object.NewIndirect(9, 0, d)
	p.Append(obj)

	ev, err := p.Iterate()
	require.NoError(t, err)
	require.Equal(t, EventEOF, ev.Kind)

	require.NoError(t, p.Done())
	require.Contains(t, out.String(), "9 0 obj")
	require.Contains(t, out.String(), "/Metadata")
}
