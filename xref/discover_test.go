package xref

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/benoitkugler/pdfpipe/twinstream"
	"github.com/stretchr/testify/require"
)

// buildClassicalFixture assembles a minimal single-revision PDF body
// followed by a classical xref table and trailer, returning the full byte
// stream and the byte offset of its "xref" keyword (the value a real
// "startxref" marker would carry).
func buildClassicalFixture(t *testing.T) ([]byte, int) {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	offsets := make([]int, 4)
	offsets[1] = buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	offsets[2] = buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")
	offsets[3] = buf.Len()
	buf.WriteString("3 0 obj\n<< /Type /Page /Parent 2 0 R >>\nendobj\n")

	xrefOffset := buf.Len()
	buf.WriteString("xref\n")
	buf.WriteString(fmt.Sprintf("0 %d\n", len(offsets)))
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i < len(offsets); i++ {
		buf.WriteString(fmt.Sprintf("%010d %05d n \n", offsets[i], 0))
	}
	buf.WriteString("trailer\n<< /Size 4 /Root 1 0 R >>\n")
	buf.WriteString(fmt.Sprintf("startxref\n%d\n%%%%EOF\n", xrefOffset))

	return buf.Bytes(), xrefOffset
}

func TestLocateStartXRef(t *testing.T) {
	data, xrefOffset := buildClassicalFixture(t)
	r := bytes.NewReader(data)
	reversed := twinstream.NewReversed(r, int64(len(data)))

	off, err := LocateStartXRef(reversed)
	require.NoError(t, err)
	require.Equal(t, xrefOffset, off)
}

func TestDiscoverClassicalTable(t *testing.T) {
	data, xrefOffset := buildClassicalFixture(t)
	r := bytes.NewReader(data)
	ra := twinstream.NewRandomAccess(r)

	table, trailer, err := Discover(ra, xrefOffset)
	require.NoError(t, err)
	require.NotNil(t, trailer)

	root, ok := trailer.Get("Root")
	require.True(t, ok)
	require.NotNil(t, root)

	e, ok := table.Lookup(1)
	require.True(t, ok)
	require.Equal(t, EntryUsed, e.Type)

	e, ok = table.Lookup(0)
	require.True(t, ok)
	require.Equal(t, EntryFree, e.Type)
}

// writeXRefStreamRow appends one 4-byte (type, 2-byte field, gen) binary
// xref-stream row, matching the /W [1 2 1] width this file's fixtures use.
func writeXRefStreamRow(buf *bytes.Buffer, typ byte, f2 uint16, gen byte) {
	buf.WriteByte(typ)
	buf.WriteByte(byte(f2 >> 8))
	buf.WriteByte(byte(f2 & 0xff))
	buf.WriteByte(gen)
}

// buildXRefStreamFixture assembles a PDF whose sole cross-reference section
// is a binary xref stream (no classical table at all), exercising
// readXRefStream on its own.
func buildXRefStreamFixture(t *testing.T) (data []byte, startOffset int, objOffsets []int) {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.5\n")

	offsets := make([]int, 4)
	offsets[1] = buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	offsets[2] = buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")
	offsets[3] = buf.Len()
	buf.WriteString("3 0 obj\n<< /Type /Page /Parent 2 0 R >>\nendobj\n")

	var rows bytes.Buffer
	writeXRefStreamRow(&rows, 0, 0, 0)
	writeXRefStreamRow(&rows, 1, uint16(offsets[1]), 0)
	writeXRefStreamRow(&rows, 1, uint16(offsets[2]), 0)
	writeXRefStreamRow(&rows, 1, uint16(offsets[3]), 0)

	xrefStreamOffset := buf.Len()
	dict := fmt.Sprintf("<< /Type /XRef /Size 4 /W [1 2 1] /Root 1 0 R /Length %d >>", rows.Len())
	buf.WriteString(fmt.Sprintf("4 0 obj\n%s\nstream\n%s\nendstream\nendobj\n%%%%EOF\n", dict, rows.String()))

	return buf.Bytes(), xrefStreamOffset, offsets
}

func TestDiscoverXRefStream(t *testing.T) {
	data, startOffset, offsets := buildXRefStreamFixture(t)
	ra := twinstream.NewRandomAccess(bytes.NewReader(data))

	table, trailer, err := Discover(ra, startOffset)
	require.NoError(t, err)
	require.NotNil(t, trailer)

	root, ok := trailer.Get("Root")
	require.True(t, ok)
	require.NotNil(t, root)

	e, ok := table.Lookup(0)
	require.True(t, ok)
	require.Equal(t, EntryFree, e.Type)

	e, ok = table.Lookup(1)
	require.True(t, ok)
	require.Equal(t, EntryUsed, e.Type)
	require.Equal(t, offsets[1], e.Offset)

	e, ok = table.Lookup(3)
	require.True(t, ok)
	require.Equal(t, EntryUsed, e.Type)
	require.Equal(t, offsets[3], e.Offset)
}

// buildHybridFixture assembles a PDF with a classical xref table whose
// trailer carries /XRefStm pointing at a binary xref stream covering the
// same objects. Object 1's classical row deliberately points at the wrong
// offset (object 2's) so a test can confirm the /XRefStm overlay, not the
// classical row, wins.
func buildHybridFixture(t *testing.T) (data []byte, startOffset int, objOffsets []int) {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.5\n")

	offsets := make([]int, 4)
	offsets[1] = buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	offsets[2] = buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")
	offsets[3] = buf.Len()
	buf.WriteString("3 0 obj\n<< /Type /Page /Parent 2 0 R >>\nendobj\n")

	var rows bytes.Buffer
	writeXRefStreamRow(&rows, 0, 0, 0)
	writeXRefStreamRow(&rows, 1, uint16(offsets[1]), 0) // correct offset
	writeXRefStreamRow(&rows, 1, uint16(offsets[2]), 0)
	writeXRefStreamRow(&rows, 1, uint16(offsets[3]), 0)

	xrefStmOffset := buf.Len()
	dict := fmt.Sprintf("<< /Type /XRef /Size 4 /W [1 2 1] /Root 1 0 R /Length %d >>", rows.Len())
	buf.WriteString(fmt.Sprintf("4 0 obj\n%s\nstream\n%s\nendstream\nendobj\n", dict, rows.String()))

	xrefTableOffset := buf.Len()
	buf.WriteString("xref\n")
	buf.WriteString(fmt.Sprintf("0 %d\n", len(offsets)))
	buf.WriteString("0000000000 65535 f \n")
	// Row for object 1 is deliberately wrong (object 2's offset) so the test
	// can confirm the /XRefStm overlay wins over this classical row.
	wrong := []int{0, offsets[2], offsets[2], offsets[3]}
	for i := 1; i < len(offsets); i++ {
		buf.WriteString(fmt.Sprintf("%010d %05d n \n", wrong[i], 0))
	}
	buf.WriteString(fmt.Sprintf("trailer\n<< /Size 4 /Root 1 0 R /XRefStm %d >>\n", xrefStmOffset))
	buf.WriteString(fmt.Sprintf("startxref\n%d\n%%%%EOF\n", xrefTableOffset))

	return buf.Bytes(), xrefTableOffset, offsets
}

func TestDiscoverHybridXRefStmOverlayWinsOverClassicalRow(t *testing.T) {
	data, startOffset, offsets := buildHybridFixture(t)
	ra := twinstream.NewRandomAccess(bytes.NewReader(data))

	table, trailer, err := Discover(ra, startOffset)
	require.NoError(t, err)
	require.NotNil(t, trailer)

	e, ok := table.Lookup(1)
	require.True(t, ok)
	require.Equal(t, EntryUsed, e.Type)
	require.Equal(t, offsets[1], e.Offset, "the /XRefStm overlay's offset must win over the classical table's wrong row")
}
