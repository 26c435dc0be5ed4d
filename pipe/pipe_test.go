package pipe

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/benoitkugler/pdfpipe/object"
	"github.com/benoitkugler/pdfpipe/task"
	"github.com/stretchr/testify/require"
)

// writeFixture assembles a minimal three-object PDF with a classical xref
// table and writes it to path, mirroring the layout package xref's own
// discover_test.go fixture builds.
func writeFixture(t *testing.T, path string) {
	t.Helper()
	var body string
	body += "%PDF-1.4\n"

	offsets := make([]int, 4)
	offsets[1] = len(body)
	body += "1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n"
	offsets[2] = len(body)
	body += "2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n"
	offsets[3] = len(body)
	body += "3 0 obj\n<< /Type /Page /Parent 2 0 R /Rotate 0 >>\nendobj\n"

	xrefOffset := len(body)
	body += "xref\n"
	body += fmt.Sprintf("0 %d\n", len(offsets))
	body += "0000000000 65535 f \n"
	for i := 1; i < len(offsets); i++ {
		body += fmt.Sprintf("%010d %05d n \n", offsets[i], 0)
	}
	body += "trailer\n<< /Size 4 /Root 1 0 R >>\n"
	body += fmt.Sprintf("startxref\n%d\n%%%%EOF\n", xrefOffset)

	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestPipeRoundTripsObjectCount(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.pdf")
	out := filepath.Join(dir, "out.pdf")
	writeFixture(t, in)

	p, err := New(in, out)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Prepare())

	var seen []int
	p.AddTask(0, task.New("collect", func(obj *object.Indirect) (task.Result, error) {
		seen = append(seen, obj.ID)
		return task.Done, nil
	}))

	require.NoError(t, p.Execute())
	require.ElementsMatch(t, []int{1, 2, 3}, seen)

	written, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Contains(t, string(written), "/Catalog")
	require.Contains(t, string(written), "startxref")
}

func TestPipeTaskMutatesDictionaryEntry(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.pdf")
	out := filepath.Join(dir, "out.pdf")
	writeFixture(t, in)

	p, err := New(in, out)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Prepare())

	p.AddTask(0, task.NewFiltered("rotate", task.TypeFilter("Page"), func(obj *object.Indirect) (task.Result, error) {
		obj.SetDictionaryEntry("Rotate", object.Integer(90))
		return task.Done, nil
	}))

	require.NoError(t, p.Execute())

	written, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Contains(t, string(written), "/Rotate 90")
}

// writeObjectStreamFixture assembles a PDF whose fourth object is an
// unfiltered /Type /ObjStm container embedding one compressed object (id 5,
// a small dictionary), alongside the usual Catalog/Pages/Page objects.
func writeObjectStreamFixture(t *testing.T, path string) {
	t.Helper()
	var body string
	body += "%PDF-1.5\n"

	offsets := make([]int, 5)
	offsets[1] = len(body)
	body += "1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n"
	offsets[2] = len(body)
	body += "2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n"
	offsets[3] = len(body)
	body += "3 0 obj\n<< /Type /Page /Parent 2 0 R >>\nendobj\n"

	prolog := "5 0 "
	content := prolog + "<< /Type /Embedded /X 1 >>"
	offsets[4] = len(body)
	body += fmt.Sprintf("4 0 obj\n<< /Type /ObjStm /N 1 /First %d /Length %d >>\nstream\n%s\nendstream\nendobj\n",
		len(prolog), len(content), content)

	xrefOffset := len(body)
	body += "xref\n"
	body += fmt.Sprintf("0 %d\n", len(offsets))
	body += "0000000000 65535 f \n"
	for i := 1; i < len(offsets); i++ {
		body += fmt.Sprintf("%010d %05d n \n", offsets[i], 0)
	}
	body += "trailer\n<< /Size 5 /Root 1 0 R >>\n"
	body += fmt.Sprintf("startxref\n%d\n%%%%EOF\n", xrefOffset)

	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestPipeObjectStreamTaskMutatesEmbeddedObject(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.pdf")
	out := filepath.Join(dir, "out.pdf")
	writeObjectStreamFixture(t, in)

	p, err := New(in, out)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Prepare())

	p.AddTask(5, task.New("tag-embedded", func(obj *object.Indirect) (task.Result, error) {
		require.Equal(t, object.ClassCompressed, obj.Class)
		obj.SetDictionaryEntry("X", object.Integer(2))
		return task.Done, nil
	}))

	require.NoError(t, p.Execute())

	written, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Contains(t, string(written), "/X 2")
	require.NotContains(t, string(written), "/X 1")
}

func TestPipeObjectStreamUntouchedWhenNoTaskMatches(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.pdf")
	out := filepath.Join(dir, "out.pdf")
	writeObjectStreamFixture(t, in)

	p, err := New(in, out)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Prepare())
	require.NoError(t, p.Execute())

	written, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Contains(t, string(written), "/X 1")
}

func TestPipeRunTasksSkipRestStopsLaterTasksForSameObject(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.pdf")
	out := filepath.Join(dir, "out.pdf")
	writeFixture(t, in)

	p, err := New(in, out)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Prepare())

	var ran []string
	p.AddTask(0, task.New("wildcard-first", func(obj *object.Indirect) (task.Result, error) {
		ran = append(ran, "wildcard-first")
		if obj.ID == 1 {
			return task.SkipRest, nil
		}
		return task.Done, nil
	}))
	p.AddTask(1, task.New("per-id-should-not-run", func(obj *object.Indirect) (task.Result, error) {
		ran = append(ran, "per-id-should-not-run")
		return task.Done, nil
	}))
	p.AddTask(2, task.New("per-id-unrelated", func(obj *object.Indirect) (task.Result, error) {
		ran = append(ran, "per-id-unrelated")
		return task.Done, nil
	}))

	require.NoError(t, p.Execute())

	require.Contains(t, ran, "per-id-unrelated")
	require.NotContains(t, ran, "per-id-should-not-run")

	// The wildcard task itself stays registered: it still ran for every
	// other object, since SkipRest only skips the rest of *that* object's
	// tasks, not the wildcard task's future invocations.
	count := 0
	for _, r := range ran {
		if r == "wildcard-first" {
			count++
		}
	}
	require.Equal(t, 3, count)
}

func TestPipeRunTasksUnloadDeregistersTask(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.pdf")
	out := filepath.Join(dir, "out.pdf")
	writeFixture(t, in)

	p, err := New(in, out)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Prepare())

	runCount := 0
	p.AddTask(0, task.New("once", func(obj *object.Indirect) (task.Result, error) {
		runCount++
		return task.Unload, nil
	}))

	require.NoError(t, p.Execute())
	require.Equal(t, 1, runCount)
}

func TestPipeTaskDeletesAllDictionaryEntries(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.pdf")
	out := filepath.Join(dir, "out.pdf")
	writeFixture(t, in)

	p, err := New(in, out)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Prepare())

	p.AddTask(3, task.New("strip-all", func(obj *object.Indirect) (task.Result, error) {
		dict, ok := obj.CurrentDef().(*object.Dict)
		require.True(t, ok)
		for _, key := range append([]string(nil), dict.Keys()...) {
			obj.DeleteDictionaryEntry(key)
		}
		return task.Done, nil
	}))

	require.NoError(t, p.Execute())

	written, err := os.ReadFile(out)
	require.NoError(t, err)
	require.NotContains(t, string(written), "/Type /Page/Parent")
	require.NotContains(t, string(written), "/Rotate")
}

func TestPipeTaskDeletesObject(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.pdf")
	out := filepath.Join(dir, "out.pdf")
	writeFixture(t, in)

	p, err := New(in, out)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Prepare())

	p.AddTask(3, task.New("delete-page", func(obj *object.Indirect) (task.Result, error) {
		obj.DeleteObject = true
		return task.Done, nil
	}))

	require.NoError(t, p.Execute())

	written, err := os.ReadFile(out)
	require.NoError(t, err)
	require.NotContains(t, string(written), "/Type /Page/Parent")
}
