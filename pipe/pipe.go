// Package pipe drives one single-pass mutation end to end: it opens the
// input and output files, discovers the master cross-reference table,
// feeds every live indirect object through package parser, dispatches
// registered package task tasks against each one, and re-emits a fresh
// cross-reference section once the body has been rewritten. Discovery and
// xref emission are unified here into a single streaming pass rather than
// split across separate read and write phases.
package pipe

import (
	"fmt"
	"io"
	"os"

	"github.com/benoitkugler/pdfpipe/object"
	"github.com/benoitkugler/pdfpipe/objstm"
	"github.com/benoitkugler/pdfpipe/parser"
	"github.com/benoitkugler/pdfpipe/task"
	"github.com/benoitkugler/pdfpipe/twinstream"
	"github.com/benoitkugler/pdfpipe/xref"
	"github.com/pdfcpu/pdfcpu/pkg/log"
)

// Pipe is one mutation run: open input, parse, dispatch tasks, write
// output.
type Pipe struct {
	inPath, outPath string

	in  *os.File
	out *os.File

	tw      *twinstream.Stream
	parser  *parser.Parser
	table   *xref.Table
	trailer *object.Dict

	// tasks maps an object number to the tasks registered for it
	// specifically; tasks registered against every object live under key 0
	// by convention, since object number 0 is never a real object (xref
	// reserves it for the free-list head).
	tasks map[int][]*task.Task
}

// New records inPath/outPath for a mutation pass; the files are opened by
// Prepare, and nothing runs until Execute.
func New(inPath, outPath string) (*Pipe, error) {
	return &Pipe{inPath: inPath, outPath: outPath, tasks: map[int][]*task.Task{}}, nil
}

// AddTask registers t against every object (id == 0) or a specific object
// number.
func (p *Pipe) AddTask(id int, t *task.Task) {
	p.tasks[id] = append(p.tasks[id], t)
}

// Prepare opens the files and discovers the master cross-reference table.
func (p *Pipe) Prepare() error {
	in, err := os.Open(p.inPath)
	if err != nil {
		return fmt.Errorf("pipe: opening input: %w", err)
	}
	p.in = in

	fi, err := in.Stat()
	if err != nil {
		return err
	}

	reversed := twinstream.NewReversed(in, fi.Size())
	startOffset, err := xref.LocateStartXRef(reversed)
	if err != nil {
		return fmt.Errorf("pipe: %w", err)
	}

	if _, err := in.Seek(0, io.SeekStart); err != nil {
		return err
	}
	ra := twinstream.NewRandomAccess(in)
	table, trailer, err := xref.Discover(ra, startOffset)
	if err != nil {
		return fmt.Errorf("pipe: discovering xref: %w", err)
	}
	p.table = table
	p.trailer = trailer

	out, err := os.Create(p.outPath)
	if err != nil {
		return fmt.Errorf("pipe: creating output: %w", err)
	}
	p.out = out

	if _, err := in.Seek(0, io.SeekStart); err != nil {
		return err
	}
	p.tw = twinstream.NewReadWrite(in, out)
	p.parser = parser.New(p.tw, p.table)

	log.Info.Printf("pipe: discovered %d object(s), trailer keys=%v\n", table.Count(), trailerKeys(trailer))
	return nil
}

// Trailer returns the trailer dictionary discovered by Prepare, or nil if
// Prepare has not run yet.
func (p *Pipe) Trailer() *object.Dict { return p.trailer }

func trailerKeys(d *object.Dict) []string {
	if d == nil {
		return nil
	}
	return d.Keys()
}

// Execute drives the parser to completion, dispatching tasks for every
// live object, then writes the final cross-reference section and trailer.
func (p *Pipe) Execute() error {
	for {
		ev, err := p.parser.Iterate()
		if err != nil {
			return fmt.Errorf("pipe: %w", err)
		}
		if ev.Kind == parser.EventEOF {
			break
		}

		obj, err := p.parser.ConstructObject()
		if err != nil {
			return fmt.Errorf("pipe: constructing object %d: %w", ev.ObjectID, err)
		}

		if err := p.runTasks(obj); err != nil {
			return err
		}

		var streamBody []byte
		if obj.HasStream {
			streamBody, err = p.readStreamBody(obj)
			if err != nil {
				return fmt.Errorf("pipe: reading stream of object %d: %w", obj.ID, err)
			}
			if isObjectStream(obj) {
				if err := p.dispatchObjectStream(obj, streamBody); err != nil {
					return fmt.Errorf("pipe: object stream %d: %w", obj.ID, err)
				}
			}
			if err := p.parser.ConsumeStreamBody(len(streamBody)); err != nil {
				return fmt.Errorf("pipe: %w", err)
			}
		}

		if err := p.parser.PassthroughObject(obj, streamBody); err != nil {
			return fmt.Errorf("pipe: passthrough of object %d: %w", obj.ID, err)
		}
	}

	if err := p.parser.Done(); err != nil {
		log.Info.Printf("pipe: %s\n", err)
	}

	trailerBody := "<< >>"
	if p.trailer != nil {
		trailerBody = p.trailer.PDFString()
	}
	xrefBody := xref.WriteClassical(p.table, trailerBody, p.tw.OutputOffset())
	if err := p.tw.Insert([]byte(xrefBody)); err != nil {
		return err
	}
	return nil
}

func (p *Pipe) runTasks(obj *object.Indirect) error {
	stop, err := p.runTaskList(0, obj)
	if err != nil {
		return err
	}
	if stop {
		return nil
	}
	_, err = p.runTaskList(obj.ID, obj)
	return err
}

// runTaskList dispatches the tasks registered under key against obj in
// order, dropping any task that returns Unload and reporting stop == true
// the moment one returns SkipRest, so the caller skips the rest of this
// object's tasks (wildcard and per-id alike) without touching their
// registration. A task returning Failure aborts the pass with an error.
func (p *Pipe) runTaskList(key int, obj *object.Indirect) (stop bool, err error) {
	tasks := p.tasks[key]
	kept := tasks[:0]
	for _, t := range tasks {
		if stop {
			kept = append(kept, t)
			continue
		}
		res, err := task.Dispatch(t, obj)
		if err != nil {
			return false, err
		}
		if res == task.Failure {
			return false, fmt.Errorf("pipe: task %q failed on object %d", t.Name, obj.ID)
		}
		if res == task.Unload {
			continue
		}
		if res == task.SkipRest {
			stop = true
		}
		kept = append(kept, t)
	}
	p.tasks[key] = kept
	return stop, nil
}

// isObjectStream reports whether obj's dictionary declares /Type /ObjStm.
func isObjectStream(obj *object.Indirect) bool {
	v, ok := obj.GetDictionaryEntry("Type")
	if !ok {
		return false
	}
	name, ok := v.(object.Name)
	return ok && name == "ObjStm"
}

// dispatchObjectStream decodes an object stream's embedded objects, runs
// the registered per-object and wildcard tasks against each one exactly as
// it would for a top-level object, and, if any task mutated or deleted an
// embedded object, re-encodes the container's stream with the updated
// content (installing a fresh /First, /N, and override stream on obj).
// The stream bytes of an untouched object stream are left as they were.
func (p *Pipe) dispatchObjectStream(obj *object.Indirect, raw []byte) error {
	dict, ok := obj.CurrentDef().(*object.Dict)
	if !ok {
		return fmt.Errorf("object stream has a non-dictionary definition")
	}

	firstVal, ok := dict.Get("First")
	first, isInt := firstVal.(object.Integer)
	if !ok || !isInt {
		return fmt.Errorf("object stream has no integer /First")
	}

	chain, err := object.ChainFromDict(dict)
	if err != nil {
		return err
	}
	decoded, err := chain.Decode(raw)
	if err != nil {
		return err
	}

	entries, err := objstm.Parse(decoded, int(first))
	if err != nil {
		return err
	}

	changed := false
	kept := make([]objstm.Entry, 0, len(entries))
	for _, e := range entries {
		inner := object.NewIndirect(e.ID, 0, e.Def)
		inner.Class = object.ClassCompressed
		if err := p.runTasks(inner); err != nil {
			return err
		}
		if inner.DeleteObject {
			changed = true
			p.table.MarkFree(e.ID, 1)
			continue
		}
		if len(inner.Mutations) > 0 {
			changed = true
		}
		kept = append(kept, objstm.Entry{ID: e.ID, Def: inner.CurrentDef()})
	}

	if !changed {
		return nil
	}

	content, newFirst := objstm.Build(kept)
	obj.SetDictionaryEntry("N", object.Integer(len(kept)))
	obj.SetDictionaryEntry("First", object.Integer(newFirst))
	return obj.SetStreamFiltered(content)
}

// readStreamBody reads the raw (still-encoded) stream bytes already
// positioned at by ConstructObject's stream-length resolution.
func (p *Pipe) readStreamBody(obj *object.Indirect) ([]byte, error) {
	buf := p.tw.Buffer()
	n := obj.RawStreamLength
	if n > len(buf) {
		return nil, fmt.Errorf("pipe: stream of object %d exceeds buffered window", obj.ID)
	}
	raw := make([]byte, n)
	copy(raw, buf[:n])
	return raw, nil
}

// Close releases the pipe's open files.
func (p *Pipe) Close() error {
	var err error
	if p.in != nil {
		err = p.in.Close()
	}
	if p.out != nil {
		if e := p.out.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
