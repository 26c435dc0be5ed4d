// Package xref reconstructs and re-emits a PDF's cross-reference graph: the
// master table the parser consults to resolve every indirect object to an
// offset (or, for compressed objects, a containing object stream + index),
// merged across however many incremental-update revisions the file carries,
// and re-serialized once the body has been rewritten.
package xref

import "fmt"

// EntryType distinguishes the three kinds of cross-reference row a PDF 1.5+
// file can carry.
type EntryType uint8

const (
	// EntryFree marks an object number as available for reuse (xref type 0 /
	// classical "f" rows).
	EntryFree EntryType = iota
	// EntryUsed is a regular, directly addressable object (xref type 1 /
	// classical "n" rows).
	EntryUsed
	// EntryCompressed is an object embedded inside an object stream (xref
	// type 2, binary xref streams only).
	EntryCompressed
)

// Entry is one object's resolved location.
type Entry struct {
	Type       EntryType
	Offset     int // EntryUsed: byte offset in the input file
	Generation int // EntryUsed/EntryFree: generation number
	StreamID   int // EntryCompressed: containing object-stream's object number
	Index      int // EntryCompressed: index within that object stream
	NextFree   int // EntryFree: next free object number in the free-list chain
}

// Table is the merged master cross-reference index: one Entry per object
// number, already resolved across every incremental-update revision via a
// newest-wins merge in /Prev-chain order (oldest revision first).
type Table struct {
	entries map[int]Entry
	maxUsed int
	dirty   map[int]bool // ids whose Offset changed during this pass (need re-emission)
}

// New returns an empty table, built up by Merge as revisions are discovered.
func New() *Table {
	return &Table{entries: map[int]Entry{}}
}

// Lookup returns the entry for id, if known.
func (t *Table) Lookup(id int) (Entry, bool) {
	e, ok := t.entries[id]
	return e, ok
}

// Merge folds one revision's rows into the table. Revisions must be merged
// oldest-to-newest so that a later (newer) definition of the same object
// number always wins; callers are expected to call Merge in that order
// (oldest xref section first).
func (t *Table) Merge(rows map[int]Entry) {
	for id, e := range rows {
		t.entries[id] = e
		if id > t.maxUsed {
			t.maxUsed = id
		}
	}
}

// SetOffset records the final output-file offset for an object once the
// parser has passed it through, and marks the entry dirty for re-emission.
func (t *Table) SetOffset(id, offset int) {
	e := t.entries[id]
	e.Type = EntryUsed
	e.Offset = offset
	t.entries[id] = e
	if t.dirty == nil {
		t.dirty = map[int]bool{}
	}
	t.dirty[id] = true
}

// MarkUsed installs a fresh entry for a newly allocated object number.
func (t *Table) MarkUsed(id, gen, offset int) {
	t.entries[id] = Entry{Type: EntryUsed, Generation: gen, Offset: offset}
	if id > t.maxUsed {
		t.maxUsed = id
	}
}

// MarkFree converts an object's entry to a free-list entry at the given
// next generation, chaining it behind object 0's free-list head. The
// classical convention of threading deleted objects through NextFree is
// preserved so WriteClassical can emit a correct free-list chain even
// though pdfpipe itself never walks it to reuse ids within a single pass.
func (t *Table) MarkFree(id, nextGeneration int) {
	head, ok := t.entries[0]
	if !ok {
		head = Entry{Type: EntryFree}
	}
	t.entries[id] = Entry{Type: EntryFree, NextFree: head.NextFree, Generation: nextGeneration}
	head.NextFree = id
	head.Type = EntryFree
	t.entries[0] = head
}

// NextFreeOrNewID returns an object number for a newly appended object:
// any free entry other than object 0 if the table has one, otherwise one
// past the highest object number ever used. The free-list chain is not
// followed, so which free entry is returned when there are several is not
// defined, and the entry's generation is not checked.
func (t *Table) NextFreeOrNewID() int {
	for id, e := range t.entries {
		if e.Type == EntryFree && id != 0 {
			return id
		}
	}
	t.maxUsed++
	return t.maxUsed
}

// Count returns one past the highest object number in the table, the value
// a classical xref section's subsection header reports.
func (t *Table) Count() int { return t.maxUsed + 1 }

// Each calls fn for every entry in ascending object-number order.
func (t *Table) Each(fn func(id int, e Entry)) {
	for id := 0; id <= t.maxUsed; id++ {
		e, ok := t.entries[id]
		if !ok {
			continue
		}
		fn(id, e)
	}
}

// String renders the table for diagnostics (not used for serialization;
// see WriteClassical for the on-disk classical xref table form).
func (t *Table) String() string {
	return fmt.Sprintf("xref.Table{%d entries, maxUsed=%d}", len(t.entries), t.maxUsed)
}
