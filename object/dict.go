package object

import "strings"

// Dict represents a PDF dictionary object. It preserves insertion order
// rather than sorting keys, so that a pass-through dictionary serializes
// back out exactly as it was written, and so that a key a task adds to an
// existing dictionary lands at a stable, predictable position.
type Dict struct {
	keys   []string
	values map[string]Object
}

// NewDict returns an empty, ready-to-use Dict.
func NewDict() *Dict {
	return &Dict{values: map[string]Object{}}
}

// Set inserts or overwrites key. New keys are appended to the end of the
// iteration order; overwriting an existing key keeps its original position.
func (d *Dict) Set(key string, v Object) {
	if _, ok := d.values[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.values[key] = v
}

// Delete removes key, if present.
func (d *Dict) Delete(key string) {
	if _, ok := d.values[key]; !ok {
		return
	}
	delete(d.values, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
}

// Get returns the value for key and whether it was present.
func (d *Dict) Get(key string) (Object, bool) {
	v, ok := d.values[key]
	return v, ok
}

// Keys returns the dictionary's keys in insertion order.
func (d *Dict) Keys() []string { return d.keys }

// Len returns the number of entries.
func (d *Dict) Len() int { return len(d.keys) }

// Clone returns a deep copy of d.
func (d *Dict) Clone() Object {
	d2 := NewDict()
	for _, k := range d.keys {
		v := d.values[k]
		if v != nil {
			v = v.Clone()
		}
		d2.Set(k, v)
	}
	return d2
}

// PDFString returns the dictionary's "<< /K v ... >>" serialization, keys in
// insertion order. This is the actual on-disk serializer, so a key and its
// value must always be separated: "/Rotate 90" lexes as two tokens,
// "/Rotate90" does not.
func (d *Dict) PDFString() string {
	var b strings.Builder
	b.WriteString("<<")
	for _, k := range d.keys {
		v := d.values[k]
		b.WriteByte('/')
		b.WriteString(k)
		b.WriteByte(' ')
		if v == nil {
			b.WriteString("null")
			continue
		}
		b.WriteString(v.PDFString())
	}
	b.WriteString(">>")
	return b.String()
}

func (d *Dict) String() string { return d.PDFString() }

// Array represents a PDF array object "[ v1 v2 ... ]".
type Array []Object

func (a Array) Clone() Object {
	a2 := make(Array, len(a))
	for i, v := range a {
		if v != nil {
			v = v.Clone()
		}
		a2[i] = v
	}
	return a2
}

func (a Array) PDFString() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range a {
		if i > 0 {
			b.WriteByte(' ')
		}
		if v == nil {
			b.WriteString("null")
			continue
		}
		b.WriteString(v.PDFString())
	}
	b.WriteByte(']')
	return b.String()
}

func (a Array) String() string { return a.PDFString() }
