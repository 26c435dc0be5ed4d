package object

import (
	"fmt"
	"sort"
)

// Class distinguishes where an indirect object's definition lives.
type Class uint8

const (
	// ClassRegular objects have their own "N G obj ... endobj" span.
	ClassRegular Class = iota
	// ClassCompressed objects are embedded inside an object stream (/Type
	// /ObjStm); they have a generation of 0 and no byte offset of their own.
	ClassCompressed
	// ClassTrailer marks the single synthetic object that owns the file
	// trailer dictionary (and, for xref streams, the xref stream dictionary
	// itself).
	ClassTrailer
)

// Type is the PDF object type, inferred from the leading identifier of a
// parsed definition (or Unknown before that definition is materialized).
type Type uint8

const (
	TypeUnknown Type = iota
	TypeBoolean
	TypeInteger
	TypeReal
	TypeName
	TypeString
	TypeArray
	TypeDictionary
	TypeStream
)

// Mutation records one change a task has made to an object, kept mainly for
// diagnostics: running the same no-op mutator twice should yield the same
// output as running it once, which is enforced by tasks being idempotent in
// their own write, not by a rewritable log here.
type Mutation struct {
	Key string // dictionary key touched, or "" for stream-level mutations
}

// Indirect is the mutable view of one indirect object. It is handed to
// tasks by the pipe and becomes invalid once the parser has passed it.
type Indirect struct {
	ID         int
	Generation int
	Class      Class
	Type       Type

	// RawDef is either a parsed Object tree (Dict/Array/primitive) or, for
	// objects whose definition was only ever seen as opaque text (rare: a
	// malformed/partial parse kept for passthrough), a raw string.
	RawDef    Object
	RawString string

	dict  *Dict // lazily materialized overlay over RawDef
	array Array // lazily materialized overlay, mutually exclusive with dict

	HasStream            bool
	RawStreamLength      int
	extractedStreamLen   int // -1 until decoded
	streamBuf            []byte

	SkipStream   bool
	SkipObject   bool
	DeleteObject bool

	Mutations []Mutation

	overrideDef    []byte
	overrideStream []byte
	streamEncrypted bool
	updateLength    bool
}

// NewIndirect constructs a fresh Indirect for id/gen with the given parsed
// definition.
func NewIndirect(id, gen int, def Object) *Indirect {
	o := &Indirect{ID: id, Generation: gen, RawDef: def, extractedStreamLen: -1}
	o.Type = typeOf(def)
	return o
}

func typeOf(def Object) Type {
	switch def.(type) {
	case nil:
		return TypeUnknown
	case Boolean:
		return TypeBoolean
	case Integer:
		return TypeInteger
	case Float:
		return TypeReal
	case Name:
		return TypeName
	case StringLiteral, HexLiteral:
		return TypeString
	case Array:
		return TypeArray
	case *Dict:
		return TypeDictionary
	default:
		return TypeUnknown
	}
}

// Reference returns the "id gen R" string used to refer to this object
// elsewhere in the file.
func (o *Indirect) Reference() string {
	return fmt.Sprintf("%d %d R", o.ID, o.Generation)
}

// dictionary returns the lazily-materialized dictionary overlay,
// materializing it from RawDef on first access. Returns nil if the object's
// definition is not (or not yet known to be) a dictionary.
func (o *Indirect) dictionary() *Dict {
	if o.dict != nil {
		return o.dict
	}
	d, ok := o.RawDef.(*Dict)
	if !ok {
		return nil
	}
	clone := d.Clone().(*Dict)
	o.dict = clone
	return o.dict
}

// GetDictionaryEntry materializes the dictionary overlay (first access) and
// returns the value under key.
func (o *Indirect) GetDictionaryEntry(key string) (Object, bool) {
	d := o.dictionary()
	if d == nil {
		return nil, false
	}
	return d.Get(key)
}

// SetDictionaryEntry materializes the dictionary overlay and writes key. On
// serialization, the overlay is emitted instead of RawDef.
func (o *Indirect) SetDictionaryEntry(key string, v Object) {
	d := o.dictionary()
	if d == nil {
		d = NewDict()
		o.dict = d
	}
	d.Set(key, v)
	o.Mutations = append(o.Mutations, Mutation{Key: key})
}

// DeleteDictionaryEntry materializes the dictionary overlay and removes key.
func (o *Indirect) DeleteDictionaryEntry(key string) {
	d := o.dictionary()
	if d == nil {
		return
	}
	d.Delete(key)
	o.Mutations = append(o.Mutations, Mutation{Key: key})
}

// ArrayElements materializes the array overlay, if the object's definition
// is an array.
func (o *Indirect) ArrayElements() (Array, bool) {
	if o.array != nil {
		return o.array, true
	}
	a, ok := o.RawDef.(Array)
	if !ok {
		return nil, false
	}
	o.array = append(Array(nil), a...)
	return o.array, true
}

// SetArrayElements replaces the array overlay wholesale.
func (o *Indirect) SetArrayElements(a Array) {
	o.array = a
	o.Mutations = append(o.Mutations, Mutation{})
}

// SetStream installs an override stream verbatim (already filtered/encoded
// bytes, as they will appear on disk). When updateLength is true, the
// object's /Length entry is rewritten to match len(data) on serialization.
func (o *Indirect) SetStream(data []byte, updateLength, encrypted bool) {
	o.overrideStream = data
	o.streamEncrypted = encrypted
	o.updateLength = updateLength
	o.HasStream = true
	if updateLength {
		o.SetDictionaryEntry("Length", Integer(len(data)))
	}
}

// SetStreamFiltered encodes content through the filter chain declared by the
// object's current /Filter + /DecodeParms (see object.ChainFromDict) and
// installs the result as the override stream, updating /Length. It fails if
// the declared filter chain is unsupported by the underlying codec library.
func (o *Indirect) SetStreamFiltered(content []byte) error {
	d := o.dictionary()
	if d == nil {
		return fmt.Errorf("object: SetStreamFiltered on a non-dictionary object %d", o.ID)
	}
	chain, err := ChainFromDict(d)
	if err != nil {
		return err
	}
	encoded, err := chain.Encode(content)
	if err != nil {
		return err
	}
	o.SetStream(encoded, true, false)
	return nil
}

// SkipStreamBody marks the object's stream to be omitted entirely on
// output (the dictionary is still emitted, without a stream body).
func (o *Indirect) SkipStreamBody() { o.SkipStream = true }

// OverrideDefinition returns the raw bytes to emit for the object's
// non-stream definition, if ever explicitly set with SetOverrideDefinition;
// GenerateDefinition then emits them verbatim in place of the serialized
// definition.
func (o *Indirect) OverrideDefinition() []byte { return o.overrideDef }

// SetOverrideDefinition installs raw replacement bytes for the definition.
func (o *Indirect) SetOverrideDefinition(b []byte) { o.overrideDef = b }

// CurrentDef returns the Object a caller should serialize for this object
// right now: the dict/array overlay if a task materialized one (even if it
// ended up unchanged), RawDef otherwise. Used both by GenerateDefinition and
// by the object-stream rebuild path (package objstm/pipe), which need the
// post-mutation structure without the "id gen obj" header GenerateDefinition
// adds.
func (o *Indirect) CurrentDef() Object {
	switch {
	case o.dict != nil:
		return o.dict
	case o.array != nil:
		return o.array
	default:
		return o.RawDef
	}
}

// GenerateDefinition re-serializes the object's header ("id gen obj\n")
// followed by its dictionary/array/string/primitive body, honoring any
// overlay mutations. This is used by the parser's rewrite path (package
// parser); the object-stream rebuild in package pipe uses CurrentDef
// instead.
func (o *Indirect) GenerateDefinition() []byte {
	if o.overrideDef != nil {
		return o.overrideDef
	}

	var body string
	if def := o.CurrentDef(); def != nil {
		body = def.PDFString()
	} else {
		body = o.RawString
	}

	return []byte(fmt.Sprintf("%d %d obj\n%s", o.ID, o.Generation, body))
}

// StreamBytes returns the bytes to emit as the object's stream body: the
// override stream if one was installed, the original bytes passed in,
// unchanged, otherwise. Returns (nil, false) if SkipStream is set.
func (o *Indirect) StreamBytes(original []byte) ([]byte, bool) {
	if o.SkipStream {
		return nil, false
	}
	if o.overrideStream != nil {
		return o.overrideStream, true
	}
	return original, true
}

// sortedMutationKeys returns the set of keys a task touched, sorted so it is
// independent of mutation order. Nothing in the module calls it.
func (o *Indirect) sortedMutationKeys() []string {
	keys := make([]string, 0, len(o.Mutations))
	for _, m := range o.Mutations {
		if m.Key != "" {
			keys = append(keys, m.Key)
		}
	}
	sort.Strings(keys)
	return keys
}
