// Package document defines the flat, multi-valued record produced by
// normalization and consumed by the bulk loader.
//
// A Document is an ordered set of fields. Each field holds either a single
// scalar or an ordered list of scalars. Scalars are always one of the
// canonical Go types: bool, int32, int64, float64 or string.
//
// Documents are built with a Builder and are immutable once Build returns.
package document

// Field is a single named value in a Document.
type Field struct {
	Name string

	// Values holds the field's scalars in insertion order.
	Values []any

	// Multi reports whether the field is multi-valued. A field set from a
	// list is multi-valued even when the list has one element.
	Multi bool
}

// Value returns the field's value: the scalar itself for single-valued
// fields, or a copy of the scalar list for multi-valued ones.
func (f Field) Value() any {
	if !f.Multi && len(f.Values) == 1 {
		return f.Values[0]
	}
	out := make([]any, len(f.Values))
	copy(out, f.Values)
	return out
}

// Document is an immutable ordered mapping from field name to value.
type Document struct {
	fields []Field
	index  map[string]int
}

// Len returns the number of fields.
func (d Document) Len() int {
	return len(d.fields)
}

// Names returns field names in insertion order.
func (d Document) Names() []string {
	names := make([]string, len(d.fields))
	for i, f := range d.fields {
		names[i] = f.Name
	}
	return names
}

// Fields returns a copy of the document's fields in insertion order.
func (d Document) Fields() []Field {
	out := make([]Field, len(d.fields))
	for i, f := range d.fields {
		out[i] = Field{Name: f.Name, Values: append([]any(nil), f.Values...), Multi: f.Multi}
	}
	return out
}

// Get returns the value of the named field. See Field.Value.
func (d Document) Get(name string) (any, bool) {
	i, ok := d.index[name]
	if !ok {
		return nil, false
	}
	return d.fields[i].Value(), true
}

// Field returns the named field.
func (d Document) Field(name string) (Field, bool) {
	i, ok := d.index[name]
	if !ok {
		return Field{}, false
	}
	f := d.fields[i]
	return Field{Name: f.Name, Values: append([]any(nil), f.Values...), Multi: f.Multi}, true
}

// Map returns the document as a plain map, as Get would report each field.
func (d Document) Map() map[string]any {
	m := make(map[string]any, len(d.fields))
	for _, f := range d.fields {
		m[f.Name] = f.Value()
	}
	return m
}

// Builder accumulates fields for a single Document. The zero value is ready
// to use. A Builder must not be used after Build.
type Builder struct {
	fields []Field
	index  map[string]int
}

// Add appends a scalar to the named field. The first Add sets a single
// value; any later Add or AddAll to the same name makes it multi-valued.
func (b *Builder) Add(name string, v any) {
	if i, ok := b.lookup(name); ok {
		b.fields[i].Values = append(b.fields[i].Values, v)
		b.fields[i].Multi = true
		return
	}
	b.insert(Field{Name: name, Values: []any{v}})
}

// AddAll appends a list of scalars to the named field, marking it
// multi-valued. An empty list is ignored.
func (b *Builder) AddAll(name string, vs []any) {
	if len(vs) == 0 {
		return
	}
	if i, ok := b.lookup(name); ok {
		b.fields[i].Values = append(b.fields[i].Values, vs...)
		b.fields[i].Multi = true
		return
	}
	b.insert(Field{Name: name, Values: append([]any(nil), vs...), Multi: true})
}

// Build returns the finished Document.
func (b *Builder) Build() Document {
	d := Document{fields: b.fields, index: b.index}
	b.fields, b.index = nil, nil
	return d
}

func (b *Builder) lookup(name string) (int, bool) {
	if b.index == nil {
		return 0, false
	}
	i, ok := b.index[name]
	return i, ok
}

func (b *Builder) insert(f Field) {
	if b.index == nil {
		b.index = make(map[string]int)
	}
	b.index[f.Name] = len(b.fields)
	b.fields = append(b.fields, f)
}
