package value

import "strings"

// Field is one named entry of a Document.
type Field struct {
	Name  string
	Value Value
}

// Document is an ordered list of named values. Field names are unique.
type Document struct {
	fields []Field
}

// NewDocument returns a document holding fields in order. Later duplicates
// replace earlier ones in place.
func NewDocument(fields ...Field) *Document {
	d := &Document{fields: make([]Field, 0, len(fields))}
	for _, f := range fields {
		d.Set(f.Name, f.Value)
	}
	return d
}

// Len returns the number of fields.
func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.fields)
}

// Fields returns the fields in order. The slice must not be modified.
func (d *Document) Fields() []Field {
	if d == nil {
		return nil
	}
	return d.fields
}

// Get returns the value of the named field.
func (d *Document) Get(name string) (Value, bool) {
	if d == nil {
		return Value{}, false
	}
	for _, f := range d.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Lookup resolves a dotted path through nested documents.
func (d *Document) Lookup(path string) (Value, bool) {
	head, rest, nested := strings.Cut(path, ".")
	v, ok := d.Get(head)
	if !ok || !nested {
		return v, ok
	}
	if v.Kind() != KindDocument {
		return Value{}, false
	}
	return v.Document().Lookup(rest)
}

// Set replaces the named field in place or appends it.
func (d *Document) Set(name string, v Value) {
	for i := range d.fields {
		if d.fields[i].Name == name {
			d.fields[i].Value = v
			return
		}
	}
	d.fields = append(d.fields, Field{Name: name, Value: v})
}

// Delete removes the named field and reports whether it existed.
func (d *Document) Delete(name string) bool {
	for i := range d.fields {
		if d.fields[i].Name == name {
			d.fields = append(d.fields[:i], d.fields[i+1:]...)
			return true
		}
	}
	return false
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := &Document{fields: make([]Field, len(d.fields))}
	for i, f := range d.fields {
		out.fields[i] = Field{Name: f.Name, Value: f.Value.Clone()}
	}
	return out
}

// Project returns a copy of d holding only the named top-level fields, in
// d's order. An empty selection returns a full copy.
func (d *Document) Project(names []string) *Document {
	if len(names) == 0 {
		return d.Clone()
	}
	keep := make(map[string]struct{}, len(names))
	for _, n := range names {
		keep[n] = struct{}{}
	}
	out := &Document{}
	for _, f := range d.Fields() {
		if _, ok := keep[f.Name]; ok {
			out.fields = append(out.fields, Field{Name: f.Name, Value: f.Value.Clone()})
		}
	}
	return out
}

func (d *Document) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, f := range d.Fields() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(f.Name)
		b.WriteString(": ")
		b.WriteString(f.Value.String())
	}
	b.WriteByte('}')
	return b.String()
}
