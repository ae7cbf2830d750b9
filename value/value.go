// Package value is the wire model for stored envelopes: a tree of typed
// primitives. Documents keep their field order so that an envelope encodes
// identically on every backend.
package value

import (
	"fmt"
	"strconv"

	"github.com/teranos/strata/tid"
)

// Kind identifies the primitive held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInt32
	KindInt64
	KindDouble
	KindBool
	KindTID
	KindList
	KindDocument
)

var kindNames = [...]string{
	KindNull:     "null",
	KindString:   "string",
	KindInt32:    "int32",
	KindInt64:    "int64",
	KindDouble:   "double",
	KindBool:     "bool",
	KindTID:      "tid",
	KindList:     "list",
	KindDocument: "document",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is an immutable typed primitive. The zero Value is null.
type Value struct {
	kind Kind
	str  string
	num  int64
	dbl  float64
	id   tid.TID
	list []Value
	doc  *Document
}

// Null returns the null value.
func Null() Value { return Value{} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Int32 returns a 32-bit integer value.
func Int32(i int32) Value { return Value{kind: KindInt32, num: int64(i)} }

// Int64 returns a 64-bit integer value.
func Int64(i int64) Value { return Value{kind: KindInt64, num: i} }

// Double returns a floating-point value.
func Double(f float64) Value { return Value{kind: KindDouble, dbl: f} }

// Bool returns a boolean value.
func Bool(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.num = 1
	}
	return v
}

// TID returns a temporal id value.
func TID(t tid.TID) Value { return Value{kind: KindTID, id: t} }

// List returns a list value holding vs.
func List(vs ...Value) Value {
	return Value{kind: KindList, list: append([]Value(nil), vs...)}
}

// Doc returns a nested document value. A nil document is stored as empty.
func Doc(d *Document) Value {
	if d == nil {
		d = NewDocument()
	}
	return Value{kind: KindDocument, doc: d}
}

// Kind returns the kind of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the string held by v, or "" for other kinds.
func (v Value) Str() string { return v.str }

// Int returns the integer held by an int32 or int64 value.
func (v Value) Int() int64 { return v.num }

// Float returns v as a float64 for any numeric kind.
func (v Value) Float() float64 {
	switch v.kind {
	case KindDouble:
		return v.dbl
	case KindInt32, KindInt64:
		return float64(v.num)
	}
	return 0
}

// Boolean returns the bool held by v.
func (v Value) Boolean() bool { return v.kind == KindBool && v.num != 0 }

// ID returns the TID held by v.
func (v Value) ID() tid.TID { return v.id }

// Items returns the elements of a list value. The slice must not be modified.
func (v Value) Items() []Value { return v.list }

// Document returns the document held by v, or nil.
func (v Value) Document() *Document { return v.doc }

// IsNumeric reports whether v is an int32, int64 or double.
func (v Value) IsNumeric() bool {
	return v.kind == KindInt32 || v.kind == KindInt64 || v.kind == KindDouble
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	switch v.kind {
	case KindList:
		out := make([]Value, len(v.list))
		for i, item := range v.list {
			out[i] = item.Clone()
		}
		return Value{kind: KindList, list: out}
	case KindDocument:
		return Value{kind: KindDocument, doc: v.doc.Clone()}
	}
	return v
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindString:
		return strconv.Quote(v.str)
	case KindInt32, KindInt64:
		return strconv.FormatInt(v.num, 10)
	case KindDouble:
		return strconv.FormatFloat(v.dbl, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Boolean())
	case KindTID:
		return v.id.String()
	case KindList:
		s := "["
		for i, item := range v.list {
			if i > 0 {
				s += ", "
			}
			s += item.String()
		}
		return s + "]"
	case KindDocument:
		return v.doc.String()
	}
	return fmt.Sprintf("<%s>", v.kind)
}
