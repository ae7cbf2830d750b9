// Package bsondoc converts documents to and from BSON. The mongo backend
// stores the bson.D form; the sqlite backend stores its canonical Extended
// JSON rendering.
package bsondoc

import (
	"strings"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/tid"
	"github.com/teranos/strata/value"
)

// escapePrefix is prepended to field names that start with '$' or with the
// prefix itself, so Extended JSON never reads a payload field as a type wrapper.
const escapePrefix = "~"

// ToBSON converts doc to an ordered bson.D. TIDs become ObjectIDs, which
// share their 12-byte layout. Strings and field names must be valid UTF-8.
func ToBSON(doc *value.Document) (bson.D, error) {
	out := make(bson.D, 0, doc.Len())
	for _, f := range doc.Fields() {
		if !utf8.ValidString(f.Name) {
			return nil, errors.NewPrecondition("field name %q is not valid UTF-8", f.Name)
		}
		v, err := Value(f.Value)
		if err != nil {
			return nil, errors.Wrapf(err, "field %s", f.Name)
		}
		out = append(out, bson.E{Key: f.Name, Value: v})
	}
	return out, nil
}

// Value converts a single value, as used in filters.
func Value(v value.Value) (interface{}, error) {
	switch v.Kind() {
	case value.KindNull:
		return nil, nil
	case value.KindString:
		if !utf8.ValidString(v.Str()) {
			return nil, errors.NewPrecondition("string %q is not valid UTF-8", v.Str())
		}
		return v.Str(), nil
	case value.KindInt32:
		return int32(v.Int()), nil
	case value.KindInt64:
		return v.Int(), nil
	case value.KindDouble:
		return v.Float(), nil
	case value.KindBool:
		return v.Boolean(), nil
	case value.KindTID:
		return primitive.ObjectID(v.ID()), nil
	case value.KindList:
		arr := make(bson.A, len(v.Items()))
		for i, item := range v.Items() {
			x, err := Value(item)
			if err != nil {
				return nil, errors.Wrapf(err, "item %d", i)
			}
			arr[i] = x
		}
		return arr, nil
	case value.KindDocument:
		return ToBSON(v.Document())
	}
	return nil, errors.NewTypeMismatch("cannot convert %s to BSON", v.Kind())
}

// FromBSON converts a decoded bson.D back into a document.
func FromBSON(d bson.D) (*value.Document, error) {
	doc := value.NewDocument()
	for _, e := range d {
		v, err := fromBSONValue(e.Value)
		if err != nil {
			return nil, errors.Wrapf(err, "field %s", e.Key)
		}
		doc.Set(e.Key, v)
	}
	return doc, nil
}

func fromBSONValue(x interface{}) (value.Value, error) {
	switch v := x.(type) {
	case nil, primitive.Null:
		return value.Null(), nil
	case string:
		return value.String(v), nil
	case int32:
		return value.Int32(v), nil
	case int64:
		return value.Int64(v), nil
	case float64:
		return value.Double(v), nil
	case bool:
		return value.Bool(v), nil
	case primitive.ObjectID:
		return value.TID(tid.TID(v)), nil
	case bson.A:
		items := make([]value.Value, len(v))
		for i, item := range v {
			iv, err := fromBSONValue(item)
			if err != nil {
				return value.Value{}, err
			}
			items[i] = iv
		}
		return value.List(items...), nil
	case bson.D:
		doc, err := FromBSON(v)
		if err != nil {
			return value.Value{}, err
		}
		return value.Doc(doc), nil
	}
	return value.Value{}, errors.NewTypeMismatch("unsupported BSON value %T", x)
}

// MarshalExtJSON renders doc as canonical Extended JSON, which keeps int32,
// int64, double and TID distinguishable.
func MarshalExtJSON(doc *value.Document) ([]byte, error) {
	d, err := ToBSON(doc)
	if err != nil {
		return nil, err
	}
	data, err := bson.MarshalExtJSON(escapeNames(d), true, false)
	if err != nil {
		return nil, errors.Wrap(err, "encode extended JSON")
	}
	return data, nil
}

// UnmarshalExtJSON parses canonical Extended JSON written by MarshalExtJSON.
func UnmarshalExtJSON(data []byte) (*value.Document, error) {
	var d bson.D
	if err := bson.UnmarshalExtJSON(data, true, &d); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode extended JSON"), errors.ErrTypeMismatch)
	}
	return FromBSON(unescapeNames(d))
}

// EscapeName returns the name a field is stored under in Extended JSON.
func EscapeName(name string) string {
	if strings.HasPrefix(name, "$") || strings.HasPrefix(name, escapePrefix) {
		return escapePrefix + name
	}
	return name
}

func unescapeName(name string) string {
	return strings.TrimPrefix(name, escapePrefix)
}

func escapeNames(d bson.D) bson.D {
	return renameAll(d, EscapeName)
}

func unescapeNames(d bson.D) bson.D {
	return renameAll(d, unescapeName)
}

func renameAll(d bson.D, rename func(string) string) bson.D {
	out := make(bson.D, len(d))
	for i, e := range d {
		out[i] = bson.E{Key: rename(e.Key), Value: renameValue(e.Value, rename)}
	}
	return out
}

func renameValue(x interface{}, rename func(string) string) interface{} {
	switch v := x.(type) {
	case bson.D:
		return renameAll(v, rename)
	case bson.A:
		out := make(bson.A, len(v))
		for i, item := range v {
			out[i] = renameValue(item, rename)
		}
		return out
	}
	return x
}
