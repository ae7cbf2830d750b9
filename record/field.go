package record

import (
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/local"
	"github.com/teranos/strata/tid"
	"github.com/teranos/strata/value"
)

// FieldKind is the wire kind of a payload field.
type FieldKind uint8

const (
	KindString FieldKind = iota + 1
	KindInt32
	KindInt64
	KindDouble
	KindBool
	KindTID
	KindDate
	KindTime
	KindMinute
	KindDateTime
	KindList
	KindDocument
)

var fieldKindNames = map[FieldKind]string{
	KindString:   "string",
	KindInt32:    "int32",
	KindInt64:    "int64",
	KindDouble:   "double",
	KindBool:     "bool",
	KindTID:      "tid",
	KindDate:     "date",
	KindTime:     "time",
	KindMinute:   "minute",
	KindDateTime: "datetime",
	KindList:     "list",
	KindDocument: "document",
}

func (k FieldKind) String() string {
	if s, ok := fieldKindNames[k]; ok {
		return s
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// keyable reports whether k may appear in a key.
func (k FieldKind) keyable() bool {
	switch k {
	case KindString, KindInt32, KindInt64, KindBool, KindTID, KindDate, KindTime, KindMinute, KindDateTime:
		return true
	}
	return false
}

var (
	tidType      = reflect.TypeOf(tid.TID{})
	dateType     = reflect.TypeOf(local.Date{})
	timeType     = reflect.TypeOf(local.Time{})
	minuteType   = reflect.TypeOf(local.Minute{})
	dateTimeType = reflect.TypeOf(local.DateTime{})
)

// FieldInfo describes one payload field.
type FieldInfo struct {
	Name  string
	Index []int
	Kind  FieldKind
	Key   bool

	goType reflect.Type
	elem   *FieldInfo  // list element
	sub    []FieldInfo // nested document fields
}

// kindOf maps a Go type to its wire kind.
func kindOf(t reflect.Type) (FieldKind, error) {
	switch t {
	case tidType:
		return KindTID, nil
	case dateType:
		return KindDate, nil
	case timeType:
		return KindTime, nil
	case minuteType:
		return KindMinute, nil
	case dateTimeType:
		return KindDateTime, nil
	}
	switch t.Kind() {
	case reflect.String:
		return KindString, nil
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Uint8, reflect.Uint16:
		return KindInt32, nil
	case reflect.Int, reflect.Int64, reflect.Uint32:
		return KindInt64, nil
	case reflect.Float32, reflect.Float64:
		return KindDouble, nil
	case reflect.Bool:
		return KindBool, nil
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return 0, errors.NewTypeMismatch("byte slices are not supported")
		}
		return KindList, nil
	case reflect.Struct:
		return KindDocument, nil
	}
	return 0, errors.NewTypeMismatch("unsupported field type %s", t)
}

// describe builds a descriptor for a value of type t. Index is left to the caller.
func describe(name string, t reflect.Type) (FieldInfo, error) {
	kind, err := kindOf(t)
	if err != nil {
		return FieldInfo{}, errors.Wrapf(err, "field %s", name)
	}
	fi := FieldInfo{Name: name, Kind: kind, goType: t}
	switch kind {
	case KindList:
		elem, err := describe(name+"[]", t.Elem())
		if err != nil {
			return FieldInfo{}, err
		}
		fi.elem = &elem
	case KindDocument:
		sub, _, err := structFields(t, nil)
		if err != nil {
			return FieldInfo{}, errors.Wrapf(err, "field %s", name)
		}
		fi.sub = sub
	}
	return fi, nil
}

// tagged is a parsed `strata:"name,key"` tag.
type tagged struct {
	name string
	key  bool
	skip bool
}

func parseTag(f reflect.StructField) tagged {
	tag, ok := f.Tag.Lookup("strata")
	if !ok {
		return tagged{name: f.Name}
	}
	if tag == "-" {
		return tagged{skip: true}
	}
	parts := strings.Split(tag, ",")
	out := tagged{name: parts[0]}
	if out.name == "" {
		out.name = f.Name
	}
	for _, opt := range parts[1:] {
		if opt == "key" {
			out.key = true
		}
	}
	return out
}

// structFields flattens the exported fields of t, descending into anonymous
// embedded structs. embedded receives every anonymous struct type found at
// the top level so the registry can detect a base type.
func structFields(t reflect.Type, embedded *[]reflect.Type) ([]FieldInfo, []int, error) {
	var fields []FieldInfo
	var keys []int
	seen := map[string]bool{}

	var walk func(t reflect.Type, prefix []int, top bool) error
	walk = func(t reflect.Type, prefix []int, top bool) error {
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			index := append(append([]int(nil), prefix...), i)

			if sf.Anonymous && sf.Type.Kind() == reflect.Struct && !isSpecial(sf.Type) {
				if top && embedded != nil {
					*embedded = append(*embedded, sf.Type)
				}
				if err := walk(sf.Type, index, false); err != nil {
					return err
				}
				continue
			}
			if !sf.IsExported() {
				continue
			}
			tag := parseTag(sf)
			if tag.skip {
				continue
			}
			if strings.HasPrefix(tag.name, "_") {
				return errors.NewPrecondition("field %s: names starting with '_' are reserved", tag.name)
			}
			if seen[tag.name] {
				return errors.NewPrecondition("duplicate field name %s", tag.name)
			}
			seen[tag.name] = true

			fi, err := describe(tag.name, sf.Type)
			if err != nil {
				return err
			}
			fi.Index = index
			if tag.key {
				if fi.Kind == KindDouble {
					return errors.NewPrecondition("field %s: floating-point key elements are not allowed", tag.name)
				}
				if !fi.Kind.keyable() {
					return errors.NewPrecondition("field %s: %s cannot be a key element", tag.name, fi.Kind)
				}
				fi.Key = true
				keys = append(keys, len(fields))
			}
			fields = append(fields, fi)
		}
		return nil
	}

	if err := walk(t, nil, true); err != nil {
		return nil, nil, err
	}
	return fields, keys, nil
}

func isSpecial(t reflect.Type) bool {
	switch t {
	case tidType, dateType, timeType, minuteType, dateTimeType:
		return true
	}
	return false
}

// encode converts the Go value rv described by fi into a wire value.
func (fi *FieldInfo) encode(rv reflect.Value) (value.Value, error) {
	switch fi.Kind {
	case KindString:
		return value.String(rv.String()), nil
	case KindInt32:
		if rv.CanInt() {
			return value.Int32(int32(rv.Int())), nil
		}
		return value.Int32(int32(rv.Uint())), nil
	case KindInt64:
		if rv.CanInt() {
			return value.Int64(rv.Int()), nil
		}
		return value.Int64(int64(rv.Uint())), nil
	case KindDouble:
		return value.Double(rv.Float()), nil
	case KindBool:
		return value.Bool(rv.Bool()), nil
	case KindTID:
		return value.TID(rv.Interface().(tid.TID)), nil
	case KindDate:
		return value.Int32(rv.Interface().(local.Date).ISOInt()), nil
	case KindTime:
		return value.Int32(rv.Interface().(local.Time).ISOInt()), nil
	case KindMinute:
		return value.Int32(rv.Interface().(local.Minute).ISOInt()), nil
	case KindDateTime:
		return value.Int64(rv.Interface().(local.DateTime).ISOLong()), nil
	case KindList:
		if rv.IsNil() {
			return value.Null(), nil
		}
		items := make([]value.Value, rv.Len())
		for i := range items {
			v, err := fi.elem.encode(rv.Index(i))
			if err != nil {
				return value.Value{}, err
			}
			items[i] = v
		}
		return value.List(items...), nil
	case KindDocument:
		doc, err := encodeFields(fi.sub, rv)
		if err != nil {
			return value.Value{}, err
		}
		return value.Doc(doc), nil
	}
	return value.Value{}, errors.NewTypeMismatch("field %s: cannot encode %s", fi.Name, fi.Kind)
}

// decode stores v into rv. Null leaves the zero value.
func (fi *FieldInfo) decode(v value.Value, rv reflect.Value) error {
	if v.IsNull() {
		rv.Set(reflect.Zero(rv.Type()))
		return nil
	}
	mismatch := func() error {
		return errors.NewTypeMismatch("field %s: cannot decode %s into %s", fi.Name, v.Kind(), fi.Kind)
	}

	switch fi.Kind {
	case KindString:
		if v.Kind() != value.KindString {
			return mismatch()
		}
		rv.SetString(v.Str())
	case KindInt32, KindInt64:
		n, ok := integral(v)
		if !ok {
			return mismatch()
		}
		if rv.CanInt() {
			if rv.OverflowInt(n) {
				return errors.NewTypeMismatch("field %s: %d overflows %s", fi.Name, n, rv.Type())
			}
			rv.SetInt(n)
		} else {
			if n < 0 || rv.OverflowUint(uint64(n)) {
				return errors.NewTypeMismatch("field %s: %d overflows %s", fi.Name, n, rv.Type())
			}
			rv.SetUint(uint64(n))
		}
	case KindDouble:
		if !v.IsNumeric() {
			return mismatch()
		}
		rv.SetFloat(v.Float())
	case KindBool:
		if v.Kind() != value.KindBool {
			return mismatch()
		}
		rv.SetBool(v.Boolean())
	case KindTID:
		if v.Kind() != value.KindTID {
			return mismatch()
		}
		rv.Set(reflect.ValueOf(v.ID()))
	case KindDate, KindTime, KindMinute, KindDateTime:
		n, ok := integral(v)
		if !ok {
			return mismatch()
		}
		return fi.decodeLocal(n, rv)
	case KindList:
		if v.Kind() != value.KindList {
			return mismatch()
		}
		items := v.Items()
		s := reflect.MakeSlice(fi.goType, len(items), len(items))
		for i, item := range items {
			if err := fi.elem.decode(item, s.Index(i)); err != nil {
				return err
			}
		}
		rv.Set(s)
	case KindDocument:
		if v.Kind() != value.KindDocument {
			return mismatch()
		}
		return decodeFields(fi.sub, v.Document(), rv)
	default:
		return mismatch()
	}
	return nil
}

func (fi *FieldInfo) decodeLocal(n int64, rv reflect.Value) error {
	var (
		out any
		err error
	)
	switch fi.Kind {
	case KindDate:
		out, err = local.DateFromISOInt(int32(n))
	case KindTime:
		out, err = local.TimeFromISOInt(int32(n))
	case KindMinute:
		out, err = local.MinuteFromISOInt(int32(n))
	case KindDateTime:
		out, err = local.DateTimeFromISOLong(n)
	}
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "field %s", fi.Name), errors.ErrTypeMismatch)
	}
	rv.Set(reflect.ValueOf(out))
	return nil
}

// integral accepts ints and doubles holding a whole number.
func integral(v value.Value) (int64, bool) {
	switch v.Kind() {
	case value.KindInt32, value.KindInt64:
		return v.Int(), true
	case value.KindDouble:
		f := v.Float()
		if f == math.Trunc(f) && f >= math.MinInt64 && f <= math.MaxInt64 {
			return int64(f), true
		}
	}
	return 0, false
}

func encodeFields(fields []FieldInfo, rv reflect.Value) (*value.Document, error) {
	doc := value.NewDocument()
	for i := range fields {
		fi := &fields[i]
		v, err := fi.encode(rv.FieldByIndex(fi.Index))
		if err != nil {
			return nil, err
		}
		doc.Set(fi.Name, v)
	}
	return doc, nil
}

// decodeFields fills rv from doc. Unknown document fields are ignored and
// absent ones keep their zero value.
func decodeFields(fields []FieldInfo, doc *value.Document, rv reflect.Value) error {
	for i := range fields {
		fi := &fields[i]
		v, ok := doc.Get(fi.Name)
		if !ok {
			continue
		}
		if err := fi.decode(v, rv.FieldByIndex(fi.Index)); err != nil {
			return err
		}
	}
	return nil
}

// keyElement formats a key field for the joined key string.
func (fi *FieldInfo) keyElement(rv reflect.Value) (string, error) {
	v, err := fi.encode(rv)
	if err != nil {
		return "", err
	}
	return formatKeyElement(fi.Name, v)
}

func formatKeyElement(name string, v value.Value) (string, error) {
	var s string
	switch v.Kind() {
	case value.KindString:
		s = v.Str()
	case value.KindInt32, value.KindInt64:
		s = strconv.FormatInt(v.Int(), 10)
	case value.KindBool:
		s = strconv.FormatBool(v.Boolean())
	case value.KindTID:
		s = v.ID().String()
	case value.KindDouble:
		return "", errors.NewPrecondition("key element %s: floating-point values are not allowed in keys", name)
	default:
		return "", errors.NewPrecondition("key element %s: %s cannot be part of a key", name, v.Kind())
	}
	if strings.Contains(s, KeySeparator) {
		return "", errors.NewPrecondition("key element %s %q contains the key separator %q", name, s, KeySeparator)
	}
	return s, nil
}
