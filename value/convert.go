package value

import (
	"reflect"

	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/local"
	"github.com/teranos/strata/tid"
)

// Of converts a Go value into a Value. It accepts Value, nil, strings,
// integers, floats, bools, TIDs, local calendar types, *Document and slices of
// any of these. Plain int and uint are stored as int64.
func Of(x any) (Value, error) {
	switch v := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return v, nil
	case *Document:
		return Doc(v), nil
	case string:
		return String(v), nil
	case bool:
		return Bool(v), nil
	case int32:
		return Int32(v), nil
	case int16:
		return Int32(int32(v)), nil
	case int8:
		return Int32(int32(v)), nil
	case int:
		return Int64(int64(v)), nil
	case int64:
		return Int64(v), nil
	case uint8:
		return Int32(int32(v)), nil
	case uint16:
		return Int32(int32(v)), nil
	case uint32:
		return Int64(int64(v)), nil
	case float64:
		return Double(v), nil
	case float32:
		return Double(float64(v)), nil
	case tid.TID:
		return TID(v), nil
	case local.Date:
		return Int32(v.ISOInt()), nil
	case local.Time:
		return Int32(v.ISOInt()), nil
	case local.Minute:
		return Int32(v.ISOInt()), nil
	case local.DateTime:
		return Int64(v.ISOLong()), nil
	case []Value:
		return List(v...), nil
	}

	rv := reflect.ValueOf(x)
	if rv.Kind() == reflect.Slice {
		items := make([]Value, rv.Len())
		for i := range items {
			item, err := Of(rv.Index(i).Interface())
			if err != nil {
				return Value{}, errors.Wrapf(err, "element %d", i)
			}
			items[i] = item
		}
		return List(items...), nil
	}
	return Value{}, errors.NewTypeMismatch("cannot convert %T to a stored value", x)
}

// MustOf is Of for literals in tests and fixed queries; it panics on
// unsupported input.
func MustOf(x any) Value {
	v, err := Of(x)
	if err != nil {
		panic(err)
	}
	return v
}
