// Package record defines the persisted envelope shared by every stored object
// and the registry that maps type discriminators to Go structs.
//
// An envelope carries a version id, the dataset it lives in, the user key, the
// type chain from most-derived to root, and the typed payload. Envelopes are
// immutable once saved; every update is a new envelope with a larger id.
package record

import (
	"reflect"

	"github.com/teranos/strata/tid"
)

// Reserved document fields. Payload fields may not start with an underscore.
const (
	FieldID      = "_id"
	FieldDataSet = "_dataset"
	FieldKey     = "_key"
	FieldType    = "_t"
)

// ReservedFields lists the envelope fields in wire order.
var ReservedFields = []string{FieldID, FieldDataSet, FieldKey, FieldType}

// DeletedType is the discriminator of a tombstone envelope.
const DeletedType = "DeletedRecord"

// KeySeparator joins key elements.
const KeySeparator = ";"

// Record is a stored envelope. Data points to a registered struct, or is nil
// for a tombstone.
type Record struct {
	ID      tid.TID
	DataSet tid.TID
	Key     string
	Type    []string
	Data    any
}

// Header is the envelope without its payload.
type Header struct {
	ID      tid.TID
	DataSet tid.TID
	Key     string
	Type    []string
}

// NewDeleted returns a tombstone for key. ID and DataSet are assigned on save.
func NewDeleted(key string) *Record {
	return &Record{Key: key, Type: []string{DeletedType}}
}

// TypeName returns the most-derived discriminator.
func (r *Record) TypeName() string {
	if len(r.Type) == 0 {
		return ""
	}
	return r.Type[0]
}

// RootType returns the last element of the type chain, which names the collection.
func (r *Record) RootType() string {
	if len(r.Type) == 0 {
		return ""
	}
	return r.Type[len(r.Type)-1]
}

// IsDeleted reports whether r is a tombstone.
func (r *Record) IsDeleted() bool {
	return r.TypeName() == DeletedType
}

// Header returns the envelope fields of r.
func (r *Record) Header() Header {
	return Header{ID: r.ID, DataSet: r.DataSet, Key: r.Key, Type: append([]string(nil), r.Type...)}
}

// IsDeleted reports whether h describes a tombstone.
func (h Header) IsDeleted() bool {
	return len(h.Type) > 0 && h.Type[0] == DeletedType
}

// Clone returns a deep copy of r, including its payload.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := &Record{
		ID:      r.ID,
		DataSet: r.DataSet,
		Key:     r.Key,
		Type:    append([]string(nil), r.Type...),
	}
	if r.Data != nil {
		src := reflect.ValueOf(r.Data)
		if src.Kind() == reflect.Ptr && !src.IsNil() {
			dst := reflect.New(src.Elem().Type())
			deepCopy(dst.Elem(), src.Elem())
			out.Data = dst.Interface()
		} else {
			out.Data = r.Data
		}
	}
	return out
}

// SaveValidator is implemented by payloads that check their own invariants
// once the id and dataset of the new version are known.
type SaveValidator interface {
	ValidateSave(id, dataSet tid.TID) error
}

func deepCopy(dst, src reflect.Value) {
	switch src.Kind() {
	case reflect.Struct:
		for i := 0; i < src.NumField(); i++ {
			if dst.Field(i).CanSet() {
				deepCopy(dst.Field(i), src.Field(i))
			}
		}
	case reflect.Slice:
		if src.IsNil() {
			dst.Set(reflect.Zero(src.Type()))
			return
		}
		s := reflect.MakeSlice(src.Type(), src.Len(), src.Len())
		for i := 0; i < src.Len(); i++ {
			deepCopy(s.Index(i), src.Index(i))
		}
		dst.Set(s)
	case reflect.Ptr:
		if src.IsNil() {
			dst.Set(reflect.Zero(src.Type()))
			return
		}
		p := reflect.New(src.Elem().Type())
		deepCopy(p.Elem(), src.Elem())
		dst.Set(p)
	default:
		dst.Set(src)
	}
}
