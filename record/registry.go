package record

import (
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/tid"
	"github.com/teranos/strata/value"
)

// TypeInfo is the registry entry for one discriminator.
type TypeInfo struct {
	Name        string
	Base        string
	Chain       []string
	Fields      []FieldInfo
	RootDataSet bool

	goType    reflect.Type
	keyFields []int
}

// Collection returns the name of the collection holding this type: the root
// of its chain.
func (ti *TypeInfo) Collection() string {
	return ti.Chain[len(ti.Chain)-1]
}

// GoType returns the registered struct type.
func (ti *TypeInfo) GoType() reflect.Type {
	return ti.goType
}

// New returns a pointer to a zero value of the registered struct.
func (ti *TypeInfo) New() any {
	return reflect.New(ti.goType).Interface()
}

// KeyFields returns the names of the key fields in key order.
func (ti *TypeInfo) KeyFields() []string {
	names := make([]string, len(ti.keyFields))
	for i, idx := range ti.keyFields {
		names[i] = ti.Fields[idx].Name
	}
	return names
}

// Field returns the descriptor of the named payload field.
func (ti *TypeInfo) Field(name string) (FieldInfo, bool) {
	for _, f := range ti.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldInfo{}, false
}

// Option configures a type at registration.
type Option func(*TypeInfo)

// InRootDataSet stores every version of the type in the root dataset
// regardless of the dataset passed to save.
func InRootDataSet() Option {
	return func(ti *TypeInfo) { ti.RootDataSet = true }
}

// Registry maps discriminators to Go struct types. It is safe for concurrent
// use; registration normally happens once at startup.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*TypeInfo
	byType map[reflect.Type]*TypeInfo
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*TypeInfo),
		byType: make(map[reflect.Type]*TypeInfo),
	}
}

// Register adds a struct type under name. prototype is a struct value or a
// pointer to one. A struct that embeds exactly one registered struct derives
// from it: the type chain extends the base chain and the record lives in the
// base's collection.
func (r *Registry) Register(name string, prototype any, opts ...Option) (*TypeInfo, error) {
	if name == "" || strings.Contains(name, KeySeparator) {
		return nil, errors.NewPrecondition("invalid type name %q", name)
	}
	if name == DeletedType {
		return nil, errors.NewPrecondition("type name %s is reserved", DeletedType)
	}

	t := reflect.TypeOf(prototype)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, errors.NewPrecondition("type %s: prototype must be a struct, got %T", name, prototype)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.byName[name]; dup {
		return nil, errors.NewPrecondition("type %s is already registered", name)
	}
	if existing, dup := r.byType[t]; dup {
		return nil, errors.NewPrecondition("struct %s is already registered as %s", t, existing.Name)
	}

	var embedded []reflect.Type
	fields, keys, err := structFields(t, &embedded)
	if err != nil {
		return nil, errors.Wrapf(err, "register %s", name)
	}

	ti := &TypeInfo{
		Name:      name,
		Chain:     []string{name},
		Fields:    fields,
		goType:    t,
		keyFields: keys,
	}
	for _, et := range embedded {
		base, ok := r.byType[et]
		if !ok {
			continue
		}
		if ti.Base != "" {
			return nil, errors.NewPrecondition("type %s embeds two registered types: %s and %s", name, ti.Base, base.Name)
		}
		ti.Base = base.Name
		ti.Chain = append(ti.Chain, base.Chain...)
		ti.RootDataSet = base.RootDataSet
	}
	for _, opt := range opts {
		opt(ti)
	}

	r.byName[name] = ti
	r.byType[t] = ti
	return ti, nil
}

// MustRegister is Register for package init; it panics on error.
func (r *Registry) MustRegister(name string, prototype any, opts ...Option) *TypeInfo {
	ti, err := r.Register(name, prototype, opts...)
	if err != nil {
		panic(err)
	}
	return ti
}

// Lookup returns the type registered under name.
func (r *Registry) Lookup(name string) (*TypeInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ti, ok := r.byName[name]
	return ti, ok
}

// TypeOf returns the registered type of data, a struct or pointer to struct.
func (r *Registry) TypeOf(data any) (*TypeInfo, error) {
	t := reflect.TypeOf(data)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	r.mu.RLock()
	ti, ok := r.byType[t]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.NewTypeMismatch("type %T is not registered", data)
	}
	return ti, nil
}

// Names returns every registered discriminator.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	return names
}

// Resolve walks chain from most-derived to root and returns the first
// registered type.
func (r *Registry) Resolve(chain []string) (*TypeInfo, error) {
	for _, name := range chain {
		if ti, ok := r.Lookup(name); ok {
			return ti, nil
		}
	}
	return nil, errors.NewTypeMismatch("no registered type for discriminator chain %v", chain)
}

// Key builds the key of data from its key fields in declaration order.
func (r *Registry) Key(data any) (string, error) {
	ti, err := r.TypeOf(data)
	if err != nil {
		return "", err
	}
	if len(ti.keyFields) == 0 {
		return "", errors.NewPrecondition("type %s declares no key fields", ti.Name)
	}
	rv := reflect.Indirect(reflect.ValueOf(data))
	elems := make([]string, len(ti.keyFields))
	empty := true
	for i, idx := range ti.keyFields {
		fi := &ti.Fields[idx]
		s, err := fi.keyElement(rv.FieldByIndex(fi.Index))
		if err != nil {
			return "", errors.Wrapf(err, "key of %s", ti.Name)
		}
		if s != "" {
			empty = false
		}
		elems[i] = s
	}
	if empty {
		return "", errors.NewPrecondition("type %s: key is empty", ti.Name)
	}
	return strings.Join(elems, KeySeparator), nil
}

// JoinKey builds a key from loose elements, applying the same rules as key
// fields: no floating-point elements, no separators inside an element.
func JoinKey(elems ...any) (string, error) {
	if len(elems) == 0 {
		return "", errors.NewPrecondition("key is empty")
	}
	parts := make([]string, len(elems))
	for i, e := range elems {
		v, err := value.Of(e)
		if err != nil {
			return "", errors.Mark(errors.Wrapf(err, "key element %d", i), errors.ErrPrecondition)
		}
		s, err := formatKeyElement("#"+strconv.Itoa(i), v)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	key := strings.Join(parts, KeySeparator)
	if strings.Trim(key, KeySeparator) == "" {
		return "", errors.NewPrecondition("key is empty")
	}
	return key, nil
}

// Encode converts rec into its stored document: the reserved fields in wire
// order, then the payload fields.
func (r *Registry) Encode(rec *Record) (*value.Document, error) {
	chain := rec.Type
	var payload *value.Document
	if !rec.IsDeleted() {
		ti, err := r.TypeOf(rec.Data)
		if err != nil {
			return nil, err
		}
		chain = ti.Chain
		rv := reflect.Indirect(reflect.ValueOf(rec.Data))
		payload, err = encodeFields(ti.Fields, rv)
		if err != nil {
			return nil, errors.Wrapf(err, "encode %s %q", ti.Name, rec.Key)
		}
	}

	types := make([]value.Value, len(chain))
	for i, n := range chain {
		types[i] = value.String(n)
	}
	doc := value.NewDocument(
		value.Field{Name: FieldID, Value: value.TID(rec.ID)},
		value.Field{Name: FieldDataSet, Value: value.TID(rec.DataSet)},
		value.Field{Name: FieldKey, Value: value.String(rec.Key)},
		value.Field{Name: FieldType, Value: value.List(types...)},
	)
	for _, f := range payload.Fields() {
		doc.Set(f.Name, f.Value)
	}
	return doc, nil
}

// DecodeHeader reads the reserved fields of doc.
func DecodeHeader(doc *value.Document) (Header, error) {
	var h Header
	id, ok := doc.Get(FieldID)
	if !ok || id.Kind() != value.KindTID {
		return h, errors.NewTypeMismatch("document has no %s", FieldID)
	}
	h.ID = id.ID()
	if ds, ok := doc.Get(FieldDataSet); ok && ds.Kind() == value.KindTID {
		h.DataSet = ds.ID()
	} else {
		h.DataSet = tid.Empty
	}
	if k, ok := doc.Get(FieldKey); ok {
		h.Key = k.Str()
	}
	types, ok := doc.Get(FieldType)
	if !ok || types.Kind() != value.KindList || len(types.Items()) == 0 {
		return h, errors.NewTypeMismatch("document %s has no type discriminator", h.ID)
	}
	for _, t := range types.Items() {
		h.Type = append(h.Type, t.Str())
	}
	return h, nil
}

// Decode converts a stored document into a record, constructing the
// most-derived registered type in the stored chain. Unknown payload fields
// are ignored.
func (r *Registry) Decode(doc *value.Document) (*Record, error) {
	h, err := DecodeHeader(doc)
	if err != nil {
		return nil, err
	}
	rec := &Record{ID: h.ID, DataSet: h.DataSet, Key: h.Key, Type: h.Type}
	if h.IsDeleted() {
		return rec, nil
	}

	ti, err := r.Resolve(h.Type)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s (key %q)", h.ID, h.Key)
	}
	ptr := reflect.New(ti.goType)
	if err := decodeFields(ti.Fields, doc, ptr.Elem()); err != nil {
		return nil, errors.Wrapf(err, "decode %s %s (key %q)", ti.Name, h.ID, h.Key)
	}
	rec.Data = ptr.Interface()
	return rec, nil
}
