// Package query builds range queries over one record type.
//
//	q := query.New("Trade").
//		Eq("Book", "rates").
//		Gte("TradeDate", local.Date{Year: 2024, Month: time.January, Day: 2}).
//		SortByDescending("Notional").
//		Select("Book", "Notional").
//		Limit(50)
//
// Builder methods never fail; the first invalid call is reported when the
// query is compiled by the data source.
package query

import (
	"strings"

	"github.com/teranos/strata/dataset"
	"github.com/teranos/strata/docstore"
	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/lookup"
	"github.com/teranos/strata/record"
	"github.com/teranos/strata/tid"
	"github.com/teranos/strata/value"
)

// Query is a filter, sort and projection over the live versions of one type.
type Query struct {
	typeName string
	dataSet  tid.TID
	filter   docstore.Filter
	sort     []docstore.SortKey
	fields   []string
	cutoff   *tid.TID
	limit    int64
	batch    int
	err      error
}

// New starts a query over typeName. Records of types derived from typeName
// are included.
func New(typeName string) *Query {
	return &Query{typeName: typeName}
}

// TypeName returns the queried discriminator.
func (q *Query) TypeName() string { return q.typeName }

// InDataSet sets the leaf dataset whose visibility set is searched. The
// default is the root dataset.
func (q *Query) InDataSet(leaf tid.TID) *Query {
	q.dataSet = leaf
	return q
}

// DataSet returns the leaf dataset.
func (q *Query) DataSet() tid.TID { return q.dataSet }

// Where adds the condition field op v. Payload fields may use dotted paths
// into nested documents; _key accepts only equality and membership.
func (q *Query) Where(field string, op docstore.Op, v any) *Query {
	if q.err != nil {
		return q
	}
	if op == docstore.OpIn {
		return q.In(field, v)
	}
	if !op.Valid() {
		q.err = errors.NewPrecondition("query %s: unsupported operator %q", q.typeName, op)
		return q
	}
	if err := checkField(field, op); err != nil {
		q.err = errors.Wrapf(err, "query %s", q.typeName)
		return q
	}
	val, err := value.Of(v)
	if err != nil {
		q.err = errors.Wrapf(err, "query %s: field %s", q.typeName, field)
		return q
	}
	q.filter = append(q.filter, docstore.Cond{Field: field, Op: op, Value: val})
	return q
}

func (q *Query) Eq(field string, v any) *Query  { return q.Where(field, docstore.OpEq, v) }
func (q *Query) Ne(field string, v any) *Query  { return q.Where(field, docstore.OpNe, v) }
func (q *Query) Lt(field string, v any) *Query  { return q.Where(field, docstore.OpLt, v) }
func (q *Query) Lte(field string, v any) *Query { return q.Where(field, docstore.OpLte, v) }
func (q *Query) Gt(field string, v any) *Query  { return q.Where(field, docstore.OpGt, v) }
func (q *Query) Gte(field string, v any) *Query { return q.Where(field, docstore.OpGte, v) }

// Key restricts the query to one key.
func (q *Query) Key(key string) *Query { return q.Eq(record.FieldKey, key) }

// In matches field against any of vs. A single slice argument is expanded.
func (q *Query) In(field string, vs ...any) *Query {
	if q.err != nil {
		return q
	}
	if err := checkField(field, docstore.OpIn); err != nil {
		q.err = errors.Wrapf(err, "query %s", q.typeName)
		return q
	}
	var vals []value.Value
	if len(vs) == 1 {
		if v, err := value.Of(vs[0]); err == nil && v.Kind() == value.KindList {
			vals = v.Items()
		}
	}
	if vals == nil {
		for _, x := range vs {
			v, err := value.Of(x)
			if err != nil {
				q.err = errors.Wrapf(err, "query %s: field %s", q.typeName, field)
				return q
			}
			vals = append(vals, v)
		}
	}
	q.filter = append(q.filter, docstore.In(field, vals...))
	return q
}

// SortBy orders results by field ascending.
func (q *Query) SortBy(field string) *Query { return q.addSort(field, false) }

// SortByDescending orders results by field descending.
func (q *Query) SortByDescending(field string) *Query { return q.addSort(field, true) }

func (q *Query) addSort(field string, desc bool) *Query {
	if q.err != nil {
		return q
	}
	if isReserved(field) {
		q.err = errors.NewPrecondition("query %s: cannot sort by reserved field %s", q.typeName, field)
		return q
	}
	q.sort = append(q.sort, docstore.SortKey{Field: field, Desc: desc})
	return q
}

// Select limits the payload fields read. Envelope fields are always read and
// unselected fields decode to their zero value.
func (q *Query) Select(fields ...string) *Query {
	q.fields = append(q.fields, fields...)
	return q
}

// AsOf reads the versions current at cutoff instead of now.
func (q *Query) AsOf(cutoff tid.TID) *Query {
	q.cutoff = &cutoff
	return q
}

// Cutoff returns the explicit cutoff, if any.
func (q *Query) Cutoff() (tid.TID, bool) {
	if q.cutoff == nil {
		return tid.Max, false
	}
	return *q.cutoff, true
}

// Limit caps the number of records returned.
func (q *Query) Limit(n int64) *Query {
	q.limit = n
	return q
}

// BatchSize sets how many rows are read per winner resolution.
func (q *Query) BatchSize(n int) *Query {
	q.batch = n
	return q
}

// Err returns the first builder error.
func (q *Query) Err() error { return q.err }

// Compile checks the query against the registered type and returns the
// collection to search and the lookup spec. defaultCutoff applies when AsOf
// was not called.
func (q *Query) Compile(reg *record.Registry, vis dataset.Visibility, defaultCutoff tid.TID) (string, lookup.Spec, error) {
	if q.err != nil {
		return "", lookup.Spec{}, q.err
	}
	ti, ok := reg.Lookup(q.typeName)
	if !ok {
		return "", lookup.Spec{}, errors.NewTypeMismatch("query: type %s is not registered", q.typeName)
	}
	for _, c := range q.filter {
		if err := checkKnown(ti, c.Field); err != nil {
			return "", lookup.Spec{}, err
		}
	}
	for _, s := range q.sort {
		if err := checkKnown(ti, s.Field); err != nil {
			return "", lookup.Spec{}, err
		}
	}
	for _, f := range q.fields {
		if isReserved(f) {
			continue
		}
		if err := checkKnown(ti, f); err != nil {
			return "", lookup.Spec{}, err
		}
	}

	filter := append(docstore.Filter{}, q.filter...)
	if ti.Name != ti.Collection() {
		// Derived types share their base's collection
		filter = append(filter, docstore.Eq(record.FieldType, value.String(ti.Name)))
	}
	var projection []string
	for _, f := range q.fields {
		if !isReserved(f) {
			projection = append(projection, f)
		}
	}
	if len(q.fields) > 0 && len(projection) == 0 {
		// Only envelope fields were selected; project onto the key
		projection = []string{record.FieldKey}
	}

	cutoff := defaultCutoff
	if q.cutoff != nil {
		cutoff = *q.cutoff
	}
	return ti.Collection(), lookup.Spec{
		Filter:     filter,
		Sort:       append([]docstore.SortKey(nil), q.sort...),
		Projection: projection,
		Visibility: vis,
		Cutoff:     cutoff,
		Limit:      q.limit,
		BatchSize:  q.batch,
	}, nil
}

func isReserved(field string) bool {
	for _, f := range record.ReservedFields {
		if field == f {
			return true
		}
	}
	return false
}

// checkField rejects predicates the engine owns.
func checkField(field string, op docstore.Op) error {
	if field == "" {
		return errors.NewPrecondition("field name is empty")
	}
	if field == record.FieldKey && (op == docstore.OpEq || op == docstore.OpIn) {
		return nil
	}
	if isReserved(field) {
		return errors.NewPrecondition("cannot filter reserved field %s with %s", field, op)
	}
	return nil
}

// checkKnown verifies that the first segment of field names a payload field.
func checkKnown(ti *record.TypeInfo, field string) error {
	if field == record.FieldKey {
		return nil
	}
	head := field
	if i := strings.IndexByte(field, '.'); i >= 0 {
		head = field[:i]
	}
	if _, ok := ti.Field(head); !ok {
		return errors.NewPrecondition("query %s: unknown field %s", ti.Name, field)
	}
	return nil
}
