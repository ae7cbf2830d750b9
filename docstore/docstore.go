// Package docstore is the document-store boundary: named databases holding
// collections of ordered documents, with indexes, single-document inserts,
// filtered sorted cursors and bulk deletes.
//
// Backends live in subpackages (memory, sqlite, mongo). All of them accept
// the same Query shape so the lookup engine never sees backend specifics.
package docstore

import (
	"context"

	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/value"
)

// Driver opens databases of one backend.
type Driver interface {
	// Name identifies the backend in logs ("memory", "sqlite", "mongo").
	Name() string

	// Separator joins the parts of a database name for this backend.
	Separator() string

	// Open returns a handle to the named database, creating it lazily.
	Open(ctx context.Context, dbName string) (Store, error)
}

// Store is one open database.
type Store interface {
	// Name returns the database name.
	Name() string

	// Collection returns the named collection, creating it on first use.
	Collection(ctx context.Context, name string) (Collection, error)

	// DropDatabase removes the database and every collection in it.
	DropDatabase(ctx context.Context) error

	// Close releases the connection. The store is unusable afterwards.
	Close(ctx context.Context) error
}

// Collection holds documents of one root record type.
type Collection interface {
	Name() string

	// EnsureIndex creates idx if it does not exist.
	EnsureIndex(ctx context.Context, idx Index) error

	// Insert adds doc. A document whose _id already exists is rejected
	// with a conflict error.
	Insert(ctx context.Context, doc *value.Document) error

	// Find streams documents matching q.
	Find(ctx context.Context, q Query) (Cursor, error)

	// DeleteMany removes documents matching filter and returns the count.
	DeleteMany(ctx context.Context, filter Filter) (int64, error)
}

// Cursor iterates query results. Callers must Close it.
type Cursor interface {
	Next(ctx context.Context) bool
	Document() *value.Document
	Err() error
	Close(ctx context.Context) error
}

// Op is a comparison operator.
type Op string

const (
	OpEq  Op = "$eq"
	OpNe  Op = "$ne"
	OpLt  Op = "$lt"
	OpLte Op = "$lte"
	OpGt  Op = "$gt"
	OpGte Op = "$gte"
	OpIn  Op = "$in"
)

// Valid reports whether op is a known operator.
func (op Op) Valid() bool {
	switch op {
	case OpEq, OpNe, OpLt, OpLte, OpGt, OpGte, OpIn:
		return true
	}
	return false
}

// Cond is one predicate. OpIn uses Values; every other operator uses Value.
type Cond struct {
	Field  string
	Op     Op
	Value  value.Value
	Values []value.Value
}

// Filter is a conjunction of conditions.
type Filter []Cond

// Eq returns an equality condition.
func Eq(field string, v value.Value) Cond { return Cond{Field: field, Op: OpEq, Value: v} }

// Lte returns a less-or-equal condition.
func Lte(field string, v value.Value) Cond { return Cond{Field: field, Op: OpLte, Value: v} }

// In returns a membership condition.
func In(field string, vs ...value.Value) Cond { return Cond{Field: field, Op: OpIn, Values: vs} }

// SortKey orders by one field.
type SortKey struct {
	Field string
	Desc  bool
}

// Index describes a compound index.
type Index struct {
	Name   string
	Keys   []SortKey
	Unique bool
}

// Query selects documents from a collection. A zero Limit means no limit.
// An empty Projection returns whole documents.
type Query struct {
	Filter     Filter
	Sort       []SortKey
	Projection []string
	Limit      int64
}

// ErrClosed is returned by every operation on a closed store.
var ErrClosed = errors.New("document store is closed")
