package docstore

import (
	"context"
	"sort"

	"github.com/teranos/strata/value"
)

// Match reports whether doc satisfies every condition in f. A list-valued
// field matches when the list itself or any of its elements matches. A
// missing field behaves as null.
func Match(doc *value.Document, f Filter) bool {
	for _, c := range f {
		if !matchCond(doc, c) {
			return false
		}
	}
	return true
}

func matchCond(doc *value.Document, c Cond) bool {
	v, _ := doc.Lookup(c.Field)
	if c.Op == OpNe {
		return !matchValue(v, Cond{Field: c.Field, Op: OpEq, Value: c.Value})
	}
	return matchValue(v, c)
}

func matchValue(v value.Value, c Cond) bool {
	if compareOp(v, c) {
		return true
	}
	if v.Kind() == value.KindList {
		for _, item := range v.Items() {
			if compareOp(item, c) {
				return true
			}
		}
	}
	return false
}

func compareOp(v value.Value, c Cond) bool {
	switch c.Op {
	case OpEq:
		return value.Equal(v, c.Value)
	case OpIn:
		for _, want := range c.Values {
			if value.Equal(v, want) {
				return true
			}
		}
		return false
	}

	// Range operators only compare within the same kind family
	if !rangeComparable(v, c.Value) {
		return false
	}
	cmp := value.Compare(v, c.Value)
	switch c.Op {
	case OpLt:
		return cmp < 0
	case OpLte:
		return cmp <= 0
	case OpGt:
		return cmp > 0
	case OpGte:
		return cmp >= 0
	}
	return false
}

func rangeComparable(a, b value.Value) bool {
	if a.IsNumeric() && b.IsNumeric() {
		return true
	}
	return a.Kind() == b.Kind() && !a.IsNull()
}

// CompareBy orders a against b by keys. Missing fields sort as null.
func CompareBy(a, b *value.Document, keys []SortKey) int {
	for _, k := range keys {
		av, _ := a.Lookup(k.Field)
		bv, _ := b.Lookup(k.Field)
		c := value.Compare(av, bv)
		if k.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

// Apply evaluates q against docs in memory: filter, stable sort, limit and
// projection. Backends that cannot push a query down use it on their
// candidate set. docs are not modified.
func Apply(docs []*value.Document, q Query) []*value.Document {
	out := make([]*value.Document, 0, len(docs))
	for _, d := range docs {
		if Match(d, q.Filter) {
			out = append(out, d)
		}
	}
	if len(q.Sort) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			return CompareBy(out[i], out[j], q.Sort) < 0
		})
	}
	if q.Limit > 0 && int64(len(out)) > q.Limit {
		out = out[:q.Limit]
	}
	for i, d := range out {
		out[i] = d.Project(q.Projection)
	}
	return out
}

// SliceCursor iterates a materialized result set.
type SliceCursor struct {
	docs []*value.Document
	pos  int
	err  error
}

// NewSliceCursor returns a cursor over docs.
func NewSliceCursor(docs []*value.Document) *SliceCursor {
	return &SliceCursor{docs: docs, pos: -1}
}

func (c *SliceCursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		c.err = err
		return false
	}
	c.pos++
	return c.pos < len(c.docs)
}

func (c *SliceCursor) Document() *value.Document {
	if c.pos < 0 || c.pos >= len(c.docs) {
		return nil
	}
	return c.docs[c.pos]
}

func (c *SliceCursor) Err() error { return c.err }

func (c *SliceCursor) Close(context.Context) error {
	c.docs = nil
	return nil
}

// Drain reads every remaining document from cur and closes it.
func Drain(ctx context.Context, cur Cursor) ([]*value.Document, error) {
	defer cur.Close(ctx)
	var docs []*value.Document
	for cur.Next(ctx) {
		docs = append(docs, cur.Document())
	}
	return docs, cur.Err()
}
