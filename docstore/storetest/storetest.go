// Package storetest is the conformance suite every docstore backend runs
// from its own tests.
package storetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/strata/docstore"
	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/tid"
	"github.com/teranos/strata/value"
)

// Run exercises driver against the docstore contract. Each subtest opens its
// own database so backends may share one driver.
func Run(t *testing.T, driver docstore.Driver) {
	t.Helper()
	ctx := context.Background()

	open := func(t *testing.T) docstore.Store {
		t.Helper()
		name := fmt.Sprintf("test%s%s%sconformance", driver.Separator(), sanitize(t.Name()), driver.Separator())
		s, err := driver.Open(ctx, name)
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = s.DropDatabase(ctx)
			_ = s.Close(ctx)
		})
		return s
	}

	t.Run("InsertAndFindAll", func(t *testing.T) {
		coll := mustCollection(t, open(t), "Thing")
		docs := seed(t, coll, 5)

		got := find(t, coll, docstore.Query{Sort: []docstore.SortKey{{Field: "_id"}}})
		require.Len(t, got, len(docs))
		for i := range docs {
			assert.True(t, value.EqualDocuments(docs[i], got[i]), "doc %d: %s != %s", i, docs[i], got[i])
		}
	})

	t.Run("DuplicateIDConflicts", func(t *testing.T) {
		coll := mustCollection(t, open(t), "Thing")
		doc := thing(tid.New(), "A", 1)
		require.NoError(t, coll.Insert(ctx, doc))
		err := coll.Insert(ctx, doc)
		require.Error(t, err)
		assert.True(t, errors.IsConflict(err), "got %v", err)
	})

	t.Run("FilterOperators", func(t *testing.T) {
		coll := mustCollection(t, open(t), "Thing")
		seed(t, coll, 6) // n = 0..5, keys k0..k5

		tests := []struct {
			name   string
			filter docstore.Filter
			want   int
		}{
			{"eq", docstore.Filter{docstore.Eq("n", value.Int32(2))}, 1},
			{"ne", docstore.Filter{{Field: "n", Op: docstore.OpNe, Value: value.Int32(2)}}, 5},
			{"lt", docstore.Filter{{Field: "n", Op: docstore.OpLt, Value: value.Int32(2)}}, 2},
			{"lte", docstore.Filter{{Field: "n", Op: docstore.OpLte, Value: value.Int32(2)}}, 3},
			{"gt", docstore.Filter{{Field: "n", Op: docstore.OpGt, Value: value.Int32(2)}}, 3},
			{"gte across numeric kinds", docstore.Filter{{Field: "n", Op: docstore.OpGte, Value: value.Double(2.5)}}, 3},
			{"in", docstore.Filter{docstore.In("_key", value.String("k1"), value.String("k4"))}, 2},
			{"conjunction", docstore.Filter{
				{Field: "n", Op: docstore.OpGt, Value: value.Int32(0)},
				{Field: "n", Op: docstore.OpLt, Value: value.Int32(3)},
			}, 2},
			{"list element", docstore.Filter{docstore.Eq("tags", value.String("even"))}, 3},
			{"missing field", docstore.Filter{docstore.Eq("nope", value.Int32(1))}, 0},
			{"missing field equals null", docstore.Filter{docstore.Eq("nope", value.Null())}, 6},
			{"nested field", docstore.Filter{docstore.Eq("meta.parity", value.String("odd"))}, 3},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got := find(t, coll, docstore.Query{Filter: tt.filter})
				assert.Len(t, got, tt.want)
			})
		}
	})

	t.Run("TIDRange", func(t *testing.T) {
		coll := mustCollection(t, open(t), "Thing")
		docs := seed(t, coll, 4)
		cut, _ := docs[1].Get("_id")

		got := find(t, coll, docstore.Query{
			Filter: docstore.Filter{docstore.Lte("_id", cut)},
			Sort:   []docstore.SortKey{{Field: "_id", Desc: true}},
		})
		require.Len(t, got, 2)
		first, _ := got[0].Get("_id")
		assert.Equal(t, cut.ID(), first.ID())
	})

	t.Run("SortLimitProjection", func(t *testing.T) {
		coll := mustCollection(t, open(t), "Thing")
		seed(t, coll, 5)

		got := find(t, coll, docstore.Query{
			Sort:       []docstore.SortKey{{Field: "n", Desc: true}},
			Limit:      2,
			Projection: []string{"_id", "n"},
		})
		require.Len(t, got, 2)
		n0, _ := got[0].Get("n")
		n1, _ := got[1].Get("n")
		assert.Equal(t, int64(4), n0.Int())
		assert.Equal(t, int64(3), n1.Int())
		assert.Equal(t, 2, got[0].Len(), "projection keeps only selected fields")
		_, hasKey := got[0].Get("_key")
		assert.False(t, hasKey)
	})

	t.Run("CompoundSort", func(t *testing.T) {
		coll := mustCollection(t, open(t), "Thing")
		var ids []tid.TID
		for i := 0; i < 4; i++ {
			id := tid.New()
			ids = append(ids, id)
			require.NoError(t, coll.Insert(ctx, thing(id, fmt.Sprintf("k%d", i%2), int32(i))))
		}
		got := find(t, coll, docstore.Query{Sort: []docstore.SortKey{{Field: "_key"}, {Field: "_id", Desc: true}}})
		require.Len(t, got, 4)
		want := []tid.TID{ids[2], ids[0], ids[3], ids[1]}
		for i, d := range got {
			id, _ := d.Get("_id")
			assert.Equal(t, want[i], id.ID(), "position %d", i)
		}
	})

	t.Run("DeleteMany", func(t *testing.T) {
		coll := mustCollection(t, open(t), "Thing")
		seed(t, coll, 5)

		n, err := coll.DeleteMany(ctx, docstore.Filter{docstore.Eq("tags", value.String("odd"))})
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		assert.Len(t, find(t, coll, docstore.Query{}), 3)
	})

	t.Run("EnsureIndexIdempotent", func(t *testing.T) {
		coll := mustCollection(t, open(t), "Thing")
		idx := docstore.Index{Name: "key_dataset_id", Keys: []docstore.SortKey{
			{Field: "_key"}, {Field: "_dataset"}, {Field: "_id", Desc: true},
		}}
		require.NoError(t, coll.EnsureIndex(ctx, idx))
		require.NoError(t, coll.EnsureIndex(ctx, idx))
	})

	t.Run("ReopenSeesData", func(t *testing.T) {
		s := open(t)
		coll := mustCollection(t, s, "Thing")
		seed(t, coll, 2)

		again, err := driver.Open(ctx, s.Name())
		require.NoError(t, err)
		defer again.Close(ctx)
		assert.Len(t, find(t, mustCollection(t, again, "Thing"), docstore.Query{}), 2)
	})

	t.Run("DropDatabase", func(t *testing.T) {
		s := open(t)
		seed(t, mustCollection(t, s, "Thing"), 3)
		require.NoError(t, s.DropDatabase(ctx))

		again, err := driver.Open(ctx, s.Name())
		require.NoError(t, err)
		defer func() {
			_ = again.DropDatabase(ctx)
			_ = again.Close(ctx)
		}()
		assert.Empty(t, find(t, mustCollection(t, again, "Thing"), docstore.Query{}))
	})

	t.Run("ClosedStoreRejects", func(t *testing.T) {
		s, err := driver.Open(ctx, "test"+driver.Separator()+"closed"+driver.Separator()+"conformance")
		require.NoError(t, err)
		coll := mustCollection(t, s, "Thing")
		require.NoError(t, s.DropDatabase(ctx))
		require.NoError(t, s.Close(ctx))

		err = coll.Insert(ctx, thing(tid.New(), "x", 1))
		assert.Error(t, err)
	})
}

func mustCollection(t *testing.T, s docstore.Store, name string) docstore.Collection {
	t.Helper()
	c, err := s.Collection(context.Background(), name)
	require.NoError(t, err)
	return c
}

func thing(id tid.TID, key string, n int32) *value.Document {
	parity := "even"
	if n%2 == 1 {
		parity = "odd"
	}
	return value.NewDocument(
		value.Field{Name: "_id", Value: value.TID(id)},
		value.Field{Name: "_dataset", Value: value.TID(tid.Empty)},
		value.Field{Name: "_key", Value: value.String(key)},
		value.Field{Name: "_t", Value: value.List(value.String("Thing"))},
		value.Field{Name: "n", Value: value.Int32(n)},
		value.Field{Name: "tags", Value: value.List(value.String(parity), value.String("all"))},
		value.Field{Name: "meta", Value: value.Doc(value.NewDocument(
			value.Field{Name: "parity", Value: value.String(parity)},
		))},
	)
}

func seed(t *testing.T, coll docstore.Collection, n int) []*value.Document {
	t.Helper()
	docs := make([]*value.Document, n)
	for i := range docs {
		docs[i] = thing(tid.New(), fmt.Sprintf("k%d", i), int32(i))
		require.NoError(t, coll.Insert(context.Background(), docs[i]))
	}
	return docs
}

func find(t *testing.T, coll docstore.Collection, q docstore.Query) []*value.Document {
	t.Helper()
	cur, err := coll.Find(context.Background(), q)
	require.NoError(t, err)
	docs, err := docstore.Drain(context.Background(), cur)
	require.NoError(t, err)
	return docs
}

func sanitize(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
