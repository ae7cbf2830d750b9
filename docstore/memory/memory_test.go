package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/strata/docstore"
	"github.com/teranos/strata/docstore/storetest"
	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/tid"
	"github.com/teranos/strata/value"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, NewDriver(zaptest.NewLogger(t).Sugar()))
}

func TestOpen_EmptyName(t *testing.T) {
	_, err := NewDriver(nil).Open(context.Background(), "")
	assert.True(t, errors.IsPrecondition(err))
}

func TestFind_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s, err := NewDriver(nil).Open(ctx, "test;copies;env")
	require.NoError(t, err)
	coll, err := s.Collection(ctx, "Thing")
	require.NoError(t, err)

	doc := value.NewDocument(
		value.Field{Name: "_id", Value: value.TID(tid.New())},
		value.Field{Name: "x", Value: value.Int32(1)},
	)
	require.NoError(t, coll.Insert(ctx, doc))
	doc.Set("x", value.Int32(2)) // caller mutation after insert

	cur, err := coll.Find(ctx, docstore.Query{})
	require.NoError(t, err)
	docs, err := docstore.Drain(ctx, cur)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	x, _ := docs[0].Get("x")
	assert.Equal(t, int64(1), x.Int())

	docs[0].Set("x", value.Int32(3)) // reader mutation
	cur, _ = coll.Find(ctx, docstore.Query{})
	again, _ := docstore.Drain(ctx, cur)
	x, _ = again[0].Get("x")
	assert.Equal(t, int64(1), x.Int())
}

func TestUniqueIndex(t *testing.T) {
	ctx := context.Background()
	s, err := NewDriver(nil).Open(ctx, "test;unique;env")
	require.NoError(t, err)
	coll, _ := s.Collection(ctx, "Thing")
	require.NoError(t, coll.EnsureIndex(ctx, docstore.Index{
		Name: "name", Keys: []docstore.SortKey{{Field: "name"}}, Unique: true,
	}))

	mk := func(name string) *value.Document {
		return value.NewDocument(
			value.Field{Name: "_id", Value: value.TID(tid.New())},
			value.Field{Name: "name", Value: value.String(name)},
		)
	}
	require.NoError(t, coll.Insert(ctx, mk("a")))
	err = coll.Insert(ctx, mk("a"))
	assert.True(t, errors.IsConflict(err))
	require.NoError(t, coll.Insert(ctx, mk("b")))
}

func TestFind_RejectsUnknownOperator(t *testing.T) {
	ctx := context.Background()
	s, _ := NewDriver(nil).Open(ctx, "test;ops;env")
	coll, _ := s.Collection(ctx, "Thing")
	_, err := coll.Find(ctx, docstore.Query{Filter: docstore.Filter{{Field: "x", Op: "$regex"}}})
	assert.True(t, errors.IsPrecondition(err))
}

func TestDatabases(t *testing.T) {
	ctx := context.Background()
	d := NewDriver(nil)
	s, _ := d.Open(ctx, "test;a;env")
	_, _ = d.Open(ctx, "test;b;env")
	assert.ElementsMatch(t, []string{"test;a;env", "test;b;env"}, d.Databases())

	require.NoError(t, s.DropDatabase(ctx))
	assert.Equal(t, []string{"test;b;env"}, d.Databases())
}
