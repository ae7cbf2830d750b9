package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/strata/docstore"
	"github.com/teranos/strata/docstore/storetest"
	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/tid"
	"github.com/teranos/strata/value"
)

// The conformance suite needs a live server.
func TestConformance(t *testing.T) {
	uri := os.Getenv("STRATA_MONGO_URI")
	if uri == "" {
		t.Skip("STRATA_MONGO_URI not set")
	}
	storetest.Run(t, NewDriver(uri, zaptest.NewLogger(t).Sugar()))
}

func TestNewDriver_DefaultURI(t *testing.T) {
	d := NewDriver("", nil)
	assert.Equal(t, DefaultURI, d.URI())
	assert.Equal(t, "mongo", d.Name())
	assert.Equal(t, ";", d.Separator())
}

func TestOpen_EmptyName(t *testing.T) {
	_, err := NewDriver("", nil).Open(context.Background(), "")
	assert.True(t, errors.IsPrecondition(err))
}

func TestOpen_UnreachableServerIsTransient(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, err := NewDriver("mongodb://127.0.0.1:1/?serverSelectionTimeoutMS=200&connectTimeoutMS=200", nil).
		Open(ctx, "test;unreachable")
	require.Error(t, err)
	assert.True(t, errors.IsTransientIO(err) || errors.Is(err, context.DeadlineExceeded))
}

func TestFilter(t *testing.T) {
	a, b := tid.New(), tid.New()

	tests := []struct {
		name   string
		filter docstore.Filter
		want   bson.D
	}{
		{"empty", nil, bson.D{}},
		{
			"single clause",
			docstore.Filter{docstore.Eq("_key", value.String("K"))},
			bson.D{{Key: "_key", Value: bson.D{{Key: "$eq", Value: "K"}}}},
		},
		{
			"conjunction",
			docstore.Filter{
				docstore.In("_dataset", value.TID(a), value.TID(b)),
				docstore.Lte("_id", value.TID(b)),
			},
			bson.D{{Key: "$and", Value: bson.A{
				bson.D{{Key: "_dataset", Value: bson.D{{Key: "$in", Value: bson.A{primitive.ObjectID(a), primitive.ObjectID(b)}}}}},
				bson.D{{Key: "_id", Value: bson.D{{Key: "$lte", Value: primitive.ObjectID(b)}}}},
			}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Filter(tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Filter(docstore.Filter{{Field: "x", Op: "$where"}})
	assert.True(t, errors.IsPrecondition(err))

	_, err = Filter(docstore.Filter{docstore.Eq("name", value.String("a\xffb"))})
	assert.True(t, errors.IsPrecondition(err))
}

func TestSortAndProjection(t *testing.T) {
	assert.Equal(t,
		bson.D{{Key: "_key", Value: 1}, {Key: "_id", Value: -1}},
		Sort([]docstore.SortKey{{Field: "_key"}, {Field: "_id", Desc: true}}))

	assert.Nil(t, Projection(nil))
	assert.Equal(t,
		bson.D{{Key: "_key", Value: 1}, {Key: "_id", Value: 0}},
		Projection([]string{"_key"}))
	assert.Equal(t,
		bson.D{{Key: "_id", Value: 1}, {Key: "_key", Value: 1}},
		Projection([]string{"_id", "_key"}))
}
