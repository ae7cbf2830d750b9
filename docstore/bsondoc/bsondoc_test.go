package bsondoc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/tid"
	"github.com/teranos/strata/value"
)

func sampleDocument() *value.Document {
	return value.NewDocument(
		value.Field{Name: "_id", Value: value.TID(tid.MustParse("65f1c2a0aabbccddee000001"))},
		value.Field{Name: "name", Value: value.String("widget \"quoted\"")},
		value.Field{Name: "count", Value: value.Int32(42)},
		value.Field{Name: "total", Value: value.Int64(1 << 40)},
		value.Field{Name: "price", Value: value.Double(19.99)},
		value.Field{Name: "low", Value: value.Double(math.Inf(-1))},
		value.Field{Name: "active", Value: value.Bool(true)},
		value.Field{Name: "missing", Value: value.Null()},
		value.Field{Name: "tags", Value: value.List(value.Int32(1), value.String("two"))},
		value.Field{Name: "address", Value: value.Doc(value.NewDocument(
			value.Field{Name: "street", Value: value.String("Main")},
			value.Field{Name: "number", Value: value.Int64(12)},
		))},
	)
}

func assertSameDocument(t *testing.T, want, got *value.Document) {
	t.Helper()
	require.Equal(t, want.Len(), got.Len())
	for i, f := range want.Fields() {
		g := got.Fields()[i]
		assert.Equal(t, f.Name, g.Name, "field order")
		assert.Equal(t, f.Value.Kind(), g.Value.Kind(), "kind of %s", f.Name)
		assert.True(t, value.Equal(f.Value, g.Value), "value of %s: %s != %s", f.Name, f.Value, g.Value)
	}
}

func TestBSONRoundTrip(t *testing.T) {
	doc := sampleDocument()

	d, err := ToBSON(doc)
	require.NoError(t, err)
	assert.Equal(t, primitive.ObjectID(tid.MustParse("65f1c2a0aabbccddee000001")), d[0].Value)

	// Through the wire encoding so the driver's own decoded types are exercised
	raw, err := bson.Marshal(d)
	require.NoError(t, err)
	var decoded bson.D
	require.NoError(t, bson.Unmarshal(raw, &decoded))

	back, err := FromBSON(decoded)
	require.NoError(t, err)
	assertSameDocument(t, doc, back)
}

func TestFromBSON_Unsupported(t *testing.T) {
	_, err := FromBSON(bson.D{{Key: "when", Value: primitive.DateTime(0)}})
	require.Error(t, err)
	assert.True(t, errors.IsTypeMismatch(err))
}

func TestExtJSON_RoundTripPreservesKindsAndOrder(t *testing.T) {
	doc := sampleDocument()

	data, err := MarshalExtJSON(doc)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"count":{"$numberInt":"42"}`)
	assert.Contains(t, string(data), `"_id":{"$oid":"65f1c2a0aabbccddee000001"}`)

	back, err := UnmarshalExtJSON(data)
	require.NoError(t, err)
	assertSameDocument(t, doc, back)
}

func TestExtJSON_SpecialDoubles(t *testing.T) {
	for _, f := range []float64{math.Inf(1), math.Inf(-1), 0, -1.5e300, math.NaN()} {
		doc := value.NewDocument(value.Field{Name: "d", Value: value.Double(f)})
		data, err := MarshalExtJSON(doc)
		require.NoError(t, err)
		back, err := UnmarshalExtJSON(data)
		require.NoError(t, err)
		got, _ := back.Get("d")
		require.Equal(t, value.KindDouble, got.Kind())
		if math.IsNaN(f) {
			assert.True(t, math.IsNaN(got.Float()))
			continue
		}
		assert.True(t, value.Equal(value.Double(f), got), "%v", f)
	}
}

func TestExtJSON_DollarFieldNamesStayPayload(t *testing.T) {
	id := tid.New()
	doc := value.NewDocument(
		value.Field{Name: "ref", Value: value.Doc(value.NewDocument(
			value.Field{Name: "$oid", Value: value.String(id.String())},
		))},
		value.Field{Name: "$numberInt", Value: value.String("7")},
		value.Field{Name: "~tilde", Value: value.Int32(1)},
		value.Field{Name: "rows", Value: value.List(value.Doc(value.NewDocument(
			value.Field{Name: "$numberLong", Value: value.Bool(false)},
		)))},
	)

	data, err := MarshalExtJSON(doc)
	require.NoError(t, err)
	back, err := UnmarshalExtJSON(data)
	require.NoError(t, err)
	assertSameDocument(t, doc, back)

	ref, _ := back.Get("ref")
	assert.Equal(t, value.KindDocument, ref.Kind(), "a nested $oid field is not a TID")
}

func TestEscapeName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"plain", "plain"},
		{"_id", "_id"},
		{"$oid", "~$oid"},
		{"~x", "~~x"},
		{"a$b", "a$b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EscapeName(tt.name))
			assert.Equal(t, tt.name, unescapeName(EscapeName(tt.name)))
		})
	}
}

func TestInvalidUTF8IsRejected(t *testing.T) {
	tests := []struct {
		name string
		doc  *value.Document
	}{
		{"string", value.NewDocument(value.Field{Name: "s", Value: value.String("a\xffb")})},
		{"field name", value.NewDocument(value.Field{Name: "a\xff", Value: value.Int32(1)})},
		{"in list", value.NewDocument(value.Field{Name: "l", Value: value.List(value.String("ok"), value.String("\xc3"))})},
		{"nested", value.NewDocument(value.Field{Name: "d", Value: value.Doc(value.NewDocument(
			value.Field{Name: "s", Value: value.String("\xed\xa0\x80")},
		))})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MarshalExtJSON(tt.doc)
			require.Error(t, err)
			assert.True(t, errors.IsPrecondition(err), "got %v", err)

			_, err = ToBSON(tt.doc)
			assert.True(t, errors.IsPrecondition(err))
		})
	}

	data, err := MarshalExtJSON(value.NewDocument(value.Field{Name: "s", Value: value.String("héllo ✓")}))
	require.NoError(t, err)
	back, err := UnmarshalExtJSON(data)
	require.NoError(t, err)
	got, _ := back.Get("s")
	assert.Equal(t, "héllo ✓", got.Str())
}

func TestUnmarshalExtJSON_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"bad int32", `{"x":{"$numberInt":"x"}}`},
		{"bad oid", `{"x":{"$oid":"xyz"}}`},
		{"not an object", `[1,2]`},
		{"truncated", `{"x":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalExtJSON([]byte(tt.input))
			require.Error(t, err)
			assert.True(t, errors.IsTypeMismatch(err))
		})
	}
}
