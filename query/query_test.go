package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/strata/dataset"
	"github.com/teranos/strata/docstore"
	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/local"
	"github.com/teranos/strata/record"
	"github.com/teranos/strata/tid"
	"github.com/teranos/strata/value"
)

type Trade struct {
	ID        string `strata:"ID,key"`
	Book      string
	Notional  float64
	TradeDate local.Date
	Legs      []Leg
}

type Leg struct {
	Currency string
}

type Swap struct {
	Trade
	FixedRate float64
}

func registry(t *testing.T) *record.Registry {
	reg := record.NewRegistry()
	reg.MustRegister("Trade", Trade{})
	reg.MustRegister("Swap", Swap{})
	return reg
}

func TestCompile(t *testing.T) {
	reg := registry(t)
	vis := dataset.Root()
	date := local.Date{Year: 2024, Month: time.January, Day: 2}

	coll, spec, err := New("Trade").
		Eq("Book", "rates").
		Gte("TradeDate", date).
		In("Legs.Currency", []string{"USD", "EUR"}).
		Key("T;1").
		SortByDescending("Notional").
		SortBy("Book").
		Select("Book", "Notional").
		Limit(10).
		BatchSize(5).
		Compile(reg, vis, tid.Max)
	require.NoError(t, err)

	assert.Equal(t, "Trade", coll)
	assert.Equal(t, docstore.Filter{
		docstore.Eq("Book", value.String("rates")),
		{Field: "TradeDate", Op: docstore.OpGte, Value: value.Int32(20240102)},
		docstore.In("Legs.Currency", value.String("USD"), value.String("EUR")),
		docstore.Eq("_key", value.String("T;1")),
	}, spec.Filter)
	assert.Equal(t, []docstore.SortKey{{Field: "Notional", Desc: true}, {Field: "Book"}}, spec.Sort)
	assert.Equal(t, []string{"Book", "Notional"}, spec.Projection)
	assert.Equal(t, tid.Max, spec.Cutoff)
	assert.Equal(t, int64(10), spec.Limit)
	assert.Equal(t, 5, spec.BatchSize)
	assert.Equal(t, vis, spec.Visibility)
}

func TestCompile_DerivedTypeFiltersOnDiscriminator(t *testing.T) {
	coll, spec, err := New("Swap").Gt("FixedRate", 0.01).Compile(registry(t), dataset.Root(), tid.Max)
	require.NoError(t, err)
	assert.Equal(t, "Trade", coll)
	require.Len(t, spec.Filter, 2)
	assert.Equal(t, docstore.Eq("_t", value.String("Swap")), spec.Filter[1])
}

func TestCompile_AsOf(t *testing.T) {
	cut := tid.New()
	q := New("Trade").AsOf(cut)
	got, ok := q.Cutoff()
	assert.True(t, ok)
	assert.Equal(t, cut, got)

	_, spec, err := q.Compile(registry(t), dataset.Root(), tid.Max)
	require.NoError(t, err)
	assert.Equal(t, cut, spec.Cutoff)

	got, ok = New("Trade").Cutoff()
	assert.False(t, ok)
	assert.Equal(t, tid.Max, got)
}

func TestCompile_Rejects(t *testing.T) {
	reg := registry(t)
	tests := []struct {
		name     string
		q        *Query
		mismatch bool
	}{
		{"unregistered type", New("Nope"), true},
		{"unknown field", New("Trade").Eq("Desk", "x"), false},
		{"unknown sort", New("Trade").SortBy("Desk"), false},
		{"unknown projection", New("Trade").Select("Desk"), false},
		{"range on key", New("Trade").Gt("_key", "A"), false},
		{"filter on id", New("Trade").Eq("_id", tid.New()), false},
		{"sort by id", New("Trade").SortBy("_id"), false},
		{"bad operator", New("Trade").Where("Book", "$regex", "r.*"), false},
		{"unsupported value", New("Trade").Eq("Book", map[string]int{}), true},
		{"empty field", New("Trade").Eq("", 1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := tt.q.Compile(reg, dataset.Root(), tid.Max)
			require.Error(t, err)
			if tt.mismatch {
				assert.True(t, errors.IsTypeMismatch(err), "got %v", err)
			} else {
				assert.True(t, errors.IsPrecondition(err), "got %v", err)
			}
		})
	}
}

func TestBuilder_FirstErrorSticks(t *testing.T) {
	q := New("Trade").Gt("_key", "A").Eq("", 1)
	require.Error(t, q.Err())
	assert.Contains(t, q.Err().Error(), "_key")
}

func TestSelect_ReservedOnly(t *testing.T) {
	_, spec, err := New("Trade").Select("_key", "_id").Compile(registry(t), dataset.Root(), tid.Max)
	require.NoError(t, err)
	assert.Equal(t, []string{"_key"}, spec.Projection)
}

func TestInDataSet(t *testing.T) {
	leaf := tid.New()
	q := New("Trade").InDataSet(leaf)
	assert.Equal(t, leaf, q.DataSet())
	assert.Equal(t, "Trade", q.TypeName())
	assert.Equal(t, tid.Empty, New("Trade").DataSet())
}
