package dataset

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/record"
	"github.com/teranos/strata/tid"
)

func TestValidateSave(t *testing.T) {
	p1 := tid.New()
	p2 := tid.New()
	id := tid.New()

	tests := []struct {
		name    string
		parents []tid.TID
		id      tid.TID
		wantErr string
	}{
		{"older parents", []tid.TID{p1, p2}, id, ""},
		{"root parent", []tid.TID{tid.Empty}, id, ""},
		{"no parents", nil, id, ""},
		{"parent equals id", []tid.TID{p1, id}, id, "equals the dataset's own id"},
		{"parent newer than id", []tid.TID{tid.New()}, id, "is newer than the dataset id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := &DataSet{DataSetID: "child", Parents: tt.parents}
			err := ds.ValidateSave(tt.id, tid.Empty)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsPrecondition(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	err := (&DataSet{}).ValidateSave(id, tid.Empty)
	assert.True(t, errors.IsPrecondition(err))
}

func TestRegister(t *testing.T) {
	reg := record.NewRegistry()
	require.NoError(t, Register(reg))

	ti, ok := reg.Lookup(TypeName)
	require.True(t, ok)
	assert.Equal(t, TypeName, ti.Collection())
	assert.Equal(t, []string{"DataSetID"}, ti.KeyFields())

	key, err := reg.Key(&DataSet{DataSetID: CommonID})
	require.NoError(t, err)
	assert.Equal(t, "common", key)
}

func TestVisibility_RankAndContains(t *testing.T) {
	a, b := tid.New(), tid.New()
	v := Visibility{Order: []tid.TID{b, a, tid.Empty}}

	assert.Equal(t, b, v.Leaf())
	assert.Equal(t, 0, v.Rank(b))
	assert.Equal(t, 2, v.Rank(tid.Empty))
	assert.Equal(t, -1, v.Rank(tid.New()))
	assert.True(t, v.Contains(a))
	assert.Equal(t, 3, v.Len())

	assert.Equal(t, []tid.TID{tid.Empty}, Root().Order)
	assert.Equal(t, tid.Empty, Visibility{}.Leaf())
}

func TestDAG_OverrideOrder(t *testing.T) {
	// common <- left, right <- leaf(left, right); right also inherits common
	common, left, right := tid.New(), tid.New(), tid.New()
	leaf := tid.New()

	g := NewDAG()
	g.Add(common, []tid.TID{tid.Empty})
	g.Add(left, []tid.TID{common})
	g.Add(right, []tid.TID{common})
	g.Add(leaf, []tid.TID{left, right})

	v, err := g.Visibility(context.Background(), leaf, nil)
	require.NoError(t, err)
	assert.Equal(t, []tid.TID{leaf, left, common, tid.Empty, right}, v.Order)
}

func TestDAG_RootAppendedWhenUndeclared(t *testing.T) {
	a := tid.New()
	g := NewDAG()
	g.Add(a, nil)

	v, err := g.Visibility(context.Background(), a, nil)
	require.NoError(t, err)
	assert.Equal(t, []tid.TID{a, tid.Empty}, v.Order)

	v, err = g.Visibility(context.Background(), tid.Empty, nil)
	require.NoError(t, err)
	assert.Equal(t, []tid.TID{tid.Empty}, v.Order)
}

func TestDAG_ResolverFillsCache(t *testing.T) {
	common, child := tid.New(), tid.New()
	calls := 0
	resolve := func(_ context.Context, id tid.TID) ([]tid.TID, bool, error) {
		calls++
		switch id {
		case common:
			return []tid.TID{tid.Empty}, true, nil
		case child:
			return []tid.TID{common}, true, nil
		}
		return nil, false, nil
	}

	g := NewDAG()
	v, err := g.Visibility(context.Background(), child, resolve)
	require.NoError(t, err)
	assert.Equal(t, []tid.TID{child, common, tid.Empty}, v.Order)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, g.Len())

	_, err = g.Visibility(context.Background(), child, resolve)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "second walk is served from cache")

	g.Reset()
	assert.Equal(t, 0, g.Len())
	_, ok := g.Parents(child)
	assert.False(t, ok)
}

func TestDAG_Errors(t *testing.T) {
	ctx := context.Background()
	unknown := tid.New()

	_, err := NewDAG().Visibility(ctx, unknown, nil)
	assert.True(t, errors.IsPrecondition(err))

	_, err = NewDAG().Visibility(ctx, unknown, func(context.Context, tid.TID) ([]tid.TID, bool, error) {
		return nil, false, nil
	})
	assert.True(t, errors.IsPrecondition(err))

	boom := errors.MarkTransientIO(errors.New("timeout"), "load dataset")
	_, err = NewDAG().Visibility(ctx, unknown, func(context.Context, tid.TID) ([]tid.TID, bool, error) {
		return nil, false, boom
	})
	assert.True(t, errors.IsTransientIO(err))
}

func TestDAG_CycleGuard(t *testing.T) {
	// Cannot be persisted, but a corrupted cache must not loop forever
	a, b := tid.New(), tid.New()
	g := NewDAG()
	g.Add(a, []tid.TID{b})
	g.Add(b, []tid.TID{a})

	v, err := g.Visibility(context.Background(), a, nil)
	require.NoError(t, err)
	assert.Equal(t, []tid.TID{a, b, tid.Empty}, v.Order)
}
