package datasource

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/strata/dataset"
	"github.com/teranos/strata/docstore"
	"github.com/teranos/strata/docstore/memory"
	"github.com/teranos/strata/docstore/sqlite"
	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/query"
	"github.com/teranos/strata/record"
	"github.com/teranos/strata/tid"
	"github.com/teranos/strata/value"
)

type Quote struct {
	Symbol string `strata:"Symbol,key"`
	Venue  string `strata:"Venue,key"`
	X      int64
}

type FXQuote struct {
	Quote
	Pair string
}

func testRegistry() *record.Registry {
	reg := record.NewRegistry()
	reg.MustRegister("Quote", Quote{})
	reg.MustRegister("FXQuote", FXQuote{})
	return reg
}

func testInstance(t *testing.T) Instance {
	return Instance{Type: Test, Name: "fixture", Env: strings.ReplaceAll(t.Name(), "/", "_")}
}

func openSource(t *testing.T, driver docstore.Driver, inst Instance, opts Options) *DataSource {
	t.Helper()
	ds, err := New(inst, driver, testRegistry(), opts, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	require.NoError(t, ds.Init(context.Background()))
	t.Cleanup(func() { _ = ds.Close(context.Background()) })
	return ds
}

func newSource(t *testing.T, opts Options) *DataSource {
	return openSource(t, memory.NewDriver(nil), testInstance(t), opts)
}

func loadX(t *testing.T, ds *DataSource, key string, leaf tid.TID, opts ...LoadOption) (int64, bool) {
	t.Helper()
	rec, found, err := ds.Load(context.Background(), "Quote", key, leaf, opts...)
	require.NoError(t, err)
	if !found {
		return 0, false
	}
	q, ok := as[Quote](rec.Data)
	require.True(t, ok)
	return q.X, true
}

func TestScenario_SimpleWriteRead(t *testing.T) {
	ctx := context.Background()
	ds := newSource(t, Options{})
	common, err := ds.CreateCommon(ctx)
	require.NoError(t, err)

	saved, err := ds.Save(ctx, &Quote{Symbol: "A", Venue: "1", X: 42}, common)
	require.NoError(t, err)
	assert.Equal(t, "A;1", saved.Key)
	assert.Equal(t, common, saved.DataSet)
	assert.Equal(t, []string{"Quote"}, saved.Type)
	assert.True(t, common.Less(saved.ID))

	q, found, err := LoadAs[Quote](ctx, ds, "A;1", common)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, Quote{Symbol: "A", Venue: "1", X: 42}, *q)
}

func TestScenario_Versioning(t *testing.T) {
	ctx := context.Background()
	ds := newSource(t, Options{})
	common, err := ds.CreateCommon(ctx)
	require.NoError(t, err)

	first, err := ds.Save(ctx, &Quote{Symbol: "A", Venue: "1", X: 1}, common)
	require.NoError(t, err)
	_, err = ds.Save(ctx, &Quote{Symbol: "A", Venue: "1", X: 2}, common)
	require.NoError(t, err)

	x, _ := loadX(t, ds, "A;1", common)
	assert.Equal(t, int64(2), x)

	x, _ = loadX(t, ds, "A;1", common, WithCutoff(first.ID))
	assert.Equal(t, int64(1), x)
}

func TestScenario_ChildOverride(t *testing.T) {
	ctx := context.Background()
	ds := newSource(t, Options{})
	common, err := ds.CreateCommon(ctx)
	require.NoError(t, err)
	child, err := ds.CreateDataSet(ctx, "child", []tid.TID{common}, common)
	require.NoError(t, err)

	_, err = ds.Save(ctx, &Quote{Symbol: "K", X: 1}, common)
	require.NoError(t, err)
	_, err = ds.Save(ctx, &Quote{Symbol: "K", X: 9}, child)
	require.NoError(t, err)

	x, _ := loadX(t, ds, "K;", child)
	assert.Equal(t, int64(9), x)
	x, _ = loadX(t, ds, "K;", common)
	assert.Equal(t, int64(1), x)

	// A later parent write stays shadowed in the child
	_, err = ds.Save(ctx, &Quote{Symbol: "K", X: 5}, common)
	require.NoError(t, err)
	x, _ = loadX(t, ds, "K;", child)
	assert.Equal(t, int64(9), x)
	x, _ = loadX(t, ds, "K;", common)
	assert.Equal(t, int64(5), x)
}

func TestScenario_Tombstone(t *testing.T) {
	ctx := context.Background()
	ds := newSource(t, Options{})
	common, err := ds.CreateCommon(ctx)
	require.NoError(t, err)
	child, err := ds.CreateDataSet(ctx, "child", []tid.TID{common}, common)
	require.NoError(t, err)

	_, err = ds.Save(ctx, &Quote{Symbol: "K", X: 1}, common)
	require.NoError(t, err)
	require.NoError(t, ds.Delete(ctx, "Quote", "K;", child))

	_, found := loadX(t, ds, "K;", child)
	assert.False(t, found)
	x, found := loadX(t, ds, "K;", common)
	require.True(t, found)
	assert.Equal(t, int64(1), x)
}

func TestScenario_ParentOrderingViolation(t *testing.T) {
	ctx := context.Background()
	ds := newSource(t, Options{})
	future := tid.FromTime(time.Now().Add(24 * time.Hour))

	_, err := ds.CreateDataSet(ctx, "bad", []tid.TID{future}, tid.Empty)
	require.Error(t, err)
	assert.True(t, errors.IsPrecondition(err))

	// Nothing was written
	_, err = ds.GetDataSet(ctx, "bad", tid.Empty)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestCreateDataSet_UnknownParent(t *testing.T) {
	ctx := context.Background()
	ds := newSource(t, Options{})
	common, err := ds.CreateCommon(ctx)
	require.NoError(t, err)
	ghost := tid.New()

	_, err = ds.CreateDataSet(ctx, "orphan", []tid.TID{common, ghost}, common)
	require.Error(t, err)
	assert.True(t, errors.IsPrecondition(err))
	assert.Contains(t, err.Error(), ghost.String())
	assert.NotEmpty(t, errors.GetAllHints(err))

	_, err = ds.GetDataSet(ctx, "orphan", common)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	// Saving the payload directly goes through the same check
	_, err = ds.Save(ctx, &dataset.DataSet{DataSetID: "orphan", Parents: []tid.TID{ghost}}, common)
	assert.True(t, errors.IsPrecondition(err))

	// The root needs no record
	_, err = ds.CreateDataSet(ctx, "rooted", []tid.TID{tid.Empty}, tid.Empty)
	require.NoError(t, err)
}

func TestScenario_PolicyGuard(t *testing.T) {
	ctx := context.Background()
	driver := memory.NewDriver(nil)
	ds := openSource(t, driver, Instance{Type: Prod, Name: "east", Env: "main"}, Options{})
	_, err := ds.Save(ctx, &Quote{Symbol: "A", X: 1}, tid.Empty)
	require.NoError(t, err)

	err = ds.DeleteDB(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsPolicyViolation(err))

	assert.Contains(t, driver.Databases(), "prod;east;main")
	x, found := loadX(t, ds, "A;", tid.Empty)
	require.True(t, found)
	assert.Equal(t, int64(1), x)

	for _, typ := range []InstanceType{UAT, Dev, User} {
		other, err := New(Instance{Type: typ, Name: "n", Env: "e"}, driver, nil, Options{}, nil)
		require.NoError(t, err)
		assert.True(t, errors.IsPolicyViolation(other.DeleteDB(ctx)), "%s", typ)
	}
}

func TestDeleteDB_TestInstance(t *testing.T) {
	ctx := context.Background()
	driver := memory.NewDriver(nil)
	ds := openSource(t, driver, testInstance(t), Options{})
	common, err := ds.CreateCommon(ctx)
	require.NoError(t, err)
	_, err = ds.Save(ctx, &Quote{Symbol: "A", X: 1}, common)
	require.NoError(t, err)

	require.NoError(t, ds.DeleteDB(ctx))

	// The source is still usable and starts empty
	_, found := loadX(t, ds, "A;", tid.Empty)
	assert.False(t, found)
	_, err = ds.GetDataSet(ctx, dataset.CommonID, tid.Empty)
	assert.Error(t, err)
}

func TestReadYourWrites_SkipsStore(t *testing.T) {
	ctx := context.Background()
	ds := newSource(t, Options{})
	saved, err := ds.Save(ctx, &Quote{Symbol: "A", X: 7}, tid.Empty)
	require.NoError(t, err)

	rec, found, err := ds.Load(ctx, "Quote", "A;", tid.Empty)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, saved.ID, rec.ID)

	// Loaded copies are independent snapshots
	rec.Data.(*Quote).X = 100
	x, _ := loadX(t, ds, "A;", tid.Empty)
	assert.Equal(t, int64(7), x)
}

func TestSave_CallerStructIsCopied(t *testing.T) {
	ctx := context.Background()
	ds := newSource(t, Options{})
	q := &Quote{Symbol: "A", X: 1}
	_, err := ds.Save(ctx, q, tid.Empty)
	require.NoError(t, err)
	q.X = 2

	x, _ := loadX(t, ds, "A;", tid.Empty)
	assert.Equal(t, int64(1), x)

	// Values are accepted as well as pointers
	_, err = ds.Save(ctx, Quote{Symbol: "B", X: 3}, tid.Empty)
	require.NoError(t, err)
	x, _ = loadX(t, ds, "B;", tid.Empty)
	assert.Equal(t, int64(3), x)
}

func TestCacheInvalidation_AcrossLeaves(t *testing.T) {
	ctx := context.Background()
	ds := newSource(t, Options{})
	common, err := ds.CreateCommon(ctx)
	require.NoError(t, err)
	child, err := ds.CreateDataSet(ctx, "child", []tid.TID{common}, common)
	require.NoError(t, err)

	_, err = ds.Save(ctx, &Quote{Symbol: "K", X: 1}, common)
	require.NoError(t, err)
	x, _ := loadX(t, ds, "K;", child) // cached from the child's view
	assert.Equal(t, int64(1), x)

	_, err = ds.Save(ctx, &Quote{Symbol: "K", X: 2}, common)
	require.NoError(t, err)
	x, _ = loadX(t, ds, "K;", child)
	assert.Equal(t, int64(2), x, "a parent write evicts the child's cached view")
}

func TestCrossSource_CutoffOrdering(t *testing.T) {
	ctx := context.Background()
	driver := memory.NewDriver(nil)
	inst := testInstance(t)
	writer := openSource(t, driver, inst, Options{KeepDB: true})
	_, err := writer.Save(ctx, &Quote{Symbol: "A", X: 1}, tid.Empty)
	require.NoError(t, err)

	reader := openSource(t, driver, inst, Options{KeepDB: true})
	x, found := loadX(t, reader, "A;", tid.Empty)
	require.True(t, found)
	assert.Equal(t, int64(1), x)

	// The reader's cached view is stale until it loads with a fresh cutoff
	_, err = writer.Save(ctx, &Quote{Symbol: "A", X: 2}, tid.Empty)
	require.NoError(t, err)
	x, _ = loadX(t, reader, "A;", tid.Empty)
	assert.Equal(t, int64(1), x)
	x, _ = loadX(t, reader, "A;", tid.Empty, WithCutoff(tid.Max))
	assert.Equal(t, int64(2), x)
}

func TestLoad_RootCutoffSeesRootOnly(t *testing.T) {
	ctx := context.Background()
	ds := newSource(t, Options{})
	common, err := ds.CreateCommon(ctx)
	require.NoError(t, err)
	_, err = ds.Save(ctx, &Quote{Symbol: "R", X: 1}, tid.Empty)
	require.NoError(t, err)
	_, err = ds.Save(ctx, &Quote{Symbol: "R", X: 2}, common)
	require.NoError(t, err)

	x, _ := loadX(t, ds, "R;", common, WithCutoff(tid.Empty))
	assert.Equal(t, int64(1), x)
}

func TestReadOnly(t *testing.T) {
	ctx := context.Background()
	driver := memory.NewDriver(nil)
	inst := testInstance(t)

	rw := openSource(t, driver, inst, Options{KeepDB: true})
	first, err := rw.Save(ctx, &Quote{Symbol: "A", X: 1}, tid.Empty)
	require.NoError(t, err)
	_, err = rw.Save(ctx, &Quote{Symbol: "A", X: 2}, tid.Empty)
	require.NoError(t, err)

	ro := openSource(t, driver, inst, Options{ReadOnly: true, KeepDB: true})
	assert.True(t, ro.ReadOnly())
	_, err = ro.Save(ctx, &Quote{Symbol: "A", X: 3}, tid.Empty)
	assert.True(t, errors.IsPolicyViolation(err))
	assert.True(t, errors.IsPolicyViolation(ro.Delete(ctx, "Quote", "A;", tid.Empty)))
	_, err = ro.CreateCommon(ctx)
	assert.True(t, errors.IsPolicyViolation(err))

	cut := first.ID
	pinned := openSource(t, driver, inst, Options{Cutoff: &cut, KeepDB: true})
	assert.True(t, pinned.ReadOnly(), "a cutoff implies read-only")
	_, err = pinned.Save(ctx, &Quote{Symbol: "B"}, tid.Empty)
	require.Error(t, err)
	assert.True(t, errors.IsPolicyViolation(err))
	assert.NotEmpty(t, errors.GetAllHints(err))

	x, _ := loadX(t, pinned, "A;", tid.Empty)
	assert.Equal(t, int64(1), x)
}

func TestNonTemporal_SourcePolicy(t *testing.T) {
	ctx := context.Background()
	ds := newSource(t, Options{NonTemporal: true})

	first, err := ds.Save(ctx, &Quote{Symbol: "A", X: 1}, tid.Empty)
	require.NoError(t, err)
	_, err = ds.Save(ctx, &Quote{Symbol: "A", X: 2}, tid.Empty)
	require.NoError(t, err)

	_, found, err := ds.LoadByID(ctx, "Quote", first.ID)
	require.NoError(t, err)
	assert.False(t, found, "older version pruned")

	_, found = loadX(t, ds, "A;", tid.Empty, WithCutoff(first.ID))
	assert.False(t, found)
	x, _ := loadX(t, ds, "A;", tid.Empty)
	assert.Equal(t, int64(2), x)
}

func TestNonTemporal_DataSetFlag(t *testing.T) {
	ctx := context.Background()
	ds := newSource(t, Options{})
	common, err := ds.CreateCommon(ctx)
	require.NoError(t, err)
	scratch, err := ds.CreateDataSet(ctx, "scratch", []tid.TID{common}, common, NonTemporal())
	require.NoError(t, err)

	keep, err := ds.Save(ctx, &Quote{Symbol: "A", X: 1}, common)
	require.NoError(t, err)
	_, err = ds.Save(ctx, &Quote{Symbol: "A", X: 2}, common)
	require.NoError(t, err)
	drop, err := ds.Save(ctx, &Quote{Symbol: "A", X: 3}, scratch)
	require.NoError(t, err)
	_, err = ds.Save(ctx, &Quote{Symbol: "A", X: 4}, scratch)
	require.NoError(t, err)

	_, found, err := ds.LoadByID(ctx, "Quote", keep.ID)
	require.NoError(t, err)
	assert.True(t, found, "history kept in a temporal dataset")

	_, found, err = ds.LoadByID(ctx, "Quote", drop.ID)
	require.NoError(t, err)
	assert.False(t, found, "history pruned in a non-temporal dataset")

	// Parent versions are untouched by pruning in the child
	x, _ := loadX(t, ds, "A;", common)
	assert.Equal(t, int64(2), x)
	x, _ = loadX(t, ds, "A;", scratch)
	assert.Equal(t, int64(4), x)
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	driver := memory.NewDriver(nil)
	ds, err := New(testInstance(t), driver, testRegistry(), Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, Uninitialized, ds.State())
	_, err = uuid.Parse(ds.Session())
	assert.NoError(t, err)

	_, err = ds.Save(ctx, &Quote{Symbol: "A"}, tid.Empty)
	assert.True(t, errors.IsPolicyViolation(err), "writes need a ready source")
	_, _, err = ds.Load(ctx, "Quote", "A;", tid.Empty)
	assert.True(t, errors.IsPolicyViolation(err))

	require.NoError(t, ds.Init(ctx))
	assert.Equal(t, Ready, ds.State())
	assert.True(t, errors.IsPolicyViolation(ds.Init(ctx)), "init twice")

	_, err = ds.Save(ctx, &Quote{Symbol: "A"}, tid.Empty)
	require.NoError(t, err)
	require.NoError(t, ds.Close(ctx))
	assert.Equal(t, Disposed, ds.State())
	assert.NotContains(t, driver.Databases(), "test;fixture;TestLifecycle", "test database dropped on close")
	require.NoError(t, ds.Close(ctx), "close twice")

	_, _, err = ds.Load(ctx, "Quote", "A;", tid.Empty)
	assert.True(t, errors.IsPolicyViolation(err))
	assert.True(t, errors.IsPolicyViolation(ds.Init(ctx)))
}

func TestClose_KeepDB(t *testing.T) {
	ctx := context.Background()
	driver := memory.NewDriver(nil)
	ds, err := New(testInstance(t), driver, testRegistry(), Options{KeepDB: true}, nil)
	require.NoError(t, err)
	require.NoError(t, ds.Init(ctx))
	require.NoError(t, ds.Close(ctx))
	assert.Contains(t, driver.Databases(), "test;fixture;TestClose_KeepDB")
}

func TestNew_Validation(t *testing.T) {
	driver := memory.NewDriver(nil)
	_, err := New(Instance{Type: Test, Name: "a;b", Env: "e"}, driver, nil, Options{}, nil)
	assert.True(t, errors.IsPrecondition(err))
	_, err = New(Instance{Type: "staging", Name: "a", Env: "e"}, driver, nil, Options{}, nil)
	assert.True(t, errors.IsPrecondition(err))
	_, err = New(testInstance(t), nil, nil, Options{}, nil)
	assert.True(t, errors.IsPrecondition(err))
}

func TestLoadAs_DerivedAndMismatch(t *testing.T) {
	ctx := context.Background()
	ds := newSource(t, Options{})
	_, err := ds.Save(ctx, &FXQuote{Quote: Quote{Symbol: "EURUSD", X: 5}, Pair: "EUR/USD"}, tid.Empty)
	require.NoError(t, err)

	fx, found, err := LoadAs[FXQuote](ctx, ds, "EURUSD;", tid.Empty)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "EUR/USD", fx.Pair)

	base, found, err := LoadAs[Quote](ctx, ds, "EURUSD;", tid.Empty)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(5), base.X)

	_, err = ds.Save(ctx, &Quote{Symbol: "PLAIN"}, tid.Empty)
	require.NoError(t, err)
	_, _, err = LoadAs[FXQuote](ctx, ds, "PLAIN;", tid.Empty)
	assert.True(t, errors.IsTypeMismatch(err))

	_, _, err = ds.Load(ctx, "Unknown", "x", tid.Empty)
	assert.True(t, errors.IsTypeMismatch(err))
}

func TestServerRecord_LivesInRoot(t *testing.T) {
	ctx := context.Background()
	ds := newSource(t, Options{})
	common, err := ds.CreateCommon(ctx)
	require.NoError(t, err)

	rec, err := ds.Save(ctx, &MongoServer{ServerID: "east", Hosts: []string{"db1:27017", "db2"}}, common)
	require.NoError(t, err)
	assert.Equal(t, tid.Empty, rec.DataSet)

	srv, found, err := LoadAs[MongoServer](ctx, ds, "east", common)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "mongodb://db1:27017,db2/", srv.URI())
}

func TestLoadByQuery(t *testing.T) {
	ctx := context.Background()
	ds := newSource(t, Options{})
	common, err := ds.CreateCommon(ctx)
	require.NoError(t, err)
	child, err := ds.CreateDataSet(ctx, "child", []tid.TID{common}, common)
	require.NoError(t, err)

	for i, sym := range []string{"a", "b", "c", "d"} {
		_, err := ds.Save(ctx, &Quote{Symbol: sym, X: int64(i)}, common)
		require.NoError(t, err)
	}
	_, err = ds.Save(ctx, &Quote{Symbol: "b", X: 10}, child)
	require.NoError(t, err)
	require.NoError(t, ds.Delete(ctx, "Quote", "c;", child))
	_, err = ds.Save(ctx, &FXQuote{Quote: Quote{Symbol: "e", X: 20}, Pair: "E"}, common)
	require.NoError(t, err)

	collect := func(q *query.Query) []string {
		cur, err := ds.LoadByQuery(ctx, q)
		require.NoError(t, err)
		recs, err := cur.All(ctx)
		require.NoError(t, err)
		var keys []string
		for _, r := range recs {
			keys = append(keys, r.Key)
		}
		return keys
	}

	assert.Equal(t, []string{"a;", "b;", "d;", "e;"}, collect(query.New("Quote").InDataSet(child)))
	assert.Equal(t, []string{"a;", "b;", "c;", "d;", "e;"}, collect(query.New("Quote").InDataSet(common)))
	assert.Equal(t, []string{"e;", "b;"}, collect(query.New("Quote").InDataSet(child).Gte("X", 4).SortByDescending("X")))
	assert.Equal(t, []string{"e;"}, collect(query.New("FXQuote").InDataSet(child)))
	assert.Equal(t, []string{"b;"}, collect(query.New("Quote").InDataSet(child).Key("b;")))

	_, err = ds.LoadByQuery(ctx, query.New("Quote").Gt("_id", tid.Empty))
	assert.True(t, errors.IsPrecondition(err))
}

// flakyDriver wraps memory collections so inserts, or deletes when
// failDelete is set, can be made to fail.
type flakyDriver struct {
	*memory.Driver
	fail       *bool
	failDelete *bool
}

func (d flakyDriver) Open(ctx context.Context, name string) (docstore.Store, error) {
	s, err := d.Driver.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return flakyStore{Store: s, fail: d.fail, failDelete: d.failDelete}, nil
}

type flakyStore struct {
	docstore.Store
	fail       *bool
	failDelete *bool
}

func (s flakyStore) Collection(ctx context.Context, name string) (docstore.Collection, error) {
	c, err := s.Store.Collection(ctx, name)
	if err != nil {
		return nil, err
	}
	return flakyCollection{Collection: c, fail: s.fail, failDelete: s.failDelete}, nil
}

type flakyCollection struct {
	docstore.Collection
	fail       *bool
	failDelete *bool
}

func (c flakyCollection) Insert(ctx context.Context, doc *value.Document) error {
	if *c.fail {
		return errors.MarkTransientIO(errors.New("i/o timeout"), "insert into %s", c.Name())
	}
	return c.Collection.Insert(ctx, doc)
}

func (c flakyCollection) DeleteMany(ctx context.Context, filter docstore.Filter) (int64, error) {
	if c.failDelete != nil && *c.failDelete {
		return 0, errors.MarkTransientIO(errors.New("timeout"), "delete from %s", c.Name())
	}
	return c.Collection.DeleteMany(ctx, filter)
}

func TestFailedWrite_LeavesCacheUntouched(t *testing.T) {
	ctx := context.Background()
	fail := false
	ds := openSource(t, flakyDriver{Driver: memory.NewDriver(nil), fail: &fail}, testInstance(t), Options{})

	_, err := ds.Save(ctx, &Quote{Symbol: "A", X: 1}, tid.Empty)
	require.NoError(t, err)

	fail = true
	_, err = ds.Save(ctx, &Quote{Symbol: "A", X: 2}, tid.Empty)
	require.Error(t, err)
	assert.True(t, errors.IsTransientIO(err))
	assert.Contains(t, err.Error(), `"A;"`)
	assert.True(t, errors.IsTransientIO(ds.Delete(ctx, "Quote", "A;", tid.Empty)))

	fail = false
	x, found := loadX(t, ds, "A;", tid.Empty)
	require.True(t, found)
	assert.Equal(t, int64(1), x)
}

func TestFailedPrune_CacheServesNewVersion(t *testing.T) {
	ctx := context.Background()
	never, failDelete := false, false
	driver := memory.NewDriver(nil)
	inst := testInstance(t)
	ds := openSource(t, flakyDriver{Driver: driver, fail: &never, failDelete: &failDelete}, inst, Options{NonTemporal: true, KeepDB: true})

	common, err := ds.CreateCommon(ctx)
	require.NoError(t, err)
	child, err := ds.CreateDataSet(ctx, "child", []tid.TID{common}, common)
	require.NoError(t, err)
	v1, err := ds.Save(ctx, &Quote{Symbol: "A", X: 1}, common)
	require.NoError(t, err)
	x, _ := loadX(t, ds, "A;", child)
	require.Equal(t, int64(1), x)

	failDelete = true
	_, err = ds.Save(ctx, &Quote{Symbol: "A", X: 2}, common)
	require.Error(t, err)
	assert.True(t, errors.IsTransientIO(err))
	assert.Contains(t, err.Error(), "was saved")
	assert.NotEmpty(t, errors.GetAllHints(err))

	x, _ = loadX(t, ds, "A;", child)
	assert.Equal(t, int64(2), x, "the child view drops the superseded version")
	x, _ = loadX(t, ds, "A;", common)
	assert.Equal(t, int64(2), x)

	// The store agrees with the cache
	fresh := openSource(t, driver, inst, Options{})
	x, _ = loadX(t, fresh, "A;", child)
	assert.Equal(t, int64(2), x)

	_, found, err := fresh.LoadByID(ctx, "Quote", v1.ID)
	require.NoError(t, err)
	assert.True(t, found, "the failed prune kept the first version")

	// The next successful save prunes every older version
	failDelete = false
	_, err = ds.Save(ctx, &Quote{Symbol: "A", X: 3}, common)
	require.NoError(t, err)
	_, found, err = fresh.LoadByID(ctx, "Quote", v1.ID)
	require.NoError(t, err)
	assert.False(t, found)
	x, found = loadX(t, fresh, "A;", common, WithCutoff(tid.Max))
	require.True(t, found)
	assert.Equal(t, int64(3), x)
}

func TestSQLiteBackend_EndToEnd(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	inst := Instance{Type: Test, Name: "fixture", Env: "sqlite"}
	ds := openSource(t, sqlite.NewDriver(dir, nil), inst, Options{KeepDB: true})

	common, err := ds.CreateCommon(ctx)
	require.NoError(t, err)
	child, err := ds.CreateDataSet(ctx, "child", []tid.TID{common}, common)
	require.NoError(t, err)
	_, err = ds.Save(ctx, &Quote{Symbol: "K", X: 1}, common)
	require.NoError(t, err)
	_, err = ds.Save(ctx, &Quote{Symbol: "K", X: 9}, child)
	require.NoError(t, err)
	require.NoError(t, ds.Close(ctx))

	// A new session reads everything back from disk
	again := openSource(t, sqlite.NewDriver(dir, nil), inst, Options{})
	leaf, err := again.ResolveDataSet(ctx, "common/child")
	require.NoError(t, err)
	assert.Equal(t, child, leaf)
	x, _ := loadX(t, again, "K;", leaf)
	assert.Equal(t, int64(9), x)
	x, _ = loadX(t, again, "K;", common)
	assert.Equal(t, int64(1), x)
}
