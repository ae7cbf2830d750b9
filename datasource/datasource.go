// Package datasource is the facade applications use to save, load, delete and
// query records.
//
// A DataSource owns one database connection, the dataset DAG cache and a
// per-key record cache. Writes populate the cache before returning, so a
// load after a save on the same DataSource sees the saved version. A
// DataSource is not meant to be shared between goroutines without external
// synchronization; its internal mutex only keeps the maps consistent.
//
// Lifecycle:
//
//	uninitialized --Init--> initializing --> ready --Close--> disposed
//
// Closing a test instance drops its database unless Options.KeepDB is set.
package datasource

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/strata/dataset"
	"github.com/teranos/strata/docstore"
	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/logger"
	"github.com/teranos/strata/lookup"
	"github.com/teranos/strata/record"
	"github.com/teranos/strata/tid"
)

// State is a lifecycle stage.
type State int

const (
	Uninitialized State = iota
	Initializing
	Ready
	Disposed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case Disposed:
		return "disposed"
	}
	return "unknown"
}

// Options are the data source policies.
type Options struct {
	// ReadOnly refuses every write.
	ReadOnly bool `mapstructure:"read_only" toml:"read_only" yaml:"read_only"`

	// NonTemporal prunes older versions of a key in its dataset on every save.
	NonTemporal bool `mapstructure:"non_temporal" toml:"non_temporal" yaml:"non_temporal"`

	// KeepDB keeps a test database when the data source closes.
	KeepDB bool `mapstructure:"keep_db" toml:"keep_db" yaml:"keep_db"`

	// Cutoff pins every read to a point in time. A pinned source is read-only.
	Cutoff *tid.TID `mapstructure:"-" toml:"-" yaml:"-"`
}

// Index names created on every collection.
const (
	IndexKeyDataSetID = "key_dataset_id"
	IndexID           = "id"
)

var collectionIndexes = []docstore.Index{
	{
		Name: IndexKeyDataSetID,
		Keys: []docstore.SortKey{
			{Field: record.FieldKey},
			{Field: record.FieldDataSet},
			{Field: record.FieldID, Desc: true},
		},
	},
	{
		Name: IndexID,
		Keys: []docstore.SortKey{{Field: record.FieldID}},
	},
}

// DataSource is a session on one database.
type DataSource struct {
	instance Instance
	driver   docstore.Driver
	reg      *record.Registry
	opts     Options
	engine   *lookup.Engine
	session  string
	log      *zap.SugaredLogger

	mu          sync.Mutex
	state       State
	store       docstore.Store
	collections map[string]docstore.Collection
	cache       map[cacheKey]cached
	dag         *dataset.DAG
	dataSets    map[tid.TID]*dataset.DataSet
	handlers    map[string]map[string]Handler
}

// New creates an uninitialized data source. The dataset and server record
// types are added to reg if missing. log may be nil.
func New(instance Instance, driver docstore.Driver, reg *record.Registry, opts Options, log *zap.SugaredLogger) (*DataSource, error) {
	if driver == nil {
		return nil, errors.NewPrecondition("data source needs a driver")
	}
	if reg == nil {
		reg = record.NewRegistry()
	}
	if err := instance.Validate(driver.Separator()); err != nil {
		return nil, err
	}
	if err := Register(reg); err != nil {
		return nil, err
	}

	session := uuid.NewString()
	ds := &DataSource{
		instance: instance,
		driver:   driver,
		reg:      reg,
		opts:     opts,
		session:  session,
		log: logger.ChildLogger(logger.OrNop(log),
			logger.FieldSession, session,
			logger.FieldDriver, driver.Name(),
		),
		state:       Uninitialized,
		collections: make(map[string]docstore.Collection),
		cache:       make(map[cacheKey]cached),
		dag:         dataset.NewDAG(),
		dataSets:    make(map[tid.TID]*dataset.DataSet),
		handlers:    make(map[string]map[string]Handler),
	}
	ds.engine = lookup.New(reg, ds.log)
	ds.registerBuiltinHandlers()
	return ds, nil
}

// Init opens the database. Collections and their indexes are created on
// first use.
func (ds *DataSource) Init(ctx context.Context) error {
	ds.mu.Lock()
	if ds.state != Uninitialized {
		state := ds.state
		ds.mu.Unlock()
		return errors.NewPolicyViolation("init: data source is %s", state)
	}
	ds.state = Initializing
	ds.mu.Unlock()

	name, err := ds.instance.DBName(ds.driver.Separator())
	if err == nil {
		var store docstore.Store
		store, err = ds.driver.Open(ctx, name)
		if err == nil {
			ds.mu.Lock()
			ds.store = store
			ds.state = Ready
			ds.mu.Unlock()
			ds.log.Infow("Data source ready", logger.FieldDatabase, name, logger.FieldState, Ready)
			return nil
		}
	}

	ds.mu.Lock()
	ds.state = Uninitialized
	ds.mu.Unlock()
	return errors.Wrapf(err, "init data source %s", ds.instance)
}

// Close releases the connection. A test instance's database is dropped first
// unless KeepDB is set. Closing twice is a no-op.
func (ds *DataSource) Close(ctx context.Context) error {
	ds.mu.Lock()
	prev, store := ds.state, ds.store
	ds.state = Disposed
	ds.store = nil
	ds.collections = make(map[string]docstore.Collection)
	ds.cache = make(map[cacheKey]cached)
	ds.mu.Unlock()

	if prev != Ready || store == nil {
		return nil
	}
	var dropErr error
	if ds.instance.IsTest() && !ds.opts.KeepDB {
		dropErr = store.DropDatabase(ctx)
		if dropErr == nil {
			ds.log.Infow("Dropped test database", logger.FieldDatabase, store.Name())
		}
	}
	if err := store.Close(ctx); err != nil {
		return errors.Wrapf(err, "close %s", store.Name())
	}
	ds.log.Infow("Data source disposed", logger.FieldDatabase, store.Name())
	return errors.Wrapf(dropErr, "drop %s on close", store.Name())
}

// DeleteDB drops the database of a test instance. Any other instance type
// is refused before the store is touched.
func (ds *DataSource) DeleteDB(ctx context.Context) error {
	if !ds.instance.IsTest() {
		ds.log.Warnw("Refused to drop a non-test database", "instance", ds.instance.String())
		return errors.WithHint(
			errors.NewPolicyViolation("delete db: instance %s is not a test instance", ds.instance),
			"only test instances can be dropped")
	}
	store, err := ds.ready("delete db")
	if err != nil {
		return err
	}
	if err := store.DropDatabase(ctx); err != nil {
		return errors.Wrapf(err, "delete db %s", store.Name())
	}

	ds.mu.Lock()
	ds.collections = make(map[string]docstore.Collection)
	ds.cache = make(map[cacheKey]cached)
	ds.dataSets = make(map[tid.TID]*dataset.DataSet)
	ds.mu.Unlock()
	ds.dag.Reset()

	ds.log.Infow("Dropped database", logger.FieldDatabase, store.Name())
	return nil
}

// State returns the lifecycle stage.
func (ds *DataSource) State() State {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.state
}

// Instance returns the instance descriptor.
func (ds *DataSource) Instance() Instance { return ds.instance }

// Options returns the policy flags.
func (ds *DataSource) Options() Options { return ds.opts }

// Registry returns the type registry.
func (ds *DataSource) Registry() *record.Registry { return ds.reg }

// Session returns the id tagging this data source's log lines.
func (ds *DataSource) Session() string { return ds.session }

// ReadOnly reports whether writes are refused, either by policy or because
// reads are pinned to a cutoff.
func (ds *DataSource) ReadOnly() bool {
	return ds.opts.ReadOnly || ds.opts.Cutoff != nil
}

// cutoff is the read cutoff when a call gives none.
func (ds *DataSource) cutoff() tid.TID {
	if ds.opts.Cutoff != nil {
		return *ds.opts.Cutoff
	}
	return tid.Max
}

func (ds *DataSource) ready(op string) (docstore.Store, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.state != Ready {
		return nil, errors.NewPolicyViolation("%s: data source is %s", op, ds.state)
	}
	return ds.store, nil
}

func (ds *DataSource) writable(op string) (docstore.Store, error) {
	store, err := ds.ready(op)
	if err != nil {
		return nil, err
	}
	if ds.ReadOnly() {
		ds.log.Warnw("Refused write on read-only data source", logger.FieldOperation, op)
		hint := "open the data source without read_only"
		if ds.opts.Cutoff != nil {
			hint = "a data source pinned to a cutoff cannot write"
		}
		return nil, errors.WithHint(errors.NewPolicyViolation("%s: data source is read-only", op), hint)
	}
	return store, nil
}

// collection returns the named collection, creating its indexes the first
// time it is used in this session.
func (ds *DataSource) collection(ctx context.Context, store docstore.Store, name string) (docstore.Collection, error) {
	ds.mu.Lock()
	c, ok := ds.collections[name]
	ds.mu.Unlock()
	if ok {
		return c, nil
	}

	c, err := store.Collection(ctx, name)
	if err != nil {
		return nil, errors.Wrapf(err, "open collection %s", name)
	}
	for _, idx := range collectionIndexes {
		if err := c.EnsureIndex(ctx, idx); err != nil {
			return nil, errors.Wrapf(err, "index %s on %s", idx.Name, name)
		}
	}

	ds.mu.Lock()
	ds.collections[name] = c
	ds.mu.Unlock()
	ds.log.Debugw("Opened collection", logger.FieldCollection, name)
	return c, nil
}
