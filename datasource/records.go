package datasource

import (
	"context"
	"reflect"

	"github.com/teranos/strata/dataset"
	"github.com/teranos/strata/docstore"
	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/logger"
	"github.com/teranos/strata/lookup"
	"github.com/teranos/strata/query"
	"github.com/teranos/strata/record"
	"github.com/teranos/strata/tid"
	"github.com/teranos/strata/value"
)

// cacheKey addresses the live version of a key as seen from a leaf dataset.
type cacheKey struct {
	collection string
	key        string
	leaf       tid.TID
}

// cached is a resolved load. A nil rec records that the key is absent.
type cached struct {
	dataSet tid.TID
	rec     *record.Record
}

// LoadOption adjusts a single load.
type LoadOption func(*loadConfig)

type loadConfig struct {
	cutoff *tid.TID
}

// WithCutoff reads the version current at cutoff. Such reads bypass the cache.
func WithCutoff(cutoff tid.TID) LoadOption {
	return func(c *loadConfig) { c.cutoff = &cutoff }
}

// Save writes data as a new version in dataSet under the key built from its
// key fields. It returns the saved envelope.
func (ds *DataSource) Save(ctx context.Context, data any, dataSet tid.TID) (*record.Record, error) {
	key, err := ds.reg.Key(data)
	if err != nil {
		return nil, err
	}
	return ds.SaveRecord(ctx, key, data, dataSet)
}

// SaveRecord writes data under an explicit key.
func (ds *DataSource) SaveRecord(ctx context.Context, key string, data any, dataSet tid.TID) (*record.Record, error) {
	store, err := ds.writable("save")
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, errors.NewPrecondition("save: key is empty")
	}
	ti, err := ds.reg.TypeOf(data)
	if err != nil {
		return nil, err
	}
	if ti.RootDataSet {
		dataSet = tid.Empty
	}
	if rv := reflect.ValueOf(data); rv.Kind() != reflect.Ptr {
		p := reflect.New(rv.Type())
		p.Elem().Set(rv)
		data = p.Interface()
	}

	rec := &record.Record{
		ID:      tid.New(),
		DataSet: dataSet,
		Key:     key,
		Type:    append([]string(nil), ti.Chain...),
		Data:    data,
	}
	if v, ok := data.(record.SaveValidator); ok {
		if err := v.ValidateSave(rec.ID, rec.DataSet); err != nil {
			return nil, errors.Wrapf(err, "save %s %q in %s", ti.Name, key, dataSet)
		}
	}
	if d, ok := data.(*dataset.DataSet); ok {
		if err := ds.checkParents(ctx, d); err != nil {
			return nil, errors.Wrapf(err, "save %s %q in %s", ti.Name, key, dataSet)
		}
	}
	// The caller keeps its struct; the cache holds an independent copy
	rec = rec.Clone()

	if err := ds.write(ctx, store, ti.Collection(), rec); err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

// Delete writes a tombstone for key in dataSet. Older versions stay in the
// store and remain visible to reads with an earlier cutoff.
func (ds *DataSource) Delete(ctx context.Context, typeName, key string, dataSet tid.TID) error {
	store, err := ds.writable("delete")
	if err != nil {
		return err
	}
	ti, ok := ds.reg.Lookup(typeName)
	if !ok {
		return errors.NewTypeMismatch("delete: type %s is not registered", typeName)
	}
	if key == "" {
		return errors.NewPrecondition("delete %s: key is empty", typeName)
	}
	if ti.RootDataSet {
		dataSet = tid.Empty
	}

	rec := record.NewDeleted(key)
	rec.ID, rec.DataSet = tid.New(), dataSet
	return ds.write(ctx, store, ti.Collection(), rec)
}

// write inserts rec, updates the cache and then prunes history under the
// non-temporal policy. Nothing is cached when the insert fails. A failed prune
// is reported after the cache already serves the new version.
func (ds *DataSource) write(ctx context.Context, store docstore.Store, collName string, rec *record.Record) error {
	coll, err := ds.collection(ctx, store, collName)
	if err != nil {
		return err
	}
	doc, err := ds.reg.Encode(rec)
	if err != nil {
		return err
	}
	if err := coll.Insert(ctx, doc); err != nil {
		return errors.Wrapf(err, "save %s %q in %s as %s", rec.TypeName(), rec.Key, rec.DataSet, rec.ID)
	}

	var live *record.Record
	if !rec.IsDeleted() {
		live = rec
	}
	ds.mu.Lock()
	for k := range ds.cache {
		if k.collection == collName && k.key == rec.Key && k.leaf != rec.DataSet {
			delete(ds.cache, k)
		}
	}
	ds.cache[cacheKey{collection: collName, key: rec.Key, leaf: rec.DataSet}] = cached{dataSet: rec.DataSet, rec: live}
	ds.mu.Unlock()

	ds.log.Debugw("Saved record",
		logger.FieldType, rec.TypeName(),
		logger.FieldKey, rec.Key,
		logger.FieldDataSet, rec.DataSet,
		logger.FieldTID, rec.ID)

	if err := ds.prune(ctx, coll, rec); err != nil {
		ds.log.Warnw("Saved record but kept older versions",
			logger.FieldKey, rec.Key, logger.FieldDataSet, rec.DataSet, logger.FieldTID, rec.ID, logger.FieldError, err)
		return errors.WithHint(
			errors.Wrapf(err, "%s %q was saved in %s as %s but older versions were not pruned", rec.TypeName(), rec.Key, rec.DataSet, rec.ID),
			"the new version is live; the next save of this key prunes again")
	}
	return nil
}

// prune deletes versions of rec's key in rec's dataset older than rec when
// the dataset is non-temporal.
func (ds *DataSource) prune(ctx context.Context, coll docstore.Collection, rec *record.Record) error {
	nonTemporal, err := ds.nonTemporal(ctx, rec.DataSet)
	if err != nil || !nonTemporal {
		return err
	}
	n, err := coll.DeleteMany(ctx, docstore.Filter{
		docstore.Eq(record.FieldKey, value.String(rec.Key)),
		docstore.Eq(record.FieldDataSet, value.TID(rec.DataSet)),
		{Field: record.FieldID, Op: docstore.OpLt, Value: value.TID(rec.ID)},
	})
	if err != nil {
		return errors.Wrapf(err, "prune history of %q in %s", rec.Key, rec.DataSet)
	}
	if n > 0 {
		ds.log.Debugw("Pruned older versions", logger.FieldKey, rec.Key, logger.FieldDataSet, rec.DataSet, logger.FieldCount, n)
	}
	return nil
}

// nonTemporal reports whether writes into dataSet keep only the latest version.
func (ds *DataSource) nonTemporal(ctx context.Context, dataSet tid.TID) (bool, error) {
	if ds.opts.NonTemporal {
		return true, nil
	}
	if dataSet == tid.Empty {
		return false, nil
	}
	d, found, err := ds.dataSetRecord(ctx, dataSet)
	if err != nil || !found {
		return false, err
	}
	return d.NonTemporal, nil
}

// Load returns the live version of key as seen from leaf. found is false when
// the key has no version or its live version is a tombstone.
func (ds *DataSource) Load(ctx context.Context, typeName, key string, leaf tid.TID, opts ...LoadOption) (*record.Record, bool, error) {
	store, err := ds.ready("load")
	if err != nil {
		return nil, false, err
	}
	ti, ok := ds.reg.Lookup(typeName)
	if !ok {
		return nil, false, errors.NewTypeMismatch("load: type %s is not registered", typeName)
	}
	var cfg loadConfig
	for _, o := range opts {
		o(&cfg)
	}

	ck := cacheKey{collection: ti.Collection(), key: key, leaf: leaf}
	useCache := cfg.cutoff == nil
	if useCache {
		ds.mu.Lock()
		hit, ok := ds.cache[ck]
		ds.mu.Unlock()
		if ok {
			if hit.rec == nil {
				return nil, false, nil
			}
			return checkType(ti, hit.rec.Clone())
		}
	}

	cutoff := ds.cutoff()
	if cfg.cutoff != nil {
		cutoff = *cfg.cutoff
	}
	vis, err := ds.Visibility(ctx, leaf)
	if err != nil {
		return nil, false, err
	}
	coll, err := ds.collection(ctx, store, ti.Collection())
	if err != nil {
		return nil, false, err
	}
	rec, found, err := ds.engine.LoadByKey(ctx, coll, key, vis, cutoff)
	if err != nil {
		return nil, false, errors.Wrapf(err, "load %s in %s", typeName, leaf)
	}

	if useCache {
		entry := cached{dataSet: leaf}
		if found {
			entry = cached{dataSet: rec.DataSet, rec: rec}
		}
		ds.mu.Lock()
		ds.cache[ck] = entry
		ds.mu.Unlock()
	}
	if !found {
		return nil, false, nil
	}
	return checkType(ti, rec.Clone())
}

// checkType verifies that rec is ti or derives from it.
func checkType(ti *record.TypeInfo, rec *record.Record) (*record.Record, bool, error) {
	for _, t := range rec.Type {
		if t == ti.Name {
			return rec, true, nil
		}
	}
	return nil, false, errors.NewTypeMismatch("record %q (%s) is a %s, not a %s", rec.Key, rec.ID, rec.TypeName(), ti.Name)
}

// LoadAs loads key as the registered struct T. A record of a type derived
// from T yields its embedded T.
func LoadAs[T any](ctx context.Context, ds *DataSource, key string, leaf tid.TID, opts ...LoadOption) (*T, bool, error) {
	ti, err := ds.reg.TypeOf(new(T))
	if err != nil {
		return nil, false, err
	}
	rec, found, err := ds.Load(ctx, ti.Name, key, leaf, opts...)
	if err != nil || !found {
		return nil, found, err
	}
	out, ok := as[T](rec.Data)
	if !ok {
		return nil, false, errors.NewTypeMismatch("record %q holds %T, not %s", key, rec.Data, ti.Name)
	}
	return out, true, nil
}

// as returns data as *T, descending into embedded structs.
func as[T any](data any) (*T, bool) {
	if t, ok := data.(*T); ok {
		return t, true
	}
	rv := reflect.ValueOf(data)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return nil, false
	}
	want := reflect.TypeOf((*T)(nil)).Elem()
	return findEmbedded[T](rv.Elem(), want)
}

func findEmbedded[T any](rv reflect.Value, want reflect.Type) (*T, bool) {
	if rv.Kind() != reflect.Struct {
		return nil, false
	}
	for i := 0; i < rv.NumField(); i++ {
		sf := rv.Type().Field(i)
		if !sf.Anonymous {
			continue
		}
		f := rv.Field(i)
		if sf.Type == want {
			return f.Addr().Interface().(*T), true
		}
		if t, ok := findEmbedded[T](f, want); ok {
			return t, true
		}
	}
	return nil, false
}

// LoadByID returns the version with id. Tombstone versions are returned as
// records with IsDeleted set.
func (ds *DataSource) LoadByID(ctx context.Context, typeName string, id tid.TID) (*record.Record, bool, error) {
	store, err := ds.ready("load by id")
	if err != nil {
		return nil, false, err
	}
	ti, ok := ds.reg.Lookup(typeName)
	if !ok {
		return nil, false, errors.NewTypeMismatch("load by id: type %s is not registered", typeName)
	}
	coll, err := ds.collection(ctx, store, ti.Collection())
	if err != nil {
		return nil, false, err
	}
	return ds.engine.LoadByID(ctx, coll, id)
}

// LoadByQuery streams the live records matching q. It does not use the cache.
func (ds *DataSource) LoadByQuery(ctx context.Context, q *query.Query) (*lookup.Cursor, error) {
	store, err := ds.ready("query")
	if err != nil {
		return nil, err
	}
	vis, err := ds.Visibility(ctx, q.DataSet())
	if err != nil {
		return nil, err
	}
	collName, spec, err := q.Compile(ds.reg, vis, ds.cutoff())
	if err != nil {
		return nil, err
	}
	coll, err := ds.collection(ctx, store, collName)
	if err != nil {
		return nil, err
	}
	return ds.engine.Query(ctx, coll, spec)
}
