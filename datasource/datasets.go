package datasource

import (
	"context"
	"strings"

	"github.com/teranos/strata/dataset"
	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/logger"
	"github.com/teranos/strata/tid"
)

// DataSetOption configures a dataset at creation.
type DataSetOption func(*dataset.DataSet)

// NonTemporal makes every save into the dataset replace earlier versions.
func NonTemporal() DataSetOption {
	return func(d *dataset.DataSet) { d.NonTemporal = true }
}

// CreateDataSet saves a dataset named id with parents into saveTo and returns
// its TID. Every parent must be an existing dataset older than the new one.
func (ds *DataSource) CreateDataSet(ctx context.Context, id string, parents []tid.TID, saveTo tid.TID, opts ...DataSetOption) (tid.TID, error) {
	d := &dataset.DataSet{DataSetID: id, Parents: append([]tid.TID(nil), parents...)}
	for _, o := range opts {
		o(d)
	}
	rec, err := ds.Save(ctx, d, saveTo)
	if err != nil {
		return tid.Empty, errors.Wrapf(err, "create dataset %s", id)
	}
	ds.remember(rec.ID, d)
	ds.log.Infow("Created dataset", logger.FieldDataSetID, id, logger.FieldTID, rec.ID, logger.FieldDataSet, saveTo)
	return rec.ID, nil
}

// CreateCommon creates the common dataset in the root.
func (ds *DataSource) CreateCommon(ctx context.Context) (tid.TID, error) {
	return ds.CreateDataSet(ctx, dataset.CommonID, nil, tid.Empty)
}

// GetDataSet returns the TID of the dataset named id, looked up from leaf.
// A missing dataset is an error.
func (ds *DataSource) GetDataSet(ctx context.Context, id string, leaf tid.TID) (tid.TID, error) {
	found, ok, err := ds.findDataSet(ctx, id, leaf)
	if err != nil {
		return tid.Empty, err
	}
	if !ok {
		return tid.Empty, errors.WithHintf(
			errors.NewNotFound("dataset %s not found from %s", id, leaf),
			"create it with: strata dataset create %s", id)
	}
	return found, nil
}

// GetDataSetOrEmpty is GetDataSet returning the root dataset when id does
// not exist.
func (ds *DataSource) GetDataSetOrEmpty(ctx context.Context, id string, leaf tid.TID) (tid.TID, error) {
	found, _, err := ds.findDataSet(ctx, id, leaf)
	return found, err
}

// ResolveDataSet walks a slash-separated path of dataset names from the
// root: "common/child" is the dataset child saved into common. An empty path
// is the root dataset.
func (ds *DataSource) ResolveDataSet(ctx context.Context, path string) (tid.TID, error) {
	leaf := tid.Empty
	for _, name := range strings.Split(path, "/") {
		if name == "" {
			continue
		}
		next, err := ds.GetDataSet(ctx, name, leaf)
		if err != nil {
			return tid.Empty, err
		}
		leaf = next
	}
	return leaf, nil
}

// checkParents requires every parent of d to be a saved dataset.
func (ds *DataSource) checkParents(ctx context.Context, d *dataset.DataSet) error {
	for _, p := range d.Parents {
		if p == tid.Empty {
			continue
		}
		_, found, err := ds.dataSetRecord(ctx, p)
		if err != nil {
			return err
		}
		if !found {
			return errors.WithHintf(
				errors.NewPrecondition("dataset %s: parent %s is not a saved dataset", d.DataSetID, p),
				"pass TIDs returned by CreateDataSet or GetDataSet")
		}
	}
	return nil
}

func (ds *DataSource) findDataSet(ctx context.Context, id string, leaf tid.TID) (tid.TID, bool, error) {
	rec, found, err := ds.Load(ctx, dataset.TypeName, id, leaf)
	if err != nil || !found {
		return tid.Empty, false, err
	}
	d, ok := rec.Data.(*dataset.DataSet)
	if !ok {
		return tid.Empty, false, errors.NewTypeMismatch("dataset %s holds %T", id, rec.Data)
	}
	ds.remember(rec.ID, d)
	return rec.ID, true, nil
}

// Visibility returns the override order of leaf.
func (ds *DataSource) Visibility(ctx context.Context, leaf tid.TID) (dataset.Visibility, error) {
	vis, err := ds.dag.Visibility(ctx, leaf, ds.resolveParents)
	if err != nil {
		return dataset.Visibility{}, errors.Wrapf(err, "visibility of %s", leaf)
	}
	return vis, nil
}

// DataSetName returns the name of a known dataset.
func (ds *DataSource) DataSetName(ctx context.Context, id tid.TID) (string, error) {
	if id == tid.Empty {
		return "", nil
	}
	d, found, err := ds.dataSetRecord(ctx, id)
	if err != nil {
		return "", err
	}
	if !found {
		return "", errors.NewNotFound("dataset %s not found", id)
	}
	return d.DataSetID, nil
}

// RefreshDataSets forgets every cached dataset so later reads see datasets
// written by other processes.
func (ds *DataSource) RefreshDataSets() {
	ds.dag.Reset()
	ds.mu.Lock()
	ds.dataSets = make(map[tid.TID]*dataset.DataSet)
	for k := range ds.cache {
		if k.collection == dataset.TypeName {
			delete(ds.cache, k)
		}
	}
	ds.mu.Unlock()
	ds.log.Debugw("Refreshed dataset cache")
}

func (ds *DataSource) remember(id tid.TID, d *dataset.DataSet) {
	ds.dag.Add(id, d.Parents)
	ds.mu.Lock()
	ds.dataSets[id] = d
	ds.mu.Unlock()
}

func (ds *DataSource) resolveParents(ctx context.Context, id tid.TID) ([]tid.TID, bool, error) {
	d, found, err := ds.dataSetRecord(ctx, id)
	if err != nil || !found {
		return nil, found, err
	}
	return d.Parents, true, nil
}

// dataSetRecord returns the dataset record with version id.
func (ds *DataSource) dataSetRecord(ctx context.Context, id tid.TID) (*dataset.DataSet, bool, error) {
	ds.mu.Lock()
	d, ok := ds.dataSets[id]
	ds.mu.Unlock()
	if ok {
		return d, true, nil
	}

	rec, found, err := ds.LoadByID(ctx, dataset.TypeName, id)
	if err != nil || !found || rec.IsDeleted() {
		return nil, false, err
	}
	d, ok = rec.Data.(*dataset.DataSet)
	if !ok {
		return nil, false, errors.NewTypeMismatch("record %s is a %s, not a dataset", id, rec.TypeName())
	}
	ds.remember(id, d)
	return d, true, nil
}
