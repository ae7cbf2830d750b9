// Package lookup resolves keys to their live version.
//
// A key may have versions in several datasets of a visibility set. For each
// visible dataset the candidate is its newest version at or before the
// cutoff; among candidates the dataset earliest in override order wins, so a
// child's write shadows its ancestors even when an ancestor wrote later. A
// winning tombstone makes the key absent.
package lookup

import (
	"context"

	"go.uber.org/zap"

	"github.com/teranos/strata/dataset"
	"github.com/teranos/strata/docstore"
	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/logger"
	"github.com/teranos/strata/record"
	"github.com/teranos/strata/tid"
	"github.com/teranos/strata/value"
)

// Engine runs lookups against collections of one registry's types.
type Engine struct {
	reg *record.Registry
	log *zap.SugaredLogger
}

// New creates an engine decoding with reg.
func New(reg *record.Registry, log *zap.SugaredLogger) *Engine {
	return &Engine{reg: reg, log: logger.OrNop(log)}
}

// effective narrows vis for a cutoff. Cutoff Empty selects the root dataset
// without bounding ids.
func effective(vis dataset.Visibility, cutoff tid.TID) dataset.Visibility {
	if cutoff == tid.Empty || vis.Len() == 0 {
		return dataset.Root()
	}
	return vis
}

// scope is the filter restricting a query to vis as of cutoff.
func scope(vis dataset.Visibility, cutoff tid.TID) docstore.Filter {
	sets := make([]value.Value, len(vis.Order))
	for i, d := range vis.Order {
		sets[i] = value.TID(d)
	}
	f := docstore.Filter{docstore.In(record.FieldDataSet, sets...)}
	if cutoff != tid.Empty {
		f = append(f, docstore.Lte(record.FieldID, value.TID(cutoff)))
	}
	return f
}

// LoadByKey returns the live version of key in vis as of cutoff. found is
// false when no visible dataset has a version or the winner is a tombstone.
func (e *Engine) LoadByKey(ctx context.Context, coll docstore.Collection, key string, vis dataset.Visibility, cutoff tid.TID) (*record.Record, bool, error) {
	if key == "" {
		return nil, false, errors.NewPrecondition("collection %s: key is empty", coll.Name())
	}
	vis = effective(vis, cutoff)

	filter := append(docstore.Filter{docstore.Eq(record.FieldKey, value.String(key))}, scope(vis, cutoff)...)
	cur, err := coll.Find(ctx, docstore.Query{
		Filter: filter,
		Sort:   []docstore.SortKey{{Field: record.FieldID, Desc: true}},
	})
	if err != nil {
		return nil, false, errors.Wrapf(err, "load %s %q", coll.Name(), key)
	}
	defer cur.Close(ctx)

	// Newest first, so the first version seen per dataset is its candidate
	var winner *value.Document
	winnerRank := -1
	seen := map[tid.TID]bool{}
	for cur.Next(ctx) {
		doc := cur.Document()
		h, err := record.DecodeHeader(doc)
		if err != nil {
			return nil, false, errors.Wrapf(err, "load %s %q", coll.Name(), key)
		}
		tid.Observe(h.ID)
		if seen[h.DataSet] {
			continue
		}
		seen[h.DataSet] = true
		rank := vis.Rank(h.DataSet)
		if rank < 0 {
			continue
		}
		if winner == nil || rank < winnerRank {
			winner, winnerRank = doc, rank
		}
		if rank == 0 {
			break
		}
	}
	if err := cur.Err(); err != nil {
		return nil, false, errors.Wrapf(err, "load %s %q", coll.Name(), key)
	}
	if winner == nil {
		e.log.Debugw("Key not found", logger.FieldCollection, coll.Name(), logger.FieldKey, key, logger.FieldCutoff, cutoff)
		return nil, false, nil
	}

	rec, err := e.reg.Decode(winner)
	if err != nil {
		return nil, false, err
	}
	if rec.IsDeleted() {
		e.log.Debugw("Key is deleted", logger.FieldCollection, coll.Name(), logger.FieldKey, key,
			logger.FieldDataSet, rec.DataSet, logger.FieldTID, rec.ID)
		return nil, false, nil
	}
	return rec, true, nil
}

// LoadByID returns the version with id, including tombstones.
func (e *Engine) LoadByID(ctx context.Context, coll docstore.Collection, id tid.TID) (*record.Record, bool, error) {
	cur, err := coll.Find(ctx, docstore.Query{
		Filter: docstore.Filter{docstore.Eq(record.FieldID, value.TID(id))},
		Limit:  1,
	})
	if err != nil {
		return nil, false, errors.Wrapf(err, "load %s %s", coll.Name(), id)
	}
	defer cur.Close(ctx)

	if !cur.Next(ctx) {
		if err := cur.Err(); err != nil {
			return nil, false, errors.Wrapf(err, "load %s %s", coll.Name(), id)
		}
		return nil, false, nil
	}
	tid.Observe(id)
	rec, err := e.reg.Decode(cur.Document())
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// winners computes the live header of each key in vis as of cutoff.
func winners(ctx context.Context, coll docstore.Collection, keys []string, vis dataset.Visibility, cutoff tid.TID) (map[string]record.Header, error) {
	if len(keys) == 0 {
		return map[string]record.Header{}, nil
	}
	vals := make([]value.Value, len(keys))
	for i, k := range keys {
		vals[i] = value.String(k)
	}
	filter := append(docstore.Filter{docstore.In(record.FieldKey, vals...)}, scope(vis, cutoff)...)
	cur, err := coll.Find(ctx, docstore.Query{
		Filter: filter,
		Sort: []docstore.SortKey{
			{Field: record.FieldKey},
			{Field: record.FieldID, Desc: true},
		},
		Projection: record.ReservedFields,
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	type best struct {
		h    record.Header
		rank int
	}
	top := make(map[string]best, len(keys))
	seen := map[string]map[tid.TID]bool{}
	for cur.Next(ctx) {
		h, err := record.DecodeHeader(cur.Document())
		if err != nil {
			return nil, err
		}
		tid.Observe(h.ID)
		if seen[h.Key] == nil {
			seen[h.Key] = map[tid.TID]bool{}
		}
		if seen[h.Key][h.DataSet] {
			continue
		}
		seen[h.Key][h.DataSet] = true
		rank := vis.Rank(h.DataSet)
		if rank < 0 {
			continue
		}
		if b, ok := top[h.Key]; !ok || rank < b.rank {
			top[h.Key] = best{h: h, rank: rank}
		}
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}

	out := make(map[string]record.Header, len(top))
	for k, b := range top {
		out[k] = b.h
	}
	return out, nil
}
