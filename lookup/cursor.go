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

// DefaultBatchSize is the number of rows read before each winner query.
const DefaultBatchSize = 100

// Spec describes a range query.
type Spec struct {
	// Filter applies to payload fields and _key. Only a key's live version
	// is tested against it.
	Filter docstore.Filter
	Sort   []docstore.SortKey
	// Projection selects payload fields. Reserved fields are always read.
	Projection []string

	Visibility dataset.Visibility
	Cutoff     tid.TID
	Limit      int64
	BatchSize  int
}

// Query opens a cursor over the live versions matching spec, in the spec's
// sort order followed by key ascending.
func (e *Engine) Query(ctx context.Context, coll docstore.Collection, spec Spec) (*Cursor, error) {
	vis := effective(spec.Visibility, spec.Cutoff)

	filter := append(append(docstore.Filter{}, spec.Filter...), scope(vis, spec.Cutoff)...)
	sort := append(append([]docstore.SortKey{}, spec.Sort...),
		docstore.SortKey{Field: record.FieldKey},
		docstore.SortKey{Field: record.FieldID, Desc: true},
	)
	var projection []string
	if len(spec.Projection) > 0 {
		projection = append(append([]string{}, record.ReservedFields...), spec.Projection...)
	}

	cur, err := coll.Find(ctx, docstore.Query{Filter: filter, Sort: sort, Projection: projection})
	if err != nil {
		return nil, errors.Wrapf(err, "query %s", coll.Name())
	}

	batch := spec.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	return &Cursor{
		engine:  e,
		coll:    coll,
		src:     cur,
		vis:     vis,
		cutoff:  spec.Cutoff,
		limit:   spec.Limit,
		batch:   batch,
		winners: map[string]tid.TID{},
		emitted: map[string]bool{},
		log:     e.log.With(logger.FieldCollection, coll.Name()),
	}, nil
}

// Cursor streams deduplicated live records. It is not safe for concurrent use.
type Cursor struct {
	engine *Engine
	coll   docstore.Collection
	src    docstore.Cursor
	vis    dataset.Visibility
	cutoff tid.TID
	limit  int64
	batch  int

	// winners maps each resolved key to its live version id; tombstoned
	// keys map to tid.Empty.
	winners map[string]tid.TID
	emitted map[string]bool
	count   int64

	pending []*record.Record
	current *record.Record
	done    bool
	err     error
	log     *zap.SugaredLogger
}

// Next advances to the next live record.
func (c *Cursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	if c.limit > 0 && c.count >= c.limit {
		return false
	}
	for len(c.pending) == 0 {
		if c.done {
			return false
		}
		if err := c.fill(ctx); err != nil {
			c.err = err
			return false
		}
	}
	c.current, c.pending = c.pending[0], c.pending[1:]
	c.count++
	return true
}

// fill reads one batch from the store, resolves winners for its new keys and
// queues the rows that are live versions.
func (c *Cursor) fill(ctx context.Context) error {
	var batch []row
	for len(batch) < c.batch && c.src.Next(ctx) {
		doc := c.src.Document()
		h, err := record.DecodeHeader(doc)
		if err != nil {
			return errors.Wrapf(err, "query %s", c.coll.Name())
		}
		tid.Observe(h.ID)
		batch = append(batch, row{h: h, doc: doc})
	}
	if err := c.src.Err(); err != nil {
		return errors.Wrapf(err, "query %s", c.coll.Name())
	}
	if len(batch) < c.batch {
		c.done = true
	}

	var unresolved []string
	pending := map[string]bool{}
	for _, r := range batch {
		k := r.h.Key
		if _, ok := c.winners[k]; !ok && !pending[k] {
			pending[k] = true
			unresolved = append(unresolved, k)
		}
	}
	resolved, err := winners(ctx, c.coll, unresolved, c.vis, c.cutoff)
	if err != nil {
		return errors.Wrapf(err, "resolve live versions in %s", c.coll.Name())
	}
	for _, k := range unresolved {
		h, ok := resolved[k]
		if !ok || h.IsDeleted() {
			c.winners[k] = tid.Empty
			continue
		}
		c.winners[k] = h.ID
	}
	c.log.Debugw("Resolved query batch", logger.FieldBatchSize, len(batch), logger.FieldCount, len(unresolved))

	for _, r := range batch {
		if c.emitted[r.h.Key] || c.winners[r.h.Key] != r.h.ID || r.h.IsDeleted() {
			continue
		}
		rec, err := c.engine.reg.Decode(r.doc)
		if err != nil {
			return err
		}
		c.emitted[r.h.Key] = true
		c.pending = append(c.pending, rec)
	}
	return nil
}

type row struct {
	h   record.Header
	doc *value.Document
}

// Record returns the current record.
func (c *Cursor) Record() *record.Record { return c.current }

// Err returns the error that stopped iteration.
func (c *Cursor) Err() error { return c.err }

// Close releases the store cursor.
func (c *Cursor) Close(ctx context.Context) error {
	return c.src.Close(ctx)
}

// All drains the cursor and closes it.
func (c *Cursor) All(ctx context.Context) ([]*record.Record, error) {
	defer c.Close(ctx)
	var out []*record.Record
	for c.Next(ctx) {
		out = append(out, c.current)
	}
	return out, c.Err()
}
