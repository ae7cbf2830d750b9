package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/teranos/strata/docstore"
	"github.com/teranos/strata/docstore/bsondoc"
	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/logger"
	"github.com/teranos/strata/tid"
	"github.com/teranos/strata/value"
)

// columns maps reserved document fields to table columns.
var columns = map[string]string{
	"_id":      "id",
	"_key":     "key",
	"_dataset": "data_set",
}

// Collection is one table of documents.
type Collection struct {
	store *Store
	name  string
	table string
}

var _ docstore.Collection = (*Collection)(nil)

func (c *Collection) Name() string { return c.name }

func (c *Collection) quoted() string { return `"` + c.table + `"` }

// EnsureIndex creates a SQL index. Reserved fields index their column;
// payload fields index a JSON expression.
func (c *Collection) EnsureIndex(ctx context.Context, idx docstore.Index) error {
	if err := c.store.checkOpen(); err != nil {
		return err
	}
	if idx.Name == "" || !collectionName.MatchString(idx.Name) {
		return errors.NewPrecondition("invalid index name %q", idx.Name)
	}
	if len(idx.Keys) == 0 {
		return errors.NewPrecondition("index %s has no keys", idx.Name)
	}

	exprs := make([]string, len(idx.Keys))
	spec := make([]string, len(idx.Keys))
	for i, k := range idx.Keys {
		expr, ok := columns[k.Field]
		if !ok {
			expr = "json_extract(doc, '$." + jsonPath(k.Field) + "')"
		}
		dir, name := " ASC", "asc"
		if k.Desc {
			dir, name = " DESC", "desc"
		}
		exprs[i] = expr + dir
		spec[i] = k.Field + ":" + name
	}
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}

	stmt := "CREATE " + unique + `INDEX IF NOT EXISTS "` + c.table + "_" + idx.Name + `" ON ` + c.quoted() +
		" (" + strings.Join(exprs, ", ") + ")"
	if _, err := c.store.conn.ExecContext(ctx, stmt); err != nil {
		return c.store.classify(err, "create index %s on %s", idx.Name, c.name)
	}
	if _, err := c.store.conn.ExecContext(ctx,
		"INSERT OR REPLACE INTO collection_indexes (collection, name, keys, is_unique) VALUES (?, ?, ?, ?)",
		c.name, idx.Name, strings.Join(spec, ","), idx.Unique); err != nil {
		return c.store.classify(err, "record index %s on %s", idx.Name, c.name)
	}
	return nil
}

// jsonPath quotes each segment of a dotted field path for json_extract,
// using the stored (escaped) field names.
func jsonPath(field string) string {
	parts := strings.Split(field, ".")
	for i, p := range parts {
		parts[i] = `"` + strings.ReplaceAll(bsondoc.EscapeName(p), `"`, `\"`) + `"`
	}
	return strings.Join(parts, ".")
}

// Insert writes one document. A repeated _id violates the primary key and is
// reported as a conflict.
func (c *Collection) Insert(ctx context.Context, doc *value.Document) error {
	if err := c.store.checkOpen(); err != nil {
		return err
	}
	id, ok := doc.Get("_id")
	if !ok || id.Kind() != value.KindTID {
		return errors.NewPrecondition("collection %s: document has no TID _id", c.name)
	}
	key, _ := doc.Get("_key")
	dataSet := tid.Empty
	if ds, ok := doc.Get("_dataset"); ok && ds.Kind() == value.KindTID {
		dataSet = ds.ID()
	}

	raw, err := bsondoc.MarshalExtJSON(doc)
	if err != nil {
		return errors.Wrapf(err, "encode document %s", id)
	}
	_, err = c.store.conn.ExecContext(ctx,
		"INSERT INTO "+c.quoted()+" (id, key, data_set, doc) VALUES (?, ?, ?, ?)",
		id.ID().Bytes(), key.Str(), dataSet.Bytes(), string(raw))
	return c.store.classify(err, "insert %s into %s", id, c.name)
}

// Find pushes reserved-field predicates, sort and limit into SQL when it can
// and evaluates the rest in Go over the SQL result.
func (c *Collection) Find(ctx context.Context, q docstore.Query) (docstore.Cursor, error) {
	if err := c.store.checkOpen(); err != nil {
		return nil, err
	}
	plan, err := planQuery(q)
	if err != nil {
		return nil, err
	}

	stmt, args := plan.selectSQL(c.quoted())
	rows, err := c.store.conn.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, c.store.classify(err, "find in %s", c.name)
	}
	cur := &rowsCursor{coll: c, rows: rows}

	if plan.pushedDown() {
		cur.projection = q.Projection
		return cur, nil
	}

	docs, err := docstore.Drain(ctx, cur)
	if err != nil {
		return nil, err
	}
	return docstore.NewSliceCursor(docstore.Apply(docs, docstore.Query{
		Filter:     plan.residual,
		Sort:       q.Sort,
		Limit:      q.Limit,
		Projection: q.Projection,
	})), nil
}

// DeleteMany removes matching rows. Residual predicates are resolved to ids
// first and deleted in one transaction.
func (c *Collection) DeleteMany(ctx context.Context, filter docstore.Filter) (int64, error) {
	if err := c.store.checkOpen(); err != nil {
		return 0, err
	}
	plan, err := planQuery(docstore.Query{Filter: filter})
	if err != nil {
		return 0, err
	}

	if len(plan.residual) == 0 {
		stmt := "DELETE FROM " + c.quoted()
		if where := plan.where.build(); where != "" {
			stmt += " WHERE " + where
		}
		res, err := c.store.conn.ExecContext(ctx, stmt, plan.where.args...)
		if err != nil {
			return 0, c.store.classify(err, "delete from %s", c.name)
		}
		n, _ := res.RowsAffected()
		return n, nil
	}

	cur, err := c.Find(ctx, docstore.Query{Filter: filter, Projection: []string{"_id"}})
	if err != nil {
		return 0, err
	}
	docs, err := docstore.Drain(ctx, cur)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}

	tx, err := c.store.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, c.store.classify(err, "begin delete on %s", c.name)
	}
	var n int64
	for _, d := range docs {
		id, _ := d.Get("_id")
		res, err := tx.ExecContext(ctx, "DELETE FROM "+c.quoted()+" WHERE id = ?", id.ID().Bytes())
		if err != nil {
			tx.Rollback()
			return 0, c.store.classify(err, "delete %s from %s", id, c.name)
		}
		affected, _ := res.RowsAffected()
		n += affected
	}
	if err := tx.Commit(); err != nil {
		return 0, c.store.classify(err, "commit delete on %s", c.name)
	}
	c.store.log.Debugw("Deleted documents", logger.FieldCollection, c.name, logger.FieldCount, n)
	return n, nil
}

// rowsCursor decodes documents from a SELECT doc result.
type rowsCursor struct {
	coll       *Collection
	rows       *sql.Rows
	projection []string
	doc        *value.Document
	err        error
}

func (r *rowsCursor) Next(ctx context.Context) bool {
	if r.err != nil || r.rows == nil {
		return false
	}
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			r.err = r.coll.store.classify(err, "read %s", r.coll.name)
		}
		return false
	}
	var raw string
	if err := r.rows.Scan(&raw); err != nil {
		r.err = r.coll.store.classify(err, "scan %s", r.coll.name)
		return false
	}
	doc, err := bsondoc.UnmarshalExtJSON([]byte(raw))
	if err != nil {
		r.err = errors.Wrapf(err, "decode document in %s", r.coll.name)
		return false
	}
	if len(r.projection) > 0 {
		doc = doc.Project(r.projection)
	}
	r.doc = doc
	return true
}

func (r *rowsCursor) Document() *value.Document { return r.doc }

func (r *rowsCursor) Err() error { return r.err }

func (r *rowsCursor) Close(context.Context) error {
	if r.rows == nil {
		return nil
	}
	err := r.rows.Close()
	r.rows = nil
	return err
}
