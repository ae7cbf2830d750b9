// Package mongo stores documents in MongoDB. Envelope TIDs map onto
// ObjectIDs, so _id is the server's primary key and sorts the same way.
package mongo

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	mdb "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/teranos/strata/docstore"
	"github.com/teranos/strata/docstore/bsondoc"
	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/logger"
	"github.com/teranos/strata/value"
)

// Separator joins database name parts.
const Separator = ";"

// DefaultURI is used when no server is configured.
const DefaultURI = "mongodb://localhost:27017/"

// Driver connects to one MongoDB deployment.
type Driver struct {
	uri string
	log *zap.SugaredLogger
}

var _ docstore.Driver = (*Driver)(nil)

// NewDriver returns a driver for uri. An empty uri means DefaultURI.
func NewDriver(uri string, log *zap.SugaredLogger) *Driver {
	if uri == "" {
		uri = DefaultURI
	}
	return &Driver{uri: uri, log: logger.OrNop(log)}
}

func (d *Driver) Name() string      { return "mongo" }
func (d *Driver) Separator() string { return Separator }

// URI returns the connection string.
func (d *Driver) URI() string { return d.uri }

// Open connects and returns a handle on dbName. Each store owns its client.
func (d *Driver) Open(ctx context.Context, dbName string) (docstore.Store, error) {
	if dbName == "" {
		return nil, errors.NewPrecondition("database name is empty")
	}
	client, err := mdb.Connect(ctx, options.Client().ApplyURI(d.uri))
	if err != nil {
		return nil, classify(err, "connect to %s", d.uri)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, classify(err, "ping %s", d.uri)
	}
	d.log.Infow("Connected to MongoDB", logger.FieldDatabase, dbName, "uri", d.uri)
	return &Store{client: client, db: client.Database(dbName), name: dbName, log: d.log}, nil
}

// Store is one MongoDB database.
type Store struct {
	client *mdb.Client
	db     *mdb.Database
	name   string
	log    *zap.SugaredLogger

	mu     sync.Mutex
	closed bool
}

func (s *Store) Name() string { return s.name }

func (s *Store) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.Wrapf(docstore.ErrClosed, "database %s", s.name)
	}
	return nil
}

func (s *Store) Collection(ctx context.Context, name string) (docstore.Collection, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, errors.NewPrecondition("collection name is empty")
	}
	return &Collection{store: s, coll: s.db.Collection(name)}, nil
}

func (s *Store) DropDatabase(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.db.Drop(ctx); err != nil {
		return classify(err, "drop database %s", s.name)
	}
	s.log.Infow("Dropped database", logger.FieldDatabase, s.name)
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.client.Disconnect(ctx); err != nil {
		return errors.Wrapf(err, "disconnect from %s", s.name)
	}
	return nil
}

// Collection wraps a server collection.
type Collection struct {
	store *Store
	coll  *mdb.Collection
}

func (c *Collection) Name() string { return c.coll.Name() }

func (c *Collection) EnsureIndex(ctx context.Context, idx docstore.Index) error {
	if err := c.store.checkOpen(); err != nil {
		return err
	}
	model := mdb.IndexModel{
		Keys:    Sort(idx.Keys),
		Options: options.Index().SetName(idx.Name).SetUnique(idx.Unique),
	}
	if _, err := c.coll.Indexes().CreateOne(ctx, model); err != nil {
		return classify(err, "create index %s on %s", idx.Name, c.Name())
	}
	return nil
}

func (c *Collection) Insert(ctx context.Context, doc *value.Document) error {
	if err := c.store.checkOpen(); err != nil {
		return err
	}
	if _, ok := doc.Get("_id"); !ok {
		return errors.NewPrecondition("collection %s: document has no _id", c.Name())
	}
	d, err := bsondoc.ToBSON(doc)
	if err != nil {
		return errors.Wrapf(err, "insert into %s", c.Name())
	}
	if _, err := c.coll.InsertOne(ctx, d); err != nil {
		return classify(err, "insert into %s", c.Name())
	}
	return nil
}

func (c *Collection) Find(ctx context.Context, q docstore.Query) (docstore.Cursor, error) {
	if err := c.store.checkOpen(); err != nil {
		return nil, err
	}
	filter, err := Filter(q.Filter)
	if err != nil {
		return nil, err
	}
	opts := options.Find()
	if len(q.Sort) > 0 {
		opts.SetSort(Sort(q.Sort))
	}
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}
	if p := Projection(q.Projection); p != nil {
		opts.SetProjection(p)
	}
	cur, err := c.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, classify(err, "find in %s", c.Name())
	}
	return &cursor{cur: cur, coll: c.Name()}, nil
}

func (c *Collection) DeleteMany(ctx context.Context, f docstore.Filter) (int64, error) {
	if err := c.store.checkOpen(); err != nil {
		return 0, err
	}
	filter, err := Filter(f)
	if err != nil {
		return 0, err
	}
	res, err := c.coll.DeleteMany(ctx, filter)
	if err != nil {
		return 0, classify(err, "delete from %s", c.Name())
	}
	return res.DeletedCount, nil
}

type cursor struct {
	cur  *mdb.Cursor
	coll string
	doc  *value.Document
	err  error
}

func (c *cursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	if !c.cur.Next(ctx) {
		if err := c.cur.Err(); err != nil {
			c.err = classify(err, "read %s", c.coll)
		}
		return false
	}
	var d bson.D
	if err := bson.Unmarshal(c.cur.Current, &d); err != nil {
		c.err = errors.Mark(errors.Wrapf(err, "decode document in %s", c.coll), errors.ErrTypeMismatch)
		return false
	}
	doc, err := bsondoc.FromBSON(d)
	if err != nil {
		c.err = errors.Mark(errors.Wrapf(err, "convert document in %s", c.coll), errors.ErrTypeMismatch)
		return false
	}
	c.doc = doc
	return true
}

func (c *cursor) Document() *value.Document { return c.doc }

func (c *cursor) Err() error { return c.err }

func (c *cursor) Close(ctx context.Context) error { return c.cur.Close(ctx) }

// classify maps driver errors onto the error taxonomy.
func classify(err error, format string, args ...interface{}) error {
	switch {
	case err == nil:
		return nil
	case mdb.IsDuplicateKeyError(err):
		return errors.MarkConflict(err, format, args...)
	case errors.Is(err, mdb.ErrClientDisconnected):
		return errors.Wrapf(errors.Mark(err, docstore.ErrClosed), format, args...)
	case errors.Is(err, context.Canceled):
		return errors.Wrapf(err, format, args...)
	default:
		// Network errors, timeouts and server selection failures are all retryable
		return errors.MarkTransientIO(err, format, args...)
	}
}
