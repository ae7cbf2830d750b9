// Package memory is an in-process document store. Databases live as long as
// the Driver, so reopening a name sees earlier writes. Used for tests and
// ephemeral sessions.
package memory

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/strata/docstore"
	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/logger"
	"github.com/teranos/strata/value"
)

// Separator joins database name parts.
const Separator = ";"

// Driver holds every database created through it.
type Driver struct {
	mu        sync.Mutex
	databases map[string]*database
	log       *zap.SugaredLogger
}

var _ docstore.Driver = (*Driver)(nil)

// NewDriver returns an empty in-memory driver. log may be nil.
func NewDriver(log *zap.SugaredLogger) *Driver {
	return &Driver{
		databases: make(map[string]*database),
		log:       logger.OrNop(log),
	}
}

func (d *Driver) Name() string      { return "memory" }
func (d *Driver) Separator() string { return Separator }

// Open returns a handle on dbName, creating the database on first use.
func (d *Driver) Open(ctx context.Context, dbName string) (docstore.Store, error) {
	if dbName == "" {
		return nil, errors.NewPrecondition("database name is empty")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	db, ok := d.databases[dbName]
	if !ok {
		db = &database{collections: make(map[string]*collection)}
		d.databases[dbName] = db
		d.log.Debugw("Created in-memory database", logger.FieldDatabase, dbName)
	}
	return &store{driver: d, name: dbName, db: db}, nil
}

// Databases returns the names of existing databases.
func (d *Driver) Databases() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.databases))
	for n := range d.databases {
		names = append(names, n)
	}
	return names
}

func (d *Driver) drop(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.databases, name)
}

type database struct {
	mu          sync.Mutex
	collections map[string]*collection
}

type store struct {
	driver *Driver
	name   string
	db     *database

	mu     sync.RWMutex
	closed bool
}

func (s *store) Name() string { return s.name }

func (s *store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.Wrapf(docstore.ErrClosed, "database %s", s.name)
	}
	return nil
}

func (s *store) Collection(ctx context.Context, name string) (docstore.Collection, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	c, ok := s.db.collections[name]
	if !ok {
		c = &collection{name: name, ids: make(map[string]struct{}), indexes: make(map[string]docstore.Index)}
		s.db.collections[name] = c
	}
	return &handle{store: s, c: c}, nil
}

func (s *store) DropDatabase(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.driver.drop(s.name)
	s.db.mu.Lock()
	s.db.collections = make(map[string]*collection)
	s.db.mu.Unlock()
	s.driver.log.Infow("Dropped in-memory database", logger.FieldDatabase, s.name)
	return nil
}

func (s *store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// collection stores documents in insertion order, guarded by mu.
type collection struct {
	name    string
	mu      sync.RWMutex
	docs    []*value.Document
	ids     map[string]struct{}
	indexes map[string]docstore.Index
}

// handle binds a collection to the store it was opened through so closing
// the store fences further access.
type handle struct {
	store *store
	c     *collection
}

func (h *handle) Name() string { return h.c.name }

func (h *handle) EnsureIndex(ctx context.Context, idx docstore.Index) error {
	if err := h.store.checkOpen(); err != nil {
		return err
	}
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	h.c.indexes[idx.Name] = idx
	return nil
}

func (h *handle) Insert(ctx context.Context, doc *value.Document) error {
	if err := h.store.checkOpen(); err != nil {
		return err
	}
	id, ok := doc.Get("_id")
	if !ok {
		return errors.NewPrecondition("collection %s: document has no _id", h.c.name)
	}
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	if _, dup := h.c.ids[id.String()]; dup {
		return errors.MarkConflict(errors.Newf("duplicate _id %s", id),
			"collection %s rejected insert", h.c.name)
	}
	for _, idx := range h.c.indexes {
		if idx.Unique && h.violatesUnique(doc, idx) {
			return errors.MarkConflict(errors.Newf("unique index %s violated", idx.Name),
				"collection %s rejected insert", h.c.name)
		}
	}
	h.c.ids[id.String()] = struct{}{}
	h.c.docs = append(h.c.docs, doc.Clone())
	return nil
}

// violatesUnique must be called with the collection lock held.
func (h *handle) violatesUnique(doc *value.Document, idx docstore.Index) bool {
	for _, existing := range h.c.docs {
		same := true
		for _, k := range idx.Keys {
			a, _ := doc.Lookup(k.Field)
			b, _ := existing.Lookup(k.Field)
			if !value.Equal(a, b) {
				same = false
				break
			}
		}
		if same {
			return true
		}
	}
	return false
}

func (h *handle) Find(ctx context.Context, q docstore.Query) (docstore.Cursor, error) {
	if err := h.store.checkOpen(); err != nil {
		return nil, err
	}
	for _, c := range q.Filter {
		if !c.Op.Valid() {
			return nil, errors.NewPrecondition("unsupported operator %q on %s", c.Op, c.Field)
		}
	}
	h.c.mu.RLock()
	snapshot := append([]*value.Document(nil), h.c.docs...)
	h.c.mu.RUnlock()

	// Apply returns projected copies, so callers never alias stored documents
	return docstore.NewSliceCursor(docstore.Apply(snapshot, q)), nil
}

func (h *handle) DeleteMany(ctx context.Context, filter docstore.Filter) (int64, error) {
	if err := h.store.checkOpen(); err != nil {
		return 0, err
	}
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	kept := h.c.docs[:0]
	var n int64
	for _, d := range h.c.docs {
		if docstore.Match(d, filter) {
			id, _ := d.Get("_id")
			delete(h.c.ids, id.String())
			n++
			continue
		}
		kept = append(kept, d)
	}
	for i := len(kept); i < len(h.c.docs); i++ {
		h.c.docs[i] = nil
	}
	h.c.docs = kept
	return n, nil
}
