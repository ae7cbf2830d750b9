package dataset

import (
	"context"
	"sync"

	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/tid"
)

// Resolver fetches the parents of a dataset the DAG has not seen yet.
// found is false when no dataset record has that id.
type Resolver func(ctx context.Context, id tid.TID) (parents []tid.TID, found bool, err error)

// DAG caches the parent lists of every dataset observed by a data source.
// Entries are never refreshed implicitly; call Reset to drop them.
type DAG struct {
	mu      sync.RWMutex
	parents map[tid.TID][]tid.TID
}

// NewDAG returns an empty DAG.
func NewDAG() *DAG {
	return &DAG{parents: make(map[tid.TID][]tid.TID)}
}

// Add records the parents of id.
func (g *DAG) Add(id tid.TID, parents []tid.TID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.parents[id] = append([]tid.TID(nil), parents...)
}

// Parents returns the cached parents of id.
func (g *DAG) Parents(id tid.TID) ([]tid.TID, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.parents[id]
	return p, ok
}

// Len returns the number of cached datasets.
func (g *DAG) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.parents)
}

// Reset drops every cached entry.
func (g *DAG) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.parents = make(map[tid.TID][]tid.TID)
}

// Visibility computes the override order of leaf. Unknown datasets are
// fetched through resolve and cached.
func (g *DAG) Visibility(ctx context.Context, leaf tid.TID, resolve Resolver) (Visibility, error) {
	var order []tid.TID
	visited := map[tid.TID]bool{}

	var walk func(id tid.TID) error
	walk = func(id tid.TID) error {
		if visited[id] {
			return nil
		}
		visited[id] = true
		order = append(order, id)
		if id == tid.Empty {
			return nil
		}
		parents, err := g.parentsOf(ctx, id, resolve)
		if err != nil {
			return err
		}
		for _, p := range parents {
			if err := walk(p); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(leaf); err != nil {
		return Visibility{}, err
	}
	if !visited[tid.Empty] {
		order = append(order, tid.Empty)
	}
	return Visibility{Order: order}, nil
}

func (g *DAG) parentsOf(ctx context.Context, id tid.TID, resolve Resolver) ([]tid.TID, error) {
	if p, ok := g.Parents(id); ok {
		return p, nil
	}
	if resolve == nil {
		return nil, errors.NewPrecondition("dataset %s is not known", id)
	}
	p, found, err := resolve(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve dataset %s", id)
	}
	if !found {
		return nil, errors.NewPrecondition("dataset %s does not exist", id)
	}
	g.Add(id, p)
	return p, nil
}
