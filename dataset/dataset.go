// Package dataset defines the dataset record and the visibility rules of the
// dataset DAG.
//
// A dataset is a named node whose record lists its parent dataset ids. The
// root dataset has id tid.Empty and is an ancestor of every dataset. Reads in
// a leaf dataset see the leaf and all transitive parents, with the leaf
// overriding its parents.
package dataset

import (
	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/record"
	"github.com/teranos/strata/tid"
)

// TypeName is the discriminator and collection of dataset records.
const TypeName = "DataSet"

// CommonID names the conventional dataset parented at the root.
const CommonID = "common"

// DataSet is the payload of a dataset record. It is saved into its save-to
// dataset, usually one of its parents or the root.
type DataSet struct {
	DataSetID   string    `strata:"DataSetID,key"`
	Parents     []tid.TID `strata:"Parents"`
	NonTemporal bool      `strata:"NonTemporal"`
}

var _ record.SaveValidator = (*DataSet)(nil)

// Register adds the dataset record type to reg.
func Register(reg *record.Registry) error {
	_, err := reg.Register(TypeName, DataSet{})
	return err
}

// ValidateSave checks that every parent is strictly older than the record
// being saved. This rules out self-parenting and cycles.
func (d *DataSet) ValidateSave(id, dataSet tid.TID) error {
	if d.DataSetID == "" {
		return errors.NewPrecondition("dataset id is empty")
	}
	for _, p := range d.Parents {
		switch p.Compare(id) {
		case 0:
			return errors.NewPrecondition("dataset %s: parent %s equals the dataset's own id", d.DataSetID, p)
		case 1:
			return errors.WithHint(
				errors.NewPrecondition("dataset %s: parent %s is newer than the dataset id %s", d.DataSetID, p, id),
				"parents must be created before the datasets that inherit from them")
		}
	}
	return nil
}

// Visibility is the linearized visibility set of a leaf dataset in override
// order: the leaf, its parents depth-first in declaration order, and the root.
type Visibility struct {
	Order []tid.TID
}

// Root is the visibility of the root dataset itself.
func Root() Visibility {
	return Visibility{Order: []tid.TID{tid.Empty}}
}

// Leaf returns the first dataset in override order.
func (v Visibility) Leaf() tid.TID {
	if len(v.Order) == 0 {
		return tid.Empty
	}
	return v.Order[0]
}

// Rank returns the position of d in override order; lower ranks win. Datasets
// outside the set rank -1.
func (v Visibility) Rank(d tid.TID) int {
	for i, o := range v.Order {
		if o == d {
			return i
		}
	}
	return -1
}

// Contains reports whether d is visible.
func (v Visibility) Contains(d tid.TID) bool {
	return v.Rank(d) >= 0
}

// Len returns the number of visible datasets.
func (v Visibility) Len() int { return len(v.Order) }
