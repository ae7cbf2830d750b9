package mongo

import (
	"go.mongodb.org/mongo-driver/bson"

	"github.com/teranos/strata/docstore"
	"github.com/teranos/strata/docstore/bsondoc"
	"github.com/teranos/strata/errors"
)

// Filter translates a conjunction into a BSON query document.
func Filter(f docstore.Filter) (bson.D, error) {
	if len(f) == 0 {
		return bson.D{}, nil
	}
	clauses := make(bson.A, 0, len(f))
	for _, c := range f {
		if !c.Op.Valid() {
			return nil, errors.NewPrecondition("unsupported operator %q on %s", c.Op, c.Field)
		}
		var operand interface{}
		if c.Op == docstore.OpIn {
			arr := make(bson.A, len(c.Values))
			for i, v := range c.Values {
				x, err := bsondoc.Value(v)
				if err != nil {
					return nil, errors.Wrapf(err, "filter on %s", c.Field)
				}
				arr[i] = x
			}
			operand = arr
		} else {
			x, err := bsondoc.Value(c.Value)
			if err != nil {
				return nil, errors.Wrapf(err, "filter on %s", c.Field)
			}
			operand = x
		}
		clauses = append(clauses, bson.D{{Key: c.Field, Value: bson.D{{Key: string(c.Op), Value: operand}}}})
	}
	if len(clauses) == 1 {
		return clauses[0].(bson.D), nil
	}
	return bson.D{{Key: "$and", Value: clauses}}, nil
}

// Sort translates sort keys into a BSON sort document.
func Sort(keys []docstore.SortKey) bson.D {
	out := make(bson.D, 0, len(keys))
	for _, k := range keys {
		dir := 1
		if k.Desc {
			dir = -1
		}
		out = append(out, bson.E{Key: k.Field, Value: dir})
	}
	return out
}

// Projection translates a field selection. _id is excluded unless selected
// because the server returns it by default.
func Projection(fields []string) bson.D {
	if len(fields) == 0 {
		return nil
	}
	out := make(bson.D, 0, len(fields)+1)
	hasID := false
	for _, f := range fields {
		if f == "_id" {
			hasID = true
		}
		out = append(out, bson.E{Key: f, Value: 1})
	}
	if !hasID {
		out = append(out, bson.E{Key: "_id", Value: 0})
	}
	return out
}
