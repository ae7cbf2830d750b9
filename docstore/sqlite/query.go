package sqlite

import (
	"strconv"
	"strings"

	"github.com/teranos/strata/docstore"
	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/value"
)

// queryBuilder accumulates SQL WHERE clauses and parameters
type queryBuilder struct {
	whereClauses []string
	args         []interface{}
}

// addClause appends a WHERE clause with its arguments
func (qb *queryBuilder) addClause(clause string, args ...interface{}) {
	qb.whereClauses = append(qb.whereClauses, clause)
	qb.args = append(qb.args, args...)
}

// build returns the WHERE clauses joined with AND
func (qb *queryBuilder) build() string {
	return strings.Join(qb.whereClauses, " AND ")
}

var sqlOps = map[docstore.Op]string{
	docstore.OpEq:  "=",
	docstore.OpNe:  "<>",
	docstore.OpLt:  "<",
	docstore.OpLte: "<=",
	docstore.OpGt:  ">",
	docstore.OpGte: ">=",
}

// plan splits a query into the SQL part and the residual evaluated in Go.
type plan struct {
	where    queryBuilder
	residual docstore.Filter
	orderBy  []string
	sortDone bool
	limit    int64
}

func planQuery(q docstore.Query) (*plan, error) {
	p := &plan{}
	for _, c := range q.Filter {
		if !c.Op.Valid() {
			return nil, errors.NewPrecondition("unsupported operator %q on %s", c.Op, c.Field)
		}
		if !p.pushCond(c) {
			p.residual = append(p.residual, c)
		}
	}

	p.sortDone = true
	for _, k := range q.Sort {
		col, ok := columns[k.Field]
		if !ok {
			p.sortDone = false
			p.orderBy = nil
			break
		}
		dir := " ASC"
		if k.Desc {
			dir = " DESC"
		}
		p.orderBy = append(p.orderBy, col+dir)
	}
	if p.pushedDown() {
		p.limit = q.Limit
	}
	return p, nil
}

// pushedDown reports whether SQL alone answers the filter, order and limit.
func (p *plan) pushedDown() bool {
	return len(p.residual) == 0 && p.sortDone
}

// pushCond translates a reserved-field predicate into SQL.
func (p *plan) pushCond(c docstore.Cond) bool {
	col, ok := columns[c.Field]
	if !ok {
		return false
	}
	if c.Op == docstore.OpIn {
		if len(c.Values) == 0 {
			p.where.addClause("1 = 0")
			return true
		}
		args := make([]interface{}, len(c.Values))
		for i, v := range c.Values {
			arg, ok := sqlArg(c.Field, v)
			if !ok {
				return false
			}
			args[i] = arg
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")
		p.where.addClause(col+" IN ("+placeholders+")", args...)
		return true
	}
	arg, ok := sqlArg(c.Field, c.Value)
	if !ok {
		return false
	}
	p.where.addClause(col+" "+sqlOps[c.Op]+" ?", arg)
	return true
}

// sqlArg converts v to the column representation of field. Values of another
// kind are left for Go evaluation, where cross-kind comparison rules apply.
func sqlArg(field string, v value.Value) (interface{}, bool) {
	switch field {
	case "_id", "_dataset":
		if v.Kind() == value.KindTID {
			return v.ID().Bytes(), true
		}
	case "_key":
		if v.Kind() == value.KindString {
			return v.Str(), true
		}
	}
	return nil, false
}

func (p *plan) selectSQL(table string) (string, []interface{}) {
	var b strings.Builder
	b.WriteString("SELECT doc FROM ")
	b.WriteString(table)
	if where := p.where.build(); where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	if p.sortDone && len(p.orderBy) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(p.orderBy, ", "))
	} else if len(p.orderBy) == 0 {
		// Insertion order keeps in-Go stable sorts deterministic
		b.WriteString(" ORDER BY rowid")
	}
	if p.limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.FormatInt(p.limit, 10))
	}
	return b.String(), p.where.args
}
