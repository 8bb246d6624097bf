package backend

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Querier runs read-only selects against the table API.
type Querier interface {
	Select(ctx context.Context, q Query) ([]Row, error)
}

// Query describes a select of fixed columns from one table, optionally
// embedding columns of related tables through a foreign key.
type Query struct {
	Table   string
	Columns []string
	Joins   []Join
	Filters []Filter
	Order   []Order
}

// Join embeds Columns of Table, following ForeignKey on the queried table to
// References (default "id") on Table. Rows carry the embedded columns as a
// nested map under the Table key, or nil when the foreign key is null.
type Join struct {
	Table      string
	ForeignKey string
	References string
	Columns    []string
}

// FilterOp is a comparison understood by both query backends.
type FilterOp string

const (
	OpEq  FilterOp = "eq"
	OpNeq FilterOp = "neq"
	OpGt  FilterOp = "gt"
	OpGte FilterOp = "gte"
	OpLt  FilterOp = "lt"
	OpLte FilterOp = "lte"
	OpIs  FilterOp = "is"
)

var sqlOperators = map[FilterOp]string{
	OpEq:  "=",
	OpNeq: "<>",
	OpGt:  ">",
	OpGte: ">=",
	OpLt:  "<",
	OpLte: "<=",
}

// Filter restricts rows by comparing Column with Value. OpIs only accepts a
// nil Value (IS NULL).
type Filter struct {
	Column string
	Op     FilterOp
	Value  any
}

// Order sorts by Column, ascending unless Descending is set.
type Order struct {
	Column     string
	Descending bool
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate rejects queries that cannot be expressed safely by either backend.
func (q Query) Validate() error {
	var errs []error
	check := func(kind, name string) {
		if !identPattern.MatchString(name) {
			errs = append(errs, fmt.Errorf("invalid %s %q", kind, name))
		}
	}

	check("table", q.Table)
	if len(q.Columns) == 0 {
		errs = append(errs, errors.New("at least one column is required"))
	}
	for _, c := range q.Columns {
		check("column", c)
	}
	for _, j := range q.Joins {
		check("table", j.Table)
		check("foreign key", j.ForeignKey)
		if j.References != "" {
			check("column", j.References)
		}
		if len(j.Columns) == 0 {
			errs = append(errs, fmt.Errorf("join %s selects no columns", j.Table))
		}
		for _, c := range j.Columns {
			check("column", c)
		}
	}
	for _, f := range q.Filters {
		check("column", f.Column)
		if _, ok := sqlOperators[f.Op]; !ok && f.Op != OpIs {
			errs = append(errs, fmt.Errorf("unsupported filter operator %q", f.Op))
		}
		if f.Op == OpIs && f.Value != nil {
			errs = append(errs, fmt.Errorf("filter %s: is only supports null", f.Column))
		}
	}
	for _, o := range q.Order {
		check("column", o.Column)
	}
	return errors.Join(errs...)
}

// SelectClause renders the PostgREST select parameter, e.g.
// "id,name,honorifics!honorific(title)".
func (q Query) SelectClause() string {
	parts := append([]string(nil), q.Columns...)
	for _, j := range q.Joins {
		parts = append(parts, fmt.Sprintf("%s!%s(%s)", j.Table, j.ForeignKey, strings.Join(j.Columns, ",")))
	}
	return strings.Join(parts, ",")
}

// Values renders the full PostgREST query string parameters.
func (q Query) Values() url.Values {
	v := url.Values{}
	v.Set("select", q.SelectClause())
	for _, f := range q.Filters {
		value := "null"
		if f.Value != nil {
			value = fmt.Sprint(f.Value)
		}
		v.Add(f.Column, fmt.Sprintf("%s.%s", f.Op, value))
	}
	if len(q.Order) > 0 {
		terms := make([]string, 0, len(q.Order))
		for _, o := range q.Order {
			dir := "asc"
			if o.Descending {
				dir = "desc"
			}
			terms = append(terms, o.Column+"."+dir)
		}
		v.Set("order", strings.Join(terms, ","))
	}
	return v
}
