package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/johnmaccormick/mirDB/internal/db"
	"github.com/johnmaccormick/mirDB/internal/logging"
)

// joinKeyColumn carries the referenced key of an embedded relation so a null
// foreign key can be told apart from a related row whose columns are all null.
const joinKeyColumn = "__key"

// PostgresQuerier answers the same selects as RESTQuerier straight from a
// Postgres database. Row-level security applies to whatever role the
// connection string names.
type PostgresQuerier struct {
	pool   db.Pool
	schema string
}

// NewPostgresQuerier constructs a querier reading tables of schema through pool.
func NewPostgresQuerier(pool db.Pool, schema string) *PostgresQuerier {
	return &PostgresQuerier{pool: pool, schema: schema}
}

// Select implements Querier.
func (q *PostgresQuerier) Select(ctx context.Context, query Query) ([]Row, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	sql, args := q.build(query)

	ctx, span := logging.StartSpan(ctx, "postgres.select")
	rows, err := q.pool.Query(ctx, sql, args...)
	if err != nil {
		span.EndErr(err)
		return nil, fmt.Errorf("select %s: %w", query.Table, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	out := []Row{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			span.EndErr(err)
			return nil, fmt.Errorf("scan %s: %w", query.Table, err)
		}
		out = append(out, nest(query, fields, values))
	}
	if err := rows.Err(); err != nil {
		span.EndErr(err)
		return nil, fmt.Errorf("iterate %s: %w", query.Table, err)
	}
	span.End()
	return out, nil
}

func (q *PostgresQuerier) table(name string) string {
	if q.schema == "" {
		return pgx.Identifier{name}.Sanitize()
	}
	return pgx.Identifier{q.schema, name}.Sanitize()
}

// build renders query as SQL. Embedded columns are aliased "<table>.<column>"
// and folded back into nested maps by nest.
func (q *PostgresQuerier) build(query Query) (string, []any) {
	col := func(alias, name string) string {
		return pgx.Identifier{alias, name}.Sanitize()
	}

	var selects []string
	for _, c := range query.Columns {
		selects = append(selects, fmt.Sprintf("%s AS %s", col("t", c), pgx.Identifier{c}.Sanitize()))
	}

	var joins []string
	for i, j := range query.Joins {
		alias := fmt.Sprintf("j%d", i)
		ref := j.References
		if ref == "" {
			ref = "id"
		}
		selects = append(selects, fmt.Sprintf("%s AS %s", col(alias, ref), pgx.Identifier{j.Table + "." + joinKeyColumn}.Sanitize()))
		for _, c := range j.Columns {
			selects = append(selects, fmt.Sprintf("%s AS %s", col(alias, c), pgx.Identifier{j.Table + "." + c}.Sanitize()))
		}
		joins = append(joins, fmt.Sprintf("LEFT JOIN %s AS %s ON %s = %s",
			q.table(j.Table), pgx.Identifier{alias}.Sanitize(), col(alias, ref), col("t", j.ForeignKey)))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s AS %s", strings.Join(selects, ", "), q.table(query.Table), pgx.Identifier{"t"}.Sanitize())
	for _, j := range joins {
		b.WriteString(" ")
		b.WriteString(j)
	}

	var args []any
	if len(query.Filters) > 0 {
		var conds []string
		for _, f := range query.Filters {
			if f.Op == OpIs {
				conds = append(conds, col("t", f.Column)+" IS NULL")
				continue
			}
			args = append(args, f.Value)
			conds = append(conds, fmt.Sprintf("%s %s $%d", col("t", f.Column), sqlOperators[f.Op], len(args)))
		}
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}

	if len(query.Order) > 0 {
		var terms []string
		for _, o := range query.Order {
			dir := "ASC"
			if o.Descending {
				dir = "DESC"
			}
			terms = append(terms, col("t", o.Column)+" "+dir)
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(terms, ", "))
	}

	return b.String(), args
}

func nest(query Query, fields []pgconn.FieldDescription, values []any) Row {
	row := make(Row, len(query.Columns)+len(query.Joins))
	embedded := make(map[string]map[string]any, len(query.Joins))
	present := make(map[string]bool, len(query.Joins))

	for i, fd := range fields {
		table, column, ok := strings.Cut(fd.Name, ".")
		if !ok {
			row[fd.Name] = values[i]
			continue
		}
		if column == joinKeyColumn {
			present[table] = values[i] != nil
			continue
		}
		if embedded[table] == nil {
			embedded[table] = make(map[string]any)
		}
		embedded[table][column] = values[i]
	}

	for _, j := range query.Joins {
		if present[j.Table] {
			row[j.Table] = embedded[j.Table]
		} else {
			row[j.Table] = nil
		}
	}
	return row
}

var _ Querier = (*PostgresQuerier)(nil)
