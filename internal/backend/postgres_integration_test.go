//go:build integration

package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/cockroachdb/cockroach-go/v2/testserver"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	server, err := testserver.NewTestServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "start cockroach test server: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, server.PGURL().String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to cockroach test server: %v\n", err)
		server.Stop()
		os.Exit(1)
	}

	for _, dir := range []string{"migrations", "seeds"} {
		if err := applySQLDir(ctx, pool, filepath.Join("..", "..", dir)); err != nil {
			fmt.Fprintf(os.Stderr, "apply %s: %v\n", dir, err)
			pool.Close()
			server.Stop()
			os.Exit(1)
		}
	}

	testPool = pool
	code := m.Run()

	pool.Close()
	server.Stop()
	os.Exit(code)
}

func applySQLDir(ctx context.Context, pool *pgxpool.Pool, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		contents, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if _, err := pool.Exec(ctx, string(contents)); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func TestPostgresQuerierCharactersWithJoins(t *testing.T) {
	q := NewPostgresQuerier(testPool, "voyna_mir")

	rows, err := q.Select(context.Background(), Query{
		Table:   "characters",
		Columns: []string{"id", "name"},
		Joins: []Join{
			{Table: "honorifics", ForeignKey: "honorific", Columns: []string{"title"}},
			{Table: "chapters", ForeignKey: "first_appears", Columns: []string{"mse_book", "mse_chapter"}},
		},
		Order: []Order{{Column: "id"}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, rows)

	byName := make(map[string]Row, len(rows))
	for _, r := range rows {
		byName[r["name"].(string)] = r
	}

	pierre := byName["Pierre Bezukhov"]
	require.NotNil(t, pierre)
	assert.Equal(t, "Count", pierre["honorifics"].(map[string]any)["title"])

	natasha := byName["Natasha Rostova"]
	require.NotNil(t, natasha)
	assert.Nil(t, natasha["honorifics"])
}

func TestPostgresQuerierChaptersOrdered(t *testing.T) {
	q := NewPostgresQuerier(testPool, "voyna_mir")

	rows, err := q.Select(context.Background(), Query{
		Table:   "chapters",
		Columns: []string{"id", "mse_book", "mse_part", "mse_chapter"},
		Filters: []Filter{{Column: "mse_book", Op: OpEq, Value: int64(1)}},
		Order:   []Order{{Column: "mse_book"}, {Column: "mse_part"}, {Column: "mse_chapter"}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, rows)

	for i := 1; i < len(rows); i++ {
		prev, cur := rows[i-1], rows[i]
		assert.LessOrEqual(t, prev["mse_part"].(int64)*1000+prev["mse_chapter"].(int64), cur["mse_part"].(int64)*1000+cur["mse_chapter"].(int64))
	}
}

func TestPostgresQuerierMissingTable(t *testing.T) {
	q := NewPostgresQuerier(testPool, "voyna_mir")
	_, err := q.Select(context.Background(), Query{Table: "todos", Columns: []string{"id"}})
	assert.Error(t, err)
}
