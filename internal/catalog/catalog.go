package catalog

import (
	"context"
	"log/slog"

	"github.com/johnmaccormick/mirDB/internal/backend"
	"github.com/johnmaccormick/mirDB/internal/logging"
)

// Empty-state messages.
const (
	NoCharacters = "No characters found."
	NoChapters   = "No chapters found."
)

// CharactersQuery selects every character with its honorific and the chapter
// it first appears in.
var CharactersQuery = backend.Query{
	Table:   "characters",
	Columns: []string{"id", "name"},
	Joins: []backend.Join{
		{Table: "honorifics", ForeignKey: "honorific", Columns: []string{"title"}},
		{Table: "chapters", ForeignKey: "first_appears", Columns: []string{"mse_book", "mse_chapter"}},
	},
	Order: []backend.Order{{Column: "id"}},
}

// ChaptersQuery selects every chapter in reading order.
var ChaptersQuery = backend.Query{
	Table:   "chapters",
	Columns: []string{"id", "mse_book", "mse_part", "mse_chapter", "ors_book", "ors_chapter", "opening_line", "page_num"},
	Order: []backend.Order{
		{Column: "mse_book"},
		{Column: "mse_part"},
		{Column: "mse_chapter"},
	},
}

// View is what a list page renders: either an error, an explicit empty state,
// or the records in query order.
type View[T any] struct {
	Records      []T
	Error        string
	EmptyMessage string
}

// Empty reports whether the query succeeded with no rows.
func (v View[T]) Empty() bool {
	return v.Error == "" && len(v.Records) == 0
}

// Service runs the catalog queries. Nothing is cached; every call queries the
// backend again.
type Service struct {
	q backend.Querier
}

// NewService returns a Service reading through q.
func NewService(q backend.Querier) *Service {
	if q == nil {
		panic("catalog: querier must not be nil")
	}
	return &Service{q: q}
}

// Characters loads the characters page.
func (s *Service) Characters(ctx context.Context) View[Character] {
	return load[Character](ctx, s.q, CharactersQuery, NoCharacters)
}

// Chapters loads the chapters page.
func (s *Service) Chapters(ctx context.Context) View[Chapter] {
	return load[Chapter](ctx, s.q, ChaptersQuery, NoChapters)
}

func load[T any](ctx context.Context, q backend.Querier, query backend.Query, empty string) View[T] {
	view := View[T]{EmptyMessage: empty}
	logger := logging.FromContext(ctx).With(slog.String("table", query.Table))

	rows, err := q.Select(ctx, query)
	if err != nil {
		logger.Warn("catalog query failed", slog.String("error", err.Error()))
		view.Error = "Error: " + backend.Message(err)
		return view
	}

	records, err := decodeRows[T](rows)
	if err != nil {
		logger.Warn("catalog decode failed", slog.String("error", err.Error()))
		view.Error = "Error: " + err.Error()
		return view
	}
	view.Records = records
	logger.Debug("catalog loaded", slog.Int("count", len(records)))
	return view
}
