// Package catalog reads the novel's characters and chapters for the list pages.
package catalog

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/go-viper/mapstructure/v2"

	"github.com/johnmaccormick/mirDB/internal/backend"
)

// ErrMissingPrimaryKey is returned for a row that carries no id.
var ErrMissingPrimaryKey = errors.New("record has no primary key")

// Honorific is the embedded honorifics row of a character.
type Honorific struct {
	Title string `mapstructure:"title"`
}

// ChapterRef is the embedded chapter a character first appears in.
type ChapterRef struct {
	Book    int `mapstructure:"mse_book"`
	Chapter int `mapstructure:"mse_chapter"`
}

// Character is one row of the characters page.
type Character struct {
	ID           int64       `mapstructure:"id"`
	Name         string      `mapstructure:"name"`
	Honorific    *Honorific  `mapstructure:"honorifics"`
	FirstAppears *ChapterRef `mapstructure:"chapters"`
}

// HonorificTitle returns the title, or "none" when the character has none.
func (c Character) HonorificTitle() string {
	if c.Honorific == nil || c.Honorific.Title == "" {
		return "none"
	}
	return c.Honorific.Title
}

// FirstBook returns the book of the first appearance, or 'unknown'.
func (c Character) FirstBook() string {
	if c.FirstAppears == nil {
		return "'unknown'"
	}
	return strconv.Itoa(c.FirstAppears.Book)
}

// FirstChapter returns the chapter of the first appearance, or 'unknown'.
func (c Character) FirstChapter() string {
	if c.FirstAppears == nil {
		return "'unknown'"
	}
	return strconv.Itoa(c.FirstAppears.Chapter)
}

// Chapter is one row of the chapters page. Book and chapter numbers follow the
// Maude translation (mse_*) and the original Russian edition (ors_*).
type Chapter struct {
	ID          int64  `mapstructure:"id"`
	MSEBook     int    `mapstructure:"mse_book"`
	MSEPart     int    `mapstructure:"mse_part"`
	MSEChapter  int    `mapstructure:"mse_chapter"`
	ORSBook     int    `mapstructure:"ors_book"`
	ORSChapter  int    `mapstructure:"ors_chapter"`
	OpeningLine string `mapstructure:"opening_line"`
	PageNum     *int   `mapstructure:"page_num"`
}

// Page returns the page number, or "unknown" when it was never recorded.
func (c Chapter) Page() string {
	if c.PageNum == nil || *c.PageNum == 0 {
		return "unknown"
	}
	return strconv.Itoa(*c.PageNum)
}

// decodeRows decodes every row into a T. Rows from PostgREST carry JSON
// numbers as float64 and rows from Postgres carry sized integers, so decoding
// is weakly typed.
func decodeRows[T any](rows []backend.Row) ([]T, error) {
	out := make([]T, 0, len(rows))
	for i, row := range rows {
		if row["id"] == nil {
			return nil, fmt.Errorf("row %d: %w", i, ErrMissingPrimaryKey)
		}

		var record T
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &record,
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(map[string]any(row)); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, record)
	}
	return out, nil
}
