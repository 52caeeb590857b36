// Package dataset encodes consolidated rows as the flat CSV artifact.
package dataset

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/JakeFAU/movie-plot-crawler/internal/movie"
)

// ContentType is the MIME type of the encoded dataset.
const ContentType = "text/csv; charset=utf-8"

// Columns is the fixed column order of the dataset.
var Columns = []string{
	"movie", "year", "time_minute", "certificate", "imdb_rating",
	"genre", "cast", "directors", "plot",
}

// WriteCSV writes the header then one line per row.
func WriteCSV(w io.Writer, rows []movie.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i, r := range rows {
		if err := cw.Write(record(r)); err != nil {
			return fmt.Errorf("write csv row %d (%q): %w", i, r.Title, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// Encode renders rows into an in-memory CSV document.
func Encode(rows []movie.Row) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func record(r movie.Row) []string {
	rating := ""
	if r.Rating != nil {
		rating = strconv.FormatFloat(*r.Rating, 'f', 1, 64)
	}
	return []string{
		r.Title,
		r.Year,
		r.Runtime,
		deref(r.Certificate),
		rating,
		r.Genre,
		deref(r.Cast),
		deref(r.Directors),
		r.Plot,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
