// Package aggregate merges per-page records and joins them with plot lookups.
package aggregate

import "github.com/JakeFAU/movie-plot-crawler/internal/movie"

// Concat flattens per-page batches, keeping page order then block order.
func Concat(batches [][]movie.Record) []movie.Record {
	n := 0
	for _, b := range batches {
		n += len(b)
	}
	out := make([]movie.Record, 0, n)
	for _, b := range batches {
		out = append(out, b...)
	}
	return out
}

// UniqueTitles returns each title once, in order of first appearance.
func UniqueTitles(records []movie.Record) []string {
	seen := make(map[string]struct{}, len(records))
	titles := make([]string, 0, len(records))
	for _, r := range records {
		if _, ok := seen[r.Title]; ok {
			continue
		}
		seen[r.Title] = struct{}{}
		titles = append(titles, r.Title)
	}
	return titles
}

// Join pairs every record with the plot result of the same title, keeping
// record order. Records whose title has no result are dropped, and a title
// listed under several genres yields one row per listing, all with the same plot.
func Join(records []movie.Record, plots []movie.PlotResult) []movie.Row {
	byTitle := make(map[string]movie.PlotResult, len(plots))
	for _, p := range plots {
		if _, ok := byTitle[p.Title]; !ok {
			byTitle[p.Title] = p
		}
	}
	rows := make([]movie.Row, 0, len(records))
	for _, r := range records {
		p, ok := byTitle[r.Title]
		if !ok {
			continue
		}
		plot := ""
		if p.Found() {
			plot = p.Plot
		}
		rows = append(rows, movie.Row{Record: r, Plot: plot})
	}
	return rows
}

// KeepPlotted drops rows without plot text.
func KeepPlotted(rows []movie.Row) []movie.Row {
	out := make([]movie.Row, 0, len(rows))
	for _, r := range rows {
		if r.Plot == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}

// CountReasons tallies plot results by outcome.
func CountReasons(plots []movie.PlotResult) map[movie.PlotReason]int {
	out := make(map[movie.PlotReason]int)
	for _, p := range plots {
		out[p.Reason]++
	}
	return out
}
