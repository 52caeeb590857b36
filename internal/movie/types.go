// Package movie defines the records, results, and small interfaces shared across the crawler.
package movie

import (
	"net/http"
	"time"
)

// Page identifies one listing page for a genre/offset combination.
type Page struct {
	Genre string
	Start int
	URL   string
}

// Record is one movie block extracted from a listing page.
type Record struct {
	Title       string
	Year        string
	Runtime     string
	Certificate *string
	Rating      *float64
	Genre       string
	Cast        *string
	Directors   *string
}

// PlotReason tags the outcome of a plot lookup.
type PlotReason string

// Plot lookup outcomes.
const (
	PlotFound             PlotReason = "found"
	PlotNotFound          PlotReason = "not_found"
	PlotAmbiguous         PlotReason = "ambiguous"
	PlotNetworkError      PlotReason = "network_error"
	PlotNoMatchingSection PlotReason = "no_matching_section"
)

// PlotResult carries either plot text or the reason it is absent.
// Err keeps the underlying failure for diagnostics; it never changes control flow.
type PlotResult struct {
	Title  string
	Plot   string
	Reason PlotReason
	Err    error
}

// Found reports whether the lookup produced usable plot text.
func (p PlotResult) Found() bool {
	return p.Reason == PlotFound && p.Plot != ""
}

// Row is a Record joined with its plot text.
type Row struct {
	Record
	Plot string
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

// FloatPtr returns a pointer to f.
func FloatPtr(f float64) *float64 {
	return &f
}
