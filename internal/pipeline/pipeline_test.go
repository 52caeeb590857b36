package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/movie-plot-crawler/internal/clock/system"
	"github.com/JakeFAU/movie-plot-crawler/internal/hash/sha256"
	"github.com/JakeFAU/movie-plot-crawler/internal/movie"
	"github.com/JakeFAU/movie-plot-crawler/internal/progress"
	pubmemory "github.com/JakeFAU/movie-plot-crawler/internal/publisher/memory"
	"github.com/JakeFAU/movie-plot-crawler/internal/storage/memory"
)

type fakeScraper struct {
	pages map[string][]movie.Record
	fail  map[string]error
}

func (f *fakeScraper) Scrape(_ context.Context, page movie.Page) ([]movie.Record, error) {
	if err := f.fail[page.URL]; err != nil {
		return nil, err
	}
	return f.pages[page.URL], nil
}

type fakePlots struct {
	mu      sync.Mutex
	results map[string]movie.PlotResult
	calls   map[string]int
}

func newFakePlots(results map[string]movie.PlotResult) *fakePlots {
	return &fakePlots{results: results, calls: map[string]int{}}
}

func (f *fakePlots) Lookup(_ context.Context, title string) movie.PlotResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[title]++
	if res, ok := f.results[title]; ok {
		res.Title = title
		return res
	}
	return movie.PlotResult{Title: title, Reason: movie.PlotNotFound}
}

type fakeRows struct {
	runID string
	rows  []movie.Row
	err   error
}

func (f *fakeRows) StoreRows(_ context.Context, runID string, rows []movie.Row) error {
	if f.err != nil {
		return f.err
	}
	f.runID = runID
	f.rows = append(f.rows, rows...)
	return nil
}

type fixedID string

func (f fixedID) NewID() (string, error) { return string(f), nil }

var runAt = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func page(genre, url string) movie.Page {
	return movie.Page{Genre: genre, Start: 1, URL: url}
}

func rec(title, genre string) movie.Record {
	return movie.Record{Title: title, Year: "(2019)", Runtime: "95 min", Genre: genre}
}

func newTestPipeline(t *testing.T, deps Deps) (*Pipeline, *memory.BlobStore) {
	t.Helper()
	blob := memory.NewBlobStore()
	if deps.Blob == nil {
		deps.Blob = blob
	}
	deps.Hasher = sha256.New()
	deps.Clock = system.Fixed(runAt)
	deps.IDs = fixedID("run-1")
	p, err := New(Config{Concurrency: 3}, deps)
	require.NoError(t, err)
	return p, blob
}

func readCSV(t *testing.T, blob *memory.BlobStore) [][]string {
	t.Helper()
	data, contentType, ok := blob.Object("movieData.csv")
	require.True(t, ok, "dataset not written")
	assert.Equal(t, "text/csv; charset=utf-8", contentType)
	records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	return records
}

func TestRunJoinsDuplicateTitlesAcrossGenres(t *testing.T) {
	t.Parallel()

	scraper := &fakeScraper{pages: map[string][]movie.Record{
		"comedy-1": {rec("Twin Movie", "Comedy"), rec("Lost Film", "Comedy")},
		"drama-1":  {rec("Twin Movie", "Drama")},
	}}
	plots := newFakePlots(map[string]movie.PlotResult{
		"Twin Movie": {Plot: "Two twins swap lives.", Reason: movie.PlotFound},
	})
	rows := &fakeRows{}
	pub := pubmemory.New()
	p, blob := newTestPipeline(t, Deps{
		Pages:     []movie.Page{page("comedy", "comedy-1"), page("drama", "drama-1")},
		Scraper:   scraper,
		Plots:     plots,
		Rows:      rows,
		Publisher: pub,
	})

	sum, err := p.Run(context.Background())
	require.NoError(t, err)

	got := readCSV(t, blob)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"movie", "year", "time_minute", "certificate", "imdb_rating", "genre", "cast", "directors", "plot"}, got[0])
	assert.Equal(t, []string{"Twin Movie", "(2019)", "95 min", "", "", "Comedy", "", "", "Two twins swap lives."}, got[1])
	assert.Equal(t, "Drama", got[2][5])
	assert.Equal(t, "Two twins swap lives.", got[2][8])

	assert.Equal(t, 1, plots.calls["Twin Movie"], "each unique title is looked up once")
	assert.Equal(t, 1, plots.calls["Lost Film"])

	assert.Equal(t, "run-1", sum.RunID)
	assert.Equal(t, 2, sum.Pages)
	assert.Equal(t, 3, sum.Records)
	assert.Equal(t, 2, sum.UniqueTitles)
	assert.Equal(t, 2, sum.RowsWritten)
	assert.Equal(t, map[string]int{"found": 1, "not_found": 1}, sum.PlotReasons)
	assert.Equal(t, "memory://movieData.csv", sum.OutputURI)
	assert.Len(t, sum.SHA256, 64)
	assert.Equal(t, runAt, sum.StartedAt)

	assert.Equal(t, "run-1", rows.runID)
	assert.Len(t, rows.rows, 2)

	payloads := pub.Payloads()
	require.Len(t, payloads, 1)
	assert.Equal(t, sum, payloads[0])
}

func TestRunPageErrorWritesNothing(t *testing.T) {
	t.Parallel()

	boom := errors.New("HTTP 503")
	scraper := &fakeScraper{
		pages: map[string][]movie.Record{"comedy-1": {rec("A", "Comedy")}},
		fail:  map[string]error{"drama-1": boom},
	}
	plots := newFakePlots(nil)
	rows := &fakeRows{}
	pub := pubmemory.New()
	p, blob := newTestPipeline(t, Deps{
		Pages:     []movie.Page{page("comedy", "comedy-1"), page("drama", "drama-1")},
		Scraper:   scraper,
		Plots:     plots,
		Rows:      rows,
		Publisher: pub,
	})

	_, err := p.Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "scrape listing pages")

	assert.Zero(t, blob.Puts())
	assert.Empty(t, rows.rows)
	assert.Empty(t, pub.Payloads())
	assert.Empty(t, plots.calls)
}

func TestRunKeepsOnlyPlottedRows(t *testing.T) {
	t.Parallel()

	scraper := &fakeScraper{pages: map[string][]movie.Record{
		"p": {rec("Found", "Drama"), rec("Ambiguous", "Drama"), rec("Offline", "Drama"), rec("NoSection", "Drama")},
	}}
	plots := newFakePlots(map[string]movie.PlotResult{
		"Found":     {Plot: "It happens.", Reason: movie.PlotFound},
		"Ambiguous": {Reason: movie.PlotAmbiguous},
		"Offline":   {Reason: movie.PlotNetworkError, Err: errors.New("dial tcp")},
		"NoSection": {Reason: movie.PlotNoMatchingSection},
	})
	p, blob := newTestPipeline(t, Deps{
		Pages:   []movie.Page{page("drama", "p")},
		Scraper: scraper,
		Plots:   plots,
	})

	sum, err := p.Run(context.Background())
	require.NoError(t, err)

	got := readCSV(t, blob)
	require.Len(t, got, 2)
	assert.Equal(t, "Found", got[1][0])
	for _, row := range got[1:] {
		assert.NotEmpty(t, row[8])
	}
	assert.Equal(t, 1, sum.RowsWritten)
	assert.Equal(t, map[string]int{"found": 1, "ambiguous": 1, "network_error": 1, "no_matching_section": 1}, sum.PlotReasons)
}

func TestRunNoRecordsWritesHeaderOnly(t *testing.T) {
	t.Parallel()

	rows := &fakeRows{}
	p, blob := newTestPipeline(t, Deps{
		Pages:   []movie.Page{page("short", "empty")},
		Scraper: &fakeScraper{},
		Plots:   newFakePlots(nil),
		Rows:    rows,
	})

	sum, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, readCSV(t, blob), 1)
	assert.Zero(t, sum.RowsWritten)
	assert.Empty(t, rows.runID, "no rows, no insert")
}

func TestRunPublishFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	pub := pubmemory.New()
	pub.FailWith(errors.New("topic not found"))
	p, blob := newTestPipeline(t, Deps{
		Pages:     []movie.Page{page("drama", "p")},
		Scraper:   &fakeScraper{pages: map[string][]movie.Record{"p": {rec("A", "Drama")}}},
		Plots:     newFakePlots(map[string]movie.PlotResult{"A": {Plot: "x", Reason: movie.PlotFound}}),
		Publisher: pub,
	})

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, blob.Puts())
}

func TestRunRowStoreErrorIsReturned(t *testing.T) {
	t.Parallel()

	p, _ := newTestPipeline(t, Deps{
		Pages:   []movie.Page{page("drama", "p")},
		Scraper: &fakeScraper{pages: map[string][]movie.Record{"p": {rec("A", "Drama")}}},
		Plots:   newFakePlots(map[string]movie.PlotResult{"A": {Plot: "x", Reason: movie.PlotFound}}),
		Rows:    &fakeRows{err: errors.New("conn refused")},
	})

	_, err := p.Run(context.Background())
	require.ErrorContains(t, err, "store rows: conn refused")
}

func TestRunReportsProgress(t *testing.T) {
	t.Parallel()

	tracker := progress.NewTracker()
	hub := progress.NewHub(progress.Config{}, tracker)
	p, _ := newTestPipeline(t, Deps{
		Pages: []movie.Page{page("comedy", "c"), page("drama", "d")},
		Scraper: &fakeScraper{pages: map[string][]movie.Record{
			"c": {rec("A", "Comedy"), rec("B", "Comedy")},
			"d": {rec("A", "Drama")},
		}},
		Plots:    newFakePlots(map[string]movie.PlotResult{"A": {Plot: "x", Reason: movie.PlotFound}}),
		Progress: hub,
	})

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, hub.Close(context.Background()))

	snap := tracker.Snapshot()
	assert.Equal(t, "run-1", snap.RunID)
	assert.Equal(t, progress.StageRunDone, snap.Stage)
	assert.Equal(t, 2, snap.PagesTotal)
	assert.Equal(t, 2, snap.PagesDone)
	assert.Equal(t, 3, snap.Records)
	assert.Equal(t, 2, snap.TitlesTotal)
	assert.Equal(t, 2, snap.TitlesDone)
	assert.Equal(t, 2, snap.RowsWritten)
	assert.Equal(t, "memory://movieData.csv", snap.OutputURI)
}

func TestRunCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p, blob := newTestPipeline(t, Deps{
		Pages:   []movie.Page{page("drama", "p")},
		Scraper: &fakeScraper{},
		Plots:   newFakePlots(nil),
	})

	_, err := p.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, blob.Puts())
}

func TestNewValidatesDeps(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, Deps{})
	require.Error(t, err)

	_, err = New(Config{}, Deps{Scraper: &fakeScraper{}, Plots: newFakePlots(nil)})
	require.ErrorContains(t, err, "blob store")
}
