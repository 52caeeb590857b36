// Package pipeline runs one end-to-end crawl: scrape every listing page,
// look up a plot for every unique title, and write the joined dataset.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/movie-plot-crawler/internal/aggregate"
	"github.com/JakeFAU/movie-plot-crawler/internal/dataset"
	"github.com/JakeFAU/movie-plot-crawler/internal/dispatcher"
	"github.com/JakeFAU/movie-plot-crawler/internal/logging"
	"github.com/JakeFAU/movie-plot-crawler/internal/metrics"
	"github.com/JakeFAU/movie-plot-crawler/internal/movie"
	"github.com/JakeFAU/movie-plot-crawler/internal/progress"
)

const defaultOutputPath = "movieData.csv"

// PageScraper returns the records of one listing page.
type PageScraper interface {
	Scrape(ctx context.Context, page movie.Page) ([]movie.Record, error)
}

// PlotLooker resolves a title to plot text. It must not fail the batch.
type PlotLooker interface {
	Lookup(ctx context.Context, title string) movie.PlotResult
}

// Config holds the run-level knobs.
type Config struct {
	// Concurrency bounds each stage's worker pool; <= 0 means NumCPU.
	Concurrency int
	OutputPath  string
	ContentType string
}

// Deps are the collaborators of a Pipeline. Rows, Publisher and Progress are optional.
type Deps struct {
	Pages     []movie.Page
	Scraper   PageScraper
	Plots     PlotLooker
	Blob      movie.BlobStore
	Rows      movie.RowStore
	Publisher movie.Publisher
	Progress  progress.Emitter
	Hasher    movie.Hasher
	Clock     movie.Clock
	IDs       movie.IDGenerator
	Logger    *zap.Logger
}

// Summary describes a finished run. It is also the Pub/Sub payload.
type Summary struct {
	RunID        string         `json:"run_id"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
	Pages        int            `json:"pages"`
	Records      int            `json:"records"`
	UniqueTitles int            `json:"unique_titles"`
	PlotReasons  map[string]int `json:"plot_reasons"`
	RowsWritten  int            `json:"rows_written"`
	OutputURI    string         `json:"output_uri"`
	SHA256       string         `json:"sha256"`
}

// Pipeline wires the stages together.
type Pipeline struct {
	cfg  Config
	deps Deps
	log  *zap.Logger
}

// New validates deps and returns a Pipeline.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	switch {
	case deps.Scraper == nil:
		return nil, errors.New("pipeline: scraper is required")
	case deps.Plots == nil:
		return nil, errors.New("pipeline: plot lookup is required")
	case deps.Blob == nil:
		return nil, errors.New("pipeline: blob store is required")
	case deps.Hasher == nil:
		return nil, errors.New("pipeline: hasher is required")
	case deps.Clock == nil:
		return nil, errors.New("pipeline: clock is required")
	case deps.IDs == nil:
		return nil, errors.New("pipeline: id generator is required")
	}
	if cfg.OutputPath == "" {
		cfg.OutputPath = defaultOutputPath
	}
	if cfg.ContentType == "" {
		cfg.ContentType = dataset.ContentType
	}
	if deps.Progress == nil {
		deps.Progress = progress.Discard{}
	}
	return &Pipeline{cfg: cfg, deps: deps, log: logging.OrNop(deps.Logger)}, nil
}

// Run executes the crawl. A listing page failure aborts the run before
// anything is written; plot lookup failures only drop the affected titles.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	runID, err := p.deps.IDs.NewID()
	if err != nil {
		return Summary{}, fmt.Errorf("generate run id: %w", err)
	}
	sum := Summary{RunID: runID, StartedAt: p.deps.Clock.Now(), Pages: len(p.deps.Pages)}
	log := p.log.With(zap.String("run_id", runID))
	p.emit(progress.Event{RunID: runID, Stage: progress.StageRunStart, Total: len(p.deps.Pages)})
	log.Info("run started",
		zap.Int("pages", len(p.deps.Pages)),
		zap.Int("concurrency", dispatcher.Limit(p.cfg.Concurrency)),
	)

	if err := p.run(ctx, log, &sum); err != nil {
		p.emit(progress.Event{RunID: runID, Stage: progress.StageRunError, Note: err.Error()})
		return sum, err
	}

	sum.FinishedAt = p.deps.Clock.Now()
	p.emit(progress.Event{RunID: runID, Stage: progress.StageRunDone, Dur: nonNegative(sum.FinishedAt.Sub(sum.StartedAt))})
	log.Info("run finished",
		zap.Int("records", sum.Records),
		zap.Int("unique_titles", sum.UniqueTitles),
		zap.Int("rows_written", sum.RowsWritten),
		zap.Any("plot_reasons", sum.PlotReasons),
		zap.String("output_uri", sum.OutputURI),
		zap.String("sha256", sum.SHA256),
	)
	p.publish(ctx, log, sum)
	return sum, nil
}

func (p *Pipeline) run(ctx context.Context, log *zap.Logger, sum *Summary) error {
	batches, err := dispatcher.Map(ctx, p.cfg.Concurrency, p.deps.Pages, p.scrapePage(sum.RunID))
	if err != nil {
		return fmt.Errorf("scrape listing pages: %w", err)
	}
	records := aggregate.Concat(batches)
	titles := aggregate.UniqueTitles(records)
	sum.Records = len(records)
	sum.UniqueTitles = len(titles)
	log.Info("listing stage done", zap.Int("records", len(records)), zap.Int("unique_titles", len(titles)))

	p.emit(progress.Event{RunID: sum.RunID, Stage: progress.StageLookupStart, Total: len(titles)})
	plots, err := dispatcher.Map(ctx, p.cfg.Concurrency, titles, p.lookupPlot(sum.RunID))
	if err != nil {
		return fmt.Errorf("look up plots: %w", err)
	}
	sum.PlotReasons = reasonCounts(plots)

	rows := aggregate.KeepPlotted(aggregate.Join(records, plots))
	data, err := dataset.Encode(rows)
	if err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}
	if sum.SHA256, err = p.deps.Hasher.Hash(data); err != nil {
		return fmt.Errorf("hash dataset: %w", err)
	}
	uri, err := p.deps.Blob.PutObject(ctx, p.cfg.OutputPath, p.cfg.ContentType, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("write dataset %s: %w", p.cfg.OutputPath, err)
	}
	sum.OutputURI = uri
	sum.RowsWritten = len(rows)
	metrics.ObserveRowsWritten(len(rows))
	p.emit(progress.Event{RunID: sum.RunID, Stage: progress.StageWriteDone, Records: len(rows), Note: uri})

	if p.deps.Rows != nil && len(rows) > 0 {
		if err := p.deps.Rows.StoreRows(ctx, sum.RunID, rows); err != nil {
			return fmt.Errorf("store rows: %w", err)
		}
		log.Info("rows stored", zap.Int("rows", len(rows)))
	}
	return nil
}

func (p *Pipeline) scrapePage(runID string) func(context.Context, movie.Page) ([]movie.Record, error) {
	return func(ctx context.Context, page movie.Page) ([]movie.Record, error) {
		start := time.Now()
		records, err := p.deps.Scraper.Scrape(ctx, page)
		if err != nil {
			return nil, err
		}
		p.emit(progress.Event{
			RunID:   runID,
			Stage:   progress.StagePageDone,
			Genre:   page.Genre,
			Start:   page.Start,
			Records: len(records),
			Dur:     time.Since(start),
		})
		return records, nil
	}
}

func (p *Pipeline) lookupPlot(runID string) func(context.Context, string) (movie.PlotResult, error) {
	return func(ctx context.Context, title string) (movie.PlotResult, error) {
		res := p.deps.Plots.Lookup(ctx, title)
		p.emit(progress.Event{RunID: runID, Stage: progress.StagePlotDone, Title: title, Reason: res.Reason})
		return res, nil
	}
}

// publish announces the summary; a failed notification does not fail the run.
func (p *Pipeline) publish(ctx context.Context, log *zap.Logger, sum Summary) {
	if p.deps.Publisher == nil {
		return
	}
	id, err := p.deps.Publisher.Publish(ctx, sum)
	if err != nil {
		log.Warn("publish run summary failed", zap.Error(err))
		return
	}
	log.Info("run summary published", zap.String("message_id", id))
}

func (p *Pipeline) emit(evt progress.Event) {
	evt.TS = p.deps.Clock.Now()
	p.deps.Progress.Emit(evt)
}

func reasonCounts(plots []movie.PlotResult) map[string]int {
	out := make(map[string]int)
	for reason, n := range aggregate.CountReasons(plots) {
		out[string(reason)] = n
	}
	return out
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
