package listing

import (
	"bytes"
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/movie-plot-crawler/internal/logging"
	"github.com/JakeFAU/movie-plot-crawler/internal/metrics"
	"github.com/JakeFAU/movie-plot-crawler/internal/movie"
)

// Pause sleeps for a whole number of seconds drawn uniformly from [Min, Max]
// after each listing fetch. A zero Pause never sleeps.
type Pause struct {
	Min time.Duration
	Max time.Duration

	// intN is swapped in tests.
	intN func(n int64) int64
}

// NewPause builds a Pause from second bounds.
func NewPause(minSeconds, maxSeconds int) Pause {
	return Pause{
		Min: time.Duration(minSeconds) * time.Second,
		Max: time.Duration(maxSeconds) * time.Second,
	}
}

// Next draws the next pause duration.
func (p Pause) Next() time.Duration {
	lo, hi := int64(p.Min/time.Second), int64(p.Max/time.Second)
	if hi < lo {
		hi = lo
	}
	if hi <= 0 {
		return 0
	}
	intN := p.intN
	if intN == nil {
		intN = rand.Int64N
	}
	return time.Duration(lo+intN(hi-lo+1)) * time.Second
}

// Wait sleeps for Next(), returning early with an error if ctx ends.
func (p Pause) Wait(ctx context.Context) (time.Duration, error) {
	d := p.Next()
	if d <= 0 {
		return 0, nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("pause canceled: %w", ctx.Err())
	case <-timer.C:
		metrics.ObservePause(d)
		return d, nil
	}
}

// Scraper fetches a listing page, pauses, and parses it.
type Scraper struct {
	fetcher movie.Fetcher
	pause   Pause
	logger  *zap.Logger
}

// NewScraper constructs a Scraper.
func NewScraper(fetcher movie.Fetcher, pause Pause, logger *zap.Logger) *Scraper {
	return &Scraper{
		fetcher: fetcher,
		pause:   pause,
		logger:  logging.OrNop(logger),
	}
}

// Scrape returns the records of one listing page. Any fetch or parse failure
// is returned to the caller; listing pages are not best-effort.
func (s *Scraper) Scrape(ctx context.Context, page movie.Page) ([]movie.Record, error) {
	log := s.logger.With(zap.String("genre", page.Genre), zap.Int("start", page.Start))

	resp, err := s.fetcher.Fetch(ctx, movie.FetchRequest{URL: page.URL})
	if err != nil {
		metrics.ObserveListingPage("fetch_error", 0)
		return nil, fmt.Errorf("fetch listing %s start=%d: %w", page.Genre, page.Start, err)
	}
	log.Debug("listing fetched", zap.Int("status", resp.StatusCode), zap.Int("bytes", len(resp.Body)))

	waited, err := s.pause.Wait(ctx)
	if err != nil {
		return nil, err
	}

	records, err := Parse(bytes.NewReader(resp.Body))
	if err != nil {
		metrics.ObserveListingPage("parse_error", 0)
		return nil, fmt.Errorf("parse listing %s start=%d: %w", page.Genre, page.Start, err)
	}
	metrics.ObserveListingPage("ok", len(records))
	log.Info("listing parsed", zap.Int("records", len(records)), zap.Duration("pause", waited))
	return records, nil
}
