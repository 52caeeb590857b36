package detector

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/movie-plot-crawler/internal/logging"
	"github.com/JakeFAU/movie-plot-crawler/internal/metrics"
	"github.com/JakeFAU/movie-plot-crawler/internal/movie"
)

// Promoter decides from a plain response whether to render the page.
type Promoter interface {
	ShouldPromote(resp movie.FetchResponse) bool
}

// PromotingFetcher fetches with primary and re-fetches with headless when
// the promoter flags the response.
type PromotingFetcher struct {
	primary  movie.Fetcher
	headless movie.Fetcher
	promoter Promoter
	logger   *zap.Logger
}

// NewPromotingFetcher wires the two fetchers behind promoter.
func NewPromotingFetcher(primary, headless movie.Fetcher, promoter Promoter, logger *zap.Logger) *PromotingFetcher {
	return &PromotingFetcher{
		primary:  primary,
		headless: headless,
		promoter: promoter,
		logger:   logging.OrNop(logger),
	}
}

// Fetch implements movie.Fetcher. Errors from primary are returned as is.
func (f *PromotingFetcher) Fetch(ctx context.Context, request movie.FetchRequest) (movie.FetchResponse, error) {
	resp, err := f.primary.Fetch(ctx, request)
	if err != nil {
		return movie.FetchResponse{}, err
	}
	if !f.promoter.ShouldPromote(resp) {
		return resp, nil
	}

	f.logger.Debug("promoting fetch to headless",
		zap.String("url", request.URL),
		zap.Int("body_bytes", len(resp.Body)),
	)
	metrics.ObserveHeadlessPromotion()
	return f.headless.Fetch(ctx, request)
}
