// Package app builds the long-lived services of a crawl run from Config and
// owns their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/movie-plot-crawler/internal/api"
	"github.com/JakeFAU/movie-plot-crawler/internal/clock/system"
	"github.com/JakeFAU/movie-plot-crawler/internal/config"
	collyfetcher "github.com/JakeFAU/movie-plot-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/movie-plot-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/movie-plot-crawler/internal/hash/sha256"
	"github.com/JakeFAU/movie-plot-crawler/internal/headless/detector"
	"github.com/JakeFAU/movie-plot-crawler/internal/id/uuid"
	"github.com/JakeFAU/movie-plot-crawler/internal/listing"
	"github.com/JakeFAU/movie-plot-crawler/internal/logging"
	"github.com/JakeFAU/movie-plot-crawler/internal/metrics"
	"github.com/JakeFAU/movie-plot-crawler/internal/movie"
	"github.com/JakeFAU/movie-plot-crawler/internal/pipeline"
	"github.com/JakeFAU/movie-plot-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/movie-plot-crawler/internal/policy/retry"
	"github.com/JakeFAU/movie-plot-crawler/internal/progress"
	"github.com/JakeFAU/movie-plot-crawler/internal/progress/sinks"
	pubsubpublisher "github.com/JakeFAU/movie-plot-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/movie-plot-crawler/internal/storage/gcs"
	"github.com/JakeFAU/movie-plot-crawler/internal/storage/local"
	"github.com/JakeFAU/movie-plot-crawler/internal/storage/postgres"
	"github.com/JakeFAU/movie-plot-crawler/internal/wiki"
)

// App holds the wired pipeline plus everything that must be closed after it.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	pipeline *pipeline.Pipeline
	tracker  *progress.Tracker
	hub      *progress.Hub
	server   *api.Server
	checks   map[string]api.ReadyCheck
	closers  []func()
}

// New wires every component named by cfg. On error, anything already opened
// is closed before returning.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	logger = logging.OrNop(logger)
	metrics.Init()

	a := &App{
		cfg:     cfg,
		logger:  logger,
		tracker: progress.NewTracker(),
		checks:  map[string]api.ReadyCheck{},
	}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	a.hub = progress.NewHub(progress.Config{Logger: logger.Named("progress")},
		a.tracker, sinks.NewLogSink(logger.Named("progress")))

	pages, err := listing.BuildPages(cfg.Listing.BaseURL, cfg.Listing.Genres,
		cfg.Listing.StartFirst, cfg.Listing.StartLast, cfg.Listing.StartStep)
	if err != nil {
		return nil, fmt.Errorf("build listing pages: %w", err)
	}

	listingFetcher, plotFetcher, err := a.buildFetchers()
	if err != nil {
		return nil, err
	}

	blob, err := a.buildBlobStore(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := a.buildRowStore(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := a.buildPublisher(ctx)
	if err != nil {
		return nil, err
	}

	a.pipeline, err = pipeline.New(pipeline.Config{
		Concurrency: cfg.Crawler.Concurrency,
		OutputPath:  cfg.Output.Path,
		ContentType: cfg.Output.ContentType,
	}, pipeline.Deps{
		Pages: pages,
		Scraper: listing.NewScraper(listingFetcher,
			listing.NewPause(cfg.Crawler.PauseMinSeconds, cfg.Crawler.PauseMaxSeconds),
			logger.Named("listing")),
		Plots: wiki.New(plotFetcher, wiki.Config{
			Endpoint: cfg.Wiki.Endpoint,
			Headings: cfg.Wiki.Headings,
		}, logger.Named("wiki")),
		Blob:      blob,
		Rows:      rows,
		Publisher: publisher,
		Progress:  a.hub,
		Hasher:    sha256.New(),
		Clock:     system.New(),
		IDs:       uuid.NewUUIDGenerator(),
		Logger:    logger.Named("pipeline"),
	})
	if err != nil {
		return nil, err
	}

	if cfg.Server.Addr != "" {
		a.server = api.NewServer(a.tracker, a.checks, logger.Named("api"))
	}
	return a, nil
}

// Run executes the pipeline once, serving the status endpoints meanwhile.
func (a *App) Run(ctx context.Context) (pipeline.Summary, error) {
	if a.server == nil {
		return a.pipeline.Run(ctx)
	}

	srvCtx, stopServer := context.WithCancel(ctx)
	srvErr := make(chan error, 1)
	go func() {
		srvErr <- a.server.ListenAndServe(srvCtx, a.cfg.Server.Addr)
	}()

	sum, err := a.pipeline.Run(ctx)
	stopServer()
	if serveErr := <-srvErr; serveErr != nil {
		a.logger.Warn("status server stopped with error", zap.Error(serveErr))
	}
	return sum, err
}

// Close flushes progress and releases clients in reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		if dropped := a.hub.Dropped(); dropped > 0 {
			a.logger.Warn("progress events dropped", zap.Int64("dropped", dropped))
		}
	}
	a.closeAll()
	return errors.Join(errs...)
}

func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// buildFetchers returns the listing fetcher and the plain HTTP fetcher used
// for the wiki API. Both retry transient failures behind one per-host limiter;
// with headless enabled, listings are rendered always or on promotion.
func (a *App) buildFetchers() (movie.Fetcher, movie.Fetcher, error) {
	cfg := a.cfg
	limiter := ratelimit.New(ratelimit.Config{
		RPS:   cfg.Crawler.RateLimitRPS,
		Burst: cfg.Crawler.RateLimitBurst,
	})
	policy := retry.NewPolicy(retry.Config{
		MaxRetries: cfg.HTTP.MaxRetries,
		BaseDelay:  cfg.BackoffInitial(),
		MaxDelay:   cfg.BackoffMax(),
	})
	httpFetcher := retry.Wrap(limiter.Wrap(collyfetcher.New(collyfetcher.Config{
		UserAgent:      cfg.Crawler.UserAgent,
		AcceptLanguage: cfg.Crawler.AcceptLanguage,
		RespectRobots:  cfg.Crawler.RespectRobots,
		Timeout:        cfg.RequestTimeout(),
	})), policy, a.logger.Named("retry"))
	if !cfg.Headless.Enabled {
		return httpFetcher, httpFetcher, nil
	}

	headless, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
		MaxParallel:       cfg.Headless.MaxParallel,
		UserAgent:         cfg.Crawler.UserAgent,
		AcceptLanguage:    cfg.Crawler.AcceptLanguage,
		NavigationTimeout: cfg.NavTimeout(),
		WaitSelector:      cfg.Headless.WaitSelector,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("headless fetcher: %w", err)
	}
	a.closers = append(a.closers, headless.Close)
	a.logger.Info("headless listing fetcher enabled",
		zap.String("mode", cfg.Headless.Mode),
		zap.Int("max_parallel", cfg.Headless.MaxParallel),
	)

	rendered := retry.Wrap(limiter.Wrap(headless), policy, a.logger.Named("retry"))
	if cfg.Headless.Mode == config.HeadlessAuto {
		return detector.NewPromotingFetcher(httpFetcher, rendered,
			detector.NewHeuristic(cfg.Headless.PromotionThreshold), a.logger.Named("detector")), httpFetcher, nil
	}
	return rendered, httpFetcher, nil
}

func (a *App) buildBlobStore(ctx context.Context) (movie.BlobStore, error) {
	out := a.cfg.Output
	switch out.Backend {
	case config.BackendLocal:
		store, err := local.New(local.Config{BaseDir: out.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store: %w", err)
		}
		return store, nil
	case config.BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := client.Close(); err != nil {
				a.logger.Warn("gcs client close failed", zap.Error(err))
			}
		})
		store, err := gcs.New(client, gcs.Config{Bucket: out.GCSBucket, Prefix: out.GCSPrefix})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown output backend %q", out.Backend)
	}
}

// buildRowStore returns nil when no DSN is configured.
func (a *App) buildRowStore(ctx context.Context) (movie.RowStore, error) {
	db := a.cfg.DB
	if db.DSN == "" {
		return nil, nil
	}
	store, err := postgres.NewRowStore(ctx, postgres.RowStoreConfig{
		DSN:      db.DSN,
		Table:    db.Table,
		MaxConns: int32(db.MaxConns),
	})
	if err != nil {
		return nil, fmt.Errorf("postgres row store: %w", err)
	}
	a.closers = append(a.closers, store.Close)
	a.checks["postgres"] = store.Ping
	if db.EnsureSchema {
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// buildPublisher returns nil when Pub/Sub is not configured.
func (a *App) buildPublisher(ctx context.Context) (movie.Publisher, error) {
	ps := a.cfg.PubSub
	if ps.ProjectID == "" || ps.TopicName == "" {
		return nil, nil
	}
	client, err := pubsub.NewClient(ctx, ps.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	a.closers = append(a.closers, func() {
		if err := client.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	})
	pub := pubsubpublisher.New(client.Topic(ps.TopicName), map[string]string{"source": "moviecrawler"})
	a.closers = append(a.closers, pub.Close)
	return pub, nil
}
