// Package metrics exposes Prometheus collectors for the movie crawler.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	listingPagesTotal          *prometheus.CounterVec
	listingRecordsTotal        prometheus.Counter
	plotLookupsTotal           *prometheus.CounterVec
	rowsWrittenTotal           prometheus.Counter
	fetchDurationSeconds       *prometheus.HistogramVec
	pauseSeconds               prometheus.Histogram
	activeWorkers              prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	fetchRetriesTotal          *prometheus.CounterVec
	headlessPromotionsTotal    prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		listingPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moviecrawler_listing_pages_total",
				Help: "Total number of listing pages processed, labeled by status.",
			},
			[]string{"status"},
		)

		listingRecordsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "moviecrawler_listing_records_total",
				Help: "Total number of movie records extracted from listing pages.",
			},
		)

		plotLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moviecrawler_plot_lookups_total",
				Help: "Total number of plot lookups, labeled by outcome.",
			},
			[]string{"reason"},
		)

		rowsWrittenTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "moviecrawler_rows_written_total",
				Help: "Total number of consolidated rows written to the dataset.",
			},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "moviecrawler_fetch_duration_seconds",
				Help:    "Histogram of fetch latencies, labeled by site.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
		)

		pauseSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "moviecrawler_pause_seconds",
				Help:    "Histogram of randomized pauses taken after listing fetches.",
				Buckets: []float64{1, 2, 4, 6, 8, 10, 15},
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "moviecrawler_active_workers",
				Help: "Number of workers currently processing an input.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "moviecrawler_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moviecrawler_http_requests_total",
				Help: "Total number of status server requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "moviecrawler_http_request_duration_seconds",
				Help:    "Histogram of status server latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"method", "route"},
		)

		fetchRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moviecrawler_fetch_retries_total",
				Help: "Total number of fetch retries, labeled by site.",
			},
			[]string{"site"},
		)

		headlessPromotionsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "moviecrawler_headless_promotions_total",
				Help: "Total number of listing fetches re-run through the headless browser.",
			},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveListingPage counts a processed listing page and its records.
func ObserveListingPage(status string, records int) {
	Init()
	listingPagesTotal.WithLabelValues(status).Inc()
	if records > 0 {
		listingRecordsTotal.Add(float64(records))
	}
}

// ObservePlotLookup counts a plot lookup outcome.
func ObservePlotLookup(reason string) {
	Init()
	plotLookupsTotal.WithLabelValues(reason).Inc()
}

// ObserveRowsWritten counts rows persisted to the dataset.
func ObserveRowsWritten(n int) {
	Init()
	rowsWrittenTotal.Add(float64(n))
}

// ObserveFetch records how long a fetch against rawURL took.
func ObserveFetch(rawURL string, duration time.Duration) {
	Init()
	fetchDurationSeconds.WithLabelValues(SanitizeSite(rawURL)).Observe(duration.Seconds())
}

// ObservePause records a randomized politeness pause.
func ObservePause(duration time.Duration) {
	Init()
	pauseSeconds.Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveFetchRetry counts a retried fetch against rawURL.
func ObserveFetchRetry(rawURL string) {
	Init()
	fetchRetriesTotal.WithLabelValues(SanitizeSite(rawURL)).Inc()
}

// ObserveHeadlessPromotion counts a fetch promoted to the headless browser.
func ObserveHeadlessPromotion() {
	Init()
	headlessPromotionsTotal.Inc()
}
