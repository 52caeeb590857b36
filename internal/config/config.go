// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/movie-plot-crawler/internal/listing"
	"github.com/JakeFAU/movie-plot-crawler/internal/wiki"
)

// EnvPrefix prefixes every environment override, e.g. MOVIECRAWLER_OUTPUT_PATH.
const EnvPrefix = "MOVIECRAWLER"

// Output backends.
const (
	BackendLocal = "local"
	BackendGCS   = "gcs"
)

// Headless modes.
const (
	HeadlessAlways = "always"
	HeadlessAuto   = "auto"
)

// Config captures all run configuration knobs loaded via Viper.
type Config struct {
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Listing  ListingConfig  `mapstructure:"listing"`
	Wiki     WikiConfig     `mapstructure:"wiki"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Output   OutputConfig   `mapstructure:"output"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// CrawlerConfig governs worker pools and politeness.
type CrawlerConfig struct {
	// Concurrency is the worker count per stage; 0 means one per CPU.
	Concurrency     int     `mapstructure:"concurrency"`
	UserAgent       string  `mapstructure:"user_agent"`
	AcceptLanguage  string  `mapstructure:"accept_language"`
	RespectRobots   bool    `mapstructure:"respect_robots"`
	PauseMinSeconds int     `mapstructure:"pause_min_seconds"`
	PauseMaxSeconds int     `mapstructure:"pause_max_seconds"`
	RateLimitRPS    float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst  int     `mapstructure:"rate_limit_burst"`
}

// ListingConfig describes the listing page grid.
type ListingConfig struct {
	BaseURL    string   `mapstructure:"base_url"`
	Genres     []string `mapstructure:"genres"`
	StartFirst int      `mapstructure:"start_first"`
	StartLast  int      `mapstructure:"start_last"`
	StartStep  int      `mapstructure:"start_step"`
}

// WikiConfig points the plot client at a MediaWiki API.
type WikiConfig struct {
	Endpoint string   `mapstructure:"endpoint"`
	Headings []string `mapstructure:"headings"`
}

// HTTPConfig configures the HTTP client.
type HTTPConfig struct {
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	MaxRetries       int `mapstructure:"max_retries"`
	BackoffInitialMS int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMS     int `mapstructure:"backoff_max_ms"`
}

// HeadlessConfig configures the optional chromedp listing fetcher.
type HeadlessConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	MaxParallel   int    `mapstructure:"max_parallel"`
	NavTimeoutSec int    `mapstructure:"nav_timeout_seconds"`
	WaitSelector  string `mapstructure:"wait_selector"`
	// Mode is "always" (every listing page rendered) or "auto" (rendered
	// only when the plain response looks script-built).
	Mode               string `mapstructure:"mode"`
	PromotionThreshold int    `mapstructure:"promotion_threshold"`
}

// OutputConfig selects where the CSV goes.
type OutputConfig struct {
	Backend     string `mapstructure:"backend"`
	BaseDir     string `mapstructure:"base_dir"`
	Path        string `mapstructure:"path"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	GCSPrefix   string `mapstructure:"gcs_prefix"`
	ContentType string `mapstructure:"content_type"`
}

// DBConfig enables row persistence when DSN is set.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	Table        string `mapstructure:"table"`
	MaxConns     int    `mapstructure:"max_conns"`
	EnsureSchema bool   `mapstructure:"ensure_schema"`
}

// PubSubConfig enables the run summary notification when both fields are set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ServerConfig controls the status server; an empty Addr disables it.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from defaults, an optional file, and the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Every key needs a default, otherwise AutomaticEnv cannot see it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.concurrency", 0)
	v.SetDefault("crawler.user_agent", "movie-plot-crawler/0.1")
	v.SetDefault("crawler.accept_language", "en-US, en;q=0.5")
	v.SetDefault("crawler.respect_robots", false)
	v.SetDefault("crawler.pause_min_seconds", 2)
	v.SetDefault("crawler.pause_max_seconds", 10)
	v.SetDefault("crawler.rate_limit_rps", 0.0)
	v.SetDefault("crawler.rate_limit_burst", 1)
	v.SetDefault("listing.base_url", listing.DefaultBaseURL)
	v.SetDefault("listing.genres", append([]string(nil), listing.DefaultGenres...))
	v.SetDefault("listing.start_first", 1)
	v.SetDefault("listing.start_last", 951)
	v.SetDefault("listing.start_step", 50)
	v.SetDefault("wiki.endpoint", wiki.DefaultEndpoint)
	v.SetDefault("wiki.headings", wiki.DefaultHeadings())
	v.SetDefault("http.timeout_seconds", 60)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 5000)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.wait_selector", "body")
	v.SetDefault("headless.mode", HeadlessAlways)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("output.backend", BackendLocal)
	v.SetDefault("output.base_dir", ".")
	v.SetDefault("output.path", "movieData.csv")
	v.SetDefault("output.gcs_bucket", "")
	v.SetDefault("output.gcs_prefix", "")
	v.SetDefault("output.content_type", "text/csv; charset=utf-8")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "movie_rows")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.ensure_schema", false)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("server.addr", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := c.validateCrawler(); err != nil {
		return err
	}
	if err := c.validateListing(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Wiki.Endpoint) == "" {
		return fmt.Errorf("wiki.endpoint is required")
	}
	if err := c.validateHTTP(); err != nil {
		return err
	}
	if err := c.validateHeadless(); err != nil {
		return err
	}
	if err := c.validateOutput(); err != nil {
		return err
	}
	if c.DB.DSN != "" && c.DB.MaxConns <= 0 {
		return fmt.Errorf("db.max_conns must be > 0 when db.dsn is set")
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

func (c Config) validateCrawler() error {
	cc := c.Crawler
	switch {
	case cc.Concurrency < 0:
		return fmt.Errorf("crawler.concurrency must be >= 0")
	case cc.PauseMinSeconds < 0:
		return fmt.Errorf("crawler.pause_min_seconds must be >= 0")
	case cc.PauseMaxSeconds < cc.PauseMinSeconds:
		return fmt.Errorf("crawler.pause_max_seconds must be >= crawler.pause_min_seconds")
	case cc.RateLimitRPS < 0:
		return fmt.Errorf("crawler.rate_limit_rps must be >= 0")
	case cc.RateLimitRPS > 0 && cc.RateLimitBurst <= 0:
		return fmt.Errorf("crawler.rate_limit_burst must be > 0 when rate limiting")
	}
	return nil
}

func (c Config) validateHTTP() error {
	hc := c.HTTP
	switch {
	case hc.TimeoutSeconds <= 0:
		return fmt.Errorf("http.timeout_seconds must be > 0")
	case hc.MaxRetries < 0:
		return fmt.Errorf("http.max_retries must be >= 0")
	case hc.MaxRetries > 0 && hc.BackoffInitialMS <= 0:
		return fmt.Errorf("http.backoff_initial_ms must be > 0 when retrying")
	case hc.BackoffMaxMS < hc.BackoffInitialMS:
		return fmt.Errorf("http.backoff_max_ms must be >= http.backoff_initial_ms")
	}
	return nil
}

func (c Config) validateHeadless() error {
	hc := c.Headless
	if !hc.Enabled {
		return nil
	}
	if hc.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	switch hc.Mode {
	case HeadlessAlways:
	case HeadlessAuto:
		if hc.PromotionThreshold < 0 {
			return fmt.Errorf("headless.promotion_threshold must be >= 0")
		}
	default:
		return fmt.Errorf("headless.mode must be %q or %q, got %q", HeadlessAlways, HeadlessAuto, hc.Mode)
	}
	return nil
}

func (c Config) validateListing() error {
	lc := c.Listing
	u, err := url.Parse(lc.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("listing.base_url must be an absolute URL")
	}
	if len(lc.Genres) == 0 {
		return fmt.Errorf("listing.genres must not be empty")
	}
	switch {
	case lc.StartFirst < 1:
		return fmt.Errorf("listing.start_first must be >= 1")
	case lc.StartLast < lc.StartFirst:
		return fmt.Errorf("listing.start_last must be >= listing.start_first")
	case lc.StartStep <= 0:
		return fmt.Errorf("listing.start_step must be > 0")
	}
	return nil
}

func (c Config) validateOutput() error {
	oc := c.Output
	if strings.TrimSpace(oc.Path) == "" {
		return fmt.Errorf("output.path is required")
	}
	switch oc.Backend {
	case BackendLocal:
		if strings.TrimSpace(oc.BaseDir) == "" {
			return fmt.Errorf("output.base_dir is required for the local backend")
		}
	case BackendGCS:
		if strings.TrimSpace(oc.GCSBucket) == "" {
			return fmt.Errorf("output.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("output.backend must be %q or %q, got %q", BackendLocal, BackendGCS, oc.Backend)
	}
	return nil
}

// RequestTimeout is the per-request HTTP budget.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// NavTimeout is the headless navigation budget.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSec) * time.Second
}

// BackoffInitial is the first retry delay.
func (c Config) BackoffInitial() time.Duration {
	return time.Duration(c.HTTP.BackoffInitialMS) * time.Millisecond
}

// BackoffMax caps the retry delay.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.HTTP.BackoffMaxMS) * time.Millisecond
}
