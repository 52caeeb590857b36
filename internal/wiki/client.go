// Package wiki looks up movie plots through the MediaWiki action API.
package wiki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/movie-plot-crawler/internal/logging"
	"github.com/JakeFAU/movie-plot-crawler/internal/metrics"
	"github.com/JakeFAU/movie-plot-crawler/internal/movie"
)

// DefaultEndpoint is the English Wikipedia action API.
const DefaultEndpoint = "https://en.wikipedia.org/w/api.php"

var (
	errNoSearchHit   = errors.New("no search hit")
	errMissingPage   = errors.New("page missing")
	errDisambiguated = errors.New("disambiguation page")
)

var baseHeadings = []string{
	"Plot", "Synopsis", "Plot synopsis", "Plot summary",
	"Story", "Plotline", "The Beginning", "Summary",
	"Content", "Premise",
}

// DefaultHeadings returns the section headings tried in priority order:
// the plain forms first, then the same headings with an "Edit" suffix.
func DefaultHeadings() []string {
	out := make([]string, 0, 2*len(baseHeadings))
	out = append(out, baseHeadings...)
	for _, h := range baseHeadings {
		out = append(out, h+"Edit")
	}
	return out
}

// Config controls the plot client.
type Config struct {
	Endpoint string
	Headings []string
}

// Client resolves a movie title to plot text.
type Client struct {
	fetcher  movie.Fetcher
	endpoint string
	headings []string
	logger   *zap.Logger
}

// New constructs a Client. Empty config fields fall back to the defaults.
func New(fetcher movie.Fetcher, cfg Config, logger *zap.Logger) *Client {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	headings := cfg.Headings
	if len(headings) == 0 {
		headings = DefaultHeadings()
	}
	return &Client{
		fetcher:  fetcher,
		endpoint: endpoint,
		headings: append([]string(nil), headings...),
		logger:   logging.OrNop(logger),
	}
}

// Lookup never fails: every problem is folded into the returned PlotResult.
func (c *Client) Lookup(ctx context.Context, title string) movie.PlotResult {
	res := c.lookup(ctx, title)
	metrics.ObservePlotLookup(string(res.Reason))
	if res.Err != nil {
		c.logger.Debug("plot lookup failed",
			zap.String("title", title),
			zap.String("reason", string(res.Reason)),
			zap.Error(res.Err),
		)
	}
	return res
}

func (c *Client) lookup(ctx context.Context, title string) movie.PlotResult {
	res := movie.PlotResult{Title: title}

	pageTitle, err := c.search(ctx, title)
	if err != nil {
		return fail(res, err)
	}

	content, err := c.content(ctx, pageTitle)
	if err != nil {
		return fail(res, err)
	}

	for _, heading := range c.headings {
		text, ok := Section(content, heading)
		if !ok || text == "" {
			continue
		}
		res.Plot = cleanPlot(text)
		res.Reason = movie.PlotFound
		return res
	}
	res.Reason = movie.PlotNoMatchingSection
	return res
}

func fail(res movie.PlotResult, err error) movie.PlotResult {
	res.Err = err
	switch {
	case errors.Is(err, errNoSearchHit), errors.Is(err, errMissingPage):
		res.Reason = movie.PlotNotFound
	case errors.Is(err, errDisambiguated):
		res.Reason = movie.PlotAmbiguous
	default:
		res.Reason = movie.PlotNetworkError
	}
	return res
}

type searchResponse struct {
	Query struct {
		SearchInfo struct {
			Suggestion string `json:"suggestion"`
		} `json:"searchinfo"`
		Search []struct {
			Title string `json:"title"`
		} `json:"search"`
	} `json:"query"`
}

// search resolves the closest page title: the spelling suggestion, else the top hit.
func (c *Client) search(ctx context.Context, title string) (string, error) {
	params := url.Values{
		"action":        {"query"},
		"list":          {"search"},
		"srsearch":      {title},
		"srlimit":       {"1"},
		"srinfo":        {"suggestion"},
		"srprop":        {""},
		"format":        {"json"},
		"formatversion": {"2"},
	}
	var out searchResponse
	if err := c.getJSON(ctx, params, &out); err != nil {
		return "", fmt.Errorf("search %q: %w", title, err)
	}
	if s := out.Query.SearchInfo.Suggestion; s != "" {
		return s, nil
	}
	if len(out.Query.Search) > 0 && out.Query.Search[0].Title != "" {
		return out.Query.Search[0].Title, nil
	}
	return "", fmt.Errorf("search %q: %w", title, errNoSearchHit)
}

type pageResponse struct {
	Query struct {
		Pages []struct {
			Title     string            `json:"title"`
			Missing   bool              `json:"missing"`
			Invalid   bool              `json:"invalid"`
			Extract   string            `json:"extract"`
			PageProps map[string]string `json:"pageprops"`
		} `json:"pages"`
	} `json:"query"`
}

// content returns the plain-text article body for pageTitle.
func (c *Client) content(ctx context.Context, pageTitle string) (string, error) {
	params := url.Values{
		"action":        {"query"},
		"prop":          {"extracts|pageprops"},
		"ppprop":        {"disambiguation"},
		"explaintext":   {"1"},
		"redirects":     {"1"},
		"titles":        {pageTitle},
		"format":        {"json"},
		"formatversion": {"2"},
	}
	var out pageResponse
	if err := c.getJSON(ctx, params, &out); err != nil {
		return "", fmt.Errorf("page %q: %w", pageTitle, err)
	}
	if len(out.Query.Pages) == 0 {
		return "", fmt.Errorf("page %q: %w", pageTitle, errMissingPage)
	}
	page := out.Query.Pages[0]
	if page.Missing || page.Invalid {
		return "", fmt.Errorf("page %q: %w", pageTitle, errMissingPage)
	}
	if _, ok := page.PageProps["disambiguation"]; ok {
		return "", fmt.Errorf("page %q: %w", pageTitle, errDisambiguated)
	}
	return page.Extract, nil
}

func (c *Client) getJSON(ctx context.Context, params url.Values, dst any) error {
	resp, err := c.fetcher.Fetch(ctx, movie.FetchRequest{URL: c.endpoint + "?" + params.Encode()})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Section returns the text under a "== heading ==" marker up to the next "==".
// A subsection marker ("=== heading ===") matches too.
func Section(content, heading string) (string, bool) {
	marker := "== " + heading + " =="
	idx := strings.Index(content, marker)
	if idx < 0 {
		return "", false
	}
	rest := content[idx+len(marker):]
	rest = strings.TrimLeft(rest, "=")
	if end := strings.Index(rest, "=="); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest), true
}

func cleanPlot(text string) string {
	return strings.NewReplacer("\n", "", "'", "").Replace(text)
}
