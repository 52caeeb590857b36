// Package listing builds listing-page URLs and extracts movie records from them.
package listing

import (
	"fmt"
	"net/url"

	"github.com/JakeFAU/movie-plot-crawler/internal/movie"
)

// DefaultBaseURL is the advanced title search of the listing service.
const DefaultBaseURL = "https://www.imdb.com/search/title/"

// DefaultGenres are the genre labels queried on the listing service.
var DefaultGenres = []string{
	"comedy", "short", "animation", "music", "action", "crime", "mystery",
	"horror", "documentary", "history", "drama", "family", "romance", "adventure",
	"fantasy", "sci-fi", "thriller",
}

// BuildPages returns one Page per genre and start offset in [first, last],
// genre-major so output order matches the listing order of the run.
func BuildPages(baseURL string, genres []string, first, last, step int) ([]movie.Page, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("listing base url is required")
	}
	if step <= 0 {
		return nil, fmt.Errorf("start step must be > 0, got %d", step)
	}
	if first <= 0 || last < first {
		return nil, fmt.Errorf("invalid start range [%d, %d]", first, last)
	}

	pages := make([]movie.Page, 0, len(genres)*((last-first)/step+1))
	for _, genre := range genres {
		for start := first; start <= last; start += step {
			pages = append(pages, movie.Page{
				Genre: genre,
				Start: start,
				URL: fmt.Sprintf("%s?genres=%s&start=%d&explore=genres&ref_=adv_nxt",
					baseURL, url.QueryEscape(genre), start),
			})
		}
	}
	return pages, nil
}
