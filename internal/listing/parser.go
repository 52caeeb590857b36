package listing

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/movie-plot-crawler/internal/movie"
)

// ErrMissingTitle is returned when a listing block has no title link.
var ErrMissingTitle = errors.New("listing block has no title")

const blockSelector = "div.lister-item.mode-advanced"

// yearNoise is matched literally, not as a pattern, so year text passes through unchanged.
const yearNoise = "[()^a-zA-Z]"

var (
	directorSplit = regexp.MustCompile(`Director:|Directors:`)
	spaceRuns     = regexp.MustCompile(`\s+`)
)

// Parse extracts one Record per listing block, in document order.
func Parse(r io.Reader) ([]movie.Record, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	blocks := doc.Find(blockSelector)
	records := make([]movie.Record, 0, blocks.Length())
	var parseErr error
	blocks.EachWithBreak(func(i int, block *goquery.Selection) bool {
		rec, err := parseBlock(block)
		if err != nil {
			parseErr = fmt.Errorf("block %d: %w", i, err)
			return false
		}
		records = append(records, rec)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return records, nil
}

func parseBlock(block *goquery.Selection) (movie.Record, error) {
	var rec movie.Record

	heading := block.Find("h3").First()
	link := heading.Find("a").First()
	if link.Length() == 0 {
		return rec, ErrMissingTitle
	}
	rec.Title = link.Text()

	if year := heading.Find("span.lister-item-year").First(); year.Length() > 0 {
		rec.Year = strings.ReplaceAll(year.Text(), yearNoise, "")
	}

	// Runtime, certificate, and genre only count when they sit in the first paragraph.
	lead := block.Find("p").First()
	if lead.Find("span.runtime").Length() > 0 {
		rec.Runtime = block.Find("span.runtime").First().Text()
	}
	if lead.Find("span.certificate").Length() > 0 {
		rec.Certificate = movie.StringPtr(block.Find("span.certificate").First().Text())
	}
	if lead.Find("span.genre").Length() > 0 {
		rec.Genre = strings.TrimSpace(block.Find("span.genre").First().Text())
	}

	if strong := block.Find("strong").First(); strong.Length() > 0 {
		rating, err := strconv.ParseFloat(strings.TrimSpace(strong.Text()), 64)
		if err != nil {
			return rec, fmt.Errorf("rating %q: %w", strong.Text(), err)
		}
		rec.Rating = movie.FloatPtr(rating)
	}

	rec.Cast, rec.Directors = splitCredits(creditsText(block))
	return rec, nil
}

// creditsText returns the text of the first paragraph without a class.
func creditsText(block *goquery.Selection) string {
	p := block.Find("p").FilterFunction(func(_ int, s *goquery.Selection) bool {
		class, ok := s.Attr("class")
		return !ok || strings.TrimSpace(class) == ""
	}).First()
	return strings.TrimSpace(p.Text())
}

// splitCredits separates the "Director(s): ... | Stars: ..." blob.
// Without a "Stars" marker both values are absent.
func splitCredits(details string) (cast, directors *string) {
	if !strings.Contains(details, "Stars") {
		return nil, nil
	}
	parts := strings.Split(details, "Stars:")
	head := strings.ReplaceAll(parts[0], "\n", "")

	castText := ""
	if len(parts) > 1 {
		castText = strings.TrimSpace(strings.ReplaceAll(parts[1], "\n", ""))
	}

	directorText := ""
	if strings.Contains(head, "Director") {
		if pieces := directorSplit.Split(head, -1); len(pieces) > 1 {
			directorText = pieces[1]
		}
	}
	directorText = strings.ReplaceAll(directorText, "|", "")
	directorText = spaceRuns.ReplaceAllString(directorText, " ")

	return movie.StringPtr(castText), movie.StringPtr(directorText)
}
