package wiki

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/movie-plot-crawler/internal/movie"
)

type fakePage struct {
	extract        string
	missing        bool
	disambiguation bool
}

// fakeAPI answers the two MediaWiki queries the client issues.
type fakeAPI struct {
	hits        map[string]string
	suggestions map[string]string
	pages       map[string]fakePage
	err         error
	rawBody     []byte
}

func (f *fakeAPI) Fetch(_ context.Context, req movie.FetchRequest) (movie.FetchResponse, error) {
	if f.err != nil {
		return movie.FetchResponse{}, f.err
	}
	if f.rawBody != nil {
		return movie.FetchResponse{StatusCode: 200, Body: f.rawBody}, nil
	}
	u, err := url.Parse(req.URL)
	if err != nil {
		return movie.FetchResponse{}, err
	}
	q := u.Query()

	var payload map[string]any
	if q.Get("list") == "search" {
		var search []map[string]string
		if hit, ok := f.hits[q.Get("srsearch")]; ok {
			search = append(search, map[string]string{"title": hit})
		}
		payload = map[string]any{"query": map[string]any{
			"searchinfo": map[string]string{"suggestion": f.suggestions[q.Get("srsearch")]},
			"search":     search,
		}}
	} else {
		title := q.Get("titles")
		p, ok := f.pages[title]
		page := map[string]any{"title": title}
		switch {
		case !ok || p.missing:
			page["missing"] = true
		default:
			page["extract"] = p.extract
			if p.disambiguation {
				page["pageprops"] = map[string]string{"disambiguation": ""}
			}
		}
		payload = map[string]any{"query": map[string]any{"pages": []any{page}}}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return movie.FetchResponse{}, err
	}
	return movie.FetchResponse{StatusCode: 200, Body: body}, nil
}

func TestLookupSynopsisWithoutPlot(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{
		hits: map[string]string{"Sample Film": "Sample Film (film)"},
		pages: map[string]fakePage{
			"Sample Film (film)": {extract: "Intro text.\n\n== Synopsis ==\nIt's a film\nabout 'samples'.\n\n== Cast ==\nJane Doe"},
		},
	}
	c := New(api, Config{}, zap.NewNop())

	res := c.Lookup(context.Background(), "Sample Film")
	require.Equal(t, movie.PlotFound, res.Reason)
	require.True(t, res.Found())
	assert.Equal(t, "Its a filmabout samples.", res.Plot)
	assert.Equal(t, "Sample Film", res.Title)
	assert.NoError(t, res.Err)
}

func TestLookupFirstHeadingWins(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{
		hits: map[string]string{"Both": "Both"},
		pages: map[string]fakePage{
			"Both": {extract: "== Premise ==\nlast\n== Plot ==\nfirst\n== Reception ==\nok"},
		},
	}
	res := New(api, Config{}, nil).Lookup(context.Background(), "Both")
	require.Equal(t, movie.PlotFound, res.Reason)
	assert.Equal(t, "first", res.Plot)
}

func TestLookupSkipsEmptySection(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{
		hits: map[string]string{"Nested": "Nested"},
		pages: map[string]fakePage{
			"Nested": {extract: "== Plot ==\n\n=== Part one ===\nnested\n== Summary ==\nthe summary"},
		},
	}
	res := New(api, Config{}, nil).Lookup(context.Background(), "Nested")
	require.Equal(t, movie.PlotFound, res.Reason)
	assert.Equal(t, "the summary", res.Plot)
}

func TestLookupUsesSuggestionWhenNoHit(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{
		suggestions: map[string]string{"Tpyo Movie": "Typo Movie"},
		pages:       map[string]fakePage{"Typo Movie": {extract: "== Plot ==\nfixed"}},
	}
	res := New(api, Config{}, nil).Lookup(context.Background(), "Tpyo Movie")
	require.Equal(t, movie.PlotFound, res.Reason)
	assert.Equal(t, "fixed", res.Plot)
}

func TestLookupPrefersSuggestionOverHit(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{
		hits:        map[string]string{"Amelie": "Amelie Mauresmo"},
		suggestions: map[string]string{"Amelie": "Amélie"},
		pages: map[string]fakePage{
			"Amelie Mauresmo": {extract: "== Plot ==\ntennis career"},
			"Amélie":          {extract: "== Plot ==\nthe film plot"},
		},
	}
	res := New(api, Config{}, nil).Lookup(context.Background(), "Amelie")
	require.Equal(t, movie.PlotFound, res.Reason)
	assert.Equal(t, "the film plot", res.Plot)
}

func TestLookupFailuresAreTagged(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		api    *fakeAPI
		reason movie.PlotReason
	}{
		{
			name:   "no search hit",
			api:    &fakeAPI{},
			reason: movie.PlotNotFound,
		},
		{
			name:   "missing page",
			api:    &fakeAPI{hits: map[string]string{"X": "X"}},
			reason: movie.PlotNotFound,
		},
		{
			name: "disambiguation",
			api: &fakeAPI{
				hits:  map[string]string{"X": "X"},
				pages: map[string]fakePage{"X": {extract: "X may refer to:", disambiguation: true}},
			},
			reason: movie.PlotAmbiguous,
		},
		{
			name:   "network error",
			api:    &fakeAPI{err: errors.New("dial tcp: timeout")},
			reason: movie.PlotNetworkError,
		},
		{
			name:   "garbled body",
			api:    &fakeAPI{rawBody: []byte("<html>maintenance</html>")},
			reason: movie.PlotNetworkError,
		},
		{
			name: "no matching section",
			api: &fakeAPI{
				hits:  map[string]string{"X": "X"},
				pages: map[string]fakePage{"X": {extract: "== Reception ==\nfine"}},
			},
			reason: movie.PlotNoMatchingSection,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			res := New(tc.api, Config{}, nil).Lookup(context.Background(), "X")
			require.Equal(t, tc.reason, res.Reason)
			require.False(t, res.Found())
			require.Empty(t, res.Plot)
			require.Equal(t, "X", res.Title)
		})
	}
}

func TestSection(t *testing.T) {
	t.Parallel()

	content := "Lead.\n\n== Plot ==\nA happens.\nB happens.\n\n== Cast ==\nC"
	text, ok := Section(content, "Plot")
	require.True(t, ok)
	assert.Equal(t, "A happens.\nB happens.", text)

	text, ok = Section("== Story ==\nruns to the end", "Story")
	require.True(t, ok)
	assert.Equal(t, "runs to the end", text)

	text, ok = Section("=== Plot ===\nsub", "Plot")
	require.True(t, ok)
	assert.Equal(t, "sub", text)

	_, ok = Section(content, "Synopsis")
	assert.False(t, ok)
}

func TestDefaultHeadings(t *testing.T) {
	t.Parallel()

	h := DefaultHeadings()
	require.Len(t, h, 20)
	assert.Equal(t, "Plot", h[0])
	assert.Equal(t, "Premise", h[9])
	assert.Equal(t, "PlotEdit", h[10])
	assert.Equal(t, "PremiseEdit", h[19])
}
