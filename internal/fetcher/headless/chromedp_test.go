package headless

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChromedpDefaults(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1})
	require.Error(t, err)

	fetcher, err := NewChromedp(Config{MaxParallel: 2})
	require.NoError(t, err)
	defer fetcher.Close()

	assert.Equal(t, 2, cap(fetcher.limiter))
	assert.Equal(t, defaultNavTimeout, fetcher.cfg.NavigationTimeout)
	assert.Equal(t, "body", fetcher.cfg.WaitSelector)
	assert.Equal(t, defaultSettle, fetcher.cfg.Settle)

	custom, err := NewChromedp(Config{NavigationTimeout: time.Second, WaitSelector: "div.lister-item", Settle: -1})
	require.NoError(t, err)
	defer custom.Close()
	assert.Nil(t, custom.limiter)
	assert.Equal(t, time.Second, custom.cfg.NavigationTimeout)
	assert.Equal(t, "div.lister-item", custom.cfg.WaitSelector)
	assert.Zero(t, custom.cfg.Settle)
}

func TestRequestHeadersAddsAcceptLanguage(t *testing.T) {
	t.Parallel()

	f := &Fetcher{cfg: Config{AcceptLanguage: "en-US, en;q=0.5"}}

	got := f.requestHeaders(nil)
	assert.Equal(t, "en-US, en;q=0.5", got.Get("Accept-Language"))

	src := http.Header{"Accept-Language": {"de-DE"}}
	got = f.requestHeaders(src)
	assert.Equal(t, "de-DE", got.Get("Accept-Language"))
	got.Set("X-Extra", "1")
	assert.Empty(t, src.Get("X-Extra"))
}

func TestAcquireHonorsContext(t *testing.T) {
	t.Parallel()

	f := &Fetcher{limiter: make(chan struct{}, 1)}
	require.NoError(t, f.acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, f.acquire(ctx), context.Canceled)

	f.release()
	require.NoError(t, f.acquire(context.Background()))
}

func TestCloneHeaderAndNetworkHeaders(t *testing.T) {
	t.Parallel()

	src := http.Header{"X-Test": {"a", "b"}, "Accept-Language": {"en-US"}}
	cloned := cloneHeader(src)
	cloned.Add("X-Test", "c")
	assert.Len(t, src["X-Test"], 2)

	netHeaders := toNetworkHeaders(src)
	assert.Equal(t, []string{"a", "b"}, netHeaders["X-Test"])
	assert.Equal(t, "en-US", netHeaders["Accept-Language"])
}

func TestResponseMetaCaptureAndFallbacks(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status:  404,
			URL:     "https://www.imdb.com/search/title/?genres=comedy",
			Headers: network.Headers{"Content-Type": "text/html"},
		},
	})
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 200, URL: "https://img"},
	})
	status, headers, url := meta.snapshotWithFallbacks("https://req", "")
	assert.Equal(t, 404, status)
	assert.Equal(t, "text/html", headers.Get("Content-Type"))
	assert.Equal(t, "https://www.imdb.com/search/title/?genres=comedy", url)

	meta = newResponseMeta()
	status, headers, url = meta.snapshotWithFallbacks("https://req", "https://final")
	assert.Equal(t, http.StatusOK, status)
	assert.NotNil(t, headers)
	assert.Equal(t, "https://final", url)
}

func TestFirstLanguage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "en-US", firstLanguage("en-US, en;q=0.5"))
	assert.Equal(t, "fr", firstLanguage("fr;q=0.9"))
	assert.Equal(t, "de", firstLanguage("de"))
}

func TestStatusErrorMessage(t *testing.T) {
	t.Parallel()

	err := &StatusError{URL: "https://x", StatusCode: 503}
	assert.Equal(t, "HTTP 503 for https://x (headless)", err.Error())
}
