// Package retry re-runs failed fetches with jittered exponential backoff.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/movie-plot-crawler/internal/logging"
	"github.com/JakeFAU/movie-plot-crawler/internal/metrics"
	"github.com/JakeFAU/movie-plot-crawler/internal/movie"
)

const (
	defaultBaseDelay = 250 * time.Millisecond
	defaultMaxDelay  = 5 * time.Second
)

// Config bounds the retry loop. MaxRetries of 0 disables retrying.
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Policy implements exponential backoff with jitter.
type Policy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewPolicy builds a Policy; zero delays fall back to 250ms and 5s.
func NewPolicy(cfg Config) *Policy {
	p := &Policy{
		maxAttempts: 1 + max(cfg.MaxRetries, 0),
		baseDelay:   cfg.BaseDelay,
		maxDelay:    cfg.MaxDelay,
	}
	if p.baseDelay <= 0 {
		p.baseDelay = defaultBaseDelay
	}
	if p.maxDelay <= 0 {
		p.maxDelay = defaultMaxDelay
	}
	return p
}

type statusCoder interface {
	HTTPStatus() int
}

// ShouldRetry decides whether attempt (1-based) may be followed by another.
// Throttling and server errors are retried; other HTTP statuses are final.
func (p *Policy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.maxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		code := sc.HTTPStatus()
		return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return true
}

// Backoff returns the wait before the attempt following attempt (1-based).
func (p *Policy) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	half := time.Duration(delay / 2)
	return half + randomJitter(half)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// Fetcher retries next according to a Policy.
type Fetcher struct {
	next   movie.Fetcher
	policy *Policy
	logger *zap.Logger
}

// Wrap returns next behind the retry policy.
func Wrap(next movie.Fetcher, policy *Policy, logger *zap.Logger) *Fetcher {
	return &Fetcher{next: next, policy: policy, logger: logging.OrNop(logger)}
}

// Fetch implements movie.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, request movie.FetchRequest) (movie.FetchResponse, error) {
	for attempt := 1; ; attempt++ {
		resp, err := f.next.Fetch(ctx, request)
		if err == nil {
			return resp, nil
		}
		if !f.policy.ShouldRetry(err, attempt) {
			if attempt > 1 {
				return movie.FetchResponse{}, fmt.Errorf("after %d attempts: %w", attempt, err)
			}
			return movie.FetchResponse{}, err
		}

		wait := f.policy.Backoff(attempt)
		f.logger.Debug("retrying fetch",
			zap.String("url", request.URL),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		metrics.ObserveFetchRetry(request.URL)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return movie.FetchResponse{}, fmt.Errorf("retry wait canceled: %w", ctx.Err())
		case <-timer.C:
		}
	}
}
