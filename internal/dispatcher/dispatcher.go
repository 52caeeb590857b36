// Package dispatcher fans independent inputs out to a bounded worker pool.
package dispatcher

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/movie-plot-crawler/internal/metrics"
)

// Limit resolves the worker count; non-positive values mean one worker per CPU.
func Limit(n int) int {
	if n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

// Map applies fn to every input using at most limit concurrent workers and
// returns the outputs position-matched to inputs, whatever order workers finish in.
//
// The first error returned by fn cancels the context passed to the remaining
// calls and is returned; outputs are then nil. A panic inside fn is recovered
// and reported as an error for that input.
func Map[In, Out any](
	ctx context.Context,
	limit int,
	inputs []In,
	fn func(context.Context, In) (Out, error),
) ([]Out, error) {
	out := make([]Out, len(inputs))
	if len(inputs) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(Limit(limit))

	for i, in := range inputs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() (err error) {
			metrics.IncActiveWorkers()
			defer metrics.DecActiveWorkers()
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("input %d panicked: %v", i, r)
				}
			}()

			res, err := fn(gctx, in)
			if err != nil {
				return fmt.Errorf("input %d: %w", i, err)
			}
			out[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("map canceled: %w", err)
	}
	return out, nil
}
