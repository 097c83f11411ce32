package engine

import (
	"context"

	"github.com/artpar/fndeploy/internal/core/response"
	"golang.org/x/sync/errgroup"
)

// deployInBatches runs deploy over units in batches of at most size. The
// units of a batch run concurrently and the whole batch finishes before the
// next one starts, so no more than size deploys are ever in flight. Results
// are returned in input order. Unit failures travel in the responses and
// never as errors; the group only waits for the batch.
func deployInBatches[T any](ctx context.Context, size int, units []T, deploy func(context.Context, T) response.Response) []response.Response {
	if size <= 0 {
		size = 1
	}
	results := make([]response.Response, len(units))
	for start := 0; start < len(units); start += size {
		end := min(start+size, len(units))
		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				results[i] = deploy(ctx, units[i])
				return nil
			})
		}
		g.Wait()
	}
	return results
}
