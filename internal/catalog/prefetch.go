package catalog

import (
	"context"

	"golang.org/x/sync/errgroup"

	"travelcatalog/internal/domain"
)

const defaultPrefetchLimit = 4

// PrefetchResult is the outcome of one slug in a Prefetch batch.
type PrefetchResult struct {
	Slug   string
	Result domain.ResolutionResult
	Err    error
}

// Prefetch resolves several slugs of one category concurrently, at most limit
// at a time. Results keep the order of slugs; a failure on one slug is reported
// in its slot and does not stop the others. Unknown categories fail the whole call.
func (r *Resolver) Prefetch(ctx context.Context, categoryID string, slugs []string, locale string, limit int) ([]PrefetchResult, error) {
	if _, err := r.registry.Describe(categoryID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultPrefetchLimit
	}
	out := make([]PrefetchResult, len(slugs))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, slug := range slugs {
		g.Go(func() error {
			res, err := r.Resolve(ctx, categoryID, slug, locale)
			out[i] = PrefetchResult{Slug: slug, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out, nil
}
