package catalog

import (
	"context"

	"travelcatalog/internal/domain"
)

// Aggregator serves category listings. It only ever reads master index
// documents, never detail records, so listing cost is independent of how much
// detail content a category holds.
type Aggregator struct {
	resolver *Resolver
}

func NewAggregator(resolver *Resolver) *Aggregator {
	return &Aggregator{resolver: resolver}
}

// ListCards loads the master index for a category with the same locale
// fallback policy as Resolve.
func (a *Aggregator) ListCards(ctx context.Context, categoryID, locale string) (domain.IndexResult, error) {
	desc, err := a.resolver.registry.Describe(categoryID)
	if err != nil {
		return domain.IndexResult{}, err
	}
	res := domain.IndexResult{RequestedLocale: requested(desc, locale)}
	var idx domain.MasterIndex
	served, found, err := a.resolver.lookup(ctx, desc, desc.MasterPathTemplate, "", res.RequestedLocale, func(loc string, data []byte) error {
		var derr error
		idx, derr = decodeIndex(data, categoryID, loc)
		return derr
	})
	if err != nil || !found {
		return res, err
	}
	res.Found = true
	res.Value = idx
	res.LocaleServed = served
	return res, nil
}

// Index is ListCards for callers that treat a missing index as an error (*NotFoundError).
func (a *Aggregator) Index(ctx context.Context, categoryID, locale string) (domain.IndexResult, error) {
	res, err := a.ListCards(ctx, categoryID, locale)
	if err != nil {
		return res, err
	}
	if !res.Found {
		return res, &NotFoundError{Category: categoryID, Locale: res.RequestedLocale}
	}
	return res, nil
}
