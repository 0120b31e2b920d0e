package catalog

import (
	"context"
	"errors"
	"regexp"

	"travelcatalog/internal/domain"
	"travelcatalog/internal/logging"
	"travelcatalog/internal/store"
)

var localePattern = regexp.MustCompile(`^[A-Za-z]{2,3}(?:-[A-Za-z0-9]{2,8})*$`)

// Resolver turns (category, slug, locale) into a detail record, falling back
// to the category's default locale when the requested variant is absent.
// It holds no mutable state; concurrent calls are independent.
type Resolver struct {
	registry *Registry
	store    store.Store
	logger   logging.Logger
}

func NewResolver(registry *Registry, st store.Store, logger logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.NoOp()
	}
	return &Resolver{registry: registry, store: st, logger: logger}
}

func (r *Resolver) Registry() *Registry { return r.registry }

// Resolve loads one detail record. A missing record is reported as a result
// with Found=false; errors are reserved for unknown categories (*NotRegisteredError),
// broken content (*LoadError) and context cancellation.
func (r *Resolver) Resolve(ctx context.Context, categoryID, slug, locale string) (domain.ResolutionResult, error) {
	desc, err := r.registry.Describe(categoryID)
	if err != nil {
		return domain.ResolutionResult{}, err
	}
	res := domain.ResolutionResult{RequestedLocale: requested(desc, locale)}
	if err := validateSlug(slug); err != nil {
		r.logger.Debug("rejecting unsafe slug", "category", categoryID, "slug", slug, "reason", err.Error())
		return res, nil
	}
	schema := r.registry.schema(categoryID)
	var rec domain.DetailRecord
	served, found, err := r.lookup(ctx, desc, desc.ItemPathTemplate, slug, res.RequestedLocale, func(_ string, data []byte) error {
		var derr error
		rec, derr = decodeDetail(data, categoryID, slug, schema)
		return derr
	})
	if err != nil || !found {
		return res, err
	}
	res.Found = true
	res.Value = rec
	res.LocaleServed = served
	return res, nil
}

// ResolveRecord is Resolve for callers that treat not-found as an error (*NotFoundError).
func (r *Resolver) ResolveRecord(ctx context.Context, categoryID, slug, locale string) (domain.ResolutionResult, error) {
	res, err := r.Resolve(ctx, categoryID, slug, locale)
	if err != nil {
		return res, err
	}
	if !res.Found {
		return res, &NotFoundError{Category: categoryID, Slug: slug, Locale: res.RequestedLocale}
	}
	return res, nil
}

func requested(desc domain.CategoryDescriptor, locale string) string {
	if locale == "" {
		return desc.DefaultLocale
	}
	return locale
}

// lookup tries the requested locale then the default locale against tmpl.
// Requested locales that are malformed or unregistered are never turned into a path.
func (r *Resolver) lookup(ctx context.Context, desc domain.CategoryDescriptor, tmpl, slug, locale string, decode func(locale string, data []byte) error) (string, bool, error) {
	candidates := make([]string, 0, 2)
	if locale != desc.DefaultLocale && localePattern.MatchString(locale) && desc.HasLocale(locale) {
		candidates = append(candidates, locale)
	}
	candidates = append(candidates, desc.DefaultLocale)

	for _, loc := range candidates {
		if err := ctx.Err(); err != nil {
			return "", false, err
		}
		path := expand(tmpl, loc, slug)
		data, err := r.store.Load(ctx, path)
		if err != nil {
			if errors.Is(err, store.ErrNotExist) {
				continue
			}
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return "", false, ctxErr
			}
			return "", false, r.loadError(desc.ID, path, loc, err)
		}
		if err := decode(loc, data); err != nil {
			return "", false, r.loadError(desc.ID, path, loc, err)
		}
		if loc != locale {
			r.logger.Debug("served fallback locale", "category", desc.ID, "path", path, "requested", locale, "served", loc)
		}
		return loc, true, nil
	}
	return "", false, nil
}

func (r *Resolver) loadError(category, path, locale string, cause error) error {
	r.logger.Error("content load failed", "category", category, "path", path, "locale", locale, "error", cause)
	return &LoadError{Category: category, Path: path, Locale: locale, Cause: cause}
}
