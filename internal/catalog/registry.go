package catalog

import (
	"fmt"
	"sort"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"travelcatalog/internal/domain"
)

const (
	localeToken = "{locale}"
	slugToken   = "{slug}"
)

type entry struct {
	desc   domain.CategoryDescriptor
	schema *jsonschema.Schema
}

// Registry is the immutable category lookup table.
type Registry struct {
	entries map[string]entry
	order   []string
}

// NewRegistry builds a registry; schemas is optional and keyed by category id.
func NewRegistry(descs []domain.CategoryDescriptor, schemas map[string]map[string]any) (*Registry, error) {
	r := &Registry{entries: make(map[string]entry, len(descs))}
	for _, d := range descs {
		if d.ID == "" {
			return nil, fmt.Errorf("category id is required")
		}
		if _, dup := r.entries[d.ID]; dup {
			return nil, fmt.Errorf("category %s registered twice", d.ID)
		}
		if d.DefaultLocale == "" {
			return nil, fmt.Errorf("category %s: default locale is required", d.ID)
		}
		if !strings.Contains(d.MasterPathTemplate, localeToken) || strings.Contains(d.MasterPathTemplate, slugToken) {
			return nil, fmt.Errorf("category %s: master template %q must contain only {locale}", d.ID, d.MasterPathTemplate)
		}
		if !strings.Contains(d.ItemPathTemplate, localeToken) || !strings.Contains(d.ItemPathTemplate, slugToken) {
			return nil, fmt.Errorf("category %s: item template %q must contain {locale} and {slug}", d.ID, d.ItemPathTemplate)
		}
		d.Locales = append([]string(nil), d.Locales...)
		e := entry{desc: d}
		if raw, ok := schemas[d.ID]; ok && len(raw) > 0 {
			compiled, err := compileSchema(d.ID, raw)
			if err != nil {
				return nil, fmt.Errorf("category %s: detail schema: %w", d.ID, err)
			}
			e.schema = compiled
		}
		r.entries[d.ID] = e
		r.order = append(r.order, d.ID)
	}
	for id := range schemas {
		if _, ok := r.entries[id]; !ok {
			return nil, fmt.Errorf("detail schema for unknown category %s", id)
		}
	}
	sort.Strings(r.order)
	return r, nil
}

// Describe returns the descriptor for categoryID or a *NotRegisteredError.
func (r *Registry) Describe(categoryID string) (domain.CategoryDescriptor, error) {
	e, ok := r.entries[categoryID]
	if !ok {
		return domain.CategoryDescriptor{}, &NotRegisteredError{CategoryID: categoryID}
	}
	d := e.desc
	d.Locales = append([]string(nil), e.desc.Locales...)
	return d, nil
}

// Categories lists every descriptor ordered by id.
func (r *Registry) Categories() []domain.CategoryDescriptor {
	out := make([]domain.CategoryDescriptor, 0, len(r.order))
	for _, id := range r.order {
		d, _ := r.Describe(id)
		out = append(out, d)
	}
	return out
}

func (r *Registry) schema(categoryID string) *jsonschema.Schema {
	return r.entries[categoryID].schema
}

func expand(tmpl, locale, slug string) string {
	return strings.NewReplacer(localeToken, locale, slugToken, slug).Replace(tmpl)
}
