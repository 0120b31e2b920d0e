package domain

import "encoding/json"

// CategoryDescriptor identifies one content vertical and where its records live.
type CategoryDescriptor struct {
	ID                 string   `json:"id"`
	MasterPathTemplate string   `json:"master_path_template"`
	ItemPathTemplate   string   `json:"item_path_template"`
	DefaultLocale      string   `json:"default_locale"`
	Locales            []string `json:"locales"`
}

// HasLocale reports whether locale is registered for the category. Comparison is exact.
func (d CategoryDescriptor) HasLocale(locale string) bool {
	if locale == d.DefaultLocale {
		return true
	}
	for _, l := range d.Locales {
		if l == locale {
			return true
		}
	}
	return false
}

type CardSummary struct {
	Slug             string `json:"slug"`
	Title            string `json:"title"`
	Subtitle         string `json:"subtitle,omitempty"`
	ThumbnailRef     string `json:"thumbnail,omitempty"`
	ShortDescription string `json:"short_description,omitempty"`
	Category         string `json:"category,omitempty"`
	Live             *bool  `json:"is_live,omitempty"`
}

// IsLive treats an absent publish flag as published.
func (c CardSummary) IsLive() bool {
	return c.Live == nil || *c.Live
}

// MasterIndex is the listing payload for one category in one locale.
type MasterIndex struct {
	CategoryID string        `json:"category_id"`
	Locale     string        `json:"locale"`
	Title      string        `json:"title"`
	IntroText  string        `json:"intro,omitempty"`
	Cards      []CardSummary `json:"cards"`
}

// DetailRecord is the full payload for one item. Attributes keeps the
// category-specific fields (trek_places, major_centres, ...) verbatim.
type DetailRecord struct {
	CategoryID      string                     `json:"category_id"`
	Slug            string                     `json:"slug"`
	Title           string                     `json:"title"`
	HeroImageRef    string                     `json:"hero_image,omitempty"`
	LongDescription string                     `json:"long_description,omitempty"`
	Tags            []string                   `json:"tags"`
	IsLive          bool                       `json:"is_live"`
	Attributes      map[string]json.RawMessage `json:"attributes,omitempty"`
}

// Resolution is the outcome of resolving a document: either Found with the
// locale that was actually served, or not found.
type Resolution[T any] struct {
	Found           bool   `json:"found"`
	Value           T      `json:"value,omitempty"`
	RequestedLocale string `json:"requested_locale"`
	LocaleServed    string `json:"locale_served,omitempty"`
}

// Fallback reports whether the value was served from a locale other than the requested one.
func (r Resolution[T]) Fallback() bool {
	return r.Found && r.LocaleServed != r.RequestedLocale
}

// ResolutionResult is the outcome of resolving one detail record.
type ResolutionResult = Resolution[DetailRecord]

// IndexResult is the outcome of loading a category listing.
type IndexResult = Resolution[MasterIndex]

type Document struct {
	Path        string `json:"path"`
	Body        []byte `json:"-"`
	ContentType string `json:"content_type"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64           `json:"id"`
	TS         string          `json:"ts" format:"date-time"`
	Type       string          `json:"type"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id"`
	ActorID    string          `json:"actor_id"`
	Payload    json.RawMessage `json:"payload"`
}
