package server

import (
	"travelcatalog/internal/catalog"
	"travelcatalog/internal/domain"
)

// Request payloads

type PrefetchRequest struct {
	Locale string   `json:"locale,omitempty" example:"hi"`
	Slugs  []string `json:"slugs" minItems:"1" maxItems:"100"`
}

// Response payloads

type CategoryResponse struct {
	ID            string   `json:"id" example:"adventures"`
	DefaultLocale string   `json:"default_locale" example:"en"`
	Locales       []string `json:"locales"`
}

type CardsResponse struct {
	Category        string               `json:"category"`
	RequestedLocale string               `json:"requested_locale"`
	Locale          string               `json:"locale"`
	Fallback        bool                 `json:"fallback"`
	Title           string               `json:"title"`
	Intro           string               `json:"intro,omitempty"`
	Total           int                  `json:"total"`
	Cards           []domain.CardSummary `json:"cards"`
}

type ItemResponse struct {
	Category        string              `json:"category"`
	RequestedLocale string              `json:"requested_locale"`
	Locale          string              `json:"locale"`
	Fallback        bool                `json:"fallback"`
	Item            domain.DetailRecord `json:"item"`
	HTML            string              `json:"html,omitempty"`
}

type PrefetchItem struct {
	Slug     string `json:"slug"`
	Status   string `json:"status" enum:"found,not_found,error"`
	Locale   string `json:"locale,omitempty"`
	Fallback bool   `json:"fallback,omitempty"`
	Error    string `json:"error,omitempty"`
}

type PrefetchResponse struct {
	Category string         `json:"category"`
	Items    []PrefetchItem `json:"items"`
}

func categoryResponse(d domain.CategoryDescriptor) CategoryResponse {
	locales := d.Locales
	if locales == nil {
		locales = []string{}
	}
	return CategoryResponse{ID: d.ID, DefaultLocale: d.DefaultLocale, Locales: locales}
}

func cardsResponse(categoryID string, res domain.IndexResult, cards []domain.CardSummary) CardsResponse {
	return CardsResponse{
		Category:        categoryID,
		RequestedLocale: res.RequestedLocale,
		Locale:          res.LocaleServed,
		Fallback:        res.Fallback(),
		Title:           res.Value.Title,
		Intro:           res.Value.IntroText,
		Total:           len(cards),
		Cards:           cards,
	}
}

func itemResponse(categoryID string, res domain.ResolutionResult) ItemResponse {
	return ItemResponse{
		Category:        categoryID,
		RequestedLocale: res.RequestedLocale,
		Locale:          res.LocaleServed,
		Fallback:        res.Fallback(),
		Item:            res.Value,
	}
}

func prefetchItem(r catalog.PrefetchResult, preview bool) PrefetchItem {
	item := PrefetchItem{Slug: r.Slug}
	switch {
	case r.Err != nil:
		item.Status = "error"
		item.Error = r.Err.Error()
	case !r.Result.Found || (!preview && !r.Result.Value.IsLive):
		item.Status = "not_found"
	default:
		item.Status = "found"
		item.Locale = r.Result.LocaleServed
		item.Fallback = r.Result.Fallback()
	}
	return item
}
