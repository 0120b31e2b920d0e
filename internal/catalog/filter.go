package catalog

import (
	"strings"

	"golang.org/x/text/cases"

	"travelcatalog/internal/domain"
)

// CardPredicate selects cards from an already-loaded index.
type CardPredicate func(domain.CardSummary) bool

// FilterCards returns the cards of index that satisfy pred, in index order.
// The result is a fresh slice; index is never modified.
func FilterCards(index domain.MasterIndex, pred CardPredicate) []domain.CardSummary {
	out := make([]domain.CardSummary, 0, len(index.Cards))
	for _, c := range index.Cards {
		if pred == nil || pred(c) {
			if c.Live != nil {
				live := *c.Live
				c.Live = &live
			}
			out = append(out, c)
		}
	}
	return out
}

// All matches cards satisfying every predicate; nil predicates are ignored.
func All(preds ...CardPredicate) CardPredicate {
	return func(c domain.CardSummary) bool {
		for _, p := range preds {
			if p != nil && !p(c) {
				return false
			}
		}
		return true
	}
}

// TitleContains matches a case-folded substring of the title or subtitle.
// An empty query matches everything.
func TitleContains(query string) CardPredicate {
	q := strings.TrimSpace(fold(query))
	return func(c domain.CardSummary) bool {
		if q == "" {
			return true
		}
		return strings.Contains(fold(c.Title), q) || strings.Contains(fold(c.Subtitle), q)
	}
}

// fold uses a fresh Caser per call since a Caser must not be shared between goroutines.
func fold(s string) string {
	return cases.Fold().String(s)
}

// InSubcategory matches the card's sub-category tag ("Air", "Water", ...).
// An empty tag matches everything.
func InSubcategory(tag string) CardPredicate {
	tag = strings.TrimSpace(tag)
	return func(c domain.CardSummary) bool {
		return tag == "" || strings.EqualFold(c.Category, tag)
	}
}

// Published drops cards whose publish flag is explicitly false.
func Published() CardPredicate {
	return func(c domain.CardSummary) bool {
		return c.IsLive()
	}
}
