package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"travelcatalog/internal/domain"
)

var commonFields = map[string]bool{
	"slug":             true,
	"title":            true,
	"hero_image":       true,
	"long_description": true,
	"tags":             true,
	"is_live":          true,
}

type detailDoc struct {
	Slug            string   `json:"slug"`
	Title           string   `json:"title"`
	HeroImage       string   `json:"hero_image"`
	LongDescription string   `json:"long_description"`
	Tags            []string `json:"tags"`
	IsLive          *bool    `json:"is_live"`
}

func decodeDetail(data []byte, categoryID, slug string, schema *jsonschema.Schema) (domain.DetailRecord, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return domain.DetailRecord{}, fmt.Errorf("decode detail: %w", err)
	}
	if fields == nil {
		return domain.DetailRecord{}, errors.New("decode detail: document is null")
	}
	var doc detailDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.DetailRecord{}, fmt.Errorf("decode detail: %w", err)
	}
	if doc.Slug == "" {
		return domain.DetailRecord{}, errors.New("detail record has no slug")
	}
	if doc.Slug != slug {
		return domain.DetailRecord{}, fmt.Errorf("detail record slug %q does not match %q", doc.Slug, slug)
	}
	if doc.Title == "" {
		return domain.DetailRecord{}, errors.New("detail record has no title")
	}
	if schema != nil {
		var v any
		if err := json.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
			return domain.DetailRecord{}, fmt.Errorf("decode detail: %w", err)
		}
		if err := schema.Validate(v); err != nil {
			return domain.DetailRecord{}, schemaIssues(err)
		}
	}
	rec := domain.DetailRecord{
		CategoryID:      categoryID,
		Slug:            doc.Slug,
		Title:           doc.Title,
		HeroImageRef:    doc.HeroImage,
		LongDescription: doc.LongDescription,
		Tags:            doc.Tags,
		IsLive:          doc.IsLive == nil || *doc.IsLive,
	}
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
	for k, v := range fields {
		if commonFields[k] {
			continue
		}
		if rec.Attributes == nil {
			rec.Attributes = map[string]json.RawMessage{}
		}
		rec.Attributes[k] = v
	}
	return rec, nil
}

type indexDoc struct {
	Title string               `json:"title"`
	Intro string               `json:"intro"`
	Cards []domain.CardSummary `json:"cards"`
}

func decodeIndex(data []byte, categoryID, locale string) (domain.MasterIndex, error) {
	var doc *indexDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.MasterIndex{}, fmt.Errorf("decode index: %w", err)
	}
	if doc == nil {
		return domain.MasterIndex{}, errors.New("decode index: document is null")
	}
	seen := make(map[string]bool, len(doc.Cards))
	for i, c := range doc.Cards {
		if c.Slug == "" {
			return domain.MasterIndex{}, fmt.Errorf("card %d has no slug", i)
		}
		if err := validateSlug(c.Slug); err != nil {
			return domain.MasterIndex{}, fmt.Errorf("card %d slug %q: %w", i, c.Slug, err)
		}
		if seen[c.Slug] {
			return domain.MasterIndex{}, fmt.Errorf("duplicate card slug %q", c.Slug)
		}
		seen[c.Slug] = true
	}
	cards := doc.Cards
	if cards == nil {
		cards = []domain.CardSummary{}
	}
	return domain.MasterIndex{
		CategoryID: categoryID,
		Locale:     locale,
		Title:      doc.Title,
		IntroText:  doc.Intro,
		Cards:      cards,
	}, nil
}
