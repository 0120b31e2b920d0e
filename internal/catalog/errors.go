package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrNotRegistered marks lookups of a category the registry does not know.
	ErrNotRegistered = errors.New("category not registered")
	// ErrNotFound marks content missing in both the requested and the default locale.
	ErrNotFound = errors.New("content not found")
	// ErrLoad marks content that exists but could not be loaded or decoded.
	ErrLoad = errors.New("content load failed")
)

// NotRegisteredError is a programmer error: the caller asked for an unknown category.
type NotRegisteredError struct {
	CategoryID string
}

func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("category %q not registered", e.CategoryID)
}

func (e *NotRegisteredError) Unwrap() error { return ErrNotRegistered }

// LoadError reports a record that could not be read or is malformed.
type LoadError struct {
	Category string
	Path     string
	Locale   string
	Cause    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s (category %s, locale %s): %v", e.Path, e.Category, e.Locale, e.Cause)
}

func (e *LoadError) Unwrap() error { return e.Cause }

func (e *LoadError) Is(target error) bool { return target == ErrLoad }

// NotFoundError converts a not-found resolution into an error for callers that want one.
type NotFoundError struct {
	Category string
	Slug     string
	Locale   string
}

func (e *NotFoundError) Error() string {
	if e.Slug == "" {
		return fmt.Sprintf("no index for category %s in locale %s", e.Category, e.Locale)
	}
	return fmt.Sprintf("%s/%s not found in locale %s", e.Category, e.Slug, e.Locale)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }
