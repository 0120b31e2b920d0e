package catalog

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// safeSlug accepts any slug an index may carry as long as substituting it into
// an item path template cannot escape the category's directory.
var safeSlug = validation.By(func(value interface{}) error {
	s, _ := value.(string)
	if strings.ContainsAny(s, `/\{}`) || strings.Contains(s, "..") {
		return errors.New("slug must not contain path separators, '..' or template braces")
	}
	if strings.TrimSpace(s) != s {
		return errors.New("slug must not have surrounding whitespace")
	}
	return nil
})

func validateSlug(slug string) error {
	return validation.Validate(slug, validation.Required, safeSlug)
}
