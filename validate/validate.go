package validate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
)

// SanitizationPolicy is a policy for sanitizing user-provided comment content
var SanitizationPolicy = bluemonday.UGCPolicy()

// New returns a validator with the module's custom validators registered.
func New() *validator.Validate {
	v := validator.New()
	RegisterCustomValidators(v)
	return v
}

func RegisterCustomValidators(v *validator.Validate) {
	v.RegisterValidation("max_string_length", MaxStringLengthValidator)
	v.RegisterValidation("gif_url", GifURLValidator)
	v.RegisterAlias("comment", "max_string_length=600")
}

// MaxStringLengthValidator validates strings against a max rune length given as
// the tag parameter.
func MaxStringLengthValidator(fl validator.FieldLevel) bool {
	maxLength, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	return len([]rune(fl.Field().String())) <= maxLength
}

// GifURLValidator accepts empty strings and https URLs only.
func GifURLValidator(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	return value == "" || strings.HasPrefix(value, "https://")
}

// SanitizeComment strips unsafe markup from user-provided comment content.
func SanitizeComment(content string) string {
	return strings.TrimSpace(SanitizationPolicy.Sanitize(content))
}

type errFieldValidationFailed struct {
	Field string
	Tag   string
}

func (e errFieldValidationFailed) Error() string {
	return fmt.Sprintf("field %s failed validation with tag %s", e.Field, e.Tag)
}

type valWithTags struct {
	value interface{}
	tag   string
}

// WithTag pairs a value with the validation tags to apply to it.
func WithTag(value interface{}, tag string) valWithTags {
	return valWithTags{value: value, tag: tag}
}

// ValidationMap maps field names to values and their validation tags.
type ValidationMap map[string]valWithTags

// ValidateFields validates input fields by name, returning the first failure.
func ValidateFields(v *validator.Validate, fields ValidationMap) error {
	for name, field := range fields {
		if err := v.Var(field.value, field.tag); err != nil {
			return errFieldValidationFailed{Field: name, Tag: field.tag}
		}
	}
	return nil
}
