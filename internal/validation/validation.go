// Package validation wraps go-playground/validator with JSON field names so
// failures can be reported the way the client sent them.
package validation

import (
	"errors"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// Validator is safe for concurrent use; share one per process.
type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// registration only fails on an empty tag or nil func
	_ = v.RegisterValidation("loose_email", looseEmail)
	_ = v.RegisterValidation("phone", phone)
	_ = v.RegisterValidation("trimmed_min", trimmedMin)
	return &Validator{v: v}
}

var (
	looseEmailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRe      = regexp.MustCompile(`^[\d\s\-+()]+$`)
)

// looseEmail accepts anything shaped like local@domain.tld. The "email" tag
// rejects addresses visitors actually use.
func looseEmail(fl validator.FieldLevel) bool {
	return looseEmailRe.MatchString(fl.Field().String())
}

// phone accepts digits, spaces and +-() with at least 8 characters.
func phone(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return len(s) >= 8 && phoneRe.MatchString(s)
}

// trimmedMin is min=N measured after trimming surrounding whitespace.
func trimmedMin(fl validator.FieldLevel) bool {
	n, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	return utf8.RuneCountInString(strings.TrimSpace(fl.Field().String())) >= n
}

// FieldError names one failed rule, e.g. {Field: "email", Tag: "email"}.
type FieldError struct {
	Field string
	Tag   string
}

// Error lists every field that failed.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" failed "+f.Tag)
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// Has reports whether field failed any rule.
func (e *Error) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// Struct validates s and returns *Error for rule failures.
func (v *Validator) Struct(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return err
	}
	out := &Error{Fields: make([]FieldError, 0, len(fields))}
	for _, fe := range fields {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Tag: fe.Tag()})
	}
	return out
}
