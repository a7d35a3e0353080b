// Package validation runs struct-tag validation and reports failures as
// apperr field errors.
package validation

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ehr/records/internal/platform/apperr"
)

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

var timePattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d(:[0-5]\d)?$`)

var messages = map[string]string{
	"required": "is required",
	"notblank": "is required",
	"email":    "must be a valid email address",
	"datetime": "must be a date in YYYY-MM-DD format",
	"hhmm":     "must be a time in HH:MM or HH:MM:SS format",
	"max":      "must be at most %s characters",
	"min":      "must be at least %s characters",
	"oneof":    "must be one of: %s",
	"uuid":     "must be a valid UUID",
}

// Validator wraps a configured validator.Validate. Field names in errors use
// the json tag.
type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == "" || timePattern.MatchString(s)
	})
	return &Validator{v: v}
}

// Struct validates s and returns an apperr validation error listing every
// failing field.
func (v *Validator) Struct(s interface{}) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Invalid("body", err.Error())
	}
	var c apperr.Collector
	for _, fe := range verrs {
		c.Add(fe.Field(), message(fe))
	}
	return c.Err()
}

func message(fe validator.FieldError) string {
	msg, ok := messages[fe.Tag()]
	if !ok {
		return "is invalid"
	}
	if strings.Contains(msg, "%s") {
		param := fe.Param()
		if fe.Tag() == "oneof" {
			param = strings.Join(strings.Fields(param), ", ")
		}
		msg = strings.Replace(msg, "%s", param, 1)
	}
	return msg
}

// IsDate reports whether s is a real calendar date in YYYY-MM-DD form.
func IsDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// IsTime reports whether s is an HH:MM or HH:MM:SS time.
func IsTime(s string) bool { return timePattern.MatchString(s) }

// Query checks list filter values from a query string, collecting every
// malformed one.
type Query struct {
	c apperr.Collector
}

// UUID returns raw in canonical form, recording an error when it is set but
// not a UUID. Prefixed and braced forms are normalized before they reach SQL.
func (q *Query) UUID(field, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		q.c.Add(field, "must be a valid UUID")
		return raw
	}
	return id.String()
}

// Date returns raw trimmed, recording an error when it is set but not a
// YYYY-MM-DD date.
func (q *Query) Date(field, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw != "" && !IsDate(raw) {
		q.c.Add(field, "must be a date in YYYY-MM-DD format")
	}
	return raw
}

func (q *Query) Err() error { return q.c.Err() }
