package validation

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ehr/records/internal/platform/apperr"
	"github.com/ehr/records/pkg/fields"
)

// Check is a format rule for a single string value.
type Check struct {
	ok  func(string) bool
	msg string
}

var (
	Date = Check{IsDate, "must be a date in YYYY-MM-DD format"}
	Time = Check{IsTime, "must be a time in HH:MM or HH:MM:SS format"}
)

// MaxLen limits a value to n characters, matching the max tag on create.
func MaxLen(n int) Check {
	return Check{
		ok:  func(s string) bool { return utf8.RuneCountInString(s) <= n },
		msg: "must be at most " + strconv.Itoa(n) + " characters",
	}
}

func OneOf(values ...string) Check {
	return Check{
		ok: func(s string) bool {
			for _, v := range values {
				if s == v {
					return true
				}
			}
			return false
		},
		msg: "must be one of: " + strings.Join(values, ", "),
	}
}

// Patch applies the fields of a partial update, collecting every invalid one.
type Patch struct {
	c apperr.Collector
}

// Required applies a present value to dst after trimming. Null or blank
// values are reported as missing and each check must accept the value.
func (p *Patch) Required(field string, o fields.Optional[string], dst *string, checks ...Check) {
	if !o.Set {
		return
	}
	v := strings.TrimSpace(o.Value)
	if o.Null || v == "" {
		p.c.Add(field, "is required")
		return
	}
	for _, chk := range checks {
		if !chk.ok(v) {
			p.c.Add(field, chk.msg)
			return
		}
	}
	*dst = v
}

// Nullable applies a present value to a nullable dst. Null or blank clears it.
func (p *Patch) Nullable(field string, o fields.Optional[string], dst **string, checks ...Check) {
	if !o.Set {
		return
	}
	v := strings.TrimSpace(o.Value)
	if o.Null || v == "" {
		*dst = nil
		return
	}
	for _, chk := range checks {
		if !chk.ok(v) {
			p.c.Add(field, chk.msg)
			return
		}
	}
	*dst = &v
}

func (p *Patch) Add(field, msg string) { p.c.Add(field, msg) }

func (p *Patch) Err() error { return p.c.Err() }

// VarCheck builds a Check from validator tags, for rules such as email that
// have no local implementation.
func (v *Validator) VarCheck(tag, msg string) Check {
	return Check{
		ok:  func(s string) bool { return v.v.Var(s, tag) == nil },
		msg: msg,
	}
}
