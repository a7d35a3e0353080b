// Package fields holds JSON boundary types for request payloads.
package fields

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// StringList accepts either a JSON array of strings or a single
// comma-separated string. Elements are trimmed and empty elements dropped.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}

	var raw []string
	switch {
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.Split(s, ",")
	case len(data) > 0 && data[0] == '[':
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("list must contain only strings: %w", err)
		}
	default:
		return fmt.Errorf("expected a list of strings or a comma-separated string")
	}

	*l = Normalize(raw)
	return nil
}

// Normalize trims every element and drops the empty ones, keeping order.
func Normalize(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Optional records whether a key was present in a JSON payload, so partial
// updates can tell "absent" from "set to zero" and "set to null".
type Optional[T any] struct {
	Value T
	Set   bool
	Null  bool
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Null = true
		var zero T
		o.Value = zero
		return nil
	}
	return json.Unmarshal(data, &o.Value)
}

// Some returns a present, non-null Optional.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Set: true}
}

// Apply writes the value into dst when the key was present and not null.
func (o Optional[T]) Apply(dst *T) {
	if o.Set && !o.Null {
		*dst = o.Value
	}
}

// ApplyPtr writes into a nullable destination; an explicit null clears it.
func (o Optional[T]) ApplyPtr(dst **T) {
	if !o.Set {
		return
	}
	if o.Null {
		*dst = nil
		return
	}
	v := o.Value
	*dst = &v
}
