package apperr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestKindOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("outer: %w", Forbidden("nope"))
	if KindOf(err) != KindForbidden {
		t.Errorf("expected forbidden, got %s", KindOf(err))
	}
	if !Is(err, KindForbidden) {
		t.Error("expected Is to match forbidden")
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Error("expected unknown kind for plain error")
	}
}

func TestAsStorage(t *testing.T) {
	if AsStorage("op", nil) != nil {
		t.Error("expected nil passthrough")
	}

	nf := NotFound("patient", "x")
	if got := AsStorage("get", nf); got != nf {
		t.Error("expected typed error to pass through unchanged")
	}

	cause := errors.New("connection reset")
	got := AsStorage("list patients", cause)
	if KindOf(got) != KindStorage {
		t.Fatalf("expected storage kind, got %s", KindOf(got))
	}
	if !errors.Is(got, cause) {
		t.Error("expected storage error to wrap cause")
	}
}

func TestCollector_ReportsEveryField(t *testing.T) {
	var c Collector
	c.Required("firstName", "  ")
	c.Required("lastName", "Doe")
	c.Required("email", "")

	err := c.Err()
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if e.Kind != KindValidation {
		t.Errorf("expected validation kind, got %s", e.Kind)
	}
	if len(e.Fields) != 2 {
		t.Fatalf("expected 2 field errors, got %d", len(e.Fields))
	}
	if e.Fields[0].Field != "firstName" || e.Fields[1].Field != "email" {
		t.Errorf("unexpected fields: %+v", e.Fields)
	}
	if !strings.Contains(e.Error(), "firstName is required") {
		t.Errorf("unexpected message: %s", e.Error())
	}
}

func TestCollector_Empty(t *testing.T) {
	var c Collector
	c.Required("name", "x")
	if c.Err() != nil {
		t.Error("expected no error")
	}
}
