package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestParseLimit(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"512", 512},
		{"4K", 4 << 10},
		{"1M", 1 << 20},
		{"12MB", 12 << 20},
		{"1g", 1 << 30},
		{"", 1 << 20},
		{"lots", 1 << 20},
	}
	for _, tt := range tests {
		if got := parseLimit(tt.in); got != tt.want {
			t.Errorf("parseLimit(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func readAll(c echo.Context) error {
	_, err := io.ReadAll(c.Request().Body)
	return err
}

func TestBodyLimit(t *testing.T) {
	tests := []struct {
		name, method, path string
		size               int
		tooLarge           bool
	}{
		{"small json", http.MethodPost, "/api/appointments", 100, false},
		{"large json", http.MethodPost, "/api/appointments", 2048, true},
		{"large image upload", http.MethodPost, "/api/patients/abc/images", 2048, false},
		{"large patient create", http.MethodPost, "/api/patients", 2048, false},
		{"oversized upload", http.MethodPost, "/api/patients/abc/images", 8192, true},
	}
	mw := BodyLimit("1K", "4K")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(strings.Repeat("a", tt.size)))
			req.ContentLength = -1
			c := e.NewContext(req, httptest.NewRecorder())

			err := mw(readAll)(c)
			var he *echo.HTTPError
			gotTooLarge := errors.As(err, &he) && he.Code == http.StatusRequestEntityTooLarge
			if gotTooLarge != tt.tooLarge {
				t.Errorf("expected tooLarge=%v, got err=%v", tt.tooLarge, err)
			}
		})
	}
}

func TestBodyLimit_ContentLengthShortCircuit(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/medications", strings.NewReader(strings.Repeat("a", 4096)))
	c := e.NewContext(req, httptest.NewRecorder())

	called := false
	err := BodyLimit("1K", "4K")(func(echo.Context) error { called = true; return nil })(c)
	if err == nil || called {
		t.Error("expected rejection before the handler runs")
	}
}
