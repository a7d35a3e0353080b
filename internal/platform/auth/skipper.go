package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths bypass principal resolution: health checks, login and the
// API description.
var publicPaths = map[string]bool{
	"/health":           true,
	"/health/db":        true,
	"/api/auth/login":   true,
	"/api/openapi.json": true,
	"/api/docs":         true,
}

// AuthSkipper returns true for requests whose route should skip authentication.
func AuthSkipper(c echo.Context) bool {
	if publicPaths[c.Path()] {
		return true
	}
	return publicPaths[c.Request().URL.Path]
}

// IsPublicPath reports whether the given path is reachable without credentials.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}
