// Package openapi describes the records API as an OpenAPI 3.0 document. Request
// and response schemas are derived from the domain types' json and validate
// tags, so they cannot drift from what the handlers accept.
package openapi

import (
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Param is a query filter accepted by a list route.
type Param struct {
	Name        string
	Description string
	Format      string
}

// Resource describes one collection mounted under /api.
type Resource struct {
	Name    string // singular, e.g. "Patient"
	Path    string // e.g. "/patients"
	Model   interface{}
	Create  interface{}
	Filters []Param
}

type Generator struct {
	resources []Resource
	version   string
	baseURL   string
}

func NewGenerator(version, baseURL string, resources ...Resource) *Generator {
	return &Generator{resources: resources, version: version, baseURL: baseURL}
}

// GenerateSpec produces the OpenAPI 3.0 spec as a map.
func (g *Generator) GenerateSpec() map[string]interface{} {
	paths := map[string]interface{}{
		"/api/auth/login": map[string]interface{}{
			"post": map[string]interface{}{
				"summary":     "Exchange username and password for an identity token",
				"operationId": "login",
				"tags":        []string{"Auth"},
				"security":    []interface{}{},
				"responses": map[string]interface{}{
					"200": description("Authenticated"),
					"401": errorResponse("Invalid credentials"),
				},
			},
		},
		"/api/auth/me": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "Describe the calling user and its permissions",
				"operationId": "me",
				"tags":        []string{"Auth"},
				"responses": map[string]interface{}{
					"200": description("Current user"),
					"401": errorResponse("Missing or unknown identity"),
				},
			},
		},
	}

	schemas := map[string]interface{}{
		"Error":      SchemaFor(errorBody{}),
		"Pagination": paginationSchema(),
	}

	for _, r := range g.resources {
		ref := "#/components/schemas/" + r.Name
		schemas[r.Name] = SchemaFor(r.Model)
		if r.Create != nil {
			schemas[r.Name+"Create"] = SchemaFor(r.Create)
			update := SchemaFor(r.Create)
			delete(update, "required")
			schemas[r.Name+"Update"] = update
		}
		createBody := requestBody("#/components/schemas/" + r.Name + "Create")
		updateBody := requestBody("#/components/schemas/" + r.Name + "Update")

		listParams := []map[string]interface{}{
			queryParam("page", "Page number, starting at 1", "integer", ""),
			queryParam("per_page", "Page size, clamped to 100", "integer", ""),
		}
		for _, f := range r.Filters {
			listParams = append(listParams, queryParam(f.Name, f.Description, "string", f.Format))
		}

		paths["/api"+r.Path] = map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "List " + r.Name + " records visible to the caller",
				"operationId": "list" + r.Name,
				"tags":        []string{r.Name},
				"parameters":  listParams,
				"responses": map[string]interface{}{
					"200": pageResponse(ref),
					"400": errorResponse("Invalid filter or pagination"),
					"403": errorResponse("Missing permission"),
				},
			},
			"post": map[string]interface{}{
				"summary":     "Create " + r.Name,
				"operationId": "create" + r.Name,
				"tags":        []string{r.Name},
				"requestBody": createBody,
				"responses": map[string]interface{}{
					"201": jsonResponse("Created", ref),
					"400": errorResponse("Validation failed"),
					"403": errorResponse("Missing permission"),
				},
			},
		}

		idParam := []map[string]interface{}{
			{"name": "id", "in": "path", "required": true, "schema": map[string]string{"type": "string", "format": "uuid"}},
		}
		paths["/api"+r.Path+"/{id}"] = map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "Read " + r.Name,
				"operationId": "get" + r.Name,
				"tags":        []string{r.Name},
				"parameters":  idParam,
				"responses": map[string]interface{}{
					"200": jsonResponse("Success", ref),
					"403": errorResponse("Record belongs to another user"),
					"404": errorResponse("Not found"),
				},
			},
			"put": map[string]interface{}{
				"summary":     "Update " + r.Name + "; only keys present in the body are applied",
				"operationId": "update" + r.Name,
				"tags":        []string{r.Name},
				"parameters":  idParam,
				"requestBody": updateBody,
				"responses": map[string]interface{}{
					"200": jsonResponse("Updated", ref),
					"400": errorResponse("Validation failed"),
					"403": errorResponse("Missing permission"),
					"404": errorResponse("Not found"),
				},
			},
			"delete": map[string]interface{}{
				"summary":     "Delete " + r.Name,
				"operationId": "delete" + r.Name,
				"tags":        []string{r.Name},
				"parameters":  idParam,
				"responses": map[string]interface{}{
					"204": description("Deleted"),
					"403": errorResponse("Missing permission"),
					"404": errorResponse("Not found"),
				},
			},
		}
	}

	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":       "Clinical Records API",
			"version":     g.version,
			"description": "Patients, appointments, medications and medical records with per-role access control",
		},
		"servers": []map[string]string{
			{"url": g.baseURL},
		},
		"paths": paths,
		"security": []map[string][]string{
			{"bearerAuth": {}},
			{"userIdHeader": {}},
		},
		"components": map[string]interface{}{
			"schemas": schemas,
			"securitySchemes": map[string]interface{}{
				"bearerAuth":   map[string]string{"type": "http", "scheme": "bearer"},
				"userIdHeader": map[string]string{"type": "apiKey", "in": "header", "name": "X-User-ID"},
			},
		},
	}
}

// errorBody mirrors the error envelope written by the error handler.
type errorBody struct {
	Error   string `json:"error" validate:"required"`
	Message string `json:"message" validate:"required"`
	Fields  []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"fields,omitempty"`
}

func description(d string) map[string]interface{} {
	return map[string]interface{}{"description": d}
}

func jsonResponse(d, ref string) map[string]interface{} {
	return map[string]interface{}{
		"description": d,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{
				"schema": map[string]string{"$ref": ref},
			},
		},
	}
}

func errorResponse(d string) map[string]interface{} {
	return jsonResponse(d, "#/components/schemas/Error")
}

func pageResponse(itemRef string) map[string]interface{} {
	return map[string]interface{}{
		"description": "One page of results",
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{
				"schema": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"data":       map[string]interface{}{"type": "array", "items": map[string]string{"$ref": itemRef}},
						"pagination": map[string]string{"$ref": "#/components/schemas/Pagination"},
					},
				},
			},
		},
	}
}

func paginationSchema() map[string]interface{} {
	props := make(map[string]interface{})
	for _, name := range []string{"total", "per_page", "current_page", "total_pages"} {
		props[name] = map[string]string{"type": "integer"}
	}
	for _, name := range []string{"has_next", "has_prev"} {
		props[name] = map[string]string{"type": "boolean"}
	}
	return map[string]interface{}{"type": "object", "properties": props}
}

func requestBody(ref string) map[string]interface{} {
	return map[string]interface{}{
		"required": true,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{
				"schema": map[string]string{"$ref": ref},
			},
		},
	}
}

func queryParam(name, desc, typ, format string) map[string]interface{} {
	schema := map[string]string{"type": typ}
	if format != "" {
		schema["format"] = format
	}
	return map[string]interface{}{
		"name":        name,
		"in":          "query",
		"required":    false,
		"description": desc,
		"schema":      schema,
	}
}

var (
	timeType = reflect.TypeOf(time.Time{})
	uuidType = reflect.TypeOf(uuid.UUID{})
)

// SchemaFor derives an object schema from v's json tags. Pointer fields are
// nullable; fields tagged required or notblank are listed as required.
// Calendar-date strings get format date.
func SchemaFor(v interface{}) map[string]interface{} {
	return schemaOf(reflect.TypeOf(v))
}

func schemaOf(t reflect.Type) map[string]interface{} {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t {
	case timeType:
		return map[string]interface{}{"type": "string", "format": "date-time"}
	case uuidType:
		return map[string]interface{}{"type": "string", "format": "uuid"}
	}

	switch t.Kind() {
	case reflect.String:
		return map[string]interface{}{"type": "string"}
	case reflect.Bool:
		return map[string]interface{}{"type": "boolean"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]interface{}{"type": "integer"}
	case reflect.Float32, reflect.Float64:
		return map[string]interface{}{"type": "number"}
	case reflect.Slice, reflect.Array:
		return map[string]interface{}{"type": "array", "items": schemaOf(t.Elem())}
	case reflect.Struct:
		return structSchema(t)
	}
	return map[string]interface{}{}
}

func structSchema(t reflect.Type) map[string]interface{} {
	props := make(map[string]interface{})
	var required []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		s := schemaOf(f.Type)
		if f.Type.Kind() == reflect.Ptr {
			s["nullable"] = true
		}
		props[name] = s

		for _, rule := range strings.Split(f.Tag.Get("validate"), ",") {
			switch rule {
			case "required", "notblank":
				required = append(required, name)
			case "datetime=2006-01-02":
				s["format"] = "date"
			}
		}
	}
	out := map[string]interface{}{"type": "object", "properties": props}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Clinical Records API - Swagger UI</title>
  <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" >
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({ url: "/api/openapi.json", dom_id: '#swagger-ui', deepLinking: true })
  </script>
</body>
</html>`

// RegisterRoutes registers the OpenAPI endpoints.
func (g *Generator) RegisterRoutes(api *echo.Group) {
	api.GET("/openapi.json", func(c echo.Context) error {
		return c.JSON(http.StatusOK, g.GenerateSpec())
	})
	api.GET("/docs", func(c echo.Context) error {
		return c.HTML(http.StatusOK, swaggerUIHTML)
	})
}
