package spec

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func writeSpec(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(strings.TrimSpace(content)+"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoad_BlocksFileURL(t *testing.T) {
	t.Parallel()
	_, err := Load(context.Background(), "file:///etc/hosts")
	var se *SpecError
	if !errors.As(err, &se) || se.Code != InputError {
		t.Fatalf("expected InputError, got %v (%T)", err, err)
	}
}

func TestLoad_UnsupportedScheme(t *testing.T) {
	t.Parallel()
	_, err := Load(context.Background(), "ftp://example.com/spec.yaml")
	var se *SpecError
	if !errors.As(err, &se) || se.Code != InputError {
		t.Fatalf("expected InputError, got %v (%T)", err, err)
	}
}

func TestLoad_EmptyInput(t *testing.T) {
	t.Parallel()
	_, err := Load(context.Background(), "   ")
	var se *SpecError
	if !errors.As(err, &se) || se.Code != InputError {
		t.Fatalf("expected InputError, got %v", err)
	}
}

func TestLoad_NetworkError(t *testing.T) {
	t.Parallel()
	// Unused port to provoke a quick network failure.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Load(ctx, "http://127.0.0.1:1/spec.yaml",
		WithHTTPTimeout(200*time.Millisecond), WithMaxRetries(2), WithBackoffBase(time.Millisecond))
	var se *SpecError
	if !errors.As(err, &se) || se.Code != NetworkError {
		t.Fatalf("expected NetworkError, got %v (%T)", err, err)
	}
}

func TestLoad_URLRetriesTransientFailure(t *testing.T) {
	t.Parallel()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(strings.TrimSpace(`
openapi: 3.0.0
info:
  title: Remote
  version: "1.0.0"
servers:
  - url: https://remote.example
paths:
  /ping:
    get:
      responses:
        "200":
          description: ok
`)))
	}))
	defer srv.Close()

	doc, err := Load(context.Background(), srv.URL+"/openapi.yaml", WithBackoffBase(time.Millisecond))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Fatalf("expected 2 requests, got %d", hits)
	}
	if doc.Version != 3 || ServerURL(doc.T) != "https://remote.example" {
		t.Fatalf("unexpected doc: version=%d server=%q", doc.Version, ServerURL(doc.T))
	}
}

func TestLoad_URLClientErrorNotRetried(t *testing.T) {
	t.Parallel()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := Load(context.Background(), srv.URL+"/missing.yaml", WithBackoffBase(time.Millisecond))
	var se *SpecError
	if !errors.As(err, &se) || se.Code != NetworkError {
		t.Fatalf("expected NetworkError, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected a single request, got %d", hits)
	}
}

func TestLoad_V3_InvalidSpec(t *testing.T) {
	t.Parallel()
	path := writeSpec(t, "bad.yaml", `openapi: 3.0.0
info:
  title: Bad
  version: "1.0.0"
paths:
  "/pet":
    get:
      responses: {}
`)
	_, err := Load(context.Background(), path)
	if err == nil {
		t.Fatalf("expected validation error for incomplete responses")
	}
	var se *SpecError
	if !errors.As(err, &se) {
		t.Fatalf("expected SpecError, got %T", err)
	}
	if se.Code != ValidationError && se.Code != ParseError {
		t.Fatalf("expected ValidationError/ParseError, got %v", se.Code)
	}
	if se.Location == "" {
		t.Fatalf("expected location to be set")
	}
}

func TestLoad_DanglingRef(t *testing.T) {
	t.Parallel()
	path := writeSpec(t, "dangling.yaml", `openapi: 3.0.0
info:
  title: Dangling
  version: "1.0.0"
paths:
  /pet:
    get:
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema:
                $ref: '#/components/schemas/Missing'
`)
	_, err := Load(context.Background(), path)
	var se *SpecError
	if !errors.As(err, &se) {
		t.Fatalf("expected SpecError for dangling ref, got %v", err)
	}
}

func TestLoad_UnknownVersion(t *testing.T) {
	t.Parallel()
	path := writeSpec(t, "nover.yaml", `info:
  title: x
paths: {}
`)
	_, err := Load(context.Background(), path)
	var se *SpecError
	if !errors.As(err, &se) || se.Code != ParseError {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

func TestLoad_V2_Conversion_Success(t *testing.T) {
	t.Parallel()
	path := writeSpec(t, "swagger.yaml", `swagger: "2.0"
info:
  title: Sample
  version: "1.0.0"
host: petstore.example
basePath: /v2
schemes: [https]
paths:
  "/hello":
    get:
      responses:
        "200":
          description: ok
definitions:
  LongerName:
    type: object
  Pet:
    type: object
    properties:
      name:
        type: string
`)
	doc, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !strings.HasPrefix(doc.T.OpenAPI, "3.") {
		t.Fatalf("expected OpenAPI v3, got %q", doc.T.OpenAPI)
	}
	if doc.Version != 2 {
		t.Fatalf("expected source version 2, got %d", doc.Version)
	}

	m, err := Normalize(doc)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(m.Schemas) != 2 || m.Schemas[0].Name != "LongerName" || m.Schemas[1].Name != "Pet" {
		t.Fatalf("expected definitions in declaration order, got %+v", m.Schemas)
	}
	if m.ServerURL != "https://petstore.example/v2" {
		t.Fatalf("expected converted server url, got %q", m.ServerURL)
	}
}

func TestLoad_V2_JSONWithDefinitionRefs(t *testing.T) {
	t.Parallel()
	path := writeSpec(t, "swagger.json", `{
  "swagger": "2.0",
  "info": {"title": "Petstore", "version": "1.0.0"},
  "host": "petstore.example",
  "basePath": "/v2",
  "schemes": ["https"],
  "paths": {
    "/pet/findByStatus": {
      "get": {
        "produces": ["application/json"],
        "parameters": [{"name": "status", "in": "query", "required": true, "type": "string"}],
        "responses": {
          "200": {
            "description": "ok",
            "schema": {"type": "array", "items": {"$ref": "#/definitions/Pet"}}
          }
        }
      }
    }
  },
  "definitions": {
    "Category": {"type": "object", "properties": {"name": {"type": "string"}}},
    "Pet": {
      "type": "object",
      "required": ["name"],
      "properties": {
        "name": {"type": "string"},
        "category": {"$ref": "#/definitions/Category"}
      }
    }
  }
}`)
	doc, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	pet := doc.T.Components.Schemas["Pet"]
	if pet == nil || pet.Value == nil {
		t.Fatalf("Pet schema not decoded: %+v", pet)
	}
	category := pet.Value.Properties["category"]
	if category == nil || category.Ref != "#/components/schemas/Category" || category.Value == nil {
		t.Fatalf("category ref not converted and resolved: %+v", category)
	}
	op := doc.T.Paths["/pet/findByStatus"].Get
	resp := op.Responses["200"]
	if resp == nil || resp.Value == nil {
		t.Fatalf("missing 200 response")
	}
	media := resp.Value.Content.Get("application/json")
	if media == nil || media.Schema == nil || media.Schema.Value == nil || media.Schema.Value.Items == nil {
		t.Fatalf("response schema lost in conversion: %+v", media)
	}
	if items := media.Schema.Value.Items; items.Ref != "#/components/schemas/Pet" || items.Value == nil {
		t.Fatalf("items ref not resolved: %+v", items)
	}

	m, err := Normalize(doc)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(m.Schemas) != 2 || m.Schemas[0].Name != "Category" || m.Schemas[1].Name != "Pet" {
		t.Fatalf("unexpected schemas %+v", m.Schemas)
	}
}

func TestLoad_RemoteSpecFileRefs(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	petFile := filepath.Join(dir, "pet.yaml")
	if err := os.WriteFile(petFile, []byte("Pet:\n  type: object\n  properties:\n    name:\n      type: string\n"), 0o600); err != nil {
		t.Fatalf("write ref target: %v", err)
	}
	body := `openapi: 3.0.3
info:
  title: Remote
  version: "1.0.0"
paths:
  /pets:
    get:
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema:
                $ref: 'file://` + filepath.ToSlash(petFile) + `#/Pet'
`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	_, err := Load(context.Background(), srv.URL+"/openapi.yaml")
	if err == nil || !strings.Contains(err.Error(), "blocked file ref") {
		t.Fatalf("expected file ref to be blocked by default, got %v", err)
	}

	doc, err := Load(context.Background(), srv.URL+"/openapi.yaml", WithAllowFileRefs(true))
	if err != nil {
		t.Fatalf("load with file refs allowed: %v", err)
	}
	schema := doc.T.Paths["/pets"].Get.Responses["200"].Value.Content.Get("application/json").Schema
	if schema == nil || schema.Value == nil || schema.Value.Properties["name"] == nil {
		t.Fatalf("file ref not resolved: %+v", schema)
	}
}

func TestLoad_V2_Conversion_Failure(t *testing.T) {
	t.Parallel()
	path := writeSpec(t, "swagger-bad.yaml", `swagger: "2.0"
paths: {}
`)
	_, err := Load(context.Background(), path)
	var se *SpecError
	if !errors.As(err, &se) {
		t.Fatalf("expected SpecError, got %v (%T)", err, err)
	}
	if se.Code != ConversionError && se.Code != ValidationError && se.Code != ParseError {
		t.Fatalf("expected ConversionError/ValidationError/ParseError, got %v", se.Code)
	}
}
