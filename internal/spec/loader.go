package spec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	openapi2 "github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
	invopopyaml "github.com/invopop/yaml"
	"gopkg.in/yaml.v3"
)

// ErrorCode categorizes loader errors for clearer handling and messaging.
type ErrorCode string

const (
	InputError      ErrorCode = "InputError"
	NetworkError    ErrorCode = "NetworkError"
	ParseError      ErrorCode = "ParseError"
	ValidationError ErrorCode = "ValidationError"
	ConversionError ErrorCode = "ConversionError"
)

// SpecError reports a specification that could not be acquired or failed
// structural validation. It is always fatal for a generation request.
type SpecError struct {
	Code        ErrorCode
	Message     string
	Location    string // file path or URL
	JSONPointer string // e.g. "#/paths/~1pets/get"
	Cause       error
}

func (e *SpecError) Error() string { return e.Message }
func (e *SpecError) Unwrap() error { return e.Cause }

// Document is a validated OpenAPI v3 document together with the raw bytes it
// was read from. The raw bytes preserve declaration order, which the typed
// document does not.
type Document struct {
	T        *openapi3.T
	Raw      []byte
	Location string
	// Version is the major version of the source document (2 or 3).
	Version int
}

// Settings configures loader behavior.
type Settings struct {
	// HTTPTimeout bounds each HTTP request.
	HTTPTimeout time.Duration
	// MaxRetries for transient HTTP failures (>=500, 429, or network errors).
	MaxRetries int
	// BackoffBase is the base delay for exponential backoff.
	BackoffBase time.Duration
	// AllowFileRefs controls whether file:// refs are allowed for external references.
	// Automatically allowed when the root input is a local file.
	AllowFileRefs bool
}

// DefaultSettings returns recommended defaults.
func DefaultSettings() Settings {
	return Settings{
		HTTPTimeout:   10 * time.Second,
		MaxRetries:    3,
		BackoffBase:   200 * time.Millisecond,
		AllowFileRefs: false,
	}
}

// Option mutates Settings.
type Option func(*Settings)

func WithHTTPTimeout(d time.Duration) Option  { return func(s *Settings) { s.HTTPTimeout = d } }
func WithMaxRetries(n int) Option             { return func(s *Settings) { s.MaxRetries = n } }
func WithBackoffBase(d time.Duration) Option  { return func(s *Settings) { s.BackoffBase = d } }
func WithAllowFileRefs(allow bool) Option     { return func(s *Settings) { s.AllowFileRefs = allow } }

// Load reads and validates an OpenAPI document. Swagger v2.0 input is
// converted to v3 via openapi2conv before validation.
//
// input may be a filesystem path or an http/https URL. file:// URLs are
// rejected. Any failure is returned as a *SpecError; no partial recovery is
// attempted from an invalid document.
func Load(ctx context.Context, input string, opts ...Option) (*Document, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, &SpecError{Code: InputError, Message: "spec: input is empty"}
	}

	settings := DefaultSettings()
	for _, opt := range opts {
		opt(&settings)
	}

	raw, location, rootIsFile, err := readInput(ctx, input, settings)
	if err != nil {
		return nil, err
	}

	version, err := detectSpecVersion(raw)
	if err != nil {
		return nil, &SpecError{Code: ParseError, Message: err.Error(), Location: location.String(), Cause: err}
	}

	loc := location.String()
	loader := newLoader(settings, rootIsFile)

	var doc *openapi3.T
	switch version {
	case 3:
		doc, err = loader.LoadFromDataWithPath(raw, location)
		if err != nil {
			return nil, mapValidateOrParseErr(err, loc)
		}
	case 2:
		doc, err = convertV2ToV3(raw)
		if err != nil {
			return nil, &SpecError{Code: ConversionError, Message: fmt.Sprintf("convert v2→v3: %v", err), Location: loc, Cause: err}
		}
		if err := loader.ResolveRefsIn(doc, location); err != nil {
			return nil, mapValidateOrParseErr(err, loc)
		}
	}

	if err := doc.Validate(ctx); err != nil {
		return nil, mapValidateOrParseErr(err, loc)
	}
	return &Document{T: doc, Raw: raw, Location: loc, Version: version}, nil
}

// readInput classifies input as URL or file path and returns its bytes and a
// location usable as the base for relative refs.
func readInput(ctx context.Context, input string, settings Settings) ([]byte, *url.URL, bool, error) {
	u, uerr := url.Parse(input)
	isURL := uerr == nil && u.Scheme != "" && u.Host != ""

	if isURL {
		scheme := strings.ToLower(u.Scheme)
		if scheme == "file" {
			return nil, nil, false, &SpecError{Code: InputError, Message: "spec: file:// URLs are blocked", Location: input}
		}
		if scheme != "http" && scheme != "https" {
			return nil, nil, false, &SpecError{Code: InputError, Message: fmt.Sprintf("spec: unsupported URL scheme %q (only http/https allowed)", scheme), Location: input}
		}
		raw, err := fetchWithRetry(ctx, input, settings)
		if err != nil {
			return nil, nil, false, &SpecError{Code: NetworkError, Message: fmt.Sprintf("fetch %s: %v", input, err), Location: input, Cause: err}
		}
		return raw, u, false, nil
	}
	if uerr == nil && u.Scheme == "file" {
		return nil, nil, false, &SpecError{Code: InputError, Message: "spec: file:// URLs are blocked", Location: input}
	}

	abs, err := filepath.Abs(input)
	if err != nil {
		return nil, nil, false, &SpecError{Code: InputError, Message: fmt.Sprintf("resolve path: %v", err), Location: input, Cause: err}
	}
	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, nil, false, &SpecError{Code: InputError, Message: fmt.Sprintf("read file %s: %v", abs, err), Location: abs, Cause: err}
	}
	return raw, &url.URL{Path: filepath.ToSlash(abs)}, true, nil
}

func newLoader(settings Settings, rootIsFile bool) *openapi3.Loader {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true
	client := &http.Client{Timeout: settings.HTTPTimeout}
	allowFile := settings.AllowFileRefs || rootIsFile
	loader.ReadFromURIFunc = func(l *openapi3.Loader, uri *url.URL) ([]byte, error) {
		switch strings.ToLower(uri.Scheme) {
		case "", "file":
			if !allowFile {
				return nil, fmt.Errorf("blocked file ref: %s", uri.String())
			}
			path := uri.Path
			if path == "" {
				path = uri.Opaque
			}
			return os.ReadFile(path)
		case "http", "https":
			req, err := http.NewRequest(http.MethodGet, uri.String(), nil)
			if err != nil {
				return nil, err
			}
			resp, err := client.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 400 {
				return nil, fmt.Errorf("http %d: %s", resp.StatusCode, uri.String())
			}
			return io.ReadAll(resp.Body)
		default:
			return nil, fmt.Errorf("unsupported ref scheme: %s", uri.Scheme)
		}
	}
	return loader
}

// detectSpecVersion returns 3 for OpenAPI v3, 2 for Swagger v2, else error.
func detectSpecVersion(data []byte) (int, error) {
	var root map[string]any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return 0, fmt.Errorf("parse spec: %w", err)
	}
	if v, ok := root["openapi"]; ok {
		if s, _ := v.(string); strings.HasPrefix(strings.TrimSpace(s), "3.") {
			return 3, nil
		}
	}
	if v, ok := root["swagger"]; ok {
		if s, _ := v.(string); strings.HasPrefix(strings.TrimSpace(s), "2.") {
			return 2, nil
		}
	}
	return 0, fmt.Errorf("spec: missing or unknown version (expected 'openapi: 3.x' or 'swagger: 2.0')")
}

// convertV2ToV3 decodes through JSON because kin-openapi's ref types only
// implement json.Unmarshaler; a direct YAML decode drops every $ref.
func convertV2ToV3(data []byte) (*openapi3.T, error) {
	js, err := invopopyaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("yaml to json: %w", err)
	}
	var v2 openapi2.T
	if err := json.Unmarshal(js, &v2); err != nil {
		return nil, fmt.Errorf("decode swagger 2.0: %w", err)
	}
	return openapi2conv.ToV3(&v2)
}

func fetchWithRetry(ctx context.Context, rawURL string, settings Settings) ([]byte, error) {
	client := &http.Client{Timeout: settings.HTTPTimeout}
	var lastErr error
	backoff := settings.BackoffBase
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	attempts := settings.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		body, retry, err := fetchOnce(ctx, client, rawURL)
		if err == nil {
			return body, nil
		}
		if !retry {
			return nil, err
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	if lastErr == nil {
		lastErr = errors.New("fetch failed")
	}
	return nil, lastErr
}

// fetchOnce performs one GET. The bool result reports whether a failure is
// transient and worth another attempt.
func fetchOnce(ctx context.Context, client *http.Client, rawURL string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 300 {
		body, err := io.ReadAll(resp.Body)
		return body, err != nil, err
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, true, fmt.Errorf("transient http error %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return nil, false, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

func mapValidateOrParseErr(err error, location string) error {
	pointer := extractJSONPointer(err)
	code := ValidationError
	// Heuristics: some loader errors are parse errors.
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "parse") || strings.Contains(lower, "invalid character") {
		code = ParseError
	}
	return &SpecError{Code: code, Message: err.Error(), Location: location, JSONPointer: pointer, Cause: err}
}

var jsonPtrRe = regexp.MustCompile(`#/[^\s'\"]+`)

func extractJSONPointer(err error) string {
	if err == nil {
		return ""
	}
	// Take the first of a MultiError for brevity.
	if me, ok := err.(openapi3.MultiError); ok {
		if len(me) > 0 {
			return extractJSONPointer(me[0])
		}
	}
	var se *openapi3.SchemaError
	if errors.As(err, &se) {
		if parts := se.JSONPointer(); len(parts) > 0 {
			return "#/" + strings.Join(parts, "/")
		}
		if se.SchemaField != "" {
			return se.SchemaField
		}
	}
	if m := jsonPtrRe.FindString(err.Error()); m != "" {
		return m
	}
	return ""
}
