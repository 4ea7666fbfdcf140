// Package corpus turns a normalized specification into independently
// retrievable documents.
package corpus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/mark3labs/spec2client/internal/spec"
)

type Kind string

const (
	KindAPIInfo      Kind = "api_info"
	KindEndpointList Kind = "valid_endpoints_list"
	KindEndpoint     Kind = "endpoint"
	KindSchema       Kind = "schema"
)

// DefaultSchemaCap is the number of schema documents kept when no cap is set.
const DefaultSchemaCap = 10

// Document is one retrievable unit. Content is the text that gets embedded
// and shown to the generator; Tags carry structured metadata.
type Document struct {
	ID      string
	Kind    Kind
	Content string
	Tags    map[string]string
}

type buildConfig struct {
	schemaCap int
}

// Option configures Build.
type Option func(*buildConfig)

// WithSchemaCap limits the number of schema documents. Negative values are
// treated as zero.
func WithSchemaCap(n int) Option {
	return func(c *buildConfig) {
		if n < 0 {
			n = 0
		}
		c.schemaCap = n
	}
}

// Build produces, in order: the API identity document, the valid endpoint
// list, one document per endpoint, and the selected schema documents.
func Build(m *spec.Model, opts ...Option) ([]Document, error) {
	if m == nil {
		return nil, fmt.Errorf("corpus: nil model")
	}
	cfg := buildConfig{schemaCap: DefaultSchemaCap}
	for _, opt := range opts {
		opt(&cfg)
	}

	selected := SelectSchemas(m.Schemas, cfg.schemaCap)
	docs := make([]Document, 0, 2+len(m.Endpoints)+len(selected))

	info, err := apiInfoDocument(m)
	if err != nil {
		return nil, err
	}
	docs = append(docs, info)

	list, err := endpointListDocument(m.Endpoints)
	if err != nil {
		return nil, err
	}
	docs = append(docs, list)

	for _, ep := range m.Endpoints {
		doc, err := endpointDocument(ep)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	for _, s := range selected {
		doc, err := schemaDocument(s)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// SelectSchemas returns the first n schemas ordered by name length, ties kept
// in declaration order. Short names are a heuristic for foundational types,
// not a guarantee of relevance.
func SelectSchemas(schemas []spec.SchemaRecord, n int) []spec.SchemaRecord {
	if n <= 0 || len(schemas) == 0 {
		return nil
	}
	sorted := append([]spec.SchemaRecord(nil), schemas...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return utf8.RuneCountInString(sorted[i].Name) < utf8.RuneCountInString(sorted[j].Name)
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// EndpointLine is the one-line entry used in the valid endpoint list.
func EndpointLine(ep spec.EndpointRecord) string {
	desc := oneLine(ep.Summary)
	if desc == "" {
		desc = oneLine(ep.OperationID)
	}
	if desc == "" {
		desc = "No description"
	}
	return fmt.Sprintf("%s - %s", ep.Key(), desc)
}

func apiInfoDocument(m *spec.Model) (Document, error) {
	title := m.Title
	if title == "" {
		title = "API"
	}
	content, err := marshal(struct {
		Title       string `json:"title"`
		Version     string `json:"version"`
		Description string `json:"description"`
		ServerURL   string `json:"serverUrl"`
	}{title, m.Version, m.Description, m.ServerURL})
	if err != nil {
		return Document{}, err
	}
	return newDocument(KindAPIInfo, content, nil), nil
}

func endpointListDocument(endpoints []spec.EndpointRecord) (Document, error) {
	lines := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		lines = append(lines, EndpointLine(ep))
	}
	content, err := marshal(struct {
		ValidEndpoints []string `json:"validEndpoints"`
	}{lines})
	if err != nil {
		return Document{}, err
	}
	return newDocument(KindEndpointList, content, nil), nil
}

type parameterContent struct {
	Name     string       `json:"name"`
	In       string       `json:"in"`
	Required bool         `json:"required"`
	Schema   *typeContent `json:"schema,omitempty"`
}

type typeContent struct {
	Type string `json:"type"`
}

type responseContent struct {
	Description string   `json:"description"`
	Content     []string `json:"content"`
}

func endpointDocument(ep spec.EndpointRecord) (Document, error) {
	params := make([]parameterContent, 0, len(ep.Parameters))
	for _, p := range ep.Parameters {
		pc := parameterContent{Name: p.Name, In: p.In, Required: p.Required}
		if p.Type != "" {
			pc.Schema = &typeContent{Type: p.Type}
		}
		params = append(params, pc)
	}
	responses := make(map[string]responseContent, len(ep.Responses))
	for code, r := range ep.Responses {
		content := r.Content
		if content == nil {
			content = []string{}
		}
		responses[code] = responseContent{Description: r.Description, Content: content}
	}

	content, err := marshal(struct {
		Path        string                     `json:"path"`
		Method      string                     `json:"method"`
		Summary     string                     `json:"summary"`
		Description string                     `json:"description"`
		OperationID string                     `json:"operationId"`
		Parameters  []parameterContent         `json:"parameters"`
		Responses   map[string]responseContent `json:"responses"`
	}{ep.Path, string(ep.Method), ep.Summary, ep.Description, ep.OperationID, params, responses})
	if err != nil {
		return Document{}, err
	}
	return newDocument(KindEndpoint, content, map[string]string{
		"path":        ep.Path,
		"method":      string(ep.Method),
		"operationId": ep.OperationID,
		"tags":        strings.Join(ep.Tags, ","),
	}), nil
}

type propertyContent struct {
	Type   string       `json:"type,omitempty"`
	Format string       `json:"format,omitempty"`
	Enum   []any        `json:"enum,omitempty"`
	Items  *typeContent `json:"items,omitempty"`
}

func schemaDocument(s spec.SchemaRecord) (Document, error) {
	props := make(map[string]propertyContent, len(s.Properties))
	for name, p := range s.Properties {
		pc := propertyContent{Type: p.Type, Format: p.Format, Enum: p.Enum}
		if p.ItemsType != "" {
			pc.Items = &typeContent{Type: p.ItemsType}
		}
		props[name] = pc
	}
	required := s.Required
	if required == nil {
		required = []string{}
	}

	type schemaContent struct {
		Type       string                     `json:"type,omitempty"`
		Properties map[string]propertyContent `json:"properties"`
		Required   []string                   `json:"required"`
	}
	content, err := marshal(struct {
		Name   string        `json:"name"`
		Schema schemaContent `json:"schema"`
	}{s.Name, schemaContent{s.Type, props, required}})
	if err != nil {
		return Document{}, err
	}
	return newDocument(KindSchema, content, map[string]string{"name": s.Name}), nil
}

func newDocument(kind Kind, content string, tags map[string]string) Document {
	all := map[string]string{"type": string(kind)}
	for k, v := range tags {
		all[k] = v
	}
	return Document{ID: uuid.NewString(), Kind: kind, Content: content, Tags: all}
}

// marshal renders indented JSON without HTML escaping so paths and
// descriptions stay readable to the generator.
func marshal(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("corpus: encode document: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
