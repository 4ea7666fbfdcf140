package spec

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// ErrMalformedSpec is the cause of the SpecError returned when a document has
// no paths member.
var ErrMalformedSpec = errors.New("spec: malformed specification")

// Normalize converts a loaded document into the typed Model. Paths are
// visited in declaration order and, within a path, methods in the order of
// Methods. Schemas are returned in declaration order.
func Normalize(doc *Document) (*Model, error) {
	if doc == nil || doc.T == nil {
		return nil, fmt.Errorf("nil document")
	}

	order := declarationOrder{hasPaths: doc.T.Paths != nil}
	if len(doc.Raw) > 0 {
		var err error
		order, err = readDeclarationOrder(doc.Raw, doc.Version)
		if err != nil {
			return nil, &SpecError{Code: ParseError, Message: err.Error(), Location: doc.Location, Cause: err}
		}
	}
	if !order.hasPaths || doc.T.Paths == nil {
		return nil, &SpecError{
			Code:        ValidationError,
			Message:     "spec: document has no paths",
			Location:    doc.Location,
			JSONPointer: "#/paths",
			Cause:       ErrMalformedSpec,
		}
	}

	m := &Model{ServerURL: ServerURL(doc.T)}
	if doc.T.Info != nil {
		m.Title = safeStr(doc.T.Info.Title)
		m.Version = safeStr(doc.T.Info.Version)
		m.Description = safeStr(doc.T.Info.Description)
	}

	for _, p := range ordered(doc.T.Paths, order.paths) {
		item := doc.T.Paths[p]
		if item == nil {
			continue
		}
		for _, method := range Methods {
			op := item.GetOperation(string(method))
			if op == nil {
				continue
			}
			m.Endpoints = append(m.Endpoints, toEndpointRecord(p, method, item, op))
		}
	}

	if doc.T.Components != nil {
		for _, name := range ordered(doc.T.Components.Schemas, order.schemas) {
			ref := doc.T.Components.Schemas[name]
			if ref == nil {
				continue
			}
			m.Schemas = append(m.Schemas, toSchemaRecord(name, ref.Value))
		}
	}
	return m, nil
}

// ServerURL returns servers[0].url, or "" when no server is declared.
func ServerURL(doc *openapi3.T) string {
	if doc == nil || len(doc.Servers) == 0 || doc.Servers[0] == nil {
		return ""
	}
	return safeStr(doc.Servers[0].URL)
}

func toEndpointRecord(path string, method HttpMethod, item *openapi3.PathItem, op *openapi3.Operation) EndpointRecord {
	ep := EndpointRecord{
		Path:        path,
		Method:      method,
		Summary:     safeStr(op.Summary),
		Description: safeStr(op.Description),
		OperationID: safeStr(op.OperationID),
		Parameters:  mergeParameters(item.Parameters, op.Parameters),
		Responses:   map[string]Response{},
	}
	for _, t := range op.Tags {
		if t = strings.TrimSpace(t); t != "" {
			ep.Tags = append(ep.Tags, t)
		}
	}
	for code, rref := range op.Responses {
		if rref == nil || rref.Value == nil {
			continue
		}
		resp := Response{Content: []string{}}
		if rref.Value.Description != nil {
			resp.Description = *rref.Value.Description
		}
		for mime := range rref.Value.Content {
			resp.Content = append(resp.Content, mime)
		}
		sort.Strings(resp.Content)
		ep.Responses[code] = resp
	}
	return ep
}

// mergeParameters keeps operation parameters in declared order, followed by
// path-level parameters the operation does not override.
func mergeParameters(pathLevel, opLevel openapi3.Parameters) []Parameter {
	out := make([]Parameter, 0, len(pathLevel)+len(opLevel))
	seen := make(map[string]struct{}, len(opLevel))
	for _, pref := range opLevel {
		if pm, ok := toParameter(pref); ok {
			seen[paramKey(pm.In, pm.Name)] = struct{}{}
			out = append(out, pm)
		}
	}
	for _, pref := range pathLevel {
		pm, ok := toParameter(pref)
		if !ok {
			continue
		}
		if _, overridden := seen[paramKey(pm.In, pm.Name)]; overridden {
			continue
		}
		out = append(out, pm)
	}
	return out
}

func toParameter(pref *openapi3.ParameterRef) (Parameter, bool) {
	if pref == nil || pref.Value == nil {
		return Parameter{}, false
	}
	p := pref.Value
	pm := Parameter{
		Name:     safeStr(p.Name),
		In:       safeStr(p.In),
		Required: p.Required,
	}
	if p.Schema != nil && p.Schema.Value != nil {
		pm.Type = safeStr(p.Schema.Value.Type)
	}
	return pm, true
}

func toSchemaRecord(name string, s *openapi3.Schema) SchemaRecord {
	rec := SchemaRecord{Name: name, Properties: map[string]Property{}, Required: []string{}}
	if s == nil {
		return rec
	}
	rec.Type = safeStr(s.Type)
	rec.Required = append(rec.Required, s.Required...)
	for propName, pref := range s.Properties {
		if pref == nil || pref.Value == nil {
			rec.Properties[propName] = Property{}
			continue
		}
		v := pref.Value
		prop := Property{
			Type:   safeStr(v.Type),
			Format: safeStr(v.Format),
		}
		if len(v.Enum) > 0 {
			prop.Enum = append([]any(nil), v.Enum...)
		}
		if v.Items != nil && v.Items.Value != nil {
			prop.ItemsType = safeStr(v.Items.Value.Type)
		}
		rec.Properties[propName] = prop
	}
	return rec
}

func paramKey(in, name string) string { return in + ":" + name }

func safeStr(s string) string { return strings.TrimSpace(s) }
