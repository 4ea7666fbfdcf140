package spec

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// declarationOrder captures key order from the raw document. kin-openapi
// exposes paths and schemas as Go maps, so order has to come from the
// yaml.Node tree. JSON input parses the same way.
type declarationOrder struct {
	hasPaths bool
	paths    []string
	schemas  []string
}

func readDeclarationOrder(raw []byte, version int) (declarationOrder, error) {
	var order declarationOrder
	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return order, fmt.Errorf("parse spec: %w", err)
	}
	top := &root
	if top.Kind == yaml.DocumentNode {
		if len(top.Content) == 0 {
			return order, nil
		}
		top = top.Content[0]
	}
	if top.Kind != yaml.MappingNode {
		return order, nil
	}

	if paths := mappingValue(top, "paths"); paths != nil {
		order.hasPaths = paths.Kind == yaml.MappingNode
		order.paths = mappingKeys(paths)
	}

	var schemas *yaml.Node
	if version == 2 {
		schemas = mappingValue(top, "definitions")
	} else if components := mappingValue(top, "components"); components != nil {
		schemas = mappingValue(components, "schemas")
	}
	order.schemas = mappingKeys(schemas)
	return order, nil
}

func mappingValue(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func mappingKeys(n *yaml.Node) []string {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	keys := make([]string, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		keys = append(keys, n.Content[i].Value)
	}
	return keys
}

// ordered returns the keys of m following declared, with any keys missing
// from declared appended in sorted order.
func ordered[V any](m map[string]V, declared []string) []string {
	out := make([]string, 0, len(m))
	seen := make(map[string]struct{}, len(m))
	for _, k := range declared {
		if _, ok := m[k]; !ok {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	var rest []string
	for k := range m {
		if _, ok := seen[k]; !ok {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}
