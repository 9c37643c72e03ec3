// Package expr resolves the small declarative expression language used by
// slot filter templates. A template is a nested structure of literals and
// variable-reference nodes; Transform substitutes every reference with the
// value found by walking the context along the reference path.
//
// A reference node is a mapping with the single key "var" holding a path:
//
//	{"name": {"var": ["linked_item", "mechanism"]}}
//
// resolved against {"linked_item": {"mechanism": "M1"}} yields {"name": "M1"}.
package expr

// Missing is the absent value produced for unresolvable reference paths.
// It is deliberately not an error: a filter keyed on Missing simply matches
// nothing, and predicates degrade gracefully.
type missing struct{}

// Missing is the singleton absent value.
var Missing = missing{}

// IsMissing reports whether v is the absent value.
func IsMissing(v any) bool {
	_, ok := v.(missing)
	return ok
}

// Transform walks expression and returns a structurally identical value with
// every reference node replaced by its context lookup. The input is never
// mutated; maps and slices are rebuilt. Transform is a pure function of
// (expression, context).
func Transform(expression any, context map[string]any) any {
	if path, ok := refPath(expression); ok {
		return resolve(path, context)
	}

	switch node := expression.(type) {
	case map[string]any:
		out := make(map[string]any, len(node))
		for key, value := range node {
			out[key] = Transform(value, context)
		}
		return out
	case []any:
		out := make([]any, len(node))
		for i, value := range node {
			out[i] = Transform(value, context)
		}
		return out
	default:
		return expression
	}
}

// refPath extracts the path of a reference node, if v is one.
func refPath(v any) ([]string, bool) {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return nil, false
	}
	raw, ok := m["var"]
	if !ok {
		return nil, false
	}
	switch path := raw.(type) {
	case []string:
		return path, len(path) > 0
	case []any:
		segments := make([]string, 0, len(path))
		for _, seg := range path {
			s, ok := seg.(string)
			if !ok {
				return nil, false
			}
			segments = append(segments, s)
		}
		return segments, len(segments) > 0
	default:
		return nil, false
	}
}

// resolve indexes the context successively with each path segment.
func resolve(path []string, context map[string]any) any {
	var current any = context
	for _, segment := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return Missing
		}
		current, ok = m[segment]
		if !ok {
			return Missing
		}
	}
	return current
}
