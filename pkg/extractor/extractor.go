// Package extractor extracts values from nested documents using dotted paths
package extractor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Extractor handles extracting values from nested data structures
type Extractor struct{}

// New creates a new Extractor
func New() *Extractor {
	return &Extractor{}
}

// ExtractAll returns every value reachable by path.
// Supported syntax:
//   - Simple path: "name", "address.city"
//   - Arrays of objects are traversed implicitly: "emails.email" yields every email
//   - Explicit array access: "emails[0].email", "emails[*].email"
//
// Arrays found at the end of the path are flattened into their elements.
func (e *Extractor) ExtractAll(data any, path string) []any {
	if path == "" {
		return flatten([]any{data})
	}

	results := []any{data}
	for _, part := range parsePath(path) {
		var next []any
		for _, current := range results {
			next = append(next, e.extractPart(current, part)...)
		}
		results = next
		if len(results) == 0 {
			return nil
		}
	}

	return flatten(results)
}

// ExtractStrings returns every non-empty value reachable by path, rendered as strings
func (e *Extractor) ExtractStrings(data any, path string) []string {
	values := e.ExtractAll(data, path)
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s := toString(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// pathPart represents a parsed path segment
type pathPart struct {
	key        string
	isArray    bool
	arrayIndex int
	isWildcard bool
}

// parsePath parses a dotted path expression into parts
func parsePath(path string) []pathPart {
	var parts []pathPart

	for _, seg := range splitPath(path) {
		part := pathPart{key: seg}

		if idx := strings.Index(seg, "["); idx != -1 && strings.HasSuffix(seg, "]") {
			part.key = seg[:idx]
			indexPart := seg[idx+1 : len(seg)-1]

			if indexPart == "*" {
				part.isWildcard = true
				part.isArray = true
			} else if i, err := strconv.Atoi(indexPart); err == nil {
				part.isArray = true
				part.arrayIndex = i
			}
		}

		parts = append(parts, part)
	}

	return parts
}

// splitPath splits a dot-notation path, respecting array brackets
func splitPath(path string) []string {
	var parts []string
	var current strings.Builder

	inBracket := false
	for _, c := range path {
		switch c {
		case '[':
			inBracket = true
			current.WriteRune(c)
		case ']':
			inBracket = false
			current.WriteRune(c)
		case '.':
			if inBracket {
				current.WriteRune(c)
				continue
			}
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(c)
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts
}

// extractPart resolves one path segment against a value. Arrays reached by a key
// lookup are traversed so that every element is resolved against the rest of the path.
func (e *Extractor) extractPart(data any, part pathPart) []any {
	if data == nil {
		return nil
	}

	if arr, ok := toArray(data); ok && part.key != "" {
		var out []any
		for _, item := range arr {
			out = append(out, e.extractPart(item, part)...)
		}
		return out
	}

	value := data
	if part.key != "" {
		v, ok := lookup(data, part.key)
		if !ok || v == nil {
			return nil
		}
		value = v
	}

	if !part.isArray {
		return []any{value}
	}

	arr, ok := toArray(value)
	if !ok {
		return nil
	}
	if part.isWildcard {
		return arr
	}
	if part.arrayIndex < 0 || part.arrayIndex >= len(arr) {
		return nil
	}
	return []any{arr[part.arrayIndex]}
}

func lookup(data any, key string) (any, bool) {
	switch v := data.(type) {
	case map[string]any:
		val, ok := v[key]
		return val, ok
	case map[string]string:
		val, ok := v[key]
		return val, ok
	default:
		return nil, false
	}
}

func flatten(values []any) []any {
	var out []any
	for _, v := range values {
		if arr, ok := toArray(v); ok {
			out = append(out, flatten(arr)...)
			continue
		}
		if v != nil {
			out = append(out, v)
		}
	}
	return out
}

// toArray converts a value to an array
func toArray(v any) ([]any, bool) {
	switch arr := v.(type) {
	case []any:
		return arr, true
	case []string:
		result := make([]any, len(arr))
		for i, s := range arr {
			result[i] = s
		}
		return result, true
	case []map[string]any:
		result := make([]any, len(arr))
		for i, m := range arr {
			result[i] = m
		}
		return result, true
	default:
		return nil, false
	}
}

// toString converts any value to a string
func toString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	case fmt.Stringer:
		return val.String()
	default:
		// complex types are JSON encoded
		b, _ := json.Marshal(v)
		return string(b)
	}
}
