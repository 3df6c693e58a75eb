// ABOUTME: Path grammar and pure editing helpers for nested recipe documents.
// ABOUTME: One parser backs GetAt, SetAt, and the edit-overlay merge so the grammar cannot diverge.
package recipe

import (
	"fmt"
	"strconv"
	"strings"
)

// Document is a nested recipe document as decoded from JSON: maps, slices,
// and scalar leaves.
type Document = map[string]any

// pathSegment is one dot-separated piece of a path: a map key followed by
// zero or more slice indices (e.g. "interior[2]" -> key "interior", [2]).
type pathSegment struct {
	key     string
	indices []int
}

// parsePath splits a dotted, bracket-indexed path like
// "composition.membrane.regions.interior[2].count" into segments.
func parsePath(path string) ([]pathSegment, error) {
	if path == "" {
		return nil, fmt.Errorf("empty path")
	}

	parts := strings.Split(path, ".")
	segs := make([]pathSegment, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("path %q: empty segment", path)
		}

		key := part
		var indices []int
		if i := strings.IndexByte(part, '['); i >= 0 {
			key = part[:i]
			rest := part[i:]
			for rest != "" {
				if rest[0] != '[' {
					return nil, fmt.Errorf("path %q: malformed index in segment %q", path, part)
				}
				close := strings.IndexByte(rest, ']')
				if close < 0 {
					return nil, fmt.Errorf("path %q: unterminated index in segment %q", path, part)
				}
				n, err := strconv.Atoi(rest[1:close])
				if err != nil || n < 0 {
					return nil, fmt.Errorf("path %q: bad index %q in segment %q", path, rest[1:close], part)
				}
				indices = append(indices, n)
				rest = rest[close+1:]
			}
		}
		if key == "" && len(indices) == 0 {
			return nil, fmt.Errorf("path %q: empty segment", path)
		}
		segs = append(segs, pathSegment{key: key, indices: indices})
	}
	return segs, nil
}

// GetAt resolves path against doc. The second return is false when any
// segment is missing or the structure does not match the path shape.
func GetAt(doc Document, path string) (any, bool) {
	segs, err := parsePath(path)
	if err != nil {
		return nil, false
	}

	var cur any = doc
	for _, seg := range segs {
		if seg.key != "" {
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, false
			}
			cur, ok = m[seg.key]
			if !ok {
				return nil, false
			}
		}
		for _, idx := range seg.indices {
			s, ok := cur.([]any)
			if !ok || idx >= len(s) {
				return nil, false
			}
			cur = s[idx]
		}
	}
	return cur, true
}

// SetAt writes value at path inside doc, creating intermediate maps and
// growing slices as needed. The document is mutated in place; callers that
// need isolation clone first (see BuildEffectiveDocument). Returns an error
// when the path is malformed or conflicts with the existing structure
// (e.g. indexing into a map).
func SetAt(doc Document, path string, value any) error {
	segs, err := parsePath(path)
	if err != nil {
		return err
	}
	if segs[0].key == "" {
		return fmt.Errorf("path %q: document root is not indexable", path)
	}
	_, err = assign(doc, segs, value)
	return err
}

// assign descends one segment and returns the (possibly replacement)
// container so grown slices propagate back up to their parent.
func assign(container any, segs []pathSegment, value any) (any, error) {
	if len(segs) == 0 {
		return value, nil
	}

	seg := segs[0]
	if seg.key == "" {
		return assignIndices(container, seg.indices, segs[1:], value)
	}

	var m map[string]any
	switch c := container.(type) {
	case nil:
		m = make(map[string]any)
	case map[string]any:
		m = c
	default:
		return nil, fmt.Errorf("segment %q: cannot write key into %T", seg.key, container)
	}

	child, err := assignIndices(m[seg.key], seg.indices, segs[1:], value)
	if err != nil {
		return nil, err
	}
	m[seg.key] = child
	return m, nil
}

func assignIndices(container any, indices []int, rest []pathSegment, value any) (any, error) {
	if len(indices) == 0 {
		return assign(container, rest, value)
	}

	var s []any
	switch c := container.(type) {
	case nil:
		// grown below
	case []any:
		s = c
	default:
		return nil, fmt.Errorf("index %d: cannot index into %T", indices[0], container)
	}

	idx := indices[0]
	for len(s) <= idx {
		s = append(s, nil)
	}

	child, err := assignIndices(s[idx], indices[1:], rest, value)
	if err != nil {
		return nil, err
	}
	s[idx] = child
	return s, nil
}

// BuildEffectiveDocument clones defaultDoc and applies every edit in the
// overlay. Edit paths are assumed not to conflict with each other (one path
// being a prefix of another is unsupported); application order is
// unspecified.
func BuildEffectiveDocument(defaultDoc Document, edits map[string]any) (Document, error) {
	doc := CloneDocument(defaultDoc)
	for path, value := range edits {
		if err := SetAt(doc, path, value); err != nil {
			return nil, fmt.Errorf("apply edit %s: %w", path, err)
		}
	}
	return doc, nil
}

// CloneDocument deep-copies a document so callers can mutate the result
// without observing shared substructure.
func CloneDocument(doc Document) Document {
	if doc == nil {
		return nil
	}
	return cloneValue(doc).(map[string]any)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, child := range t {
			m[k] = cloneValue(child)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, child := range t {
			s[i] = cloneValue(child)
		}
		return s
	default:
		return v
	}
}
