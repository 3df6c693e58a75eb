// ABOUTME: Structural deep equality for document values with numeric normalization.
// ABOUTME: Backs edit-overlay collapsing: a value written back to its default must compare equal.
package recipe

// DeepEqual reports whether two document values are structurally equal.
// Numbers compare by value regardless of Go type (an int 10 equals a
// float64 10), since JSON round-trips erase that distinction.
func DeepEqual(a, b any) bool {
	if af, ok := asFloat(a); ok {
		bf, ok := asFloat(b)
		return ok && af == bf
	}

	switch at := a.(type) {
	case nil:
		return b == nil
	case string:
		bs, ok := b.(string)
		return ok && at == bs
	case bool:
		bb, ok := b.(bool)
		return ok && at == bb
	case map[string]any:
		bm, ok := b.(map[string]any)
		if !ok || len(at) != len(bm) {
			return false
		}
		for k, av := range at {
			bv, ok := bm[k]
			if !ok || !DeepEqual(av, bv) {
				return false
			}
		}
		return true
	case []any:
		bs, ok := b.([]any)
		if !ok || len(at) != len(bs) {
			return false
		}
		for i, av := range at {
			if !DeepEqual(av, bs[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// IsScalar reports whether v is a leaf value the edit model exposes:
// a string or a number. Objects, arrays, bools, and nil are not editable
// leaves.
func IsScalar(v any) bool {
	if _, ok := asFloat(v); ok {
		return true
	}
	_, ok := v.(string)
	return ok
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
