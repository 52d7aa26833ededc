package compose

import (
	"fmt"

	"dario.cat/mergo"
)

// Merge deep-merges override onto base and returns a new value.
//
// Mappings are merged key by key, recursively. Any other override value,
// including a list or a zero scalar, replaces the base value outright. A nil
// override leaves base unchanged. Neither argument is modified.
func Merge(base, override any) (any, error) {
	if override == nil {
		return clone(base), nil
	}
	bm, bok := asMap(base)
	om, ook := asMap(override)
	if !bok || !ook {
		return clone(override), nil
	}

	// Both sides are cloned into map[string]any / []any so mergo sees
	// matching types and the result shares nothing with the inputs.
	out, _ := asMap(clone(bm))
	src, _ := asMap(clone(om))
	if err := mergo.Merge(&out, src, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	return out, nil
}

// asMap normalizes the mapping types yaml.v3 may produce.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, s := range m {
			out[k] = s
		}
		return out, true
	default:
		return nil, false
	}
}

func clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = clone(e)
		}
		return out
	case map[string]string:
		m, _ := asMap(t)
		return m
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = clone(e)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out
	default:
		return v
	}
}
