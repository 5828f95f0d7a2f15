package config

import (
	"fmt"
	"sort"
)

// Args is a constructor argument map as decoded from a model document.
// Numbers may arrive as any Go numeric type.
type Args map[string]any

// Has reports whether key is present and non-nil.
func (a Args) Has(key string) bool {
	v, ok := a[key]
	return ok && v != nil
}

// Keys returns the keys in sorted order.
func (a Args) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Float returns key as a float64, or def when absent.
func (a Args) Float(key string, def float64) (float64, error) {
	if !a.Has(key) {
		return def, nil
	}
	f, ok := toFloat(a[key])
	if !ok {
		return 0, fmt.Errorf("argument %q: expected a number, got %T", key, a[key])
	}
	return f, nil
}

// Int returns key as an int, or def when absent.
func (a Args) Int(key string, def int) (int, error) {
	if !a.Has(key) {
		return def, nil
	}
	f, ok := toFloat(a[key])
	if !ok || f != float64(int(f)) {
		return 0, fmt.Errorf("argument %q: expected an integer, got %v", key, a[key])
	}
	return int(f), nil
}

// RequireInt returns key as an int and fails when absent.
func (a Args) RequireInt(key string) (int, error) {
	if !a.Has(key) {
		return 0, fmt.Errorf("missing required argument %q", key)
	}
	return a.Int(key, 0)
}

// Bool returns key as a bool, or def when absent.
func (a Args) Bool(key string, def bool) (bool, error) {
	if !a.Has(key) {
		return def, nil
	}
	b, ok := a[key].(bool)
	if !ok {
		return false, fmt.Errorf("argument %q: expected a bool, got %T", key, a[key])
	}
	return b, nil
}

// String returns key as a string, or def when absent.
func (a Args) String(key, def string) (string, error) {
	if !a.Has(key) {
		return def, nil
	}
	s, ok := a[key].(string)
	if !ok {
		return "", fmt.Errorf("argument %q: expected a string, got %T", key, a[key])
	}
	return s, nil
}

// Ints returns key as a list of ints. A nil element is returned as -1.
func (a Args) Ints(key string) ([]int, error) {
	if !a.Has(key) {
		return nil, nil
	}
	switch v := a[key].(type) {
	case []int:
		return append([]int(nil), v...), nil
	case []any:
		out := make([]int, len(v))
		for i, e := range v {
			if e == nil {
				out[i] = -1
				continue
			}
			f, ok := toFloat(e)
			if !ok || f != float64(int(f)) {
				return nil, fmt.Errorf("argument %q[%d]: expected an integer, got %v", key, i, e)
			}
			out[i] = int(f)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("argument %q: expected a list, got %T", key, a[key])
	}
}

// Map returns key as a nested Args.
func (a Args) Map(key string) (Args, error) {
	if !a.Has(key) {
		return nil, nil
	}
	m, ok := AsArgs(a[key])
	if !ok {
		return nil, fmt.Errorf("argument %q: expected a mapping, got %T", key, a[key])
	}
	return m, nil
}

// AsArgs converts a decoded mapping into Args.
func AsArgs(v any) (Args, bool) {
	switch m := v.(type) {
	case Args:
		return m, true
	case map[string]any:
		return Args(m), true
	case map[any]any:
		out := make(Args, len(m))
		for k, e := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = e
		}
		return out, true
	default:
		return nil, false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
