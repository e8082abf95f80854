// Package props reads typed values out of the inline secretStore
// properties. Values come from YAML (native types) or from environment
// overrides (always strings), so each accessor accepts both.
package props

import (
	"fmt"
	"strconv"
	"strings"
)

// String returns the string property key, or "" when unset.
func String(m map[string]interface{}, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// StringDefault returns the string property key or def when unset or blank.
func StringDefault(m map[string]interface{}, key, def string) string {
	if s := String(m, key); s != "" {
		return s
	}
	return def
}

// Bool returns the boolean property key and whether it was set.
func Bool(m map[string]interface{}, key string) (value bool, set bool, err error) {
	switch v := m[key].(type) {
	case nil:
		return false, false, nil
	case bool:
		return v, true, nil
	case string:
		b, perr := strconv.ParseBool(strings.TrimSpace(v))
		if perr != nil {
			return false, true, fmt.Errorf("property '%s' must be a boolean, got %q", key, v)
		}
		return b, true, nil
	default:
		return false, true, fmt.Errorf("property '%s' must be a boolean, got %T", key, v)
	}
}

// BoolDefault returns the boolean property key or def when unset.
func BoolDefault(m map[string]interface{}, key string, def bool) (bool, error) {
	v, set, err := Bool(m, key)
	if err != nil {
		return false, err
	}
	if !set {
		return def, nil
	}
	return v, nil
}
