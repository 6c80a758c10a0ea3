package tool

import (
	"errors"
	"fmt"
)

// ErrMissingArg marks a required argument that was absent or had the wrong
// type. Handlers wrap it with the argument name.
var ErrMissingArg = errors.New("missing required argument")

// String extracts a required string argument.
func String(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingArg, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string, got %T", key, v)
	}
	return s, nil
}

// StringOr extracts an optional string argument with a fallback.
func StringOr(args map[string]any, key, fallback string) string {
	if s, ok := args[key].(string); ok {
		return s
	}
	return fallback
}

// Int extracts a required integer argument. JSON decoding delivers numbers
// as float64, so both forms are accepted.
func Int(args map[string]any, key string) (int, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingArg, key)
	}
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	default:
		return 0, fmt.Errorf("argument %q must be a number, got %T", key, v)
	}
}

// IntOr extracts an optional integer argument with a fallback.
func IntOr(args map[string]any, key string, fallback int) int {
	switch n := args[key].(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return fallback
	}
}

// Bool extracts a required boolean argument.
func Bool(args map[string]any, key string) (bool, error) {
	v, ok := args[key]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrMissingArg, key)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("argument %q must be a boolean, got %T", key, v)
	}
	return b, nil
}

// BoolOr extracts an optional boolean argument with a fallback.
func BoolOr(args map[string]any, key string, fallback bool) bool {
	if b, ok := args[key].(bool); ok {
		return b
	}
	return fallback
}

// StringMap extracts an optional map-of-strings argument (e.g. HTTP
// headers). Non-string values are stringified via fmt.
func StringMap(args map[string]any, key string) map[string]string {
	raw, ok := args[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		} else {
			out[k] = fmt.Sprintf("%v", v)
		}
	}
	return out
}
