package script

import "fmt"

// GetString reads a string param, returning def if absent or the wrong type.
func GetString(p Params, key, def string) string {
	if p == nil {
		return def
	}
	v, ok := p.Get(key)
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

// GetInt reads an int param, accepting both int and float64 (YAML numbers
// decode as either depending on literal form).
func GetInt(p Params, key string, def int) int {
	if p == nil {
		return def
	}
	v, ok := p.Get(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return def
	}
}

// GetFloat reads a float64 param.
func GetFloat(p Params, key string, def float64) float64 {
	if p == nil {
		return def
	}
	v, ok := p.Get(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return def
	}
}

// GetBool reads a bool param.
func GetBool(p Params, key string, def bool) bool {
	if p == nil {
		return def
	}
	v, ok := p.Get(key)
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

// RequireString reads a required string param, returning a plain error when
// it is absent, empty or not a string (handlers wrap it as KindScriptInvalid).
func RequireString(p Params, key string) (string, error) {
	v := GetString(p, key, "")
	if v == "" {
		return "", fmt.Errorf("missing required param %q", key)
	}
	return v, nil
}
