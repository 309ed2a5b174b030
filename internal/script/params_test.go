package script

import (
	"testing"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/stretchr/testify/assert"
)

func buildParams(pairs ...any) Params {
	p := orderedmap.New[string, any]()
	for i := 0; i+1 < len(pairs); i += 2 {
		p.Set(pairs[i].(string), pairs[i+1])
	}
	return p
}

func TestGetString(t *testing.T) {
	p := buildParams("template", "login_button")
	assert.Equal(t, "login_button", GetString(p, "template", ""))
	assert.Equal(t, "fallback", GetString(p, "missing", "fallback"))
	assert.Equal(t, "fallback", GetString(nil, "template", "fallback"))
}

func TestGetInt_AcceptsFloatFromYAMLDecode(t *testing.T) {
	p := buildParams("x", float64(42), "y", 7)
	assert.Equal(t, 42, GetInt(p, "x", 0))
	assert.Equal(t, 7, GetInt(p, "y", 0))
	assert.Equal(t, -1, GetInt(p, "missing", -1))
}

func TestGetBool(t *testing.T) {
	p := buildParams("enabled", true)
	assert.True(t, GetBool(p, "enabled", false))
	assert.False(t, GetBool(p, "missing", false))
	assert.False(t, GetBool(p, "enabled_typo", false))
}

func TestRequireString(t *testing.T) {
	p := buildParams("command", "input keyevent 4")
	v, err := RequireString(p, "command")
	assert.NoError(t, err)
	assert.Equal(t, "input keyevent 4", v)

	_, err = RequireString(p, "missing")
	assert.Error(t, err)
}
