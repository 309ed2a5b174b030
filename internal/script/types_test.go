package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestStep_UnmarshalYAMLPreservesParamOrder(t *testing.T) {
	doc := `
name: tap_login
action: click_image
params:
  template: login_button
  threshold: 0.9
  retries: 3
`
	var step Step
	require.NoError(t, yaml.Unmarshal([]byte(doc), &step))

	assert.Equal(t, "tap_login", step.Name)
	assert.Equal(t, "click_image", step.Action)

	var keys []string
	for pair := step.Params.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	assert.Equal(t, []string{"template", "threshold", "retries"}, keys)
	assert.Equal(t, 0.9, GetFloat(step.Params, "threshold", 0))
}

func TestScript_IsStepEnabled(t *testing.T) {
	sc := &Script{EnabledSteps: map[string]bool{"login": false}}
	assert.False(t, sc.IsStepEnabled("login"))
	assert.True(t, sc.IsStepEnabled("logout"))

	sc2 := &Script{}
	assert.True(t, sc2.IsStepEnabled("anything"))
}

func TestScript_StepByName(t *testing.T) {
	sc := &Script{Steps: []Step{{Name: "a"}, {Name: "b"}}}
	step, ok := sc.StepByName("b")
	assert.True(t, ok)
	assert.Equal(t, "b", step.Name)

	_, ok = sc.StepByName("missing")
	assert.False(t, ok)
}
