// Package script holds the parsed automation script format and the handler
// table that executes it: a closed set of generic device actions
// (click_image, input_text, wait_image, swipe, key, tap, sleep,
// restart_app, shell) plus a lua_script escape hatch for anything the
// closed set can't express.
package script

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"gopkg.in/yaml.v3"
)

// Params is a step's action-specific argument bag. An ordered map keeps the
// on-disk argument order stable for logging; the Lua params table built from
// it is keyed by name, not position.
type Params = *orderedmap.OrderedMap[string, any]

// Step is one unit of work inside a Script.
type Step struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Action      string `yaml:"action"`
	Params      Params `yaml:"params"`
	WaitAfterMs int    `yaml:"wait_after_ms"`
	MaxAttempts int    `yaml:"max_attempts"`
}

// stepAlias has the same shape as Step but a plain yaml.Node for Params, so
// UnmarshalYAML can walk the mapping's key order itself: yaml.v3 has no
// built-in notion of how to decode into an OrderedMap.
type stepAlias struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Action      string    `yaml:"action"`
	Params      yaml.Node `yaml:"params"`
	WaitAfterMs int       `yaml:"wait_after_ms"`
	MaxAttempts int       `yaml:"max_attempts"`
}

// UnmarshalYAML decodes a step, preserving the on-disk order of its params
// mapping instead of yaml.v3's default (which would lose it to a Go map).
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	var alias stepAlias
	if err := node.Decode(&alias); err != nil {
		return err
	}
	s.Name = alias.Name
	s.Description = alias.Description
	s.Action = alias.Action
	s.WaitAfterMs = alias.WaitAfterMs
	s.MaxAttempts = alias.MaxAttempts

	if alias.Params.Kind != yaml.MappingNode {
		s.Params = orderedmap.New[string, any]()
		return nil
	}

	params := orderedmap.New[string, any]()
	content := alias.Params.Content
	for i := 0; i+1 < len(content); i += 2 {
		var key string
		var val any
		if err := content[i].Decode(&key); err != nil {
			return err
		}
		if err := content[i+1].Decode(&val); err != nil {
			return err
		}
		params.Set(key, val)
	}
	s.Params = params
	return nil
}

// Settings are per-script execution tunables decoded from the script file.
// The executor and the handlers do not read them: retries come from each
// step's MaxAttempts, delays from WaitAfterMs, and the match threshold from
// the step's threshold param or the Matcher default.
type Settings struct {
	ActionIntervalMs    int     `yaml:"action_interval_ms"`
	MaxActionAttempts   int     `yaml:"max_action_attempts"`
	RetryDelayMs        int     `yaml:"retry_delay_ms"`
	ClickDelayMs        int     `yaml:"click_delay_ms"`
	ImageMatchThreshold float64 `yaml:"image_match_threshold"`
	WaitTimeoutS        int     `yaml:"wait_timeout_s"`
}

// Script is one loaded automation definition.
type Script struct {
	Name         string          `yaml:"name"`
	Description  string          `yaml:"description"`
	Version      string          `yaml:"version"`
	Author       string          `yaml:"author"`
	NextConfig   string          `yaml:"next_config"`
	Dependencies []string        `yaml:"dependencies"`
	Settings     Settings        `yaml:"settings"`
	Steps        []Step          `yaml:"steps"`
	EnabledSteps map[string]bool `yaml:"enabled_steps"`

	// Path is the file this script was loaded from; not part of the YAML.
	Path string `yaml:"-"`
}

// IsStepEnabled reports whether step name should run, defaulting to
// enabled when EnabledSteps doesn't mention it.
func (s *Script) IsStepEnabled(name string) bool {
	if s.EnabledSteps == nil {
		return true
	}
	enabled, ok := s.EnabledSteps[name]
	if !ok {
		return true
	}
	return enabled
}

// StepByName returns the step named name, or false if there is none.
func (s *Script) StepByName(name string) (Step, bool) {
	for _, step := range s.Steps {
		if step.Name == name {
			return step, true
		}
	}
	return Step{}, false
}
