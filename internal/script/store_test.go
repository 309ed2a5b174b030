package script

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/adbfleet/internal/ferr"
)

const loginScript = `
name: login
next_config: home_check
steps:
  - name: tap_username
    action: tap
    params:
      x: 100
      y: 200
`

const homeCheckScript = `
name: home_check
steps:
  - name: wait_home
    action: wait_image
    params:
      template: home_icon
`

func newTestStore(t *testing.T) *Store {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "login.yaml"), []byte(loginScript), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "home_check.yaml"), []byte(homeCheckScript), 0o644))
	return NewStore(dir, nil)
}

func TestStore_LoadAndCache(t *testing.T) {
	s := newTestStore(t)
	sc, err := s.Load("login")
	require.NoError(t, err)
	assert.Equal(t, "login", sc.Name)
	assert.Len(t, sc.Steps, 1)

	again, err := s.Load("login")
	require.NoError(t, err)
	assert.Same(t, sc, again)
}

func TestStore_NextConfigResolves(t *testing.T) {
	s := newTestStore(t)
	sc, err := s.Load("login")
	require.NoError(t, err)
	assert.Equal(t, "home_check", s.NextConfig(sc))
}

func TestStore_NextConfigMissingReturnsEmpty(t *testing.T) {
	s := newTestStore(t)
	sc, err := s.Load("login")
	require.NoError(t, err)
	sc.NextConfig = "does_not_exist"
	assert.Equal(t, "", s.NextConfig(sc))
}

func TestStore_LoadUnknownScript(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Load("nope")
	require.Error(t, err)
	assert.True(t, ferr.Is(err, ferr.KindScriptInvalid))
}

func TestValidate_RejectsUnknownAction(t *testing.T) {
	sc := &Script{Name: "bad", Steps: []Step{{Name: "x", Action: "teleport"}}}
	err := Validate(sc)
	require.Error(t, err)
	assert.True(t, ferr.Is(err, ferr.KindHandlerMissing))
}

func TestValidate_RejectsDuplicateStepNames(t *testing.T) {
	sc := &Script{Name: "bad", Steps: []Step{{Name: "x", Action: "tap"}, {Name: "x", Action: "tap"}}}
	err := Validate(sc)
	require.Error(t, err)
}

func TestStore_CheckDependencies(t *testing.T) {
	s := newTestStore(t)
	sc, err := s.Load("login")
	require.NoError(t, err)

	sc.Dependencies = []string{"home_check"}
	assert.NoError(t, s.CheckDependencies(sc))

	sc.Dependencies = []string{"missing_dep"}
	assert.Error(t, s.CheckDependencies(sc))
}
