package script

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/srg/adbfleet/internal/ferr"
)

// Store loads and caches scripts from a directory of YAML files, the Go
// equivalent of scanning a directory of Python config modules for a CONFIG
// dict: one file per script, looked up by name without extension.
type Store struct {
	dir    string
	logger *logrus.Logger

	mu      sync.RWMutex
	loaded  map[string]*Script
	rawText map[string]string // last-loaded source, for reload diffing
}

// NewStore creates a Store rooted at dir.
func NewStore(dir string, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.New()
	}
	return &Store{
		dir:     dir,
		logger:  logger,
		loaded:  make(map[string]*Script),
		rawText: make(map[string]string),
	}
}

// Scan lists script names (file base names without extension) in dir.
func (s *Store) Scan() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, ferr.Wrap(ferr.KindIOFailure, err, s.dir)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
			names = append(names, strings.TrimSuffix(strings.TrimSuffix(name, ".yaml"), ".yml"))
		}
	}
	return names, nil
}

func (s *Store) path(name string) (string, error) {
	for _, ext := range []string{".yaml", ".yml"} {
		p := filepath.Join(s.dir, name+ext)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", ferr.New(ferr.KindScriptInvalid, fmt.Sprintf("script not found: %s", name))
}

// Load parses and caches the script named name, returning the cached copy
// on subsequent calls.
func (s *Store) Load(name string) (*Script, error) {
	s.mu.RLock()
	if sc, ok := s.loaded[name]; ok {
		s.mu.RUnlock()
		return sc, nil
	}
	s.mu.RUnlock()
	return s.reload(name)
}

func (s *Store) reload(name string) (*Script, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ferr.Wrap(ferr.KindIOFailure, err, path)
	}

	var sc Script
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, ferr.Wrap(ferr.KindScriptInvalid, err, path)
	}
	if sc.Name == "" {
		sc.Name = name
	}
	sc.Path = path

	if err := Validate(&sc); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if prev, ok := s.rawText[name]; ok && prev != string(data) {
		s.logger.WithField("diff", unifiedDiff(path, prev, string(data))).Info("script changed on reload")
	}
	s.loaded[name] = &sc
	s.rawText[name] = string(data)
	s.mu.Unlock()

	return &sc, nil
}

// Reload drops name from the cache and re-parses it from disk.
func (s *Store) Reload(name string) (*Script, error) {
	s.mu.Lock()
	delete(s.loaded, name)
	s.mu.Unlock()
	return s.reload(name)
}

// LoadAll loads every script file found by Scan, skipping (and logging)
// any that fail to parse rather than aborting the whole batch.
func (s *Store) LoadAll() map[string]*Script {
	names, err := s.Scan()
	if err != nil {
		s.logger.WithError(err).Warn("script scan failed")
		return nil
	}
	out := make(map[string]*Script, len(names))
	for _, name := range names {
		sc, err := s.Load(name)
		if err != nil {
			s.logger.WithError(err).WithField("script", name).Error("script load failed")
			continue
		}
		out[name] = sc
	}
	return out
}

// NextConfig resolves sc.NextConfig, returning "" if unset or the named
// successor script doesn't exist.
func (s *Store) NextConfig(sc *Script) string {
	if sc.NextConfig == "" {
		return ""
	}
	if _, err := s.path(sc.NextConfig); err != nil {
		s.logger.WithField("next_config", sc.NextConfig).Warn("next_config not found")
		return ""
	}
	return sc.NextConfig
}

// CheckDependencies reports whether every script in sc.Dependencies exists.
func (s *Store) CheckDependencies(sc *Script) error {
	for _, dep := range sc.Dependencies {
		if _, err := s.path(dep); err != nil {
			return ferr.New(ferr.KindScriptInvalid, fmt.Sprintf("dependency %s not found for %s", dep, sc.Name))
		}
	}
	return nil
}

// Validate checks the structural invariants a script must satisfy: steps
// must name a registered handler and have unique names.
func Validate(sc *Script) error {
	if len(sc.Steps) == 0 {
		return ferr.New(ferr.KindScriptInvalid, fmt.Sprintf("%s: script has no steps", sc.Name))
	}
	seen := make(map[string]bool, len(sc.Steps))
	for _, step := range sc.Steps {
		if step.Name == "" {
			return ferr.New(ferr.KindScriptInvalid, fmt.Sprintf("%s: step missing name", sc.Name))
		}
		if seen[step.Name] {
			return ferr.New(ferr.KindScriptInvalid, fmt.Sprintf("%s: duplicate step name %q", sc.Name, step.Name))
		}
		seen[step.Name] = true
		if !IsRegistered(step.Action) {
			return ferr.New(ferr.KindHandlerMissing, fmt.Sprintf("%s: step %q uses unknown action %q", sc.Name, step.Name, step.Action))
		}
	}
	return nil
}

func unifiedDiff(path, before, after string) string {
	edits := myers.ComputeEdits("", before, after)
	return fmt.Sprint(gotextdiff.ToUnified(path, path, before, edits))
}
