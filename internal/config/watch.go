package config

import (
	"encoding/json"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	gojsondiff "github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// Watcher reloads a config file on change and reports a structural diff of
// what changed. Consumers read the swapped pointer rather than restarting.
type Watcher struct {
	path    string
	logger  *logrus.Logger
	current *Config
	onChange func(*Config)
}

// NewWatcher loads path once and returns a Watcher primed with that config.
func NewWatcher(path string, logger *logrus.Logger, onChange func(*Config)) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Watcher{path: path, logger: logger, current: cfg, onChange: onChange}, nil
}

// Current returns the most recently loaded config.
func (w *Watcher) Current() *Config { return w.current }

// Run watches the config file's directory for changes until stop is closed.
// fsnotify fires on the directory (not the file) because editors and
// deployment tooling often replace the file via rename rather than writing
// into it in place.
func (w *Watcher) Run(stop <-chan struct{}) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		return err
	}

	for {
		select {
		case <-stop:
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("config watcher error")
		}
	}
}

func (w *Watcher) reload() {
	next, err := Load(w.path)
	if err != nil {
		w.logger.WithError(err).Warn("config reload failed, keeping previous config")
		return
	}

	if diffText, changed := diff(w.current, next); changed {
		w.logger.WithField("diff", diffText).Info("config changed")
	} else {
		w.logger.Debug("config file touched but contents unchanged")
		return
	}

	w.current = next
	if w.onChange != nil {
		w.onChange(next)
	}
}

// diff renders a structural diff between two configs using gojsondiff,
// routing each through encoding/json so nested structs compare by value.
func diff(oldCfg, newCfg *Config) (string, bool) {
	oldJSON, err1 := json.Marshal(oldCfg)
	newJSON, err2 := json.Marshal(newCfg)
	if err1 != nil || err2 != nil {
		return "", oldCfg == nil || newCfg == nil
	}

	d, err := gojsondiff.New().Compare(oldJSON, newJSON)
	if err != nil || !d.Modified() {
		return "", false
	}

	var newMap map[string]interface{}
	if err := json.Unmarshal(newJSON, &newMap); err != nil {
		return "modified", true
	}

	f := formatter.NewAsciiFormatter(newMap, formatter.AsciiFormatterConfig{ShowArrayIndex: true})
	out, err := f.Format(d)
	if err != nil {
		return "modified", true
	}
	return out, true
}
