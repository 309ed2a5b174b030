// Package config loads and hot-reloads the fleet controller's YAML
// configuration. Defaults are applied via struct tags using
// github.com/mcuadros/go-defaults so every nested block gets sane
// zero-config behavior.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Logging configures the process-wide and per-device log sinks.
type Logging struct {
	Level          string `yaml:"level" default:"INFO"`
	Directory      string `yaml:"directory" default:"logs"`
	ColoredConsole bool   `yaml:"colored_console" default:"true"`
}

// UI configures the terminal front end (an external collaborator; only its
// tunables live here).
type UI struct {
	Style            string `yaml:"style" default:"rich"`
	ShowProgress     bool   `yaml:"show_progress" default:"true"`
	UpdateIntervalMs int    `yaml:"update_interval_ms" default:"250"`
	MaxLines         int    `yaml:"max_lines" default:"200"`
}

// ADB configures the Bridge Client.
type ADB struct {
	Path          string  `yaml:"path" default:"adb"`
	Port          int     `yaml:"port" default:"5037"`
	TimeoutS      float64 `yaml:"timeout_s" default:"10"`
	MaxRetries    int     `yaml:"max_retries" default:"3"`
	RetryInterval float64 `yaml:"retry_interval_s" default:"2"`
	Debug         bool    `yaml:"debug" default:"false"`
}

func (a ADB) Timeout() time.Duration { return time.Duration(a.TimeoutS * float64(time.Second)) }
func (a ADB) RetryDelay() time.Duration {
	return time.Duration(a.RetryInterval * float64(time.Second))
}

// Devices configures the Device Manager.
type Devices struct {
	DevicesFile          string  `yaml:"devices_file" default:"configs/devices.txt"`
	BatchSize            int     `yaml:"batch_size" default:"10"`
	ThreadDelayS         float64 `yaml:"thread_delay_s" default:"1"`
	ConnectTimeoutS      float64 `yaml:"connect_timeout_s" default:"15"`
	AutoReconnect        bool    `yaml:"auto_reconnect" default:"true"`
	StatusCheckIntervalS float64 `yaml:"status_check_interval_s" default:"60"`
}

func (d Devices) ThreadDelay() time.Duration {
	return time.Duration(d.ThreadDelayS * float64(time.Second))
}
func (d Devices) ConnectTimeout() time.Duration {
	return time.Duration(d.ConnectTimeoutS * float64(time.Second))
}
func (d Devices) StatusCheckInterval() time.Duration {
	return time.Duration(d.StatusCheckIntervalS * float64(time.Second))
}

// Scheduler configures the wall-clock trigger.
type Scheduler struct {
	Enabled      bool    `yaml:"enabled" default:"true"`
	RunMinutes   []int   `yaml:"run_minutes"`
	MaxThreads   int     `yaml:"max_threads" default:"20"`
	RunOnStart   bool    `yaml:"run_on_start" default:"true"`
	ThreadDelayS float64 `yaml:"thread_delay_s" default:"1"`
}

func (s Scheduler) ThreadDelay() time.Duration {
	return time.Duration(s.ThreadDelayS * float64(time.Second))
}

// Directories configures the filesystem layout for scripts/templates/output.
type Directories struct {
	Configs   string `yaml:"configs" default:"configs/scripts"`
	Logs      string `yaml:"logs" default:"logs"`
	Templates string `yaml:"templates" default:"screenshots/templates"`
	Output    string `yaml:"output" default:"screenshots/output"`
}

// Config is the root of config.yaml.
type Config struct {
	Logging     Logging     `yaml:"logging"`
	UI          UI          `yaml:"ui"`
	ADB         ADB         `yaml:"adb"`
	Devices     Devices     `yaml:"devices"`
	Scheduler   Scheduler   `yaml:"scheduler"`
	Directories Directories `yaml:"directories"`
}

// Default returns a Config with every default tag applied.
func Default() *Config {
	cfg := &Config{Scheduler: Scheduler{RunMinutes: []int{5, 25, 45}}}
	defaults.SetDefaults(cfg)
	if cfg.Scheduler.RunMinutes == nil {
		cfg.Scheduler.RunMinutes = []int{5, 25, 45}
	}
	return cfg
}

// Load reads and parses path, filling unset fields with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LogrusLevel maps Logging.Level to a logrus.Level, defaulting to Info on an
// unrecognized value.
func (c *Config) LogrusLevel() logrus.Level {
	lvl, err := logrus.ParseLevel(c.Logging.Level)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
