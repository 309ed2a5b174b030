package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/adbfleet/internal/adb"
	"github.com/srg/adbfleet/internal/config"
	"github.com/srg/adbfleet/internal/device"
	"github.com/srg/adbfleet/internal/executor"
	"github.com/srg/adbfleet/internal/luascript"
	"github.com/srg/adbfleet/internal/matcher"
	"github.com/srg/adbfleet/internal/scheduler"
	"github.com/srg/adbfleet/internal/script"
)

// app bundles every collaborator a command needs, wired from one config.yaml.
type app struct {
	cfg      *config.Config
	logger   *logrus.Logger
	bridge   *adb.Client
	devices  *device.Manager
	scripts  *script.Store
	lua      *luascript.Engine
	exec     *executor.Executor
	sched    *scheduler.Scheduler
	tailHook *deviceTailHook
}

// newApp loads configPath and wires up the full fleet stack around it. Every
// command (run/serve/status/devices/scripts) shares this construction so
// there is exactly one place that decides how the pieces fit together.
func newApp(cmd *cobra.Command, verboseFlag string) (*app, error) {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := configureLogger(cmd, verboseFlag)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(cfg.LogrusLevel())
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		if parsed, perr := logrus.ParseLevel(lvl); perr == nil {
			logger.SetLevel(parsed)
		}
	}

	bridge := adb.NewClient(cfg.ADB.Path, cfg.ADB.Port, cfg.ADB.Timeout(), cfg.ADB.MaxRetries, cfg.ADB.RetryDelay(), logger)
	if err := bridge.Initialize(context.Background()); err != nil {
		return nil, err
	}

	devices := device.NewManager(bridge, logger)
	devices.AutoReconnect = cfg.Devices.AutoReconnect
	devices.ConnectTimeout = cfg.Devices.ConnectTimeout()
	devices.StatusCheckInterval = cfg.Devices.StatusCheckInterval()
	devices.BatchSize = cfg.Devices.BatchSize
	if err := devices.LoadRoster(cfg.Devices.DevicesFile); err != nil {
		return nil, err
	}

	scripts := script.NewStore(cfg.Directories.Configs, logger)
	templateDir := cfg.Directories.Templates

	lua := luascript.New(bridge, logger)

	if err := os.MkdirAll(cfg.Directories.Output, 0o755); err != nil {
		return nil, err
	}

	tailHook := newDeviceTailHook(cfg.UI.MaxLines)
	logger.AddHook(tailHook)

	a := &app{
		cfg:      cfg,
		logger:   logger,
		bridge:   bridge,
		devices:  devices,
		scripts:  scripts,
		lua:      lua,
		tailHook: tailHook,
	}

	mtcher := matcher.New(templateDir, 0.85)
	a.exec = &executor.Executor{
		Devices: devices,
		Scripts: scripts,
		Pause:   executor.NewPauseGate(),
		Logger:  logger,
		NewCtx: func(deviceID string) *script.Context {
			return &script.Context{
				DeviceID:      deviceID,
				Devices:       devices,
				Matcher:       mtcher,
				Logger:        logger.WithField("device", deviceID),
				ScreenshotDir: filepath.Join(cfg.Directories.Output, deviceID),
				Lua:           lua,
			}
		},
		OnProgress: func(p executor.Progress) {
			logger.WithFields(logrus.Fields{
				"device":  p.Device,
				"event":   string(p.Event),
				"percent": p.Percent,
			}).Debug(p.Message)
		},
	}

	a.sched = scheduler.New(scheduler.Config{
		Enabled:     cfg.Scheduler.Enabled,
		RunMinutes:  cfg.Scheduler.RunMinutes,
		MaxThreads:  cfg.Scheduler.MaxThreads,
		RunOnStart:  cfg.Scheduler.RunOnStart,
		ThreadDelay: cfg.Scheduler.ThreadDelay(),
	}, devices, scripts, a.exec, logger)

	return a, nil
}
