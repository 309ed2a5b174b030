package script

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/adbfleet/internal/device"
	"github.com/srg/adbfleet/internal/ferr"
	"github.com/srg/adbfleet/internal/matcher"
)

// Outcome is what a handler asks the executor to do next. Restart is kept
// distinct from plain success so a step that triggers restart_app doesn't
// get silently conflated with "failed" by callers that only check a bool.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeRestartRequested
)

// LuaRunner executes an embedded Lua script against a device. Implemented
// by internal/luascript.Engine; kept as an interface here so script stays
// free of the cgo-backed Lua dependency.
type LuaRunner interface {
	Run(ctx context.Context, deviceID, source string, params Params) error
}

// Context carries everything a handler needs to act on one device.
type Context struct {
	Ctx           context.Context
	DeviceID      string
	Devices       *device.Manager
	Matcher       *matcher.Matcher
	Logger        *logrus.Entry
	ScreenshotDir string
	Lua           LuaRunner
}

// Handler executes one step's action against Context.
type Handler func(c *Context, step Step) (Outcome, error)

var registry = map[string]Handler{}

func register(action string, h Handler) {
	registry[action] = h
}

// IsRegistered reports whether action names a known handler.
func IsRegistered(action string) bool {
	_, ok := registry[action]
	return ok
}

// Lookup returns the handler for action.
func Lookup(action string) (Handler, bool) {
	h, ok := registry[action]
	return h, ok
}

func init() {
	register("click_image", handleClickImage)
	register("wait_image", handleWaitImage)
	register("input_text", handleInputText)
	register("swipe", handleSwipe)
	register("key", handleKey)
	register("tap", handleTap)
	register("sleep", handleSleep)
	register("restart_app", handleRestartApp)
	register("shell", handleShell)
	register("lua_script", handleLuaScript)
}

func (c *Context) screenshot() (string, error) {
	path := filepath.Join(c.ScreenshotDir, fmt.Sprintf("%s_%d.png", c.DeviceID, time.Now().UnixNano()))
	if err := c.Devices.Screenshot(c.Ctx, c.DeviceID, path); err != nil {
		return "", err
	}
	return path, nil
}

func handleClickImage(c *Context, step Step) (Outcome, error) {
	template, err := RequireString(step.Params, "template")
	if err != nil {
		return OutcomeOK, ferr.New(ferr.KindScriptInvalid, err.Error())
	}
	threshold := GetFloat(step.Params, "threshold", 0)

	path, err := c.screenshot()
	if err != nil {
		return OutcomeOK, err
	}
	defer os.Remove(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return OutcomeOK, ferr.Wrap(ferr.KindIOFailure, err, path)
	}
	img, err := matcher.DecodePNG(data)
	if err != nil {
		return OutcomeOK, err
	}

	m, err := c.Matcher.Find(img, template, threshold)
	if err != nil {
		return OutcomeOK, err
	}

	x, y := m.Center()
	return OutcomeOK, c.Devices.Tap(c.Ctx, c.DeviceID, x, y)
}

func handleWaitImage(c *Context, step Step) (Outcome, error) {
	template, err := RequireString(step.Params, "template")
	if err != nil {
		return OutcomeOK, ferr.New(ferr.KindScriptInvalid, err.Error())
	}
	threshold := GetFloat(step.Params, "threshold", 0)
	timeoutS := GetInt(step.Params, "timeout_s", 30)

	deadline := time.Now().Add(time.Duration(timeoutS) * time.Second)
	for {
		path, err := c.screenshot()
		if err == nil {
			if data, readErr := os.ReadFile(path); readErr == nil {
				if img, decErr := matcher.DecodePNG(data); decErr == nil {
					if _, findErr := c.Matcher.Find(img, template, threshold); findErr == nil {
						os.Remove(path)
						return OutcomeOK, nil
					}
				}
			}
			os.Remove(path)
		}

		if time.Now().After(deadline) {
			return OutcomeOK, ferr.New(ferr.KindNoMatch, fmt.Sprintf("%s not seen within %ds", template, timeoutS))
		}

		select {
		case <-c.Ctx.Done():
			return OutcomeOK, ferr.ErrCancelled
		case <-time.After(time.Second):
		}
	}
}

func handleInputText(c *Context, step Step) (Outcome, error) {
	text, err := RequireString(step.Params, "text")
	if err != nil {
		return OutcomeOK, ferr.New(ferr.KindScriptInvalid, err.Error())
	}
	return OutcomeOK, c.Devices.Text(c.Ctx, c.DeviceID, text)
}

func handleSwipe(c *Context, step Step) (Outcome, error) {
	x1 := GetInt(step.Params, "x1", 0)
	y1 := GetInt(step.Params, "y1", 0)
	x2 := GetInt(step.Params, "x2", 0)
	y2 := GetInt(step.Params, "y2", 0)
	ms := GetInt(step.Params, "duration_ms", 300)
	return OutcomeOK, c.Devices.Swipe(c.Ctx, c.DeviceID, x1, y1, x2, y2, ms)
}

func handleKey(c *Context, step Step) (Outcome, error) {
	code := GetInt(step.Params, "code", 0)
	if code == 0 {
		return OutcomeOK, ferr.New(ferr.KindScriptInvalid, "key step missing code")
	}
	return OutcomeOK, c.Devices.Key(c.Ctx, c.DeviceID, code)
}

func handleTap(c *Context, step Step) (Outcome, error) {
	x := GetInt(step.Params, "x", -1)
	y := GetInt(step.Params, "y", -1)
	if x < 0 || y < 0 {
		return OutcomeOK, ferr.New(ferr.KindScriptInvalid, "tap step missing x/y")
	}
	return OutcomeOK, c.Devices.Tap(c.Ctx, c.DeviceID, x, y)
}

func handleSleep(c *Context, step Step) (Outcome, error) {
	ms := GetInt(step.Params, "duration_ms", 1000)
	select {
	case <-c.Ctx.Done():
		return OutcomeOK, ferr.ErrCancelled
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return OutcomeOK, nil
	}
}

func handleRestartApp(c *Context, step Step) (Outcome, error) {
	pkg, err := RequireString(step.Params, "package")
	if err != nil {
		return OutcomeOK, ferr.New(ferr.KindScriptInvalid, err.Error())
	}
	if restartErr := c.Devices.RestartApp(c.Ctx, c.DeviceID, pkg, ""); restartErr != nil {
		return OutcomeOK, restartErr
	}
	return OutcomeRestartRequested, nil
}

func handleShell(c *Context, step Step) (Outcome, error) {
	cmdline, err := RequireString(step.Params, "command")
	if err != nil {
		return OutcomeOK, ferr.New(ferr.KindScriptInvalid, err.Error())
	}
	ok, _, stderr := c.Devices.Shell(c.Ctx, c.DeviceID, cmdline, "", 0)
	if !ok {
		return OutcomeOK, ferr.New(ferr.KindBridgeFailure, stderr)
	}
	return OutcomeOK, nil
}

func handleLuaScript(c *Context, step Step) (Outcome, error) {
	if c.Lua == nil {
		return OutcomeOK, ferr.New(ferr.KindHandlerMissing, "lua engine not configured")
	}
	source, err := RequireString(step.Params, "source")
	if err != nil {
		return OutcomeOK, ferr.New(ferr.KindScriptInvalid, err.Error())
	}
	return OutcomeOK, c.Lua.Run(c.Ctx, c.DeviceID, source, step.Params)
}
