// Package luascript embeds a Lua interpreter so scripts can express device
// automation the closed handler set in internal/script doesn't cover. Each
// run gets a fresh interpreter state seeded with an `adb` table bound to one
// device and a `params` table built from the step's arguments; output from
// Lua's print() is captured and forwarded to the controller's logger
// instead of going to the process's real stdout.
package luascript

import (
	"context"
	"fmt"
	"time"

	"github.com/aarzilli/golua/lua"
	"github.com/sirupsen/logrus"

	"github.com/srg/adbfleet/internal/adb"
	"github.com/srg/adbfleet/internal/ferr"
	"github.com/srg/adbfleet/internal/groutine"
	"github.com/srg/adbfleet/internal/script"
)

// OutputRecord is one captured line of Lua print() output.
type OutputRecord struct {
	Content   string
	Timestamp time.Time
}

// Error reports a Lua load or runtime failure.
type Error struct {
	Stage   string // always "runtime": DoString load and run failures are not told apart
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("lua %s error: %s", e.Stage, e.Message) }

// Engine runs Lua scripts against a bridge client, one device at a time.
// It is not safe for concurrent Run calls; callers serialize per device
// the way the step executor already does.
type Engine struct {
	bridge *adb.Client
	logger *logrus.Logger
	output *ringChannel[OutputRecord]
}

// New builds an Engine bound to bridge.
func New(bridge *adb.Client, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{
		bridge: bridge,
		logger: logger,
		output: newRingChannel[OutputRecord](200),
	}
}

// Run loads and executes source against deviceID, with params exposed to
// the script as a `params` table. It blocks until the script returns or ctx
// is cancelled, then drains captured output into the logger.
func (e *Engine) Run(ctx context.Context, deviceID, source string, params script.Params) error {
	L := lua.NewState()
	defer L.Close()
	L.OpenLibs()

	e.registerPrint(L)
	e.registerAdbTable(L, ctx, deviceID)
	e.registerParamsTable(L, params)
	L.PushString(deviceID)
	L.SetGlobal("device_id")

	done := make(chan error, 1)
	groutine.Go(ctx, "lua-run-"+deviceID, func(ctx context.Context) {
		if err := L.DoString(source); err != nil {
			done <- &Error{Stage: "runtime", Message: err.Error()}
			return
		}
		done <- nil
	})

	var runErr error
	select {
	case runErr = <-done:
	case <-ctx.Done():
		runErr = ferr.ErrCancelled
	}

	e.drainOutput(deviceID)
	return runErr
}

func (e *Engine) drainOutput(deviceID string) {
	for {
		rec, ok := e.output.TryReceive()
		if !ok {
			return
		}
		e.logger.WithField("device", deviceID).WithField("source", "lua").Info(rec.Content)
	}
}

func (e *Engine) registerPrint(L *lua.State) {
	L.PushGoFunction(func(L *lua.State) int {
		top := L.GetTop()
		var line string
		for i := 1; i <= top; i++ {
			if i > 1 {
				line += "\t"
			}
			line += L.ToString(i)
		}
		e.output.ForceSend(OutputRecord{Content: line, Timestamp: time.Now()})
		return 0
	})
	L.SetGlobal("print")
}

func (e *Engine) registerParamsTable(L *lua.State, params script.Params) {
	L.NewTable()
	if params != nil {
		for pair := params.Oldest(); pair != nil; pair = pair.Next() {
			L.PushString(pair.Key)
			pushValue(L, pair.Value)
			L.SetTable(-3)
		}
	}
	L.SetGlobal("params")
}

func pushValue(L *lua.State, v interface{}) {
	switch val := v.(type) {
	case string:
		L.PushString(val)
	case int:
		L.PushInteger(int64(val))
	case int64:
		L.PushInteger(val)
	case float64:
		L.PushNumber(val)
	case bool:
		L.PushBoolean(val)
	default:
		L.PushString(fmt.Sprintf("%v", val))
	}
}

// registerAdbTable exposes device operations as adb.tap/swipe/text/key/shell
// functions bound to one device and ctx, so a Lua script can drive the same
// bridge surface the closed handler set uses.
func (e *Engine) registerAdbTable(L *lua.State, ctx context.Context, deviceID string) {
	L.NewTable()

	register := func(name string, fn func(L *lua.State) int) {
		L.PushString(name)
		L.PushGoFunction(fn)
		L.SetTable(-3)
	}

	register("tap", func(L *lua.State) int {
		x, y := int(L.ToInteger(1)), int(L.ToInteger(2))
		err := e.bridge.Tap(ctx, deviceID, x, y)
		pushBoolResult(L, err)
		return 1
	})

	register("swipe", func(L *lua.State) int {
		x1, y1 := int(L.ToInteger(1)), int(L.ToInteger(2))
		x2, y2 := int(L.ToInteger(3)), int(L.ToInteger(4))
		ms := int(L.ToInteger(5))
		err := e.bridge.Swipe(ctx, deviceID, x1, y1, x2, y2, ms)
		pushBoolResult(L, err)
		return 1
	})

	register("text", func(L *lua.State) int {
		err := e.bridge.Text(ctx, deviceID, L.ToString(1))
		pushBoolResult(L, err)
		return 1
	})

	register("key", func(L *lua.State) int {
		err := e.bridge.Key(ctx, deviceID, int(L.ToInteger(1)))
		pushBoolResult(L, err)
		return 1
	})

	register("shell", func(L *lua.State) int {
		ok, stdout, _ := e.bridge.Shell(ctx, deviceID, L.ToString(1), 0)
		L.PushBoolean(ok)
		L.PushString(stdout)
		return 2
	})

	register("sleep_ms", func(L *lua.State) int {
		ms := int(L.ToInteger(1))
		select {
		case <-ctx.Done():
		case <-time.After(time.Duration(ms) * time.Millisecond):
		}
		return 0
	})

	L.SetGlobal("adb")
}

func pushBoolResult(L *lua.State, err error) {
	L.PushBoolean(err == nil)
}
