// Package executor runs one Script against one device: initialize hook,
// step loop with enabled-mask skip and pause-gate checks, device action
// tagging on every exit path, and a finalize hook that always runs.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/adbfleet/internal/device"
	"github.com/srg/adbfleet/internal/ferr"
	"github.com/srg/adbfleet/internal/script"
)

// Hook runs before (initialize) or after (finalize) a script's steps.
type Hook func(ctx context.Context, deviceID string) error

// ProgressEvent names one of the lifecycle points the Step Executor reports
// progress at: a run starting, a disabled step being bypassed, or a step
// finishing (pass or fail).
type ProgressEvent string

const (
	ProgressStart     ProgressEvent = "start"
	ProgressSkipped   ProgressEvent = "skipped"
	ProgressCompleted ProgressEvent = "completed"
)

// Progress is one update sent to an external sink (e.g. a per-device
// progress bar), percent computed as stepIndex*100/totalSteps.
type Progress struct {
	Device  string
	Event   ProgressEvent
	Percent int
	Message string
}

// Result is the terminal outcome of one RunScript call.
type Result struct {
	Completed        bool
	Cancelled        bool
	RestartRequested bool
	FailedStep       string
	Err              error
}

// PauseGate is a single global pause switch shared by every running
// device: Wait blocks while the gate is paused and unblocks every waiter the
// instant Resume is called.
type PauseGate struct {
	mu     sync.Mutex
	paused chan struct{}
}

// NewPauseGate returns a gate that starts in the resumed state.
func NewPauseGate() *PauseGate {
	g := &PauseGate{paused: make(chan struct{})}
	close(g.paused) // closed == not paused; Wait returns immediately
	return g
}

// Pause blocks all current and future Wait callers until Resume.
func (g *PauseGate) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.paused:
		g.paused = make(chan struct{})
	default:
		// already paused: keep the channel current waiters block on
	}
}

// Resume releases every blocked Wait caller.
func (g *PauseGate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.paused:
		// already resumed
	default:
		close(g.paused)
	}
}

// Wait blocks until the gate is resumed or ctx is cancelled.
func (g *PauseGate) Wait(ctx context.Context) error {
	g.mu.Lock()
	paused := g.paused
	g.mu.Unlock()
	select {
	case <-paused:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Executor runs scripts against devices.
type Executor struct {
	Devices  *device.Manager
	Scripts  *script.Store
	Pause    *PauseGate
	Logger   *logrus.Logger
	NewCtx   func(deviceID string) *script.Context
	OnProgress func(Progress)
	Initialize Hook
	Finalize   func(ctx context.Context, deviceID string, success bool)
}

// RunScript executes every enabled step of sc against deviceID in order,
// stopping at the first failure, cancellation, or restart request.
func (e *Executor) RunScript(ctx context.Context, deviceID string, sc *script.Script) Result {
	rec, ok := e.Devices.Get(deviceID)
	if !ok {
		return Result{Err: ferr.New(ferr.KindDeviceNotFound, deviceID)}
	}

	e.emitProgress(deviceID, ProgressStart, 0, sc.Name)

	var result Result
	if e.Initialize != nil {
		if err := e.Initialize(ctx, deviceID); err != nil {
			result = Result{Err: ferr.Wrap(ferr.KindHookFailure, err, "initialize")}
		}
	}

	if result.Err == nil {
		result = e.runSteps(ctx, rec, sc)
	}

	if e.Finalize != nil {
		e.Finalize(ctx, deviceID, result.Completed)
	}
	return result
}

func (e *Executor) emitProgress(deviceID string, event ProgressEvent, percent int, message string) {
	if e.OnProgress == nil {
		return
	}
	e.OnProgress(Progress{Device: deviceID, Event: event, Percent: percent, Message: message})
}

func percentFor(done, total int) int {
	if total <= 0 {
		return 100
	}
	return done * 100 / total
}

func (e *Executor) runSteps(ctx context.Context, rec *device.Record, sc *script.Script) Result {
	total := len(sc.Steps)
	for i, step := range sc.Steps {
		if !sc.IsStepEnabled(step.Name) {
			e.emitProgress(rec.ID, ProgressSkipped, percentFor(i+1, total), step.Name)
			continue
		}

		if err := e.Pause.Wait(ctx); err != nil {
			return Result{Cancelled: true, Err: ferr.ErrCancelled}
		}
		if ctx.Err() != nil {
			return Result{Cancelled: true, Err: ferr.ErrCancelled}
		}

		handler, ok := script.Lookup(step.Action)
		if !ok {
			return Result{FailedStep: step.Name, Err: ferr.New(ferr.KindHandlerMissing, step.Action)}
		}

		sctx := e.NewCtx(rec.ID)
		sctx.Ctx = ctx

		var outcome script.Outcome
		var stepErr error
		rec.WithAction(describeStep(step, i, total), func() {
			outcome, stepErr = attempt(sctx, step, handler)
		})

		e.emitProgress(rec.ID, ProgressCompleted, percentFor(i+1, total), step.Name)

		if stepErr != nil {
			if ferr.Is(stepErr, ferr.KindCancelled) {
				return Result{Cancelled: true, FailedStep: step.Name, Err: stepErr}
			}
			return Result{FailedStep: step.Name, Err: stepErr}
		}

		if outcome == script.OutcomeRestartRequested {
			return Result{Completed: true, RestartRequested: true}
		}

		if step.WaitAfterMs > 0 {
			select {
			case <-ctx.Done():
				return Result{Cancelled: true, Err: ferr.ErrCancelled}
			case <-time.After(time.Duration(step.WaitAfterMs) * time.Millisecond):
			}
		}
	}
	return Result{Completed: true}
}

// attempt retries a step's handler up to step.MaxAttempts times (at least
// once), matching the original executor's per-action retry budget.
func attempt(sctx *script.Context, step script.Step, handler script.Handler) (script.Outcome, error) {
	maxAttempts := step.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		outcome, err := handler(sctx, step)
		if err == nil {
			return outcome, nil
		}
		lastErr = err
		if ferr.Is(err, ferr.KindCancelled) {
			break
		}
	}
	return script.OutcomeOK, lastErr
}

func describeStep(step script.Step, index, total int) string {
	if step.Description != "" {
		return fmt.Sprintf("[%d/%d] %s", index+1, total, step.Description)
	}
	return fmt.Sprintf("[%d/%d] %s", index+1, total, step.Name)
}
