package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/adbfleet/internal/device"
	"github.com/srg/adbfleet/internal/ferr"
	"github.com/srg/adbfleet/internal/script"
)

func newTestManager(t *testing.T, id string) *device.Manager {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "devices.txt")
	require.NoError(t, os.WriteFile(path, []byte(id+":test\n"), 0o644))
	m := device.NewManager(nil, nil)
	require.NoError(t, m.LoadRoster(path))
	return m
}

func sleepStep(name string, ms int) script.Step {
	params := orderedmap.New[string, any]()
	params.Set("duration_ms", ms)
	return script.Step{Name: name, Action: "sleep", Params: params, MaxAttempts: 1}
}

func TestPauseGate_WaitBlocksUntilResume(t *testing.T) {
	g := NewPauseGate()
	require.NoError(t, g.Wait(context.Background()))

	g.Pause()
	done := make(chan struct{})
	go func() {
		_ = g.Wait(context.Background())
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Wait returned before Resume")
	case <-time.After(20 * time.Millisecond):
	}

	g.Resume()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Resume")
	}
}

func TestPauseGate_WaitRespectsCancellation(t *testing.T) {
	g := NewPauseGate()
	g.Pause()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, g.Wait(ctx), context.Canceled)
}

func TestPauseGate_ResumeIsIdempotent(t *testing.T) {
	g := NewPauseGate()
	g.Resume()
	g.Resume()
	assert.NoError(t, g.Wait(context.Background()))
}

func TestAttempt_RetriesUpToMaxAttempts(t *testing.T) {
	calls := 0
	handler := func(c *script.Context, step script.Step) (script.Outcome, error) {
		calls++
		if calls < 3 {
			return script.OutcomeOK, errors.New("transient")
		}
		return script.OutcomeOK, nil
	}

	outcome, err := attempt(&script.Context{}, script.Step{MaxAttempts: 5}, handler)
	assert.NoError(t, err)
	assert.Equal(t, script.OutcomeOK, outcome)
	assert.Equal(t, 3, calls)
}

func TestAttempt_StopsEarlyOnCancellation(t *testing.T) {
	calls := 0
	handler := func(c *script.Context, step script.Step) (script.Outcome, error) {
		calls++
		return script.OutcomeOK, ferr.ErrCancelled
	}

	_, err := attempt(&script.Context{}, script.Step{MaxAttempts: 5}, handler)
	assert.True(t, ferr.Is(err, ferr.KindCancelled))
	assert.Equal(t, 1, calls)
}

func TestRunScript_InitializeFailureSkipsStepsButStillFinalizes(t *testing.T) {
	mgr := newTestManager(t, "127.0.0.1:5555")

	var finalizeCalled bool
	var finalizeSuccess bool
	e := &Executor{
		Devices: mgr,
		Pause:   NewPauseGate(),
		NewCtx:  func(id string) *script.Context { return &script.Context{} },
		Initialize: func(ctx context.Context, deviceID string) error {
			return errors.New("boom")
		},
		Finalize: func(ctx context.Context, deviceID string, success bool) {
			finalizeCalled = true
			finalizeSuccess = success
		},
	}
	sc := &script.Script{Name: "s", Steps: []script.Step{sleepStep("wait", 0)}}

	result := e.RunScript(context.Background(), "127.0.0.1:5555", sc)
	assert.True(t, finalizeCalled)
	assert.False(t, finalizeSuccess)
	assert.False(t, result.Completed)
	assert.True(t, ferr.Is(result.Err, ferr.KindHookFailure))
}

func TestRunScript_EmitsStartSkippedCompletedProgress(t *testing.T) {
	mgr := newTestManager(t, "127.0.0.1:5555")

	var events []Progress
	e := &Executor{
		Devices: mgr,
		Pause:   NewPauseGate(),
		NewCtx:  func(id string) *script.Context { return &script.Context{} },
		OnProgress: func(p Progress) {
			events = append(events, p)
		},
	}
	sc := &script.Script{
		Name:         "s",
		Steps:        []script.Step{sleepStep("step1", 0), sleepStep("step2", 0)},
		EnabledSteps: map[string]bool{"step2": false},
	}

	result := e.RunScript(context.Background(), "127.0.0.1:5555", sc)
	require.True(t, result.Completed)

	require.Len(t, events, 3)
	assert.Equal(t, ProgressStart, events[0].Event)
	assert.Equal(t, 0, events[0].Percent)
	assert.Equal(t, ProgressCompleted, events[1].Event)
	assert.Equal(t, "step1", events[1].Message)
	assert.Equal(t, 50, events[1].Percent)
	assert.Equal(t, ProgressSkipped, events[2].Event)
	assert.Equal(t, "step2", events[2].Message)
	assert.Equal(t, 100, events[2].Percent)
}

func TestDescribeStep_PrefersDescription(t *testing.T) {
	s := describeStep(script.Step{Name: "tap_login", Description: "Tap the login button"}, 1, 4)
	assert.Equal(t, "[2/4] Tap the login button", s)

	s2 := describeStep(script.Step{Name: "tap_login"}, 1, 4)
	assert.Equal(t, "[2/4] tap_login", s2)
}
