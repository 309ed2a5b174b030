package device

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecord_WithActionClearsOnPanic(t *testing.T) {
	r := &Record{ID: "emu-1"}

	func() {
		defer func() { recover() }()
		r.WithAction("tap button", func() {
			assert.Equal(t, "tap button", r.Snapshot().CurrentAction)
			panic("boom")
		})
	}()

	assert.Equal(t, "", r.Snapshot().CurrentAction)
}

func TestRecord_WithActionRestoresPreviousTagOnNestedCall(t *testing.T) {
	r := &Record{ID: "emu-1"}

	r.WithAction("[1/2] tap_login", func() {
		assert.Equal(t, "[1/2] tap_login", r.Snapshot().CurrentAction)

		r.WithAction("tap", func() {
			assert.Equal(t, "tap", r.Snapshot().CurrentAction)
		})

		assert.Equal(t, "[1/2] tap_login", r.Snapshot().CurrentAction)
	})

	assert.Equal(t, "", r.Snapshot().CurrentAction)
}

func TestRecord_StateTransitions(t *testing.T) {
	r := &Record{ID: "emu-1", State: StateDisconnected}
	assert.False(t, r.IsConnected())

	r.SetState(StateConnected)
	assert.True(t, r.IsConnected())

	r.recordAttempt()
	assert.Equal(t, 1, r.Snapshot().ConnectionAttempts)
	r.resetAttempts()
	assert.Equal(t, 0, r.Snapshot().ConnectionAttempts)
}

func TestRecord_SnapshotIsConcurrencySafe(t *testing.T) {
	r := &Record{ID: "emu-1"}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.SetState(StateConnecting)
			_ = r.Snapshot()
		}()
	}
	wg.Wait()
}
