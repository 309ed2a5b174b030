package ferr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "kind only",
			err:  New(KindTimeout, ""),
			want: "timeout",
		},
		{
			name: "with message",
			err:  New(KindTimeout, "waited too long"),
			want: "timeout: waited too long",
		},
		{
			name: "with device and step",
			err:  New(KindScriptInvalid, "bad step").WithDevice("emu-1").WithStep("tap"),
			want: "script_invalid device=emu-1 step=tap: bad step",
		},
		{
			name: "with cause",
			err:  Wrap(KindIOFailure, errors.New("disk full"), "writing screenshot"),
			want: "io_failure: writing screenshot (disk full)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestIs(t *testing.T) {
	err := New(KindCancelled, "stopped")
	assert.True(t, Is(err, KindCancelled))
	assert.False(t, Is(err, KindTimeout))
	assert.False(t, Is(errors.New("plain"), KindCancelled))
}

func TestError_IsIgnoresFields(t *testing.T) {
	a := New(KindDeviceNotFound, "first").WithDevice("emu-1")
	b := New(KindDeviceNotFound, "second").WithDevice("emu-2")
	assert.True(t, errors.Is(a, b))
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	wrapped := Wrap(KindBridgeFailure, cause, "adb failed")
	assert.Same(t, cause, errors.Unwrap(wrapped))
}
