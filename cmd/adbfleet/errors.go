package main

import (
	"errors"

	"github.com/srg/adbfleet/internal/ferr"
)

// Command-level errors
var (
	// ErrConnectionLost indicates the ADB connection dropped mid-run. This is
	// distinct from ferr.ErrNotConnected, which indicates an attempt to use a
	// device that was never connected in the first place.
	ErrConnectionLost = errors.New("connection lost")
)

// FormatUserError strips the Go error-wrapping chain down to something a
// human reads comfortably on a terminal, surfacing the device/step tags a
// *ferr.Error carries instead of its Go-ish %v rendering.
func FormatUserError(err error) string {
	var fe *ferr.Error
	if errors.As(err, &fe) {
		msg := fe.Message
		if msg == "" {
			msg = string(fe.Kind)
		}
		if fe.Device != "" {
			msg = fe.Device + ": " + msg
		}
		if fe.Step != "" {
			msg = msg + " (step " + fe.Step + ")"
		}
		return msg
	}
	return err.Error()
}
