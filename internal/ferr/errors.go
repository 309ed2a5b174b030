// Package ferr defines the error kinds shared across the fleet controller.
//
// Every kind is distinct and satisfies errors.Is/errors.As so callers can
// branch on failure class without string matching.
package ferr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error classes named by the automation core.
type Kind string

const (
	KindNotConnected    Kind = "not_connected"
	KindTimeout         Kind = "timeout"
	KindBridgeFailure   Kind = "bridge_failure"
	KindDeviceNotFound  Kind = "device_not_found"
	KindTemplateMissing Kind = "template_missing"
	KindLoadFailure     Kind = "load_failure"
	KindNoMatch         Kind = "no_match"
	KindScriptInvalid   Kind = "script_invalid"
	KindHandlerMissing  Kind = "handler_missing"
	KindCancelled       Kind = "cancelled"
	KindHookFailure     Kind = "hook_failure"
	KindIOFailure       Kind = "io_failure"
)

// Error wraps one of the Kind values with a human message and optional cause.
type Error struct {
	Kind    Kind
	Device  string
	Step    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Device != "" {
		msg += " device=" + e.Device
	}
	if e.Step != "" {
		msg += " step=" + e.Step
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(" (%v)", e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is compares by Kind only, ignoring Device/Step/Message/Cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// New builds an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of the given kind wrapping cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithDevice returns a copy of e tagged with a device id.
func (e *Error) WithDevice(id string) *Error {
	c := *e
	c.Device = id
	return &c
}

// WithStep returns a copy of e tagged with a step name.
func (e *Error) WithStep(name string) *Error {
	c := *e
	c.Step = name
	return &c
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

var (
	ErrNotConnected    = New(KindNotConnected, "device not connected")
	ErrTimeout         = New(KindTimeout, "operation timed out")
	ErrDeviceNotFound  = New(KindDeviceNotFound, "device not found")
	ErrTemplateMissing = New(KindTemplateMissing, "template missing")
	ErrNoMatch         = New(KindNoMatch, "no match above threshold")
	ErrScriptInvalid   = New(KindScriptInvalid, "script invalid")
	ErrHandlerMissing  = New(KindHandlerMissing, "handler missing")
	ErrCancelled       = New(KindCancelled, "cancelled")
	ErrHookFailure     = New(KindHookFailure, "hook failure")
	ErrIOFailure       = New(KindIOFailure, "io failure")
)
