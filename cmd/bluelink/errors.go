package main

import (
	"errors"

	"github.com/openblinds/bluelink/internal/device"
)

// FormatUserError rewrites command failures into actionable one-liners;
// anything outside the taxonomy passes through unchanged.
func FormatUserError(err error) string {
	var cerr *device.CommandError
	if errors.As(err, &cerr) {
		switch cerr.Kind {
		case device.DeviceUnreachable:
			return "device is not in range or not connectable - make sure the blind is awake and advertising (run 'bluelink scan')"
		case device.ConnectTimeout:
			return "connection timed out - the blind may be busy or out of range, try again"
		case device.WriteFailed:
			return "the blind rejected the command: " + cerr.Error()
		case device.UnexpectedDisconnect:
			return "the blind disconnected before the command completed, try again"
		}
	}
	return err.Error()
}
